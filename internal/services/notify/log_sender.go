package notify

import (
	"context"

	domrepo "EconPulse/internal/domain/repository"
	applogger "EconPulse/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. It backs
// the dry-run mode.
type LogSender struct {
	l *applogger.Logger
}

func NewLogSender(l *applogger.Logger) *LogSender {
	return &LogSender{l: l}
}

var _ domrepo.Sender = (*LogSender)(nil)

func (s *LogSender) Send(_ context.Context, recipientID, text string, _ domrepo.SendOptions) error {
	s.l.Info("dry-run message",
		applogger.String("recipient", recipientID),
		applogger.String("text", text),
	)
	return nil
}
