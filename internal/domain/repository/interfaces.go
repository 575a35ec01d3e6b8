package repository

import (
	"context"
	"errors"
	"time"

	"EconPulse/internal/domain/models"
)

var (
	// ErrRecipientBlocked means the transport will never reach the recipient
	// (bot blocked, account deactivated). It is expected and never retried
	// with backoff.
	ErrRecipientBlocked = errors.New("recipient blocked")
	// ErrSettingsNotFound is returned when no settings row exists.
	ErrSettingsNotFound = errors.New("recipient settings not found")
)

// Source is a calendar feed. Implementations cache and rate limit on their
// own; callers treat any error as zero events for the pass.
type Source interface {
	ID() string
	FetchToday(ctx context.Context) ([]models.RawEvent, error)
	FetchTomorrow(ctx context.Context) ([]models.RawEvent, error)
}

// MarkStore persists idempotency marks. MarkSent is write-once.
type MarkStore interface {
	HasSent(ctx context.Context, key string) (bool, error)
	MarkSent(ctx context.Context, key string, at time.Time) error
}

type SettingsStore interface {
	GetRecipients(ctx context.Context) ([]models.Recipient, error)
	GetRecipientSettings(ctx context.Context, recipientID string) (models.RecipientSettings, error)
}

// SettingsWriter is implemented by stores that accept settings updates.
type SettingsWriter interface {
	SaveRecipientSettings(ctx context.Context, s models.RecipientSettings) error
	RemoveRecipient(ctx context.Context, recipientID string) error
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

type Sender interface {
	Send(ctx context.Context, recipientID, text string, opts SendOptions) error
}

type NewsSource interface {
	Name() string
	Poll(ctx context.Context) ([]models.NewsItem, error)
}

// DispatchAuditor receives a record of every delivered notification.
type DispatchAuditor interface {
	Record(ctx context.Context, rec models.DispatchRecord) error
}

type Metrics interface {
	RecordMessageSent(kind, result string)
	RecordError(kind string)
	RecordTick(skipped bool)
	RecordLatency(op string, seconds float64)
}
