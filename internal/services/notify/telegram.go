package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domrepo "EconPulse/internal/domain/repository"
	"EconPulse/internal/service/ratelimit"
	xhttp "EconPulse/pkg/http"
	applogger "EconPulse/pkg/logger"
)

// TelegramSender delivers messages through the Bot API sendMessage method.
// Calls are paced by a global limiter and a per-chat limiter, matching the
// Bot API's documented ceilings.
type TelegramSender struct {
	client       *xhttp.Client
	baseURL      string
	token        string
	global       *ratelimit.Limiter
	perChat      *ratelimit.Limiter
	maxRetryWait time.Duration
	l            *applogger.Logger
}

// TelegramOption configures TelegramSender.
type TelegramOption func(*TelegramSender)

// WithBaseURL points the sender at another Bot API server.
func WithBaseURL(u string) TelegramOption {
	return func(s *TelegramSender) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithLimits sets the global and per-chat messages per second.
func WithLimits(globalPerSec, perChatPerSec float64) TelegramOption {
	return func(s *TelegramSender) {
		s.global = ratelimit.New(globalPerSec, globalPerSec)
		s.perChat = ratelimit.New(1, perChatPerSec)
	}
}

// WithMaxRetryWait caps how long a 429 retry_after is honoured inline.
func WithMaxRetryWait(d time.Duration) TelegramOption {
	return func(s *TelegramSender) { s.maxRetryWait = d }
}

func NewTelegramSender(token string, timeout time.Duration, l *applogger.Logger, opts ...TelegramOption) *TelegramSender {
	s := &TelegramSender{
		client:       xhttp.NewClient(xhttp.WithTimeout(timeout)),
		baseURL:      "https://api.telegram.org",
		token:        token,
		global:       ratelimit.New(25, 25),
		perChat:      ratelimit.New(1, 1),
		maxRetryWait: 5 * time.Second,
		l:            l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domrepo.Sender = (*TelegramSender)(nil)

type sendMessageReq struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	DisableNotification   bool   `json:"disable_notification,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send returns domrepo.ErrRecipientBlocked when Telegram says the chat can
// never be reached.
func (s *TelegramSender) Send(ctx context.Context, chatID, text string, opts domrepo.SendOptions) error {
	req := sendMessageReq{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             opts.ParseMode,
		DisableWebPagePreview: opts.DisablePreview,
		DisableNotification:   opts.Silent,
	}

	for attempt := 0; ; attempt++ {
		if err := s.global.Wait(ctx, "global"); err != nil {
			return err
		}
		if err := s.perChat.Wait(ctx, chatID); err != nil {
			return err
		}

		err := s.call(ctx, req)
		if err == nil {
			return nil
		}

		var wait *retryAfterError
		if attempt == 0 && errors.As(err, &wait) && wait.after <= s.maxRetryWait {
			s.l.Warn("telegram flood control, retrying",
				applogger.String("chat", chatID),
				applogger.Duration("retry_after_ms", wait.after),
			)
			select {
			case <-time.After(wait.after):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return err
	}
}

type retryAfterError struct {
	after time.Duration
	desc  string
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("telegram rate limited for %s: %s", e.after, e.desc)
}

func (s *TelegramSender) call(ctx context.Context, req sendMessageReq) error {
	var resp apiResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token),
		Body:   req,
	}, &resp)
	if err == nil {
		if !resp.OK {
			return fmt.Errorf("telegram: %s", resp.Description)
		}
		return nil
	}

	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("telegram send: %w", err)
	}
	_ = json.Unmarshal(se.Body, &resp)

	switch {
	case blocked(se.Code, resp.Description):
		return fmt.Errorf("%w: %s", domrepo.ErrRecipientBlocked, resp.Description)
	case se.Code == http.StatusTooManyRequests:
		after := time.Duration(resp.Parameters.RetryAfter) * time.Second
		if after == 0 {
			after = se.RetryAfter
		}
		return &retryAfterError{after: after, desc: resp.Description}
	default:
		return fmt.Errorf("telegram send: status %d: %s", se.Code, resp.Description)
	}
}

// blocked recognizes the permanent delivery failures.
func blocked(code int, desc string) bool {
	d := strings.ToLower(desc)
	switch code {
	case http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(d, "chat not found") || strings.Contains(d, "user is deactivated")
	}
	return false
}
