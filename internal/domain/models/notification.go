package models

import (
	"fmt"
	"time"
)

// MarkKind names the notification channel an idempotency mark belongs to.
type MarkKind string

const (
	MarkEvent         MarkKind = "event"
	MarkReminder      MarkKind = "reminder"
	MarkResult        MarkKind = "result"
	MarkRSS           MarkKind = "rss"
	MarkDaily         MarkKind = "daily"
	MarkGroupReminder MarkKind = "group-reminder"
	MarkGroupResult   MarkKind = "group-result"
)

// MarkKey builds the persisted key "{kind}_{recipientId}_{fingerprint}".
func MarkKey(kind MarkKind, recipientID, fingerprint string) string {
	return fmt.Sprintf("%s_%s_%s", kind, recipientID, fingerprint)
}

// DispatchRecord is the audit entry published after a successful send.
type DispatchRecord struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Kind        MarkKind  `json:"kind"`
	Fingerprint string    `json:"fingerprint"`
	Members     int       `json:"members"`
	SentAt      time.Time `json:"sent_at"`
}
