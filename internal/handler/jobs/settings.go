package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	xhttp "EconPulse/pkg/http"
	"EconPulse/pkg/logger"
	"EconPulse/pkg/queue"

	"github.com/go-playground/validator/v10"
)

const (
	TypeSettingsUpsert  = "settings.upsert"
	TypeRecipientRemove = "settings.remove"
)

// SettingsPayload is what a front-end enqueues when a recipient changes
// preferences. Omitted fields take the defaults.
type SettingsPayload struct {
	RecipientID string   `json:"recipient_id" validate:"required"`
	Timezone    string   `json:"timezone" validate:"omitempty,timezone"`
	Currencies  []string `json:"currencies" validate:"omitempty,dive,len=3,alpha"`
	Source      string   `json:"source" validate:"omitempty,oneof=forexfactory myfxbook both"`
	Impact      string   `json:"impact" validate:"omitempty,oneof=high_only medium_only both"`
	QuietHours  *bool    `json:"quiet_hours"`
	RSSEnabled  bool     `json:"rss_enabled"`
}

// Settings returns the stored form of p.
func (p SettingsPayload) Settings() models.RecipientSettings {
	st := models.DefaultSettings(p.RecipientID)
	if p.Timezone != "" {
		st.Timezone = p.Timezone
	}
	st.Currencies = models.SplitCurrencies(strings.Join(p.Currencies, ","))
	if p.Source != "" {
		st.Source = models.SourcePreference(p.Source)
	}
	if p.Impact != "" {
		st.Impact = models.ImpactFilter(p.Impact)
	}
	if p.QuietHours != nil {
		st.QuietHours = *p.QuietHours
	}
	st.RSSEnabled = p.RSSEnabled
	return st
}

type RemovePayload struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

// SettingsUpsertJob writes validated settings through to the store.
type SettingsUpsertJob struct {
	writer   repository.SettingsWriter
	validate *validator.Validate
	l        *logger.Logger
}

func NewSettingsUpsertJob(w repository.SettingsWriter, l *logger.Logger) *SettingsUpsertJob {
	return &SettingsUpsertJob{writer: w, validate: xhttp.Validator(), l: l}
}

var (
	_ queue.Job = (*SettingsUpsertJob)(nil)
	_ queue.Job = (*RecipientRemoveJob)(nil)
)

func (j *SettingsUpsertJob) Name() string { return "settings_upsert" }
func (j *SettingsUpsertJob) Type() string { return TypeSettingsUpsert }

func (j *SettingsUpsertJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[SettingsPayload](payload)
	if err != nil {
		return err
	}
	if err := j.validate.Struct(p); err != nil {
		return queue.Permanent(fmt.Errorf("invalid settings for %q: %w", p.RecipientID, err))
	}

	st := p.Settings()
	if err := j.writer.SaveRecipientSettings(ctx, st); err != nil {
		return err
	}
	j.l.Info("recipient settings updated",
		logger.String("recipient", st.RecipientID),
		logger.String("source", string(st.Source)),
		logger.String("impact", string(st.Impact)),
	)
	return nil
}

// RecipientRemoveJob stops deliveries to a recipient.
type RecipientRemoveJob struct {
	writer   repository.SettingsWriter
	validate *validator.Validate
	l        *logger.Logger
}

func NewRecipientRemoveJob(w repository.SettingsWriter, l *logger.Logger) *RecipientRemoveJob {
	return &RecipientRemoveJob{writer: w, validate: xhttp.Validator(), l: l}
}

func (j *RecipientRemoveJob) Name() string { return "recipient_remove" }
func (j *RecipientRemoveJob) Type() string { return TypeRecipientRemove }

func (j *RecipientRemoveJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[RemovePayload](payload)
	if err != nil {
		return err
	}
	if err := j.validate.Struct(p); err != nil {
		return queue.Permanent(err)
	}
	if err := j.writer.RemoveRecipient(ctx, p.RecipientID); err != nil {
		return err
	}
	j.l.Info("recipient removed", logger.String("recipient", p.RecipientID))
	return nil
}
