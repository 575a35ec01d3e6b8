package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"
	pkgch "EconPulse/pkg/clickhouse"
	applogger "EconPulse/pkg/logger"
)

// CHSettingsStore reads recipient preferences from a ReplacingMergeTree
// table; the newest row per recipient wins.
type CHSettingsStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHSettingsStore(ch *pkgch.Client, l *applogger.Logger) *CHSettingsStore {
	return &CHSettingsStore{db: ch.DB(), table: ch.Database() + ".recipient_settings", l: l}
}

var (
	_ domrepo.SettingsStore  = (*CHSettingsStore)(nil)
	_ domrepo.SettingsWriter = (*CHSettingsStore)(nil)
)

// SettingsSchema is the DDL for the settings table.
func SettingsSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.recipient_settings (
    recipient_id String,
    timezone     String,
    currencies   String,
    source       LowCardinality(String),
    impact       LowCardinality(String),
    quiet_hours  UInt8,
    rss_enabled  UInt8,
    active       UInt8 DEFAULT 1,
    updated_at   DateTime64(3)
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY recipient_id`, database),
	}
}

func (s *CHSettingsStore) GetRecipients(ctx context.Context) ([]models.Recipient, error) {
	q := fmt.Sprintf(`SELECT recipient_id FROM %s FINAL WHERE active = 1 ORDER BY recipient_id`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse list recipients failed", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.ID); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHSettingsStore) GetRecipientSettings(ctx context.Context, recipientID string) (models.RecipientSettings, error) {
	q := fmt.Sprintf(`SELECT timezone, currencies, source, impact, quiet_hours, rss_enabled
FROM %s FINAL WHERE recipient_id = ? LIMIT 1`, s.table)

	var (
		tz, currencies, source, impact string
		quiet, rss                     uint8
	)
	err := s.db.QueryRowContext(ctx, q, recipientID).Scan(&tz, &currencies, &source, &impact, &quiet, &rss)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RecipientSettings{}, domrepo.ErrSettingsNotFound
	}
	if err != nil {
		s.l.Error("clickhouse get settings failed", applogger.String("recipient", recipientID), applogger.Error(err))
		return models.RecipientSettings{}, fmt.Errorf("get settings %s: %w", recipientID, err)
	}

	return settingsFromFields(recipientID, map[string]string{
		"timezone":    tz,
		"currencies":  currencies,
		"source":      source,
		"impact":      impact,
		"quiet_hours": fmt.Sprint(quiet),
		"rss_enabled": fmt.Sprint(rss),
	}), nil
}

// SaveRecipientSettings appends a newer row; merges collapse the old one.
func (s *CHSettingsStore) SaveRecipientSettings(ctx context.Context, st models.RecipientSettings) error {
	q := fmt.Sprintf(`INSERT INTO %s (recipient_id, timezone, currencies, source, impact, quiet_hours, rss_enabled, active, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`, s.table)
	_, err := s.db.ExecContext(ctx, q,
		st.RecipientID,
		st.Timezone,
		strings.Join(st.Currencies, ","),
		string(st.Source),
		string(st.Impact),
		flag(st.QuietHours),
		flag(st.RSSEnabled),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", st.RecipientID, err)
	}
	return nil
}

// RemoveRecipient appends an inactive row so the recipient drops out of
// GetRecipients once merged (FINAL applies it immediately).
func (s *CHSettingsStore) RemoveRecipient(ctx context.Context, recipientID string) error {
	q := fmt.Sprintf(`INSERT INTO %s (recipient_id, active, updated_at) VALUES (?, 0, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, q, recipientID, time.Now().UTC()); err != nil {
		return fmt.Errorf("remove recipient %s: %w", recipientID, err)
	}
	return nil
}

func flag(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
