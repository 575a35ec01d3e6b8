package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// RedisSettingsStore keeps the recipient set in a Redis set and each
// recipient's preferences in a hash.
type RedisSettingsStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSettingsStore(client *redis.Client, prefix string) *RedisSettingsStore {
	if prefix == "" {
		prefix = "econpulse"
	}
	return &RedisSettingsStore{client: client, prefix: prefix}
}

var (
	_ domrepo.SettingsStore  = (*RedisSettingsStore)(nil)
	_ domrepo.SettingsWriter = (*RedisSettingsStore)(nil)
)

func (s *RedisSettingsStore) recipientsKey() string { return s.prefix + ":recipients" }

func (s *RedisSettingsStore) settingsKey(id string) string { return s.prefix + ":settings:" + id }

func (s *RedisSettingsStore) GetRecipients(ctx context.Context) ([]models.Recipient, error) {
	ids, err := s.client.SMembers(ctx, s.recipientsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	sort.Strings(ids)
	out := make([]models.Recipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Recipient{ID: id})
	}
	return out, nil
}

func (s *RedisSettingsStore) GetRecipientSettings(ctx context.Context, recipientID string) (models.RecipientSettings, error) {
	fields, err := s.client.HGetAll(ctx, s.settingsKey(recipientID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.RecipientSettings{}, fmt.Errorf("get settings %s: %w", recipientID, err)
	}
	if len(fields) == 0 {
		return models.RecipientSettings{}, domrepo.ErrSettingsNotFound
	}
	return settingsFromFields(recipientID, fields), nil
}

// SaveRecipientSettings writes the hash and registers the recipient.
func (s *RedisSettingsStore) SaveRecipientSettings(ctx context.Context, st models.RecipientSettings) error {
	if st.RecipientID == "" {
		return fmt.Errorf("save settings: empty recipient id")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.settingsKey(st.RecipientID), settingsToFields(st))
		pipe.SAdd(ctx, s.recipientsKey(), st.RecipientID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save settings %s: %w", st.RecipientID, err)
	}
	return nil
}

// RemoveRecipient stops all deliveries to id.
func (s *RedisSettingsStore) RemoveRecipient(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, s.recipientsKey(), id)
		pipe.Del(ctx, s.settingsKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove recipient %s: %w", id, err)
	}
	return nil
}

func settingsToFields(st models.RecipientSettings) map[string]interface{} {
	return map[string]interface{}{
		"timezone":    st.Timezone,
		"currencies":  strings.Join(st.Currencies, ","),
		"source":      string(st.Source),
		"impact":      string(st.Impact),
		"quiet_hours": boolFlag(st.QuietHours),
		"rss_enabled": boolFlag(st.RSSEnabled),
	}
}

// settingsFromFields starts from defaults so missing or invalid fields
// never widen what a recipient receives.
func settingsFromFields(id string, f map[string]string) models.RecipientSettings {
	st := models.DefaultSettings(id)
	if v, ok := f["timezone"]; ok && v != "" {
		st.Timezone = v
	}
	st.Currencies = models.SplitCurrencies(f["currencies"])
	if v := models.SourcePreference(f["source"]); v.Valid() {
		st.Source = v
	}
	if v := models.ImpactFilter(f["impact"]); v.Valid() {
		st.Impact = v
	}
	if v, ok := f["quiet_hours"]; ok {
		st.QuietHours = v == "1"
	}
	st.RSSEnabled = f["rss_enabled"] == "1"
	return st
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
