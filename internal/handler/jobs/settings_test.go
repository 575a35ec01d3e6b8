package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"
	"EconPulse/internal/repository"
	"EconPulse/pkg/logger"
	"EconPulse/pkg/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *repository.RedisSettingsStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewRedisSettingsStore(client, "ep")
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSettingsUpsert(t *testing.T) {
	store := newStore(t)
	job := NewSettingsUpsertJob(store, logger.Nop())
	ctx := context.Background()

	quiet := false
	err := job.Handle(ctx, raw(t, SettingsPayload{
		RecipientID: "42",
		Timezone:    "Asia/Tokyo",
		Currencies:  []string{"jpy", "usd"},
		Source:      "forexfactory",
		Impact:      "both",
		QuietHours:  &quiet,
	}))
	require.NoError(t, err)

	got, err := store.GetRecipientSettings(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, models.RecipientSettings{
		RecipientID: "42",
		Timezone:    "Asia/Tokyo",
		Currencies:  []string{"JPY", "USD"},
		Source:      models.SourceForexFactory,
		Impact:      models.ImpactBoth,
		QuietHours:  false,
	}, got)
}

func TestSettingsUpsertDefaults(t *testing.T) {
	store := newStore(t)
	job := NewSettingsUpsertJob(store, logger.Nop())

	require.NoError(t, job.Handle(context.Background(), raw(t, map[string]string{"recipient_id": "7"})))

	got, err := store.GetRecipientSettings(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings("7"), got)
}

func TestSettingsUpsertRejectsInvalid(t *testing.T) {
	job := NewSettingsUpsertJob(newStore(t), logger.Nop())

	cases := map[string]SettingsPayload{
		"missing id":   {Timezone: "UTC"},
		"bad timezone": {RecipientID: "1", Timezone: "Mars/Olympus"},
		"bad currency": {RecipientID: "1", Currencies: []string{"EURO"}},
		"bad source":   {RecipientID: "1", Source: "bloomberg"},
		"bad impact":   {RecipientID: "1", Impact: "low_only"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			err := job.Handle(context.Background(), raw(t, p))
			require.Error(t, err)
			assert.True(t, queue.IsPermanent(err))
		})
	}
}

func TestRecipientRemove(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecipientSettings(ctx, models.DefaultSettings("9")))

	job := NewRecipientRemoveJob(store, logger.Nop())
	require.NoError(t, job.Handle(ctx, raw(t, RemovePayload{RecipientID: "9"})))

	_, err := store.GetRecipientSettings(ctx, "9")
	assert.ErrorIs(t, err, domrepo.ErrSettingsNotFound)
	recipients, err := store.GetRecipients(ctx)
	require.NoError(t, err)
	assert.Empty(t, recipients)

	err = job.Handle(ctx, raw(t, RemovePayload{}))
	assert.True(t, queue.IsPermanent(err))
}
