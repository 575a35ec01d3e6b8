package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"EconPulse/pkg/cache"
	"EconPulse/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readOnlyCache struct {
	cache.Service
}

func (readOnlyCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("READONLY You can't write against a read only replica")
}

func TestAnalysisCacheHit(t *testing.T) {
	scorer := &fakeScorer{}
	ac := NewAnalysisCache(scorer, cache.NewMemoryCache(), time.Hour, logger.Nop())
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	ev.Actual = "0.4%"
	c := canon(ev)[0]

	first, err := ac.Score(context.Background(), c)
	require.NoError(t, err)
	second, err := ac.Score(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, scorer.calls)
}

func TestAnalysisCacheWriteFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	scorer := &fakeScorer{}
	ac := NewAnalysisCache(scorer, readOnlyCache{cache.NewMemoryCache()}, time.Hour,
		logger.NewWithWriter(&buf, zerolog.DebugLevel))
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	ev.Actual = "0.4%"

	a, err := ac.Score(context.Background(), canon(ev)[0])
	require.NoError(t, err)
	assert.Equal(t, 7, a.Score)
	assert.Contains(t, buf.String(), "analysis cache write failed")
	assert.Contains(t, buf.String(), "READONLY")
}
