package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/service"
	"EconPulse/pkg/cache"
	"EconPulse/pkg/logger"
)

// AnalysisCache memoizes scorer output by release content so identical
// results are scored once across recipients.
type AnalysisCache struct {
	scorer service.Scorer
	store  cache.Service
	ttl    time.Duration
	logger *logger.Logger
}

func NewAnalysisCache(scorer service.Scorer, store cache.Service, ttl time.Duration, l *logger.Logger) *AnalysisCache {
	return &AnalysisCache{scorer: scorer, store: store, ttl: ttl, logger: l}
}

// ContentHash is sha256 over title, actual, forecast and previous.
func ContentHash(ev models.CanonicalEvent) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{ev.Title, ev.Actual, ev.Forecast, ev.Previous}, "|")))
	return hex.EncodeToString(sum[:])
}

// Score returns the cached analysis or asks the scorer. Scorer errors,
// including service.ErrRateLimited, stay matchable with errors.Is.
func (c *AnalysisCache) Score(ctx context.Context, ev models.CanonicalEvent) (models.Analysis, error) {
	key := "ai:" + ContentHash(ev)

	// A broken cache degrades to scoring every time.
	var raw string
	switch err := c.store.Get(ctx, key, &raw); {
	case err == nil:
		var a models.Analysis
		if jerr := json.Unmarshal([]byte(raw), &a); jerr == nil {
			return a, nil
		}
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Debug("analysis cache read failed", logger.String("key", key), logger.Error(err))
	}

	a, err := c.scorer.ScoreEvent(ctx, ScoringText(ev))
	if err != nil {
		return models.Analysis{}, fmt.Errorf("score %q: %w", ev.Title, err)
	}

	b, err := json.Marshal(a)
	if err != nil {
		return a, nil
	}
	if err := c.store.Set(ctx, key, string(b), c.ttl); err != nil {
		c.logger.Debug("analysis cache write failed", logger.String("key", key), logger.Error(err))
	}
	return a, nil
}
