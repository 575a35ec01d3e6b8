package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	"EconPulse/pkg/logger"
)

// NewsFingerprint identifies a headline across polls.
func NewsFingerprint(item models.NewsItem) string {
	id := item.ID
	if id == "" {
		id = item.URL + "|" + item.Title
	}
	sum := sha1.Sum([]byte(item.Source + "|" + id))
	return hex.EncodeToString(sum[:])[:20]
}

// NewsCollector polls the news side channel once per pass and keeps recent
// headlines so a failed send can be retried on the next pass.
type NewsCollector struct {
	sources []repository.NewsSource
	maxAge  time.Duration
	logger  *logger.Logger
	metrics repository.Metrics

	mu     sync.Mutex
	recent map[string]models.NewsItem
}

func NewNewsCollector(sources []repository.NewsSource, maxAge time.Duration, metrics repository.Metrics, l *logger.Logger) *NewsCollector {
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}
	return &NewsCollector{
		sources: sources,
		maxAge:  maxAge,
		logger:  l,
		metrics: metrics,
		recent:  make(map[string]models.NewsItem),
	}
}

// Collect polls every source and returns headlines published within maxAge,
// oldest first. Poll failures only cost that source's items.
func (c *NewsCollector) Collect(ctx context.Context, now time.Time) []models.NewsItem {
	var fetched []models.NewsItem
	for _, src := range c.sources {
		items, err := src.Poll(ctx)
		if err != nil {
			c.logger.Warn("news poll failed", logger.String("source", src.Name()), logger.Error(err))
			if c.metrics != nil {
				c.metrics.RecordError("news_poll")
			}
			continue
		}
		fetched = append(fetched, items...)
	}

	cutoff := now.Add(-c.maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range fetched {
		if item.Published.IsZero() {
			item.Published = now
		}
		fp := NewsFingerprint(item)
		if _, ok := c.recent[fp]; !ok {
			c.recent[fp] = item
		}
	}

	out := make([]models.NewsItem, 0, len(c.recent))
	for fp, item := range c.recent {
		if item.Published.Before(cutoff) {
			delete(c.recent, fp)
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Published.Equal(out[j].Published) {
			return out[i].Published.Before(out[j].Published)
		}
		return out[i].Title < out[j].Title
	})
	return out
}
