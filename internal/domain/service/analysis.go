package service

import (
	"context"
	"errors"
	"time"

	"EconPulse/internal/domain/models"
)

// ErrRateLimited is returned by a Scorer once every model refused the call.
var ErrRateLimited = errors.New("ai scorer rate limited")

// Scorer produces commentary for a published release.
type Scorer interface {
	ScoreEvent(ctx context.Context, text string) (models.Analysis, error)
}

type FilterOptions struct {
	Mode         models.QualityMode
	Now          time.Time
	ForScheduler bool
}

type FilterResult struct {
	Deliver []models.CanonicalEvent
	Skipped []models.QualityIssue
}

// QualityFilter is a pure pass that holds back anomalous rows.
type QualityFilter interface {
	FilterForDelivery(events []models.CanonicalEvent, opts FilterOptions) FilterResult
}

// ConflictDetector reports cross-source disagreements. Advisory only.
type ConflictDetector interface {
	CheckCrossSourceConflicts(events []models.CanonicalEvent) []models.Conflict
}
