package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/usecase"
	xhttp "EconPulse/pkg/http"
	"EconPulse/pkg/logger"
	"EconPulse/pkg/util"
)

// TimelineRequest is the query of GET /api/timeline.
type TimelineRequest struct {
	TZ         string `query:"tz" default:"UTC" validate:"timezone"`
	Source     string `query:"source" default:"both" validate:"oneof=forexfactory myfxbook both"`
	Impact     string `query:"impact" default:"both" validate:"oneof=high_only medium_only both"`
	Day        string `query:"day" default:"today" validate:"oneof=today tomorrow"`
	Currencies string `query:"currencies" validate:"omitempty,max=64"`
	At         string `query:"at"`
}

type TimelineResponse struct {
	FetchedAt     time.Time             `json:"fetched_at"`
	Timezone      string                `json:"timezone"`
	Day           string                `json:"day"`
	Items         []models.TimelineItem `json:"items"`
	FailedSources []string              `json:"failed_sources,omitempty"`
}

// SnapshotProvider exposes the scheduler's last fetch.
type SnapshotProvider interface {
	Latest() *usecase.Snapshot
}

// HealthCheck is one named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// TimelineHandler previews what a recipient with the given preferences
// would see. It reads the shared snapshot and never fetches sources.
type TimelineHandler struct {
	logger    *logger.Logger
	snapshots SnapshotProvider
	views     *usecase.ViewBuilder
	checks    []HealthCheck
	now       func() time.Time
}

func NewTimelineHandler(l *logger.Logger, snapshots SnapshotProvider, views *usecase.ViewBuilder, checks ...HealthCheck) *TimelineHandler {
	return &TimelineHandler{logger: l, snapshots: snapshots, views: views, checks: checks, now: time.Now}
}

var _ xhttp.Handler = (*TimelineHandler)(nil)

func (h *TimelineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/timeline", h.Timeline)
}

func (h *TimelineHandler) Timeline(c echo.Context) error {
	req := &TimelineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := h.now()
	if req.At != "" {
		t, ok := util.ParseTime(req.At)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("at must be RFC3339 or unix seconds").WithParam("at", req.At))
		}
		now = t
	}

	snap := h.snapshots.Latest()
	if snap == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("calendar not loaded yet"))
	}

	settings := models.RecipientSettings{
		RecipientID: "preview",
		Timezone:    req.TZ,
		Source:      models.SourcePreference(req.Source),
		Impact:      models.ImpactFilter(req.Impact),
		Currencies:  models.SplitCurrencies(req.Currencies),
	}
	day := models.ParseDay(req.Day)
	items := usecase.Group(h.views.Build(snap, settings, day, now))
	if items == nil {
		items = []models.TimelineItem{}
	}

	resp := TimelineResponse{
		FetchedAt: snap.FetchedAt.UTC(),
		Timezone:  req.TZ,
		Day:       day.String(),
		Items:     items,
	}
	for id := range snap.Failed() {
		resp.FailedSources = append(resp.FailedSources, id)
	}
	sort.Strings(resp.FailedSources)
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
	return xhttp.SuccessResponse(c, resp)
}

// Health reports 503 when any probe fails or no snapshot has been loaded.
func (h *TimelineHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			healthy = false
			status[chk.Name] = err.Error()
			h.logger.Warn("health check failed", logger.String("check", chk.Name), logger.Error(err))
			continue
		}
		status[chk.Name] = "ok"
	}
	if snap := h.snapshots.Latest(); snap == nil {
		healthy = false
		status["snapshot"] = "not loaded"
	} else {
		status["snapshot"] = snap.FetchedAt.UTC().Format(time.RFC3339)
		if failed := snap.Failed(); len(failed) > 0 {
			ids := make([]string, 0, len(failed))
			for id := range failed {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			status["failed_sources"] = strings.Join(ids, ",")
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, code, status)
}
