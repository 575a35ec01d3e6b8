package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/usecase"
	"EconPulse/pkg/logger"
)

type staticSnapshots struct{ snap *usecase.Snapshot }

func (s staticSnapshots) Latest() *usecase.Snapshot { return s.snap }

func release(title string, impact models.Impact, at time.Time) models.RawEvent {
	return models.RawEvent{
		Title: title, Currency: "USD", Impact: impact,
		Time: at.Format("15:04"), TimeInstant: &at, Forecast: "1", Source: "forexfactory",
	}
}

func testSnapshot() *usecase.Snapshot {
	slot := time.Date(2024, 6, 7, 12, 30, 0, 0, time.UTC)
	raw := []models.RawEvent{
		release("Non-Farm Employment Change", models.ImpactHigh, slot),
		release("Unemployment Rate", models.ImpactHigh, slot),
		release("Average Hourly Earnings m/m", models.ImpactHigh, slot),
		release("Fed Chair Powell Speaks", models.ImpactMedium, slot.Add(3*time.Hour)),
	}
	events := usecase.NewDeduper(nil).Dedupe(raw)
	return usecase.NewSnapshot(slot.Add(-time.Hour), map[string][]models.CanonicalEvent{"forexfactory": events})
}

func serve(t *testing.T, h *TimelineHandler, target string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestTimelineGroupsEvents(t *testing.T) {
	h := NewTimelineHandler(logger.Nop(), staticSnapshots{testSnapshot()}, usecase.NewViewBuilder(nil, time.Minute))
	h.now = func() time.Time { return time.Date(2024, 6, 7, 10, 0, 0, 0, time.UTC) }

	rec, body := serve(t, h, "/api/timeline?tz=America/New_York&impact=both")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TimelineResponse
	require.NoError(t, json.Unmarshal(body["data"], &resp))
	assert.Equal(t, "America/New_York", resp.Timezone)
	assert.Equal(t, "today", resp.Day)
	require.Len(t, resp.Items, 2)
	require.True(t, resp.Items[0].IsGroup())
	assert.Len(t, resp.Items[0].Group.Events, 3)
	assert.Equal(t, models.ThemeLabor, resp.Items[0].Group.Theme)
	assert.Equal(t, "Fed Chair Powell Speaks", resp.Items[1].Event.Title)
}

func TestTimelineImpactFilterAndAt(t *testing.T) {
	h := NewTimelineHandler(logger.Nop(), staticSnapshots{testSnapshot()}, usecase.NewViewBuilder(nil, time.Minute))

	rec, body := serve(t, h, "/api/timeline?impact=high_only&at=2024-06-07T09:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TimelineResponse
	require.NoError(t, json.Unmarshal(body["data"], &resp))
	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].IsGroup())

	rec, _ = serve(t, h, "/api/timeline?day=tomorrow&at=2024-06-07T09:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTimelineValidation(t *testing.T) {
	h := NewTimelineHandler(logger.Nop(), staticSnapshots{testSnapshot()}, usecase.NewViewBuilder(nil, time.Minute))

	rec, body := serve(t, h, "/api/timeline?tz=Mars/Olympus&impact=all")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errs []map[string]interface{}
	require.NoError(t, json.Unmarshal(body["data"], &errs))
	require.Len(t, errs, 2)
	assert.Equal(t, "ERR_TIMEZONE", errs[0]["code"])
	assert.Equal(t, "tz", errs[0]["field"])
	assert.Equal(t, "ERR_ONEOF", errs[1]["code"])

	rec, _ = serve(t, h, "/api/timeline?at=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimelineBeforeFirstLoad(t *testing.T) {
	h := NewTimelineHandler(logger.Nop(), staticSnapshots{}, usecase.NewViewBuilder(nil, time.Minute))
	rec, _ := serve(t, h, "/api/timeline")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	ok := HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }}
	h := NewTimelineHandler(logger.Nop(), staticSnapshots{testSnapshot()}, usecase.NewViewBuilder(nil, time.Minute), ok)
	rec, _ := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := HealthCheck{Name: "clickhouse", Check: func(context.Context) error { return errors.New("dial tcp: refused") }}
	h = NewTimelineHandler(logger.Nop(), staticSnapshots{testSnapshot()}, usecase.NewViewBuilder(nil, time.Minute), ok, down)
	rec, body := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(body["data"], &status))
	assert.Equal(t, "ok", status["redis"])
	assert.Equal(t, "dial tcp: refused", status["clickhouse"])
}
