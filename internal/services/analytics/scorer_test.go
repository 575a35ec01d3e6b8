package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"EconPulse/internal/domain/models"
	domsvc "EconPulse/internal/domain/service"
	"EconPulse/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answer = "Here you go:\n```json\n{\"score\": 7.6, \"sentiment\": \"Hawkish\", \"summary\": \"CPI beat\", \"reasoning\": \"Hot print.\"}\n```"

func completionServer(t *testing.T, limited map[string]bool) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req chatReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if limited[req.Model] {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := chatResp{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: answer}})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPScorerFallsBackOnRateLimit(t *testing.T) {
	srv, calls := completionServer(t, map[string]bool{"primary": true})
	s := NewHTTPScorer(srv.URL, "k", []string{"primary", "backup"}, time.Second, logger.Nop())

	a, err := s.ScoreEvent(context.Background(), "USD CPI m/m: actual 0.4%, forecast 0.3%, previous 0.2%")
	require.NoError(t, err)
	assert.Equal(t, models.Analysis{
		Score:     8,
		Sentiment: models.SentimentBullish,
		Summary:   "CPI beat",
		Reasoning: "Hot print.",
		Model:     "backup",
	}, a)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestHTTPScorerAllModelsLimited(t *testing.T) {
	srv, _ := completionServer(t, map[string]bool{"a": true, "b": true})
	s := NewHTTPScorer(srv.URL, "k", []string{"a", "b"}, time.Second, logger.Nop())

	_, err := s.ScoreEvent(context.Background(), "x")
	assert.ErrorIs(t, err, domsvc.ErrRateLimited)
}

func TestParseAnalysisRejectsProse(t *testing.T) {
	_, err := parseAnalysis("I cannot help with that.", "m")
	assert.Error(t, err)

	a, err := parseAnalysis(`{"score": 42, "sentiment": "???", "summary": " s "}`, "m")
	require.NoError(t, err)
	assert.Equal(t, 10, a.Score)
	assert.Equal(t, models.SentimentNeutral, a.Sentiment)
	assert.Equal(t, "s", a.Summary)
}

type fakeInvoker struct {
	err  error
	body []byte
	in   *bedrockruntime.InvokeModelInput
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrockScorer(t *testing.T) {
	body, _ := json.Marshal(bedrockResponse{Content: []bedrockContent{{Type: "text", Text: answer}}})
	inv := &fakeInvoker{body: body}
	s := NewBedrockScorerWithClient(inv, "")

	a, err := s.ScoreEvent(context.Background(), "USD CPI")
	require.NoError(t, err)
	assert.Equal(t, 8, a.Score)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", *inv.in.ModelId)

	var req bedrockRequest
	require.NoError(t, json.Unmarshal(inv.in.Body, &req))
	assert.Equal(t, "USD CPI", req.Messages[0].Content[0].Text)
}

func TestBedrockThrottlingIsRateLimit(t *testing.T) {
	s := NewBedrockScorerWithClient(&fakeInvoker{err: &types.ThrottlingException{Message: strPtr("slow")}}, "m")
	_, err := s.ScoreEvent(context.Background(), "x")
	assert.ErrorIs(t, err, domsvc.ErrRateLimited)

	s = NewBedrockScorerWithClient(&fakeInvoker{err: errors.New("boom")}, "m")
	_, err = s.ScoreEvent(context.Background(), "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domsvc.ErrRateLimited)
}

func strPtr(s string) *string { return &s }
