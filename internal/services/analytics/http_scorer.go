package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EconPulse/internal/domain/models"
	domsvc "EconPulse/internal/domain/service"
	scoremetrics "EconPulse/internal/service/metrics"
	applogger "EconPulse/pkg/logger"
)

// HTTPScorer talks to an OpenAI-compatible chat completions endpoint. Models
// are tried in order; a 429 moves on to the next one.
type HTTPScorer struct {
	base     *HTTPServiceBase
	models   []string
	attempts int
	l        *applogger.Logger
}

func NewHTTPScorer(baseURL, apiKey string, modelList []string, timeout time.Duration, l *applogger.Logger) *HTTPScorer {
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	scoremetrics.Register()
	return &HTTPScorer{
		base:     NewHTTPServiceBase(baseURL, timeout, headers),
		models:   modelList,
		attempts: 2,
		l:        l,
	}
}

var _ domsvc.Scorer = (*HTTPScorer)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResp struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *HTTPScorer) ScoreEvent(ctx context.Context, text string) (models.Analysis, error) {
	if len(s.models) == 0 {
		return models.Analysis{}, fmt.Errorf("no scoring models configured")
	}

	for _, model := range s.models {
		var resp chatResp
		start := time.Now()
		err := s.base.PostJSONWithRetry(ctx, "/chat/completions", chatReq{
			Model: model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: text},
			},
			Temperature: 0.2,
			MaxTokens:   300,
		}, &resp, s.attempts)
		if isRateLimit(err) {
			scoremetrics.ObserveScore("http", model, start, domsvc.ErrRateLimited)
			s.l.Warn("scoring model rate limited, trying next", applogger.String("model", model))
			continue
		}
		scoremetrics.ObserveScore("http", model, start, err)
		if err != nil {
			return models.Analysis{}, fmt.Errorf("score with %s: %w", model, err)
		}
		if len(resp.Choices) == 0 {
			return models.Analysis{}, errors.New("empty completion")
		}
		return parseAnalysis(resp.Choices[0].Message.Content, model)
	}
	return models.Analysis{}, domsvc.ErrRateLimited
}
