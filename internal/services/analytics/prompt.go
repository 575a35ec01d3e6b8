package analytics

import (
	"encoding/json"
	"fmt"
	"strings"

	"EconPulse/internal/domain/models"
)

const systemPrompt = `You are a macro analyst. Given one economic release with its actual, forecast and previous values, judge the surprise for the currency.
Answer with a single JSON object and nothing else:
{"score": <1-10 market impact>, "sentiment": "bullish"|"bearish"|"neutral", "summary": "<one sentence, max 20 words>", "reasoning": "<two sentences>"}`

type analysisPayload struct {
	Score     json.Number `json:"score"`
	Sentiment string      `json:"sentiment"`
	Summary   string      `json:"summary"`
	Reasoning string      `json:"reasoning"`
}

// parseAnalysis extracts the first JSON object from a model answer.
// Models often wrap it in prose or code fences.
func parseAnalysis(text, model string) (models.Analysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.Analysis{}, fmt.Errorf("no json object in model answer")
	}

	var p analysisPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return models.Analysis{}, fmt.Errorf("decode model answer: %w", err)
	}

	score, err := p.Score.Float64()
	if err != nil {
		return models.Analysis{}, fmt.Errorf("score %q: %w", p.Score, err)
	}
	a := models.Analysis{
		Score:     clamp(int(score+0.5), 1, 10),
		Sentiment: normalizeSentiment(p.Sentiment),
		Summary:   strings.TrimSpace(p.Summary),
		Reasoning: strings.TrimSpace(p.Reasoning),
		Model:     model,
	}
	return a, nil
}

func normalizeSentiment(s string) models.Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish", "positive", "hawkish":
		return models.SentimentBullish
	case "bearish", "negative", "dovish":
		return models.SentimentBearish
	default:
		return models.SentimentNeutral
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
