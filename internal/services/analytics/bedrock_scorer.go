package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
	domsvc "EconPulse/internal/domain/service"
	scoremetrics "EconPulse/internal/service/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ModelInvoker is the part of the Bedrock runtime client the scorer uses.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockScorer scores releases with an Anthropic model hosted on Bedrock.
type BedrockScorer struct {
	client  ModelInvoker
	modelID string
}

// NewBedrockScorer loads the default AWS credential chain for region.
func NewBedrockScorer(ctx context.Context, region, modelID string) (*BedrockScorer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewBedrockScorerWithClient(bedrockruntime.NewFromConfig(cfg), modelID), nil
}

func NewBedrockScorerWithClient(client ModelInvoker, modelID string) *BedrockScorer {
	if modelID == "" {
		modelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	scoremetrics.Register()
	return &BedrockScorer{client: client, modelID: modelID}
}

var _ domsvc.Scorer = (*BedrockScorer)(nil)

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
}

type bedrockResponse struct {
	Content []bedrockContent `json:"content"`
}

func (s *BedrockScorer) ScoreEvent(ctx context.Context, text string) (_ models.Analysis, err error) {
	defer func(start time.Time) { scoremetrics.ObserveScore("bedrock", s.modelID, start, err) }(time.Now())

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        300,
		System:           systemPrompt,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContent{{Type: "text", Text: text}},
		}},
		Temperature: 0.2,
	})
	if err != nil {
		return models.Analysis{}, fmt.Errorf("marshal request: %w", err)
	}

	out, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(s.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		var throttled *types.ThrottlingException
		var quota *types.ServiceQuotaExceededException
		if errors.As(err, &throttled) || errors.As(err, &quota) {
			return models.Analysis{}, fmt.Errorf("bedrock %s: %w", s.modelID, domsvc.ErrRateLimited)
		}
		return models.Analysis{}, fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return models.Analysis{}, fmt.Errorf("decode bedrock response: %w", err)
	}
	var b strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return parseAnalysis(b.String(), s.modelID)
}
