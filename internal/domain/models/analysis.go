package models

// Sentiment of a published result relative to expectations.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// Analysis is the AI commentary attached to a result notification.
type Analysis struct {
	Score     int       `json:"score"`
	Sentiment Sentiment `json:"sentiment"`
	Summary   string    `json:"summary"`
	Reasoning string    `json:"reasoning"`
	Model     string    `json:"model,omitempty"`
}

// Conflict flags a release that two sources report with different actuals.
type Conflict struct {
	Currency string            `json:"currency"`
	Title    string            `json:"title"`
	Bucket   string            `json:"bucket"`
	Actuals  map[string]string `json:"actuals"`
}

// QualityMode controls how strictly suspicious rows are dropped.
type QualityMode string

const (
	QualityStrict  QualityMode = "strict"
	QualityLenient QualityMode = "lenient"
)

// QualityIssue explains why an event was held back from delivery.
type QualityIssue struct {
	Event  CanonicalEvent `json:"event"`
	Reason string         `json:"reason"`
}
