package analyzer

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInput is returned when the message is empty or malformed
var ErrInvalidInput = errors.New("invalid input")

// AnalysisError reports a failure inside a signal extractor. The whole
// analysis is aborted; partial results are never returned.
type AnalysisError struct {
	Extractor string
	Cause     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed in %s extractor: %v", e.Extractor, e.Cause)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Context carries the conversation state the analyzer consults
type Context struct {
	PreviousEscalations int               `json:"previousEscalations,omitempty"`
	SessionID           string            `json:"sessionId,omitempty"`
	Extra               map[string]string `json:"extra,omitempty"`
}

// Intent is the detected purpose of a message
type Intent struct {
	Type            string   `json:"type"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matchedKeywords"`
}

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Sentiment is the polarity of a message
type Sentiment struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Complexity levels
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// Complexity describes how involved a message is
type Complexity struct {
	Level          string  `json:"level"`
	Score          float64 `json:"score"`
	WordCount      int     `json:"wordCount"`
	HasQuestion    bool    `json:"hasQuestion"`
	HasExclamation bool    `json:"hasExclamation"`
}

// Urgency levels
const (
	UrgencyNormal = "normal"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Urgency indicator flags
const (
	IndicatorUrgentKeyword        = "urgent_keyword"
	IndicatorMultipleExclamations = "multiple_exclamations"
	IndicatorTimeReference        = "time_reference"
)

// Urgency describes how quickly a message needs handling
type Urgency struct {
	Level      string   `json:"level"`
	Score      float64  `json:"score"`
	Indicators []string `json:"indicators"`
}

// Analysis is the structured result of signal extraction over one message
type Analysis struct {
	Intent        Intent     `json:"intent"`
	Sentiment     Sentiment  `json:"sentiment"`
	Complexity    Complexity `json:"complexity"`
	Urgency       Urgency    `json:"urgency"`
	Category      string     `json:"category"`
	RequiresHuman bool       `json:"requiresHuman"`
	Confidence    float64    `json:"confidence"`
	Keywords      []string   `json:"keywords"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Confidence weights
const (
	weightIntent     = 0.3
	weightSentiment  = 0.2
	weightComplexity = 0.2
	weightUrgency    = 0.2
	weightBaseline   = 0.1
	baseline         = 0.8
)

// Recompute derives RequiresHuman and Confidence from the signal fields.
// Both are never set independently of the signals they summarise.
func (a *Analysis) Recompute(previousEscalations int) {
	a.RequiresHuman = RequiresHuman(a.Complexity, a.Sentiment, previousEscalations)
	a.Confidence = AggregateConfidence(a.Intent, a.Sentiment, a.Complexity, a.Urgency)
}

// RequiresHuman reports whether a message should be handled by a person
func RequiresHuman(c Complexity, s Sentiment, previousEscalations int) bool {
	return c.Score > 0.7 ||
		(s.Label == SentimentNegative && s.Score < -0.5) ||
		previousEscalations > 2
}

// AggregateConfidence combines the signals into a score in [0,1] rounded to
// two decimals. Complexity contributes inversely.
func AggregateConfidence(i Intent, s Sentiment, c Complexity, u Urgency) float64 {
	sum := i.Confidence*weightIntent +
		s.Confidence*weightSentiment +
		(1-c.Score)*weightComplexity +
		u.Score*weightUrgency +
		baseline*weightBaseline
	return clamp01(math.Round(sum*100) / 100)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
