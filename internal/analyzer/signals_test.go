package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIntent(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantType   string
		wantConf   float64
		wantKwords []string
	}{
		{"no match", "hello there", IntentGeneral, 0.5, []string{}},
		{"job", "I want to apply for the job", "job_inquiry", 0.8, []string{"job", "apply"}},
		{"scheduling", "Can we reschedule my interview", "interview_scheduling", 0.8, []string{"interview", "reschedule"}},
		{"payment", "Where is my salary?", "payment", 0.8, []string{"salary"}},
		{"documents", "I uploaded my CV", "document_submission", 0.8, []string{"cv"}},
		{"application outranks status", "Any update on my application status", "job_inquiry", 0.8, []string{"application"}},
		{"support", "I forgot my password", "technical_support", 0.8, []string{"password"}},
		{"case insensitive", "PAYMENT PLEASE", "payment", 0.8, []string{"payment"}},
		{"substring is not a token", "jobless", IntentGeneral, 0.5, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIntent(tt.message)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantConf, got.Confidence)
			assert.Equal(t, tt.wantKwords, got.MatchedKeywords)
		})
	}
}

func TestExtractIntent_TieBreaksOnDeclarationOrder(t *testing.T) {
	// matches interview_scheduling, payment and job_inquiry; job_inquiry is declared first
	got := ExtractIntent("Can I reschedule the interview about salary for this job?")
	assert.Equal(t, "job_inquiry", got.Type)

	got = ExtractIntent("Reschedule the interview about my salary")
	assert.Equal(t, "interview_scheduling", got.Type)
}

func TestExtractSentiment(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantLabel string
		wantScore float64
	}{
		{"neutral", "I have a question", SentimentNeutral, 0},
		{"positive", "Thank you, this is great", SentimentPositive, 0.6},
		{"negative", "there is a problem", SentimentNegative, -0.3},
		{"tie", "good but bad", SentimentNeutral, 0},
		{"capped", "great great great great", SentimentPositive, 1},
		{"repeated words count", "bad, bad", SentimentNegative, -0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSentiment(tt.message)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.InDelta(t, tt.wantScore, got.Score, 1e-9)
			assert.InDelta(t, abs(tt.wantScore), got.Confidence, 1e-9)
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestExtractComplexity(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantLevel string
		wantScore float64
	}{
		{"short", "hi there", ComplexityLow, 0.2},
		{"one question", "what now?", ComplexityMedium, 0.5},
		{"many words", strings.Repeat("word ", 21), ComplexityMedium, 0.5},
		{"three questions", "why? how? when?", ComplexityHigh, 0.8},
		{"very long", strings.Repeat("word ", 51), ComplexityHigh, 0.8},
		{"boundary twenty", strings.Repeat("word ", 20), ComplexityLow, 0.2},
		{"boundary fifty", strings.Repeat("word ", 50), ComplexityMedium, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractComplexity(tt.message)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantScore, got.Score)
		})
	}

	c := ExtractComplexity("Really? Yes!")
	assert.Equal(t, 2, c.WordCount)
	assert.True(t, c.HasQuestion)
	assert.True(t, c.HasExclamation)
}

func TestExtractUrgency(t *testing.T) {
	tests := []struct {
		name           string
		message        string
		wantLevel      string
		wantScore      float64
		wantIndicators []string
	}{
		{"normal", "hello", UrgencyNormal, 0.3, []string{}},
		{"keyword", "I need this ASAP", UrgencyHigh, 0.8, []string{IndicatorUrgentKeyword}},
		{"exclamations", "help!!", UrgencyHigh, 0.8, []string{IndicatorMultipleExclamations}},
		{"single exclamation", "help!", UrgencyNormal, 0.3, []string{}},
		{"when", "when do I start", UrgencyMedium, 0.6, []string{IndicatorTimeReference}},
		{"question", "is it open?", UrgencyMedium, 0.6, []string{IndicatorTimeReference}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractUrgency(tt.message)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantIndicators, got.Indicators)
		})
	}
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"hello", CategoryGeneral},
		{"is the position still open", "job_related"},
		{"my invoice", "payment_related"},
		{"what time is the meeting", "scheduling"},
		{"I need help", "technical_support"},
		// job bucket has priority over payment
		{"salary for this job", "job_related"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCategory(tt.message))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("The interview, the interview and the salary: when?")
	assert.Equal(t, []string{"interview", "salary"}, got)

	long := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	assert.Len(t, ExtractKeywords(long), 10)
	assert.Equal(t, "juliet", ExtractKeywords(long)[9])

	assert.Empty(t, ExtractKeywords("a an to of"))
}
