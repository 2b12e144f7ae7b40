package router

import (
	"context"
	"testing"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy("default", DefaultRuleSet(), nil)
	require.NoError(t, err)
	return p
}

func analysisWith(intent string, complexity, confidence float64, requiresHuman bool) *analyzer.Analysis {
	return &analyzer.Analysis{
		Intent:        analyzer.Intent{Type: intent, Confidence: 0.8},
		Complexity:    analyzer.Complexity{Score: complexity},
		Confidence:    confidence,
		RequiresHuman: requiresHuman,
	}
}

func TestDecide_PriorityOrder(t *testing.T) {
	p := newDefaultPolicy(t)

	tests := []struct {
		name       string
		analysis   *analyzer.Analysis
		wantRoute  Route
		wantConf   float64
		wantReason string
	}{
		{
			name:       "requires human beats general intent and complexity",
			analysis:   analysisWith(analyzer.IntentGeneral, 0.8, 0.9, true),
			wantRoute:  RouteEscalation,
			wantConf:   0.8,
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "low confidence beats general intent",
			analysis:   analysisWith(analyzer.IntentGeneral, 0.2, 0.39, false),
			wantRoute:  RouteEscalation,
			wantConf:   0.8,
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "confidence at threshold is not escalated",
			analysis:   analysisWith("payment", 0.2, 0.4, false),
			wantRoute:  RouteTemplate,
			wantConf:   0.8,
			wantReason: ReasonTemplateMatch,
		},
		{
			name:       "general intent at low complexity goes to ai",
			analysis:   analysisWith(analyzer.IntentGeneral, 0.2, 0.45, false),
			wantRoute:  RouteAI,
			wantConf:   0.7,
			wantReason: ReasonNeedsAI,
		},
		{
			name:       "complex known intent goes to ai",
			analysis:   analysisWith("payment", 0.65, 0.6, false),
			wantRoute:  RouteAI,
			wantConf:   0.7,
			wantReason: ReasonNeedsAI,
		},
		{
			name:       "both ai conditions still ai",
			analysis:   analysisWith(analyzer.IntentGeneral, 0.65, 0.6, false),
			wantRoute:  RouteAI,
			wantConf:   0.7,
			wantReason: ReasonNeedsAI,
		},
		{
			name:       "simple known intent uses template",
			analysis:   analysisWith("job_inquiry", 0.5, 0.7, false),
			wantRoute:  RouteTemplate,
			wantConf:   0.8,
			wantReason: ReasonTemplateMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Decide(context.Background(), tt.analysis, PreferenceAuto)
			require.NoError(t, err)
			assert.Equal(t, NewDecision(tt.wantRoute, tt.wantConf, tt.wantReason), got)
		})
	}
}

func TestDecide_RequiresHumanAlwaysEscalates(t *testing.T) {
	p := newDefaultPolicy(t)

	for _, intent := range []string{analyzer.IntentGeneral, "payment", "job_inquiry"} {
		for _, complexity := range []float64{0.2, 0.5, 0.8} {
			for _, confidence := range []float64{0, 0.4, 0.75, 1} {
				got, err := p.Decide(context.Background(), analysisWith(intent, complexity, confidence, true), PreferenceAuto)
				require.NoError(t, err)
				assert.Equal(t, RouteEscalation, got.Type)
			}
		}
	}
}

func TestDecide_ExplicitPreferenceWins(t *testing.T) {
	p := newDefaultPolicy(t)
	needsHuman := analysisWith(analyzer.IntentGeneral, 0.8, 0.1, true)

	for _, route := range Routes {
		t.Run(string(route), func(t *testing.T) {
			got, err := p.Decide(context.Background(), needsHuman, Preference(route))
			require.NoError(t, err)
			assert.Equal(t, route, got.Type)
			assert.Equal(t, 0.9, got.Confidence)
			assert.Equal(t, ReasonExplicit, got.Reason)
		})
	}

	// explicit routing does not need an analysis
	got, err := p.Decide(context.Background(), nil, Preference(RouteFallback))
	require.NoError(t, err)
	assert.Equal(t, RouteFallback, got.Type)
}

func TestDecide_InvalidPreference(t *testing.T) {
	p := newDefaultPolicy(t)

	_, err := p.Decide(context.Background(), analysisWith("payment", 0.2, 0.7, false), Preference("carrier_pigeon"))
	assert.ErrorIs(t, err, ErrInvalidPreference)
}

func TestDecide_AutoRequiresAnalysis(t *testing.T) {
	p := newDefaultPolicy(t)

	_, err := p.Decide(context.Background(), nil, PreferenceAuto)
	assert.Error(t, err)
}

func TestDecide_RuleErrorSkipsToNextRule(t *testing.T) {
	rs := RuleSet{
		Rules: []Rule{
			// valid at compile time, fails at runtime because the field is missing
			{Name: "broken", Condition: "analysis.no_such_field == 'x'", Route: RouteEscalation, Confidence: 0.8, Reason: "broken"},
			{Name: "ai", Condition: "analysis.confidence > 0.1", Route: RouteAI, Confidence: 0.7, Reason: "ai"},
		},
		Default: Rule{Route: RouteTemplate, Confidence: 0.8, Reason: "default"},
	}
	p, err := NewPolicy("skip", rs, nil)
	require.NoError(t, err)

	got, err := p.Decide(context.Background(), analysisWith("payment", 0.2, 0.7, false), PreferenceAuto)
	require.NoError(t, err)
	assert.Equal(t, RouteAI, got.Type)
}

func TestNewPolicy_RejectsInvalidRules(t *testing.T) {
	valid := DefaultRuleSet()

	tests := []struct {
		name   string
		mutate func(rs *RuleSet)
	}{
		{"missing condition", func(rs *RuleSet) { rs.Rules[0].Condition = "" }},
		{"bad route", func(rs *RuleSet) { rs.Rules[0].Route = "teleport" }},
		{"confidence out of range", func(rs *RuleSet) { rs.Rules[1].Confidence = 1.5 }},
		{"missing reason", func(rs *RuleSet) { rs.Rules[1].Reason = "" }},
		{"syntax error", func(rs *RuleSet) { rs.Rules[0].Condition = "analysis.confidence <" }},
		{"default with condition", func(rs *RuleSet) { rs.Default.Condition = "true" }},
		{"default bad route", func(rs *RuleSet) { rs.Default.Route = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := RuleSet{Rules: append([]Rule(nil), valid.Rules...), Default: valid.Default}
			tt.mutate(&rs)
			_, err := NewPolicy("bad", rs, nil)
			assert.Error(t, err)
		})
	}
}

func TestParsePolicies(t *testing.T) {
	data := []byte(`
rules:
  - name: escalate_uncertain
    condition: "analysis.requires_human || analysis.confidence < 0.4"
    route: escalation
    confidence: 0.8
    reason: low_confidence_or_complex_query
default:
  name: ai_default
  route: ai_response
  confidence: 0.7
  reason: complex_query_needs_ai
variants:
  template_first:
    rules:
      - name: urgent_to_human
        condition: "analysis.urgency == 'high'"
        route: escalation
        confidence: 0.85
        reason: urgent_message
    default:
      route: template_response
      confidence: 0.8
      reason: simple_query_template_match
`)

	primary, variants, err := ParsePolicies(data, nil)
	require.NoError(t, err)
	require.Contains(t, variants, "template_first")

	a := analysisWith("payment", 0.2, 0.7, false)
	got, err := primary.Decide(context.Background(), a, PreferenceAuto)
	require.NoError(t, err)
	assert.Equal(t, RouteAI, got.Type)

	a.Urgency = analyzer.Urgency{Level: analyzer.UrgencyHigh, Score: 0.8}
	got, err = variants["template_first"].Decide(context.Background(), a, PreferenceAuto)
	require.NoError(t, err)
	assert.Equal(t, NewDecision(RouteEscalation, 0.85, "urgent_message"), got)
	assert.Equal(t, "template_first", variants["template_first"].Name())
}

func TestLoadPolicies_DefaultWhenNoPath(t *testing.T) {
	primary, variants, err := LoadPolicies("", nil)
	require.NoError(t, err)
	assert.Empty(t, variants)
	assert.Equal(t, DefaultRuleSet(), primary.Rules())
}

func TestParsePreference(t *testing.T) {
	p, err := ParsePreference("")
	require.NoError(t, err)
	assert.True(t, p.IsAuto())

	p, err = ParsePreference("escalation")
	require.NoError(t, err)
	assert.Equal(t, Preference(RouteEscalation), p)
	assert.False(t, p.IsAuto())

	_, err = ParsePreference("nope")
	assert.ErrorIs(t, err, ErrInvalidPreference)
}
