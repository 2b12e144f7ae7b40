package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBool(t *testing.T) {
	e, err := NewEvaluator("analysis")
	require.NoError(t, err)

	fields := map[string]interface{}{
		"requires_human": false,
		"confidence":     0.35,
		"intent":         "payment",
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"analysis.requires_human || analysis.confidence < 0.4", true},
		{"analysis.confidence >= 0.4", false},
		{"analysis.intent == 'payment'", true},
		{"analysis.intent == 'general' && analysis.confidence < 0.4", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.EvaluateBool(context.Background(), tt.expr, fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateBool_NonBoolean(t *testing.T) {
	e, err := NewEvaluator("analysis")
	require.NoError(t, err)

	_, err = e.EvaluateBool(context.Background(), "analysis.confidence", map[string]interface{}{"confidence": 0.5})
	assert.Error(t, err)
}

func TestEvaluate_CachesPrograms(t *testing.T) {
	e, err := NewEvaluator("analysis")
	require.NoError(t, err)

	fields := map[string]interface{}{"confidence": 0.9}
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), "analysis.confidence > 0.5", fields)
		require.NoError(t, err)
	}
	assert.Len(t, e.cache, 1)

	e.ClearCache()
	assert.Empty(t, e.cache)
}

func TestValidateExpression(t *testing.T) {
	e, err := NewEvaluator("analysis")
	require.NoError(t, err)

	assert.NoError(t, e.ValidateExpression("analysis.confidence < 0.4"))
	assert.Error(t, e.ValidateExpression("analysis.confidence <"))
	assert.Error(t, e.ValidateExpression("unknown.field == 1"))
	assert.Error(t, e.ValidateExpression("'text'"))
}
