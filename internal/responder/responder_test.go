package responder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/eval/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateMatcher_MatchesIntentBeforeCategory(t *testing.T) {
	m, err := NewTemplateMatcher(Catalog{Templates: []CatalogEntry{
		{ID: "by_category", Category: "payment_related", Body: "category reply"},
		{ID: "by_intent", Intent: "payment", Body: "Reply about {{humanize intent}}"},
	}}, nil)
	require.NoError(t, err)

	got, err := m.Match(context.Background(), &analyzer.Analysis{
		Intent:   analyzer.Intent{Type: "payment"},
		Category: "payment_related",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "by_intent", got.ID)
	assert.Equal(t, "Reply about payment", got.Response)

	got, err = m.Match(context.Background(), &analyzer.Analysis{
		Intent:   analyzer.Intent{Type: analyzer.IntentGeneral},
		Category: "payment_related",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "by_category", got.ID)
}

func TestTemplateMatcher_NoMatch(t *testing.T) {
	m, err := NewTemplateMatcher(DefaultCatalog(), nil)
	require.NoError(t, err)

	got, err := m.Match(context.Background(), &analyzer.Analysis{
		Intent:   analyzer.Intent{Type: analyzer.IntentGeneral},
		Category: analyzer.CategoryGeneral,
	})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = m.Match(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDefaultCatalog_CoversEveryNamedIntent(t *testing.T) {
	m, err := NewTemplateMatcher(DefaultCatalog(), nil)
	require.NoError(t, err)

	for _, intent := range []string{"job_inquiry", "interview_scheduling", "payment", "document_submission", "status_check", "technical_support"} {
		got, err := m.Match(context.Background(), &analyzer.Analysis{Intent: analyzer.Intent{Type: intent}})
		require.NoError(t, err)
		require.NotNil(t, got, intent)
		assert.NotEmpty(t, got.Response)
	}
}

func TestNewTemplateMatcher_Validation(t *testing.T) {
	tests := []struct {
		name  string
		entry []CatalogEntry
	}{
		{"missing id", []CatalogEntry{{Intent: "payment", Body: "x"}}},
		{"duplicate id", []CatalogEntry{{ID: "a", Intent: "payment", Body: "x"}, {ID: "a", Intent: "status_check", Body: "y"}}},
		{"no selector", []CatalogEntry{{ID: "a", Body: "x"}}},
		{"bad body", []CatalogEntry{{ID: "a", Intent: "payment", Body: "{{#if x}}"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplateMatcher(Catalog{Templates: tt.entry}, nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - id: pay
    intent: payment
    body: "Payment info"
`), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog.Templates, 1)
	assert.Equal(t, "pay", catalog.Templates[0].ID)

	catalog, err = LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), catalog)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFallback(t *testing.T) {
	f, err := NewFallback("Sorry {{candidate_id}}, we will get back to you.")
	require.NoError(t, err)

	got, err := f.Fallback(context.Background(), "cand-9", nil)
	require.NoError(t, err)
	assert.Equal(t, "Sorry cand-9, we will get back to you.", got)

	_, err = NewFallback("")
	assert.Error(t, err)
}

func TestRenderPrompt(t *testing.T) {
	engine := template.NewEngine()

	got, err := renderPrompt(engine, DefaultPromptTemplate, "When's my interview? <soon>", analyzer.Context{PreviousEscalations: 2})
	require.NoError(t, err)
	assert.Contains(t, got, "When's my interview? <soon>")
	assert.Contains(t, got, "escalated to a human 2 time(s)")

	got, err = renderPrompt(engine, DefaultPromptTemplate, "hi", analyzer.Context{})
	require.NoError(t, err)
	assert.NotContains(t, got, "escalated")

	got, err = renderPrompt(engine, "{{{message}}} / {{{language}}}", "hola", analyzer.Context{Extra: map[string]string{"language": "es", "message": "ignored"}})
	require.NoError(t, err)
	assert.Equal(t, "hola / es", got)
}

func TestNewLLMGenerator_RequiresClient(t *testing.T) {
	_, err := NewLLMGenerator(nil, "model", "", nil)
	assert.Error(t, err)
}
