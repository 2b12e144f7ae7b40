package responder

import (
	"context"
	"fmt"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/eval/template"
)

// Fallback renders the generic reply used when no other route can answer
type Fallback struct {
	engine *template.Engine
	body   string
}

// NewFallback creates a fallback responder from a Handlebars body
func NewFallback(body string) (*Fallback, error) {
	if body == "" {
		return nil, fmt.Errorf("fallback message is required")
	}

	engine := template.NewEngine()
	if err := engine.ValidateTemplate(body); err != nil {
		return nil, fmt.Errorf("invalid fallback template: %w", err)
	}

	return &Fallback{engine: engine, body: body}, nil
}

// Fallback renders the reply for a candidate
func (f *Fallback) Fallback(ctx context.Context, candidateID string, a *analyzer.Analysis) (string, error) {
	data := map[string]interface{}{
		"candidate_id": candidateID,
	}
	if a != nil {
		data["intent"] = a.Intent.Type
		data["category"] = a.Category
	}
	return f.engine.Render(f.body, data)
}
