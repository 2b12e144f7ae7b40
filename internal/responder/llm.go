package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/dago-libs/pkg/domain"
	"github.com/aescanero/dago-libs/pkg/ports"
	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/eval/template"
	"go.uber.org/zap"
)

// DefaultPromptTemplate is the Handlebars prompt sent to the LLM. The message
// uses a triple-stash so it is passed through unescaped.
const DefaultPromptTemplate = `You are a recruiting assistant replying to a job candidate.
{{#if previous_escalations}}This candidate has been escalated to a human {{previous_escalations}} time(s) before; keep the tone careful.
{{/if}}Candidate message:
{{{message}}}

Write a short, friendly and accurate reply. Do not promise anything you cannot verify.`

const defaultMaxTokens = 1024

// LLMGenerator produces ai_response replies through a dago LLM client
type LLMGenerator struct {
	client         ports.LLMClient
	engine         *template.Engine
	model          string
	promptTemplate string
	timeout        time.Duration
	logger         *zap.Logger
}

// NewLLMGenerator creates a generator. An empty promptTemplate uses
// DefaultPromptTemplate.
func NewLLMGenerator(client ports.LLMClient, model, promptTemplate string, logger *zap.Logger) (*LLMGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if promptTemplate == "" {
		promptTemplate = DefaultPromptTemplate
	}

	engine := template.NewEngine()
	if err := engine.ValidateTemplate(promptTemplate); err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}

	return &LLMGenerator{
		client:         client,
		engine:         engine,
		model:          model,
		promptTemplate: promptTemplate,
		logger:         logger,
	}, nil
}

// WithTimeout bounds every completion call. Zero disables the bound.
func (g *LLMGenerator) WithTimeout(d time.Duration) *LLMGenerator {
	g.timeout = d
	return g
}

// Generate renders the prompt and asks the LLM for a reply
func (g *LLMGenerator) Generate(ctx context.Context, message string, actx analyzer.Context) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt, err := renderPrompt(g.engine, g.promptTemplate, message, actx)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	g.logger.Debug("calling llm for reply", zap.Int("prompt_length", len(prompt)))

	req := &domain.LLMRequest{
		Model: g.model,
		Messages: []domain.Message{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		MaxTokens: defaultMaxTokens,
	}

	respInterface, err := g.client.GenerateCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}

	resp, ok := respInterface.(*domain.LLMResponse)
	if !ok {
		return "", fmt.Errorf("unexpected response type from LLM")
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("llm returned an empty reply")
	}
	return reply, nil
}

// renderPrompt renders a Handlebars prompt with the message and its context
func renderPrompt(engine *template.Engine, promptTemplate, message string, actx analyzer.Context) (string, error) {
	data := map[string]interface{}{
		"message":              message,
		"session_id":           actx.SessionID,
		"previous_escalations": actx.PreviousEscalations,
	}

	// Flatten extra context for easier access
	for key, value := range actx.Extra {
		if _, taken := data[key]; !taken {
			data[key] = value
		}
	}

	return engine.Render(promptTemplate, data)
}
