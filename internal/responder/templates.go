package responder

import (
	"context"
	"fmt"
	"os"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/eval/template"
	"github.com/aescanero/dago-message-router/internal/router"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is one canned response. It matches on Intent, or on Category
// when Intent is empty.
type CatalogEntry struct {
	ID       string `yaml:"id"`
	Intent   string `yaml:"intent,omitempty"`
	Category string `yaml:"category,omitempty"`
	Body     string `yaml:"body"`
}

// Catalog is the YAML layout of TEMPLATE_FILE
type Catalog struct {
	Templates []CatalogEntry `yaml:"templates"`
}

// DefaultCatalog returns the starter catalog used when no file is configured
func DefaultCatalog() Catalog {
	return Catalog{Templates: []CatalogEntry{
		{ID: "job_inquiry", Intent: "job_inquiry", Body: "Thanks for your interest in the role. You can find the open positions and apply from your candidate portal."},
		{ID: "interview_scheduling", Intent: "interview_scheduling", Body: "Thanks for reaching out about your interview. You can pick or change a slot from the scheduling link in your invitation."},
		{ID: "payment", Intent: "payment", Body: "Thanks for your message about payment. Payments are processed at the end of each pay period; you will get a confirmation once yours is sent."},
		{ID: "document_submission", Intent: "document_submission", Body: "Thanks, we have noted your documents. You can upload or replace them at any time from your profile."},
		{ID: "status_check", Intent: "status_check", Body: "Thanks for checking in. Your application is being reviewed and we will update you as soon as there is news."},
		{ID: "technical_support", Intent: "technical_support", Body: "Sorry you are having trouble. Please try resetting your password from the login page; if that does not work, reply here and we will help."},
		{ID: "scheduling_category", Category: "scheduling", Body: "Thanks for your message about scheduling. You can see all upcoming dates in your candidate portal."},
	}}
}

// LoadCatalog reads a catalog from YAML. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read template file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse template YAML: %w", err)
	}
	return catalog, nil
}

// TemplateMatcher selects catalog entries for an analysis and renders them
type TemplateMatcher struct {
	entries []CatalogEntry
	engine  *template.Engine
	logger  *zap.Logger
}

// NewTemplateMatcher validates every entry of the catalog
func NewTemplateMatcher(catalog Catalog, logger *zap.Logger) (*TemplateMatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := template.NewEngine()
	seen := make(map[string]bool, len(catalog.Templates))
	for i, entry := range catalog.Templates {
		if entry.ID == "" {
			return nil, fmt.Errorf("template %d: id is required", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("template %d: duplicate id %q", i, entry.ID)
		}
		seen[entry.ID] = true
		if entry.Intent == "" && entry.Category == "" {
			return nil, fmt.Errorf("template %q: intent or category is required", entry.ID)
		}
		if err := engine.ValidateTemplate(entry.Body); err != nil {
			return nil, fmt.Errorf("template %q: %w", entry.ID, err)
		}
	}

	return &TemplateMatcher{
		entries: catalog.Templates,
		engine:  engine,
		logger:  logger,
	}, nil
}

// Match returns the first entry for the analysis intent, then the first for
// its category, or nil when neither exists
func (m *TemplateMatcher) Match(ctx context.Context, a *analyzer.Analysis) (*router.Template, error) {
	if a == nil {
		return nil, nil
	}

	entry := m.find(a)
	if entry == nil {
		m.logger.Debug("no template matched",
			zap.String("intent", a.Intent.Type),
			zap.String("category", a.Category),
		)
		return nil, nil
	}

	body, err := m.engine.Render(entry.Body, map[string]interface{}{
		"intent":   a.Intent.Type,
		"category": a.Category,
		"keywords": a.Keywords,
		"urgency":  a.Urgency.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render template %q: %w", entry.ID, err)
	}

	return &router.Template{ID: entry.ID, Response: body}, nil
}

func (m *TemplateMatcher) find(a *analyzer.Analysis) *CatalogEntry {
	for i := range m.entries {
		if m.entries[i].Intent != "" && m.entries[i].Intent == a.Intent.Type {
			return &m.entries[i]
		}
	}
	for i := range m.entries {
		if m.entries[i].Intent == "" && m.entries[i].Category == a.Category {
			return &m.entries[i]
		}
	}
	return nil
}
