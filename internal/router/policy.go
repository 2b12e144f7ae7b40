package router

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/eval/cel"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// celVariable is the name rule conditions use to refer to the analysis
const celVariable = "analysis"

// Rule is a CEL condition that selects a route when it evaluates to true.
// The default rule of a RuleSet has no condition.
type Rule struct {
	Name       string  `yaml:"name" json:"name"`
	Condition  string  `yaml:"condition,omitempty" json:"condition,omitempty"`
	Route      Route   `yaml:"route" json:"route"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Reason     string  `yaml:"reason" json:"reason"`
}

// RuleSet is an ordered list of rules plus the decision taken when none match
type RuleSet struct {
	Rules   []Rule `yaml:"rules" json:"rules"`
	Default Rule   `yaml:"default" json:"default"`
}

// PolicyFile is the YAML layout of POLICY_FILE. Variants are alternate rule
// sets that A/B tests can compare against the main one.
type PolicyFile struct {
	RuleSet  `yaml:",inline"`
	Variants map[string]RuleSet `yaml:"variants,omitempty"`
}

// DefaultRuleSet returns the built-in auto-routing rules. Order matters:
// escalating uncertain messages dominates cheap template answers, which
// dominate AI generation for anything that is not simple.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules: []Rule{
			{
				Name:       "escalate_uncertain",
				Condition:  "analysis.requires_human || analysis.confidence < 0.4",
				Route:      RouteEscalation,
				Confidence: 0.8,
				Reason:     ReasonLowConfidence,
			},
			{
				Name:       "ai_for_open_queries",
				Condition:  "analysis.intent == 'general' || analysis.complexity_score > 0.6",
				Route:      RouteAI,
				Confidence: 0.7,
				Reason:     ReasonNeedsAI,
			},
		},
		Default: Rule{
			Name:       "template_default",
			Route:      RouteTemplate,
			Confidence: 0.8,
			Reason:     ReasonTemplateMatch,
		},
	}
}

// Policy turns an analysis and a routing preference into a Decision
type Policy struct {
	name      string
	rules     RuleSet
	evaluator *cel.Evaluator
	logger    *zap.Logger
}

// NewPolicy compiles and validates a rule set
func NewPolicy(name string, rules RuleSet, logger *zap.Logger) (*Policy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	evaluator, err := cel.NewEvaluator(celVariable)
	if err != nil {
		return nil, err
	}

	if err := validateRuleSet(rules, evaluator); err != nil {
		return nil, fmt.Errorf("invalid rule set %q: %w", name, err)
	}

	return &Policy{
		name:      name,
		rules:     rules,
		evaluator: evaluator,
		logger:    logger,
	}, nil
}

// Name returns the policy name
func (p *Policy) Name() string {
	return p.name
}

// Rules returns the rule set the policy evaluates
func (p *Policy) Rules() RuleSet {
	return p.rules
}

// Decide chooses a route. An explicit preference always wins; otherwise the
// rules are evaluated in order and the first match decides.
func (p *Policy) Decide(ctx context.Context, analysis *analyzer.Analysis, pref Preference) (Decision, error) {
	if !pref.IsAuto() {
		route := Route(pref)
		if !route.Valid() {
			return Decision{}, fmt.Errorf("%w: %q", ErrInvalidPreference, pref)
		}
		return NewDecision(route, 0.9, ReasonExplicit), nil
	}

	if analysis == nil {
		return Decision{}, errors.New("analysis is required for auto routing")
	}

	fields := Fields(analysis)

	for i, rule := range p.rules.Rules {
		p.logger.Debug("evaluating rule",
			zap.String("policy", p.name),
			zap.Int("rule_index", i),
			zap.String("condition", rule.Condition),
		)

		matched, err := p.evaluator.EvaluateBool(ctx, rule.Condition, fields)
		if err != nil {
			p.logger.Warn("rule evaluation error",
				zap.String("policy", p.name),
				zap.Int("rule_index", i),
				zap.String("condition", rule.Condition),
				zap.Error(err),
			)
			// Continue to next rule on error
			continue
		}

		if matched {
			p.logger.Debug("rule matched",
				zap.String("policy", p.name),
				zap.String("rule", rule.Name),
				zap.String("route", string(rule.Route)),
			)
			return NewDecision(rule.Route, rule.Confidence, rule.Reason), nil
		}
	}

	d := p.rules.Default
	return NewDecision(d.Route, d.Confidence, d.Reason), nil
}

// Fields flattens an analysis into the map rule conditions see
func Fields(a *analyzer.Analysis) map[string]interface{} {
	return map[string]interface{}{
		"requires_human":    a.RequiresHuman,
		"confidence":        a.Confidence,
		"intent":            a.Intent.Type,
		"intent_confidence": a.Intent.Confidence,
		"sentiment":         a.Sentiment.Label,
		"sentiment_score":   a.Sentiment.Score,
		"complexity":        a.Complexity.Level,
		"complexity_score":  a.Complexity.Score,
		"word_count":        int64(a.Complexity.WordCount),
		"urgency":           a.Urgency.Level,
		"urgency_score":     a.Urgency.Score,
		"category":          a.Category,
		"keywords":          a.Keywords,
	}
}

func validateRuleSet(rs RuleSet, evaluator *cel.Evaluator) error {
	for i, rule := range rs.Rules {
		if rule.Condition == "" {
			return fmt.Errorf("rule %d: condition is required", i)
		}
		if err := validateOutcome(rule); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if err := evaluator.ValidateExpression(rule.Condition); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}

	if rs.Default.Condition != "" {
		return fmt.Errorf("default rule must not have a condition")
	}
	if err := validateOutcome(rs.Default); err != nil {
		return fmt.Errorf("default rule: %w", err)
	}
	return nil
}

func validateOutcome(rule Rule) error {
	if !rule.Route.Valid() {
		return fmt.Errorf("unknown route %q", rule.Route)
	}
	if rule.Confidence < 0 || rule.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", rule.Confidence)
	}
	if rule.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

// LoadPolicies builds the main policy and its variants from a YAML file. An
// empty path yields the built-in rules and no variants.
func LoadPolicies(path string, logger *zap.Logger) (*Policy, map[string]*Policy, error) {
	if path == "" {
		p, err := NewPolicy("default", DefaultRuleSet(), logger)
		return p, map[string]*Policy{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return ParsePolicies(data, logger)
}

// ParsePolicies builds policies from YAML
func ParsePolicies(data []byte, logger *zap.Logger) (*Policy, map[string]*Policy, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	primary, err := NewPolicy("default", file.RuleSet, logger)
	if err != nil {
		return nil, nil, err
	}

	variants := make(map[string]*Policy, len(file.Variants))
	for name, rs := range file.Variants {
		p, err := NewPolicy(name, rs, logger)
		if err != nil {
			return nil, nil, err
		}
		variants[name] = p
	}

	return primary, variants, nil
}
