package analyzer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// extractors groups the signal functions so a single failing one can be
// attributed in an AnalysisError
type extractors struct {
	intent     func(string) Intent
	sentiment  func(string) Sentiment
	complexity func(string) Complexity
	urgency    func(string) Urgency
	category   func(string) string
	keywords   func(string) []string
}

var defaultExtractors = extractors{
	intent:     ExtractIntent,
	sentiment:  ExtractSentiment,
	complexity: ExtractComplexity,
	urgency:    ExtractUrgency,
	category:   ExtractCategory,
	keywords:   ExtractKeywords,
}

// Analyzer turns a message into an Analysis
type Analyzer struct {
	extract extractors
	cache   *lru.Cache[string, Analysis]
	now     func() time.Time
	logger  *zap.Logger
}

// NewAnalyzer creates an analyzer. A positive cacheSize memoises analyses
// keyed by message and escalation history.
func NewAnalyzer(cacheSize int, logger *zap.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Analyzer{
		extract: defaultExtractors,
		now:     time.Now,
		logger:  logger,
	}

	if cacheSize > 0 {
		cache, err := lru.New[string, Analysis](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create analysis cache: %w", err)
		}
		a.cache = cache
	}

	return a, nil
}

// Analyze extracts every signal from message and combines them. It fails
// with ErrInvalidInput for an empty message and with *AnalysisError when an
// extractor crashes.
func (a *Analyzer) Analyze(message string, actx Context) (*Analysis, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}

	key := cacheKey(message, actx.PreviousEscalations)
	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok {
			out := cloneAnalysis(cached)
			out.Timestamp = a.now()
			return &out, nil
		}
	}

	analysis, err := a.run(message, actx)
	if err != nil {
		a.logger.Error("message analysis failed", zap.Error(err))
		return nil, err
	}

	if a.cache != nil {
		a.cache.Add(key, cloneAnalysis(*analysis))
	}

	a.logger.Debug("message analyzed",
		zap.String("intent", analysis.Intent.Type),
		zap.String("category", analysis.Category),
		zap.Float64("confidence", analysis.Confidence),
		zap.Bool("requires_human", analysis.RequiresHuman),
	)

	return analysis, nil
}

func (a *Analyzer) run(message string, actx Context) (*Analysis, error) {
	out := &Analysis{Timestamp: a.now()}

	steps := []struct {
		name string
		fn   func()
	}{
		{"intent", func() { out.Intent = a.extract.intent(message) }},
		{"sentiment", func() { out.Sentiment = a.extract.sentiment(message) }},
		{"complexity", func() { out.Complexity = a.extract.complexity(message) }},
		{"urgency", func() { out.Urgency = a.extract.urgency(message) }},
		{"category", func() { out.Category = a.extract.category(message) }},
		{"keywords", func() { out.Keywords = a.extract.keywords(message) }},
	}

	for _, step := range steps {
		if err := safely(step.name, step.fn); err != nil {
			return nil, err
		}
	}

	out.Recompute(actx.PreviousEscalations)
	return out, nil
}

// safely runs fn and converts a panic into an AnalysisError
func safely(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &AnalysisError{Extractor: name, Cause: fmt.Errorf("%v", r)}
		}
	}()
	fn()
	return nil
}

func cacheKey(message string, previousEscalations int) string {
	return strconv.Itoa(previousEscalations) + "\x00" + message
}

func cloneAnalysis(a Analysis) Analysis {
	a.Intent.MatchedKeywords = slices.Clone(a.Intent.MatchedKeywords)
	a.Urgency.Indicators = slices.Clone(a.Urgency.Indicators)
	a.Keywords = slices.Clone(a.Keywords)
	return a
}
