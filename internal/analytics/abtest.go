package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidTestConfig is returned when an A/B test cannot be started
	ErrInvalidTestConfig = errors.New("invalid test config")

	// ErrTestNotFound is returned for an unknown test id
	ErrTestNotFound = errors.New("test not found")

	// ErrTestCompleted is returned when mutating a completed test
	ErrTestCompleted = errors.New("test already completed")

	// ErrUnknownVariant is returned for a variant the test does not define
	ErrUnknownVariant = errors.New("unknown variant")
)

// SignificanceLevel is the p-value below which a difference is significant
const SignificanceLevel = 0.05

// TestStatus is the lifecycle state of an A/B test
type TestStatus string

const (
	TestActive    TestStatus = "active"
	TestCompleted TestStatus = "completed"
)

// TestConfig describes an experiment to start. TrafficSplit maps variant
// names to percentages summing to 100; an empty split divides traffic evenly.
type TestConfig struct {
	Name         string             `json:"name"`
	Variants     []string           `json:"variants"`
	TrafficSplit map[string]float64 `json:"trafficSplit,omitempty"`
	DurationDays int                `json:"durationDays,omitempty"`
}

// VariantStats holds the counters of one variant
type VariantStats struct {
	TrafficPercentage float64 `json:"trafficPercentage"`
	Participants      int     `json:"participants"`
	Conversions       int     `json:"conversions"`
	SuccessRate       float64 `json:"successRate"`
}

// Significance is the result of comparing the two best variants
type Significance struct {
	IsSignificant   bool    `json:"isSignificant"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	PValue          float64 `json:"pValue"`
}

// ABTest is a controlled comparison of routing policy variants
type ABTest struct {
	ID           string                   `json:"testId"`
	Name         string                   `json:"name"`
	Status       TestStatus               `json:"status"`
	StartDate    time.Time                `json:"startDate"`
	EndDate      *time.Time               `json:"endDate,omitempty"`
	DurationDays int                      `json:"durationDays,omitempty"`
	VariantOrder []string                 `json:"variantOrder"`
	Variants     map[string]*VariantStats `json:"variants"`
	Winner       string                   `json:"winner,omitempty"`
	Significance *Significance            `json:"significance,omitempty"`

	// candidates already counted as participants
	seen map[string]struct{}
}

func (t *ABTest) clone() ABTest {
	out := *t
	out.seen = nil
	out.VariantOrder = append([]string(nil), t.VariantOrder...)
	out.Variants = make(map[string]*VariantStats, len(t.Variants))
	for name, v := range t.Variants {
		vc := *v
		out.Variants[name] = &vc
	}
	if t.EndDate != nil {
		end := *t.EndDate
		out.EndDate = &end
	}
	if t.Significance != nil {
		sig := *t.Significance
		out.Significance = &sig
	}
	return out
}

// Experiments is the registry of A/B tests. All methods are safe for
// concurrent use.
type Experiments struct {
	mu     sync.RWMutex
	tests  map[string]*ABTest
	order  []string
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewExperiments creates an empty registry
func NewExperiments(logger *zap.Logger) *Experiments {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiments{
		tests:  make(map[string]*ABTest),
		logger: logger,
		now:    time.Now,
		newID:  func() string { return "ab_" + uuid.New().String() },
	}
}

// Start validates cfg and creates an active test with zeroed counters
func (e *Experiments) Start(cfg TestConfig) (ABTest, error) {
	split, err := validateTestConfig(cfg)
	if err != nil {
		return ABTest{}, err
	}

	test := &ABTest{
		ID:           e.newID(),
		Name:         strings.TrimSpace(cfg.Name),
		Status:       TestActive,
		StartDate:    e.now().UTC(),
		DurationDays: cfg.DurationDays,
		VariantOrder: append([]string(nil), cfg.Variants...),
		Variants:     make(map[string]*VariantStats, len(cfg.Variants)),
		seen:         make(map[string]struct{}),
	}
	for _, name := range cfg.Variants {
		test.Variants[name] = &VariantStats{TrafficPercentage: split[name]}
	}

	e.mu.Lock()
	e.tests[test.ID] = test
	e.order = append(e.order, test.ID)
	e.mu.Unlock()

	e.logger.Info("ab test started",
		zap.String("test_id", test.ID),
		zap.String("name", test.Name),
		zap.Strings("variants", test.VariantOrder),
	)

	return test.clone(), nil
}

func validateTestConfig(cfg TestConfig) (map[string]float64, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTestConfig)
	}
	if len(cfg.Variants) < 2 {
		return nil, fmt.Errorf("%w: at least 2 variants are required, got %d", ErrInvalidTestConfig, len(cfg.Variants))
	}
	if cfg.DurationDays < 0 {
		return nil, fmt.Errorf("%w: durationDays must be non-negative", ErrInvalidTestConfig)
	}

	seen := make(map[string]bool, len(cfg.Variants))
	for _, name := range cfg.Variants {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: variant names must not be empty", ErrInvalidTestConfig)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate variant %q", ErrInvalidTestConfig, name)
		}
		seen[name] = true
	}

	split := make(map[string]float64, len(cfg.Variants))
	if len(cfg.TrafficSplit) == 0 {
		share := 100 / float64(len(cfg.Variants))
		for _, name := range cfg.Variants {
			split[name] = share
		}
		return split, nil
	}

	var sum float64
	for name, pct := range cfg.TrafficSplit {
		if !seen[name] {
			return nil, fmt.Errorf("%w: traffic split names unknown variant %q", ErrInvalidTestConfig, name)
		}
		if pct <= 0 {
			return nil, fmt.Errorf("%w: traffic for %q must be positive", ErrInvalidTestConfig, name)
		}
		split[name] = pct
		sum += pct
	}
	if len(split) != len(cfg.Variants) {
		return nil, fmt.Errorf("%w: traffic split must cover every variant", ErrInvalidTestConfig)
	}
	if math.Abs(sum-100) > 0.01 {
		return nil, fmt.Errorf("%w: traffic split sums to %.2f, expected 100", ErrInvalidTestConfig, sum)
	}
	return split, nil
}

// Results returns the named test, or every test in start order when testID
// is empty
func (e *Experiments) Results(testID string) ([]ABTest, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if testID != "" {
		test, ok := e.tests[testID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
		}
		return []ABTest{test.clone()}, nil
	}

	out := make([]ABTest, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.tests[id].clone())
	}
	return out, nil
}

// Active returns the most recently started active test, if any
func (e *Experiments) Active() (ABTest, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for i := len(e.order) - 1; i >= 0; i-- {
		if test := e.tests[e.order[i]]; test.Status == TestActive {
			return test.clone(), true
		}
	}
	return ABTest{}, false
}

// Complete marks a test completed. It is the only way a test leaves active.
func (e *Experiments) Complete(testID string) (ABTest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	test, err := e.activeTest(testID)
	if err != nil {
		return ABTest{}, err
	}

	end := e.now().UTC()
	test.Status = TestCompleted
	test.EndDate = &end

	e.logger.Info("ab test completed",
		zap.String("test_id", test.ID),
		zap.String("winner", test.Winner),
	)

	return test.clone(), nil
}

// Assign deterministically maps a candidate to a variant by hashing the
// candidate into the traffic split
func (e *Experiments) Assign(testID, candidateID string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	test, err := e.activeTest(testID)
	if err != nil {
		return "", err
	}

	point := float64(xxhash.Sum64String(testID+":"+candidateID)%10000) / 100
	var cumulative float64
	for _, name := range test.VariantOrder {
		cumulative += test.Variants[name].TrafficPercentage
		if point < cumulative {
			return name, nil
		}
	}
	return test.VariantOrder[len(test.VariantOrder)-1], nil
}

// RecordParticipation counts a candidate routed under a variant. A
// candidate is counted once per test however many messages it sends.
func (e *Experiments) RecordParticipation(testID, variant, candidateID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, test, err := e.variant(testID, variant)
	if err != nil {
		return err
	}
	if _, ok := test.seen[candidateID]; ok {
		return nil
	}
	test.seen[candidateID] = struct{}{}
	v.Participants++
	updateRates(test)
	return nil
}

// RecordOutcome records whether a participant of a variant converted
func (e *Experiments) RecordOutcome(testID, variant string, success bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, test, err := e.variant(testID, variant)
	if err != nil {
		return err
	}
	if success {
		v.Conversions++
		if v.Conversions > v.Participants {
			v.Participants = v.Conversions
		}
	}
	updateRates(test)
	return nil
}

func (e *Experiments) activeTest(testID string) (*ABTest, error) {
	test, ok := e.tests[testID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}
	if test.Status != TestActive {
		return nil, fmt.Errorf("%w: %s", ErrTestCompleted, testID)
	}
	return test, nil
}

func (e *Experiments) variant(testID, variant string) (*VariantStats, *ABTest, error) {
	test, err := e.activeTest(testID)
	if err != nil {
		return nil, nil, err
	}
	v, ok := test.Variants[variant]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q in test %s", ErrUnknownVariant, variant, testID)
	}
	return v, test, nil
}

// updateRates refreshes success rates, significance and the winner
func updateRates(test *ABTest) {
	for _, v := range test.Variants {
		if v.Participants > 0 {
			v.SuccessRate = round2(float64(v.Conversions) / float64(v.Participants))
		}
	}

	ranked := make([]string, 0, len(test.VariantOrder))
	for _, name := range test.VariantOrder {
		if test.Variants[name].Participants > 0 {
			ranked = append(ranked, name)
		}
	}
	if len(ranked) < 2 {
		test.Significance = nil
		test.Winner = ""
		return
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return conversionRate(test.Variants[ranked[i]]) > conversionRate(test.Variants[ranked[j]])
	})

	best, second := test.Variants[ranked[0]], test.Variants[ranked[1]]
	sig := TwoProportionTest(best.Conversions, best.Participants, second.Conversions, second.Participants)
	test.Significance = &sig
	test.Winner = ""
	if sig.IsSignificant {
		test.Winner = ranked[0]
	}
}

func conversionRate(v *VariantStats) float64 {
	if v.Participants == 0 {
		return 0
	}
	return float64(v.Conversions) / float64(v.Participants)
}

// TwoProportionTest runs a two-sided two-proportion z-test
func TwoProportionTest(conv1, n1, conv2, n2 int) Significance {
	if n1 == 0 || n2 == 0 {
		return Significance{PValue: 1}
	}

	p1 := float64(conv1) / float64(n1)
	p2 := float64(conv2) / float64(n2)
	pooled := float64(conv1+conv2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return Significance{PValue: 1}
	}

	z := math.Abs(p1-p2) / se
	pValue := 2 * (1 - distuv.UnitNormal.CDF(z))

	return Significance{
		IsSignificant:   pValue < SignificanceLevel,
		ConfidenceLevel: math.Round((1-pValue)*10000) / 10000,
		PValue:          math.Round(pValue*10000) / 10000,
	}
}
