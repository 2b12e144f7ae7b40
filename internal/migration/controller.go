package migration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage is one step of the routing subsystem rollout
type Stage string

const (
	StageAnalysis     Stage = "analysis"
	StageRouting      Stage = "routing"
	StageEscalation   Stage = "escalation"
	StageOptimization Stage = "optimization"
)

// Stages is the fixed rollout order
var Stages = []Stage{StageAnalysis, StageRouting, StageEscalation, StageOptimization}

// Index returns the position of s in Stages, or -1
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

var (
	// ErrInvalidStage is returned for a stage name outside Stages
	ErrInvalidStage = errors.New("invalid stage")

	// ErrBackwardMigration is returned when promoting to the current or an earlier stage
	ErrBackwardMigration = errors.New("backward migration")

	// ErrStageSkip is returned when promoting more than one stage ahead
	ErrStageSkip = errors.New("stage skip")

	// ErrAlreadyAtFirstStage is returned when rolling back from the first stage
	ErrAlreadyAtFirstStage = errors.New("already at first stage")
)

// Transition kinds
const (
	KindPromote  = "promote"
	KindRollback = "rollback"
)

// Transition is one recorded stage change
type Transition struct {
	Kind string    `json:"kind"`
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// State is the persisted migration state
type State struct {
	CurrentStage Stage        `json:"currentStage"`
	Initialized  bool         `json:"initialized"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	History      []Transition `json:"history"`
}

// Stats summarises the transition history
type Stats struct {
	Promotions     int        `json:"promotions"`
	Rollbacks      int        `json:"rollbacks"`
	LastTransition *time.Time `json:"lastTransition,omitempty"`
}

// Status is the operator view of the migration
type Status struct {
	CurrentStage Stage        `json:"currentStage"`
	CurrentIndex int          `json:"currentIndex"`
	Stages       []Stage      `json:"stages"`
	Initialized  bool         `json:"initialized"`
	Progress     float64      `json:"progress"`
	NextStage    Stage        `json:"nextStage,omitempty"`
	History      []Transition `json:"history"`
	Stats        Stats        `json:"stats"`
}

// StateStore persists the migration state between restarts
type StateStore interface {
	// Load returns the saved state, or nil when nothing was saved
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st State) error
}

// Controller owns the migration state. Transitions are serialised by a lock.
//
// Promote does not check prerequisites itself: callers run
// ValidatePrerequisites first and promote only when it can proceed.
type Controller struct {
	mu     sync.RWMutex
	state  State
	store  StateStore
	probes Probes
	logger *zap.Logger
	now    func() time.Time
}

// NewController creates a controller at the first stage. store may be nil.
func NewController(store StateStore, probes Probes, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		state:  State{CurrentStage: Stages[0], History: []Transition{}},
		store:  store,
		probes: probes,
		logger: logger,
		now:    time.Now,
	}
}

// Restore loads the persisted state, keeping the initial state when none
// was saved
func (c *Controller) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	st, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load migration state: %w", err)
	}
	if st == nil {
		return nil
	}
	if st.CurrentStage.Index() < 0 {
		return fmt.Errorf("%w: persisted stage %q", ErrInvalidStage, st.CurrentStage)
	}
	if st.History == nil {
		st.History = []Transition{}
	}

	c.mu.Lock()
	c.state = *st
	c.mu.Unlock()

	c.logger.Info("migration state restored", zap.String("stage", string(st.CurrentStage)))
	return nil
}

// Current returns the live stage
func (c *Controller) Current() Stage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.CurrentStage
}

// Enabled reports whether behaviour introduced at stage is live
func (c *Controller) Enabled(stage Stage) bool {
	idx := stage.Index()
	if idx < 0 {
		return false
	}
	return c.Current().Index() >= idx
}

// Status returns a snapshot of the migration
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	idx := c.state.CurrentStage.Index()
	st := Status{
		CurrentStage: c.state.CurrentStage,
		CurrentIndex: idx,
		Stages:       append([]Stage(nil), Stages...),
		Initialized:  c.state.Initialized,
		Progress:     Progress(c.state.CurrentStage),
		History:      append([]Transition{}, c.state.History...),
	}
	if idx+1 < len(Stages) {
		st.NextStage = Stages[idx+1]
	}
	for _, t := range c.state.History {
		switch t.Kind {
		case KindPromote:
			st.Stats.Promotions++
		case KindRollback:
			st.Stats.Rollbacks++
		}
	}
	if n := len(c.state.History); n > 0 {
		at := c.state.History[n-1].At
		st.Stats.LastTransition = &at
	}
	return st
}

// Progress returns (index+1)/len(Stages)*100 rounded to two decimals
func Progress(stage Stage) float64 {
	idx := stage.Index()
	if idx < 0 {
		return 0
	}
	return math.Round(float64(idx+1)/float64(len(Stages))*10000) / 100
}

// Promote moves exactly one stage forward to target
func (c *Controller) Promote(ctx context.Context, target Stage) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	targetIdx := target.Index()
	if targetIdx < 0 {
		return Status{}, fmt.Errorf("%w: %q", ErrInvalidStage, target)
	}
	currentIdx := c.state.CurrentStage.Index()
	if targetIdx <= currentIdx {
		return Status{}, fmt.Errorf("%w: cannot promote from %s to %s", ErrBackwardMigration, c.state.CurrentStage, target)
	}
	if targetIdx > currentIdx+1 {
		return Status{}, fmt.Errorf("%w: cannot promote from %s to %s, next stage is %s",
			ErrStageSkip, c.state.CurrentStage, target, Stages[currentIdx+1])
	}

	if err := c.transitionLocked(ctx, KindPromote, target); err != nil {
		return Status{}, err
	}
	return c.statusLocked(), nil
}

// Rollback moves exactly one stage back
func (c *Controller) Rollback(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.state.CurrentStage.Index()
	if idx <= 0 {
		return Status{}, fmt.Errorf("%w: %s", ErrAlreadyAtFirstStage, c.state.CurrentStage)
	}

	if err := c.transitionLocked(ctx, KindRollback, Stages[idx-1]); err != nil {
		return Status{}, err
	}
	return c.statusLocked(), nil
}

// transitionLocked applies a change and persists it, restoring the previous
// state when persistence fails
func (c *Controller) transitionLocked(ctx context.Context, kind string, target Stage) error {
	previous := c.state
	previous.History = append([]Transition(nil), c.state.History...)

	now := c.now().UTC()
	c.state.History = append(c.state.History, Transition{
		Kind: kind,
		From: c.state.CurrentStage,
		To:   target,
		At:   now,
	})
	c.state.CurrentStage = target
	c.state.Initialized = true
	c.state.UpdatedAt = now

	if c.store != nil {
		if err := c.store.Save(ctx, c.state); err != nil {
			c.state = previous
			return fmt.Errorf("failed to persist migration state: %w", err)
		}
	}

	c.logger.Info("migration stage changed",
		zap.String("kind", kind),
		zap.String("from", string(previous.CurrentStage)),
		zap.String("to", string(target)),
	)
	return nil
}
