package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStateStore struct {
	saved   *State
	saveErr error
}

func (s *memoryStateStore) Load(ctx context.Context) (*State, error) {
	return s.saved, nil
}

func (s *memoryStateStore) Save(ctx context.Context, st State) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = &st
	return nil
}

func TestController_InitialState(t *testing.T) {
	c := NewController(nil, Probes{}, nil)

	status := c.Status()
	assert.Equal(t, StageAnalysis, status.CurrentStage)
	assert.False(t, status.Initialized)
	assert.Equal(t, 25.0, status.Progress)
	assert.Equal(t, StageRouting, status.NextStage)
	assert.Empty(t, status.History)
}

func TestController_Promote(t *testing.T) {
	tests := []struct {
		name    string
		target  Stage
		wantErr error
	}{
		{"next stage", StageRouting, nil},
		{"skip", StageEscalation, ErrStageSkip},
		{"same stage", StageAnalysis, ErrBackwardMigration},
		{"unknown", Stage("launch"), ErrInvalidStage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(nil, Probes{}, nil)
			status, err := c.Promote(context.Background(), tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, StageAnalysis, c.Current())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, status.CurrentStage)
			assert.True(t, status.Initialized)
		})
	}
}

func TestController_PromotePromoteRollback(t *testing.T) {
	c := NewController(nil, Probes{}, nil)
	ctx := context.Background()

	_, err := c.Promote(ctx, StageRouting)
	require.NoError(t, err)
	_, err = c.Promote(ctx, StageEscalation)
	require.NoError(t, err)

	_, err = c.Promote(ctx, StageRouting)
	assert.ErrorIs(t, err, ErrBackwardMigration)

	status, err := c.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageRouting, status.CurrentStage)
	assert.Equal(t, 50.0, status.Progress)
	assert.Equal(t, 2, status.Stats.Promotions)
	assert.Equal(t, 1, status.Stats.Rollbacks)
	require.Len(t, status.History, 3)
	assert.Equal(t, Transition{Kind: KindRollback, From: StageEscalation, To: StageRouting, At: status.History[2].At}, status.History[2])
	assert.NotNil(t, status.Stats.LastTransition)
}

func TestController_RollbackAtFirstStage(t *testing.T) {
	c := NewController(nil, Probes{}, nil)

	_, err := c.Rollback(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyAtFirstStage)
}

func TestController_OptimizationCanRollBack(t *testing.T) {
	c := NewController(nil, Probes{}, nil)
	ctx := context.Background()
	for _, s := range Stages[1:] {
		_, err := c.Promote(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, 100.0, c.Status().Progress)
	assert.Empty(t, c.Status().NextStage)

	status, err := c.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageEscalation, status.CurrentStage)
}

func TestController_Enabled(t *testing.T) {
	c := NewController(nil, Probes{}, nil)
	assert.True(t, c.Enabled(StageAnalysis))
	assert.False(t, c.Enabled(StageRouting))

	_, err := c.Promote(context.Background(), StageRouting)
	require.NoError(t, err)
	assert.True(t, c.Enabled(StageRouting))
	assert.False(t, c.Enabled(StageOptimization))
	assert.False(t, c.Enabled(Stage("nope")))
}

func TestController_Persistence(t *testing.T) {
	store := &memoryStateStore{}
	c := NewController(store, Probes{}, nil)

	_, err := c.Promote(context.Background(), StageRouting)
	require.NoError(t, err)
	require.NotNil(t, store.saved)
	assert.Equal(t, StageRouting, store.saved.CurrentStage)

	restored := NewController(store, Probes{}, nil)
	require.NoError(t, restored.Restore(context.Background()))
	assert.Equal(t, StageRouting, restored.Current())
	assert.True(t, restored.Status().Initialized)
	assert.Len(t, restored.Status().History, 1)
}

func TestController_PersistFailureKeepsState(t *testing.T) {
	store := &memoryStateStore{saveErr: errors.New("redis down")}
	c := NewController(store, Probes{}, nil)

	_, err := c.Promote(context.Background(), StageRouting)
	require.Error(t, err)
	assert.Equal(t, StageAnalysis, c.Current())
	assert.Empty(t, c.Status().History)
	assert.False(t, c.Status().Initialized)
}

func TestController_RestoreRejectsUnknownStage(t *testing.T) {
	store := &memoryStateStore{saved: &State{CurrentStage: "bogus"}}
	c := NewController(store, Probes{}, nil)

	assert.ErrorIs(t, c.Restore(context.Background()), ErrInvalidStage)
}

func TestValidatePrerequisites(t *testing.T) {
	failing := func(ctx context.Context) error { return errors.New("redis unreachable") }

	c := NewController(nil, Probes{}, nil)
	list := c.ValidatePrerequisites(context.Background(), StageRouting)
	assert.True(t, list.CanProceed)
	assert.Nil(t, list.Failures)

	list = c.ValidatePrerequisites(context.Background(), StageEscalation)
	assert.False(t, list.TargetStageValid)
	assert.False(t, list.CanProceed)
	assert.Contains(t, list.Failures, "targetStageValid")

	list = c.ValidatePrerequisites(context.Background(), Stage("nope"))
	assert.False(t, list.TargetStageValid)

	c = NewController(nil, Probes{SystemHealth: failing}, nil)
	list = c.ValidatePrerequisites(context.Background(), StageRouting)
	assert.True(t, list.TargetStageValid)
	assert.False(t, list.SystemHealthy)
	assert.True(t, list.DependenciesAvailable)
	assert.True(t, list.ConfigurationValid)
	assert.True(t, list.ResourcesAvailable)
	assert.False(t, list.CanProceed)
	assert.Equal(t, "redis unreachable", list.Failures["systemHealthy"])
}
