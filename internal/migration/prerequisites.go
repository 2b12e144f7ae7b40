package migration

import (
	"context"
	"fmt"
)

// Probe checks one prerequisite. A nil Probe always passes.
type Probe func(ctx context.Context) error

// Probes are the environment checks run before a promotion
type Probes struct {
	SystemHealth  Probe
	Dependencies  Probe
	Configuration Probe
	Resources     Probe
}

// Checklist is the result of ValidatePrerequisites
type Checklist struct {
	TargetStage           Stage             `json:"targetStage"`
	TargetStageValid      bool              `json:"targetStageValid"`
	SystemHealthy         bool              `json:"systemHealthy"`
	DependenciesAvailable bool              `json:"dependenciesAvailable"`
	ConfigurationValid    bool              `json:"configurationValid"`
	ResourcesAvailable    bool              `json:"resourcesAvailable"`
	CanProceed            bool              `json:"canProceed"`
	Failures              map[string]string `json:"failures,omitempty"`
}

// ValidatePrerequisites runs every check for a promotion to target. The
// target is valid only when it is the stage right after the current one.
func (c *Controller) ValidatePrerequisites(ctx context.Context, target Stage) Checklist {
	list := Checklist{
		TargetStage: target,
		Failures:    make(map[string]string),
	}

	current := c.Current().Index()
	switch idx := target.Index(); {
	case idx < 0:
		list.Failures["targetStageValid"] = fmt.Sprintf("unknown stage %q", target)
	case idx != current+1:
		list.Failures["targetStageValid"] = fmt.Sprintf("%s is not the next stage after %s", target, Stages[current])
	default:
		list.TargetStageValid = true
	}

	list.SystemHealthy = run(ctx, c.probes.SystemHealth, "systemHealthy", list.Failures)
	list.DependenciesAvailable = run(ctx, c.probes.Dependencies, "dependenciesAvailable", list.Failures)
	list.ConfigurationValid = run(ctx, c.probes.Configuration, "configurationValid", list.Failures)
	list.ResourcesAvailable = run(ctx, c.probes.Resources, "resourcesAvailable", list.Failures)

	list.CanProceed = list.TargetStageValid &&
		list.SystemHealthy &&
		list.DependenciesAvailable &&
		list.ConfigurationValid &&
		list.ResourcesAvailable

	if len(list.Failures) == 0 {
		list.Failures = nil
	}
	return list
}

func run(ctx context.Context, probe Probe, name string, failures map[string]string) bool {
	if probe == nil {
		return true
	}
	if err := probe(ctx); err != nil {
		failures[name] = err.Error()
		return false
	}
	return true
}
