// Package migration moves the routing subsystem through its rollout stages:
// analysis, routing, escalation and optimization.
//
// A promotion goes forward exactly one stage and a rollback goes back exactly
// one stage. Operators validate prerequisites before promoting:
//
//	list := controller.ValidatePrerequisites(ctx, migration.StageRouting)
//	if list.CanProceed {
//	    status, err := controller.Promote(ctx, migration.StageRouting)
//	}
//
// Enabled tells callers whether behaviour introduced at a stage is live.
package migration
