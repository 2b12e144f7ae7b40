package service

import (
	"context"
	"errors"

	"github.com/aescanero/dago-message-router/internal/analytics"
	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/migration"
	"github.com/aescanero/dago-message-router/internal/router"
)

// Error codes returned to callers
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInvalidPreference    = "INVALID_PREFERENCE"
	CodeAnalysisFailed       = "ANALYSIS_FAILED"
	CodeExecutionTimeout     = "EXECUTION_TIMEOUT"
	CodeRouteExecutionFailed = "ROUTE_EXECUTION_FAILED"
	CodeCancelled            = "REQUEST_CANCELLED"
	CodeInvalidStage         = "INVALID_STAGE"
	CodeBackwardMigration    = "BACKWARD_MIGRATION"
	CodeStageSkip            = "STAGE_SKIP"
	CodeAlreadyAtFirstStage  = "ALREADY_AT_FIRST_STAGE"
	CodeInvalidTestConfig    = "INVALID_TEST_CONFIG"
	CodeTestNotFound         = "TEST_NOT_FOUND"
	CodeTestCompleted        = "TEST_COMPLETED"
	CodeUnknownVariant       = "UNKNOWN_VARIANT"
	CodeInvalidTimeRange     = "INVALID_TIME_RANGE"
	CodeInternal             = "INTERNAL_ERROR"
)

// Code maps an error to its machine-readable code
func Code(err error) string {
	var (
		analysisErr *analyzer.AnalysisError
		routeErr    *router.RouteExecutionError
	)

	switch {
	case errors.Is(err, analyzer.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, router.ErrInvalidPreference):
		return CodeInvalidPreference
	case errors.As(err, &analysisErr):
		return CodeAnalysisFailed
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.As(err, &routeErr):
		if routeErr.Timeout() {
			return CodeExecutionTimeout
		}
		return CodeRouteExecutionFailed
	case errors.Is(err, migration.ErrInvalidStage):
		return CodeInvalidStage
	case errors.Is(err, migration.ErrBackwardMigration):
		return CodeBackwardMigration
	case errors.Is(err, migration.ErrStageSkip):
		return CodeStageSkip
	case errors.Is(err, migration.ErrAlreadyAtFirstStage):
		return CodeAlreadyAtFirstStage
	case errors.Is(err, analytics.ErrInvalidTestConfig):
		return CodeInvalidTestConfig
	case errors.Is(err, analytics.ErrTestNotFound):
		return CodeTestNotFound
	case errors.Is(err, analytics.ErrTestCompleted):
		return CodeTestCompleted
	case errors.Is(err, analytics.ErrUnknownVariant):
		return CodeUnknownVariant
	case errors.Is(err, analytics.ErrInvalidTimeRange):
		return CodeInvalidTimeRange
	default:
		return CodeInternal
	}
}
