// Package analytics records routing outcomes and reports on them.
//
// The Tracker accepts records through a bounded queue and stores them from a
// single goroutine, retrying failed writes with exponential backoff before
// moving them to a dead-letter list. Tracking never blocks or fails the
// caller.
//
//	tracker := analytics.NewTracker(store, nil, analytics.DefaultTrackerConfig(), logger)
//	tracker.Start()
//	defer tracker.Stop(ctx)
//
//	tracker.Track(candidateID, message, router.RouteTemplate, analytics.Metadata{
//	    Analysis: analysis,
//	    Decision: &decision,
//	    Result:   result,
//	})
//
// Reports are aggregated from stored records:
//
//	report, err := tracker.PerformanceMetrics(ctx, analytics.Filters{TimeRange: analytics.RangeDay})
//
// Experiments manages A/B tests over routing policy variants. Candidates are
// assigned to variants by hashing, so a candidate always lands in the same
// variant of a test.
package analytics
