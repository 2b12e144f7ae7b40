// Package worker consumes routing requests from Redis Streams.
//
// The worker reads entries from the work stream through a consumer group,
// routes each message through the service pipeline, and publishes the
// outcome to the result stream. Failures go to "<result stream>.errors"
// with the error code. Every entry is acknowledged.
//
// Example usage:
//
//	w := worker.NewWorker(cfg, redisClient, svc, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// A work entry carries a single "data" field holding the JSON request:
//
//	{"requestId": "r-1", "message": "hello", "candidateId": "cand-1"}
package worker
