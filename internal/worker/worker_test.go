package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/config"
	"github.com/aescanero/dago-message-router/internal/router"
	"github.com/aescanero/dago-message-router/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubRouter struct {
	got  []service.Request
	resp *service.Response
	err  error
}

func (r *stubRouter) RouteMessage(ctx context.Context, req service.Request) (*service.Response, error) {
	r.got = append(r.got, req)
	return r.resp, r.err
}

func newTestWorker(t *testing.T, r MessageRouter) (*Worker, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		WorkerID:      "worker-test",
		StreamKey:     "routing.requests",
		ConsumerGroup: "message-routers",
		ResultStream:  "routing.results",
		BlockTime:     10 * time.Millisecond,
	}
	return NewWorker(cfg, client, r, zap.New(core)), logs
}

func TestParseWorkRequest(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]interface{}
		want    *WorkRequest
		wantErr string
	}{
		{
			name:   "full request",
			values: map[string]interface{}{"data": `{"requestId":"r-1","message":"hello","candidateId":"cand-1","preferredRouting":"template","context":{"sessionId":"s-1"}}`},
			want: &WorkRequest{
				RequestID: "r-1",
				Request: service.Request{
					Message:          "hello",
					CandidateID:      "cand-1",
					PreferredRouting: "template",
					Context:          service.RequestContext{SessionID: "s-1"},
				},
			},
		},
		{
			name:    "missing data",
			values:  map[string]interface{}{"payload": "{}"},
			wantErr: "missing or invalid 'data' field",
		},
		{
			name:    "data not a string",
			values:  map[string]interface{}{"data": 42},
			wantErr: "missing or invalid 'data' field",
		},
		{
			name:    "malformed json",
			values:  map[string]interface{}{"data": "{"},
			wantErr: "failed to unmarshal work request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWorkRequest(tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleMessage_RoutesRequest(t *testing.T) {
	r := &stubRouter{resp: &service.Response{
		RoutingDecision: router.NewDecision(router.RouteAI, 0.7, router.ReasonNeedsAI),
		Analysis:        &analyzer.Analysis{},
	}}
	w, logs := newTestWorker(t, r)

	w.handleMessage(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"data": `{"message":"hello","candidateId":"cand-1"}`},
	})

	require.Len(t, r.got, 1)
	assert.Equal(t, "cand-1", r.got[0].CandidateID)
	// redis is unreachable so publishing and acking are logged as failures
	assert.Equal(t, 1, logs.FilterMessage("failed to publish routing result").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to acknowledge message").Len())
}

func TestHandleMessage_RouteFailure(t *testing.T) {
	r := &stubRouter{err: errors.New("boom")}
	w, logs := newTestWorker(t, r)

	w.handleMessage(redis.XMessage{
		ID:     "2-0",
		Values: map[string]interface{}{"data": `{"message":"hello","candidateId":"cand-1"}`},
	})

	require.Len(t, r.got, 1)
	assert.Equal(t, 1, logs.FilterMessage("failed to route message").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to publish error event").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to acknowledge message").Len())
}

func TestHandleMessage_UnparseableEntryIsAcked(t *testing.T) {
	r := &stubRouter{}
	w, logs := newTestWorker(t, r)

	w.handleMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{}})

	assert.Empty(t, r.got)
	assert.Equal(t, 1, logs.FilterMessage("failed to parse work request").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to acknowledge message").Len())
}

func TestStart_FailsWithoutRedis(t *testing.T) {
	w, _ := newTestWorker(t, &stubRouter{})
	err := w.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ensure consumer group")
}

func TestErrorStream(t *testing.T) {
	w, _ := newTestWorker(t, &stubRouter{})
	assert.Equal(t, "routing.results.errors", w.errorStream())
}
