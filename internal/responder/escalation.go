package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EscalationTicket is the entry human operators consume from the stream
type EscalationTicket struct {
	CandidateID string             `json:"candidate_id"`
	Message     string             `json:"message"`
	Analysis    *analyzer.Analysis `json:"analysis,omitempty"`
	EnqueuedAt  time.Time          `json:"enqueued_at"`
}

// RedisEscalationQueue publishes escalations to a Redis stream. The stream
// entry id is the ticket id.
type RedisEscalationQueue struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisEscalationQueue creates a new escalation queue
func NewRedisEscalationQueue(client *redis.Client, stream string, logger *zap.Logger) *RedisEscalationQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisEscalationQueue{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Enqueue adds a ticket to the escalation stream
func (q *RedisEscalationQueue) Enqueue(ctx context.Context, candidateID, message string, a *analyzer.Analysis) (string, error) {
	data, err := json.Marshal(EscalationTicket{
		CandidateID: candidateID,
		Message:     message,
		Analysis:    a,
		EnqueuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal escalation: %w", err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			"candidate_id": candidateID,
			"data":         string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish escalation: %w", err)
	}

	q.logger.Info("escalation enqueued",
		zap.String("candidate_id", candidateID),
		zap.String("ticket_id", id),
	)

	return id, nil
}
