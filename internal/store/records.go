package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aescanero/dago-message-router/internal/analytics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRecordStore implements analytics.Store on a Redis stream. Escalation
// counts are kept in a hash keyed by candidate id.
type RedisRecordStore struct {
	client         *redis.Client
	stream         string
	escalationsKey string
	logger         *zap.Logger
}

// NewRedisRecordStore creates a new Redis record store
func NewRedisRecordStore(client *redis.Client, stream string, logger *zap.Logger) *RedisRecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRecordStore{
		client:         client,
		stream:         stream,
		escalationsKey: escalationsKey(stream),
		logger:         logger,
	}
}

func escalationsKey(stream string) string {
	return stream + ":escalations"
}

// Append adds the record to the stream and bumps the escalation count
func (s *RedisRecordStore) Append(ctx context.Context, r *analytics.Record) error {
	values, err := encodeRecord(r)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: values,
		})
		if r.Escalated() {
			pipe.HIncrBy(ctx, s.escalationsKey, r.CandidateID, 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	return nil
}

// List reads the stream from q.Since and filters the decoded records
func (s *RedisRecordStore) List(ctx context.Context, q analytics.Query) ([]analytics.Record, error) {
	entries, err := s.client.XRange(ctx, s.stream, rangeStart(q), "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	out := make([]analytics.Record, 0, len(entries))
	for _, entry := range entries {
		r, err := decodeRecord(entry.Values)
		if err != nil {
			s.logger.Warn("skipping malformed tracking record",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
			continue
		}
		if q.Matches(r) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// EscalationCount returns how many escalations the candidate has had
func (s *RedisRecordStore) EscalationCount(ctx context.Context, candidateID string) (int, error) {
	val, err := s.client.HGet(ctx, s.escalationsKey, candidateID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read escalation count: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid escalation count %q: %w", val, err)
	}
	return count, nil
}

// rangeStart turns q.Since into a stream id. Entries are written after their
// timestamp, so the id never excludes a matching record.
func rangeStart(q analytics.Query) string {
	if q.Since.IsZero() {
		return "-"
	}
	return strconv.FormatInt(q.Since.UnixMilli(), 10)
}

func encodeRecord(r *analytics.Record) (map[string]interface{}, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return map[string]interface{}{
		"kind":         string(r.Kind),
		"candidate_id": r.CandidateID,
		"data":         string(data),
	}, nil
}

func decodeRecord(values map[string]interface{}) (*analytics.Record, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var r analytics.Record
	if err := json.Unmarshal([]byte(dataStr), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}
