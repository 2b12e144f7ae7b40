package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aescanero/dago-message-router/internal/migration"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStateStore implements migration.StateStore as a JSON value
type RedisStateStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStateStore creates a new Redis state store
func NewRedisStateStore(client *redis.Client, key string, logger *zap.Logger) *RedisStateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStateStore{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Save saves the migration state
func (s *RedisStateStore) Save(ctx context.Context, st migration.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// Load loads the migration state, returning nil when none was saved
func (s *RedisStateStore) Load(ctx context.Context) (*migration.State, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Debug("no migration state saved", zap.String("key", s.key))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var st migration.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &st, nil
}
