package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aescanero/dago-message-router/internal/analytics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror publishes every tracking record to a Kafka topic, keyed by
// candidate so a candidate's records stay on one partition
type KafkaMirror struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaMirror creates a new Kafka mirror
func NewKafkaMirror(brokers []string, topic string, logger *zap.Logger) *KafkaMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaMirror{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		logger: logger,
	}
}

// Publish sends the record to the topic
func (m *KafkaMirror) Publish(ctx context.Context, r *analytics.Record) error {
	msg, err := recordMessage(r)
	if err != nil {
		return err
	}

	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to kafka: %w", err)
	}

	m.logger.Debug("mirrored tracking record",
		zap.String("record_id", r.ID),
		zap.String("candidate_id", r.CandidateID),
	)
	return nil
}

// Close closes the Kafka writer
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}

func recordMessage(r *analytics.Record) (kafka.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal record: %w", err)
	}

	return kafka.Message{
		Key:   []byte(r.CandidateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(r.Kind)},
		},
	}, nil
}
