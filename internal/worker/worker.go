package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/dago-message-router/internal/config"
	"github.com/aescanero/dago-message-router/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MessageRouter routes one inbound message
type MessageRouter interface {
	RouteMessage(ctx context.Context, req service.Request) (*service.Response, error)
}

// Worker consumes routing requests from a Redis stream
type Worker struct {
	id            string
	config        *config.Config
	redisClient   *redis.Client
	router        MessageRouter
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	streamKey     string
	consumerGroup string
	resultStream  string
	now           func() time.Time
}

// NewWorker creates a new worker
func NewWorker(
	cfg *config.Config,
	redisClient *redis.Client,
	messageRouter MessageRouter,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:            cfg.WorkerID,
		config:        cfg,
		redisClient:   redisClient,
		router:        messageRouter,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
		now:           time.Now,
	}
}

// Start starts the worker
func (w *Worker) Start() error {
	w.logger.Info("starting message router worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	w.wg.Add(1)
	go w.processWork()

	w.logger.Info("message router worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop cancels the read loop and waits for the in-flight message
func (w *Worker) Stop() error {
	w.logger.Info("stopping message router worker", zap.String("worker_id", w.id))

	w.cancel()
	w.wg.Wait()

	w.logger.Info("message router worker stopped", zap.String("worker_id", w.id))
	return nil
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	err := w.redisClient.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

func (w *Worker) processWork() {
	defer w.wg.Done()
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
		}

		streams, err := w.redisClient.XReadGroup(w.ctx, &redis.XReadGroupArgs{
			Group:    w.consumerGroup,
			Consumer: w.id,
			Streams:  []string{w.streamKey, ">"},
			Count:    1,
			Block:    w.config.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || w.ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to read from stream", zap.Error(err))
			select {
			case <-w.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				w.handleMessage(message)
			}
		}
	}
}

// handleMessage routes one stream entry. Every entry is acknowledged,
// including the ones that fail to parse or route.
func (w *Worker) handleMessage(message redis.XMessage) {
	messageID := message.ID
	w.logger.Debug("processing routing request", zap.String("message_id", messageID))

	request, err := parseWorkRequest(message.Values)
	if err != nil {
		w.logger.Error("failed to parse work request",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.publishError(messageID, &WorkRequest{}, err)
		w.acknowledgeMessage(messageID)
		return
	}

	resp, err := w.router.RouteMessage(w.ctx, request.Request)
	if err != nil {
		w.logger.Warn("failed to route message",
			zap.String("message_id", messageID),
			zap.String("request_id", request.RequestID),
			zap.String("candidate_id", request.CandidateID),
			zap.Error(err),
		)
		w.publishError(messageID, request, err)
		w.acknowledgeMessage(messageID)
		return
	}

	if err := w.publishResult(messageID, request, resp); err != nil {
		w.logger.Error("failed to publish routing result",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
	w.acknowledgeMessage(messageID)
}

// WorkRequest is the payload of a work stream entry
type WorkRequest struct {
	RequestID string `json:"requestId,omitempty"`
	service.Request
}

// ResultEvent is published to the result stream for every routed message
type ResultEvent struct {
	RequestID   string            `json:"requestId,omitempty"`
	MessageID   string            `json:"messageId"`
	CandidateID string            `json:"candidateId"`
	Response    *service.Response `json:"response"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ErrorEvent is published to the error stream when routing fails
type ErrorEvent struct {
	RequestID   string    `json:"requestId,omitempty"`
	MessageID   string    `json:"messageId"`
	CandidateID string    `json:"candidateId,omitempty"`
	Code        string    `json:"code"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// parseWorkRequest parses a work request from the entry's data field
func parseWorkRequest(values map[string]interface{}) (*WorkRequest, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var request WorkRequest
	if err := json.Unmarshal([]byte(dataStr), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work request: %w", err)
	}

	return &request, nil
}

func (w *Worker) publishResult(messageID string, request *WorkRequest, resp *service.Response) error {
	data, err := json.Marshal(ResultEvent{
		RequestID:   request.RequestID,
		MessageID:   messageID,
		CandidateID: request.CandidateID,
		Response:    resp,
		Timestamp:   w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := w.publish(w.resultStream, data); err != nil {
		return err
	}

	w.logger.Info("published routing result",
		zap.String("message_id", messageID),
		zap.String("candidate_id", request.CandidateID),
		zap.String("route", string(resp.RoutingDecision.Type)),
	)
	return nil
}

func (w *Worker) publishError(messageID string, request *WorkRequest, routeErr error) {
	data, err := json.Marshal(ErrorEvent{
		RequestID:   request.RequestID,
		MessageID:   messageID,
		CandidateID: request.CandidateID,
		Code:        service.Code(routeErr),
		Error:       routeErr.Error(),
		Timestamp:   w.now().UTC(),
	})
	if err != nil {
		w.logger.Error("failed to marshal error event", zap.Error(err))
		return
	}

	if err := w.publish(w.errorStream(), data); err != nil {
		w.logger.Error("failed to publish error event", zap.Error(err))
	}
}

func (w *Worker) publish(stream string, data []byte) error {
	// publishing outlives the read loop so a result is not lost on shutdown
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), 5*time.Second)
	defer cancel()

	err := w.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return nil
}

func (w *Worker) errorStream() string {
	return w.resultStream + ".errors"
}

func (w *Worker) acknowledgeMessage(messageID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), 5*time.Second)
	defer cancel()

	if err := w.redisClient.XAck(ctx, w.streamKey, w.consumerGroup, messageID).Err(); err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
