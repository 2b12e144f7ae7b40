package analytics

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-message-router/internal/router"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTrackerStopped is returned by Flush after Stop
var ErrTrackerStopped = errors.New("tracker stopped")

const appendTimeout = 5 * time.Second

// TrackerConfig bounds the tracker queue and its retries
type TrackerConfig struct {
	QueueSize          int
	MaxRetries         int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	DeadLetterCapacity int
}

// DefaultTrackerConfig returns the default configuration
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		QueueSize:          1024,
		MaxRetries:         3,
		InitialBackoff:     100 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
		DeadLetterCapacity: 256,
	}
}

// DeadLetter is a record the tracker gave up on
type DeadLetter struct {
	Record   Record    `json:"record"`
	Err      string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failedAt"`
}

type job struct {
	rec  *Record
	done chan struct{}
}

// Tracker records routing outcomes without blocking the routing path. A
// single goroutine drains the queue so records of one candidate are stored in
// the order they were tracked.
type Tracker struct {
	store  Store
	mirror Mirror
	cfg    TrackerConfig
	logger *zap.Logger

	queue chan job
	stop  chan struct{}
	wg    sync.WaitGroup

	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	// sendMu is held shared by senders and exclusively by Stop, so every
	// send that saw stopped == false lands before the drain begins
	sendMu sync.RWMutex

	mu          sync.Mutex
	deadLetters []DeadLetter

	now   func() time.Time
	sleep func(time.Duration)
	newID func() string
}

// NewTracker creates a tracker. mirror may be nil.
func NewTracker(store Store, mirror Mirror, cfg TrackerConfig, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultTrackerConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.DeadLetterCapacity <= 0 {
		cfg.DeadLetterCapacity = defaults.DeadLetterCapacity
	}

	return &Tracker{
		store:  store,
		mirror: mirror,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan job, cfg.QueueSize),
		stop:   make(chan struct{}),
		now:    time.Now,
		sleep:  time.Sleep,
		newID:  func() string { return uuid.New().String() },
	}
}

// Store returns the underlying record store
func (t *Tracker) Store() Store {
	return t.store
}

// Start launches the consumer goroutine
func (t *Tracker) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}

	t.wg.Add(1)
	go t.run()

	t.logger.Info("tracker started", zap.Int("queue_size", t.cfg.QueueSize))
}

// Stop drains the queue and stops the consumer. Records tracked after Stop
// go to the dead-letter list.
func (t *Tracker) Stop(ctx context.Context) error {
	t.stopOnce.Do(func() {
		t.sendMu.Lock()
		t.stopped.Store(true)
		close(t.stop)
		t.sendMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("tracker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Track queues a routing record. It never blocks and never fails; a full
// queue sends the record to the dead-letter list.
func (t *Tracker) Track(candidateID, message string, routeType router.Route, md Metadata) {
	rec := &Record{
		ID:                  t.newID(),
		Kind:                KindRouting,
		CandidateID:         candidateID,
		SessionID:           md.SessionID,
		InputPreview:        Preview(message),
		RoutingDecisionType: string(routeType),
		Analysis:            md.Analysis,
		Decision:            md.Decision,
		Result:              md.Result,
		TicketID:            md.TicketID,
		Error:               md.Error,
		Incomplete:          md.Incomplete,
		Variant:             md.Variant,
		Metadata:            md.Extra,
		Timestamp:           t.now().UTC(),
	}
	t.enqueue(rec)
}

// ResolveEscalation records that an operator closed an escalation ticket
func (t *Tracker) ResolveEscalation(candidateID, ticketID string) {
	t.enqueue(&Record{
		ID:          t.newID(),
		Kind:        KindResolution,
		CandidateID: candidateID,
		TicketID:    ticketID,
		Timestamp:   t.now().UTC(),
	})
}

func (t *Tracker) enqueue(rec *Record) {
	t.sendMu.RLock()
	if t.stopped.Load() {
		t.sendMu.RUnlock()
		t.deadLetter(rec, ErrTrackerStopped, 0)
		return
	}

	select {
	case t.queue <- job{rec: rec}:
		t.sendMu.RUnlock()
	default:
		t.sendMu.RUnlock()
		t.logger.Warn("tracking queue full, record dropped",
			zap.String("candidate_id", rec.CandidateID),
			zap.String("record_id", rec.ID),
		)
		t.deadLetter(rec, errors.New("tracking queue full"), 0)
	}
}

// Flush waits until every record queued before the call has been handled
func (t *Tracker) Flush(ctx context.Context) error {
	t.sendMu.RLock()
	if t.stopped.Load() {
		t.sendMu.RUnlock()
		return ErrTrackerStopped
	}

	done := make(chan struct{})
	select {
	case t.queue <- job{done: done}:
		t.sendMu.RUnlock()
	case <-ctx.Done():
		t.sendMu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeadLetters returns a copy of the records that could not be stored
func (t *Tracker) DeadLetters() []DeadLetter {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]DeadLetter, len(t.deadLetters))
	copy(out, t.deadLetters)
	return out
}

func (t *Tracker) run() {
	defer t.wg.Done()

	for {
		select {
		case j := <-t.queue:
			t.handle(j)
		case <-t.stop:
			t.drain()
			return
		}
	}
}

func (t *Tracker) drain() {
	for {
		select {
		case j := <-t.queue:
			t.handle(j)
		default:
			return
		}
	}
}

func (t *Tracker) handle(j job) {
	if j.done != nil {
		close(j.done)
		return
	}
	t.persist(j.rec)
}

// persist appends a record, retrying with exponential backoff
func (t *Tracker) persist(rec *Record) {
	var err error
	attempts := 0
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t.sleep(t.backoff(attempt - 1))
		}
		attempts++

		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err = t.store.Append(ctx, rec)
		cancel()
		if err == nil {
			break
		}

		t.logger.Warn("failed to store tracking record",
			zap.String("record_id", rec.ID),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
	}

	if err != nil {
		t.deadLetter(rec, err, attempts)
		return
	}

	if t.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := t.mirror.Publish(ctx, rec); err != nil {
			t.logger.Warn("failed to mirror tracking record",
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
		}
	}
}

// backoff computes initial * 2^attempt, capped at MaxBackoff
func (t *Tracker) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(t.cfg.InitialBackoff) * math.Pow(2, float64(attempt)))
	if delay > t.cfg.MaxBackoff || delay < 0 {
		return t.cfg.MaxBackoff
	}
	return delay
}

func (t *Tracker) deadLetter(rec *Record, err error, attempts int) {
	t.logger.Error("tracking record dead-lettered",
		zap.String("record_id", rec.ID),
		zap.String("candidate_id", rec.CandidateID),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.deadLetters) >= t.cfg.DeadLetterCapacity {
		t.deadLetters = t.deadLetters[1:]
	}
	t.deadLetters = append(t.deadLetters, DeadLetter{
		Record:   *rec,
		Err:      err.Error(),
		Attempts: attempts,
		FailedAt: t.now().UTC(),
	})
}
