package analytics

import (
	"context"
	"sync"
	"time"
)

// Query selects records from a Store. Zero values do not filter.
type Query struct {
	Since       time.Time
	Until       time.Time
	CandidateID string
	Kind        Kind
}

// Matches reports whether a record satisfies the query
func (q Query) Matches(r *Record) bool {
	if !q.Since.IsZero() && r.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && r.Timestamp.After(q.Until) {
		return false
	}
	if q.CandidateID != "" && r.CandidateID != q.CandidateID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return true
}

// Store persists tracking records
type Store interface {
	// Append writes one record
	Append(ctx context.Context, r *Record) error

	// List returns the records matching q in append order
	List(ctx context.Context, q Query) ([]Record, error)

	// EscalationCount returns how many times a candidate was escalated
	EscalationCount(ctx context.Context, candidateID string) (int, error)
}

// Mirror receives a copy of every appended record
type Mirror interface {
	Publish(ctx context.Context, r *Record) error
	Close() error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu          sync.RWMutex
	records     []Record
	escalations map[string]int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		escalations: make(map[string]int),
	}
}

// Append stores a copy of the record
func (s *MemoryStore) Append(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, *r)
	if r.Escalated() {
		s.escalations[r.CandidateID]++
	}
	return nil
}

// List returns the matching records
func (s *MemoryStore) List(ctx context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for i := range s.records {
		if q.Matches(&s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// EscalationCount returns the candidate's escalation count
func (s *MemoryStore) EscalationCount(ctx context.Context, candidateID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.escalations[candidateID], nil
}
