package store

import (
	"context"
	"sync"

	"github.com/mikey/llm-mail-sorter/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the HistoryStore and
// RuleStore interfaces. State does not survive the process; it exists for
// one-shot runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*core.HistoryRecord
	seen    map[string]struct{}
	rules   []*core.Rule
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// Append adds one history record
func (s *MemoryStore) Append(_ context.Context, rec *core.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.records = append(s.records, &copied)
	if rec.EmailID != "" {
		s.seen[rec.EmailID] = struct{}{}
	}
	return nil
}

// Recent returns up to limit records, most recent first
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]*core.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*core.HistoryRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Seen reports whether an email identity already has a record
func (s *MemoryStore) Seen(_ context.Context, emailID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.seen[emailID]
	return ok, nil
}

// Clear drops all history records
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.seen = make(map[string]struct{})
	return nil
}

// Rules returns all rules in insertion order
func (s *MemoryStore) Rules(_ context.Context) ([]*core.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// AddRule adds a rule at the end of the order
func (s *MemoryStore) AddRule(_ context.Context, rule *core.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rule
	s.rules = append(s.rules, &copied)
	return nil
}
