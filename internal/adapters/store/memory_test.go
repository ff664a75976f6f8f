package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

func record(id, category string) *core.HistoryRecord {
	return &core.HistoryRecord{
		EmailID:      id,
		From:         "sender@example.org",
		Subject:      "subject " + id,
		Category:     category,
		Source:       core.SourceLLM,
		Confidence:   0.9,
		ClassifiedAt: time.Now(),
	}
}

func TestMemoryStoreHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	require.NoError(t, s.Append(ctx, record("a", "Work")))
	require.NoError(t, s.Append(ctx, record("b", "Finance")))
	require.NoError(t, s.Append(ctx, record("c", "Personal")))

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].EmailID, "most recent first")
	assert.Equal(t, "a", recent[2].EmailID)

	limited, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "c", limited[0].EmailID)
	assert.Equal(t, "b", limited[1].EmailID)

	seen, err := s.Seen(ctx, "b")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	require.NoError(t, s.Append(ctx, record("a", "Work")))
	require.NoError(t, s.AddRule(ctx, &core.Rule{
		Field: core.FieldSender, Type: core.MatchSubstring, Pattern: "@acme.com", Category: "Finance",
	}))
	require.NoError(t, s.Clear(ctx))

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	seen, err := s.Seen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)

	// Clear drops history, not rules.
	rules, err := s.Rules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestMemoryStoreRules(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	first := &core.Rule{Field: core.FieldSender, Type: core.MatchSubstring, Pattern: "@acme.com", Category: "Finance"}
	second := &core.Rule{Field: core.FieldSubject, Type: core.MatchSubstring, Pattern: "digest", Category: "Newsletter"}
	require.NoError(t, s.AddRule(ctx, first))
	require.NoError(t, s.AddRule(ctx, second))

	rules, err := s.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "@acme.com", rules[0].Pattern, "insertion order preserved")
	assert.Equal(t, "digest", rules[1].Pattern)

	// The store keeps its own copies.
	first.Pattern = "mutated"
	rules, err = s.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "@acme.com", rules[0].Pattern)
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.Append(ctx, record(id, "Work"))
		}(string(rune('A' + i%26)))
	}
	wg.Wait()

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 50)
}
