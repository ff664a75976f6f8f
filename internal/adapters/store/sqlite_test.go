package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sorter.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	classifiedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, &core.HistoryRecord{
		EmailID:      "id-1",
		From:         "billing@acme.com",
		Subject:      "Invoice",
		Category:     "Finance",
		Source:       core.SourceLLM,
		Confidence:   0.9,
		ClassifiedAt: classifiedAt,
	}))
	require.NoError(t, s.Append(ctx, &core.HistoryRecord{
		EmailID:      "id-2",
		From:         "mom@family.example",
		Subject:      "dinner",
		Category:     "Family",
		Source:       core.SourceRule,
		Confidence:   1.0,
		ClassifiedAt: classifiedAt.Add(time.Hour),
	}))

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assert.Equal(t, "id-2", recent[0].EmailID, "most recent first")
	assert.Equal(t, core.SourceRule, recent[0].Source)

	got := recent[1]
	assert.Equal(t, "id-1", got.EmailID)
	assert.Equal(t, "billing@acme.com", got.From)
	assert.Equal(t, "Invoice", got.Subject)
	assert.Equal(t, "Finance", got.Category)
	assert.Equal(t, core.SourceLLM, got.Source)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.True(t, got.ClassifiedAt.Equal(classifiedAt))
}

func TestSQLiteStoreRecentLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, record(id, "Work")))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].EmailID)
	assert.Equal(t, "b", recent[1].EmailID)
}

func TestSQLiteStoreSeenAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.Append(ctx, record("a", "Work")))

	seen, err := s.Seen(ctx, "a")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Clear(ctx))
	seen, err = s.Seen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSQLiteStoreRulesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.AddRule(ctx, &core.Rule{
		Field: core.FieldSender, Type: core.MatchSubstring, Pattern: "@acme.com", Category: "Finance",
	}))
	require.NoError(t, s.AddRule(ctx, &core.Rule{
		Field: core.FieldSubject, Type: core.MatchPattern, Pattern: `invoice #\d+`, Category: "Finance",
	}))

	rules, err := s.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "@acme.com", rules[0].Pattern)
	assert.Equal(t, core.MatchPattern, rules[1].Type)
	assert.Equal(t, `invoice #\d+`, rules[1].Pattern)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sorter.db")

	s, err := NewSQLiteStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, record("a", "Work")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	seen, err := reopened.Seen(ctx, "a")
	require.NoError(t, err)
	assert.True(t, seen)
}
