package sorter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/store"
	"github.com/mikey/llm-mail-sorter/internal/core"
)

// fakeMailbox serves canned emails per folder and records moves.
type fakeMailbox struct {
	mu      sync.Mutex
	folders map[string][]*core.Email
	moves   map[string]string
	moveErr error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		folders: make(map[string][]*core.Email),
		moves:   make(map[string]string),
	}
}

func (f *fakeMailbox) ListFolders(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.folders {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeMailbox) Fetch(ctx context.Context, folder string, limit int) ([]*core.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	emails := f.folders[folder]
	if limit > 0 && limit < len(emails) {
		emails = emails[:limit]
	}
	return emails, nil
}

func (f *fakeMailbox) Move(ctx context.Context, email *core.Email, folder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves[email.ID] = folder
	return nil
}

func (f *fakeMailbox) movedTo(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moves[id]
}

func (f *fakeMailbox) moveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves)
}

// fakeChat maps sender addresses to completions.
type fakeChat struct {
	mu        sync.Mutex
	bySender  map[string]string
	callCount int
}

func (f *fakeChat) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	for sender, response := range f.bySender {
		if strings.Contains(user, sender) {
			return response, nil
		}
	}
	return "no idea", nil
}

func (f *fakeChat) Model() string { return "fake-model" }

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

var testFolders = map[string]string{
	"work":    "Folders/Work",
	"finance": "Folders/Finance",
	"spam":    "Folders/Junk",
}

func newTestSorter(t *testing.T, mb *fakeMailbox, chat core.ChatClient, rules []*core.Rule) (*Sorter, *store.MemoryStore) {
	t.Helper()
	logger := zap.NewNop()
	categories, err := core.NewCategorySet([]string{"Work", "Finance", "Spam"})
	require.NoError(t, err)

	history := store.NewMemoryStore(logger)
	classifier := core.NewLanguageClassifier(chat, categories, nil, logger)
	pipeline := core.NewPipeline(core.NewRuleMatcher(rules, logger), classifier, history, 0, logger)
	return New(mb, pipeline, history, testFolders, "Folders/Uncategorized", logger), history
}

func TestFolderFor(t *testing.T) {
	s, _ := newTestSorter(t, newFakeMailbox(), &fakeChat{}, nil)

	assert.Equal(t, "Folders/Work", s.FolderFor("Work"))
	assert.Equal(t, "Folders/Work", s.FolderFor("WORK"))
	assert.Equal(t, "Folders/Uncategorized", s.FolderFor("Hobby"))
	assert.Equal(t, "Folders/Uncategorized", s.FolderFor(core.CategoryUncategorized))
}

func TestRunFilesByCategory(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["INBOX"] = []*core.Email{
		{ID: "a", From: "boss@corp.example", Subject: "planning"},
		{ID: "b", From: "billing@acme.com", Subject: "invoice"},
		{ID: "c", From: "mystery@odd.example", Subject: "???"},
	}
	chat := &fakeChat{bySender: map[string]string{
		"boss@corp.example": "Work",
		"billing@acme.com":  "Finance",
	}}

	s, history := newTestSorter(t, mb, chat, nil)
	summary, err := s.Run(context.Background(), "INBOX", Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.LLMClassified)
	assert.Equal(t, 0, summary.RuleClassified)
	assert.Equal(t, 1, summary.Uncategorized)
	assert.Zero(t, summary.Failed)

	assert.Equal(t, "Folders/Work", mb.movedTo("a"))
	assert.Equal(t, "Folders/Finance", mb.movedTo("b"))
	assert.Equal(t, "Folders/Uncategorized", mb.movedTo("c"))

	recent, err := history.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestRunRulesBeforeLLM(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["INBOX"] = []*core.Email{
		{ID: "a", From: "billing@acme.com", Subject: "invoice"},
	}
	chat := &fakeChat{}
	rules := []*core.Rule{
		{Field: core.FieldSender, Type: core.MatchSubstring, Pattern: "@acme.com", Category: "Finance"},
	}

	s, _ := newTestSorter(t, mb, chat, rules)
	summary, err := s.Run(context.Background(), "INBOX", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RuleClassified)
	assert.Zero(t, summary.LLMClassified)
	assert.Zero(t, chat.calls())
	assert.Equal(t, "Folders/Finance", mb.movedTo("a"))
}

func TestRunDryRunMovesNothing(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["INBOX"] = []*core.Email{
		{ID: "a", From: "boss@corp.example"},
	}
	chat := &fakeChat{bySender: map[string]string{"boss@corp.example": "Work"}}

	s, history := newTestSorter(t, mb, chat, nil)
	summary, err := s.Run(context.Background(), "INBOX", Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, mb.moveCount(), "dry run must not move mail")

	// Classification is still recorded.
	recent, err := history.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRunSkipsSeenEmails(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["INBOX"] = []*core.Email{
		{ID: "a", From: "boss@corp.example"},
	}
	chat := &fakeChat{bySender: map[string]string{"boss@corp.example": "Work"}}

	s, _ := newTestSorter(t, mb, chat, nil)

	first, err := s.Run(context.Background(), "INBOX", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := s.Run(context.Background(), "INBOX", Options{})
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, chat.calls(), "seen emails are not reclassified")

	third, err := s.Run(context.Background(), "INBOX", Options{Reprocess: true})
	require.NoError(t, err)
	assert.Equal(t, 1, third.Processed)
	assert.Zero(t, third.Skipped)
}

func TestRunMoveFailureCountsAsFailed(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["INBOX"] = []*core.Email{
		{ID: "a", From: "boss@corp.example"},
	}
	mb.moveErr = errors.New("mailbox gone")
	chat := &fakeChat{bySender: map[string]string{"boss@corp.example": "Work"}}

	s, _ := newTestSorter(t, mb, chat, nil)
	summary, err := s.Run(context.Background(), "INBOX", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Processed)
}

// seenFailStore fails the processed-check for one configured email ID.
type seenFailStore struct {
	*store.MemoryStore
	failID string
}

func (s *seenFailStore) Seen(ctx context.Context, emailID string) (bool, error) {
	if emailID == s.failID {
		return false, errors.New("history unavailable")
	}
	return s.MemoryStore.Seen(ctx, emailID)
}

// blockingChat parks every completion until release is closed.
type blockingChat struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingChat) Complete(ctx context.Context, system, user string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "Work", nil
}

func (b *blockingChat) Model() string { return "fake-model" }

func TestRunWaitsForWorkersOnSeenFailure(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["INBOX"] = []*core.Email{
		{ID: "a", From: "boss@corp.example"},
		{ID: "b", From: "other@corp.example"},
	}

	logger := zap.NewNop()
	chat := &blockingChat{started: make(chan struct{}), release: make(chan struct{})}
	categories, err := core.NewCategorySet([]string{"Work", "Finance", "Spam"})
	require.NoError(t, err)
	history := &seenFailStore{MemoryStore: store.NewMemoryStore(logger), failID: "b"}
	classifier := core.NewLanguageClassifier(chat, categories, nil, logger)
	pipeline := core.NewPipeline(core.NewRuleMatcher(nil, logger), classifier, history, 0, logger)
	s := New(mb, pipeline, history, testFolders, "Folders/Uncategorized", logger)

	done := make(chan struct{})
	var summary *Summary
	var runErr error
	go func() {
		summary, runErr = s.Run(context.Background(), "INBOX", Options{Workers: 2})
		close(done)
	}()

	// The first email is mid-classification when the second email's
	// processed-check fails. Run must not return until that worker is done.
	<-chat.started
	select {
	case <-done:
		t.Fatal("Run returned while a worker was still classifying")
	case <-time.After(50 * time.Millisecond):
	}

	close(chat.release)
	<-done

	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "history unavailable")
	assert.Equal(t, 1, summary.Processed, "in-flight work completes before Run returns")
	assert.Equal(t, 1, mb.moveCount())
}

func TestRunBoundedWorkers(t *testing.T) {
	mb := newFakeMailbox()
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		mb.folders["INBOX"] = append(mb.folders["INBOX"], &core.Email{
			ID: id, From: "boss@corp.example", Subject: id,
		})
	}
	chat := &fakeChat{bySender: map[string]string{"boss@corp.example": "Work"}}

	s, _ := newTestSorter(t, mb, chat, nil)
	summary, err := s.Run(context.Background(), "INBOX", Options{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Processed)
	assert.Equal(t, 6, mb.moveCount())
}

func TestReviewSpamRescuesByCategory(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["Spam"] = []*core.Email{
		{ID: "a", From: "boss@corp.example", Subject: "planning"},
		{ID: "b", From: "win@lottery.example", Subject: "you won"},
	}
	chat := &fakeChat{bySender: map[string]string{
		"boss@corp.example":   "Work",
		"win@lottery.example": "Spam",
	}}

	s, _ := newTestSorter(t, mb, chat, nil)

	categories, err := core.NewCategorySet([]string{"Work", "Finance", "Spam"})
	require.NoError(t, err)
	classifier := core.NewLanguageClassifier(chat, categories, nil, zap.NewNop()).ForSpamReview()
	pipeline := core.NewPipeline(core.NewRuleMatcher(nil, zap.NewNop()), classifier, store.NewMemoryStore(zap.NewNop()), 0, zap.NewNop())
	reviewer := core.NewSpamReviewer(pipeline, "Spam", 0.8, zap.NewNop())

	summary, err := s.ReviewSpam(context.Background(), reviewer, "Spam", "", 0, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Reviewed)
	assert.Equal(t, 1, summary.Rescued)
	assert.Equal(t, "Folders/Work", mb.movedTo("a"))
	assert.Empty(t, mb.movedTo("b"), "confirmed spam stays put")
}

func TestReviewSpamRescueFolderOverride(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["Spam"] = []*core.Email{
		{ID: "a", From: "boss@corp.example", Subject: "planning"},
	}
	chat := &fakeChat{bySender: map[string]string{"boss@corp.example": "Work"}}

	s, _ := newTestSorter(t, mb, chat, nil)

	categories, err := core.NewCategorySet([]string{"Work", "Finance", "Spam"})
	require.NoError(t, err)
	classifier := core.NewLanguageClassifier(chat, categories, nil, zap.NewNop()).ForSpamReview()
	pipeline := core.NewPipeline(core.NewRuleMatcher(nil, zap.NewNop()), classifier, store.NewMemoryStore(zap.NewNop()), 0, zap.NewNop())
	reviewer := core.NewSpamReviewer(pipeline, "Spam", 0.8, zap.NewNop())

	summary, err := s.ReviewSpam(context.Background(), reviewer, "Spam", "INBOX", 0, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Rescued)
	assert.Equal(t, "INBOX", mb.movedTo("a"))
}

func TestReviewSpamDryRun(t *testing.T) {
	mb := newFakeMailbox()
	mb.folders["Spam"] = []*core.Email{
		{ID: "a", From: "boss@corp.example", Subject: "planning"},
	}
	chat := &fakeChat{bySender: map[string]string{"boss@corp.example": "Work"}}

	s, _ := newTestSorter(t, mb, chat, nil)

	categories, err := core.NewCategorySet([]string{"Work", "Finance", "Spam"})
	require.NoError(t, err)
	classifier := core.NewLanguageClassifier(chat, categories, nil, zap.NewNop()).ForSpamReview()
	pipeline := core.NewPipeline(core.NewRuleMatcher(nil, zap.NewNop()), classifier, store.NewMemoryStore(zap.NewNop()), 0, zap.NewNop())
	reviewer := core.NewSpamReviewer(pipeline, "Spam", 0.8, zap.NewNop())

	summary, err := s.ReviewSpam(context.Background(), reviewer, "Spam", "", 0, true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Rescued)
	assert.Zero(t, mb.moveCount())
}
