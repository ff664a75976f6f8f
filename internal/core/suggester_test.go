package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func llmRecord(from, subject, category string) *HistoryRecord {
	return &HistoryRecord{
		EmailID:      EmailFingerprint(subject, from, time.Now()),
		From:         from,
		Subject:      subject,
		Category:     category,
		Source:       SourceLLM,
		Confidence:   0.9,
		ClassifiedAt: time.Now(),
	}
}

func repeat(n int, build func(i int) *HistoryRecord) []*HistoryRecord {
	out := make([]*HistoryRecord, n)
	for i := range out {
		out[i] = build(i)
	}
	return out
}

func TestSuggestRulesSenderDomain(t *testing.T) {
	records := repeat(5, func(int) *HistoryRecord {
		return llmRecord("Acme Billing <billing@acme.com>", "hi", "Finance")
	})

	suggested := SuggestRules(records, nil, DefaultSuggestOptions())
	require.Len(t, suggested, 1)

	rule := suggested[0]
	assert.Equal(t, FieldSender, rule.Rule.Field)
	assert.Equal(t, MatchSubstring, rule.Rule.Type)
	assert.Equal(t, "@acme.com", rule.Rule.Pattern)
	assert.Equal(t, "Finance", rule.Rule.Category)
	assert.Equal(t, 5, rule.Support)
}

func TestSuggestRulesSubjectPrefix(t *testing.T) {
	records := repeat(4, func(i int) *HistoryRecord {
		// Different senders, shared subject prefix.
		froms := []string{"a@one.example", "b@two.example", "c@three.example", "d@four.example"}
		return llmRecord(froms[i], "Your weekly digest is here", "Newsletter")
	})

	suggested := SuggestRules(records, nil, DefaultSuggestOptions())
	require.NotEmpty(t, suggested)

	var subjectRules []*SuggestedRule
	for _, s := range suggested {
		if s.Rule.Field == FieldSubject {
			subjectRules = append(subjectRules, s)
		}
	}
	require.NotEmpty(t, subjectRules)
	for _, s := range subjectRules {
		assert.Equal(t, "Newsletter", s.Rule.Category)
		assert.GreaterOrEqual(t, len(s.Rule.Pattern), DefaultSuggestOptions().MinPatternLength)
		assert.Contains(t, "your weekly digest is here", s.Rule.Pattern)
		assert.Equal(t, 4, s.Support)
	}
}

func TestSuggestRulesMinSupport(t *testing.T) {
	records := repeat(2, func(int) *HistoryRecord {
		return llmRecord("billing@acme.com", "hi", "Finance")
	})
	assert.Empty(t, SuggestRules(records, nil, DefaultSuggestOptions()))
}

func TestSuggestRulesTieYieldsNothing(t *testing.T) {
	var records []*HistoryRecord
	records = append(records, repeat(3, func(int) *HistoryRecord {
		return llmRecord("news@acme.com", "hi", "Finance")
	})...)
	records = append(records, repeat(3, func(int) *HistoryRecord {
		return llmRecord("news@acme.com", "hi", "Newsletter")
	})...)

	opts := DefaultSuggestOptions()
	opts.Dominance = 0
	assert.Empty(t, SuggestRules(records, nil, opts), "a tie for the top category is ambiguous evidence")
}

func TestSuggestRulesDominanceShare(t *testing.T) {
	var records []*HistoryRecord
	records = append(records, repeat(3, func(int) *HistoryRecord {
		return llmRecord("mix@acme.com", "hi", "Finance")
	})...)
	records = append(records, repeat(2, func(int) *HistoryRecord {
		return llmRecord("mix@acme.com", "hi", "Newsletter")
	})...)

	// 3 of 5 is a strict majority but only a 0.6 share.
	opts := DefaultSuggestOptions()
	opts.Dominance = 0.75
	assert.Empty(t, SuggestRules(records, nil, opts))

	opts.Dominance = 0.5
	suggested := SuggestRules(records, nil, opts)
	require.Len(t, suggested, 1)
	assert.Equal(t, "Finance", suggested[0].Rule.Category)
	assert.Equal(t, 3, suggested[0].Support)
}

func TestSuggestRulesIgnoresRuleDecisionsAndUncategorized(t *testing.T) {
	var records []*HistoryRecord
	for i := 0; i < 5; i++ {
		rec := llmRecord("billing@acme.com", "hi", "Finance")
		rec.Source = SourceRule
		records = append(records, rec)
	}
	for i := 0; i < 5; i++ {
		records = append(records, llmRecord("odd@acme.com", "hi", CategoryUncategorized))
	}
	assert.Empty(t, SuggestRules(records, nil, DefaultSuggestOptions()))
}

func TestSuggestRulesExistingPatternSuppressed(t *testing.T) {
	records := repeat(5, func(int) *HistoryRecord {
		return llmRecord("billing@acme.com", "hi", "Finance")
	})
	existing := []*Rule{
		{Field: FieldSender, Type: MatchSubstring, Pattern: "@ACME.com", Category: "Finance"},
	}
	assert.Empty(t, SuggestRules(records, existing, DefaultSuggestOptions()))
}

func TestSuggestRulesDeterministicOrder(t *testing.T) {
	var records []*HistoryRecord
	records = append(records, repeat(5, func(int) *HistoryRecord {
		return llmRecord("billing@acme.com", "hi", "Finance")
	})...)
	records = append(records, repeat(3, func(int) *HistoryRecord {
		return llmRecord("news@paper.example", "hi", "Newsletter")
	})...)

	first := SuggestRules(records, nil, DefaultSuggestOptions())
	second := SuggestRules(records, nil, DefaultSuggestOptions())
	require.Equal(t, first, second)

	require.Len(t, first, 2)
	assert.Greater(t, first[0].Support, first[1].Support)
}

func TestSuggesterAcceptPersistsAndSuppresses(t *testing.T) {
	history := &fakeHistory{}
	for i := 0; i < 5; i++ {
		require.NoError(t, history.Append(context.Background(), llmRecord("billing@acme.com", "hi", "Finance")))
	}
	rules := &fakeRuleStore{}
	suggester := NewRuleSuggester(history, rules, DefaultSuggestOptions(), zap.NewNop())

	suggested, err := suggester.Suggest(context.Background())
	require.NoError(t, err)
	require.Len(t, suggested, 1)

	require.NoError(t, suggester.Accept(context.Background(), suggested[0]))
	require.Len(t, rules.rules, 1)
	assert.Equal(t, "@acme.com", rules.rules[0].Pattern)

	// Accepted rules do not come back.
	again, err := suggester.Suggest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

type fakeRuleStore struct {
	rules []*Rule
}

func (f *fakeRuleStore) Rules(ctx context.Context) ([]*Rule, error) {
	return f.rules, nil
}

func (f *fakeRuleStore) AddRule(ctx context.Context, rule *Rule) error {
	f.rules = append(f.rules, rule)
	return nil
}
