package core

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// SuggestOptions tunes the rule-mining heuristic. The key extraction and
// promotion thresholds are configurable rather than hard-coded.
type SuggestOptions struct {
	// MinSupport is the minimum number of consistent history records a
	// candidate needs before it is suggested.
	MinSupport int

	// Dominance is the minimum share of a key's records the winning category
	// must hold. Zero disables the share check; strict majority over every
	// rival category is always required.
	Dominance float64

	// MinPatternLength filters out short, unspecific subject prefixes.
	MinPatternLength int

	// MaxHistory caps how many records are mined. Zero mines everything.
	MaxHistory int
}

// DefaultSuggestOptions mirrors the thresholds the sorter ships with.
func DefaultSuggestOptions() SuggestOptions {
	return SuggestOptions{
		MinSupport:       3,
		Dominance:        0.75,
		MinPatternLength: 10,
		MaxHistory:       1000,
	}
}

// RuleSuggester mines the classification history for recurring
// language-model decisions and proposes deterministic rules for them.
type RuleSuggester struct {
	history HistoryStore
	rules   RuleStore
	opts    SuggestOptions
	logger  *zap.Logger
}

// NewRuleSuggester creates a suggester over the given stores.
func NewRuleSuggester(history HistoryStore, rules RuleStore, opts SuggestOptions, logger *zap.Logger) *RuleSuggester {
	return &RuleSuggester{
		history: history,
		rules:   rules,
		opts:    opts,
		logger:  logger,
	}
}

// Suggest loads history and the current rule set and returns candidate
// rules ordered by support. Re-running on unchanged stores returns the same
// candidates; accepted candidates are never re-suggested.
func (s *RuleSuggester) Suggest(ctx context.Context) ([]*SuggestedRule, error) {
	records, err := s.history.Recent(ctx, s.opts.MaxHistory)
	if err != nil {
		return nil, err
	}
	existing, err := s.rules.Rules(ctx)
	if err != nil {
		return nil, err
	}

	suggested := SuggestRules(records, existing, s.opts)
	s.logger.Info("Mined history for rule candidates",
		zap.Int("records", len(records)),
		zap.Int("suggestions", len(suggested)))
	return suggested, nil
}

// Accept promotes a suggested rule into the rule set.
func (s *RuleSuggester) Accept(ctx context.Context, suggestion *SuggestedRule) error {
	rule := suggestion.Rule
	if err := s.rules.AddRule(ctx, &rule); err != nil {
		return err
	}
	s.logger.Info("Accepted suggested rule",
		zap.String("rule", rule.String()),
		zap.Int("support", suggestion.Support))
	return nil
}

var senderDomainRe = regexp.MustCompile(`@[\w.-]+`)

type candidateKey struct {
	field   MatchField
	pattern string
}

// SuggestRules groups language-model decisions by sender domain and by
// significant subject prefixes, and proposes a substring rule for every key
// whose winning category has strictly more support than any rival, at least
// MinSupport records, and at least the Dominance share of the key's records.
// Keys whose pattern already exists in the rule set are suppressed.
func SuggestRules(records []*HistoryRecord, existing []*Rule, opts SuggestOptions) []*SuggestedRule {
	counts := make(map[candidateKey]map[string]int)
	bump := func(key candidateKey, category string) {
		if counts[key] == nil {
			counts[key] = make(map[string]int)
		}
		counts[key][category]++
	}

	for _, rec := range records {
		if rec.Source != SourceLLM || rec.Category == CategoryUncategorized {
			continue
		}
		if domain := senderDomainRe.FindString(rec.From); domain != "" {
			bump(candidateKey{FieldSender, strings.ToLower(domain)}, rec.Category)
		}
		for _, prefix := range subjectPrefixes(rec.Subject, opts.MinPatternLength) {
			bump(candidateKey{FieldSubject, prefix}, rec.Category)
		}
	}

	var suggested []*SuggestedRule
	for key, byCategory := range counts {
		category, support, ok := dominantCategory(byCategory, opts)
		if !ok {
			continue
		}
		if patternExists(existing, key) {
			continue
		}
		suggested = append(suggested, &SuggestedRule{
			Rule: Rule{
				Field:    key.field,
				Type:     MatchSubstring,
				Pattern:  key.pattern,
				Category: category,
			},
			Support: support,
		})
	}

	sort.Slice(suggested, func(i, j int) bool {
		if suggested[i].Support != suggested[j].Support {
			return suggested[i].Support > suggested[j].Support
		}
		if suggested[i].Rule.Field != suggested[j].Rule.Field {
			return suggested[i].Rule.Field < suggested[j].Rule.Field
		}
		return suggested[i].Rule.Pattern < suggested[j].Rule.Pattern
	})
	return suggested
}

// subjectPrefixes returns the lowercased 3- to 5-word prefixes of a subject
// that are long enough to be worth matching on.
func subjectPrefixes(subject string, minLen int) []string {
	words := strings.Fields(strings.ToLower(subject))
	if len(words) < 3 {
		return nil
	}
	var prefixes []string
	for n := 3; n <= 5 && n <= len(words); n++ {
		prefix := strings.Join(words[:n], " ")
		if len(prefix) >= minLen {
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes
}

// dominantCategory picks the category with strictly the highest count.
// Ambiguous evidence, a tie for the top count, yields no suggestion.
func dominantCategory(byCategory map[string]int, opts SuggestOptions) (string, int, bool) {
	var (
		best      string
		bestCount int
		total     int
		tied      bool
	)
	for category, count := range byCategory {
		total += count
		switch {
		case count > bestCount:
			best, bestCount, tied = category, count, false
		case count == bestCount:
			tied = true
		}
	}
	if tied || bestCount < opts.MinSupport {
		return "", 0, false
	}
	if opts.Dominance > 0 && float64(bestCount)/float64(total) < opts.Dominance {
		return "", 0, false
	}
	return best, bestCount, true
}

func patternExists(existing []*Rule, key candidateKey) bool {
	for _, rule := range existing {
		if rule.Field == key.field && strings.EqualFold(rule.Pattern, key.pattern) {
			return true
		}
	}
	return false
}
