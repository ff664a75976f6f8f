package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// CategoryUncategorized is the reserved sentinel for emails the language
// model could not place into any configured category.
const CategoryUncategorized = "Uncategorized"

// Source identifies which path of the pipeline produced a classification.
type Source string

const (
	SourceRule Source = "rule"
	SourceLLM  Source = "llm"
)

// MatchField selects which part of an email a rule is tested against.
type MatchField string

const (
	FieldSender  MatchField = "sender"
	FieldSubject MatchField = "subject"
	FieldBody    MatchField = "body"
)

// MatchType selects how a rule pattern is compared to the field value.
type MatchType string

const (
	MatchSubstring MatchType = "substring"
	MatchExact     MatchType = "exact"
	MatchPattern   MatchType = "pattern"
)

// Email is an immutable snapshot of a message taken at classification time.
type Email struct {
	ID      string
	From    string
	Subject string
	Snippet string
	Folder  string
	Date    time.Time
}

// EmailFingerprint derives the stable identity of a message from its
// subject, sender and date. It survives folder moves and UID changes across
// sessions, so history dedup keeps working after mail is filed.
func EmailFingerprint(subject, from string, date time.Time) string {
	sum := sha256.Sum256([]byte(subject + "|" + from + "|" + date.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

// Rule maps one email field to a category. Rules are evaluated in insertion
// order and the first match wins.
type Rule struct {
	Field    MatchField
	Type     MatchType
	Pattern  string
	Category string
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s %s %q -> %s", r.Field, r.Type, r.Pattern, r.Category)
}

// ClassificationResult is produced once per email per pipeline invocation
// and never mutated afterwards.
type ClassificationResult struct {
	Category     string
	Source       Source
	Confidence   float64
	ModelUsed    string
	ClassifiedAt time.Time
}

// HistoryRecord is an append-only log entry for one classification decision.
type HistoryRecord struct {
	EmailID      string
	From         string
	Subject      string
	Category     string
	Source       Source
	Confidence   float64
	ClassifiedAt time.Time
}

// SuggestedRule is a candidate rule mined from history, with the number of
// records that support it.
type SuggestedRule struct {
	Rule    Rule
	Support int
}

// CategorySet is the closed, configuration-defined set of categories for a
// run. Lookups are case-insensitive; Canonical returns the configured
// spelling.
type CategorySet struct {
	names []string
}

// NewCategorySet validates the configured category names. The set must be
// non-empty, free of duplicates and must not contain the reserved
// Uncategorized sentinel. Names must be a single word: response parsing
// matches individual tokens, so a multi-word category could never match.
func NewCategorySet(names []string) (CategorySet, error) {
	if len(names) == 0 {
		return CategorySet{}, fmt.Errorf("category set is empty")
	}
	cleaned := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return CategorySet{}, fmt.Errorf("category name is empty")
		}
		if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
			return CategorySet{}, fmt.Errorf("category name %q contains whitespace", name)
		}
		if strings.EqualFold(name, CategoryUncategorized) {
			return CategorySet{}, fmt.Errorf("category %q is reserved", CategoryUncategorized)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return CategorySet{}, fmt.Errorf("duplicate category %q", name)
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, name)
	}
	return CategorySet{names: cleaned}, nil
}

// Names returns the categories in their configured order.
func (s CategorySet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Canonical resolves a case-insensitive category name to its configured
// spelling.
func (s CategorySet) Canonical(name string) (string, bool) {
	for _, n := range s.names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// Contains reports whether name is one of the configured categories.
func (s CategorySet) Contains(name string) bool {
	_, ok := s.Canonical(name)
	return ok
}
