package core

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// RuleError reports a malformed rule definition. The rule is skipped and the
// remainder of the set is still evaluated.
type RuleError struct {
	Rule *Rule
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// RuleMatcher evaluates an email against an ordered rule set. It has no side
// effects: given the same rules and email, the result is always the same.
type RuleMatcher struct {
	rules  []*Rule
	logger *zap.Logger
}

// NewRuleMatcher creates a matcher over the given rules, kept in order.
func NewRuleMatcher(rules []*Rule, logger *zap.Logger) *RuleMatcher {
	return &RuleMatcher{
		rules:  rules,
		logger: logger,
	}
}

// Match returns the first rule that matches the email, or nil if none does.
// Malformed rules are logged and skipped.
func (m *RuleMatcher) Match(email *Email) *Rule {
	for _, rule := range m.rules {
		ok, err := EvaluateRule(rule, email)
		if err != nil {
			m.logger.Warn("Skipping malformed rule", zap.String("rule", rule.String()), zap.Error(err))
			continue
		}
		if ok {
			m.logger.Debug("Rule matched",
				zap.String("rule", rule.String()),
				zap.String("sender", email.From))
			return rule
		}
	}
	return nil
}

// EvaluateRule tests one rule against one email.
func EvaluateRule(rule *Rule, email *Email) (bool, error) {
	value, err := fieldValue(rule, email)
	if err != nil {
		return false, err
	}

	switch rule.Type {
	case MatchSubstring:
		return matchSubstring(rule.Pattern, value), nil
	case MatchExact:
		return matchExact(rule.Pattern, value), nil
	case MatchPattern:
		ok, err := matchRegexp(rule.Pattern, value)
		if err != nil {
			return false, &RuleError{Rule: rule, Err: err}
		}
		return ok, nil
	default:
		return false, &RuleError{Rule: rule, Err: fmt.Errorf("unknown match type %q", rule.Type)}
	}
}

func fieldValue(rule *Rule, email *Email) (string, error) {
	switch rule.Field {
	case FieldSender:
		return email.From, nil
	case FieldSubject:
		return email.Subject, nil
	case FieldBody:
		return email.Snippet, nil
	default:
		return "", &RuleError{Rule: rule, Err: fmt.Errorf("unknown field %q", rule.Field)}
	}
}

func matchSubstring(pattern, value string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func matchExact(pattern, value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), pattern)
}

func matchRegexp(pattern, value string) (bool, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false, fmt.Errorf("compile pattern: %w", err)
	}
	return re.MatchString(value), nil
}
