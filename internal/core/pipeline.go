package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// HistoryWriteError reports a failed history append. It is fatal to a batch
// run: losing audit continuity would break rule suggestion.
type HistoryWriteError struct {
	Err error
}

func (e *HistoryWriteError) Error() string {
	return fmt.Sprintf("append history record: %v", e.Err)
}

func (e *HistoryWriteError) Unwrap() error {
	return e.Err
}

// Pipeline classifies one email at a time: deterministic rules first, the
// language model only when no rule explains the email. Every successful
// classification appends exactly one history record.
type Pipeline struct {
	matcher    *RuleMatcher
	classifier *LanguageClassifier
	history    HistoryStore
	llmTimeout time.Duration
	logger     *zap.Logger
}

// NewPipeline creates a classification pipeline. llmTimeout bounds each
// language-model call; zero disables the bound.
func NewPipeline(matcher *RuleMatcher, classifier *LanguageClassifier, history HistoryStore, llmTimeout time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		matcher:    matcher,
		classifier: classifier,
		history:    history,
		llmTimeout: llmTimeout,
		logger:     logger,
	}
}

// Classify runs the two-step pipeline. On a rule match the language model is
// never invoked and the result carries confidence 1.0. A classifier failure
// returns an error and appends nothing, so the email can be retried.
func (p *Pipeline) Classify(ctx context.Context, email *Email) (*ClassificationResult, error) {
	var result *ClassificationResult

	if rule := p.matcher.Match(email); rule != nil {
		result = &ClassificationResult{
			Category:     rule.Category,
			Source:       SourceRule,
			Confidence:   1.0,
			ClassifiedAt: time.Now(),
		}
		p.logger.Info("Rule classified email",
			zap.String("category", result.Category),
			zap.String("rule", rule.String()),
			zap.String("sender", email.From))
	} else {
		cctx := ctx
		if p.llmTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, p.llmTimeout)
			defer cancel()
		}
		var err error
		result, err = p.classifier.Classify(cctx, email)
		if err != nil {
			return nil, err
		}
	}

	rec := &HistoryRecord{
		EmailID:      email.ID,
		From:         email.From,
		Subject:      email.Subject,
		Category:     result.Category,
		Source:       result.Source,
		Confidence:   result.Confidence,
		ClassifiedAt: result.ClassifiedAt,
	}
	if err := p.history.Append(ctx, rec); err != nil {
		return nil, &HistoryWriteError{Err: err}
	}

	return result, nil
}
