package core

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// RescueCandidate pairs a spam-folder email with the reclassification that
// argues for rescuing it.
type RescueCandidate struct {
	Email  *Email
	Result *ClassificationResult
}

// SpamReviewer re-runs the classification pipeline over messages sitting in
// the spam folder and collects high-confidence false positives. It never
// moves mail itself; the caller decides what to do with the candidates.
type SpamReviewer struct {
	pipeline     *Pipeline
	spamCategory string
	threshold    float64
	logger       *zap.Logger
}

// NewSpamReviewer creates a reviewer. threshold is the confidence floor a
// reclassification must clear before the email becomes a rescue candidate.
func NewSpamReviewer(pipeline *Pipeline, spamCategory string, threshold float64, logger *zap.Logger) *SpamReviewer {
	return &SpamReviewer{
		pipeline:     pipeline,
		spamCategory: spamCategory,
		threshold:    threshold,
		logger:       logger,
	}
}

// Review classifies each email and keeps those that come back as something
// other than spam with confidence at or above the threshold. Rules are still
// consulted first, so rule-confirmed spam is never rescued. Per-email
// classifier failures are logged and skipped; a history write failure aborts
// the review.
func (r *SpamReviewer) Review(ctx context.Context, emails []*Email) ([]RescueCandidate, error) {
	var candidates []RescueCandidate

	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		result, err := r.pipeline.Classify(ctx, email)
		if err != nil {
			var histErr *HistoryWriteError
			if errors.As(err, &histErr) {
				return candidates, err
			}
			r.logger.Error("Skipping spam-folder email: classification failed",
				zap.String("sender", email.From),
				zap.Error(err))
			continue
		}

		if result.Category == r.spamCategory {
			r.logger.Debug("Confirmed as spam",
				zap.String("sender", email.From),
				zap.Float64("confidence", result.Confidence))
			continue
		}
		if result.Confidence < r.threshold {
			r.logger.Info("Reclassification below rescue threshold",
				zap.String("sender", email.From),
				zap.String("category", result.Category),
				zap.Float64("confidence", result.Confidence),
				zap.Float64("threshold", r.threshold))
			continue
		}

		r.logger.Info("Potential false positive",
			zap.String("sender", email.From),
			zap.String("category", result.Category),
			zap.Float64("confidence", result.Confidence))
		candidates = append(candidates, RescueCandidate{Email: email, Result: result})
	}

	return candidates, nil
}
