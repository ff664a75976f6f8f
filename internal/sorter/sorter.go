// Package sorter orchestrates batch runs: fetching candidate emails,
// classifying them through the pipeline and filing them into category
// folders.
package sorter

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mikey/llm-mail-sorter/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options control a single batch run.
type Options struct {
	// Limit caps how many candidate emails are fetched. <= 0 means all.
	Limit int

	// DryRun classifies and reports without moving any mail.
	DryRun bool

	// Reprocess ignores the already-processed check.
	Reprocess bool

	// Workers bounds concurrent classifications. Values below 1 mean
	// sequential processing.
	Workers int
}

// Summary reports the outcome of a batch run.
type Summary struct {
	Fetched        int
	Processed      int
	RuleClassified int
	LLMClassified  int
	Uncategorized  int
	Skipped        int
	Failed         int
}

// ReviewSummary reports the outcome of a spam review run.
type ReviewSummary struct {
	Reviewed int
	Rescued  int
}

// Sorter wires the mailbox, the classification pipeline and the
// category-to-folder mapping into batch operations.
type Sorter struct {
	mailbox       core.Mailbox
	pipeline      *core.Pipeline
	history       core.HistoryStore
	folders       map[string]string
	defaultFolder string
	logger        *zap.Logger
}

// New creates a sorter. folders maps lowercased category names to folder
// paths; anything unmapped lands in defaultFolder.
func New(
	mailbox core.Mailbox,
	pipeline *core.Pipeline,
	history core.HistoryStore,
	folders map[string]string,
	defaultFolder string,
	logger *zap.Logger,
) *Sorter {
	return &Sorter{
		mailbox:       mailbox,
		pipeline:      pipeline,
		history:       history,
		folders:       folders,
		defaultFolder: defaultFolder,
		logger:        logger,
	}
}

// FolderFor maps a category to its destination folder.
func (s *Sorter) FolderFor(category string) string {
	if folder, ok := s.folders[strings.ToLower(category)]; ok && folder != "" {
		return folder
	}
	return s.defaultFolder
}

// Run classifies candidate emails from the source folder and files them.
// Per-email classifier failures are counted and skipped; a history write
// failure aborts the run, as does context cancellation. Classification may
// fan out over a bounded worker pool; history appends serialize in the
// store.
func (s *Sorter) Run(ctx context.Context, folder string, opts Options) (*Summary, error) {
	emails, err := s.mailbox.Fetch(ctx, folder, opts.Limit)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Fetched: len(emails)}
	if len(emails) == 0 {
		s.logger.Warn("No emails found to process", zap.String("folder", folder))
		return summary, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	// A Seen failure stops scheduling but must not return before Wait:
	// in-flight workers would keep moving mail and mutating the summary
	// behind the caller's back.
	var seenErr error
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			break
		}

		if !opts.Reprocess {
			seen, err := s.history.Seen(ctx, email.ID)
			if err != nil {
				seenErr = err
				break
			}
			if seen {
				s.logger.Debug("Email already processed, skipping",
					zap.String("sender", email.From),
					zap.String("subject", email.Subject))
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				continue
			}
		}

		email := email
		g.Go(func() error {
			result, err := s.pipeline.Classify(gctx, email)
			if err != nil {
				var histErr *core.HistoryWriteError
				if errors.As(err, &histErr) {
					return err
				}
				s.logger.Error("Classification failed, leaving email in place",
					zap.String("sender", email.From),
					zap.Error(err))
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return nil
			}

			target := s.FolderFor(result.Category)
			moved := true
			if opts.DryRun {
				s.logger.Info("[dry run] Would move email",
					zap.String("sender", email.From),
					zap.String("category", result.Category),
					zap.String("folder", target))
			} else if err := s.mailbox.Move(gctx, email, target); err != nil {
				s.logger.Error("Failed to move email",
					zap.String("sender", email.From),
					zap.String("folder", target),
					zap.Error(err))
				moved = false
			}

			mu.Lock()
			defer mu.Unlock()
			if !moved {
				summary.Failed++
				return nil
			}
			summary.Processed++
			switch result.Source {
			case core.SourceRule:
				summary.RuleClassified++
			case core.SourceLLM:
				summary.LLMClassified++
			}
			if result.Category == core.CategoryUncategorized {
				summary.Uncategorized++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if seenErr != nil {
		return summary, seenErr
	}
	return summary, ctx.Err()
}

// ReviewSpam re-classifies the spam folder and moves rescue candidates out.
// An empty rescueFolder files each rescue into its category's folder;
// otherwise every rescue goes to rescueFolder.
func (s *Sorter) ReviewSpam(
	ctx context.Context,
	reviewer *core.SpamReviewer,
	spamFolder, rescueFolder string,
	limit int,
	dryRun bool,
) (*ReviewSummary, error) {
	emails, err := s.mailbox.Fetch(ctx, spamFolder, limit)
	if err != nil {
		return nil, err
	}

	summary := &ReviewSummary{Reviewed: len(emails)}
	if len(emails) == 0 {
		s.logger.Warn("No emails found to review", zap.String("folder", spamFolder))
		return summary, nil
	}

	candidates, err := reviewer.Review(ctx, emails)
	if err != nil {
		return summary, err
	}

	for _, candidate := range candidates {
		target := rescueFolder
		if target == "" {
			target = s.FolderFor(candidate.Result.Category)
		}

		if dryRun {
			s.logger.Info("[dry run] Would rescue email",
				zap.String("sender", candidate.Email.From),
				zap.String("category", candidate.Result.Category),
				zap.String("folder", target))
			summary.Rescued++
			continue
		}

		if err := s.mailbox.Move(ctx, candidate.Email, target); err != nil {
			s.logger.Error("Failed to rescue email",
				zap.String("sender", candidate.Email.From),
				zap.String("folder", target),
				zap.Error(err))
			continue
		}
		s.logger.Info("Rescued email",
			zap.String("sender", candidate.Email.From),
			zap.String("category", candidate.Result.Category),
			zap.String("folder", target))
		summary.Rescued++
	}

	return summary, nil
}
