package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/mailbox"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/di"
	"github.com/mikey/llm-mail-sorter/internal/sorter"
)

func main() {
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case flags.ListFolders:
		err = container.Invoke(func(logger *zap.Logger, client *mailbox.Client) error {
			defer logger.Sync()
			defer client.Close()
			return listFolders(ctx, client)
		})
	case flags.SuggestRules:
		err = container.Invoke(func(logger *zap.Logger, suggester *core.RuleSuggester) error {
			defer logger.Sync()
			return suggestRules(ctx, suggester, flags.AcceptRules)
		})
	case flags.ReviewSpam:
		err = container.Invoke(func(
			logger *zap.Logger,
			cfg *config.Config,
			client *mailbox.Client,
			s *sorter.Sorter,
			reviewer *core.SpamReviewer,
			chat core.ChatClient,
		) error {
			defer logger.Sync()
			defer client.Close()
			defer closeChatClient(chat, logger)
			return reviewSpam(ctx, cfg, s, reviewer, flags)
		})
	default:
		err = container.Invoke(func(
			logger *zap.Logger,
			cfg *config.Config,
			client *mailbox.Client,
			s *sorter.Sorter,
			history core.HistoryStore,
			chat core.ChatClient,
		) error {
			defer logger.Sync()
			defer client.Close()
			defer closeChatClient(chat, logger)
			if flags.ClearHistory {
				if err := history.Clear(ctx); err != nil {
					return fmt.Errorf("clear history: %w", err)
				}
				logger.Info("Classification history cleared")
			}
			return sortFolder(ctx, cfg, s, flags)
		})
	}
	if err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// sortFolder runs the main classify-and-file batch over the source folder.
func sortFolder(ctx context.Context, cfg *config.Config, s *sorter.Sorter, flags *di.CLIFlags) error {
	sortCfg := cfg.GetSort()
	imapCfg := cfg.GetIMAP()

	startTime := time.Now()
	summary, err := s.Run(ctx, imapCfg.SourceFolder, sorter.Options{
		Limit:     flags.Limit,
		DryRun:    flags.DryRun,
		Reprocess: flags.Reprocess,
		Workers:   sortCfg.Workers,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Summary ===\n")
	fmt.Printf("Folder: %s\n", imapCfg.SourceFolder)
	fmt.Printf("Fetched: %d\n", summary.Fetched)
	fmt.Printf("Processed: %d\n", summary.Processed)
	fmt.Printf("Classified by rule: %d\n", summary.RuleClassified)
	fmt.Printf("Classified by LLM: %d\n", summary.LLMClassified)
	fmt.Printf("Uncategorized: %d\n", summary.Uncategorized)
	fmt.Printf("Skipped (already processed): %d\n", summary.Skipped)
	fmt.Printf("Failed: %d\n", summary.Failed)
	fmt.Printf("Processing time: %v\n", time.Since(startTime))
	if flags.DryRun {
		fmt.Printf("Dry run: no mail was moved\n")
	}
	return nil
}

// reviewSpam re-examines the spam folder and rescues likely false positives.
func reviewSpam(ctx context.Context, cfg *config.Config, s *sorter.Sorter, reviewer *core.SpamReviewer, flags *di.CLIFlags) error {
	reviewCfg := cfg.GetReview()

	startTime := time.Now()
	summary, err := s.ReviewSpam(ctx, reviewer, reviewCfg.SpamFolder, reviewCfg.RescueFolder, flags.Limit, flags.DryRun)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Spam Review ===\n")
	fmt.Printf("Folder: %s\n", reviewCfg.SpamFolder)
	fmt.Printf("Confidence threshold: %.2f\n", reviewCfg.ConfidenceThreshold)
	fmt.Printf("Reviewed: %d\n", summary.Reviewed)
	fmt.Printf("Rescued: %d\n", summary.Rescued)
	fmt.Printf("Processing time: %v\n", time.Since(startTime))
	if flags.DryRun {
		fmt.Printf("Dry run: no mail was moved\n")
	}
	return nil
}

// listFolders prints every folder visible on the server.
func listFolders(ctx context.Context, client *mailbox.Client) error {
	folders, err := client.ListFolders(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("=== Folders ===\n")
	for _, folder := range folders {
		fmt.Printf("%s\n", folder)
	}
	return nil
}

// suggestRules mines the classification history for rule candidates and
// optionally persists the accepted ones.
func suggestRules(ctx context.Context, suggester *core.RuleSuggester, accept string) error {
	suggestions, err := suggester.Suggest(ctx)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		fmt.Printf("No rule suggestions; not enough consistent history yet\n")
		return nil
	}

	fmt.Printf("=== Suggested Rules ===\n")
	for i, suggestion := range suggestions {
		fmt.Printf("%d. %s (seen %d times)\n", i+1, suggestion.Rule.String(), suggestion.Support)
	}

	selected, err := selectSuggestions(suggestions, accept)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		fmt.Printf("\nRe-run with -accept-rules all or -accept-rules 1,3 to keep them\n")
		return nil
	}

	for _, suggestion := range selected {
		if err := suggester.Accept(ctx, suggestion); err != nil {
			return fmt.Errorf("accept rule %q: %w", suggestion.Rule.String(), err)
		}
		fmt.Printf("Accepted: %s\n", suggestion.Rule.String())
	}
	return nil
}

// selectSuggestions resolves the -accept-rules value against the printed,
// 1-based suggestion numbers.
func selectSuggestions(suggestions []*core.SuggestedRule, accept string) ([]*core.SuggestedRule, error) {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return nil, nil
	}
	if strings.EqualFold(accept, "all") {
		return suggestions, nil
	}

	var selected []*core.SuggestedRule
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > len(suggestions) {
			return nil, fmt.Errorf("invalid rule number %q (have %d suggestions)", part, len(suggestions))
		}
		selected = append(selected, suggestions[n-1])
	}
	return selected, nil
}

func closeChatClient(chat core.ChatClient, logger *zap.Logger) {
	if closer, ok := chat.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}
}
