package di

import (
	"context"
	"flag"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/mailbox"
	"github.com/mikey/llm-mail-sorter/internal/adapters/store"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/factory"
	"github.com/mikey/llm-mail-sorter/internal/logging"
	"github.com/mikey/llm-mail-sorter/internal/sorter"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

// CLIFlags contains all command line flags for the sorter application
type CLIFlags struct {
	// Run modes
	ListFolders  bool
	SuggestRules bool
	ReviewSpam   bool
	ClearHistory bool

	// Batch options
	Limit     int
	DryRun    bool
	Reprocess bool
	Workers   int

	// Spam review options
	ConfidenceThreshold float64
	RescueFolder        string

	// Rule suggestion options
	AcceptRules string

	// Context and output options
	ConfigFile     string
	DisableContext bool
	Debug          bool
	JSONLog        bool
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Run modes
	flag.BoolVar(&flags.ListFolders, "list-folders", false, "List all available IMAP folders and exit")
	flag.BoolVar(&flags.SuggestRules, "suggest-rules", false, "Suggest new classification rules mined from history")
	flag.BoolVar(&flags.ReviewSpam, "review-spam", false, "Review the spam folder for false positives")
	flag.BoolVar(&flags.ClearHistory, "clear-history", false, "Clear the classification history before running")

	// Batch options
	flag.IntVar(&flags.Limit, "limit", 100, "Maximum number of emails to process")
	flag.BoolVar(&flags.DryRun, "dry-run", false, "Classify and report without moving any mail")
	flag.BoolVar(&flags.Reprocess, "reprocess", false, "Reprocess already processed emails")
	flag.IntVar(&flags.Workers, "workers", 0, "Concurrent classification workers (0 uses the configured value)")

	// Spam review options
	flag.Float64Var(&flags.ConfidenceThreshold, "confidence-threshold", -1, "Confidence threshold for spam rescue (0.0-1.0)")
	flag.StringVar(&flags.RescueFolder, "rescue-folder", "", "Folder to move rescued emails to (empty files them by category)")

	// Rule suggestion options
	flag.StringVar(&flags.AcceptRules, "accept-rules", "", "Accept suggested rules: 'all' or comma-separated numbers")

	// Context and output options
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (default: search standard locations)")
	flag.BoolVar(&flags.DisableContext, "disable-context", false, "Disable personal context in classification prompts")
	flag.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	flag.Parse()
	return flags
}

// BuildContainer creates and configures the dependency injection container.
// Providers are lazy, so a run mode only constructs what it asks for; for
// example rule suggestion never dials IMAP.
func BuildContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		func() *CLIFlags { return flags },

		func(flags *CLIFlags) (*config.Config, error) {
			var cfg *config.Config
			var err error
			if flags.ConfigFile != "" {
				cfg, err = config.NewFromFile(flags.ConfigFile)
			} else {
				cfg, err = config.New()
			}
			if err != nil {
				return nil, err
			}
			applyFlagOverrides(cfg, flags)
			return cfg, nil
		},

		func(cfg *config.Config, flags *CLIFlags) (*zap.Logger, error) {
			var logger *zap.Logger
			var err error
			if flags.Debug || flags.JSONLog {
				logger, err = logging.InitConsoleLogger(flags.Debug, flags.JSONLog)
			} else {
				logger, err = logging.InitLogger(cfg)
			}
			if err != nil {
				return nil, err
			}
			if used := cfg.GetViper().ConfigFileUsed(); used != "" {
				logger.Info("Loaded configuration from file", zap.String("file", used))
			}
			return logger, nil
		},

		utils.NewTextProcessor,
		factory.NewLLMFactory,
		factory.NewStoreFactory,

		func(f *factory.StoreFactory) (store.Store, error) {
			return f.CreateStore()
		},
		func(s store.Store) core.HistoryStore { return s },
		func(s store.Store) core.RuleStore { return s },

		func(f *factory.LLMFactory) (core.ChatClient, error) {
			return f.CreateChatClient()
		},

		func(cfg *config.Config) (core.CategorySet, error) {
			return core.NewCategorySet(cfg.GetSort().Categories)
		},

		func(chat core.ChatClient, categories core.CategorySet, cfg *config.Config, flags *CLIFlags, logger *zap.Logger) (*core.LanguageClassifier, error) {
			var personalContext []string
			if !flags.DisableContext {
				var err error
				personalContext, err = cfg.LoadPersonalContext()
				if err != nil {
					return nil, err
				}
				if len(personalContext) > 0 {
					logger.Info("Loaded personal context items", zap.Int("count", len(personalContext)))
				}
			}
			return core.NewLanguageClassifier(chat, categories, personalContext, logger), nil
		},

		func(rules core.RuleStore, logger *zap.Logger) (*core.RuleMatcher, error) {
			loaded, err := rules.Rules(context.Background())
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded classification rules", zap.Int("count", len(loaded)))
			return core.NewRuleMatcher(loaded, logger), nil
		},

		func(matcher *core.RuleMatcher, classifier *core.LanguageClassifier, history core.HistoryStore, cfg *config.Config, logger *zap.Logger) (*core.Pipeline, error) {
			timeout, err := llmTimeout(cfg)
			if err != nil {
				return nil, err
			}
			return core.NewPipeline(matcher, classifier, history, timeout, logger), nil
		},

		func(matcher *core.RuleMatcher, classifier *core.LanguageClassifier, history core.HistoryStore, cfg *config.Config, logger *zap.Logger) (*core.SpamReviewer, error) {
			timeout, err := llmTimeout(cfg)
			if err != nil {
				return nil, err
			}
			reviewPipeline := core.NewPipeline(matcher, classifier.ForSpamReview(), history, timeout, logger)
			return core.NewSpamReviewer(
				reviewPipeline,
				cfg.GetSort().SpamCategory,
				cfg.GetReview().ConfidenceThreshold,
				logger,
			), nil
		},

		func(history core.HistoryStore, rules core.RuleStore, cfg *config.Config, logger *zap.Logger) *core.RuleSuggester {
			suggestCfg := cfg.GetSuggest()
			return core.NewRuleSuggester(history, rules, core.SuggestOptions{
				MinSupport:       suggestCfg.MinSupport,
				Dominance:        suggestCfg.Dominance,
				MinPatternLength: suggestCfg.MinPatternLength,
				MaxHistory:       suggestCfg.MaxHistory,
			}, logger)
		},

		func(cfg *config.Config, text *utils.TextProcessor, logger *zap.Logger) (*mailbox.Client, error) {
			return mailbox.Dial(cfg.GetIMAP(), text, cfg.GetSort().MaxBodySize, logger)
		},
		func(client *mailbox.Client) core.Mailbox { return client },

		func(mb core.Mailbox, pipeline *core.Pipeline, history core.HistoryStore, cfg *config.Config, logger *zap.Logger) *sorter.Sorter {
			sortCfg := cfg.GetSort()
			return sorter.New(mb, pipeline, history, sortCfg.Folders, sortCfg.DefaultFolder, logger)
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

// applyFlagOverrides lets command line flags win over the configuration file.
func applyFlagOverrides(cfg *config.Config, flags *CLIFlags) {
	v := cfg.GetViper()
	if flags.ConfidenceThreshold >= 0 {
		v.Set("review.confidence_threshold", flags.ConfidenceThreshold)
	}
	if flags.RescueFolder != "" {
		v.Set("review.rescue_folder", flags.RescueFolder)
	}
	if flags.Workers > 0 {
		v.Set("sort.workers", flags.Workers)
	}
}

func llmTimeout(cfg *config.Config) (time.Duration, error) {
	return cfg.GetDuration("llm.request_timeout")
}
