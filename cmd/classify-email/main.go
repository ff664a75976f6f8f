package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/store"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/factory"
	"github.com/mikey/llm-mail-sorter/internal/logging"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

var (
	// LLM provider flags
	provider    = flag.String("provider", "openai", "LLM provider (openai, bedrock, gemini)")
	maxTokens   = flag.Int("max-tokens", 128, "Maximum tokens for LLM response")
	temperature = flag.Float64("temperature", 0.1, "Temperature for LLM generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for LLM generation")
	maxBodySize = flag.Int("max-body-size", 4096, "Maximum email body size to send to LLM")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiBaseURL   = flag.String("openai-base-url", "", "Base URL for OpenAI-compatible endpoints")
	openaiModelName = flag.String("openai-model", "gpt-4", "OpenAI model name")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// Classification flags
	categoryList = flag.String("categories", "", "Comma-separated category list (overrides config)")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.NewFromFile(*configFile)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	// Initialize LLM client
	llmFactory := factory.NewLLMFactory(cfg, logger)
	chatClient, err := llmFactory.CreateChatClient()
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	// Resolve the category set
	names := cfg.GetSort().Categories
	if *categoryList != "" {
		names = strings.Split(*categoryList, ",")
	}
	categories, err := core.NewCategorySet(names)
	if err != nil {
		logger.Fatal("Invalid category list", zap.Error(err))
	}

	// With a config file the persisted rule set participates; flag-only runs
	// are pure LLM classification.
	var rules []*core.Rule
	if *configFile != "" {
		st, err := factory.NewStoreFactory(cfg, logger).CreateStore()
		if err != nil {
			logger.Fatal("Failed to open store", zap.Error(err))
		}
		if closer, ok := st.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		rules, err = st.Rules(context.Background())
		if err != nil {
			logger.Fatal("Failed to load rules", zap.Error(err))
		}
		logger.Info("Loaded classification rules", zap.Int("count", len(rules)))
	}

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	from := msg.Header.Get("From")
	subject := msg.Header.Get("Subject")
	date, err := msg.Header.Date()
	if err != nil {
		date = time.Now()
	}

	// Read body
	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}
	text := utils.NewTextProcessor(logger)
	snippet := text.Snippet(string(bodyBytes), cfg.GetSort().MaxBodySize)

	// Create email object
	email := &core.Email{
		ID:      core.EmailFingerprint(subject, from, date),
		From:    from,
		Subject: subject,
		Snippet: snippet,
		Date:    date,
	}

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Date: %s\n", date.Format(time.RFC1123Z))
	fmt.Printf("Snippet length: %d bytes\n", len(snippet))
	fmt.Printf("\n")

	// Classify email
	fmt.Printf("=== Analysis ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetString("llm.provider"))
	fmt.Printf("Categories: %s\n", strings.Join(categories.Names(), ", "))

	classifier := core.NewLanguageClassifier(chatClient, categories, nil, logger)
	pipeline := core.NewPipeline(
		core.NewRuleMatcher(rules, logger),
		classifier,
		store.NewMemoryStore(logger),
		0,
		logger,
	)

	startTime := time.Now()
	result, err := pipeline.Classify(context.Background(), email)
	if err != nil {
		logger.Fatal("Failed to classify email", zap.Error(err))
	}
	duration := time.Since(startTime)

	// Print results
	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Category: %s\n", result.Category)
	fmt.Printf("Source: %s\n", result.Source)
	fmt.Printf("Confidence: %.4f\n", result.Confidence)
	fmt.Printf("Model used: %s\n", result.ModelUsed)
	fmt.Printf("Processing time: %v\n", duration)

	// Close any resources that need closing
	if closer, ok := chatClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	// Set LLM provider
	v.Set("llm.provider", *provider)
	v.Set("llm.request_timeout", "60s")

	// Set provider-specific configuration
	switch *provider {
	case "openai":
		v.Set("openai.api_key", *openaiAPIKey)
		v.Set("openai.base_url", *openaiBaseURL)
		v.Set("openai.model_name", *openaiModelName)
		v.Set("openai.max_tokens", *maxTokens)
		v.Set("openai.temperature", *temperature)
		v.Set("openai.top_p", *topP)
	case "bedrock":
		v.Set("bedrock.region", *bedrockRegion)
		v.Set("bedrock.model_id", *bedrockModelID)
		v.Set("bedrock.max_tokens", *maxTokens)
		v.Set("bedrock.temperature", *temperature)
		v.Set("bedrock.top_p", *topP)
	case "gemini":
		v.Set("gemini.api_key", *geminiAPIKey)
		v.Set("gemini.model_name", *geminiModelName)
		v.Set("gemini.max_tokens", *maxTokens)
		v.Set("gemini.temperature", *temperature)
		v.Set("gemini.top_p", *topP)
	}

	// Set classification defaults
	v.Set("sort.categories", []string{
		"Work", "Personal", "Finance", "Shopping",
		"Newsletter", "Spam", "Family", "School",
	})
	v.Set("sort.max_body_size", *maxBodySize)

	return config.NewFromViper(v)
}
