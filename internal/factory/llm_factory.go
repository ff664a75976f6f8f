package factory

import (
	"fmt"

	"github.com/mikey/llm-mail-sorter/internal/adapters/bedrock"
	"github.com/mikey/llm-mail-sorter/internal/adapters/gemini"
	"github.com/mikey/llm-mail-sorter/internal/adapters/openai"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates chat clients
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateChatClient creates a new chat client based on the configuration
func (f *LLMFactory) CreateChatClient() (core.ChatClient, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateClient()
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateClient()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
