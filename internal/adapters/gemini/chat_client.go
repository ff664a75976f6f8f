package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ChatClient is an implementation of the core.ChatClient interface using
// Google Gemini
type ChatClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	logger    *zap.Logger
}

// NewChatClient creates a new Gemini chat client
func NewChatClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) (*ChatClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &ChatClient{
		client:    client,
		model:     model,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// Close closes the Gemini client
func (c *ChatClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// requestModel returns a per-call copy of the shared model carrying the
// system instruction. Concurrent completions must not write through c.model.
func (c *ChatClient) requestModel(system string) *genai.GenerativeModel {
	model := *c.model
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	return &model
}

// Model returns the configured Gemini model name.
func (c *ChatClient) Model() string {
	return c.modelName
}

// Complete sends the prompt pair and returns the raw completion text.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	model := c.requestModel(system)

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}
