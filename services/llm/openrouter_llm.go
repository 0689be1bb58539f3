package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenRouterBaseURL is OpenRouter's OpenAI-compatible API root.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig configures an OpenRouterClient.
type OpenRouterConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Timeout      time.Duration
}

// OpenRouterClient sends chat completions to OpenRouter with go-openai.
type OpenRouterClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// NewOpenRouterClient builds a client for cfg.Model.
func NewOpenRouterClient(cfg OpenRouterConfig) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openrouter: model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = DefaultOpenRouterBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	system := cfg.SystemPrompt
	if system == "" {
		system = "You are a fact-checking AI agent."
	}
	slog.Info("Initializing OpenRouter client", "model", cfg.Model)
	return &OpenRouterClient{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: system,
	}, nil
}

// Generate implements the LLMClient interface
func (o *OpenRouterClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via OpenRouter", "model", o.model)
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenRouter API call failed", "error", err)
		return "", fmt.Errorf("OpenRouter API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenRouter returned no choices")
		return "", fmt.Errorf("OpenRouter returned no choices")
	}
	slog.Debug("Received response from OpenRouter", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
