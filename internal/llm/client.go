// Package llm provides the chat-completion client used by the analysis
// workflows, with an offline mock for tests and keyless runs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	taberrors "tabula/internal/errors"
	"tabula/internal/observability"
	"tabula/internal/utils"
	"tabula/internal/utils/id"
	"tabula/pkg/types/message"
)

// Config holds chat model configuration.
type Config struct {
	Provider string // "openai" or "mock"
	Model    string
	APIKey   string
	BaseURL  string        // default https://api.openai.com/v1
	Timeout  time.Duration // per-request, default 120s
	Retry    taberrors.RetryConfig
}

// ChatModel produces one assistant message for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, messages []*message.Message) (*message.Message, error)
	Name() string
}

// openaiClient talks to an OpenAI-compatible chat completions endpoint.
type openaiClient struct {
	config     Config
	httpClient *http.Client
	metrics    *observability.MetricsCollector
	logger     *utils.Logger
}

func newOpenAIClient(config Config, metrics *observability.MetricsCollector) *openaiClient {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = taberrors.DefaultRetryConfig()
	}
	return &openaiClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		metrics:    metrics,
		logger:     utils.NewComponentLogger("llm"),
	}
}

func (c *openaiClient) Name() string {
	return c.config.Model
}

func (c *openaiClient) Chat(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	start := time.Now()
	result, err := taberrors.RetryWithResultAndLog(ctx, c.config.Retry, func(ctx context.Context) (chatResult, error) {
		return c.complete(ctx, messages)
	}, c.logger)
	latency := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordLLMRequest(ctx, c.config.Model, status, latency, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	c.logger.Debug("Chat completion in %v (%d prompt, %d completion tokens)",
		latency, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return message.NewAssistantMessage(result.Content), nil
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResult struct {
	Content string
	Usage   chatUsage
}

func (c *openaiClient) complete(ctx context.Context, messages []*message.Message) (chatResult, error) {
	type wireMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	wire := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, wireMessage{Role: string(msg.Role), Content: msg.Text()})
	}

	body, err := json.Marshal(map[string]any{
		"model":    c.config.Model,
		"messages": wire,
	})
	if err != nil {
		return chatResult{}, fmt.Errorf("marshal request: %w", err)
	}
	utils.LogChatRequestPayload(id.RunIDFromContext(ctx), id.SessionIDFromContext(ctx), body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return chatResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chatResult{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("chat API error %d: %s", resp.StatusCode, string(raw))
		if taberrors.IsTransientHTTPStatus(resp.StatusCode) {
			return chatResult{}, &taberrors.TransientError{Err: apiErr, StatusCode: resp.StatusCode}
		}
		return chatResult{}, &taberrors.PermanentError{Err: apiErr, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatResult{}, fmt.Errorf("read response: %w", err)
	}
	utils.LogChatResponsePayload(id.RunIDFromContext(ctx), id.SessionIDFromContext(ctx), raw)

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage chatUsage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return chatResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return chatResult{Usage: apiResp.Usage}, fmt.Errorf("chat response carried no choices")
	}
	return chatResult{Content: apiResp.Choices[0].Message.Content, Usage: apiResp.Usage}, nil
}
