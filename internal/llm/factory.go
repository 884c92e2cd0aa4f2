package llm

import (
	"fmt"

	"tabula/internal/observability"
)

// NewChatModel builds the chat model for the configured provider. An empty
// provider falls back to "openai" when an API key is present and "mock"
// otherwise, so the agent stays usable without credentials.
func NewChatModel(config Config, metrics *observability.MetricsCollector) (ChatModel, error) {
	provider := config.Provider
	if provider == "" {
		if config.APIKey != "" {
			provider = "openai"
		} else {
			provider = "mock"
		}
	}

	switch provider {
	case "openai", "openrouter", "deepseek":
		return newOpenAIClient(config, metrics), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
