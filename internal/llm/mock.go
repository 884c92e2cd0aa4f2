package llm

import (
	"context"
	"fmt"
	"sync"

	"tabula/pkg/types/message"
)

// MockClient is an offline ChatModel. It replays queued responses in order
// and falls back to echoing the last user message, so keyless runs and tests
// behave deterministically.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

// NewMockClient creates a mock chat model.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

func (m *MockClient) Name() string {
	return "mock"
}

// Calls reports how many chat turns the mock has served.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) Chat(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	var reply string
	if len(m.responses) > 0 {
		reply = m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if reply == "" {
		reply = fmt.Sprintf("Mock analysis of: %s", lastUserText(messages))
	}
	return message.NewAssistantMessage(reply), nil
}

func lastUserText(messages []*message.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == message.RoleUser {
			return messages[i].Text()
		}
	}
	return "(empty conversation)"
}
