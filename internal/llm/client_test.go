package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taberrors "tabula/internal/errors"
	"tabula/pkg/types/message"
)

func fastRetry(attempts int) taberrors.RetryConfig {
	return taberrors.RetryConfig{
		MaxAttempts:  attempts,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0.1,
	}
}

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7},
	}
}

func TestOpenAIChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "How many rows?", req.Messages[1].Content)

		json.NewEncoder(w).Encode(chatCompletionBody("The table has 8 rows."))
	}))
	defer srv.Close()

	model, err := NewChatModel(Config{
		Provider: "openai",
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		Retry:    fastRetry(1),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model.Name())

	reply, err := model.Chat(context.Background(), []*message.Message{
		message.NewSystemMessage("You analyze tabular data."),
		message.NewUserMessage("How many rows?"),
	})
	require.NoError(t, err)
	assert.Equal(t, message.RoleAssistant, reply.Role)
	assert.Equal(t, "The table has 8 rows.", reply.Text())
}

func TestOpenAIChatRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatCompletionBody("recovered"))
	}))
	defer srv.Close()

	client := newOpenAIClient(Config{BaseURL: srv.URL, Retry: fastRetry(3)}, nil)
	reply, err := client.Chat(context.Background(), []*message.Message{message.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Text())
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIChatPermanentErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newOpenAIClient(Config{BaseURL: srv.URL, Retry: fastRetry(3)}, nil)
	_, err := client.Chat(context.Background(), []*message.Message{message.NewUserMessage("hi")})
	require.Error(t, err)
	assert.False(t, taberrors.IsTransient(err))
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIChatRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := newOpenAIClient(Config{BaseURL: srv.URL, Retry: fastRetry(1)}, nil)
	_, err := client.Chat(context.Background(), []*message.Message{message.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestMockClientReplaysQueuedResponses(t *testing.T) {
	mock := NewMockClient("first", "second")

	reply, err := mock.Chat(context.Background(), []*message.Message{message.NewUserMessage("a")})
	require.NoError(t, err)
	assert.Equal(t, "first", reply.Text())

	reply, err = mock.Chat(context.Background(), []*message.Message{message.NewUserMessage("b")})
	require.NoError(t, err)
	assert.Equal(t, "second", reply.Text())

	reply, err = mock.Chat(context.Background(), []*message.Message{
		message.NewSystemMessage("sys"),
		message.NewUserMessage("what is the mean age?"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Mock analysis of: what is the mean age?", reply.Text())
	assert.Equal(t, 3, mock.Calls())
}

func TestNewChatModelProviderSelection(t *testing.T) {
	model, err := NewChatModel(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", model.Name())

	model, err = NewChatModel(Config{APIKey: "sk-x", Model: "gpt-4o"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model.Name())

	_, err = NewChatModel(Config{Provider: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}
