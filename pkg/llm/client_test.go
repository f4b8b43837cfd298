package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionsServer(t *testing.T, handler func(req map[string]any) any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChat(t *testing.T) {
	var gotReq map[string]any
	server := completionsServer(t, func(req map[string]any) any {
		gotReq = req
		return map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Resolved."}},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 7},
		}
	})

	client := NewClient(server.URL, "test-key")
	resp, err := client.Chat(context.Background(), "gpt-4o-mini",
		[]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hello"}},
		[]openai.Tool{{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "scale_service"}}})
	require.NoError(t, err)

	assert.Equal(t, "Resolved.", resp.Choices[0].Message.Content)
	assert.Equal(t, 42, resp.Usage.PromptTokens)

	assert.Equal(t, "gpt-4o-mini", gotReq["model"])
	assert.Equal(t, float64(maxCompletionTokens), gotReq["max_tokens"])
	assert.Equal(t, "auto", gotReq["tool_choice"])
	require.Len(t, gotReq["tools"], 1)
}

func TestChat_NoToolsOmitsToolChoice(t *testing.T) {
	var gotReq map[string]any
	server := completionsServer(t, func(req map[string]any) any {
		gotReq = req
		return map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi"}},
			},
		}
	})

	client := NewClient(server.URL, "test-key")
	_, err := client.Chat(context.Background(), "gpt-4o-mini",
		[]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hello"}}, nil)
	require.NoError(t, err)

	_, hasTools := gotReq["tools"]
	assert.False(t, hasTools)
	_, hasChoice := gotReq["tool_choice"]
	assert.False(t, hasChoice)
}

func TestProbe(t *testing.T) {
	server := completionsServer(t, func(req map[string]any) any {
		assert.Equal(t, 1.0, req["max_tokens"])
		return map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "p"}},
			},
		}
	})

	client := NewClient(server.URL, "test-key")
	assert.NoError(t, client.Probe(context.Background(), "gpt-4o-mini"))
}

func TestProbe_ProviderDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	err := client.Probe(context.Background(), "gpt-4o-mini")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm probe")
}
