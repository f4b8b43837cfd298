// Package llm wraps the OpenAI-compatible chat completions API used for
// agent runs. Any provider speaking that protocol works: OpenAI, Azure,
// GitHub Models, or an OpenRouter-style gateway.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// maxCompletionTokens bounds a single model response.
	maxCompletionTokens = 4096

	probeTimeout = 10 * time.Second
)

// Client is a thin wrapper over the go-openai client with the agent's
// fixed request shape applied.
type Client struct {
	api *openai.Client
}

// NewClient creates a Client against an OpenAI-compatible base URL.
func NewClient(baseURL, apiKey string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// Chat sends one turn of the conversation. Tool choice is left to the
// model; the response may contain tool calls, text, or both.
func (c *Client) Chat(ctx context.Context, model string, messages []openai.ChatCompletionMessage, tools []openai.Tool) (*openai.ChatCompletionResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxCompletionTokens,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return &resp, nil
}

// Probe checks provider reachability with a one-token ping.
func (c *Client) Probe(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("llm probe: %w", err)
	}
	return nil
}
