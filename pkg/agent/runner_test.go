package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/sre-agent/pkg/config"
	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/runbook"
)

// scriptedChat replays canned responses and records what the runner sent.
type scriptedChat struct {
	responses []openai.ChatCompletionResponse
	err       error

	calls        int
	modelsSeen   []string
	lastMessages []openai.ChatCompletionMessage
}

func (s *scriptedChat) Chat(_ context.Context, model string, messages []openai.ChatCompletionMessage, _ []openai.Tool) (*openai.ChatCompletionResponse, error) {
	s.modelsSeen = append(s.modelsSeen, model)
	s.lastMessages = messages
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	resp := s.responses[idx]
	return &resp, nil
}

func textResponse(content string, in, out int) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
		Usage: openai.Usage{PromptTokens: in, CompletionTokens: out},
	}
}

func toolCallResponse(callID, tool, args string, in, out int) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{
					{
						ID:       callID,
						Type:     openai.ToolTypeFunction,
						Function: openai.FunctionCall{Name: tool, Arguments: args},
					},
				},
			}},
		},
		Usage: openai.Usage{PromptTokens: in, CompletionTokens: out},
	}
}

func runnerConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	promptPath := filepath.Join(dir, "SRE_PROMPT.md")
	require.NoError(t, os.WriteFile(promptPath, []byte("You are an SRE agent."), 0o644))
	return &config.Config{
		LLMModel:         "gpt-4o-mini",
		SystemPromptPath: promptPath,
		IncidentsDir:     filepath.Join(dir, "incidents"),
	}
}

func testAlert() *models.Alert {
	return &models.Alert{
		IncidentID:  "PX123",
		ServiceName: "payments",
		Severity:    models.SeverityCritical,
		Priority:    models.PriorityP1,
		Description: "Latency above SLO",
	}
}

func TestRun_ToolCallThenFinalText(t *testing.T) {
	cfg := runnerConfig(t)
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "write_incident_report",
			`{"filename": "report.md", "content": "# Report"}`, 100, 20),
		textResponse("Resolved: flushed the cache.", 150, 30),
	}}

	runner := NewRunner(cfg, chat, nil, runbook.NewService())
	result, err := runner.Run(context.Background(), testAlert(), "trace-1")
	require.NoError(t, err)

	assert.Equal(t, "Resolved: flushed the cache.", result.Summary)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, 250, result.InputTokens)
	assert.Equal(t, 50, result.OutputTokens)
	assert.Equal(t, []string{"gpt-4o-mini"}, result.ModelsUsed)
	assert.Equal(t, []string{"write_incident_report"}, result.ToolCallsMade)

	// The second request carries the assistant tool-call message and the
	// tool result keyed by call id.
	require.Len(t, chat.lastMessages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, chat.lastMessages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, chat.lastMessages[1].Role)
	assert.Len(t, chat.lastMessages[2].ToolCalls, 1)
	assert.Equal(t, openai.ChatMessageRoleTool, chat.lastMessages[3].Role)
	assert.Equal(t, "call-1", chat.lastMessages[3].ToolCallID)
	assert.Contains(t, chat.lastMessages[3].Content, "written")

	// The report landed in the incidents dir.
	content, err := os.ReadFile(filepath.Join(cfg.IncidentsDir, "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Report", string(content))
}

func TestRun_ModelEscalation(t *testing.T) {
	cfg := runnerConfig(t)
	cfg.LLMEscalationModel = "gpt-4o"
	cfg.LLMEscalationTurn = 1
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "query_cloud_logs",
			`{"service_name": "payments", "query": "severity>=ERROR"}`, 10, 5),
		toolCallResponse("call-2", "query_cloud_logs",
			`{"service_name": "payments", "query": "severity>=ERROR"}`, 10, 5),
		textResponse("Escalated to senior model.", 10, 5),
	}}

	runner := NewRunner(cfg, chat, nil, runbook.NewService())
	result, err := runner.Run(context.Background(), testAlert(), "trace-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o", "gpt-4o"}, chat.modelsSeen)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, result.ModelsUsed)
}

func TestRun_TokenBudgetGate(t *testing.T) {
	cfg := runnerConfig(t)
	cfg.MaxTokensPerIncident = 100
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "query_cloud_logs",
			`{"service_name": "payments", "query": "q"}`, 80, 40),
	}}

	runner := NewRunner(cfg, chat, nil, runbook.NewService())
	result, err := runner.Run(context.Background(), testAlert(), "trace-1")
	require.NoError(t, err)

	assert.Equal(t, 1, chat.calls)
	assert.Equal(t, "Token budget exceeded (120/100). Escalating after 2 turns.", result.Summary)
}

func TestRun_MaxTurns(t *testing.T) {
	cfg := runnerConfig(t)
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "query_cloud_logs",
			`{"service_name": "payments", "query": "q"}`, 10, 5),
	}}

	runner := NewRunner(cfg, chat, nil, runbook.NewService())
	result, err := runner.Run(context.Background(), testAlert(), "trace-1")
	require.NoError(t, err)

	assert.Equal(t, MaxTurns, chat.calls)
	assert.Equal(t, MaxTurns, result.Turns)
	assert.Equal(t, "Max turns reached (20). Escalating.", result.Summary)
}

func TestRun_EmptyChoices(t *testing.T) {
	cfg := runnerConfig(t)
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		{Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 0}},
	}}

	runner := NewRunner(cfg, chat, nil, runbook.NewService())
	result, err := runner.Run(context.Background(), testAlert(), "trace-1")
	require.NoError(t, err)

	assert.Equal(t, "Agent produced empty response.", result.Summary)
	assert.Equal(t, 1, result.Turns)
}

func TestRun_ProviderError(t *testing.T) {
	cfg := runnerConfig(t)
	chat := &scriptedChat{err: fmt.Errorf("upstream 500")}

	runner := NewRunner(cfg, chat, nil, runbook.NewService())
	_, err := runner.Run(context.Background(), testAlert(), "trace-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent turn 1")
}

func TestRun_MissingSystemPrompt(t *testing.T) {
	cfg := runnerConfig(t)
	cfg.SystemPromptPath = filepath.Join(t.TempDir(), "missing.md")

	runner := NewRunner(cfg, &scriptedChat{}, nil, runbook.NewService())
	_, err := runner.Run(context.Background(), testAlert(), "trace-1")
	assert.Error(t, err)
}
