// Package agent runs the bounded diagnostic loop for one alert: it sends
// the alert to the model, executes the tool calls the model requests, and
// feeds results back until the model produces a final text summary or a
// safety limit trips.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/codeready-toolchain/sre-agent/pkg/config"
	"github.com/codeready-toolchain/sre-agent/pkg/masking"
	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/pagerduty"
	"github.com/codeready-toolchain/sre-agent/pkg/runbook"
	"github.com/codeready-toolchain/sre-agent/pkg/telemetry"
	"github.com/codeready-toolchain/sre-agent/pkg/tools"
)

// Safety limits on a single run.
const (
	MaxTurns    = 20
	MaxDuration = 300 * time.Second
)

// ChatClient is the slice of the LLM client the runner needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []openai.ChatCompletionMessage, tools []openai.Tool) (*openai.ChatCompletionResponse, error)
}

// Result captures what one run produced and consumed.
type Result struct {
	Summary          string
	Turns            int
	InputTokens      int
	OutputTokens     int
	EstimatedCostUSD float64
	ModelsUsed       []string
	ToolCallsMade    []string
}

// Runner executes agent runs. One Runner serves the whole process; the
// per-run state (conversation, tool executor) is local to Run.
type Runner struct {
	cfg      *config.Config
	chat     ChatClient
	pd       *pagerduty.Client
	runbooks *runbook.Service
	scrubber *masking.Scrubber
	logger   *slog.Logger
}

// NewRunner wires a Runner from its dependencies.
func NewRunner(cfg *config.Config, chat ChatClient, pd *pagerduty.Client, runbooks *runbook.Service) *Runner {
	return &Runner{
		cfg:      cfg,
		chat:     chat,
		pd:       pd,
		runbooks: runbooks,
		scrubber: masking.NewScrubber(),
		logger:   slog.With("logger", "agent"),
	}
}

// Run executes the diagnostic loop for one alert. The returned Result is
// valid whenever err is nil, including the safety-limit terminations; err
// is reserved for unrecoverable failures such as a broken provider.
func (r *Runner) Run(ctx context.Context, alert *models.Alert, traceID string) (*Result, error) {
	result := &Result{}
	start := time.Now()

	systemPrompt, err := r.cfg.LoadSystemPrompt()
	if err != nil {
		return nil, err
	}

	// Runbook fetch fails open: diagnosis proceeds without it.
	runbookContent := ""
	if alert.RunbookURL != "" {
		content, err := r.runbooks.Resolve(ctx, alert.RunbookURL)
		if err != nil {
			r.logger.Warn("Runbook fetch failed, continuing without it",
				"url", alert.RunbookURL, "error", err, "trace_id", traceID)
		} else {
			runbookContent = content
		}
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: formatAlertMessage(alert, runbookContent)},
	}
	toolDefs := tools.Definitions()

	services := make(map[string]string, len(r.cfg.Services))
	for _, svc := range r.cfg.Services {
		services[svc.Name] = svc.BaseURL
	}
	executor, err := tools.NewExecutor(tools.Options{
		Services:      services,
		OpsAuthToken:  r.cfg.OpsAuthToken,
		IncidentsDir:  r.cfg.IncidentsDir,
		TraceID:       traceID,
		ScalingLimits: r.cfg.ScalingLimits,
		SMTP: tools.SMTPSettings{
			Host:     r.cfg.SMTPHost,
			Port:     r.cfg.SMTPPort,
			Username: r.cfg.SMTPUsername,
			Password: r.cfg.SMTPPassword,
			From:     r.cfg.SMTPFrom,
			To:       r.cfg.SMTPTo,
		},
		PagerDuty: r.pd,
		Scrubber:  r.scrubber,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tool executor: %w", err)
	}

	// Two-phase model escalation: start with the fast model, upgrade
	// after the configured number of turns.
	currentModel := r.cfg.LLMModel
	escalated := false

	r.logger.Info("Agent starting",
		"incident_id", alert.IncidentID,
		"service", alert.ServiceName,
		"model", currentModel,
		"escalation_model", orNone(r.cfg.LLMEscalationModel),
		"escalation_turn", r.cfg.LLMEscalationTurn,
		"trace_id", traceID)

	for turn := 0; turn < MaxTurns; turn++ {
		result.Turns = turn + 1

		if !escalated && r.cfg.LLMEscalationModel != "" && turn >= r.cfg.LLMEscalationTurn {
			currentModel = r.cfg.LLMEscalationModel
			escalated = true
			r.logger.Info("Model escalated",
				"from", r.cfg.LLMModel, "to", currentModel, "turn", turn+1,
				"incident_id", alert.IncidentID, "trace_id", traceID)
		}

		elapsed := time.Since(start)
		if elapsed > MaxDuration {
			r.logger.Warn("Agent duration limit reached, escalating",
				"elapsed_seconds", int(elapsed.Seconds()),
				"limit_seconds", int(MaxDuration.Seconds()),
				"incident_id", alert.IncidentID, "trace_id", traceID)
			result.Summary = fmt.Sprintf("Duration limit exceeded (%.0fs). Escalating after %d turns.",
				elapsed.Seconds(), result.Turns)
			return result, nil
		}

		tokensUsed := result.InputTokens + result.OutputTokens
		if r.cfg.MaxTokensPerIncident > 0 && tokensUsed >= r.cfg.MaxTokensPerIncident {
			r.logger.Warn("Per-incident token budget exceeded, escalating",
				"tokens_used", tokensUsed,
				"budget", r.cfg.MaxTokensPerIncident,
				"incident_id", alert.IncidentID, "trace_id", traceID)
			result.Summary = fmt.Sprintf("Token budget exceeded (%d/%d). Escalating after %d turns.",
				tokensUsed, r.cfg.MaxTokensPerIncident, result.Turns)
			return result, nil
		}

		turnCtx, span := telemetry.Tracer().Start(ctx, "sre_agent.agent.turn")
		span.SetAttributes(
			attribute.Int("agent.turn", turn+1),
			attribute.String("agent.model", currentModel),
			attribute.Bool("agent.model_escalated", escalated),
			attribute.String("incident.id", alert.IncidentID),
		)
		resp, err := r.chat.Chat(turnCtx, currentModel, messages, toolDefs)
		span.End()
		if err != nil {
			return nil, fmt.Errorf("agent turn %d: %w", turn+1, err)
		}

		turnIn := resp.Usage.PromptTokens
		turnOut := resp.Usage.CompletionTokens
		result.InputTokens += turnIn
		result.OutputTokens += turnOut
		result.EstimatedCostUSD += EstimateCost(currentModel, turnIn, turnOut)
		if !contains(result.ModelsUsed, currentModel) {
			result.ModelsUsed = append(result.ModelsUsed, currentModel)
		}

		if len(resp.Choices) == 0 {
			result.Summary = "Agent produced empty response."
			r.logger.Warn("Agent empty response", "turn", turn+1,
				"incident_id", alert.IncidentID, "trace_id", traceID)
			return result, nil
		}
		message := resp.Choices[0].Message

		switch {
		case len(message.ToolCalls) > 0:
			messages = append(messages, message)

			// Tool calls run sequentially in request order.
			for _, call := range message.ToolCalls {
				result.ToolCallsMade = append(result.ToolCallsMade, call.Function.Name)

				execCtx, execSpan := telemetry.Tracer().Start(ctx, "sre_agent.tool.execute")
				execSpan.SetAttributes(
					attribute.String("tool.name", call.Function.Name),
					attribute.String("incident.id", alert.IncidentID),
				)
				toolResult := executor.Execute(execCtx, call.Function.Name, call.Function.Arguments)
				execSpan.End()

				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: call.ID,
					Content:    toolResult,
				})

				r.logger.Info("Tool executed", "tool", call.Function.Name, "turn", turn+1,
					"incident_id", alert.IncidentID, "trace_id", traceID)
			}

		case message.Content != "":
			result.Summary = message.Content
			r.logger.Info("Agent finished", "turns", result.Turns,
				"incident_id", alert.IncidentID, "trace_id", traceID)
			return result, nil

		default:
			result.Summary = "Agent produced empty response."
			r.logger.Warn("Agent empty response", "turn", turn+1,
				"incident_id", alert.IncidentID, "trace_id", traceID)
			return result, nil
		}
	}

	result.Summary = fmt.Sprintf("Max turns reached (%d). Escalating.", MaxTurns)
	r.logger.Warn("Agent max turns", "incident_id", alert.IncidentID, "trace_id", traceID)
	return result, nil
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
