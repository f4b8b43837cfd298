package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/codeready-toolchain/sre-agent/pkg/config"
	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/pagerduty"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
	"github.com/codeready-toolchain/sre-agent/pkg/telemetry"
)

// Processor drives one admitted alert through the full lifecycle: budget
// pre-check, agent run, accounting, and the cost footer on the report.
// Its Process method is what the intake pipeline dispatches.
type Processor struct {
	cfg    *config.Config
	runner *Runner
	st     *state.RuntimeState
	ledger *state.Ledger
	pd     *pagerduty.Client
	logger *slog.Logger
}

// NewProcessor wires a Processor.
func NewProcessor(cfg *config.Config, runner *Runner, st *state.RuntimeState, ledger *state.Ledger, pd *pagerduty.Client) *Processor {
	return &Processor{
		cfg:    cfg,
		runner: runner,
		st:     st,
		ledger: ledger,
		pd:     pd,
		logger: slog.With("logger", "processor"),
	}
}

// Process runs the agent for one alert. All failure handling happens here;
// the intake pipeline only needs to know when the run is over.
func (p *Processor) Process(ctx context.Context, alert *models.Alert, traceID string) {
	p.ledger.Track(alert, traceID, state.StatusProcessing)

	ctx, span := telemetry.Tracer().Start(ctx, "sre_agent.process_alert")
	span.SetAttributes(
		attribute.String("incident.id", alert.IncidentID),
		attribute.String("incident.service", alert.ServiceName),
		attribute.String("incident.severity", string(alert.Severity)),
	)
	defer span.End()

	// The hourly budget is checked before spending anything. An exhausted
	// budget escalates straight to a human without diagnosis.
	if p.hourlyBudgetExhausted() {
		p.logger.Warn("Hourly token budget exhausted, escalating without diagnosis",
			"incident_id", alert.IncidentID, "trace_id", traceID)
		p.st.RecordRunSkipped()
		p.st.ClearIncidentActive(alert.IncidentID)
		p.ledger.SetStatus(alert.IncidentID, state.StatusEscalated)
		p.escalateBudgetExhausted(ctx, alert, traceID, "hourly")
		return
	}

	start := time.Now()
	result, err := p.runner.Run(ctx, alert, traceID)
	duration := time.Since(start)

	if err != nil {
		p.st.RecordRunFailed(duration)
		p.st.ClearIncidentActive(alert.IncidentID)
		p.ledger.SetStatus(alert.IncidentID, state.StatusFailed)
		p.st.RecordError(state.ErrorRecord{
			Type:       "agent_failure",
			Message:    fmt.Sprintf("Agent failed for incident %s", alert.IncidentID),
			IncidentID: alert.IncidentID,
			TraceID:    traceID,
		})
		p.logger.Error("Agent failed",
			"incident_id", alert.IncidentID, "trace_id", traceID, "error", err)
		return
	}

	p.st.RecordRunCompleted(duration, result.InputTokens, result.OutputTokens, result.EstimatedCostUSD)
	p.st.ClearIncidentActive(alert.IncidentID)
	p.ledger.SetStatus(alert.IncidentID, state.StatusDone)

	modelsUsed := "unknown"
	if len(result.ModelsUsed) > 0 {
		modelsUsed = strings.Join(result.ModelsUsed, "+")
	}
	summary := result.Summary
	if len(summary) > 200 {
		summary = summary[:200]
	}
	p.logger.Info("Agent completed",
		"incident_id", alert.IncidentID,
		"duration_seconds", fmt.Sprintf("%.1f", duration.Seconds()),
		"turns", result.Turns,
		"tokens", result.InputTokens+result.OutputTokens,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"cost_usd", fmt.Sprintf("%.4f", result.EstimatedCostUSD),
		"models", modelsUsed,
		"trace_id", traceID,
		"summary", summary)

	p.appendCostToReport(alert.IncidentID, result, duration, modelsUsed)
}

func (p *Processor) hourlyBudgetExhausted() bool {
	if p.cfg.MaxTokensPerHour <= 0 {
		return false
	}
	return p.st.TokensLastHour() >= p.cfg.MaxTokensPerHour
}

// escalateBudgetExhausted pages a human directly: a note on the incident
// plus an escalation level bump. Failures are logged, not retried; the
// original alert still exists in PagerDuty.
func (p *Processor) escalateBudgetExhausted(ctx context.Context, alert *models.Alert, traceID, budgetType string) {
	tokensUsed := p.st.TokensLastHour()
	budget := p.cfg.MaxTokensPerHour

	message := fmt.Sprintf(
		"[SRE Agent — %s Token Budget Exhausted]\n\n"+
			"The SRE agent's %s token budget has been exhausted (%d/%d tokens). "+
			"This alert was NOT diagnosed by the agent. A human must investigate.\n\n"+
			"Service: %s\nSeverity: %s\nDescription: %s\nIncident ID: %s",
		titleCase(budgetType), budgetType, tokensUsed, budget,
		alert.ServiceName, alert.Severity, alert.Description, alert.IncidentID)

	if _, err := p.pd.AddNote(ctx, alert.IncidentID, message, traceID); err != nil {
		p.logger.Error("Budget escalation note failed",
			"incident_id", alert.IncidentID, "error", err, "trace_id", traceID)
	}
	if _, err := p.pd.SetEscalationLevel(ctx, alert.IncidentID, 2, traceID); err != nil {
		p.logger.Error("Budget escalation failed",
			"incident_id", alert.IncidentID, "error", err, "trace_id", traceID)
	}

	p.logger.Warn("Budget-exhausted escalation",
		"incident_id", alert.IncidentID,
		"budget_type", budgetType,
		"tokens_used", tokensUsed,
		"budget", budget,
		"trace_id", traceID)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// appendCostToReport appends an LLM usage footer to the newest incident
// report. The agent writes the report mid-run, before the final cost is
// known, so the footer is attached after the fact.
func (p *Processor) appendCostToReport(incidentID string, result *Result, duration time.Duration, modelsUsed string) {
	entries, err := os.ReadDir(p.cfg.IncidentsDir)
	if err != nil {
		return
	}

	type report struct {
		path    string
		modTime time.Time
	}
	var reports []report
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, report{
			path:    filepath.Join(p.cfg.IncidentsDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	if len(reports) == 0 {
		return
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].modTime.After(reports[j].modTime) })
	latest := reports[0]

	totalTokens := result.InputTokens + result.OutputTokens
	footer := fmt.Sprintf(
		"\n\n---\n## LLM Usage\n\n"+
			"| Metric | Value |\n|---|---|\n"+
			"| Models | %s |\n| Turns | %d |\n"+
			"| Input tokens | %d |\n| Output tokens | %d |\n| Total tokens | %d |\n"+
			"| Estimated cost | $%.4f |\n| Duration | %.1fs |\n",
		modelsUsed, result.Turns,
		result.InputTokens, result.OutputTokens, totalTokens,
		result.EstimatedCostUSD, duration.Seconds())

	f, err := os.OpenFile(latest.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		p.logger.Warn("Failed to append cost footer", "path", latest.path, "error", err)
		return
	}
	_, writeErr := f.WriteString(footer)
	f.Close()
	if writeErr != nil {
		p.logger.Warn("Failed to append cost footer", "path", latest.path, "error", writeErr)
		return
	}

	// Re-log the complete report so log storage has the version with
	// cost data attached.
	full, err := os.ReadFile(latest.path)
	if err != nil {
		return
	}
	p.logger.Info("INCIDENT_REPORT_FINAL",
		"filename", filepath.Base(latest.path),
		"incident_id", incidentID,
		"tokens", totalTokens,
		"cost_usd", fmt.Sprintf("%.4f", result.EstimatedCostUSD),
		"models", modelsUsed,
		"content", string(full))
}
