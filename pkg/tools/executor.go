package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"

	"github.com/codeready-toolchain/sre-agent/pkg/masking"
	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/pagerduty"
	"github.com/codeready-toolchain/sre-agent/pkg/telemetry"
)

// SMTPSettings carries the optional email delivery configuration.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Options configures an Executor for one agent run.
type Options struct {
	// Services maps registered service names to base URLs.
	Services map[string]string

	// OpsAuthToken authorizes calls to /ops/* endpoints on services.
	OpsAuthToken string

	// IncidentsDir receives written incident reports.
	IncidentsDir string

	// TraceID correlates every outbound call with the agent run.
	TraceID string

	ScalingLimits map[string]models.ScalingLimit
	SMTP          SMTPSettings
	PagerDuty     *pagerduty.Client
	Scrubber      *masking.Scrubber
}

// Executor runs tool calls requested by the agent. Every result is a JSON
// string; failures come back as {"error": "..."} so the model can react
// instead of the run aborting.
type Executor struct {
	services      map[string]string
	opsAuthToken  string
	incidentsDir  string
	traceID       string
	scalingLimits map[string]models.ScalingLimit
	smtp          SMTPSettings
	pd            *pagerduty.Client
	scrubber      *masking.Scrubber

	httpClient *http.Client
	schemas    map[string]*jsonschema.Schema
	sendMail   func(SMTPSettings, string, string) error
	logger     *slog.Logger
}

// NewExecutor creates an Executor. Schema compilation failure is a
// programming error surfaced at startup.
func NewExecutor(opts Options) (*Executor, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	scrubber := opts.Scrubber
	if scrubber == nil {
		scrubber = masking.NewScrubber()
	}
	return &Executor{
		services:      opts.Services,
		opsAuthToken:  opts.OpsAuthToken,
		incidentsDir:  opts.IncidentsDir,
		traceID:       opts.TraceID,
		scalingLimits: opts.ScalingLimits,
		smtp:          opts.SMTP,
		pd:            opts.PagerDuty,
		scrubber:      scrubber,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		schemas:       schemas,
		sendMail:      sendViaSMTP,
		logger:        slog.With("logger", "tools", "trace_id", opts.TraceID),
	}, nil
}

// OverrideHTTPClientForTest replaces the internal HTTP client.
// For testing only.
func (e *Executor) OverrideHTTPClientForTest(httpClient *http.Client) {
	e.httpClient = httpClient
}

// OverrideSendMailForTest replaces the SMTP delivery function.
// For testing only.
func (e *Executor) OverrideSendMailForTest(fn func(SMTPSettings, string, string) error) {
	e.sendMail = fn
}

// Execute runs one tool call. rawArgs is the model-provided JSON argument
// string; malformed JSON degrades to an empty object so schema validation
// produces the actionable error message.
func (e *Executor) Execute(ctx context.Context, name, rawArgs string) string {
	e.logger.Info("Executing tool", "tool", name)

	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil || args == nil {
		args = map[string]any{}
	}

	schema, ok := e.schemas[name]
	if !ok {
		return errEnvelope(fmt.Sprintf("Unknown tool: %s", name))
	}
	if err := schema.Validate(args); err != nil {
		return errEnvelope(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	var result string
	switch name {
	case "call_ops_endpoint":
		result = e.callOpsEndpoint(ctx, args)
	case "query_cloud_logs":
		result = e.queryCloudLogs(ctx, args)
	case "query_cloud_metrics":
		result = e.queryCloudMetrics(ctx, args)
	case "escalate_pagerduty":
		result = e.escalatePagerDuty(ctx, args)
	case "acknowledge_alert":
		result = e.acknowledgeAlert(ctx, args)
	case "create_pagerduty_incident":
		result = e.createPagerDutyIncident(ctx, args)
	case "write_incident_report":
		result = e.writeIncidentReport(ctx, args)
	case "email_incident_report":
		result = e.emailIncidentReport(ctx, args)
	case "scale_service":
		result = e.scaleService(ctx, args)
	default:
		result = errEnvelope(fmt.Sprintf("Unknown tool: %s", name))
	}

	return e.scrubber.Scrub(result)
}

func (e *Executor) callOpsEndpoint(ctx context.Context, args map[string]any) string {
	serviceName := stringArg(args, "service_name")
	endpoint := stringArg(args, "endpoint")
	method := stringArg(args, "method")

	if serviceName == "" || endpoint == "" {
		return errEnvelope("service_name and endpoint are required")
	}
	if !strings.HasPrefix(endpoint, "/ops/") {
		return errEnvelope(fmt.Sprintf("Endpoint must start with /ops/: %s", endpoint))
	}
	if method != http.MethodGet && method != http.MethodPost {
		return errEnvelope(fmt.Sprintf("Method must be GET or POST: %s", method))
	}

	baseURL, ok := e.services[serviceName]
	if !ok {
		return errEnvelope(fmt.Sprintf("Unknown service: %s", serviceName))
	}
	url := strings.TrimRight(baseURL, "/") + endpoint

	var reqBody io.Reader
	if method == http.MethodPost {
		body, _ := args["body"].(map[string]any)
		if body == nil {
			body = map[string]any{}
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return errEnvelope(fmt.Sprintf("encoding request body: %v", err))
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return errEnvelope(err.Error())
	}
	e.setBaseHeaders(req)
	if e.opsAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.opsAuthToken)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	spanCtx, span := telemetry.Tracer().Start(ctx, "sre_agent.tool.call_ops_endpoint")
	span.SetAttributes(
		attribute.String("ops.service", serviceName),
		attribute.String("ops.endpoint", endpoint),
		attribute.String("ops.method", method),
	)
	resp, err := e.httpClient.Do(req.WithContext(spanCtx))
	span.End()
	if err != nil {
		return errEnvelope(err.Error())
	}
	defer resp.Body.Close()

	return envelope(map[string]any{
		"status_code": resp.StatusCode,
		"body":        decodeResponseBody(resp),
	})
}

func (e *Executor) queryCloudLogs(_ context.Context, _ map[string]any) string {
	// TODO: wire the Cloud Logging API client for the deployment's provider.
	return errEnvelope("Cloud log querying not yet implemented. " +
		"Implement queryCloudLogs for your cloud provider.")
}

func (e *Executor) queryCloudMetrics(_ context.Context, _ map[string]any) string {
	// TODO: wire the Cloud Monitoring API client for the deployment's provider.
	return errEnvelope("Cloud metrics querying not yet implemented. " +
		"Implement queryCloudMetrics for your cloud provider.")
}

// escalatePagerDuty annotates and escalates an existing incident. For
// GCP-sourced alerts no incident exists yet, so a new one is created
// through the Events API instead.
func (e *Executor) escalatePagerDuty(ctx context.Context, args map[string]any) string {
	incidentID := stringArg(args, "incident_id")
	message := stringArg(args, "escalation_message")
	if incidentID == "" || message == "" {
		return errEnvelope("incident_id and escalation_message are required")
	}

	if strings.HasPrefix(incidentID, models.GCPIncidentPrefix) {
		summary := message
		if len(summary) > 200 {
			summary = summary[:200]
		}
		return e.createPagerDutyIncident(ctx, map[string]any{
			"summary":  "[SRE Agent Escalation] " + summary,
			"severity": "critical",
			"details":  message,
		})
	}

	noteStatus, err := e.pd.AddNote(ctx, incidentID, "[SRE Agent Escalation]\n\n"+message, e.traceID)
	if err != nil {
		return errEnvelope(err.Error())
	}
	if _, err := e.pd.SetEscalationLevel(ctx, incidentID, 2, e.traceID); err != nil {
		return errEnvelope(err.Error())
	}

	e.logger.Info("Escalated", "incident_id", incidentID)
	return envelope(map[string]any{
		"status":      "escalated",
		"incident_id": incidentID,
		"note_status": noteStatus,
	})
}

// acknowledgeAlert resolves an incident without paging anyone. GCP-sourced
// alerts have no incident to acknowledge; the resolution is logged only.
func (e *Executor) acknowledgeAlert(ctx context.Context, args map[string]any) string {
	incidentID := stringArg(args, "incident_id")
	note := stringArg(args, "resolution_note")
	if incidentID == "" || note == "" {
		return errEnvelope("incident_id and resolution_note are required")
	}

	if strings.HasPrefix(incidentID, models.GCPIncidentPrefix) {
		logged := note
		if len(logged) > 200 {
			logged = logged[:200]
		}
		e.logger.Info("GCP alert resolved by agent (no PagerDuty incident)",
			"incident_id", incidentID, "note", logged)
		return envelope(map[string]any{
			"status":      "resolved_by_agent",
			"incident_id": incidentID,
			"message":     "GCP-sourced alert resolved without paging humans.",
		})
	}

	if _, err := e.pd.AddNote(ctx, incidentID, "[SRE Agent Resolution]\n\n"+note, e.traceID); err != nil {
		return errEnvelope(err.Error())
	}
	status, err := e.pd.Acknowledge(ctx, incidentID, e.traceID)
	if err != nil {
		return errEnvelope(err.Error())
	}

	e.logger.Info("Acknowledged", "incident_id", incidentID)
	return envelope(map[string]any{
		"status":          "acknowledged",
		"incident_id":     incidentID,
		"response_status": status,
	})
}

func (e *Executor) createPagerDutyIncident(ctx context.Context, args map[string]any) string {
	summary := stringArg(args, "summary")
	severity := stringArg(args, "severity")
	details := stringArg(args, "details")

	if summary == "" {
		return errEnvelope("summary is required")
	}
	if severity == "" {
		severity = "critical"
	}
	if !e.pd.RoutingKeyConfigured() {
		return errEnvelope("PAGERDUTY_ROUTING_KEY not configured. Cannot create PagerDuty incidents.")
	}

	result, err := e.pd.Trigger(ctx, summary, severity, details, e.traceID)
	if err != nil {
		return errEnvelope(err.Error())
	}
	return envelope(map[string]any{
		"status":    "incident_created",
		"dedup_key": result.DedupKey,
		"message":   result.Message,
	})
}

func (e *Executor) writeIncidentReport(_ context.Context, args map[string]any) string {
	filename := stringArg(args, "filename")
	content := stringArg(args, "content")
	if filename == "" || content == "" {
		return errEnvelope("filename and content are required")
	}

	// Only a bare basename is accepted.
	if safe := filepath.Base(filename); safe != filename || filename == "." || filename == ".." {
		return errEnvelope(fmt.Sprintf("Invalid filename (path traversal rejected): %s", filename))
	}

	if err := os.MkdirAll(e.incidentsDir, 0o755); err != nil {
		return errEnvelope(err.Error())
	}
	path := filepath.Join(e.incidentsDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errEnvelope(err.Error())
	}

	// Log the full report so it survives in log storage even without
	// SMTP or a persistent disk.
	e.logger.Info("Incident report written", "path", path)
	e.logger.Info("INCIDENT_REPORT", "filename", filename, "content", content)

	return envelope(map[string]any{
		"status": "written",
		"path":   path,
	})
}

func (e *Executor) emailIncidentReport(_ context.Context, args map[string]any) string {
	subject := stringArg(args, "subject")
	content := stringArg(args, "content")
	if subject == "" || content == "" {
		return errEnvelope("subject and content are required")
	}
	if e.smtp.Host == "" || e.smtp.To == "" {
		return errEnvelope("SMTP not configured. Set SMTP_HOST and SMTP_TO environment variables.")
	}

	if err := e.sendMail(e.smtp, subject, content); err != nil {
		e.logger.Error("Failed to send incident report email", "error", err)
		return errEnvelope(fmt.Sprintf("Email send failed: %v", err))
	}

	e.logger.Info("Incident report emailed", "to", e.smtp.To, "subject", subject)
	return envelope(map[string]any{
		"status":  "sent",
		"to":      e.smtp.To,
		"subject": subject,
	})
}

func (e *Executor) scaleService(ctx context.Context, args map[string]any) string {
	serviceName := stringArg(args, "service_name")
	target := intArg(args, "target_instances")
	reason := stringArg(args, "reason")

	if serviceName == "" || target == 0 || reason == "" {
		return errEnvelope("service_name, target_instances, and reason are required")
	}

	scaling, ok := e.scalingLimits[serviceName]
	if !ok {
		return errEnvelope(fmt.Sprintf("Service '%s' does not have scaling limits configured. "+
			"Cannot scale. Escalate to a human for capacity changes.", serviceName))
	}
	if target < scaling.MinInstances {
		return errEnvelope(fmt.Sprintf("Target %d is below minimum (%d) for service '%s'.",
			target, scaling.MinInstances, serviceName))
	}
	if target > scaling.MaxInstances {
		return errEnvelope(fmt.Sprintf("Target %d exceeds maximum (%d) for service '%s'. "+
			"Escalate for capacity planning.", target, scaling.MaxInstances, serviceName))
	}

	e.logger.Info("Scaling service",
		"service", serviceName, "target", target, "mode", scaling.Mode, "reason", reason)

	switch scaling.Mode {
	case models.ScalingModeApplication:
		baseURL, ok := e.services[serviceName]
		if !ok {
			return errEnvelope(fmt.Sprintf("Service '%s' not in service registry", serviceName))
		}
		url := strings.TrimRight(baseURL, "/") + "/ops/scale"

		payload, err := json.Marshal(map[string]any{
			"target_instances": target,
			"reason":           reason,
		})
		if err != nil {
			return errEnvelope(err.Error())
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return errEnvelope(err.Error())
		}
		e.setBaseHeaders(req)
		if e.opsAuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+e.opsAuthToken)
		}
		req.Header.Set("Content-Type", "application/json")

		spanCtx, span := telemetry.Tracer().Start(ctx, "sre_agent.tool.scale_service")
		span.SetAttributes(
			attribute.String("scale.service", serviceName),
			attribute.Int("scale.target", target),
			attribute.String("scale.mode", string(models.ScalingModeApplication)),
		)
		resp, err := e.httpClient.Do(req.WithContext(spanCtx))
		span.End()
		if err != nil {
			return errEnvelope(err.Error())
		}
		defer resp.Body.Close()

		return envelope(map[string]any{
			"status":           "scaling_requested",
			"mode":             "application",
			"service":          serviceName,
			"target_instances": target,
			"response_status":  resp.StatusCode,
			"response_body":    decodeResponseBody(resp),
		})

	case models.ScalingModeCloudNative:
		// TODO: wire the provider replica API (Cloud Run, GKE, ECS, EKS).
		return errEnvelope("Cloud-native scaling not yet implemented. " +
			"Implement scaleService cloud_native mode for your cloud provider.")
	}

	return errEnvelope(fmt.Sprintf("Unknown scaling mode: %s", scaling.Mode))
}

// setBaseHeaders attaches the trace id for request correlation.
func (e *Executor) setBaseHeaders(req *http.Request) {
	if e.traceID != "" {
		req.Header.Set("X-Trace-Id", e.traceID)
	}
}

// decodeResponseBody returns parsed JSON when the response declares it,
// plain text otherwise.
func decodeResponseBody(resp *http.Response) any {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			return decoded
		}
	}
	return string(body)
}

func envelope(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error": "failed to encode tool result"}`
	}
	return string(b)
}

func errEnvelope(msg string) string {
	return envelope(map[string]any{"error": msg})
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
