// Package tools defines the fixed tool set the agent can request during
// the diagnostic loop and the executor that runs those requests.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	openai "github.com/sashabaranov/go-openai"
)

// toolSpec pairs a tool's wire definition with its input schema.
type toolSpec struct {
	Name        string
	Description string
	Schema      string
}

var toolSpecs = []toolSpec{
	{
		Name: "call_ops_endpoint",
		Description: "Call an /ops/* endpoint on a monitored service. " +
			"Use GET for diagnostic endpoints (status, health, metrics, config, " +
			"dependencies, errors). Use POST for remediation endpoints (drain, " +
			"cache/flush, circuits, loglevel). All remediation actions are " +
			"idempotent and non-destructive.",
		Schema: `{
			"type": "object",
			"properties": {
				"service_name": {
					"type": "string",
					"description": "Name of the service from the service registry."
				},
				"endpoint": {
					"type": "string",
					"description": "The /ops/* endpoint path. Examples: /ops/status, /ops/health, /ops/metrics, /ops/errors, /ops/dependencies, /ops/config, /ops/drain, /ops/cache/flush, /ops/circuits, /ops/loglevel"
				},
				"method": {
					"type": "string",
					"enum": ["GET", "POST"],
					"description": "HTTP method. GET for diagnostics, POST for remediation."
				},
				"body": {
					"type": "object",
					"description": "Optional JSON body for POST requests."
				}
			},
			"required": ["service_name", "endpoint", "method"]
		}`,
	},
	{
		Name: "query_cloud_logs",
		Description: "Query cloud provider logs for a specific service. Read-only. " +
			"Use this to search for error patterns, trace requests, or " +
			"correlate events across services.",
		Schema: `{
			"type": "object",
			"properties": {
				"service_name": {
					"type": "string",
					"description": "Name of the service to query logs for."
				},
				"query": {
					"type": "string",
					"description": "Log query string. Format depends on cloud provider: GCP uses Cloud Logging filter syntax, AWS uses CloudWatch Logs Insights syntax."
				},
				"time_range_minutes": {
					"type": "integer",
					"description": "How far back to search, in minutes. Default 30.",
					"default": 30
				}
			},
			"required": ["service_name", "query"]
		}`,
	},
	{
		Name: "query_cloud_metrics",
		Description: "Query cloud provider metrics for a managed service or resource. " +
			"Read-only. Use this to check CPU, memory, connection counts, " +
			"replication lag, queue depth, or other infrastructure metrics.",
		Schema: `{
			"type": "object",
			"properties": {
				"resource": {
					"type": "string",
					"description": "The cloud resource to query. Examples: cloud-sql/my-instance, gke/my-cluster, rds/my-instance, elasticache/my-cluster"
				},
				"metric": {
					"type": "string",
					"description": "The metric name. Examples: cpu_utilization, memory_utilization, connection_count, replication_lag_seconds, queue_depth"
				},
				"time_range_minutes": {
					"type": "integer",
					"description": "How far back to query, in minutes. Default 15.",
					"default": 15
				}
			},
			"required": ["resource", "metric"]
		}`,
	},
	{
		Name: "escalate_pagerduty",
		Description: "Escalate an incident to a human responder via PagerDuty. " +
			"Use this when the agent cannot confidently resolve the issue. " +
			"Include the full diagnostic summary and recommended next action.",
		Schema: `{
			"type": "object",
			"properties": {
				"incident_id": {
					"type": "string",
					"description": "The PagerDuty incident ID to escalate."
				},
				"escalation_message": {
					"type": "string",
					"description": "Summary for the human responder: what was checked, what was found, what was tried, and recommended next action."
				}
			},
			"required": ["incident_id", "escalation_message"]
		}`,
	},
	{
		Name: "acknowledge_alert",
		Description: "Acknowledge a PagerDuty alert. Use this when the issue has been " +
			"resolved by the agent or has self-resolved.",
		Schema: `{
			"type": "object",
			"properties": {
				"incident_id": {
					"type": "string",
					"description": "The PagerDuty incident ID to acknowledge."
				},
				"resolution_note": {
					"type": "string",
					"description": "Brief description of how the issue was resolved."
				}
			},
			"required": ["incident_id", "resolution_note"]
		}`,
	},
	{
		Name: "write_incident_report",
		Description: "Write an incident report to the incidents directory. " +
			"Call this at the end of every alert response, whether " +
			"resolved or escalated.",
		Schema: `{
			"type": "object",
			"properties": {
				"filename": {
					"type": "string",
					"description": "Filename for the report. Format: YYYY-MM-DD-HH-MM-<service>-<dedup_key>.md"
				},
				"content": {
					"type": "string",
					"description": "Full markdown content of the incident report."
				}
			},
			"required": ["filename", "content"]
		}`,
	},
	{
		Name: "email_incident_report",
		Description: "Email an incident report after writing it to disk. " +
			"Call this immediately after write_incident_report to send " +
			"the report to the configured recipients via email.",
		Schema: `{
			"type": "object",
			"properties": {
				"subject": {
					"type": "string",
					"description": "Email subject line. Format: [P1/P2/P3/P4] Incident Report - <service> - <brief description>"
				},
				"content": {
					"type": "string",
					"description": "Full markdown content of the incident report."
				}
			},
			"required": ["subject", "content"]
		}`,
	},
	{
		Name: "create_pagerduty_incident",
		Description: "Create a NEW PagerDuty incident to page a human responder. " +
			"Use this when the alert came from GCP Cloud Monitoring (no existing " +
			"PagerDuty incident) and the agent cannot resolve the issue. " +
			"This is how humans get paged. Only call this when escalation is needed.",
		Schema: `{
			"type": "object",
			"properties": {
				"summary": {
					"type": "string",
					"description": "Brief summary for the PagerDuty incident. Include service name, what's wrong, and what the agent tried."
				},
				"severity": {
					"type": "string",
					"enum": ["critical", "error", "warning", "info"],
					"description": "Incident severity level."
				},
				"details": {
					"type": "string",
					"description": "Full diagnostic details: what was checked, what was found, what was tried, and recommended next action for the human."
				}
			},
			"required": ["summary", "severity", "details"]
		}`,
	},
	{
		Name: "scale_service",
		Description: "Scale a service to a target instance count. Two modes: " +
			"'application' calls POST /ops/scale on the service, " +
			"'cloud_native' adjusts replica count via cloud provider API. " +
			"The target must be within the service's configured min/max bounds. " +
			"Always use an absolute target, never a relative increment.",
		Schema: `{
			"type": "object",
			"properties": {
				"service_name": {
					"type": "string",
					"description": "Name of the service from the service registry."
				},
				"target_instances": {
					"type": "integer",
					"minimum": 1,
					"description": "The desired instance count. Must be between the service's configured min and max."
				},
				"reason": {
					"type": "string",
					"description": "Why scaling is needed. Logged in the incident report. Example: 'All instances saturated due to traffic spike, scaling from 3 to 6 instances.'"
				}
			},
			"required": ["service_name", "target_instances", "reason"]
		}`,
	},
}

// Definitions returns the tool set in OpenAI function-calling format.
func Definitions() []openai.Tool {
	defs := make([]openai.Tool, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		var params map[string]any
		if err := json.Unmarshal([]byte(spec.Schema), &params); err != nil {
			// Schemas are static; a bad one is a programming error.
			panic(fmt.Sprintf("invalid tool schema %s: %v", spec.Name, err))
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// compileSchemas compiles every tool input schema for request validation.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiled := make(map[string]*jsonschema.Schema, len(toolSpecs))
	for _, spec := range toolSpecs {
		var doc any
		if err := json.Unmarshal([]byte(spec.Schema), &doc); err != nil {
			return nil, fmt.Errorf("unmarshal schema for %s: %w", spec.Name, err)
		}
		c := jsonschema.NewCompiler()
		resource := spec.Name + ".json"
		if err := c.AddResource(resource, doc); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", spec.Name, err)
		}
		schema, err := c.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", spec.Name, err)
		}
		compiled[spec.Name] = schema
	}
	return compiled, nil
}
