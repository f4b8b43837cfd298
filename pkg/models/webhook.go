package models

import (
	"fmt"
	"strings"
	"time"
)

// PagerDutyWebhook is the subset of a PagerDuty V3 webhook envelope the agent
// consumes. The V3 format nests everything under event.data.
type PagerDutyWebhook struct {
	Event struct {
		EventType string `json:"event_type"`
		Data      struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Summary     string `json:"summary"`
			Urgency     string `json:"urgency"`
			IncidentKey string `json:"incident_key"`
			CreatedAt   string `json:"created_at"`
			Service     struct {
				Summary string `json:"summary"`
			} `json:"service"`
			Priority *struct {
				Summary string `json:"summary"`
			} `json:"priority"`
			Body struct {
				Details map[string]any `json:"details"`
			} `json:"body"`
		} `json:"data"`
	} `json:"event"`
}

// ParsePagerDutyWebhook converts a decoded V3 payload into an Alert.
func ParsePagerDutyWebhook(payload *PagerDutyWebhook) (*Alert, error) {
	data := payload.Event.Data

	severity := SeverityHigh
	switch data.Urgency {
	case "critical":
		severity = SeverityCritical
	case "high":
		severity = SeverityHigh
	case "warning":
		severity = SeverityWarning
	case "info":
		severity = SeverityInfo
	}

	priority := PriorityNone
	if data.Priority != nil {
		switch data.Priority.Summary {
		case "P1":
			priority = PriorityP1
		case "P2":
			priority = PriorityP2
		case "P3":
			priority = PriorityP3
		case "P4":
			priority = PriorityP4
		}
	}

	description := data.Title
	if description == "" {
		description = data.Summary
	}
	if description == "" {
		description = "No description"
	}

	ts := time.Now()
	if data.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, data.CreatedAt); err == nil {
			ts = parsed
		}
	}

	runbookURL := ""
	if v, ok := data.Body.Details["runbook_url"].(string); ok {
		runbookURL = v
	}

	alert := &Alert{
		IncidentID:  data.ID,
		ServiceName: data.Service.Summary,
		Severity:    severity,
		Priority:    priority,
		Description: description,
		DedupKey:    data.IncidentKey,
		RunbookURL:  runbookURL,
		Timestamp:   ts,
		Details:     data.Body.Details,
	}
	if err := alert.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PagerDuty webhook: %w", err)
	}
	return alert, nil
}

// GCPWebhook is a GCP Cloud Monitoring notification payload.
type GCPWebhook struct {
	Incident struct {
		IncidentID    string `json:"incident_id"`
		State         string `json:"state"`
		StartedAt     int64  `json:"started_at"`
		Summary       string `json:"summary"`
		PolicyName    string `json:"policy_name"`
		ConditionName string `json:"condition_name"`
		URL           string `json:"url"`
		Resource      struct {
			Type   string            `json:"type"`
			Labels map[string]string `json:"labels"`
		} `json:"resource"`
		Documentation struct {
			Content string `json:"content"`
		} `json:"documentation"`
	} `json:"incident"`
}

// ParseGCPWebhook converts a Cloud Monitoring payload into an Alert.
//
// The incident id is prefixed "gcp-" to signal that no incident-provider
// incident exists yet. The service name is resolved by matching the alert
// host against the registered service base URLs; the fallback is the
// hostname's first label.
func ParseGCPWebhook(payload *GCPWebhook, services []ServiceEndpoint) (*Alert, error) {
	incident := payload.Incident

	severity := SeverityInfo
	if incident.State == "open" {
		severity = SeverityCritical
	}

	priority := PriorityP3
	if severity == SeverityCritical {
		priority = PriorityP1
	}

	host := incident.Resource.Labels["host"]
	serviceName := "unknown"
	if host != "" {
		for _, svc := range services {
			if strings.Contains(svc.BaseURL, host) {
				serviceName = svc.Name
				break
			}
		}
		if serviceName == "unknown" {
			serviceName, _, _ = strings.Cut(host, ".")
		}
	}

	ts := time.Now()
	if incident.StartedAt > 0 {
		ts = time.Unix(incident.StartedAt, 0)
	}

	description := incident.Summary
	if description == "" {
		description = incident.ConditionName
	}
	if description == "" {
		description = "GCP alert"
	}

	incidentID := incident.IncidentID
	if incidentID == "" {
		incidentID = "unknown"
	}

	alert := &Alert{
		IncidentID:  GCPIncidentPrefix + incidentID,
		ServiceName: serviceName,
		Severity:    severity,
		Priority:    priority,
		Description: description,
		DedupKey:    incident.IncidentID,
		Timestamp:   ts,
		Details: map[string]any{
			"source":           "gcp_cloud_monitoring",
			"policy_name":      incident.PolicyName,
			"condition_name":   incident.ConditionName,
			"resource_type":    incident.Resource.Type,
			"resource_labels":  incident.Resource.Labels,
			"gcp_incident_url": incident.URL,
			"documentation":    incident.Documentation.Content,
		},
	}
	if err := alert.Validate(); err != nil {
		return nil, fmt.Errorf("invalid GCP webhook: %w", err)
	}
	return alert, nil
}
