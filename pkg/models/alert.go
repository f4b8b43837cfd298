// Package models defines the canonical in-memory alert representation and
// the parsers that normalize the two inbound webhook shapes into it.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

// Severity values, from most to least urgent.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Priority is the incident-provider priority label attached to an alert.
// PriorityNone means the provider sent no priority.
type Priority string

// Priority values. Lower numbers page louder.
const (
	PriorityP1   Priority = "P1"
	PriorityP2   Priority = "P2"
	PriorityP3   Priority = "P3"
	PriorityP4   Priority = "P4"
	PriorityNone Priority = ""
)

// Rank maps a priority to its heap sort rank. P1=1 (highest), none=99 (lowest).
func (p Priority) Rank() int {
	switch p {
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	case PriorityP4:
		return 4
	default:
		return 99
	}
}

// GCPIncidentPrefix marks alerts that originated from GCP Cloud Monitoring.
// Such alerts have no incident-provider incident yet; escalation must create
// one via the Events API instead of annotating an existing incident.
const GCPIncidentPrefix = "gcp-"

// Alert is the normalized inbound event the agent triages.
// Immutable after admission.
type Alert struct {
	IncidentID  string         `json:"incident_id"`
	ServiceName string         `json:"service_name"`
	Severity    Severity       `json:"severity"`
	Priority    Priority       `json:"priority,omitempty"`
	Description string         `json:"description"`
	DedupKey    string         `json:"dedup_key,omitempty"`
	RunbookURL  string         `json:"runbook_url,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
}

// IsGCPSourced reports whether the alert came in through the cloud-monitoring
// webhook rather than the incident provider.
func (a *Alert) IsGCPSourced() bool {
	return strings.HasPrefix(a.IncidentID, GCPIncidentPrefix)
}

// Validate checks the admission invariants.
func (a *Alert) Validate() error {
	if a.IncidentID == "" {
		return fmt.Errorf("alert has empty incident_id")
	}
	if a.ServiceName == "" {
		return fmt.Errorf("alert has empty service_name")
	}
	return nil
}

// ServiceEndpoint is a monitored service and its /ops/* base URL.
type ServiceEndpoint struct {
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	Critical bool   `json:"critical"`
}

// ScalingMode selects how a service is scaled.
type ScalingMode string

// Scaling modes.
const (
	// ScalingModeApplication scales by calling POST /ops/scale on the service.
	ScalingModeApplication ScalingMode = "application"
	// ScalingModeCloudNative scales by adjusting replica count via the cloud
	// provider API.
	ScalingModeCloudNative ScalingMode = "cloud_native"
)

// ScalingLimit holds the per-service scaling bounds and mode.
type ScalingLimit struct {
	ServiceName  string      `json:"service_name"`
	MinInstances int         `json:"min_instances"`
	MaxInstances int         `json:"max_instances"`
	Mode         ScalingMode `json:"mode"`
}
