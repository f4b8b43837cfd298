package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/sre-agent/pkg/models"
)

// formatAlertMessage renders the alert as the first user message.
// runbookContent, when non-empty, is inlined so the model does not have to
// fetch the runbook itself.
func formatAlertMessage(alert *models.Alert, runbookContent string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## PagerDuty Alert — %s\n\n", strings.ToUpper(string(alert.Severity)))
	fmt.Fprintf(&b, "**Incident ID:** %s\n", alert.IncidentID)
	fmt.Fprintf(&b, "**Service:** %s\n", alert.ServiceName)
	fmt.Fprintf(&b, "**Severity:** %s\n", alert.Severity)
	fmt.Fprintf(&b, "**Description:** %s\n", alert.Description)

	if alert.Priority != models.PriorityNone {
		fmt.Fprintf(&b, "**Priority:** %s\n", alert.Priority)
	}
	if alert.DedupKey != "" {
		fmt.Fprintf(&b, "**Dedup Key:** %s\n", alert.DedupKey)
	}
	if alert.RunbookURL != "" {
		fmt.Fprintf(&b, "**Runbook:** %s\n", alert.RunbookURL)
	}
	if !alert.Timestamp.IsZero() {
		fmt.Fprintf(&b, "**Triggered At:** %s\n", alert.Timestamp.Format(time.RFC3339))
	}
	if len(alert.Details) > 0 {
		b.WriteString("\n**Additional Details:**\n")
		if encoded, err := json.MarshalIndent(alert.Details, "", "  "); err == nil {
			fmt.Fprintf(&b, "```json\n%s\n```\n", encoded)
		}
	}
	if runbookContent != "" {
		b.WriteString("\n**Runbook Content:**\n\n")
		b.WriteString(runbookContent)
		b.WriteString("\n")
	}

	b.WriteString("\nDiagnose this alert following the workflow in your system prompt. ")
	b.WriteString("Start by checking /ops/status on the affected service.")

	return b.String()
}
