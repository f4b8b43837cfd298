package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/sre-agent/pkg/intake"
	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

// maxWebhookBody bounds how much of a webhook payload is read.
const maxWebhookBody = 1 << 20

// webhookHandler handles POST /webhook, the PagerDuty V3 intake. The alert
// flows through the intake pipeline which handles dedup, service
// serialization, priority ordering, and concurrency control. PagerDuty
// expects a 2xx within a few seconds, so nothing here blocks on the agent.
func (s *Server) webhookHandler(c *gin.Context) {
	traceID := uuid.NewString()
	s.st.AddWebhookReceived()

	if s.st.Draining() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is draining"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.st.AddWebhookFailed()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if s.cfg.PagerDutyWebhookSecret != "" {
		signature := c.GetHeader("X-PagerDuty-Signature")
		if !verifySignature(body, signature, s.cfg.PagerDutyWebhookSecret) {
			s.st.AddWebhookFailed()
			s.st.RecordError(state.ErrorRecord{
				Type:    "webhook_auth_failure",
				Message: "Invalid webhook signature",
				TraceID: traceID,
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
			return
		}
	}

	var payload models.PagerDutyWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		s.st.AddWebhookFailed()
		s.st.RecordError(state.ErrorRecord{
			Type:    "payload_parse_error",
			Message: "Failed to parse PagerDuty webhook payload",
			TraceID: traceID,
		})
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	// PagerDuty sends many event types; only incident triggers and
	// escalations reach the agent.
	eventType := payload.Event.EventType
	if eventType != "incident.triggered" && eventType != "incident.escalated" {
		s.st.AddWebhookIgnored()
		s.logger.Info("Ignoring event type", "event_type", eventType, "trace_id", traceID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event_type": eventType})
		return
	}

	alert, err := models.ParsePagerDutyWebhook(&payload)
	if err != nil {
		s.st.AddWebhookFailed()
		s.st.RecordError(state.ErrorRecord{
			Type:    "payload_parse_error",
			Message: "Failed to parse PagerDuty webhook payload",
			TraceID: traceID,
		})
		s.logger.Error("Failed to parse PagerDuty webhook payload",
			"error", err, "trace_id", traceID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	s.logger.Info("Alert received",
		"service", alert.ServiceName,
		"description", alert.Description,
		"severity", string(alert.Severity),
		"trace_id", traceID)
	s.st.AddWebhookProcessed()

	s.admit(c, alert, traceID)
}

// gcpWebhookHandler handles POST /webhook/gcp, the Cloud Monitoring intake.
// GCP alerts reach the agent before any PagerDuty incident exists; humans
// are only paged if the agent escalates.
func (s *Server) gcpWebhookHandler(c *gin.Context) {
	traceID := uuid.NewString()
	s.st.AddWebhookReceived()

	if s.st.Draining() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is draining"})
		return
	}

	// GCP's webhook_tokenauth channel sends the token as a query param.
	authToken := c.Query("auth_token")
	if s.cfg.OpsAuthToken != "" && authToken != "" {
		if !hmac.Equal([]byte(authToken), []byte(s.cfg.OpsAuthToken)) {
			s.st.AddWebhookFailed()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid auth token"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.st.AddWebhookFailed()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var payload models.GCPWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		s.st.AddWebhookFailed()
		s.st.RecordError(state.ErrorRecord{
			Type:    "gcp_payload_parse_error",
			Message: "Failed to parse GCP Cloud Monitoring webhook payload",
			TraceID: traceID,
		})
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	// GCP sends state=closed when the alert resolves.
	if payload.Incident.State != "open" {
		s.st.AddWebhookIgnored()
		s.logger.Info("Ignoring GCP alert",
			"state", payload.Incident.State, "trace_id", traceID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "state": payload.Incident.State})
		return
	}

	alert, err := models.ParseGCPWebhook(&payload, s.cfg.Services)
	if err != nil {
		s.st.AddWebhookFailed()
		s.st.RecordError(state.ErrorRecord{
			Type:    "gcp_payload_parse_error",
			Message: "Failed to parse GCP Cloud Monitoring webhook payload",
			TraceID: traceID,
		})
		s.logger.Error("Failed to parse GCP webhook payload",
			"error", err, "trace_id", traceID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	s.logger.Info("GCP alert received",
		"service", alert.ServiceName,
		"description", alert.Description,
		"severity", string(alert.Severity),
		"trace_id", traceID)
	s.st.AddWebhookProcessed()

	s.admit(c, alert, traceID)
}

// admit submits the alert to the intake pipeline and reports the outcome.
// Every outcome, rejection included, answers with the disposition object so
// the sender can correlate by incident and trace id.
func (s *Server) admit(c *gin.Context, alert *models.Alert, traceID string) {
	outcome := s.pipeline.Submit(alert, traceID)
	if outcome == intake.OutcomeQueued {
		s.ledger.Track(alert, traceID, state.StatusPending)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      string(outcome),
		"incident_id": alert.IncidentID,
		"trace_id":    traceID,
	})
}

// verifySignature checks the PagerDuty V3 HMAC signature, sent as
// "v1=<hex hmac-sha256 of the raw body>".
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	provided := strings.TrimPrefix(signature, "v1=")
	return hmac.Equal([]byte(expected), []byte(provided))
}
