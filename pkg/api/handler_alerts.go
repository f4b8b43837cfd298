package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

// alertsPendingHandler handles GET /alerts/pending: queued alerts not yet
// claimed by a run, highest priority first.
func (s *Server) alertsPendingHandler(c *gin.Context) {
	pending := s.ledger.WithStatus(state.StatusPending)

	out := make([]gin.H, 0, len(pending))
	for _, rec := range pending {
		out = append(out, gin.H{
			"incident_id":  rec.IncidentID,
			"service_name": rec.ServiceName,
			"severity":     rec.Severity,
			"priority":     rec.Priority,
			"description":  rec.Description,
			"timestamp":    rec.Timestamp,
			"queued_at":    rec.QueuedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// alertDetailsHandler handles GET /alerts/:incident_id.
func (s *Server) alertDetailsHandler(c *gin.Context) {
	incidentID := c.Param("incident_id")
	rec, ok := s.ledger.Get(incidentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found: " + incidentID})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// claimAlertHandler handles POST /alerts/:incident_id/claim: mark a
// pending alert as processing so it is not picked up twice.
func (s *Server) claimAlertHandler(c *gin.Context) {
	incidentID := c.Param("incident_id")
	rec, ok := s.ledger.Get(incidentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found: " + incidentID})
		return
	}
	if rec.Status != state.StatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Alert is already " + string(rec.Status)})
		return
	}

	s.ledger.SetStatus(incidentID, state.StatusProcessing)
	s.logger.Info("Alert claimed", "incident_id", incidentID)
	c.JSON(http.StatusOK, gin.H{"status": "claimed", "incident_id": incidentID})
}

// completeAlertHandler handles POST /alerts/:incident_id/complete.
func (s *Server) completeAlertHandler(c *gin.Context) {
	incidentID := c.Param("incident_id")
	if _, ok := s.ledger.Get(incidentID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found: " + incidentID})
		return
	}

	s.ledger.SetStatus(incidentID, state.StatusDone)
	s.st.ClearIncidentActive(incidentID)
	s.st.RecordRunSkipped()
	s.logger.Info("Alert completed", "incident_id", incidentID)
	c.JSON(http.StatusOK, gin.H{"status": "completed", "incident_id": incidentID})
}
