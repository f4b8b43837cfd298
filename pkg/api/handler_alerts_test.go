package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

func trackAlert(h *testHarness, id string, status state.AlertStatus) {
	h.ledger.Track(&models.Alert{
		IncidentID:  id,
		ServiceName: "payments",
		Severity:    models.SeverityHigh,
		Priority:    models.PriorityP2,
		Description: "test alert",
	}, "trace-"+id, status)
}

func TestAlertsPending(t *testing.T) {
	h := newHarness(t)
	trackAlert(h, "PX1", state.StatusPending)
	trackAlert(h, "PX2", state.StatusDone)
	trackAlert(h, "PX3", state.StatusPending)

	rec := h.request(http.MethodGet, "/alerts/pending", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "PX1", resp[0]["incident_id"])
	assert.Equal(t, "PX3", resp[1]["incident_id"])
}

func TestAlertDetails(t *testing.T) {
	h := newHarness(t)
	trackAlert(h, "PX1", state.StatusProcessing)

	rec := h.request(http.MethodGet, "/alerts/PX1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp["status"])
	assert.Equal(t, "payments", resp["service_name"])

	rec = h.request(http.MethodGet, "/alerts/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClaimAlert(t *testing.T) {
	h := newHarness(t)
	trackAlert(h, "PX1", state.StatusPending)

	rec := h.request(http.MethodPost, "/alerts/PX1/claim", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entry, _ := h.ledger.Get("PX1")
	assert.Equal(t, state.StatusProcessing, entry.Status)

	// Claiming twice conflicts.
	rec = h.request(http.MethodPost, "/alerts/PX1/claim", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.request(http.MethodPost, "/alerts/missing/claim", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteAlert(t *testing.T) {
	h := newHarness(t)
	trackAlert(h, "PX1", state.StatusProcessing)
	h.st.MarkIncidentActive("PX1")

	rec := h.request(http.MethodPost, "/alerts/PX1/complete", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entry, _ := h.ledger.Get("PX1")
	assert.Equal(t, state.StatusDone, entry.Status)
	assert.Equal(t, 0, h.st.ActiveIncidentCount())

	rec = h.request(http.MethodPost, "/alerts/missing/complete", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
