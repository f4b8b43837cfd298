package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/sre-agent/pkg/models"
)

func ledgerAlert(id, service string) *models.Alert {
	return &models.Alert{
		IncidentID:  id,
		ServiceName: service,
		Severity:    models.SeverityHigh,
		Priority:    models.PriorityP2,
		Description: "test alert",
	}
}

func TestLedger_TrackAndGet(t *testing.T) {
	ledger := NewLedger()
	ledger.Track(ledgerAlert("PX1", "payments"), "trace-1", StatusProcessing)

	rec, ok := ledger.Get("PX1")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.Equal(t, "payments", rec.ServiceName)
	assert.Equal(t, "trace-1", rec.TraceID)

	_, ok = ledger.Get("missing")
	assert.False(t, ok)
}

func TestLedger_SetStatus(t *testing.T) {
	ledger := NewLedger()
	ledger.Track(ledgerAlert("PX1", "payments"), "trace-1", StatusPending)

	ledger.SetStatus("PX1", StatusDone)
	rec, _ := ledger.Get("PX1")
	assert.Equal(t, StatusDone, rec.Status)

	// Unknown ids are ignored.
	ledger.SetStatus("missing", StatusDone)
}

func TestLedger_WithStatus(t *testing.T) {
	ledger := NewLedger()
	ledger.Track(ledgerAlert("PX1", "payments"), "t1", StatusPending)
	ledger.Track(ledgerAlert("PX2", "checkout"), "t2", StatusDone)
	ledger.Track(ledgerAlert("PX3", "ledger"), "t3", StatusPending)

	pending := ledger.WithStatus(StatusPending)
	require.Len(t, pending, 2)
	// Oldest first.
	assert.Equal(t, "PX1", pending[0].IncidentID)
	assert.Equal(t, "PX3", pending[1].IncidentID)
}

func TestLedger_StatusCounts(t *testing.T) {
	ledger := NewLedger()
	ledger.Track(ledgerAlert("PX1", "payments"), "t1", StatusPending)
	ledger.Track(ledgerAlert("PX2", "checkout"), "t2", StatusPending)
	ledger.Track(ledgerAlert("PX3", "ledger"), "t3", StatusFailed)

	counts := ledger.StatusCounts()
	assert.Equal(t, 2, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusFailed])
	assert.Equal(t, 0, counts[StatusDone])
}
