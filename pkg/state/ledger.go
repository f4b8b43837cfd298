package state

import (
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/sre-agent/pkg/models"
)

// AlertStatus tracks an alert through its lifecycle on the ledger.
type AlertStatus string

// Ledger statuses.
const (
	StatusPending    AlertStatus = "pending"
	StatusProcessing AlertStatus = "processing"
	StatusDone       AlertStatus = "done"
	StatusFailed     AlertStatus = "failed"
	StatusEscalated  AlertStatus = "escalated"
)

// AlertRecord is one ledger entry, exposed on the /alerts/* endpoints.
type AlertRecord struct {
	Status      AlertStatus     `json:"status"`
	IncidentID  string          `json:"incident_id"`
	ServiceName string          `json:"service_name"`
	Severity    models.Severity `json:"severity"`
	Priority    models.Priority `json:"priority,omitempty"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	TraceID     string          `json:"trace_id,omitempty"`
	QueuedAt    time.Time       `json:"queued_at"`
}

// Ledger records every admitted alert and its current status. Entries are
// never evicted; the process is restarted often enough in practice that
// unbounded growth has not been a concern.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*AlertRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*AlertRecord)}
}

// Track inserts or replaces the entry for the alert.
func (l *Ledger) Track(alert *models.Alert, traceID string, status AlertStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[alert.IncidentID] = &AlertRecord{
		Status:      status,
		IncidentID:  alert.IncidentID,
		ServiceName: alert.ServiceName,
		Severity:    alert.Severity,
		Priority:    alert.Priority,
		Description: alert.Description,
		Timestamp:   alert.Timestamp,
		TraceID:     traceID,
		QueuedAt:    time.Now(),
	}
}

// SetStatus updates the status of an existing entry, if present.
func (l *Ledger) SetStatus(incidentID string, status AlertStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.entries[incidentID]; ok {
		rec.Status = status
	}
}

// Get returns a copy of the entry for incidentID.
func (l *Ledger) Get(incidentID string) (AlertRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.entries[incidentID]
	if !ok {
		return AlertRecord{}, false
	}
	return *rec, true
}

// WithStatus returns copies of all entries in the given status, oldest first.
func (l *Ledger) WithStatus(status AlertStatus) []AlertRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []AlertRecord
	for _, rec := range l.entries {
		if rec.Status == status {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out
}

// StatusCounts returns how many entries sit in each status.
func (l *Ledger) StatusCounts() map[AlertStatus]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[AlertStatus]int)
	for _, rec := range l.entries {
		counts[rec.Status]++
	}
	return counts
}
