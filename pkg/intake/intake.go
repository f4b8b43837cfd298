// Package intake sits between the webhook handlers and the agent runner.
// It enforces four admission rules before any agent run starts:
//
//  1. Incident-level dedup: the same incident_id never runs or queues twice.
//  2. Service-level serialization: one run per service at a time.
//  3. Global concurrency limit: caps total concurrent runs.
//  4. Priority ordering: P1 dispatches before P4 when a slot opens.
//
// Queued alerts expire after a TTL; expiry is checked when slots open, not
// by a background timer.
package intake

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

// Outcome reports what Submit did with an alert.
type Outcome string

// Submit outcomes.
const (
	OutcomeDispatched   Outcome = "dispatched"
	OutcomeQueued       Outcome = "queued"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeRejected     Outcome = "rejected"
)

// ProcessFunc runs the agent for one admitted alert. It must handle its
// own errors; the pipeline only cares about completion.
type ProcessFunc func(ctx context.Context, alert *models.Alert, traceID string)

const shutdownWait = 30 * time.Second

// queuedAlert is one entry in the priority queue.
type queuedAlert struct {
	alert        *models.Alert
	traceID      string
	enqueuedAt   time.Time
	priorityRank int
}

// alertHeap orders by priority rank, ties broken by enqueue time (FIFO).
type alertHeap []*queuedAlert

func (h alertHeap) Len() int { return len(h) }
func (h alertHeap) Less(i, j int) bool {
	if h[i].priorityRank != h[j].priorityRank {
		return h[i].priorityRank < h[j].priorityRank
	}
	return h[i].enqueuedAt.Before(h[j].enqueuedAt)
}
func (h alertHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *alertHeap) Push(x any) { *h = append(*h, x.(*queuedAlert)) }
func (h *alertHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Pipeline is the intake pipeline. All mutable fields are guarded by mu;
// dispatch decisions happen atomically under it and never do I/O.
type Pipeline struct {
	processFn     ProcessFunc
	st            *state.RuntimeState
	maxConcurrent int
	queueTTL      time.Duration
	logger        *slog.Logger

	mu             sync.Mutex
	knownIncidents map[string]struct{}
	activeServices map[string]string // service_name -> incident_id
	activeCount    int
	queue          alertHeap
	shuttingDown   bool

	wg sync.WaitGroup
}

// New creates a Pipeline.
func New(processFn ProcessFunc, st *state.RuntimeState, maxConcurrent int, queueTTL time.Duration) *Pipeline {
	return &Pipeline{
		processFn:      processFn,
		st:             st,
		maxConcurrent:  maxConcurrent,
		queueTTL:       queueTTL,
		logger:         slog.With("logger", "intake"),
		knownIncidents: make(map[string]struct{}),
		activeServices: make(map[string]string),
	}
}

// Submit admits an alert. It either dispatches immediately, queues, dedups,
// or rejects during shutdown.
func (p *Pipeline) Submit(alert *models.Alert, traceID string) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown {
		return OutcomeRejected
	}

	if _, known := p.knownIncidents[alert.IncidentID]; known {
		p.logger.Info("Deduplicated", "incident_id", alert.IncidentID, "trace_id", traceID)
		p.st.AddDeduplicated()
		return OutcomeDeduplicated
	}
	p.knownIncidents[alert.IncidentID] = struct{}{}

	_, serviceBusy := p.activeServices[alert.ServiceName]
	if !serviceBusy && p.activeCount < p.maxConcurrent {
		p.dispatchLocked(alert, traceID)
		return OutcomeDispatched
	}

	heap.Push(&p.queue, &queuedAlert{
		alert:        alert,
		traceID:      traceID,
		enqueuedAt:   time.Now(),
		priorityRank: alert.Priority.Rank(),
	})
	p.st.AddQueued()
	p.logger.Info("Queued",
		"incident_id", alert.IncidentID,
		"service", alert.ServiceName,
		"priority", string(alert.Priority),
		"queue_depth", len(p.queue),
		"trace_id", traceID)
	return OutcomeQueued
}

// Shutdown discards queued alerts and waits up to 30 seconds for active
// runs to finish.
func (p *Pipeline) Shutdown(ctx context.Context) {
	p.mu.Lock()
	p.shuttingDown = true
	discarded := len(p.queue)
	for _, item := range p.queue {
		delete(p.knownIncidents, item.alert.IncidentID)
	}
	p.queue = nil
	p.mu.Unlock()

	if discarded > 0 {
		p.logger.Info("Shutdown: discarded queued alerts", "count", discarded)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	p.mu.Lock()
	active := p.activeCount
	p.mu.Unlock()
	if active > 0 {
		p.logger.Info("Shutdown: waiting for active runs", "count", active)
	}

	select {
	case <-done:
	case <-time.After(shutdownWait):
		p.logger.Warn("Shutdown: runs did not complete in time",
			"timeout_seconds", int(shutdownWait.Seconds()))
	case <-ctx.Done():
	}
}

// QueueDepth returns the number of alerts waiting in the queue.
func (p *Pipeline) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ActiveCount returns the number of alerts being processed right now.
func (p *Pipeline) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeCount
}

// dispatchLocked claims a slot and launches a run. Caller holds mu.
func (p *Pipeline) dispatchLocked(alert *models.Alert, traceID string) {
	p.activeCount++
	p.activeServices[alert.ServiceName] = alert.IncidentID
	p.st.MarkIncidentActive(alert.IncidentID)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.onComplete(alert)
		p.processFn(context.Background(), alert, traceID)
	}()
}

// onComplete releases the slot and dispatches the next eligible alert.
func (p *Pipeline) onComplete(alert *models.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.activeCount--
	delete(p.knownIncidents, alert.IncidentID)
	delete(p.activeServices, alert.ServiceName)

	if !p.shuttingDown {
		p.dispatchNextLocked()
	}
}

// dispatchNextLocked scans the queue for the highest-priority alert whose
// service is free, expiring stale entries along the way. Caller holds mu.
func (p *Pipeline) dispatchNextLocked() {
	if len(p.queue) == 0 || p.activeCount >= p.maxConcurrent {
		return
	}

	now := time.Now()
	var eligible *queuedAlert
	var remaining alertHeap

	for len(p.queue) > 0 {
		candidate := heap.Pop(&p.queue).(*queuedAlert)

		if age := now.Sub(candidate.enqueuedAt); age > p.queueTTL {
			delete(p.knownIncidents, candidate.alert.IncidentID)
			p.st.AddExpired()
			p.logger.Info("Expired",
				"incident_id", candidate.alert.IncidentID,
				"age_seconds", int(age.Seconds()),
				"ttl_seconds", int(p.queueTTL.Seconds()),
				"trace_id", candidate.traceID)
			continue
		}

		if eligible == nil {
			if _, busy := p.activeServices[candidate.alert.ServiceName]; !busy {
				eligible = candidate
				continue
			}
		}
		remaining = append(remaining, candidate)
	}

	p.queue = remaining
	heap.Init(&p.queue)

	if eligible != nil {
		p.dispatchLocked(eligible.alert, eligible.traceID)
	}
}
