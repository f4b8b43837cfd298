// Package state tracks runtime metrics for the agent's own /ops/* endpoints:
// Golden Signals inputs, token usage, active incidents, and recent errors.
package state

import (
	"sync"
	"time"
)

// Ring buffer capacities. Oldest entries are dropped on insert.
const (
	maxRunDurations  = 500
	maxRunTokenUsage = 500
	maxHourlyEntries = 10000
	maxRecentErrors  = 50
)

// ErrorRecord is a structured entry in the recent-errors ring.
type ErrorRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	IncidentID string    `json:"incident_id,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// tokenEntry is one (timestamp, tokens) pair in the rolling hourly log.
type tokenEntry struct {
	at     time.Time
	tokens int
}

// RuntimeState is the process-wide metrics record. It is mutated from the
// webhook handlers and from every concurrent agent run, so all access goes
// through the mutex.
type RuntimeState struct {
	mu sync.Mutex

	startTime time.Time

	// Webhook counters.
	webhooksReceived  int64
	webhooksProcessed int64
	webhooksIgnored   int64
	webhooksFailed    int64

	// Agent run counters.
	agentRunsCompleted int64
	agentRunsFailed    int64

	// Token usage totals.
	totalInputTokens   int64
	totalOutputTokens  int64
	totalEstimatedCost float64

	// Intake counters.
	alertsDeduplicated int64
	alertsQueued       int64
	alertsExpired      int64

	// Bounded rings.
	runDurations   []float64
	runTokenUsage  []int
	hourlyTokenLog []tokenEntry
	recentErrors   []ErrorRecord

	// incident_id -> start time of the run.
	activeIncidents map[string]time.Time

	draining bool
}

// New creates an empty RuntimeState with the start time set to now.
func New() *RuntimeState {
	return &RuntimeState{
		startTime:       time.Now(),
		activeIncidents: make(map[string]time.Time),
	}
}

// appendBounded pushes v onto ring, dropping the oldest entry at capacity.
func appendBounded[T any](ring []T, v T, cap int) []T {
	if len(ring) >= cap {
		copy(ring, ring[1:])
		ring[len(ring)-1] = v
		return ring
	}
	return append(ring, v)
}

// AddWebhookReceived increments the received counter.
func (s *RuntimeState) AddWebhookReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooksReceived++
}

// AddWebhookProcessed increments the processed counter.
func (s *RuntimeState) AddWebhookProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooksProcessed++
}

// AddWebhookIgnored increments the ignored counter.
func (s *RuntimeState) AddWebhookIgnored() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooksIgnored++
}

// AddWebhookFailed increments the failed counter.
func (s *RuntimeState) AddWebhookFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooksFailed++
}

// AddDeduplicated increments the intake dedup counter.
func (s *RuntimeState) AddDeduplicated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsDeduplicated++
}

// AddQueued increments the intake queued counter.
func (s *RuntimeState) AddQueued() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsQueued++
}

// AddExpired increments the intake TTL-expired counter.
func (s *RuntimeState) AddExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsExpired++
}

// MarkIncidentActive records the start of a run for incident_id.
func (s *RuntimeState) MarkIncidentActive(incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeIncidents[incidentID] = time.Now()
}

// ClearIncidentActive removes incident_id from the active map.
func (s *RuntimeState) ClearIncidentActive(incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeIncidents, incidentID)
}

// ActiveIncidentCount returns the number of incidents with a running agent.
func (s *RuntimeState) ActiveIncidentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeIncidents)
}

// RecordRunCompleted records a successful agent run: duration, token usage,
// estimated cost, and the rolling hourly token entry.
func (s *RuntimeState) RecordRunCompleted(duration time.Duration, inputTokens, outputTokens int, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentRunsCompleted++
	s.runDurations = appendBounded(s.runDurations, duration.Seconds(), maxRunDurations)
	total := inputTokens + outputTokens
	s.totalInputTokens += int64(inputTokens)
	s.totalOutputTokens += int64(outputTokens)
	s.totalEstimatedCost += cost
	s.runTokenUsage = appendBounded(s.runTokenUsage, total, maxRunTokenUsage)
	s.hourlyTokenLog = appendBounded(s.hourlyTokenLog, tokenEntry{at: time.Now(), tokens: total}, maxHourlyEntries)
}

// RecordRunSkipped counts a run that completed without invoking the agent
// (for example when the hourly budget was already exhausted).
func (s *RuntimeState) RecordRunSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentRunsCompleted++
}

// RecordRunFailed records a failed agent run and its duration.
func (s *RuntimeState) RecordRunFailed(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentRunsFailed++
	s.runDurations = appendBounded(s.runDurations, duration.Seconds(), maxRunDurations)
}

// RecordError appends a structured record to the recent-errors ring.
func (s *RuntimeState) RecordError(rec ErrorRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentErrors = appendBounded(s.recentErrors, rec, maxRecentErrors)
}

// RecentErrors returns a copy of the errors ring, oldest first.
func (s *RuntimeState) RecentErrors() []ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ErrorRecord, len(s.recentErrors))
	copy(out, s.recentErrors)
	return out
}

// TokensLastHour sums tokens consumed in the trailing 3600 seconds.
func (s *RuntimeState) TokensLastHour() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokensLastHourLocked()
}

func (s *RuntimeState) tokensLastHourLocked() int {
	cutoff := time.Now().Add(-time.Hour)
	total := 0
	for _, e := range s.hourlyTokenLog {
		if !e.at.Before(cutoff) {
			total += e.tokens
		}
	}
	return total
}

// AddHourlyTokens appends an entry to the rolling hourly log directly.
// Used by tests and by callers that account tokens outside RecordRunCompleted.
func (s *RuntimeState) AddHourlyTokens(at time.Time, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hourlyTokenLog = appendBounded(s.hourlyTokenLog, tokenEntry{at: at, tokens: tokens}, maxHourlyEntries)
}

// SetDraining flips the drain flag. Once set it is never cleared in-process.
func (s *RuntimeState) SetDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
}

// Draining reports whether the service is refusing new webhooks.
func (s *RuntimeState) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}
