package state

import (
	"math"
	"sort"
	"time"
)

// Snapshot is a point-in-time copy of the counters and derived Golden
// Signals, taken under the lock. Percentiles are computed here by copying
// and sorting the durations ring on demand.
type Snapshot struct {
	UptimeSeconds float64

	WebhooksReceived  int64
	WebhooksProcessed int64
	WebhooksIgnored   int64
	WebhooksFailed    int64

	AgentRunsCompleted int64
	AgentRunsFailed    int64

	TotalInputTokens   int64
	TotalOutputTokens  int64
	TotalEstimatedCost float64
	TokensLastHour     int

	AlertsDeduplicated int64
	AlertsQueued       int64
	AlertsExpired      int64

	ActiveIncidents int

	// Latency percentiles over recorded run durations, in seconds.
	LatencyP50 float64
	LatencyP95 float64
	LatencyP99 float64

	// Traffic rate in webhooks per minute.
	RequestsPerMinute float64

	// Error rate in percent: (webhooks_failed + agent_runs_failed) /
	// webhooks_received * 100, clamped to 0 when nothing was received.
	ErrorRatePercent float64
	TotalErrors      int64

	Draining bool
}

// Snapshot captures the current state for the /ops/* surface.
func (s *RuntimeState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	uptime := time.Since(s.startTime).Seconds()

	durations := make([]float64, len(s.runDurations))
	copy(durations, s.runDurations)
	sort.Float64s(durations)

	var p50, p95, p99 float64
	if n := len(durations); n > 0 {
		p50 = durations[n/2]
		p95 = durations[int(float64(n)*0.95)]
		p99 = durations[min(int(float64(n)*0.99), n-1)]
	}

	var rate float64
	if uptime > 0 {
		rate = float64(s.webhooksReceived) / uptime * 60
	}

	totalErrors := s.webhooksFailed + s.agentRunsFailed
	var errorRate float64
	if s.webhooksReceived > 0 {
		errorRate = float64(totalErrors) / float64(s.webhooksReceived) * 100
	}

	return Snapshot{
		UptimeSeconds:      uptime,
		WebhooksReceived:   s.webhooksReceived,
		WebhooksProcessed:  s.webhooksProcessed,
		WebhooksIgnored:    s.webhooksIgnored,
		WebhooksFailed:     s.webhooksFailed,
		AgentRunsCompleted: s.agentRunsCompleted,
		AgentRunsFailed:    s.agentRunsFailed,
		TotalInputTokens:   s.totalInputTokens,
		TotalOutputTokens:  s.totalOutputTokens,
		TotalEstimatedCost: roundTo(s.totalEstimatedCost, 4),
		TokensLastHour:     s.tokensLastHourLocked(),
		AlertsDeduplicated: s.alertsDeduplicated,
		AlertsQueued:       s.alertsQueued,
		AlertsExpired:      s.alertsExpired,
		ActiveIncidents:    len(s.activeIncidents),
		LatencyP50:         roundTo(p50, 3),
		LatencyP95:         roundTo(p95, 3),
		LatencyP99:         roundTo(p99, 3),
		RequestsPerMinute:  roundTo(rate, 2),
		ErrorRatePercent:   roundTo(errorRate, 2),
		TotalErrors:        totalErrors,
		Draining:           s.draining,
	}
}

func roundTo(v float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}
