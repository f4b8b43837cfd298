package api

import (
	"crypto/hmac"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

// opsStatusHandler handles GET /ops/status: a composite verdict combining
// Golden Signals, error rates, and the active incident count. This is the
// first endpoint to check.
func (s *Server) opsStatusHandler(c *gin.Context) {
	metrics := s.computeMetrics()
	snap := s.st.Snapshot()

	active := snap.ActiveIncidents
	queueDepth := s.pipeline.QueueDepth()
	promptOK := fileExists(s.cfg.SystemPromptPath)

	var verdict string
	switch {
	case snap.ErrorRatePercent > 50 || !promptOK || snap.Draining:
		verdict = healthStatusUnhealthy
	case snap.ErrorRatePercent > 10 || active > 5 || queueDepth > 10:
		verdict = healthStatusDegraded
	default:
		verdict = healthStatusHealthy
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           verdict,
		"golden_signals":   metrics,
		"active_incidents": active,
		"draining":         snap.Draining,
	})
}

// opsHealthHandler handles GET /ops/health: deep health with per-dependency
// probes. Slower than /health; not for orchestrator liveness.
func (s *Server) opsHealthHandler(c *gin.Context) {
	deps := s.checkDependencies(c)

	allOK := true
	for _, dep := range deps {
		if status, ok := dep["status"].(string); ok && status == "error" {
			allOK = false
			break
		}
	}

	status := healthStatusHealthy
	if !allOK {
		status = healthStatusDegraded
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"dependencies": deps,
	})
}

// opsMetricsHandler handles GET /ops/metrics.
func (s *Server) opsMetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.computeMetrics())
}

// opsConfigHandler handles GET /ops/config. Sanitized: no secrets.
func (s *Server) opsConfigHandler(c *gin.Context) {
	services := make([]gin.H, 0, len(s.cfg.Services))
	for _, svc := range s.cfg.Services {
		services = append(services, gin.H{
			"name":     svc.Name,
			"base_url": svc.BaseURL,
			"critical": svc.Critical,
		})
	}

	counts := s.ledger.StatusCounts()
	c.JSON(http.StatusOK, gin.H{
		"llm_model":                      s.cfg.LLMModel,
		"llm_api_base_url":               s.cfg.LLMBaseURL,
		"sre_prompt_path":                s.cfg.SystemPromptPath,
		"incidents_dir":                  s.cfg.IncidentsDir,
		"webhook_signature_verification": s.cfg.PagerDutyWebhookSecret != "",
		"pagerduty_escalation_policy_id": s.cfg.PagerDutyEscalationPolicyID,
		"services":                       services,
		"intake": gin.H{
			"max_concurrent_alerts":   s.cfg.MaxConcurrentAlerts,
			"alert_queue_ttl_seconds": s.cfg.AlertQueueTTLSeconds,
		},
		"token_budget": gin.H{
			"max_tokens_per_incident": s.cfg.MaxTokensPerIncident,
			"max_tokens_per_hour":     s.cfg.MaxTokensPerHour,
		},
		"alert_queue": gin.H{
			"pending":    counts[state.StatusPending],
			"processing": counts[state.StatusProcessing],
			"done":       counts[state.StatusDone],
		},
	})
}

// opsDependenciesHandler handles GET /ops/dependencies.
func (s *Server) opsDependenciesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":      "sre-agent",
		"dependencies": s.checkDependencies(c),
	})
}

// opsErrorsHandler handles GET /ops/errors: the last errors with counts
// grouped by type.
func (s *Server) opsErrorsHandler(c *gin.Context) {
	errors := s.st.RecentErrors()

	counts := make(map[string]int)
	for _, e := range errors {
		counts[e.Type]++
	}
	recent := errors
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   len(errors),
		"by_type": counts,
		"recent":  recent,
	})
}

// opsLogLevelHandler handles POST /ops/loglevel: adjust verbosity without
// a redeploy. Requires ops auth.
func (s *Server) opsLogLevelHandler(c *gin.Context) {
	if !s.requireOpsAuth(c) {
		return
	}

	var body struct {
		Level string `json:"level"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
		return
	}

	level := strings.ToUpper(body.Level)
	if !setLogLevel(s.logLevel, level) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid log level. Valid: DEBUG, ERROR, INFO, WARNING",
		})
		return
	}

	s.logger.Info("Log level changed", "level", level)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "level": level})
}

// opsDrainHandler handles POST /ops/drain: stop accepting new webhooks
// while in-flight runs finish. Does not kill the process. Requires ops auth.
func (s *Server) opsDrainHandler(c *gin.Context) {
	if !s.requireOpsAuth(c) {
		return
	}

	s.st.SetDraining()
	s.logger.Info("Service entering drain mode")
	c.JSON(http.StatusOK, gin.H{
		"status":           "draining",
		"active_incidents": s.st.ActiveIncidentCount(),
	})
}

// requireOpsAuth enforces the bearer token on remediation endpoints.
// Diagnostic GET endpoints stay open.
func (s *Server) requireOpsAuth(c *gin.Context) bool {
	if s.cfg.OpsAuthToken == "" {
		return true
	}
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
		return false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if !hmac.Equal([]byte(token), []byte(s.cfg.OpsAuthToken)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid auth token"})
		return false
	}
	return true
}

// computeMetrics assembles the Golden Signals and RED metrics payload.
func (s *Server) computeMetrics() gin.H {
	snap := s.st.Snapshot()

	return gin.H{
		"latency": gin.H{
			"p50_seconds": snap.LatencyP50,
			"p95_seconds": snap.LatencyP95,
			"p99_seconds": snap.LatencyP99,
		},
		"traffic": gin.H{
			"requests_per_minute": snap.RequestsPerMinute,
			"total_webhooks":      snap.WebhooksReceived,
		},
		"errors": gin.H{
			"error_rate_percent": snap.ErrorRatePercent,
			"total_errors":       snap.TotalErrors,
			"webhook_failures":   snap.WebhooksFailed,
			"agent_failures":     snap.AgentRunsFailed,
		},
		"saturation": gin.H{
			"active_incidents": snap.ActiveIncidents,
		},
		"red": gin.H{
			"rate":                 snap.RequestsPerMinute,
			"errors":               snap.TotalErrors,
			"duration_p99_seconds": snap.LatencyP99,
		},
		"counters": gin.H{
			"webhooks_received":    snap.WebhooksReceived,
			"webhooks_processed":   snap.WebhooksProcessed,
			"webhooks_ignored":     snap.WebhooksIgnored,
			"webhooks_failed":      snap.WebhooksFailed,
			"agent_runs_completed": snap.AgentRunsCompleted,
			"agent_runs_failed":    snap.AgentRunsFailed,
		},
		"token_usage": gin.H{
			"total_input_tokens":       snap.TotalInputTokens,
			"total_output_tokens":      snap.TotalOutputTokens,
			"total_estimated_cost_usd": snap.TotalEstimatedCost,
			"tokens_last_hour":         snap.TokensLastHour,
			"hourly_budget":            s.cfg.MaxTokensPerHour,
			"hourly_budget_exhausted":  s.cfg.MaxTokensPerHour > 0 && snap.TokensLastHour >= s.cfg.MaxTokensPerHour,
		},
		"intake": gin.H{
			"queue_depth":         s.pipeline.QueueDepth(),
			"active_runs":         s.pipeline.ActiveCount(),
			"max_concurrent":      s.cfg.MaxConcurrentAlerts,
			"alerts_deduplicated": snap.AlertsDeduplicated,
			"alerts_queued":       snap.AlertsQueued,
			"alerts_expired":      snap.AlertsExpired,
		},
	}
}

// checkDependencies probes every dependency and reports per-dependency
// status. Monitored services are listed with their config, not probed.
func (s *Server) checkDependencies(c *gin.Context) map[string]gin.H {
	deps := make(map[string]gin.H)

	if fileExists(s.cfg.SystemPromptPath) {
		deps["system_prompt"] = gin.H{"status": "ok", "path": s.cfg.SystemPromptPath}
	} else {
		deps["system_prompt"] = gin.H{
			"status": "error",
			"path":   s.cfg.SystemPromptPath,
			"error":  "file not found",
		}
	}

	if err := s.llm.Probe(c.Request.Context(), s.cfg.LLMModel); err != nil {
		deps["llm_api"] = gin.H{"status": "error", "error": err.Error()}
	} else {
		deps["llm_api"] = gin.H{
			"status":   "ok",
			"model":    s.cfg.LLMModel,
			"base_url": s.cfg.LLMBaseURL,
		}
	}

	if statusCode, err := s.pd.Probe(c.Request.Context()); err != nil {
		deps["pagerduty_api"] = gin.H{"status": "error", "error": err.Error()}
	} else if statusCode == http.StatusOK {
		deps["pagerduty_api"] = gin.H{"status": "ok", "status_code": statusCode}
	} else {
		deps["pagerduty_api"] = gin.H{"status": "error", "status_code": statusCode}
	}

	for _, svc := range s.cfg.Services {
		deps["service:"+svc.Name] = gin.H{
			"status":   "configured",
			"base_url": svc.BaseURL,
			"critical": svc.Critical,
		}
	}

	return deps
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
