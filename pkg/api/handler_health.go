package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/sre-agent/pkg/version"
)

// healthHandler handles GET /health, the orchestrator liveness check.
// It verifies configuration and LLM reachability; the agent is useless
// without its model. Deep per-dependency probes live on /ops/health.
func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if info, err := os.Stat(s.cfg.SystemPromptPath); err == nil && info.Size() > 0 {
		checks["system_prompt"] = "ok"
	} else {
		checks["system_prompt"] = "missing or empty: " + s.cfg.SystemPromptPath
		healthy = false
	}

	if s.cfg.LLMAPIKey != "" {
		checks["llm_provider"] = "api_key configured"
	} else {
		checks["llm_provider"] = "missing"
		healthy = false
	}

	if err := s.llm.Probe(c.Request.Context(), s.cfg.LLMModel); err != nil {
		checks["llm_api"] = "unreachable"
		healthy = false
	} else {
		checks["llm_api"] = "ok"
	}

	if s.cfg.PagerDutyAPIToken != "" {
		checks["pagerduty_api_token"] = "configured"
	} else {
		checks["pagerduty_api_token"] = "missing"
		healthy = false
	}

	if n := len(s.cfg.Services); n > 0 {
		checks["service_registry"] = fmt.Sprintf("%d services", n)
	} else {
		checks["service_registry"] = "empty"
		healthy = false
	}

	status := healthStatusHealthy
	httpStatus := http.StatusOK
	if !healthy {
		status = healthStatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":  status,
		"checks":  checks,
		"model":   s.cfg.LLMModel,
		"version": version.Commit,
	})
}
