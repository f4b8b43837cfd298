// Package api exposes the HTTP surface: the webhook intake endpoints, the
// alert ledger, and the agent's own /ops/* diagnostic and remediation
// endpoints.
package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/sre-agent/pkg/config"
	"github.com/codeready-toolchain/sre-agent/pkg/intake"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// LLMProber checks LLM provider reachability.
type LLMProber interface {
	Probe(ctx context.Context, model string) error
}

// PagerDutyProber checks incident provider reachability.
type PagerDutyProber interface {
	Probe(ctx context.Context) (int, error)
}

// Server holds the handler dependencies.
type Server struct {
	cfg      *config.Config
	st       *state.RuntimeState
	ledger   *state.Ledger
	pipeline *intake.Pipeline
	llm      LLMProber
	pd       PagerDutyProber
	logLevel *slog.LevelVar
	logger   *slog.Logger
}

// NewServer creates the API server. logLevel is the process-wide slog
// level, adjustable at runtime through POST /ops/loglevel.
func NewServer(cfg *config.Config, st *state.RuntimeState, ledger *state.Ledger, pipeline *intake.Pipeline, llm LLMProber, pd PagerDutyProber, logLevel *slog.LevelVar) *Server {
	return &Server{
		cfg:      cfg,
		st:       st,
		ledger:   ledger,
		pipeline: pipeline,
		llm:      llm,
		pd:       pd,
		logLevel: logLevel,
		logger:   slog.With("logger", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthHandler)

	router.POST("/webhook", s.webhookHandler)
	router.POST("/webhook/gcp", s.gcpWebhookHandler)

	router.GET("/alerts/pending", s.alertsPendingHandler)
	router.GET("/alerts/:incident_id", s.alertDetailsHandler)
	router.POST("/alerts/:incident_id/claim", s.claimAlertHandler)
	router.POST("/alerts/:incident_id/complete", s.completeAlertHandler)

	router.GET("/ops/status", s.opsStatusHandler)
	router.GET("/ops/health", s.opsHealthHandler)
	router.GET("/ops/metrics", s.opsMetricsHandler)
	router.GET("/ops/config", s.opsConfigHandler)
	router.GET("/ops/dependencies", s.opsDependenciesHandler)
	router.GET("/ops/errors", s.opsErrorsHandler)
	router.POST("/ops/loglevel", s.opsLogLevelHandler)
	router.POST("/ops/drain", s.opsDrainHandler)

	return router
}
