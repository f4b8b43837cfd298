// SRE agent runtime: receives alert webhooks, admits them through the
// intake pipeline, and runs the LLM diagnostic loop against monitored
// services.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/sre-agent/pkg/agent"
	"github.com/codeready-toolchain/sre-agent/pkg/api"
	"github.com/codeready-toolchain/sre-agent/pkg/config"
	"github.com/codeready-toolchain/sre-agent/pkg/intake"
	"github.com/codeready-toolchain/sre-agent/pkg/llm"
	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/pagerduty"
	"github.com/codeready-toolchain/sre-agent/pkg/runbook"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
	"github.com/codeready-toolchain/sre-agent/pkg/telemetry"
	"github.com/codeready-toolchain/sre-agent/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogging installs a JSON slog handler with renamed keys so log
// aggregators pick up timestamp/level/message without mapping rules.
func setupLogging() *slog.LevelVar {
	level := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "timestamp"
			case slog.MessageKey:
				a.Key = "message"
			}
			return a
		},
	})
	slog.SetDefault(slog.New(handler))
	return level
}

func main() {
	logLevel := setupLogging()

	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	httpPort := getEnv("PORT", "8080")

	slog.Info("Starting SRE agent",
		"version", version.Full(),
		"http_port", httpPort)

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Error("Telemetry shutdown error", "error", err)
		}
	}()

	st := state.New()
	ledger := state.NewLedger()
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	pdClient := pagerduty.NewClient(cfg.PagerDutyAPIToken, cfg.PagerDutyRoutingKey)
	runbooks := runbook.NewService()

	runner := agent.NewRunner(cfg, llmClient, pdClient, runbooks)
	processor := agent.NewProcessor(cfg, runner, st, ledger, pdClient)

	pipeline := intake.New(
		func(ctx context.Context, alert *models.Alert, traceID string) {
			processor.Process(ctx, alert, traceID)
		},
		st,
		cfg.MaxConcurrentAlerts,
		time.Duration(cfg.AlertQueueTTLSeconds)*time.Second,
	)

	server := api.NewServer(cfg, st, ledger, pipeline, llmClient, pdClient, logLevel)
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("SRE agent started",
		"services", len(cfg.Services),
		"model", cfg.LLMModel,
		"max_concurrent_alerts", cfg.MaxConcurrentAlerts)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop taking webhooks first, then let active runs finish.
	st.SetDraining()

	shutdownCtx, cancel := context.WithTimeout(ctx, 35*time.Second)
	defer cancel()
	pipeline.Shutdown(shutdownCtx)

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
