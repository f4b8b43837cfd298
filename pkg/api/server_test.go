package api

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/sre-agent/pkg/config"
	"github.com/codeready-toolchain/sre-agent/pkg/intake"
	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

type fakeLLM struct {
	err error
}

func (f *fakeLLM) Probe(_ context.Context, _ string) error { return f.err }

type fakePagerDuty struct {
	status int
	err    error
}

func (f *fakePagerDuty) Probe(_ context.Context) (int, error) { return f.status, f.err }

// testHarness bundles the server with the collaborators the tests inspect.
type testHarness struct {
	server   *Server
	router   *gin.Engine
	cfg      *config.Config
	st       *state.RuntimeState
	ledger   *state.Ledger
	pipeline *intake.Pipeline
	llm      *fakeLLM
	pd       *fakePagerDuty
	logLevel *slog.LevelVar
}

// newHarness builds a server around an instant no-op processor. Tests that
// need runs to block install their own process function via newHarnessWith.
func newHarness(t *testing.T) *testHarness {
	return newHarnessWith(t, func(_ context.Context, _ *models.Alert, _ string) {})
}

func newHarnessWith(t *testing.T, processFn intake.ProcessFunc) *testHarness {
	t.Helper()

	dir := t.TempDir()
	promptPath := filepath.Join(dir, "SRE_PROMPT.md")
	require.NoError(t, os.WriteFile(promptPath, []byte("You are an SRE agent."), 0o644))

	cfg := &config.Config{
		LLMBaseURL:        "https://models.example.com",
		LLMModel:          "gpt-4o-mini",
		LLMAPIKey:         "llm-secret-key",
		PagerDutyAPIToken: "pd-secret-token",
		SystemPromptPath:  promptPath,
		IncidentsDir:      filepath.Join(dir, "incidents"),
		Services: []models.ServiceEndpoint{
			{Name: "payments", BaseURL: "https://payments.internal.example.com", Critical: true},
		},
		MaxConcurrentAlerts:  3,
		AlertQueueTTLSeconds: 600,
		OpsAuthToken:         "ops-secret",
	}

	st := state.New()
	ledger := state.NewLedger()
	pipeline := intake.New(processFn, st, cfg.MaxConcurrentAlerts, time.Duration(cfg.AlertQueueTTLSeconds)*time.Second)
	llm := &fakeLLM{}
	pd := &fakePagerDuty{status: http.StatusOK}
	logLevel := new(slog.LevelVar)

	server := NewServer(cfg, st, ledger, pipeline, llm, pd, logLevel)
	return &testHarness{
		server:   server,
		router:   server.Router(),
		cfg:      cfg,
		st:       st,
		ledger:   ledger,
		pipeline: pipeline,
		llm:      llm,
		pd:       pd,
		logLevel: logLevel,
	}
}

func (h *testHarness) request(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func pdWebhookBody(incidentID, service string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": {
			"event_type": "incident.triggered",
			"data": {
				"id": %q,
				"title": "Latency above SLO",
				"urgency": "high",
				"service": {"summary": %q},
				"priority": {"summary": "P1"}
			}
		}
	}`, incidentID, service))
}

func gcpWebhookBody(incidentID, state string) []byte {
	return []byte(fmt.Sprintf(`{
		"incident": {
			"incident_id": %q,
			"state": %q,
			"summary": "CPU above 90%%",
			"resource": {"labels": {"host": "payments.internal.example.com"}}
		}
	}`, incidentID, state))
}
