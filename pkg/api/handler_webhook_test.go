package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/sre-agent/pkg/models"
	"github.com/codeready-toolchain/sre-agent/pkg/state"
)

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_Dispatches(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodPost, "/webhook", pdWebhookBody("PX1", "payments"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dispatched", resp["status"])
	assert.Equal(t, "PX1", resp["incident_id"])
	assert.NotEmpty(t, resp["trace_id"])

	snap := h.st.Snapshot()
	assert.Equal(t, int64(1), snap.WebhooksReceived)
	assert.Equal(t, int64(1), snap.WebhooksProcessed)
}

func TestWebhook_QueuedAlertsEnterLedger(t *testing.T) {
	release := make(chan struct{})
	h := newHarnessWith(t, func(_ context.Context, _ *models.Alert, _ string) {
		<-release
	})
	defer close(release)

	rec := h.request(http.MethodPost, "/webhook", pdWebhookBody("PX1", "payments"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same service, so the second alert queues behind the first.
	rec = h.request(http.MethodPost, "/webhook", pdWebhookBody("PX2", "payments"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])

	entry, ok := h.ledger.Get("PX2")
	require.True(t, ok)
	assert.Equal(t, state.StatusPending, entry.Status)
}

func TestWebhook_Deduplicates(t *testing.T) {
	release := make(chan struct{})
	h := newHarnessWith(t, func(_ context.Context, _ *models.Alert, _ string) {
		<-release
	})
	defer close(release)

	h.request(http.MethodPost, "/webhook", pdWebhookBody("PX1", "payments"), nil)
	rec := h.request(http.MethodPost, "/webhook", pdWebhookBody("PX1", "payments"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "deduplicated", resp["status"])
}

func TestWebhook_IgnoresOtherEventTypes(t *testing.T) {
	h := newHarness(t)

	body := []byte(`{"event": {"event_type": "incident.resolved", "data": {"id": "PX1"}}}`)
	rec := h.request(http.MethodPost, "/webhook", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["status"])
	assert.Equal(t, "incident.resolved", resp["event_type"])
	assert.Equal(t, int64(1), h.st.Snapshot().WebhooksIgnored)
}

func TestWebhook_RejectsMalformedJSON(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodPost, "/webhook", []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(1), h.st.Snapshot().WebhooksFailed)

	errors := h.st.RecentErrors()
	require.Len(t, errors, 1)
	assert.Equal(t, "payload_parse_error", errors[0].Type)
}

func TestWebhook_RejectsWhileDraining(t *testing.T) {
	h := newHarness(t)
	h.st.SetDraining()

	rec := h.request(http.MethodPost, "/webhook", pdWebhookBody("PX1", "payments"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhook_RejectedSubmitReturnsDisposition(t *testing.T) {
	h := newHarness(t)
	h.pipeline.Shutdown(context.Background())

	rec := h.request(http.MethodPost, "/webhook", pdWebhookBody("PX1", "payments"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp["status"])
	assert.Equal(t, "PX1", resp["incident_id"])
	assert.NotEmpty(t, resp["trace_id"])
}

func TestWebhook_SignatureVerification(t *testing.T) {
	h := newHarness(t)
	h.cfg.PagerDutyWebhookSecret = "webhook-secret"
	body := pdWebhookBody("PX1", "payments")

	// Missing signature.
	rec := h.request(http.MethodPost, "/webhook", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong signature.
	rec = h.request(http.MethodPost, "/webhook", body, map[string]string{
		"X-PagerDuty-Signature": signBody(body, "other-secret"),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	errors := h.st.RecentErrors()
	require.NotEmpty(t, errors)
	assert.Equal(t, "webhook_auth_failure", errors[0].Type)

	// Correct signature.
	rec = h.request(http.MethodPost, "/webhook", body, map[string]string{
		"X-PagerDuty-Signature": signBody(body, "webhook-secret"),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySignature_RejectsTamperedSignatures(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("flipping any hex digit invalidates the signature", prop.ForAll(
		func(body, secret string, pos int) bool {
			if secret == "" {
				return true
			}
			sig := signBody([]byte(body), secret)
			if !verifySignature([]byte(body), sig, secret) {
				return false
			}
			// Mutate one hex digit past the "v1=" prefix.
			idx := 3 + pos%64
			mutated := []byte(sig)
			if mutated[idx] == '0' {
				mutated[idx] = '1'
			} else {
				mutated[idx] = '0'
			}
			return !verifySignature([]byte(body), string(mutated), secret)
		},
		gen.AnyString(),
		gen.AlphaString(),
		gen.IntRange(0, 63),
	))
	properties.TestingRun(t)
}

func TestGCPWebhook_OpenIncidentDispatches(t *testing.T) {
	var got *models.Alert
	done := make(chan struct{})
	h := newHarnessWith(t, func(_ context.Context, alert *models.Alert, _ string) {
		got = alert
		close(done)
	})

	rec := h.request(http.MethodPost, "/webhook/gcp", gcpWebhookBody("0.abc", "open"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dispatched", resp["status"])
	assert.Equal(t, "gcp-0.abc", resp["incident_id"])

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("agent run never started")
	}
	assert.Equal(t, "payments", got.ServiceName)
	assert.True(t, got.IsGCPSourced())
}

func TestGCPWebhook_IgnoresClosedIncidents(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodPost, "/webhook/gcp", gcpWebhookBody("0.abc", "closed"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["status"])
	assert.Equal(t, "closed", resp["state"])
}

func TestGCPWebhook_AuthToken(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodPost, "/webhook/gcp?auth_token=wrong", gcpWebhookBody("0.abc", "open"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.request(http.MethodPost, "/webhook/gcp?auth_token=ops-secret", gcpWebhookBody("0.xyz", "open"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGCPWebhook_RejectsMalformedJSON(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodPost, "/webhook/gcp", []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errors := h.st.RecentErrors()
	require.Len(t, errors, 1)
	assert.Equal(t, "gcp_payload_parse_error", errors[0].Type)
}
