package runbook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_EmptyURL(t *testing.T) {
	svc := NewService()

	content, err := svc.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestResolve_InvalidScheme(t *testing.T) {
	svc := NewService()

	_, err := svc.Resolve(context.Background(), "ftp://runbooks.example.com/x.md")
	assert.Error(t, err)
}

func TestResolve_FetchesAndCaches(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("# Payments runbook"))
	}))
	defer server.Close()

	svc := NewService()
	svc.OverrideHTTPClientForTest(server.Client())

	content, err := svc.Resolve(context.Background(), server.URL+"/payments.md")
	require.NoError(t, err)
	assert.Equal(t, "# Payments runbook", content)

	// Second resolve is served from cache.
	_, err = svc.Resolve(context.Background(), server.URL+"/payments.md")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolve_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := NewService()
	svc.OverrideHTTPClientForTest(server.Client())

	_, err := svc.Resolve(context.Background(), server.URL+"/missing.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestResolve_TruncatesLargeRunbooks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", maxContentBytes*2)))
	}))
	defer server.Close()

	svc := NewService()
	svc.OverrideHTTPClientForTest(server.Client())

	content, err := svc.Resolve(context.Background(), server.URL+"/huge.md")
	require.NoError(t, err)
	assert.Len(t, content, maxContentBytes)
}
