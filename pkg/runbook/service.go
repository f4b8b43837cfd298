package runbook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// maxContentBytes caps how much runbook text is inlined into the
	// agent's first message.
	maxContentBytes = 16 * 1024

	defaultCacheTTL = 5 * time.Minute
	fetchTimeout    = 10 * time.Second
)

// Service resolves an alert's runbook_url into markdown content.
// Fetch failures are returned to the caller, which fails open: the agent
// run proceeds without a runbook.
type Service struct {
	cache      *Cache
	httpClient *http.Client
}

// NewService creates a Service with the default cache TTL.
func NewService() *Service {
	return &Service{
		cache:      NewCache(defaultCacheTTL),
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// OverrideHTTPClientForTest replaces the internal HTTP client.
// For testing only.
func (s *Service) OverrideHTTPClientForTest(httpClient *http.Client) {
	s.httpClient = httpClient
}

// Resolve fetches the runbook at rawURL, with caching. An empty URL
// resolves to empty content without error.
func (s *Service) Resolve(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid runbook URL %q", rawURL)
	}

	if content, ok := s.cache.Get(rawURL); ok {
		return content, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building runbook request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch runbook %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch runbook %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return "", fmt.Errorf("read runbook %s: %w", rawURL, err)
	}

	content := string(body)
	s.cache.Set(rawURL, content)
	return content, nil
}
