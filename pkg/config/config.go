// Package config loads runtime configuration from environment variables.
// Secrets are injected from the deployment's secret manager; nothing is
// hardcoded here.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/sre-agent/pkg/models"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultLLMBaseURL        = "https://models.inference.ai.azure.com"
	DefaultLLMModel          = "gpt-4o"
	DefaultEscalationTurn    = 5
	DefaultMaxConcurrent     = 3
	DefaultQueueTTLSeconds   = 600
	DefaultTokensPerIncident = 100000
	DefaultSMTPPort          = 587
	DefaultSystemPromptPath  = "/app/SRE_PROMPT.md"
	DefaultIncidentsDir      = "/app/incidents"
)

// Config is the full runtime configuration. Load validates everything up
// front so startup fails fast on a bad deployment.
type Config struct {
	// LLM provider (any OpenAI-compatible endpoint).
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// Two-phase model escalation: start on the fast model, switch after
	// EscalationTurn turns when EscalationModel is set.
	LLMEscalationModel string
	LLMEscalationTurn  int

	// Incident provider.
	PagerDutyAPIToken           string
	PagerDutyEscalationPolicyID string
	PagerDutyRoutingKey         string
	PagerDutyWebhookSecret      string

	// Agent instructions and report output.
	SystemPromptPath string
	IncidentsDir     string

	// Monitored services and their scaling bounds.
	Services      []models.ServiceEndpoint
	ScalingLimits map[string]models.ScalingLimit

	// Intake pipeline knobs.
	MaxConcurrentAlerts  int
	AlertQueueTTLSeconds int

	// Token budget controls. MaxTokensPerHour == 0 means unlimited.
	MaxTokensPerIncident int
	MaxTokensPerHour     int

	// SMTP for emailed incident reports. Optional; email tooling reports
	// a configuration error when Host or To is empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       string

	// Bearer token for the agent's own /ops/* surface and for the /ops/*
	// endpoints it calls on monitored services.
	OpsAuthToken string
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		LLMBaseURL:                  envOr("LLM_API_BASE_URL", DefaultLLMBaseURL),
		LLMModel:                    envOr("LLM_MODEL", DefaultLLMModel),
		LLMEscalationModel:          os.Getenv("LLM_MODEL_ESCALATION"),
		PagerDutyEscalationPolicyID: os.Getenv("PAGERDUTY_ESCALATION_POLICY_ID"),
		PagerDutyRoutingKey:         os.Getenv("PAGERDUTY_ROUTING_KEY"),
		PagerDutyWebhookSecret:      os.Getenv("PAGERDUTY_WEBHOOK_SECRET"),
		SystemPromptPath:            envOr("SRE_PROMPT_PATH", DefaultSystemPromptPath),
		IncidentsDir:                envOr("INCIDENTS_DIR", DefaultIncidentsDir),
		SMTPHost:                    os.Getenv("SMTP_HOST"),
		SMTPUsername:                os.Getenv("SMTP_USERNAME"),
		SMTPPassword:                os.Getenv("SMTP_PASSWORD"),
		SMTPTo:                      os.Getenv("SMTP_TO"),
	}

	var err error
	if cfg.LLMAPIKey, err = require("LLM_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.PagerDutyAPIToken, err = require("PAGERDUTY_API_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.OpsAuthToken, err = require("OPS_AUTH_TOKEN"); err != nil {
		return nil, err
	}

	if cfg.LLMEscalationTurn, err = envInt("LLM_ESCALATION_TURN", DefaultEscalationTurn); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentAlerts, err = envInt("MAX_CONCURRENT_ALERTS", DefaultMaxConcurrent); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentAlerts < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_ALERTS must be >= 1, got %d", cfg.MaxConcurrentAlerts)
	}
	if cfg.AlertQueueTTLSeconds, err = envInt("ALERT_QUEUE_TTL_SECONDS", DefaultQueueTTLSeconds); err != nil {
		return nil, err
	}
	if cfg.AlertQueueTTLSeconds < 0 {
		return nil, fmt.Errorf("ALERT_QUEUE_TTL_SECONDS must be >= 0, got %d", cfg.AlertQueueTTLSeconds)
	}
	if cfg.MaxTokensPerIncident, err = envInt("MAX_TOKENS_PER_INCIDENT", DefaultTokensPerIncident); err != nil {
		return nil, err
	}
	if cfg.MaxTokensPerIncident < 0 {
		return nil, fmt.Errorf("MAX_TOKENS_PER_INCIDENT must be >= 0, got %d", cfg.MaxTokensPerIncident)
	}
	if cfg.MaxTokensPerHour, err = envInt("MAX_TOKENS_PER_HOUR", 0); err != nil {
		return nil, err
	}
	if cfg.MaxTokensPerHour < 0 {
		return nil, fmt.Errorf("MAX_TOKENS_PER_HOUR must be >= 0, got %d", cfg.MaxTokensPerHour)
	}
	if cfg.SMTPPort, err = envInt("SMTP_PORT", DefaultSMTPPort); err != nil {
		return nil, err
	}
	cfg.SMTPFrom = envOr("SMTP_FROM", cfg.SMTPUsername)

	registry, err := require("SERVICE_REGISTRY")
	if err != nil {
		return nil, err
	}
	if cfg.Services, err = ParseServices(registry); err != nil {
		return nil, err
	}
	if cfg.ScalingLimits, err = ParseScalingLimits(os.Getenv("SCALING_LIMITS")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseServices parses the SERVICE_REGISTRY grammar:
// name|url|critical,name|url|critical. The critical flag defaults to true.
func ParseServices(raw string) ([]models.ServiceEndpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var services []models.ServiceEndpoint
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		parts := strings.Split(entry, "|")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid SERVICE_REGISTRY entry %q: expected name|url|critical", entry)
		}
		name := strings.TrimSpace(parts[0])
		rawURL := strings.TrimSpace(parts[1])
		parsed, err := url.Parse(rawURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("invalid URL scheme for service %q: %s (must be http or https)", name, rawURL)
		}
		critical := true
		if len(parts) > 2 {
			critical = strings.EqualFold(strings.TrimSpace(parts[2]), "true")
		}
		services = append(services, models.ServiceEndpoint{
			Name:     name,
			BaseURL:  rawURL,
			Critical: critical,
		})
	}
	return services, nil
}

// ParseScalingLimits parses the SCALING_LIMITS grammar:
// name|min|max|mode,name|min|max|mode.
func ParseScalingLimits(raw string) (map[string]models.ScalingLimit, error) {
	limits := make(map[string]models.ScalingLimit)
	if strings.TrimSpace(raw) == "" {
		return limits, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		parts := strings.Split(entry, "|")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid SCALING_LIMITS entry %q: expected name|min|max|mode", entry)
		}
		name := strings.TrimSpace(parts[0])
		minInst, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid SCALING_LIMITS entry for %q: min and max must be integers", name)
		}
		maxInst, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid SCALING_LIMITS entry for %q: min and max must be integers", name)
		}
		mode := models.ScalingMode(strings.TrimSpace(parts[3]))
		if mode != models.ScalingModeApplication && mode != models.ScalingModeCloudNative {
			return nil, fmt.Errorf("invalid scaling mode for %q: %q (must be application or cloud_native)", name, mode)
		}
		if minInst < 1 {
			return nil, fmt.Errorf("invalid min_instances for %q: %d (must be >= 1)", name, minInst)
		}
		if maxInst < minInst {
			return nil, fmt.Errorf("invalid scaling limits for %q: max (%d) must be >= min (%d)", name, maxInst, minInst)
		}
		limits[name] = models.ScalingLimit{
			ServiceName:  name,
			MinInstances: minInst,
			MaxInstances: maxInst,
			Mode:         mode,
		}
	}
	return limits, nil
}

// ServiceByName looks up a registered service endpoint.
func (c *Config) ServiceByName(name string) (models.ServiceEndpoint, bool) {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return models.ServiceEndpoint{}, false
}

// LoadSystemPrompt reads the agent instructions from disk.
func (c *Config) LoadSystemPrompt() (string, error) {
	data, err := os.ReadFile(c.SystemPromptPath)
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}
	return string(data), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func require(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return v, nil
}
