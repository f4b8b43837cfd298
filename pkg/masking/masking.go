// Package masking scrubs credential-shaped values from text before it is
// fed back to the model or recorded in the error ring. Tool results can
// contain raw service responses, and those sometimes echo headers or
// configuration the agent must never see verbatim.
package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatterns are the always-on patterns. Invalid patterns are logged
// and skipped at construction.
var builtinPatterns = []struct {
	name        string
	pattern     string
	replacement string
	description string
}{
	{
		name:        "api_key",
		pattern:     `(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{16,})`,
		replacement: `${1}=***MASKED_API_KEY***`,
		description: "API key assignments in JSON, YAML, or env output",
	},
	{
		name:        "bearer_token",
		pattern:     `(?i)bearer\s+[A-Za-z0-9_\-.~+/]{16,}=*`,
		replacement: `Bearer ***MASKED_TOKEN***`,
		description: "Authorization header bearer tokens",
	},
	{
		name:        "password",
		pattern:     `(?i)(password|passwd|pwd)["']?\s*[:=]\s*["']?([^\s"',}]{6,})`,
		replacement: `${1}=***MASKED_PASSWORD***`,
		description: "Password assignments",
	},
	{
		name:        "secret",
		pattern:     `(?i)(secret|token)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.~+/]{16,}=*)`,
		replacement: `${1}=***MASKED_SECRET***`,
		description: "Generic secret and token assignments",
	},
	{
		name:        "private_key",
		pattern:     `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
		replacement: `***MASKED_PRIVATE_KEY***`,
		description: "PEM private key blocks",
	},
}

// Scrubber applies the built-in patterns in a fixed order.
type Scrubber struct {
	patterns []*CompiledPattern
}

// NewScrubber compiles the built-in patterns.
func NewScrubber() *Scrubber {
	s := &Scrubber{}
	for _, p := range builtinPatterns {
		compiled, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", p.name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        p.name,
			Regex:       compiled,
			Replacement: p.replacement,
			Description: p.description,
		})
	}
	return s
}

// Scrub returns data with every pattern match replaced.
func (s *Scrubber) Scrub(data string) string {
	for _, p := range s.patterns {
		data = p.Regex.ReplaceAllString(data, p.Replacement)
	}
	return data
}
