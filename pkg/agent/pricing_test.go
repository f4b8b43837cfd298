package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	// gpt-4o: $2.50 in, $10.00 out per 1M tokens.
	cost := EstimateCost("gpt-4o", 1_000_000, 1_000_000)
	assert.InDelta(t, 12.50, cost, 1e-9)

	cost = EstimateCost("google/gemini-2.0-flash", 100_000, 50_000)
	assert.InDelta(t, 0.01+0.02, cost, 1e-9)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost("some-local-model", 1_000_000, 1_000_000))
}

func TestEstimateCost_ZeroUsage(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost("gpt-4o", 0, 0))
}
