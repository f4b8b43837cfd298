package agent

// modelPricing holds per-1M-token USD prices (input, output). Used for
// cost estimation only, not billing. Unknown models estimate to zero.
var modelPricing = map[string][2]float64{
	"google/gemini-2.0-flash": {0.10, 0.40},
	"google/gemini-2.5-flash": {0.15, 0.60},
	"google/gemini-2.5-pro":   {1.25, 10.00},
	"gpt-4o":                  {2.50, 10.00},
	"gpt-4o-mini":             {0.15, 0.60},
}

// EstimateCost estimates LLM spend in USD from token usage.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*pricing[0] + float64(outputTokens)*pricing[1]) / 1_000_000
}
