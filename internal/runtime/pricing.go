package runtime

import (
	"github.com/promptfn/runtime/internal/collector"
	"github.com/promptfn/runtime/internal/telemetry"
	logx "github.com/promptfn/runtime/pkg/logger"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M tokens (text tokens).
var defaultPricing = map[string]Pricing{
	// Source: Gemini pricing (Standard; text). Adjust for audio/image if needed.
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns hardcoded pricing for a model.
func ResolvePricing(model string) Pricing {
	p, ok := defaultPricing[model]
	if !ok {
		// fallback to zero pricing if unknown
		return Pricing{}
	}
	return p
}

// ComputeCost converts a usage snapshot to USD cost using per-1M Pricing.
func ComputeCost(usage collector.Usage, p Pricing) (inputCost, outputCost, total float64) {
	inputCost = p.InputPerM * float64(usage.InputTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.OutputTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// CostBus is an event-bus subscriber that logs the estimated USD cost of each
// completed call. The model name is fixed at construction because stop events
// carry usage, not model identity.
type CostBus struct {
	model   string
	pricing Pricing
}

// NewCostBus builds the cost subscriber for the given model.
func NewCostBus(model string) *CostBus {
	return &CostBus{model: model, pricing: ResolvePricing(model)}
}

func (b *CostBus) Publish(e telemetry.Event) {
	if e.Kind != telemetry.EventStop {
		return
	}
	in, out, total := ComputeCost(e.Measurements.Usage, b.pricing)
	logx.Debug().
		Str("function", e.Metadata.Function).
		Str("model", b.model).
		Float64("input_cost_usd", in).
		Float64("output_cost_usd", out).
		Float64("total_cost_usd", total).
		Msg("call cost")
}
