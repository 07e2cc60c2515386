package engine

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/promptfn/runtime/internal/collector"
)

// Call carries everything an engine needs to execute one typed prompt
// function: the function name, its argument map, and an optional collector
// the engine populates with token usage and diagnostics. A Call is created
// fresh per invocation and owned by that invocation alone.
type Call struct {
	Function  string
	Args      map[string]any
	Collector *collector.Collector
}

// Engine executes typed, LLM-backed functions. Invoke blocks until the engine
// returns a single result. InvokeStream pushes every partial result through
// emit in production order and returns the final value; it must not call emit
// after it returns. Both shapes populate Call.Collector when one is attached.
type Engine interface {
	Invoke(ctx context.Context, call Call) (*schema.Message, error)
	InvokeStream(ctx context.Context, call Call, emit func(*schema.Message)) (*schema.Message, error)
}
