package runtime

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/promptfn/runtime/internal/collector"
	"github.com/promptfn/runtime/internal/engine"
	"github.com/promptfn/runtime/internal/envelope"
	"github.com/promptfn/runtime/internal/stream"
	"github.com/promptfn/runtime/internal/telemetry"
)

// InvocationDescriptor identifies one call through the invocation boundary.
// Created fresh per call and owned by that call alone.
type InvocationDescriptor struct {
	Function string
	Args     map[string]any

	// Resource and Action name the owning resource; they ride along as
	// telemetry metadata only.
	Resource string
	Action   string

	// Telemetry is the per-call event configuration. The zero value means
	// telemetry.DefaultConfig.
	Telemetry *telemetry.Config

	// Decode resolves the engine's raw message into the value the generated
	// binding expects, including variant selection for multi-shape results.
	// It runs before envelope wrapping, so the envelope's Data is the fully
	// resolved value. Nil leaves the raw message as the data.
	Decode func(*schema.Message) (any, error)

	// Collector optionally supplies a pre-existing collector to reuse; the
	// bridge never creates a second one when it is set.
	Collector *collector.Collector
}

func (d InvocationDescriptor) telemetryDescriptor() telemetry.Descriptor {
	cfg := telemetry.DefaultConfig()
	if d.Telemetry != nil {
		cfg = *d.Telemetry
	}
	return telemetry.Descriptor{
		Function: d.Function,
		Resource: d.Resource,
		Action:   d.Action,
		Config:   cfg,
	}
}

// Client is the call-execution bridge between generated function bindings and
// the prompt-execution engine. It holds no per-call state; one Client serves
// any number of concurrent calls.
type Client struct {
	engine    engine.Engine
	exec      *telemetry.Executor
	streamCfg stream.Config
}

// NewClient wires a client over the given engine. Events go to bus (nil for
// none); streamCfg zero values fall back to the stream defaults.
func NewClient(eng engine.Engine, bus telemetry.Bus, streamCfg stream.Config) *Client {
	return &Client{
		engine:    eng,
		exec:      telemetry.NewExecutor(bus),
		streamCfg: streamCfg,
	}
}

// Invoke executes one single-shot call. On success the decoded result comes
// back wrapped in a usage-bearing envelope; on failure the error propagates
// unwrapped, exactly as the engine reported it.
func (c *Client) Invoke(ctx context.Context, desc InvocationDescriptor) (*envelope.Envelope, error) {
	coll := desc.Collector
	if coll == nil {
		coll = collector.New()
	}

	out, err := c.exec.Execute(ctx, desc.telemetryDescriptor(), coll, func(ctx context.Context, coll *collector.Collector) (any, error) {
		msg, err := c.engine.Invoke(ctx, engine.Call{
			Function:  desc.Function,
			Args:      desc.Args,
			Collector: coll,
		})
		if err != nil {
			return nil, err
		}
		if desc.Decode != nil {
			return desc.Decode(msg)
		}
		return msg, nil
	})
	if err != nil {
		return nil, err
	}
	return envelope.Wrap(out, coll), nil
}

// OpenStream starts one streaming call and returns its pull session. The
// session's collector carries usage once the stream completes; no telemetry
// events are emitted on the streaming path.
func (c *Client) OpenStream(ctx context.Context, desc InvocationDescriptor) *stream.Session {
	coll := desc.Collector
	if coll == nil {
		coll = collector.New()
	}
	return stream.Open(ctx, c.engine, engine.Call{
		Function:  desc.Function,
		Args:      desc.Args,
		Collector: coll,
	}, c.streamCfg)
}
