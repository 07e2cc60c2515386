package telemetry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/promptfn/runtime/internal/collector"
	logx "github.com/promptfn/runtime/pkg/logger"
)

// CallFunc performs the actual engine invocation. It receives the collector
// for this call so the engine can record usage regardless of whether any
// telemetry event is published.
type CallFunc func(ctx context.Context, c *collector.Collector) (any, error)

// Executor instruments calls with sampling-aware telemetry events and hands
// every call a usage collector. It holds no per-call state; one Executor
// serves any number of concurrent calls.
type Executor struct {
	bus Bus
	// draw produces the uniform sample compared against the configured rate.
	// Swapped out in tests for deterministic sampling decisions.
	draw func() float64
}

// NewExecutor creates an executor publishing to the given bus. A nil bus
// degrades to NopBus.
func NewExecutor(bus Bus) *Executor {
	if bus == nil {
		bus = NopBus{}
	}
	return &Executor{bus: bus, draw: rand.Float64}
}

// Execute runs fn with a usage collector attached and returns fn's own result
// unchanged. When the descriptor enables telemetry and the call is sampled,
// start/stop events bracket the invocation and a failure additionally emits
// an exception event before the error propagates. A caller-supplied collector
// is reused instead of creating a second one, so usage always reflects the
// actual call.
func (x *Executor) Execute(ctx context.Context, desc Descriptor, c *collector.Collector, fn CallFunc) (any, error) {
	if c == nil {
		c = collector.New()
	}

	// Usage extraction is independent of event publication: when events are
	// off or the call is not sampled, the collector still rides along.
	if !desc.Config.Enabled || !x.sampled(desc.Config.SampleRate) {
		return fn(ctx, c)
	}

	meta := desc.Metadata()
	start := time.Now()

	if desc.Config.Emits(EventStart) {
		x.publish(Event{
			Name:         desc.Config.EventName(EventStart),
			Kind:         EventStart,
			Measurements: Measurements{Time: start},
			Metadata:     meta,
		})
	}

	defer func() {
		if r := recover(); r != nil {
			x.publishException(desc, meta, start, panicError{val: r})
			panic(r)
		}
	}()

	out, err := fn(ctx, c)
	if err != nil {
		x.publishException(desc, meta, start, err)
		return out, err
	}

	if desc.Config.Emits(EventStop) {
		x.publish(Event{
			Name: desc.Config.EventName(EventStop),
			Kind: EventStop,
			Measurements: Measurements{
				Time:     time.Now(),
				Duration: time.Since(start),
				Usage:    collector.Snapshot(c),
			},
			Metadata: meta,
		})
	}
	return out, nil
}

func (x *Executor) publishException(desc Descriptor, meta Metadata, start time.Time, err error) {
	if !desc.Config.Emits(EventException) {
		return
	}
	meta.Error = err
	x.publish(Event{
		Name: desc.Config.EventName(EventException),
		Kind: EventException,
		Measurements: Measurements{
			Time:     time.Now(),
			Duration: time.Since(start),
		},
		Metadata: meta,
	})
}

// publish shields the call from the bus: a subscriber panic is logged and
// dropped, never surfaced to the instrumented call.
func (x *Executor) publish(e Event) {
	defer func() {
		if r := recover(); r != nil {
			logx.Warn().Any("panic", r).Str("event", e.Name).
				Msg("telemetry bus panicked; event dropped")
		}
	}()
	x.bus.Publish(e)
}

func (x *Executor) sampled(rate float64) bool {
	if rate >= 1.0 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return x.draw() < rate
}

// panicError adapts a recovered panic value into the event metadata's error
// slot without altering what gets re-panicked.
type panicError struct {
	val any
}

func (p panicError) Error() string {
	if err, ok := p.val.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("panic: %v", p.val)
}
