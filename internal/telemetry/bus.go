package telemetry

import (
	logx "github.com/promptfn/runtime/pkg/logger"
)

// Bus receives telemetry events. Publication is fire-and-forget: a Publish
// implementation must not block the caller, and a failing subscriber must
// never mutate or mask the instrumented call's outcome.
type Bus interface {
	Publish(e Event)
}

// NopBus discards every event. It is the default when no subscriber is wired,
// so publication to zero subscribers stays a no-op.
type NopBus struct{}

func (NopBus) Publish(Event) {}

// LogBus writes events to the structured log.
type LogBus struct{}

func (LogBus) Publish(e Event) {
	ev := logx.Debug().
		Str("event", e.Name).
		Str("function", e.Metadata.Function).
		Str("resource", e.Metadata.Resource).
		Str("action", e.Metadata.Action)
	switch e.Kind {
	case EventStop:
		ev = ev.Dur("duration", e.Measurements.Duration).
			Int("input_tokens", e.Measurements.Usage.InputTokens).
			Int("output_tokens", e.Measurements.Usage.OutputTokens).
			Int("total_tokens", e.Measurements.Usage.TotalTokens)
	case EventException:
		ev = ev.Dur("duration", e.Measurements.Duration).Err(e.Metadata.Error)
	}
	ev.Msg("telemetry event")
}

// Fanout publishes to every subscriber independently. A panicking subscriber
// is isolated and logged; the remaining subscribers still receive the event.
type Fanout struct {
	subs []Bus
}

// NewFanout builds a bus over the given subscribers.
func NewFanout(subs ...Bus) *Fanout {
	return &Fanout{subs: subs}
}

func (f *Fanout) Publish(e Event) {
	for _, sub := range f.subs {
		publishSafe(sub, e)
	}
}

func publishSafe(sub Bus, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logx.Warn().Any("panic", r).Str("event", e.Name).Msg("telemetry subscriber panicked")
		}
	}()
	sub.Publish(e)
}
