package telemetry

import (
	"time"

	"github.com/promptfn/runtime/internal/collector"
)

// EventKind names the lifecycle point of a call that an event reports.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventStop      EventKind = "stop"
	EventException EventKind = "exception"
)

// Measurements carries the numeric payload of an event. Time is captured with
// Go's wall+monotonic clock; Duration and Usage are only set on stop and
// exception events.
type Measurements struct {
	Time     time.Time
	Duration time.Duration
	Usage    collector.Usage
}

// Metadata identifies the call an event belongs to. It is identical between
// the start and stop events of the same call.
type Metadata struct {
	Resource string
	Action   string
	Function string
	Error    error
}

// Event is an immutable record published to the event bus at two or three
// points per call.
type Event struct {
	Name         string
	Kind         EventKind
	Measurements Measurements
	Metadata     Metadata
}
