package envelope

import (
	"time"

	"github.com/promptfn/runtime/internal/collector"
)

// Envelope wraps a successful call's data together with the usage and
// diagnostic fields its collector accumulated. An envelope exists if and only
// if the call succeeded; error outcomes are returned unwrapped so error
// handling never needs envelope awareness. Immutable after construction.
type Envelope struct {
	Data      any
	Usage     collector.Usage
	Collector *collector.Collector

	Model     string
	Provider  string
	RequestID string
	Raw       any
	Attempts  int
	Duration  time.Duration
}

// Wrap builds the envelope for a successful call. Data is stored untouched;
// usage extraction goes through collector.Snapshot and therefore never faults,
// degrading to zero usage when the collector misbehaves.
func Wrap(data any, c *collector.Collector) *Envelope {
	e := &Envelope{
		Data:      data,
		Usage:     collector.Snapshot(c),
		Collector: c,
	}
	if c != nil {
		e.Model = c.Model()
		e.Provider = c.Provider()
		e.RequestID = c.RequestID()
		e.Raw = c.Raw()
		e.Attempts = c.Attempts()
		e.Duration = c.Duration()
	}
	return e
}

// Unwrap returns the wrapped data when v is an envelope and v unchanged
// otherwise. Unwrapping twice is safe: the data itself is never an envelope.
func Unwrap(v any) any {
	if e, ok := v.(*Envelope); ok && e != nil {
		return e.Data
	}
	return v
}

// UsageOf returns the usage snapshot when v is an envelope, nil otherwise.
func UsageOf(v any) *collector.Usage {
	if e, ok := v.(*Envelope); ok && e != nil {
		u := e.Usage
		return &u
	}
	return nil
}
