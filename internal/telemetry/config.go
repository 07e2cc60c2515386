package telemetry

import "strings"

// Config controls event publication for one call. The zero value disables
// everything; DefaultConfig matches the documented defaults (enabled, full
// sampling, all event kinds).
type Config struct {
	Enabled     bool     `envconfig:"TELEMETRY_ENABLED" default:"true"`
	SampleRate  float64  `envconfig:"TELEMETRY_SAMPLE_RATE" default:"1.0"`
	Events      []string `envconfig:"TELEMETRY_EVENTS" default:"start,stop,exception"`
	EventPrefix string   `envconfig:"TELEMETRY_EVENT_PREFIX" default:"promptfn.call"`
}

// DefaultConfig returns the per-call telemetry defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		SampleRate:  1.0,
		Events:      []string{string(EventStart), string(EventStop), string(EventException)},
		EventPrefix: "promptfn.call",
	}
}

// Emits reports whether the given event kind is selected.
func (c Config) Emits(kind EventKind) bool {
	for _, e := range c.Events {
		if EventKind(strings.TrimSpace(e)) == kind {
			return true
		}
	}
	return false
}

// EventName builds the prefix-qualified name for an event kind.
func (c Config) EventName(kind EventKind) string {
	prefix := c.EventPrefix
	if prefix == "" {
		prefix = "promptfn.call"
	}
	return prefix + "." + string(kind)
}

// Descriptor identifies one call for instrumentation purposes: the target
// function, the owning resource/action identity (telemetry metadata only),
// and the per-call telemetry configuration. Created fresh per call, immutable.
type Descriptor struct {
	Function string
	Resource string
	Action   string
	Config   Config
}

// Metadata builds the event metadata shared by the start and stop events.
func (d Descriptor) Metadata() Metadata {
	return Metadata{
		Resource: d.Resource,
		Action:   d.Action,
		Function: d.Function,
	}
}
