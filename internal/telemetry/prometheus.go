package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromBus exports telemetry events as Prometheus metrics. It subscribes to
// the event bus like any other sink; publication failures cannot occur since
// metric updates are in-process and atomic.
type PromBus struct {
	callsTotal   *prometheus.CounterVec
	tokensTotal  *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewPromBus registers the bridge metrics on the given registerer. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewPromBus(reg prometheus.Registerer) *PromBus {
	factory := promauto.With(reg)
	return &PromBus{
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptfn_calls_total",
				Help: "Total number of function calls by outcome.",
			},
			[]string{"function", "outcome"}, // outcome: "ok" or "error"
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptfn_tokens_total",
				Help: "Total number of tokens consumed.",
			},
			[]string{"function", "direction"}, // direction: "input" or "output"
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptfn_call_duration_seconds",
				Help:    "Wall-clock duration of function calls in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"function"},
		),
	}
}

func (p *PromBus) Publish(e Event) {
	fn := e.Metadata.Function
	switch e.Kind {
	case EventStop:
		p.callsTotal.WithLabelValues(fn, "ok").Inc()
		p.callDuration.WithLabelValues(fn).Observe(e.Measurements.Duration.Seconds())
		p.tokensTotal.WithLabelValues(fn, "input").Add(float64(e.Measurements.Usage.InputTokens))
		p.tokensTotal.WithLabelValues(fn, "output").Add(float64(e.Measurements.Usage.OutputTokens))
	case EventException:
		p.callsTotal.WithLabelValues(fn, "error").Inc()
		p.callDuration.WithLabelValues(fn).Observe(e.Measurements.Duration.Seconds())
	}
}
