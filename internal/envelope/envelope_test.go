package envelope

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptfn/runtime/internal/collector"
)

func TestWrapCarriesDataAndUsage(t *testing.T) {
	c := collector.New()
	c.RecordUsage(30, 12, 0)
	c.SetModel("gemini-2.5-flash")
	c.SetProvider("gemini")
	c.AddAttempt()

	data := &schema.Message{Role: schema.Assistant, Content: "hello"}
	e := Wrap(data, c)

	assert.Same(t, data, e.Data, "data must be stored untouched")
	assert.Equal(t, 30, e.Usage.InputTokens)
	assert.Equal(t, 12, e.Usage.OutputTokens)
	assert.Equal(t, 42, e.Usage.TotalTokens)
	assert.Same(t, c, e.Collector)
	assert.Equal(t, "gemini-2.5-flash", e.Model)
	assert.Equal(t, "gemini", e.Provider)
	assert.Equal(t, 1, e.Attempts)
}

func TestWrapNilCollectorDegradesToZeroUsage(t *testing.T) {
	e := Wrap("data", nil)
	assert.True(t, e.Usage.IsZero())
	assert.Equal(t, "data", e.Data)
}

func TestWrapPanickingCollectorDegradesToZeroUsage(t *testing.T) {
	c := collector.New()
	c.SetUsageFunc(func() collector.Usage { panic("broken") })

	var e *Envelope
	assert.NotPanics(t, func() { e = Wrap("data", c) })
	assert.True(t, e.Usage.IsZero())
}

func TestUnwrapIsIdempotent(t *testing.T) {
	e := Wrap("payload", nil)

	once := Unwrap(e)
	twice := Unwrap(once)
	require.Equal(t, "payload", once)
	assert.Equal(t, once, twice)
}

func TestUnwrapPassesThroughNonEnvelopes(t *testing.T) {
	assert.Equal(t, "plain", Unwrap("plain"))
	assert.Nil(t, Unwrap(nil))

	var nilEnv *Envelope
	assert.Nil(t, Unwrap(nilEnv))
}

func TestUsageOf(t *testing.T) {
	c := collector.New()
	c.RecordUsage(5, 5, 0)

	u := UsageOf(Wrap("data", c))
	require.NotNil(t, u)
	assert.Equal(t, 10, u.TotalTokens)

	assert.Nil(t, UsageOf("not an envelope"))
}
