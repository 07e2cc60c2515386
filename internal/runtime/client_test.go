package runtime

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptfn/runtime/internal/collector"
	"github.com/promptfn/runtime/internal/engine"
	"github.com/promptfn/runtime/internal/envelope"
	"github.com/promptfn/runtime/internal/stream"
	"github.com/promptfn/runtime/internal/telemetry"
)

// scriptedEngine answers every call with a fixed result and records usage on
// the attached collector, standing in for the external engine.
type scriptedEngine struct {
	result *schema.Message
	chunks []*schema.Message
	err    error
	input  int
	output int
}

func (s *scriptedEngine) populate(c *collector.Collector) {
	if c == nil {
		return
	}
	c.RecordUsage(s.input, s.output, 0)
	c.SetModel("gemini-2.5-flash")
	c.SetProvider("gemini")
	c.AddAttempt()
}

func (s *scriptedEngine) Invoke(ctx context.Context, call engine.Call) (*schema.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.populate(call.Collector)
	return s.result, nil
}

func (s *scriptedEngine) InvokeStream(ctx context.Context, call engine.Call, emit func(*schema.Message)) (*schema.Message, error) {
	for _, c := range s.chunks {
		emit(c)
	}
	if s.err != nil {
		return nil, s.err
	}
	s.populate(call.Collector)
	return s.result, nil
}

func descriptor() InvocationDescriptor {
	return InvocationDescriptor{
		Function: "SummarizeTicket",
		Args:     map[string]any{"ticket": "it is broken"},
		Resource: "support",
		Action:   "summarize",
	}
}

func TestInvokeWrapsSuccessInEnvelope(t *testing.T) {
	eng := &scriptedEngine{
		result: &schema.Message{Role: schema.Assistant, Content: "summary"},
		input:  100,
		output: 20,
	}
	client := NewClient(eng, nil, stream.Config{})

	env, err := client.Invoke(context.Background(), descriptor())
	require.NoError(t, err)
	require.NotNil(t, env)

	msg, ok := env.Data.(*schema.Message)
	require.True(t, ok)
	assert.Equal(t, "summary", msg.Content)
	assert.Equal(t, 120, env.Usage.TotalTokens)
	assert.Equal(t, "gemini-2.5-flash", env.Model)
	assert.Equal(t, "gemini", env.Provider)

	// unwrap(unwrap(e)) == unwrap(e)
	assert.Equal(t, envelope.Unwrap(env), envelope.Unwrap(envelope.Unwrap(env)))
}

func TestInvokeErrorStaysUnwrapped(t *testing.T) {
	boom := errors.New("provider unavailable")
	client := NewClient(&scriptedEngine{err: boom}, nil, stream.Config{})

	env, err := client.Invoke(context.Background(), descriptor())
	assert.Nil(t, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// The error value must never be an envelope.
	_, isEnvelope := any(err).(*envelope.Envelope)
	assert.False(t, isEnvelope)
}

func TestInvokeDecodeRunsBeforeWrapping(t *testing.T) {
	eng := &scriptedEngine{
		result: &schema.Message{Role: schema.Assistant, Content: `option_b`},
	}
	client := NewClient(eng, nil, stream.Config{})

	type variant struct {
		Case  string
		Value string
	}

	desc := descriptor()
	desc.Decode = func(m *schema.Message) (any, error) {
		return variant{Case: "B", Value: m.Content}, nil
	}

	env, err := client.Invoke(context.Background(), desc)
	require.NoError(t, err)

	v, ok := env.Data.(variant)
	require.True(t, ok, "envelope data must be the fully resolved variant value")
	assert.Equal(t, "B", v.Case)
	assert.Equal(t, "option_b", v.Value)
}

func TestInvokeDecodeFailureIsNotWrapped(t *testing.T) {
	eng := &scriptedEngine{result: &schema.Message{Content: "garbage"}}
	client := NewClient(eng, nil, stream.Config{})

	desc := descriptor()
	decodeErr := errors.New("no variant matched")
	desc.Decode = func(m *schema.Message) (any, error) { return nil, decodeErr }

	env, err := client.Invoke(context.Background(), desc)
	assert.Nil(t, env)
	assert.ErrorIs(t, err, decodeErr)
}

func TestInvokeTelemetryDisabledStillPopulatesUsage(t *testing.T) {
	eng := &scriptedEngine{
		result: &schema.Message{Content: "ok"},
		input:  5,
		output: 3,
	}
	client := NewClient(eng, nil, stream.Config{})

	desc := descriptor()
	desc.Telemetry = &telemetry.Config{Enabled: false, SampleRate: 0}

	env, err := client.Invoke(context.Background(), desc)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, 8, env.Usage.TotalTokens, "usage availability is independent of telemetry")
}

func TestInvokeEmitsTelemetryThroughBus(t *testing.T) {
	eng := &scriptedEngine{result: &schema.Message{Content: "ok"}, input: 2, output: 2}

	var events []telemetry.Event
	bus := busFunc(func(e telemetry.Event) { events = append(events, e) })
	client := NewClient(eng, bus, stream.Config{})

	_, err := client.Invoke(context.Background(), descriptor())
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, telemetry.EventStart, events[0].Kind)
	assert.Equal(t, telemetry.EventStop, events[1].Kind)
	assert.Equal(t, "SummarizeTicket", events[1].Metadata.Function)
	assert.Equal(t, 4, events[1].Measurements.Usage.TotalTokens)
}

type busFunc func(telemetry.Event)

func (f busFunc) Publish(e telemetry.Event) { f(e) }

func TestOpenStreamEndToEnd(t *testing.T) {
	eng := &scriptedEngine{
		chunks: []*schema.Message{
			{Role: schema.Assistant, Content: "a"},
			{Role: schema.Assistant},
			{Role: schema.Assistant, Content: "b"},
		},
		result: &schema.Message{Role: schema.Assistant, Content: "c"},
		input:  9,
		output: 4,
	}
	client := NewClient(eng, nil, stream.Config{})

	sess := client.OpenStream(context.Background(), descriptor())
	defer sess.Close()

	var contents []string
	for {
		m, err := sess.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		contents = append(contents, m.Content)
	}

	assert.Equal(t, []string{"a", "b", "c"}, contents)
	assert.Equal(t, stream.PhaseCompleted, sess.Phase())

	u := collector.Snapshot(sess.Collector())
	assert.Equal(t, 13, u.TotalTokens)
}

func TestPricing(t *testing.T) {
	p := ResolvePricing("gemini-2.5-flash")
	in, out, total := ComputeCost(collector.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, p)
	assert.InDelta(t, 0.30, in, 1e-9)
	assert.InDelta(t, 2.50, out, 1e-9)
	assert.InDelta(t, 2.80, total, 1e-9)

	unknown := ResolvePricing("mystery-model")
	_, _, total = ComputeCost(collector.Usage{InputTokens: 10, OutputTokens: 10}, unknown)
	assert.Zero(t, total)
}
