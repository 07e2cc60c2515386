package collector

import (
	"time"

	"github.com/cloudwego/eino/schema"

	logx "github.com/promptfn/runtime/pkg/logger"
)

// Usage is a snapshot of token consumption for exactly one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// IsZero reports whether no tokens were recorded.
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0
}

// Collector accumulates usage and diagnostic data for a single in-flight call.
// It is created immediately before the engine invocation, handed to the engine,
// and read exactly once after the call returns. It is never shared across calls
// and never reused; the call being synchronous up to the read provides the
// required happens-before ordering, so no locking is involved.
type Collector struct {
	usage   *Usage
	usageFn func() Usage

	model     string
	provider  string
	requestID string
	raw       any
	attempts  int
	duration  time.Duration
}

// New creates an empty collector for one call.
func New() *Collector {
	return &Collector{}
}

// RecordUsage stores an explicit token count. Total is derived when the engine
// reports only the input/output split.
func (c *Collector) RecordUsage(input, output, total int) {
	if total == 0 {
		total = input + output
	}
	c.usage = &Usage{InputTokens: input, OutputTokens: output, TotalTokens: total}
}

// RecordResponseMeta fills the collector from an eino response, covering the
// common case where the engine is an eino chat model.
func (c *Collector) RecordResponseMeta(model string, meta *schema.ResponseMeta) {
	c.model = model
	if meta == nil {
		return
	}
	if meta.Usage != nil {
		c.RecordUsage(meta.Usage.PromptTokens, meta.Usage.CompletionTokens, meta.Usage.TotalTokens)
	}
	c.raw = meta
}

// SetUsageFunc installs a lazy extractor for engines with non-standard token
// accounting. The function runs on first read and is allowed to panic; readers
// go through Snapshot, which degrades a panic to zero usage.
func (c *Collector) SetUsageFunc(fn func() Usage) {
	c.usageFn = fn
}

func (c *Collector) SetProvider(provider string) { c.provider = provider }
func (c *Collector) SetModel(model string)       { c.model = model }
func (c *Collector) SetRequestID(id string)      { c.requestID = id }
func (c *Collector) SetRaw(raw any)              { c.raw = raw }
func (c *Collector) AddAttempt()                 { c.attempts++ }

// SetDuration records the engine-observed call duration.
func (c *Collector) SetDuration(d time.Duration) { c.duration = d }

// Usage returns the recorded snapshot. It may panic when a lazy extractor
// installed by the engine misbehaves; callers outside the engine should use
// Snapshot instead.
func (c *Collector) Usage() Usage {
	if c.usage != nil {
		return *c.usage
	}
	if c.usageFn != nil {
		return c.usageFn()
	}
	return Usage{}
}

func (c *Collector) Model() string           { return c.model }
func (c *Collector) Provider() string        { return c.provider }
func (c *Collector) RequestID() string       { return c.requestID }
func (c *Collector) Raw() any                { return c.raw }
func (c *Collector) Attempts() int           { return c.attempts }
func (c *Collector) Duration() time.Duration { return c.duration }

// Snapshot reads the usage from a collector without ever faulting. A nil
// collector or a panicking extractor degrades to zero usage with a logged
// diagnostic; the call outcome is never affected by extraction failures.
func Snapshot(c *Collector) (u Usage) {
	if c == nil {
		return Usage{}
	}
	defer func() {
		if r := recover(); r != nil {
			logx.Warn().Any("panic", r).Msg("usage extraction failed; degrading to zero usage")
			u = Usage{}
		}
	}()
	return c.Usage()
}
