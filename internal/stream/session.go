package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/promptfn/runtime/internal/collector"
	errx "github.com/promptfn/runtime/internal/core/error"
	"github.com/promptfn/runtime/internal/engine"
	logx "github.com/promptfn/runtime/pkg/logger"
)

// Config controls the pull side of a stream session, sourced from
// environment variables.
type Config struct {
	// ReadTimeout bounds each individual Recv; the stream as a whole has no
	// aggregate deadline.
	ReadTimeout time.Duration `envconfig:"STREAM_READ_TIMEOUT" default:"300ms"`
	// DrainLimit caps how many stale messages Close discards, so cleanup
	// terminates even under message flooding.
	DrainLimit int `envconfig:"STREAM_DRAIN_LIMIT" default:"1024"`
	// MailboxSize is the buffered capacity between the worker and the consumer.
	MailboxSize int `envconfig:"STREAM_MAILBOX_SIZE" default:"64"`
}

// DefaultConfig returns the stream defaults.
func DefaultConfig() Config {
	return Config{ReadTimeout: 300 * time.Millisecond, DrainLimit: 1024, MailboxSize: 64}
}

func (c Config) normalized() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 300 * time.Millisecond
	}
	if c.DrainLimit <= 0 {
		c.DrainLimit = 1024
	}
	if c.MailboxSize < 0 {
		c.MailboxSize = 0
	}
	return c
}

// Phase is the lifecycle state of a session. It starts at Streaming and moves
// exactly once to one of the terminal phases.
type Phase string

const (
	PhaseStreaming Phase = "streaming"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseAbandoned Phase = "abandoned"
	PhaseTimedOut  Phase = "timed_out"
)

// message is one mailbox entry, tagged with the owning session's correlation
// token so stale entries can be recognized and discarded.
type message struct {
	token string
	chunk *schema.Message
	final *schema.Message
	err   error
	done  bool
}

// Session is the pull side of one streaming call: a lazily produced, finite,
// single-pass sequence of chunks ending with the final value. It is not safe
// for concurrent use and not restartable; a second consumption requires a new
// session. Recv follows the eino stream contract and returns io.EOF once the
// sequence is exhausted.
type Session struct {
	token   string
	cfg     Config
	mailbox chan message
	// stop unblocks a worker still trying to send after the consumer is gone.
	stop   chan struct{}
	cancel context.CancelFunc

	phase     Phase
	err       error
	closeOnce sync.Once
	coll      *collector.Collector
}

// Open spawns the background worker for one streaming call and returns the
// live session. The worker forwards every chunk the engine emits, tagged with
// the session's correlation token, followed by exactly one completion message.
func Open(ctx context.Context, eng engine.Engine, call engine.Call, cfg Config) *Session {
	cfg = cfg.normalized()
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		token:   uuid.NewString(),
		cfg:     cfg,
		mailbox: make(chan message, cfg.MailboxSize),
		stop:    make(chan struct{}),
		cancel:  cancel,
		phase:   PhaseStreaming,
		coll:    call.Collector,
	}
	go s.work(ctx, eng, call)
	return s
}

func (s *Session) work(ctx context.Context, eng engine.Engine, call engine.Call) {
	final, err := eng.InvokeStream(ctx, call, func(m *schema.Message) {
		s.send(message{token: s.token, chunk: m})
	})
	if err != nil {
		s.send(message{token: s.token, done: true, err: err})
		return
	}
	s.send(message{token: s.token, done: true, final: final})
}

// send delivers a message unless the consumer already tore the session down,
// in which case the message is silently discarded and the worker unblocks.
func (s *Session) send(m message) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.mailbox <- m:
	case <-s.stop:
	}
}

// Recv pulls the next element. It blocks up to the configured read timeout
// and returns:
//   - (chunk, nil) for each non-empty chunk, in production order;
//   - (final, nil) once for the completion value, transitioning to completed;
//   - (nil, io.EOF) after the sequence is exhausted;
//   - (nil, err) wrapping errx.ErrStreamFailed when the engine reported an
//     error, errx.ErrStreamTimeout when no message arrived in time, or
//     errx.ErrStreamClosed after Close.
//
// Chunks whose content is empty are engine keep-alives, not produced
// elements; they are dropped without being yielded.
func (s *Session) Recv() (*schema.Message, error) {
	if s.phase != PhaseStreaming {
		return nil, s.terminalError()
	}

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()

	for {
		select {
		case m := <-s.mailbox:
			if m.token != s.token {
				// Stale entry from an unrelated session; never yield it.
				resetTimer(timer, s.cfg.ReadTimeout)
				continue
			}
			if m.done {
				if m.err != nil {
					s.err = m.err
					s.terminate(PhaseFailed)
					return nil, s.terminalError()
				}
				s.terminate(PhaseCompleted)
				return m.final, nil
			}
			if emptyChunk(m.chunk) {
				// A dropped keep-alive still counts as engine liveness: the
				// deadline covers message silence, not content silence.
				resetTimer(timer, s.cfg.ReadTimeout)
				continue
			}
			return m.chunk, nil
		case <-timer.C:
			s.terminate(PhaseTimedOut)
			return nil, s.terminalError()
		}
	}
}

// Close tears the session down. Safe to call multiple times and after
// exhaustion; a session still streaming transitions to abandoned. The worker
// is not force-killed: its engine call may complete in the background with
// its output discarded. Use Cancel for cooperative engine cancellation.
func (s *Session) Close() {
	s.terminate(PhaseAbandoned)
}

// Cancel signals the worker's engine call to stop via context cancellation,
// then tears the session down.
func (s *Session) Cancel() {
	s.cancel()
	s.terminate(PhaseAbandoned)
}

// Phase returns the session's current lifecycle state.
func (s *Session) Phase() Phase {
	return s.phase
}

// Token returns the session's correlation token.
func (s *Session) Token() string {
	return s.token
}

// Collector returns the collector attached to the streaming call, if any.
// It is only meaningful to read after the session reached a terminal phase.
func (s *Session) Collector() *collector.Collector {
	return s.coll
}

// Err returns the engine-reported completion error after a failed session.
func (s *Session) Err() error {
	return s.err
}

// terminate performs the exactly-once transition to a terminal phase and
// runs cleanup: unblock the worker, then drain whatever is still in the
// mailbox so no stale correlation-tagged message leaks to a later operation.
func (s *Session) terminate(p Phase) {
	s.closeOnce.Do(func() {
		s.phase = p
		close(s.stop)
		s.drain()
	})
}

func (s *Session) drain() {
	for i := 0; i < s.cfg.DrainLimit; i++ {
		select {
		case m := <-s.mailbox:
			if m.done {
				return
			}
		default:
			return
		}
	}
	logx.Warn().Str("token", s.token).Int("limit", s.cfg.DrainLimit).
		Msg("stream mailbox drain hit iteration limit")
}

func (s *Session) terminalError() error {
	switch s.phase {
	case PhaseCompleted:
		return io.EOF
	case PhaseFailed:
		return fmt.Errorf("%w: %w", errx.ErrStreamFailed, s.err)
	case PhaseTimedOut:
		return errx.ErrStreamTimeout
	case PhaseAbandoned:
		return errx.ErrStreamClosed
	default:
		return nil
	}
}

// resetTimer rearms the read deadline, discarding a pending fire so the
// timer never carries a stale expiry into the next wait.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// emptyChunk reports whether a chunk carries no payload content. Engines may
// emit structurally valid but content-less chunks early in a stream; those
// are not produced elements.
func emptyChunk(m *schema.Message) bool {
	if m == nil {
		return true
	}
	return m.Content == "" && len(m.MultiContent) == 0 && len(m.ToolCalls) == 0
}
