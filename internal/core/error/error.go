package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// EngineErrorMessage describes failures reported by the prompt-execution engine.
	EngineErrorMessage = "engine invocation failed"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Sentinel errors for the streaming bridge. Consumers match them with
// errors.Is after a Recv call fails.
var (
	// ErrStreamTimeout reports that no message arrived within the read deadline.
	ErrStreamTimeout = errors.New("stream read timed out")
	// ErrStreamFailed reports that the engine ended the stream with an error.
	ErrStreamFailed = errors.New("stream failed")
	// ErrStreamClosed reports a Recv on a session that was already closed.
	ErrStreamClosed = errors.New("stream session closed")
)

// Error wraps an underlying error with an HTTP status and safe message.
type Error struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the provided information.
func New(err error, status int, message string) *Error {
	return &Error{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapEngine wraps an engine fault with a consistent status code and message.
// The underlying error stays reachable via errors.Is / errors.As so callers
// never lose the provider's original failure.
func WrapEngine(err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Err:     err,
		Status:  http.StatusBadGateway,
		Message: EngineErrorMessage,
	}
}

// Is reports whether the target matches the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to Error or the wrapped error in a chain.
func (e *Error) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**Error); ok {
		*t = e
		return true
	}
	return false
}
