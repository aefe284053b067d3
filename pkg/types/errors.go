package types

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Kind classifies errors raised or reported by the engine.
type Kind int

const (
	// KindConfig marks bad registration parameters.
	KindConfig Kind = iota + 1
	// KindTargetUnavailable marks a target that cannot be opened or written.
	KindTargetUnavailable
	// KindUnknownSink marks an operation on an id that is not registered.
	KindUnknownSink
	// KindDrainTimeout marks a queued sink whose backlog did not drain in time.
	KindDrainTimeout
	// KindFormat marks a render or enrichment failure.
	KindFormat
	// KindDelivery marks a failed write to a target.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTargetUnavailable:
		return "target_unavailable"
	case KindUnknownSink:
		return "unknown_sink"
	case KindDrainTimeout:
		return "drain_timeout"
	case KindFormat:
		return "format"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a *LogError of the same kind.
var (
	ErrConfig            = errors.New("invalid sink configuration")
	ErrTargetUnavailable = errors.New("target unavailable")
	ErrUnknownSink       = errors.New("unknown sink")
	ErrDrainTimeout      = errors.New("drain timeout")
	ErrFormat            = errors.New("format error")
	ErrDelivery          = errors.New("delivery failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindTargetUnavailable:
		return ErrTargetUnavailable
	case KindUnknownSink:
		return ErrUnknownSink
	case KindDrainTimeout:
		return ErrDrainTimeout
	case KindFormat:
		return ErrFormat
	case KindDelivery:
		return ErrDelivery
	}
	return nil
}

// LogError represents an error that occurred inside the engine.
type LogError struct {
	Kind      Kind
	Operation string    // The operation that failed
	SinkID    int       // Sink id, -1 when not tied to a sink
	Sink      string    // Sink name
	Message   string    // Human readable error message
	Err       error     // The underlying error
	Timestamp time.Time // When the error occurred
}

// NewError builds a LogError not tied to a sink.
func NewError(kind Kind, op, message string, err error) *LogError {
	return &LogError{
		Kind:      kind,
		Operation: op,
		SinkID:    -1,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *LogError) Error() string {
	prefix := e.Kind.String()
	if e.Sink != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, e.Sink)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", prefix, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Operation, e.Message)
}

// Unwrap returns the underlying error.
func (e *LogError) Unwrap() error {
	return e.Err
}

// Is reports a match against the sentinel of the same kind.
func (e *LogError) Is(target error) bool {
	if s := e.Kind.sentinel(); s != nil && target == s {
		return true
	}
	return false
}

// ConfigError is shorthand for a KindConfig error.
func ConfigError(op, format string, args ...interface{}) *LogError {
	return NewError(KindConfig, op, fmt.Sprintf(format, args...), nil)
}
