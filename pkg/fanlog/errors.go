package fanlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// LogError is the error type raised by registration and reported for sink failures.
type LogError = types.LogError

// Kind classifies a LogError.
type Kind = types.Kind

// Error kinds.
const (
	KindConfig            = types.KindConfig
	KindTargetUnavailable = types.KindTargetUnavailable
	KindUnknownSink       = types.KindUnknownSink
	KindDrainTimeout      = types.KindDrainTimeout
	KindFormat            = types.KindFormat
	KindDelivery          = types.KindDelivery
)

// Sentinels matched with errors.Is.
var (
	ErrConfig            = types.ErrConfig
	ErrTargetUnavailable = types.ErrTargetUnavailable
	ErrUnknownSink       = types.ErrUnknownSink
	ErrDrainTimeout      = types.ErrDrainTimeout
	ErrFormat            = types.ErrFormat
	ErrDelivery          = types.ErrDelivery
)

// ErrorHandler receives sink-side failures. It runs on the goroutine that hit the failure,
// which may be an emitting goroutine or a sink worker, so it must not block. It is called
// after the sink's locks are released, so it may log or remove sinks; a record it logs to
// the failing sink can raise another report.
type ErrorHandler func(err LogError)

// SilentErrorHandler discards all errors (used in tests)
var SilentErrorHandler ErrorHandler = func(LogError) {}

// StderrErrorHandler prints each error as a block on standard error.
var StderrErrorHandler ErrorHandler = func(err LogError) {
	var b strings.Builder
	b.WriteString("--- fanlog error ---\n")
	fmt.Fprintf(&b, "time: %s\n", err.Timestamp.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, "kind: %s\n", err.Kind)
	if err.Sink != "" {
		fmt.Fprintf(&b, "sink: %d (%s)\n", err.SinkID, err.Sink)
	}
	fmt.Fprintf(&b, "operation: %s\n", err.Operation)
	fmt.Fprintf(&b, "message: %s\n", err.Message)
	if err.Err != nil {
		fmt.Fprintf(&b, "cause: %v\n", err.Err)
	}
	b.WriteString("--- end fanlog error ---\n")
	_, _ = os.Stderr.WriteString(b.String())
}

// isTestMode detects if we're running under go test
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	if exe, err := os.Executable(); err == nil {
		if strings.HasSuffix(filepath.Base(exe), ".test") {
			return true
		}
	}
	return false
}

// getDefaultErrorHandler returns the appropriate error handler based on environment
func getDefaultErrorHandler() ErrorHandler {
	if isTestMode() {
		return SilentErrorHandler
	}
	return StderrErrorHandler
}

func unknownSink(op string, id int) *LogError {
	e := types.NewError(KindUnknownSink, op, fmt.Sprintf("there is no sink with id %d", id), nil)
	e.SinkID = id
	return e
}
