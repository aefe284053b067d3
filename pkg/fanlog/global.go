package fanlog

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/backends"
)

var (
	defaultMu  sync.Mutex
	defaultD   atomic.Pointer[Dispatcher]
	defaultLog atomic.Pointer[Logger]

	// osExit is replaced in tests
	osExit = os.Exit

	shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
)

// Default returns the process-wide dispatcher, creating it on first use. Unless
// FANLOG_AUTOINIT is false, the new dispatcher gets a stderr sink with id 0 whose level and
// format come from FANLOG_LEVEL and FANLOG_FORMAT.
func Default() *Dispatcher {
	if d := defaultD.Load(); d != nil {
		return d
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if d := defaultD.Load(); d != nil {
		return d
	}

	d := New()
	if autoinit() {
		opts := []SinkOption{WithName("stderr")}
		if level := os.Getenv(EnvLevel); level != "" {
			opts = append(opts, WithLevel(level))
		}
		if format := os.Getenv(EnvFormat); format != "" {
			opts = append(opts, WithFormat(format))
		}
		if _, err := d.Add(backends.Stderr(), opts...); err != nil {
			// a bad FANLOG_LEVEL or FANLOG_FORMAT must not leave the process without logs
			d.report(KindConfig, "autoinit", "ignoring FANLOG_LEVEL/FANLOG_FORMAT", err)
			_, _ = d.Add(backends.Stderr(), WithName("stderr"))
		}
	}
	defaultD.Store(d)
	defaultLog.Store(d.Logger())
	return d
}

// SetDefault replaces the process-wide dispatcher. The previous one is returned and is
// not shut down.
func SetDefault(d *Dispatcher) *Dispatcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultD.Swap(d)
	if d == nil {
		defaultLog.Store(nil)
	} else {
		defaultLog.Store(d.Logger())
	}
	return prev
}

func autoinit() bool {
	v, ok := os.LookupEnv(EnvAutoinit)
	if !ok {
		return true
	}
	on, err := strconv.ParseBool(v)
	return err != nil || on
}

func std() *Logger {
	if l := defaultLog.Load(); l != nil {
		return l
	}
	Default()
	return defaultLog.Load()
}

// Add registers a sink with the default dispatcher.
func Add(target interface{}, opts ...SinkOption) (int, error) {
	return Default().Add(target, opts...)
}

// Remove unregisters a sink from the default dispatcher.
func Remove(id int, opts ...RemoveOption) error {
	return Default().Remove(id, opts...)
}

// RemoveAll unregisters every sink of the default dispatcher, including the stderr sink.
func RemoveAll(opts ...RemoveOption) error {
	return Default().RemoveAll(opts...)
}

// Complete waits for the queued sinks of the default dispatcher.
func Complete() {
	Default().Complete()
}

// Shutdown shuts the default dispatcher down.
func Shutdown(ctx context.Context) error {
	return Default().Shutdown(ctx)
}

// Exit shuts the default dispatcher down within the drain timeout, then exits with code.
func Exit(code int) {
	ctx, cancel := context.WithTimeout(context.Background(), getDefaultDrainTimeout())
	_ = Shutdown(ctx)
	cancel()
	osExit(code)
}

// ShutdownOnSignal shuts the default dispatcher down when one of sigs arrives (SIGINT and
// SIGTERM when none are given), allowing grace for queued sinks to drain, then exits with
// status 1. The returned function stops watching.
func ShutdownOnSignal(grace time.Duration, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = shutdownSignals
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
			ctx, cancel := context.WithTimeout(context.Background(), grace)
			_ = Shutdown(ctx)
			cancel()
			osExit(1)
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

// Log logs at the named level through the default dispatcher.
func Log(level string, msg string, args ...interface{}) {
	l := std()
	lv, ok := l.d.levels.Lookup(level)
	if !ok {
		l.d.report(KindConfig, "log", "unknown level "+strconv.Quote(level), nil)
		return
	}
	l.log(0, lv, nil, msg, args)
}

// Bind returns a default logger that adds fields to every record.
func Bind(fields Fields) *Logger {
	return std().Bind(fields)
}

// Patch returns a default logger that runs fn on each record.
func Patch(fn Patcher) *Logger {
	return std().Patch(fn)
}

// WithContext returns a default logger whose records carry the extras of ctx.
func WithContext(ctx context.Context) *Logger {
	return std().WithContext(ctx)
}

// WithError returns a default logger whose records carry err as their exception.
func WithError(err error) *Logger {
	return std().WithError(err)
}

// Named returns a default logger with a fixed name.
func Named(name string) *Logger {
	return std().Named(name)
}

// Trace logs at TRACE through the default dispatcher.
func Trace(msg string, args ...interface{}) {
	std().log(0, LevelTrace, nil, msg, args)
}

// Debug logs at DEBUG through the default dispatcher.
func Debug(msg string, args ...interface{}) {
	std().log(0, LevelDebug, nil, msg, args)
}

// Info logs at INFO through the default dispatcher.
func Info(msg string, args ...interface{}) {
	std().log(0, LevelInfo, nil, msg, args)
}

// Success logs at SUCCESS through the default dispatcher.
func Success(msg string, args ...interface{}) {
	std().log(0, LevelSuccess, nil, msg, args)
}

// Warning logs at WARNING through the default dispatcher.
func Warning(msg string, args ...interface{}) {
	std().log(0, LevelWarning, nil, msg, args)
}

// Error logs at ERROR through the default dispatcher.
func Error(msg string, args ...interface{}) {
	std().log(0, LevelError, nil, msg, args)
}

// Critical logs at CRITICAL through the default dispatcher.
func Critical(msg string, args ...interface{}) {
	std().log(0, LevelCritical, nil, msg, args)
}

// Exception logs err at ERROR through the default dispatcher.
func Exception(err error, msg string, args ...interface{}) {
	std().log(0, LevelError, NewException(err, 1), msg, args)
}

// Catch recovers a panic and logs it through the default dispatcher. It must be deferred
// directly.
func Catch(msg string) {
	if r := recover(); r != nil {
		std().catch(r, msg)
	}
}
