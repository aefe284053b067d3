package fanlog

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Patcher edits a record before it is handed to the sinks. Returning an error, or
// panicking, drops the record and reports a format error.
type Patcher func(rec *Record) error

// Logger is an immutable handle on a dispatcher. Bind, Patch, Named, WithContext and
// WithError return derived loggers and never modify the receiver.
type Logger struct {
	d        *Dispatcher
	name     string
	extra    Fields
	patchers []Patcher
	ctx      context.Context
	err      error
}

// Logger returns a handle emitting through d.
func (d *Dispatcher) Logger() *Logger {
	return &Logger{d: d}
}

func (l *Logger) clone() *Logger {
	cp := *l
	return &cp
}

// Bind returns a logger that adds fields to every record. The receiver's extras are not
// changed.
func (l *Logger) Bind(fields Fields) *Logger {
	cp := l.clone()
	cp.extra = l.extra.Merge(fields)
	return cp
}

// Patch returns a logger that runs fn on each record after the extras are merged.
func (l *Logger) Patch(fn Patcher) *Logger {
	cp := l.clone()
	cp.patchers = make([]Patcher, len(l.patchers), len(l.patchers)+1)
	copy(cp.patchers, l.patchers)
	cp.patchers = append(cp.patchers, fn)
	return cp
}

// Named returns a logger whose records carry name instead of the caller's package path.
func (l *Logger) Named(name string) *Logger {
	cp := l.clone()
	cp.name = name
	return cp
}

// WithContext returns a logger whose records carry the extras of ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	cp := l.clone()
	cp.ctx = ctx
	return cp
}

// WithError returns a logger whose records carry err as their exception.
func (l *Logger) WithError(err error) *Logger {
	cp := l.clone()
	cp.err = err
	return cp
}

// Trace logs at TRACE. With args, msg is a fmt format string.
func (l *Logger) Trace(msg string, args ...interface{}) {
	l.log(0, types.LevelTrace, nil, msg, args)
}

// Debug logs at DEBUG.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(0, types.LevelDebug, nil, msg, args)
}

// Info logs at INFO.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(0, types.LevelInfo, nil, msg, args)
}

// Success logs at SUCCESS.
func (l *Logger) Success(msg string, args ...interface{}) {
	l.log(0, types.LevelSuccess, nil, msg, args)
}

// Warning logs at WARNING.
func (l *Logger) Warning(msg string, args ...interface{}) {
	l.log(0, types.LevelWarning, nil, msg, args)
}

// Error logs at ERROR.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(0, types.LevelError, nil, msg, args)
}

// Critical logs at CRITICAL.
func (l *Logger) Critical(msg string, args ...interface{}) {
	l.log(0, types.LevelCritical, nil, msg, args)
}

// Log logs at the named level, built in or registered. An unknown level is reported as a
// configuration error and nothing is logged.
func (l *Logger) Log(level string, msg string, args ...interface{}) {
	lv, ok := l.d.levels.Lookup(level)
	if !ok {
		l.d.report(types.KindConfig, "log", fmt.Sprintf("unknown level %q", level), nil)
		return
	}
	l.log(0, lv, nil, msg, args)
}

// Exception logs at ERROR with err captured as the record's exception.
func (l *Logger) Exception(err error, msg string, args ...interface{}) {
	l.log(0, types.LevelError, NewException(err, 1), msg, args)
}

// Catch recovers a panic and logs it at ERROR with the panic's stack. It must be deferred
// directly:
//
//	defer log.Catch("worker crashed")
func (l *Logger) Catch(msg string) {
	if r := recover(); r != nil {
		l.catch(r, msg)
	}
}

func (l *Logger) catch(r interface{}, msg string) {
	// skip catch and the deferred Catch; the runtime panic frames are filtered out
	exc := panicException(r, 2)
	l.logException(types.LevelError, exc, msg)
}

func (l *Logger) logException(level types.Level, exc *types.Exception, msg string) {
	if !l.d.enabledFor(level) {
		return
	}
	rec := l.newRecord(level, msg, nil)
	if len(exc.Frames) > 0 {
		f := exc.Frames[0]
		rec.Name, rec.Function = splitFunction(f.Function)
		rec.File, rec.Line = f.File, f.Line
	}
	if l.name != "" {
		rec.Name = l.name
	}
	rec.Exception = exc
	l.finish(rec)
}

// log builds and dispatches a record. depth counts wrappers between the user's call and
// the exported method that called log.
func (l *Logger) log(depth int, level types.Level, exc *types.Exception, msg string, args []interface{}) {
	if !l.d.enabledFor(level) {
		return
	}
	rec := l.newRecord(level, msg, args)

	if pc, file, line, ok := runtime.Caller(depth + 2); ok {
		rec.File, rec.Line = file, line
		if fn := runtime.FuncForPC(pc); fn != nil {
			rec.Name, rec.Function = splitFunction(fn.Name())
		}
	}
	if l.name != "" {
		rec.Name = l.name
	}

	switch {
	case exc != nil:
		rec.Exception = exc
	case l.err != nil:
		rec.Exception = NewException(l.err, depth+2)
	}
	l.finish(rec)
}

// newRecord builds the staging record with a fresh extras map: dispatcher defaults, then
// context extras, then bound fields.
func (l *Logger) newRecord(level types.Level, msg string, args []interface{}) *types.Record {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	now := time.Now()

	extra := l.d.defaults.Load().Clone()
	if l.ctx != nil {
		for k, v := range FieldsFromContext(l.ctx) {
			extra[k] = v
		}
	}
	for k, v := range l.extra {
		extra[k] = v
	}

	return &types.Record{
		Level:   level,
		Message: msg,
		Time:    now,
		Elapsed: now.Sub(l.d.start),
		Extra:   extra,
	}
}

// finish runs the patchers and dispatches the record.
func (l *Logger) finish(rec *types.Record) {
	for _, p := range l.patchers {
		if err := runPatcher(p, rec); err != nil {
			l.d.report(types.KindFormat, "patch",
				fmt.Sprintf("patch failed, record dropped: %q", rec.Message), err)
			l.d.metrics.TrackDropped()
			return
		}
	}
	l.d.dispatch(rec)
}

func runPatcher(p Patcher, rec *types.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("patcher panicked: %v", r)
		}
	}()
	return p(rec)
}
