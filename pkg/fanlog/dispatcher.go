package fanlog

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/internal/metrics"
	"github.com/wayneeseguin/fanlog/pkg/backends"
	"github.com/wayneeseguin/fanlog/pkg/features"
	"github.com/wayneeseguin/fanlog/pkg/formatters"
	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Dispatcher owns the sink registry and fans records out to it. All methods are safe for
// concurrent use.
type Dispatcher struct {
	mu     sync.Mutex // serializes registry mutations
	sinks  atomic.Pointer[[]*sink]
	nextID int
	closed atomic.Bool

	// lowest threshold among sinks, so records nobody wants are never built
	minLevel atomic.Int64

	levels       *types.LevelRegistry
	activation   *features.Activation
	defaults     atomic.Pointer[types.Fields]
	targets      *backends.Registry
	metrics      *metrics.Collector
	drainTimeout time.Duration
	start        time.Time

	errMu        sync.RWMutex
	errorHandler ErrorHandler
	errorChannel chan LogError
	lastError    atomic.Pointer[LogError]
}

// New creates a dispatcher with DefaultConfig and no sinks.
func New() *Dispatcher {
	d, _ := NewWithConfig(DefaultConfig())
	return d
}

// NewWithConfig creates a dispatcher with no sinks.
func NewWithConfig(config *Config) (*Dispatcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		levels:       types.NewLevelRegistry(),
		activation:   features.NewActivation(),
		targets:      config.Targets,
		metrics:      metrics.NewCollector(),
		drainTimeout: config.DrainTimeout,
		start:        time.Now(),
		errorHandler: config.ErrorHandler,
		errorChannel: make(chan LogError, config.ErrorChannelSize),
	}
	empty := []*sink{}
	d.sinks.Store(&empty)
	d.minLevel.Store(math.MaxInt64)
	extra := config.Extra.Clone()
	d.defaults.Store(&extra)
	return d, nil
}

// Add registers a sink and returns its id. target may be a file path or URI string
// ("stderr", "stdout", "file://", "syslog://", "nats://", "beats://"), a backends.Target,
// an io.Writer, a func([]byte) error or a func(string).
//
// Invalid options return an ErrConfig error; a target that cannot be opened returns an
// ErrTargetUnavailable error.
func (d *Dispatcher) Add(target interface{}, opts ...SinkOption) (int, error) {
	if d.closed.Load() {
		return -1, types.ConfigError("add", "dispatcher is shut down")
	}

	cfg := defaultSinkConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return -1, asConfigError(err)
		}
	}

	s := &sink{d: d, queued: cfg.enqueue, catch: cfg.catch}
	if err := d.configureSink(s, &cfg); err != nil {
		return -1, err
	}

	t, name, err := d.openTarget(target, &cfg, s)
	if err != nil {
		return -1, err
	}
	s.target = t
	s.name = name
	if cfg.name != "" {
		s.name = cfg.name
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		_ = t.Close() // Best effort close, never registered
		return -1, types.ConfigError("add", "dispatcher is shut down")
	}
	s.id = d.nextID
	d.nextID++
	s.start()

	old := *d.sinks.Load()
	next := make([]*sink, len(old), len(old)+1)
	copy(next, old)
	next = append(next, s)
	d.sinks.Store(&next)
	d.updateMinLevel(next)
	return s.id, nil
}

// configureSink resolves the level, filters and formatter of s.
func (d *Dispatcher) configureSink(s *sink, cfg *sinkConfig) error {
	if cfg.levelSet {
		s.level = types.Level{Name: fmt.Sprintf("Level %d", cfg.levelNo), No: cfg.levelNo}
	} else {
		level, ok := d.levels.Lookup(cfg.level)
		if !ok {
			return types.ConfigError("add", "unknown level %q", cfg.level)
		}
		s.level = level
	}

	s.chain = features.Chain{
		MinLevel:   s.level.No,
		Activation: d.activation,
		Limiter:    cfg.rateLimit,
		Predicate:  cfg.filter,
	}
	names, err := d.namePredicate(cfg)
	if err != nil {
		return err
	}
	s.chain.Names = names

	f, err := buildFormatter(cfg)
	if err != nil {
		return err
	}
	s.formatter = f
	return nil
}

func (d *Dispatcher) namePredicate(cfg *sinkConfig) (features.Predicate, error) {
	var preds []features.Predicate
	if cfg.namePrefix != "" {
		preds = append(preds, features.NamePrefixFilter(cfg.namePrefix))
	}
	if len(cfg.nameLevels) > 0 {
		levels := make(features.NameLevels, len(cfg.nameLevels))
		for prefix, name := range cfg.nameLevels {
			switch name {
			case "OFF", "off", "false":
				levels[prefix] = features.LevelDisabled
				continue
			}
			level, ok := d.levels.Lookup(name)
			if !ok {
				return nil, types.ConfigError("add", "unknown level %q for logger %q", name, prefix)
			}
			levels[prefix] = level.No
		}
		if err := levels.Validate(); err != nil {
			return nil, err
		}
		preds = append(preds, levels.Predicate())
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	}
	return func(rec *types.Record) bool {
		for _, p := range preds {
			if !p(rec) {
				return false
			}
		}
		return true
	}, nil
}

func buildFormatter(cfg *sinkConfig) (formatters.Formatter, error) {
	if cfg.formatter != nil {
		if cfg.format != "" || cfg.serialize {
			return nil, types.ConfigError("add", "a formatter cannot be combined with a format or serialize")
		}
		return cfg.formatter, nil
	}

	var f formatters.Formatter
	if cfg.serialize {
		text, err := formatters.NewTextFormatter(templateFor(cfg.format))
		if err != nil {
			return nil, err
		}
		if cfg.timeZone != nil {
			text.Options.TimeZone = cfg.timeZone
		}
		f = formatters.NewJSONFormatter(text)
	} else {
		resolved, err := formatters.Resolve(cfg.format)
		if err != nil {
			return nil, err
		}
		f = resolved
	}

	if cfg.timeZone != nil {
		switch tf := f.(type) {
		case *formatters.TextFormatter:
			tf.Options.TimeZone = cfg.timeZone
		case *formatters.JSONFormatter:
			tf.Options.TimeZone = cfg.timeZone
		}
	}
	return f, nil
}

// templateFor maps the preset names that have a template to it; anything else is taken
// as a template.
func templateFor(format string) string {
	switch format {
	case "", "default", "json":
		return formatters.DefaultTemplate
	case "message":
		return formatters.MessageTemplate
	case "simple":
		return formatters.SimpleTemplate
	}
	return format
}

// openTarget resolves target into a backends.Target and a display name.
func (d *Dispatcher) openTarget(target interface{}, cfg *sinkConfig, s *sink) (backends.Target, string, error) {
	fileOnly := cfg.fileOnly()
	notFile := func(name string) error {
		if len(fileOnly) == 0 {
			return nil
		}
		return types.ConfigError("add", "%v only apply to file targets, not %s", fileOnly, name)
	}

	switch t := target.(type) {
	case string:
		if !backends.IsFile(t) {
			if err := notFile(t); err != nil {
				return nil, "", err
			}
		}
		opened, err := d.targets.Open(t, backends.FileOptions{
			Rotation:    cfg.rotation,
			Retention:   cfg.retention,
			Compression: cfg.compression,
			Lock:        cfg.lock,
			BufferSize:  cfg.bufferSize,
			ErrorHandler: func(source, dest, msg string, err error) {
				s.report(types.KindDelivery, source, msg+": "+dest, err)
			},
			MetricsHandler: d.metrics.TrackEvent,
		})
		if err != nil {
			return nil, "", err
		}
		return opened, t, nil

	case backends.Target:
		if err := notFile(fmt.Sprintf("%T", t)); err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("%T", t), nil

	case *os.File:
		if err := notFile(t.Name()); err != nil {
			return nil, "", err
		}
		return backends.NewWriterTarget(t, t.Name()), t.Name(), nil

	case io.Writer:
		name := fmt.Sprintf("%T", t)
		if err := notFile(name); err != nil {
			return nil, "", err
		}
		return backends.NewWriterTarget(t, name), name, nil

	case func([]byte) error:
		if err := notFile("function"); err != nil {
			return nil, "", err
		}
		return backends.NewFuncTarget(t), "<function>", nil

	case func(string):
		if err := notFile("function"); err != nil {
			return nil, "", err
		}
		return backends.NewFuncTarget(func(b []byte) error {
			t(string(b))
			return nil
		}), "<function>", nil

	case nil:
		return nil, "", types.ConfigError("add", "target cannot be nil")
	}
	return nil, "", types.ConfigError("add", "unsupported target type %T", target)
}

// Remove unregisters a sink. No record emitted after Remove returns reaches it. For a
// queued sink Remove waits for the backlog to be written, up to the drain timeout; on
// timeout the rest is discarded, the sink is still removed, and an ErrDrainTimeout error
// is returned.
func (d *Dispatcher) Remove(id int, opts ...RemoveOption) error {
	rc := removeConfig{drain: true, timeout: d.drainTimeout}
	for _, opt := range opts {
		opt(&rc)
	}

	s := d.detach(id)
	if s == nil {
		return unknownSink("remove", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
	defer cancel()
	return s.close(ctx, rc.drain)
}

// detach takes a sink out of the registry, or returns nil when id is not registered.
func (d *Dispatcher) detach(id int) *sink {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := *d.sinks.Load()
	for i, s := range old {
		if s.id != id {
			continue
		}
		next := make([]*sink, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		d.sinks.Store(&next)
		d.updateMinLevel(next)
		return s
	}
	return nil
}

// RemoveAll removes every sink, draining queued ones. It returns the first drain error.
func (d *Dispatcher) RemoveAll(opts ...RemoveOption) error {
	var first error
	for _, s := range d.snapshot() {
		if err := d.Remove(s.id, opts...); err != nil && first == nil && !errors.Is(err, ErrUnknownSink) {
			first = err
		}
	}
	return first
}

func (d *Dispatcher) updateMinLevel(sinks []*sink) {
	lowest := int64(math.MaxInt64)
	for _, s := range sinks {
		if int64(s.level.No) < lowest {
			lowest = int64(s.level.No)
		}
	}
	d.minLevel.Store(lowest)
}

func (d *Dispatcher) snapshot() []*sink {
	return *d.sinks.Load()
}

// enabledFor reports whether any sink could accept a record at level.
func (d *Dispatcher) enabledFor(level types.Level) bool {
	return int64(level.No) >= d.minLevel.Load() && !d.closed.Load()
}

// dispatch hands a finished record to every sink of the current snapshot.
func (d *Dispatcher) dispatch(rec *types.Record) {
	if d.closed.Load() {
		return
	}
	d.metrics.TrackEmitted(rec.Level.Name)
	for _, s := range d.snapshot() {
		s.handle(rec)
	}
}

// Complete blocks until every queued sink has written its backlog.
func (d *Dispatcher) Complete() {
	_ = d.CompleteContext(context.Background())
}

// CompleteContext is Complete bounded by ctx.
func (d *Dispatcher) CompleteContext(ctx context.Context) error {
	for _, s := range d.snapshot() {
		if err := s.wait(ctx); err != nil {
			return errors.Wrapf(err, "waiting for sink %d", s.id)
		}
	}
	return nil
}

// Shutdown stops accepting records, drains queued sinks within ctx and closes every target.
// Only the first call does work; later calls return nil.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	sinks := *d.sinks.Load()
	empty := []*sink{}
	d.sinks.Store(&empty)
	d.updateMinLevel(empty)
	d.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.close(ctx, true); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrapf(errs[0], "shutdown: %d sink(s) failed", len(errs))
	}
	return nil
}

// IsClosed reports whether Shutdown has been called.
func (d *Dispatcher) IsClosed() bool {
	return d.closed.Load()
}

// RegisterLevel adds a custom level. Registering an existing name with another severity
// is an ErrConfig error.
func (d *Dispatcher) RegisterLevel(name string, no int) (Level, error) {
	return d.levels.Register(name, no)
}

// Level looks up a level by case-insensitive name.
func (d *Dispatcher) Level(name string) (Level, bool) {
	return d.levels.Lookup(name)
}

// Levels returns every known level ordered by severity.
func (d *Dispatcher) Levels() []Level {
	return d.levels.All()
}

// Disable stops records from loggers named prefix or below it from reaching any sink.
func (d *Dispatcher) Disable(prefix string) {
	d.activation.Disable(prefix)
}

// Enable reverses Disable for prefix and the names below it.
func (d *Dispatcher) Enable(prefix string) {
	d.activation.Enable(prefix)
}

// SetExtra replaces the default extras merged into every record.
func (d *Dispatcher) SetExtra(extra Fields) {
	cp := extra.Clone()
	d.defaults.Store(&cp)
}

// Extra returns a copy of the default extras.
func (d *Dispatcher) Extra() Fields {
	return d.defaults.Load().Clone()
}

// SetErrorHandler replaces the error handler. nil disables it.
func (d *Dispatcher) SetErrorHandler(handler ErrorHandler) {
	d.errMu.Lock()
	d.errorHandler = handler
	d.errMu.Unlock()
}

// Errors returns the channel receiving sink-side failures. Sends never block; errors are
// dropped from the channel when it is full.
func (d *Dispatcher) Errors() <-chan LogError {
	return d.errorChannel
}

// LastError returns the most recent sink-side failure, or nil.
func (d *Dispatcher) LastError() *LogError {
	return d.lastError.Load()
}

func (d *Dispatcher) deliverError(e *LogError) {
	d.lastError.Store(e)

	select {
	case d.errorChannel <- *e:
	default:
		// Channel full, don't block
	}

	d.errMu.RLock()
	handler := d.errorHandler
	d.errMu.RUnlock()
	if handler != nil {
		handler(*e)
	}
}

// report is used for failures not tied to a sink.
func (d *Dispatcher) report(kind types.Kind, op, msg string, err error) {
	d.metrics.TrackError(op)
	d.deliverError(types.NewError(kind, op, msg, err))
}

// Sinks describes the registered sinks in registration order.
func (d *Dispatcher) Sinks() []SinkInfo {
	sinks := d.snapshot()
	out := make([]SinkInfo, 0, len(sinks))
	for _, s := range sinks {
		out = append(out, s.info())
	}
	return out
}

// Metrics returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Metrics() metrics.Snapshot {
	sinks := d.snapshot()
	per := make([]metrics.SinkMetrics, 0, len(sinks))
	for _, s := range sinks {
		per = append(per, s.snapshot())
	}
	return d.metrics.Snapshot(per)
}

// ResetMetrics zeroes the dispatcher's counters.
func (d *Dispatcher) ResetMetrics() {
	d.metrics.Reset()
}

func asConfigError(err error) error {
	var le *types.LogError
	if errors.As(err, &le) {
		return err
	}
	return types.NewError(types.KindConfig, "add", err.Error(), err)
}
