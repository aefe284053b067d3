package fanlog

import (
	"strings"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/features"
	"github.com/wayneeseguin/fanlog/pkg/formatters"
	"github.com/wayneeseguin/fanlog/pkg/types"
)

// SinkOption configures a sink at registration.
type SinkOption func(*sinkConfig) error

// RemoveOption configures a removal.
type RemoveOption func(*removeConfig)

type sinkConfig struct {
	level      string
	levelNo    int
	levelSet   bool
	filter     features.Predicate
	namePrefix string
	nameLevels map[string]string

	format    string
	formatter formatters.Formatter
	serialize bool
	timeZone  *time.Location

	enqueue bool
	name    string
	catch   bool

	rotation    features.RotationPolicy
	retention   features.RetentionPolicy
	compression features.CompressionType
	lock        bool
	bufferSize  int

	rateLimit *features.RateLimit
}

func defaultSinkConfig() sinkConfig {
	return sinkConfig{level: types.LevelDebug.Name, catch: true}
}

// fileOnly reports whether options that only make sense for files were given.
func (c *sinkConfig) fileOnly() []string {
	var names []string
	if c.rotation != nil {
		names = append(names, "rotation")
	}
	if c.retention != nil {
		names = append(names, "retention")
	}
	if c.compression != features.CompressionNone {
		names = append(names, "compression")
	}
	if c.lock {
		names = append(names, "lock")
	}
	return names
}

type removeConfig struct {
	drain   bool
	timeout time.Duration
}

// WithLevel sets the minimum level by name (case-insensitive). The default is DEBUG.
func WithLevel(level string) SinkOption {
	return func(c *sinkConfig) error {
		if strings.TrimSpace(level) == "" {
			return types.ConfigError("add", "level cannot be empty")
		}
		c.level = level
		c.levelSet = false
		return nil
	}
}

// WithLevelNo sets the minimum level by severity number.
func WithLevelNo(no int) SinkOption {
	return func(c *sinkConfig) error {
		if no < 0 {
			return types.ConfigError("add", "level severity cannot be negative: %d", no)
		}
		c.levelNo = no
		c.levelSet = true
		return nil
	}
}

// WithFilter sets a predicate evaluated after the level and name filters. A panic inside
// the predicate rejects the record and is reported as a format error.
func WithFilter(p features.Predicate) SinkOption {
	return func(c *sinkConfig) error {
		if p == nil {
			return types.ConfigError("add", "filter cannot be nil")
		}
		c.filter = p
		return nil
	}
}

// WithNamePrefix accepts only records from loggers named prefix or below it.
func WithNamePrefix(prefix string) SinkOption {
	return func(c *sinkConfig) error {
		c.namePrefix = prefix
		return nil
	}
}

// WithNameLevels sets per-logger-name minimum levels. Keys are name prefixes ("" is the
// root), values are level names or "OFF". The longest matching prefix wins.
func WithNameLevels(levels map[string]string) SinkOption {
	return func(c *sinkConfig) error {
		c.nameLevels = make(map[string]string, len(levels))
		for k, v := range levels {
			c.nameLevels[k] = v
		}
		return nil
	}
}

// WithFormat sets the output template, or a preset name such as "json" or "simple".
func WithFormat(format string) SinkOption {
	return func(c *sinkConfig) error {
		c.format = format
		return nil
	}
}

// WithFormatter sets a formatter. It cannot be combined with WithFormat or WithSerialize.
func WithFormatter(f formatters.Formatter) SinkOption {
	return func(c *sinkConfig) error {
		if f == nil {
			return types.ConfigError("add", "formatter cannot be nil")
		}
		c.formatter = f
		return nil
	}
}

// WithSerialize writes each record as one JSON object per line. The "text" key holds the
// line rendered with the sink's format.
func WithSerialize() SinkOption {
	return func(c *sinkConfig) error {
		c.serialize = true
		return nil
	}
}

// WithTimeZone renders record times in loc.
func WithTimeZone(loc *time.Location) SinkOption {
	return func(c *sinkConfig) error {
		c.timeZone = loc
		return nil
	}
}

// WithEnqueue makes the sink queued: emitters push onto its FIFO and a dedicated worker
// performs the writes.
func WithEnqueue() SinkOption {
	return func(c *sinkConfig) error {
		c.enqueue = true
		return nil
	}
}

// WithName names the sink in errors, metrics and Sinks. The default is derived from the
// target.
func WithName(name string) SinkOption {
	return func(c *sinkConfig) error {
		c.name = name
		return nil
	}
}

// WithCatch controls whether the sink's failures are reported to the error handler and
// the Errors channel. They are always counted in metrics.
func WithCatch(catch bool) SinkOption {
	return func(c *sinkConfig) error {
		c.catch = catch
		return nil
	}
}

// WithRotation sets the rotation policy of a file sink from a string such as "10 MB",
// "6 hours", "daily" or "13:30".
func WithRotation(spec string) SinkOption {
	return func(c *sinkConfig) error {
		p, err := features.ParseRotation(spec)
		if err != nil {
			return err
		}
		c.rotation = p
		return nil
	}
}

// WithRotationPolicy sets a rotation policy directly, for example a features.RotationFunc.
func WithRotationPolicy(p features.RotationPolicy) SinkOption {
	return func(c *sinkConfig) error {
		if p == nil {
			return types.ConfigError("add", "rotation policy cannot be nil")
		}
		c.rotation = p
		return nil
	}
}

// WithRetention sets the retention of a file sink from a string such as "10 files" or
// "1 week".
func WithRetention(spec string) SinkOption {
	return func(c *sinkConfig) error {
		p, err := features.ParseRetention(spec)
		if err != nil {
			return err
		}
		c.retention = p
		return nil
	}
}

// WithRetentionPolicy sets a retention policy directly, for example a features.RetentionFunc.
func WithRetentionPolicy(p features.RetentionPolicy) SinkOption {
	return func(c *sinkConfig) error {
		if p == nil {
			return types.ConfigError("add", "retention policy cannot be nil")
		}
		c.retention = p
		return nil
	}
}

// WithCompression compresses rolled files of a file sink ("gzip" or "gz").
func WithCompression(kind string) SinkOption {
	return func(c *sinkConfig) error {
		ct, err := features.ParseCompressionType(kind)
		if err != nil {
			return err
		}
		c.compression = ct
		return nil
	}
}

// WithLock takes an advisory file lock around each write, for several processes
// appending to one file.
func WithLock() SinkOption {
	return func(c *sinkConfig) error {
		c.lock = true
		return nil
	}
}

// WithBufferSize sets the write buffer of a file sink.
func WithBufferSize(n int) SinkOption {
	return func(c *sinkConfig) error {
		if n <= 0 {
			return types.ConfigError("add", "buffer size must be positive, got %d", n)
		}
		c.bufferSize = n
		return nil
	}
}

// WithRateLimit caps the sink at perSecond records with bursts of up to burst records.
// Records over the limit are filtered out.
func WithRateLimit(perSecond float64, burst int) SinkOption {
	return func(c *sinkConfig) error {
		rl, err := features.NewRateLimit(perSecond, burst)
		if err != nil {
			return err
		}
		c.rateLimit = rl
		return nil
	}
}

// WithDrainTimeout bounds how long Remove waits for the queued backlog.
func WithDrainTimeout(d time.Duration) RemoveOption {
	return func(c *removeConfig) {
		c.timeout = d
	}
}

// WithoutDrain discards the queued backlog instead of waiting for it.
func WithoutDrain() RemoveOption {
	return func(c *removeConfig) {
		c.drain = false
	}
}
