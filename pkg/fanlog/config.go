package fanlog

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/backends"
	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Environment variables read by DefaultConfig and Default.
const (
	EnvAutoinit     = "FANLOG_AUTOINIT"
	EnvLevel        = "FANLOG_LEVEL"
	EnvFormat       = "FANLOG_FORMAT"
	EnvDrainTimeout = "FANLOG_DRAIN_TIMEOUT"
)

const (
	defaultDrainTimeout     = 5 * time.Second
	defaultErrorChannelSize = 100
)

// Fields carries the extras attached to a record.
type Fields = types.Fields

// Record is one log event as seen by filters, patchers and formatters.
type Record = types.Record

// Level is a named severity.
type Level = types.Level

// Built-in levels.
var (
	LevelTrace    = types.LevelTrace
	LevelDebug    = types.LevelDebug
	LevelInfo     = types.LevelInfo
	LevelSuccess  = types.LevelSuccess
	LevelWarning  = types.LevelWarning
	LevelError    = types.LevelError
	LevelCritical = types.LevelCritical
)

// Config holds dispatcher-wide settings.
type Config struct {
	// DrainTimeout bounds how long Remove waits for a queued sink's backlog.
	DrainTimeout time.Duration

	// ErrorChannelSize is the buffer of the Errors channel. Errors are dropped from the
	// channel, never from the handler, when it is full.
	ErrorChannelSize int

	// ErrorHandler receives sink-side failures. nil disables the handler.
	ErrorHandler ErrorHandler

	// Extra holds default extras merged into every record.
	Extra Fields

	// Targets resolves URI and path targets. nil uses backends.DefaultRegistry.
	Targets *backends.Registry
}

// DefaultConfig returns the configuration used by New. FANLOG_DRAIN_TIMEOUT overrides the
// drain timeout when set to a Go duration or a number of seconds.
func DefaultConfig() *Config {
	return &Config{
		DrainTimeout:     getDefaultDrainTimeout(),
		ErrorChannelSize: defaultErrorChannelSize,
		ErrorHandler:     getDefaultErrorHandler(),
	}
}

// Validate checks the configuration and fills in defaults for zero values.
func (c *Config) Validate() error {
	if c.DrainTimeout < 0 {
		return types.ConfigError("config", "drain timeout cannot be negative: %s", c.DrainTimeout)
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.ErrorChannelSize < 0 {
		return types.ConfigError("config", "error channel size cannot be negative: %d", c.ErrorChannelSize)
	}
	if c.ErrorChannelSize == 0 {
		c.ErrorChannelSize = defaultErrorChannelSize
	}
	if c.Targets == nil {
		c.Targets = backends.DefaultRegistry
	}
	return nil
}

// getDefaultDrainTimeout reads FANLOG_DRAIN_TIMEOUT or uses the default value
func getDefaultDrainTimeout() time.Duration {
	if value, ok := os.LookupEnv(EnvDrainTimeout); ok {
		if d, err := parseSeconds(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultDrainTimeout
}

func parseSeconds(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}
