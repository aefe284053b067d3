// Package config loads declarative sink configuration from YAML or TOML files and
// applies it to a fanlog dispatcher.
//
// A YAML file looks like:
//
//	drain_timeout: 3s
//	extra:
//	  service: billing
//	levels:
//	  - name: NOTICE
//	    no: 22
//	disabled: ["vendor/chatty"]
//	sinks:
//	  - target: stderr
//	    level: INFO
//	  - target: /var/log/billing.log
//	    serialize: true
//	    enqueue: true
//	    rotation: 100 MB
//	    retention: 10 days
//	    compression: gzip
//	redaction:
//	  keys: [customer_id]
//	  mode: mask
//
// The TOML form uses the same keys, with [[sinks]] and [[levels]] tables.
package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/wayneeseguin/fanlog/pkg/fanlog"
	"github.com/wayneeseguin/fanlog/pkg/features"
	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Format is the encoding of a configuration file.
type Format int

const (
	// FormatAuto picks the format from the file extension, defaulting to YAML.
	FormatAuto Format = iota
	FormatYAML
	FormatTOML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "auto"
	}
}

// File is the decoded form of a configuration file.
type File struct {
	DrainTimeout string                 `yaml:"drain_timeout" toml:"drain_timeout"`
	Extra        map[string]interface{} `yaml:"extra" toml:"extra"`
	Levels       []LevelConfig          `yaml:"levels" toml:"levels"`
	Disabled     []string               `yaml:"disabled" toml:"disabled"`
	Sinks        []SinkConfig           `yaml:"sinks" toml:"sinks"`
	Redaction    *RedactionConfig       `yaml:"redaction" toml:"redaction"`
}

// RedactionConfig scrubs secrets from every record logged through File.Logger.
type RedactionConfig struct {
	Patterns    []string `yaml:"patterns" toml:"patterns"`
	Keys        []string `yaml:"keys" toml:"keys"`
	Replacement string   `yaml:"replacement" toml:"replacement"`
	Mode        string   `yaml:"mode" toml:"mode"`
	BuiltIn     bool     `yaml:"builtin" toml:"builtin"`
}

// LevelConfig declares a custom level.
type LevelConfig struct {
	Name string `yaml:"name" toml:"name"`
	No   int    `yaml:"no" toml:"no"`
}

// SinkConfig declares one sink. Target is anything fanlog.Dispatcher.Add accepts as a
// string: a path, "stderr", "stdout", or a file://, syslog://, nats:// or beats:// URI.
type SinkConfig struct {
	Name        string            `yaml:"name" toml:"name"`
	Target      string            `yaml:"target" toml:"target"`
	Level       string            `yaml:"level" toml:"level"`
	Format      string            `yaml:"format" toml:"format"`
	Serialize   bool              `yaml:"serialize" toml:"serialize"`
	Enqueue     bool              `yaml:"enqueue" toml:"enqueue"`
	Catch       *bool             `yaml:"catch" toml:"catch"`
	TimeZone    string            `yaml:"timezone" toml:"timezone"`
	Rotation    string            `yaml:"rotation" toml:"rotation"`
	Retention   string            `yaml:"retention" toml:"retention"`
	Compression string            `yaml:"compression" toml:"compression"`
	Lock        bool              `yaml:"lock" toml:"lock"`
	BufferSize  int               `yaml:"buffer_size" toml:"buffer_size"`
	NamePrefix  string            `yaml:"name_prefix" toml:"name_prefix"`
	NameLevels  map[string]string `yaml:"name_levels" toml:"name_levels"`
	RateLimit   *RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
}

// RateLimitConfig caps a sink at PerSecond records with bursts of Burst.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" toml:"per_second"`
	Burst     int     `yaml:"burst" toml:"burst"`
}

// DefaultConfig returns a configuration with a single stderr sink at DEBUG.
func DefaultConfig() *File {
	return &File{
		Sinks: []SinkConfig{{Name: "stderr", Target: "stderr", Level: fanlog.LevelDebug.Name}},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	return LoadFormat(path, FormatAuto)
}

// LoadFormat is Load with an explicit format.
func LoadFormat(path string, format Format) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, types.ConfigError("config", "config file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	if format == FormatAuto {
		format = detectFormat(path)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return f, nil
}

// detectFormat picks the format from the file extension.
func detectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Parse decodes and validates configuration content. Unknown keys are errors.
func Parse(data []byte, format Format) (*File, error) {
	f := &File{}
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), f)
		if err != nil {
			return nil, types.NewError(types.KindConfig, "config", "TOML parse error", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, types.ConfigError("config", "unknown key %q", undecoded[0].String())
		}
	case FormatYAML, FormatAuto:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && err != io.EOF {
			return nil, types.NewError(types.KindConfig, "config", "YAML parse error", err)
		}
	default:
		return nil, types.ConfigError("config", "unsupported format %d", format)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the values that can be checked without a dispatcher.
func (f *File) Validate() error {
	if _, err := f.drainTimeout(); err != nil {
		return err
	}
	for i, l := range f.Levels {
		if strings.TrimSpace(l.Name) == "" {
			return types.ConfigError("config", "levels[%d]: name is required", i)
		}
		if l.No < 0 {
			return types.ConfigError("config", "levels[%d]: severity cannot be negative", i)
		}
	}
	if _, err := f.Redactor(); err != nil {
		return err
	}
	for i, s := range f.Sinks {
		if strings.TrimSpace(s.Target) == "" {
			return types.ConfigError("config", "sinks[%d]: target is required", i)
		}
		if s.RateLimit != nil && (s.RateLimit.PerSecond <= 0 || s.RateLimit.Burst < 1) {
			return types.ConfigError("config", "sinks[%d]: rate_limit needs a positive per_second and burst", i)
		}
		if s.TimeZone != "" {
			if _, err := time.LoadLocation(s.TimeZone); err != nil {
				return types.NewError(types.KindConfig, "config",
					fmt.Sprintf("sinks[%d]: unknown timezone %q", i, s.TimeZone), err)
			}
		}
	}
	return nil
}

func (f *File) drainTimeout() (time.Duration, error) {
	if f.DrainTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(f.DrainTimeout)
	if err != nil || d <= 0 {
		return 0, types.ConfigError("config", "invalid drain_timeout %q", f.DrainTimeout)
	}
	return d, nil
}

// DispatcherConfig returns the dispatcher-wide settings of the file on top of
// fanlog.DefaultConfig.
func (f *File) DispatcherConfig() (*fanlog.Config, error) {
	cfg := fanlog.DefaultConfig()
	d, err := f.drainTimeout()
	if err != nil {
		return nil, err
	}
	if d > 0 {
		cfg.DrainTimeout = d
	}
	if len(f.Extra) > 0 {
		cfg.Extra = fanlog.Fields(f.Extra).Clone()
	}
	return cfg, nil
}

// Options translates the sink entry into registration options.
func (s SinkConfig) Options() ([]fanlog.SinkOption, error) {
	var opts []fanlog.SinkOption
	if s.Name != "" {
		opts = append(opts, fanlog.WithName(s.Name))
	}
	if s.Level != "" {
		opts = append(opts, fanlog.WithLevel(s.Level))
	}
	if s.Format != "" {
		opts = append(opts, fanlog.WithFormat(s.Format))
	}
	if s.Serialize {
		opts = append(opts, fanlog.WithSerialize())
	}
	if s.Enqueue {
		opts = append(opts, fanlog.WithEnqueue())
	}
	if s.Catch != nil {
		opts = append(opts, fanlog.WithCatch(*s.Catch))
	}
	if s.TimeZone != "" {
		loc, err := time.LoadLocation(s.TimeZone)
		if err != nil {
			return nil, types.NewError(types.KindConfig, "config", "unknown timezone "+s.TimeZone, err)
		}
		opts = append(opts, fanlog.WithTimeZone(loc))
	}
	if s.Rotation != "" {
		opts = append(opts, fanlog.WithRotation(s.Rotation))
	}
	if s.Retention != "" {
		opts = append(opts, fanlog.WithRetention(s.Retention))
	}
	if s.Compression != "" && s.Compression != "none" {
		opts = append(opts, fanlog.WithCompression(s.Compression))
	}
	if s.Lock {
		opts = append(opts, fanlog.WithLock())
	}
	if s.BufferSize > 0 {
		opts = append(opts, fanlog.WithBufferSize(s.BufferSize))
	}
	if s.NamePrefix != "" {
		opts = append(opts, fanlog.WithNamePrefix(s.NamePrefix))
	}
	if len(s.NameLevels) > 0 {
		opts = append(opts, fanlog.WithNameLevels(s.NameLevels))
	}
	if s.RateLimit != nil {
		opts = append(opts, fanlog.WithRateLimit(s.RateLimit.PerSecond, s.RateLimit.Burst))
	}
	return opts, nil
}

// Apply registers the file's levels and sinks on d, then its disabled names and extras, and
// returns the new sink ids in file order. If a sink fails to register, the sinks added
// before it are removed again, disabled names and extras are left untouched, and the error
// names the failing entry. Levels registered by the file stay registered.
func (f *File) Apply(d *fanlog.Dispatcher) ([]int, error) {
	for _, l := range f.Levels {
		if _, err := d.RegisterLevel(l.Name, l.No); err != nil {
			return nil, err
		}
	}

	ids := make([]int, 0, len(f.Sinks))
	for i, s := range f.Sinks {
		opts, err := s.Options()
		if err == nil {
			var id int
			id, err = d.Add(s.Target, opts...)
			if err == nil {
				ids = append(ids, id)
				continue
			}
		}
		for _, id := range ids {
			_ = d.Remove(id, fanlog.WithoutDrain())
		}
		return nil, errors.Wrapf(err, "sinks[%d] (%s)", i, s.Target)
	}

	for _, name := range f.Disabled {
		d.Disable(name)
	}
	if len(f.Extra) > 0 {
		d.SetExtra(d.Extra().Merge(f.Extra))
	}
	return ids, nil
}

// Build creates a dispatcher from the file.
func (f *File) Build() (*fanlog.Dispatcher, error) {
	cfg, err := f.DispatcherConfig()
	if err != nil {
		return nil, err
	}
	cfg.Extra = nil // merged by Apply
	d, err := fanlog.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := f.Apply(d); err != nil {
		_ = d.Shutdown(context.Background())
		return nil, err
	}
	return d, nil
}

// Redactor builds the redaction section, or returns nil when there is none.
func (f *File) Redactor() (*features.Redactor, error) {
	rc := f.Redaction
	if rc == nil {
		return nil, nil
	}
	mode, err := features.ParseRedactionMode(rc.Mode)
	if err != nil {
		return nil, err
	}
	r, err := features.NewRedactor(rc.Patterns, rc.Replacement)
	if err != nil {
		return nil, err
	}
	r.SetMode(mode)
	r.AddKeys(rc.Keys...)
	r.EnableBuiltInPatterns(rc.BuiltIn)
	return r, nil
}

// Logger returns the root logger of d with the file's redaction applied.
func (f *File) Logger(d *fanlog.Dispatcher) (*fanlog.Logger, error) {
	log := d.Logger()
	r, err := f.Redactor()
	if err != nil {
		return nil, err
	}
	if r != nil {
		log = log.Patch(r.RedactRecord)
	}
	return log, nil
}
