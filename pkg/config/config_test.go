package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/fanlog"
)

const yamlConfig = `
drain_timeout: 3s
extra:
  service: billing
levels:
  - name: notice
    no: 22
disabled: ["vendor/chatty"]
sinks:
  - name: app
    target: %s
    level: NOTICE
    format: "{level} {message} {extra[service]}"
    rotation: 1 MB
    retention: "3"
    compression: gzip
  - target: stdout
    serialize: true
    enqueue: true
    catch: false
    rate_limit:
      per_second: 10
      burst: 5
`

const tomlConfig = `
drain_timeout = "3s"
disabled = ["vendor/chatty"]

[extra]
service = "billing"

[[levels]]
name = "notice"
no = 22

[[sinks]]
name = "app"
target = "%s"
level = "NOTICE"
format = "{level} {message} {extra[service]}"
rotation = "1 MB"
retention = "3"
compression = "gzip"

[[sinks]]
target = "stdout"
serialize = true
enqueue = true
catch = false

[sinks.rate_limit]
per_second = 10
burst = 5
`

func writeConfig(t *testing.T, name, content string) (cfgPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "app.log")
	cfgPath = filepath.Join(dir, name)
	content = strings.Replace(content, "%s", logPath, 1)
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, logPath
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "fanlog.yaml", yamlConfig},
		{"yml", "fanlog.yml", yamlConfig},
		{"toml", "fanlog.toml", tomlConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, logPath := writeConfig(t, tt.file, tt.content)
			f, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			if f.DrainTimeout != "3s" || f.Extra["service"] != "billing" {
				t.Errorf("top level %+v", f)
			}
			if len(f.Levels) != 1 || f.Levels[0].No != 22 {
				t.Errorf("levels %+v", f.Levels)
			}
			if len(f.Sinks) != 2 {
				t.Fatalf("got %d sinks", len(f.Sinks))
			}
			app, out := f.Sinks[0], f.Sinks[1]
			if app.Target != logPath || app.Rotation != "1 MB" || app.Compression != "gzip" {
				t.Errorf("file sink %+v", app)
			}
			if !out.Serialize || !out.Enqueue || out.Catch == nil || *out.Catch {
				t.Errorf("stdout sink %+v", out)
			}
			if out.RateLimit == nil || out.RateLimit.PerSecond != 10 || out.RateLimit.Burst != 5 {
				t.Errorf("rate limit %+v", out.RateLimit)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	path, logPath := writeConfig(t, "fanlog.yaml", yamlConfig)
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Sinks = f.Sinks[:1] // keep stdout out of test output

	d, err := f.Build()
	if err != nil {
		t.Fatal(err)
	}
	log := d.Logger()
	log.Info("below threshold")
	log.Log("NOTICE", "charged")
	log.Named("vendor/chatty").Critical("disabled")
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "NOTICE charged billing\n" {
		t.Errorf("log file %q", data)
	}
}

func TestLoggerRedaction(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "redacted.log")
	f, err := Parse([]byte(`
sinks:
  - target: `+logPath+`
    format: "{message} {extra}"
redaction:
  keys: [customer_id]
  mode: mask
`), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	d, err := f.Build()
	if err != nil {
		t.Fatal(err)
	}
	log, err := f.Logger(d)
	if err != nil {
		t.Fatal(err)
	}
	log.Bind(fanlog.Fields{"customer_id": "cus_123456"}).Info(`{"password": "hunter22"}`)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(logPath)
	want := `{"password": "****er22"} {customer_id=******3456}` + "\n"
	if string(data) != want {
		t.Errorf("got %q, want %q", data, want)
	}

	plain := &File{}
	if r, err := plain.Redactor(); r != nil || err != nil {
		t.Errorf("no redaction section: %v, %v", r, err)
	}
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	d := fanlog.New()
	defer d.Shutdown(context.Background())

	f := &File{Sinks: []SinkConfig{
		{Target: filepath.Join(t.TempDir(), "ok.log")},
		{Target: "stderr", Rotation: "1 MB"},
	}}
	ids, err := f.Apply(d)
	if !errors.Is(err, fanlog.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "sinks[1]") {
		t.Errorf("error does not name the entry: %v", err)
	}
	if ids != nil || len(d.Sinks()) != 0 {
		t.Errorf("partial registration left behind: ids=%v sinks=%d", ids, len(d.Sinks()))
	}
}

func TestApplyFailureLeavesExtrasAndNames(t *testing.T) {
	d := fanlog.New()
	defer d.Shutdown(context.Background())
	d.SetExtra(fanlog.Fields{"service": "api"})
	mem := &strings.Builder{}
	if _, err := d.Add(func(b []byte) error {
		mem.Write(b)
		return nil
	}, fanlog.WithFormat("{name} {message} {extra}")); err != nil {
		t.Fatal(err)
	}

	f := &File{
		Extra:    map[string]interface{}{"service": "billing", "region": "eu"},
		Disabled: []string{"vendor"},
		Sinks:    []SinkConfig{{Target: "stderr", Rotation: "1 MB"}},
	}
	if _, err := f.Apply(d); err == nil {
		t.Fatal("expected Apply to fail")
	}

	if extra := d.Extra(); len(extra) != 1 || extra["service"] != "api" {
		t.Errorf("extras changed by a failed Apply: %v", extra)
	}
	d.Logger().Named("vendor").Info("still enabled")
	if got := mem.String(); got != "vendor still enabled {service=api}\n" {
		t.Errorf("got %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		content string
	}{
		{"unknown yaml key", FormatYAML, "sinks:\n  - target: stderr\n    colour: red\n"},
		{"unknown toml key", FormatTOML, "[[sinks]]\ntarget = \"stderr\"\ncolour = \"red\"\n"},
		{"bad yaml", FormatYAML, "sinks: [\n"},
		{"bad toml", FormatTOML, "sinks = [[\n"},
		{"missing target", FormatYAML, "sinks:\n  - level: INFO\n"},
		{"bad drain timeout", FormatYAML, "drain_timeout: soon\n"},
		{"negative level", FormatYAML, "levels:\n  - name: X\n    no: -1\n"},
		{"unnamed level", FormatYAML, "levels:\n  - no: 3\n"},
		{"bad rate limit", FormatYAML, "sinks:\n  - target: stderr\n    rate_limit: {per_second: 0, burst: 1}\n"},
		{"bad timezone", FormatYAML, "sinks:\n  - target: stderr\n    timezone: Mars/Olympus\n"},
		{"bad redaction mode", FormatYAML, "redaction:\n  mode: shred\n"},
		{"bad redaction pattern", FormatTOML, "[redaction]\npatterns = [\"(\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content), tt.format); !errors.Is(err, fanlog.ErrConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil, FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Sinks) != 0 {
		t.Errorf("empty file produced sinks %+v", f.Sinks)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist, got %v", err)
	}
	if _, err := Load(" "); !errors.Is(err, fanlog.ErrConfig) {
		t.Errorf("empty path: %v", err)
	}
}

func TestDispatcherConfig(t *testing.T) {
	f := &File{DrainTimeout: "250ms", Extra: map[string]interface{}{"env": "prod"}}
	cfg, err := f.DispatcherConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DrainTimeout != 250*time.Millisecond || cfg.Extra["env"] != "prod" {
		t.Errorf("config %+v", cfg)
	}
}

func TestSinkOptions(t *testing.T) {
	off := false
	s := SinkConfig{
		Name:       "all",
		Target:     "stderr",
		Level:      "INFO",
		Serialize:  true,
		Enqueue:    true,
		Catch:      &off,
		TimeZone:   "UTC",
		NamePrefix: "svc",
		NameLevels: map[string]string{"svc.db": "ERROR"},
		RateLimit:  &RateLimitConfig{PerSecond: 1, Burst: 1},
	}
	opts, err := s.Options()
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 9 {
		t.Errorf("got %d options", len(opts))
	}

	d := fanlog.New()
	defer d.Shutdown(context.Background())
	var buf strings.Builder
	if _, err := d.Add(&buf, opts...); err != nil {
		t.Fatalf("options rejected: %v", err)
	}
	info := d.Sinks()[0]
	if info.Name != "all" || !info.Queued || info.Level.Name != "INFO" {
		t.Errorf("sink %+v", info)
	}
}

func TestDefaultConfig(t *testing.T) {
	f := DefaultConfig()
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(f.Sinks) != 1 || f.Sinks[0].Target != "stderr" {
		t.Errorf("default sinks %+v", f.Sinks)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"a.toml":  FormatTOML,
		"a.TOML":  FormatTOML,
		"a.yaml":  FormatYAML,
		"a.yml":   FormatYAML,
		"noext":   FormatYAML,
		"a.json":  FormatYAML,
		"dir/x.t": FormatYAML,
	}
	for path, want := range tests {
		if got := detectFormat(path); got != want {
			t.Errorf("detectFormat(%q) = %s, want %s", path, got, want)
		}
	}
}
