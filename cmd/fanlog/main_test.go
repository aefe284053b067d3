package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so runs do not leak into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmitArgs(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")
	cfg := writeFile(t, dir, "fanlog.yaml", `
sinks:
  - target: `+logPath+`
    format: "{level} {name} {message} {extra}"
`)

	if _, err := execute(t, "", "emit", "-c", cfg, "-l", "warning", "-n", "cron", "-f", "job=backup", "disk", "90%"); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(logPath)
	if string(data) != "WARNING cron disk 90% {job=backup}\n" {
		t.Errorf("got %q", data)
	}
}

func TestEmitRedact(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "redact.log")
	cfg := writeFile(t, dir, "fanlog.yaml", "sinks:\n  - target: "+logPath+"\n    format: \"{message} {extra}\"\n")

	if _, err := execute(t, "", "emit", "-c", cfg, "--redact", "-f", "token=abc", "login", "Authorization: Bearer xyz"); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(logPath)
	if string(data) != "login Authorization: Bearer [REDACTED] {token=[REDACTED]}\n" {
		t.Errorf("got %q", data)
	}
}

func TestEmitStdin(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "stdin.log")
	extra := filepath.Join(dir, "extra.log")
	cfg := writeFile(t, dir, "fanlog.toml", `
[[sinks]]
target = "`+logPath+`"
format = "{message}"
enqueue = true
`)

	_, err := execute(t, "one\n\ntwo\nthree\n", "emit", "--config", cfg, "--target", extra)
	if err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(logPath)
	if string(data) != "one\ntwo\nthree\n" {
		t.Errorf("queued sink got %q", data)
	}
	data, _ = os.ReadFile(extra)
	if n := strings.Count(string(data), "\n"); n != 3 {
		t.Errorf("--target sink got %d lines: %q", n, data)
	}
}

func TestEmitErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "fanlog.yaml", "sinks:\n  - target: "+filepath.Join(dir, "x.log")+"\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown level", []string{"emit", "-c", cfg, "-l", "LOUD", "x"}, "unknown level"},
		{"bad field", []string{"emit", "-c", cfg, "-f", "novalue", "x"}, "invalid field"},
		{"missing config", []string{"emit", "-c", filepath.Join(dir, "absent.yaml"), "x"}, "reading config file"},
		{"bad target", []string{"emit", "-c", cfg, "-t", "kafka://x/y", "x"}, "sinks[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLevels(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "fanlog.yaml", "levels:\n  - name: notice\n    no: 22\n")

	out, err := execute(t, "", "levels", "-c", cfg)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 9 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[4], "NOTICE") || !strings.HasSuffix(lines[4], "22") {
		t.Errorf("custom level row %q", lines[4])
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "check.log")
	cfg := writeFile(t, dir, "fanlog.yaml", `
sinks:
  - name: main
    target: `+logPath+`
    level: INFO
    rotation: 10 MB
`)

	out, err := execute(t, "", "check", "-c", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, logPath) || !strings.Contains(out, "10 MB") {
		t.Errorf("check output:\n%s", out)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("check without --open must not create targets")
	}

	out, err = execute(t, "", "check", "-c", cfg, "--open")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "main") || !strings.Contains(out, "file") {
		t.Errorf("check --open output:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "fanlog dev") {
		t.Errorf("got %q", out)
	}
}
