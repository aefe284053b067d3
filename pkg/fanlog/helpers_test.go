package fanlog_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/fanlog"
)

// memSink collects rendered records.
type memSink struct {
	mu    sync.Mutex
	lines []string
}

func (m *memSink) write(b []byte) error {
	m.mu.Lock()
	m.lines = append(m.lines, string(b))
	m.mu.Unlock()
	return nil
}

func (m *memSink) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *memSink) Text() string {
	return strings.Join(m.Lines(), "")
}

// errorLog collects errors passed to the dispatcher's error handler.
type errorLog struct {
	mu   sync.Mutex
	errs []fanlog.LogError
}

func (e *errorLog) handle(err fanlog.LogError) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func (e *errorLog) Errors() []fanlog.LogError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]fanlog.LogError, len(e.errs))
	copy(out, e.errs)
	return out
}

func (e *errorLog) Kinds() []fanlog.Kind {
	var kinds []fanlog.Kind
	for _, err := range e.Errors() {
		kinds = append(kinds, err.Kind)
	}
	return kinds
}

func newDispatcher(t *testing.T) (*fanlog.Dispatcher, *errorLog) {
	t.Helper()
	errs := &errorLog{}
	cfg := fanlog.DefaultConfig()
	cfg.ErrorHandler = errs.handle
	cfg.DrainTimeout = 2 * time.Second
	d, err := fanlog.NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})
	return d, errs
}

func addMem(t *testing.T, d *fanlog.Dispatcher, opts ...fanlog.SinkOption) (int, *memSink) {
	t.Helper()
	mem := &memSink{}
	id, err := d.Add(mem.write, opts...)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return id, mem
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
