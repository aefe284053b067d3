package fanlog_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"

	pkgerrors "github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/fanlog"
	"github.com/wayneeseguin/fanlog/pkg/formatters"
)

// records captures the records seen by a sink without rendering them.
func records(t *testing.T, d *fanlog.Dispatcher) func() []fanlog.Record {
	t.Helper()
	var mu sync.Mutex
	var got []fanlog.Record
	_, err := d.Add(func([]byte) error { return nil }, fanlog.WithLevel("TRACE"), fanlog.WithFilter(func(rec *fanlog.Record) bool {
		mu.Lock()
		got = append(got, *rec)
		mu.Unlock()
		return true
	}))
	if err != nil {
		t.Fatal(err)
	}
	return func() []fanlog.Record {
		mu.Lock()
		defer mu.Unlock()
		out := make([]fanlog.Record, len(got))
		copy(out, got)
		return out
	}
}

func TestBindDoesNotMutateParent(t *testing.T) {
	d, _ := newDispatcher(t)
	_, mem := addMem(t, d, fanlog.WithFormat("{message} {extra}"))

	parent := d.Logger().Bind(fanlog.Fields{"a": 1})
	child := parent.Bind(fanlog.Fields{"b": 2, "a": 3})

	parent.Info("parent")
	child.Info("child")

	lines := mem.Lines()
	if lines[0] != "parent {a=1}\n" {
		t.Errorf("parent line %q", lines[0])
	}
	if lines[1] != "child {a=3 b=2}\n" {
		t.Errorf("child line %q", lines[1])
	}
}

func TestExtrasPrecedence(t *testing.T) {
	d, _ := newDispatcher(t)
	got := records(t, d)
	d.SetExtra(fanlog.Fields{"app": "svc", "who": "default"})

	ctx := fanlog.Contextualize(context.Background(), fanlog.Fields{"who": "context", "req": 7})
	d.Logger().WithContext(ctx).Bind(fanlog.Fields{"who": "bound"}).Info("x")
	d.Logger().WithContext(ctx).Info("y")

	recs := got()
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Extra["who"] != "bound" || recs[0].Extra["app"] != "svc" || recs[0].Extra["req"] != 7 {
		t.Errorf("bound record extras %v", recs[0].Extra)
	}
	if recs[1].Extra["who"] != "context" {
		t.Errorf("context record extras %v", recs[1].Extra)
	}
	if d.Extra()["who"] != "default" {
		t.Error("records must not write back into the defaults")
	}
}

func TestScopeRestoresExtras(t *testing.T) {
	d, _ := newDispatcher(t)
	_, mem := addMem(t, d, fanlog.WithFormat("{message} {extra}"))
	log := d.Logger()
	ctx := fanlog.Contextualize(context.Background(), fanlog.Fields{"outer": true})

	boom := errors.New("boom")
	err := fanlog.Scope(ctx, fanlog.Fields{"job": 42}, func(ctx context.Context) error {
		log.WithContext(ctx).Info("inside")
		return fanlog.Scope(ctx, fanlog.Fields{"step": "b"}, func(ctx context.Context) error {
			log.WithContext(ctx).Info("nested")
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Errorf("Scope returned %v", err)
	}
	log.WithContext(ctx).Info("after")

	want := []string{
		"inside {job=42 outer=true}\n",
		"nested {job=42 outer=true step=b}\n",
		"after {outer=true}\n",
	}
	if got := mem.Lines(); strings.Join(got, "") != strings.Join(want, "") {
		t.Errorf("got %q", got)
	}
}

func TestWellKnownContextKeys(t *testing.T) {
	ctx := context.WithValue(context.Background(), fanlog.ContextKeyRequestID, "r-1")
	ctx = fanlog.TraceContext(ctx, "t-1", "s-1")
	ctx = fanlog.Contextualize(ctx, fanlog.Fields{"request_id": "override"})

	fields := fanlog.FieldsFromContext(ctx)
	if fields["trace_id"] != "t-1" || fields["span_id"] != "s-1" {
		t.Errorf("trace fields %v", fields)
	}
	if fields["request_id"] != "override" {
		t.Errorf("Contextualize extras should win, got %v", fields["request_id"])
	}
	if len(fanlog.FieldsFromContext(nil)) != 0 {
		t.Error("nil context should carry no extras")
	}
}

func TestPatch(t *testing.T) {
	d, errs := newDispatcher(t)
	_, mem := addMem(t, d, fanlog.WithFormat("{message} {extra}"))

	log := d.Logger().Patch(func(rec *fanlog.Record) error {
		rec.Extra["size"] = len(rec.Message)
		return nil
	})
	log.Info("four")

	log.Patch(func(rec *fanlog.Record) error {
		return errors.New("rejected")
	}).Info("dropped")

	log.Patch(func(rec *fanlog.Record) error {
		panic("patcher bug")
	}).Info("dropped too")

	if got := mem.Lines(); len(got) != 1 || got[0] != "four {size=4}\n" {
		t.Errorf("got %q", got)
	}
	kinds := errs.Kinds()
	if len(kinds) != 2 || kinds[0] != fanlog.KindFormat || kinds[1] != fanlog.KindFormat {
		t.Errorf("expected two format reports, got %v", kinds)
	}
	if d.Metrics().RecordsDropped != 2 {
		t.Errorf("RecordsDropped = %d", d.Metrics().RecordsDropped)
	}
}

func TestPatchSeesSharedRecordOncePerEmit(t *testing.T) {
	d, _ := newDispatcher(t)
	_, a := addMem(t, d, fanlog.WithFormat("{extra[n]}"))
	_, b := addMem(t, d, fanlog.WithFormat("{extra[n]}"))

	calls := 0
	d.Logger().Patch(func(rec *fanlog.Record) error {
		calls++
		rec.Extra["n"] = calls
		return nil
	}).Info("x")

	if calls != 1 || a.Text() != "1\n" || b.Text() != "1\n" {
		t.Errorf("calls=%d a=%q b=%q", calls, a.Text(), b.Text())
	}
}

func TestCallerInfo(t *testing.T) {
	d, _ := newDispatcher(t)
	got := records(t, d)

	_, _, line, _ := runtime.Caller(0)
	d.Logger().Info("here")
	line++

	rec := got()[0]
	if rec.Name != "github.com/wayneeseguin/fanlog/pkg/fanlog_test" {
		t.Errorf("Name = %q", rec.Name)
	}
	if rec.Function != "TestCallerInfo" {
		t.Errorf("Function = %q", rec.Function)
	}
	if !strings.HasSuffix(rec.File, "logger_test.go") || rec.Line != line {
		t.Errorf("location %s:%d, want line %d", rec.File, rec.Line, line)
	}

	d.Logger().Named("api").Info("named")
	if rec := got()[1]; rec.Name != "api" || rec.Function != "TestCallerInfo" {
		t.Errorf("named record %q %q", rec.Name, rec.Function)
	}
}

func TestFormatArgs(t *testing.T) {
	d, _ := newDispatcher(t)
	_, mem := addMem(t, d, fanlog.WithFormat("{message}"))

	log := d.Logger()
	log.Info("%d%%", 50)
	log.Info("100%")

	if got := mem.Text(); got != "50%\n100%\n" {
		t.Errorf("got %q", got)
	}
}

func TestWithError(t *testing.T) {
	d, _ := newDispatcher(t)
	got := records(t, d)

	cause := pkgerrors.New("connection reset")
	wrapped := pkgerrors.Wrap(cause, "query")
	d.Logger().WithError(wrapped).Warning("retrying")

	rec := got()[0]
	if rec.Exception == nil {
		t.Fatal("no exception attached")
	}
	if rec.Exception.Type != "*errors.fundamental" {
		t.Errorf("Type = %q", rec.Exception.Type)
	}
	if rec.Exception.Message != "query: connection reset" {
		t.Errorf("Message = %q", rec.Exception.Message)
	}
	if len(rec.Exception.Frames) == 0 || !strings.Contains(rec.Exception.Frames[0].Function, "TestWithError") {
		t.Errorf("frames should come from the error's stack: %+v", rec.Exception.Frames)
	}
	if rec.Level.Name != "WARNING" {
		t.Errorf("WithError must keep the call's level, got %s", rec.Level.Name)
	}
}

func TestExceptionSerialized(t *testing.T) {
	d, _ := newDispatcher(t)
	_, mem := addMem(t, d, fanlog.WithSerialize())

	d.Logger().Exception(&diskError{device: "nvme0"}, "sync failed")

	obj, err := formatters.DecodeJSON([]byte(mem.Lines()[0]))
	if err != nil {
		t.Fatal(err)
	}
	exc := obj["exception"].(map[string]interface{})
	if exc["type"] != "*fanlog_test.diskError" || exc["message"] != "no space left on nvme0" {
		t.Errorf("exception %v", exc)
	}
	if frames := exc["frames"].([]interface{}); len(frames) == 0 {
		t.Error("no frames serialized")
	}
}

func TestCatch(t *testing.T) {
	d, _ := newDispatcher(t)
	got := records(t, d)

	func() {
		defer d.Logger().Catch("worker crashed")
		panicky(3)
	}()

	recs := got()
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	rec := recs[0]
	if rec.Level.Name != "ERROR" || rec.Message != "worker crashed" {
		t.Errorf("record %s %q", rec.Level.Name, rec.Message)
	}
	if rec.Exception.Type != "string" || rec.Exception.Message != "depth 0" {
		t.Errorf("exception %q %q", rec.Exception.Type, rec.Exception.Message)
	}
	if !strings.HasSuffix(rec.Exception.Frames[0].Function, "panicky") {
		t.Errorf("innermost frame %q", rec.Exception.Frames[0].Function)
	}
	if rec.Function != "panicky" {
		t.Errorf("record location should be the panic site, got %q", rec.Function)
	}
}

func TestCatchErrorPanic(t *testing.T) {
	d, _ := newDispatcher(t)
	got := records(t, d)

	func() {
		defer d.Logger().Catch("recovered")
		panic(&diskError{device: "sdb"})
	}()

	if exc := got()[0].Exception; exc.Type != "*fanlog_test.diskError" {
		t.Errorf("Type = %q", exc.Type)
	}
}

func TestCatchWithoutPanic(t *testing.T) {
	d, _ := newDispatcher(t)
	got := records(t, d)

	func() {
		defer d.Logger().Catch("nothing")
	}()

	if n := len(got()); n != 0 {
		t.Errorf("Catch without a panic logged %d records", n)
	}
}

func TestSkippedLevelsBuildNothing(t *testing.T) {
	d, _ := newDispatcher(t)
	addMem(t, d, fanlog.WithLevel("ERROR"))

	called := false
	d.Logger().Patch(func(*fanlog.Record) error {
		called = true
		return nil
	}).Debug("skipped")

	if called {
		t.Error("a record below every threshold reached the patchers")
	}
}

func panicky(n int) {
	if n == 0 {
		panic(fmt.Sprintf("depth %d", n))
	}
	panicky(n - 1)
}
