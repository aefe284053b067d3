package backends

import (
	"io"
	"os"
	"time"
)

// WriterTarget writes to a caller-owned io.Writer. Close flushes but never closes the
// writer; its owner does that.
type WriterTarget struct {
	w     io.Writer
	name  string
	stats BackendStats
}

// NewWriterTarget wraps w. name identifies the target in errors and metrics.
func NewWriterTarget(w io.Writer, name string) *WriterTarget {
	return &WriterTarget{
		w:     w,
		name:  name,
		stats: BackendStats{Kind: "writer", Path: name},
	}
}

// Stderr returns a target writing to the process's standard error.
func Stderr() *WriterTarget {
	return NewWriterTarget(os.Stderr, "stderr")
}

// Stdout returns a target writing to the process's standard output.
func Stdout() *WriterTarget {
	return NewWriterTarget(os.Stdout, "stdout")
}

// Write implements Target.
func (t *WriterTarget) Write(entry []byte) (int, error) {
	n, err := t.w.Write(entry)
	t.stats.WriteCount++
	t.stats.BytesWritten += uint64(n)
	t.stats.LastWrite = time.Now()
	if err == nil && n < len(entry) {
		err = io.ErrShortWrite
	}
	if err != nil {
		t.stats.ErrorCount++
	}
	return n, err
}

// Flush flushes writers that buffer, such as *bufio.Writer.
func (t *WriterTarget) Flush() error {
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close implements Target.
func (t *WriterTarget) Close() error {
	return t.Flush()
}

// Name returns the target name.
func (t *WriterTarget) Name() string {
	return t.name
}

// Stats returns target statistics
func (t *WriterTarget) Stats() BackendStats {
	return t.stats
}

// FuncTarget hands each rendered record to a function.
type FuncTarget struct {
	fn func([]byte) error
}

// NewFuncTarget wraps fn. The slice passed to fn must not be retained.
func NewFuncTarget(fn func([]byte) error) *FuncTarget {
	return &FuncTarget{fn: fn}
}

// Write implements Target.
func (t *FuncTarget) Write(entry []byte) (int, error) {
	if err := t.fn(entry); err != nil {
		return 0, err
	}
	return len(entry), nil
}

// Flush implements Target.
func (t *FuncTarget) Flush() error { return nil }

// Close implements Target.
func (t *FuncTarget) Close() error { return nil }
