package formatters

import (
	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Formatter renders a record to the bytes written to a sink target.
// Implementations must be safe for concurrent use and must not modify the record.
// An implementation may return usable bytes together with an error; callers write those
// bytes and report the error.
type Formatter interface {
	Format(rec *types.Record) ([]byte, error)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(rec *types.Record) ([]byte, error)

// Format calls f(rec).
func (f FormatterFunc) Format(rec *types.Record) ([]byte, error) {
	return f(rec)
}
