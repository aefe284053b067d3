package backends

import (
	"time"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Target is where a sink writes rendered records. The owning sink serializes all calls,
// so implementations need no locking of their own unless they are shared.
type Target interface {
	// Write writes one rendered record
	Write(entry []byte) (int, error)

	// Flush ensures all buffered data is written
	Flush() error

	// Close releases the target. It is called once, after the last Write.
	Close() error
}

// RecordWriter is implemented by targets that use the structured record as well as the
// rendered bytes, such as syslog for its severity or Beats for its event fields.
type RecordWriter interface {
	WriteRecord(rec *types.Record, entry []byte) (int, error)
}

// StatsProvider is implemented by targets that track their own statistics.
type StatsProvider interface {
	Stats() BackendStats
}

// BackendStats represents statistics for a target
type BackendStats struct {
	Kind         string
	Path         string
	Size         int64
	WriteCount   uint64
	BytesWritten uint64
	ErrorCount   uint64
	LastWrite    time.Time
}

// WriteTo writes entry through WriteRecord when the target supports it.
func WriteTo(t Target, rec *types.Record, entry []byte) (int, error) {
	if rw, ok := t.(RecordWriter); ok && rec != nil {
		return rw.WriteRecord(rec, entry)
	}
	return t.Write(entry)
}
