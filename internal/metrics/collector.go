package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector handles metrics collection for a dispatcher.
type Collector struct {
	// Record counts by level name
	recordsByLevel sync.Map // map[string]*atomic.Uint64

	recordsDelivered atomic.Uint64
	recordsDropped   atomic.Uint64
	recordsDiscarded atomic.Uint64

	// File operations
	rotationCount     atomic.Uint64
	compressionCount  atomic.Uint64
	retentionRemovals atomic.Uint64
	bytesWritten      atomic.Uint64

	// Error metrics
	errorCount     atomic.Uint64
	errorsBySource sync.Map // map[string]*atomic.Uint64

	// Performance metrics
	writeCount     atomic.Uint64
	totalWriteTime atomic.Int64 // nanoseconds
	maxWriteTime   atomic.Int64 // nanoseconds
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Snapshot contains runtime metrics for the dispatcher.
type Snapshot struct {
	RecordsEmitted   map[string]uint64 `json:"records_emitted"`
	RecordsDelivered uint64            `json:"records_delivered"`
	RecordsDropped   uint64            `json:"records_dropped"`
	RecordsDiscarded uint64            `json:"records_discarded"`

	RotationCount     uint64 `json:"rotation_count"`
	CompressionCount  uint64 `json:"compression_count"`
	RetentionRemovals uint64 `json:"retention_removals"`
	BytesWritten      uint64 `json:"bytes_written"`

	ErrorCount     uint64            `json:"error_count"`
	ErrorsBySource map[string]uint64 `json:"errors_by_source"`

	AverageWriteTime time.Duration `json:"average_write_time"`
	MaxWriteTime     time.Duration `json:"max_write_time"`

	SinkCount int           `json:"sink_count"`
	Sinks     []SinkMetrics `json:"sinks"`
}

// SinkMetrics contains metrics for a single sink.
type SinkMetrics struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Queued    bool      `json:"queued"`
	Backlog   int       `json:"backlog"`
	Delivered uint64    `json:"delivered"`
	Errors    uint64    `json:"errors"`
	LastWrite time.Time `json:"last_write"`
}

// Snapshot returns the current metrics.
func (c *Collector) Snapshot(sinks []SinkMetrics) Snapshot {
	s := Snapshot{
		RecordsEmitted:    make(map[string]uint64),
		RecordsDelivered:  c.recordsDelivered.Load(),
		RecordsDropped:    c.recordsDropped.Load(),
		RecordsDiscarded:  c.recordsDiscarded.Load(),
		RotationCount:     c.rotationCount.Load(),
		CompressionCount:  c.compressionCount.Load(),
		RetentionRemovals: c.retentionRemovals.Load(),
		BytesWritten:      c.bytesWritten.Load(),
		ErrorCount:        c.errorCount.Load(),
		ErrorsBySource:    make(map[string]uint64),
		SinkCount:         len(sinks),
		Sinks:             sinks,
	}

	c.recordsByLevel.Range(func(key, value interface{}) bool {
		if n := value.(*atomic.Uint64).Load(); n > 0 {
			s.RecordsEmitted[key.(string)] = n
		}
		return true
	})

	c.errorsBySource.Range(func(key, value interface{}) bool {
		if n := value.(*atomic.Uint64).Load(); n > 0 {
			s.ErrorsBySource[key.(string)] = n
		}
		return true
	})

	if writes := c.writeCount.Load(); writes > 0 {
		s.AverageWriteTime = time.Duration(c.totalWriteTime.Load()) / time.Duration(writes)
	}
	s.MaxWriteTime = time.Duration(c.maxWriteTime.Load())

	sort.Slice(s.Sinks, func(i, j int) bool { return s.Sinks[i].ID < s.Sinks[j].ID })
	return s
}

// Reset zeroes all counters.
func (c *Collector) Reset() {
	c.recordsByLevel.Range(func(_, value interface{}) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})
	c.errorsBySource.Range(func(_, value interface{}) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})
	c.recordsDelivered.Store(0)
	c.recordsDropped.Store(0)
	c.recordsDiscarded.Store(0)
	c.rotationCount.Store(0)
	c.compressionCount.Store(0)
	c.retentionRemovals.Store(0)
	c.bytesWritten.Store(0)
	c.errorCount.Store(0)
	c.writeCount.Store(0)
	c.totalWriteTime.Store(0)
	c.maxWriteTime.Store(0)
}

// TrackEmitted counts a record accepted by the dispatcher.
func (c *Collector) TrackEmitted(level string) {
	val, _ := c.recordsByLevel.LoadOrStore(level, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// TrackDelivered counts a record written to a sink target.
func (c *Collector) TrackDelivered() {
	c.recordsDelivered.Add(1)
}

// TrackDropped counts a record a sink accepted but failed to deliver.
func (c *Collector) TrackDropped() {
	c.recordsDropped.Add(1)
}

// TrackDiscarded counts queued records thrown away on removal.
func (c *Collector) TrackDiscarded(n int) {
	if n > 0 {
		c.recordsDiscarded.Add(uint64(n))
	}
}

// TrackEvent counts file lifecycle events reported by targets.
func (c *Collector) TrackEvent(event string) {
	switch event {
	case "rotation_completed":
		c.rotationCount.Add(1)
	case "compression_completed":
		c.compressionCount.Add(1)
	case "retention_removed":
		c.retentionRemovals.Add(1)
	}
}

// TrackWrite records write metrics.
func (c *Collector) TrackWrite(bytes int, duration time.Duration) {
	if bytes > 0 {
		c.bytesWritten.Add(uint64(bytes))
	}
	c.writeCount.Add(1)
	c.totalWriteTime.Add(int64(duration))

	for {
		oldMax := c.maxWriteTime.Load()
		if int64(duration) <= oldMax {
			break
		}
		if c.maxWriteTime.CompareAndSwap(oldMax, int64(duration)) {
			break
		}
	}
}

// TrackError increments the error counter and tracks by source.
func (c *Collector) TrackError(source string) {
	c.errorCount.Add(1)
	val, _ := c.errorsBySource.LoadOrStore(source, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// EmittedCount returns the number of records emitted at a level.
func (c *Collector) EmittedCount(level string) uint64 {
	if val, ok := c.recordsByLevel.Load(level); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}

// ErrorCount returns the total error count.
func (c *Collector) ErrorCount() uint64 {
	return c.errorCount.Load()
}

// ErrorCountBySource returns the error count for a specific source.
func (c *Collector) ErrorCountBySource(source string) uint64 {
	if val, ok := c.errorsBySource.Load(source); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}
