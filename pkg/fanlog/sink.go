package fanlog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayneeseguin/fanlog/internal/metrics"
	"github.com/wayneeseguin/fanlog/internal/queue"
	"github.com/wayneeseguin/fanlog/pkg/backends"
	"github.com/wayneeseguin/fanlog/pkg/features"
	"github.com/wayneeseguin/fanlog/pkg/formatters"
	"github.com/wayneeseguin/fanlog/pkg/types"
)

// delivery is one rendered record waiting in a queued sink.
type delivery struct {
	rec  *types.Record
	data []byte
}

// sink is one registered output. The lifecycle lock linearizes delivery against removal:
// delivery holds the read side, removal takes the write side and sets removed.
type sink struct {
	id        int
	name      string
	level     types.Level
	target    backends.Target
	chain     features.Chain
	formatter formatters.Formatter
	queued    bool
	catch     bool
	d         *Dispatcher

	lifecycle sync.RWMutex
	removed   bool

	writeMu sync.Mutex // serializes target I/O
	queue   *queue.Queue[delivery]
	done    chan struct{} // closed when the worker exits

	// reports raised while sink locks are held, handed to the error handler once they
	// are released
	pendingMu sync.Mutex
	pending   []*types.LogError

	delivered atomic.Uint64
	errors    atomic.Uint64
	lastWrite atomic.Int64
}

func (s *sink) start() {
	if !s.queued {
		return
	}
	s.queue = queue.New[delivery]()
	s.done = make(chan struct{})
	go s.run()
}

// handle filters, renders and delivers or enqueues one record. It never returns errors.
func (s *sink) handle(rec *types.Record) {
	defer s.flushReports()
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	if s.removed {
		return
	}

	ok, err := s.chain.Allow(rec)
	if err != nil {
		s.report(types.KindFormat, "filter", "filter failed, record rejected", err)
	}
	if !ok {
		return
	}

	data := s.render(rec)
	if s.queued {
		s.queue.Push(delivery{rec: rec, data: data})
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.write(rec, data) {
		if err := s.target.Flush(); err != nil {
			s.fail("flush", err)
		}
	}
}

// render formats rec. On failure the record is still written, as the formatter's
// fallback output when it gives one, otherwise as a raw dump.
func (s *sink) render(rec *types.Record) (data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.report(types.KindFormat, "format", "formatter panicked", fmt.Errorf("%v", r))
			data = formatters.RawDump(rec)
		}
	}()
	data, err := s.formatter.Format(rec)
	if err != nil {
		if len(data) > 0 {
			s.report(types.KindFormat, "format", "cannot render record, wrote fallback", err)
			return data
		}
		s.report(types.KindFormat, "format", "cannot render record, wrote raw dump", err)
		return formatters.RawDump(rec)
	}
	return data
}

// write performs one target write. The caller holds writeMu.
func (s *sink) write(rec *types.Record, data []byte) bool {
	start := time.Now()
	n, err := backends.WriteTo(s.target, rec, data)
	s.d.metrics.TrackWrite(n, time.Since(start))
	if err != nil {
		s.d.metrics.TrackDropped()
		s.fail("write", err)
		return false
	}
	s.delivered.Add(1)
	s.lastWrite.Store(time.Now().UnixNano())
	s.d.metrics.TrackDelivered()
	return true
}

func (s *sink) fail(op string, err error) {
	s.errors.Add(1)
	s.report(types.KindDelivery, op, "cannot write to target", err)
}

// run is the worker of a queued sink. It flushes the target whenever the queue runs dry.
func (s *sink) run() {
	defer close(s.done)
	for {
		item, ok := s.queue.Pop()
		if !ok {
			return
		}
		s.writeMu.Lock()
		s.write(item.rec, item.data)
		if s.queue.Len() == 0 {
			if err := s.target.Flush(); err != nil {
				s.fail("flush", err)
			}
		}
		s.writeMu.Unlock()
		s.flushReports()
		s.queue.Done()
	}
}

// wait blocks until the queued backlog is written or ctx ends.
func (s *sink) wait(ctx context.Context) error {
	if !s.queued {
		return nil
	}
	return s.queue.WaitIdle(ctx)
}

// close stops delivery, drains or discards the backlog, and closes the target. A drain
// that does not finish before ctx ends discards the rest and returns a DrainTimeout error
// without waiting for a write still in flight; the target is then closed as soon as the
// worker returns from it.
func (s *sink) close(ctx context.Context, drain bool) error {
	s.lifecycle.Lock()
	s.removed = true
	s.lifecycle.Unlock()

	if !s.queued {
		s.closeTarget()
		return nil
	}

	var result error
	s.queue.Close()
	if drain {
		if err := s.queue.WaitIdle(ctx); err != nil {
			result = s.drainTimeout(s.queue.Discard(), err)
		}
	} else {
		s.d.metrics.TrackDiscarded(s.queue.Discard())
	}

	select {
	case <-s.done:
	default:
		select {
		case <-s.done:
		case <-ctx.Done():
			go func() {
				<-s.done
				s.closeTarget()
			}()
			if result == nil {
				result = s.drainTimeout(0, ctx.Err())
			}
			return result
		}
	}
	s.closeTarget()
	return result
}

func (s *sink) drainTimeout(discarded int, err error) error {
	s.d.metrics.TrackDiscarded(discarded)
	e := types.NewError(types.KindDrainTimeout, "remove",
		fmt.Sprintf("backlog not drained in time, %d record(s) discarded", discarded), err)
	e.SinkID, e.Sink = s.id, s.name
	return e
}

func (s *sink) closeTarget() {
	s.writeMu.Lock()
	err := s.target.Close()
	s.writeMu.Unlock()
	if err != nil {
		s.report(types.KindDelivery, "close", "cannot close target", err)
	}
	s.flushReports()
}

// report records a sink-side failure. It is delivered by the next flushReports, which
// runs once the sink's locks are released.
func (s *sink) report(kind types.Kind, op, msg string, err error) {
	s.d.metrics.TrackError(op)
	if !s.catch {
		return
	}
	e := types.NewError(kind, op, msg, err)
	e.SinkID, e.Sink = s.id, s.name
	s.pendingMu.Lock()
	s.pending = append(s.pending, e)
	s.pendingMu.Unlock()
}

func (s *sink) flushReports() {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = nil
	s.pendingMu.Unlock()
	for _, e := range pending {
		s.d.deliverError(e)
	}
}

// SinkInfo describes a registered sink.
type SinkInfo struct {
	ID      int
	Name    string
	Level   Level
	Queued  bool
	Backlog int
	Target  backends.BackendStats
}

func (s *sink) info() SinkInfo {
	info := SinkInfo{ID: s.id, Name: s.name, Level: s.level, Queued: s.queued}
	if s.queued {
		info.Backlog = s.queue.Pending()
	}
	if sp, ok := s.target.(backends.StatsProvider); ok {
		s.writeMu.Lock()
		info.Target = sp.Stats()
		s.writeMu.Unlock()
	}
	return info
}

func (s *sink) snapshot() metrics.SinkMetrics {
	m := metrics.SinkMetrics{
		ID:        s.id,
		Name:      s.name,
		Queued:    s.queued,
		Delivered: s.delivered.Load(),
		Errors:    s.errors.Load(),
	}
	if s.queued {
		m.Backlog = s.queue.Pending()
	}
	if ns := s.lastWrite.Load(); ns != 0 {
		m.LastWrite = time.Unix(0, ns)
	}
	return m
}
