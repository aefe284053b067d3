// Package fanlog is a structured logging engine. A Dispatcher accepts records from any
// goroutine and fans them out to independently configured sinks: files, standard streams,
// network targets or plain functions. Each sink has its own level threshold, filters,
// format, rotation, retention, compression and delivery mode.
//
// Basic usage:
//
//	d := fanlog.New()
//	defer d.Shutdown(context.Background())
//
//	id, err := d.Add("/var/log/app.log",
//		fanlog.WithLevel("INFO"),
//		fanlog.WithRotation("10 MB"),
//		fanlog.WithRetention("5 files"),
//		fanlog.WithCompression("gzip"),
//		fanlog.WithEnqueue())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	log := d.Logger()
//	log.Info("listening on %s", addr)
//	log.Bind(fanlog.Fields{"request_id": id}).Warning("slow request")
//
// Delivery:
//
// Direct sinks write in the emitting goroutine. Queued sinks (WithEnqueue) push the
// rendered record onto an unbounded FIFO drained by one worker goroutine per sink, which
// also performs rotation and retention. Remove waits for the backlog to drain, bounded by
// WithDrainTimeout, and Complete waits for every queued sink to go idle.
//
// Enrichment:
//
// Extras come from three places, merged in order: dispatcher defaults (SetExtra), the
// context (Contextualize), and fields bound on a Logger (Bind). Patch functions then run
// on the staging record before it is handed to the sinks.
//
// Errors:
//
// Registration errors are returned. Sink-side failures (render, write, rotation) never
// reach the emitting call site; they are passed to the error handler and the Errors
// channel as *LogError values whose Kind matches one of the Err* sentinels.
//
// Snapshot consistency:
//
// Each emit reads one immutable snapshot of the registry. Delivery to a sink and removal
// of that sink are serialized by a per-sink lock: a record whose delivery to a sink began
// before Remove took that lock is delivered, any other record is not. A sink added while
// an emit is iterating is not seen by that emit.
package fanlog
