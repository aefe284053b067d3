package backends

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	lumberjack "github.com/elastic/go-lumber/client/v2"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// beatsClient is the part of the lumberjack sync client the target uses.
type beatsClient interface {
	Send(data []interface{}) (int, error)
	Close() error
}

// BeatsConfig configures a Beats (lumberjack v2) target.
type BeatsConfig struct {
	Address     string
	Compression int
	Timeout     time.Duration
	BatchSize   int
}

// BeatsBackend ships records to Logstash or any lumberjack v2 receiver. Events are batched
// until Flush, or until BatchSize events are pending.
type BeatsBackend struct {
	client    beatsClient
	batchSize int
	pending   []interface{}
	hostname  string
	stats     BackendStats
}

// ParseBeatsURI parses beats://host:port[?compression=N&timeout=3s&batch=N].
func ParseBeatsURI(uri string) (BeatsConfig, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return BeatsConfig{}, types.ConfigError("beats", "invalid URI %q: %v", uri, err)
	}
	if u.Scheme != "beats" {
		return BeatsConfig{}, types.ConfigError("beats", "invalid scheme %q (expected 'beats')", u.Scheme)
	}
	if u.Host == "" {
		return BeatsConfig{}, types.ConfigError("beats", "host missing in %q", uri)
	}
	cfg := BeatsConfig{Address: u.Host, Timeout: 3 * time.Second, BatchSize: 100}

	query := u.Query()
	if v := query.Get("compression"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 9 {
			return BeatsConfig{}, types.ConfigError("beats", "invalid compression %q", v)
		}
		cfg.Compression = n
	}
	if v := query.Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return BeatsConfig{}, types.ConfigError("beats", "invalid timeout %q", v)
		}
		cfg.Timeout = d
	}
	if v := query.Get("batch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return BeatsConfig{}, types.ConfigError("beats", "invalid batch %q", v)
		}
		cfg.BatchSize = n
	}
	return cfg, nil
}

// NewBeatsBackend dials the receiver.
func NewBeatsBackend(cfg BeatsConfig) (*BeatsBackend, error) {
	client, err := lumberjack.SyncDial(cfg.Address,
		lumberjack.CompressionLevel(cfg.Compression),
		lumberjack.Timeout(cfg.Timeout))
	if err != nil {
		return nil, errors.Wrap(err, "failed connection to beats server")
	}
	return newBeatsBackend(client, cfg), nil
}

func newBeatsBackend(client beatsClient, cfg BeatsConfig) *BeatsBackend {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	hostname, _ := os.Hostname()
	return &BeatsBackend{
		client:    client,
		batchSize: cfg.BatchSize,
		hostname:  hostname,
		stats:     BackendStats{Kind: "beats", Path: "beats://" + cfg.Address},
	}
}

// Write queues a bare event holding the rendered line.
func (b *BeatsBackend) Write(entry []byte) (int, error) {
	return b.enqueue(map[string]interface{}{
		"@timestamp": time.Now().UTC(),
		"message":    strings.TrimRight(string(entry), "\n"),
		"host":       map[string]interface{}{"name": b.hostname},
	}, len(entry))
}

// WriteRecord queues an event carrying the record's level, logger, caller and extras.
func (b *BeatsBackend) WriteRecord(rec *types.Record, entry []byte) (int, error) {
	event := map[string]interface{}{
		"@timestamp": rec.Time.UTC(),
		"message":    strings.TrimRight(string(entry), "\n"),
		"host":       map[string]interface{}{"name": b.hostname},
		"log": map[string]interface{}{
			"level":  rec.Level.Name,
			"logger": rec.Name,
			"origin": map[string]interface{}{
				"function": rec.Function,
				"file":     map[string]interface{}{"name": rec.File, "line": rec.Line},
			},
		},
		"process": map[string]interface{}{"pid": os.Getpid()},
	}
	if len(rec.Extra) > 0 {
		event["labels"] = map[string]interface{}(rec.Extra.Clone())
	}
	if rec.Exception != nil {
		event["error"] = map[string]interface{}{
			"type":    rec.Exception.Type,
			"message": rec.Exception.Message,
		}
	}
	return b.enqueue(event, len(entry))
}

func (b *BeatsBackend) enqueue(event map[string]interface{}, n int) (int, error) {
	b.pending = append(b.pending, event)
	b.stats.BytesWritten += uint64(n)
	b.stats.LastWrite = time.Now()
	if len(b.pending) >= b.batchSize {
		if err := b.Flush(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Flush sends pending events and waits for the receiver's acknowledgement.
func (b *BeatsBackend) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = nil

	sent, err := b.client.Send(batch)
	b.stats.WriteCount += uint64(sent)
	if err != nil {
		b.stats.ErrorCount++
		return errors.Wrapf(err, "send %d events", len(batch))
	}
	return nil
}

// Close flushes and closes the connection.
func (b *BeatsBackend) Close() error {
	flushErr := b.Flush()
	closeErr := b.client.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Stats returns target statistics
func (b *BeatsBackend) Stats() BackendStats {
	return b.stats
}
