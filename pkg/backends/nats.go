package backends

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Headers set on every published record.
const (
	HeaderLevel  = "Fanlog-Level"
	HeaderLogger = "Fanlog-Logger"
)

// natsConn is the part of *nats.Conn the target uses.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATSConfig configures a NATS target.
type NATSConfig struct {
	Servers       []string
	Subject       string
	Name          string
	Username      string
	Password      string
	TLS           bool
	MaxReconnects int
	ReconnectWait time.Duration
	FlushTimeout  time.Duration
}

// NATSBackend publishes each rendered record as one NATS message. Every message carries a
// unique Nats-Msg-Id so JetStream streams can drop duplicates after reconnects.
type NATSBackend struct {
	conn         natsConn
	subject      string
	flushTimeout time.Duration
	newID        func() string
	stats        BackendStats
}

// ParseNATSURI parses nats://[user:pass@]host:port[,host:port]/subject[?name=&tls=&max_reconnect=&reconnect_wait=].
func ParseNATSURI(uri string) (NATSConfig, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return NATSConfig{}, types.ConfigError("nats", "invalid URI %q: %v", uri, err)
	}
	if u.Scheme != "nats" {
		return NATSConfig{}, types.ConfigError("nats", "invalid scheme %q (expected 'nats')", u.Scheme)
	}
	cfg := NATSConfig{
		Subject:       strings.Trim(u.Path, "/"),
		Name:          "fanlog",
		MaxReconnects: 60,
		ReconnectWait: 2 * time.Second,
		FlushTimeout:  5 * time.Second,
	}
	if cfg.Subject == "" {
		return NATSConfig{}, types.ConfigError("nats", "subject missing in %q", uri)
	}
	if u.Host == "" {
		return NATSConfig{}, types.ConfigError("nats", "host missing in %q", uri)
	}
	for _, host := range strings.Split(u.Host, ",") {
		cfg.Servers = append(cfg.Servers, "nats://"+host)
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}

	query := u.Query()
	if name := query.Get("name"); name != "" {
		cfg.Name = name
	}
	if v := query.Get("tls"); v != "" {
		cfg.TLS, _ = strconv.ParseBool(v)
	}
	if v := query.Get("max_reconnect"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NATSConfig{}, types.ConfigError("nats", "invalid max_reconnect %q", v)
		}
		cfg.MaxReconnects = n
	}
	if v := query.Get("reconnect_wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return NATSConfig{}, types.ConfigError("nats", "invalid reconnect_wait %q", v)
		}
		cfg.ReconnectWait = d
	}
	return cfg, nil
}

// NewNATSBackend connects to the servers in cfg.
func NewNATSBackend(cfg NATSConfig) (*NATSBackend, error) {
	options := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	}
	if cfg.TLS {
		options = append(options, nats.Secure())
	}
	if cfg.Username != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(strings.Join(cfg.Servers, ","), options...)
	if err != nil {
		return nil, errors.Wrap(err, "connect to NATS")
	}
	return newNATSBackend(conn, cfg), nil
}

func newNATSBackend(conn natsConn, cfg NATSConfig) *NATSBackend {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	return &NATSBackend{
		conn:         conn,
		subject:      cfg.Subject,
		flushTimeout: cfg.FlushTimeout,
		newID:        uuid.NewString,
		stats:        BackendStats{Kind: "nats", Path: fmt.Sprintf("nats://%s", cfg.Subject)},
	}
}

// Write implements Target.
func (n *NATSBackend) Write(entry []byte) (int, error) {
	return n.publish(nil, entry)
}

// WriteRecord publishes entry with level and logger headers.
func (n *NATSBackend) WriteRecord(rec *types.Record, entry []byte) (int, error) {
	return n.publish(rec, entry)
}

func (n *NATSBackend) publish(rec *types.Record, entry []byte) (int, error) {
	msg := nats.NewMsg(n.subject)
	// The connection may buffer the slice past this call
	msg.Data = append([]byte(nil), entry...)
	msg.Header.Set(nats.MsgIdHdr, n.newID())
	if rec != nil {
		msg.Header.Set(HeaderLevel, rec.Level.Name)
		if rec.Name != "" {
			msg.Header.Set(HeaderLogger, rec.Name)
		}
	}

	if err := n.conn.PublishMsg(msg); err != nil {
		n.stats.ErrorCount++
		return 0, errors.Wrap(err, "publish")
	}
	n.stats.WriteCount++
	n.stats.BytesWritten += uint64(len(entry))
	n.stats.LastWrite = time.Now()
	return len(entry), nil
}

// Flush waits for the server to acknowledge everything published so far.
func (n *NATSBackend) Flush() error {
	return n.conn.FlushTimeout(n.flushTimeout)
}

// Close flushes and closes the connection.
func (n *NATSBackend) Close() error {
	err := n.Flush()
	n.conn.Close()
	return err
}

// Stats returns target statistics
func (n *NATSBackend) Stats() BackendStats {
	return n.stats
}
