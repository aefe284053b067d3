package backends

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Common syslog facilities.
const (
	FacilityKern   = 0
	FacilityUser   = 1
	FacilityDaemon = 3
	FacilityLocal0 = 16
)

// SyslogBackendImpl writes RFC 3164 style lines to a syslog daemon.
type SyslogBackendImpl struct {
	network  string
	address  string
	conn     net.Conn
	writer   *bufio.Writer
	facility int
	tag      string
	hostname string
	mu       sync.Mutex // Protects concurrent access to writer
	stats    BackendStats
}

// NewSyslogBackend connects to a syslog daemon. An empty address probes the usual
// local sockets.
func NewSyslogBackend(network, address string, facility int, tag string) (*SyslogBackendImpl, error) {
	if address == "" {
		for _, path := range []string{"/dev/log", "/var/run/syslog", "/var/run/log"} {
			if _, err := os.Stat(path); err == nil {
				network = "unixgram"
				address = path
				break
			}
		}
		if address == "" {
			return nil, errors.New("no local syslog socket found")
		}
	}
	if network == "" {
		network = "udp"
	}
	if tag == "" {
		tag = filepath.Base(os.Args[0])
	}
	if facility < 0 || facility > 23 {
		return nil, types.ConfigError("syslog", "facility %d out of range", facility)
	}

	conn, err := net.DialTimeout(network, address, 5*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "dial syslog")
	}

	hostname, _ := os.Hostname()
	return &SyslogBackendImpl{
		network:  network,
		address:  address,
		conn:     conn,
		writer:   bufio.NewWriter(conn),
		facility: facility,
		tag:      tag,
		hostname: hostname,
		stats:    BackendStats{Kind: "syslog", Path: fmt.Sprintf("syslog://%s/%s", network, address)},
	}, nil
}

// Severity maps a level to a syslog severity.
func Severity(level types.Level) int {
	switch {
	case level.No >= types.LevelCritical.No:
		return 2 // crit
	case level.No >= types.LevelError.No:
		return 3 // err
	case level.No >= types.LevelWarning.No:
		return 4 // warning
	case level.No >= types.LevelSuccess.No:
		return 5 // notice
	case level.No >= types.LevelInfo.No:
		return 6 // info
	default:
		return 7 // debug
	}
}

// Write writes an entry at info severity.
func (sb *SyslogBackendImpl) Write(entry []byte) (int, error) {
	return sb.write(6, time.Now(), entry)
}

// WriteRecord writes an entry with the severity of the record's level.
func (sb *SyslogBackendImpl) WriteRecord(rec *types.Record, entry []byte) (int, error) {
	return sb.write(Severity(rec.Level), rec.Time, entry)
}

func (sb *SyslogBackendImpl) write(severity int, ts time.Time, entry []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	// <PRI>Mmm dd hh:mm:ss host tag[pid]: message
	message := fmt.Sprintf("<%d>%s %s %s[%d]: %s\n",
		sb.facility*8+severity, ts.Format(time.Stamp), sb.hostname, sb.tag, os.Getpid(),
		strings.TrimRight(string(entry), "\n"))

	n, err := sb.writer.WriteString(message)
	sb.stats.WriteCount++
	sb.stats.BytesWritten += uint64(n)
	sb.stats.LastWrite = time.Now()
	if err != nil {
		sb.stats.ErrorCount++
	}
	// Datagram sockets need one message per write
	if err == nil && sb.datagram() {
		err = sb.writer.Flush()
	}
	return n, err
}

func (sb *SyslogBackendImpl) datagram() bool {
	return sb.network == "unixgram" || strings.HasPrefix(sb.network, "udp")
}

// Flush flushes buffered data
func (sb *SyslogBackendImpl) Flush() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.writer.Flush()
}

// Close closes the syslog connection
func (sb *SyslogBackendImpl) Close() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	flushErr := sb.writer.Flush()
	closeErr := sb.conn.Close()
	if flushErr != nil {
		return errors.Wrap(flushErr, "flush")
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, "close conn")
	}
	return nil
}

// SetTag sets the syslog tag
func (sb *SyslogBackendImpl) SetTag(tag string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.tag = tag
}

// Stats returns target statistics
func (sb *SyslogBackendImpl) Stats() BackendStats {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.stats
}
