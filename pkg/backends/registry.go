package backends

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Opener builds a target from a URI. File options are only meaningful to file targets.
type Opener func(uri string, opts FileOptions) (Target, error)

// Registry maps URI schemes to openers.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry returns a registry with the built-in schemes: file, stderr, stdout, syslog,
// nats and beats.
func NewRegistry() *Registry {
	r := &Registry{openers: make(map[string]Opener)}
	r.openers["file"] = openFile
	r.openers["stderr"] = func(string, FileOptions) (Target, error) { return Stderr(), nil }
	r.openers["stdout"] = func(string, FileOptions) (Target, error) { return Stdout(), nil }
	r.openers["syslog"] = openSyslog
	r.openers["nats"] = openNATS
	r.openers["beats"] = openBeats
	return r
}

// Register adds or replaces the opener for scheme.
func (r *Registry) Register(scheme string, opener Opener) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		return types.ConfigError("register_scheme", "scheme cannot be empty")
	}
	if opener == nil {
		return types.ConfigError("register_scheme", "opener for %q cannot be nil", scheme)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[scheme] = opener
	return nil
}

// Schemes lists the registered schemes.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.openers))
	for s := range r.openers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Scheme returns the scheme a target string resolves to. Plain paths are "file";
// "stderr" and "stdout" name the standard streams.
func Scheme(uri string) string {
	switch uri {
	case "stderr", "stdout":
		return uri
	}
	if i := strings.Index(uri, "://"); i > 0 {
		return strings.ToLower(uri[:i])
	}
	return "file"
}

// IsFile reports whether uri resolves to a file target.
func IsFile(uri string) bool {
	return Scheme(uri) == "file"
}

// Open resolves uri to a target. Malformed URIs and unknown schemes are configuration
// errors; failures to reach the target are TargetUnavailable.
func (r *Registry) Open(uri string, opts FileOptions) (Target, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, types.ConfigError("open", "empty target")
	}
	scheme := Scheme(uri)

	r.mu.RLock()
	opener, ok := r.openers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, types.ConfigError("open", "unsupported target scheme %q", scheme)
	}

	t, err := opener(uri, opts)
	if err != nil {
		var le *types.LogError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, types.NewError(types.KindTargetUnavailable, "open", "cannot open "+uri, err)
	}
	return t, nil
}

func openFile(uri string, opts FileOptions) (Target, error) {
	path := strings.TrimPrefix(uri, "file://")
	if path == "" {
		return nil, types.ConfigError("open", "empty file path")
	}
	return NewFileBackend(path, opts)
}

var facilities = map[string]int{
	"kern": FacilityKern, "user": FacilityUser, "daemon": FacilityDaemon,
	"local0": 16, "local1": 17, "local2": 18, "local3": 19,
	"local4": 20, "local5": 21, "local6": 22, "local7": 23,
}

// openSyslog handles syslog://host:port?network=tcp&tag=app&facility=local0. With no host,
// or a path such as syslog:///dev/log, the local daemon socket is used.
func openSyslog(uri string, _ FileOptions) (Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, types.ConfigError("open", "invalid syslog URI %q: %v", uri, err)
	}
	query := u.Query()

	network := query.Get("network")
	address := u.Host
	if address == "" && u.Path != "" && u.Path != "/" {
		address = u.Path
		if network == "" {
			network = "unixgram"
		}
	}

	facility := FacilityUser
	if f := query.Get("facility"); f != "" {
		if n, ok := facilities[strings.ToLower(f)]; ok {
			facility = n
		} else if n, err := strconv.Atoi(f); err == nil {
			facility = n
		} else {
			return nil, types.ConfigError("open", "unknown syslog facility %q", f)
		}
	}
	return NewSyslogBackend(network, address, facility, query.Get("tag"))
}

func openNATS(uri string, _ FileOptions) (Target, error) {
	cfg, err := ParseNATSURI(uri)
	if err != nil {
		return nil, err
	}
	return NewNATSBackend(cfg)
}

func openBeats(uri string, _ FileOptions) (Target, error) {
	cfg, err := ParseBeatsURI(uri)
	if err != nil {
		return nil, err
	}
	return NewBeatsBackend(cfg)
}

// DefaultRegistry is the registry used by Open and RegisterScheme.
var DefaultRegistry = NewRegistry()

// Open resolves uri with the default registry.
func Open(uri string, opts FileOptions) (Target, error) {
	return DefaultRegistry.Open(uri, opts)
}

// RegisterScheme registers an opener with the default registry.
func RegisterScheme(scheme string, opener Opener) error {
	return DefaultRegistry.Register(scheme, opener)
}
