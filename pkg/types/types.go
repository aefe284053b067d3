package types

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Fields carries the extras attached to a record.
type Fields map[string]interface{}

// Clone returns a shallow copy of the fields. A nil receiver yields an empty map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge returns a new map holding f overlaid with other. Neither input is modified.
func (f Fields) Merge(other Fields) Fields {
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Level is a named severity. Records at a lower No than a sink's threshold are not delivered.
type Level struct {
	Name string `json:"name"`
	No   int    `json:"no"`
}

func (l Level) String() string {
	return l.Name
}

// Built-in levels.
var (
	LevelTrace    = Level{Name: "TRACE", No: 5}
	LevelDebug    = Level{Name: "DEBUG", No: 10}
	LevelInfo     = Level{Name: "INFO", No: 20}
	LevelSuccess  = Level{Name: "SUCCESS", No: 25}
	LevelWarning  = Level{Name: "WARNING", No: 30}
	LevelError    = Level{Name: "ERROR", No: 40}
	LevelCritical = Level{Name: "CRITICAL", No: 50}
)

// LevelRegistry maps level names to severities. It is safe for concurrent use.
type LevelRegistry struct {
	mu     sync.RWMutex
	levels map[string]Level
}

// NewLevelRegistry returns a registry holding the built-in levels.
func NewLevelRegistry() *LevelRegistry {
	r := &LevelRegistry{levels: make(map[string]Level)}
	for _, l := range []Level{LevelTrace, LevelDebug, LevelInfo, LevelSuccess, LevelWarning, LevelError, LevelCritical} {
		r.levels[l.Name] = l
	}
	return r
}

// Register adds a level. Registering an existing name with the same severity is a no-op;
// a different severity is a configuration error.
func (r *LevelRegistry) Register(name string, no int) (Level, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "" {
		return Level{}, NewError(KindConfig, "register_level", "level name cannot be empty", nil)
	}
	if no < 0 {
		return Level{}, NewError(KindConfig, "register_level", "level severity cannot be negative", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.levels[key]; ok {
		if existing.No != no {
			return Level{}, NewError(KindConfig, "register_level",
				"level "+key+" already registered with a different severity", nil)
		}
		return existing, nil
	}
	l := Level{Name: key, No: no}
	r.levels[key] = l
	return l, nil
}

// Lookup finds a level by case-insensitive name.
func (r *LevelRegistry) Lookup(name string) (Level, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.levels[key]
	return l, ok
}

// All returns the registered levels ordered by severity.
func (r *LevelRegistry) All() []Level {
	r.mu.RLock()
	out := make([]Level, 0, len(r.levels))
	for _, l := range r.levels {
		out = append(out, l)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].No == out[j].No {
			return out[i].Name < out[j].Name
		}
		return out[i].No < out[j].No
	})
	return out
}

// Frame is one entry of a captured call stack.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Exception is the error information captured alongside a record.
type Exception struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Frames  []Frame `json:"frames"`
	Err     error   `json:"-"`
}

// Record is one log event. It is built and enriched by the dispatcher, then handed to every
// matching sink. Sinks must treat it as read-only.
type Record struct {
	Level     Level
	Message   string
	Time      time.Time
	Elapsed   time.Duration
	Name      string
	Function  string
	File      string
	Line      int
	Extra     Fields
	Exception *Exception
}

// Clone returns a copy of the record with its own Extra map.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Extra = r.Extra.Clone()
	return &cp
}
