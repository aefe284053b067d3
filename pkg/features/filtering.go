package features

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Predicate decides whether a record should be delivered. It must not modify the record.
type Predicate func(rec *types.Record) bool

// NameMatches reports whether a logger name equals prefix or lies below it, where
// components are separated by '/' or '.'. The empty prefix matches every name.
func NameMatches(name, prefix string) bool {
	if prefix == "" || name == prefix {
		return true
	}
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	switch name[len(prefix)] {
	case '/', '.':
		return true
	}
	return false
}

// NamePrefixFilter accepts records whose logger name lies under prefix.
func NamePrefixFilter(prefix string) Predicate {
	return func(rec *types.Record) bool {
		return NameMatches(rec.Name, prefix)
	}
}

// LevelDisabled in a NameLevels map turns a logger name off entirely.
const LevelDisabled = -1

// NameLevels maps logger name prefixes to minimum severities. The longest matching
// prefix wins; "" is the root entry. Names matching no entry are accepted.
type NameLevels map[string]int

// Predicate compiles the map into a filter.
func (m NameLevels) Predicate() Predicate {
	prefixes := make([]string, 0, len(m))
	for p := range m {
		prefixes = append(prefixes, p)
	}
	// Longest first so the most specific entry is found first
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	levels := make(map[string]int, len(m))
	for k, v := range m {
		levels[k] = v
	}

	return func(rec *types.Record) bool {
		for _, p := range prefixes {
			if NameMatches(rec.Name, p) {
				min := levels[p]
				return min != LevelDisabled && rec.Level.No >= min
			}
		}
		return true
	}
}

// Validate checks that every entry is a severity or LevelDisabled.
func (m NameLevels) Validate() error {
	for name, no := range m {
		if no < LevelDisabled {
			return types.ConfigError("filter", "invalid severity %d for %q", no, name)
		}
	}
	return nil
}

type activationRule struct {
	prefix  string
	enabled bool
}

// Activation holds the enable/disable list applied to logger names. Later calls override
// earlier ones for the same prefix; the longest matching prefix decides. Reads are lock free.
type Activation struct {
	mu    sync.Mutex
	rules atomic.Pointer[[]activationRule]
}

// NewActivation returns an activation list with every name enabled.
func NewActivation() *Activation {
	a := &Activation{}
	a.rules.Store(&[]activationRule{})
	return a
}

// Enable turns on records from loggers under prefix.
func (a *Activation) Enable(prefix string) {
	a.set(prefix, true)
}

// Disable turns off records from loggers under prefix.
func (a *Activation) Disable(prefix string) {
	a.set(prefix, false)
}

func (a *Activation) set(prefix string, enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	old := *a.rules.Load()
	next := make([]activationRule, 0, len(old)+1)
	for _, r := range old {
		// A broader rule clears narrower ones beneath it
		if NameMatches(r.prefix, prefix) {
			continue
		}
		next = append(next, r)
	}
	next = append(next, activationRule{prefix: prefix, enabled: enabled})
	sort.SliceStable(next, func(i, j int) bool { return len(next[i].prefix) > len(next[j].prefix) })
	a.rules.Store(&next)
}

// Enabled reports whether records from the named logger are active.
func (a *Activation) Enabled(name string) bool {
	for _, r := range *a.rules.Load() {
		if NameMatches(name, r.prefix) {
			return r.enabled
		}
	}
	return true
}

// Chain evaluates a sink's filters in order: level threshold, activation, logger name,
// rate limit, then the user predicate.
type Chain struct {
	MinLevel   int
	Activation *Activation
	Names      Predicate
	Limiter    *RateLimit
	Predicate  Predicate
}

// Allow reports whether the record passes every filter. A panic inside a filter is
// recovered and returned as an error; the record is then rejected.
func (c *Chain) Allow(rec *types.Record) (ok bool, err error) {
	if rec.Level.No < c.MinLevel {
		return false, nil
	}
	if c.Activation != nil && !c.Activation.Enabled(rec.Name) {
		return false, nil
	}
	if c.Names != nil {
		if ok, err := Evaluate(c.Names, rec); !ok || err != nil {
			return false, err
		}
	}
	if c.Limiter != nil && !c.Limiter.Allow() {
		return false, nil
	}
	if c.Predicate != nil {
		return Evaluate(c.Predicate, rec)
	}
	return true, nil
}

// Evaluate runs a predicate, turning a panic into an error.
func Evaluate(p Predicate, rec *types.Record) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("filter panicked: %v", r)
		}
	}()
	return p(rec), nil
}
