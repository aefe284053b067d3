package features

import (
	"strconv"
	"strings"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// RotationState is what a rotation policy sees before each write.
type RotationState struct {
	Path     string
	Size     int64     // bytes written to the current file
	OpenedAt time.Time // when the current file was opened
	Now      time.Time
}

// RotationPolicy decides whether the current file must be rolled before next is written.
type RotationPolicy interface {
	ShouldRotate(state RotationState, next []byte) bool
}

// RotationFunc adapts a function to RotationPolicy.
type RotationFunc func(state RotationState, next []byte) bool

// ShouldRotate calls f.
func (f RotationFunc) ShouldRotate(state RotationState, next []byte) bool {
	return f(state, next)
}

// SizePolicy rotates once the file would grow past MaxBytes. A file is never rotated
// while empty, so a single oversized record still lands somewhere.
type SizePolicy struct {
	MaxBytes int64
}

// ShouldRotate implements RotationPolicy.
func (p SizePolicy) ShouldRotate(state RotationState, next []byte) bool {
	return state.Size > 0 && state.Size+int64(len(next)) > p.MaxBytes
}

// IntervalPolicy rotates when the current file has been open for Every.
type IntervalPolicy struct {
	Every time.Duration
}

// ShouldRotate implements RotationPolicy.
func (p IntervalPolicy) ShouldRotate(state RotationState, _ []byte) bool {
	return !state.Now.Before(state.OpenedAt.Add(p.Every))
}

// ClockPolicy rotates when the wall clock crosses a time of day (every day) or a time of
// day on a given weekday.
type ClockPolicy struct {
	Hour, Minute int
	Weekly       bool
	Weekday      time.Weekday
}

// Next returns the first boundary strictly after t, in t's location.
func (p ClockPolicy) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), p.Hour, p.Minute, 0, 0, t.Location())
	if p.Weekly {
		days := (int(p.Weekday) - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, days)
	}
	if !next.After(t) {
		if p.Weekly {
			next = next.AddDate(0, 0, 7)
		} else {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}

// ShouldRotate implements RotationPolicy.
func (p ClockPolicy) ShouldRotate(state RotationState, _ []byte) bool {
	return !state.Now.Before(p.Next(state.OpenedAt))
}

var sizeUnits = map[string]int64{
	"b":   1,
	"kb":  1000,
	"mb":  1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"tb":  1000 * 1000 * 1000 * 1000,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
}

var durationUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ParseRotation parses a rotation setting:
//
//	"150"          size in bytes
//	"10 MB"        size with unit (B, KB, MB, GB, TB, KiB, MiB, GiB, TiB)
//	"6 hours"      interval (seconds, minutes, hours, days, weeks)
//	"hourly"       interval of one hour
//	"daily"        every day at 00:00
//	"weekly"       every Monday at 00:00
//	"13:30"        every day at 13:30
//	"monday"       every Monday at 00:00
//	"friday at 18:00"
func ParseRotation(s string) (RotationPolicy, error) {
	spec := strings.ToLower(strings.TrimSpace(s))
	if spec == "" {
		return nil, types.ConfigError("rotation", "empty rotation")
	}

	switch spec {
	case "hourly":
		return IntervalPolicy{Every: time.Hour}, nil
	case "daily":
		return ClockPolicy{}, nil
	case "weekly":
		return ClockPolicy{Weekly: true, Weekday: time.Monday}, nil
	}

	if p, ok, err := parseClock(spec); ok || err != nil {
		return p, err
	}

	num, unit, err := splitQuantity(spec)
	if err != nil {
		return nil, types.ConfigError("rotation", "cannot parse %q: %v", s, err)
	}
	if unit == "" {
		unit = "b"
	}
	if mult, ok := sizeUnits[unit]; ok {
		bytes := int64(num * float64(mult))
		if bytes < 1 {
			return nil, types.ConfigError("rotation", "size must be at least one byte in %q", s)
		}
		return SizePolicy{MaxBytes: bytes}, nil
	}
	if d, ok := durationUnits[unit]; ok {
		every := time.Duration(num * float64(d))
		if every <= 0 {
			return nil, types.ConfigError("rotation", "interval must be positive in %q", s)
		}
		return IntervalPolicy{Every: every}, nil
	}
	return nil, types.ConfigError("rotation", "unknown unit %q in %q", unit, s)
}

func parseClock(spec string) (RotationPolicy, bool, error) {
	day, at, hasAt := strings.Cut(spec, " at ")
	day = strings.TrimSpace(day)

	if wd, ok := weekdays[day]; ok {
		p := ClockPolicy{Weekly: true, Weekday: wd}
		if hasAt {
			h, m, err := parseTimeOfDay(strings.TrimSpace(at))
			if err != nil {
				return nil, true, types.ConfigError("rotation", "invalid time in %q", spec)
			}
			p.Hour, p.Minute = h, m
		}
		return p, true, nil
	}
	if hasAt {
		if day == "daily" || day == "every day" {
			h, m, err := parseTimeOfDay(strings.TrimSpace(at))
			if err != nil {
				return nil, true, types.ConfigError("rotation", "invalid time in %q", spec)
			}
			return ClockPolicy{Hour: h, Minute: m}, true, nil
		}
		return nil, true, types.ConfigError("rotation", "unknown day %q", day)
	}
	if strings.Contains(spec, ":") {
		h, m, err := parseTimeOfDay(spec)
		if err != nil {
			return nil, true, types.ConfigError("rotation", "invalid time of day %q", spec)
		}
		return ClockPolicy{Hour: h, Minute: m}, true, nil
	}
	return nil, false, nil
}

func parseTimeOfDay(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// splitQuantity splits "10 MB" or "10mb" into 10 and "mb". Anything after the unit is an
// error, so "1 day 2 hours" is rejected.
func splitQuantity(spec string) (float64, string, error) {
	i := 0
	for i < len(spec) && (spec[i] >= '0' && spec[i] <= '9' || spec[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, "", strconv.ErrSyntax
	}
	num, err := strconv.ParseFloat(spec[:i], 64)
	if err != nil {
		return 0, "", err
	}
	unit := strings.TrimSpace(spec[i:])
	if strings.ContainsAny(unit, " \t0123456789") {
		return 0, "", strconv.ErrSyntax
	}
	return num, unit, nil
}
