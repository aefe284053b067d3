package features

import (
	"strings"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// RetentionPolicy picks which files to delete. Files arrive ordered oldest first by
// rotation time. A file with Active set is the one just closed; it is never deleted even
// if selected.
type RetentionPolicy interface {
	Select(files []RotatedFile, now time.Time) []RotatedFile
}

// RetentionFunc adapts a function to RetentionPolicy.
type RetentionFunc func(files []RotatedFile) []RotatedFile

// Select calls f.
func (f RetentionFunc) Select(files []RotatedFile, _ time.Time) []RotatedFile {
	return f(files)
}

// CountRetention keeps the newest Keep files.
type CountRetention struct {
	Keep int
}

// Select implements RetentionPolicy.
func (p CountRetention) Select(files []RotatedFile, _ time.Time) []RotatedFile {
	if len(files) <= p.Keep {
		return nil
	}
	return files[:len(files)-p.Keep]
}

// AgeRetention deletes files rotated more than MaxAge ago.
type AgeRetention struct {
	MaxAge time.Duration
}

// Select implements RetentionPolicy.
func (p AgeRetention) Select(files []RotatedFile, now time.Time) []RotatedFile {
	var out []RotatedFile
	cutoff := now.Add(-p.MaxAge)
	for _, f := range files {
		if f.RotationTime.Before(cutoff) {
			out = append(out, f)
		}
	}
	return out
}

// ParseRetention parses a retention setting: "10" or "10 files" keeps that many files,
// a duration such as "3 days" or "1 week" deletes older files.
func ParseRetention(s string) (RetentionPolicy, error) {
	spec := strings.ToLower(strings.TrimSpace(s))
	if spec == "" {
		return nil, types.ConfigError("retention", "empty retention")
	}

	num, unit, err := splitQuantity(spec)
	if err != nil {
		return nil, types.ConfigError("retention", "cannot parse %q: %v", s, err)
	}
	switch unit {
	case "", "file", "files":
		if num < 1 || num != float64(int(num)) {
			return nil, types.ConfigError("retention", "file count must be a positive integer in %q", s)
		}
		return CountRetention{Keep: int(num)}, nil
	}
	if d, ok := durationUnits[unit]; ok {
		if num <= 0 {
			return nil, types.ConfigError("retention", "age must be positive in %q", s)
		}
		return AgeRetention{MaxAge: time.Duration(num * float64(d))}, nil
	}
	return nil, types.ConfigError("retention", "unknown unit %q in %q", unit, s)
}
