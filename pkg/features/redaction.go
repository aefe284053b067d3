package features

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// sensitiveKeywords are extra keys whose values are always redacted.
var sensitiveKeywords = []string{
	"auth_token", "password", "passwd", "secret", "private_key", "token",
	"access_token", "refresh_token", "api_key", "apikey", "authorization",
	"client_secret", "session_token", "bearer", "jwt",
	"ssn", "credit_card", "card_number", "cvv", "cvc",
}

// sensitivePatterns redact secrets embedded in messages: JSON fields and auth headers.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`("(?:auth_token|password|passwd|secret|private_key|token|access_token|refresh_token|api_key|apikey|client_secret|session_token|ssn|credit_card|card_number|cvv)"\s*:\s*)"[^"]*"`),
	regexp.MustCompile(`((?i:authorization):[ \t]*(?i:bearer)[ \t]+)[^ \t\n\r]+`),
	regexp.MustCompile(`((?i:bearer)\s+)[A-Za-z0-9\-._~+/]+=*`),
}

// builtInDataPatterns find common sensitive values anywhere in a string.
var builtInDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                               // US SSN
	regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),         // Visa
	regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),    // MasterCard
	regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`),                // American Express
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), // email
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),                                // AWS access key
	regexp.MustCompile(`\bghp_[a-zA-Z0-9]{36,40}\b`),                          // GitHub token
	regexp.MustCompile(`\bsk-[a-zA-Z0-9]{48}\b`),                              // OpenAI key
}

// RedactionMode defines how a sensitive value is replaced.
type RedactionMode int

const (
	// RedactionModeReplace substitutes the replacement text.
	RedactionModeReplace RedactionMode = iota
	// RedactionModeHash substitutes a short stable hash, so equal values stay correlatable.
	RedactionModeHash
	// RedactionModeMask keeps the last four characters.
	RedactionModeMask
)

// ParseRedactionMode maps "replace", "hash" or "mask" to a mode.
func ParseRedactionMode(s string) (RedactionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return RedactionModeReplace, nil
	case "hash":
		return RedactionModeHash, nil
	case "mask":
		return RedactionModeMask, nil
	}
	return RedactionModeReplace, types.ConfigError("redaction", "unknown redaction mode %q", s)
}

// DefaultReplacement is written in place of redacted values.
const DefaultReplacement = "[REDACTED]"

// Redactor removes secrets from record messages and extras. It is safe for concurrent
// use once built.
type Redactor struct {
	patterns []*regexp.Regexp
	keys     map[string]bool
	replace  string
	mode     RedactionMode
	builtIn  bool
}

// NewRedactor compiles extra patterns on top of the defaults. An empty replace uses
// DefaultReplacement.
func NewRedactor(patterns []string, replace string) (*Redactor, error) {
	if replace == "" {
		replace = DefaultReplacement
	}
	r := &Redactor{
		replace: replace,
		keys:    make(map[string]bool, len(sensitiveKeywords)),
	}
	for _, k := range sensitiveKeywords {
		r.keys[k] = true
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, types.NewError(types.KindConfig, "redaction", "invalid pattern "+p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// SetMode sets how values are replaced.
func (r *Redactor) SetMode(mode RedactionMode) {
	r.mode = mode
}

// EnableBuiltInPatterns also redacts card numbers, SSNs, email addresses and well-known
// API key formats found anywhere in strings.
func (r *Redactor) EnableBuiltInPatterns(on bool) {
	r.builtIn = on
}

// AddKeys marks more extra keys as sensitive.
func (r *Redactor) AddKeys(keys ...string) {
	for _, k := range keys {
		r.keys[strings.ToLower(k)] = true
	}
}

// IsSensitiveKey reports whether values under key are redacted.
func (r *Redactor) IsSensitiveKey(key string) bool {
	return r.keys[strings.ToLower(key)]
}

// Redact returns input with every sensitive match replaced.
func (r *Redactor) Redact(input string) string {
	if input == "" {
		return input
	}
	out := input
	for _, p := range sensitivePatterns {
		out = p.ReplaceAllStringFunc(out, func(m string) string {
			sub := p.FindStringSubmatch(m)
			prefix, value := sub[1], m[len(sub[1]):]
			if strings.HasPrefix(value, `"`) {
				return prefix + `"` + r.replacement(strings.Trim(value, `"`)) + `"`
			}
			return prefix + r.replacement(value)
		})
	}
	for _, p := range r.patterns {
		out = p.ReplaceAllStringFunc(out, r.replacement)
	}
	if r.builtIn {
		for _, p := range builtInDataPatterns {
			out = p.ReplaceAllStringFunc(out, r.replacement)
		}
	}
	return out
}

func (r *Redactor) replacement(value string) string {
	switch r.mode {
	case RedactionModeHash:
		sum := sha256.Sum256([]byte(value))
		return "sha256:" + hex.EncodeToString(sum[:])[:12]
	case RedactionModeMask:
		if len(value) <= 4 {
			return strings.Repeat("*", len(value))
		}
		return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
	}
	return r.replace
}

// RedactFields returns a copy of fields with sensitive keys replaced and string values
// scrubbed. Nested maps and slices are walked.
func (r *Redactor) RedactFields(fields types.Fields) types.Fields {
	if fields == nil {
		return nil
	}
	out := make(types.Fields, len(fields))
	for k, v := range fields {
		out[k] = r.redactValue(k, v)
	}
	return out
}

func (r *Redactor) redactValue(key string, v interface{}) interface{} {
	if r.IsSensitiveKey(key) {
		if s, ok := v.(string); ok {
			return r.replacement(s)
		}
		return r.replace
	}
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]interface{}:
		return map[string]interface{}(r.RedactFields(val))
	case types.Fields:
		return r.RedactFields(val)
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, e := range val {
			cp[i] = r.redactValue("", e)
		}
		return cp
	case []string:
		cp := make([]string, len(val))
		for i, e := range val {
			cp[i] = r.Redact(e)
		}
		return cp
	}
	return v
}

// RedactRecord scrubs the message and extras of rec in place. It has the shape of a
// logger patcher.
func (r *Redactor) RedactRecord(rec *types.Record) error {
	rec.Message = r.Redact(rec.Message)
	rec.Extra = r.RedactFields(rec.Extra)
	if rec.Exception != nil {
		exc := *rec.Exception
		exc.Message = r.Redact(exc.Message)
		rec.Exception = &exc
	}
	return nil
}
