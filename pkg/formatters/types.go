package formatters

import (
	"time"
)

// DefaultTemplate is used by sinks registered without a format.
const DefaultTemplate = "{time:2006-01-02 15:04:05.000} | {level:<8} | {name}:{function}:{line} - {message}"

// DefaultTimeLayout renders {time} when no layout is given.
const DefaultTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatOptions controls the output format
type FormatOptions struct {
	TimeZone *time.Location // nil keeps the record's own location
	// AppendException adds the exception block after the line when the template
	// does not reference {exception}.
	AppendException bool
}

// DefaultFormatOptions returns default formatting options
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		TimeZone:        nil,
		AppendException: true,
	}
}
