package formatters

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// JSONFormatter serializes records as line-delimited JSON. The "text" key carries the
// record rendered through Text.
type JSONFormatter struct {
	Options FormatOptions
	Text    *TextFormatter
}

// NewJSONFormatter creates a JSON formatter whose "text" key uses the given formatter,
// or the default template when text is nil.
func NewJSONFormatter(text *TextFormatter) *JSONFormatter {
	if text == nil {
		text = MustTextFormatter(DefaultTemplate)
	}
	return &JSONFormatter{
		Options: DefaultFormatOptions(),
		Text:    text,
	}
}

type jsonLevel struct {
	Name string `json:"name"`
	No   int    `json:"no"`
}

type jsonException struct {
	Type    string        `json:"type"`
	Message string        `json:"message"`
	Frames  []types.Frame `json:"frames"`
}

type jsonRecord struct {
	Text      string                 `json:"text"`
	Message   string                 `json:"message"`
	Level     jsonLevel              `json:"level"`
	Timestamp string                 `json:"timestamp"`
	Elapsed   float64                `json:"elapsed"`
	Name      string                 `json:"name"`
	Function  string                 `json:"function"`
	File      string                 `json:"file"`
	Line      int                    `json:"line"`
	Extra     map[string]interface{} `json:"extra"`
	Exception *jsonException         `json:"exception,omitempty"`
}

// Format serializes the record followed by a newline. When the "text" template fails, the
// object is still produced with the raw dump line as "text", and the template error is
// returned alongside it.
func (f *JSONFormatter) Format(rec *types.Record) ([]byte, error) {
	text, textErr := f.Text.Format(rec)
	if textErr != nil {
		line, _, _ := strings.Cut(string(RawDump(rec)), "\n")
		text = []byte(line)
	}

	t := rec.Time
	if f.Options.TimeZone != nil {
		t = t.In(f.Options.TimeZone)
	}

	entry := jsonRecord{
		Text:      strings.TrimSuffix(string(text), "\n"),
		Message:   rec.Message,
		Level:     jsonLevel{Name: rec.Level.Name, No: rec.Level.No},
		Timestamp: t.Format(time.RFC3339Nano),
		Elapsed:   rec.Elapsed.Seconds(),
		Name:      rec.Name,
		Function:  rec.Function,
		File:      rec.File,
		Line:      rec.Line,
		Extra:     rec.Extra,
	}
	if entry.Extra == nil {
		entry.Extra = map[string]interface{}{}
	}
	if rec.Exception != nil {
		entry.Exception = &jsonException{
			Type:    rec.Exception.Type,
			Message: rec.Exception.Message,
			Frames:  rec.Exception.Frames,
		}
		if entry.Exception.Frames == nil {
			entry.Exception.Frames = []types.Frame{}
		}
	}

	data, err := safeMarshal(&entry)
	if err != nil {
		return nil, types.NewError(types.KindFormat, "serialize", "record could not be serialized", err)
	}
	return append(data, '\n'), textErr
}

// safeMarshal marshals the entry, retrying with a sanitized copy of the extras when a value
// cannot be encoded (channels, funcs, cycles).
func safeMarshal(entry *jsonRecord) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err == nil {
		return data, nil
	}
	entry.Extra = safeFields(entry.Extra)
	return json.Marshal(entry)
}

// DecodeJSON parses one serialized line back into its generic form.
func DecodeJSON(line []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(line, &out); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return out, nil
}
