package formatters

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

type fieldKind int

const (
	fieldLiteral fieldKind = iota
	fieldTime
	fieldLevel
	fieldLevelNo
	fieldMessage
	fieldName
	fieldFunction
	fieldFile
	fieldLine
	fieldElapsed
	fieldExtra
	fieldExtraKey
	fieldException
	fieldProcess
)

var fieldNames = map[string]fieldKind{
	"time":       fieldTime,
	"level":      fieldLevel,
	"level.name": fieldLevel,
	"level.no":   fieldLevelNo,
	"message":    fieldMessage,
	"name":       fieldName,
	"function":   fieldFunction,
	"file":       fieldFile,
	"line":       fieldLine,
	"elapsed":    fieldElapsed,
	"extra":      fieldExtra,
	"exception":  fieldException,
	"process":    fieldProcess,
}

type segment struct {
	kind  fieldKind
	text  string // literal text, extra key, or time layout
	align byte   // '<', '>', '^' or 0
	width int
}

// TextFormatter renders records through a placeholder template such as
// "{time} | {level:<8} | {message}".
type TextFormatter struct {
	Options      FormatOptions
	template     string
	segments     []segment
	hasException bool
}

// NewTextFormatter compiles a template. Unknown placeholders, bad alignment specs and
// unbalanced braces are configuration errors.
func NewTextFormatter(template string) (*TextFormatter, error) {
	segs, err := parseTemplate(template)
	if err != nil {
		return nil, err
	}
	f := &TextFormatter{
		Options:  DefaultFormatOptions(),
		template: template,
		segments: segs,
	}
	for _, s := range segs {
		if s.kind == fieldException {
			f.hasException = true
		}
	}
	return f, nil
}

// MustTextFormatter is like NewTextFormatter but panics on error.
func MustTextFormatter(template string) *TextFormatter {
	f, err := NewTextFormatter(template)
	if err != nil {
		panic(err)
	}
	return f
}

// Template returns the source template.
func (f *TextFormatter) Template() string {
	return f.template
}

// Format renders the record followed by a newline. A reference to an extra key the
// record does not carry yields a format error.
func (f *TextFormatter) Format(rec *types.Record) ([]byte, error) {
	line, err := f.render(rec)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.Grow(len(line) + 1)
	b.WriteString(line)
	b.WriteByte('\n')
	if rec.Exception != nil && !f.hasException && f.Options.AppendException {
		b.WriteString(RenderException(rec.Exception))
	}
	return []byte(b.String()), nil
}

// render produces the line without the trailing newline.
func (f *TextFormatter) render(rec *types.Record) (string, error) {
	var b strings.Builder
	for _, s := range f.segments {
		var v string
		switch s.kind {
		case fieldLiteral:
			b.WriteString(s.text)
			continue
		case fieldTime:
			t := rec.Time
			if f.Options.TimeZone != nil {
				t = t.In(f.Options.TimeZone)
			}
			v = t.Format(s.text)
		case fieldLevel:
			v = rec.Level.Name
		case fieldLevelNo:
			v = strconv.Itoa(rec.Level.No)
		case fieldMessage:
			v = rec.Message
		case fieldName:
			v = rec.Name
		case fieldFunction:
			v = rec.Function
		case fieldFile:
			v = rec.File
		case fieldLine:
			v = strconv.Itoa(rec.Line)
		case fieldElapsed:
			v = formatElapsed(rec.Elapsed)
		case fieldExtra:
			v = FormatFields(rec.Extra)
		case fieldExtraKey:
			val, ok := rec.Extra[s.text]
			if !ok {
				return "", types.NewError(types.KindFormat, "format",
					fmt.Sprintf("template references missing extra key %q", s.text), nil)
			}
			v = fmt.Sprint(val)
		case fieldException:
			if rec.Exception != nil {
				v = strings.TrimSuffix(RenderException(rec.Exception), "\n")
			}
		case fieldProcess:
			v = strconv.Itoa(getPID())
		}
		writeAligned(&b, v, s.align, s.width)
	}
	return b.String(), nil
}

func writeAligned(b *strings.Builder, v string, align byte, width int) {
	pad := width - utf8.RuneCountInString(v)
	if align == 0 || pad <= 0 {
		b.WriteString(v)
		return
	}
	switch align {
	case '<':
		b.WriteString(v)
		b.WriteString(strings.Repeat(" ", pad))
	case '>':
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(v)
	case '^':
		left := pad / 2
		b.WriteString(strings.Repeat(" ", left))
		b.WriteString(v)
		b.WriteString(strings.Repeat(" ", pad-left))
	}
}

func formatElapsed(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%d:%02d:%02d.%06d", h, m, s, d/time.Microsecond)
}

// FormatFields renders extras as "key=value" pairs in key order.
func FormatFields(fields types.Fields) string {
	if len(fields) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprint(&b, fields[k])
	}
	b.WriteByte('}')
	return b.String()
}

func parseTemplate(template string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{kind: fieldLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return nil, types.ConfigError("format", "unclosed placeholder at offset %d in %q", i, template)
			}
			seg, err := parseField(template[i+1 : i+1+end])
			if err != nil {
				return nil, err
			}
			flush()
			segs = append(segs, seg)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, types.ConfigError("format", "single '}' at offset %d in %q", i, template)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

func parseField(body string) (segment, error) {
	name, spec, hasSpec := strings.Cut(body, ":")
	name = strings.TrimSpace(name)

	if strings.HasPrefix(name, "extra[") {
		if !strings.HasSuffix(name, "]") || len(name) == len("extra[]") {
			return segment{}, types.ConfigError("format", "malformed extra placeholder {%s}", body)
		}
		seg := segment{kind: fieldExtraKey, text: name[len("extra[") : len(name)-1]}
		if hasSpec {
			if err := parseAlign(&seg, spec); err != nil {
				return segment{}, err
			}
		}
		return seg, nil
	}

	kind, ok := fieldNames[name]
	if !ok {
		return segment{}, types.ConfigError("format", "unknown placeholder {%s}", body)
	}
	seg := segment{kind: kind}

	if kind == fieldTime {
		seg.text = DefaultTimeLayout
		if hasSpec && spec != "" {
			seg.text = spec
		}
		return seg, nil
	}
	if hasSpec {
		if err := parseAlign(&seg, spec); err != nil {
			return segment{}, err
		}
	}
	return seg, nil
}

func parseAlign(seg *segment, spec string) error {
	if spec == "" {
		return nil
	}
	switch spec[0] {
	case '<', '>', '^':
	default:
		return types.ConfigError("format", "unsupported format spec %q", spec)
	}
	width, err := strconv.Atoi(spec[1:])
	if err != nil || width < 0 {
		return types.ConfigError("format", "invalid width in format spec %q", spec)
	}
	seg.align = spec[0]
	seg.width = width
	return nil
}
