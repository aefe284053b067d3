package formatters

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

var pid = os.Getpid()

// getPID returns the cached process ID
func getPID() int {
	return pid
}

// RenderException renders the exception block appended after a record line:
//
//	Traceback (most recent call last):
//	  File "main.go", line 12, in main.run
//	*errors.fundamental: boom
func RenderException(exc *types.Exception) string {
	if exc == nil {
		return ""
	}
	var b strings.Builder
	if len(exc.Frames) > 0 {
		b.WriteString("Traceback (most recent call last):\n")
		// Frames are captured innermost first
		for i := len(exc.Frames) - 1; i >= 0; i-- {
			fr := exc.Frames[i]
			fmt.Fprintf(&b, "  File %q, line %d, in %s\n", fr.File, fr.Line, fr.Function)
		}
	}
	b.WriteString(exc.Type)
	if exc.Message != "" {
		b.WriteString(": ")
		b.WriteString(exc.Message)
	}
	b.WriteByte('\n')
	return b.String()
}

// RawDump renders a record without any template. It is the fallback written when the
// sink's formatter fails, so it must never fail itself.
func RawDump(rec *types.Record) []byte {
	var b strings.Builder
	b.WriteString(rec.Time.Format(time.RFC3339Nano))
	b.WriteString(" | ")
	b.WriteString(rec.Level.Name)
	b.WriteString(" | ")
	if rec.Name != "" {
		fmt.Fprintf(&b, "%s:%s:%d - ", rec.Name, rec.Function, rec.Line)
	}
	b.WriteString(rec.Message)
	if len(rec.Extra) > 0 {
		b.WriteByte(' ')
		b.WriteString(FormatFields(safeFields(rec.Extra)))
	}
	b.WriteByte('\n')
	if rec.Exception != nil {
		b.WriteString(RenderException(rec.Exception))
	}
	return []byte(b.String())
}

// safeFields returns a copy of fields holding only JSON-encodable values.
func safeFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	visited := make(map[uintptr]bool)
	result := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		result[k] = safeValue(reflect.ValueOf(v), visited, 0)
	}
	return result
}

func safeValue(v reflect.Value, visited map[uintptr]bool, depth int) interface{} {
	const maxDepth = 10
	if depth > maxDepth {
		return "[max depth exceeded]"
	}
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Ptr {
			addr := v.Pointer()
			if visited[addr] {
				return "[circular reference]"
			}
			visited[addr] = true
			defer delete(visited, addr)
		}
		return safeValue(v.Elem(), visited, depth+1)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		addr := v.Pointer()
		if visited[addr] {
			return "[circular reference]"
		}
		visited[addr] = true
		defer delete(visited, addr)

		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = safeValue(iter.Value(), visited, depth+1)
		}
		return out

	case reflect.Slice, reflect.Array:
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = safeValue(v.Index(i), visited, depth+1)
		}
		return out

	case reflect.Struct:
		if v.CanInterface() {
			if s, ok := v.Interface().(fmt.Stringer); ok {
				return s.String()
			}
		}
		out := make(map[string]interface{})
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				out[t.Field(i).Name] = safeValue(v.Field(i), visited, depth+1)
			}
		}
		return out

	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("[%s]", v.Kind())

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f

	default:
		if v.CanInterface() {
			return v.Interface()
		}
		return fmt.Sprint(v)
	}
}
