package fanlog

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

const maxFrames = 64

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// NewException captures err. Type is the dynamic type of the root cause, following both
// Unwrap and Cause; frames come from the deepest pkg/errors stack in the chain, or from the
// current goroutine when the error carries none. skip drops that many callers of
// NewException from the fallback stack.
func NewException(err error, skip int) *types.Exception {
	if err == nil {
		return nil
	}
	exc := &types.Exception{
		Type:    fmt.Sprintf("%T", rootCause(err)),
		Message: err.Error(),
		Err:     err,
	}
	if st := deepestStack(err); st != nil {
		exc.Frames = framesFromStack(st.StackTrace())
	} else {
		exc.Frames = callerFrames(skip + 1)
	}
	return exc
}

// panicException captures a recovered panic value with the stack of the panicking goroutine.
func panicException(r interface{}, skip int) *types.Exception {
	exc := &types.Exception{
		Type:    fmt.Sprintf("%T", r),
		Message: fmt.Sprint(r),
		Frames:  callerFrames(skip + 1),
	}
	if err, ok := r.(error); ok {
		exc.Type = fmt.Sprintf("%T", rootCause(err))
		exc.Message = err.Error()
		exc.Err = err
		if st := deepestStack(err); st != nil {
			exc.Frames = framesFromStack(st.StackTrace())
		}
	}
	return exc
}

// deepestStack walks the Unwrap/Cause chain and returns the innermost error with a stack,
// which is the one closest to where the failure happened.
func deepestStack(err error) stackTracer {
	var found stackTracer
	for ; err != nil; err = next(err) {
		if st, ok := err.(stackTracer); ok {
			found = st
		}
	}
	return found
}

// rootCause returns the last error of the Unwrap/Cause chain.
func rootCause(err error) error {
	for {
		n := next(err)
		if n == nil {
			return err
		}
		err = n
	}
}

func next(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Cause() error }:
		return e.Cause()
	}
	return nil
}

func framesFromStack(st errors.StackTrace) []types.Frame {
	frames := make([]types.Frame, 0, len(st))
	for _, f := range st {
		// errors.Frame holds a return address
		pc := uintptr(f) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		frames = append(frames, types.Frame{Function: fn.Name(), File: file, Line: line})
		if len(frames) == maxFrames {
			break
		}
	}
	return frames
}

// callerFrames returns the current stack, innermost first, without runtime internals such
// as the panic machinery. skip counts from the caller of callerFrames.
func callerFrames(skip int) []types.Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	it := runtime.CallersFrames(pcs[:n])

	var frames []types.Frame
	for {
		f, more := it.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			frames = append(frames, types.Frame{Function: f.Function, File: f.File, Line: f.Line})
		}
		if !more {
			break
		}
	}
	return frames
}

// splitFunction turns "github.com/acme/app/db.(*Store).Get" into the package path
// "github.com/acme/app/db" and the function "(*Store).Get".
func splitFunction(full string) (pkg, fn string) {
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return full, ""
	}
	dot += slash + 1
	return full[:dot], full[dot+1:]
}
