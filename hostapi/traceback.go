package hostapi

import (
	"fmt"
	"runtime"
	"strings"
)

const maxTracebackDepth = 32

// Traceback is a captured call stack.
type Traceback struct {
	Frames []runtime.Frame
}

// NewTraceback captures the stack of its caller, skipping skip more frames.
func NewTraceback(skip int) *Traceback {
	pcs := make([]uintptr, maxTracebackDepth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	tb := &Traceback{}
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			tb.Frames = append(tb.Frames, frame)
		}
		if !more {
			break
		}
	}
	return tb
}

// Lines formats the traceback with the most recent call last.
func (t *Traceback) Lines() []string {
	lines := make([]string, 0, len(t.Frames)+1)
	lines = append(lines, "Traceback (most recent call last):")
	for i := len(t.Frames) - 1; i >= 0; i-- {
		f := t.Frames[i]
		lines = append(lines, fmt.Sprintf("  File %q, line %d, in %s", f.File, f.Line, f.Function))
	}
	return lines
}
