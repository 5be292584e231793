package reasoner

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// TraceWriter appends newline-delimited trace records to the file opened
// from the CLI's -t/--trace path (spec §6), each line tagged with the
// owning Context's RunID so a trace file accumulated across several runs
// can still be split back into one run apiece (SPEC_FULL.md DOMAIN STACK).
// Grounded on the teacher's internal/logging per-category log file idiom
// (os.OpenFile with O_CREATE|O_WRONLY|O_APPEND), narrowed to a single file.
type TraceWriter struct {
	mu    sync.Mutex
	w     io.WriteCloser
	runID string
}

// NewTraceWriter opens (creating if absent, appending if present) path for
// trace output.
func NewTraceWriter(path, runID string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file %s: %w", path, err)
	}
	return &TraceWriter{w: f, runID: runID}, nil
}

// record writes one tagged trace line. A nil *TraceWriter is a no-op so
// call sites never need to guard on whether tracing is enabled.
func (t *TraceWriter) record(format string, args ...any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	line := fmt.Sprintf(format, args...)
	fmt.Fprintf(t.w, "%s run=%s %s\n", time.Now().Format(time.RFC3339Nano), t.runID, line)
}

// Close flushes and closes the underlying trace file, if one is open.
func (t *TraceWriter) Close() error {
	if t == nil || t.w == nil {
		return nil
	}
	return t.w.Close()
}

// EnableTrace opens path as this Context's trace file, tagging every
// subsequent cycle, assertion and retraction with RunID. Called with an
// empty path, it is a no-op (tracing stays disabled).
func (c *Context) EnableTrace(path string) error {
	if path == "" {
		return nil
	}
	tw, err := NewTraceWriter(path, c.RunID)
	if err != nil {
		return err
	}
	c.trace = tw
	return nil
}

// CloseTrace closes the trace file opened by EnableTrace, if any.
func (c *Context) CloseTrace() error {
	return c.trace.Close()
}
