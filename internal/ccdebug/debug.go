// Package ccdebug is a pass-tracing writer gated by the CC_DEBUG
// environment variable, adapted from the teacher's internal/debug: a
// package-level mutex-guarded writer that defaults to discarding output,
// so instrumented passes cost nothing in a normal compile.
package ccdebug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// EnableDebug mirrors the teacher's build-time override flag; set via
// -ldflags "-X github.com/ccfront/cc/internal/ccdebug.EnableDebug=true"
// to force tracing on in a binary that didn't set CC_DEBUG.
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer
	inited bool
)

func ensureInit() {
	if inited {
		return
	}
	inited = true
	if os.Getenv("CC_DEBUG") != "" || EnableDebug == "true" {
		output = os.Stderr
	}
}

// SetOutput overrides the trace writer; pass nil to disable tracing
// regardless of CC_DEBUG.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	inited = true
	output = w
}

// Trace logs a pass-tagged trace line ("[pass] message") if tracing is
// enabled; otherwise it is a no-op.
func Trace(pass, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	ensureInit()
	if output == nil {
		return
	}
	fmt.Fprintf(output, "[%s] %s\n", pass, fmt.Sprintf(format, args...))
}

// Enabled reports whether tracing is currently active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	ensureInit()
	return output != nil
}
