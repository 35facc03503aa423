package compiler

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures CompileAll's errgroup fan-out never leaves a worker
// goroutine running past g.Wait(), the same check the teacher's own
// concurrent packages run for any code launching goroutines per-item.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
