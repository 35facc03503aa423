// Package integration compiles small whole translation units end to
// end (parse through emit) covering each of the five CC extensions, one
// scenario per test, in the style of the teacher's own fixture-driven
// integration suite — real input text in, real output text asserted on,
// no pass mocked out.
package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/compiler"
	"github.com/ccfront/cc/internal/cparse"
)

func compile(t *testing.T, name, src string, isHeader bool) string {
	t.Helper()
	file, err := cparse.Parse(name, []byte(src), isHeader)
	require.NoError(t, err)
	out, err := compiler.CompileUnit(file, compiler.Options{})
	require.NoError(t, err)
	return out
}

func TestClosureWithIntegerCapture(t *testing.T) {
	out := compile(t, "closure.ccs", `
int make_adder_call(int base, int delta) {
    auto add = [](int x) { return base + x; };
    return add(delta);
}
`, false)
	require.Contains(t, out, "cc_runtime.h")
	require.Contains(t, out, "__cc_closure_entry_0")
	require.Contains(t, out, "cc_closure1_make(__cc_closure_entry_0")

	// The capture-detection algorithm (refs \ decls \ globals) must find
	// "base" — referenced in the closure body, declared nowhere inside
	// it, and not a file-scope name — and thread it through the env
	// struct and the make-call argument list.
	require.Contains(t, out, "struct __cc_closure_env_0")
	require.Contains(t, out, "int base;")
	require.Contains(t, out, "__cc_closure_make_0(base)")
}

func TestUFCSOverASlice(t *testing.T) {
	out := compile(t, "ufcs.ccs", `
void process(Slice items) {
    items.push(1);
}
`, false)
	require.Contains(t, out, "push(items, 1)")
	require.NotContains(t, out, "items.push")
}

func TestNurseryWithTwoSpawnsAndBreak(t *testing.T) {
	out := compile(t, "nursery.ccs", `
void run_all(void) {
    while (1) {
        [[cc::nursery]] {
            [[cc::spawn]] worker_one();
            [[cc::spawn]] worker_two();
        }
        break;
    }
}
`, false)
	require.Contains(t, out, "cc_nursery_open")
	require.Contains(t, out, "cc_nursery_close")
	require.Contains(t, out, "break;")
}

func TestResultTypeSugarInHeader(t *testing.T) {
	out := compile(t, "io.cch", `
CCString!CCIoError read_all(CCString path);
`, true)
	require.Contains(t, out, "CCResult_CCString_CCIoError")
	require.Contains(t, out, "CC_DECLARE_RESULT(CCResult_CCString_CCIoError, CCString, CCIoError)")
}

func TestMatchOverSwitch(t *testing.T) {
	out := compile(t, "match.ccs", `
int describe(int tag) {
    switch (tag) {
    case Ok:
        return 1;
    case Err:
        return 0;
    }
}
`, false)
	require.Contains(t, out, "CC_TAG_Ok")
	require.Contains(t, out, "CC_TAG_Err")
}

func TestAsyncFunctionLowersToPollableTask(t *testing.T) {
	out := compile(t, "async.ccs", `
[[cc::async]] int fetch(int handle) {
    int value = await(read(handle));
    return value;
}
`, false)
	require.Contains(t, out, "CCTaskIntptr")
	require.Contains(t, out, "cc_task_intptr_make_poll_ex")
}
