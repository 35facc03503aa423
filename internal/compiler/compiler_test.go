package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/cparse"
)

func TestCompileUnitPlainFunction(t *testing.T) {
	file, err := cparse.Parse("t.ccs", []byte(`
int add(int a, int b) {
    return a + b;
}
`), false)
	require.NoError(t, err)

	out, err := CompileUnit(file, Options{})
	require.NoError(t, err)
	require.Contains(t, out, "int add(int a, int b) {")
	require.Contains(t, out, "return (a + b);")
}

func TestCompileUnitClosureGetsCapturesAndRuntimeInclude(t *testing.T) {
	file, err := cparse.Parse("t.ccs", []byte(`
void f(void) {
    int base = 1;
    auto g = [](int y) { return base + y; };
}
`), false)
	require.NoError(t, err)

	out, err := CompileUnit(file, Options{})
	require.NoError(t, err)
	require.Contains(t, out, "cc_runtime.h")
	require.Contains(t, out, "__cc_closure_make_0(base)")
}

func TestCompileAllPreservesOrderAcrossFiles(t *testing.T) {
	src := `
int id(int x) {
    return x;
}
`
	var files []*ast.File
	for _, name := range []string{"a.ccs", "b.ccs", "c.ccs"} {
		file, err := cparse.Parse(name, []byte(src), false)
		require.NoError(t, err)
		files = append(files, file)
	}

	units, err := CompileAll(context.Background(), files, Options{})
	require.NoError(t, err)
	require.Len(t, units, 3)
	for i, name := range []string{"a.ccs", "b.ccs", "c.ccs"} {
		require.Equal(t, name, units[i].File.Name)
		require.Contains(t, units[i].Output, "int id(int x) {")
	}
}
