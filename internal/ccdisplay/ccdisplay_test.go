package ccdisplay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/span"
)

func sp(line int) span.Span {
	return span.Span{Begin: span.Position{Line: line}}
}

func ident(name string, line int) *ast.Node {
	n := ast.New(ast.KindIdent, sp(line))
	n.Name = name
	return n
}

func buildFunc() *ast.File {
	ret := ast.New(ast.KindReturn, sp(3))
	ret.Init = ident("x", 3)
	body := ast.New(ast.KindBlock, sp(2))
	body.Children = []*ast.Node{ret}

	fn := ast.New(ast.KindFunc, sp(1))
	fn.Name = "f"
	fn.Body = body

	return &ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}
}

func TestFormatTextDrawsBranchesAndDepth(t *testing.T) {
	out := NewTreeFormatter(FormatterOptions{}).Format(buildFunc())
	require.Contains(t, out, `→ Func "f"`)
	require.Contains(t, out, "Block")
	require.Contains(t, out, "Return")
	require.Contains(t, out, `Ident "x"`)
	require.Contains(t, out, "(depth=2)")
}

func TestFormatTextShowsLinesWhenRequested(t *testing.T) {
	out := NewTreeFormatter(FormatterOptions{ShowLines: true}).Format(buildFunc())
	require.Contains(t, out, "[t.ccs:1]")
	require.Contains(t, out, "[t.ccs:3]")
}

func TestFormatTextRespectsMaxDepth(t *testing.T) {
	out := NewTreeFormatter(FormatterOptions{MaxDepth: 1}).Format(buildFunc())
	require.Contains(t, out, "Func")
	require.NotContains(t, out, "Return")
}

func TestFormatCompactNestsParens(t *testing.T) {
	out := NewTreeFormatter(FormatterOptions{Format: "compact"}).Format(buildFunc())
	require.Equal(t, "(Func (Block (Return Ident)))", out)
}

func TestFormatJSONIncludesKindAndChildren(t *testing.T) {
	out := NewTreeFormatter(FormatterOptions{Format: "json"}).Format(buildFunc())
	require.Contains(t, out, `"kind": "Func"`)
	require.Contains(t, out, `"name": "f"`)
	require.Contains(t, out, `"kind": "Return"`)
}

func TestFormatNilFileIsHandled(t *testing.T) {
	require.Equal(t, "No tree data available", NewTreeFormatter(FormatterOptions{}).Format(nil))
}
