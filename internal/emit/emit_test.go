package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/editbuf"
	"github.com/ccfront/cc/internal/span"
)

func sp() span.Span { return span.Span{} }

func ident(name string) *ast.Node {
	n := ast.New(ast.KindIdent, sp())
	n.Name = name
	return n
}

func intLit(v int64) *ast.Node {
	n := ast.New(ast.KindIntLit, sp())
	n.Int = v
	return n
}

func call(callee string, args ...*ast.Node) *ast.Node {
	c := ast.New(ast.KindCall, sp())
	c.Callee = ident(callee)
	c.Args = args
	return c
}

func block(stmts ...*ast.Node) *ast.Node {
	b := ast.New(ast.KindBlock, sp())
	b.Children = stmts
	return b
}

func exprStmt(e *ast.Node) *ast.Node {
	s := ast.New(ast.KindExprStmt, sp())
	s.Init = e
	return s
}

func returnStmt(e *ast.Node) *ast.Node {
	r := ast.New(ast.KindReturn, sp())
	r.Init = e
	return r
}

func declStmt(name, typ string, init *ast.Node) *ast.Node {
	d := ast.New(ast.KindDecl, sp())
	d.Name = name
	d.TypeStr = typ
	d.Init = init
	return d
}

func funcDecl(name, retType string, body *ast.Node, params ...*ast.Node) *ast.Node {
	f := ast.New(ast.KindFunc, sp())
	f.Name = name
	f.RetType = retType
	f.Body = body
	f.Params = params
	return f
}

func param(name, typ string) *ast.Node {
	p := ast.New(ast.KindDecl, sp())
	p.Name = name
	p.TypeStr = typ
	return p
}

func TestPlainFunctionRendersVerbatim(t *testing.T) {
	fn := funcDecl("add", "int",
		block(returnStmt(&ast.Node{Kind: ast.KindBinary, Op: ast.OpAdd, Left: ident("a"), Right: ident("b")})),
		param("a", "int"), param("b", "int"))
	file := &ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}

	out, err := File(file, editbuf.New(), Options{})
	require.NoError(t, err)
	require.Contains(t, out, "int add(int a, int b) {")
	require.Contains(t, out, "return (a + b);")
}

func TestDeferIsDuplicatedAtEveryExitPath(t *testing.T) {
	deferNode := ast.New(ast.KindDefer, sp())
	deferNode.Body = exprStmt(call("release"))

	fn := funcDecl("f", "void", block(
		exprStmt(call("acquire")),
		deferNode,
		declStmt("ok", "int", intLit(1)),
		ast.New(ast.KindIf, sp()),
	))
	fn.Body.Children[3].Cond = ident("ok")
	fn.Body.Children[3].Then = block(returnStmt(nil))

	out, err := File(&ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}, editbuf.New(), Options{})
	require.NoError(t, err)

	// once for the early return inside the if, once for fallthrough.
	require.Equal(t, 2, strings.Count(out, "release();"))
}

func TestRuntimeMetaIncludeOmittedWhenUnused(t *testing.T) {
	fn := funcDecl("f", "void", block())
	out, err := File(&ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}, editbuf.New(), Options{})
	require.NoError(t, err)
	require.NotContains(t, out, "cc_runtime.h")
}

func TestRuntimeNamespaceIncludeCollapsedToMetaInclude(t *testing.T) {
	inc := ast.New(ast.KindInclude, sp())
	inc.Name = "cc_runtime/task.h"
	fn := funcDecl("f", "void", block())

	out, err := File(&ast.File{Name: "t.ccs", Items: []*ast.Node{inc, fn}}, editbuf.New(), Options{})
	require.NoError(t, err)
	require.Contains(t, out, `#include "cc_runtime.h"`)
	require.NotContains(t, out, "cc_runtime/task.h")
}

func TestClosureDefinitionEmittedUnderSyntheticLineSection(t *testing.T) {
	closureBody := block(returnStmt(&ast.Node{Kind: ast.KindBinary, Op: ast.OpAdd, Left: ident("x"), Right: intLit(1)}))
	file := &ast.File{
		Name: "t.ccs",
		Closures: []*ast.Closure{
			{ID: 0, Captures: []string{"x"}, CaptureTypes: []string{"int"}, Body: closureBody, HasCaptures: true},
		},
	}
	fn := funcDecl("f", "void", block())
	file.Items = []*ast.Node{fn}

	out, err := File(file, editbuf.New(), Options{})
	require.NoError(t, err)
	require.Contains(t, out, `#line 1 "<cc-generated:closures>"`)
	require.Contains(t, out, "struct __cc_closure_env_0 {")
	require.Contains(t, out, "__cc_closure_entry_0")
	require.Contains(t, out, "cc_closure0_make(__cc_closure_entry_0, __env, __cc_closure_drop_0)")
	require.Contains(t, out, `#line 1 "t.ccs"`)
	require.Contains(t, out, "((struct __cc_closure_env_0 *)__env)->x")
}

func TestStructAnonymousCleanupAndCCPrefixFilter(t *testing.T) {
	require.Equal(t, "auto", cleanTypeStr("struct <anonymous>"))
	require.Equal(t, "void", cleanTypeStr("__CCPending"))
	require.Equal(t, "CCResult_CCString_CCError", cleanTypeStr("CCResult_CCString_CCError"))
}

func TestStringsAreEscapedWithStandardCRules(t *testing.T) {
	require.Equal(t, `"hi\n\"there\""`, escapeCString("hi\n\"there\""))
}
