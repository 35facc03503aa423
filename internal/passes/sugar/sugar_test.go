package sugar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/ast"
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
	id := ident(callee)
	c.Callee = id
	c.Args = args
	return c
}

func blockOf(stmts ...*ast.Node) *ast.Node {
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

func funcWith(name, retType string, body *ast.Node) *ast.Node {
	f := ast.New(ast.KindFunc, sp())
	f.Name = name
	f.RetType = retType
	f.Body = body
	return f
}

func TestWithDeadlinePushesAndDefersPop(t *testing.T) {
	wd := ast.New(ast.KindWithDeadline, sp())
	wd.Cond = intLit(500)
	wd.Body = blockOf(exprStmt(call("do_work")))

	fn := funcWith("f", "void", blockOf(wd))
	file := &ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}

	require.NoError(t, New(file).Run())

	require.Len(t, fn.Body.Children, 1)
	lowered := fn.Body.Children[0]
	require.Equal(t, ast.KindBlock, lowered.Kind)
	require.Len(t, lowered.Children, 3)

	push := lowered.Children[0]
	require.Equal(t, ast.KindExprStmt, push.Kind)
	require.Equal(t, deadlinePushFn, push.Init.Callee.Name)
	require.Equal(t, deadlineAfterMsFn, push.Init.Args[0].Callee.Name)

	pop := lowered.Children[1]
	require.Equal(t, ast.KindDefer, pop.Kind)
	require.Equal(t, deadlinePopFn, pop.Body.Init.Callee.Name)

	require.Equal(t, ast.KindExprStmt, lowered.Children[2].Kind)
	require.Equal(t, "do_work", lowered.Children[2].Init.Callee.Name)
}

func TestTryRewritesToRuntimeCallWithEnclosingResultType(t *testing.T) {
	tryExpr := ast.New(ast.KindTry, sp())
	tryExpr.Left = call("read_entry")

	fn := funcWith("open_file", "CCResult_CCFile_CCIoError", blockOf(
		declStmt("f", "CCFile", tryExpr),
		returnStmt(ident("f")),
	))
	file := &ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}

	require.NoError(t, New(file).Run())

	init := fn.Body.Children[0].Init
	require.Equal(t, ast.KindCall, init.Kind)
	require.Equal(t, tryFn, init.Callee.Name)
	require.Equal(t, "read_entry", init.Args[0].Callee.Name)
	require.Equal(t, "CCResult_CCFile_CCIoError", init.Args[1].Name)
}

func TestMatchLowersToTagChainWithBinding(t *testing.T) {
	okPattern := ast.New(ast.KindIdent, sp())
	okPattern.Name = "Ok"
	okPattern.Init = ident("value")

	errPattern := ast.New(ast.KindIdent, sp())
	errPattern.Name = "Err"

	m := ast.New(ast.KindMatch, sp())
	m.Cond = ident("result")
	m.Cases = []*ast.MatchCase{
		{Pattern: okPattern, Body: blockOf(returnStmt(ident("value")))},
		{Pattern: errPattern, Body: blockOf(returnStmt(intLit(0)))},
	}

	fn := funcWith("f", "int", blockOf(m))
	file := &ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}

	require.NoError(t, New(file).Run())

	lowered := fn.Body.Children[0]
	require.Equal(t, ast.KindIf, lowered.Kind)
	require.Equal(t, ast.OpEq, lowered.Cond.Op)
	require.Equal(t, "tag", lowered.Cond.Left.Name)
	require.Equal(t, "result", lowered.Cond.Left.Object.Name)
	require.Equal(t, "CC_TAG_Ok", lowered.Cond.Right.Name)

	thenBlock := lowered.Then
	require.Equal(t, ast.KindBlock, thenBlock.Kind)
	bindDecl := thenBlock.Children[0]
	require.Equal(t, ast.KindDecl, bindDecl.Kind)
	require.Equal(t, "value", bindDecl.Name)
	require.Equal(t, "as", bindDecl.Init.Object.Name)
	require.Equal(t, "Ok", bindDecl.Init.Name)
	require.Equal(t, "result", bindDecl.Init.Object.Object.Name)

	elseIf := lowered.Else
	require.Equal(t, ast.KindIf, elseIf.Kind)
	require.Equal(t, "CC_TAG_Err", elseIf.Cond.Right.Name)
	require.Nil(t, elseIf.Else)

	// The scrutinee identifier must be a distinct clone per use site, not
	// a shared pointer, so later passes mutating one occurrence (e.g. a
	// type-string rewrite) cannot affect the other.
	require.NotSame(t, lowered.Cond.Left.Object, elseIf.Cond.Left.Object)
}

func TestMatchDefaultArmBecomesFinalElse(t *testing.T) {
	tagged := ast.New(ast.KindIdent, sp())
	tagged.Name = "Some"

	m := ast.New(ast.KindMatch, sp())
	m.Cond = ident("opt")
	m.Cases = []*ast.MatchCase{
		{Pattern: tagged, Body: blockOf(returnStmt(intLit(1)))},
		{Pattern: nil, Body: blockOf(returnStmt(intLit(0)))},
	}

	fn := funcWith("f", "int", blockOf(m))
	file := &ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}

	require.NoError(t, New(file).Run())

	lowered := fn.Body.Children[0]
	require.Equal(t, ast.KindIf, lowered.Kind)
	require.Equal(t, ast.KindBlock, lowered.Else.Kind)
	require.Equal(t, ast.KindReturn, lowered.Else.Children[0].Kind)
}

func TestTypeSyntaxSugarIsMangledInOrdinarySource(t *testing.T) {
	decl := declStmt("items", "Entry[:]", nil)
	fn := funcWith("f", "String?", blockOf(decl))
	file := &ast.File{Name: "t.ccs", Items: []*ast.Node{fn}}

	require.NoError(t, New(file).Run())

	require.Equal(t, "CCSlice_Entry", decl.TypeStr)
	require.Equal(t, "CCOptional_CCString", fn.RetType)
}
