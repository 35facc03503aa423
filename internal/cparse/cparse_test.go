package cparse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/ast"
)

func TestParsePlainFunction(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
int add(int a, int b) {
    return a + b;
}
`), false)
	require.NoError(t, err)
	require.Len(t, file.Items, 1)

	fn := file.Items[0]
	require.Equal(t, ast.KindFunc, fn.Kind)
	require.Equal(t, "add", fn.Name)
	require.Equal(t, "int", fn.RetType)
	require.Len(t, fn.Params, 2)
	require.Equal(t, "a", fn.Params[0].Name)
	require.Equal(t, "int", fn.Params[0].TypeStr)

	require.Equal(t, ast.KindBlock, fn.Body.Kind)
	require.Len(t, fn.Body.Children, 1)
	ret := fn.Body.Children[0]
	require.Equal(t, ast.KindReturn, ret.Kind)
	require.Equal(t, ast.KindBinary, ret.Init.Kind)
	require.Equal(t, ast.OpAdd, ret.Init.Op)
}

func TestParseIncludeAngleVsQuoted(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
#include <stdio.h>
#include "local.h"
void f(void) {}
`), false)
	require.NoError(t, err)
	require.Len(t, file.Items, 3)
	require.Equal(t, ast.KindInclude, file.Items[0].Kind)
	require.Equal(t, "stdio.h", file.Items[0].Name)
	require.Equal(t, "1", file.Items[0].GetMeta("angle"))
	require.Equal(t, "local.h", file.Items[1].Name)
	require.Equal(t, "", file.Items[1].GetMeta("angle"))
}

func TestParseIfWhileDecl(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
int f(int n) {
    int total = 0;
    while (n > 0) {
        if (n == 1) {
            total = total + n;
        } else {
            total = total - n;
        }
        n = n - 1;
    }
    return total;
}
`), false)
	require.NoError(t, err)
	body := file.Items[0].Body
	require.Equal(t, ast.KindDecl, body.Children[0].Kind)
	require.Equal(t, "total", body.Children[0].Name)
	require.Equal(t, ast.KindWhile, body.Children[1].Kind)

	whileStmt := body.Children[1]
	ifStmt := whileStmt.Body.Children[0]
	require.Equal(t, ast.KindIf, ifStmt.Kind)
	require.NotNil(t, ifStmt.Else)
}

func TestParseAwaitAndTryCalls(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
int f(void) {
    int x = await(g());
    int y = try(h());
    return x + y;
}
`), false)
	require.NoError(t, err)
	body := file.Items[0].Body
	require.Equal(t, ast.KindAwait, body.Children[0].Init.Kind)
	require.Equal(t, ast.KindTry, body.Children[1].Init.Kind)
}

func TestParseUFCSMethodCall(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
void f(Slice s) {
    s.push(1);
}
`), false)
	require.NoError(t, err)
	stmt := file.Items[0].Body.Children[0]
	call := stmt.Init
	require.Equal(t, ast.KindMethodCall, call.Kind)
	require.Equal(t, "push", call.Name)
	require.Equal(t, ast.KindIdent, call.Receiver.Kind)
	require.Equal(t, "s", call.Receiver.Name)
	require.Len(t, call.Args, 1)
}

func TestParseNurseryAndSpawnAttributes(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
void f(void) {
    [[cc::nursery]] {
        [[cc::spawn]] g();
    }
}
`), false)
	require.NoError(t, err)
	body := file.Items[0].Body
	nursery := body.Children[0]
	require.Equal(t, ast.KindNursery, nursery.Kind)
	spawn := nursery.Body.Children[0]
	require.Equal(t, ast.KindSpawn, spawn.Kind)
}

func TestParseAsyncAttributeOnFunction(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
[[cc::async]] int fetch(void) {
    return 1;
}
`), false)
	require.NoError(t, err)
	require.NotZero(t, file.Items[0].Attrs&ast.AttrAsync)
}

func TestParseMatchFromSwitch(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
int f(int tag) {
    switch (tag) {
    case Ok:
        return 1;
    case Err:
        return 0;
    }
}
`), false)
	require.NoError(t, err)
	stmt := file.Items[0].Body.Children[0]
	require.Equal(t, ast.KindMatch, stmt.Kind)
	require.Len(t, stmt.Cases, 2)
	require.Equal(t, "Ok", stmt.Cases[0].Pattern.Name)
}

func TestParseClosureLiteralFromLambda(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
void f(void) {
    int x = 1;
    auto g = [](int y) { return y; };
}
`), false)
	require.NoError(t, err)
	decl := file.Items[0].Body.Children[1]
	require.Equal(t, ast.KindClosureLiteral, decl.Init.Kind)
	require.Len(t, decl.Init.ClosureParams, 1)
}

func TestParseStructAndTypedefAreOpaque(t *testing.T) {
	file, err := Parse("t.ccs", []byte(`
typedef int MyInt;
struct Point { int x; int y; };
`), false)
	require.NoError(t, err)
	require.Equal(t, ast.KindTypedef, file.Items[0].Kind)
	require.Equal(t, "MyInt", file.Items[0].Name)
	require.Equal(t, ast.KindStructDecl, file.Items[1].Kind)
	require.Equal(t, "Point", file.Items[1].Name)
	require.Contains(t, file.Items[1].TypeStr, "int x")
}
