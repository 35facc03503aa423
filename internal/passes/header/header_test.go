package header

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/editbuf"
	"github.com/ccfront/cc/internal/span"
)

func sp() span.Span { return span.Span{} }

func funcDecl(name, retType string, params ...*ast.Node) *ast.Node {
	f := ast.New(ast.KindFunc, sp())
	f.Name = name
	f.RetType = retType
	f.Params = params
	return f
}

func paramDecl(name, typ string) *ast.Node {
	p := ast.New(ast.KindDecl, sp())
	p.Name = name
	p.TypeStr = typ
	return p
}

func TestResultTypeIsMangledAndRecorded(t *testing.T) {
	fn := funcDecl("open_file", "File!IoError", paramDecl("path", "String*"), paramDecl("fallback", "String?"))
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	require.NoError(t, New(file, buf).Run())

	require.Equal(t, "CCResult_CCFile_CCIoError", fn.RetType)
	require.Equal(t, "String*", fn.Params[0].TypeStr, "a plain pointer type carries no !/? sugar and is left untouched")
	require.Equal(t, "CCOptional_CCString", fn.Params[1].TypeStr)

	defs := buf.Definitions()
	require.Contains(t, defs, "#ifndef CCResult_CCFile_CCIoError_DEFINED")
	require.Contains(t, defs, "CC_DECLARE_RESULT(CCResult_CCFile_CCIoError, CCFile, CCIoError)")
	require.Contains(t, defs, "#endif")
}

func TestOptionalTypeIsMangledAndRecorded(t *testing.T) {
	fn := funcDecl("find_entry", "Slice?")
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	require.NoError(t, New(file, buf).Run())

	require.Equal(t, "CCOptional_CCSlice", fn.RetType)
	require.Contains(t, buf.Definitions(), "CC_DECLARE_OPTIONAL(CCOptional_CCSlice, CCSlice)")
}

func TestBuiltinInstantiationIsNotRedeclared(t *testing.T) {
	fn := funcDecl("read_all", "CCString!CCError")
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	require.NoError(t, New(file, buf).Run())
	require.NotContains(t, buf.Definitions(), "CCResult_CCString_CCError_DEFINED")
}

func TestDuplicateInstantiationDeclaredOnce(t *testing.T) {
	a := funcDecl("a", "Arena!Error")
	b := funcDecl("b", "Arena!Error")
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{a, b}}
	buf := editbuf.New()

	require.NoError(t, New(file, buf).Run())

	defs := buf.Definitions()
	count := 0
	for i := 0; i+len("CC_DECLARE_RESULT(CCResult_CCArena_CCError") <= len(defs); i++ {
		if defs[i:i+len("CC_DECLARE_RESULT(CCResult_CCArena_CCError")] == "CC_DECLARE_RESULT(CCResult_CCArena_CCError" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestNonHeaderFileIsUntouched(t *testing.T) {
	fn := funcDecl("open_file", "File!IoError")
	file := &ast.File{Name: "t.ccs", IsHeader: false, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	require.NoError(t, New(file, buf).Run())
	require.Equal(t, "File!IoError", fn.RetType)
	require.Empty(t, buf.Definitions())
}

func TestNewWithBuiltinsOverridesDefaultFilterList(t *testing.T) {
	fn := funcDecl("make_entry", "Entry!Error")
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	require.NoError(t, NewWithBuiltins(file, buf, []string{"CCResult_Entry_CCError"}).Run())
	require.NotContains(t, buf.Definitions(), "CCResult_Entry_CCError_DEFINED")
}

func TestSliceTypeIsMangledAndRecorded(t *testing.T) {
	fn := funcDecl("all_entries", "Entry[:]")
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	require.NoError(t, New(file, buf).Run())

	require.Equal(t, "CCSlice_Entry", fn.RetType)
	require.Contains(t, buf.Definitions(), "CC_DECLARE_SLICE(CCSlice_Entry, Entry)")
}

func TestInstantiateIsSharedWithSugarPass(t *testing.T) {
	mangled, inst, ok := Instantiate("String[:]")
	require.True(t, ok)
	require.Equal(t, "CCSlice_CCString", mangled)
	require.True(t, inst.IsSlice)
	require.Equal(t, "CCString", inst.Ok)

	_, _, ok = Instantiate("plain_int")
	require.False(t, ok)
}

func TestSuggestAliasFindsNearMiss(t *testing.T) {
	suggestion, ok := SuggestAlias("Sting")
	require.True(t, ok)
	require.Equal(t, "String", suggestion)
}

func TestUnrecognizedAliasNearMissRaisesSuggestionDiagnostic(t *testing.T) {
	fn := funcDecl("open_file", "Sting!IoError")
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	err := New(file, buf).Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), `unrecognized short type name "Sting"`)
	require.Contains(t, err.Error(), `did you mean "String"?`)
}

func TestUnrelatedCustomTypeNameIsNotFlaggedAsTypo(t *testing.T) {
	fn := funcDecl("make_entry", "Entry!Error")
	file := &ast.File{Name: "t.cch", IsHeader: true, Items: []*ast.Node{fn}}
	buf := editbuf.New()

	require.NoError(t, New(file, buf).Run())
	require.Equal(t, "CCResult_Entry_CCError", fn.RetType)
}

func TestMangleCollapsesAndTrims(t *testing.T) {
	require.Equal(t, "CCSlice_ptr", mangle("CCSlice *"))
	require.Equal(t, "map_int_CCString", mangle("map<int, CCString>"))
}
