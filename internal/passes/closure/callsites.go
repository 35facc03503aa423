package closure

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/strset"
)

// closureArity reports the parameter count N a "CCClosureN" type string
// denotes, and whether typ is such a handle type at all (spec §4.3 step
// 4: variables initialised from a make call are typed as the matching
// "CCClosure0|1|2" handle).
func closureArity(typ string) (int, bool) {
	const prefix = "CCClosure"
	if !strings.HasPrefix(typ, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(typ[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// rewriteClosureCalls walks stmt and rewrites every call whose callee is
// a variable typed as a closure handle into the explicit
// cc_closureN_call(var, args...) form (spec §4.3 step 5). types supplies
// the ambient name->declared-type bindings built while lowering the
// enclosing function; seed pre-populates additional closure-typed names
// not already present in types — used for step 6, where a nested
// closure's own capture list supplies the local closure-var bindings.
func rewriteClosureCalls(stmt *ast.Node, types *strset.TypeMap, seed map[string]int) {
	scope := newArityScope(nil)
	for name, arity := range seed {
		scope.bind(name, arity)
	}
	walkRewrite(stmt, types, scope)
}

// arityScope tracks, for each closure-valued variable currently in
// scope, the parameter count of its closure handle type.
type arityScope struct {
	parent *arityScope
	vars   map[string]int
}

func newArityScope(parent *arityScope) *arityScope {
	return &arityScope{parent: parent, vars: make(map[string]int)}
}

func (s *arityScope) lookup(name string) (int, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if n, ok := cur.vars[name]; ok {
			return n, true
		}
	}
	return 0, false
}

func (s *arityScope) bind(name string, arity int) {
	s.vars[name] = arity
}

// walkRewrite recurses through statements, threading a fresh child scope
// into each nested block so shadowing in an inner block does not leak
// back out, while still seeing bindings from enclosing scopes.
func walkRewrite(n *ast.Node, types *strset.TypeMap, scope *arityScope) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.KindBlock:
		child := newArityScope(scope)
		for i := range n.Children {
			walkRewrite(n.Children[i], types, child)
			rewriteExprSlot(&n.Children[i], child)
		}
		return
	case ast.KindDecl:
		rewriteExprSlot(&n.Init, scope)
		if arity, ok := closureArity(n.TypeStr); ok {
			scope.bind(n.Name, arity)
		}
		return
	case ast.KindExprStmt, ast.KindReturn:
		rewriteExprSlot(&n.Init, scope)
		return
	case ast.KindIf:
		rewriteExprSlot(&n.Cond, scope)
		walkRewrite(n.Then, types, newArityScope(scope))
		walkRewrite(n.Else, types, newArityScope(scope))
		return
	case ast.KindFor, ast.KindWhile:
		rewriteExprSlot(&n.Cond, scope)
		walkRewrite(n.Body, types, newArityScope(scope))
		return
	case ast.KindNursery, ast.KindDefer:
		walkRewrite(n.Body, types, newArityScope(scope))
		return
	}
}

// rewriteExprSlot recurses into *slot's subexpressions and, if *slot
// itself is a call to a variable bound in scope, replaces it with the
// explicit cc_closureN_call form, casting arguments to integer-sized
// values per spec §4.3 step 5.
func rewriteExprSlot(slot **ast.Node, scope *arityScope) {
	if slot == nil || *slot == nil {
		return
	}
	n := *slot
	for _, sub := range []**ast.Node{&n.Receiver, &n.Object, &n.Left, &n.Right, &n.Init} {
		rewriteExprSlot(sub, scope)
	}
	for i := range n.Args {
		rewriteExprSlot(&n.Args[i], scope)
	}

	if n.Kind != ast.KindCall || n.Callee == nil || n.Callee.Kind != ast.KindIdent {
		return
	}
	arity, ok := scope.lookup(n.Callee.Name)
	if !ok {
		return
	}

	call := ast.New(ast.KindCall, n.Span)
	callee := ast.New(ast.KindIdent, n.Span)
	callee.Name = fmt.Sprintf("cc_closure%d_call", arity)
	call.Callee = callee
	args := make([]*ast.Node, 0, len(n.Args)+1)
	args = append(args, n.Callee)
	for _, a := range n.Args {
		cast := ast.New(ast.KindCast, a.Span)
		cast.TypeStr = "intptr_t"
		cast.Left = a
		args = append(args, cast)
	}
	call.Args = args
	*slot = call
}
