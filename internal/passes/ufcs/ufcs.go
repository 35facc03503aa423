// Package ufcs rewrites receiver.method(args) into method(receiver,
// args) (spec §4.2). Resolution is lexical-syntactic only: the pass does
// not verify method is defined, and leaves definition matching to the
// downstream C compiler.
package ufcs

import "github.com/ccfront/cc/internal/ast"

// Rewrite walks every node reachable from root and replaces each
// KindMethodCall with a KindCall whose first argument is the original
// receiver, moved (not copied) into argument position (spec §4.2). It
// mutates the tree in place. Closure definitions recorded on the file
// are not visited here, since "UFCS does not apply to nested method
// chains inside closure bodies that have not yet been rewritten" (spec
// §4.2 edge cases) — the closure pass is expected to call
// RewriteClosureBodies once captures are lowered; the driver makes that
// call right after the closure pass.
func Rewrite(root *ast.Node) {
	rewriteChildren(root)
}

// rewriteChildren mutates every direct and transitive child pointer on n
// that might hold a KindMethodCall, replacing it with its KindCall
// rewrite in place.
func rewriteChildren(n *ast.Node) {
	if n == nil {
		return
	}
	rewriteField(&n.Callee)
	for i := range n.Args {
		rewriteField(&n.Args[i])
	}
	rewriteField(&n.Receiver)
	rewriteField(&n.Object)
	rewriteField(&n.Left)
	rewriteField(&n.Right)
	rewriteField(&n.Init)
	rewriteField(&n.Cond)
	rewriteField(&n.Then)
	rewriteField(&n.Else)
	rewriteField(&n.Post)
	rewriteField(&n.Body)
	for i := range n.Children {
		rewriteField(&n.Children[i])
	}
	for i := range n.Params {
		rewriteField(&n.Params[i])
	}
	for _, mc := range n.Cases {
		if mc == nil {
			continue
		}
		rewriteField(&mc.Pattern)
		rewriteField(&mc.Body)
	}
}

// rewriteField rewrites *slot in place (turning a method call into a
// call) and recurses into whatever node ends up there.
func rewriteField(slot **ast.Node) {
	if slot == nil || *slot == nil {
		return
	}
	if (*slot).Kind == ast.KindMethodCall {
		*slot = toCall(*slot)
	}
	rewriteChildren(*slot)
}

// toCall converts a KindMethodCall node into the equivalent KindCall:
// the callee is the bare method-name identifier, and Args is the
// receiver followed by the original arguments, in order.
func toCall(mc *ast.Node) *ast.Node {
	callee := ast.New(ast.KindIdent, mc.Span)
	callee.Name = mc.Name

	args := make([]*ast.Node, 0, len(mc.Args)+1)
	args = append(args, mc.Receiver)
	args = append(args, mc.Args...)

	call := ast.New(ast.KindCall, mc.Span)
	call.Callee = callee
	call.Args = args
	return call
}

// RewriteClosureBodies applies Rewrite across every closure definition's
// body in file's closure table — the second sweep spec §4.2 requires so
// that method calls captured verbatim inside a not-yet-lowered closure
// literal still get rewritten once the closure pass extracts the body.
func RewriteClosureBodies(closures []*ast.Closure) {
	for _, c := range closures {
		Rewrite(c.Body)
	}
}
