// Package sugar implements the small syntactic lowerings of spec §4.8:
// `with_deadline(expr) { body }`, `@match { case pat: ... }`, `try expr`,
// and the `T[:]` / `T?` / `T!E` type-syntax forms appearing in ordinary
// (non-interface) source. Each is a thin, single-scan rewriter over the
// already-lowered tree; none of the four produces text with no ast.Kind
// representation, so — like the concurrency, closure, and auto-blocking
// passes before it — this pass needs no channel on the shared edit
// buffer and works by direct tree mutation.
package sugar

import (
	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccerrors"
	"github.com/ccfront/cc/internal/passes/header"
)

// Runtime entry points this pass generates calls against (spec §6
// "Runtime contract" names `cc_deadline_after_ms` and a push/pop stack;
// spec §4.8 names `cc_try` directly without specifying its push/pop
// counterparts, since unlike the deadline stack it carries no state of
// its own).
const (
	deadlineAfterMsFn = "cc_deadline_after_ms"
	deadlinePushFn    = "cc_deadline_push"
	deadlinePopFn     = "cc_deadline_pop"
	tryFn             = "cc_try"

	tagPrefix = "CC_TAG_"
)

// Pass runs the with_deadline/match/try/type-syntax lowerings over a
// single file.
type Pass struct {
	file *ast.File
}

// New returns a Pass bound to file.
func New(file *ast.File) *Pass {
	return &Pass{file: file}
}

// Run rewrites every function body's with_deadline/match/try forms and
// every type string's T[:] / T? / T!E sugar across the whole file. The
// type-syntax rewrite also applies to interface files (a .cch file may
// freely mix both sugars), matching spec §4.8's "in non-interface
// source" qualifier for the structural forms only — with_deadline,
// @match, and try are statement/expression constructs that never appear
// at file scope in an interface file, so the distinction is moot there.
func (p *Pass) Run() error {
	for _, item := range p.file.Items {
		ast.Walk(item, p.rewriteTypeStr)
	}

	for _, item := range p.file.Items {
		if item.Kind != ast.KindFunc || item.Body == nil {
			continue
		}
		if err := p.lowerStmt(&item.Body, item.RetType); err != nil {
			return err
		}
	}
	return nil
}

// rewriteTypeStr mangles n's TypeStr/RetType in place via the same
// Instantiate function the header pass uses, so a `T[:]`/`T?`/`T!E`
// written in ordinary source names the identical generated type as the
// one an interface file's declaration of the same type would produce
// (spec §4.8 "rewritten to the same mangled names used by the header
// pipeline").
func (p *Pass) rewriteTypeStr(n *ast.Node) {
	if mangled, _, ok := header.Instantiate(n.TypeStr); ok {
		n.TypeStr = mangled
	}
	if mangled, _, ok := header.Instantiate(n.RetType); ok {
		n.RetType = mangled
	}
}

// lowerStmt recurses through statement-holding slots belonging to a
// function with declared return type retType, rewriting with_deadline,
// match, and try forms it finds along the way. It follows the same
// per-Kind recursion shape as concurrency.Pass.lowerStmt and
// autoblock.Pass.lowerStmt.
func (p *Pass) lowerStmt(slot **ast.Node, retType string) error {
	if slot == nil || *slot == nil {
		return nil
	}
	n := *slot
	switch n.Kind {
	case ast.KindBlock:
		for i := range n.Children {
			if err := p.lowerStmt(&n.Children[i], retType); err != nil {
				return err
			}
		}
		return p.rewriteExprSlots(n, retType)
	case ast.KindIf:
		if err := p.lowerStmt(&n.Then, retType); err != nil {
			return err
		}
		if err := p.lowerStmt(&n.Else, retType); err != nil {
			return err
		}
		return p.rewriteExprSlots(n, retType)
	case ast.KindFor, ast.KindWhile:
		if err := p.lowerStmt(&n.Body, retType); err != nil {
			return err
		}
		return p.rewriteExprSlots(n, retType)
	case ast.KindNursery, ast.KindDefer:
		if err := p.lowerStmt(&n.Body, retType); err != nil {
			return err
		}
		return p.rewriteExprSlots(n, retType)
	case ast.KindWithDeadline:
		return p.lowerWithDeadline(slot, retType)
	case ast.KindMatch:
		return p.lowerMatch(slot, retType)
	default:
		return p.rewriteExprSlots(n, retType)
	}
}

// rewriteExprSlots rewrites any `try` form reachable from n's expression
// fields without descending into nested statements (those are handled by
// lowerStmt's own recursion).
func (p *Pass) rewriteExprSlots(n *ast.Node, retType string) error {
	for _, slot := range []**ast.Node{&n.Init, &n.Cond, &n.Left, &n.Right, &n.Object, &n.Callee} {
		if err := p.rewriteTrySlot(slot, retType); err != nil {
			return err
		}
	}
	for i := range n.Args {
		if err := p.rewriteTrySlot(&n.Args[i], retType); err != nil {
			return err
		}
	}
	return nil
}

// rewriteTrySlot recurses into *slot's subexpressions and, if *slot
// itself is a `try expr` node, replaces it with a call to the runtime's
// cc_try helper (spec §4.8 "becomes a call to the runtime's cc_try
// helper, which unwraps a result or propagates an error through the
// enclosing function's result type"). A plain function call cannot
// itself perform an early return from the caller; cc_try is expected to
// be a statement-expression macro, and the only way generated code can
// tell it which error shape to construct for that early return is to
// pass the enclosing function's (already-mangled) result type alongside
// the wrapped expression — the runtime contract (spec §6) names no
// separate channel for this, so this is the grounded choice rather than
// an invented one.
func (p *Pass) rewriteTrySlot(slot **ast.Node, retType string) error {
	if slot == nil || *slot == nil {
		return nil
	}
	n := *slot
	for _, sub := range []**ast.Node{&n.Init, &n.Cond, &n.Left, &n.Right, &n.Object, &n.Callee} {
		if err := p.rewriteTrySlot(sub, retType); err != nil {
			return err
		}
	}
	for i := range n.Args {
		if err := p.rewriteTrySlot(&n.Args[i], retType); err != nil {
			return err
		}
	}

	if n.Kind != ast.KindTry {
		return nil
	}
	if n.Left == nil {
		return ccerrors.NewLowerError("sugar", p.file.Name, n.Span, "try has no operand expression")
	}

	call := ast.New(ast.KindCall, n.Span)
	callee := ast.New(ast.KindIdent, n.Span)
	callee.Name = tryFn
	call.Callee = callee

	retTag := ast.New(ast.KindIdent, n.Span)
	retTag.Name = retType
	call.Args = []*ast.Node{n.Left, retTag}
	*slot = call
	return nil
}

// lowerWithDeadline replaces a with_deadline node with a block pushing
// the derived deadline, deferring its pop, then running the (already
// lowered) original body in place — the exact shape of
// concurrency.Pass.lowerNursery, since both are "open resource, defer
// release, run body" constructs (spec §4.8 "pushes the deadline derived
// from expr onto a thread-local stack, registers a scoped pop via the
// defer mechanism, then runs body").
func (p *Pass) lowerWithDeadline(slot **ast.Node, retType string) error {
	n := *slot
	if err := p.lowerStmt(&n.Body, retType); err != nil {
		return err
	}
	if err := p.rewriteTrySlot(&n.Cond, retType); err != nil {
		return err
	}

	block := ast.New(ast.KindBlock, n.Span)

	derive := ast.New(ast.KindCall, n.Span)
	deriveCallee := ast.New(ast.KindIdent, n.Span)
	deriveCallee.Name = deadlineAfterMsFn
	derive.Callee = deriveCallee
	derive.Args = []*ast.Node{n.Cond}

	pushStmt := ast.New(ast.KindExprStmt, n.Span)
	pushCall := ast.New(ast.KindCall, n.Span)
	pushCallee := ast.New(ast.KindIdent, n.Span)
	pushCallee.Name = deadlinePushFn
	pushCall.Callee = pushCallee
	pushCall.Args = []*ast.Node{derive}
	pushStmt.Init = pushCall

	popDefer := ast.New(ast.KindDefer, n.Span)
	popStmt := ast.New(ast.KindExprStmt, n.Span)
	popCall := ast.New(ast.KindCall, n.Span)
	popCallee := ast.New(ast.KindIdent, n.Span)
	popCallee.Name = deadlinePopFn
	popCall.Callee = popCallee
	popStmt.Init = popCall
	popDefer.Body = popStmt

	block.Children = append(block.Children, pushStmt, popDefer)
	if n.Body != nil {
		block.Children = append(block.Children, n.Body.Children...)
	}
	*slot = block
	return nil
}

// lowerMatch rewrites an @match node into a chain of if/else-if
// conditionals over the scrutinee's tag discriminator (spec §4.8 "a
// chain of conditionals over tag discriminators and bindings"). Each
// case's Pattern names the tag constant being tested (rendered
// `CC_TAG_<Pattern.Name>` to keep generated tag constants out of user
// identifier space, spec §6 "no identifier beginning with __cc_ or __CC
// ... collides with user code" — the same collision-avoidance concern,
// applied to match's own synthesized constants); if Pattern.Init names a
// binding identifier, the case body is prefixed with a declaration
// reading that tag's payload out of the scrutinee. A nil Pattern is the
// default arm and is rendered as the final unconditional else.
func (p *Pass) lowerMatch(slot **ast.Node, retType string) error {
	n := *slot
	if n.Cond == nil {
		return ccerrors.NewLowerError("sugar", p.file.Name, n.Span, "match has no scrutinee expression")
	}
	if err := p.rewriteTrySlot(&n.Cond, retType); err != nil {
		return err
	}
	for _, c := range n.Cases {
		if c == nil || c.Body == nil {
			continue
		}
		if err := p.lowerStmt(&c.Body, retType); err != nil {
			return err
		}
	}

	var chain *ast.Node
	var tail *ast.Node
	for _, c := range n.Cases {
		if c == nil {
			continue
		}
		body := c.Body
		if body == nil {
			body = ast.New(ast.KindBlock, n.Span)
		}

		if c.Pattern == nil {
			if chain == nil {
				chain = body
			} else {
				tail.Else = body
			}
			continue
		}

		ifStmt := ast.New(ast.KindIf, n.Span)
		tagCheck := ast.New(ast.KindBinary, n.Span)
		tagCheck.Op = ast.OpEq

		tagField := ast.New(ast.KindFieldAccess, n.Span)
		tagField.Object = cloneNode(n.Cond)
		tagField.Name = "tag"
		tagCheck.Left = tagField

		tagConst := ast.New(ast.KindIdent, n.Span)
		tagConst.Name = tagPrefix + c.Pattern.Name
		tagCheck.Right = tagConst

		ifStmt.Cond = tagCheck
		ifStmt.Then = bindCaseBody(c, body, n.Cond)

		if chain == nil {
			chain = ifStmt
		} else {
			tail.Else = ifStmt
		}
		tail = ifStmt
	}

	if chain == nil {
		chain = ast.New(ast.KindBlock, n.Span)
	}
	*slot = chain
	return nil
}

// bindCaseBody prefixes body with a declaration unpacking scrutinee's
// payload into c.Pattern.Init's name, when the pattern binds one — the
// payload is read from `<scrutinee>.as.<tag>` (spec §4.8 names no
// concrete field layout for a sum-type's generated struct, so the
// accessor shape here follows the header pass's CC_DECLARE_RESULT /
// CC_DECLARE_OPTIONAL naming convention: a `tag` discriminator plus an
// `as` union of per-variant payloads).
func bindCaseBody(c *ast.MatchCase, body *ast.Node, scrutinee *ast.Node) *ast.Node {
	if c.Pattern.Init == nil {
		return body
	}

	asField := ast.New(ast.KindFieldAccess, c.Pattern.Span)
	asField.Object = cloneNode(scrutinee)
	asField.Name = "as"

	payload := ast.New(ast.KindFieldAccess, c.Pattern.Span)
	payload.Object = asField
	payload.Name = c.Pattern.Name

	decl := ast.New(ast.KindDecl, c.Pattern.Span)
	decl.Name = c.Pattern.Init.Name
	decl.TypeStr = "intptr_t"
	decl.Init = payload

	wrapped := ast.New(ast.KindBlock, body.Span)
	wrapped.Children = append([]*ast.Node{decl}, bodyChildren(body)...)
	return wrapped
}

func bodyChildren(body *ast.Node) []*ast.Node {
	if body.Kind == ast.KindBlock {
		return body.Children
	}
	return []*ast.Node{body}
}

// cloneNode deep-copies n so the same source subtree (the match
// scrutinee) can be embedded at more than one point in the generated
// tree without violating the exclusive-ownership invariant spec §3
// states for ast.Node (spec §4.2's UFCS rewrite gets away with a plain
// move instead of a clone because it only ever relocates a receiver into
// a single new parent; match's scrutinee is read at one tag-check per
// case plus, for each binding arm, once more for its payload access, so
// it needs a real copy per use site).
func cloneNode(n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Children = cloneSlice(n.Children)
	c.Callee = cloneNode(n.Callee)
	c.Args = cloneSlice(n.Args)
	c.Receiver = cloneNode(n.Receiver)
	c.Object = cloneNode(n.Object)
	c.Left = cloneNode(n.Left)
	c.Right = cloneNode(n.Right)
	c.Init = cloneNode(n.Init)
	c.Cond = cloneNode(n.Cond)
	c.Then = cloneNode(n.Then)
	c.Else = cloneNode(n.Else)
	c.Post = cloneNode(n.Post)
	c.Params = cloneSlice(n.Params)
	c.Body = cloneNode(n.Body)
	c.ClosureParams = cloneSlice(n.ClosureParams)
	if n.Cases != nil {
		c.Cases = make([]*ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			if mc == nil {
				continue
			}
			c.Cases[i] = &ast.MatchCase{Pattern: cloneNode(mc.Pattern), Body: cloneNode(mc.Body)}
		}
	}
	if n.Meta != nil {
		c.Meta = make(map[string]string, len(n.Meta))
		for k, v := range n.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

func cloneSlice(nodes []*ast.Node) []*ast.Node {
	if nodes == nil {
		return nil
	}
	out := make([]*ast.Node, len(nodes))
	for i, n := range nodes {
		out[i] = cloneNode(n)
	}
	return out
}
