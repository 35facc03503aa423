// Package autoblock implements the auto-blocking pass (spec §4.5): it
// runs inside every `@async` function body and rewrites calls to
// synchronous (non-async, non-noblock) callees into a dispatch onto a
// blocking worker, awaited from the cooperative scheduler, so a
// synchronous callee can never stall the poll loop. A call already
// wrapped in `await` is normally excluded (it is the async pass's
// concern, not this one's) — except the channel primitives
// (`chan_send`, `chan_recv`, `chan_send_take[_ptr|_slice]`), which are
// ordinary blocking runtime functions rather than async callees
// returning a task, and so are pulled back into this pass's scope even
// when the user wrote `await chan_recv(ch)` directly.
//
// This pass has no direct teacher equivalent (the teacher repo does no
// source lowering at all); its statement-batching walk reuses the
// per-block recursion shape already established by the concurrency and
// closure passes in this module, adapted to a new kind of rewrite.
package autoblock

import (
	"fmt"
	"strings"

	"github.com/ccfront/cc/internal/ast"
)

// blockingDispatchFn is the runtime entry point spec §6 names for
// running a zero-argument closure on a blocking worker.
const blockingDispatchFn = "cc_run_blocking_task_intptr"

const intptrType = "intptr_t"

// channelPrimitives names the runtime's synchronous channel operations
// (spec §6). A call to one of these appearing as an await operand is
// the one exception to step 1's "calls inside an await operand are
// excluded" rule: these are ordinary blocking C functions, not async
// callees returning a task, so the `await` the user wrote needs this
// pass to synthesise an actual task for it to suspend on.
var channelPrimitives = map[string]bool{
	"chan_send":            true,
	"chan_recv":            true,
	"chan_send_take":       true,
	"chan_send_take_ptr":   true,
	"chan_send_take_slice": true,
}

func calleeName(callee *ast.Node) string {
	if callee == nil || callee.Kind != ast.KindIdent {
		return ""
	}
	return callee.Name
}

// candidateCall extracts the call expression n represents as an
// autoblock candidate, per spec §4.5 step 1: a bare call, or a call
// wrapped in `await` whose callee is a channel primitive. Any other
// await-wrapped call returns nil — it belongs to the async pass, not
// this one.
func candidateCall(n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}
	if n.Kind == ast.KindCall {
		return n
	}
	if n.Kind == ast.KindAwait && n.Left != nil && n.Left.Kind == ast.KindCall &&
		channelPrimitives[calleeName(n.Left.Callee)] {
		return n.Left
	}
	return nil
}

// signature is everything this pass needs to know about a function
// defined in the same file: its attributes (to decide candidacy) and
// its parameter/return types (to decide foldability and cast targets).
type signature struct {
	attrs   ast.FuncAttr
	params  []*ast.Node
	retType string
}

// Pass runs the auto-blocking lowering over a single file.
type Pass struct {
	file    *ast.File
	sigs    map[string]signature
	counter int
}

// New returns a Pass bound to file.
func New(file *ast.File) *Pass {
	return &Pass{file: file}
}

// Run rewrites every async function body in the file.
func (p *Pass) Run() error {
	p.sigs = make(map[string]signature, len(p.file.Items))
	for _, item := range p.file.Items {
		if item.Kind == ast.KindFunc {
			p.sigs[item.Name] = signature{attrs: item.Attrs, params: item.Params, retType: item.RetType}
		}
	}
	for _, item := range p.file.Items {
		if item.Kind != ast.KindFunc || item.Body == nil {
			continue
		}
		if item.Attrs&ast.AttrAsync == 0 {
			continue
		}
		p.lowerStmt(&item.Body)
	}
	return nil
}

// lowerStmt recurses into nested statement-holding slots, batching
// candidate runs at every block it finds along the way.
func (p *Pass) lowerStmt(slot **ast.Node) {
	if slot == nil || *slot == nil {
		return
	}
	n := *slot
	switch n.Kind {
	case ast.KindBlock:
		p.lowerBlockChildren(n)
	case ast.KindIf:
		p.lowerStmt(&n.Then)
		p.lowerStmt(&n.Else)
	case ast.KindFor, ast.KindWhile:
		p.lowerStmt(&n.Body)
	case ast.KindNursery, ast.KindDefer:
		p.lowerStmt(&n.Body)
	case ast.KindMatch:
		for _, c := range n.Cases {
			if c == nil {
				continue
			}
			p.lowerStmt(&c.Body)
		}
	}
}

// lowerBlockChildren performs spec §4.5's steps 2-4 over one block's
// statement list: identify and classify candidates, batch maximal runs
// of statement-form candidates with an optional folded tail, and
// replace each run with its synthesised dispatch.
func (p *Pass) lowerBlockChildren(block *ast.Node) {
	children := block.Children
	result := make([]*ast.Node, 0, len(children))
	i := 0
	for i < len(children) {
		if !p.isStmtFormCandidate(children[i]) {
			p.lowerStmt(&children[i])
			result = append(result, children[i])
			i++
			continue
		}

		j := i
		var group []*ast.Node
		for j < len(children) && p.isStmtFormCandidate(children[j]) {
			group = append(group, children[j])
			j++
		}

		var tail *tailInfo
		if j < len(children) {
			if t, ok := p.asTailCandidate(children[j]); ok {
				tail = t
				j++
			}
		}

		result = append(result, p.synthesize(group, tail)...)
		i = j
	}
	block.Children = result
}

// tailInfo describes a trailing return/assignment candidate folded into
// a batch (spec §4.5 step 3).
type tailInfo struct {
	stmt     *ast.Node // the original return or expression-statement node, for Span
	call     *ast.Node // the call expression inside it
	isReturn bool
	lhs      *ast.Node // assign-form only: the left-hand side expression
}

// isStmtFormCandidate reports whether n is a bare `callee(args);` or
// `await chan_x(args);` expression statement calling a blocking callee
// (spec §4.5 step 2, statement-form).
func (p *Pass) isStmtFormCandidate(n *ast.Node) bool {
	if n.Kind != ast.KindExprStmt {
		return false
	}
	call := candidateCall(n.Init)
	return call != nil && p.isBlockingCallee(call.Callee)
}

// asTailCandidate reports whether n is a `return callee(args);` or
// `lhs = callee(args);` (or their `await chan_x(args)` forms) whose
// callee is blocking and whose return type permits tail-folding
// (spec §4.5 step 2 and "Edge cases").
func (p *Pass) asTailCandidate(n *ast.Node) (*tailInfo, bool) {
	if n.Kind == ast.KindReturn {
		if call := candidateCall(n.Init); call != nil &&
			p.isBlockingCallee(call.Callee) && p.tailFoldable(call.Callee) {
			return &tailInfo{stmt: n, call: call, isReturn: true}, true
		}
	}
	if n.Kind == ast.KindExprStmt && n.Init != nil && n.Init.Kind == ast.KindBinary && n.Init.Op == ast.OpAssign {
		if call := candidateCall(n.Init.Right); call != nil &&
			p.isBlockingCallee(call.Callee) && p.tailFoldable(call.Callee) {
			return &tailInfo{stmt: n, call: call, isReturn: false, lhs: n.Init.Left}, true
		}
	}
	return nil, false
}

// isBlockingCallee implements spec §4.5 step 1: a named callee whose
// attributes are unknown (not declared in this file) is assumed
// blocking; a callee declared async or noblock is not a candidate.
func (p *Pass) isBlockingCallee(callee *ast.Node) bool {
	if callee == nil || callee.Kind != ast.KindIdent {
		return false
	}
	sig, ok := p.sigs[callee.Name]
	if !ok {
		return true
	}
	return sig.attrs&(ast.AttrAsync|ast.AttrNoblock) == 0
}

// tailFoldable reports whether callee's return type permits folding it
// into the dispatch closure's return value (spec §4.5 "Edge cases":
// void or struct-by-value returns are skipped). An unknown signature is
// optimistically treated as foldable.
func (p *Pass) tailFoldable(callee *ast.Node) bool {
	sig, ok := p.sigs[callee.Name]
	if !ok {
		return true
	}
	rt := strings.TrimSpace(sig.retType)
	if rt == "" || rt == "void" {
		return false
	}
	return !strings.HasPrefix(rt, "struct ")
}

// synthesize builds the replacement statement list for one candidate
// group (spec §4.5 step 4): one intptr local per original argument,
// evaluated at the original call site to preserve order and side
// effects, a zero-argument closure reconstructing the calls from those
// locals, and an await of the blocking dispatch, bound to the folded
// tail's return/assignment if there was one.
func (p *Pass) synthesize(group []*ast.Node, tail *tailInfo) []*ast.Node {
	calls := make([]*ast.Node, 0, len(group)+1)
	for _, g := range group {
		calls = append(calls, candidateCall(g.Init))
	}
	if tail != nil {
		calls = append(calls, tail.call)
	}

	var locals []*ast.Node
	var bodyStmts []*ast.Node
	for ci, call := range calls {
		reconstructed := ast.New(ast.KindCall, call.Span)
		reconstructed.Callee = call.Callee
		reconstructed.Args = make([]*ast.Node, len(call.Args))

		for ai, arg := range call.Args {
			name := p.nextArgLocal()

			decl := ast.New(ast.KindDecl, arg.Span)
			decl.Name = name
			decl.TypeStr = intptrType
			cast := ast.New(ast.KindCast, arg.Span)
			cast.TypeStr = intptrType
			cast.Left = arg
			decl.Init = cast
			locals = append(locals, decl)

			ref := ast.New(ast.KindIdent, arg.Span)
			ref.Name = name
			reconstructed.Args[ai] = p.castToParam(ref, call.Callee, ai)
		}

		if tail != nil && ci == len(calls)-1 {
			ret := ast.New(ast.KindReturn, call.Span)
			ret.Init = reconstructed
			bodyStmts = append(bodyStmts, ret)
		} else {
			st := ast.New(ast.KindExprStmt, call.Span)
			st.Init = reconstructed
			bodyStmts = append(bodyStmts, st)
		}
	}

	anchor := group[0].Span
	closureBody := ast.New(ast.KindBlock, anchor)
	closureBody.Children = bodyStmts
	closure := ast.New(ast.KindClosureLiteral, anchor)
	closure.Body = closureBody

	dispatch := ast.New(ast.KindCall, anchor)
	dispatchCallee := ast.New(ast.KindIdent, anchor)
	dispatchCallee.Name = blockingDispatchFn
	dispatch.Callee = dispatchCallee
	dispatch.Args = []*ast.Node{closure}

	await := ast.New(ast.KindAwait, anchor)
	await.Left = dispatch

	out := make([]*ast.Node, 0, len(locals)+1)
	out = append(out, locals...)

	switch {
	case tail == nil:
		st := ast.New(ast.KindExprStmt, anchor)
		st.Init = await
		out = append(out, st)
	case tail.isReturn:
		ret := ast.New(ast.KindReturn, tail.stmt.Span)
		ret.Init = await
		out = append(out, ret)
	default:
		st := ast.New(ast.KindExprStmt, tail.stmt.Span)
		assign := ast.New(ast.KindBinary, tail.stmt.Span)
		assign.Op = ast.OpAssign
		assign.Left = tail.lhs
		assign.Right = await
		st.Init = assign
		out = append(out, st)
	}
	return out
}

// castToParam wraps ref in a cast to callee's idx'th declared parameter
// type, if known; otherwise ref is left as the plain intptr local,
// since the callee's own signature is unknown to this file.
func (p *Pass) castToParam(ref *ast.Node, callee *ast.Node, idx int) *ast.Node {
	sig, ok := p.sigs[callee.Name]
	if !ok || idx >= len(sig.params) {
		return ref
	}
	paramType := sig.params[idx].TypeStr
	if paramType == "" || paramType == intptrType {
		return ref
	}
	cast := ast.New(ast.KindCast, ref.Span)
	cast.TypeStr = paramType
	cast.Left = ref
	return cast
}

func (p *Pass) nextArgLocal() string {
	p.counter++
	return fmt.Sprintf("__cc_ab_arg_%d", p.counter)
}
