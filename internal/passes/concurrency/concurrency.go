// Package concurrency implements the structured-concurrency pass (spec
// §4.4): it lowers `@nursery { body }` into an explicit open/defer-close
// pair around the body, and rewrites every `spawn(expr)` reachable
// inside it into a submission against the lexically innermost nursery
// handle. Nesting is tracked with a handle stack threaded through the
// statement walk; a spawn found with an empty stack is a fatal error at
// the spawn site.
package concurrency

import (
	"fmt"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccerrors"
)

// Runtime entry points this pass generates calls against (spec §6
// "Runtime contract").
const (
	openFn  = "cc_nursery_open"
	closeFn = "cc_nursery_close"
	spawnFn = "cc_nursery_spawn_closure0"

	handlePrefix = "__cc_nursery_"
)

// Pass runs the structured-concurrency lowering over a single file.
type Pass struct {
	file    *ast.File
	counter int
}

// New returns a Pass bound to file.
func New(file *ast.File) *Pass {
	return &Pass{file: file}
}

// Run lowers every nursery and spawn statement reachable from each
// function body in the file.
func (p *Pass) Run() error {
	for _, item := range p.file.Items {
		if item.Kind != ast.KindFunc || item.Body == nil {
			continue
		}
		if err := p.lowerStmt(&item.Body, nil); err != nil {
			return err
		}
	}
	return nil
}

// lowerStmt recurses through statement-holding slots, threading stack —
// the handle names of nurseries lexically enclosing this point, innermost
// last. It never descends into expressions: spawn and nursery are both
// statement-only constructs (spec §3's statement family), so no
// expression subtree can contain one.
func (p *Pass) lowerStmt(slot **ast.Node, stack []string) error {
	if slot == nil || *slot == nil {
		return nil
	}
	n := *slot
	switch n.Kind {
	case ast.KindBlock:
		for i := range n.Children {
			if err := p.lowerStmt(&n.Children[i], stack); err != nil {
				return err
			}
		}
		return nil
	case ast.KindIf:
		if err := p.lowerStmt(&n.Then, stack); err != nil {
			return err
		}
		return p.lowerStmt(&n.Else, stack)
	case ast.KindFor, ast.KindWhile:
		return p.lowerStmt(&n.Body, stack)
	case ast.KindDefer:
		return p.lowerStmt(&n.Body, stack)
	case ast.KindMatch:
		for _, c := range n.Cases {
			if c == nil {
				continue
			}
			if err := p.lowerStmt(&c.Body, stack); err != nil {
				return err
			}
		}
		return nil
	case ast.KindSpawn:
		return p.lowerSpawn(slot, stack)
	case ast.KindNursery:
		return p.lowerNursery(slot, stack)
	default:
		return nil
	}
}

// lowerSpawn rewrites a spawn statement into an expression statement
// calling cc_nursery_spawn_closure0(handle, expr) against the innermost
// open nursery (spec §4.4 "spawn resolves to the lexically innermost
// nursery"); spawn outside any nursery is fatal (spec §4.4, §7
// "syntax-shape errors").
func (p *Pass) lowerSpawn(slot **ast.Node, stack []string) error {
	n := *slot
	if len(stack) == 0 {
		return ccerrors.NewLowerError("concurrency", p.file.Name, n.Span,
			"spawn used outside any nursery scope")
	}
	handle := stack[len(stack)-1]

	call := ast.New(ast.KindCall, n.Span)
	callee := ast.New(ast.KindIdent, n.Span)
	callee.Name = spawnFn
	call.Callee = callee

	handleArg := ast.New(ast.KindIdent, n.Span)
	handleArg.Name = handle
	call.Args = []*ast.Node{handleArg, n.Init}

	stmt := ast.New(ast.KindExprStmt, n.Span)
	stmt.Init = call
	*slot = stmt
	return nil
}

// lowerNursery replaces a nursery node with a block declaring a fresh
// handle, deferring its close, and then running the (already-lowered)
// original body in place — so the handle is opened at the start of the
// synthesised block and released on every exit path via the defer (spec
// §4.4 "Contract").
func (p *Pass) lowerNursery(slot **ast.Node, stack []string) error {
	n := *slot
	handle := p.nextHandle()

	// Force a fresh backing array so sibling branches of the caller's
	// stack slice never observe this nursery's handle once we return.
	inner := append(stack[:len(stack):len(stack)], handle)
	if err := p.lowerStmt(&n.Body, inner); err != nil {
		return err
	}

	block := ast.New(ast.KindBlock, n.Span)

	decl := ast.New(ast.KindDecl, n.Span)
	decl.Name = handle
	decl.TypeStr = "CCNursery*"
	openCall := ast.New(ast.KindCall, n.Span)
	openCallee := ast.New(ast.KindIdent, n.Span)
	openCallee.Name = openFn
	openCall.Callee = openCallee
	decl.Init = openCall

	closeDefer := ast.New(ast.KindDefer, n.Span)
	closeStmt := ast.New(ast.KindExprStmt, n.Span)
	closeCall := ast.New(ast.KindCall, n.Span)
	closeCallee := ast.New(ast.KindIdent, n.Span)
	closeCallee.Name = closeFn
	closeCall.Callee = closeCallee
	closeArg := ast.New(ast.KindIdent, n.Span)
	closeArg.Name = handle
	closeCall.Args = []*ast.Node{closeArg}
	closeStmt.Init = closeCall
	closeDefer.Body = closeStmt

	block.Children = append(block.Children, decl, closeDefer)
	if n.Body != nil {
		block.Children = append(block.Children, n.Body.Children...)
	}

	*slot = block
	return nil
}

func (p *Pass) nextHandle() string {
	p.counter++
	return fmt.Sprintf("%s%d", handlePrefix, p.counter)
}
