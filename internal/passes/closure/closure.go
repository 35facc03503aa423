// Package closure implements the closure pass (spec §4.3): capture
// analysis, closure-definition recording, and call-site rewriting, so
// that after this pass runs no ast.KindClosureLiteral node remains
// anywhere in a file's item tree (spec §3 invariant).
package closure

import (
	"fmt"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccerrors"
	"github.com/ccfront/cc/internal/strset"
)

// defaultCaptureType is the fallback spec §4.3 step 3 names for a
// capture whose type cannot be resolved from the ambient type map: "a
// pointer-sized integer".
const defaultCaptureType = "intptr_t"

// scalarTypes is the small set of capture types the pass accepts without
// further checking (spec §4.3 "Failure semantics": integer, pointer,
// slice). A capture whose type is not in the ambient type map falls
// back to defaultCaptureType; a resolved type that is neither in this
// set, pointer/slice-shaped, nor a CCClosureN handle is a hard failure.
var scalarTypes = map[string]bool{
	"int": true, "long": true, "short": true, "char": true,
	"unsigned": true, "size_t": true, "intptr_t": true, "uintptr_t": true,
	"float": true, "double": true,
}

// Pass runs the closure lowering over a single file.
type Pass struct {
	file    *ast.File
	globals *strset.Set
}

// New returns a Pass bound to file.
func New(file *ast.File) *Pass {
	return &Pass{file: file}
}

// Run performs the full algorithm of spec §4.3: collect globals, walk
// each function body bottom-up lowering closure literals innermost
// first, then rewrite call sites that invoke closure-valued variables.
func (p *Pass) Run() error {
	p.globals = collectGlobals(p.file)

	for _, item := range p.file.Items {
		if item.Kind != ast.KindFunc || item.Body == nil {
			continue
		}
		types := strset.NewTypeMap()
		for _, param := range item.Params {
			types.Set(param.Name, param.TypeStr)
		}
		if err := p.lowerBlock(item.Body, types); err != nil {
			return err
		}
		rewriteClosureCalls(item.Body, types, nil)
	}

	// Step 6: closures whose captures include another closure variable
	// need the call-site rewrite applied inside their own bodies too,
	// using a local closure-var list built from their captures.
	for _, def := range p.file.Closures {
		seed := make(map[string]int)
		for i, cap := range def.Captures {
			if arity, ok := closureArity(def.CaptureTypes[i]); ok {
				seed[cap] = arity
			}
		}
		paramTypes := strset.NewTypeMap()
		for _, param := range def.Params {
			paramTypes.Set(param.Name, param.TypeStr)
		}
		rewriteClosureCalls(def.Body, paramTypes, seed)
	}

	return nil
}

// collectGlobals builds the set of file-scope declaration names (spec
// §4.3 step 1): functions, typedefs, struct/union/enum tags, and
// top-level variable declarations.
func collectGlobals(f *ast.File) *strset.Set {
	globals := strset.New()
	for _, item := range f.Items {
		switch item.Kind {
		case ast.KindFunc, ast.KindTypedef, ast.KindStructDecl, ast.KindUnionDecl, ast.KindEnumDecl, ast.KindDecl:
			if item.Name != "" {
				globals.Add(item.Name)
			}
		}
	}
	return globals
}

// lowerBlock walks stmt (a block or any nested statement) in preorder,
// updating types from declarations encountered and lowering any closure
// literal found bottom-up — nested closures are visited and replaced
// before the closure literal that contains them, since lowerExprSlot
// recurses into a literal's own body first.
func (p *Pass) lowerBlock(stmt *ast.Node, types *strset.TypeMap) error {
	if stmt == nil {
		return nil
	}
	switch stmt.Kind {
	case ast.KindBlock:
		local := types.Clone()
		for i, c := range stmt.Children {
			if err := p.lowerBlock(c, local); err != nil {
				return err
			}
			if err := p.lowerExprSlot(&stmt.Children[i], local); err != nil {
				return err
			}
		}
		return nil
	case ast.KindDecl:
		if stmt.TypeStr != "" {
			types.Set(stmt.Name, stmt.TypeStr)
		}
		return p.lowerExprSlot(&stmt.Init, types)
	case ast.KindExprStmt:
		return p.lowerExprSlot(&stmt.Init, types)
	case ast.KindReturn:
		return p.lowerExprSlot(&stmt.Init, types)
	case ast.KindIf:
		if err := p.lowerExprSlot(&stmt.Cond, types); err != nil {
			return err
		}
		if err := p.lowerBlock(stmt.Then, types.Clone()); err != nil {
			return err
		}
		return p.lowerBlock(stmt.Else, types.Clone())
	case ast.KindFor, ast.KindWhile:
		if err := p.lowerExprSlot(&stmt.Cond, types); err != nil {
			return err
		}
		return p.lowerBlock(stmt.Body, types.Clone())
	case ast.KindNursery, ast.KindDefer:
		return p.lowerBlock(stmt.Body, types.Clone())
	default:
		return nil
	}
}

// lowerExprSlot descends into *slot's subexpressions and, if *slot is
// itself a closure literal, lowers it in place after its own body has
// been processed (bottom-up: nested closures lower first).
func (p *Pass) lowerExprSlot(slot **ast.Node, types *strset.TypeMap) error {
	if slot == nil || *slot == nil {
		return nil
	}
	n := *slot
	for _, sub := range []**ast.Node{&n.Callee, &n.Receiver, &n.Object, &n.Left, &n.Right, &n.Init} {
		if err := p.lowerExprSlot(sub, types); err != nil {
			return err
		}
	}
	for i := range n.Args {
		if err := p.lowerExprSlot(&n.Args[i], types); err != nil {
			return err
		}
	}

	if n.Kind == ast.KindClosureLiteral {
		bodyTypes := types.Clone()
		for _, param := range n.ClosureParams {
			bodyTypes.Set(param.Name, param.TypeStr)
		}
		if err := p.lowerBlock(n.Body, bodyTypes); err != nil {
			return err
		}
		replaced, err := p.lowerLiteral(n, types)
		if err != nil {
			return err
		}
		*slot = replaced
	}
	return nil
}

// lowerLiteral performs spec §4.3 step 3 on a single closure literal:
// compute captures, record the definition, and return the make-call
// replacement node.
func (p *Pass) lowerLiteral(lit *ast.Node, types *strset.TypeMap) (*ast.Node, error) {
	refs := strset.New()
	collectRefs(lit.Body, refs)

	decls := strset.New()
	for _, param := range lit.ClosureParams {
		decls.Add(param.Name)
	}
	collectDecls(lit.Body, decls)

	captures := refs.Difference(decls).Difference(p.globals)
	names := captures.Names()

	captureTypes := make([]string, len(names))
	for i, name := range names {
		typ, ok := types.Lookup(name)
		if !ok {
			typ = defaultCaptureType
		} else if _, isHandle := closureArity(typ); !isHandle && !scalarTypes[typ] && !looksLikePointerOrSlice(typ) {
			return nil, ccerrors.NewLowerError("closure", p.file.Name, lit.Span,
				fmt.Sprintf("capture %q has unsupported type %q; widen it to an integer, pointer, or slice", name, typ))
		}
		captureTypes[i] = typ
	}

	def := &ast.Closure{
		Params:       lit.ClosureParams,
		Captures:     names,
		CaptureTypes: captureTypes,
		Body:         lit.Body,
		HasCaptures:  len(names) > 0,
	}
	id := p.file.AddClosure(def)

	call := ast.New(ast.KindCall, lit.Span)
	callee := ast.New(ast.KindIdent, lit.Span)
	callee.Name = fmt.Sprintf("__cc_closure_make_%d", id)
	call.Callee = callee
	call.Args = make([]*ast.Node, len(names))
	for i, name := range names {
		arg := ast.New(ast.KindIdent, lit.Span)
		arg.Name = name
		call.Args[i] = arg
	}
	call.SetMeta("closure_id", fmt.Sprintf("%d", id))
	call.SetMeta("closure_arity", fmt.Sprintf("%d", len(lit.ClosureParams)))
	return call, nil
}

func looksLikePointerOrSlice(typ string) bool {
	for _, r := range typ {
		if r == '*' || r == '[' {
			return true
		}
	}
	return false
}

// collectRefs gathers every identifier referenced in body, including
// callees of calls (spec §4.3 "refs").
func collectRefs(n *ast.Node, out *strset.Set) {
	ast.Walk(n, func(node *ast.Node) {
		if node.Kind == ast.KindIdent {
			out.Add(node.Name)
		}
	})
}

// collectDecls gathers every name bound by a declaration within body
// (spec §4.3 "decls").
func collectDecls(n *ast.Node, out *strset.Set) {
	ast.Walk(n, func(node *ast.Node) {
		if node.Kind == ast.KindDecl && node.Name != "" {
			out.Add(node.Name)
		}
	})
}
