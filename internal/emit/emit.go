// Package emit implements the C emitter (spec §4.9): the final pass,
// which walks the fully-lowered tree and renders it as C source text,
// accurate #line directives, a single collapsed runtime meta-include,
// and the edit buffer's prototype/definition streams spliced in at the
// positions spec §4.1 assigns them.
//
// Grounding. internal/cparse does not parse struct/union/enum/typedef
// bodies into nodes, so this pass treats those item kinds and includes
// as opaque, already-formed declaration text carried in TypeStr/Name — the same "write the field a pass
// actually needs, leave the rest zero" discipline ast.go documents for
// every other Kind. Expression and statement rendering follows
// asyncstate's generator.renderExpr/renderInline shape (operator-symbol
// table, per-Kind switch), generalized to plain identifiers instead of
// that pass's frame-dereference substitution, since by this point in
// the pipeline no frame rewrite is in play for an ordinary function.
package emit

import (
	"fmt"
	"strings"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccerrors"
	"github.com/ccfront/cc/internal/editbuf"
)

// Runtime entry points a leftover nursery/spawn node expands against,
// as a defensive fallback (spec §4.9 "if any remain") — the concurrency
// pass already lowers every nursery/spawn it sees, so ordinary input
// never reaches this path; it exists so the emitter degrades to the
// same runtime calls rather than silently dropping the construct.
const (
	nurseryOpenFn  = "cc_nursery_open"
	nurseryCloseFn = "cc_nursery_close"
	nurserySpawnFn = "cc_nursery_spawn_closure0"

	closureFieldsAnonymous = "struct <anonymous>"
)

// reservedPrefixes names the identifier prefixes spec §6 reserves for
// generated output ("No identifier beginning with __cc_ or __CC in the
// generated output collides with user code; user-defined names
// matching these prefixes are filtered before emission").
var reservedPrefixes = []string{"__cc_", "__CC"}

// Options configures a single file's emission.
type Options struct {
	// RuntimeHeader is the path substituted for every include the
	// emitter filters out of the runtime's own namespace (spec §4.9
	// "a single runtime meta-include at the top of each file").
	RuntimeHeader string
	// RuntimeIncludePrefixes names the include-path prefixes treated as
	// the runtime's own namespace and collapsed away.
	RuntimeIncludePrefixes []string
}

// File renders file's items, plus buf's prototype/definition streams
// and file.Closures, as a single C translation unit.
func File(file *ast.File, buf *editbuf.Buffer, opts Options) (string, error) {
	e := &emitter{file: file, buf: buf, opts: opts}
	return e.render()
}

type emitter struct {
	file *ast.File
	buf  *editbuf.Buffer
	opts Options
}

func (e *emitter) render() (string, error) {
	var sb strings.Builder

	needsRuntime := len(e.file.Closures) > 0 || e.usesRuntimeCalls()
	if e.buf != nil && (e.buf.Prototypes() != "" || e.buf.Definitions() != "") {
		// Only asyncstate and header queue generated text, and both
		// target the runtime's task and result declarations.
		needsRuntime = true
	}
	needsAlloc := false
	for _, def := range e.file.Closures {
		if def.HasCaptures {
			needsAlloc = true
			break
		}
	}

	var kept []*ast.Node
	for _, item := range e.file.Items {
		if item.Kind == ast.KindInclude && e.isRuntimeInclude(item) {
			needsRuntime = true
			continue
		}
		kept = append(kept, item)
	}

	if needsAlloc {
		sb.WriteString("#include <stdlib.h>\n")
	}
	if needsRuntime {
		header := e.opts.RuntimeHeader
		if header == "" {
			header = "cc_runtime.h"
		}
		sb.WriteString(fmt.Sprintf("#include %q\n", header))
	}

	for _, item := range kept {
		if item.Kind == ast.KindInclude {
			sb.WriteString(e.renderInclude(item))
		}
	}

	if e.buf != nil {
		if protos := e.buf.Prototypes(); protos != "" {
			sb.WriteString(protos)
		}
	}

	if len(e.file.Closures) > 0 {
		sb.WriteString(fmt.Sprintf("#line 1 %q\n", "<cc-generated:closures>"))
		for _, def := range e.file.Closures {
			rendered, err := e.renderClosure(def)
			if err != nil {
				return "", err
			}
			sb.WriteString(rendered)
		}
		sb.WriteString(fmt.Sprintf("#line 1 %q\n", e.file.Name))
	}

	for _, item := range kept {
		if item.Kind == ast.KindInclude {
			continue
		}
		if isReserved(item.Name) {
			continue
		}
		if item.Span.Begin.Line > 0 {
			sb.WriteString(fmt.Sprintf("#line %d %q\n", item.Span.Begin.Line, e.file.Name))
		}
		rendered, err := e.renderItem(item)
		if err != nil {
			return "", err
		}
		sb.WriteString(rendered)
	}

	if e.buf != nil {
		if defs := e.buf.Definitions(); defs != "" {
			sb.WriteString(defs)
		}
	}

	return sb.String(), nil
}

// usesRuntimeCalls reports whether any surviving item already
// references a runtime-namespace identifier (cc_/CC prefixed), the
// other trigger spec §6 names for the meta-include beyond closures.
func (e *emitter) usesRuntimeCalls() bool {
	found := false
	for _, item := range e.file.Items {
		ast.Walk(item, func(n *ast.Node) {
			if found {
				return
			}
			if n.Kind == ast.KindIdent && isRuntimeName(n.Name) {
				found = true
			}
		})
		if found {
			return true
		}
	}
	return false
}

func isRuntimeName(name string) bool {
	return strings.HasPrefix(name, "cc_") || strings.HasPrefix(name, "CC")
}

func isReserved(name string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func (e *emitter) isRuntimeInclude(item *ast.Node) bool {
	prefixes := e.opts.RuntimeIncludePrefixes
	if len(prefixes) == 0 {
		prefixes = []string{"cc_runtime/", "cc/runtime/"}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(item.Name, p) {
			return true
		}
	}
	return false
}

func (e *emitter) renderInclude(item *ast.Node) string {
	if item.GetMeta("angle") == "1" {
		return fmt.Sprintf("#include <%s>\n", item.Name)
	}
	return fmt.Sprintf("#include %q\n", item.Name)
}

// renderItem dispatches a single top-level item to its Kind's renderer.
func (e *emitter) renderItem(item *ast.Node) (string, error) {
	switch item.Kind {
	case ast.KindFunc:
		return e.renderFunc(item)
	case ast.KindTypedef:
		return fmt.Sprintf("typedef %s %s;\n", cleanTypeStr(item.TypeStr), item.Name), nil
	case ast.KindStructDecl:
		return e.renderAggregate("struct", item), nil
	case ast.KindUnionDecl:
		return e.renderAggregate("union", item), nil
	case ast.KindEnumDecl:
		return e.renderAggregate("enum", item), nil
	default:
		return "", ccerrors.NewInternalError("emit",
			fmt.Sprintf("unexpected top-level item kind %d", item.Kind))
	}
}

// renderAggregate emits a struct/union/enum declaration verbatim (spec
// §4.9 "emitted verbatim with type-string cleanups"): the member-list
// text a parser would have captured lives, uninterpreted by any pass,
// in TypeStr.
func (e *emitter) renderAggregate(keyword string, item *ast.Node) string {
	name := item.Name
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s %s %s;\n", keyword, cleanTypeStr(name), cleanTypeStr(item.TypeStr))
}

func (e *emitter) renderFunc(fn *ast.Node) (string, error) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %s", cleanTypeStr(p.TypeStr), p.Name)
	}
	if len(params) == 0 {
		params = []string{"void"}
	}

	body, err := e.renderBlock(fn.Body, nil, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s(%s) {\n%s}\n",
		cleanTypeStr(fn.RetType), fn.Name, strings.Join(params, ", "), body), nil
}

// renderClosure emits one closure definition: an env struct and a drop
// function (both only when it captures anything), an entry function,
// and a make constructor, against the runtime contract's cc_closureN_make/call
// shape (spec §4.3, §6).
func (e *emitter) renderClosure(def *ast.Closure) (string, error) {
	id := def.ID
	arity := len(def.Params)
	var sb strings.Builder

	envType := fmt.Sprintf("__cc_closure_env_%d", id)
	if def.HasCaptures {
		sb.WriteString(fmt.Sprintf("struct %s {\n", envType))
		for i, cap := range def.Captures {
			sb.WriteString(fmt.Sprintf("    %s %s;\n", cleanTypeStr(def.CaptureTypes[i]), cap))
		}
		sb.WriteString("};\n")
	}

	params := make([]string, 0, arity+1)
	params = append(params, "void *__env")
	for i := 0; i < 2 && i < arity; i++ {
		params = append(params, fmt.Sprintf("intptr_t %s", def.Params[i].Name))
	}
	body, err := e.renderBlock(def.Body, &envRewrite{envType: envType, captures: def.Captures}, nil)
	if err != nil {
		return "", err
	}
	sb.WriteString(fmt.Sprintf("static intptr_t __cc_closure_entry_%d(%s) {\n%s}\n",
		id, strings.Join(params, ", "), body))

	if def.HasCaptures {
		sb.WriteString(fmt.Sprintf("static void __cc_closure_drop_%d(void *__env) {\n", id))
		sb.WriteString(fmt.Sprintf("    free((struct %s *)__env);\n", envType))
		sb.WriteString("}\n")
	}

	makeParams := make([]string, len(def.Captures))
	for i, cap := range def.Captures {
		makeParams[i] = fmt.Sprintf("%s %s", cleanTypeStr(def.CaptureTypes[i]), cap)
	}
	sb.WriteString(fmt.Sprintf("static CCClosure%d __cc_closure_make_%d(%s) {\n", arity, id, strings.Join(makeParams, ", ")))
	if def.HasCaptures {
		sb.WriteString(fmt.Sprintf("    struct %s *__env = malloc(sizeof(struct %s));\n", envType, envType))
		for _, cap := range def.Captures {
			sb.WriteString(fmt.Sprintf("    __env->%s = %s;\n", cap, cap))
		}
		sb.WriteString(fmt.Sprintf("    return cc_closure%d_make(__cc_closure_entry_%d, __env, __cc_closure_drop_%d);\n", arity, id, id))
	} else {
		sb.WriteString(fmt.Sprintf("    return cc_closure%d_make(__cc_closure_entry_%d, NULL, NULL);\n", arity, id))
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}

// envRewrite tells the statement/expression renderer that it is
// currently inside a closure entry function: every reference to a
// captured name must become an env-pointer field access instead of a
// bare identifier.
type envRewrite struct {
	envType  string
	captures []string
}

func (r *envRewrite) isCapture(name string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.captures {
		if c == name {
			return true
		}
	}
	return false
}

// cleanTypeStr applies spec §4.9's type-string cleanups: the parser's
// `struct <anonymous>` placeholder becomes `auto`, and a type naming an
// internal-only `__CC`-prefixed marker is dropped in favour of `void`
// (spec §4.9 "internal __CC prefixed types are filtered").
func cleanTypeStr(typ string) string {
	if typ == closureFieldsAnonymous {
		return "auto"
	}
	if strings.HasPrefix(strings.TrimSpace(typ), "__CC") {
		return "void"
	}
	return typ
}

// renderBlock renders a statement subtree (expected KindBlock, but any
// statement is accepted so callers with a single-statement body need no
// special case) as braced C text. inherited is the stack of deferred
// call bodies registered by enclosing blocks, outermost first; a return,
// break, or continue reached anywhere in this subtree — including
// nested if/while/for bodies, which receive the same stack grown with
// whatever this block registers — dumps the whole stack (innermost
// first) before the jump, since C has no defer keyword and the
// runtime's resource-release contract instead depends on the compiler
// duplicating the cleanup call at each exit (spec §5 "the core emits
// paired acquire/release calls guaranteed to run on every exit path via
// the defer machinery"). At the block's own natural end, only the
// defers this block itself registered are dumped — defers inherited
// from an outer block are left for that block's own natural-end dump.
func (e *emitter) renderBlock(n *ast.Node, env *envRewrite, inherited []*ast.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	children := n.Children
	if n.Kind != ast.KindBlock {
		children = []*ast.Node{n}
	}

	stack := append([]*ast.Node(nil), inherited...)
	base := len(stack)

	var sb strings.Builder
	for _, c := range children {
		if c.Kind == ast.KindDefer {
			stack = append(stack, c.Body)
			continue
		}
		if isExitStmt(c.Kind) {
			dump, err := e.dumpDefers(stack, env)
			if err != nil {
				return "", err
			}
			sb.WriteString(dump)
		}
		rendered, err := e.renderStmt(c, env, stack)
		if err != nil {
			return "", err
		}
		sb.WriteString(rendered)
	}
	dump, err := e.dumpDefers(stack[base:], env)
	if err != nil {
		return "", err
	}
	sb.WriteString(dump)
	return sb.String(), nil
}

// dumpDefers renders each deferred call body in defers in reverse
// (most-recently-registered first) order.
func (e *emitter) dumpDefers(defers []*ast.Node, env *envRewrite) (string, error) {
	var sb strings.Builder
	for i := len(defers) - 1; i >= 0; i-- {
		rendered, err := e.renderStmt(defers[i], env, nil)
		if err != nil {
			return "", err
		}
		sb.WriteString(rendered)
	}
	return sb.String(), nil
}

func isExitStmt(k ast.Kind) bool {
	return k == ast.KindReturn || k == ast.KindBreak || k == ast.KindContinue
}

func (e *emitter) renderStmt(n *ast.Node, env *envRewrite, stack []*ast.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	switch n.Kind {
	case ast.KindBlock:
		inner, err := e.renderBlock(n, env, stack)
		if err != nil {
			return "", err
		}
		return "{\n" + inner + "}\n", nil
	case ast.KindDecl:
		if n.Init == nil {
			return fmt.Sprintf("%s %s;\n", cleanTypeStr(n.TypeStr), n.Name), nil
		}
		init, err := e.renderExpr(n.Init, env)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s = %s;\n", cleanTypeStr(n.TypeStr), n.Name, init), nil
	case ast.KindExprStmt:
		expr, err := e.renderExpr(n.Init, env)
		if err != nil {
			return "", err
		}
		return expr + ";\n", nil
	case ast.KindReturn:
		if n.Init == nil {
			return "return;\n", nil
		}
		expr, err := e.renderExpr(n.Init, env)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("return %s;\n", expr), nil
	case ast.KindBreak:
		return "break;\n", nil
	case ast.KindContinue:
		return "continue;\n", nil
	case ast.KindIf:
		cond, err := e.renderExpr(n.Cond, env)
		if err != nil {
			return "", err
		}
		then, err := e.renderBlock(n.Then, env, stack)
		if err != nil {
			return "", err
		}
		if n.Else == nil {
			return fmt.Sprintf("if (%s) {\n%s}\n", cond, then), nil
		}
		els, err := e.renderBlock(n.Else, env, stack)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("if (%s) {\n%s} else {\n%s}\n", cond, then, els), nil
	case ast.KindWhile:
		cond, err := e.renderExpr(n.Cond, env)
		if err != nil {
			return "", err
		}
		body, err := e.renderBlock(n.Body, env, stack)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("while (%s) {\n%s}\n", cond, body), nil
	case ast.KindFor:
		init, err := e.renderForInit(n.Init, env)
		if err != nil {
			return "", err
		}
		cond, err := e.renderExpr(n.Cond, env)
		if err != nil {
			return "", err
		}
		post, err := e.renderExpr(n.Post, env)
		if err != nil {
			return "", err
		}
		body, err := e.renderBlock(n.Body, env, stack)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("for (%s; %s; %s) {\n%s}\n", init, cond, post, body), nil
	case ast.KindDefer:
		// Reachable only via dumpDefers rendering a deferred call body
		// itself, never as an ordinary statement (renderBlock consumes
		// KindDefer children directly, pushing them onto the stack
		// instead of calling renderStmt on them).
		return "", ccerrors.NewInternalError("emit", "defer node reached renderStmt directly")
	case ast.KindNursery:
		return e.renderNursery(n, env, stack)
	default:
		return "", ccerrors.NewInternalError("emit",
			fmt.Sprintf("unexpected statement kind %d reached the emitter", n.Kind))
	}
}

func (e *emitter) renderForInit(n *ast.Node, env *envRewrite) (string, error) {
	if n == nil {
		return "", nil
	}
	if n.Kind == ast.KindDecl {
		if n.Init == nil {
			return fmt.Sprintf("%s %s", cleanTypeStr(n.TypeStr), n.Name), nil
		}
		init, err := e.renderExpr(n.Init, env)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s = %s", cleanTypeStr(n.TypeStr), n.Name, init), nil
	}
	return e.renderExpr(n, env)
}

// renderNursery is the defensive fallback spec §4.9 names ("Nursery and
// spawn statements, if any remain, are expanded using the runtime's
// open/close/submit function names") — ordinary input never reaches
// this, since the concurrency pass lowers every nursery before the
// emitter runs.
func (e *emitter) renderNursery(n *ast.Node, env *envRewrite, stack []*ast.Node) (string, error) {
	body, err := e.renderBlock(n.Body, env, stack)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("{\n__cc_nursery_t *__n = %s();\n%s%s(__n);\n}\n",
		nurseryOpenFn, body, nurseryCloseFn), nil
}

var binOpText = map[ast.Op]string{
	ast.OpAdd: "+", ast.OpSub: "-", ast.OpMul: "*", ast.OpDiv: "/", ast.OpMod: "%",
	ast.OpEq: "==", ast.OpNe: "!=", ast.OpLt: "<", ast.OpLe: "<=", ast.OpGt: ">", ast.OpGe: ">=",
	ast.OpAnd: "&&", ast.OpOr: "||",
	ast.OpBitAnd: "&", ast.OpBitOr: "|", ast.OpBitXor: "^", ast.OpShl: "<<", ast.OpShr: ">>",
}

func renderUnaryOp(op ast.Op, operand string) string {
	switch op {
	case ast.OpNot:
		return "!" + operand
	case ast.OpNeg:
		return "-" + operand
	case ast.OpAddr:
		return "&" + operand
	case ast.OpDeref:
		return "*" + operand
	case ast.OpPreInc:
		return "++" + operand
	case ast.OpPreDec:
		return "--" + operand
	case ast.OpPostInc:
		return operand + "++"
	case ast.OpPostDec:
		return operand + "--"
	default:
		return operand
	}
}

// renderExpr renders an expression node as C text. Inside a closure
// entry function (env != nil), a reference to a captured name is
// rewritten to its env-pointer field access, mirroring
// asyncstate.generator.renderExpr's frame-dereference substitution but
// keyed on captures instead of every local.
func (e *emitter) renderExpr(n *ast.Node, env *envRewrite) (string, error) {
	if n == nil {
		return "", nil
	}
	switch n.Kind {
	case ast.KindIdent:
		if env.isCapture(n.Name) {
			return "((struct " + env.envType + " *)__env)->" + n.Name, nil
		}
		return n.Name, nil
	case ast.KindIntLit:
		return fmt.Sprintf("%d", n.Int), nil
	case ast.KindStringLit:
		return escapeCString(n.Name), nil
	case ast.KindCall:
		callee, err := e.renderExpr(n.Callee, env)
		if err != nil {
			return "", err
		}
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			rendered, err := e.renderExpr(a, env)
			if err != nil {
				return "", err
			}
			args[i] = rendered
		}
		return callee + "(" + strings.Join(args, ", ") + ")", nil
	case ast.KindFieldAccess:
		obj, err := e.renderExpr(n.Object, env)
		if err != nil {
			return "", err
		}
		sep := "."
		if n.Arrow {
			sep = "->"
		}
		return obj + sep + n.Name, nil
	case ast.KindIndex:
		obj, err := e.renderExpr(n.Object, env)
		if err != nil {
			return "", err
		}
		idx, err := e.renderExpr(n.Left, env)
		if err != nil {
			return "", err
		}
		return obj + "[" + idx + "]", nil
	case ast.KindBinary:
		left, err := e.renderExpr(n.Left, env)
		if err != nil {
			return "", err
		}
		right, err := e.renderExpr(n.Right, env)
		if err != nil {
			return "", err
		}
		if n.Op == ast.OpAssign {
			return left + " = " + right, nil
		}
		return "(" + left + " " + binOpText[n.Op] + " " + right + ")", nil
	case ast.KindUnary:
		operand, err := e.renderExpr(n.Left, env)
		if err != nil {
			return "", err
		}
		return renderUnaryOp(n.Op, operand), nil
	case ast.KindCast:
		operand, err := e.renderExpr(n.Left, env)
		if err != nil {
			return "", err
		}
		return "(" + cleanTypeStr(n.TypeStr) + ")(" + operand + ")", nil
	case ast.KindSizeofType:
		return "sizeof(" + cleanTypeStr(n.TypeStr) + ")", nil
	case ast.KindSizeofExpr:
		operand, err := e.renderExpr(n.Left, env)
		if err != nil {
			return "", err
		}
		return "sizeof(" + operand + ")", nil
	default:
		return "", ccerrors.NewInternalError("emit",
			fmt.Sprintf("unexpected expression kind %d reached the emitter", n.Kind))
	}
}

// escapeCString renders s as a double-quoted C string literal with
// standard escaping (spec §4.9 "Strings are re-emitted with standard C
// escaping").
func escapeCString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				sb.WriteString(fmt.Sprintf(`\x%02x`, r))
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
