// Package asyncstate implements the async state-machine pass (spec
// §4.6): it replaces each `@async` function's body with a frame struct,
// a poll function, a drop function, a best-effort wait function, and a
// task-returning constructor carrying the original signature.
//
// Scope. Await may appear only as the direct top-level form of a
// declaration initialiser, a bare expression statement, an assignment's
// right-hand side, or a return's operand — never nested inside a larger
// sub-expression. That restriction applies equally inside `if`/`while`/
// `for` bodies, which nest to arbitrary depth and may freely contain
// awaits at any depth (spec §4.6 "Nested control flow across awaits is
// allowed"): the poll switch's `case N:` labels are valid anywhere a C
// statement is, including inside a loop or branch body, so resuming a
// suspended await nested in a loop simply re-enters the switch at the
// label sitting inside that loop's body and continues the enclosing
// control flow exactly where it left off (the same technique behind
// Duff's device and protothreads — no separate per-loop dispatch state
// is needed). The one shape this shrinks to a conservative subset is a
// condition itself: an `if`/`while`'s condition or a `for`'s
// init/condition/post clause may not contain an await, since evaluating
// those requires a dispatch point *before* the loop or branch is
// entered at all, which this generator does not synthesise. A body
// outside this subset is rejected with a diagnostic naming the
// construct, exactly as spec §4.6's own conservative-subset contract
// anticipates for any unsupported shape. Because every suspension's
// resume state is therefore known at the point it is written (a
// monotonically increasing counter, never a forward reference across a
// branch merge), no byte-buffer fixup patch is needed in this subset;
// state values are still rendered as 6-digit right-justified decimals
// to match the generated text's shape.
package asyncstate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccerrors"
	"github.com/ccfront/cc/internal/editbuf"
)

// Runtime contract names (spec §6).
const (
	taskType   = "CCTaskIntptr"
	statusType = "CCPollStatus"

	statusPending = "CC_POLL_PENDING"
	statusReady   = "CC_POLL_READY"
	statusErr     = "CC_POLL_ERR"

	pollMakeFn = "cc_task_intptr_make_poll_ex"
	taskPollFn = "cc_task_intptr_poll"
	taskFreeFn = "cc_task_intptr_free"

	doneState = 999999
)

var scalarLocalTypes = map[string]bool{
	"int": true, "long": true, "short": true, "char": true,
	"unsigned": true, "size_t": true, "intptr_t": true, "uintptr_t": true,
	"bool": true,
}

func looksLikePointerOrSlice(typ string) bool {
	for _, r := range typ {
		if r == '*' || r == '[' {
			return true
		}
	}
	return false
}

// Pass runs the async state-machine lowering over a single file,
// queuing generated frame/poll/drop/wait/constructor text onto buf.
type Pass struct {
	file *ast.File
	buf  *editbuf.Buffer
}

// New returns a Pass bound to file, emitting generated code into buf.
func New(file *ast.File, buf *editbuf.Buffer) *Pass {
	return &Pass{file: file, buf: buf}
}

// Run lowers every async function in the file; each one is removed
// from the item list and replaced entirely by generated text queued
// onto the edit buffer's prototype/definition streams.
func (p *Pass) Run() error {
	items := make([]*ast.Node, 0, len(p.file.Items))
	for _, item := range p.file.Items {
		if item.Kind == ast.KindFunc && item.Attrs&ast.AttrAsync != 0 && item.Body != nil {
			if err := p.lowerFunc(item); err != nil {
				return err
			}
			continue
		}
		items = append(items, item)
	}
	p.file.Items = items
	return nil
}

func (p *Pass) lowerFunc(fn *ast.Node) error {
	g := &generator{fileName: p.file.Name, fn: fn, locals: map[string]string{}}
	if err := g.validate(); err != nil {
		return err
	}
	g.collectParams()
	g.collectLocals()
	g.generate()

	frameType := fn.Name + "_frame"
	p.buf.AddPrototype(fmt.Sprintf("typedef struct %s %s;\n", frameType, frameType))
	p.buf.AddDefinition(g.renderFrameStruct(frameType))
	p.buf.AddDefinition(g.renderPoll(frameType))
	p.buf.AddDefinition(g.renderDrop(frameType))
	p.buf.AddDefinition(g.renderWait(frameType))
	p.buf.AddDefinition(g.renderConstructor(frameType))
	return nil
}

// awaitSite records one await's frame-resident task handle and result
// temporary (spec §4.6's "one slot per await temporary ... one task
// slot per concurrent outstanding await" — one pair per syntactic
// await site in this subset, never pooled/reused).
type awaitSite struct {
	tempField string
	taskField string
}

// bindTo describes where an await's eventual value is written once its
// task becomes ready.
type bindTo struct {
	declName  string
	assignLHS *ast.Node
	isReturn  bool
}

type generator struct {
	fileName string
	fn       *ast.Node

	locals map[string]string // name -> declared type, params + hoisted locals
	order  []string          // insertion order, for deterministic frame field emission

	nextState int
	out       []byte
	awaits    []awaitSite
}

func (g *generator) addLocal(name, typ string) {
	if _, exists := g.locals[name]; exists {
		return
	}
	g.locals[name] = typ
	g.order = append(g.order, name)
}

func (g *generator) collectParams() {
	for _, param := range g.fn.Params {
		g.addLocal(param.Name, param.TypeStr)
	}
}

// collectLocals hoists every declaration reachable from the body, at
// any nesting depth (spec §4.6: "every identifier referenced that is a
// local or parameter is rewritten to deref the frame" — unconditional,
// not limited to declarations that cross a suspension point).
func (g *generator) collectLocals() {
	ast.Walk(g.fn.Body, func(node *ast.Node) {
		if node.Kind == ast.KindDecl && node.Name != "" {
			g.addLocal(node.Name, node.TypeStr)
		}
	})
}

func containsAwait(n *ast.Node) bool {
	found := false
	ast.Walk(n, func(node *ast.Node) {
		if node.Kind == ast.KindAwait {
			found = true
		}
	})
	return found
}

// validate checks the conservative subset this implementation supports
// (see package doc) and returns a diagnostic naming the first
// unsupported construct found, per spec §4.6's own fallback contract.
func (g *generator) validate() error {
	if g.fn.RetType != "" && g.fn.RetType != "void" && !scalarLocalTypes[g.fn.RetType] && !looksLikePointerOrSlice(g.fn.RetType) {
		return ccerrors.NewLowerError("asyncstate", g.fileName, g.fn.Span,
			fmt.Sprintf("async function %q has unsupported return type %q for frame storage", g.fn.Name, g.fn.RetType))
	}
	for _, param := range g.fn.Params {
		if param.TypeStr != "" && !scalarLocalTypes[param.TypeStr] && !looksLikePointerOrSlice(param.TypeStr) {
			return ccerrors.NewLowerError("asyncstate", g.fileName, param.Span,
				fmt.Sprintf("parameter %q has unsupported async-frame type %q", param.Name, param.TypeStr))
		}
	}
	if g.fn.Body == nil || g.fn.Body.Kind != ast.KindBlock {
		return ccerrors.NewLowerError("asyncstate", g.fileName, g.fn.Span, "async function has no block body")
	}
	for _, stmt := range g.fn.Body.Children {
		if err := g.validateStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

// validateStmt checks the conservative subset this implementation
// supports (see package doc), recursing into if/while/for bodies so an
// await nested at any depth inside one is accepted, while an await
// inside the construct's own condition/init/post clause is rejected.
func (g *generator) validateStmt(stmt *ast.Node) error {
	if stmt == nil {
		return nil
	}
	switch stmt.Kind {
	case ast.KindBlock:
		for _, c := range stmt.Children {
			if err := g.validateStmt(c); err != nil {
				return err
			}
		}
		return nil
	case ast.KindDecl:
		if stmt.TypeStr != "" && !scalarLocalTypes[stmt.TypeStr] {
			return ccerrors.NewLowerError("asyncstate", g.fileName, stmt.Span,
				fmt.Sprintf("local %q has unsupported async-frame type %q", stmt.Name, stmt.TypeStr))
		}
		if stmt.Init != nil && stmt.Init.Kind == ast.KindAwait {
			return nil
		}
		return g.rejectNestedAwait(stmt.Init, stmt)
	case ast.KindExprStmt:
		if stmt.Init != nil && stmt.Init.Kind == ast.KindAwait {
			return nil
		}
		if isAwaitAssign(stmt.Init) {
			return nil
		}
		return g.rejectNestedAwait(stmt.Init, stmt)
	case ast.KindReturn:
		if stmt.Init == nil || stmt.Init.Kind == ast.KindAwait {
			return nil
		}
		return g.rejectNestedAwait(stmt.Init, stmt)
	case ast.KindBreak, ast.KindContinue:
		return nil
	case ast.KindIf:
		if containsAwait(stmt.Cond) {
			return ccerrors.NewLowerError("asyncstate", g.fileName, stmt.Span,
				"await inside an if condition is not a supported async body shape")
		}
		if err := g.validateStmt(stmt.Then); err != nil {
			return err
		}
		return g.validateStmt(stmt.Else)
	case ast.KindWhile:
		if containsAwait(stmt.Cond) {
			return ccerrors.NewLowerError("asyncstate", g.fileName, stmt.Span,
				"await inside a while condition is not a supported async body shape")
		}
		return g.validateStmt(stmt.Body)
	case ast.KindFor:
		if containsAwait(stmt.Init) || containsAwait(stmt.Cond) || containsAwait(stmt.Post) {
			return ccerrors.NewLowerError("asyncstate", g.fileName, stmt.Span,
				"await inside a for loop's init, condition, or post clause is not a supported async body shape")
		}
		return g.validateStmt(stmt.Body)
	default:
		return ccerrors.NewLowerError("asyncstate", g.fileName, stmt.Span,
			"unsupported statement inside an async function body")
	}
}

func isAwaitAssign(n *ast.Node) bool {
	return n != nil && n.Kind == ast.KindBinary && n.Op == ast.OpAssign &&
		n.Right != nil && n.Right.Kind == ast.KindAwait
}

func (g *generator) rejectNestedAwait(n *ast.Node, stmt *ast.Node) error {
	if n != nil && containsAwait(n) {
		return ccerrors.NewLowerError("asyncstate", g.fileName, stmt.Span,
			"await nested inside a larger expression is not a supported async body shape")
	}
	return nil
}

// generate walks the top-level statement list once, in order, writing
// the poll function's switch-case body into g.out and recording one
// awaitSite per suspension point encountered (spec §4.6 "State
// discipline": state 0 falls through to state 1, every suspension
// point allocates a fresh state id, completion jumps to a shared tail).
func (g *generator) generate() {
	g.writeCase(0)
	g.writef("frame->state = 1;\n")
	g.writeCase(1)
	g.nextState = 2
	for _, stmt := range g.fn.Body.Children {
		g.emitStmt(stmt)
	}
	g.writef("goto done;\n")
}

// emitStmt writes one statement's poll-switch body text, recursing into
// if/while/for bodies so an await nested inside one lands its own
// dispatch/resume case pair directly inside the surrounding control
// flow's braces (see package doc's protothread note).
func (g *generator) emitStmt(stmt *ast.Node) {
	if stmt == nil {
		return
	}
	switch stmt.Kind {
	case ast.KindBlock:
		for _, c := range stmt.Children {
			g.emitStmt(c)
		}
	case ast.KindDecl:
		if stmt.Init != nil && stmt.Init.Kind == ast.KindAwait {
			g.emitAwait(stmt.Init.Left, bindTo{declName: stmt.Name})
			return
		}
		g.writef("%s", g.renderInline(stmt))
	case ast.KindExprStmt:
		if stmt.Init != nil && stmt.Init.Kind == ast.KindAwait {
			g.emitAwait(stmt.Init.Left, bindTo{})
			return
		}
		if isAwaitAssign(stmt.Init) {
			g.emitAwait(stmt.Init.Right.Left, bindTo{assignLHS: stmt.Init.Left})
			return
		}
		g.writef("%s", g.renderInline(stmt))
	case ast.KindReturn:
		if stmt.Init != nil && stmt.Init.Kind == ast.KindAwait {
			g.emitAwait(stmt.Init.Left, bindTo{isReturn: true})
			return
		}
		g.writef("%s", g.renderInline(stmt))
	case ast.KindIf:
		g.writef("if (%s) {\n", g.renderExpr(stmt.Cond))
		g.emitStmt(stmt.Then)
		g.writef("} else {\n")
		g.emitStmt(stmt.Else)
		g.writef("}\n")
	case ast.KindWhile:
		g.writef("while (%s) {\n", g.renderExpr(stmt.Cond))
		g.emitStmt(stmt.Body)
		g.writef("}\n")
	case ast.KindFor:
		g.writef("for (%s; %s; %s) {\n",
			g.renderForInit(stmt.Init), g.renderExpr(stmt.Cond), g.renderExpr(stmt.Post))
		g.emitStmt(stmt.Body)
		g.writef("}\n")
	default:
		g.writef("%s", g.renderInline(stmt))
	}
}

// emitAwait synthesises a suspension point: a dispatch case that starts
// the operand's task, and a resume case that polls it, returning
// pending (saving the resume state) or propagating an error, then binds
// the ready value per bind (spec §4.6 "State discipline", "Concurrency").
func (g *generator) emitAwait(operand *ast.Node, bind bindTo) {
	idx := len(g.awaits)
	tempField := fmt.Sprintf("__cc_await_temp_%d", idx)
	taskField := fmt.Sprintf("__cc_await_task_%d", idx)
	g.awaits = append(g.awaits, awaitSite{tempField: tempField, taskField: taskField})

	dispatchState := g.nextState
	g.nextState++
	resumeState := g.nextState
	g.nextState++

	g.writeCase(dispatchState)
	g.writef("frame->%s = %s;\n", taskField, g.renderExpr(operand))
	g.writeCase(resumeState)
	g.writef("{\n")
	g.writef("intptr_t __cc_ab_err = 0;\n")
	g.writef("%s __cc_ab_status = %s(&frame->%s, &frame->%s, &__cc_ab_err);\n",
		statusType, taskPollFn, taskField, tempField)
	g.writef("if (__cc_ab_status == %s) {\n", statusPending)
	g.writef("frame->state = %s;\n", formatState(resumeState))
	g.writef("return %s;\n", statusPending)
	g.writef("}\n")
	g.writef("if (__cc_ab_status == %s) {\n", statusErr)
	g.writef("*out_error = __cc_ab_err;\n")
	g.writef("frame->state = %s;\n", formatState(doneState))
	g.writef("return %s;\n", statusErr)
	g.writef("}\n")
	g.writef("}\n")

	switch {
	case bind.isReturn:
		g.writef("frame->ret = (intptr_t)(frame->%s);\n", tempField)
		g.writef("goto done;\n")
	case bind.declName != "":
		g.writef("frame->%s = (intptr_t)(frame->%s);\n", bind.declName, tempField)
	case bind.assignLHS != nil:
		g.writef("%s = (intptr_t)(frame->%s);\n", g.renderExpr(bind.assignLHS), tempField)
	}
}

func (g *generator) writef(format string, args ...any) {
	g.out = append(g.out, []byte(fmt.Sprintf(format, args...))...)
}

func (g *generator) writeCase(id int) {
	g.writef("case %d:\n", id)
}

func formatState(id int) string {
	return fmt.Sprintf("%6d", id)
}

// renderInline renders a single statement known to contain no await
// itself, as literal nested C text. Control flow is never passed here
// directly — emitStmt handles if/while/for itself so a nested await can
// still land its own case label inside the braces this would otherwise
// render as one opaque string.
func (g *generator) renderInline(n *ast.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case ast.KindDecl:
		if n.Init == nil {
			return ""
		}
		return fmt.Sprintf("frame->%s = (intptr_t)(%s);\n", n.Name, g.renderExpr(n.Init))
	case ast.KindExprStmt:
		return g.renderExpr(n.Init) + ";\n"
	case ast.KindReturn:
		if n.Init == nil {
			return "goto done;\n"
		}
		return fmt.Sprintf("frame->ret = (intptr_t)(%s);\ngoto done;\n", g.renderExpr(n.Init))
	case ast.KindBreak:
		return "break;\n"
	case ast.KindContinue:
		return "continue;\n"
	default:
		return ""
	}
}

// renderForInit renders a for-loop's init clause as a bare assignment
// (never a declaration): the induction variable is itself a hoisted
// frame field, so the loop header can no longer introduce real storage.
func (g *generator) renderForInit(n *ast.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind == ast.KindDecl {
		if n.Init == nil {
			return ""
		}
		return fmt.Sprintf("frame->%s = (intptr_t)(%s)", n.Name, g.renderExpr(n.Init))
	}
	return g.renderExpr(n)
}

var binOpText = map[ast.Op]string{
	ast.OpAdd: "+", ast.OpSub: "-", ast.OpMul: "*", ast.OpDiv: "/", ast.OpMod: "%",
	ast.OpEq: "==", ast.OpNe: "!=", ast.OpLt: "<", ast.OpLe: "<=", ast.OpGt: ">", ast.OpGe: ">=",
	ast.OpAnd: "&&", ast.OpOr: "||",
	ast.OpBitAnd: "&", ast.OpBitOr: "|", ast.OpBitXor: "^", ast.OpShl: "<<", ast.OpShr: ">>",
}

func renderUnary(n *ast.Node, operand string) string {
	switch n.Op {
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

// renderExpr performs spec §4.6's "Frame access" rewrite: every local
// or parameter identifier is substituted for its frame dereference; all
// other expression shapes are rendered as the equivalent C text.
func (g *generator) renderExpr(n *ast.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case ast.KindIdent:
		if _, ok := g.locals[n.Name]; ok {
			return "frame->" + n.Name
		}
		return n.Name
	case ast.KindIntLit:
		return strconv.FormatInt(n.Int, 10)
	case ast.KindStringLit:
		return strconv.Quote(n.Name)
	case ast.KindCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = g.renderExpr(a)
		}
		return g.renderExpr(n.Callee) + "(" + strings.Join(args, ", ") + ")"
	case ast.KindFieldAccess:
		sep := "."
		if n.Arrow {
			sep = "->"
		}
		return g.renderExpr(n.Object) + sep + n.Name
	case ast.KindIndex:
		return g.renderExpr(n.Object) + "[" + g.renderExpr(n.Left) + "]"
	case ast.KindBinary:
		if n.Op == ast.OpAssign {
			return g.renderExpr(n.Left) + " = " + g.renderExpr(n.Right)
		}
		return "(" + g.renderExpr(n.Left) + " " + binOpText[n.Op] + " " + g.renderExpr(n.Right) + ")"
	case ast.KindUnary:
		return renderUnary(n, g.renderExpr(n.Left))
	case ast.KindCast:
		return "(" + n.TypeStr + ")(" + g.renderExpr(n.Left) + ")"
	case ast.KindSizeofType:
		return "sizeof(" + n.TypeStr + ")"
	case ast.KindSizeofExpr:
		return "sizeof(" + g.renderExpr(n.Left) + ")"
	default:
		return n.Name
	}
}

func (g *generator) renderFrameStruct(frameType string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("struct %s {\n", frameType))
	sb.WriteString("    int state;\n")
	sb.WriteString("    intptr_t ret;\n")
	for _, name := range g.order {
		sb.WriteString(fmt.Sprintf("    intptr_t %s;\n", name))
	}
	for i := range g.awaits {
		sb.WriteString(fmt.Sprintf("    intptr_t __cc_await_temp_%d;\n", i))
		sb.WriteString(fmt.Sprintf("    %s __cc_await_task_%d;\n", taskType, i))
	}
	sb.WriteString("};\n")
	return sb.String()
}

func (g *generator) renderPoll(frameType string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s_poll(struct %s* frame, intptr_t* out_value, intptr_t* out_error) {\n",
		statusType, g.fn.Name, frameType))
	sb.WriteString("switch (frame->state) {\n")
	sb.Write(g.out)
	sb.WriteString(fmt.Sprintf("case %s:\n", formatState(doneState)))
	sb.WriteString("default:\ngoto done;\n")
	sb.WriteString("}\n")
	sb.WriteString("done:\n")
	sb.WriteString("*out_value = frame->ret;\n")
	sb.WriteString(fmt.Sprintf("frame->state = %s;\n", formatState(doneState)))
	sb.WriteString(fmt.Sprintf("return %s;\n", statusReady))
	sb.WriteString("}\n")
	return sb.String()
}

func (g *generator) renderDrop(frameType string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("void %s_drop(struct %s* frame) {\n", g.fn.Name, frameType))
	for i := range g.awaits {
		sb.WriteString(fmt.Sprintf("%s(&frame->__cc_await_task_%d);\n", taskFreeFn, i))
	}
	sb.WriteString("free(frame);\n")
	sb.WriteString("}\n")
	return sb.String()
}

// renderWait implements the "optional wait function" as a best-effort
// spin over the poll function itself (spec §4.6): the runtime contract
// (spec §6) exposes no dedicated blocking primitive this generated code
// can call directly, so repeated polling is the only available
// best-effort substitute.
func (g *generator) renderWait(frameType string) string {
	return fmt.Sprintf(
		"%s %s_wait(struct %s* frame) {\n"+
			"intptr_t __cc_wait_value = 0;\n"+
			"intptr_t __cc_wait_error = 0;\n"+
			"%s __cc_wait_status;\n"+
			"while ((__cc_wait_status = %s_poll(frame, &__cc_wait_value, &__cc_wait_error)) == %s) {\n"+
			"}\n"+
			"return __cc_wait_status;\n"+
			"}\n",
		statusType, g.fn.Name, frameType, statusType, g.fn.Name, statusPending)
}

func (g *generator) renderConstructor(frameType string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s(%s) {\n", taskType, g.fn.Name, g.renderParamList()))
	sb.WriteString(fmt.Sprintf("struct %s* frame = (struct %s*)malloc(sizeof(struct %s));\n", frameType, frameType, frameType))
	sb.WriteString("frame->state = 0;\n")
	for _, param := range g.fn.Params {
		sb.WriteString(fmt.Sprintf("frame->%s = (intptr_t)(%s);\n", param.Name, param.Name))
	}
	sb.WriteString(fmt.Sprintf("return %s(%s_poll, %s_wait, frame, %s_drop);\n",
		pollMakeFn, g.fn.Name, g.fn.Name, g.fn.Name))
	sb.WriteString("}\n")
	return sb.String()
}

func (g *generator) renderParamList() string {
	parts := make([]string, len(g.fn.Params))
	for i, param := range g.fn.Params {
		parts[i] = fmt.Sprintf("%s %s", param.TypeStr, param.Name)
	}
	return strings.Join(parts, ", ")
}
