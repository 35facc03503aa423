// Package ast defines the tagged-variant compile-unit tree of spec §3:
// expressions, statements, and top-level items, each carrying a Span and
// per-node metadata. Ownership is exclusive — a Node's Children slice
// owns its elements, and the tree has no sharing or cycles.
package ast

import "github.com/ccfront/cc/internal/span"

// Kind tags a Node's variant. The families mirror spec §3 exactly:
// expressions, statements, and top-level items.
type Kind uint16

const (
	KindInvalid Kind = iota

	// Expressions.
	KindIdent
	KindIntLit
	KindStringLit
	KindCall
	KindFieldAccess // Node.Arrow selects -> over .
	KindIndex
	KindBinary
	KindUnary
	KindCast
	KindCompoundLiteral
	KindSizeofType
	KindSizeofExpr
	KindAwait
	KindTry
	KindClosureLiteral
	KindMethodCall // before UFCS lowering

	// Statements.
	KindBlock
	KindExprStmt
	KindDecl
	KindReturn
	KindIf
	KindFor
	KindWhile
	KindBreak
	KindContinue
	KindNursery
	KindSpawn
	KindDefer
	KindMatch
	KindWithDeadline

	// Top-level items.
	KindFunc
	KindTypedef
	KindStructDecl
	KindUnionDecl
	KindEnumDecl
	KindInclude

	// File root.
	KindFile
)

// Op enumerates the binary/unary operators a Binary/Unary node carries.
type Op uint8

const (
	OpNone Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpAssign
	OpNot
	OpNeg
	OpAddr
	OpDeref
	OpPreInc
	OpPreDec
	OpPostInc
	OpPostDec
)

// FuncAttr bitset flags a function declaration's attributes (spec §3,
// §4.5 "attributes do not include async/noblock").
type FuncAttr uint8

const (
	AttrNone    FuncAttr = 0
	AttrAsync   FuncAttr = 1 << 0
	AttrNoblock FuncAttr = 1 << 1
)

// Node is a single tagged-variant tree node. Fields unused by a given
// Kind are left zero; passes read only the fields relevant to the Kinds
// they handle.
type Node struct {
	Kind Kind
	Span span.Span

	// Identifier / literal payload.
	Name string // identifier text, string-literal content, typedef/struct/enum/func name
	Int  int64  // integer literal value

	// Structural children, exclusively owned.
	Children []*Node

	// Call / method-call.
	Callee   *Node // KindCall: callee expr; KindMethodCall: method name lives in Name
	Args     []*Node
	Receiver *Node // KindMethodCall only

	// Field access / index.
	Object *Node
	Arrow  bool // field access via -> instead of .

	// Binary / unary.
	Op    Op
	Left  *Node
	Right *Node // unary: unused; operand is Left

	// Cast / sizeof / decl type annotations: the written type string as
	// it appeared in source, not a resolved type.
	TypeStr string

	// Declaration.
	Init *Node // optional initializer

	// Control flow. KindMatch and KindWithDeadline reuse Cond rather than
	// adding dedicated fields: KindMatch.Cond is the scrutinee expression
	// matched against each case's Pattern; KindWithDeadline.Cond is the
	// deadline expression and KindWithDeadline.Body is the scoped block.
	Cond *Node
	Then *Node
	Else *Node
	Post *Node // for-loop post statement

	// Function declaration.
	Params    []*Node // KindDecl nodes (name + TypeStr)
	RetType   string
	Body      *Node // KindBlock
	Attrs     FuncAttr

	// Closure literal (pre-lowering).
	ClosureParams []*Node

	// Match.
	Cases []*MatchCase

	// Metadata attached post-parse by a specific pass; never required by
	// any other pass's correctness, only by diagnostics/emission.
	Meta map[string]string
}

// MatchCase is one `case pat: body` arm of an @match block (spec §4.8).
// Pattern is an Ident node named for the tag constant being matched;
// if the arm binds the variant's payload, Pattern.Init holds the
// binding Ident. A nil Pattern marks the default/else arm.
type MatchCase struct {
	Pattern *Node
	Body    *Node
}

// New allocates a Node of the given kind at sp.
func New(kind Kind, sp span.Span) *Node {
	return &Node{Kind: kind, Span: sp}
}

// SetMeta attaches a string annotation, lazily allocating the map.
func (n *Node) SetMeta(key, value string) {
	if n.Meta == nil {
		n.Meta = make(map[string]string)
	}
	n.Meta[key] = value
}

// GetMeta reads an annotation, returning "" if absent.
func (n *Node) GetMeta(key string) string {
	if n.Meta == nil {
		return ""
	}
	return n.Meta[key]
}

// Walk visits n and every descendant in preorder, calling visit on each.
// Spans are monotone with respect to preorder within a file (spec §3
// invariant), so a pass that needs "earliest first" ordering can rely on
// Walk's traversal order directly.
func Walk(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.children() {
		Walk(c, visit)
	}
}

// children enumerates every direct child pointer a Node holds, across
// all of its Kind-specific fields, so Walk need not special-case each
// Kind at the call site.
func (n *Node) children() []*Node {
	var out []*Node
	add := func(c *Node) {
		if c != nil {
			out = append(out, c)
		}
	}
	out = append(out, n.Children...)
	add(n.Callee)
	out = append(out, n.Args...)
	add(n.Receiver)
	add(n.Object)
	add(n.Left)
	add(n.Right)
	add(n.Init)
	add(n.Cond)
	add(n.Then)
	add(n.Else)
	add(n.Post)
	out = append(out, n.Params...)
	add(n.Body)
	out = append(out, n.ClosureParams...)
	for _, mc := range n.Cases {
		if mc == nil {
			continue
		}
		add(mc.Pattern)
		add(mc.Body)
	}
	return out
}

// Closure is one entry of a File's closure-definition side table (spec
// §3): a stable id, its parameters, captured identifiers, body, and one
// looked-up type string per capture.
type Closure struct {
	ID           int
	Params       []*Node
	Captures     []string
	CaptureTypes []string // parallel to Captures
	Body         *Node
	HasCaptures  bool
}

// File is a compile unit: an ordered sequence of top-level items plus
// the source filename and, after the closure pass, the closure
// definition table (spec §3).
type File struct {
	Name     string
	FileID   span.FileID
	Items    []*Node
	Closures []*Closure // keyed by Closure.ID
	IsHeader bool        // .cch vs .ccs (spec §6)
}

// NextClosureID returns the next unused closure id for this file.
func (f *File) NextClosureID() int {
	return len(f.Closures)
}

// AddClosure appends a new closure definition, assigning it the next id.
func (f *File) AddClosure(c *Closure) int {
	c.ID = f.NextClosureID()
	f.Closures = append(f.Closures, c)
	return c.ID
}

// Walk visits every top-level item (and transitively every descendant)
// in the file, in order.
func (f *File) Walk(visit func(*Node)) {
	for _, item := range f.Items {
		Walk(item, visit)
	}
}
