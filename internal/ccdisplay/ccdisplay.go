// Package ccdisplay implements the `--dump-ast` tree printer: a plain
// text rendering of a compile unit's tree for debugging a pass
// in-between rewrites. Adapted from the teacher's
// internal/display/tree_formatter.go — same FormatterOptions shape and
// recursive branch-drawing formatNode — now walking internal/ast.Node
// instead of the teacher's types.FunctionTree/TreeNode, and dropping
// the teacher's risk-score/agent-mode decorations, which have no
// analogue on a syntax tree.
package ccdisplay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ccfront/cc/internal/ast"
)

// FormatterOptions controls tree formatting.
type FormatterOptions struct {
	Format    string // "text", "json", "compact"
	ShowLines bool   // show "[file:line]" after each node
	MaxDepth  int    // 0 means unlimited
	Indent    string
}

// TreeFormatter formats an ast.File for display.
type TreeFormatter struct {
	options FormatterOptions
}

// NewTreeFormatter builds a formatter, defaulting Indent to two spaces.
func NewTreeFormatter(options FormatterOptions) *TreeFormatter {
	if options.Indent == "" {
		options.Indent = "  "
	}
	return &TreeFormatter{options: options}
}

// Format renders file's top-level items as a forest, one tree per item.
func (tf *TreeFormatter) Format(file *ast.File) string {
	if file == nil {
		return "No tree data available"
	}
	switch tf.options.Format {
	case "json":
		return tf.formatJSON(file)
	case "compact":
		return tf.formatCompact(file)
	default:
		return tf.formatText(file)
	}
}

func (tf *TreeFormatter) formatText(file *ast.File) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Tree for '%s'\n", file.Name))
	sb.WriteString(fmt.Sprintf("Top-level items: %d, Closures: %d\n\n", len(file.Items), len(file.Closures)))

	for i, item := range file.Items {
		tf.formatNode(&sb, file.Name, item, "", i == len(file.Items)-1, true, 0)
	}
	for _, def := range file.Closures {
		tf.formatClosure(&sb, file.Name, def)
	}
	return sb.String()
}

func (tf *TreeFormatter) formatClosure(sb *strings.Builder, fileName string, def *ast.Closure) {
	sb.WriteString(fmt.Sprintf("→ closure#%d (captures=%s)\n", def.ID, strings.Join(def.Captures, ",")))
	if def.Body != nil {
		tf.formatNode(sb, fileName, def.Body, "  ", true, false, 1)
	}
}

// formatNode recursively formats a node using the teacher's
// branch-character scheme (→ for the root of a tree, └─→/├─→ for the
// last/non-last child at any other depth).
func (tf *TreeFormatter) formatNode(sb *strings.Builder, fileName string, node *ast.Node, prefix string, isLast, isRoot bool, depth int) {
	if node == nil {
		return
	}
	if tf.options.MaxDepth > 0 && depth > tf.options.MaxDepth {
		return
	}

	var branch string
	switch {
	case isRoot:
		branch = "→ "
	case isLast:
		branch = "└─→ "
	default:
		branch = "├─→ "
	}

	sb.WriteString(prefix)
	sb.WriteString(branch)
	sb.WriteString(describeNode(node))
	if tf.options.ShowLines && node.Span.Begin.Line > 0 {
		sb.WriteString(fmt.Sprintf(" [%s:%d]", fileName, node.Span.Begin.Line))
	}
	sb.WriteString(fmt.Sprintf(" (depth=%d)", depth))
	sb.WriteString("\n")

	children := node.Children
	if len(children) == 0 {
		children = fallbackChildren(node)
	}
	childCount := len(children)
	for i, child := range children {
		isLastChild := i == childCount-1
		var childPrefix string
		if isRoot || isLast {
			childPrefix = prefix + "  "
		} else {
			childPrefix = prefix + "│ "
		}
		tf.formatNode(sb, fileName, child, childPrefix, isLastChild, false, depth+1)
	}
}

// fallbackChildren recovers a node's structural children for Kinds that
// store them outside the shared Children slice (KindFunc.Body,
// KindIf.Cond/Then/Else, and so on) — the same field enumeration
// ast.Walk's unexported children() helper performs, duplicated here
// since that helper isn't exported.
func fallbackChildren(n *ast.Node) []*ast.Node {
	var out []*ast.Node
	add := func(c *ast.Node) {
		if c != nil {
			out = append(out, c)
		}
	}
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
	for _, c := range n.Cases {
		if c != nil {
			add(c.Pattern)
			add(c.Body)
		}
	}
	return out
}

func describeNode(n *ast.Node) string {
	name := kindName(n.Kind)
	if n.Name != "" {
		return fmt.Sprintf("%s %q", name, n.Name)
	}
	return name
}

var kindNames = map[ast.Kind]string{
	ast.KindIdent: "Ident", ast.KindIntLit: "IntLit", ast.KindStringLit: "StringLit",
	ast.KindCall: "Call", ast.KindFieldAccess: "FieldAccess", ast.KindIndex: "Index",
	ast.KindBinary: "Binary", ast.KindUnary: "Unary", ast.KindCast: "Cast",
	ast.KindCompoundLiteral: "CompoundLiteral", ast.KindSizeofType: "SizeofType",
	ast.KindSizeofExpr: "SizeofExpr", ast.KindAwait: "Await", ast.KindTry: "Try",
	ast.KindClosureLiteral: "ClosureLiteral", ast.KindMethodCall: "MethodCall",
	ast.KindBlock: "Block", ast.KindExprStmt: "ExprStmt", ast.KindDecl: "Decl",
	ast.KindReturn: "Return", ast.KindIf: "If", ast.KindFor: "For", ast.KindWhile: "While",
	ast.KindBreak: "Break", ast.KindContinue: "Continue", ast.KindNursery: "Nursery",
	ast.KindSpawn: "Spawn", ast.KindDefer: "Defer", ast.KindMatch: "Match",
	ast.KindWithDeadline: "WithDeadline", ast.KindFunc: "Func", ast.KindTypedef: "Typedef",
	ast.KindStructDecl: "StructDecl", ast.KindUnionDecl: "UnionDecl", ast.KindEnumDecl: "EnumDecl",
	ast.KindInclude: "Include", ast.KindFile: "File",
}

func kindName(k ast.Kind) string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

func (tf *TreeFormatter) formatCompact(file *ast.File) string {
	var parts []string
	for _, item := range file.Items {
		parts = append(parts, compactNode(item))
	}
	return strings.Join(parts, " ")
}

func compactNode(n *ast.Node) string {
	if n == nil {
		return "_"
	}
	children := n.Children
	if len(children) == 0 {
		children = fallbackChildren(n)
	}
	if len(children) == 0 {
		return kindName(n.Kind)
	}
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = compactNode(c)
	}
	return fmt.Sprintf("(%s %s)", kindName(n.Kind), strings.Join(parts, " "))
}

func (tf *TreeFormatter) formatJSON(file *ast.File) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString(fmt.Sprintf("  %q: %q,\n", "file", file.Name))
	sb.WriteString(fmt.Sprintf("  %q: [\n", "items"))
	for i, item := range file.Items {
		sb.WriteString("    ")
		writeJSONNode(&sb, item, "    ")
		if i < len(file.Items)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  ]\n}\n")
	return sb.String()
}

func writeJSONNode(sb *strings.Builder, n *ast.Node, indent string) {
	if n == nil {
		sb.WriteString("null")
		return
	}
	sb.WriteString("{")
	sb.WriteString(fmt.Sprintf(`"kind": %q`, kindName(n.Kind)))
	if n.Name != "" {
		sb.WriteString(fmt.Sprintf(`, "name": %q`, n.Name))
	}
	children := n.Children
	if len(children) == 0 {
		children = fallbackChildren(n)
	}
	if len(children) > 0 {
		sb.WriteString(`, "children": [`)
		childIndent := indent + "  "
		for i, c := range children {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeJSONNode(sb, c, childIndent)
		}
		sb.WriteString("]")
	}
	sb.WriteString("}")
}
