// Package cparse turns CC source text into an internal/ast.File by
// driving go-tree-sitter over the tree-sitter-cpp grammar — CC's surface
// syntax is "a C dialect" (spec §2), so the concrete-syntax tree of any
// translation unit is, for everything except the five extension
// features, an ordinary C/C++ parse tree. Grounded on
// internal/parser/parser_language_setup.go's per-language setup
// (tree_sitter.NewParser / Language() / NewLanguage / SetLanguage) and
// internal/parser/parser.go's node-walking idioms (Kind(), ChildCount(),
// Child(i), ChildByFieldName, StartByte/EndByte, StartPosition, raw
// byte-range text extraction as the universal fallback).
//
// Scope. tree-sitter-cpp has no grammar for CC's five extensions, so
// this pass fixes a concrete C++-legal spelling for each one rather than
// inventing unparseable syntax:
//   - closures are C++ lambda expressions: `[](int x) { return x; }`.
//     The bracket capture list itself is ignored — closure.go recomputes
//     the real capture set from free variables in the body, so cparse
//     only needs the parameter list and body.
//   - a nursery block is an attributed compound statement,
//     `[[cc::nursery]] { ... }`; a spawn statement is an attributed
//     expression statement, `[[cc::spawn]] expr;`.
//   - an async function carries a `[[cc::async]]` attribute on its
//     function-definition; `await` and `try` are ordinary call
//     expressions recognized by callee name (`await(expr)`, `try(expr)`)
//     — both are already valid C++ call syntax, so no grammar change is
//     needed to parse them, only to reinterpret them afterward.
//   - `@match` reuses C's own `switch`/`case`/`default` — a tagged-union
//     dispatch is structurally a switch over the tag field, and case
//     bodies become match-arm bodies directly.
//   - the `T?`/`T!E`/`T[:]` type-suffix sugar is carried as raw source
//     text in TypeStr, exactly as internal/passes/header.Instantiate
//     already expects to receive it; a type string tree-sitter-cpp can't
//     parse as a type is recovered by taking its raw byte range instead
//     of descending into the (possibly ERROR) subtree.
//
// Global variable declarations and unrecognized top-level forms are
// skipped rather than guessed at: spec's modules concern function
// bodies and the five extension features, not arbitrary global state.
package cparse

import (
	"fmt"
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccerrors"
	"github.com/ccfront/cc/internal/span"
)

// Parse converts name's source text into an ast.File. isHeader marks the
// file as a `.cch` interface file for internal/passes/header.
func Parse(name string, src []byte, isHeader bool) (*ast.File, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	language := tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	if err := parser.SetLanguage(language); err != nil {
		return nil, ccerrors.NewInternalError("cparse", "tree-sitter-cpp language init: "+err.Error())
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, ccerrors.NewInternalError("cparse", "tree-sitter returned no parse tree")
	}
	defer tree.Close()

	idx := span.NewIndex(1, name, src)
	p := &parser_{src: src, idx: idx}

	file := &ast.File{Name: name, FileID: idx.File(), IsHeader: isHeader}
	root := tree.RootNode()
	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		item, err := p.convertItem(child)
		if err != nil {
			return nil, err
		}
		if item != nil {
			file.Items = append(file.Items, item)
		}
	}
	return file, nil
}

type parser_ struct {
	src []byte
	idx *span.Index
}

// namedChildren collects a node's named children (tree-sitter's term for
// grammar-rule children, as opposed to anonymous punctuation/keyword
// tokens), used everywhere this pass needs to iterate a node's
// meaningful substructure without hand-filtering tokens like "{"/";".
func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	count := n.NamedChildCount()
	out := make([]*tree_sitter.Node, 0, count)
	for i := uint(0); i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func (p *parser_) text(n *tree_sitter.Node) string {
	return string(p.src[n.StartByte():n.EndByte()])
}

func (p *parser_) span(n *tree_sitter.Node) span.Span {
	return p.idx.Span(int(n.StartByte()), int(n.EndByte()))
}

func (p *parser_) errf(n *tree_sitter.Node, format string, args ...any) error {
	return ccerrors.NewLowerError("cparse", p.idx.Name(), p.span(n), fmt.Sprintf(format, args...))
}

// convertItem handles one translation_unit child.
func (p *parser_) convertItem(n *tree_sitter.Node) (*ast.Node, error) {
	switch n.Kind() {
	case "preproc_include":
		return p.convertInclude(n), nil
	case "function_definition":
		return p.convertFunc(n)
	case "type_definition":
		return p.convertTypedef(n), nil
	case "struct_specifier":
		return p.convertAggregate(ast.KindStructDecl, n), nil
	case "union_specifier":
		return p.convertAggregate(ast.KindUnionDecl, n), nil
	case "enum_specifier":
		return p.convertAggregate(ast.KindEnumDecl, n), nil
	case "declaration":
		// A bare `struct/union/enum Name { ... };` with no declarator
		// parses as a declaration wrapping the aggregate specifier;
		// anything else is a global variable, which carries no AST
		// representation (see the package doc comment's Scope note).
		if typeNode := n.ChildByFieldName("type"); typeNode != nil && n.ChildByFieldName("declarator") == nil {
			switch typeNode.Kind() {
			case "struct_specifier":
				return p.convertAggregate(ast.KindStructDecl, typeNode), nil
			case "union_specifier":
				return p.convertAggregate(ast.KindUnionDecl, typeNode), nil
			case "enum_specifier":
				return p.convertAggregate(ast.KindEnumDecl, typeNode), nil
			}
		}
		return nil, nil
	case "comment", ";":
		return nil, nil
	default:
		return nil, nil
	}
}

func (p *parser_) convertInclude(n *tree_sitter.Node) *ast.Node {
	item := ast.New(ast.KindInclude, p.span(n))
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return item
	}
	raw := p.text(pathNode)
	if strings.HasPrefix(raw, "<") {
		item.SetMeta("angle", "1")
		item.Name = strings.Trim(raw, "<>")
	} else {
		item.Name = strings.Trim(raw, `"`)
	}
	return item
}

func (p *parser_) convertTypedef(n *tree_sitter.Node) *ast.Node {
	item := ast.New(ast.KindTypedef, p.span(n))
	typeNode := n.ChildByFieldName("type")
	declNode := n.ChildByFieldName("declarator")
	if declNode != nil {
		item.Name = p.text(declNode)
	}
	if typeNode != nil {
		item.TypeStr = p.text(typeNode)
	}
	return item
}

func (p *parser_) convertAggregate(kind ast.Kind, n *tree_sitter.Node) *ast.Node {
	item := ast.New(kind, p.span(n))
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		item.Name = p.text(nameNode)
	}
	// The body (field/enumerator list) is carried as opaque text, the
	// same convention internal/emit documents for these Kinds: no pass
	// before emission ever looks inside a struct/union/enum body.
	if bodyNode := n.ChildByFieldName("body"); bodyNode != nil {
		item.TypeStr = p.text(bodyNode)
	}
	return item
}

func (p *parser_) convertFunc(n *tree_sitter.Node) (*ast.Node, error) {
	fn := ast.New(ast.KindFunc, p.span(n))

	typeNode := n.ChildByFieldName("type")
	declNode := n.ChildByFieldName("declarator")
	if declNode == nil {
		return nil, p.errf(n, "function definition has no declarator")
	}
	retType := ""
	if typeNode != nil {
		retType = p.text(typeNode)
	}

	for _, a := range namedChildren(n) {
		if a.Kind() == "attribute_declaration" {
			if hasAttribute(p.text(a), "async") {
				fn.Attrs |= ast.AttrAsync
			}
			if hasAttribute(p.text(a), "noblock") {
				fn.Attrs |= ast.AttrNoblock
			}
		}
	}

	// Unwrap pointer/reference declarators so the return type carries
	// the written "*"/"&" suffix and the innermost declarator is the
	// function_declarator.
	inner := declNode
	for inner.Kind() == "pointer_declarator" || inner.Kind() == "reference_declarator" {
		marker := p.text(inner)[:1]
		retType += marker
		next := inner.ChildByFieldName("declarator")
		if next == nil {
			break
		}
		inner = next
	}
	if inner.Kind() != "function_declarator" {
		return nil, p.errf(n, "unsupported function declarator shape %q", inner.Kind())
	}
	fn.RetType = retType

	nameNode := inner.ChildByFieldName("declarator")
	if nameNode != nil {
		fn.Name = p.text(nameNode)
	}
	if params := inner.ChildByFieldName("parameters"); params != nil {
		ps, err := p.convertParams(params)
		if err != nil {
			return nil, err
		}
		fn.Params = ps
	}

	bodyNode := n.ChildByFieldName("body")
	if bodyNode == nil {
		return nil, p.errf(n, "function %q has no body", fn.Name)
	}
	body, err := p.convertStmt(bodyNode)
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func hasAttribute(attrText, name string) bool {
	return strings.Contains(attrText, "cc::"+name)
}

func (p *parser_) convertParams(n *tree_sitter.Node) ([]*ast.Node, error) {
	var out []*ast.Node
	for _, c := range namedChildren(n) {
		if c.Kind() != "parameter_declaration" {
			continue
		}
		param := ast.New(ast.KindDecl, p.span(c))
		typeNode := c.ChildByFieldName("type")
		declNode := c.ChildByFieldName("declarator")
		typeStr := ""
		if typeNode != nil {
			typeStr = p.text(typeNode)
		}
		if declNode != nil {
			inner := declNode
			for inner.Kind() == "pointer_declarator" || inner.Kind() == "reference_declarator" {
				typeStr += p.text(inner)[:1]
				next := inner.ChildByFieldName("declarator")
				if next == nil {
					break
				}
				inner = next
			}
			param.Name = p.text(inner)
		}
		param.TypeStr = typeStr
		out = append(out, param)
	}
	return out, nil
}

// convertStmt converts any statement node, including the attributed
// forms standing in for nursery/spawn (see the package Scope note).
func (p *parser_) convertStmt(n *tree_sitter.Node) (*ast.Node, error) {
	switch n.Kind() {
	case "compound_statement":
		block := ast.New(ast.KindBlock, p.span(n))
		for _, c := range namedChildren(n) {
			stmt, err := p.convertStmt(c)
			if err != nil {
				return nil, err
			}
			if stmt != nil {
				block.Children = append(block.Children, stmt)
			}
		}
		return block, nil
	case "declaration":
		return p.convertLocalDecl(n)
	case "expression_statement":
		stmt := ast.New(ast.KindExprStmt, p.span(n))
		if c := n.NamedChild(0); c != nil {
			expr, err := p.convertExpr(c)
			if err != nil {
				return nil, err
			}
			stmt.Init = expr
		}
		return stmt, nil
	case "return_statement":
		stmt := ast.New(ast.KindReturn, p.span(n))
		if c := n.NamedChild(0); c != nil {
			expr, err := p.convertExpr(c)
			if err != nil {
				return nil, err
			}
			stmt.Init = expr
		}
		return stmt, nil
	case "break_statement":
		return ast.New(ast.KindBreak, p.span(n)), nil
	case "continue_statement":
		return ast.New(ast.KindContinue, p.span(n)), nil
	case "if_statement":
		return p.convertIf(n)
	case "while_statement":
		return p.convertWhile(n)
	case "for_statement":
		return p.convertFor(n)
	case "switch_statement":
		return p.convertMatch(n)
	case "attributed_statement":
		return p.convertAttributedStmt(n)
	default:
		return nil, p.errf(n, "unsupported statement kind %q", n.Kind())
	}
}

func (p *parser_) convertLocalDecl(n *tree_sitter.Node) (*ast.Node, error) {
	typeNode := n.ChildByFieldName("type")
	typeStr := ""
	if typeNode != nil {
		typeStr = p.text(typeNode)
	}
	// A declaration node can carry multiple comma-separated declarators;
	// CC's (and this pass's) supported surface is one declarator per
	// statement, matching ast.KindDecl's single-Name shape.
	var declNode *tree_sitter.Node
	for _, c := range namedChildren(n) {
		if c.Kind() == "init_declarator" || c.Kind() == "identifier" ||
			c.Kind() == "pointer_declarator" || c.Kind() == "array_declarator" {
			declNode = c
			break
		}
	}
	if declNode == nil {
		return nil, p.errf(n, "declaration has no declarator")
	}

	decl := ast.New(ast.KindDecl, p.span(n))
	target := declNode
	var initExpr *tree_sitter.Node
	if declNode.Kind() == "init_declarator" {
		target = declNode.ChildByFieldName("declarator")
		initExpr = declNode.ChildByFieldName("value")
	}
	for target.Kind() == "pointer_declarator" || target.Kind() == "array_declarator" {
		if target.Kind() == "pointer_declarator" {
			typeStr += "*"
			next := target.ChildByFieldName("declarator")
			if next == nil {
				break
			}
			target = next
		} else {
			typeStr += "[:]"
			next := target.ChildByFieldName("declarator")
			if next == nil {
				break
			}
			target = next
		}
	}
	decl.Name = p.text(target)
	decl.TypeStr = typeStr
	if initExpr != nil {
		expr, err := p.convertExpr(initExpr)
		if err != nil {
			return nil, err
		}
		decl.Init = expr
	}
	return decl, nil
}

func (p *parser_) convertIf(n *tree_sitter.Node) (*ast.Node, error) {
	stmt := ast.New(ast.KindIf, p.span(n))
	cond, err := p.convertExpr(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	stmt.Cond = cond
	then, err := p.convertStmt(n.ChildByFieldName("consequence"))
	if err != nil {
		return nil, err
	}
	stmt.Then = then
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		els, err := p.convertStmt(alt)
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	return stmt, nil
}

func (p *parser_) convertWhile(n *tree_sitter.Node) (*ast.Node, error) {
	stmt := ast.New(ast.KindWhile, p.span(n))
	cond, err := p.convertExpr(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	stmt.Cond = cond
	body, err := p.convertStmt(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	return stmt, nil
}

func (p *parser_) convertFor(n *tree_sitter.Node) (*ast.Node, error) {
	stmt := ast.New(ast.KindFor, p.span(n))
	if init := n.ChildByFieldName("initializer"); init != nil {
		if init.Kind() == "declaration" {
			d, err := p.convertLocalDecl(init)
			if err != nil {
				return nil, err
			}
			stmt.Init = d
		} else {
			e, err := p.convertExpr(init)
			if err != nil {
				return nil, err
			}
			stmt.Init = e
		}
	}
	if cond := n.ChildByFieldName("condition"); cond != nil {
		e, err := p.convertExpr(cond)
		if err != nil {
			return nil, err
		}
		stmt.Cond = e
	}
	if post := n.ChildByFieldName("update"); post != nil {
		e, err := p.convertExpr(post)
		if err != nil {
			return nil, err
		}
		stmt.Post = e
	}
	body, err := p.convertStmt(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	return stmt, nil
}

// convertMatch lowers a switch_statement into a KindMatch node: each
// case_statement becomes a MatchCase whose Pattern is the case value
// (an Ident naming the tag constant) and whose Body is a synthesized
// block of the case's own statement children, stopping at the next
// case/default (tree-sitter-cpp's switch grammar attaches a case's
// statements as its own children rather than nesting them).
func (p *parser_) convertMatch(n *tree_sitter.Node) (*ast.Node, error) {
	stmt := ast.New(ast.KindMatch, p.span(n))
	cond, err := p.convertExpr(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	stmt.Cond = cond

	bodyNode := n.ChildByFieldName("body")
	if bodyNode == nil {
		return stmt, nil
	}
	for _, c := range namedChildren(bodyNode) {
		if c.Kind() != "case_statement" {
			continue
		}
		mc := &ast.MatchCase{}
		if valueNode := c.ChildByFieldName("value"); valueNode != nil {
			pattern, err := p.convertExpr(valueNode)
			if err != nil {
				return nil, err
			}
			mc.Pattern = pattern
		}
		block := ast.New(ast.KindBlock, p.span(c))
		for _, s := range namedChildren(c) {
			if s.Kind() == "value" {
				continue
			}
			stmtNode, err := p.convertStmt(s)
			if err != nil {
				continue // non-statement children (e.g. the case value) are skipped
			}
			if stmtNode != nil {
				block.Children = append(block.Children, stmtNode)
			}
		}
		mc.Body = block
		stmt.Cases = append(stmt.Cases, mc)
	}
	return stmt, nil
}

// convertAttributedStmt recognizes the `[[cc::nursery]]`/`[[cc::spawn]]`
// spellings documented in the package Scope note; any other attribute
// is dropped and the underlying statement is converted normally.
func (p *parser_) convertAttributedStmt(n *tree_sitter.Node) (*ast.Node, error) {
	var attrText string
	var inner *tree_sitter.Node
	for _, c := range namedChildren(n) {
		if c.Kind() == "attribute_declaration" {
			attrText = p.text(c)
		} else {
			inner = c
		}
	}
	if inner == nil {
		return nil, p.errf(n, "attributed statement has no underlying statement")
	}

	switch {
	case hasAttribute(attrText, "nursery"):
		body, err := p.convertStmt(inner)
		if err != nil {
			return nil, err
		}
		stmt := ast.New(ast.KindNursery, p.span(n))
		stmt.Body = body
		return stmt, nil
	case hasAttribute(attrText, "spawn"):
		underlying, err := p.convertStmt(inner)
		if err != nil {
			return nil, err
		}
		stmt := ast.New(ast.KindSpawn, p.span(n))
		stmt.Init = underlying.Init // expression_statement's expression
		return stmt, nil
	default:
		return p.convertStmt(inner)
	}
}

var binOps = map[string]ast.Op{
	"+": ast.OpAdd, "-": ast.OpSub, "*": ast.OpMul, "/": ast.OpDiv, "%": ast.OpMod,
	"==": ast.OpEq, "!=": ast.OpNe, "<": ast.OpLt, "<=": ast.OpLe, ">": ast.OpGt, ">=": ast.OpGe,
	"&&": ast.OpAnd, "||": ast.OpOr,
	"&": ast.OpBitAnd, "|": ast.OpBitOr, "^": ast.OpBitXor, "<<": ast.OpShl, ">>": ast.OpShr,
	"=": ast.OpAssign,
}

var unaryOps = map[string]ast.Op{
	"!": ast.OpNot, "-": ast.OpNeg, "&": ast.OpAddr, "*": ast.OpDeref,
}

func (p *parser_) convertExpr(n *tree_sitter.Node) (*ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind() {
	case "identifier", "field_identifier", "true", "false":
		id := ast.New(ast.KindIdent, p.span(n))
		id.Name = p.text(n)
		return id, nil
	case "number_literal":
		lit := ast.New(ast.KindIntLit, p.span(n))
		v, _ := strconv.ParseInt(strings.TrimRight(p.text(n), "uUlL"), 0, 64)
		lit.Int = v
		return lit, nil
	case "string_literal", "raw_string_literal":
		lit := ast.New(ast.KindStringLit, p.span(n))
		lit.Name = unquoteCString(p.text(n))
		return lit, nil
	case "parenthesized_expression":
		return p.convertExpr(n.NamedChild(0))
	case "call_expression":
		return p.convertCall(n)
	case "field_expression":
		return p.convertFieldAccess(n)
	case "subscript_expression":
		idx := ast.New(ast.KindIndex, p.span(n))
		obj, err := p.convertExpr(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		idx.Object = obj
		key, err := p.convertExpr(n.ChildByFieldName("index"))
		if err != nil {
			return nil, err
		}
		idx.Left = key
		return idx, nil
	case "binary_expression", "assignment_expression":
		return p.convertBinary(n)
	case "unary_expression":
		return p.convertUnary(n)
	case "update_expression":
		return p.convertUpdate(n)
	case "cast_expression":
		c := ast.New(ast.KindCast, p.span(n))
		if t := n.ChildByFieldName("type"); t != nil {
			c.TypeStr = p.text(t)
		}
		operand, err := p.convertExpr(n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		c.Left = operand
		return c, nil
	case "sizeof_expression":
		if t := n.ChildByFieldName("type"); t != nil {
			s := ast.New(ast.KindSizeofType, p.span(n))
			s.TypeStr = p.text(t)
			return s, nil
		}
		s := ast.New(ast.KindSizeofExpr, p.span(n))
		operand, err := p.convertExpr(n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		s.Left = operand
		return s, nil
	case "lambda_expression":
		return p.convertLambda(n)
	default:
		return nil, p.errf(n, "unsupported expression kind %q", n.Kind())
	}
}

// convertCall recognizes `await(expr)`/`try(expr)` as KindAwait/KindTry
// and an object-dot-method call as a pre-UFCS KindMethodCall; everything
// else is an ordinary KindCall.
func (p *parser_) convertCall(n *tree_sitter.Node) (*ast.Node, error) {
	fnNode := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	args, err := p.convertArgs(argsNode)
	if err != nil {
		return nil, err
	}

	if fnNode.Kind() == "identifier" {
		name := p.text(fnNode)
		switch name {
		case "await":
			if len(args) != 1 {
				return nil, p.errf(n, "await() takes exactly one argument")
			}
			a := ast.New(ast.KindAwait, p.span(n))
			a.Left = args[0]
			return a, nil
		case "try":
			if len(args) != 1 {
				return nil, p.errf(n, "try() takes exactly one argument")
			}
			t := ast.New(ast.KindTry, p.span(n))
			t.Left = args[0]
			return t, nil
		}
	}

	if fnNode.Kind() == "field_expression" {
		recvNode := fnNode.ChildByFieldName("argument")
		fieldNode := fnNode.ChildByFieldName("field")
		recv, err := p.convertExpr(recvNode)
		if err != nil {
			return nil, err
		}
		mc := ast.New(ast.KindMethodCall, p.span(n))
		mc.Receiver = recv
		if fieldNode != nil {
			mc.Name = p.text(fieldNode)
		}
		mc.Args = args
		return mc, nil
	}

	call := ast.New(ast.KindCall, p.span(n))
	callee, err := p.convertExpr(fnNode)
	if err != nil {
		return nil, err
	}
	call.Callee = callee
	call.Args = args
	return call, nil
}

func (p *parser_) convertArgs(n *tree_sitter.Node) ([]*ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	var out []*ast.Node
	for _, c := range namedChildren(n) {
		a, err := p.convertExpr(c)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (p *parser_) convertFieldAccess(n *tree_sitter.Node) (*ast.Node, error) {
	fa := ast.New(ast.KindFieldAccess, p.span(n))
	obj, err := p.convertExpr(n.ChildByFieldName("argument"))
	if err != nil {
		return nil, err
	}
	fa.Object = obj
	if fieldNode := n.ChildByFieldName("field"); fieldNode != nil {
		fa.Name = p.text(fieldNode)
	}
	if opNode := n.ChildByFieldName("operator"); opNode != nil {
		fa.Arrow = p.text(opNode) == "->"
	} else {
		fa.Arrow = strings.Contains(p.text(n), "->")
	}
	return fa, nil
}

func (p *parser_) convertBinary(n *tree_sitter.Node) (*ast.Node, error) {
	left, err := p.convertExpr(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}
	right, err := p.convertExpr(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}
	opText := ""
	if opNode := n.ChildByFieldName("operator"); opNode != nil {
		opText = p.text(opNode)
	} else if n.ChildCount() >= 3 {
		opText = n.Child(1).Kind()
	}
	op, ok := binOps[opText]
	if !ok {
		return nil, p.errf(n, "unsupported binary operator %q", opText)
	}
	b := ast.New(ast.KindBinary, p.span(n))
	b.Op = op
	b.Left = left
	b.Right = right
	return b, nil
}

func (p *parser_) convertUnary(n *tree_sitter.Node) (*ast.Node, error) {
	operand, err := p.convertExpr(n.ChildByFieldName("argument"))
	if err != nil {
		return nil, err
	}
	opText := ""
	if opNode := n.ChildByFieldName("operator"); opNode != nil {
		opText = p.text(opNode)
	} else if n.ChildCount() > 0 {
		opText = n.Child(0).Kind()
	}
	op, ok := unaryOps[opText]
	if !ok {
		return nil, p.errf(n, "unsupported unary operator %q", opText)
	}
	u := ast.New(ast.KindUnary, p.span(n))
	u.Op = op
	u.Left = operand
	return u, nil
}

func (p *parser_) convertUpdate(n *tree_sitter.Node) (*ast.Node, error) {
	operand, err := p.convertExpr(n.ChildByFieldName("argument"))
	if err != nil {
		return nil, err
	}
	opText := ""
	if opNode := n.ChildByFieldName("operator"); opNode != nil {
		opText = p.text(opNode)
	}
	prefix := n.ChildCount() > 0 && n.Child(0).Kind() == opText

	u := ast.New(ast.KindUnary, p.span(n))
	u.Left = operand
	switch {
	case opText == "++" && prefix:
		u.Op = ast.OpPreInc
	case opText == "++":
		u.Op = ast.OpPostInc
	case opText == "--" && prefix:
		u.Op = ast.OpPreDec
	case opText == "--":
		u.Op = ast.OpPostDec
	default:
		return nil, p.errf(n, "unsupported update operator %q", opText)
	}
	return u, nil
}

func (p *parser_) convertLambda(n *tree_sitter.Node) (*ast.Node, error) {
	lit := ast.New(ast.KindClosureLiteral, p.span(n))
	if declNode := n.ChildByFieldName("declarator"); declNode != nil {
		if params := declNode.ChildByFieldName("parameters"); params != nil {
			ps, err := p.convertParams(params)
			if err != nil {
				return nil, err
			}
			lit.ClosureParams = ps
		}
	}
	bodyNode := n.ChildByFieldName("body")
	if bodyNode == nil {
		return nil, p.errf(n, "lambda has no body")
	}
	body, err := p.convertStmt(bodyNode)
	if err != nil {
		return nil, err
	}
	lit.Body = body
	return lit, nil
}

func unquoteCString(raw string) string {
	s := strings.TrimPrefix(raw, "\"")
	s = strings.TrimSuffix(s, "\"")
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			default:
				sb.WriteByte(s[i])
			}
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
