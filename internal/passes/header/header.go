// Package header implements the header lowering sub-pipeline (spec
// §4.7): in interface files only, it rewrites `T!E` into the mangled
// nominal name `CCResult_T_E` and `T?` into `CCOptional_T`, collects
// every distinct instantiation seen, and generates a guarded block of
// type-declaration macros so each instantiation is declared exactly
// once per transitive inclusion.
//
// Grounding: the teacher has no header/interface-file concept, so this
// pass's only teacher-derived elements are library choices — the
// de-duplication set reuses internal/strset (itself grounded on the
// teacher's xxhash-keyed trigram postings), search-path globbing uses
// doublestar the way the teacher's indexing/watcher.go matches project
// file patterns, and the "did you mean" suggestion for an unrecognized
// short name uses go-edlib the way the teacher's
// internal/semantic/fuzzy_matcher.go scores candidate similarity.
package header

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hbollon/go-edlib"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccerrors"
	"github.com/ccfront/cc/internal/editbuf"
	"github.com/ccfront/cc/internal/strset"
)

// aliasTable rewrites a fixed set of short names to their canonical
// CC-prefixed names before mangling (spec §4.7 "Type mangling").
var aliasTable = map[string]string{
	"IoError": "CCIoError",
	"Error":   "CCError",
	"Arena":   "CCArena",
	"File":    "CCFile",
	"String":  "CCString",
	"Slice":   "CCSlice",
}

// defaultBuiltinInstantiations lists instantiations the runtime's own
// headers already declare, filtered out of the generated guard block
// (spec §4.7 "De-duplication"). This is only the default passed by
// New; NewWithBuiltins lets a caller (ultimately the driver, sourcing
// the list from the runtime header it was built against) override it.
var defaultBuiltinInstantiations = []string{
	"CCResult_CCString_CCError",
	"CCOptional_CCString",
	"CCResult_int_CCError",
}

// suggestionThreshold is the minimum Levenshtein similarity (0..1) for
// an unrecognized short name to be offered as a "did you mean" note.
const suggestionThreshold = 0.6

// Instantiation is one distinct `T!E`, `T?`, or `T[:]` instantiation.
type Instantiation struct {
	Mangled string
	IsOpt   bool
	IsSlice bool
	Ok      string // mangled Ok/value/element type
	Err     string // mangled Err type; empty for Optional and Slice
}

// Pass runs the header lowering sub-pipeline over a single interface
// file, queuing rewrites onto buf and generating the guarded
// declaration block as a definition-stream entry.
type Pass struct {
	file     *ast.File
	buf      *editbuf.Buffer
	builtins []string

	seen  *strset.Set
	order []Instantiation
	err   error
}

// New returns a Pass bound to file, an interface (.cch) file, using the
// default built-in instantiation list. Calling Run on a non-header file
// is a no-op.
func New(file *ast.File, buf *editbuf.Buffer) *Pass {
	return NewWithBuiltins(file, buf, defaultBuiltinInstantiations)
}

// NewWithBuiltins is New, but with the list of instantiations the
// runtime's own headers already declare supplied by the caller instead
// of the package default (spec §9 open question: "ask the runtime at
// build time" rather than hardcode the filter list in the pass — the
// driver is expected to source this from the runtime header it was
// built against).
func NewWithBuiltins(file *ast.File, buf *editbuf.Buffer, builtins []string) *Pass {
	return &Pass{file: file, buf: buf, builtins: builtins, seen: strset.New()}
}

// Run rewrites every `T!E`/`T?`/`T[:]` annotation found in the TypeStr
// and RetType fields of the file's nodes and, at the end, queues the guarded instantiation
// block.
func (p *Pass) Run() error {
	if !p.file.IsHeader {
		return nil
	}
	for _, item := range p.file.Items {
		ast.Walk(item, p.visit)
		if p.err != nil {
			return p.err
		}
	}
	if len(p.order) == 0 {
		return nil
	}
	p.buf.AddDefinition(p.renderGuardedBlock())
	return nil
}

// visit rewrites every type-string field of n that carries a `T!E`,
// `T?`, or `T[:]` surface form, first checking each for an unrecognized short name
// close enough to a known alias to be a likely typo.
func (p *Pass) visit(n *ast.Node) {
	p.checkAliasTypo(n, n.TypeStr)
	p.checkAliasTypo(n, n.RetType)
	n.TypeStr = p.rewriteTypeStr(n.TypeStr)
	n.RetType = p.rewriteTypeStr(n.RetType)
}

// checkAliasTypo flags the first `T!E`/`T?`/`T[:]` base/Ok/Err part of
// typ that doesn't match aliasTable, isn't already a canonical `CC`-
// prefixed name, and is close enough to a known alias that SuggestAlias
// clears suggestionThreshold — almost certainly a misspelling rather
// than a deliberately distinct custom type name. Records at most one
// error on p, the first found across the whole file.
func (p *Pass) checkAliasTypo(n *ast.Node, typ string) {
	if p.err != nil {
		return
	}
	_, parts := splitSugarForm(typ)
	for _, part := range parts {
		base := strings.TrimSpace(strings.TrimRight(part, "*"))
		if base == "" {
			continue
		}
		if _, known := aliasTable[base]; known {
			continue
		}
		if strings.HasPrefix(base, "CC") {
			continue
		}
		if suggestion, ok := SuggestAlias(base); ok {
			p.err = ccerrors.NewLowerError("header", p.file.Name, n.Span,
				fmt.Sprintf("unrecognized short type name %q", base)).
				WithNote(fmt.Sprintf("did you mean %q?", suggestion))
			return
		}
	}
}

// rewriteTypeStr recognizes a single top-level `T!E`, `T?`, or `T[:]` form in
// typ and rewrites it to its mangled name, recording the instantiation.
// Types with no such surface form pass through unchanged.
func (p *Pass) rewriteTypeStr(typ string) string {
	mangled, inst, ok := Instantiate(typ)
	if !ok {
		return typ
	}
	p.record(inst)
	return mangled
}

func (p *Pass) record(inst Instantiation) {
	if p.seen.Add(inst.Mangled) {
		p.order = append(p.order, inst)
	}
}

// Instantiate recognizes a single top-level `T!E`, `T?`, or `T[:]`
// surface form in typ and returns its mangled name and the recorded
// Instantiation. This is the pipeline spec §4.8 refers to as "the same
// mangled names used by the header pipeline" — the sugar pass (source
// files) and this pass (interface files) both call it, so the two can
// never drift out of sync on naming.
func Instantiate(typ string) (mangled string, inst Instantiation, ok bool) {
	kind, parts := splitSugarForm(typ)
	switch kind {
	case sugarOptional:
		elem := mangle(canonicalAlias(parts[0]))
		name := fmt.Sprintf("CCOptional_%s", elem)
		return name, Instantiation{Mangled: name, IsOpt: true, Ok: elem}, true
	case sugarSlice:
		elem := mangle(canonicalAlias(parts[0]))
		name := fmt.Sprintf("CCSlice_%s", elem)
		return name, Instantiation{Mangled: name, IsSlice: true, Ok: elem}, true
	case sugarResult:
		okm := mangle(canonicalAlias(parts[0]))
		errm := mangle(canonicalAlias(parts[1]))
		name := fmt.Sprintf("CCResult_%s_%s", okm, errm)
		return name, Instantiation{Mangled: name, Ok: okm, Err: errm}, true
	default:
		return "", Instantiation{}, false
	}
}

// sugarKind identifies which of the three generic surface forms a type
// string uses, if any.
type sugarKind int

const (
	sugarNone sugarKind = iota
	sugarOptional
	sugarSlice
	sugarResult
)

// splitSugarForm recognizes a single top-level `T!E`, `T?`, or `T[:]`
// surface form in typ and returns its kind and unparsed base/Ok/Err
// parts, shared between Instantiate's mangling and checkAliasTypo's
// typo detection so the two can never disagree on what counts as a
// sugar form.
func splitSugarForm(typ string) (kind sugarKind, parts []string) {
	if typ == "" {
		return sugarNone, nil
	}
	trimmed := strings.TrimSpace(typ)
	if base := strings.TrimSuffix(trimmed, "?"); base != trimmed {
		return sugarOptional, []string{strings.TrimSpace(base)}
	}
	if base := strings.TrimSuffix(trimmed, "[:]"); base != trimmed {
		return sugarSlice, []string{strings.TrimSpace(base)}
	}
	if idx := strings.LastIndex(trimmed, "!"); idx >= 0 {
		return sugarResult, []string{strings.TrimSpace(trimmed[:idx]), strings.TrimSpace(trimmed[idx+1:])}
	}
	return sugarNone, nil
}

// canonicalAlias applies spec §4.7's short-name alias table to typ's
// base name, preserving any trailing pointer markers, and leaves
// unrecognized names untouched for mangle to process as-is.
func canonicalAlias(typ string) string {
	trimmed := strings.TrimSpace(typ)
	suffix := ""
	for strings.HasSuffix(trimmed, "*") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "*"))
		suffix += "*"
	}
	if canon, ok := aliasTable[trimmed]; ok {
		return canon + suffix
	}
	return typ
}

// mangle implements spec §4.7's type-mangling rule: whitespace to `_`,
// `*` to `ptr`, brackets/angle-brackets/commas to `_`, runs of `_`
// collapsed, leading/trailing `_` trimmed.
func mangle(typ string) string {
	var sb strings.Builder
	for _, r := range typ {
		switch {
		case r == '*':
			sb.WriteString("ptr")
		case r == ' ' || r == '\t' || r == '\n' ||
			r == '[' || r == ']' || r == '<' || r == '>' || r == ',':
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	collapsed := collapseUnderscores(sb.String())
	return strings.Trim(collapsed, "_")
}

func collapseUnderscores(s string) string {
	var sb strings.Builder
	prevUnderscore := false
	for _, r := range s {
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// renderGuardedBlock emits one `#ifndef`-guarded declaration macro per
// distinct, non-built-in instantiation collected, in first-seen order
// (spec §4.7 "De-duplication", "Generate a guarded block ... so each
// instantiation is declared exactly once per transitive inclusion").
func (p *Pass) renderGuardedBlock() string {
	builtins := strset.New()
	for _, b := range p.builtins {
		builtins.Add(b)
	}

	var sb strings.Builder
	for _, inst := range p.order {
		if builtins.Has(inst.Mangled) {
			continue
		}
		guard := inst.Mangled + "_DEFINED"
		sb.WriteString(fmt.Sprintf("#ifndef %s\n#define %s\n", guard, guard))
		switch {
		case inst.IsOpt:
			sb.WriteString(fmt.Sprintf("CC_DECLARE_OPTIONAL(%s, %s)\n", inst.Mangled, inst.Ok))
		case inst.IsSlice:
			sb.WriteString(fmt.Sprintf("CC_DECLARE_SLICE(%s, %s)\n", inst.Mangled, inst.Ok))
		default:
			sb.WriteString(fmt.Sprintf("CC_DECLARE_RESULT(%s, %s, %s)\n", inst.Mangled, inst.Ok, inst.Err))
		}
		sb.WriteString("#endif\n")
	}
	return sb.String()
}

// SuggestAlias returns the closest known alias-table short name to
// name by Levenshtein similarity, for a "did you mean" diagnostic note
// when an interface file references an unrecognized short type name
// (spec §4.7 "A small alias table rewrites a fixed set of short
// names"). ok is false if nothing in the table clears
// suggestionThreshold.
func SuggestAlias(name string) (suggestion string, ok bool) {
	best := float32(0)
	for candidate := range aliasTable {
		score, err := edlib.StringsSimilarity(name, candidate, edlib.Levenshtein)
		if err != nil {
			continue
		}
		if score > best {
			best = score
			suggestion = candidate
		}
	}
	if best < suggestionThreshold {
		return "", false
	}
	return suggestion, true
}

// ResolveSearchPaths expands a `.cc.kdl` project's header search-path
// globs (e.g. "**/*.cch") against the include roots, returning the
// sorted set of interface files found (spec §4.7 context: interface
// files are found via the project's configured search paths). Nothing
// in this module calls it; the driver compiles only the files it is
// given.
func ResolveSearchPaths(roots []string, pattern string) ([]string, error) {
	var out []string
	for _, root := range roots {
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return nil, ccerrors.NewInternalError("header",
				fmt.Sprintf("invalid search pattern %q under %q: %v", pattern, root, err))
		}
		for _, m := range matches {
			out = append(out, root+"/"+m)
		}
	}
	sort.Strings(out)
	return out, nil
}
