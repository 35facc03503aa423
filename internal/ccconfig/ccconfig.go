// Package ccconfig loads a `.cc.kdl` project config: include/header
// search roots, the runtime header path and include prefixes, the header
// pass's built-in instantiation list, and per-feature toggles (parsed
// and queryable through FeatureEnabled; no pass reads them). Adapted from the teacher's
// internal/config/kdl_config.go (kdl.Parse, nodeName/firstStringArg/
// firstBoolArg/collectStringArgs helpers), kept nearly identical in
// shape since the parsing concerns (KDL node walking) are unrelated to
// the schema the teacher happens to store in them.
package ccconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/ccfront/cc/internal/ccerrors"
)

// Config is a project's `.cc.kdl` settings (spec §9's "ask the runtime
// at build time" recommendation: the driver sources the header-search
// roots and the runtime's own declared built-in instantiations from
// here instead of a hardcoded list).
type Config struct {
	// ProjectRoot is the absolute directory containing the .cc.kdl file.
	ProjectRoot string
	// HeaderSearchRoots are directories internal/passes/header's
	// ResolveSearchPaths globs .cch files under.
	HeaderSearchRoots []string
	// HeaderSearchPattern is the doublestar glob applied under each root
	// (default "**/*.cch").
	HeaderSearchPattern string
	// RuntimeHeader is the path internal/emit substitutes for every
	// collapsed runtime-namespace include.
	RuntimeHeader string
	// RuntimeIncludePrefixes names include paths treated as the
	// runtime's own namespace and collapsed into RuntimeHeader.
	RuntimeIncludePrefixes []string
	// BuiltinInstantiations overrides header.NewWithBuiltins's default
	// filter list with the instantiations the configured runtime header
	// already declares.
	BuiltinInstantiations []string
	// Features toggles this project enables; an unset feature name is
	// treated as enabled (spec names no opt-out mechanism of its own,
	// so this is purely a driver-level convenience).
	Features map[string]bool
}

const defaultFileName = ".cc.kdl"

func defaultConfig(root string) *Config {
	return &Config{
		ProjectRoot:            root,
		HeaderSearchPattern:    "**/*.cch",
		RuntimeHeader:          "cc_runtime.h",
		RuntimeIncludePrefixes: []string{"cc_runtime/"},
		Features:               map[string]bool{},
	}
}

// Load reads `.cc.kdl` from projectRoot; a missing file yields the
// default config rather than an error (spec gives the driver no
// required-config contract). Either way, the resulting Config is run
// through Validate before being handed back, so a malformed project
// root or a bogus `.cc.kdl` section is caught here rather than
// surfacing later as an obscure failure in the header or emit pass.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, defaultFileName)
	content, err := os.ReadFile(path)

	var cfg *Config
	switch {
	case os.IsNotExist(err):
		cfg = defaultConfig(projectRoot)
		cfg.HeaderSearchRoots = []string{projectRoot}
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		cfg, err = parse(projectRoot, string(content))
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate walks Config's fields the way the teacher's
// internal/config/validator.go walks its Project/Index/Performance/
// Search sub-structs — one explicit check per field, every failure
// collected rather than stopping at the first — and returns them
// batched in a ccerrors.MultiError, or nil if every check passes.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ProjectRoot) == "" {
		errs = append(errs, errors.New("project root cannot be empty"))
	}
	if strings.TrimSpace(c.HeaderSearchPattern) == "" {
		errs = append(errs, errors.New("header search pattern cannot be empty"))
	}
	if strings.TrimSpace(c.RuntimeHeader) == "" {
		errs = append(errs, errors.New("runtime header path cannot be empty"))
	}
	if len(c.HeaderSearchRoots) == 0 {
		errs = append(errs, errors.New("at least one header search root is required"))
	}
	for _, root := range c.HeaderSearchRoots {
		if strings.TrimSpace(root) == "" {
			errs = append(errs, errors.New("header search roots cannot contain an empty path"))
			break
		}
	}
	for _, prefix := range c.RuntimeIncludePrefixes {
		if strings.TrimSpace(prefix) == "" {
			errs = append(errs, errors.New("runtime include prefixes cannot contain an empty entry"))
			break
		}
	}
	for _, builtin := range c.BuiltinInstantiations {
		if strings.TrimSpace(builtin) == "" {
			errs = append(errs, errors.New("builtin instantiations cannot contain an empty entry"))
			break
		}
	}
	for name := range c.Features {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("a feature toggle cannot have an empty name"))
			break
		}
	}

	// ccerrors.NewMultiError returns a typed nil *MultiError when errs is
	// empty; returning that directly as the error interface would make a
	// caller's `err != nil` check true even though nothing failed, so the
	// nil case is handled explicitly here instead of being passed through.
	if multi := ccerrors.NewMultiError(errs); multi != nil {
		return multi
	}
	return nil
}

func parse(projectRoot, content string) (*Config, error) {
	cfg := defaultConfig(projectRoot)

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", defaultFileName, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "header-search":
			cfg.HeaderSearchRoots = append(cfg.HeaderSearchRoots, collectStringArgs(n)...)
			for _, cn := range n.Children {
				if nodeName(cn) == "pattern" {
					if s, ok := firstStringArg(cn); ok {
						cfg.HeaderSearchPattern = s
					}
				}
			}
		case "runtime":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "header":
					if s, ok := firstStringArg(cn); ok {
						cfg.RuntimeHeader = s
					}
				case "include-prefix":
					cfg.RuntimeIncludePrefixes = append(cfg.RuntimeIncludePrefixes, collectStringArgs(cn)...)
				case "builtin":
					cfg.BuiltinInstantiations = append(cfg.BuiltinInstantiations, collectStringArgs(cn)...)
				}
			}
		case "features":
			for _, cn := range n.Children {
				name := nodeName(cn)
				if b, ok := firstBoolArg(cn); ok {
					cfg.Features[name] = b
				}
			}
		}
	}

	if len(cfg.HeaderSearchRoots) == 0 {
		cfg.HeaderSearchRoots = []string{projectRoot}
	}
	return cfg, nil
}

// FeatureEnabled reports whether name is enabled; absent names default
// to enabled.
func (c *Config) FeatureEnabled(name string) bool {
	v, ok := c.Features[name]
	if !ok {
		return true
	}
	return v
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if n == nil || len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if n == nil || len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

// collectStringArgs gathers string values from n's inline arguments, or
// (if there are none) from its children's node names/arguments — KDL's
// two equivalent ways of writing a list (`exclude "a" "b"` vs. a block
// of child nodes).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, child := range n.Children {
		if s, ok := firstStringArg(child); ok {
			out = append(out, s)
		} else if child.Name != nil {
			if s, ok := child.Name.Value.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
