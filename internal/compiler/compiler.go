// Package compiler drives one translation unit through the fixed pass
// order (spec §4.1): UFCS, concurrency, autoblock, closure, asyncstate,
// header (interface files only), sugar, then the emitter. It owns the
// single edit buffer each unit's passes share and traces progress
// through internal/ccdebug the way a driver loop is expected to.
//
// Grounded on the orchestration shape implied by each pass's own doc
// comment (ufcs.go's "the closure pass is expected to call
// RewriteClosureBodies once captures are lowered" names the driver as
// the thing responsible for that second UFCS sweep) and on
// golang.org/x/sync/errgroup for CompileAll's bounded fan-out, the same
// library the teacher's own batch-indexing code reaches for whenever it
// needs to cap concurrent work against GOMAXPROCS rather than spawn one
// goroutine per file.
package compiler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ccfront/cc/internal/ast"
	"github.com/ccfront/cc/internal/ccdebug"
	"github.com/ccfront/cc/internal/editbuf"
	"github.com/ccfront/cc/internal/emit"
	"github.com/ccfront/cc/internal/passes/asyncstate"
	"github.com/ccfront/cc/internal/passes/autoblock"
	"github.com/ccfront/cc/internal/passes/closure"
	"github.com/ccfront/cc/internal/passes/concurrency"
	"github.com/ccfront/cc/internal/passes/header"
	"github.com/ccfront/cc/internal/passes/sugar"
	"github.com/ccfront/cc/internal/passes/ufcs"
)

const passName = "compiler"

// Options configures the pass pipeline and the emitter it ends with.
type Options struct {
	RuntimeHeader          string
	RuntimeIncludePrefixes []string
	// BuiltinInstantiations overrides header.NewWithBuiltins's default
	// filter list; nil uses header.New's defaults.
	BuiltinInstantiations []string
}

func (o Options) emitOptions() emit.Options {
	return emit.Options{
		RuntimeHeader:          o.RuntimeHeader,
		RuntimeIncludePrefixes: o.RuntimeIncludePrefixes,
	}
}

// CompileUnit runs file through every pass in order and returns the
// rendered C source for this single translation unit.
func CompileUnit(file *ast.File, opts Options) (string, error) {
	buf := editbuf.New()

	ccdebug.Trace(passName, "%s: ufcs", file.Name)
	for _, item := range file.Items {
		ufcs.Rewrite(item)
	}

	ccdebug.Trace(passName, "%s: concurrency", file.Name)
	if err := concurrency.New(file).Run(); err != nil {
		return "", err
	}

	ccdebug.Trace(passName, "%s: autoblock", file.Name)
	if err := autoblock.New(file).Run(); err != nil {
		return "", err
	}

	ccdebug.Trace(passName, "%s: closure", file.Name)
	if err := closure.New(file).Run(); err != nil {
		return "", err
	}
	// The closure pass lifts closure literals into file.Closures after
	// UFCS's first sweep already ran; a second sweep over the extracted
	// bodies catches method calls that sweep couldn't reach yet.
	ufcs.RewriteClosureBodies(file.Closures)

	ccdebug.Trace(passName, "%s: asyncstate", file.Name)
	if err := asyncstate.New(file, buf).Run(); err != nil {
		return "", err
	}

	if file.IsHeader {
		ccdebug.Trace(passName, "%s: header", file.Name)
		var hp interface{ Run() error }
		if len(opts.BuiltinInstantiations) > 0 {
			hp = header.NewWithBuiltins(file, buf, opts.BuiltinInstantiations)
		} else {
			hp = header.New(file, buf)
		}
		if err := hp.Run(); err != nil {
			return "", err
		}
	}

	ccdebug.Trace(passName, "%s: sugar", file.Name)
	if err := sugar.New(file).Run(); err != nil {
		return "", err
	}

	ccdebug.Trace(passName, "%s: emit", file.Name)
	return emit.File(file, buf, opts.emitOptions())
}

// Unit pairs a parsed file with its rendered output, for CompileAll's
// order-preserving result slice.
type Unit struct {
	File   *ast.File
	Output string
}

// CompileAll runs CompileUnit over every file concurrently, bounded to
// GOMAXPROCS workers, and returns results in the same order as files.
// The first pass error cancels the remaining work and is returned.
func CompileAll(ctx context.Context, files []*ast.File, opts Options) ([]Unit, error) {
	results := make([]Unit, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			out, err := CompileUnit(file, opts)
			if err != nil {
				return err
			}
			results[i] = Unit{File: file, Output: out}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
