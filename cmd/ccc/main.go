// Command ccc is the CC source-to-source compiler's driver: it owns
// file I/O, config loading, and diagnostics formatting, and leaves
// every lowering decision to internal/compiler. Grounded on
// cmd/lci/main.go's cli.App shape (package-level Version, a flag set
// built from urfave/cli/v2's typed flag structs, UseShortOptionHandling
// for bundled short flags) — trimmed to the one-binary, one-subcommand
// surface spec §6 names instead of the teacher's indexer/server/search
// command tree, since ccc compiles files, it doesn't run a daemon.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ccfront/cc/internal/ccconfig"
	"github.com/ccfront/cc/internal/ccdisplay"
	"github.com/ccfront/cc/internal/compiler"
	"github.com/ccfront/cc/internal/cparse"
	"github.com/ccfront/cc/internal/version"
)

// Version is set by the linker the same way the teacher's cmd/lci/main.go
// overrides internal/version.Version for release builds.
var Version = version.Version

func main() {
	app := &cli.App{
		Name:                   "ccc",
		Usage:                  "compile a CC translation unit to C",
		Version:                Version,
		UseShortOptionHandling: true,
		ArgsUsage:              "<input.ccs|input.cch>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "write output to this path instead of stdout",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "project config path; .cc.kdl is read from this path's directory",
			},
			&cli.BoolFlag{
				Name:  "dump-ast",
				Usage: "print the parsed tree instead of emitting C",
			},
			&cli.BoolFlag{
				Name:  "emit-c",
				Usage: "emit C source (the default; explicit opposite of --dump-ast)",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "dump-format",
				Usage: "tree format for --dump-ast: text, compact, or json",
				Value: "text",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ccc: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one input file, got %d", c.NArg())
	}
	inputPath := c.Args().Get(0)

	src, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("%s: %v", inputPath, err)
	}

	isHeader := strings.HasSuffix(inputPath, ".cch")
	file, err := cparse.Parse(inputPath, src, isHeader)
	if err != nil {
		return diagnostic(err)
	}

	projectRoot := filepath.Dir(inputPath)
	if configPath := c.String("config"); configPath != "" {
		projectRoot = filepath.Dir(configPath)
	}
	cfg, err := ccconfig.Load(projectRoot)
	if err != nil {
		return fmt.Errorf("%s: %v", inputPath, err)
	}

	var out string
	if c.Bool("dump-ast") {
		formatter := ccdisplay.NewTreeFormatter(ccdisplay.FormatterOptions{
			Format:    c.String("dump-format"),
			ShowLines: true,
		})
		out = formatter.Format(file)
	} else {
		opts := compiler.Options{
			RuntimeHeader:          cfg.RuntimeHeader,
			RuntimeIncludePrefixes: cfg.RuntimeIncludePrefixes,
			BuiltinInstantiations:  cfg.BuiltinInstantiations,
		}
		out, err = compiler.CompileUnit(file, opts)
		if err != nil {
			return diagnostic(err)
		}
	}

	if outputPath := c.String("output"); outputPath != "" {
		return os.WriteFile(outputPath, []byte(out), 0o644)
	}
	_, err = fmt.Fprint(os.Stdout, out)
	return err
}

// diagnostic reformats a pass error as a *cli.ExitError carrying exit
// code 1, so urfave/cli prints it on stderr the way main's fallback
// path does for any other failure (spec §6's "1 any failure with a
// diagnostic on standard error").
func diagnostic(err error) error {
	return cli.Exit(err.Error(), 1)
}
