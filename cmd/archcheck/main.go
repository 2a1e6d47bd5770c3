// Command archcheck fails when a benchcore package imports across a layer
// boundary it must not cross.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"benchcore/internal/archguard"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type loader func(dir string, patterns ...string) ([]archguard.Package, string, error)

func cli(args []string, stdout, stderr io.Writer) int {
	return run(args, stdout, stderr, archguard.Load)
}

func run(args []string, stdout, stderr io.Writer, load loader) int {
	fs := flag.NewFlagSet("archcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", ".", "module directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pkgs, module, err := load(*dir, fs.Args()...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "archcheck: %v\n", err)
		return 1
	}
	if module == "" {
		_, _ = fmt.Fprintln(stderr, "archcheck: no module found")
		return 1
	}
	viols := archguard.Check(pkgs, archguard.DefaultRules(module))
	if len(viols) > 0 {
		_, _ = fmt.Fprintf(stderr, "found %d layering violations:\n", len(viols))
		for _, v := range viols {
			_, _ = fmt.Fprintf(stderr, "  %s\n", v)
		}
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "checked %d packages\n", len(pkgs))
	return 0
}
