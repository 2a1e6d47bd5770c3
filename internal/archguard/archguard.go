// Package archguard enforces the import direction between benchcore layers:
// the domain model at the bottom, then persistence and the task, ledger,
// schedule, compose and release engines, then the core service, then the
// adapters and commands.
package archguard

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Rule forbids packages matched by From from importing paths matched by
// Forbidden.
type Rule struct {
	Name      string
	Reason    string
	From      func(pkgPath string) bool
	Forbidden func(importPath string) bool
}

// Package is the part of a loaded package the rules look at.
type Package struct {
	Path    string
	Imports []string
}

// Violation records one forbidden import.
type Violation struct {
	Rule    string
	Reason  string
	Package string
	Import  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s imports %s (%s: %s)", v.Package, v.Import, v.Rule, v.Reason)
}

// under reports whether path is root or nested below it.
func under(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

func anyUnder(roots ...string) func(string) bool {
	return func(path string) bool {
		for _, root := range roots {
			if under(path, root) {
				return true
			}
		}
		return false
	}
}

// DefaultRules returns the layering rules for the module rooted at module.
func DefaultRules(module string) []Rule {
	internal := module + "/internal"
	engines := []string{
		internal + "/tasks",
		internal + "/ledger",
		internal + "/schedule",
		internal + "/compose",
		internal + "/release",
	}
	outer := []string{internal + "/core", internal + "/adapters", module + "/cmd"}
	return []Rule{
		{
			Name:      "domain-pure",
			Reason:    "the domain model depends on nothing inside the module",
			From:      anyUnder(module + "/pkg/domain"),
			Forbidden: anyUnder(internal, module+"/cmd"),
		},
		{
			Name:   "blob-facade",
			Reason: "blob backends are reached through internal/blob",
			From: func(path string) bool {
				return path != internal+"/blob" && !under(path, internal+"/infra/blob")
			},
			Forbidden: anyUnder(internal + "/infra/blob"),
		},
		{
			Name:      "engines-below-core",
			Reason:    "engines run inside a core transaction and never call back into it",
			From:      anyUnder(engines...),
			Forbidden: anyUnder(outer...),
		},
		{
			Name:      "infra-below-core",
			Reason:    "infrastructure is wired by commands, not the other way round",
			From:      anyUnder(internal + "/infra"),
			Forbidden: anyUnder(outer...),
		},
		{
			Name:      "core-below-adapters",
			Reason:    "the service is transport agnostic",
			From:      anyUnder(internal + "/core"),
			Forbidden: anyUnder(internal+"/adapters", module+"/cmd"),
		},
	}
}

// Check evaluates rules against pkgs. Violations are sorted by package then
// import.
func Check(pkgs []Package, rules []Rule) []Violation {
	var out []Violation
	for _, pkg := range pkgs {
		for _, rule := range rules {
			if !rule.From(pkg.Path) {
				continue
			}
			for _, imp := range pkg.Imports {
				if rule.Forbidden(imp) {
					out = append(out, Violation{Rule: rule.Name, Reason: rule.Reason, Package: pkg.Path, Import: imp})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}
		if out[i].Import != out[j].Import {
			return out[i].Import < out[j].Import
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}

// Load resolves patterns relative to dir and returns the module's non-test
// packages with their direct imports. It also reports the module path.
func Load(dir string, patterns ...string) ([]Package, string, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedModule,
		Dir:  dir,
	}
	loaded, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, "", fmt.Errorf("load packages: %w", err)
	}
	var (
		out    []Package
		module string
		errs   []string
	)
	for _, p := range loaded {
		for _, e := range p.Errors {
			errs = append(errs, e.Error())
		}
		if module == "" && p.Module != nil {
			module = p.Module.Path
		}
		imports := make([]string, 0, len(p.Imports))
		for path := range p.Imports {
			imports = append(imports, path)
		}
		sort.Strings(imports)
		out = append(out, Package{Path: p.PkgPath, Imports: imports})
	}
	if len(errs) > 0 {
		return nil, "", fmt.Errorf("load packages: %s", strings.Join(errs, "; "))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, module, nil
}
