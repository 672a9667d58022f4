package arch_test

import (
	"go/ast"
	"go/token"
	"slices"
	"testing"
)

const (
	maxFilesPerPackage = 20
	maxLinesPerFile    = 400
)

// globals lists package-level vars the heuristics in constLike cannot
// recognise as read-only.
var globals = map[string][]string{
	// Filled by go:embed and never written.
	"region": {"builtinMapping"},
}

func TestSizeLimits(t *testing.T) {
	t.Parallel()
	st := tree(t)

	for _, p := range st.pkgs {
		if n := len(p.src()); n > maxFilesPerPackage {
			t.Errorf("package %s has %d source files (limit %d); split it", p.name, n, maxFilesPerPackage)
		}
		for _, f := range p.files {
			if f.lines > maxLinesPerFile {
				t.Errorf("%s has %d lines (limit %d); split it", f.rel, f.lines, maxLinesPerFile)
			}
		}
	}
}

// constLike reports whether a package-level var initialised with val is
// read-only by convention: error sentinels, compiled regexps, sync and
// atomic values, and literals.
func constLike(typ, val ast.Expr) bool {
	if id, ok := typ.(*ast.Ident); ok && id.Name == "error" {
		return true
	}
	if sel, ok := typ.(*ast.SelectorExpr); ok {
		if x, ok := sel.X.(*ast.Ident); ok && (x.Name == "sync" || x.Name == "atomic") {
			return true
		}
	}
	switch v := val.(type) {
	case *ast.BasicLit, *ast.CompositeLit:
		return true
	case *ast.CallExpr:
		sel, ok := v.Fun.(*ast.SelectorExpr)
		if !ok {
			return false
		}
		x, ok := sel.X.(*ast.Ident)
		if !ok {
			return false
		}
		switch x.Name + "." + sel.Sel.Name {
		case "errors.New", "fmt.Errorf", "regexp.MustCompile":
			return true
		}
	}
	return false
}

func TestNoMutableGlobals(t *testing.T) {
	t.Parallel()
	st := tree(t)

	declared := make(map[string]bool)
	for _, p := range st.pkgs {
		for _, f := range p.src() {
			for _, d := range f.syn.Decls {
				gd, ok := d.(*ast.GenDecl)
				if !ok || gd.Tok != token.VAR {
					continue
				}
				for _, spec := range gd.Specs {
					vs := spec.(*ast.ValueSpec)
					for i, id := range vs.Names {
						declared[p.name+"."+id.Name] = true
						var val ast.Expr
						if i < len(vs.Values) {
							val = vs.Values[i]
						}
						if id.Name == "_" || slices.Contains(globals[p.name], id.Name) || constLike(vs.Type, val) {
							continue
						}
						t.Errorf("%s:%d: package-level var %s is mutable state; pass it in instead",
							f.rel, st.line(id), id.Name)
					}
				}
			}
		}
	}
	for pkgName, names := range globals {
		for _, n := range names {
			if !declared[pkgName+"."+n] {
				t.Errorf("globals lists %s.%s, which is not declared", pkgName, n)
			}
		}
	}
}
