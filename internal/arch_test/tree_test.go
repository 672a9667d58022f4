package arch_test

import (
	"bytes"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
)

const internalImport = "github.com/TerriaJS/terriajs-sub017/internal/"

type sourceFile struct {
	rel   string // relative to the module root
	test  bool
	lines int
	syn   *ast.File
}

type pkg struct {
	name  string
	files []sourceFile
}

// src returns the non-test files of p.
func (p pkg) src() []sourceFile {
	var out []sourceFile
	for _, f := range p.files {
		if !f.test {
			out = append(out, f)
		}
	}
	return out
}

// deps returns the internal packages p imports outside its tests.
func (p pkg) deps() []string {
	var out []string
	for _, f := range p.src() {
		for _, imp := range f.syn.Imports {
			rest, ok := strings.CutPrefix(strings.Trim(imp.Path.Value, `"`), internalImport)
			if !ok {
				continue
			}
			name, _, _ := strings.Cut(rest, "/")
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
	}
	slices.Sort(out)
	return out
}

type sourceTree struct {
	fset *token.FileSet
	pkgs []pkg
}

func (st *sourceTree) line(n ast.Node) int { return st.fset.Position(n.Pos()).Line }

var loadTree = sync.OnceValues(func() (*sourceTree, error) {
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("no caller information")
	}
	root := filepath.Dir(self)
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return nil, errors.New("go.mod not found above " + self)
		}
		root = parent
	}

	st := &sourceTree{fset: token.NewFileSet()}
	dirs, err := os.ReadDir(filepath.Join(root, "internal"))
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if !d.IsDir() || d.Name() == "arch_test" {
			continue
		}
		paths, err := filepath.Glob(filepath.Join(root, "internal", d.Name(), "*.go"))
		if err != nil {
			return nil, err
		}
		p := pkg{name: d.Name()}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			syn, err := parser.ParseFile(st.fset, path, data, parser.ParseComments)
			if err != nil {
				return nil, err
			}
			lines := bytes.Count(data, []byte("\n"))
			if len(data) > 0 && data[len(data)-1] != '\n' {
				lines++
			}
			rel, _ := filepath.Rel(root, path)
			p.files = append(p.files, sourceFile{
				rel:   filepath.ToSlash(rel),
				test:  strings.HasSuffix(path, "_test.go"),
				lines: lines,
				syn:   syn,
			})
		}
		if len(p.files) > 0 {
			st.pkgs = append(st.pkgs, p)
		}
	}
	return st, nil
})

func tree(t *testing.T) *sourceTree {
	t.Helper()
	st, err := loadTree()
	if err != nil {
		t.Fatalf("loading internal packages: %v", err)
	}
	return st
}

// typeDecls yields every type spec declared in f.
func typeDecls(f *ast.File) []*ast.TypeSpec {
	var out []*ast.TypeSpec
	for _, d := range f.Decls {
		if gd, ok := d.(*ast.GenDecl); ok && gd.Tok == token.TYPE {
			for _, s := range gd.Specs {
				out = append(out, s.(*ast.TypeSpec))
			}
		}
	}
	return out
}

// recvName returns the base type name of a method receiver.
func recvName(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return ""
	}
	expr := fd.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	switch x := expr.(type) {
	case *ast.IndexExpr:
		expr = x.X
	case *ast.IndexListExpr:
		expr = x.X
	}
	if id, ok := expr.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}
