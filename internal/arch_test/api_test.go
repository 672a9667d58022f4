package arch_test

import (
	"go/ast"
	"strings"
	"testing"
)

// undocumented lists exported names that may go without a doc comment:
// enum values whose type carries the documentation.
var undocumented = map[string][]string{
	"table": {
		"TypeText", "TypeLongitude", "TypeLatitude", "TypeHeight", "TypeTime",
		"TypeScalar", "TypeEnum", "TypeRegion", "TypeAddress", "TypeHidden",
		"ColorMapConstant", "ColorMapDiscrete", "ColorMapEnum", "ColorMapContinuous",
	},
}

// colocated lists interfaces declared next to their implementations.
var colocated = map[string][]string{
	// Fetcher sits with its HTTP, caching and stub implementations.
	"fetch": {"Fetcher"},
	// Sum types; renderers switch on the concrete variant.
	"mapitem": {"MapItem", "ImageryProvider", "TileSource"},
	// Capabilities, all implemented by the embedded Model.
	"model": {
		"Item", "CatalogMember", "URLHolder", "Mappable", "TableHolder",
		"GeoJSONHolder", "AutoRefresher", "LocalDataHolder",
	},
	// CLIConverter is the default; tests supply their own.
	"sceneitems": {"Converter"},
	// Values, Static and Loadable are layered by Set.
	"strata": {"Stratum"},
}

func documented(doc *ast.CommentGroup, name string) bool {
	return doc != nil && strings.HasPrefix(strings.TrimSpace(doc.Text()), name)
}

func exportedRecv(fd *ast.FuncDecl) bool {
	return fd.Recv == nil || ast.IsExported(recvName(fd))
}

func TestDocComments(t *testing.T) {
	t.Parallel()
	st := tree(t)

	for _, p := range st.pkgs {
		skip := make(map[string]bool)
		for _, n := range undocumented[p.name] {
			skip[n] = true
		}
		for _, f := range p.src() {
			missing := func(n ast.Node, kind, name string) {
				t.Errorf("%s:%d: exported %s %s has no doc comment", f.rel, st.line(n), kind, name)
			}
			for _, d := range f.syn.Decls {
				switch d := d.(type) {
				case *ast.FuncDecl:
					if d.Name.IsExported() && exportedRecv(d) && !skip[d.Name.Name] && !documented(d.Doc, d.Name.Name) {
						missing(d, "func", d.Name.Name)
					}
				case *ast.GenDecl:
					grouped := len(d.Specs) > 1
					blockDoc := d.Doc != nil && strings.TrimSpace(d.Doc.Text()) != ""
					for _, spec := range d.Specs {
						switch s := spec.(type) {
						case *ast.TypeSpec:
							if !s.Name.IsExported() || skip[s.Name.Name] {
								continue
							}
							doc := s.Doc
							if doc == nil {
								doc = d.Doc
							}
							if !documented(doc, s.Name.Name) {
								missing(s, "type", s.Name.Name)
							}
						case *ast.ValueSpec:
							for _, id := range s.Names {
								if !id.IsExported() || skip[id.Name] {
									continue
								}
								if grouped && (blockDoc || s.Comment != nil || documented(s.Doc, id.Name)) {
									continue
								}
								doc := s.Doc
								if doc == nil {
									doc = d.Doc
								}
								if !grouped && documented(doc, id.Name) {
									continue
								}
								missing(id, strings.ToLower(d.Tok.String()), id.Name)
							}
						}
					}
				}
			}
		}
	}
}

// TestInterfacesLiveWithConsumers flags interfaces declared in the same
// package as a type whose method set covers them, matching by method name.
func TestInterfacesLiveWithConsumers(t *testing.T) {
	t.Parallel()
	st := tree(t)

	for _, p := range st.pkgs {
		methods := make(map[string]map[string]bool)
		ifaces := make(map[string][]string)
		for _, f := range p.src() {
			for _, d := range f.syn.Decls {
				if fd, ok := d.(*ast.FuncDecl); ok && recvName(fd) != "" {
					r := recvName(fd)
					if methods[r] == nil {
						methods[r] = make(map[string]bool)
					}
					methods[r][fd.Name.Name] = true
				}
			}
			for _, ts := range typeDecls(f.syn) {
				it, ok := ts.Type.(*ast.InterfaceType)
				if !ok || it.Methods == nil {
					continue
				}
				for _, m := range it.Methods.List {
					for _, id := range m.Names {
						ifaces[ts.Name.Name] = append(ifaces[ts.Name.Name], id.Name)
					}
				}
			}
		}

	next:
		for name, want := range ifaces {
			if len(want) == 0 {
				continue
			}
			for _, ok := range colocated[p.name] {
				if ok == name {
					continue next
				}
			}
			for typ, have := range methods {
				covered := true
				for _, m := range want {
					covered = covered && have[m]
				}
				if covered {
					t.Errorf("interface %s.%s is implemented by %s in the same package; declare it where it is used",
						p.name, name, typ)
				}
			}
		}
	}
}
