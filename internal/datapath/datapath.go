// Package datapath evaluates the nested-path mini-language used by
// responseDataPath and responseGeoJsonPath traits.
//
// A path is a dot separated list of segments. A segment names an object key
// (or a numeric array index), optionally followed by one or more brackets:
// "[]" maps the rest of the path over every element of the array at that
// point, "[N]" selects element N. The empty path is the identity. Paths that
// run off the data yield nil rather than an error.
//
//	records[].fields      -> [{a:1},{a:2}]
//	records[0]            -> first element of records
//	some.embedded.0       -> first element of some.embedded
//	records[]             -> records itself
package datapath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned by Compile for malformed paths.
var ErrSyntax = errors.New("datapath: syntax error")

type step struct {
	mapAll bool
	index  int
}

type segment struct {
	name  string
	steps []step
}

// Path is a compiled path expression.
type Path struct {
	raw  string
	segs []segment
}

// String returns the source text of the path.
func (p Path) String() string { return p.raw }

// Compile parses a path expression.
func Compile(path string) (Path, error) {
	p := Path{raw: path}
	if path == "" {
		return p, nil
	}
	for _, part := range strings.Split(path, ".") {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, fmt.Errorf("%w: %q: %v", ErrSyntax, path, err)
		}
		p.segs = append(p.segs, seg)
	}
	return p, nil
}

func parseSegment(part string) (segment, error) {
	var seg segment
	open := strings.IndexByte(part, '[')
	if open < 0 {
		seg.name = part
		if part == "" {
			return seg, errors.New("empty segment")
		}
		return seg, nil
	}
	seg.name = part[:open]
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return seg, fmt.Errorf("unexpected %q", rest)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return seg, errors.New("unclosed bracket")
		}
		inner := rest[1:end]
		if inner == "" {
			seg.steps = append(seg.steps, step{mapAll: true})
		} else {
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return seg, fmt.Errorf("bad index %q", inner)
			}
			seg.steps = append(seg.steps, step{index: n})
		}
		rest = rest[end+1:]
	}
	return seg, nil
}

// Eval applies the path to decoded JSON data.
func (p Path) Eval(data any) any {
	return eval(data, p.segs)
}

// Get compiles and evaluates path in one go. A malformed path yields nil.
func Get(data any, path string) any {
	p, err := Compile(path)
	if err != nil {
		return nil
	}
	return p.Eval(data)
}

func eval(v any, segs []segment) any {
	if len(segs) == 0 {
		return v
	}
	seg := segs[0]
	if seg.name != "" {
		v = child(v, seg.name)
	}
	for i, st := range seg.steps {
		if v == nil {
			return nil
		}
		arr, ok := v.([]any)
		if !ok {
			return nil
		}
		if !st.mapAll {
			if st.index >= len(arr) {
				return nil
			}
			v = arr[st.index]
			continue
		}
		rest := segs[1:]
		if remaining := seg.steps[i+1:]; len(remaining) > 0 {
			rest = append([]segment{{steps: remaining}}, rest...)
		}
		out := make([]any, len(arr))
		for j, el := range arr {
			out[j] = eval(el, rest)
		}
		return out
	}
	return eval(v, segs[1:])
}

func child(v any, name string) any {
	switch x := v.(type) {
	case map[string]any:
		return x[name]
	case []any:
		n, err := strconv.Atoi(name)
		if err != nil || n < 0 || n >= len(x) {
			return nil
		}
		return x[n]
	}
	return nil
}
