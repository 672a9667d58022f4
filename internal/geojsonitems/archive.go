package geojsonitems

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// errNoEntry is returned when an archive has no entry with a wanted
// extension.
var errNoEntry = errors.New("geojsonitems: no matching entry in archive")

const zipMagic = "PK\x03\x04"

// isZip reports whether data is a zip archive, by magic or by name.
func isZip(name string, data []byte) bool {
	return bytes.HasPrefix(data, []byte(zipMagic)) || strings.EqualFold(path.Ext(name), ".zip")
}

// archive is an opened zip file.
type archive struct {
	r *zip.Reader
}

func openArchive(data []byte) (*archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return &archive{r: r}, nil
}

// find returns the first file whose extension is one of exts, ignoring
// directories and macOS resource forks.
func (a *archive) find(exts ...string) (*zip.File, error) {
	for _, f := range a.r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		for _, want := range exts {
			if ext == want {
				return f, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: want %s", errNoEntry, strings.Join(exts, " or "))
}

// sibling returns the file sharing f's base name with extension ext.
func (a *archive) sibling(f *zip.File, ext string) (*zip.File, error) {
	stem := strings.TrimSuffix(f.Name, path.Ext(f.Name))
	for _, g := range a.r.File {
		if strings.EqualFold(g.Name, stem+ext) {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %s%s", errNoEntry, stem, ext)
}

// read returns the contents of the first file with one of exts.
func (a *archive) read(exts ...string) ([]byte, error) {
	f, err := a.find(exts...)
	if err != nil {
		return nil, err
	}
	return readFile(f)
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
