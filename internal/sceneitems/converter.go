package sceneitems

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// ErrNoModel is returned when none of the input files is a model format the
// converter reads.
var ErrNoModel = errors.New("sceneitems: no model file among inputs")

// File is one input or output file of a conversion. Name is a slash
// separated relative path.
type File struct {
	Name string
	Data []byte
}

// Converter turns 3D model files into glTF 2. The first output is the glTF
// document and the rest are the files it references by name.
type Converter interface {
	Convert(ctx context.Context, files []File) ([]File, error)
}

// modelExts are the input extensions tried as the main model, in order.
var modelExts = []string{
	".gltf", ".glb", ".fbx", ".dae", ".obj", ".3ds", ".ifc", ".blend",
	".stl", ".ply", ".3mf", ".x", ".lwo", ".off", ".dxf",
}

const gltfOutput = "model.gltf"

// CLIConverter runs the assimp command line tool in a scratch directory.
type CLIConverter struct {
	Path   string
	Logger *zap.SugaredLogger
}

// buildArgs constructs the CLI arguments for one conversion.
func buildArgs(input, output string) []string {
	return []string{"export", input, output, "-f", "gltf2"}
}

// mainModel returns the first input with a model extension.
func mainModel(files []File) (File, error) {
	for _, ext := range modelExts {
		for _, f := range files {
			if strings.EqualFold(path.Ext(f.Name), ext) {
				return f, nil
			}
		}
	}
	return File{}, ErrNoModel
}

// Convert implements Converter.
func (c *CLIConverter) Convert(ctx context.Context, files []File) ([]File, error) {
	main, err := mainModel(files)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "terria-assimp-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in, out := filepath.Join(dir, "in"), filepath.Join(dir, "out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	for _, f := range files {
		rel := filepath.FromSlash(f.Name)
		if !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("input %q escapes the scratch directory", f.Name)
		}
		p := filepath.Join(in, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create input dir: %w", err)
		}
		if err := os.WriteFile(p, f.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write input %s: %w", f.Name, err)
		}
	}

	args := buildArgs(filepath.Join(in, filepath.FromSlash(main.Name)), filepath.Join(out, gltfOutput))
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Dir = in
	cmd.SysProcAttr = sessionAttr()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if c.Logger != nil {
		c.Logger.Debugw("running assimp", "path", c.Path, "args", strings.Join(args, " "))
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("assimp conversion failed: %w\nstderr: %s", err, stderr.String())
	}
	return readOutputs(out)
}

// readOutputs returns the files under dir with the glTF document first.
func readOutputs(dir string) ([]File, error) {
	var outs []File
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		outs = append(outs, File{Name: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read assimp output: %w", err)
	}
	slices.SortStableFunc(outs, func(a, b File) int {
		switch {
		case a.Name == gltfOutput:
			return -1
		case b.Name == gltfOutput:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(outs) == 0 || outs[0].Name != gltfOutput {
		return nil, fmt.Errorf("assimp wrote no %s", gltfOutput)
	}
	return outs, nil
}

// Validate checks that the assimp binary runs.
func (c *CLIConverter) Validate() error {
	out, err := exec.Command(c.Path, "version").Output()
	if err != nil {
		return fmt.Errorf("assimp CLI not found at %q: %w", c.Path, err)
	}
	if c.Logger != nil {
		c.Logger.Debugw("assimp version", "output", strings.TrimSpace(string(out)))
	}
	return nil
}
