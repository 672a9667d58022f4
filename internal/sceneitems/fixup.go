package sceneitems

import (
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
)

// textureExts are the image formats renderers load as textures.
var textureExts = []string{
	"apng", "avif", "gif", "jpg", "jpeg", "jfif", "pjpeg", "pjp", "png", "svg", "webp", "ktx2",
}

const specularGlossiness = "KHR_materials_pbrSpecularGlossiness"

// fixer rewrites the paths in a converted glTF document so they resolve
// outside the converter's output directory.
type fixer struct {
	dataURLs    map[string]string
	baseURL     string
	logger      *zap.SugaredLogger
	unsupported []string
}

// apply registers a data url for every dependency and returns the rewritten
// glTF document, which is outputs[0].
func (f *fixer) apply(outputs []File) ([]byte, error) {
	for i := len(outputs) - 1; i > 0; i-- {
		f.dataURLs[outputs[i].Name] = fetch.DataURL(outputs[i].Name, outputs[i].Data)
	}
	var doc map[string]any
	if err := json.Unmarshal(outputs[0].Data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", outputs[0].Name, err)
	}

	for _, b := range objects(doc["buffers"]) {
		uri, _ := b["uri"].(string)
		if uri == "" {
			continue
		}
		if u, ok := f.dataURLs[uri]; ok {
			b["uri"] = u
			continue
		}
		f.logger.Warnw("glTF buffer not among converter outputs", "uri", uri)
	}

	images := objects(doc["images"])
	for _, img := range images {
		uri, _ := img["uri"].(string)
		if uri == "" {
			continue
		}
		if u, ok := f.image(uri); ok {
			if u != uri {
				f.logger.Debugw("replacing glTF image path", "from", uri, "to", u)
				img["uri"] = u
			}
			continue
		}
		f.logger.Warnw("cannot resolve glTF image path", "uri", uri)
	}

	if len(images) > 0 {
		for _, m := range objects(doc["materials"]) {
			if ext, ok := m["extensions"].(map[string]any); ok {
				delete(ext, specularGlossiness)
			}
		}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode glTF: %w", err)
	}
	return out, nil
}

// image normalises a texture path and maps it to a data url or resolves it
// against the base url. Unsupported formats are recorded either way.
func (f *fixer) image(uri string) (string, bool) {
	p := strings.ReplaceAll(uri, `\`, "/")
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(urlPath(p)), "."))
	if !slices.Contains(textureExts, ext) {
		f.unsupported = append(f.unsupported, uri)
	}
	if u, ok := f.dataURLs[p]; ok {
		return u, true
	}
	if f.baseURL != "" {
		return fetch.Resolve(f.baseURL, p), true
	}
	return uri, false
}

func objects(v any) []map[string]any {
	arr, _ := v.([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if obj, ok := el.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
