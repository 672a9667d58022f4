package fetch

import (
	"encoding/base64"
	"mime"
	"path"
	"strings"
)

// DataURL embeds data in a base64 data URL typed by the extension of name.
func DataURL(name string, data []byte) string {
	ext := strings.ToLower(path.Ext(name))
	typ, _, _ := strings.Cut(mime.TypeByExtension(ext), ";")
	switch {
	case ext == ".gltf":
		typ = "model/gltf+json"
	case ext == ".kml":
		typ = "application/vnd.google-earth.kml+xml"
	case typ == "":
		typ = "application/octet-stream"
	}
	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(data)
}
