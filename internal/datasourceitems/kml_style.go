package datasourceitems

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
)

// styleSheet holds the shared styles of a document by id.
type styleSheet struct {
	styles map[string]mapitem.EntityStyle
	maps   map[string]string
}

func kmlStyles(root *etree.Element, resolve func(string) string) styleSheet {
	sh := styleSheet{styles: map[string]mapitem.EntityStyle{}, maps: map[string]string{}}
	for _, s := range root.FindElements("//Style[@id]") {
		sh.styles[s.SelectAttrValue("id", "")] = readStyle(s, resolve)
	}
	for _, m := range root.FindElements("//StyleMap[@id]") {
		for _, pair := range m.SelectElements("Pair") {
			if childText(pair, "key") == "normal" {
				sh.maps[m.SelectAttrValue("id", "")] = childText(pair, "styleUrl")
			}
		}
	}
	return sh
}

// lookup resolves a local style reference, following one StyleMap.
func (sh styleSheet) lookup(ref string) mapitem.EntityStyle {
	id := ref[strings.LastIndex(ref, "#")+1:]
	if target, ok := sh.maps[id]; ok {
		id = target[strings.LastIndex(target, "#")+1:]
	}
	return sh.styles[id]
}

func readStyle(s *etree.Element, resolve func(string) string) mapitem.EntityStyle {
	var st mapitem.EntityStyle
	if ls := s.SelectElement("LineStyle"); ls != nil {
		st.Stroke, st.StrokeOpacity = kmlColor(childText(ls, "color"))
		if w, err := strconv.ParseFloat(childText(ls, "width"), 64); err == nil {
			st.StrokeWidth = w
		}
	}
	if ps := s.SelectElement("PolyStyle"); ps != nil {
		st.Fill, st.FillOpacity = kmlColor(childText(ps, "color"))
		if childText(ps, "fill") == "0" {
			st.FillOpacity = 0
			if st.Fill == "" {
				st.Fill = "#ffffff"
			}
		}
	}
	if is := s.SelectElement("IconStyle"); is != nil {
		st.MarkerColor, st.MarkerOpacity = kmlColor(childText(is, "color"))
		if sc, err := strconv.ParseFloat(childText(is, "scale"), 64); err == nil {
			st.MarkerSize = sc
		}
		if href := is.FindElement("Icon/href"); href != nil {
			if h := strings.TrimSpace(href.Text()); h != "" {
				st.MarkerURL = resolve(h)
			}
		}
	}
	return st
}

// mergeStyle overlays the set fields of top on base.
func mergeStyle(base, top mapitem.EntityStyle) mapitem.EntityStyle {
	if top.Stroke != "" {
		base.Stroke, base.StrokeOpacity = top.Stroke, top.StrokeOpacity
	}
	if top.StrokeWidth != 0 {
		base.StrokeWidth = top.StrokeWidth
	}
	if top.Fill != "" {
		base.Fill, base.FillOpacity = top.Fill, top.FillOpacity
	}
	if top.MarkerColor != "" {
		base.MarkerColor, base.MarkerOpacity = top.MarkerColor, top.MarkerOpacity
	}
	if top.MarkerSize != 0 {
		base.MarkerSize = top.MarkerSize
	}
	if top.MarkerURL != "" {
		base.MarkerURL = top.MarkerURL
	}
	return base
}

// kmlColor converts aabbggrr to a CSS colour and an opacity.
func kmlColor(s string) (string, float64) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 8 {
		return "", 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return "", 0
	}
	channel := func(shift uint) float64 { return float64(v>>shift&0xff) / 255 }
	c := colorful.Color{R: channel(0), G: channel(8), B: channel(16)}
	return c.Hex(), channel(24)
}
