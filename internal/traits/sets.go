package traits

// CatalogMember is the trait set every catalog item carries.
func CatalogMember() []Trait {
	return []Trait{
		{Name: "name", Kind: KindString, Doc: "The name of the item."},
		{Name: "description", Kind: KindString, Doc: "The description of the item."},
		{Name: "info", Kind: KindObjectArray, Doc: "Human-readable info sections, each {name, content}."},
		{Name: "dataCustodian", Kind: KindString, Doc: "Who is responsible for the data."},
		{Name: "shortReport", Kind: KindString, Doc: "A short status report shown under the item."},
		{Name: "hideSource", Kind: KindBool, Default: false, Doc: "Hide the data source links."},
	}
}

// URL is the trait set for items backed by a remote resource.
func URL() []Trait {
	return []Trait{
		{Name: "url", Kind: KindString, Doc: "The URL of the resource."},
		{Name: "cacheDuration", Kind: KindString, Doc: "Proxy cache duration, e.g. 1d or 0d."},
		{Name: "forceProxy", Kind: KindBool, Default: false, Doc: "Always route requests through the proxy."},
	}
}

// Mappable is the trait set for items that produce map items.
func Mappable() []Trait {
	return []Trait{
		{Name: "show", Kind: KindBool, Default: true, Doc: "Whether the item is shown on the map."},
		{Name: "opacity", Kind: KindNumber, Default: 0.8, Doc: "Opacity between 0 and 1."},
		{Name: "rectangle", Kind: KindObject, Doc: "Bounding box {west, south, east, north} in degrees."},
		{Name: "clipToRectangle", Kind: KindBool, Default: true, Doc: "Clip imagery to the rectangle."},
		{Name: "disableZoomTo", Kind: KindBool, Default: false, Doc: "Disable zooming to the item."},
	}
}

// Imagery is the trait set shared by tiled imagery items.
func Imagery() []Trait {
	return []Trait{
		{Name: "attribution", Kind: KindString, Doc: "Credit shown on the map."},
		{Name: "minimumLevel", Kind: KindNumber, Default: 0.0, Doc: "Lowest zoom level requested."},
		{Name: "maximumLevel", Kind: KindNumber, Doc: "Highest zoom level requested."},
		{Name: "tileWidth", Kind: KindNumber, Default: 256.0, Doc: "Tile width in pixels."},
		{Name: "tileHeight", Kind: KindNumber, Default: 256.0, Doc: "Tile height in pixels."},
		{Name: "subdomains", Kind: KindStringArray, Doc: "Values substituted for {s} in URL templates."},
	}
}

// Table is the trait set for items backed by column-major table data.
func Table() []Trait {
	return []Trait{
		{Name: "columns", Kind: KindObjectArray, Doc: "Column overrides, each {name, title, type}."},
		{Name: "defaultStyle", Kind: KindObject, Doc: "Style applied when activeStyle names no style."},
		{Name: "styles", Kind: KindObjectArray, Doc: "Named styles, each {id, color: {colorColumn}}."},
		{Name: "activeStyle", Kind: KindString, Doc: "Column or style id driving colour."},
		{Name: "removeDuplicateRows", Kind: KindBool, Default: false, Doc: "Drop rows identical to an earlier row."},
		{Name: "currentTime", Kind: KindString, Doc: "ISO8601 time used to pick rows of time-varying data."},
	}
}

// GeoJSON is the trait set for items whose data is a feature collection.
func GeoJSON() []Trait {
	return []Trait{
		{Name: "geoJsonData", Kind: KindAny, Doc: "Inline GeoJSON object."},
		{Name: "geoJsonString", Kind: KindString, Doc: "Inline GeoJSON text."},
		{Name: "style", Kind: KindObject, Doc: "simplestyle-spec properties applied to every feature."},
		{Name: "forceCesiumPrimitives", Kind: KindBool, Default: false, Doc: "Render as entities instead of vector tiles."},
		{Name: "czmlTemplate", Kind: KindObject, Doc: "CZML packet template applied to point features."},
		{Name: "timeProperty", Kind: KindString, Doc: "Feature property holding the time of each feature."},
		{Name: "heightProperty", Kind: KindString, Doc: "Feature property holding polygon extrusion height."},
		{Name: "perPropertyStyles", Kind: KindObjectArray, Doc: "Styles keyed by feature property values."},
		{Name: "filterByProperties", Kind: KindObject, Doc: "Only keep features whose properties match."},
		{Name: "clampToGround", Kind: KindBool, Default: false, Doc: "Clamp features to terrain."},
		{Name: "featureInfoTemplate", Kind: KindObject, Doc: "Template used to describe picked features."},
		{Name: "responseDataPath", Kind: KindString, Doc: "Path to the GeoJSON inside a wrapping JSON response."},
	}
}

// AutoRefresh is the trait set for items that reload on a timer.
func AutoRefresh() []Trait {
	return []Trait{
		{Name: "refreshInterval", Kind: KindNumber, Doc: "Seconds between refreshes."},
		{Name: "refreshEnabled", Kind: KindBool, Default: true, Doc: "Whether refreshing is active."},
	}
}

// Transformation is the trait set for positioned 3D content.
func Transformation() []Trait {
	return []Trait{
		{Name: "origin", Kind: KindObject, Doc: "{longitude, latitude, height} of the model origin."},
		{Name: "rotation", Kind: KindObject, Doc: "{heading, pitch, roll} in degrees."},
		{Name: "scale", Kind: KindNumber, Default: 1.0, Doc: "Uniform scale factor."},
	}
}

// Tiles3D is the trait set for 3D tiles style content.
func Tiles3D() []Trait {
	return []Trait{
		{Name: "ionAssetId", Kind: KindNumber, Doc: "Cesium ion asset id."},
		{Name: "ionAccessToken", Kind: KindString, Doc: "Cesium ion access token."},
		{Name: "ionServer", Kind: KindString, Default: "https://api.cesium.com/", Doc: "Cesium ion API server."},
		{Name: "style", Kind: KindObject, Doc: "3D Tiles style."},
		{Name: "shadows", Kind: KindEnum, Default: "NONE", Enum: []string{"NONE", "CAST", "RECEIVE", "BOTH"}, Doc: "Shadow mode."},
		{Name: "maximumScreenSpaceError", Kind: KindNumber, Default: 16.0, Doc: "Level of detail refinement threshold."},
	}
}
