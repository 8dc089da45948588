// Package tilemeta assembles the metadata documents the HTTP surface
// hands back for a source or a style: TileJSON 3.0 (per-source and
// aggregate) and WMTS 1.0.0 capabilities XML (C9). Nothing here holds
// state past the request that asked for it — every function takes
// the scheme+host to stamp into absolute URLs.
package tilemeta

import (
	"encoding/json"
	"fmt"

	"github.com/mapcloud/tileserver/tiletype"
)

// TileJSON is the TileJSON 3.0 projection of tiletype.Metadata.
type TileJSON struct {
	TileJSON     string          `json:"tilejson"`
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	Description  string          `json:"description,omitempty"`
	Attribution  string          `json:"attribution,omitempty"`
	Scheme       string          `json:"scheme"`
	Format       string          `json:"format"`
	Tiles        []string        `json:"tiles"`
	MinZoom      uint8           `json:"minzoom"`
	MaxZoom      uint8           `json:"maxzoom"`
	Bounds       []float64       `json:"bounds,omitempty"`
	Center       []float64       `json:"center,omitempty"`
	VectorLayers json.RawMessage `json:"vector_layers,omitempty"`
}

// Build assembles one TileJSON document for meta, rooted at baseURL
// (e.g. "https://tiles.example.com"). queryKey, when non-empty, is
// appended to the tile template as ?key=... for client-side analytics.
func Build(meta tiletype.Metadata, baseURL, queryKey string) TileJSON {
	tile := fmt.Sprintf("%s/data/%s/{z}/{x}/{y}.%s", baseURL, meta.ID, meta.Format.Extension())
	if queryKey != "" {
		tile += "?key=" + queryKey
	}

	doc := TileJSON{
		TileJSON:    "3.0.0",
		ID:          meta.ID,
		Name:        meta.Name,
		Description: meta.Description,
		Attribution: meta.Attribution,
		Scheme:      "xyz",
		Format:      string(meta.Format),
		Tiles:       []string{tile},
		MinZoom:     meta.MinZoom,
		MaxZoom:     meta.MaxZoom,
	}
	if meta.Bounds != nil {
		doc.Bounds = []float64{meta.Bounds[0], meta.Bounds[1], meta.Bounds[2], meta.Bounds[3]}
	}
	if meta.Center != nil {
		doc.Center = []float64{meta.Center[0], meta.Center[1], meta.Center[2]}
	}
	if meta.Format == tiletype.FormatPBF && len(meta.VectorLayers) > 0 {
		doc.VectorLayers = meta.VectorLayers
	}
	return doc
}

// BuildAggregate builds the /data.json array: one TileJSON per
// configured source, in the manager's stable iteration order.
func BuildAggregate(metas []tiletype.Metadata, baseURL, queryKey string) []TileJSON {
	out := make([]TileJSON, 0, len(metas))
	for _, m := range metas {
		out = append(out, Build(m, baseURL, queryKey))
	}
	return out
}
