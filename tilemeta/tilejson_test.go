package tilemeta

import (
	"strings"
	"testing"

	"github.com/mapcloud/tileserver/tiletype"
)

func TestBuildTileURL(t *testing.T) {
	meta := tiletype.Metadata{ID: "basemap", Format: tiletype.FormatPBF, MinZoom: 0, MaxZoom: 14}
	doc := Build(meta, "https://tiles.example.com", "")
	if len(doc.Tiles) != 1 {
		t.Fatalf("Tiles = %v, want one entry", doc.Tiles)
	}
	want := "https://tiles.example.com/data/basemap/{z}/{x}/{y}.pbf"
	if doc.Tiles[0] != want {
		t.Errorf("Tiles[0] = %q, want %q", doc.Tiles[0], want)
	}
	if doc.TileJSON != "3.0.0" {
		t.Errorf("TileJSON = %q, want 3.0.0", doc.TileJSON)
	}
}

func TestBuildAppendsQueryKey(t *testing.T) {
	meta := tiletype.Metadata{ID: "basemap", Format: tiletype.FormatPNG}
	doc := Build(meta, "https://tiles.example.com", "abc123")
	if !strings.HasSuffix(doc.Tiles[0], "?key=abc123") {
		t.Errorf("Tiles[0] = %q, want a ?key=abc123 suffix", doc.Tiles[0])
	}
}

func TestBuildCarriesBoundsAndCenter(t *testing.T) {
	bounds := tiletype.Bounds{-10, -10, 10, 10}
	center := tiletype.Center{0, 0, 5}
	meta := tiletype.Metadata{ID: "basemap", Format: tiletype.FormatPNG, Bounds: &bounds, Center: &center}
	doc := Build(meta, "https://tiles.example.com", "")
	if len(doc.Bounds) != 4 || doc.Bounds[0] != -10 {
		t.Errorf("Bounds = %v, want %v", doc.Bounds, bounds)
	}
	if len(doc.Center) != 3 || doc.Center[2] != 5 {
		t.Errorf("Center = %v, want %v", doc.Center, center)
	}
}

func TestBuildOmitsVectorLayersForRaster(t *testing.T) {
	meta := tiletype.Metadata{ID: "satellite", Format: tiletype.FormatPNG, VectorLayers: []byte(`[{"id":"x"}]`)}
	doc := Build(meta, "https://tiles.example.com", "")
	if doc.VectorLayers != nil {
		t.Errorf("expected VectorLayers to be omitted for a raster source, got %s", doc.VectorLayers)
	}
}

func TestBuildAggregate(t *testing.T) {
	metas := []tiletype.Metadata{
		{ID: "a", Format: tiletype.FormatPBF},
		{ID: "b", Format: tiletype.FormatPNG},
	}
	docs := BuildAggregate(metas, "https://tiles.example.com", "")
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].ID != "a" || docs[1].ID != "b" {
		t.Errorf("expected aggregate order to match input order, got %q then %q", docs[0].ID, docs[1].ID)
	}
}
