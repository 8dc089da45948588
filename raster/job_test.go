package raster

import (
	"math"
	"testing"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/tiletype"
)

func TestValidateScale(t *testing.T) {
	if err := ValidateScale(1); err != nil {
		t.Errorf("expected scale 1 to be valid, got %v", err)
	}
	if err := ValidateScale(render.MaxPixelRatio); err != nil {
		t.Errorf("expected scale %d to be valid, got %v", render.MaxPixelRatio, err)
	}
	if err := ValidateScale(0); err == nil {
		t.Errorf("expected scale 0 to be rejected")
	}
	if err := ValidateScale(render.MaxPixelRatio + 1); err == nil {
		t.Errorf("expected scale beyond the max to be rejected")
	}
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []tiletype.Format{tiletype.FormatPNG, tiletype.FormatJPG, tiletype.FormatWebP} {
		if err := ValidateFormat(f); err != nil {
			t.Errorf("expected format %v to be valid, got %v", f, err)
		}
	}
	if err := ValidateFormat(tiletype.FormatPBF); err == nil {
		t.Errorf("expected pbf to be rejected as a raster format")
	}
}

func TestTileJobCentersOnTileBounds(t *testing.T) {
	job, err := TileJob(TileParams{
		StyleID: "basic",
		Coord:   tiletype.Coord{Z: 0, X: 0, Y: 0},
		Scale:   1,
		Format:  tiletype.FormatPNG,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Camera.Zoom != 0 {
		t.Errorf("Zoom = %v, want 0", job.Camera.Zoom)
	}
	if math.Abs(job.Camera.Lon) > 1e-6 || math.Abs(job.Camera.Lat) > 1e-6 {
		t.Errorf("expected zoom-0 tile centered near (0,0), got (%v,%v)", job.Camera.Lon, job.Camera.Lat)
	}
	if job.Size.Width != BaseTileSize || job.Size.Height != BaseTileSize {
		t.Errorf("Size = %+v, want %dx%d", job.Size, BaseTileSize, BaseTileSize)
	}
}

func TestTileJobRejectsInvalidCoord(t *testing.T) {
	_, err := TileJob(TileParams{
		StyleID: "basic",
		Coord:   tiletype.Coord{Z: 2, X: 99, Y: 0},
		Scale:   1,
		Format:  tiletype.FormatPNG,
	})
	if err == nil {
		t.Fatalf("expected an out-of-range coordinate to fail")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindUserInput {
		t.Errorf("expected KindUserInput, got %v", err)
	}
}

func TestStaticBBoxJobRejectsInvertedBounds(t *testing.T) {
	_, err := StaticBBoxJob(StaticBBoxParams{
		StyleID: "basic",
		West:    10, South: 0, East: -10, North: 5,
		W: 600, H: 400, Scale: 1, Format: tiletype.FormatPNG,
	})
	if err == nil {
		t.Fatalf("expected inverted bounds to fail")
	}
}

func TestStaticBBoxJobFitsCenterAndZoom(t *testing.T) {
	job, err := StaticBBoxJob(StaticBBoxParams{
		StyleID: "basic",
		West:    -10, South: -10, East: 10, North: 10,
		W: 512, H: 512, Scale: 1, Format: tiletype.FormatPNG,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(job.Camera.Lon) > 1e-9 || math.Abs(job.Camera.Lat) > 1e-9 {
		t.Errorf("expected the camera centered on the bbox midpoint, got (%v,%v)", job.Camera.Lon, job.Camera.Lat)
	}
	if job.Camera.Zoom <= 0 || job.Camera.Zoom > MaxFitZoom {
		t.Errorf("Zoom = %v, want in (0, %d]", job.Camera.Zoom, MaxFitZoom)
	}
}

func TestStaticAutoJobRequiresOverlayPoints(t *testing.T) {
	_, err := StaticAutoJob(StaticAutoParams{
		StyleID: "basic",
		W:       400, H: 400, Scale: 1, Format: tiletype.FormatPNG,
	})
	if err == nil {
		t.Fatalf("expected static/auto with no overlays to fail")
	}
}

func TestStaticAutoJobFitsOverlayBounds(t *testing.T) {
	overlays := []render.Overlay{
		{Kind: "marker", Points: []render.Point{{Lon: -1, Lat: -1}}},
		{Kind: "marker", Points: []render.Point{{Lon: 1, Lat: 1}}},
	}
	job, err := StaticAutoJob(StaticAutoParams{
		StyleID:  "basic",
		W:        400, H: 400, Scale: 1, Format: tiletype.FormatPNG,
		Overlays: overlays,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(job.Camera.Lon) > 1e-9 || math.Abs(job.Camera.Lat) > 1e-9 {
		t.Errorf("expected the camera centered on the overlay bounds, got (%v,%v)", job.Camera.Lon, job.Camera.Lat)
	}
}

func TestFitZoomIsMonotonicWithBoxSize(t *testing.T) {
	small := fitZoom(-1, -1, 1, 1, 512, 512, DefaultPadding)
	large := fitZoom(-10, -10, 10, 10, 512, 512, DefaultPadding)
	if small <= large {
		t.Errorf("expected a smaller bounding box to fit at a higher zoom: small=%v large=%v", small, large)
	}
}

func TestFitZoomClampsToRange(t *testing.T) {
	huge := fitZoom(-180, -85, 180, 85, 1, 1, DefaultPadding)
	if huge < 0 {
		t.Errorf("expected fitZoom to clamp at 0, got %v", huge)
	}
	tiny := fitZoom(-0.0000001, -0.0000001, 0.0000001, 0.0000001, 4096, 4096, DefaultPadding)
	if tiny > MaxFitZoom {
		t.Errorf("expected fitZoom to clamp at %d, got %v", MaxFitZoom, tiny)
	}
}
