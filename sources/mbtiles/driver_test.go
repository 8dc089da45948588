package mbtiles

import (
	"testing"

	"github.com/mapcloud/tileserver/tiletype"
)

func TestFormatFromString(t *testing.T) {
	if got := formatFromString("pbf"); got != tiletype.FormatPBF {
		t.Errorf("formatFromString(pbf) = %v, want %v", got, tiletype.FormatPBF)
	}
	if got := formatFromString("png"); got != tiletype.FormatPNG {
		t.Errorf("formatFromString(png) = %v, want %v", got, tiletype.FormatPNG)
	}
	if got := formatFromString("unknown"); got != tiletype.FormatPBF {
		t.Errorf("formatFromString(unknown) = %v, want the default %v", got, tiletype.FormatPBF)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "third"); got != "third" {
		t.Errorf("firstNonEmpty = %q, want %q", got, "third")
	}
	if got := firstNonEmpty("first", "second"); got != "first" {
		t.Errorf("firstNonEmpty = %q, want %q", got, "first")
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty of all-empty = %q, want empty", got)
	}
}

func TestIsGzip(t *testing.T) {
	if !isGzip([]byte{0x1f, 0x8b, 0x08, 0x00}) {
		t.Errorf("expected the gzip magic bytes to be recognized")
	}
	if isGzip([]byte{0x00, 0x01}) {
		t.Errorf("expected non-gzip bytes to be rejected")
	}
	if isGzip([]byte{0x1f}) {
		t.Errorf("expected a single byte to be rejected")
	}
}

func TestTileCoordFlipsToTMS(t *testing.T) {
	// MBTiles stores TMS rows: XYZ (z=3, y=1) maps to TMS row 2^3-1-1=6.
	c := tiletype.Coord{Z: 3, X: 0, Y: 1}
	if got, want := c.FlippedY(), uint32(6); got != want {
		t.Errorf("FlippedY() = %d, want %d", got, want)
	}
}
