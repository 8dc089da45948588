package raster

import (
	"bytes"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/tiletype"
)

// solidResult builds a 2x2 render.Result of one RGBA color, cheap
// enough to encode without a native renderer.
func solidResult(r, g, b, a byte) *render.Result {
	pix := make([]byte, 2*2*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, a
	}
	return &render.Result{RGBA: pix, Width: 2, Height: 2}
}

func TestEncodePNGRoundTrips(t *testing.T) {
	result := solidResult(10, 20, 30, 128)
	data, contentType, err := Encode(result, tiletype.FormatPNG)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if contentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", contentType)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	// The input is alpha-premultiplied and PNG stores straight alpha:
	// (10,20,30,128) is written as (19,39,59,128), which reads back
	// premultiplied as (9,19,29,128) after 8-bit truncation.
	r, g, b, a := img.At(0, 0).RGBA()
	if byte(r>>8) != 9 || byte(g>>8) != 19 || byte(b>>8) != 29 || byte(a>>8) != 128 {
		t.Errorf("decoded pixel = (%d,%d,%d,%d), want (9,19,29,128)", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestEncodeJPEGCompositesOnWhite(t *testing.T) {
	// fully transparent black should composite to opaque white.
	result := solidResult(0, 0, 0, 0)
	data, contentType, err := Encode(result, tiletype.FormatJPG)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if contentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", contentType)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg.Decode: %v", err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	// JPEG is lossy; assert "close to white" rather than exact.
	if r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
		t.Errorf("decoded pixel = (%d,%d,%d), want near-white", r>>8, g>>8, b>>8)
	}
}

func TestEncodeRejectsUnsupportedFormat(t *testing.T) {
	result := solidResult(1, 2, 3, 255)
	if _, _, err := Encode(result, tiletype.FormatPBF); err == nil {
		t.Errorf("expected pbf to be rejected as an encode target")
	}
}
