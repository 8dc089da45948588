package cog

import (
	"bytes"
	"image"
	"image/png"
)

// encodePNG is a thin wrapper so renderImage's caller doesn't need to
// know about bytes.Buffer plumbing. The render pipeline (raster
// package) owns the PNG/JPEG/WebP encoding policy for rendered map
// tiles; COG tiles are always PNG, a format decision baked into the
// driver rather than the request, so it is encoded here directly with
// the standard library (no third-party PNG encoder appears anywhere
// in the retrieval pack).
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
