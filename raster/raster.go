// Package raster turns a decoded tile or static-image request into a
// render.Job and turns a render.Result back into encoded bytes. It is
// the glue between the HTTP surface's route parser and the renderer
// pool: decode parameters, assemble a job, hand off to a worker.
package raster

import (
	"fmt"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/tiletype"
)

// BaseTileSize is the logical pixel size of one tile at 1x, matching
// the native renderer's default tile-mode surface.
const BaseTileSize = 512

// DefaultPadding is applied when fitting a bounding box or an
// overlay union into a requested canvas, leaving a margin so edge
// features are not clipped against the frame.
const DefaultPadding = 0.05

// MaxFitZoom caps the zoom fitZoom returns; beyond this
// the renderer pool's own Size/pixel-ratio limits are the binding
// constraint.
const MaxFitZoom = 22

// ValidateScale enforces the scale ceiling independent of
// render.Size.Validate, since scale arrives as its own URL token
// before a Job is assembled.
func ValidateScale(scale int) error {
	if scale < 1 || scale > render.MaxPixelRatio {
		return apperr.New(apperr.KindUserInput, fmt.Sprintf("scale @%dx out of range [1,%d]", scale, render.MaxPixelRatio))
	}
	return nil
}

// ValidateFormat restricts RenderJob output to the raster formats the
// encoder supports (vector passthrough never reaches this package).
func ValidateFormat(f tiletype.Format) error {
	switch f {
	case tiletype.FormatPNG, tiletype.FormatJPG, tiletype.FormatWebP:
		return nil
	default:
		return apperr.New(apperr.KindUserInput, fmt.Sprintf("unsupported raster format %q", f))
	}
}
