// Package render owns the renderer pool (C5): per-pixel-ratio pools
// of thread-pinned native.Map handles with bounded checkout, style
// caching, and poison/replace discipline.
package render

import (
	"fmt"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/render/native"
	"github.com/mapcloud/tileserver/tiletype"
)

// MaxDimension is the largest width/height a RenderJob may request.
const MaxDimension = 4096

// MaxPixelArea bounds width*scale * height*scale.
const MaxPixelArea = 16 * 1024 * 1024

// MaxPixelRatio is the largest accepted pixel ratio.
const MaxPixelRatio = 4

// Size is a render target's logical dimensions and device pixel
// ratio.
type Size struct {
	Width, Height int
	PixelRatio    int
}

// DevicePixels returns the size scaled by PixelRatio.
func (s Size) DevicePixels() (int, int) {
	return s.Width * s.PixelRatio, s.Height * s.PixelRatio
}

// Validate enforces the size/scale/area limits.
func (s Size) Validate() error {
	if s.Width < 1 || s.Width > MaxDimension {
		return apperr.New(apperr.KindUserInput, fmt.Sprintf("width %d out of range [1,%d]", s.Width, MaxDimension))
	}
	if s.Height < 1 || s.Height > MaxDimension {
		return apperr.New(apperr.KindUserInput, fmt.Sprintf("height %d out of range [1,%d]", s.Height, MaxDimension))
	}
	if s.PixelRatio < 1 || s.PixelRatio > MaxPixelRatio {
		return apperr.New(apperr.KindUserInput, fmt.Sprintf("pixel ratio %d out of range [1,%d]", s.PixelRatio, MaxPixelRatio))
	}
	w, h := s.DevicePixels()
	if w*h > MaxPixelArea {
		return apperr.New(apperr.KindUserInput, fmt.Sprintf("effective pixel area %d exceeds %d", w*h, MaxPixelArea))
	}
	return nil
}

// ClampPixelRatio clamps r into the supported {1,2,3} pool-key set.
func ClampPixelRatio(r int) int {
	switch {
	case r <= 1:
		return 1
	case r == 2:
		return 2
	default:
		return 3
	}
}

// Overlay is an opaque static-map overlay descriptor (marker or
// polyline). This core only carries the parsed, bounds-contributing
// geometry through to the auto-fit calculation — it does not draw
// overlays onto the rendered canvas.
type Overlay struct {
	Kind   string // "marker" or "path"
	Raw    string // the original query-string value, for diagnostics
	Points []Point
}

// Point is a (lon, lat) pair.
type Point struct {
	Lon, Lat float64
}

// Job is a value type describing one render request.
type Job struct {
	StyleID string
	Camera  native.Camera
	Size    Size
	Format  tiletype.Format
	Overlays []Overlay
}

// Validate enforces Job's data-model invariants.
func (j Job) Validate() error {
	if j.StyleID == "" {
		return apperr.New(apperr.KindUserInput, "missing style id")
	}
	if err := j.Size.Validate(); err != nil {
		return err
	}
	switch j.Format {
	case tiletype.FormatPNG, tiletype.FormatJPG, tiletype.FormatWebP:
	default:
		return apperr.New(apperr.KindUserInput, fmt.Sprintf("unsupported render format %q", j.Format))
	}
	return nil
}

// Result is the pixel buffer a successful render produces, already
// copied out of the C-owned buffer.
type Result struct {
	RGBA   []byte
	Width  int
	Height int
}
