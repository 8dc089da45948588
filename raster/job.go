package raster

import (
	"math"

	"github.com/paulmach/orb/maptile"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/render/native"
	"github.com/mapcloud/tileserver/tiletype"
)

// TileParams describes GET /styles/{id}/{z}/{x}/{y}[@{s}x].{fmt}.
type TileParams struct {
	StyleID string
	Coord   tiletype.Coord
	Scale   int
	Format  tiletype.Format
}

// TileJob builds the render.Job for a single XYZ tile: the camera is
// centered on the tile's own bounds at its own zoom, sized to one
// base tile times the requested scale.
func TileJob(p TileParams) (render.Job, error) {
	if !p.Coord.Valid() {
		return render.Job{}, apperr.New(apperr.KindUserInput, "tile coordinate out of range")
	}
	if err := ValidateScale(p.Scale); err != nil {
		return render.Job{}, err
	}
	if err := ValidateFormat(p.Format); err != nil {
		return render.Job{}, err
	}

	t := maptile.New(uint32(p.Coord.X), uint32(p.Coord.Y), maptile.Zoom(p.Coord.Z))
	center := t.Bound().Center()

	job := render.Job{
		StyleID: p.StyleID,
		Camera: native.Camera{
			Lon:  center.X(),
			Lat:  center.Y(),
			Zoom: float64(p.Coord.Z),
		},
		Size: render.Size{
			Width:      BaseTileSize,
			Height:     BaseTileSize,
			PixelRatio: p.Scale,
		},
		Format: p.Format,
	}
	if err := job.Validate(); err != nil {
		return render.Job{}, err
	}
	return job, nil
}

// StaticCenterParams describes
// GET /styles/{id}/static/{lon},{lat},{zoom}[@{bearing}[,{pitch}]]/{W}x{H}[@{s}x].{fmt}.
type StaticCenterParams struct {
	StyleID         string
	Lon, Lat, Zoom  float64
	Bearing, Pitch  float64
	W, H, Scale     int
	Format          tiletype.Format
}

// StaticCenterJob builds the render.Job directly from the decoded
// camera and canvas size; no bounds-fitting is needed since the
// client specified the viewpoint explicitly.
func StaticCenterJob(p StaticCenterParams) (render.Job, error) {
	if err := ValidateScale(p.Scale); err != nil {
		return render.Job{}, err
	}
	if err := ValidateFormat(p.Format); err != nil {
		return render.Job{}, err
	}
	job := render.Job{
		StyleID: p.StyleID,
		Camera: native.Camera{
			Lon:     p.Lon,
			Lat:     p.Lat,
			Zoom:    p.Zoom,
			Bearing: p.Bearing,
			Pitch:   p.Pitch,
		},
		Size: render.Size{
			Width:      p.W,
			Height:     p.H,
			PixelRatio: p.Scale,
		},
		Format: p.Format,
	}
	if err := job.Validate(); err != nil {
		return render.Job{}, err
	}
	return job, nil
}

// StaticBBoxParams describes
// GET /styles/{id}/static/{minx},{miny},{maxx},{maxy}/{W}x{H}[@{s}x].{fmt}.
type StaticBBoxParams struct {
	StyleID     string
	West, South float64
	East, North float64
	W, H, Scale int
	Format      tiletype.Format
}

// StaticBBoxJob fits the bounding box into (W,H) at the largest
// (fractional) zoom that keeps the box fully visible with
// DefaultPadding margin.
func StaticBBoxJob(p StaticBBoxParams) (render.Job, error) {
	if p.East <= p.West || p.North <= p.South {
		return render.Job{}, apperr.New(apperr.KindUserInput, "empty or inverted bounding box")
	}
	if err := ValidateScale(p.Scale); err != nil {
		return render.Job{}, err
	}
	if err := ValidateFormat(p.Format); err != nil {
		return render.Job{}, err
	}

	lon := (p.West + p.East) / 2
	lat := (p.South + p.North) / 2
	zoom := fitZoom(p.West, p.South, p.East, p.North, p.W, p.H, DefaultPadding)

	job := render.Job{
		StyleID: p.StyleID,
		Camera:  native.Camera{Lon: lon, Lat: lat, Zoom: zoom},
		Size:    render.Size{Width: p.W, Height: p.H, PixelRatio: p.Scale},
		Format:  p.Format,
	}
	if err := job.Validate(); err != nil {
		return render.Job{}, err
	}
	return job, nil
}

// StaticAutoParams describes
// GET /styles/{id}/static/auto/{W}x{H}[@{s}x].{fmt}?path=…&marker=….
type StaticAutoParams struct {
	StyleID  string
	W, H     int
	Scale    int
	Format   tiletype.Format
	Overlays []render.Overlay
}

// StaticAutoJob fits the canvas to the union of every overlay point's
// bounds.
func StaticAutoJob(p StaticAutoParams) (render.Job, error) {
	west, south, east, north, ok := overlayBounds(p.Overlays)
	if !ok {
		return render.Job{}, apperr.New(apperr.KindUserInput, "static/auto requires at least one overlay point")
	}
	return StaticBBoxJob(StaticBBoxParams{
		StyleID: p.StyleID,
		West:    west, South: south, East: east, North: north,
		W: p.W, H: p.H, Scale: p.Scale, Format: p.Format,
	})
}

func overlayBounds(overlays []render.Overlay) (west, south, east, north float64, ok bool) {
	west, south = math.MaxFloat64, math.MaxFloat64
	east, north = -math.MaxFloat64, -math.MaxFloat64
	for _, ov := range overlays {
		for _, pt := range ov.Points {
			ok = true
			west = math.Min(west, pt.Lon)
			east = math.Max(east, pt.Lon)
			south = math.Min(south, pt.Lat)
			north = math.Max(north, pt.Lat)
		}
	}
	return
}

// earthCircumferenceMeters is the Web Mercator projection's
// equatorial circumference, the same constant the COG driver's
// mercator projection uses.
const earthCircumferenceMeters = 40075016.685578

// fitZoom returns the largest zoom (clamped to [0, MaxFitZoom]) at
// which a Web Mercator bounding box fits inside a w×h pixel canvas
// with the given fractional padding on every side.
func fitZoom(west, south, east, north float64, w, h int, padding float64) float64 {
	x0, y0 := mercatorMeters(west, south)
	x1, y1 := mercatorMeters(east, north)
	dx := math.Abs(x1 - x0)
	dy := math.Abs(y1 - y0)
	if dx < 1 {
		dx = 1
	}
	if dy < 1 {
		dy = 1
	}

	effW := float64(w) * (1 - 2*padding)
	effH := float64(h) * (1 - 2*padding)
	if effW < 1 {
		effW = 1
	}
	if effH < 1 {
		effH = 1
	}

	zx := math.Log2(effW * earthCircumferenceMeters / (dx * BaseTileSize))
	zy := math.Log2(effH * earthCircumferenceMeters / (dy * BaseTileSize))
	z := math.Min(zx, zy)
	if z < 0 {
		z = 0
	}
	if z > MaxFitZoom {
		z = MaxFitZoom
	}
	return z
}

func mercatorMeters(lon, lat float64) (float64, float64) {
	const originShift = earthCircumferenceMeters / 2
	x := lon * originShift / 180
	y := math.Log(math.Tan((90+lat)*math.Pi/360)) / (math.Pi / 180)
	y = y * originShift / 180
	return x, y
}
