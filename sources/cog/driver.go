// Package cog drives a Cloud-Optimized GeoTIFF raster source: it
// warps the requested web-mercator tile window out of the source
// raster via GDAL (airbusgeo/godal, cgo bindings) and encodes it as
// PNG, applying an optional colormap/rescale.
package cog

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/maptile"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/tiletype"
)

const tileSize = 256

var registerOnce sync.Once

// Driver is a sources.Driver backed by a GDAL-readable COG. Every
// open raster keeps one *godal.Dataset, shared by all ReadTile calls;
// a GDAL dataset handle is not safe for concurrent use, so ReadTile
// holds mu while it uses ds.
type Driver struct {
	id       string
	ds       *godal.Dataset
	mu       sync.Mutex
	colormap colorRamp
	rescale  [2]float64
	hasScale bool
	meta     tiletype.Metadata
}

// Open registers GDAL drivers once per process and opens the raster.
func Open(c config.SourceConfig) (*Driver, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(c.Path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "opening COG raster", err)
	}

	d := &Driver{id: c.ID, ds: ds}
	if c.Colormap != "" {
		ramp, err := parseColorRamp(c.Colormap)
		if err != nil {
			ds.Close()
			return nil, apperr.Wrap(apperr.KindConfigInvalid, "parsing colormap", err)
		}
		d.colormap = ramp
	}
	if len(c.Rescale) == 2 {
		d.rescale = [2]float64{c.Rescale[0], c.Rescale[1]}
		d.hasScale = true
	}

	d.meta = d.buildMetadata(c)
	return d, nil
}

func (d *Driver) buildMetadata(c config.SourceConfig) tiletype.Metadata {
	m := tiletype.Metadata{
		ID:          c.ID,
		Name:        c.Name,
		Attribution: c.Attribution,
		Format:      tiletype.FormatPNG,
		MinZoom:     2,
		MaxZoom:     18,
	}
	if c.MinZoom != nil {
		m.MinZoom = uint8(*c.MinZoom)
	}
	if c.MaxZoom != nil {
		m.MaxZoom = uint8(*c.MaxZoom)
	}
	if bounds, err := d.ds.Bounds(); err == nil {
		b := tiletype.Bounds{bounds[0], bounds[1], bounds[2], bounds[3]}
		if b.Valid() {
			m.Bounds = &b
		}
	}
	return m
}

func (d *Driver) Metadata() tiletype.Metadata { return d.meta }

func (d *Driver) ReadTileWithParams(ctx context.Context, coord tiletype.Coord, _ map[string]string) (*tiletype.Blob, error) {
	return d.ReadTile(ctx, coord)
}

// ReadTile warps the source raster onto the web-mercator window of
// coord at tileSize resolution and encodes the result as PNG.
func (d *Driver) ReadTile(ctx context.Context, coord tiletype.Coord) (*tiletype.Blob, error) {
	if !coord.Valid() {
		return nil, apperr.New(apperr.KindUserInput, "tile coordinate out of range")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t := maptile.New(coord.X, coord.Y, maptile.Zoom(coord.Z))
	bound := t.Bound()
	minX, minY := lonLatToMeters(bound.Left(), bound.Bottom())
	maxX, maxY := lonLatToMeters(bound.Right(), bound.Top())

	warped, err := d.ds.Warp("", []string{
		"-t_srs", "EPSG:3857",
		"-te", fstr(minX), fstr(minY), fstr(maxX), fstr(maxY),
		"-ts", fmt.Sprint(tileSize), fmt.Sprint(tileSize),
		"-r", "bilinear",
		"-of", "MEM",
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "warping COG tile window", err)
	}
	defer warped.Close()

	structure := warped.Structure()
	if structure.SizeX == 0 || structure.SizeY == 0 {
		return nil, apperr.New(apperr.KindEmptyTile, "tile window outside raster extent")
	}

	bands := warped.Bands()
	if len(bands) == 0 {
		return nil, apperr.New(apperr.KindRenderFailed, "warped raster has no bands")
	}
	pixels := make([]float64, tileSize*tileSize)
	if err := bands[0].Read(0, 0, pixels, tileSize, tileSize); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "reading warped COG band", err)
	}

	img := d.renderImage(pixels)
	buf, err := encodePNG(img)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRenderFailed, "encoding COG tile PNG", err)
	}
	return &tiletype.Blob{
		Bytes:       buf,
		ContentType: tiletype.FormatPNG.ContentType(),
		Encoding:    tiletype.EncodingIdentity,
	}, nil
}

// renderImage maps raw pixel values to RGBA: values are normalized
// over the configured rescale range (the tile's native min/max when
// none is configured), then colored through the colormap, or a linear
// greyscale ramp when no colormap is configured.
func (d *Driver) renderImage(pixels []float64) image.Image {
	lo, hi := d.rescale[0], d.rescale[1]
	if !d.hasScale {
		lo, hi = nativeRange(pixels)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			v := pixels[y*tileSize+x]
			t := (v - lo) / span
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
			var c color.RGBA
			if d.colormap != nil {
				c = d.colormap.at(t)
			} else {
				g := uint8(t * 255)
				c = color.RGBA{g, g, g, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func nativeRange(pixels []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range pixels {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	return lo, hi
}

func (d *Driver) Close() error {
	return d.ds.Close()
}

func fstr(f float64) string { return fmt.Sprintf("%.6f", f) }

// lonLatToMeters converts WGS84 degrees to EPSG:3857 meters.
func lonLatToMeters(lon, lat float64) (float64, float64) {
	const earthRadius = 6378137.0
	x := lon * math.Pi / 180 * earthRadius
	y := math.Log(math.Tan((90+lat)*math.Pi/360)) * earthRadius
	return x, y
}
