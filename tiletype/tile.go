// Package tiletype holds the small value types shared by every source
// driver, the render pipeline, and the HTTP surface: tile coordinates,
// raw tile payloads, and TileJSON-shaped source metadata.
package tiletype

import "fmt"

// MaxSupportedZoom is a safe upper bound on any driver's maxzoom.
const MaxSupportedZoom = 24

// Coord is an immutable, cheaply-copied (z, x, y) tile address.
type Coord struct {
	Z uint8
	X uint32
	Y uint32
}

// Valid reports whether c satisfies x < 2^z, y < 2^z, and z is within
// the supported range.
func (c Coord) Valid() bool {
	if c.Z > MaxSupportedZoom {
		return false
	}
	span := uint32(1) << c.Z
	return c.X < span && c.Y < span
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// FlippedY converts an XYZ row to the TMS convention MBTiles stores,
// and is its own inverse.
func (c Coord) FlippedY() uint32 {
	return (uint32(1) << c.Z) - 1 - c.Y
}

// Encoding identifies the byte-level transport encoding of a Blob.
type Encoding string

const (
	EncodingIdentity Encoding = "identity"
	EncodingGzip     Encoding = "gzip"
)

// Format identifies the content format of a tile payload.
type Format string

const (
	FormatPBF  Format = "pbf"
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatWebP Format = "webp"
)

// ContentType returns the MIME type advertised for this format.
func (f Format) ContentType() string {
	switch f {
	case FormatPBF:
		return "application/vnd.mapbox-vector-tile"
	case FormatPNG:
		return "image/png"
	case FormatJPG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the canonical file extension for this format.
func (f Format) Extension() string {
	switch f {
	case FormatJPG:
		return "jpg"
	default:
		return string(f)
	}
}

// ParseFormat maps a lowercased URL extension to a Format.
func ParseFormat(ext string) (Format, bool) {
	switch ext {
	case "pbf", "mvt":
		return FormatPBF, true
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPG, true
	case "webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

// Blob is a raw tile payload ready to be written to an HTTP response.
// Drivers report EmptyTile (structurally absent content) as an
// apperr.KindEmptyTile error with a nil Blob, not as a nil Blob with
// no error; see apperr for the distinction from NotFound.
type Blob struct {
	Bytes       []byte
	ContentType string
	Encoding    Encoding
}

// Bounds is a WGS84 bounding box: west, south, east, north.
type Bounds [4]float64

// Valid reports whether the bounds satisfy the data-model invariants.
func (b Bounds) Valid() bool {
	west, south, east, north := b[0], b[1], b[2], b[3]
	return west >= -180 && west <= east && east <= 180 &&
		south >= -90 && south <= north && north <= 90
}

// Center is a [lon, lat, zoom] triple.
type Center [3]float64

// Metadata is the TileJSON 3.0 projection of a source's static
// properties, independent of the request that will render the
// absolute tile URL.
type Metadata struct {
	ID            string
	Name          string
	Description   string
	Attribution   string
	Format        Format
	MinZoom       uint8
	MaxZoom       uint8
	Bounds        *Bounds
	Center        *Center
	VectorLayers  []byte // raw JSON array, pass-through for vector sources
}

// Valid checks the zoom and bounds invariants from the data model.
func (m Metadata) Valid() bool {
	if m.MinZoom > m.MaxZoom {
		return false
	}
	if m.Bounds != nil && !m.Bounds.Valid() {
		return false
	}
	return true
}
