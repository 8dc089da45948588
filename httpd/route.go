package httpd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/tiletype"
)

// Tag is the closed set of URL shapes the router recognizes.
type Tag string

const (
	TagVectorTile  Tag = "VectorTile"
	TagRasterTile  Tag = "RasterTile"
	TagStaticImage Tag = "StaticImage"
	TagTileJSON    Tag = "TileJSON"
	TagStyleDoc    Tag = "StyleDoc"
	TagSprite      Tag = "Sprite"
	TagFont        Tag = "Font"
	TagWmts        Tag = "Wmts"
	TagSourceList  Tag = "SourceList"
	TagStyleList   Tag = "StyleList"
	TagHealth      Tag = "Health"
)

// StaticKind distinguishes the three static-image URL shapes.
type StaticKind string

const (
	StaticCenter StaticKind = "center"
	StaticBBox   StaticKind = "bbox"
	StaticAuto   StaticKind = "auto"
)

// StaticSpec carries the decoded static-image camera/canvas, tagged
// by which of the three shapes matched.
type StaticSpec struct {
	Kind StaticKind

	Lon, Lat, Zoom float64
	Bearing, Pitch float64

	West, South, East, North float64

	W, H int
}

// Request is the decoded form of one HTTP URL. Only the fields
// relevant to Tag are populated; the dispatcher switches on Tag and
// reads the matching fields.
type Request struct {
	Tag Tag

	SourceID string
	Coord    tiletype.Coord

	StyleID string
	Scale   int
	Format  tiletype.Format
	Static  *StaticSpec

	FontStack string
	FontRange string

	SpriteName string
	SpriteX2   bool
	SpriteExt  string
}

// Parse decodes an HTTP path (already percent-decoded once by the
// caller) into a Request. It is a deterministic state machine over
// path segments — no pattern-matching library.
func Parse(path string) (*Request, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "empty path")
	}

	switch segs[0] {
	case "health":
		if len(segs) == 1 {
			return &Request{Tag: TagHealth}, nil
		}
	case "data.json":
		if len(segs) == 1 {
			return &Request{Tag: TagSourceList}, nil
		}
	case "styles.json":
		if len(segs) == 1 {
			return &Request{Tag: TagStyleList}, nil
		}
	case "data":
		return parseData(segs[1:])
	case "styles":
		return parseStyles(segs[1:])
	case "fonts":
		return parseFonts(segs[1:])
	case "sprites":
		return parseSprite(segs[1:])
	}
	return nil, apperr.New(apperr.KindNotFound, "no route matches path")
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// parseData handles /data/{id}.json and /data/{id}/{z}/{x}/{y}.{ext}.
func parseData(segs []string) (*Request, error) {
	switch len(segs) {
	case 1:
		id, ok := stripSuffix(segs[0], ".json")
		if !ok {
			return nil, apperr.New(apperr.KindNotFound, "expected /data/{id}.json")
		}
		return &Request{Tag: TagTileJSON, SourceID: id}, nil
	case 4:
		id := segs[0]
		z, x, err := parseZX(segs[1], segs[2])
		if err != nil {
			return nil, err
		}
		y, ext, err := parseYExt(segs[3])
		if err != nil {
			return nil, err
		}
		coord := tiletype.Coord{Z: z, X: x, Y: y}
		format, ok := tiletype.ParseFormat(ext)
		if !ok {
			return nil, apperr.New(apperr.KindUserInput, fmt.Sprintf("unknown tile extension %q", ext))
		}
		tag := TagRasterTile
		if format == tiletype.FormatPBF {
			tag = TagVectorTile
		}
		return &Request{Tag: tag, SourceID: id, Coord: coord, Format: format}, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "no route matches /data/...")
}

// parseStyles handles style.json, wmts.xml, the rendered-tile
// endpoint, and the three static-image shapes.
func parseStyles(segs []string) (*Request, error) {
	if len(segs) < 2 {
		return nil, apperr.New(apperr.KindNotFound, "no route matches /styles/...")
	}
	id := segs[0]
	rest := segs[1:]

	if len(rest) == 1 {
		switch rest[0] {
		case "style.json":
			return &Request{Tag: TagStyleDoc, StyleID: id}, nil
		case "wmts.xml":
			return &Request{Tag: TagWmts, StyleID: id}, nil
		}
		return nil, apperr.New(apperr.KindNotFound, "no route matches /styles/{id}/...")
	}

	if len(rest) == 3 && rest[0] != "static" {
		z, x, err := parseZX(rest[0], rest[1])
		if err != nil {
			return nil, err
		}
		y, scale, fmtExt, err := parseYScaleExt(rest[2])
		if err != nil {
			return nil, err
		}
		format, ok := tiletype.ParseFormat(fmtExt)
		if !ok {
			return nil, apperr.New(apperr.KindUserInput, fmt.Sprintf("unknown raster extension %q", fmtExt))
		}
		return &Request{
			Tag:     TagRasterTile,
			StyleID: id,
			Coord:   tiletype.Coord{Z: z, X: x, Y: y},
			Scale:   scale,
			Format:  format,
		}, nil
	}

	if rest[0] == "static" {
		return parseStatic(id, rest[1:])
	}

	return nil, apperr.New(apperr.KindNotFound, "no route matches /styles/{id}/...")
}

// parseStatic handles the three static-image shapes.
func parseStatic(styleID string, segs []string) (*Request, error) {
	if len(segs) != 2 {
		return nil, apperr.New(apperr.KindNotFound, "no route matches /styles/{id}/static/...")
	}
	w, h, scale, fmtExt, err := parseSizeScaleExt(segs[1])
	if err != nil {
		return nil, err
	}
	format, ok := tiletype.ParseFormat(fmtExt)
	if !ok {
		return nil, apperr.New(apperr.KindUserInput, fmt.Sprintf("unknown static-image extension %q", fmtExt))
	}

	if segs[0] == "auto" {
		return &Request{
			Tag:     TagStaticImage,
			StyleID: styleID,
			Scale:   scale,
			Format:  format,
			Static:  &StaticSpec{Kind: StaticAuto, W: w, H: h},
		}, nil
	}

	spec, err := parseStaticParams(segs[0])
	if err != nil {
		return nil, err
	}
	spec.W, spec.H = w, h
	return &Request{Tag: TagStaticImage, StyleID: styleID, Scale: scale, Format: format, Static: spec}, nil
}

// parseStaticParams distinguishes center ("{lon},{lat},{zoom}[@{bearing}[,{pitch}]]")
// from bbox ("{minx},{miny},{maxx},{maxy}") by the comma-count of the
// portion before any "@".
func parseStaticParams(seg string) (*StaticSpec, error) {
	main := seg
	var camSuffix string
	if i := strings.IndexByte(seg, '@'); i >= 0 {
		main, camSuffix = seg[:i], seg[i+1:]
	}
	parts := strings.Split(main, ",")

	switch len(parts) {
	case 3:
		lon, lat, zoom, err := parseDecimal3(parts[0], parts[1], parts[2])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUserInput, "invalid static center", err)
		}
		spec := &StaticSpec{Kind: StaticCenter, Lon: lon, Lat: lat, Zoom: zoom}
		if camSuffix != "" {
			camParts := strings.Split(camSuffix, ",")
			bearing, err := strconv.ParseFloat(camParts[0], 64)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindUserInput, "invalid bearing", err)
			}
			spec.Bearing = bearing
			if len(camParts) > 1 {
				pitch, err := strconv.ParseFloat(camParts[1], 64)
				if err != nil {
					return nil, apperr.Wrap(apperr.KindUserInput, "invalid pitch", err)
				}
				spec.Pitch = pitch
			}
		}
		return spec, nil
	case 4:
		west, south, east, north, err := parseDecimal4(parts[0], parts[1], parts[2], parts[3])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUserInput, "invalid static bounding box", err)
		}
		return &StaticSpec{Kind: StaticBBox, West: west, South: south, East: east, North: north}, nil
	default:
		return nil, apperr.New(apperr.KindUserInput, "static parameters must be lon,lat,zoom or minx,miny,maxx,maxy")
	}
}

func parseFonts(segs []string) (*Request, error) {
	if len(segs) != 2 {
		return nil, apperr.New(apperr.KindNotFound, "no route matches /fonts/...")
	}
	rng, ok := stripSuffix(segs[1], ".pbf")
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "font range must end in .pbf")
	}
	return &Request{Tag: TagFont, FontStack: segs[0], FontRange: rng}, nil
}

// parseSprite handles /sprites/{name}[@2x].{json|png}.
func parseSprite(segs []string) (*Request, error) {
	if len(segs) != 1 {
		return nil, apperr.New(apperr.KindNotFound, "no route matches /sprites/...")
	}
	dot := strings.LastIndexByte(segs[0], '.')
	if dot < 0 {
		return nil, apperr.New(apperr.KindNotFound, "sprite path missing extension")
	}
	name, ext := segs[0][:dot], segs[0][dot+1:]
	x2 := false
	if strings.HasSuffix(name, "@2x") {
		x2 = true
		name = strings.TrimSuffix(name, "@2x")
	}
	if ext != "json" && ext != "png" {
		return nil, apperr.New(apperr.KindNotFound, "sprite extension must be json or png")
	}
	return &Request{Tag: TagSprite, SpriteName: name, SpriteX2: x2, SpriteExt: ext}, nil
}

func stripSuffix(s, suffix string) (string, bool) {
	if !strings.HasSuffix(s, suffix) || len(s) <= len(suffix) {
		return "", false
	}
	return strings.TrimSuffix(s, suffix), true
}

func parseZX(zSeg, xSeg string) (uint8, uint32, error) {
	z, err := strconv.ParseUint(zSeg, 10, 8)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.KindUserInput, "invalid zoom", err)
	}
	x, err := strconv.ParseUint(xSeg, 10, 32)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.KindUserInput, "invalid x", err)
	}
	return uint8(z), uint32(x), nil
}

// parseYExt splits "{y}.{ext}".
func parseYExt(seg string) (uint32, string, error) {
	dot := strings.LastIndexByte(seg, '.')
	if dot < 0 {
		return 0, "", apperr.New(apperr.KindUserInput, "tile segment missing extension")
	}
	y, err := strconv.ParseUint(seg[:dot], 10, 32)
	if err != nil {
		return 0, "", apperr.Wrap(apperr.KindUserInput, "invalid y", err)
	}
	return uint32(y), strings.ToLower(seg[dot+1:]), nil
}

// parseYScaleExt splits "{y}[@{s}x].{ext}".
func parseYScaleExt(seg string) (uint32, int, string, error) {
	dot := strings.LastIndexByte(seg, '.')
	if dot < 0 {
		return 0, 0, "", apperr.New(apperr.KindUserInput, "tile segment missing extension")
	}
	body, ext := seg[:dot], strings.ToLower(seg[dot+1:])
	yPart, scale, err := splitScale(body)
	if err != nil {
		return 0, 0, "", err
	}
	y, err := strconv.ParseUint(yPart, 10, 32)
	if err != nil {
		return 0, 0, "", apperr.Wrap(apperr.KindUserInput, "invalid y", err)
	}
	return uint32(y), scale, ext, nil
}

// parseSizeScaleExt splits "{W}x{H}[@{s}x].{ext}".
func parseSizeScaleExt(seg string) (int, int, int, string, error) {
	dot := strings.LastIndexByte(seg, '.')
	if dot < 0 {
		return 0, 0, 0, "", apperr.New(apperr.KindUserInput, "static-image segment missing extension")
	}
	body, ext := seg[:dot], strings.ToLower(seg[dot+1:])
	sizePart, scale, err := splitScale(body)
	if err != nil {
		return 0, 0, 0, "", err
	}
	xIdx := strings.IndexByte(sizePart, 'x')
	if xIdx < 0 {
		return 0, 0, 0, "", apperr.New(apperr.KindUserInput, "expected {W}x{H}")
	}
	w, err := strconv.Atoi(sizePart[:xIdx])
	if err != nil {
		return 0, 0, 0, "", apperr.Wrap(apperr.KindUserInput, "invalid width", err)
	}
	h, err := strconv.Atoi(sizePart[xIdx+1:])
	if err != nil {
		return 0, 0, 0, "", apperr.Wrap(apperr.KindUserInput, "invalid height", err)
	}
	return w, h, scale, ext, nil
}

// splitScale splits "{body}[@{s}x]" into body and scale (default 1).
func splitScale(s string) (string, int, error) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return s, 1, nil
	}
	scaleTok := s[at+1:]
	scaleTok = strings.TrimSuffix(scaleTok, "x")
	scale, err := strconv.Atoi(scaleTok)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.KindUserInput, "invalid pixel-ratio suffix", err)
	}
	return s[:at], scale, nil
}

// parseDecimal3/4 use shopspring/decimal for exact parsing of the
// path's decimal tokens, avoiding float round-trip drift at the
// boundary values the testable-properties table exercises.
func parseDecimal3(a, b, c string) (float64, float64, float64, error) {
	x, err := decimalFloat(a)
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := decimalFloat(b)
	if err != nil {
		return 0, 0, 0, err
	}
	z, err := decimalFloat(c)
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

func parseDecimal4(a, b, c, d string) (float64, float64, float64, float64, error) {
	w, err := decimalFloat(a)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	x, err := decimalFloat(b)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	y, err := decimalFloat(c)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	z, err := decimalFloat(d)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return w, x, y, z, nil
}

func decimalFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
