package tilemeta

import (
	"encoding/xml"
	"fmt"
)

// scaleDenominators256 is the standard OGC GoogleMapsCompatible scale
// denominator table for a 256px tile matrix, zoom levels 0-23. Reused
// verbatim from the WMTS 1.0.0 Simple Profile annex rather than
// recomputed per request.
var scaleDenominators256 = []float64{
	559082264.0287178, 279541132.0143589, 139770566.0071794, 69885283.00358972,
	34942641.50179486, 17471320.75089743, 8735660.375448715, 4367830.187724357,
	2183915.093862179, 1091957.546931089, 545978.7734655447, 272989.3867327723,
	136494.6933663862, 68247.34668319309, 34123.67334159654, 17061.83667079827,
	8530.918335399136, 4265.459167699568, 2132.729583849784, 1066.364791924892,
	533.182395962446, 266.591197981223, 133.2955989906115, 66.64779949530575,
}

// tileMatrixSetName returns the well-known scale set identifier for a
// given tile size: GoogleMapsCompatible_256 or GoogleMapsCompatible_512.
// The 512px set is a distinct matrix from the 256px one, not a shared
// one at a different scale factor: same geographic extent, double the
// pixels per tile, so its scale denominators are halved.
func tileMatrixSetName(tileSize int) string {
	return fmt.Sprintf("GoogleMapsCompatible_%d", tileSize)
}

// StyleEntry is the minimal per-style input the capabilities document
// needs: its id. Tile sizes are not configurable per style: every
// style gets one Layer for 256px tiles and one for 512px tiles, each
// linked to its own TileMatrixSet.
type StyleEntry struct {
	ID string
}

type capabilities struct {
	XMLName xml.Name `xml:"Capabilities"`
	Xmlns   string   `xml:"xmlns,attr"`
	XmlnsOws string  `xml:"xmlns:ows,attr"`
	Version string   `xml:"version,attr"`

	Contents contents `xml:"Contents"`
}

type contents struct {
	Layers         []layer         `xml:"Layer"`
	TileMatrixSets []tileMatrixSet `xml:"TileMatrixSet"`
}

type layer struct {
	Title              string             `xml:"ows:Title"`
	Identifier         string             `xml:"ows:Identifier"`
	Format             string             `xml:"Format"`
	TileMatrixSetLink  tileMatrixSetLink  `xml:"TileMatrixSetLink"`
	ResourceURL        resourceURL        `xml:"ResourceURL"`
}

type tileMatrixSetLink struct {
	TileMatrixSet string `xml:"TileMatrixSet"`
}

type resourceURL struct {
	Format       string `xml:"format,attr"`
	ResourceType string `xml:"resourceType,attr"`
	Template     string `xml:"template,attr"`
}

type tileMatrixSet struct {
	Identifier   string        `xml:"ows:Identifier"`
	SupportedCRS string        `xml:"ows:SupportedCRS"`
	TileMatrices []tileMatrix  `xml:"TileMatrix"`
}

type tileMatrix struct {
	Identifier       string `xml:"ows:Identifier"`
	ScaleDenominator string `xml:"ScaleDenominator"`
	TileWidth        int    `xml:"TileWidth"`
	TileHeight       int    `xml:"TileHeight"`
	MatrixWidth      int    `xml:"MatrixWidth"`
	MatrixHeight     int    `xml:"MatrixHeight"`
}

// BuildCapabilities assembles the WMTS 1.0.0 capabilities document for
// one style: one Layer per advertised tile size (256px and 512px),
// each linked to its own TileMatrixSet (GoogleMapsCompatible_256 and
// GoogleMapsCompatible_512). queryKey is appended to every ResourceURL
// template when non-empty.
func BuildCapabilities(style StyleEntry, baseURL, queryKey string) ([]byte, error) {
	suffix := ""
	if queryKey != "" {
		suffix = "?key=" + queryKey
	}

	caps := capabilities{
		Xmlns:    "http://www.opengis.net/wmts/1.0",
		XmlnsOws: "http://www.opengis.net/ows/1.1",
		Version:  "1.0.0",
		Contents: contents{
			Layers: []layer{
				wmtsLayer(style, baseURL, 256, suffix),
				wmtsLayer(style, baseURL, 512, suffix),
			},
			TileMatrixSets: []tileMatrixSet{
				buildTileMatrixSet(256),
				buildTileMatrixSet(512),
			},
		},
	}

	out, err := xml.MarshalIndent(caps, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// wmtsLayer builds the Layer for one tile size. The 512px layer's
// template carries the @2x suffix the route parser (splitScale)
// requires to render at 512px — without it the request would resolve
// to a plain 256px tile.
func wmtsLayer(style StyleEntry, baseURL string, tileSize int, suffix string) layer {
	identifier := style.ID
	scaleTag := ""
	if tileSize != 256 {
		identifier = fmt.Sprintf("%s@%dpx", style.ID, tileSize)
		scaleTag = "@2x"
	}
	tmpl := fmt.Sprintf("%s/styles/%s/{TileMatrix}/{TileCol}/{TileRow}%s.png%s", baseURL, style.ID, scaleTag, suffix)
	return layer{
		Title:      style.ID,
		Identifier: identifier,
		Format:     "image/png",
		TileMatrixSetLink: tileMatrixSetLink{
			TileMatrixSet: tileMatrixSetName(tileSize),
		},
		ResourceURL: resourceURL{
			Format:       "image/png",
			ResourceType: "tile",
			Template:     tmpl,
		},
	}
}

// buildTileMatrixSet builds the GoogleMapsCompatible matrix set for
// tileSize. The 512px set covers the same geographic extent per tile
// as the 256px set with double the pixels, so its scale denominators
// are halved.
func buildTileMatrixSet(tileSize int) tileMatrixSet {
	factor := 1.0
	if tileSize == 512 {
		factor = 0.5
	}
	matrices := make([]tileMatrix, 0, len(scaleDenominators256))
	for z, denom := range scaleDenominators256 {
		span := 1 << uint(z)
		matrices = append(matrices, tileMatrix{
			Identifier:       fmt.Sprintf("%d", z),
			ScaleDenominator: fmt.Sprintf("%.10f", denom*factor),
			TileWidth:        tileSize,
			TileHeight:       tileSize,
			MatrixWidth:      span,
			MatrixHeight:     span,
		})
	}
	return tileMatrixSet{
		Identifier:   tileMatrixSetName(tileSize),
		SupportedCRS: "urn:ogc:def:crs:EPSG::3857",
		TileMatrices: matrices,
	}
}
