package tilemeta

import (
	"encoding/xml"
	"fmt"
	"strings"
	"testing"
)

func TestBuildCapabilitiesIsValidXML(t *testing.T) {
	data, err := BuildCapabilities(StyleEntry{ID: "basic"}, "https://tiles.example.com", "")
	if err != nil {
		t.Fatalf("BuildCapabilities: %v", err)
	}
	var caps capabilities
	if err := xml.Unmarshal(data, &caps); err != nil {
		t.Fatalf("xml.Unmarshal: %v", err)
	}
	if caps.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", caps.Version)
	}
	if len(caps.Contents.Layers) != 2 {
		t.Fatalf("got %d layers, want 2 (256px and 512px)", len(caps.Contents.Layers))
	}
	if len(caps.Contents.TileMatrixSets) != 2 {
		t.Fatalf("got %d TileMatrixSets, want 2 (one per tile size)", len(caps.Contents.TileMatrixSets))
	}
	for _, set := range caps.Contents.TileMatrixSets {
		if len(set.TileMatrices) != len(scaleDenominators256) {
			t.Errorf("set %q: got %d matrices, want %d", set.Identifier, len(set.TileMatrices), len(scaleDenominators256))
		}
	}
}

func TestBuildCapabilitiesAppendsQueryKey(t *testing.T) {
	data, err := BuildCapabilities(StyleEntry{ID: "basic"}, "https://tiles.example.com", "abc123")
	if err != nil {
		t.Fatalf("BuildCapabilities: %v", err)
	}
	if !strings.Contains(string(data), "key=abc123") {
		t.Errorf("expected the query key to appear in the resource URL template")
	}
}

// The package's structs tag ows elements as "ows:Identifier", which
// encoding/xml writes literally but cannot match when decoding (the
// decoder sees local name "Identifier" in the ows namespace). These
// mirrors match on local names so the document can be read back.
type decodedLayer struct {
	Identifier        string            `xml:"Identifier"`
	TileMatrixSetLink tileMatrixSetLink `xml:"TileMatrixSetLink"`
	ResourceURL       resourceURL       `xml:"ResourceURL"`
}

type decodedMatrixSet struct {
	Identifier   string       `xml:"Identifier"`
	TileMatrices []tileMatrix `xml:"TileMatrix"`
}

type decodedCaps struct {
	Contents struct {
		Layers         []decodedLayer     `xml:"Layer"`
		TileMatrixSets []decodedMatrixSet `xml:"TileMatrixSet"`
	} `xml:"Contents"`
}

func TestBuildCapabilitiesDistinguishes256And512Layers(t *testing.T) {
	data, _ := BuildCapabilities(StyleEntry{ID: "basic"}, "https://tiles.example.com", "")
	var caps decodedCaps
	if err := xml.Unmarshal(data, &caps); err != nil {
		t.Fatalf("xml.Unmarshal: %v", err)
	}
	byID := map[string]decodedLayer{}
	for _, l := range caps.Contents.Layers {
		byID[l.Identifier] = l
	}
	l256, ok := byID["basic"]
	if !ok {
		t.Fatalf("expected a %q layer, got %v", "basic", byID)
	}
	l512, ok := byID["basic@512px"]
	if !ok {
		t.Fatalf("expected a %q layer, got %v", "basic@512px", byID)
	}

	if l256.ResourceURL.Template == l512.ResourceURL.Template {
		t.Errorf("256px and 512px layers must not share a ResourceURL template, got %q for both", l256.ResourceURL.Template)
	}
	if !strings.Contains(l512.ResourceURL.Template, "@2x.png") {
		t.Errorf("512px template = %q, want an @2x suffix so the route parser renders at 512px", l512.ResourceURL.Template)
	}
	if strings.Contains(l256.ResourceURL.Template, "@2x") {
		t.Errorf("256px template = %q, must not carry the @2x suffix", l256.ResourceURL.Template)
	}
	if l256.TileMatrixSetLink.TileMatrixSet == l512.TileMatrixSetLink.TileMatrixSet {
		t.Errorf("256px and 512px layers must link to distinct TileMatrixSets, both got %q", l256.TileMatrixSetLink.TileMatrixSet)
	}

	byMatrixSet := map[string]decodedMatrixSet{}
	for _, set := range caps.Contents.TileMatrixSets {
		byMatrixSet[set.Identifier] = set
	}
	set256, ok := byMatrixSet[l256.TileMatrixSetLink.TileMatrixSet]
	if !ok {
		t.Fatalf("no TileMatrixSet named %q", l256.TileMatrixSetLink.TileMatrixSet)
	}
	set512, ok := byMatrixSet[l512.TileMatrixSetLink.TileMatrixSet]
	if !ok {
		t.Fatalf("no TileMatrixSet named %q", l512.TileMatrixSetLink.TileMatrixSet)
	}
	if set256.TileMatrices[5].TileWidth != 256 || set256.TileMatrices[5].TileHeight != 256 {
		t.Errorf("256px matrix set tile dimensions = %dx%d, want 256x256", set256.TileMatrices[5].TileWidth, set256.TileMatrices[5].TileHeight)
	}
	if set512.TileMatrices[5].TileWidth != 512 || set512.TileMatrices[5].TileHeight != 512 {
		t.Errorf("512px matrix set tile dimensions = %dx%d, want 512x512", set512.TileMatrices[5].TileWidth, set512.TileMatrices[5].TileHeight)
	}

	var denom256, denom512 float64
	fmt.Sscanf(set256.TileMatrices[5].ScaleDenominator, "%f", &denom256)
	fmt.Sscanf(set512.TileMatrices[5].ScaleDenominator, "%f", &denom512)
	if denom256 <= 0 || denom512 <= 0 {
		t.Fatalf("failed to parse scale denominators: %q, %q", set256.TileMatrices[5].ScaleDenominator, set512.TileMatrices[5].ScaleDenominator)
	}
	if got, want := denom512, denom256/2; got < want*0.999 || got > want*1.001 {
		t.Errorf("512px scale denominator = %v, want half of 256px's (%v)", got, want)
	}
}
