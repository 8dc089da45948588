package tiletype

import "testing"

func TestCoordValid(t *testing.T) {
	cases := []struct {
		c    Coord
		want bool
	}{
		{Coord{Z: 0, X: 0, Y: 0}, true},
		{Coord{Z: 3, X: 7, Y: 7}, true},
		{Coord{Z: 3, X: 8, Y: 0}, false},
		{Coord{Z: 3, X: 0, Y: 8}, false},
		{Coord{Z: MaxSupportedZoom + 1, X: 0, Y: 0}, false},
	}
	for _, c := range cases {
		if got := c.c.Valid(); got != c.want {
			t.Errorf("Coord%+v.Valid() = %v, want %v", c.c, got, c.want)
		}
	}
}

func TestCoordFlippedYIsInvolution(t *testing.T) {
	c := Coord{Z: 5, X: 3, Y: 9}
	flipped := c.FlippedY()
	back := Coord{Z: c.Z, X: c.X, Y: flipped}.FlippedY()
	if back != c.Y {
		t.Errorf("FlippedY twice = %d, want original Y %d", back, c.Y)
	}
	want := uint32(1)<<c.Z - 1 - c.Y
	if flipped != want {
		t.Errorf("FlippedY() = %d, want %d", flipped, want)
	}
}

func TestCoordString(t *testing.T) {
	c := Coord{Z: 4, X: 2, Y: 9}
	if got, want := c.String(), "4/2/9"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"pbf":  FormatPBF,
		"mvt":  FormatPBF,
		"png":  FormatPNG,
		"jpg":  FormatJPG,
		"jpeg": FormatJPG,
		"webp": FormatWebP,
	}
	for ext, want := range cases {
		got, ok := ParseFormat(ext)
		if !ok || got != want {
			t.Errorf("ParseFormat(%q) = (%v, %v), want (%v, true)", ext, got, ok, want)
		}
	}
	if _, ok := ParseFormat("bmp"); ok {
		t.Errorf("ParseFormat(bmp) should not be recognized")
	}
}

func TestFormatExtension(t *testing.T) {
	if got, want := FormatJPG.Extension(), "jpg"; got != want {
		t.Errorf("FormatJPG.Extension() = %q, want %q", got, want)
	}
	if got, want := FormatPNG.Extension(), "png"; got != want {
		t.Errorf("FormatPNG.Extension() = %q, want %q", got, want)
	}
}

func TestBoundsValid(t *testing.T) {
	valid := Bounds{-180, -85, 180, 85}
	if !valid.Valid() {
		t.Errorf("expected %+v to be valid", valid)
	}
	inverted := Bounds{10, 0, -10, 0}
	if inverted.Valid() {
		t.Errorf("expected inverted bounds %+v to be invalid", inverted)
	}
	outOfRange := Bounds{-200, 0, 10, 0}
	if outOfRange.Valid() {
		t.Errorf("expected out-of-range bounds %+v to be invalid", outOfRange)
	}
}

func TestMetadataValid(t *testing.T) {
	m := Metadata{MinZoom: 0, MaxZoom: 14}
	if !m.Valid() {
		t.Errorf("expected metadata with MinZoom <= MaxZoom to be valid")
	}
	m.MinZoom, m.MaxZoom = 10, 5
	if m.Valid() {
		t.Errorf("expected MinZoom > MaxZoom to be invalid")
	}
	bad := Bounds{100, 0, -100, 0}
	m2 := Metadata{MinZoom: 0, MaxZoom: 1, Bounds: &bad}
	if m2.Valid() {
		t.Errorf("expected invalid bounds to invalidate metadata")
	}
}
