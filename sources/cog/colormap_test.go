package cog

import (
	"image/color"
	"testing"
)

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("#ff0080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := color.RGBA{R: 0xff, G: 0x00, B: 0x80, A: 255}
	if c != want {
		t.Errorf("parseHexColor(#ff0080) = %+v, want %+v", c, want)
	}
	if _, err := parseHexColor("not-a-color"); err == nil {
		t.Errorf("expected a malformed hex color to fail")
	}
}

func TestParseColorRampNormalizesStops(t *testing.T) {
	ramp, err := parseColorRamp("0:#000000,100:#ffffff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ramp) != 2 {
		t.Fatalf("got %d stops, want 2", len(ramp))
	}
	if ramp[0].stop != 0 || ramp[1].stop != 1 {
		t.Errorf("normalized stops = (%v,%v), want (0,1)", ramp[0].stop, ramp[1].stop)
	}
}

func TestParseColorRampSortsUnorderedStops(t *testing.T) {
	ramp, err := parseColorRamp("100:#ffffff,0:#000000,50:#808080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(ramp); i++ {
		if ramp[i].stop < ramp[i-1].stop {
			t.Fatalf("ramp not sorted: %+v", ramp)
		}
	}
}

func TestParseColorRampRejectsMalformed(t *testing.T) {
	if _, err := parseColorRamp(""); err == nil {
		t.Errorf("expected an empty spec to fail")
	}
	if _, err := parseColorRamp("nostop"); err == nil {
		t.Errorf("expected a spec with no colon to fail")
	}
}

func TestColorRampAtInterpolates(t *testing.T) {
	ramp, err := parseColorRamp("0:#000000,1:#ffffff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mid := ramp.at(0.5)
	if mid.R < 100 || mid.R > 155 {
		t.Errorf("at(0.5).R = %d, want roughly 127", mid.R)
	}
	if got := ramp.at(-1); got != ramp[0].c {
		t.Errorf("at(-1) should clamp to the first stop's color")
	}
	if got := ramp.at(2); got != ramp[len(ramp)-1].c {
		t.Errorf("at(2) should clamp to the last stop's color")
	}
}

func TestLerp(t *testing.T) {
	if got := lerp(0, 100, 0.5); got != 50 {
		t.Errorf("lerp(0,100,0.5) = %d, want 50", got)
	}
	if got := lerp(10, 10, 0.7); got != 10 {
		t.Errorf("lerp(10,10,0.7) = %d, want 10", got)
	}
}
