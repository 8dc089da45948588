package render

import (
	"testing"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/tiletype"
)

func TestSizeDevicePixels(t *testing.T) {
	s := Size{Width: 256, Height: 512, PixelRatio: 2}
	w, h := s.DevicePixels()
	if w != 512 || h != 1024 {
		t.Errorf("DevicePixels() = (%d, %d), want (512, 1024)", w, h)
	}
}

func TestSizeValidate(t *testing.T) {
	valid := Size{Width: 512, Height: 512, PixelRatio: 2}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid size to pass, got %v", err)
	}

	tooWide := Size{Width: MaxDimension + 1, Height: 512, PixelRatio: 1}
	assertUserInput(t, tooWide.Validate())

	badRatio := Size{Width: 512, Height: 512, PixelRatio: MaxPixelRatio + 1}
	assertUserInput(t, badRatio.Validate())

	tooManyPixels := Size{Width: MaxDimension, Height: MaxDimension, PixelRatio: MaxPixelRatio}
	assertUserInput(t, tooManyPixels.Validate())
}

func TestClampPixelRatio(t *testing.T) {
	cases := map[int]int{-1: 1, 0: 1, 1: 1, 2: 2, 3: 3, 4: 3, 100: 3}
	for in, want := range cases {
		if got := ClampPixelRatio(in); got != want {
			t.Errorf("ClampPixelRatio(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestJobValidate(t *testing.T) {
	base := Job{
		StyleID: "basic",
		Size:    Size{Width: 256, Height: 256, PixelRatio: 1},
		Format:  tiletype.FormatPNG,
	}
	if err := base.Validate(); err != nil {
		t.Errorf("expected valid job to pass, got %v", err)
	}

	noStyle := base
	noStyle.StyleID = ""
	assertUserInput(t, noStyle.Validate())

	badFormat := base
	badFormat.Format = tiletype.FormatPBF
	assertUserInput(t, badFormat.Validate())
}

func assertUserInput(t *testing.T, err error) {
	t.Helper()
	e, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected an apperr.Error, got %v", err)
	}
	if e.Kind != apperr.KindUserInput {
		t.Errorf("Kind = %v, want %v", e.Kind, apperr.KindUserInput)
	}
}
