package raster

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/render"
)

// ParseOverlays decodes the static/auto overlay query parameters into
// render.Overlay values. This is a routing-contract-only surface:
// overlays contribute bounds to the auto-fit calculation but are
// never drawn onto the rendered canvas by this core.
//
// Syntax: repeatable `marker={lon},{lat}` and repeatable
// `path={lon},{lat}|{lon},{lat}|...`.
func ParseOverlays(q url.Values) ([]render.Overlay, error) {
	var overlays []render.Overlay

	for _, raw := range q["marker"] {
		pt, err := parseLonLat(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUserInput, "invalid marker overlay", err)
		}
		overlays = append(overlays, render.Overlay{Kind: "marker", Raw: raw, Points: []render.Point{pt}})
	}

	for _, raw := range q["path"] {
		pairs := strings.Split(raw, "|")
		points := make([]render.Point, 0, len(pairs))
		for _, pair := range pairs {
			pt, err := parseLonLat(pair)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindUserInput, "invalid path overlay", err)
			}
			points = append(points, pt)
		}
		if len(points) == 0 {
			return nil, apperr.New(apperr.KindUserInput, "path overlay has no points")
		}
		overlays = append(overlays, render.Overlay{Kind: "path", Raw: raw, Points: points})
	}

	return overlays, nil
}

func parseLonLat(s string) (render.Point, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return render.Point{}, fmt.Errorf("expected %q as lon,lat", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return render.Point{}, fmt.Errorf("parsing lon: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return render.Point{}, fmt.Errorf("parsing lat: %w", err)
	}
	return render.Point{Lon: lon, Lat: lat}, nil
}
