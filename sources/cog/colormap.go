package cog

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"
)

// colorRamp is a sorted set of (stop, color) pairs; at() linearly
// interpolates between the two stops bracketing t.
type colorRamp []rampStop

type rampStop struct {
	stop float64
	c    color.RGBA
}

// parseColorRamp parses a "stop:#rrggbb,stop:#rrggbb,..." specification,
// the compact form a TOML-embedded colormap config value takes.
func parseColorRamp(spec string) (colorRamp, error) {
	parts := strings.Split(spec, ",")
	ramp := make(colorRamp, 0, len(parts))
	for _, p := range parts {
		kv := strings.SplitN(strings.TrimSpace(p), ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("colormap: malformed stop %q", p)
		}
		stop, err := strconv.ParseFloat(kv[0], 64)
		if err != nil {
			return nil, fmt.Errorf("colormap: stop value %q: %w", kv[0], err)
		}
		c, err := parseHexColor(kv[1])
		if err != nil {
			return nil, fmt.Errorf("colormap: color %q: %w", kv[1], err)
		}
		ramp = append(ramp, rampStop{stop: stop, c: c})
	}
	if len(ramp) == 0 {
		return nil, fmt.Errorf("colormap: no stops")
	}
	sort.Slice(ramp, func(i, j int) bool { return ramp[i].stop < ramp[j].stop })

	// Normalize stops into [0,1] against the ramp's own extent so
	// at(t) can be called with the rescale-normalized sample value.
	lo, hi := ramp[0].stop, ramp[len(ramp)-1].stop
	span := hi - lo
	if span == 0 {
		span = 1
	}
	for i := range ramp {
		ramp[i].stop = (ramp[i].stop - lo) / span
	}
	return ramp, nil
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("expected #rrggbb, got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, err
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}

func (r colorRamp) at(t float64) color.RGBA {
	if len(r) == 1 || t <= r[0].stop {
		return r[0].c
	}
	last := r[len(r)-1]
	if t >= last.stop {
		return last.c
	}
	for i := 1; i < len(r); i++ {
		if t <= r[i].stop {
			lo, hi := r[i-1], r[i]
			span := hi.stop - lo.stop
			if span == 0 {
				return hi.c
			}
			f := (t - lo.stop) / span
			return color.RGBA{
				R: lerp(lo.c.R, hi.c.R, f),
				G: lerp(lo.c.G, hi.c.G, f),
				B: lerp(lo.c.B, hi.c.B, f),
				A: 255,
			}
		}
	}
	return last.c
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*f)
}
