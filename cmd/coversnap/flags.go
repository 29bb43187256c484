package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
)

// parseSize parses "WIDTHxHEIGHT".
func parseSize(s string) (float64, float64, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size %q, want WIDTHxHEIGHT", s)
	}
	w, err := parseFinite(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := parseFinite(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}

// parseFinite rejects Inf and NaN, which ParseFloat accepts.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}

// parseFloats parses n comma separated numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("invalid value %q, want %d comma separated numbers", s, n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := parseFinite(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid number %q in %q", p, s)
		}
		out[i] = v
	}
	return out, nil
}

// parseGuide parses "LEFT,TOP,WIDTH,HEIGHT". An empty string means no guide.
func parseGuide(s string) (*geometry.GuideRect, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parseFloats(s, 4)
	if err != nil {
		return nil, err
	}
	return &geometry.GuideRect{Left: v[0], Top: v[1], Width: v[2], Height: v[3]}, nil
}

// layoutFlags describes how the frame was shown on screen. An empty displayed
// size means the frame was shown at its native size.
type layoutFlags struct {
	displayed string
	origin    string
}

func (l layoutFlags) apply(vp *geometry.Viewport) error {
	vp.DisplayedWidth, vp.DisplayedHeight = float64(vp.NativeWidth), float64(vp.NativeHeight)
	if l.displayed != "" {
		w, h, err := parseSize(l.displayed)
		if err != nil {
			return err
		}
		vp.DisplayedWidth, vp.DisplayedHeight = w, h
	}
	if l.origin != "" {
		v, err := parseFloats(l.origin, 2)
		if err != nil {
			return err
		}
		vp.OriginLeft, vp.OriginTop = v[0], v[1]
	}
	return nil
}
