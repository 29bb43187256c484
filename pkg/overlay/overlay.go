// Package overlay renders the alignment preview: the camera frame at its
// on-screen size with everything outside the guide dimmed.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	dimColor    = color.NRGBA{0, 0, 0, 140}
	guideColor  = color.NRGBA{255, 196, 0, 255}
	borderWidth = 2
)

// Render returns the preview in device pixels: the frame resized to the
// displayed size times the device pixel ratio, dimmed outside guide, with the
// guide outlined and labeled.
func Render(frame image.Image, vp geometry.Viewport, guide geometry.GuideRect, cfg geometry.CaptureConfig, label string) (*image.NRGBA, error) {
	if frame == nil || !vp.Ready() {
		return nil, geometry.ErrViewportNotReady
	}

	bounds := cfg.ToDevice(geometry.GuideRect{Width: vp.DisplayedWidth, Height: vp.DisplayedHeight})
	w := int(math.Round(bounds.Width))
	h := int(math.Round(bounds.Height))
	if w <= 0 || h <= 0 {
		return nil, geometry.ErrViewportNotReady
	}

	// Guide relative to the video element, in device pixels.
	local := guide
	local.Left -= vp.OriginLeft
	local.Top -= vp.OriginTop
	r := cfg.ToDevice(local).Rectangle()

	out := imaging.Resize(frame, w, h, imaging.Linear)

	mask := imaging.New(w, h, dimColor)
	draw.Draw(mask, r, image.Transparent, image.Point{}, draw.Src)
	out = imaging.Overlay(out, mask, image.Pt(0, 0), 1)

	drawOutline(out, r)
	if label != "" {
		drawLabel(out, r, label)
	}
	return out, nil
}

func drawOutline(dst draw.Image, r image.Rectangle) {
	src := image.NewUniform(guideColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+borderWidth),
		image.Rect(r.Min.X, r.Max.Y-borderWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+borderWidth, r.Max.Y),
		image.Rect(r.Max.X-borderWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes the label just above the guide, or inside its top edge
// when there is no room above.
func drawLabel(dst draw.Image, r image.Rectangle, label string) {
	face := basicfont.Face7x13
	baseline := r.Min.Y - 4
	if baseline-face.Ascent < 0 {
		baseline = r.Min.Y + borderWidth + face.Ascent + 2
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(guideColor),
		Face: face,
		Dot:  fixed.P(r.Min.X+borderWidth, baseline),
	}
	d.DrawString(label)
}
