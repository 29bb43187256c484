package capture

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Combine concatenates captures left to right into one raster. No padding is
// added, so every capture must have the same pixel height.
func Combine(images ...*CapturedImage) (*image.NRGBA, error) {
	if len(images) == 0 {
		return nil, ErrNothingToCombine
	}

	height := images[0].PixelHeight
	width := 0
	mismatch := false
	for _, img := range images {
		if img.PixelHeight != height {
			mismatch = true
		}
		width += img.PixelWidth
	}
	if mismatch {
		heights := make([]PanelHeight, len(images))
		for i, img := range images {
			heights[i] = PanelHeight{Panel: img.Panel, Height: img.PixelHeight}
		}
		return nil, &PanelHeightMismatchError{Heights: heights}
	}

	out := imaging.New(width, height, color.NRGBA{})
	x := 0
	for _, img := range images {
		out = imaging.Paste(out, img.Image, image.Pt(x, 0))
		x += img.PixelWidth
	}
	return out, nil
}
