package capture

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/muesli/smartcrop"
)

// resizer implements the smartcrop resizer on top of imaging.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}

// SuggestGuide looks for the most salient region of frame with the panel's
// aspect ratio and returns it as an on-screen guide the UI may offer to the
// user. The suggestion only moves the guide; capture still goes through the
// guide policy.
func (e *Engine) SuggestGuide(ctx context.Context, frame image.Image, name panel.Name, vp geometry.Viewport) (geometry.GuideRect, error) {
	spec, err := panel.SizeOf(name)
	if err != nil {
		return geometry.GuideRect{}, err
	}
	if !vp.Ready() || frame == nil {
		return geometry.GuideRect{}, geometry.ErrViewportNotReady
	}
	fb := frame.Bounds()
	if fb.Dx() != vp.NativeWidth || fb.Dy() != vp.NativeHeight {
		return geometry.GuideRect{}, &CaptureGeometryError{
			Reason:       "does not match the frame size",
			NativeWidth:  fb.Dx(),
			NativeHeight: fb.Dy(),
		}
	}

	// Aspect ratio in hundredths of a millimeter keeps the spine's 3:21 exact.
	aw := int(math.Round(spec.WidthCm * 1000))
	ah := int(math.Round(spec.HeightCm * 1000))

	if fb.Min != (image.Point{}) {
		frame = imaging.Clone(frame)
	}

	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: e.resampler})

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		crop, err := analyzer.FindBestCrop(frame, aw, ah)
		resultChan <- cropResult{crop: crop, err: err}
	}()

	select {
	case <-ctx.Done():
		return geometry.GuideRect{}, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return geometry.GuideRect{}, fmt.Errorf("finding best crop: %w", result.err)
		}
		crop := result.crop.Intersect(image.Rect(0, 0, fb.Dx(), fb.Dy()))
		if crop.Empty() {
			return geometry.GuideRect{}, &CaptureGeometryError{
				Reason:       "no salient region found",
				NativeWidth:  fb.Dx(),
				NativeHeight: fb.Dy(),
			}
		}
		return geometry.Project(geometry.SourceRect{
			X:      float64(crop.Min.X),
			Y:      float64(crop.Min.Y),
			Width:  float64(crop.Dx()),
			Height: float64(crop.Dy()),
		}, vp)
	}
}
