// Package capture turns a live camera frame and the user's alignment guide
// into an exact-size raster of one book-cover panel.
package capture

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/dixieflatline76/CoverSnap/util/log"
	"github.com/google/uuid"
)

// Policy selects how the source region is chosen in the native frame.
type Policy int

const (
	// PolicyGuide crops exactly what the user aligned inside the guide.
	PolicyGuide Policy = iota
	// PolicyFullFrame uses the whole native frame.
	PolicyFullFrame
	// PolicyCenter crops the nominal output size from the frame center,
	// ignoring the guide. Fallback only.
	PolicyCenter
	// PolicyTopLeft crops the nominal output size from the native origin,
	// ignoring the guide. Fallback only.
	PolicyTopLeft
)

func (p Policy) String() string {
	switch p {
	case PolicyGuide:
		return "guide"
	case PolicyFullFrame:
		return "full-frame"
	case PolicyCenter:
		return "center"
	case PolicyTopLeft:
		return "top-left"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name as written in the config file.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "guide":
		return PolicyGuide, nil
	case "full-frame", "full":
		return PolicyFullFrame, nil
	case "center", "centre":
		return PolicyCenter, nil
	case "top-left", "topleft":
		return PolicyTopLeft, nil
	default:
		return PolicyGuide, fmt.Errorf("unknown crop policy %q", s)
	}
}

// ParseFilter maps a filter name to an imaging resample filter. The default
// is bilinear.
func ParseFilter(s string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear", "bilinear":
		return imaging.Linear, nil
	case "catmull-rom", "catmullrom", "bicubic":
		return imaging.CatmullRom, nil
	case "lanczos":
		return imaging.Lanczos, nil
	case "box":
		return imaging.Box, nil
	case "nearest", "nearest-neighbor":
		return imaging.NearestNeighbor, nil
	default:
		return imaging.Linear, fmt.Errorf("unknown resample filter %q", s)
	}
}

// Request describes one capture.
type Request struct {
	Panel    panel.Name
	Viewport geometry.Viewport
	// Guide is the on-screen guide as laid out by the UI. When nil the
	// guide is computed from the panel with GuideRectFor.
	Guide  *geometry.GuideRect
	Config geometry.CaptureConfig
	Policy Policy
}

// CapturedImage is one resampled panel. It is not modified after Capture
// returns.
type CapturedImage struct {
	ID          string
	Panel       panel.Name
	PixelWidth  int
	PixelHeight int
	Resolution  float64
	Source      geometry.SourceRect
	Policy      Policy
	CapturedAt  time.Time
	Image       *image.NRGBA
}

// Encode encodes the capture and returns the bytes with the export file name.
func (c *CapturedImage) Encode(f Format) ([]byte, string, error) {
	data, err := Encode(c.Image, f)
	if err != nil {
		return nil, "", err
	}
	return data, FileName(c.Panel.String(), f), nil
}

// Engine performs captures with a fixed resample filter.
type Engine struct {
	resampler imaging.ResampleFilter
	now       func() time.Time
}

// NewEngine creates an engine that resamples with filter.
func NewEngine(filter imaging.ResampleFilter) *Engine {
	return &Engine{resampler: filter, now: time.Now}
}

// Capture crops the source region from frame and resamples it to the panel's
// exact output size.
func (e *Engine) Capture(frame image.Image, req Request) (*CapturedImage, error) {
	spec, err := panel.SizeOf(req.Panel)
	if err != nil {
		return nil, err
	}
	if err := req.Config.Validate(); err != nil {
		return nil, fmt.Errorf("capturing %s: %w", spec.Name, err)
	}

	vp := req.Viewport
	if vp.NativeWidth <= 0 || vp.NativeHeight <= 0 {
		return nil, fmt.Errorf("capturing %s: %w", spec.Name, geometry.ErrViewportNotReady)
	}
	if frame == nil {
		return nil, fmt.Errorf("capturing %s: %w", spec.Name, geometry.ErrViewportNotReady)
	}
	fb := frame.Bounds()
	if fb.Dx() != vp.NativeWidth || fb.Dy() != vp.NativeHeight {
		return nil, &CaptureGeometryError{
			Reason:       fmt.Sprintf("refers to a %dx%d feed but the frame is %dx%d", vp.NativeWidth, vp.NativeHeight, fb.Dx(), fb.Dy()),
			NativeWidth:  fb.Dx(),
			NativeHeight: fb.Dy(),
		}
	}

	outW, outH := geometry.PixelSize(spec, req.Config.Resolution)
	if outW <= 0 || outH <= 0 {
		return nil, &CaptureGeometryError{
			Reason:       fmt.Sprintf("yields an empty %dx%d output at %v dpi", outW, outH, req.Config.Resolution),
			NativeWidth:  vp.NativeWidth,
			NativeHeight: vp.NativeHeight,
		}
	}

	src, err := e.sourceRect(spec, req, outW, outH)
	if err != nil {
		return nil, fmt.Errorf("capturing %s: %w", spec.Name, err)
	}
	if !src.Within(vp.NativeWidth, vp.NativeHeight) {
		return nil, &CaptureGeometryError{
			Reason:       "exceeds camera resolution",
			Source:       src,
			NativeWidth:  vp.NativeWidth,
			NativeHeight: vp.NativeHeight,
		}
	}
	px := src.Pixels()
	if px.Empty() {
		return nil, &CaptureGeometryError{
			Reason:       "is smaller than one camera pixel",
			Source:       src,
			NativeWidth:  vp.NativeWidth,
			NativeHeight: vp.NativeHeight,
		}
	}

	cropped := imaging.Crop(frame, px.Add(fb.Min))
	out := imaging.Resize(cropped, outW, outH, e.resampler)

	log.Debugf("captured %s: source %v (%s) -> %dx%d", spec.Name, src, req.Policy, outW, outH)

	return &CapturedImage{
		ID:          uuid.New().String(),
		Panel:       spec.Name,
		PixelWidth:  out.Bounds().Dx(),
		PixelHeight: out.Bounds().Dy(),
		Resolution:  req.Config.Resolution,
		Source:      src,
		Policy:      req.Policy,
		CapturedAt:  e.now(),
		Image:       out,
	}, nil
}

func (e *Engine) sourceRect(spec panel.Spec, req Request, outW, outH int) (geometry.SourceRect, error) {
	vp := req.Viewport
	switch req.Policy {
	case PolicyGuide:
		var g geometry.GuideRect
		if req.Guide != nil {
			g = *req.Guide
		} else {
			var err error
			g, err = geometry.GuideRectFor(spec, req.Config, vp)
			if err != nil {
				return geometry.SourceRect{}, err
			}
		}
		return geometry.SourceRectFor(g, vp)
	case PolicyFullFrame:
		return geometry.SourceRect{Width: float64(vp.NativeWidth), Height: float64(vp.NativeHeight)}, nil
	case PolicyCenter:
		log.Printf("capturing %s with fallback center crop; the on-screen guide is ignored", spec.Name)
		return geometry.SourceRect{
			X:      float64(vp.NativeWidth)/2 - float64(outW)/2,
			Y:      float64(vp.NativeHeight)/2 - float64(outH)/2,
			Width:  float64(outW),
			Height: float64(outH),
		}, nil
	case PolicyTopLeft:
		log.Printf("capturing %s with fallback top-left crop; the on-screen guide is ignored", spec.Name)
		return geometry.SourceRect{Width: float64(outW), Height: float64(outH)}, nil
	default:
		return geometry.SourceRect{}, fmt.Errorf("unsupported crop policy %v", req.Policy)
	}
}
