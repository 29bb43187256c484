// Package geometry converts physical panel sizes to pixels and maps the
// on-screen alignment guide to and from the camera's native pixel grid.
//
// Three coordinate spaces are involved:
//
//   - output pixels: the exported raster, sized from centimeters at a resolution
//   - layout units: where the browser draws the video element and the guide
//   - native pixels: the camera sensor grid, as delivered in each frame
//
// Layout and native space are related per axis by displayed/native.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/dixieflatline76/CoverSnap/pkg/panel"
)

// CmPerInch is the centimeter length of one inch.
const CmPerInch = 2.54

// epsilon absorbs floating point noise in containment checks.
const epsilon = 1e-6

// ErrViewportNotReady means the feed has not reported a native size yet, or the
// video element has not been laid out.
var ErrViewportNotReady = errors.New("viewport not ready: video feed has no size yet")

// PhysicalToPixels converts a length in centimeters to a pixel count at
// resolution dots per inch, rounding half away from zero.
func PhysicalToPixels(lengthCm, resolution float64) int {
	return int(math.Round(lengthCm / CmPerInch * resolution))
}

// PixelSize returns the output raster size of a panel at resolution.
func PixelSize(spec panel.Spec, resolution float64) (width, height int) {
	return PhysicalToPixels(spec.WidthCm, resolution), PhysicalToPixels(spec.HeightCm, resolution)
}

// Anchor selects where the guide sits over the displayed video.
type Anchor int

const (
	// AnchorCenter centers the guide within the displayed video.
	AnchorCenter Anchor = iota
	// AnchorTopLeft pins the guide to the video's top-left corner.
	AnchorTopLeft
)

func (a Anchor) String() string {
	switch a {
	case AnchorCenter:
		return "center"
	case AnchorTopLeft:
		return "top-left"
	default:
		return fmt.Sprintf("Anchor(%d)", int(a))
	}
}

// ParseAnchor parses "center" or "top-left".
func ParseAnchor(s string) (Anchor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "center", "centre":
		return AnchorCenter, nil
	case "top-left", "topleft":
		return AnchorTopLeft, nil
	default:
		return AnchorCenter, fmt.Errorf("unknown guide anchor %q", s)
	}
}

// CaptureConfig controls output resolution and how the guide is drawn.
type CaptureConfig struct {
	// Resolution is the output resolution in dots per inch.
	Resolution float64
	// DisplayScale enlarges the on-screen guide for easier alignment. It
	// does not change the output size.
	DisplayScale float64
	// DevicePixelRatio converts layout units to device pixels when the
	// guide is drawn onto a raster. Zero means 1.
	DevicePixelRatio float64
	Anchor           Anchor
}

// DefaultCaptureConfig returns 300 DPI, no magnification, centered guide.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Resolution:       300,
		DisplayScale:     1,
		DevicePixelRatio: 1,
		Anchor:           AnchorCenter,
	}
}

// Validate checks that the resolution is usable.
func (c CaptureConfig) Validate() error {
	if c.Resolution <= 0 || math.IsNaN(c.Resolution) || math.IsInf(c.Resolution, 0) {
		return fmt.Errorf("resolution must be a positive number, got %v", c.Resolution)
	}
	if c.DisplayScale < 0 || c.DevicePixelRatio < 0 {
		return fmt.Errorf("display scale and device pixel ratio must not be negative")
	}
	return nil
}

func (c CaptureConfig) displayScale() float64 {
	if c.DisplayScale <= 0 {
		return 1
	}
	return c.DisplayScale
}

func (c CaptureConfig) devicePixelRatio() float64 {
	if c.DevicePixelRatio <= 0 {
		return 1
	}
	return c.DevicePixelRatio
}

// ToDevice converts a layout-space guide into device pixels.
func (c CaptureConfig) ToDevice(g GuideRect) GuideRect {
	return g.Scale(c.devicePixelRatio())
}

// Viewport is the geometry of the live feed at one instant: the sensor size
// and the size and position at which the video element is rendered.
type Viewport struct {
	NativeWidth     int     `json:"native_width"`
	NativeHeight    int     `json:"native_height"`
	DisplayedWidth  float64 `json:"displayed_width"`
	DisplayedHeight float64 `json:"displayed_height"`
	OriginLeft      float64 `json:"origin_left"`
	OriginTop       float64 `json:"origin_top"`
}

// Ready reports whether both the feed and its layout have a finite size
// and position.
func (v Viewport) Ready() bool {
	return v.NativeWidth > 0 && v.NativeHeight > 0 &&
		finite(v.DisplayedWidth) && finite(v.DisplayedHeight) &&
		v.DisplayedWidth > 0 && v.DisplayedHeight > 0 &&
		finite(v.OriginLeft) && finite(v.OriginTop)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// NativeScale returns native pixels per layout unit on each axis.
func (v Viewport) NativeScale() (sx, sy float64) {
	return float64(v.NativeWidth) / v.DisplayedWidth, float64(v.NativeHeight) / v.DisplayedHeight
}

// Bounds returns the displayed video as a layout-space rectangle.
func (v Viewport) Bounds() GuideRect {
	return GuideRect{Left: v.OriginLeft, Top: v.OriginTop, Width: v.DisplayedWidth, Height: v.DisplayedHeight}
}

// ContainsGuide reports whether g lies within the displayed video.
func (v Viewport) ContainsGuide(g GuideRect) bool {
	b := v.Bounds()
	return g.Width > 0 && g.Height > 0 &&
		g.Left >= b.Left-epsilon && g.Top >= b.Top-epsilon &&
		g.Right() <= b.Right()+epsilon && g.Bottom() <= b.Bottom()+epsilon
}

// GuideRect is the alignment guide in layout units.
type GuideRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (g GuideRect) Right() float64 { return g.Left + g.Width }

// Bottom returns the y coordinate of the bottom edge.
func (g GuideRect) Bottom() float64 { return g.Top + g.Height }

// Scale multiplies every coordinate by f.
func (g GuideRect) Scale(f float64) GuideRect {
	return GuideRect{Left: g.Left * f, Top: g.Top * f, Width: g.Width * f, Height: g.Height * f}
}

// Rectangle rounds the guide to whole units.
func (g GuideRect) Rectangle() image.Rectangle {
	return image.Rect(
		int(math.Round(g.Left)), int(math.Round(g.Top)),
		int(math.Round(g.Right())), int(math.Round(g.Bottom())),
	)
}

// SourceRect is a region of the native frame in sensor pixels.
type SourceRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Within reports whether s is non-degenerate and inside [0,w) x [0,h).
func (s SourceRect) Within(w, h int) bool {
	return s.Width > 0 && s.Height > 0 &&
		s.X >= -epsilon && s.Y >= -epsilon &&
		s.X+s.Width <= float64(w)+epsilon &&
		s.Y+s.Height <= float64(h)+epsilon
}

// Pixels rounds each edge of s to the nearest pixel boundary.
func (s SourceRect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Round(s.X)), int(math.Round(s.Y)),
		int(math.Round(s.X+s.Width)), int(math.Round(s.Y+s.Height)),
	)
}

func (s SourceRect) String() string {
	return fmt.Sprintf("(%.1f,%.1f %.1fx%.1f)", s.X, s.Y, s.Width, s.Height)
}

// GuideRectFor sizes and places the alignment guide for a panel. The guide is
// the panel's output pixel size (times DisplayScale) projected onto the screen
// through the video element's current render scale.
func GuideRectFor(spec panel.Spec, cfg CaptureConfig, vp Viewport) (GuideRect, error) {
	if !vp.Ready() {
		return GuideRect{}, ErrViewportNotReady
	}
	if err := cfg.Validate(); err != nil {
		return GuideRect{}, err
	}

	pxW, pxH := PixelSize(spec, cfg.Resolution)
	scale := cfg.displayScale()
	sx, sy := vp.NativeScale()

	g := GuideRect{
		Width:  float64(pxW) * scale / sx,
		Height: float64(pxH) * scale / sy,
	}

	switch cfg.Anchor {
	case AnchorTopLeft:
		g.Left = vp.OriginLeft
		g.Top = vp.OriginTop
	default:
		g.Left = vp.OriginLeft + (vp.DisplayedWidth-g.Width)/2
		g.Top = vp.OriginTop + (vp.DisplayedHeight-g.Height)/2
	}
	return g, nil
}

// SourceRectFor inverse-projects a layout-space guide into native pixels.
// It does not check bounds; callers validate with Within.
func SourceRectFor(g GuideRect, vp Viewport) (SourceRect, error) {
	if !vp.Ready() {
		return SourceRect{}, ErrViewportNotReady
	}
	sx, sy := vp.NativeScale()
	return SourceRect{
		X:      (g.Left - vp.OriginLeft) * sx,
		Y:      (g.Top - vp.OriginTop) * sy,
		Width:  g.Width * sx,
		Height: g.Height * sy,
	}, nil
}

// Project maps a native-pixel region onto the screen. It is the inverse of
// SourceRectFor.
func Project(s SourceRect, vp Viewport) (GuideRect, error) {
	if !vp.Ready() {
		return GuideRect{}, ErrViewportNotReady
	}
	sx, sy := vp.NativeScale()
	return GuideRect{
		Left:   vp.OriginLeft + s.X/sx,
		Top:    vp.OriginTop + s.Y/sy,
		Width:  s.Width / sx,
		Height: s.Height / sy,
	}, nil
}
