package capture

import (
	"image"

	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
)

// FrameSource is the live video feed. NativeSize reports 0x0 until the feed
// is ready.
type FrameSource interface {
	NativeSize() (width, height int)
	CurrentFrame() (image.Image, error)
}

// Layout reports where the feed is rendered on screen, in layout units.
type Layout interface {
	DisplayedSize() (width, height float64)
	Origin() (left, top float64)
}

// ViewportOf reads the current geometry from a feed and its layout.
func ViewportOf(feed FrameSource, layout Layout) geometry.Viewport {
	nw, nh := feed.NativeSize()
	dw, dh := layout.DisplayedSize()
	left, top := layout.Origin()
	return geometry.Viewport{
		NativeWidth:     nw,
		NativeHeight:    nh,
		DisplayedWidth:  dw,
		DisplayedHeight: dh,
		OriginLeft:      left,
		OriginTop:       top,
	}
}

// StillFeed presents a single uploaded or decoded frame as a feed, together
// with the layout it was displayed at. It backs both the API and the CLI.
type StillFeed struct {
	frame           image.Image
	displayedWidth  float64
	displayedHeight float64
	originLeft      float64
	originTop       float64
}

// NewStillFeed returns an empty feed that is not ready.
func NewStillFeed() *StillFeed {
	return &StillFeed{}
}

// SetFrame replaces the current frame.
func (f *StillFeed) SetFrame(img image.Image) {
	f.frame = img
}

// SetLayout records the rendered size and position of the frame.
func (f *StillFeed) SetLayout(width, height, left, top float64) {
	f.displayedWidth, f.displayedHeight = width, height
	f.originLeft, f.originTop = left, top
}

// NativeSize implements FrameSource.
func (f *StillFeed) NativeSize() (int, int) {
	if f.frame == nil {
		return 0, 0
	}
	b := f.frame.Bounds()
	return b.Dx(), b.Dy()
}

// CurrentFrame implements FrameSource.
func (f *StillFeed) CurrentFrame() (image.Image, error) {
	if f.frame == nil {
		return nil, geometry.ErrViewportNotReady
	}
	return f.frame, nil
}

// DisplayedSize implements Layout.
func (f *StillFeed) DisplayedSize() (float64, float64) {
	return f.displayedWidth, f.displayedHeight
}

// Origin implements Layout.
func (f *StillFeed) Origin() (float64, float64) {
	return f.originLeft, f.originTop
}
