package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
)

// ErrNotPreviewing is returned when a session action needs a running preview.
var ErrNotPreviewing = errors.New("session is not previewing")

// ErrNothingToCombine is returned when a combined export has no panels.
var ErrNothingToCombine = errors.New("no captured panels to combine")

// ErrFrameTooLarge is returned when a frame declares more pixels than allowed.
var ErrFrameTooLarge = errors.New("frame is too large")

// CaptureGeometryError reports a source rectangle that is degenerate or falls
// outside the native frame. The crop is never clamped.
type CaptureGeometryError struct {
	Reason       string
	Source       geometry.SourceRect
	NativeWidth  int
	NativeHeight int
}

func (e *CaptureGeometryError) Error() string {
	return fmt.Sprintf("capture area %v %s (camera frame is %dx%d)", e.Source, e.Reason, e.NativeWidth, e.NativeHeight)
}

// PanelHeight pairs a panel with its captured pixel height.
type PanelHeight struct {
	Panel  panel.Name
	Height int
}

// PanelHeightMismatchError is returned by Combine when the panels do not share
// one pixel height.
type PanelHeightMismatchError struct {
	Heights []PanelHeight
}

func (e *PanelHeightMismatchError) Error() string {
	parts := make([]string, len(e.Heights))
	for i, h := range e.Heights {
		parts[i] = fmt.Sprintf("%s=%d", h.Panel, h.Height)
	}
	return "panel heights differ: " + strings.Join(parts, ", ")
}
