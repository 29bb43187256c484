package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/dixieflatline76/CoverSnap/util/log"
	"golang.org/x/sync/errgroup"
)

// State is the session lifecycle state.
type State int

const (
	// StateIdle means the feed has not been started.
	StateIdle State = iota
	// StatePreviewing means the feed is live and a capture may be taken.
	StatePreviewing
	// StateCaptured means a capture was just taken and is being shown.
	StateCaptured
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreviewing:
		return "previewing"
	case StateCaptured:
		return "captured"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one user's capture session: the selected panel, the lifecycle
// state, and the most recent capture of each panel.
//
// A Session is not safe for concurrent use.
type Session struct {
	engine   *Engine
	feed     FrameSource
	layout   Layout
	config   geometry.CaptureConfig
	policy   Policy
	current  panel.Name
	state    State
	captures map[panel.Name]*CapturedImage
	last     *CapturedImage
}

// NewSession creates an idle session on the front panel.
func NewSession(engine *Engine, feed FrameSource, layout Layout, cfg geometry.CaptureConfig, policy Policy) *Session {
	return &Session{
		engine:   engine,
		feed:     feed,
		layout:   layout,
		config:   cfg,
		policy:   policy,
		current:  panel.Front,
		state:    StateIdle,
		captures: make(map[panel.Name]*CapturedImage),
	}
}

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Panel returns the selected panel.
func (s *Session) Panel() panel.Name { return s.current }

// Config returns the capture config.
func (s *Session) Config() geometry.CaptureConfig { return s.config }

// Viewport reads the feed and layout geometry as of now.
func (s *Session) Viewport() geometry.Viewport {
	return ViewportOf(s.feed, s.layout)
}

// Start moves an idle session to previewing once the feed reports a size.
func (s *Session) Start() error {
	if w, h := s.feed.NativeSize(); w <= 0 || h <= 0 {
		return geometry.ErrViewportNotReady
	}
	if s.state == StateIdle {
		s.state = StatePreviewing
		log.Debugf("session previewing %s", s.current)
	}
	return nil
}

// Stop returns the session to idle. Stored captures are kept.
func (s *Session) Stop() {
	s.state = StateIdle
}

// SelectPanel switches the panel and returns its guide for the current
// viewport. The feed keeps running. An invalid name leaves the selection
// unchanged.
func (s *Session) SelectPanel(name panel.Name) (geometry.GuideRect, error) {
	if _, err := panel.SizeOf(name); err != nil {
		return geometry.GuideRect{}, err
	}
	s.current = name
	return s.Guide()
}

// Guide returns the guide for the selected panel in the current viewport.
func (s *Session) Guide() (geometry.GuideRect, error) {
	spec, err := panel.SizeOf(s.current)
	if err != nil {
		return geometry.GuideRect{}, err
	}
	return geometry.GuideRectFor(spec, s.config, s.Viewport())
}

// Capture captures the selected panel using the computed guide.
func (s *Session) Capture() (*CapturedImage, error) {
	return s.CaptureWithGuide(nil)
}

// CaptureWithGuide captures the selected panel using the guide as the UI laid
// it out. A nil guide means the computed one. The session must be
// previewing: a shown capture is left with Resume first. On failure the
// stored captures and the state are unchanged.
func (s *Session) CaptureWithGuide(guide *geometry.GuideRect) (*CapturedImage, error) {
	vp := s.Viewport()
	if vp.NativeWidth <= 0 || vp.NativeHeight <= 0 {
		return nil, geometry.ErrViewportNotReady
	}
	if s.state != StatePreviewing {
		return nil, ErrNotPreviewing
	}

	frame, err := s.feed.CurrentFrame()
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}

	img, err := s.engine.Capture(frame, Request{
		Panel:    s.current,
		Viewport: vp,
		Guide:    guide,
		Config:   s.config,
		Policy:   s.policy,
	})
	if err != nil {
		return nil, err
	}

	s.captures[img.Panel] = img
	s.last = img
	s.state = StateCaptured
	return img, nil
}

// Resume returns from showing a capture to the live preview.
func (s *Session) Resume() {
	if s.state == StateCaptured {
		s.state = StatePreviewing
	}
}

// Clear drops every stored capture. A session showing a capture returns to
// previewing; an idle session stays idle.
func (s *Session) Clear() {
	s.captures = make(map[panel.Name]*CapturedImage)
	s.last = nil
	if s.state == StateCaptured {
		s.state = StatePreviewing
	}
}

// Last returns the most recent capture, or nil.
func (s *Session) Last() *CapturedImage { return s.last }

// Get returns the stored capture of a panel.
func (s *Session) Get(name panel.Name) (*CapturedImage, bool) {
	img, ok := s.captures[name]
	return img, ok
}

// Captures returns the stored captures in cover order.
func (s *Session) Captures() []*CapturedImage {
	var out []*CapturedImage
	for _, name := range panel.Names() {
		if img, ok := s.captures[name]; ok {
			out = append(out, img)
		}
	}
	return out
}

// Combined concatenates the stored captures in cover order.
func (s *Session) Combined() (*image.NRGBA, error) {
	return Combine(s.Captures()...)
}

// Export is one encoded file.
type Export struct {
	Panel    panel.Name
	FileName string
	Data     []byte
}

// ExportAll encodes every stored capture concurrently, in cover order.
func (s *Session) ExportAll(ctx context.Context, f Format) ([]Export, error) {
	captures := s.Captures()
	out := make([]Export, len(captures))

	g, ctx := errgroup.WithContext(ctx)
	for i, c := range captures {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, name, err := c.Encode(f)
			if err != nil {
				return fmt.Errorf("exporting %s: %w", c.Panel, err)
			}
			out[i] = Export{Panel: c.Panel, FileName: name, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
