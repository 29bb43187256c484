package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dixieflatline76/CoverSnap/config"
	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/pkg/overlay"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/dixieflatline76/CoverSnap/util/log"
)

// frameGeometry is the "geometry" form field sent with an uploaded frame.
type frameGeometry struct {
	Panel           string              `json:"panel"`
	DisplayedWidth  float64             `json:"displayed_width"`
	DisplayedHeight float64             `json:"displayed_height"`
	OriginLeft      float64             `json:"origin_left"`
	OriginTop       float64             `json:"origin_top"`
	Guide           *geometry.GuideRect `json:"guide,omitempty"`
}

func (g frameGeometry) viewport(frame image.Image) geometry.Viewport {
	b := frame.Bounds()
	return geometry.Viewport{
		NativeWidth:     b.Dx(),
		NativeHeight:    b.Dy(),
		DisplayedWidth:  g.DisplayedWidth,
		DisplayedHeight: g.DisplayedHeight,
		OriginLeft:      g.OriginLeft,
		OriginTop:       g.OriginTop,
	}
}

type guideResponse struct {
	Panel        panel.Name         `json:"panel"`
	Guide        geometry.GuideRect `json:"guide"`
	DeviceGuide  geometry.GuideRect `json:"device_guide"`
	OutputWidth  int                `json:"output_width"`
	OutputHeight int                `json:"output_height"`
	Resolution   float64            `json:"resolution"`
}

type panelResponse struct {
	panel.Spec
	PixelWidth  int `json:"pixel_width"`
	PixelHeight int `json:"pixel_height"`
}

type captureResponse struct {
	ID         string              `json:"id"`
	Panel      panel.Name          `json:"panel"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Resolution float64             `json:"resolution"`
	Source     geometry.SourceRect `json:"source"`
	Policy     string              `json:"policy"`
	FileName   string              `json:"file"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	state := s.session.State()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"version": config.AppVersion,
		"session": state.String(),
	})
}

// handleWebSocket upgrades the connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	// Clients only listen; reads keep the connection alive and notice closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// handlePanels lists the catalog with output pixel sizes.
func (s *Server) handlePanels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	specs := panel.All()
	out := make([]panelResponse, len(specs))
	for i, spec := range specs {
		pw, ph := geometry.PixelSize(spec, s.config.Resolution)
		out[i] = panelResponse{Spec: spec, PixelWidth: pw, PixelHeight: ph}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGuide computes the guide for a panel and viewport given as query
// parameters.
func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	name, err := panel.ParseName(q.Get("panel"))
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	vp, err := viewportFromQuery(q.Get)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spec, _ := panel.SizeOf(name)
	g, err := geometry.GuideRectFor(spec, s.config, vp)
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	pw, ph := geometry.PixelSize(spec, s.config.Resolution)
	writeJSON(w, http.StatusOK, guideResponse{
		Panel:        name,
		Guide:        g,
		DeviceGuide:  s.config.ToDevice(g),
		OutputWidth:  pw,
		OutputHeight: ph,
		Resolution:   s.config.Resolution,
	})
}

// handlePreview renders the uploaded frame with the guide overlaid.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	frame, geo, ok := s.readFrame(w, r)
	if !ok {
		return
	}
	name, err := panel.ParseName(geo.Panel)
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	vp := geo.viewport(frame)
	guide := geo.Guide
	if guide == nil {
		spec, _ := panel.SizeOf(name)
		g, err := geometry.GuideRectFor(spec, s.config, vp)
		if err != nil {
			writeCaptureError(w, err)
			return
		}
		guide = &g
	}

	img, err := overlay.Render(frame, vp, *guide, s.config, name.String())
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	data, err := capture.Encode(img, capture.FormatPNG)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", capture.FormatPNG.ContentType())
	_, _ = w.Write(data)
}

// handleSuggest proposes a guide placement for the uploaded frame.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	frame, geo, ok := s.readFrame(w, r)
	if !ok {
		return
	}
	name, err := panel.ParseName(geo.Panel)
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	g, err := s.engine.SuggestGuide(r.Context(), frame, name, geo.viewport(frame))
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"panel": name, "guide": g})
}

// handleCapture captures the selected panel from the uploaded frame and
// returns the encoded raster.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "Too many captures, slow down")
		return
	}

	frame, geo, ok := s.readFrame(w, r)
	if !ok {
		return
	}
	name, err := panel.ParseName(geo.Panel)
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	img, data, fileName, err := s.capture(frame, geo, name)
	if err != nil {
		log.Printf("Capture of %s failed: %v", name, err)
		writeCaptureError(w, err)
		return
	}

	s.Broadcast(Event{
		Type:     "captured",
		Panel:    img.Panel.String(),
		ID:       img.ID,
		Width:    img.PixelWidth,
		Height:   img.PixelHeight,
		FileName: fileName,
	})

	w.Header().Set("Content-Type", s.format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("X-Capture-Id", img.ID)
	_, _ = w.Write(data)
}

func (s *Server) capture(frame image.Image, geo frameGeometry, name panel.Name) (*capture.CapturedImage, []byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feed.SetFrame(frame)
	s.feed.SetLayout(geo.DisplayedWidth, geo.DisplayedHeight, geo.OriginLeft, geo.OriginTop)
	if err := s.session.Start(); err != nil {
		return nil, nil, "", err
	}
	if _, err := s.session.SelectPanel(name); err != nil && !errors.Is(err, geometry.ErrViewportNotReady) {
		return nil, nil, "", err
	}

	img, err := s.session.CaptureWithGuide(geo.Guide)
	if err != nil {
		return nil, nil, "", err
	}
	// The capture is stored; the page goes back to the live preview.
	defer s.session.Resume()

	data, fileName, err := img.Encode(s.format)
	if err != nil {
		return nil, nil, "", err
	}
	return img, data, fileName, nil
}

// handleCaptures lists the stored captures.
func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	captures := s.session.Captures()
	s.mu.Unlock()

	out := make([]captureResponse, len(captures))
	for i, c := range captures {
		out[i] = captureResponse{
			ID:         c.ID,
			Panel:      c.Panel,
			Width:      c.PixelWidth,
			Height:     c.PixelHeight,
			Resolution: c.Resolution,
			Source:     c.Source,
			Policy:     c.Policy.String(),
			FileName:   capture.FileName(c.Panel.String(), s.format),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCaptureFile returns the stored capture of one panel:
// GET /captures/{panel}
func (s *Server) handleCaptureFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name, err := panel.ParseName(strings.TrimPrefix(r.URL.Path, "/captures/"))
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	s.mu.Lock()
	img, ok := s.session.Get(name)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no capture of %s yet", name))
		return
	}

	data, fileName, err := img.Encode(s.format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", s.format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	_, _ = w.Write(data)
}

// handleClear drops every stored capture.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	s.session.Clear()
	s.mu.Unlock()

	s.Broadcast(Event{Type: "cleared"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCombined returns the stored panels joined left to right.
func (s *Server) handleCombined(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	img, err := s.session.Combined()
	s.mu.Unlock()
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	data, err := capture.Encode(img, s.format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", s.format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", capture.FileName(combinedName, s.format)))
	_, _ = w.Write(data)
}

// readFrame parses a multipart upload with a "frame" file and a "geometry"
// JSON field. It writes the error response itself and reports ok=false.
func (s *Server) readFrame(w http.ResponseWriter, r *http.Request) (image.Image, frameGeometry, bool) {
	var geo frameGeometry

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return nil, geo, false
	}

	file, _, err := r.FormFile("frame")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing frame: "+err.Error())
		return nil, geo, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read frame: "+err.Error())
		return nil, geo, false
	}
	frame, _, err := capture.DecodeLimited(data, s.maxPixels)
	if errors.Is(err, capture.ErrFrameTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return nil, geo, false
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, geo, false
	}

	if raw := r.FormValue("geometry"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &geo); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid geometry: "+err.Error())
			return nil, geo, false
		}
	}
	return frame, geo, true
}

// viewportFromQuery reads a viewport from query parameters. Missing values
// are zero, which GuideRectFor reports as not ready.
func viewportFromQuery(get func(string) string) (geometry.Viewport, error) {
	var vp geometry.Viewport
	ints := []struct {
		key string
		dst *int
	}{
		{"native_width", &vp.NativeWidth},
		{"native_height", &vp.NativeHeight},
	}
	for _, f := range ints {
		if v := get(f.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return vp, fmt.Errorf("invalid %s: %q", f.key, v)
			}
			*f.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"displayed_width", &vp.DisplayedWidth},
		{"displayed_height", &vp.DisplayedHeight},
		{"origin_left", &vp.OriginLeft},
		{"origin_top", &vp.OriginTop},
	}
	for _, f := range floats {
		if v := get(f.key); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return vp, fmt.Errorf("invalid %s: %q", f.key, v)
			}
			*f.dst = n
		}
	}
	return vp, nil
}

// writeCaptureError maps engine errors to HTTP statuses.
func writeCaptureError(w http.ResponseWriter, err error) {
	var upe *panel.UnknownPanelError
	var cge *capture.CaptureGeometryError
	var phm *capture.PanelHeightMismatchError

	switch {
	case errors.As(err, &upe):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, geometry.ErrViewportNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &cge):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &phm):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, capture.ErrNothingToCombine):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrNotPreviewing):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
