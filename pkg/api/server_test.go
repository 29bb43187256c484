package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() image.Image {
	return imaging.New(640, 480, color.NRGBA{200, 180, 160, 255})
}

// laidOut is a 640x480 feed shown at half size.
func laidOut(panel string) frameGeometry {
	return frameGeometry{Panel: panel, DisplayedWidth: 320, DisplayedHeight: 240}
}

func uploadRequest(t *testing.T, path string, frame image.Image, geo any) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if frame != nil {
		fw, err := mw.CreateFormFile("frame", "frame.png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(fw, frame))
	}
	if geo != nil {
		raw, err := json.Marshal(geo)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("geometry", string(raw)))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	return img
}

func TestNewServer(t *testing.T) {
	s := NewServer(Options{})
	assert.NotNil(t, s)
	assert.NotNil(t, s.Handler())
}

func TestHealthCheck(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "running")
	assert.Contains(t, rr.Body.String(), "idle")
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, httptest.NewRequest(http.MethodOptions, "/capture", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPanels(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, httptest.NewRequest(http.MethodGet, "/panels", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var panels []panelResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &panels))
	require.Len(t, panels, 3)
	assert.Equal(t, "spine", panels[1].Name.String())
	assert.Equal(t, 35, panels[1].PixelWidth)
	assert.Equal(t, 248, panels[1].PixelHeight)
}

func TestGuide(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, httptest.NewRequest(http.MethodGet,
		"/guide?panel=front&native_width=640&native_height=480&displayed_width=320&displayed_height=240", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp guideResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.InDelta(t, 94.5, resp.Guide.Width, 1e-9)
	assert.InDelta(t, 124, resp.Guide.Height, 1e-9)
	assert.InDelta(t, 112.75, resp.Guide.Left, 1e-9)
	assert.InDelta(t, 58, resp.Guide.Top, 1e-9)
	assert.Equal(t, resp.Guide, resp.DeviceGuide)
	assert.Equal(t, 189, resp.OutputWidth)
}

func TestGuideErrors(t *testing.T) {
	s := NewServer(Options{})
	tests := []struct {
		name string
		url  string
		code int
	}{
		{"feed not ready", "/guide?panel=front&native_width=0&native_height=480&displayed_width=320&displayed_height=240", http.StatusConflict},
		{"unknown panel", "/guide?panel=flap&native_width=640&native_height=480&displayed_width=320&displayed_height=240", http.StatusBadRequest},
		{"bad number", "/guide?panel=front&native_width=wide", http.StatusBadRequest},
		{"infinite display", "/guide?panel=front&native_width=1920&native_height=1080&displayed_width=Inf&displayed_height=540", http.StatusConflict},
		{"nan origin", "/guide?panel=front&native_width=1920&native_height=1080&displayed_width=960&displayed_height=540&origin_left=NaN", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.code, rr.Code)
			assert.Contains(t, rr.Body.String(), "error")
		})
	}
}

func TestWriteJSONUnencodable(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"left": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "error")
}

func TestCapture(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut("front")))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="front_cover.png"`)
	assert.NotEmpty(t, rr.Header().Get("X-Capture-Id"))

	img := decodeBody(t, rr)
	assert.Equal(t, image.Rect(0, 0, 189, 248), img.Bounds())
}

func TestCaptureErrors(t *testing.T) {
	outside := laidOut("front")
	outside.Guide = &geometry.GuideRect{Left: 300, Top: 10, Width: 94.5, Height: 124}

	tests := []struct {
		name  string
		frame image.Image
		geo   any
		code  int
	}{
		{"guide outside frame", testFrame(), outside, http.StatusUnprocessableEntity},
		{"not laid out", testFrame(), frameGeometry{Panel: "front"}, http.StatusConflict},
		{"unknown panel", testFrame(), laidOut("inside-flap"), http.StatusBadRequest},
		{"missing frame", nil, laidOut("front"), http.StatusBadRequest},
		{"bad geometry", testFrame(), "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Options{})
			rr := serve(s, uploadRequest(t, "/capture", tt.frame, tt.geo))
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}
}

func TestCaptureFrameTooLarge(t *testing.T) {
	s := NewServer(Options{MaxFramePixels: 640 * 479})
	rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut("front")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Contains(t, rr.Body.String(), "640x480")

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/captures", nil))
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestSessionReturnsToPreviewAfterCapture(t *testing.T) {
	s := NewServer(Options{})
	for _, p := range []string{"front", "front", "spine"} {
		rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut(p)))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Contains(t, rr.Body.String(), `"session":"previewing"`)
	}
}

func TestCaptureRateLimited(t *testing.T) {
	s := NewServer(Options{CaptureRate: 0.001, CaptureBurst: 1})

	rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut("front")))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(s, uploadRequest(t, "/capture", testFrame(), laidOut("front")))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestCombinedAndClear(t *testing.T) {
	s := NewServer(Options{})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/combined", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for _, p := range []string{"back", "spine", "front"} {
		rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut(p)))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/captures", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list []captureResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "front", list[0].Panel.String())
	assert.Equal(t, "guide", list[0].Policy)

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/captures/spine", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, image.Rect(0, 0, 35, 248), decodeBody(t, rr).Bounds())

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/combined", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "combined_cover.png")
	assert.Equal(t, image.Rect(0, 0, 189+35+189, 248), decodeBody(t, rr).Bounds())

	rr = serve(s, httptest.NewRequest(http.MethodPost, "/clear", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/combined", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = serve(s, httptest.NewRequest(http.MethodGet, "/captures/front", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPreview(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, uploadRequest(t, "/preview", testFrame(), laidOut("spine")))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, image.Rect(0, 0, 320, 240), decodeBody(t, rr).Bounds())
}

func TestSuggest(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, uploadRequest(t, "/suggest", testFrame(), laidOut("front")))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Guide geometry.GuideRect `json:"guide"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Greater(t, resp.Guide.Width, 0.0)
	assert.LessOrEqual(t, resp.Guide.Right(), 320.0+1e-6)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(Options{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/capture"},
		{http.MethodPost, "/panels"},
		{http.MethodGet, "/clear"},
		{http.MethodPost, "/combined"},
	} {
		rr := serve(s, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	s := NewServer(Options{ExportDir: dir})

	rr := serve(s, httptest.NewRequest(http.MethodPost, "/export", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for _, p := range []string{"front", "spine"} {
		rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut(p)))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr = serve(s, httptest.NewRequest(http.MethodPost, "/export", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Files []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"front_cover.png", "spine_cover.png", "combined_cover.png"}, resp.Files)
	for _, f := range resp.Files {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/exports/spine_cover.png", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, image.Rect(0, 0, 35, 248), decodeBody(t, rr).Bounds())

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/exports/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = serve(s, httptest.NewRequest(http.MethodGet, `/exports/..\secret`, nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportFailureSendsNoEvents(t *testing.T) {
	dir := t.TempDir()
	s := NewServer(Options{ExportDir: dir})
	for _, p := range []string{"front", "spine"} {
		rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut(p)))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	server := httptest.NewServer(s.Handler())
	defer server.Close()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// A directory in the way makes the second write fail after the first succeeded.
	blocker := filepath.Join(dir, "spine_cover.png")
	require.NoError(t, os.Mkdir(blocker, 0755))

	rr := serve(s, httptest.NewRequest(http.MethodPost, "/export", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var ev Event
	assert.Error(t, ws.ReadJSON(&ev), "no event after a failed export")
	assert.Empty(t, ev.Type)
}

func TestExportBroadcastsEveryFile(t *testing.T) {
	s := NewServer(Options{ExportDir: t.TempDir()})
	rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut("front")))
	require.Equal(t, http.StatusOK, rr.Code)

	server := httptest.NewServer(s.Handler())
	defer server.Close()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	rr = serve(s, httptest.NewRequest(http.MethodPost, "/export", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var files []string
	for range 2 {
		var ev Event
		require.NoError(t, ws.ReadJSON(&ev))
		assert.Equal(t, "exported", ev.Type)
		files = append(files, ev.FileName)
	}
	assert.Equal(t, []string{"front_cover.png", "combined_cover.png"}, files)
}

func TestExportDisabled(t *testing.T) {
	s := NewServer(Options{})
	rr := serve(s, httptest.NewRequest(http.MethodPost, "/export", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	rr = serve(s, httptest.NewRequest(http.MethodGet, "/exports/front_cover.png", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestResolveExportPath(t *testing.T) {
	s := NewServer(Options{ExportDir: t.TempDir()})
	_, err := s.resolveExportPath("front_cover.png")
	assert.NoError(t, err)
	_, err = s.resolveExportPath("../outside.png")
	assert.Error(t, err)
}

func TestBroadcastOnCapture(t *testing.T) {
	s := NewServer(Options{})
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	rr := serve(s, uploadRequest(t, "/capture", testFrame(), laidOut("back")))
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "captured", ev.Type)
	assert.Equal(t, "back", ev.Panel)
	assert.Equal(t, "back_cover.png", ev.FileName)
	assert.Equal(t, 189, ev.Width)

	serve(s, httptest.NewRequest(http.MethodPost, "/clear", nil))
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "cleared", ev.Type)
}
