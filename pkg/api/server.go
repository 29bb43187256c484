package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/CoverSnap/config"
	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/util/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var defaultFilter = imaging.Linear

// Options configures a Server.
type Options struct {
	Addr           string
	Engine         *capture.Engine
	Config         geometry.CaptureConfig
	Policy         capture.Policy
	Format         capture.Format
	CaptureRate    float64 // captures per second
	CaptureBurst   int
	MaxUploadBytes int64
	// MaxFramePixels caps the decoded size of an uploaded frame.
	MaxFramePixels int64
	// ExportDir, when set, enables POST /export and GET /exports/{file}.
	ExportDir string
}

// Server is the local REST/WebSocket API the capture page talks to. It owns
// one capture session.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	addr       string

	// WebSocket management
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	// mu guards the session and the feed it reads from.
	mu      sync.Mutex
	engine  *capture.Engine
	feed    *capture.StillFeed
	session *capture.Session
	config  geometry.CaptureConfig
	format  capture.Format

	limiter   *rate.Limiter
	maxUpload int64
	maxPixels int64
	exportDir string
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	if opts.Engine == nil {
		opts.Engine = capture.NewEngine(defaultFilter)
	}
	if opts.Config.Resolution <= 0 {
		opts.Config = geometry.DefaultCaptureConfig()
	}
	if opts.Format == "" {
		opts.Format = capture.FormatPNG
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = config.DefaultMaxUploadMB << 20
	}
	if opts.MaxFramePixels <= 0 {
		opts.MaxFramePixels = config.DefaultMaxFrameMP * 1_000_000
	}
	limit := rate.Inf
	if opts.CaptureRate > 0 {
		limit = rate.Limit(opts.CaptureRate)
	}
	if opts.CaptureBurst <= 0 {
		opts.CaptureBurst = 1
	}

	feed := capture.NewStillFeed()
	s := &Server{
		mux:  http.NewServeMux(),
		addr: opts.Addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		engine:    opts.Engine,
		feed:      feed,
		session:   capture.NewSession(opts.Engine, feed, feed, opts.Config, opts.Policy),
		config:    opts.Config,
		format:    opts.Format,
		limiter:   rate.NewLimiter(limit, opts.CaptureBurst),
		maxUpload: opts.MaxUploadBytes,
		maxPixels: opts.MaxFramePixels,
		exportDir: opts.ExportDir,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.enableCORS(s.handleHealth))
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/panels", s.enableCORS(s.handlePanels))
	s.mux.HandleFunc("/guide", s.enableCORS(s.handleGuide))
	s.mux.HandleFunc("/preview", s.enableCORS(s.handlePreview))
	s.mux.HandleFunc("/suggest", s.enableCORS(s.handleSuggest))
	s.mux.HandleFunc("/capture", s.enableCORS(s.handleCapture))
	s.mux.HandleFunc("/captures", s.enableCORS(s.handleCaptures))
	s.mux.HandleFunc("/captures/", s.enableCORS(s.handleCaptureFile))
	s.mux.HandleFunc("/clear", s.enableCORS(s.handleClear))
	s.mux.HandleFunc("/combined", s.enableCORS(s.handleCombined))
	s.mux.HandleFunc("/export", s.enableCORS(s.handleExport))
	s.mux.HandleFunc("/exports/", s.enableCORS(s.handleExportFile))
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The capture page is served from another origin than the API.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Capture-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the server. It blocks until the server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}
	log.Printf("API listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down and closes WebSocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Event is pushed to every WebSocket client when the session changes.
type Event struct {
	Type     string `json:"type"` // "captured" | "cleared" | "exported"
	Panel    string `json:"panel,omitempty"`
	ID       string `json:"id,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileName string `json:"file,omitempty"`
}

// Broadcast sends an event to all connected clients.
func (s *Server) Broadcast(ev Event) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(ev); err != nil {
			log.Printf("Failed to broadcast to client: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
