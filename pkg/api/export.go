package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/util/log"
)

// combinedName is the panel slot used for the joined front+spine+back file.
const combinedName = "combined"

// handleExport writes every stored capture, plus the combined raster when
// the heights agree, into the export directory.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.exportDir == "" {
		log.Println("No export directory configured")
		writeError(w, http.StatusServiceUnavailable, "Feature not available")
		return
	}

	s.mu.Lock()
	exports, err := s.session.ExportAll(r.Context(), s.format)
	combined, combineErr := s.session.Combined()
	s.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(exports) == 0 {
		writeCaptureError(w, capture.ErrNothingToCombine)
		return
	}

	if combineErr == nil {
		data, err := capture.Encode(combined, s.format)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		exports = append(exports, capture.Export{FileName: capture.FileName(combinedName, s.format), Data: data})
	} else {
		log.Printf("Skipping combined export: %v", combineErr)
	}

	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("creating export directory: %v", err))
		return
	}

	files := make([]string, 0, len(exports))
	for _, e := range exports {
		if err := os.WriteFile(filepath.Join(s.exportDir, e.FileName), e.Data, 0644); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("writing %s: %v", e.FileName, err))
			return
		}
		files = append(files, e.FileName)
	}

	for _, e := range exports {
		s.Broadcast(Event{Type: "exported", Panel: e.Panel.String(), FileName: e.FileName})
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// resolveExportPath resolves a file name inside the export directory and
// rejects anything that escapes it.
func (s *Server) resolveExportPath(name string) (string, error) {
	absRoot, err := filepath.Abs(s.exportDir)
	if err != nil {
		return "", fmt.Errorf("invalid export root: %w", err)
	}
	absRoot = filepath.Clean(absRoot)

	absFile, err := filepath.Abs(filepath.Join(absRoot, name))
	if err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	absFile = filepath.Clean(absFile)

	if !strings.HasPrefix(absFile, absRoot+string(os.PathSeparator)) {
		return "", errors.New("path traversal detected")
	}
	return absFile, nil
}

// handleExportFile serves a previously exported file: GET /exports/{file}
func (s *Server) handleExportFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.exportDir == "" {
		writeError(w, http.StatusServiceUnavailable, "Feature not available")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/exports/")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		writeError(w, http.StatusBadRequest, "Invalid file name")
		return
	}

	path, err := s.resolveExportPath(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file path or traversal detected")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	http.ServeFile(w, r, path)
}
