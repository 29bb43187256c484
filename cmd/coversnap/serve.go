package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/dixieflatline76/CoverSnap/config"
	"github.com/dixieflatline76/CoverSnap/pkg/api"
	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/util/log"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		addr      string
		exportDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local capture API",
		Long: `Starts the local API the capture page uploads frames to.

Each upload carries the current camera frame and the layout of the video
element. The server crops the selected panel, stores it for the combined
export and pushes an event to WebSocket listeners.`,
		Example: `  # Listen on the configured address
  coversnap serve

  # Listen elsewhere and allow exports to disk
  coversnap serve --addr 127.0.0.1:8080 --export-dir ./covers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(*configPath)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = os.Getenv(config.EnvServerAddr)
			}
			if addr == "" {
				addr = s.file.GetServerAddr()
			}

			server := api.NewServer(api.Options{
				Addr:           addr,
				Engine:         capture.NewEngine(s.filter),
				Config:         s.capture,
				Policy:         s.policy,
				Format:         s.format,
				CaptureRate:    s.file.GetCaptureRate(),
				CaptureBurst:   s.file.GetCaptureBurst(),
				MaxUploadBytes: s.file.GetMaxUploadBytes(),
				MaxFramePixels: s.file.GetMaxFramePixels(),
				ExportDir:      exportDir,
			})

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				log.Printf("CoverSnap %s capture API at http://%s (%v dpi, %s)", config.AppVersion, addr, s.capture.Resolution, s.format)
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				log.Println("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Stop(shutdownCtx); err != nil {
					log.Printf("Server shutdown failed: %v", err)
					return err
				}
				log.Println("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default $COVERSNAP_ADDR or the config file)")
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "Directory POST /export writes to (disabled when empty)")

	return cmd
}
