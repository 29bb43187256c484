package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds the user-tunable capture and server settings.
// Zero values fall back to the defaults in const.go through the getters.
type Config struct {
	OutputDPI        float64      `yaml:"output_dpi"`
	DisplayScale     float64      `yaml:"display_scale"`
	DevicePixelRatio float64      `yaml:"device_pixel_ratio"`
	GuideAnchor      string       `yaml:"guide_anchor"`    // center | top-left
	CropPolicy       string       `yaml:"crop_policy"`     // guide | full-frame | center | top-left
	ResampleFilter   string       `yaml:"resample_filter"` // linear | catmull-rom | lanczos | box | nearest
	ExportFormat     string       `yaml:"export_format"`   // png | bmp | tiff
	Server           ServerConfig `yaml:"server"`
}

// ServerConfig holds the local API settings.
type ServerConfig struct {
	Addr         string  `yaml:"addr"`
	CaptureRate  float64 `yaml:"capture_rate"`
	CaptureBurst int     `yaml:"capture_burst"`
	MaxUploadMB  int     `yaml:"max_upload_mb"`
	MaxFrameMP   int     `yaml:"max_frame_megapixels"`
}

var (
	instance *Config
	loadErr  error
	once     sync.Once
)

// GetConfig returns the config loaded once from the user's config file. A
// missing file yields the defaults; an unreadable or invalid one is an error.
func GetConfig() (*Config, error) {
	once.Do(func() {
		instance, loadErr = LoadOrDefault(GetFilename())
	})
	return instance, loadErr
}

// LoadOrDefault loads filename, returning the defaults when it does not exist.
func LoadOrDefault(filename string) (*Config, error) {
	cfg, err := Load(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// GetPath returns the path to the user's config directory.
func GetPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "." + strings.ToLower(AppName)
	}
	return filepath.Join(homeDir, "."+strings.ToLower(AppName))
}

// GetFilename returns the path to the user's config file.
func GetFilename() string {
	return filepath.Join(GetPath(), "config.yaml")
}

// Default returns a config populated with the package defaults.
func Default() *Config {
	return &Config{
		OutputDPI:        DefaultOutputDPI,
		DisplayScale:     DefaultDisplayScale,
		DevicePixelRatio: DefaultDevicePixelRatio,
		GuideAnchor:      DefaultGuideAnchor,
		CropPolicy:       DefaultCropPolicy,
		ResampleFilter:   DefaultResampleFilter,
		ExportFormat:     DefaultExportFormat,
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			CaptureRate:  DefaultCaptureRate,
			CaptureBurst: DefaultCaptureBurst,
			MaxUploadMB:  DefaultMaxUploadMB,
			MaxFrameMP:   DefaultMaxFrameMP,
		},
	}
}

// Load reads and validates the YAML config at filename.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}
	return cfg, nil
}

// Save writes the config to filename, creating the directory if needed.
func (c *Config) Save(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate rejects negative numeric settings. Unset (zero) values are allowed
// and resolved by the getters.
func (c *Config) Validate() error {
	switch {
	case c.OutputDPI < 0:
		return fmt.Errorf("output_dpi must be positive, got %v", c.OutputDPI)
	case c.DisplayScale < 0:
		return fmt.Errorf("display_scale must be positive, got %v", c.DisplayScale)
	case c.DevicePixelRatio < 0:
		return fmt.Errorf("device_pixel_ratio must be positive, got %v", c.DevicePixelRatio)
	case c.Server.CaptureRate < 0:
		return fmt.Errorf("server.capture_rate must be positive, got %v", c.Server.CaptureRate)
	case c.Server.CaptureBurst < 0:
		return fmt.Errorf("server.capture_burst must be positive, got %d", c.Server.CaptureBurst)
	case c.Server.MaxUploadMB < 0:
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	case c.Server.MaxFrameMP < 0:
		return fmt.Errorf("server.max_frame_megapixels must be positive, got %d", c.Server.MaxFrameMP)
	}
	return nil
}

// GetOutputDPI returns the output resolution in dots per inch.
func (c *Config) GetOutputDPI() float64 {
	return floatWithFallback(c.OutputDPI, DefaultOutputDPI)
}

// GetDisplayScale returns the on-screen guide magnification.
func (c *Config) GetDisplayScale() float64 {
	return floatWithFallback(c.DisplayScale, DefaultDisplayScale)
}

// GetDevicePixelRatio returns the layout-to-device pixel ratio.
func (c *Config) GetDevicePixelRatio() float64 {
	return floatWithFallback(c.DevicePixelRatio, DefaultDevicePixelRatio)
}

// GetGuideAnchor returns the guide placement policy name.
func (c *Config) GetGuideAnchor() string {
	return stringWithFallback(c.GuideAnchor, DefaultGuideAnchor)
}

// GetCropPolicy returns the crop policy name.
func (c *Config) GetCropPolicy() string {
	return stringWithFallback(c.CropPolicy, DefaultCropPolicy)
}

// GetResampleFilter returns the resample filter name.
func (c *Config) GetResampleFilter() string {
	return stringWithFallback(c.ResampleFilter, DefaultResampleFilter)
}

// GetExportFormat returns the export format name.
func (c *Config) GetExportFormat() string {
	return stringWithFallback(c.ExportFormat, DefaultExportFormat)
}

// GetServerAddr returns the API listen address.
func (c *Config) GetServerAddr() string {
	return stringWithFallback(c.Server.Addr, DefaultServerAddr)
}

// GetCaptureRate returns the sustained capture rate allowed by the API.
func (c *Config) GetCaptureRate() float64 {
	return floatWithFallback(c.Server.CaptureRate, DefaultCaptureRate)
}

// GetCaptureBurst returns the capture burst allowed by the API.
func (c *Config) GetCaptureBurst() int {
	if c.Server.CaptureBurst <= 0 {
		return DefaultCaptureBurst
	}
	return c.Server.CaptureBurst
}

// GetMaxUploadBytes returns the largest frame upload the API accepts.
func (c *Config) GetMaxUploadBytes() int64 {
	mb := c.Server.MaxUploadMB
	if mb <= 0 {
		mb = DefaultMaxUploadMB
	}
	return int64(mb) << 20
}

// GetMaxFramePixels returns the largest decoded frame, in pixels, the API
// accepts.
func (c *Config) GetMaxFramePixels() int64 {
	mp := c.Server.MaxFrameMP
	if mp <= 0 {
		mp = DefaultMaxFrameMP
	}
	return int64(mp) * 1_000_000
}

func floatWithFallback(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

func stringWithFallback(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.ToLower(strings.TrimSpace(v))
}
