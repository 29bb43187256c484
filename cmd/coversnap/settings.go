package main

import (
	"fmt"
	"os"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/CoverSnap/config"
	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/util/log"
)

// settings is the config file resolved into engine types.
type settings struct {
	file    *config.Config
	capture geometry.CaptureConfig
	policy  capture.Policy
	filter  imaging.ResampleFilter
	format  capture.Format
}

// configFile returns the config path from the flag or $COVERSNAP_CONFIG, or
// "" for the per-user file.
func configFile(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(config.EnvConfigPath)
}

// loadSettings reads an explicitly named config file, or the per-user one
// through config.GetConfig where a missing file means defaults.
func loadSettings(flag string) (*settings, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := configFile(flag); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.GetConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Debugf("output %v dpi, %s crop, %s export", cfg.GetOutputDPI(), cfg.GetCropPolicy(), cfg.GetExportFormat())
	return resolve(cfg)
}

func resolve(cfg *config.Config) (*settings, error) {
	anchor, err := geometry.ParseAnchor(cfg.GetGuideAnchor())
	if err != nil {
		return nil, err
	}
	policy, err := capture.ParsePolicy(cfg.GetCropPolicy())
	if err != nil {
		return nil, err
	}
	filter, err := capture.ParseFilter(cfg.GetResampleFilter())
	if err != nil {
		return nil, err
	}
	format, err := capture.ParseFormat(cfg.GetExportFormat())
	if err != nil {
		return nil, err
	}

	return &settings{
		file: cfg,
		capture: geometry.CaptureConfig{
			Resolution:       cfg.GetOutputDPI(),
			DisplayScale:     cfg.GetDisplayScale(),
			DevicePixelRatio: cfg.GetDevicePixelRatio(),
			Anchor:           anchor,
		},
		policy: policy,
		filter: filter,
		format: format,
	}, nil
}
