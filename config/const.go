package config

import "strings"

// AppVersion is stamped at build time.
var AppVersion = "0.3.0"

// AppName is the name of the application.
const AppName = "CoverSnap"

// LogWinSubDir is the sub directory for the log files on windows.
var LogWinSubDir = AppName

// LogSubDir is the sub directory for the log files.
var LogSubDir = "." + strings.ToLower(AppName)

// LogExt is the extension for the log files.
var LogExt = ".log"

// LogFileName returns the rotating log file name.
func LogFileName() string {
	return strings.ToLower(AppName) + LogExt
}

// Defaults used when the config file leaves a value unset.
const (
	DefaultOutputDPI        = 300.0
	DefaultDisplayScale     = 1.0
	DefaultDevicePixelRatio = 1.0
	DefaultGuideAnchor      = "center"
	DefaultCropPolicy       = "guide"
	DefaultResampleFilter   = "linear"
	DefaultExportFormat     = "png"
	DefaultServerAddr       = "127.0.0.1:49453"
	DefaultCaptureRate      = 4.0 // captures per second
	DefaultCaptureBurst     = 8
	DefaultMaxUploadMB      = 32
	DefaultMaxFrameMP       = 40 // megapixels
)

// EnvConfigPath names an alternative config file.
const EnvConfigPath = "COVERSNAP_CONFIG"

// EnvServerAddr overrides the server listen address.
const EnvServerAddr = "COVERSNAP_ADDR"
