// Package config holds the server's runtime settings.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
	"github.com/ironsheep/omr-scan-mcp/internal/live"
)

// Config holds runtime configuration for scanning and live capture.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	// Layout names a built-in layout; LayoutFile, when set, is merged over it.
	Layout     string `json:"layout"`
	LayoutFile string `json:"layout_file,omitempty"`

	// Backend selects the image backend ("native" or "gocv").
	Backend string `json:"backend"`

	// KeyPath is the answer key file; empty uses the XDG data directory.
	KeyPath string `json:"key_path,omitempty"`

	// CacheSize bounds the decoded image cache.
	CacheSize int `json:"cache_size"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `json:"log_level"`

	Live Live `json:"live"`
}

// Live configures the stability-gated capture loop.
type Live struct {
	IntervalMillis       int     `json:"interval_ms"`
	PreviewWidth         int     `json:"preview_width"`
	RequiredStableFrames int     `json:"required_stable_frames"`
	MaxDisplacementPx    float64 `json:"max_displacement_px"`
}

// Interval returns the sampling period.
func (l Live) Interval() time.Duration {
	return time.Duration(l.IntervalMillis) * time.Millisecond
}

// ScannerConfig converts the settings for a layout expecting count anchors.
func (l Live) ScannerConfig(count int) live.ScannerConfig {
	return live.ScannerConfig{
		Interval:     l.Interval(),
		PreviewWidth: l.PreviewWidth,
		Gate: live.GateConfig{
			ExpectedCount:        count,
			RequiredStableFrames: l.RequiredStableFrames,
			MaxDisplacement:      l.MaxDisplacementPx,
		},
	}
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Layout:    layout.Fiducial().Name,
		Backend:   "native",
		CacheSize: imaging.DefaultCacheSize,
		LogLevel:  "info",
		Live: Live{
			IntervalMillis:       200,
			PreviewWidth:         480,
			RequiredStableFrames: 7,
			MaxDisplacementPx:    8,
		},
	}
}

// Validate clamps out-of-range values to defaults and rejects settings
// that cannot be repaired.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.Layout == "" {
		c.Layout = d.Layout
	}
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Live.IntervalMillis <= 0 {
		c.Live.IntervalMillis = d.Live.IntervalMillis
	}
	if c.Live.PreviewWidth < 0 {
		c.Live.PreviewWidth = d.Live.PreviewWidth
	}
	if c.Live.RequiredStableFrames <= 0 {
		c.Live.RequiredStableFrames = d.Live.RequiredStableFrames
	}
	if c.Live.MaxDisplacementPx <= 0 {
		c.Live.MaxDisplacementPx = d.Live.MaxDisplacementPx
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LayoutFile == "" {
		if _, err := layout.ByName(c.Layout); err != nil {
			return err
		}
	}
	return nil
}

// ResolveLayout returns the configured layout, applying LayoutFile if set.
func (c *Config) ResolveLayout() (layout.Layout, error) {
	base, err := layout.ByName(c.Layout)
	if err != nil {
		return layout.Layout{}, err
	}
	if c.LayoutFile == "" {
		return base, nil
	}
	return layout.Load(c.LayoutFile, base)
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// Load reads configuration from the JSON file at path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with
// the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to path as indented JSON.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
