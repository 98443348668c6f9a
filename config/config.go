// Package config loads player settings from TOML files. Files are looked up
// in the XDG config directory first and the working directory second, with
// later files overriding earlier ones.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mdurel/chime"
)

const appName = "chime"

type Config struct {
	Autoplay    *bool   `koanf:"autoplay"`    // start playback when an item is selected (default: true)
	Volume      float64 `koanf:"volume"`      // initial volume, 0.0-2.0 (default: 1.0)
	Speed       float64 `koanf:"speed"`       // initial playback speed (default: 1.0)
	Progression string  `koanf:"progression"` // "none", "consecutive", "carousel", "repeat-item", "shuffle"
	Gapless     *bool   `koanf:"gapless"`     // preload the next item near the end of the current one

	Download DownloadConfig `koanf:"download"`
	Adaptive AdaptiveConfig `koanf:"adaptive"`
	Mpris    MprisConfig    `koanf:"mpris"`
	History  HistoryConfig  `koanf:"history"`
}

// DownloadConfig controls progressive download caching.
type DownloadConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"` // defaults to the XDG cache dir
}

// AdaptiveConfig bounds adaptive streaming bitrates, in bits per second.
type AdaptiveConfig struct {
	StartBitrate uint `koanf:"start_bitrate"`
	MinBitrate   uint `koanf:"min_bitrate"`
	MaxBitrate   uint `koanf:"max_bitrate"`
}

// MprisConfig controls the MPRIS session bus bridge.
type MprisConfig struct {
	Enabled  *bool  `koanf:"enabled"` // default: true on Linux
	Identity string `koanf:"identity"`
}

// HistoryConfig controls playback history persistence.
type HistoryConfig struct {
	Enabled *bool  `koanf:"enabled"` // default: true
	Path    string `koanf:"path"`    // defaults to the XDG data dir
}

// Load reads the default config file locations.
func Load() (*Config, error) {
	return LoadPaths(configPaths()...)
}

// LoadPaths reads the given files in order, later files overriding earlier
// ones. Missing files are skipped.
func LoadPaths(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.Download.Dir != "" {
		cfg.Download.Dir = expandPath(cfg.Download.Dir)
	}
	if cfg.History.Path != "" {
		cfg.History.Path = expandPath(cfg.History.Path)
	}

	if _, err := cfg.ProgressionMode(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Volume:      1.0,
		Speed:       1.0,
		Progression: "consecutive",
		Mpris:       MprisConfig{Identity: "Chime"},
	}
}

func configPaths() []string {
	return []string{
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// AutoplayEnabled resolves the autoplay default.
func (c *Config) AutoplayEnabled() bool {
	return c.Autoplay == nil || *c.Autoplay
}

// GaplessEnabled resolves the gapless default.
func (c *Config) GaplessEnabled() bool {
	return c.Gapless == nil || *c.Gapless
}

// MprisEnabled resolves the MPRIS default.
func (c *Config) MprisEnabled() bool {
	return c.Mpris.Enabled == nil || *c.Mpris.Enabled
}

// HistoryEnabled resolves the history default.
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}

// DownloadDir resolves the cache directory for progressive downloads.
func (c *Config) DownloadDir() string {
	if c.Download.Dir != "" {
		return c.Download.Dir
	}
	return filepath.Join(xdg.CacheHome, appName, "media")
}

// ProgressionMode parses the configured queue progression.
func (c *Config) ProgressionMode() (chime.ProgressionMode, error) {
	switch c.Progression {
	case "", "consecutive":
		return chime.ProgressionConsecutive, nil
	case "none":
		return chime.ProgressionNone, nil
	case "carousel":
		return chime.ProgressionCarousel, nil
	case "repeat-item":
		return chime.ProgressionRepeatItem, nil
	case "shuffle":
		return chime.ProgressionShuffle, nil
	default:
		return chime.ProgressionNone, fmt.Errorf("unknown progression mode %q", c.Progression)
	}
}

// PlayerOptions turns the file settings into player options. Pipeline,
// observer and logger still have to be filled in by the caller.
func (c *Config) PlayerOptions() chime.Options {
	opts := chime.Options{
		Autoplay:             c.AutoplayEnabled(),
		AdaptiveStartBitrate: c.Adaptive.StartBitrate,
		AdaptiveMinBitrate:   c.Adaptive.MinBitrate,
		AdaptiveMaxBitrate:   c.Adaptive.MaxBitrate,
	}
	if c.Download.Enabled {
		opts.DownloadDir = c.DownloadDir()
		opts.DownloadEnabled = true
	}
	return opts
}
