package chime

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/mdurel/chime/pipeline"
)

// Watched pipeline properties, relayed back as PropertyNotify messages.
var watchedProps = []string{
	"volume", "mute", "flags",
	"av-offset", "text-offset",
	"audio-sink", "video-sink", "audio-filter", "video-filter",
}

// adapter owns the pipeline handle and translates between the user-facing
// value domain (cubic volume, item handoff modes) and what the pipeline
// actually accepts. Worker goroutine only, except where noted.
type adapter struct {
	pipe pipeline.Pipeline
	log  *slog.Logger

	// Cached user values that the pipeline cannot accept before reaching
	// Paused. Re-applied at preroll.
	cachedVolume float64 // cubic scale
	cachedMute   bool
	avReady      bool // pipeline reached >= Paused for the current item

	// Sub-URI last written to the pipeline; gapless/instant handoffs are
	// impossible while one is set.
	pipelineSubURI string

	downloadDir     string
	downloadEnabled bool

	adaptive pipeline.AdaptiveProfile
}

func newAdapter(pipe pipeline.Pipeline, log *slog.Logger) *adapter {
	a := &adapter{
		pipe:         pipe,
		log:          log.With("component", "adapter"),
		cachedVolume: 1.0,
		adaptive: pipeline.AdaptiveProfile{
			LowWatermark:  adaptiveLowWatermark,
			HighWatermark: adaptiveHighWatermark,
		},
	}
	for _, prop := range watchedProps {
		pipe.WatchProperty(prop)
	}
	return a
}

// Volume conversion between the user-facing cubic scale and the pipeline's
// linear one. Cubic matches perceived loudness, so sliders feel natural.
func cubicToLinear(cubic float64) float64 {
	return cubic * cubic * cubic
}

func linearToCubic(linear float64) float64 {
	return math.Cbrt(linear)
}

// setVolume stores the user (cubic) volume and forwards it when the
// pipeline can accept it.
func (a *adapter) setVolume(cubic float64) {
	cubic = math.Max(0, math.Min(cubic, maxVolume))
	a.cachedVolume = cubic
	if a.avReady {
		a.pipe.SetVolume(cubicToLinear(cubic))
	}
}

func (a *adapter) setMute(mute bool) {
	a.cachedMute = mute
	if a.avReady {
		a.pipe.SetMute(mute)
	}
}

// applyCachedAV pushes volume and mute after the first preroll of an item.
func (a *adapter) applyCachedAV() {
	a.avReady = true
	a.pipe.SetVolume(cubicToLinear(a.cachedVolume))
	a.pipe.SetMute(a.cachedMute)
}

func (a *adapter) setPlayFlag(flag pipeline.PlayFlags, enabled bool) {
	flags := a.pipe.Flags()
	if enabled {
		flags |= flag
	} else {
		flags &^= flag
	}
	a.pipe.SetFlags(flags)
}

// chooseItemChangeMode caps the requested handoff mode by what the pipeline
// and the item allow. Gapless and instant both require no sub-URI on either
// side; each additionally needs its pipeline capability.
func (a *adapter) chooseItemChangeMode(item *MediaItem, mode ItemChangeMode) ItemChangeMode {
	if mode == ItemChangeNormal {
		return mode
	}
	if a.pipelineSubURI != "" || (item != nil && item.SubURI() != "") {
		return ItemChangeNormal
	}
	caps := a.pipe.Caps()
	switch mode {
	case ItemChangeGapless:
		if caps&pipeline.CapGaplessURIChange == 0 {
			return ItemChangeNormal
		}
	case ItemChangeInstant:
		if caps&pipeline.CapInstantURI == 0 {
			return ItemChangeNormal
		}
	}
	return mode
}

// applyPendingItem writes the item URIs into the pipeline using the given
// (already capped) mode. In Normal mode the sub-URI goes in first; the
// pipeline cannot change it in gapless or instant mode.
func (a *adapter) applyPendingItem(item *MediaItem, mode ItemChangeMode) {
	var uri, subURI string
	if item != nil {
		uri = item.playbackURI()
		subURI = item.SubURI()
	}

	a.log.Info("changing item", "mode", mode.String(), "uri", uri, "suburi", subURI)

	if mode == ItemChangeNormal {
		a.pipe.SetSubURI(subURI)
		a.pipelineSubURI = subURI
	}
	if uri == "" {
		return
	}
	if mode == ItemChangeInstant {
		a.pipe.SetInstantURI(true)
	}
	a.pipe.SetURI(uri)
	if mode == ItemChangeInstant {
		a.pipe.SetInstantURI(false)
	}
}

// configureDownloads enables or disables progressive download caching.
// The template follows mkstemp conventions inside the download directory.
func (a *adapter) configureDownloads() {
	if !a.downloadEnabled || a.downloadDir == "" {
		a.pipe.SetDownloadTemplate("")
		a.setPlayFlag(pipeline.FlagDownload, false)
		return
	}
	if err := os.MkdirAll(a.downloadDir, 0o755); err != nil {
		a.log.Error("could not create download dir", "dir", a.downloadDir, "err", err)
		return
	}
	a.pipe.SetDownloadTemplate(filepath.Join(a.downloadDir, "XXXXXX"))
	a.setPlayFlag(pipeline.FlagDownload, true)
}

func (a *adapter) applyAdaptiveProfile() {
	a.pipe.SetAdaptiveProfile(a.adaptive)
}

// reset forgets per-item state when the pipeline falls back to Ready.
func (a *adapter) reset() {
	a.avReady = false
}
