// Package pipeline defines the contract between the playback controller and
// an underlying streaming pipeline. The controller treats the pipeline as a
// black box: it pushes state changes, seeks and property writes in, and
// consumes typed messages out. Implementations decide how media actually gets
// decoded and rendered (see the beepline package for a minimal audio one).
package pipeline

import "time"

// State is the pipeline state ladder. Transitions always go through
// neighbouring states: Null <-> Ready <-> Paused <-> Playing.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "Null"
	case StateReady:
		return "Ready"
	case StatePaused:
		return "Paused"
	case StatePlaying:
		return "Playing"
	default:
		return "Unknown"
	}
}

// StateNone marks "no pending state" in StateChanged messages.
const StateNone State = -1

// StateChangeReturn is the immediate result of a SetState call.
type StateChangeReturn int

const (
	StateChangeFailure StateChangeReturn = iota
	StateChangeSuccess
	StateChangeAsync
	StateChangeNoPreroll
)

// Mode tells the controller how stream selection works on this pipeline.
type Mode int

const (
	// ModeModern: the pipeline posts stream collections with stable stream
	// ids and accepts SelectStreams events.
	ModeModern Mode = iota
	// ModeLegacy: selection happens through integer current-video/audio/text
	// selectors and the pipeline never posts collections by itself.
	ModeLegacy
)

// PlayFlags is the pipeline feature bitmask.
type PlayFlags uint32

const (
	FlagVideo PlayFlags = 1 << iota
	FlagAudio
	FlagText
	FlagVis
	FlagSoftVolume
	FlagNativeAudio
	FlagNativeVideo
	FlagDownload
	FlagBuffering
	FlagDeinterlace
	FlagSoftColorBalance
	FlagForceFilters
	FlagForceSwDecoders
)

// SeekFlags modify how a seek event is executed.
type SeekFlags uint32

const (
	SeekFlagFlush SeekFlags = 1 << iota
	SeekFlagAccurate
	SeekFlagKeyUnit
	SeekFlagSnapNearest
	SeekFlagTrickmode
)

// SeekType describes how the start/stop values of a seek are interpreted.
type SeekType int

const (
	SeekTypeNone SeekType = iota
	SeekTypeSet
	SeekTypeEnd
)

// SeekEvent is a time-format seek. For negative rates the playback range is
// expressed as [Start, Stop] with the position in Stop.
type SeekEvent struct {
	Rate      float64
	Flags     SeekFlags
	StartType SeekType
	Start     time.Duration
	StopType  SeekType
	Stop      time.Duration
}

// Caps advertise optional pipeline abilities the controller probes before
// choosing an item handoff mode.
type Caps uint32

const (
	// CapGaplessURIChange: a new URI may be assigned while the pipeline is
	// paused or playing without visiting Ready first.
	CapGaplessURIChange Caps = 1 << iota
	// CapInstantURI: the pipeline honors the instant-uri toggle.
	CapInstantURI
)

// AdaptiveProfile configures adaptive demuxers (HLS/DASH) when one appears.
type AdaptiveProfile struct {
	LowWatermark  time.Duration
	HighWatermark time.Duration
	StartBitrate  uint
	MinBitrate    uint
	MaxBitrate    uint
}

// Pipeline is the streaming backend contract. All methods are called from the
// player worker goroutine only, except SetURI/SetSubURI/SetInstantURI which
// may additionally be called from the pipeline's own streaming goroutine
// while it services an about-to-finish callback.
//
// Messages must be delivered in the order events occurred. The channel is
// closed by Close.
type Pipeline interface {
	Mode() Mode
	Caps() Caps

	SetURI(uri string)
	SetSubURI(uri string)
	SetInstantURI(enabled bool)

	SetState(s State) StateChangeReturn

	// SendSeek returns false when the pipeline rejects the event outright
	// (e.g. unsupported rate direction).
	SendSeek(ev SeekEvent) bool

	// SelectStreams requests the given stream ids to become active
	// (ModeModern only).
	SelectStreams(ids []string) bool
	// SetCurrentStreams writes the integer selectors (ModeLegacy only).
	// Negative values mean "leave unchanged".
	SetCurrentStreams(video, audio, text int)
	// CurrentDecoders reports active decoder element names, best effort.
	CurrentDecoders() (video, audio string)

	// SetVolume takes a linear volume. Callers are responsible for any
	// perceptual mapping.
	SetVolume(linear float64)
	Volume() float64
	SetMute(mute bool)
	Muted() bool

	SetFlags(flags PlayFlags)
	Flags() PlayFlags

	SetAVOffset(offset time.Duration)
	SetTextOffset(offset time.Duration)
	SetSubtitleFontDesc(desc string)

	// Sinks and filters are opaque to the controller.
	SetAudioSink(sink any)
	SetVideoSink(sink any)
	SetAudioFilter(filter any)
	SetVideoFilter(filter any)

	// SetDownloadTemplate configures progressive download caching. The
	// template is a mkstemp-style path ending in XXXXXX; empty disables.
	SetDownloadTemplate(template string)
	SetAdaptiveProfile(profile AdaptiveProfile)

	// WatchProperty asks the pipeline to post PropertyNotify messages for
	// the named property.
	WatchProperty(name string)

	QueryPosition() (time.Duration, bool)
	QueryDuration() (time.Duration, bool)

	RecalculateLatency()

	// OnAboutToFinish registers a callback fired shortly before the current
	// media drains, on the pipeline's streaming goroutine. The callback may
	// assign the next URI to get gapless playback.
	OnAboutToFinish(fn func())

	Messages() <-chan Message

	Close() error
}
