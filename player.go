package chime

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdurel/chime/pipeline"
)

// PlayerState is the playback state visible to applications. It is coarser
// than the pipeline state ladder: transient states collapse into their
// destination and a stalled network stream shows as buffering.
type PlayerState int

const (
	// PlayerStopped means no media is playing or prerolled.
	PlayerStopped PlayerState = iota
	// PlayerBuffering means playback is on hold while data accumulates.
	PlayerBuffering
	// PlayerPaused means media is prerolled and frozen.
	PlayerPaused
	// PlayerPlaying means media is advancing.
	PlayerPlaying
)

func (s PlayerState) String() string {
	switch s {
	case PlayerBuffering:
		return "buffering"
	case PlayerPaused:
		return "paused"
	case PlayerPlaying:
		return "playing"
	default:
		return "stopped"
	}
}

const (
	// maxVolume is the amplification ceiling on the cubic scale.
	maxVolume = 2.0

	adaptiveLowWatermark  = 3 * time.Second
	adaptiveHighWatermark = 10 * time.Second
)

// ErrNoPipeline is returned by NewPlayer when no pipeline was supplied.
var ErrNoPipeline = errors.New("player needs a pipeline")

// Options configure a new Player. Pipeline is required; everything else has
// a usable zero value.
type Options struct {
	// Pipeline is the streaming backend the player drives.
	Pipeline pipeline.Pipeline

	// Observer receives host-facing notifications. Nil means none.
	Observer Observer

	// MainLoop, when set, marshals Observer callbacks onto the host main
	// loop instead of a background goroutine.
	MainLoop func(func())

	Logger *slog.Logger

	// Autoplay starts playback whenever the queue selection changes.
	Autoplay bool

	// DownloadDir enables progressive download caching into the given
	// directory when DownloadEnabled is set.
	DownloadDir     string
	DownloadEnabled bool

	// Adaptive streaming bitrate bounds in bits per second. Zero leaves the
	// pipeline defaults.
	AdaptiveStartBitrate uint
	AdaptiveMinBitrate   uint
	AdaptiveMaxBitrate   uint
}

// Player is a complete media playback controller: a queue of items, per-kind
// stream lists and a single serialized path to the underlying pipeline.
// All exported methods are safe to call from any goroutine and never block
// on the pipeline.
type Player struct {
	mu sync.Mutex

	// Announced state, updated by the worker.
	state        PlayerState
	position     time.Duration
	speed        float64
	volume       float64
	mute         bool
	flags        pipeline.PlayFlags
	avOffset     time.Duration
	textOffset   time.Duration
	fontDesc     string
	videoDecoder string
	audioDecoder string
	bandwidth    uint
	playedItem   *MediaItem
	pendingItem  *MediaItem

	autoplay        bool
	downloadDir     string
	downloadEnabled bool
	adaptiveStart   uint
	adaptiveMin     uint
	adaptiveMax     uint

	// Set while the worker pauses on end of stream; read by the queue to
	// decide whether a freshly added item should start right away.
	eos atomic.Bool

	queue           *Queue
	videoStreams    *StreamList
	audioStreams    *StreamList
	subtitleStreams *StreamList

	bus        *commandBus
	appBus     *appBus
	dispatcher *dispatcher
	ctrl       *controller
	log        *slog.Logger

	closeOnce sync.Once
	workerWG  sync.WaitGroup
}

// NewPlayer creates a player on top of the given pipeline and starts its
// worker goroutine.
func NewPlayer(opts Options) (*Player, error) {
	if opts.Pipeline == nil {
		return nil, ErrNoPipeline
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Player{
		speed:           1.0,
		volume:          1.0,
		flags:           opts.Pipeline.Flags(),
		autoplay:        opts.Autoplay,
		downloadDir:     opts.DownloadDir,
		downloadEnabled: opts.DownloadEnabled,
		adaptiveStart:   opts.AdaptiveStartBitrate,
		adaptiveMin:     opts.AdaptiveMinBitrate,
		adaptiveMax:     opts.AdaptiveMaxBitrate,
		bus:             newCommandBus(),
		appBus:          newAppBus(opts.Observer, opts.MainLoop),
		log:             log,
	}
	p.dispatcher = newDispatcher(p, log)
	p.queue = newQueue(p, log)
	p.videoStreams = newStreamList(pipeline.StreamVideo, p, log)
	p.audioStreams = newStreamList(pipeline.StreamAudio, p, log)
	p.subtitleStreams = newStreamList(pipeline.StreamSubtitle, p, log)

	ad := newAdapter(opts.Pipeline, log)
	ad.downloadDir = opts.DownloadDir
	ad.downloadEnabled = opts.DownloadEnabled
	ad.adaptive.StartBitrate = opts.AdaptiveStartBitrate
	ad.adaptive.MinBitrate = opts.AdaptiveMinBitrate
	ad.adaptive.MaxBitrate = opts.AdaptiveMaxBitrate
	ad.configureDownloads()
	ad.applyAdaptiveProfile()

	p.ctrl = newController(p, opts.Pipeline, ad, p.bus, log)

	p.workerWG.Add(1)
	go p.ctrl.run()

	return p, nil
}

func (p *Player) postCommand(cmd command) {
	p.bus.post(cmd)
}

func (p *Player) workerDone() {
	p.workerWG.Done()
}

// AfterEOS reports whether playback reached the end of the queue and is now
// parked in Paused. Appending an item to a consecutive-progression queue in
// this situation starts it immediately, as if it had arrived in time.
func (p *Player) AfterEOS() bool {
	return p.eos.Load()
}

func (p *Player) hasItem() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playedItem != nil || p.pendingItem != nil
}

func (p *Player) streamLists() []*StreamList {
	return []*StreamList{p.videoStreams, p.audioStreams, p.subtitleStreams}
}

// Queue returns the player's media queue.
func (p *Player) Queue() *Queue { return p.queue }

// VideoStreams returns the video stream list of the played item.
func (p *Player) VideoStreams() *StreamList { return p.videoStreams }

// AudioStreams returns the audio stream list of the played item.
func (p *Player) AudioStreams() *StreamList { return p.audioStreams }

// SubtitleStreams returns the subtitle stream list of the played item.
func (p *Player) SubtitleStreams() *StreamList { return p.subtitleStreams }

// State returns the current playback state.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Position returns the last announced playback position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Speed returns the playback speed. 1.0 is normal, negative plays backwards.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Volume returns the volume on the cubic scale, 1.0 being 100%.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Mute returns whether audio is muted. Independent of volume.
func (p *Player) Mute() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mute
}

// PlayedItem returns the item the pipeline actually plays, which trails the
// queue selection until the pipeline catches up. Nil when stopped.
func (p *Player) PlayedItem() *MediaItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playedItem
}

// CurrentVideoDecoder returns the active video decoder name, best effort.
func (p *Player) CurrentVideoDecoder() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoDecoder
}

// CurrentAudioDecoder returns the active audio decoder name, best effort.
func (p *Player) CurrentAudioDecoder() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioDecoder
}

// Autoplay reports whether queue selection changes start playback.
func (p *Player) Autoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

// SetAutoplay makes queue selection changes start playback automatically.
func (p *Player) SetAutoplay(autoplay bool) {
	p.mu.Lock()
	changed := p.autoplay != autoplay
	p.autoplay = autoplay
	p.mu.Unlock()

	if changed {
		p.appBus.postPropNotify(p, PropAutoplay)
	}
}

// Play starts or resumes playback of the selected item.
func (p *Player) Play() {
	p.postCommand(cmdRequestState{state: pipeline.StatePlaying})
}

// Pause freezes playback, keeping the pipeline prerolled.
func (p *Player) Pause() {
	p.postCommand(cmdRequestState{state: pipeline.StatePaused})
}

// Stop halts playback and releases streaming resources. The queue and its
// selection survive, so Play starts the selected item over.
func (p *Player) Stop() {
	p.postCommand(cmdRequestState{state: pipeline.StateReady})
}

// Seek jumps to the given position with default precision.
func (p *Player) Seek(position time.Duration) {
	p.SeekCustom(position, SeekMethodNormal)
}

// SeekCustom jumps to the given position with an explicit seek method.
func (p *Player) SeekCustom(position time.Duration, method SeekMethod) {
	if position < 0 {
		position = 0
	}
	p.postCommand(cmdSeek{position: position, method: method})
}

// SetVolume sets the volume on the cubic scale. Values are clamped to
// [0, 2]; values above 1.0 amplify.
func (p *Player) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	} else if volume > maxVolume {
		volume = maxVolume
	}
	p.postCommand(cmdSetProperty{name: PropVolume, value: volume})
}

// SetMute mutes or unmutes audio without touching the volume.
func (p *Player) SetMute(mute bool) {
	p.postCommand(cmdSetProperty{name: PropMute, value: mute})
}

// SetSpeed sets the playback rate. 1.0 is normal, negative values play
// backwards. Zero is ignored.
func (p *Player) SetSpeed(speed float64) {
	if speed == 0 {
		p.log.Warn("ignoring zero playback speed")
		return
	}
	p.postCommand(cmdRateChange{rate: speed})
}

// VideoEnabled reports whether video decoding is on.
func (p *Player) VideoEnabled() bool { return p.flagEnabled(pipeline.FlagVideo) }

// SetVideoEnabled toggles video decoding.
func (p *Player) SetVideoEnabled(enabled bool) {
	p.postCommand(cmdSetPlayFlag{flag: pipeline.FlagVideo, enabled: enabled})
}

// AudioEnabled reports whether audio decoding is on.
func (p *Player) AudioEnabled() bool { return p.flagEnabled(pipeline.FlagAudio) }

// SetAudioEnabled toggles audio decoding.
func (p *Player) SetAudioEnabled(enabled bool) {
	p.postCommand(cmdSetPlayFlag{flag: pipeline.FlagAudio, enabled: enabled})
}

// SubtitlesEnabled reports whether subtitle rendering is on.
func (p *Player) SubtitlesEnabled() bool { return p.flagEnabled(pipeline.FlagText) }

// SetSubtitlesEnabled toggles subtitle rendering.
func (p *Player) SetSubtitlesEnabled(enabled bool) {
	p.postCommand(cmdSetPlayFlag{flag: pipeline.FlagText, enabled: enabled})
}

func (p *Player) flagEnabled(flag pipeline.PlayFlags) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags&flag != 0
}

// AudioOffset returns the audio synchronisation offset.
func (p *Player) AudioOffset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.avOffset
}

// SetAudioOffset shifts audio relative to video.
func (p *Player) SetAudioOffset(offset time.Duration) {
	p.postCommand(cmdSetProperty{name: PropAudioOffset, value: offset})
}

// SubtitleOffset returns the subtitle synchronisation offset.
func (p *Player) SubtitleOffset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textOffset
}

// SetSubtitleOffset shifts subtitles relative to the media clock.
func (p *Player) SetSubtitleOffset(offset time.Duration) {
	p.postCommand(cmdSetProperty{name: PropSubtitleOffset, value: offset})
}

// SubtitleFontDesc returns the subtitle font description.
func (p *Player) SubtitleFontDesc() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fontDesc
}

// SetSubtitleFontDesc sets the font used to render subtitles.
func (p *Player) SetSubtitleFontDesc(desc string) {
	p.mu.Lock()
	changed := p.fontDesc != desc
	p.fontDesc = desc
	p.mu.Unlock()

	if changed {
		p.postCommand(cmdSetProperty{name: PropSubtitleFontDesc, value: desc})
		p.appBus.postPropNotify(p, PropSubtitleFontDesc)
	}
}

// SetAudioSink replaces the audio output element.
func (p *Player) SetAudioSink(sink any) {
	p.postCommand(cmdSetProperty{name: PropAudioSink, value: sink})
}

// SetVideoSink replaces the video output element.
func (p *Player) SetVideoSink(sink any) {
	p.postCommand(cmdSetProperty{name: PropVideoSink, value: sink})
}

// SetAudioFilter inserts an audio processing element.
func (p *Player) SetAudioFilter(filter any) {
	p.postCommand(cmdSetProperty{name: PropAudioFilter, value: filter})
}

// SetVideoFilter inserts a video processing element.
func (p *Player) SetVideoFilter(filter any) {
	p.postCommand(cmdSetProperty{name: PropVideoFilter, value: filter})
}

// DownloadDir returns the progressive download cache directory.
func (p *Player) DownloadDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloadDir
}

// SetDownloadDir sets where progressive downloads are cached.
func (p *Player) SetDownloadDir(dir string) {
	p.mu.Lock()
	changed := p.downloadDir != dir
	p.downloadDir = dir
	p.mu.Unlock()

	if changed {
		p.postCommand(cmdSetProperty{name: PropDownloadDir, value: dir})
		p.appBus.postPropNotify(p, PropDownloadDir)
	}
}

// DownloadEnabled reports whether progressive download caching is on.
func (p *Player) DownloadEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloadEnabled
}

// SetDownloadEnabled toggles progressive download caching. Takes effect from
// the next item change.
func (p *Player) SetDownloadEnabled(enabled bool) {
	p.mu.Lock()
	changed := p.downloadEnabled != enabled
	p.downloadEnabled = enabled
	p.mu.Unlock()

	if changed {
		p.postCommand(cmdSetProperty{name: PropDownloadEnabled, value: enabled})
		p.appBus.postPropNotify(p, PropDownloadEnabled)
	}
}

// AdaptiveStartBitrate returns the initial adaptive streaming bitrate.
func (p *Player) AdaptiveStartBitrate() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adaptiveStart
}

// SetAdaptiveStartBitrate sets the bitrate adaptive streaming starts with.
func (p *Player) SetAdaptiveStartBitrate(bitrate uint) {
	p.setAdaptiveBitrate(&p.adaptiveStart, bitrate, PropAdaptiveStartBitrate)
}

// AdaptiveMinBitrate returns the adaptive streaming bitrate floor.
func (p *Player) AdaptiveMinBitrate() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adaptiveMin
}

// SetAdaptiveMinBitrate sets the minimal allowed adaptive bitrate.
func (p *Player) SetAdaptiveMinBitrate(bitrate uint) {
	p.setAdaptiveBitrate(&p.adaptiveMin, bitrate, PropAdaptiveMinBitrate)
}

// AdaptiveMaxBitrate returns the adaptive streaming bitrate ceiling.
func (p *Player) AdaptiveMaxBitrate() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adaptiveMax
}

// SetAdaptiveMaxBitrate sets the maximal allowed adaptive bitrate. Zero
// means unlimited.
func (p *Player) SetAdaptiveMaxBitrate(bitrate uint) {
	p.setAdaptiveBitrate(&p.adaptiveMax, bitrate, PropAdaptiveMaxBitrate)
}

func (p *Player) setAdaptiveBitrate(field *uint, bitrate uint, prop string) {
	p.mu.Lock()
	changed := *field != bitrate
	*field = bitrate
	p.mu.Unlock()

	if changed {
		p.postCommand(cmdSetProperty{name: prop, value: bitrate})
		p.appBus.postPropNotify(p, prop)
	}
}

// AdaptiveBandwidth returns the bandwidth estimate of the adaptive demuxer
// in bits per second, zero when not streaming adaptively.
func (p *Player) AdaptiveBandwidth() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bandwidth
}

// AddReactor attaches a reactor. It is prepared on the reactor goroutine and
// then receives playback events until the player closes.
func (p *Player) AddReactor(r Reactor) {
	p.dispatcher.add(r)
}

// Close stops playback, tears down the pipeline and releases all player
// goroutines. The player must not be used afterwards.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.postCommand(cmdQuit{})
		p.workerWG.Wait()
		p.bus.close()
		p.dispatcher.close()
		p.appBus.close()
	})
}

// setAnnounced swaps an announced player field under the lock and posts a
// property notification when the value actually changed.
func setAnnounced[T comparable](p *Player, field *T, value T, prop string) bool {
	p.mu.Lock()
	changed := *field != value
	if changed {
		*field = value
	}
	p.mu.Unlock()

	if changed {
		p.appBus.postPropNotify(p, prop)
	}
	return changed
}

// setAnnouncedFloat is setAnnounced with a tolerance, for speed and volume.
func setAnnouncedFloat(p *Player, field *float64, value float64, prop string) bool {
	p.mu.Lock()
	changed := !approxEqual(*field, value)
	if changed {
		*field = value
	}
	p.mu.Unlock()

	if changed {
		p.appBus.postPropNotify(p, prop)
	}
	return changed
}
