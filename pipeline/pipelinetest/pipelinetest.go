// Package pipelinetest provides a scripted in-memory pipeline for tests.
// It walks the state ladder synchronously, emitting the same message
// sequences a real streaming backend would, and records every call so tests
// can assert on them.
package pipelinetest

import (
	"sync"
	"time"

	"github.com/mdurel/chime/pipeline"
)

// Pipeline is a test double for pipeline.Pipeline.
type Pipeline struct {
	mu sync.Mutex

	mode pipeline.Mode
	caps pipeline.Caps
	msgs chan pipeline.Message

	state  pipeline.State
	target pipeline.State

	uri        string
	subURI     string
	instantURI bool
	uris       []string

	flags      pipeline.PlayFlags
	volume     float64
	mute       bool
	avOffset   time.Duration
	textOffset time.Duration
	fontDesc   string

	audioSink   any
	videoSink   any
	audioFilter any
	videoFilter any

	position time.Duration
	duration time.Duration

	collection []pipeline.StreamInfo
	selected   []string
	group      uint

	seeks        []pipeline.SeekEvent
	failSeek     bool
	holdSeekDone bool
	heldSeeks    int

	videoDecoder string
	audioDecoder string

	downloadTemplate string
	profile          pipeline.AdaptiveProfile

	watched map[string]bool

	aboutToFinish func()

	latencyRecalcs int
	closed         bool
}

// New creates a fake pipeline in modern selection mode with both handoff
// capabilities.
func New() *Pipeline {
	return &Pipeline{
		mode:    pipeline.ModeModern,
		caps:    pipeline.CapGaplessURIChange | pipeline.CapInstantURI,
		msgs:    make(chan pipeline.Message, 512),
		flags:   pipeline.FlagVideo | pipeline.FlagAudio | pipeline.FlagText | pipeline.FlagSoftVolume,
		volume:  1.0,
		watched: map[string]bool{},
	}
}

// NewLegacy creates a fake pipeline in legacy selector mode without handoff
// capabilities.
func NewLegacy() *Pipeline {
	p := New()
	p.mode = pipeline.ModeLegacy
	p.caps = 0
	return p
}

// SetCaps overrides the advertised capabilities.
func (f *Pipeline) SetCaps(caps pipeline.Caps) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caps = caps
}

// SetCollection installs the streams announced when an item prerolls.
func (f *Pipeline) SetCollection(streams []pipeline.StreamInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection = streams
}

// SetDuration sets what QueryDuration reports.
func (f *Pipeline) SetDuration(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duration = d
}

// SetPosition sets what QueryPosition reports.
func (f *Pipeline) SetPosition(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = d
}

// SetDecoders sets what CurrentDecoders reports.
func (f *Pipeline) SetDecoders(video, audio string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoDecoder = video
	f.audioDecoder = audio
}

// FailNextSeek makes SendSeek reject events until reset.
func (f *Pipeline) FailNextSeek(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSeek = fail
}

// HoldSeekDone makes accepted seeks complete only once FinishSeeks is
// called, for tests that need requests to pile up while one is in flight.
func (f *Pipeline) HoldSeekDone(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdSeekDone = hold
}

// FinishSeeks emits the async-done messages withheld by HoldSeekDone.
func (f *Pipeline) FinishSeeks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ; f.heldSeeks > 0; f.heldSeeks-- {
		f.emitLocked(pipeline.AsyncDone{})
	}
}

// Post injects a raw message, e.g. errors or buffering updates.
func (f *Pipeline) Post(msg pipeline.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(msg)
}

// PostEndOfStream injects an end-of-stream message.
func (f *Pipeline) PostEndOfStream() {
	f.Post(pipeline.EndOfStream{})
}

// FireAboutToFinish invokes the registered about-to-finish callback, as the
// backend does shortly before the current stream drains.
func (f *Pipeline) FireAboutToFinish() {
	f.mu.Lock()
	fn := f.aboutToFinish
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// StartStream emits the message sequence of a new stream starting on the
// already assigned URI: collection, selection and stream start. Used to
// complete a gapless handoff.
func (f *Pipeline) StartStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startStreamLocked()
}

func (f *Pipeline) startStreamLocked() {
	f.group++
	f.emitLocked(pipeline.StreamCollection{Streams: f.collection})
	f.emitLocked(pipeline.StreamsSelected{StreamIDs: f.defaultSelectionLocked()})
	f.emitLocked(pipeline.StreamStart{GroupID: f.group})
}

func (f *Pipeline) defaultSelectionLocked() []string {
	var ids []string
	kinds := map[pipeline.StreamKind]bool{}
	for _, s := range f.collection {
		if !kinds[s.Kind] {
			kinds[s.Kind] = true
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func (f *Pipeline) emitLocked(msg pipeline.Message) {
	if f.closed {
		return
	}
	select {
	case f.msgs <- msg:
	default:
		panic("pipelinetest: message buffer full")
	}
}

func (f *Pipeline) notifyLocked(name string, value any) {
	if f.watched[name] {
		f.emitLocked(pipeline.PropertyNotify{Name: name, Value: value})
	}
}

// Mode implements pipeline.Pipeline.
func (f *Pipeline) Mode() pipeline.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// Caps implements pipeline.Pipeline.
func (f *Pipeline) Caps() pipeline.Caps {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps
}

// SetURI implements pipeline.Pipeline. An instant assignment while running
// starts the new stream immediately.
func (f *Pipeline) SetURI(uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uri = uri
	f.uris = append(f.uris, uri)
	if f.instantURI && f.state >= pipeline.StatePaused {
		f.startStreamLocked()
	}
}

// SetSubURI implements pipeline.Pipeline.
func (f *Pipeline) SetSubURI(uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subURI = uri
}

// SetInstantURI implements pipeline.Pipeline.
func (f *Pipeline) SetInstantURI(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instantURI = enabled
}

// SetState implements pipeline.Pipeline. The ladder is walked one step at a
// time with a state-changed message per step; crossing Ready to Paused with
// a URI assigned prerolls and emits the stream startup sequence.
func (f *Pipeline) SetState(s pipeline.State) pipeline.StateChangeReturn {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return pipeline.StateChangeFailure
	}

	f.target = s
	async := s > f.state && s >= pipeline.StatePaused

	for f.state != s {
		old := f.state
		if s > f.state {
			f.state++
		} else {
			f.state--
		}

		if old == pipeline.StateReady && f.state == pipeline.StatePaused && f.uri != "" {
			f.startStreamLocked()
		}

		pending := pipeline.StateNone
		if f.state != s {
			pending = s
		}
		f.emitLocked(pipeline.StateChanged{Old: old, New: f.state, Pending: pending})

		if old == pipeline.StateReady && f.state == pipeline.StatePaused {
			f.emitLocked(pipeline.AsyncDone{})
		}
	}

	if async {
		return pipeline.StateChangeAsync
	}
	return pipeline.StateChangeSuccess
}

// SendSeek implements pipeline.Pipeline. Accepted seeks move the reported
// position and complete with async-done.
func (f *Pipeline) SendSeek(ev pipeline.SeekEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSeek {
		return false
	}
	f.seeks = append(f.seeks, ev)

	if ev.Rate >= 0 {
		f.position = ev.Start
	} else {
		f.position = ev.Stop
	}
	if f.holdSeekDone {
		f.heldSeeks++
	} else {
		f.emitLocked(pipeline.AsyncDone{})
	}
	return true
}

// SelectStreams implements pipeline.Pipeline.
func (f *Pipeline) SelectStreams(ids []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.selected = append([]string(nil), ids...)
	f.emitLocked(pipeline.StreamsSelected{StreamIDs: f.selected})
	return true
}

// SetCurrentStreams implements pipeline.Pipeline.
func (f *Pipeline) SetCurrentStreams(video, audio, text int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = []string{}
	_ = video
	_ = audio
	_ = text
}

// CurrentDecoders implements pipeline.Pipeline.
func (f *Pipeline) CurrentDecoders() (video, audio string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.videoDecoder, f.audioDecoder
}

// SetVolume implements pipeline.Pipeline.
func (f *Pipeline) SetVolume(linear float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = linear
	f.notifyLocked("volume", linear)
}

// Volume implements pipeline.Pipeline.
func (f *Pipeline) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

// SetMute implements pipeline.Pipeline.
func (f *Pipeline) SetMute(mute bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mute = mute
	f.notifyLocked("mute", mute)
}

// Muted implements pipeline.Pipeline.
func (f *Pipeline) Muted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mute
}

// SetFlags implements pipeline.Pipeline.
func (f *Pipeline) SetFlags(flags pipeline.PlayFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flags == flags {
		return
	}
	f.flags = flags
	f.notifyLocked("flags", flags)
}

// Flags implements pipeline.Pipeline.
func (f *Pipeline) Flags() pipeline.PlayFlags {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

// SetAVOffset implements pipeline.Pipeline.
func (f *Pipeline) SetAVOffset(offset time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.avOffset = offset
	f.notifyLocked("av-offset", offset)
}

// SetTextOffset implements pipeline.Pipeline.
func (f *Pipeline) SetTextOffset(offset time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textOffset = offset
	f.notifyLocked("text-offset", offset)
}

// SetSubtitleFontDesc implements pipeline.Pipeline.
func (f *Pipeline) SetSubtitleFontDesc(desc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fontDesc = desc
}

// SetAudioSink implements pipeline.Pipeline.
func (f *Pipeline) SetAudioSink(sink any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioSink = sink
	f.notifyLocked("audio-sink", sink)
}

// SetVideoSink implements pipeline.Pipeline.
func (f *Pipeline) SetVideoSink(sink any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoSink = sink
	f.notifyLocked("video-sink", sink)
}

// SetAudioFilter implements pipeline.Pipeline.
func (f *Pipeline) SetAudioFilter(filter any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioFilter = filter
	f.notifyLocked("audio-filter", filter)
}

// SetVideoFilter implements pipeline.Pipeline.
func (f *Pipeline) SetVideoFilter(filter any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoFilter = filter
	f.notifyLocked("video-filter", filter)
}

// SetDownloadTemplate implements pipeline.Pipeline.
func (f *Pipeline) SetDownloadTemplate(template string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadTemplate = template
}

// SetAdaptiveProfile implements pipeline.Pipeline.
func (f *Pipeline) SetAdaptiveProfile(profile pipeline.AdaptiveProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = profile
}

// WatchProperty implements pipeline.Pipeline.
func (f *Pipeline) WatchProperty(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched[name] = true
}

// QueryPosition implements pipeline.Pipeline.
func (f *Pipeline) QueryPosition() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state < pipeline.StatePaused {
		return 0, false
	}
	return f.position, true
}

// QueryDuration implements pipeline.Pipeline.
func (f *Pipeline) QueryDuration() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, f.duration > 0
}

// RecalculateLatency implements pipeline.Pipeline.
func (f *Pipeline) RecalculateLatency() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencyRecalcs++
}

// OnAboutToFinish implements pipeline.Pipeline.
func (f *Pipeline) OnAboutToFinish(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aboutToFinish = fn
}

// Messages implements pipeline.Pipeline.
func (f *Pipeline) Messages() <-chan pipeline.Message {
	return f.msgs
}

// Close implements pipeline.Pipeline.
func (f *Pipeline) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.msgs)
	}
	return nil
}

// State returns the pipeline state the fake currently sits in.
func (f *Pipeline) State() pipeline.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// URI returns the last assigned URI.
func (f *Pipeline) URI() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uri
}

// URIs returns every URI assigned, in order.
func (f *Pipeline) URIs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uris...)
}

// SubURI returns the current sub-URI.
func (f *Pipeline) SubURI() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subURI
}

// Seeks returns every accepted seek event, in order.
func (f *Pipeline) Seeks() []pipeline.SeekEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.SeekEvent(nil), f.seeks...)
}

// SelectedStreams returns the last requested stream selection.
func (f *Pipeline) SelectedStreams() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.selected...)
}

// DownloadTemplate returns the configured download template.
func (f *Pipeline) DownloadTemplate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadTemplate
}

// AdaptiveProfile returns the last applied adaptive profile.
func (f *Pipeline) AdaptiveProfile() pipeline.AdaptiveProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile
}
