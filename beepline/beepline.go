// Package beepline is a minimal audio pipeline built on gopxl/beep. It plays
// local file URIs (flac, mp3, ogg vorbis, wav), supports gapless URI handoff
// and resampler-based playback rates, and reports progress through the
// standard pipeline message channel. It exists as a working reference for the
// pipeline contract rather than as a full-featured media backend: there is no
// video, no subtitles and no network streaming.
package beepline

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/mdurel/chime/pipeline"
)

const (
	// defaultLead is how long before the end of a track the about-to-finish
	// callback fires, leaving time to decode the next file.
	defaultLead = 10 * time.Second

	monitorInterval = 200 * time.Millisecond

	messageBuffer = 64
)

// Options configure a beepline pipeline. The zero value works.
type Options struct {
	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger

	// AboutToFinishLead overrides how early the about-to-finish callback
	// fires before the current track ends.
	AboutToFinishLead time.Duration
}

// Pipeline decodes audio files and plays them through the process speaker.
// It implements pipeline.Pipeline in legacy selection mode.
type Pipeline struct {
	log  *slog.Logger
	out  output
	lead time.Duration

	msgs     chan pipeline.Message
	stop     chan struct{}
	stopped  chan struct{}
	switched chan struct{}
	drained  chan struct{}

	mu      sync.Mutex
	closed  bool
	state   pipeline.State
	uri     string
	subURI  string
	instant bool

	cur  *track
	next *track

	chain     *chainStreamer
	rateStage *beep.Resampler
	ctrl      *beep.Ctrl
	vol       *effects.Volume
	outRate   beep.SampleRate

	rate    float64
	linear  float64
	muted   bool
	flags   pipeline.PlayFlags
	watched map[string]bool

	avOffset   time.Duration
	textOffset time.Duration
	fontDesc   string
	audioSink  any
	audioFilt  any

	groupID  uint
	atfFired bool
	atf      func()

	adaptive pipeline.AdaptiveProfile
	dlTmpl   string
}

var _ pipeline.Pipeline = (*Pipeline)(nil)

// New creates a pipeline playing through the speaker.
func New(opts Options) *Pipeline {
	return newWithOutput(opts, speakerOutput{})
}

func newWithOutput(opts Options, out output) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	lead := opts.AboutToFinishLead
	if lead <= 0 {
		lead = defaultLead
	}

	p := &Pipeline{
		log:      log.With("pipeline", "beepline"),
		out:      out,
		lead:     lead,
		msgs:     make(chan pipeline.Message, messageBuffer),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
		switched: make(chan struct{}, 4),
		drained:  make(chan struct{}, 1),
		chain:    &chainStreamer{},
		rate:     1.0,
		linear:   1.0,
		flags:    pipeline.FlagAudio | pipeline.FlagSoftVolume,
		watched:  map[string]bool{},
	}
	p.chain.onSwitch = func() {
		select {
		case p.switched <- struct{}{}:
		default:
		}
	}
	go p.monitor()
	return p
}

func (p *Pipeline) Mode() pipeline.Mode { return pipeline.ModeLegacy }
func (p *Pipeline) Caps() pipeline.Caps { return pipeline.CapGaplessURIChange }

// SetURI assigns the media to play. While the pipeline is paused or playing
// this queues the file as the gapless successor of the current one instead of
// interrupting it.
func (p *Pipeline) SetURI(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uri = uri

	if p.state < pipeline.StatePaused || p.cur == nil {
		return
	}

	t, err := openTrack(uri)
	if err != nil {
		p.emitLocked(pipeline.Error{Err: err})
		return
	}

	if p.next != nil {
		p.next.close()
	}
	p.next = t
	p.chain.setNext(p.adjusted(t))
	p.log.Debug("queued gapless successor", "uri", uri)
}

func (p *Pipeline) SetSubURI(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subURI = uri
	if uri != "" {
		p.log.Warn("subtitles not supported, ignoring suburi", "uri", uri)
	}
}

func (p *Pipeline) SetInstantURI(enabled bool) {
	p.mu.Lock()
	p.instant = enabled
	p.mu.Unlock()
}

// SetState walks the state ladder one step at a time, posting a StateChanged
// message per step like a real streaming pipeline would.
func (p *Pipeline) SetState(target pipeline.State) pipeline.StateChangeReturn {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return pipeline.StateChangeFailure
	}
	if target == p.state {
		return pipeline.StateChangeSuccess
	}

	upward := target > p.state
	for p.state != target {
		var next pipeline.State
		if upward {
			next = p.state + 1
		} else {
			next = p.state - 1
		}

		if err := p.stepLocked(next); err != nil {
			p.emitLocked(pipeline.Error{Err: err})
			return pipeline.StateChangeFailure
		}

		old := p.state
		p.state = next

		pending := pipeline.StateNone
		if next != target {
			pending = target
		}
		p.emitLocked(pipeline.StateChanged{Old: old, New: next, Pending: pending})

		if upward && old == pipeline.StateReady && next == pipeline.StatePaused {
			p.emitLocked(pipeline.AsyncDone{})
		}
	}

	if upward && target >= pipeline.StatePaused {
		return pipeline.StateChangeAsync
	}
	return pipeline.StateChangeSuccess
}

// stepLocked performs the side effects of one ladder step.
func (p *Pipeline) stepLocked(next pipeline.State) error {
	switch {
	case p.state == pipeline.StateReady && next == pipeline.StatePaused:
		return p.prerollLocked()

	case p.state == pipeline.StatePaused && next == pipeline.StatePlaying:
		p.out.Lock()
		p.ctrl.Paused = false
		p.out.Unlock()

	case p.state == pipeline.StatePlaying && next == pipeline.StatePaused:
		p.out.Lock()
		p.ctrl.Paused = true
		p.out.Unlock()

	case p.state == pipeline.StatePaused && next == pipeline.StateReady:
		p.teardownLocked()
	}
	return nil
}

// prerollLocked opens and decodes the current URI and wires the play graph:
// track -> chain -> rate resampler -> ctrl -> volume -> speaker.
func (p *Pipeline) prerollLocked() error {
	if p.uri == "" {
		return errors.New("no uri set")
	}

	t, err := openTrack(p.uri)
	if err != nil {
		return err
	}

	if p.outRate == 0 {
		p.outRate = t.format.SampleRate
	}
	if err := p.out.Init(p.outRate, p.outRate.N(time.Second/10)); err != nil {
		t.close()
		return err
	}

	p.cur = t
	p.atfFired = false
	p.chain.set(p.adjusted(t))
	p.rateStage = beep.ResampleRatio(4, p.rate, p.chain)
	p.ctrl = &beep.Ctrl{Streamer: p.rateStage, Paused: true}
	p.vol = &effects.Volume{Streamer: p.ctrl, Base: 2}
	p.applyVolumeLocked()

	p.out.Play(beep.Seq(p.vol, beep.Callback(func() {
		// Audio goroutine: signal only, the monitor does the bookkeeping.
		select {
		case p.drained <- struct{}{}:
		default:
		}
	})))

	p.groupID++
	p.emitLocked(pipeline.StreamStart{GroupID: p.groupID})

	p.log.Info("prerolled", "uri", t.uri, "codec", t.codec,
		"rate", int(t.format.SampleRate), "duration", t.duration())
	return nil
}

func (p *Pipeline) teardownLocked() {
	p.out.Clear()
	p.chain.set(nil)

	if p.cur != nil {
		p.cur.close()
		p.cur = nil
	}
	if p.next != nil {
		p.next.close()
		p.next = nil
	}
	p.ctrl = nil
	p.vol = nil
	p.rateStage = nil
	p.atfFired = false
}

// adjusted resamples a track to the speaker rate when they differ.
func (p *Pipeline) adjusted(t *track) beep.Streamer {
	if p.outRate != 0 && t.format.SampleRate != p.outRate {
		return beep.Resample(4, t.format.SampleRate, p.outRate, t.streamer)
	}
	return t.streamer
}

// SendSeek seeks within the current track. Positive rates play faster or
// slower through the resampler; reverse playback is not possible with this
// decoder graph.
func (p *Pipeline) SendSeek(ev pipeline.SeekEvent) bool {
	if ev.Rate < 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur == nil || p.state < pipeline.StatePaused {
		return false
	}

	sample := p.cur.format.SampleRate.N(ev.Start)
	if sample > p.cur.streamer.Len() {
		sample = p.cur.streamer.Len()
	}

	p.out.Lock()
	err := p.cur.streamer.Seek(sample)
	if ev.Rate > 0 && ev.Rate != p.rate {
		p.rate = ev.Rate
		p.rateStage.SetRatio(ev.Rate)
	}
	p.out.Unlock()

	if err != nil {
		p.emitLocked(pipeline.Warning{Err: err, Debug: "seek"})
		return false
	}

	p.emitLocked(pipeline.AsyncDone{})
	return true
}

func (p *Pipeline) SelectStreams(ids []string) bool { return false }

// SetCurrentStreams is accepted but meaningless: a decoded file exposes
// exactly one audio stream.
func (p *Pipeline) SetCurrentStreams(video, audio, text int) {}

func (p *Pipeline) CurrentDecoders() (video, audio string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return "", ""
	}
	return "", p.cur.codec
}

func (p *Pipeline) SetVolume(linear float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if linear < 0 {
		linear = 0
	}
	p.linear = linear
	p.applyVolumeLocked()
	p.notifyLocked("volume", linear)
}

func (p *Pipeline) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.linear
}

func (p *Pipeline) SetMute(mute bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.muted = mute
	p.applyVolumeLocked()
	p.notifyLocked("mute", mute)
}

func (p *Pipeline) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// applyVolumeLocked maps the linear volume onto beep's base-2 exponential
// volume effect. Zero and mute turn the effect silent.
func (p *Pipeline) applyVolumeLocked() {
	if p.vol == nil {
		return
	}
	p.out.Lock()
	p.vol.Silent = p.muted || p.linear == 0
	if p.linear > 0 {
		p.vol.Volume = math.Log2(p.linear)
	}
	p.out.Unlock()
}

func (p *Pipeline) SetFlags(flags pipeline.PlayFlags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags = flags
	p.notifyLocked("flags", flags)
}

func (p *Pipeline) Flags() pipeline.PlayFlags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

func (p *Pipeline) SetAVOffset(offset time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.avOffset = offset
	p.notifyLocked("av-offset", offset)
}

func (p *Pipeline) SetTextOffset(offset time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textOffset = offset
	p.notifyLocked("text-offset", offset)
}

func (p *Pipeline) SetSubtitleFontDesc(desc string) {
	p.mu.Lock()
	p.fontDesc = desc
	p.mu.Unlock()
}

func (p *Pipeline) SetAudioSink(sink any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioSink = sink
	p.notifyLocked("audio-sink", sink)
}

func (p *Pipeline) SetVideoSink(sink any) {}

func (p *Pipeline) SetAudioFilter(filter any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioFilt = filter
	p.notifyLocked("audio-filter", filter)
}

func (p *Pipeline) SetVideoFilter(filter any) {}

// SetDownloadTemplate is a no-op: beepline reads local files, there is
// nothing to cache.
func (p *Pipeline) SetDownloadTemplate(template string) {
	p.mu.Lock()
	p.dlTmpl = template
	p.mu.Unlock()
}

func (p *Pipeline) SetAdaptiveProfile(profile pipeline.AdaptiveProfile) {
	p.mu.Lock()
	p.adaptive = profile
	p.mu.Unlock()
}

func (p *Pipeline) WatchProperty(name string) {
	p.mu.Lock()
	p.watched[name] = true
	p.mu.Unlock()
}

func (p *Pipeline) QueryPosition() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur == nil || p.state < pipeline.StatePaused {
		return 0, false
	}
	p.out.Lock()
	pos := p.cur.position()
	p.out.Unlock()
	return pos, true
}

func (p *Pipeline) QueryDuration() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur == nil {
		return 0, false
	}
	return p.cur.duration(), true
}

func (p *Pipeline) RecalculateLatency() {}

func (p *Pipeline) OnAboutToFinish(fn func()) {
	p.mu.Lock()
	p.atf = fn
	p.mu.Unlock()
}

func (p *Pipeline) Messages() <-chan pipeline.Message { return p.msgs }

func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.teardownLocked()
	p.mu.Unlock()

	close(p.stop)
	<-p.stopped
	close(p.msgs)
	return nil
}

// monitor runs the housekeeping the audio goroutine cannot do itself: firing
// about-to-finish ahead of the track end, completing gapless handoffs and
// turning drain signals into end-of-stream messages.
func (p *Pipeline) monitor() {
	defer close(p.stopped)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return

		case <-p.switched:
			p.completeHandoff()

		case <-p.drained:
			p.mu.Lock()
			if !p.closed && p.cur != nil {
				p.emitLocked(pipeline.EndOfStream{})
			}
			p.mu.Unlock()

		case <-ticker.C:
			p.maybeAboutToFinish()
		}
	}
}

// maybeAboutToFinish fires the registered callback once per track when the
// remaining play time drops under the lead.
func (p *Pipeline) maybeAboutToFinish() {
	p.mu.Lock()
	fire := !p.closed && p.state == pipeline.StatePlaying &&
		p.cur != nil && p.atf != nil && !p.atfFired
	if fire {
		p.out.Lock()
		remaining := p.cur.duration() - p.cur.position()
		p.out.Unlock()
		fire = remaining <= p.lead
		if fire {
			p.atfFired = true
		}
	}
	fn := p.atf
	p.mu.Unlock()

	if fire {
		p.log.Debug("about to finish")
		fn()
	}
}

// completeHandoff promotes the preloaded track after the chain switched over.
func (p *Pipeline) completeHandoff() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next == nil {
		return
	}
	if p.cur != nil {
		p.cur.close()
	}
	p.cur = p.next
	p.next = nil
	p.atfFired = false
	p.groupID++
	p.emitLocked(pipeline.StreamStart{GroupID: p.groupID})
	p.log.Info("gapless handoff", "uri", p.cur.uri)
}

func (p *Pipeline) emitLocked(msg pipeline.Message) {
	if p.closed {
		return
	}
	select {
	case p.msgs <- msg:
	default:
		p.log.Warn("message channel full, dropping", "msg", msg)
	}
}

func (p *Pipeline) notifyLocked(name string, value any) {
	if p.watched[name] {
		p.emitLocked(pipeline.PropertyNotify{Name: name, Value: value})
	}
}
