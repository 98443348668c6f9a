package chime

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/mdurel/chime/pipeline"
)

const (
	// Position announcements while playing.
	tickInterval = 100 * time.Millisecond

	// Tolerance for float comparisons of speed and volume.
	floatEpsilon = 1e-6
)

var errClockRecovery = errors.New("could not recover with a state change after clock was lost")

// controller is the player worker: a single goroutine that owns the pipeline
// and serializes every mutation of it. User calls arrive as commands through
// the command bus; the pipeline reports through its message channel. All
// fields below are that goroutine's private state.
type controller struct {
	p    *Player
	pipe pipeline.Pipeline
	ad   *adapter
	bus  *commandBus
	log  *slog.Logger

	currentState pipeline.State
	targetState  pipeline.State

	isBuffering bool

	// In-flight flush seek, cleared on async-done.
	seeking bool

	// Rate changes ride on flush seeks too; while one is in flight a newer
	// request is coalesced into pendingSpeed and replayed on async-done.
	speedChanging  bool
	requestedSpeed float64
	pendingSpeed   float64

	// Seek requested before the pipeline prerolled, applied after it does.
	// Zero means none; playback starts from zero anyway.
	pendingPosition time.Duration

	// A selection change was sent while running; flush once the pipeline
	// confirms it with a streams-selected message.
	pendingFlush bool

	// Metadata that arrived before the stream actually started.
	pendingTags []pipeline.Tags
	pendingTOC  *pipeline.TOCFound

	hadError   bool
	pendingEOS bool

	ticker *time.Ticker
}

func newController(p *Player, pipe pipeline.Pipeline, ad *adapter, bus *commandBus, log *slog.Logger) *controller {
	c := &controller{
		p:            p,
		pipe:         pipe,
		ad:           ad,
		bus:          bus,
		log:          log.With("component", "controller"),
		currentState: pipeline.StateNull,
		targetState:  pipeline.StateNull,
	}
	pipe.OnAboutToFinish(func() {
		bus.post(cmdAboutToFinish{})
	})
	return c
}

// run is the worker loop. Commands drain before pipeline messages so user
// requests posted in a burst apply in order.
func (c *controller) run() {
	defer c.p.workerDone()

	msgs := c.pipe.Messages()
	for {
		for {
			cmd, ok := c.bus.tryPop()
			if !ok {
				break
			}
			if c.handleCommand(cmd) {
				return
			}
		}

		select {
		case <-c.bus.wakeup():
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			c.handleMessage(msg)
		case <-c.tickC():
			c.refreshPosition()
		}
	}
}

func (c *controller) tickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C
}

func (c *controller) addTick() {
	if c.ticker == nil {
		c.ticker = time.NewTicker(tickInterval)
	}
}

func (c *controller) removeTick() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// handleCommand returns true when the worker should exit.
func (c *controller) handleCommand(cmd command) bool {
	switch cmd := cmd.(type) {
	case cmdSetProperty:
		c.handleSetProperty(cmd)
	case cmdSetPlayFlag:
		c.ad.setPlayFlag(cmd.flag, cmd.enabled)
	case cmdRequestState:
		c.handleRequestState(cmd.state, true)
	case cmdSeek:
		c.handleSeek(cmd.position, cmd.method)
	case cmdRateChange:
		c.handleRateChange(cmd.rate)
	case cmdStreamChange:
		c.handleStreamChange()
	case cmdCurrentItemChange:
		c.handleCurrentItemChange(cmd.item, cmd.mode)
	case cmdItemSubURIChange:
		c.handleItemSubURIChange(cmd.item)
	case cmdAboutToFinish:
		c.handleAboutToFinish()
	case cmdQuit:
		c.shutdown()
		return true
	}
	return false
}

func (c *controller) handleMessage(msg pipeline.Message) {
	switch msg := msg.(type) {
	case pipeline.StateChanged:
		c.handleStateChanged(msg)
	case pipeline.Buffering:
		c.handleBuffering(msg.Percent)
	case pipeline.StreamCollection:
		c.handleStreamCollection(msg.Streams)
	case pipeline.StreamsSelected:
		c.handleStreamsSelected()
	case pipeline.StreamStart:
		c.handleStreamStart()
	case pipeline.TagsFound:
		c.handleTags(msg)
	case pipeline.TOCFound:
		c.handleTOC(msg)
	case pipeline.PropertyNotify:
		c.handlePropertyNotify(msg.Name, msg.Value)
	case pipeline.DurationChanged:
		c.updateCurrentDuration()
	case pipeline.AsyncDone:
		c.handleAsyncDone()
	case pipeline.LatencyChanged:
		c.pipe.RecalculateLatency()
	case pipeline.ClockLost:
		c.handleClockLost()
	case pipeline.EndOfStream:
		c.handleEOS()
	case pipeline.Warning:
		c.log.Warn("pipeline warning", "err", msg.Err, "debug", msg.Debug)
		c.p.appBus.postWarning(msg.Err, msg.Debug)
	case pipeline.Error:
		c.handleError(msg.Err, msg.Debug)
	case pipeline.DownloadComplete:
		c.handleDownloadComplete(msg.Location)
	case pipeline.MissingPlugin:
		c.p.appBus.postMissingPlugin(msg.Description, msg.Detail)
	case pipeline.RequestState:
		c.handleRequestState(msg.State, false)
	case pipeline.BandwidthChanged:
		c.handleBandwidthChanged(msg.BitsPerSecond)
	}
}

func (c *controller) handleSetProperty(cmd cmdSetProperty) {
	switch cmd.name {
	case PropVolume:
		volume := cmd.value.(float64)
		// Volume cannot reach the pipeline before it is running. Announce
		// right away and apply the cached value on preroll.
		if c.currentState <= pipeline.StateReady {
			c.ad.setVolume(volume)
			c.announceVolume(c.ad.cachedVolume)
			return
		}
		c.ad.setVolume(volume)
	case PropMute:
		mute := cmd.value.(bool)
		if c.currentState <= pipeline.StateReady {
			c.ad.setMute(mute)
			c.announceMute(mute)
			return
		}
		c.ad.setMute(mute)
	case PropAudioOffset:
		c.pipe.SetAVOffset(cmd.value.(time.Duration))
	case PropSubtitleOffset:
		c.pipe.SetTextOffset(cmd.value.(time.Duration))
	case PropSubtitleFontDesc:
		c.pipe.SetSubtitleFontDesc(cmd.value.(string))
	case PropAudioSink:
		c.pipe.SetAudioSink(cmd.value)
	case PropVideoSink:
		c.pipe.SetVideoSink(cmd.value)
	case PropAudioFilter:
		c.pipe.SetAudioFilter(cmd.value)
	case PropVideoFilter:
		c.pipe.SetVideoFilter(cmd.value)
	case PropDownloadDir:
		c.ad.downloadDir = cmd.value.(string)
		c.ad.configureDownloads()
	case PropDownloadEnabled:
		c.ad.downloadEnabled = cmd.value.(bool)
		c.ad.configureDownloads()
	case PropAdaptiveStartBitrate:
		c.ad.adaptive.StartBitrate = cmd.value.(uint)
		c.ad.applyAdaptiveProfile()
	case PropAdaptiveMinBitrate:
		c.ad.adaptive.MinBitrate = cmd.value.(uint)
		c.ad.applyAdaptiveProfile()
	case PropAdaptiveMaxBitrate:
		c.ad.adaptive.MaxBitrate = cmd.value.(uint)
		c.ad.applyAdaptiveProfile()
	default:
		c.log.Warn("unknown property command", "name", cmd.name)
	}
}

func (c *controller) handleRequestState(state pipeline.State, fromUser bool) {
	if state > pipeline.StateReady && !c.p.hasItem() {
		return
	}
	if fromUser {
		c.targetState = state
	}

	// While buffering, play/pause only adjusts the target; the buffering
	// handler drives the actual pipeline state until done.
	if c.isBuffering && state > pipeline.StateReady {
		return
	}

	c.log.Debug("changing state", "state", state.String())
	c.setPipelineState(state)
}

func (c *controller) setPipelineState(state pipeline.State) pipeline.StateChangeReturn {
	ret := c.pipe.SetState(state)
	if ret == pipeline.StateChangeFailure {
		c.log.Error("pipeline state change failed", "state", state.String())
	}
	return ret
}

func (c *controller) handleSeek(position time.Duration, method SeekMethod) {
	// Ignore seeks when the pipeline is going to be stopped.
	if c.targetState < pipeline.StatePaused {
		return
	}
	// Starting up: remember the position and seek after preroll.
	if c.currentState < pipeline.StatePaused {
		c.pendingPosition = position
		return
	}

	flags := pipeline.SeekFlagFlush
	switch method {
	case SeekMethodFast:
		flags |= pipeline.SeekFlagKeyUnit | pipeline.SeekFlagSnapNearest
	case SeekMethodAccurate:
		flags |= pipeline.SeekFlagAccurate
	}

	rate := c.p.Speed()
	if !approxEqual(rate, 1.0) {
		flags |= pipeline.SeekFlagTrickmode
	}

	ev := seekEventForRate(rate, flags, position)

	c.log.Debug("seeking", "position", position, "rate", rate)
	c.removeTick()

	c.seeking = c.pipe.SendSeek(ev)
	if !c.seeking {
		c.log.Error("could not seek", "position", position)
	}
}

// seekEventForRate builds the seek range. Forward playback runs from the
// position to the end; reverse playback runs from zero back to the position.
func seekEventForRate(rate float64, flags pipeline.SeekFlags, position time.Duration) pipeline.SeekEvent {
	if rate >= 0 {
		return pipeline.SeekEvent{
			Rate:      rate,
			Flags:     flags,
			StartType: pipeline.SeekTypeSet,
			Start:     position,
			StopType:  pipeline.SeekTypeNone,
		}
	}
	return pipeline.SeekEvent{
		Rate:      rate,
		Flags:     flags,
		StartType: pipeline.SeekTypeSet,
		Start:     0,
		StopType:  pipeline.SeekTypeSet,
		Stop:      position,
	}
}

func (c *controller) handleRateChange(rate float64) {
	if rate == 0 {
		return
	}
	// A rate change is already in flight; remember only the newest request.
	if c.speedChanging && c.requestedSpeed != 0 {
		c.pendingSpeed = rate
		return
	}
	// Not running yet. Store and announce; applied on preroll.
	if c.currentState < pipeline.StatePaused || c.targetState < pipeline.StatePaused {
		c.announceSpeed(rate)
		return
	}

	// Rates close to normal collapse to exactly 1.0 so trick mode is not
	// engaged by accident.
	if approxEqual(rate, 1.0) {
		rate = 1.0
	}

	flags := pipeline.SeekFlagFlush
	if rate != 1.0 {
		flags |= pipeline.SeekFlagTrickmode
	}

	position, ok := c.pipe.QueryPosition()
	if !ok {
		position = 0
	}

	ev := seekEventForRate(rate, flags, position)

	c.log.Debug("changing rate", "rate", rate, "position", position)
	c.removeTick()

	if c.pipe.SendSeek(ev) {
		c.requestedSpeed = rate
		c.speedChanging = true
	} else {
		c.log.Error("could not change rate", "rate", rate)
	}
}

func (c *controller) handleStreamChange() {
	c.log.Debug("requested stream change")

	if c.pipe.Mode() == pipeline.ModeModern {
		var ids []string
		for _, sl := range c.p.streamLists() {
			if id := sl.currentStreamID(); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return
		}
		if c.pipe.SelectStreams(ids) && c.currentState >= pipeline.StatePaused {
			// Selection does not take effect mid-stream without a flush;
			// do it once the pipeline confirms the new selection.
			c.pendingFlush = true
		}
		return
	}

	c.pipe.SetCurrentStreams(
		c.p.videoStreams.selectionForPipeline(),
		c.p.audioStreams.selectionForPipeline(),
		c.p.subtitleStreams.selectionForPipeline(),
	)
}

func (c *controller) handleCurrentItemChange(item *MediaItem, mode ItemChangeMode) {
	// Any stored position belonged to the previous item.
	c.pendingPosition = 0

	mode = c.ad.chooseItemChangeMode(item, mode)

	if c.currentState < pipeline.StateReady || mode == ItemChangeNormal {
		c.setPipelineState(pipeline.StateReady)
	}

	c.setPendingItem(item, mode)

	if item == nil {
		c.targetState = pipeline.StateReady
	} else if c.p.Autoplay() {
		c.targetState = pipeline.StatePlaying
	}

	if (mode == ItemChangeNormal && c.targetState > pipeline.StateReady) ||
		c.currentState != c.targetState {
		c.setPipelineState(c.targetState)
	}
}

func (c *controller) setPendingItem(item *MediaItem, mode ItemChangeMode) {
	c.p.mu.Lock()
	c.p.pendingItem = item
	c.p.mu.Unlock()

	c.ad.applyPendingItem(item, mode)
}

func (c *controller) handleItemSubURIChange(item *MediaItem) {
	c.p.mu.Lock()
	played := c.p.playedItem
	c.p.mu.Unlock()

	if item != played {
		return
	}

	// Subtitles only attach through a full restart.
	c.setPipelineState(pipeline.StateReady)
	c.setPendingItem(item, ItemChangeNormal)
	c.setPipelineState(c.targetState)
}

func (c *controller) handleAboutToFinish() {
	c.p.queue.handleAboutToFinish(func(item *MediaItem, mode ItemChangeMode) {
		c.setPendingItem(item, c.ad.chooseItemChangeMode(item, mode))
	})
}

func (c *controller) handleStateChanged(msg pipeline.StateChanged) {
	old := msg.Old
	c.currentState = msg.New

	c.log.Debug("pipeline state changed",
		"old", old.String(), "new", msg.New.String(), "pending", int(msg.Pending))

	// A seek or rate change is progressing as expected; the player state
	// must not flap while it completes.
	if (c.seeking || c.speedChanging) && c.currentState > pipeline.StateReady {
		return
	}

	eos := c.pendingEOS && c.currentState == pipeline.StatePaused
	if eos {
		c.pendingEOS = false
	}
	c.p.eos.Store(eos)

	if c.currentState <= pipeline.StateReady {
		c.playerReset(false)
	}

	if c.currentState == pipeline.StatePlaying {
		c.addTick()
	} else {
		c.removeTick()
	}

	// Announce position either right before or after the state change so it
	// does not look like a seek happened around a pause.
	if c.currentState < old {
		c.refreshPosition()
	}
	c.refreshPlayerState()
	if c.currentState > old {
		c.refreshPosition()
	}

	preroll := old == pipeline.StateReady && c.currentState == pipeline.StatePaused &&
		(msg.Pending == pipeline.StateNone || msg.Pending == pipeline.StatePlaying)
	if preroll {
		c.handlePreroll()
	}
}

// handlePreroll applies everything that had to wait for a running pipeline.
func (c *controller) handlePreroll() {
	c.log.Debug("applying cached props after preroll")

	c.ad.applyCachedAV()
	c.announceVolume(c.ad.cachedVolume)
	c.announceMute(c.ad.cachedMute)

	// Playback always starts with normal speed and from zero; only deviations
	// need a seek.
	if speed := c.p.Speed(); !approxEqual(speed, 1.0) {
		c.handleRateChange(speed)
	}
	if c.pendingPosition != 0 {
		position := c.pendingPosition
		c.pendingPosition = 0
		c.handleSeek(position, SeekMethodNormal)
	}

	c.updateCurrentDuration()

	if c.pipe.Mode() == pipeline.ModeLegacy {
		c.updateCurrentDecoders()
	}
}

func (c *controller) handleBuffering(percent int) {
	isBuffering := percent < 100
	if c.isBuffering == isBuffering {
		return
	}
	c.isBuffering = isBuffering
	c.log.Debug("buffering", "percent", percent)

	// Entering buffering must be announced by hand; leaving it while the
	// target is playing is announced by the Playing state message instead.
	if isBuffering || c.targetState < pipeline.StatePlaying {
		c.refreshPlayerState()
	}

	if c.targetState > pipeline.StatePaused {
		next := pipeline.StatePlaying
		if isBuffering {
			next = pipeline.StatePaused
		}
		c.setPipelineState(next)
	}
}

func (c *controller) handleStreamCollection(infos []pipeline.StreamInfo) {
	c.log.Info("stream collection", "count", len(infos))

	byKind := map[pipeline.StreamKind][]*Stream{}
	for _, info := range infos {
		byKind[info.Kind] = append(byKind[info.Kind], newStream(info))
	}

	for _, sl := range c.p.streamLists() {
		sl.refreshing.Store(true)
		sl.replaceStreams(byKind[sl.Kind()])
		sl.refreshing.Store(false)
	}
}

func (c *controller) handleStreamsSelected() {
	c.log.Info("streams selected")

	c.updateCurrentDecoders()

	if c.pendingFlush {
		c.pendingFlush = false
		if c.currentState >= pipeline.StatePaused {
			c.performFlushSeek()
		}
	}
}

// performFlushSeek replays the current position so a new stream selection
// takes effect immediately.
func (c *controller) performFlushSeek() {
	position, ok := c.pipe.QueryPosition()
	if !ok {
		position = 0
	}

	rate := c.p.Speed()
	flags := pipeline.SeekFlagFlush
	if !approxEqual(rate, 1.0) {
		flags |= pipeline.SeekFlagTrickmode
	}

	c.log.Debug("flush seeking", "position", position, "rate", rate)
	c.removeTick()

	if !c.pipe.SendSeek(seekEventForRate(rate, flags, position)) {
		c.log.Warn("could not perform a flush seek")
	}
}

func (c *controller) handleStreamStart() {
	c.p.mu.Lock()
	pending := c.p.pendingItem
	if pending == nil {
		c.p.mu.Unlock()
		c.log.Error("stream started without a pending item")
		return
	}
	changed := c.p.playedItem != pending
	c.p.playedItem = pending
	c.p.pendingItem = nil
	c.p.mu.Unlock()

	c.log.Info("stream start", "item", pending.String())

	if changed {
		c.p.queue.handlePlayedItemChanged(pending)
		c.p.dispatcher.post(reactorEvent{kind: reactorPlayedItemChanged, item: pending})
	}

	c.p.appBus.postRefreshStreams()

	// Announce position after the item change; gapless handoffs produce no
	// state change that would do it.
	c.refreshPosition()

	if c.pipe.Mode() == pipeline.ModeLegacy {
		c.updateCurrentDecoders()
	}

	for _, tags := range c.pendingTags {
		c.applyTags(pending, tags)
	}
	c.pendingTags = nil

	if c.pendingTOC != nil {
		pending.timeline.setTOC(c.pendingTOC.TOC, false)
		c.pendingTOC = nil
	}
}

func (c *controller) handleTags(msg pipeline.TagsFound) {
	// Preparers report tags before the stream starts; hold them until the
	// item they belong to is actually playing.
	if msg.FromPreparer {
		c.pendingTags = append(c.pendingTags, msg.Tags)
		return
	}

	c.p.mu.Lock()
	played := c.p.playedItem
	c.p.mu.Unlock()

	if played != nil {
		c.applyTags(played, msg.Tags)
	}
}

func (c *controller) applyTags(item *MediaItem, tags pipeline.Tags) {
	if item.setTitle(tags.Title) {
		item.notifyUpdated(PropItemTitle)
	}
	if item.setContainerFormat(tags.ContainerFormat) {
		item.notifyUpdated(PropItemContainerFormat)
	}
	if tags.Duration > 0 && item.setDuration(tags.Duration) {
		item.notifyUpdated(PropItemDuration)
	}
}

func (c *controller) handleTOC(msg pipeline.TOCFound) {
	if msg.FromPreparer {
		toc := msg
		c.pendingTOC = &toc
		return
	}

	c.p.mu.Lock()
	played := c.p.playedItem
	c.p.mu.Unlock()

	if played != nil {
		played.timeline.setTOC(msg.TOC, msg.Updated)
	}
}

func (c *controller) handlePropertyNotify(name string, value any) {
	c.log.Debug("pipeline property changed", "name", name)

	switch name {
	case "volume":
		if linear, ok := value.(float64); ok {
			c.announceVolume(linearToCubic(linear))
		}
	case "mute":
		if mute, ok := value.(bool); ok {
			c.announceMute(mute)
		}
	case "flags":
		if flags, ok := value.(pipeline.PlayFlags); ok {
			c.announceFlags(flags)
		}
	case "av-offset":
		if offset, ok := value.(time.Duration); ok {
			setAnnounced(c.p, &c.p.avOffset, offset, PropAudioOffset)
		}
	case "text-offset":
		if offset, ok := value.(time.Duration); ok {
			setAnnounced(c.p, &c.p.textOffset, offset, PropSubtitleOffset)
		}
	case "audio-sink":
		c.p.appBus.postPropNotify(c.p, PropAudioSink)
	case "video-sink":
		c.p.appBus.postPropNotify(c.p, PropVideoSink)
	case "audio-filter":
		c.p.appBus.postPropNotify(c.p, PropAudioFilter)
	case "video-filter":
		c.p.appBus.postPropNotify(c.p, PropVideoFilter)
	}
}

func (c *controller) announceFlags(flags pipeline.PlayFlags) {
	c.p.mu.Lock()
	old := c.p.flags
	c.p.flags = flags
	c.p.mu.Unlock()

	diff := old ^ flags
	if diff&pipeline.FlagVideo != 0 {
		c.p.appBus.postPropNotify(c.p, PropVideoEnabled)
	}
	if diff&pipeline.FlagAudio != 0 {
		c.p.appBus.postPropNotify(c.p, PropAudioEnabled)
	}
	if diff&pipeline.FlagText != 0 {
		c.p.appBus.postPropNotify(c.p, PropSubtitlesEnabled)
	}
}

func (c *controller) updateCurrentDuration() {
	duration, ok := c.pipe.QueryDuration()
	if !ok {
		return
	}

	c.p.mu.Lock()
	played := c.p.playedItem
	c.p.mu.Unlock()

	if played != nil && played.setDuration(duration) {
		played.notifyUpdated(PropItemDuration)
	}
}

func (c *controller) updateCurrentDecoders() {
	video, audio := c.pipe.CurrentDecoders()
	setAnnounced(c.p, &c.p.videoDecoder, video, PropCurrentVideoDecoder)
	setAnnounced(c.p, &c.p.audioDecoder, audio, PropCurrentAudioDecoder)
}

func (c *controller) handleAsyncDone() {
	if c.seeking {
		c.seeking = false
		c.log.Debug("seek done")

		// Update position first, then announce completion.
		c.refreshPosition()
		c.p.appBus.postSeekDone()
	}
	if c.speedChanging {
		if c.pendingSpeed != 0 {
			pending := c.pendingSpeed
			c.pendingSpeed = 0
			c.requestedSpeed = 0
			c.log.Debug("changing rate to pending value", "rate", pending)
			c.handleRateChange(pending)
		} else {
			c.announceSpeed(c.requestedSpeed)
			c.speedChanging = false
			c.requestedSpeed = 0
		}
	}

	// A flush seek in Playing does not necessarily produce a state message
	// on its own, so position ticks resume here.
	if c.currentState == pipeline.StatePlaying &&
		!c.seeking && !c.speedChanging && !c.isBuffering {
		c.addTick()
	}
}

func (c *controller) handleClockLost() {
	if c.targetState != pipeline.StatePlaying {
		return
	}
	c.log.Debug("clock lost")

	ret := c.setPipelineState(pipeline.StatePaused)
	if ret != pipeline.StateChangeFailure {
		ret = c.setPipelineState(pipeline.StatePlaying)
	}
	if ret == pipeline.StateChangeFailure {
		c.handleError(errClockRecovery, "")
	}
}

func (c *controller) handleEOS() {
	c.log.Info("end of stream")

	// Error handling already changed state to Ready.
	if c.hadError {
		return
	}

	handled := c.p.queue.handleEOS(func() {
		c.handleSeek(0, SeekMethodNormal)
	})
	if !handled {
		c.pendingEOS = true
		c.setPipelineState(pipeline.StatePaused)
	}
}

func (c *controller) handleError(err error, debug string) {
	c.log.Error("pipeline error", "err", err, "debug", debug)

	c.hadError = true
	c.removeTick()

	// Go to Ready so all elements stop processing buffers.
	c.setPipelineState(pipeline.StateReady)

	c.p.appBus.postError(err, debug)
}

func (c *controller) handleDownloadComplete(location string) {
	c.p.mu.Lock()
	// A short stream may finish downloading before playback starts.
	item := c.p.pendingItem
	if item == nil {
		item = c.p.playedItem
	}
	c.p.mu.Unlock()

	if item == nil {
		c.log.Warn("download completed without a media item set")
		return
	}

	c.log.Info("download complete", "item", item.String(), "location", location)
	item.SetCacheLocation(location)
	c.p.appBus.postDownloadComplete(item, location)
}

func (c *controller) handleBandwidthChanged(bps uint) {
	if setAnnounced(c.p, &c.p.bandwidth, bps, PropAdaptiveBandwidth) {
		c.log.Debug("adaptive bandwidth", "bps", bps)
	}
}

// playerReset drops per-stream state when the pipeline falls back to Ready.
func (c *controller) playerReset(closing bool) {
	c.log.Debug("reset")

	c.hadError = false
	c.pendingFlush = false
	c.pendingTags = nil
	c.pendingTOC = nil
	c.ad.reset()

	c.p.mu.Lock()
	c.p.playedItem = nil
	c.p.mu.Unlock()

	for _, sl := range c.p.streamLists() {
		sl.clear()
	}

	// The next item might not carry the same tracks.
	if !closing {
		setAnnounced(c.p, &c.p.videoDecoder, "", PropCurrentVideoDecoder)
		setAnnounced(c.p, &c.p.audioDecoder, "", PropCurrentAudioDecoder)
	}
}

func (c *controller) refreshPosition() {
	position, ok := c.pipe.QueryPosition()
	if !ok || position < 0 {
		position = 0
	}

	if setAnnounced(c.p, &c.p.position, position, PropPosition) {
		c.p.dispatcher.post(reactorEvent{kind: reactorPositionChanged, position: position})
	}
}

// refreshPlayerState derives the announced player state from the pipeline
// state and the buffering latch.
func (c *controller) refreshPlayerState() {
	var state PlayerState
	switch {
	case c.isBuffering:
		state = PlayerBuffering
	case c.currentState == pipeline.StatePlaying:
		state = PlayerPlaying
	case c.currentState == pipeline.StatePaused:
		state = PlayerPaused
	default:
		state = PlayerStopped
	}

	if setAnnounced(c.p, &c.p.state, state, PropState) {
		c.log.Info("state changed", "state", state.String())
		c.p.dispatcher.post(reactorEvent{kind: reactorStateChanged, state: state})
	}
}

func (c *controller) announceVolume(volume float64) {
	if setAnnouncedFloat(c.p, &c.p.volume, volume, PropVolume) {
		c.log.Info("volume changed", "volume", volume)
		c.p.dispatcher.post(reactorEvent{kind: reactorVolumeChanged, volume: volume})
	}
}

func (c *controller) announceMute(mute bool) {
	if setAnnounced(c.p, &c.p.mute, mute, PropMute) {
		c.log.Info("mute changed", "mute", mute)
		c.p.dispatcher.post(reactorEvent{kind: reactorMuteChanged, mute: mute})
	}
}

func (c *controller) announceSpeed(speed float64) {
	if setAnnouncedFloat(c.p, &c.p.speed, speed, PropSpeed) {
		c.log.Info("speed changed", "speed", speed)
		c.p.dispatcher.post(reactorEvent{kind: reactorSpeedChanged, speed: speed})
	}
}

// shutdown tears the pipeline down and stops the worker.
func (c *controller) shutdown() {
	c.removeTick()
	c.playerReset(true)
	c.setPipelineState(pipeline.StateNull)
	if err := c.pipe.Close(); err != nil {
		c.log.Error("pipeline close failed", "err", err)
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < floatEpsilon
}
