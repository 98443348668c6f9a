//go:build linux

// Package mprisbridge exposes a player on the session bus as an MPRIS
// media player, so desktop media controls and keyboard media keys work.
// It attaches to the player as a reactor and keeps a snapshot of the
// playback state that the D-Bus property getters read, since those run on
// the D-Bus goroutine rather than the player's dispatcher.
package mprisbridge

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/mdurel/chime"
)

// Bridge is a chime.Reactor serving the MPRIS interfaces.
type Bridge struct {
	chime.ReactorBase

	name     string
	identity string

	player *chime.Player
	server *server.Server

	mu       sync.Mutex
	state    chime.PlayerState
	position time.Duration
	speed    float64
	volume   float64
	item     *chime.MediaItem
}

// New creates a bridge registering as org.mpris.MediaPlayer2.<name>.
// identity is the human readable player name shown by desktop controls.
func New(name, identity string) *Bridge {
	return &Bridge{name: name, identity: identity, speed: 1.0, volume: 1.0}
}

// Prepare starts the D-Bus server. Called by the player's dispatcher.
func (b *Bridge) Prepare(p *chime.Player) error {
	b.player = p
	b.mu.Lock()
	b.volume = p.Volume()
	b.speed = p.Speed()
	b.mu.Unlock()

	b.server = server.NewServer(b.name, &rootAdapter{identity: b.identity}, &playerAdapter{bridge: b})
	go func() {
		_ = b.server.Listen()
	}()
	return nil
}

// Unprepare releases the bus name.
func (b *Bridge) Unprepare() error {
	if b.server == nil {
		return nil
	}
	return b.server.Stop()
}

func (b *Bridge) StateChanged(state chime.PlayerState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *Bridge) PositionChanged(position time.Duration) {
	b.mu.Lock()
	b.position = position
	b.mu.Unlock()
}

func (b *Bridge) SpeedChanged(speed float64) {
	b.mu.Lock()
	b.speed = speed
	b.mu.Unlock()
}

func (b *Bridge) VolumeChanged(volume float64) {
	b.mu.Lock()
	b.volume = volume
	b.mu.Unlock()
}

func (b *Bridge) PlayedItemChanged(item *chime.MediaItem) {
	b.mu.Lock()
	b.item = item
	b.mu.Unlock()
}

func (b *Bridge) ItemUpdated(item *chime.MediaItem) {
	b.mu.Lock()
	if b.item == item {
		// Tags arrived for the playing item; metadata getters pick the new
		// values up from the item itself.
		b.item = item
	}
	b.mu.Unlock()
}

func (b *Bridge) snapshot() (chime.PlayerState, time.Duration, float64, float64, *chime.MediaItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.position, b.speed, b.volume, b.item
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct {
	identity string
}

func (r *rootAdapter) Raise() error { return nil }
func (r *rootAdapter) Quit() error  { return nil }

func (r *rootAdapter) CanQuit() (bool, error)      { return false, nil }
func (r *rootAdapter) CanRaise() (bool, error)     { return false, nil }
func (r *rootAdapter) HasTrackList() (bool, error) { return false, nil }

func (r *rootAdapter) Identity() (string, error) { return r.identity, nil }

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file", "http", "https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/x-wav"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter plus the
// optional loop status and shuffle interfaces.
type playerAdapter struct {
	bridge *Bridge
}

func (p *playerAdapter) player() *chime.Player { return p.bridge.player }

func (p *playerAdapter) Next() error {
	p.player().Queue().SelectNext()
	return nil
}

func (p *playerAdapter) Previous() error {
	p.player().Queue().SelectPrevious()
	return nil
}

func (p *playerAdapter) Pause() error {
	p.player().Pause()
	return nil
}

func (p *playerAdapter) PlayPause() error {
	state, _, _, _, _ := p.bridge.snapshot()
	if state == chime.PlayerPlaying {
		p.player().Pause()
	} else {
		p.player().Play()
	}
	return nil
}

func (p *playerAdapter) Stop() error {
	p.player().Stop()
	return nil
}

func (p *playerAdapter) Play() error {
	p.player().Play()
	return nil
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	_, position, _, _, _ := p.bridge.snapshot()
	target := position + time.Duration(offset)*time.Microsecond
	if target < 0 {
		target = 0
	}
	p.player().Seek(target)
	return nil
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	p.player().Seek(time.Duration(position) * time.Microsecond)
	return nil
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(uri string) error {
	item, err := chime.NewMediaItem(uri)
	if err != nil {
		return err
	}
	p.player().Queue().Add(item)
	p.player().Queue().Select(item)
	return nil
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	state, _, _, _, _ := p.bridge.snapshot()
	switch state {
	case chime.PlayerPlaying:
		return types.PlaybackStatusPlaying, nil
	case chime.PlayerPaused, chime.PlayerBuffering:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (p *playerAdapter) Rate() (float64, error) {
	_, _, speed, _, _ := p.bridge.snapshot()
	return speed, nil
}

func (p *playerAdapter) SetRate(rate float64) error {
	p.player().SetSpeed(rate)
	return nil
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	_, _, _, _, item := p.bridge.snapshot()
	if item == nil {
		return types.Metadata{}, nil
	}

	return types.Metadata{
		TrackId: dbus.ObjectPath(trackID(item)),
		Length:  types.Microseconds(item.Duration().Microseconds()),
		Title:   item.Title(),
	}, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	_, _, _, volume, _ := p.bridge.snapshot()
	return volume, nil
}

func (p *playerAdapter) SetVolume(volume float64) error {
	p.player().SetVolume(volume)
	return nil
}

func (p *playerAdapter) Position() (int64, error) {
	_, position, _, _, _ := p.bridge.snapshot()
	return position.Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) { return 0.25, nil }
func (p *playerAdapter) MaximumRate() (float64, error) { return 2.0, nil }

func (p *playerAdapter) CanGoNext() (bool, error) {
	q := p.player().Queue()
	return q.CurrentIndex() < q.Len()-1, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return p.player().Queue().CurrentIndex() > 0, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.player().Queue().Len() > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error) { return true, nil }
func (p *playerAdapter) CanSeek() (bool, error)  { return true, nil }

func (p *playerAdapter) CanControl() (bool, error) { return true, nil }

// LoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
func (p *playerAdapter) LoopStatus() (types.LoopStatus, error) {
	switch p.player().Queue().ProgressionMode() {
	case chime.ProgressionRepeatItem:
		return types.LoopStatusTrack, nil
	case chime.ProgressionCarousel:
		return types.LoopStatusPlaylist, nil
	default:
		return types.LoopStatusNone, nil
	}
}

// SetLoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
func (p *playerAdapter) SetLoopStatus(status types.LoopStatus) error {
	q := p.player().Queue()
	switch status {
	case types.LoopStatusNone:
		q.SetProgressionMode(chime.ProgressionConsecutive)
	case types.LoopStatusTrack:
		q.SetProgressionMode(chime.ProgressionRepeatItem)
	case types.LoopStatusPlaylist:
		q.SetProgressionMode(chime.ProgressionCarousel)
	}
	return nil
}

// Shuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) Shuffle() (bool, error) {
	return p.player().Queue().ProgressionMode() == chime.ProgressionShuffle, nil
}

// SetShuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) SetShuffle(shuffle bool) error {
	q := p.player().Queue()
	if shuffle {
		q.SetProgressionMode(chime.ProgressionShuffle)
	} else {
		q.SetProgressionMode(chime.ProgressionConsecutive)
	}
	return nil
}

func trackID(item *chime.MediaItem) string {
	h := fnv.New64a()
	h.Write([]byte(item.URI()))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
