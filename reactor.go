package chime

import "time"

// Reactor is an observer attached to a player that receives sequenced
// playback and queue events on the player's dispatcher goroutine. All
// callbacks of all reactors run sequentially there; a slow reactor delays
// the others.
//
// Prepare is called exactly once, before any other callback. When it returns
// an error the reactor is dropped and receives nothing further. Unprepare is
// called exactly once on player close for every successfully prepared
// reactor.
//
// Embed ReactorBase to get no-op defaults for the callbacks you do not need.
type Reactor interface {
	Prepare(player *Player) error
	Unprepare() error

	StateChanged(state PlayerState)
	PositionChanged(position time.Duration)
	SpeedChanged(speed float64)
	VolumeChanged(volume float64)
	MuteChanged(mute bool)
	PlayedItemChanged(item *MediaItem)
	ItemUpdated(item *MediaItem)

	QueueItemAdded(item *MediaItem, index int)
	QueueItemRemoved(item *MediaItem, index int)
	QueueItemRepositioned(from, to int)
	QueueCleared()
	QueueProgressionChanged(mode ProgressionMode)
}

// ReactorBase provides no-op implementations of every Reactor callback.
type ReactorBase struct{}

func (ReactorBase) Prepare(*Player) error                  { return nil }
func (ReactorBase) Unprepare() error                       { return nil }
func (ReactorBase) StateChanged(PlayerState)               {}
func (ReactorBase) PositionChanged(time.Duration)          {}
func (ReactorBase) SpeedChanged(float64)                   {}
func (ReactorBase) VolumeChanged(float64)                  {}
func (ReactorBase) MuteChanged(bool)                       {}
func (ReactorBase) PlayedItemChanged(*MediaItem)           {}
func (ReactorBase) ItemUpdated(*MediaItem)                 {}
func (ReactorBase) QueueItemAdded(*MediaItem, int)         {}
func (ReactorBase) QueueItemRemoved(*MediaItem, int)       {}
func (ReactorBase) QueueItemRepositioned(int, int)         {}
func (ReactorBase) QueueCleared()                          {}
func (ReactorBase) QueueProgressionChanged(ProgressionMode) {}
