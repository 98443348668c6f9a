package chime

import (
	"sync"
	"time"

	"github.com/mdurel/chime/pipeline"
)

// ItemChangeMode selects how the pipeline switches to a new media item.
type ItemChangeMode int

const (
	// ItemChangeNormal transitions through Ready before assigning the URI.
	ItemChangeNormal ItemChangeMode = iota
	// ItemChangeInstant swaps the URI through the pipeline's instant-uri
	// toggle, keeping sinks alive.
	ItemChangeInstant
	// ItemChangeGapless assigns the URI while the previous item still
	// drains, for an uninterrupted transition.
	ItemChangeGapless
)

func (m ItemChangeMode) String() string {
	switch m {
	case ItemChangeInstant:
		return "instant"
	case ItemChangeGapless:
		return "gapless"
	default:
		return "normal"
	}
}

// SeekMethod selects the precision/latency trade-off of a seek.
type SeekMethod int

const (
	// SeekMethodNormal lets the pipeline pick the landing position.
	SeekMethodNormal SeekMethod = iota
	// SeekMethodAccurate lands exactly on the requested position.
	SeekMethodAccurate
	// SeekMethodFast snaps to the nearest keyframe.
	SeekMethodFast
)

// command is one serialized mutation of the pipeline, consumed by the player
// worker. The variants mirror the operations a user can request between two
// worker wakeups.
type command interface {
	isCommand()
}

type cmdSetProperty struct {
	name  string
	value any
}

type cmdSetPlayFlag struct {
	flag    pipeline.PlayFlags
	enabled bool
}

type cmdRequestState struct {
	state pipeline.State // Ready, Paused or Playing
}

type cmdSeek struct {
	position time.Duration
	method   SeekMethod
}

type cmdRateChange struct {
	rate float64
}

// cmdStreamChange reapplies the current selections of all three stream lists
// to the pipeline.
type cmdStreamChange struct{}

type cmdCurrentItemChange struct {
	item *MediaItem // nil clears playback
	mode ItemChangeMode
}

type cmdItemSubURIChange struct {
	item *MediaItem
}

// cmdAboutToFinish is posted from the pipeline's about-to-finish callback so
// the gapless handoff runs on the worker.
type cmdAboutToFinish struct{}

// cmdQuit stops the worker loop.
type cmdQuit struct{}

func (cmdSetProperty) isCommand()       {}
func (cmdSetPlayFlag) isCommand()       {}
func (cmdRequestState) isCommand()      {}
func (cmdSeek) isCommand()              {}
func (cmdRateChange) isCommand()        {}
func (cmdStreamChange) isCommand()      {}
func (cmdCurrentItemChange) isCommand() {}
func (cmdItemSubURIChange) isCommand()  {}
func (cmdAboutToFinish) isCommand()     {}
func (cmdQuit) isCommand()              {}

// commandBus is an unbounded FIFO from any goroutine to the single worker.
// Posting never blocks and never fails; ordering is post order.
type commandBus struct {
	mu     sync.Mutex
	queue  []command
	wake   chan struct{}
	closed bool
}

func newCommandBus() *commandBus {
	return &commandBus{
		wake: make(chan struct{}, 1),
	}
}

// post appends a command. Safe from any goroutine.
func (b *commandBus) post(cmd command) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, cmd)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// tryPop removes the oldest command, if any.
func (b *commandBus) tryPop() (command, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, false
	}
	cmd := b.queue[0]
	b.queue = b.queue[1:]
	return cmd, true
}

// wakeup is signalled (coalesced) whenever a command is posted.
func (b *commandBus) wakeup() <-chan struct{} {
	return b.wake
}

// close drops queued commands and rejects future posts.
func (b *commandBus) close() {
	b.mu.Lock()
	b.closed = true
	b.queue = nil
	b.mu.Unlock()
}
