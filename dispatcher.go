package chime

import (
	"log/slog"
	"sync"
	"time"
)

// reactorEvent is one entry on the dispatcher bus.
type reactorEvent struct {
	kind reactorEventKind

	reactor     Reactor
	state       PlayerState
	position    time.Duration
	speed       float64
	volume      float64
	mute        bool
	item        *MediaItem
	index       int
	toIndex     int
	progression ProgressionMode
}

type reactorEventKind int

const (
	reactorAdded reactorEventKind = iota
	reactorStateChanged
	reactorPositionChanged
	reactorSpeedChanged
	reactorVolumeChanged
	reactorMuteChanged
	reactorPlayedItemChanged
	reactorItemUpdated
	reactorQueueItemAdded
	reactorQueueItemRemoved
	reactorQueueItemRepositioned
	reactorQueueCleared
	reactorQueueProgressionChanged
)

// dispatcher hosts reactors on a dedicated goroutine. Events are dispatched
// in post order; reactors are served sequentially.
//
// The goroutine is started lazily on the first AddReactor call so players
// without reactors do not pay for it.
type dispatcher struct {
	mu      sync.Mutex
	queue   []reactorEvent
	wake    chan struct{}
	started bool
	closed  bool

	player *Player
	log    *slog.Logger

	// Dispatcher goroutine state, untouched by others.
	reactors []Reactor

	done chan struct{}
	wg   sync.WaitGroup
}

func newDispatcher(player *Player, log *slog.Logger) *dispatcher {
	return &dispatcher{
		wake:   make(chan struct{}, 1),
		player: player,
		log:    log.With("component", "reactors"),
		done:   make(chan struct{}),
	}
}

// add registers a reactor, starting the dispatcher goroutine when needed.
func (d *dispatcher) add(r Reactor) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if !d.started {
		d.started = true
		d.wg.Add(1)
		go d.run()
	}
	d.mu.Unlock()

	d.post(reactorEvent{kind: reactorAdded, reactor: r})
}

// post enqueues an event. Never blocks; a no-op until a reactor is added.
func (d *dispatcher) post(ev reactorEvent) {
	d.mu.Lock()
	if d.closed || !d.started {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			d.unprepareAll()
			return
		case <-d.wake:
			for {
				d.mu.Lock()
				if len(d.queue) == 0 {
					d.mu.Unlock()
					break
				}
				ev := d.queue[0]
				d.queue = d.queue[1:]
				d.mu.Unlock()

				d.dispatch(ev)
			}
		}
	}
}

func (d *dispatcher) dispatch(ev reactorEvent) {
	if ev.kind == reactorAdded {
		if err := ev.reactor.Prepare(d.player); err != nil {
			// A failed reactor gets no further callbacks.
			d.log.Warn("reactor prepare failed", "err", err)
			return
		}
		d.reactors = append(d.reactors, ev.reactor)
		return
	}

	for _, r := range d.reactors {
		switch ev.kind {
		case reactorStateChanged:
			r.StateChanged(ev.state)
		case reactorPositionChanged:
			r.PositionChanged(ev.position)
		case reactorSpeedChanged:
			r.SpeedChanged(ev.speed)
		case reactorVolumeChanged:
			r.VolumeChanged(ev.volume)
		case reactorMuteChanged:
			r.MuteChanged(ev.mute)
		case reactorPlayedItemChanged:
			r.PlayedItemChanged(ev.item)
		case reactorItemUpdated:
			r.ItemUpdated(ev.item)
		case reactorQueueItemAdded:
			r.QueueItemAdded(ev.item, ev.index)
		case reactorQueueItemRemoved:
			r.QueueItemRemoved(ev.item, ev.index)
		case reactorQueueItemRepositioned:
			r.QueueItemRepositioned(ev.index, ev.toIndex)
		case reactorQueueCleared:
			r.QueueCleared()
		case reactorQueueProgressionChanged:
			r.QueueProgressionChanged(ev.progression)
		}
	}
}

func (d *dispatcher) unprepareAll() {
	for _, r := range d.reactors {
		if err := r.Unprepare(); err != nil {
			d.log.Warn("reactor unprepare failed", "err", err)
		}
	}
	d.reactors = nil
}

// close drains nothing: queued events are discarded, prepared reactors get
// their Unprepare call on the dispatcher goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.queue = nil
	started := d.started
	d.mu.Unlock()

	close(d.done)
	if started {
		d.wg.Wait()
	}
}
