package chime

import (
	"sync"
)

// Observer receives host-facing notifications. Callbacks run on the relay
// goroutine, or on the host main loop when Options.MainLoop is set. They must
// not block for long; everything is delivered in FIFO order through one
// channel.
//
// Embed NoopObserver to only implement the callbacks you care about.
type Observer interface {
	// PropertyChanged reports a changed property. Owner is the *Player,
	// *Queue, *StreamList or *MediaItem the property belongs to.
	PropertyChanged(owner any, property string)

	// StreamsChanged fires when the stream lists were rebuilt for a newly
	// started item.
	StreamsChanged()

	// TimelineChanged fires when an item's timeline markers changed.
	TimelineChanged(item *MediaItem)

	// QueueChanged fires when queue contents changed (add/remove/move/clear).
	QueueChanged()

	// SeekDone fires once per completed seek request.
	SeekDone()

	// DownloadComplete reports a fully downloaded item cache.
	DownloadComplete(item *MediaItem, location string)

	// MissingPlugin reports media that cannot be handled by the pipeline.
	MissingPlugin(description, detail string)

	// Warning reports a non-fatal pipeline problem.
	Warning(err error, debug string)

	// Error reports a fatal pipeline error; playback has stopped.
	Error(err error, debug string)
}

// NoopObserver implements Observer with empty methods.
type NoopObserver struct{}

func (NoopObserver) PropertyChanged(any, string)          {}
func (NoopObserver) StreamsChanged()                      {}
func (NoopObserver) TimelineChanged(*MediaItem)           {}
func (NoopObserver) QueueChanged()                        {}
func (NoopObserver) SeekDone()                            {}
func (NoopObserver) DownloadComplete(*MediaItem, string)  {}
func (NoopObserver) MissingPlugin(string, string)         {}
func (NoopObserver) Warning(error, string)                {}
func (NoopObserver) Error(error, string)                  {}

// appBusMessage is one relay message. Only the fields of its kind are set.
type appBusMessage struct {
	kind appBusKind

	owner    any
	property string

	item     *MediaItem
	location string

	description string
	detail      string

	err   error
	debug string
}

type appBusKind int

const (
	appBusPropNotify appBusKind = iota
	appBusRefreshStreams
	appBusRefreshTimeline
	appBusRefreshQueue
	appBusSeekDone
	appBusDownloadComplete
	appBusMissingPlugin
	appBusWarning
	appBusError
)

// appBus relays notifications from the worker and dispatcher goroutines to
// the host. Posting never blocks; delivery is FIFO on a dedicated goroutine,
// optionally marshalled onto the host main loop.
type appBus struct {
	mu     sync.Mutex
	queue  []appBusMessage
	wake   chan struct{}
	closed bool

	observer Observer
	schedule func(func())

	done chan struct{}
	wg   sync.WaitGroup
}

func newAppBus(observer Observer, schedule func(func())) *appBus {
	if observer == nil {
		observer = NoopObserver{}
	}
	b := &appBus{
		wake:     make(chan struct{}, 1),
		observer: observer,
		schedule: schedule,
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *appBus) post(msg appBusMessage) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *appBus) postPropNotify(owner any, property string) {
	b.post(appBusMessage{kind: appBusPropNotify, owner: owner, property: property})
}

func (b *appBus) postRefreshStreams() {
	b.post(appBusMessage{kind: appBusRefreshStreams})
}

func (b *appBus) postRefreshTimeline(item *MediaItem) {
	b.post(appBusMessage{kind: appBusRefreshTimeline, item: item})
}

func (b *appBus) postRefreshQueue(owner any) {
	b.post(appBusMessage{kind: appBusRefreshQueue, owner: owner})
}

func (b *appBus) postSeekDone() {
	b.post(appBusMessage{kind: appBusSeekDone})
}

func (b *appBus) postDownloadComplete(item *MediaItem, location string) {
	b.post(appBusMessage{kind: appBusDownloadComplete, item: item, location: location})
}

func (b *appBus) postMissingPlugin(description, detail string) {
	b.post(appBusMessage{kind: appBusMissingPlugin, description: description, detail: detail})
}

func (b *appBus) postWarning(err error, debug string) {
	b.post(appBusMessage{kind: appBusWarning, err: err, debug: debug})
}

func (b *appBus) postError(err error, debug string) {
	b.post(appBusMessage{kind: appBusError, err: err, debug: debug})
}

func (b *appBus) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
			for {
				b.mu.Lock()
				if len(b.queue) == 0 {
					b.mu.Unlock()
					break
				}
				msg := b.queue[0]
				b.queue = b.queue[1:]
				b.mu.Unlock()

				b.deliver(msg)
			}
		}
	}
}

func (b *appBus) deliver(msg appBusMessage) {
	dispatch := func() {
		switch msg.kind {
		case appBusPropNotify:
			b.observer.PropertyChanged(msg.owner, msg.property)
		case appBusRefreshStreams:
			b.observer.StreamsChanged()
		case appBusRefreshTimeline:
			b.observer.TimelineChanged(msg.item)
		case appBusRefreshQueue:
			b.observer.QueueChanged()
		case appBusSeekDone:
			b.observer.SeekDone()
		case appBusDownloadComplete:
			b.observer.DownloadComplete(msg.item, msg.location)
		case appBusMissingPlugin:
			b.observer.MissingPlugin(msg.description, msg.detail)
		case appBusWarning:
			b.observer.Warning(msg.err, msg.debug)
		case appBusError:
			b.observer.Error(msg.err, msg.debug)
		}
	}

	if b.schedule != nil {
		b.schedule(dispatch)
	} else {
		dispatch()
	}
}

// close stops delivery. Undelivered messages are discarded so that no item
// references are kept alive past shutdown.
func (b *appBus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
}
