package chime

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingObserver collects every callback in arrival order.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
	seen   chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{seen: make(chan struct{}, 128)}
}

func (o *recordingObserver) record(ev string) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
	select {
	case o.seen <- struct{}{}:
	default:
	}
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// waitForEvents polls until the observer saw at least n events.
func (o *recordingObserver) waitForEvents(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if events := o.snapshot(); len(events) >= n {
			return events
		}
		select {
		case <-o.seen:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %v", n, o.snapshot())
		}
	}
}

func (o *recordingObserver) PropertyChanged(owner any, property string) {
	o.record("prop:" + property)
}
func (o *recordingObserver) StreamsChanged()                   { o.record("streams") }
func (o *recordingObserver) TimelineChanged(item *MediaItem)   { o.record("timeline") }
func (o *recordingObserver) QueueChanged()                     { o.record("queue") }
func (o *recordingObserver) SeekDone()                         { o.record("seek-done") }
func (o *recordingObserver) DownloadComplete(item *MediaItem, location string) {
	o.record("download:" + location)
}
func (o *recordingObserver) MissingPlugin(description, detail string) {
	o.record("missing:" + description)
}
func (o *recordingObserver) Warning(err error, debug string) { o.record("warning") }
func (o *recordingObserver) Error(err error, debug string)   { o.record("error:" + err.Error()) }

func TestAppBus_DeliversInOrder(t *testing.T) {
	obs := newRecordingObserver()
	bus := newAppBus(obs, nil)
	defer bus.close()

	bus.postPropNotify(nil, PropVolume)
	bus.postSeekDone()
	bus.postRefreshQueue(nil)
	bus.postError(errors.New("boom"), "")

	events := obs.waitForEvents(t, 4)
	want := []string{"prop:" + PropVolume, "seek-done", "queue", "error:boom"}
	for i, w := range want {
		if events[i] != w {
			t.Errorf("events[%d] = %q, want %q", i, events[i], w)
		}
	}
}

func TestAppBus_SchedulerMarshalsDelivery(t *testing.T) {
	obs := newRecordingObserver()

	var mu sync.Mutex
	var scheduled int
	schedule := func(fn func()) {
		mu.Lock()
		scheduled++
		mu.Unlock()
		fn()
	}

	bus := newAppBus(obs, schedule)
	defer bus.close()

	bus.postSeekDone()
	bus.postSeekDone()
	obs.waitForEvents(t, 2)

	mu.Lock()
	defer mu.Unlock()
	if scheduled != 2 {
		t.Errorf("scheduler invoked %d times, want 2", scheduled)
	}
}

func TestAppBus_PostAfterCloseIsDropped(t *testing.T) {
	obs := newRecordingObserver()
	bus := newAppBus(obs, nil)
	bus.close()

	// Must not panic or deliver.
	bus.postSeekDone()

	time.Sleep(20 * time.Millisecond)
	if events := obs.snapshot(); len(events) != 0 {
		t.Errorf("events after close = %v, want none", events)
	}
}
