package beepline

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

var _ beep.Streamer = (*chainStreamer)(nil)

// chainStreamer is the gapless seam of the pipeline. It forwards samples
// from the playing track and, when a next track has been queued, rolls over
// to it inside a single Stream call so the device never observes the
// boundary. onSwitch runs on the audio goroutine under the speaker lock and
// must not block.
type chainStreamer struct {
	mu       sync.Mutex
	current  beep.Streamer
	next     beep.Streamer
	onSwitch func()
}

func (cs *chainStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.current == nil {
		return 0, false
	}
	n, ok = streamFull(cs.current, samples)
	if ok || cs.next == nil {
		return n, ok
	}

	// The playing track drained with a successor queued. Promote it and
	// top the buffer up from the new track.
	if cs.onSwitch != nil {
		cs.onSwitch()
	}
	cs.current, cs.next = cs.next, nil
	if n == len(samples) {
		return n, true
	}
	var n2 int
	n2, ok = cs.current.Stream(samples[n:])
	return n + n2, ok
}

// streamFull pulls from s until the buffer is full or s reports drained.
// One short read is retried: decoders can come up short mid file without
// being finished.
func streamFull(s beep.Streamer, samples [][2]float64) (int, bool) {
	n, ok := s.Stream(samples)
	if ok && n < len(samples) {
		n2, ok2 := s.Stream(samples[n:])
		n += n2
		ok = ok2
	}
	return n, ok
}

func (cs *chainStreamer) Err() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.current != nil {
		return cs.current.Err()
	}
	return nil
}

func (cs *chainStreamer) set(current beep.Streamer) {
	cs.mu.Lock()
	cs.current = current
	cs.next = nil
	cs.mu.Unlock()
}

func (cs *chainStreamer) setNext(next beep.Streamer) {
	cs.mu.Lock()
	cs.next = next
	cs.mu.Unlock()
}

func (cs *chainStreamer) clearNext() {
	cs.mu.Lock()
	cs.next = nil
	cs.mu.Unlock()
}

func (cs *chainStreamer) hasNext() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.next != nil
}
