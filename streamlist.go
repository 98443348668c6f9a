package chime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mdurel/chime/pipeline"
)

// InvalidPosition marks "no selection" in stream lists and the queue.
const InvalidPosition = -1

// StreamList is a selectable list of streams of one kind belonging to the
// played item. Invariant: CurrentIndex() == InvalidPosition exactly when
// CurrentStream() == nil; otherwise the index points into the list.
type StreamList struct {
	kind pipeline.StreamKind

	mu           sync.Mutex
	streams      []*Stream
	currentIndex int

	// Set while the controller applies a fresh stream collection; user
	// selection is ignored during that window.
	refreshing atomic.Bool

	player *Player
	log    *slog.Logger
}

func newStreamList(kind pipeline.StreamKind, player *Player, log *slog.Logger) *StreamList {
	return &StreamList{
		kind:         kind,
		currentIndex: InvalidPosition,
		player:       player,
		log:          log.With("streams", kind.String()),
	}
}

// Kind returns the media type of streams held by this list.
func (sl *StreamList) Kind() pipeline.StreamKind { return sl.kind }

// Len returns the number of streams.
func (sl *StreamList) Len() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.streams)
}

// Stream returns the stream at index, nil when out of range.
func (sl *StreamList) Stream(index int) *Stream {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if index < 0 || index >= len(sl.streams) {
		return nil
	}
	return sl.streams[index]
}

// Streams returns a snapshot of the list.
func (sl *StreamList) Streams() []*Stream {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := make([]*Stream, len(sl.streams))
	copy(out, sl.streams)
	return out
}

// CurrentStream returns the selected stream, nil when none.
func (sl *StreamList) CurrentStream() *Stream {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.currentIndex == InvalidPosition {
		return nil
	}
	return sl.streams[sl.currentIndex]
}

// CurrentIndex returns the selected index, InvalidPosition when none.
func (sl *StreamList) CurrentIndex() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.currentIndex
}

// SelectStream makes the given stream the active one of its kind. The actual
// pipeline change happens asynchronously on the player worker.
func (sl *StreamList) SelectStream(stream *Stream) bool {
	sl.mu.Lock()
	index := InvalidPosition
	for i, s := range sl.streams {
		if s == stream {
			index = i
			break
		}
	}
	sl.mu.Unlock()

	if index == InvalidPosition {
		return false
	}
	return sl.SelectIndex(index)
}

// SelectIndex selects a stream by list position.
func (sl *StreamList) SelectIndex(index int) bool {
	if sl.refreshing.Load() {
		sl.log.Warn("ignoring stream selection during collection refresh", "index", index)
		return false
	}

	sl.mu.Lock()
	if index < 0 || index >= len(sl.streams) || index == sl.currentIndex {
		sl.mu.Unlock()
		return false
	}
	sl.currentIndex = index
	sl.mu.Unlock()

	sl.announceSelection()
	if sl.player != nil {
		sl.player.postCommand(cmdStreamChange{})
	}
	return true
}

// replaceStreams installs a fresh set of streams and applies the initial
// selection policy: first stream flagged for default selection wins, then
// the first stream not flagged unselect, then index 0. Worker only.
func (sl *StreamList) replaceStreams(streams []*Stream) {
	selected := InvalidPosition
	for i, s := range streams {
		f := s.flags()
		if f&pipeline.StreamFlagSelect != 0 {
			selected = i
			break
		}
		if selected == InvalidPosition && f&pipeline.StreamFlagUnselect == 0 {
			selected = i
		}
	}
	if selected == InvalidPosition && len(streams) > 0 {
		selected = 0
	}

	sl.mu.Lock()
	sl.streams = streams
	sl.currentIndex = selected
	sl.mu.Unlock()

	sl.log.Debug("streams replaced", "count", len(streams), "selected", selected)
	sl.announceSelection()
}

// clear drops all streams and the selection. Worker only.
func (sl *StreamList) clear() {
	sl.mu.Lock()
	empty := len(sl.streams) == 0 && sl.currentIndex == InvalidPosition
	sl.streams = nil
	sl.currentIndex = InvalidPosition
	sl.mu.Unlock()

	if !empty {
		sl.announceSelection()
	}
}

// selectionIndexLocked-free helper used by the controller for legacy
// selector writes.
func (sl *StreamList) selectionForPipeline() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.currentIndex
}

// currentStreamID returns the pipeline id of the selection, empty when none.
func (sl *StreamList) currentStreamID() string {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.currentIndex == InvalidPosition {
		return ""
	}
	return sl.streams[sl.currentIndex].ID()
}

func (sl *StreamList) announceSelection() {
	if sl.player == nil {
		return
	}
	sl.player.appBus.postPropNotify(sl, PropStreamListCurrentStream)
	sl.player.appBus.postPropNotify(sl, PropStreamListCurrentIndex)
}
