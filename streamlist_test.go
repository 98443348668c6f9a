package chime

import (
	"testing"

	"github.com/mdurel/chime/pipeline"
)

func audioStream(id string, flags pipeline.StreamFlags) *Stream {
	return newStream(pipeline.StreamInfo{
		ID:    id,
		Kind:  pipeline.StreamAudio,
		Flags: flags,
	})
}

func TestStreamList_ReplacePicksFlaggedDefault(t *testing.T) {
	sl := newStreamList(pipeline.StreamAudio, nil, testLogger())

	sl.replaceStreams([]*Stream{
		audioStream("a0", 0),
		audioStream("a1", pipeline.StreamFlagSelect),
		audioStream("a2", 0),
	})

	if sl.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex() = %d, want flagged stream 1", sl.CurrentIndex())
	}
	if sl.currentStreamID() != "a1" {
		t.Errorf("currentStreamID() = %q, want a1", sl.currentStreamID())
	}
}

func TestStreamList_ReplaceSkipsUnselect(t *testing.T) {
	sl := newStreamList(pipeline.StreamAudio, nil, testLogger())

	sl.replaceStreams([]*Stream{
		audioStream("a0", pipeline.StreamFlagUnselect),
		audioStream("a1", 0),
	})

	if sl.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex() = %d, want 1", sl.CurrentIndex())
	}
}

func TestStreamList_ReplaceAllUnselect(t *testing.T) {
	sl := newStreamList(pipeline.StreamAudio, nil, testLogger())

	sl.replaceStreams([]*Stream{
		audioStream("a0", pipeline.StreamFlagUnselect),
	})

	// Something must be selected when streams exist at all.
	if sl.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex() = %d, want 0", sl.CurrentIndex())
	}
}

func TestStreamList_ClearEmptiesSelection(t *testing.T) {
	sl := newStreamList(pipeline.StreamAudio, nil, testLogger())
	sl.replaceStreams([]*Stream{audioStream("a0", 0)})

	sl.clear()

	if sl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sl.Len())
	}
	if sl.CurrentIndex() != InvalidPosition {
		t.Errorf("CurrentIndex() = %d, want %d", sl.CurrentIndex(), InvalidPosition)
	}
	if sl.CurrentStream() != nil {
		t.Error("CurrentStream() should be nil after clear")
	}
}

func TestStreamList_SelectIndexBounds(t *testing.T) {
	sl := newStreamList(pipeline.StreamAudio, nil, testLogger())
	sl.replaceStreams([]*Stream{audioStream("a0", 0), audioStream("a1", 0)})

	if sl.SelectIndex(5) {
		t.Error("SelectIndex(5) out of range should fail")
	}
	if sl.SelectIndex(0) {
		t.Error("SelectIndex(0) is already current, should report no change")
	}
	if !sl.SelectIndex(1) {
		t.Error("SelectIndex(1) should succeed")
	}
}

func TestStreamList_SelectIgnoredDuringRefresh(t *testing.T) {
	sl := newStreamList(pipeline.StreamAudio, nil, testLogger())
	sl.replaceStreams([]*Stream{audioStream("a0", 0), audioStream("a1", 0)})

	sl.refreshing.Store(true)
	if sl.SelectIndex(1) {
		t.Error("selection during a collection refresh should be ignored")
	}
	sl.refreshing.Store(false)

	if !sl.SelectIndex(1) {
		t.Error("selection after the refresh should work")
	}
}
