package chime

import (
	"sort"
	"sync"

	"github.com/mdurel/chime/pipeline"
)

// Timeline is an ordered, observable set of markers belonging to one media
// item. Media-driven markers are replaced wholesale when the pipeline posts
// a new table of contents; applications may insert their own markers at any
// time.
type Timeline struct {
	mu      sync.Mutex
	markers []*Marker

	item *MediaItem // notification routing
}

func newTimeline() *Timeline {
	return &Timeline{}
}

// Len returns the number of markers.
func (tl *Timeline) Len() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.markers)
}

// Marker returns the marker at index, nil when out of range.
func (tl *Timeline) Marker(index int) *Marker {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if index < 0 || index >= len(tl.markers) {
		return nil
	}
	return tl.markers[index]
}

// Markers returns a snapshot of all markers in start order.
func (tl *Timeline) Markers() []*Marker {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	out := make([]*Marker, len(tl.markers))
	copy(out, tl.markers)
	return out
}

// InsertMarker adds a marker keeping start order. Returns false if the same
// marker pointer is already inserted.
func (tl *Timeline) InsertMarker(marker *Marker) bool {
	tl.mu.Lock()
	for _, m := range tl.markers {
		if m == marker {
			tl.mu.Unlock()
			return false
		}
	}
	tl.insertSortedLocked(marker)
	tl.mu.Unlock()

	tl.notifyChanged()
	return true
}

// RemoveMarker removes a previously inserted marker.
func (tl *Timeline) RemoveMarker(marker *Marker) bool {
	tl.mu.Lock()
	removed := false
	for i, m := range tl.markers {
		if m == marker {
			tl.markers = append(tl.markers[:i], tl.markers[i+1:]...)
			removed = true
			break
		}
	}
	tl.mu.Unlock()

	if removed {
		tl.notifyChanged()
	}
	return removed
}

func (tl *Timeline) insertSortedLocked(marker *Marker) {
	i := sort.Search(len(tl.markers), func(i int) bool {
		return marker.before(tl.markers[i])
	})
	tl.markers = append(tl.markers, nil)
	copy(tl.markers[i+1:], tl.markers[i:])
	tl.markers[i] = marker
}

// setTOC replaces media markers from a pipeline table of contents in one
// swap. When the TOC is an update of the previous one, markers whose
// (type, start, title) triple still matches keep their identity. Returns
// whether anything changed. Worker only.
func (tl *Timeline) setTOC(toc pipeline.TOC, updated bool) bool {
	fresh := make([]*Marker, 0, len(toc.Entries))
	for _, entry := range toc.Entries {
		var m *Marker
		if entry.HasEnd {
			m = NewMarkerSpan(markerTypeFromTOC(entry.Kind), entry.Start, entry.End, entry.Title)
		} else {
			m = NewMarker(markerTypeFromTOC(entry.Kind), entry.Start, entry.Title)
		}
		fresh = append(fresh, m)
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].before(fresh[j]) })

	tl.mu.Lock()
	changed := !updated || len(fresh) != len(tl.markers)
	if updated {
		// Keep identity of still-matching markers.
		for i, m := range fresh {
			for _, old := range tl.markers {
				if old.matches(m) {
					fresh[i] = old
					break
				}
			}
			if i >= len(tl.markers) || fresh[i] != tl.markers[i] {
				changed = true
			}
		}
	}
	tl.markers = fresh
	tl.mu.Unlock()

	if changed {
		tl.notifyChanged()
	}
	return changed
}

func markerTypeFromTOC(kind pipeline.TOCEntryKind) MarkerType {
	switch kind {
	case pipeline.TOCEntryTitle:
		return MarkerTitle
	case pipeline.TOCEntryChapter:
		return MarkerChapter
	case pipeline.TOCEntryTrack:
		return MarkerTrack
	default:
		return MarkerUnknown
	}
}

func (tl *Timeline) notifyChanged() {
	if tl.item == nil {
		return
	}
	p := tl.item.player.Load()
	if p == nil {
		return
	}
	p.appBus.postRefreshTimeline(tl.item)
	p.dispatcher.post(reactorEvent{kind: reactorItemUpdated, item: tl.item})
}
