package chime

import "time"

// MarkerType classifies a timeline marker.
type MarkerType int

const (
	MarkerUnknown MarkerType = iota
	MarkerTitle
	MarkerChapter
	MarkerTrack
	// Custom marker types for application use. Never produced from media.
	MarkerCustom1
	MarkerCustom2
	MarkerCustom3
)

func (t MarkerType) String() string {
	switch t {
	case MarkerTitle:
		return "title"
	case MarkerChapter:
		return "chapter"
	case MarkerTrack:
		return "track"
	case MarkerCustom1:
		return "custom-1"
	case MarkerCustom2:
		return "custom-2"
	case MarkerCustom3:
		return "custom-3"
	default:
		return "unknown"
	}
}

// Marker points at a moment or span within a media timeline. Markers are
// immutable after creation.
type Marker struct {
	markerType MarkerType
	start      time.Duration
	end        time.Duration
	hasEnd     bool
	title      string
}

// NewMarker creates a point marker.
func NewMarker(markerType MarkerType, start time.Duration, title string) *Marker {
	if start < 0 {
		start = 0
	}
	return &Marker{
		markerType: markerType,
		start:      start,
		title:      title,
	}
}

// NewMarkerSpan creates a marker covering [start, end].
func NewMarkerSpan(markerType MarkerType, start, end time.Duration, title string) *Marker {
	m := NewMarker(markerType, start, title)
	if end >= m.start {
		m.end = end
		m.hasEnd = true
	}
	return m
}

// Type returns the marker type.
func (m *Marker) Type() MarkerType { return m.markerType }

// Start returns the marker start position.
func (m *Marker) Start() time.Duration { return m.start }

// End returns the marker end position and whether one is set.
func (m *Marker) End() (time.Duration, bool) { return m.end, m.hasEnd }

// Title returns the marker title, empty when none.
func (m *Marker) Title() string { return m.title }

// matches reports whether another marker refers to the same logical point.
// Used to keep marker identity across TOC updates.
func (m *Marker) matches(other *Marker) bool {
	return m.markerType == other.markerType &&
		m.start == other.start &&
		m.title == other.title
}

// before orders markers by start, then end, then type.
func (m *Marker) before(other *Marker) bool {
	if m.start != other.start {
		return m.start < other.start
	}
	if m.hasEnd != other.hasEnd || m.end != other.end {
		if !m.hasEnd {
			return true
		}
		if !other.hasEnd {
			return false
		}
		return m.end < other.end
	}
	return m.markerType < other.markerType
}
