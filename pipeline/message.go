package pipeline

import "time"

// Message is a typed event posted by a pipeline on its message channel.
type Message interface {
	isMessage()
}

// StateChanged reports a completed state transition of the top-level bin.
// Pending is StateNone when the transition settled.
type StateChanged struct {
	Old     State
	New     State
	Pending State
}

// Buffering reports stream buffering progress. Percent is 0..100.
type Buffering struct {
	Percent int
}

// StreamCollection announces the set of available streams for the current
// media (ModeModern).
type StreamCollection struct {
	Streams []StreamInfo
}

// StreamsSelected confirms which stream ids are now active.
type StreamsSelected struct {
	StreamIDs []string
}

// StreamStart signals that the top-level bin started a new stream group.
type StreamStart struct {
	GroupID uint
}

// TagsFound carries media metadata. FromPreparer marks tags determined by a
// metadata-resolving source before the stream actually starts; the controller
// holds those until StreamStart.
type TagsFound struct {
	Tags         Tags
	FromPreparer bool
}

// TOCFound carries a table of contents. Updated means the previous TOC was
// amended rather than replaced.
type TOCFound struct {
	TOC          TOC
	Updated      bool
	FromPreparer bool
}

// PropertyNotify reports a watched property change.
type PropertyNotify struct {
	Name  string
	Value any
}

// DurationChanged signals that QueryDuration may return a new value.
type DurationChanged struct{}

// AsyncDone signals that an asynchronous operation (preroll, flush seek)
// completed.
type AsyncDone struct{}

// LatencyChanged asks the controller to trigger latency recalculation.
type LatencyChanged struct{}

// ClockLost signals the pipeline lost its clock and needs a pause/play cycle
// to select a new one.
type ClockLost struct{}

// EndOfStream signals the current media fully played out.
type EndOfStream struct{}

// Warning is a non-fatal problem.
type Warning struct {
	Err   error
	Debug string
}

// Error is a fatal pipeline error. Playback cannot continue.
type Error struct {
	Err   error
	Debug string
}

// DownloadComplete reports a finished progressive download.
type DownloadComplete struct {
	Location string
}

// MissingPlugin reports an unhandled media type.
type MissingPlugin struct {
	Description string
	Detail      string
}

// RequestState is the pipeline asking for a state change (e.g. a sink wants
// to pause on window close).
type RequestState struct {
	State State
}

// BandwidthChanged reports measured adaptive streaming bandwidth.
type BandwidthChanged struct {
	BitsPerSecond uint
}

func (StateChanged) isMessage()     {}
func (Buffering) isMessage()        {}
func (StreamCollection) isMessage() {}
func (StreamsSelected) isMessage()  {}
func (StreamStart) isMessage()      {}
func (TagsFound) isMessage()        {}
func (TOCFound) isMessage()         {}
func (PropertyNotify) isMessage()   {}
func (DurationChanged) isMessage()  {}
func (AsyncDone) isMessage()        {}
func (LatencyChanged) isMessage()   {}
func (ClockLost) isMessage()        {}
func (EndOfStream) isMessage()      {}
func (Warning) isMessage()          {}
func (Error) isMessage()            {}
func (DownloadComplete) isMessage() {}
func (MissingPlugin) isMessage()    {}
func (RequestState) isMessage()     {}
func (BandwidthChanged) isMessage() {}

// Tags is a flattened snapshot of media metadata.
type Tags struct {
	Title           string
	ContainerFormat string
	Duration        time.Duration
}

// TOC is an ordered table of contents.
type TOC struct {
	Entries []TOCEntry
}

// TOCEntryKind classifies a TOC entry.
type TOCEntryKind int

const (
	TOCEntryUnknown TOCEntryKind = iota
	TOCEntryTitle
	TOCEntryChapter
	TOCEntryTrack
)

// TOCEntry is a single chapter/title/track span. HasEnd is false for point
// markers.
type TOCEntry struct {
	Kind   TOCEntryKind
	Start  time.Duration
	End    time.Duration
	HasEnd bool
	Title  string
}
