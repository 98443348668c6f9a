package pipeline

// StreamKind is the media type of a single stream.
type StreamKind int

const (
	StreamUnknown StreamKind = iota
	StreamVideo
	StreamAudio
	StreamSubtitle
)

func (k StreamKind) String() string {
	switch k {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	case StreamSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// StreamFlags carry selection hints from the container.
type StreamFlags uint32

const (
	StreamFlagSparse StreamFlags = 1 << iota
	StreamFlagSelect
	StreamFlagUnselect
)

// StreamInfo is the pipeline-side description of one stream inside a
// collection. Fields that do not apply to the stream kind are zero.
type StreamInfo struct {
	ID       string
	Kind     StreamKind
	Flags    StreamFlags
	Codec    string
	Language string
	Title    string

	// Video
	Width     int
	Height    int
	FrameRate float64

	// Audio
	Channels   int
	SampleRate int
	Bitrate    int
}
