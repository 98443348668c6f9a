package chime

import (
	"fmt"
	"sync"

	"github.com/mdurel/chime/pipeline"
)

// Stream represents a single media track (one video, audio or subtitle
// stream) within the currently played item.
type Stream struct {
	mu   sync.Mutex
	info pipeline.StreamInfo
}

func newStream(info pipeline.StreamInfo) *Stream {
	return &Stream{info: info}
}

// Kind returns the stream media type.
func (s *Stream) Kind() pipeline.StreamKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Kind
}

// ID returns the pipeline stream id. Stable for the lifetime of the played
// item in modern selection mode; synthesized in legacy mode.
func (s *Stream) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.ID
}

// Codec returns the codec name, if known.
func (s *Stream) Codec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Codec
}

// Language returns the ISO language code, if known.
func (s *Stream) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Language
}

// Title returns the human-readable stream title, if any.
func (s *Stream) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Title
}

// VideoSize returns width and height for video streams, zeroes otherwise.
func (s *Stream) VideoSize() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Width, s.info.Height
}

// FrameRate returns frames per second for video streams.
func (s *Stream) FrameRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.FrameRate
}

// Channels returns the channel count for audio streams.
func (s *Stream) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Channels
}

// SampleRate returns the sample rate for audio streams.
func (s *Stream) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.SampleRate
}

// Bitrate returns the stream bitrate in bits per second, if known.
func (s *Stream) Bitrate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Bitrate
}

// update refreshes the caps/tags snapshot. Worker only.
func (s *Stream) update(info pipeline.StreamInfo) {
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
}

func (s *Stream) flags() pipeline.StreamFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Flags
}

func (s *Stream) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Stream(%s, id=%q, codec=%q)", s.info.Kind, s.info.ID, s.info.Codec)
}
