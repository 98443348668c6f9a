package beepline

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// track is one decoded media file.
type track struct {
	uri      string
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	codec    string
}

func (t *track) close() {
	if t.streamer != nil {
		t.streamer.Close()
	}
	if t.file != nil {
		t.file.Close()
	}
}

func (t *track) position() time.Duration {
	return t.format.SampleRate.D(t.streamer.Position())
}

func (t *track) duration() time.Duration {
	return t.format.SampleRate.D(t.streamer.Len())
}

// localPath turns a file URI into a filesystem path.
func localPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported scheme %q, only file uris play here", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("empty path in uri %q", uri)
	}
	return u.Path, nil
}

// openTrack opens and decodes a local media file.
func openTrack(uri string) (*track, error) {
	path, err := localPath(uri)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		codec    string
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".flac":
		// Some taggers prepend ID3v2 to FLAC files; the decoder chokes on it.
		if err = skipID3v2(f); err == nil {
			streamer, format, err = flac.Decode(f)
		}
		codec = "flac"
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
		codec = "mp3"
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
		codec = "vorbis"
	case ".wav":
		streamer, format, err = wav.Decode(f)
		codec = "wav"
	default:
		err = fmt.Errorf("unsupported format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	return &track{uri: uri, file: f, streamer: streamer, format: format, codec: codec}, nil
}

// skipID3v2 seeks past an ID3v2 tag when one sits at the start of the file.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := io.ReadFull(r, header)
	if err != nil || n < 10 || string(header[0:3]) != "ID3" {
		_, serr := r.Seek(0, io.SeekStart)
		return serr
	}

	// Syncsafe integer: 7 bits per byte.
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
	_, err = r.Seek(10+size, io.SeekStart)
	return err
}
