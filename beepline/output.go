package beepline

import (
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// output abstracts the speaker so tests can run without an audio device.
type output interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// speakerOutput drives the process-wide beep speaker. The speaker can only be
// initialized once per process, so the sample rate of the first track wins and
// later tracks are resampled to it.
type speakerOutput struct{}

var (
	speakerMu          sync.Mutex
	speakerInitialized bool
	speakerRate        beep.SampleRate
)

func (speakerOutput) Init(rate beep.SampleRate, bufferSize int) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerInitialized {
		return nil
	}
	if err := speaker.Init(rate, bufferSize); err != nil {
		return err
	}
	speakerInitialized = true
	speakerRate = rate
	return nil
}

func (speakerOutput) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerOutput) Clear()                  { speaker.Clear() }
func (speakerOutput) Lock()                   { speaker.Lock() }
func (speakerOutput) Unlock()                 { speaker.Unlock() }
