package beepline

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/mdurel/chime/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// currentURI reads the uri of the track currently in the play graph.
func (p *Pipeline) currentURI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ""
	}
	return p.cur.uri
}

// fakeOutput stands in for the speaker. Tests pump samples through the
// stored streamer themselves to simulate audio progress.
type fakeOutput struct {
	mu      sync.Mutex
	inited  bool
	rate    beep.SampleRate
	current beep.Streamer
	cleared int
}

func (o *fakeOutput) Init(rate beep.SampleRate, bufferSize int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inited = true
	o.rate = rate
	return nil
}

func (o *fakeOutput) Play(s ...beep.Streamer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(s) > 0 {
		o.current = s[0]
	}
}

func (o *fakeOutput) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = nil
	o.cleared++
}

func (o *fakeOutput) Lock()   { o.mu.Lock() }
func (o *fakeOutput) Unlock() { o.mu.Unlock() }

// pump pulls up to n samples through the play graph like the audio device
// would, returning when the streamer reports it is done.
func (o *fakeOutput) pump(n int) {
	o.mu.Lock()
	s := o.current
	o.mu.Unlock()
	if s == nil {
		return
	}

	buf := make([][2]float64, 512)
	for n > 0 {
		want := len(buf)
		if n < want {
			want = n
		}
		got, ok := s.Stream(buf[:want])
		n -= got
		if !ok {
			return
		}
	}
}

// writeWAV writes a 16-bit mono PCM file with the given number of samples.
func writeWAV(t *testing.T, path string, rate, samples int) {
	t.Helper()

	var buf bytes.Buffer
	dataLen := samples * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for i := 0; i < samples; i++ {
		binary.Write(&buf, binary.LittleEndian, int16(i%128))
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func wavURI(t *testing.T, name string, rate, samples int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	writeWAV(t, path, rate, samples)
	return "file://" + path
}

func newTestPipeline(t *testing.T, opts Options) (*Pipeline, *fakeOutput) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	out := &fakeOutput{}
	p := newWithOutput(opts, out)
	t.Cleanup(func() { p.Close() })
	return p, out
}

func nextMessage(t *testing.T, p *Pipeline) pipeline.Message {
	t.Helper()
	select {
	case msg, ok := <-p.Messages():
		if !ok {
			t.Fatal("message channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return nil
}

func waitMessage[M pipeline.Message](t *testing.T, p *Pipeline) M {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-p.Messages():
			if !ok {
				t.Fatalf("channel closed waiting for %T", *new(M))
			}
			if m, is := msg.(M); is {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %T", *new(M))
		}
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"file:///music/a.flac", "/music/a.flac", false},
		{"file:///with%20space.wav", "/with space.wav", false},
		{"http://example.com/a.mp3", "", true},
		{"not a uri at all://", "", true},
		{"file://", "", true},
	}

	for _, tt := range tests {
		got, err := localPath(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("localPath(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("localPath(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestOpenTrackWAV(t *testing.T) {
	uri := wavURI(t, "tone.wav", 8000, 4000)

	tr, err := openTrack(uri)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.close()

	if tr.codec != "wav" {
		t.Errorf("codec = %q, want wav", tr.codec)
	}
	if got := tr.duration(); got != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", got)
	}
}

func TestOpenTrackUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := openTrack("file://" + path); err == nil {
		t.Error("expected an error for .txt")
	}
}

func TestSkipID3v2(t *testing.T) {
	// 10 byte header claiming a 5 byte tag body, then payload.
	data := append([]byte("ID3\x04\x00\x00\x00\x00\x00\x05"), make([]byte, 5)...)
	data = append(data, []byte("fLaC")...)

	r := bytes.NewReader(data)
	if err := skipID3v2(r); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "fLaC" {
		t.Errorf("after skip, rest = %q, want fLaC", rest)
	}

	// No tag: reader rewinds to the start.
	r = bytes.NewReader([]byte("fLaC rest of file"))
	if err := skipID3v2(r); err != nil {
		t.Fatal(err)
	}
	rest, _ = io.ReadAll(r)
	if string(rest[:4]) != "fLaC" {
		t.Errorf("after no-op skip, rest = %q", rest)
	}
}

func TestStateLadderMessages(t *testing.T) {
	p, out := newTestPipeline(t, Options{})
	p.SetURI(wavURI(t, "a.wav", 8000, 8000))

	if ret := p.SetState(pipeline.StatePlaying); ret != pipeline.StateChangeAsync {
		t.Fatalf("SetState = %v, want async", ret)
	}
	if !out.inited {
		t.Error("output was never initialized")
	}

	wantStates := []struct {
		old, new, pending pipeline.State
	}{
		{pipeline.StateNull, pipeline.StateReady, pipeline.StatePlaying},
		{pipeline.StateReady, pipeline.StatePaused, pipeline.StatePlaying},
		{pipeline.StatePaused, pipeline.StatePlaying, pipeline.StateNone},
	}

	var (
		states    []pipeline.StateChanged
		starts    int
		asyncDone int
	)
	deadline := time.After(2 * time.Second)
	for len(states) < len(wantStates) {
		select {
		case msg := <-p.Messages():
			switch m := msg.(type) {
			case pipeline.StateChanged:
				states = append(states, m)
			case pipeline.StreamStart:
				starts++
			case pipeline.AsyncDone:
				asyncDone++
			}
		case <-deadline:
			t.Fatalf("incomplete ladder, got %v", states)
		}
	}

	for i, want := range wantStates {
		got := states[i]
		if got.Old != want.old || got.New != want.new || got.Pending != want.pending {
			t.Errorf("step %d = %+v, want %+v", i, got, want)
		}
	}
	if starts != 1 {
		t.Errorf("StreamStart count = %d, want 1", starts)
	}
	if asyncDone != 1 {
		t.Errorf("AsyncDone count = %d, want 1", asyncDone)
	}
}

func TestPrerollWithoutURIFails(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})

	if ret := p.SetState(pipeline.StatePaused); ret != pipeline.StateChangeFailure {
		t.Fatalf("SetState = %v, want failure", ret)
	}
	waitMessage[pipeline.Error](t, p)
}

func TestSeekAndQueries(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	p.SetURI(wavURI(t, "a.wav", 8000, 16000))
	p.SetState(pipeline.StatePaused)

	if d, ok := p.QueryDuration(); !ok || d != 2*time.Second {
		t.Errorf("QueryDuration = %v %v, want 2s true", d, ok)
	}

	ok := p.SendSeek(pipeline.SeekEvent{
		Rate: 1, Flags: pipeline.SeekFlagFlush,
		StartType: pipeline.SeekTypeSet, Start: 500 * time.Millisecond,
	})
	if !ok {
		t.Fatal("SendSeek failed")
	}
	if pos, ok := p.QueryPosition(); !ok || pos != 500*time.Millisecond {
		t.Errorf("QueryPosition = %v %v, want 500ms true", pos, ok)
	}
}

func TestSeekRejectsReverse(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	p.SetURI(wavURI(t, "a.wav", 8000, 8000))
	p.SetState(pipeline.StatePaused)

	if p.SendSeek(pipeline.SeekEvent{Rate: -1}) {
		t.Error("reverse seek should be rejected")
	}
}

func TestRateChangeThroughResampler(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	p.SetURI(wavURI(t, "a.wav", 8000, 8000))
	p.SetState(pipeline.StatePaused)

	ok := p.SendSeek(pipeline.SeekEvent{Rate: 2, StartType: pipeline.SeekTypeSet})
	if !ok {
		t.Fatal("SendSeek failed")
	}
	if got := p.rateStage.Ratio(); got != 2 {
		t.Errorf("resampler ratio = %v, want 2", got)
	}
}

func TestVolumeMapping(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	p.WatchProperty("volume")
	p.SetURI(wavURI(t, "a.wav", 8000, 8000))
	p.SetState(pipeline.StatePaused)

	p.SetVolume(0.5)
	notify := waitMessage[pipeline.PropertyNotify](t, p)
	if notify.Name != "volume" || notify.Value != 0.5 {
		t.Errorf("notify = %+v", notify)
	}
	if got := p.vol.Volume; math.Abs(got-(-1)) > 1e-9 {
		t.Errorf("effect volume = %v, want -1 (half loudness in base 2)", got)
	}

	p.SetMute(true)
	if !p.vol.Silent {
		t.Error("mute should silence the effect")
	}
	if !p.Muted() {
		t.Error("Muted() = false")
	}
}

func TestAboutToFinishFires(t *testing.T) {
	p, _ := newTestPipeline(t, Options{AboutToFinishLead: time.Hour})
	fired := make(chan struct{})
	p.OnAboutToFinish(func() { close(fired) })

	p.SetURI(wavURI(t, "a.wav", 8000, 80000))
	p.SetState(pipeline.StatePlaying)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("about-to-finish never fired")
	}
}

func TestGaplessHandoffAndEOS(t *testing.T) {
	p, out := newTestPipeline(t, Options{})
	first := wavURI(t, "a.wav", 8000, 800)
	second := wavURI(t, "b.wav", 8000, 800)

	p.SetURI(first)
	p.SetState(pipeline.StatePlaying)
	waitMessage[pipeline.AsyncDone](t, p)

	p.SetURI(second)
	if !p.chain.hasNext() {
		t.Fatal("successor was not queued")
	}

	// Drain the first track; the chain must switch without running dry.
	out.pump(900)
	waitMessage[pipeline.StreamStart](t, p)

	if got := p.currentURI(); got != second {
		t.Errorf("current uri = %q, want %q", got, second)
	}
	if _, audio := p.CurrentDecoders(); audio != "wav" {
		t.Errorf("audio decoder = %q, want wav", audio)
	}

	// Drain the second track to its real end.
	out.pump(2000)
	waitMessage[pipeline.EndOfStream](t, p)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, out := newTestPipeline(t, Options{})
	p.SetURI(wavURI(t, "a.wav", 8000, 8000))
	p.SetState(pipeline.StatePaused)

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if out.cleared == 0 {
		t.Error("close should clear the output")
	}

	if _, ok := <-p.Messages(); ok {
		// Buffered messages may remain; drain until closed.
		for range p.Messages() {
		}
	}
}
