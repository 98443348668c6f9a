package beepline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fixedStreamer produces a fixed number of samples of one value then ends.
type fixedStreamer struct {
	samples  int
	value    float64
	produced int
}

func (f *fixedStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	remaining := f.samples - f.produced
	if remaining <= 0 {
		return 0, false
	}
	toWrite := min(len(samples), remaining)
	for i := range toWrite {
		samples[i] = [2]float64{f.value, f.value}
	}
	f.produced += toWrite
	return toWrite, true
}

func (f *fixedStreamer) Err() error { return nil }

func TestChain_SeamlessTransition(t *testing.T) {
	switched := false
	cs := &chainStreamer{onSwitch: func() { switched = true }}
	cs.set(&fixedStreamer{samples: 10, value: 1.0})
	cs.setNext(&fixedStreamer{samples: 10, value: 2.0})

	buf := make([][2]float64, 25)
	n, ok := cs.Stream(buf)

	assert.True(t, ok)
	assert.Equal(t, 20, n)
	assert.True(t, switched)
	for i := range 10 {
		assert.Equal(t, 1.0, buf[i][0], "sample %d should come from the first streamer", i)
	}
	for i := 10; i < 20; i++ {
		assert.Equal(t, 2.0, buf[i][0], "sample %d should come from the second streamer", i)
	}
}

func TestChain_EndsWithoutNext(t *testing.T) {
	cs := &chainStreamer{}
	cs.set(&fixedStreamer{samples: 5, value: 1.0})

	buf := make([][2]float64, 10)
	n, ok := cs.Stream(buf)

	assert.False(t, ok)
	assert.Equal(t, 5, n)
}

func TestChain_ClearNextCancelsHandoff(t *testing.T) {
	cs := &chainStreamer{}
	cs.set(&fixedStreamer{samples: 5, value: 1.0})
	cs.setNext(&fixedStreamer{samples: 5, value: 2.0})
	assert.True(t, cs.hasNext())

	cs.clearNext()
	assert.False(t, cs.hasNext())

	buf := make([][2]float64, 10)
	_, ok := cs.Stream(buf)
	assert.False(t, ok)
}

func TestChain_NilCurrent(t *testing.T) {
	cs := &chainStreamer{}

	buf := make([][2]float64, 4)
	n, ok := cs.Stream(buf)

	assert.False(t, ok)
	assert.Zero(t, n)
	assert.NoError(t, cs.Err())
}
