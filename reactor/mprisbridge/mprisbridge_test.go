//go:build linux

package mprisbridge

import (
	"testing"
	"time"

	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/mdurel/chime"
)

func TestTrackIDStable(t *testing.T) {
	a, err := chime.NewMediaItem("file:///music/a.flac")
	if err != nil {
		t.Fatal(err)
	}
	b, err := chime.NewMediaItem("file:///music/a.flac")
	if err != nil {
		t.Fatal(err)
	}

	if trackID(a) != trackID(b) {
		t.Error("same uri should map to the same track id")
	}
	if got := trackID(a); got[:30] != "/org/mpris/MediaPlayer2/Track/" {
		t.Errorf("track id %q is not under the MPRIS track path", got)
	}
}

func TestPlaybackStatusMapping(t *testing.T) {
	tests := []struct {
		state chime.PlayerState
		want  types.PlaybackStatus
	}{
		{chime.PlayerStopped, types.PlaybackStatusStopped},
		{chime.PlayerBuffering, types.PlaybackStatusPaused},
		{chime.PlayerPaused, types.PlaybackStatusPaused},
		{chime.PlayerPlaying, types.PlaybackStatusPlaying},
	}

	for _, tt := range tests {
		b := New("chime", "Chime")
		b.StateChanged(tt.state)
		got, err := (&playerAdapter{bridge: b}).PlaybackStatus()
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("status for %v = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSnapshotFollowsCallbacks(t *testing.T) {
	b := New("chime", "Chime")
	b.PositionChanged(90 * time.Second)
	b.VolumeChanged(0.4)
	b.SpeedChanged(1.25)

	pa := &playerAdapter{bridge: b}
	if pos, _ := pa.Position(); pos != (90 * time.Second).Microseconds() {
		t.Errorf("Position() = %d", pos)
	}
	if vol, _ := pa.Volume(); vol != 0.4 {
		t.Errorf("Volume() = %v", vol)
	}
	if rate, _ := pa.Rate(); rate != 1.25 {
		t.Errorf("Rate() = %v", rate)
	}
}
