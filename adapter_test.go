package chime

import (
	"math"
	"testing"

	"github.com/mdurel/chime/pipeline"
	"github.com/mdurel/chime/pipeline/pipelinetest"
)

func TestVolumeScaleConversion(t *testing.T) {
	tests := []struct {
		cubic  float64
		linear float64
	}{
		{0, 0},
		{0.5, 0.125},
		{1.0, 1.0},
		{2.0, 8.0},
	}

	for _, tt := range tests {
		if got := cubicToLinear(tt.cubic); math.Abs(got-tt.linear) > floatEpsilon {
			t.Errorf("cubicToLinear(%v) = %v, want %v", tt.cubic, got, tt.linear)
		}
		if got := linearToCubic(tt.linear); math.Abs(got-tt.cubic) > floatEpsilon {
			t.Errorf("linearToCubic(%v) = %v, want %v", tt.linear, got, tt.cubic)
		}
	}
}

func TestVolumeScaleRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 0.1, 0.33, 0.7, 1.0, 1.5, 2.0} {
		if got := linearToCubic(cubicToLinear(v)); math.Abs(got-v) > floatEpsilon {
			t.Errorf("round trip of %v = %v", v, got)
		}
	}
}

func TestAdapter_VolumeHeldUntilPreroll(t *testing.T) {
	fake := pipelinetest.New()
	ad := newAdapter(fake, testLogger())

	ad.setVolume(0.5)
	if fake.Volume() != 1.0 {
		t.Errorf("pipeline volume = %v before preroll, want untouched 1.0", fake.Volume())
	}

	ad.applyCachedAV()
	if math.Abs(fake.Volume()-0.125) > floatEpsilon {
		t.Errorf("pipeline volume = %v after preroll, want 0.125", fake.Volume())
	}

	// Running now, later changes go straight through.
	ad.setVolume(1.0)
	if math.Abs(fake.Volume()-1.0) > floatEpsilon {
		t.Errorf("pipeline volume = %v, want 1.0", fake.Volume())
	}
}

func TestAdapter_ItemChangeModeDemotion(t *testing.T) {
	withSub := mustItem(t, "file:///a.mkv")
	withSub.subURI = "file:///a.srt"
	plain := mustItem(t, "file:///b.mkv")

	tests := []struct {
		name string
		caps pipeline.Caps
		item *MediaItem
		mode ItemChangeMode
		want ItemChangeMode
	}{
		{"normal passes", pipeline.CapGaplessURIChange, plain, ItemChangeNormal, ItemChangeNormal},
		{"gapless with cap", pipeline.CapGaplessURIChange, plain, ItemChangeGapless, ItemChangeGapless},
		{"gapless without cap", 0, plain, ItemChangeGapless, ItemChangeNormal},
		{"instant with cap", pipeline.CapInstantURI, plain, ItemChangeInstant, ItemChangeInstant},
		{"instant without cap", 0, plain, ItemChangeInstant, ItemChangeNormal},
		{"gapless with suburi", pipeline.CapGaplessURIChange, withSub, ItemChangeGapless, ItemChangeNormal},
		{"instant with suburi", pipeline.CapInstantURI, withSub, ItemChangeInstant, ItemChangeNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := pipelinetest.New()
			fake.SetCaps(tt.caps)
			ad := newAdapter(fake, testLogger())

			if got := ad.chooseItemChangeMode(tt.item, tt.mode); got != tt.want {
				t.Errorf("chooseItemChangeMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdapter_PipelineSubURIBlocksGapless(t *testing.T) {
	fake := pipelinetest.New()
	ad := newAdapter(fake, testLogger())
	plain := mustItem(t, "file:///b.mkv")

	withSub := mustItem(t, "file:///a.mkv")
	withSub.subURI = "file:///a.srt"
	ad.applyPendingItem(withSub, ItemChangeNormal)

	// The previous item left a sub-URI in the pipeline.
	if got := ad.chooseItemChangeMode(plain, ItemChangeGapless); got != ItemChangeNormal {
		t.Errorf("chooseItemChangeMode() = %v, want normal", got)
	}
}

func TestAdapter_ApplyPendingItemInstant(t *testing.T) {
	fake := pipelinetest.New()
	ad := newAdapter(fake, testLogger())
	item := mustItem(t, "file:///c.mkv")

	ad.applyPendingItem(item, ItemChangeInstant)

	if fake.URI() != "file:///c.mkv" {
		t.Errorf("URI() = %q", fake.URI())
	}
	// Instant mode must not touch the sub-URI.
	if fake.SubURI() != "" {
		t.Errorf("SubURI() = %q, want empty", fake.SubURI())
	}
}

func TestAdapter_ApplyPendingItemNil(t *testing.T) {
	fake := pipelinetest.New()
	ad := newAdapter(fake, testLogger())
	item := mustItem(t, "file:///c.mkv")
	ad.applyPendingItem(item, ItemChangeNormal)

	ad.applyPendingItem(nil, ItemChangeNormal)

	// URI stays (pipeline keeps the last one), sub-URI is cleared.
	if fake.SubURI() != "" {
		t.Errorf("SubURI() = %q, want empty", fake.SubURI())
	}
}

func mustItem(t *testing.T, uri string) *MediaItem {
	t.Helper()
	item, err := NewMediaItem(uri)
	if err != nil {
		t.Fatal(err)
	}
	return item
}
