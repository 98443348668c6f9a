package history

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mdurel/chime"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	// Every pooled connection would get its own empty memory database; pin
	// the pool to one connection so all statements see the same one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testItem(t *testing.T, uri string) *chime.MediaItem {
	t.Helper()
	item, err := chime.NewMediaItem(uri)
	if err != nil {
		t.Fatal(err)
	}
	return item
}

func TestRecordsPlayback(t *testing.T) {
	s := setupStore(t)
	base := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return base }

	first := testItem(t, "file:///music/one.flac")
	second := testItem(t, "file:///music/two.flac")

	s.PlayedItemChanged(first)
	s.PositionChanged(90 * time.Second)

	base = base.Add(2 * time.Minute)
	s.PlayedItemChanged(second)
	s.PositionChanged(10 * time.Second)
	s.StateChanged(chime.PlayerStopped)

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}

	// Newest first.
	if entries[0].URI != "file:///music/two.flac" {
		t.Errorf("entries[0].URI = %q", entries[0].URI)
	}
	if entries[0].PlayedFor != 10*time.Second {
		t.Errorf("entries[0].PlayedFor = %v, want 10s", entries[0].PlayedFor)
	}
	if !entries[0].Ended {
		t.Error("stopped entry should be ended")
	}

	if entries[1].URI != "file:///music/one.flac" {
		t.Errorf("entries[1].URI = %q", entries[1].URI)
	}
	if entries[1].PlayedFor != 90*time.Second {
		t.Errorf("entries[1].PlayedFor = %v, want 90s", entries[1].PlayedFor)
	}
}

func TestNilItemClosesRow(t *testing.T) {
	s := setupStore(t)

	s.PlayedItemChanged(testItem(t, "file:///music/one.flac"))
	s.PositionChanged(time.Minute)
	s.PlayedItemChanged(nil)

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if !entries[0].Ended {
		t.Error("row should be closed after nil item")
	}

	// Closing again must not touch the finished row.
	s.StateChanged(chime.PlayerStopped)
	again, _ := s.Recent(10)
	if again[0].PlayedFor != time.Minute {
		t.Errorf("PlayedFor = %v, want 1m", again[0].PlayedFor)
	}
}

func TestItemUpdatedRefreshesRow(t *testing.T) {
	s := setupStore(t)
	item := testItem(t, "file:///music/one.flac")

	s.PlayedItemChanged(item)
	s.ItemUpdated(item)

	entries, err := s.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Title != item.Title() {
		t.Errorf("Title = %q, want %q", entries[0].Title, item.Title())
	}

	// Updates for a different item are ignored.
	other := testItem(t, "file:///music/two.flac")
	s.ItemUpdated(other)
	entries, _ = s.Recent(1)
	if entries[0].URI != "file:///music/one.flac" {
		t.Errorf("URI = %q after unrelated update", entries[0].URI)
	}
}

func TestMostPlayed(t *testing.T) {
	s := setupStore(t)
	one := testItem(t, "file:///music/one.flac")
	two := testItem(t, "file:///music/two.flac")

	for i := 0; i < 3; i++ {
		s.PlayedItemChanged(one)
	}
	s.PlayedItemChanged(two)
	s.StateChanged(chime.PlayerStopped)

	counts, err := s.MostPlayed(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %d, want 2", len(counts))
	}
	if counts[0].URI != "file:///music/one.flac" || counts[0].Count != 3 {
		t.Errorf("counts[0] = %+v", counts[0])
	}
	if counts[1].Count != 1 {
		t.Errorf("counts[1] = %+v", counts[1])
	}
}

func TestStateChangesOtherThanStopIgnored(t *testing.T) {
	s := setupStore(t)
	s.PlayedItemChanged(testItem(t, "file:///music/one.flac"))

	s.StateChanged(chime.PlayerPaused)
	s.StateChanged(chime.PlayerPlaying)

	entries, err := s.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Ended {
		t.Error("pausing must not close the playback row")
	}
}
