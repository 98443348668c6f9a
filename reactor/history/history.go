// Package history records what a player actually played into a SQLite
// database. It attaches as a reactor: every played-item change opens a row,
// position updates keep track of how far playback got, and stopping or
// switching away closes the row. The database doubles as a query surface for
// "recently played" and "most played" style listings.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mdurel/chime"
)

const (
	appName    = "chime"
	dbFileName = "history.db"
)

// Store is a chime.Reactor persisting playback history.
type Store struct {
	chime.ReactorBase

	db  *sql.DB
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	rowID    int64
	item     *chime.MediaItem
	position time.Duration
}

// Entry is one playback record.
type Entry struct {
	ID        int64
	URI       string
	Title     string
	Duration  time.Duration
	StartedAt time.Time
	EndedAt   time.Time
	Ended     bool
	PlayedFor time.Duration
}

// PlayCount aggregates how often a URI was played.
type PlayCount struct {
	URI   string
	Title string
	Count int
}

// Open creates a store backed by the default XDG data file.
func Open(logger *slog.Logger) (*Store, error) {
	path, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return OpenPath(path, logger)
}

// OpenPath creates a store backed by the given database file.
func OpenPath(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store over an already opened database.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{
		db:  db,
		log: logger.With("reactor", "history"),
		now: time.Now,
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uri TEXT NOT NULL,
			title TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			last_position_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_history_started_at ON play_history(started_at);
		CREATE INDEX IF NOT EXISTS idx_history_uri ON play_history(uri);
	`)
	return err
}

// Unprepare closes the open row and the database.
func (s *Store) Unprepare() error {
	s.mu.Lock()
	s.closeRowLocked()
	s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) PlayedItemChanged(item *chime.MediaItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeRowLocked()
	if item == nil {
		return
	}

	res, err := s.db.Exec(
		`INSERT INTO play_history (uri, title, duration_ms, started_at) VALUES (?, ?, ?, ?)`,
		item.URI(), item.Title(), item.Duration().Milliseconds(), s.now().Unix(),
	)
	if err != nil {
		s.log.Error("record playback start", "uri", item.URI(), "err", err)
		return
	}
	s.rowID, _ = res.LastInsertId()
	s.item = item
	s.position = 0
}

func (s *Store) PositionChanged(position time.Duration) {
	s.mu.Lock()
	s.position = position
	s.mu.Unlock()
}

func (s *Store) StateChanged(state chime.PlayerState) {
	if state != chime.PlayerStopped {
		return
	}
	s.mu.Lock()
	s.closeRowLocked()
	s.mu.Unlock()
}

// ItemUpdated refreshes title and duration once the pipeline reports tags.
func (s *Store) ItemUpdated(item *chime.MediaItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rowID == 0 || s.item != item {
		return
	}
	_, err := s.db.Exec(
		`UPDATE play_history SET title = ?, duration_ms = ? WHERE id = ?`,
		item.Title(), item.Duration().Milliseconds(), s.rowID,
	)
	if err != nil {
		s.log.Error("update playback row", "err", err)
	}
}

// closeRowLocked stamps the end time and final position on the open row.
func (s *Store) closeRowLocked() {
	if s.rowID == 0 {
		return
	}
	_, err := s.db.Exec(
		`UPDATE play_history SET ended_at = ?, last_position_ms = ? WHERE id = ?`,
		s.now().Unix(), s.position.Milliseconds(), s.rowID,
	)
	if err != nil {
		s.log.Error("close playback row", "err", err)
	}
	s.rowID = 0
	s.item = nil
	s.position = 0
}

// Recent returns the latest playback records, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, uri, title, duration_ms, started_at, ended_at, last_position_ms
		FROM play_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			startedAt  int64
			endedAt    sql.NullInt64
			positionMS int64
		)
		if err := rows.Scan(&e.ID, &e.URI, &e.Title, &durationMS, &startedAt, &endedAt, &positionMS); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			e.EndedAt = time.Unix(endedAt.Int64, 0)
			e.Ended = true
		}
		e.PlayedFor = time.Duration(positionMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MostPlayed returns URIs ordered by play count.
func (s *Store) MostPlayed(limit int) ([]PlayCount, error) {
	rows, err := s.db.Query(`
		SELECT uri, MAX(title), COUNT(*) AS plays
		FROM play_history
		GROUP BY uri
		ORDER BY plays DESC, uri
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []PlayCount
	for rows.Next() {
		var pc PlayCount
		if err := rows.Scan(&pc.URI, &pc.Title, &pc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, pc)
	}
	return counts, rows.Err()
}
