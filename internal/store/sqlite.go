package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vampirenirmal/storyforge/internal/consistency"
)

const schema = `
CREATE TABLE IF NOT EXISTS relations (
	story_id   INTEGER NOT NULL,
	source     TEXT    NOT NULL,
	target     TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	PRIMARY KEY (story_id, source, target, kind)
);

CREATE TABLE IF NOT EXISTS timeline_events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	story_id INTEGER NOT NULL,
	day      INTEGER NOT NULL,
	text     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_timeline_story ON timeline_events (story_id, day, id);

CREATE TABLE IF NOT EXISTS emotions (
	story_id  INTEGER NOT NULL,
	character TEXT    NOT NULL,
	label     TEXT    NOT NULL,
	PRIMARY KEY (story_id, character)
);
`

// SQLite is a sqlite-backed consistency store. When the database becomes
// unreachable the store flips to unavailable, which the relationship layer
// treats as a signal to degrade to a no-op instead of failing checks.
type SQLite struct {
	db        *sqlx.DB
	logger    *slog.Logger
	available atomic.Bool
}

func NewSQLite(dsn string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Connect("sqlite3", fmt.Sprintf(
		"file:%s?_journal_mode=wal&_busy_timeout=5000&_synchronous=normal", dsn))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	// SQLite allows one writer; a single connection sidesteps SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initializing sqlite schema: %w", err)
	}

	s := &SQLite{db: db, logger: logger.With("source", "store.SQLite")}
	s.available.Store(true)
	return s, nil
}

// Available reports whether the backing database is reachable.
func (s *SQLite) Available() bool {
	if !s.available.Load() {
		return false
	}
	if err := s.db.Ping(); err != nil {
		s.logger.Warn("sqlite store unreachable, degrading", "error", err)
		s.available.Store(false)
		return false
	}
	return true
}

func (s *SQLite) Close() error {
	s.available.Store(false)
	return s.db.Close()
}

func (s *SQLite) Kinds(ctx context.Context, storyID int64, from, to string) ([]consistency.Kind, error) {
	var kinds []consistency.Kind
	err := s.db.SelectContext(ctx, &kinds,
		`SELECT kind FROM relations WHERE story_id = ? AND source = ? AND target = ?`,
		storyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select relations: %w", err)
	}
	return kinds, nil
}

func (s *SQLite) Put(ctx context.Context, storyID int64, from, to string, kind consistency.Kind) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO relations (story_id, source, target, kind) VALUES (?, ?, ?, ?)`,
		storyID, from, to, kind)
	if err != nil {
		return fmt.Errorf("insert relation: %w", err)
	}
	return nil
}

func (s *SQLite) Events(ctx context.Context, storyID int64) ([]consistency.Event, error) {
	var events []consistency.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT day, text FROM timeline_events WHERE story_id = ? ORDER BY day, id`,
		storyID)
	if err != nil {
		return nil, fmt.Errorf("select timeline: %w", err)
	}
	return events, nil
}

func (s *SQLite) Append(ctx context.Context, storyID int64, event consistency.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timeline_events (story_id, day, text) VALUES (?, ?, ?)`,
		storyID, event.Day, event.Text)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

func (s *SQLite) Emotion(ctx context.Context, storyID int64, character string) (consistency.Label, bool, error) {
	var labels []consistency.Label
	err := s.db.SelectContext(ctx, &labels,
		`SELECT label FROM emotions WHERE story_id = ? AND character = ?`,
		storyID, character)
	if err != nil {
		return "", false, fmt.Errorf("select emotion: %w", err)
	}
	if len(labels) == 0 {
		return "", false, nil
	}
	return labels[0], true, nil
}

func (s *SQLite) SetEmotion(ctx context.Context, storyID int64, character string, label consistency.Label) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emotions (story_id, character, label) VALUES (?, ?, ?)
		 ON CONFLICT (story_id, character) DO UPDATE SET label = excluded.label`,
		storyID, character, label)
	if err != nil {
		return fmt.Errorf("upsert emotion: %w", err)
	}
	return nil
}
