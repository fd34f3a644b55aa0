// Package history keeps the most recent transcriptions in a SQLite file.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	FileName        = "history.db"
	DefaultMaxItems = 50
)

type Item struct {
	ID        string
	CreatedAt time.Time
	Text      string
	Error     string
	Provider  string
	// AudioSeconds and Latency are zero for items written without them.
	AudioSeconds float64
	Latency      time.Duration
}

type Store struct {
	db       *sql.DB
	maxItems int
	clock    func() time.Time
}

func Open(ctx context.Context, path string, maxItems int) (*Store, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, maxItems: maxItems, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS history (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    created_at TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    audio_seconds REAL NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL DEFAULT 0
);`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one job outcome and drops the oldest rows beyond the cap.
// Empty text with no error is not recorded.
func (s *Store) Append(ctx context.Context, item Item) (Item, error) {
	if item.Text == "" && item.Error == "" {
		return item, nil
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.clock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return item, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history(id, created_at, text, error, provider, audio_seconds, latency_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CreatedAt.UTC().Format(time.RFC3339Nano), item.Text, item.Error, item.Provider,
		item.AudioSeconds, item.Latency.Milliseconds()); err != nil {
		return item, fmt.Errorf("insert history item: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE seq NOT IN (SELECT seq FROM history ORDER BY seq DESC LIMIT ?)`,
		s.maxItems); err != nil {
		return item, fmt.Errorf("trim history: %w", err)
	}
	return item, tx.Commit()
}

// List returns up to limit items, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = s.maxItems
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, text, error, provider, audio_seconds, latency_ms
		 FROM history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var created string
		var latencyMS int64
		if err := rows.Scan(&it.ID, &created, &it.Text, &it.Error, &it.Provider, &it.AudioSeconds, &latencyMS); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			it.CreatedAt = ts
		}
		it.Latency = time.Duration(latencyMS) * time.Millisecond
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	return err
}
