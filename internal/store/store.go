// Package store persists encore state in SQLite.
//
// Two tables back the persistence ports used by the rest of the module: a
// key/value table holding the JSON snapshots of player and playlist state,
// and an image table holding decoded artwork keyed by URL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Keys of the persisted snapshots.
const (
	PlayerStateKey = "player-state"
	PlaylistKey    = "playlist-data"
)

// ErrNotFound is returned when a key or image is not stored.
var ErrNotFound = errors.New("store: not found")

// KV is the key/value persistence port.
type KV interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, value string) error
}

// Images is the persistent tier of the image cache.
type Images interface {
	GetImage(ctx context.Context, url string) ([]byte, error)
	PutImage(ctx context.Context, url string, data []byte) error
}

// DB is a SQLite-backed KV and Images implementation.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" in
// tests.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases consistent and serializes
	// writers on file databases
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -64000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS images (
			url TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			fetched_at INTEGER NOT NULL
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Load returns the value stored under key, or ErrNotFound.
func (d *DB) Load(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load %q: %w", key, err)
	}
	return value, nil
}

// Save stores value under key, replacing any previous value.
func (d *DB) Save(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := d.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	return nil
}

// GetImage returns the stored bytes for url, or ErrNotFound.
func (d *DB) GetImage(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT data FROM images WHERE url = ?`, url).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return data, nil
}

// PutImage stores the bytes for url.
func (d *DB) PutImage(ctx context.Context, url string, data []byte) error {
	query := `
		INSERT INTO images (url, data, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at
	`
	if _, err := d.db.ExecContext(ctx, query, url, data, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}
	return nil
}

// ImageCount returns the number of stored images.
func (d *DB) ImageCount(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return n, nil
}
