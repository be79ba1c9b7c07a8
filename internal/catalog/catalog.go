// Package catalog mirrors completed downloads into a SQLite database so
// history can be queried without scanning the audit files.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lvcoi/ytbatch/internal/model"
)

// Entry is one completed download.
type Entry struct {
	ID           int64
	ItemID       string
	Config       model.Configuration
	FileName     string
	FilePath     string
	SizeMB       float64
	Author       string
	MediaType    string
	RunID        string
	DownloadedAt time.Time
}

// Key returns the identity of the entry.
func (e Entry) Key() model.Key {
	return model.Key{ItemID: e.ItemID, Config: e.Config}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS downloads (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id        TEXT NOT NULL,
    format         TEXT NOT NULL,
    quality        TEXT NOT NULL,
    file_name      TEXT NOT NULL DEFAULT '',
    file_path      TEXT NOT NULL DEFAULT '',
    size_mb        REAL NOT NULL DEFAULT 0,
    author         TEXT NOT NULL DEFAULT '',
    media_type     TEXT NOT NULL DEFAULT 'video',
    run_id         TEXT NOT NULL DEFAULT '',
    downloaded_at  DATETIME NOT NULL,
    UNIQUE(item_id, format, quality)
);

CREATE INDEX IF NOT EXISTS idx_downloads_downloaded_at ON downloads(downloaded_at);
CREATE INDEX IF NOT EXISTS idx_downloads_run_id ON downloads(run_id);
`

const upsertSQL = `
INSERT INTO downloads (
    item_id, format, quality, file_name, file_path,
    size_mb, author, media_type, run_id, downloaded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(item_id, format, quality) DO UPDATE SET
    file_name=excluded.file_name, file_path=excluded.file_path,
    size_mb=excluded.size_mb, author=excluded.author,
    media_type=excluded.media_type, run_id=excluded.run_id,
    downloaded_at=excluded.downloaded_at
`

// Catalog wraps an SQLite connection.
type Catalog struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog at %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Record upserts entries in one transaction. A later download of the same
// item and configuration replaces the earlier row.
func (c *Catalog) Record(ctx context.Context, entries []Entry) error {
	if c == nil || c.db == nil {
		return fmt.Errorf("catalog not initialized")
	}
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.Config == nil {
			return fmt.Errorf("recording %s: missing configuration", e.ItemID)
		}
		mediaType := e.MediaType
		if mediaType == "" {
			mediaType = ClassifyMediaType(e.Author, e.Config.Format() == model.FormatMP3)
		}
		if _, err := stmt.ExecContext(ctx,
			e.ItemID, e.Config.Format().String(), e.Config.QualityLabel(), e.FileName, e.FilePath,
			e.SizeMB, e.Author, mediaType, e.RunID, e.DownloadedAt.UTC(),
		); err != nil {
			return fmt.Errorf("recording %s: %w", e.ItemID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing catalog: %w", err)
	}
	return nil
}

// List returns entries, newest first.
func (c *Catalog) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("catalog not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, item_id, format, quality, file_name, file_path,
			size_mb, author, media_type, run_id, downloaded_at
		FROM downloads
		ORDER BY downloaded_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying downloads: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var format, quality string
		if err := rows.Scan(
			&e.ID, &e.ItemID, &format, &quality, &e.FileName, &e.FilePath,
			&e.SizeMB, &e.Author, &e.MediaType, &e.RunID, &e.DownloadedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning download row: %w", err)
		}
		cfg, err := model.ParseConfiguration(format, quality)
		if err != nil {
			return nil, fmt.Errorf("download row %d: %w", e.ID, err)
		}
		e.Config = cfg
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of entries.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	if c == nil || c.db == nil {
		return 0, fmt.Errorf("catalog not initialized")
	}
	var count int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting downloads: %w", err)
	}
	return count, nil
}

// Has reports whether key was downloaded before.
func (c *Catalog) Has(ctx context.Context, key model.Key) (bool, error) {
	if c == nil || c.db == nil {
		return false, fmt.Errorf("catalog not initialized")
	}
	if key.Config == nil {
		return false, nil
	}
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM downloads WHERE item_id = ? AND format = ? AND quality = ?",
		key.ItemID, key.Config.Format().String(), key.Config.QualityLabel(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", key, err)
	}
	return n > 0, nil
}
