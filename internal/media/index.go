package media

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"line2discord/internal/domain"
)

// Index records every stored object in SQLite so the janitor and the
// "media" CLI can find them again.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenIndex(dbPath string, logger *slog.Logger) (*Index, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create index directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open media index: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &Index{db: db, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("media index migration failed: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	_, err := i.db.Exec(`
	CREATE TABLE IF NOT EXISTS media (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		kind          TEXT NOT NULL,
		size          INTEGER NOT NULL DEFAULT 0,
		content_type  TEXT,
		relative_path TEXT NOT NULL,
		backend       TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_media_created ON media(created_at_ms);
	`)
	return err
}

func (i *Index) Close() error { return i.db.Close() }

func (i *Index) Record(ctx context.Context, m domain.StoredMedia) error {
	_, err := i.db.ExecContext(ctx,
		`INSERT INTO media (id, name, kind, size, content_type, relative_path, backend, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, string(m.Kind), m.Size, m.ContentType, m.RelativePath, m.Backend, m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record media %s: %w", m.Name, err)
	}
	return nil
}

// List returns the newest entries first. limit <= 0 returns everything.
func (i *Index) List(ctx context.Context, limit int) ([]domain.StoredMedia, error) {
	q := `SELECT id, name, kind, size, content_type, relative_path, backend, created_at_ms
	      FROM media ORDER BY created_at_ms DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return i.query(ctx, q, args...)
}

// OlderThan returns entries created before cutoff, oldest first.
func (i *Index) OlderThan(ctx context.Context, cutoff time.Time) ([]domain.StoredMedia, error) {
	return i.query(ctx,
		`SELECT id, name, kind, size, content_type, relative_path, backend, created_at_ms
		 FROM media WHERE created_at_ms < ? ORDER BY created_at_ms ASC`,
		cutoff.UnixMilli(),
	)
}

func (i *Index) Remove(ctx context.Context, id string) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	return err
}

// Stats returns the number of indexed objects and their total size.
func (i *Index) Stats(ctx context.Context) (count int, totalBytes int64, err error) {
	err = i.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM media`).Scan(&count, &totalBytes)
	return count, totalBytes, err
}

func (i *Index) query(ctx context.Context, q string, args ...any) ([]domain.StoredMedia, error) {
	rows, err := i.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoredMedia
	for rows.Next() {
		var (
			m           domain.StoredMedia
			kind        string
			contentType sql.NullString
			createdMs   int64
		)
		if err := rows.Scan(&m.ID, &m.Name, &kind, &m.Size, &contentType, &m.RelativePath, &m.Backend, &createdMs); err != nil {
			return nil, err
		}
		m.Kind = domain.MessageKind(kind)
		m.ContentType = contentType.String
		m.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, m)
	}
	return out, rows.Err()
}
