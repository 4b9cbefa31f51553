package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so updated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ObjectInfo describes a stored object without its data.
type ObjectInfo struct {
	Bucket    string
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// URI returns the sqlite:// address of the object.
func (o ObjectInfo) URI() string {
	return Location{Scheme: "sqlite", Bucket: o.Bucket, Path: o.Path}.String()
}

// SQLiteStore keeps objects as blobs in a local SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite creates or opens the blob database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStore{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	query, args, err := sq.Select("data").
		From("objects").
		Where(sq.Eq{"bucket": loc.Bucket, "path": loc.Path}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.conn.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return data, nil
}

// Write implements Store. Existing objects are replaced.
func (s *SQLiteStore) Write(ctx context.Context, uri string, data []byte) error {
	loc, err := ParseURI(uri)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert("objects").
		Columns("bucket", "path", "data", "size", "updated_at").
		Values(loc.Bucket, loc.Path, data, len(data), time.Now().UTC().Format(timeLayout)).
		Suffix("ON CONFLICT(bucket, path) DO UPDATE SET data = excluded.data, size = excluded.size, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	return nil
}

// List returns the objects in bucket, most recently written first. limit <= 0
// returns all.
func (s *SQLiteStore) List(ctx context.Context, bucket string, limit int) ([]ObjectInfo, error) {
	b := sq.Select("bucket", "path", "size", "updated_at").
		From("objects").
		Where(sq.Eq{"bucket": bucket}).
		OrderBy("updated_at DESC", "path")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", bucket, err)
	}
	defer rows.Close()

	var out []ObjectInfo
	for rows.Next() {
		var o ObjectInfo
		var updated string
		if err := rows.Scan(&o.Bucket, &o.Path, &o.Size, &updated); err != nil {
			return nil, err
		}
		o.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, o)
	}
	return out, rows.Err()
}
