// Package sqlite tracks collected research items and whether they have been
// indexed, using an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
	"github.com/poiesic/scholar/storage/sqlite/migrations"
)

// timeLayout keeps stored timestamps lexicographically sortable.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const selectColumns = `id, document_id, content_type, title, source, url, metadata, indexed, created_at, indexed_at`

// Ensure Store implements the interface.
var _ storage.CollectionStore = (*Store)(nil)

// Store is a SQLite-backed storage.CollectionStore.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore opens (or creates) the collections database in dataDir.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "collections.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// AddCollection inserts or refreshes a collected item keyed by DocumentID.
// An empty DocumentID is derived from content type, title and URL.
func (s *Store) AddCollection(ctx context.Context, c *storage.Collection) (int64, error) {
	if c == nil {
		return 0, errors.New("collection is required")
	}
	if !c.ContentType.Valid() {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidContentType, c.ContentType)
	}
	if strings.TrimSpace(c.Title) == "" {
		return 0, core.ErrEmptyTitle
	}
	if c.DocumentID == "" {
		c.DocumentID = core.DocumentID(&core.Document{ContentType: c.ContentType, Title: c.Title, URL: c.URL})
	}

	var metadata sql.NullString
	if c.Metadata != nil {
		data, err := json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshalling metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	created := s.now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO collections (document_id, content_type, title, source, url, metadata, indexed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			url = excluded.url,
			metadata = excluded.metadata,
			indexed = 0,
			indexed_at = NULL
		RETURNING id
	`, c.DocumentID, string(c.ContentType), c.Title, c.Source, c.URL, metadata, created.Format(timeLayout)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("adding collection: %w", err)
	}

	c.ID = id
	return id, nil
}

// GetCollection retrieves one item by ID.
func (s *Store) GetCollection(ctx context.Context, id int64) (*storage.Collection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM collections WHERE id = ?`, id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return c, err
}

// ListCollections lists items newest first, optionally filtered by type.
func (s *Store) ListCollections(ctx context.Context, contentType core.ContentType, limit, offset int) ([]*storage.Collection, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var rows *sql.Rows
	var err error
	if contentType == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+selectColumns+` FROM collections
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?
		`, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+selectColumns+` FROM collections
			WHERE content_type = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?
		`, string(contentType), limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return scanCollections(rows)
}

// MarkIndexed flags the given items as indexed.
func (s *Store) MarkIndexed(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE collections SET indexed = 1, indexed_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now().UTC().Format(timeLayout)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, now, id); err != nil {
			return fmt.Errorf("marking %d indexed: %w", id, err)
		}
	}
	return tx.Commit()
}

// SearchCollections matches q as a substring of title or source.
func (s *Store) SearchCollections(ctx context.Context, q string, limit int) ([]*storage.Collection, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + q + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM collections
		WHERE title LIKE ? OR source LIKE ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching collections: %w", err)
	}
	return scanCollections(rows)
}

// Statistics counts items by type, by indexed state, and over the last 7 days.
func (s *Store) Statistics(ctx context.Context) (*storage.CollectionStats, error) {
	stats := &storage.CollectionStats{ByType: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT content_type, COUNT(*) FROM collections GROUP BY content_type`)
	if err != nil {
		return nil, fmt.Errorf("counting by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ct string
		var n int
		if err := rows.Scan(&ct, &n); err != nil {
			return nil, err
		}
		stats.ByType[ct] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE indexed = 1`).Scan(&stats.Indexed)
	if err != nil {
		return nil, fmt.Errorf("counting indexed: %w", err)
	}
	stats.NotIndexed = stats.Total - stats.Indexed

	since := s.now().UTC().Add(-7 * 24 * time.Hour).Format(timeLayout)
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE created_at >= ?`, since).Scan(&stats.Recent7d)
	if err != nil {
		return nil, fmt.Errorf("counting recent: %w", err)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*storage.Collection, error) {
	var (
		c         storage.Collection
		ct        string
		metadata  sql.NullString
		indexed   int
		created   string
		indexedAt sql.NullString
	)
	if err := row.Scan(&c.ID, &c.DocumentID, &ct, &c.Title, &c.Source, &c.URL, &metadata, &indexed, &created, &indexedAt); err != nil {
		return nil, err
	}
	c.ContentType = core.ContentType(ct)
	c.Indexed = indexed == 1

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}

	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t

	if indexedAt.Valid {
		t, err := time.Parse(timeLayout, indexedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing indexed_at: %w", err)
		}
		c.IndexedAt = &t
	}
	return &c, nil
}

func scanCollections(rows *sql.Rows) ([]*storage.Collection, error) {
	defer rows.Close()
	var out []*storage.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
