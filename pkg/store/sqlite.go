package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/xhad/agrigenius/internal/models"
)

const (
	schemaVersion = "1"
	dbFileName    = "index.db"
	buildSuffix   = ".building"
)

var (
	// ErrNotFound is returned when opening an index directory that does not exist.
	ErrNotFound = goerr.New("vector index not found")
	// ErrCorrupt is returned when the index directory exists but cannot be read as an index.
	ErrCorrupt = goerr.New("vector index is corrupt")
	// ErrAlreadyBuilt is returned by Store on an index that already holds data.
	ErrAlreadyBuilt = goerr.New("vector index already built")
)

var schema = []string{`
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`, `
CREATE TABLE chunks (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	source      TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	char_offset INTEGER NOT NULL,
	content     TEXT NOT NULL,
	dimension   INTEGER NOT NULL,
	vector      BLOB NOT NULL
)`,
}

// SQLiteStore keeps the index in a directory holding one SQLite file. The
// directory only appears once a build has committed, so its presence means a
// complete index.
type SQLiteStore struct {
	path string

	mu      sync.RWMutex
	db      *sql.DB
	entries []entry
}

// NewSQLite returns a store rooted at path without touching the filesystem.
// The path is cleaned so the build directory is always a sibling of it.
func NewSQLite(path string) *SQLiteStore {
	return &SQLiteStore{path: filepath.Clean(path)}
}

// OpenSQLite opens an existing index and loads it into memory.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	s := NewSQLite(path)
	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

// Exists reports whether the index directory is present. Its content is not checked.
func (s *SQLiteStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, goerr.Wrap(err, "stat vector index", goerr.V("path", s.path))
}

// Store writes all chunks in one go. The data lands in a sibling build
// directory first and is renamed into place only after the commit succeeds.
func (s *SQLiteStore) Store(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return goerr.New("chunks and vectors length mismatch",
			goerr.V("chunks", len(chunks)), goerr.V("vectors", len(vectors)))
	}
	if ok, err := s.Exists(ctx); err != nil {
		return err
	} else if ok {
		return goerr.Wrap(ErrAlreadyBuilt, "store", goerr.V("path", s.path))
	}

	tmp := s.path + buildSuffix
	if err := os.RemoveAll(tmp); err != nil {
		return goerr.Wrap(err, "remove stale build", goerr.V("path", tmp))
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return goerr.Wrap(err, "create build directory", goerr.V("path", tmp))
	}

	if err := writeIndex(ctx, filepath.Join(tmp, dbFileName), chunks, vectors); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			os.RemoveAll(tmp)
			return goerr.Wrap(err, "create parent directory", goerr.V("path", dir))
		}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.RemoveAll(tmp)
		return goerr.Wrap(err, "publish vector index", goerr.V("path", s.path))
	}

	return s.open(ctx)
}

func writeIndex(ctx context.Context, file string, chunks []models.Chunk, vectors [][]float32) error {
	db, err := sql.Open("sqlite", file+"?_pragma=synchronous(FULL)")
	if err != nil {
		return goerr.Wrap(err, "failed to open database", goerr.V("file", file))
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, ddl := range schema {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return goerr.Wrap(err, "failed to create schema")
		}
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	meta := map[string]string{
		"schema_version": schemaVersion,
		"dimension":      strconv.Itoa(dim),
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return goerr.Wrap(err, "failed to write meta", goerr.V("key", k))
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source, chunk_index, char_offset, content, dimension, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	for i, c := range chunks {
		if len(vectors[i]) == 0 || len(vectors[i]) != dim {
			return goerr.New("vector dimension mismatch",
				goerr.V("chunk", c.ID), goerr.V("want", dim), goerr.V("got", len(vectors[i])))
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Index, c.Offset,
			sanitizeUTF8(c.Text), dim, vectorToBlob(vectors[i])); err != nil {
			return goerr.Wrap(err, "failed to insert chunk", goerr.V("chunk", c.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit")
	}
	return nil
}

func (s *SQLiteStore) open(ctx context.Context) error {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return goerr.Wrap(ErrNotFound, "open vector index", goerr.V("path", s.path))
	}
	if err != nil {
		return goerr.Wrap(err, "stat vector index", goerr.V("path", s.path))
	}
	if !info.IsDir() {
		return goerr.Wrap(ErrCorrupt, "index path is not a directory", goerr.V("path", s.path))
	}

	file := filepath.Join(s.path, dbFileName)
	if _, err := os.Stat(file); err != nil {
		return goerr.Wrap(ErrCorrupt, "index database missing", goerr.V("file", file))
	}

	db, err := sql.Open("sqlite", file+"?_pragma=query_only(1)")
	if err != nil {
		return goerr.Wrap(err, "failed to open database", goerr.V("file", file))
	}

	var version string
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		db.Close()
		return goerr.Wrap(ErrCorrupt, "read schema version", goerr.V("file", file), goerr.V("cause", err.Error()))
	}
	if version != schemaVersion {
		db.Close()
		return goerr.Wrap(ErrCorrupt, "unsupported schema version", goerr.V("version", version))
	}

	entries, err := loadEntries(ctx, db)
	if err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		s.db.Close()
	}
	s.db = db
	s.entries = entries
	return nil
}

func loadEntries(ctx context.Context, db *sql.DB) ([]entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, source, chunk_index, char_offset, content, dimension, vector
		FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, goerr.Wrap(ErrCorrupt, "failed to query chunks", goerr.V("cause", err.Error()))
	}
	defer rows.Close()

	var entries []entry
	for rows.Next() {
		var (
			e    entry
			dim  int
			blob []byte
		)
		if err := rows.Scan(&e.chunk.ID, &e.chunk.Source, &e.chunk.Index, &e.chunk.Offset,
			&e.chunk.Text, &dim, &blob); err != nil {
			return nil, goerr.Wrap(err, "failed to scan row")
		}
		e.vector, err = blobToVector(blob)
		if err != nil || len(e.vector) != dim {
			return nil, goerr.Wrap(ErrCorrupt, "bad vector", goerr.V("chunk", e.chunk.ID))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "error iterating rows")
	}
	return entries, nil
}

// Query returns the limit chunks closest to embedding by cosine similarity.
func (s *SQLiteStore) Query(_ context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, goerr.New("query vector is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, goerr.Wrap(ErrNotFound, "query before open", goerr.V("path", s.path))
	}
	if len(s.entries) > 0 && len(s.entries[0].vector) != len(embedding) {
		return nil, goerr.New("query dimension mismatch",
			goerr.V("want", len(s.entries[0].vector)), goerr.V("got", len(embedding)))
	}

	return topK(s.entries, embedding, limit), nil
}

func (s *SQLiteStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.entries = nil
	return err
}
