package store

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/agrigenius/internal/models"
)

type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PGVectorStore keeps the index in a Postgres table with the pgvector extension.
type PGVectorStore struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func NewPGVector(ctx context.Context, config PGVectorConfig) (*PGVectorStore, error) {
	if config.TableName == "" {
		config.TableName = "agri_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, goerr.New("invalid table name", goerr.V("table", config.TableName))
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to database")
	}

	vs := &PGVectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return goerr.Wrap(err, "failed to create vector extension")
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			char_offset INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return goerr.Wrap(err, "failed to create table", goerr.V("table", vs.config.TableName))
	}

	for _, stmt := range indexStatements(vs.config.TableName) {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to create index", goerr.V("table", vs.config.TableName))
		}
	}

	return nil
}

// indexStatements replaces the old ivfflat index with HNSW. ivfflat built on
// an empty table has no trained lists, so a top-k query could return fewer
// than k rows.
func indexStatements(table string) []string {
	return []string{
		fmt.Sprintf(`DROP INDEX IF EXISTS %s_embedding_idx`, table),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_hnsw_idx
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
			table, table),
	}
}

// Exists reports whether the table already holds chunks.
func (vs *PGVectorStore) Exists(ctx context.Context) (bool, error) {
	var ok bool
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s)`, vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, q).Scan(&ok); err != nil {
		return false, goerr.Wrap(err, "failed to check table", goerr.V("table", vs.config.TableName))
	}
	return ok, nil
}

// Store inserts every chunk inside a single transaction.
func (vs *PGVectorStore) Store(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return goerr.New("chunks and vectors length mismatch",
			goerr.V("chunks", len(chunks)), goerr.V("vectors", len(vectors)))
	}

	// Begin transaction
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, chunk_index, char_offset, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		vs.config.TableName)

	for i, c := range chunks {
		if len(vectors[i]) != vs.config.VectorDim {
			return goerr.New("vector dimension mismatch",
				goerr.V("chunk", c.ID), goerr.V("want", vs.config.VectorDim), goerr.V("got", len(vectors[i])))
		}

		_, err = tx.Exec(ctx, stmt,
			c.ID,
			c.Source,
			c.Index,
			c.Offset,
			sanitizeUTF8(c.Text),
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return goerr.Wrap(err, "failed to insert chunk", goerr.V("chunk", c.ID))
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit transaction")
	}

	return nil
}

func (vs *PGVectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.ScoredChunk, error) {
	query := fmt.Sprintf(`
		SELECT id, source, chunk_index, char_offset, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chunks")
	}
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var (
			hit   models.ScoredChunk
			score float64
		)
		err := rows.Scan(
			&hit.ID,
			&hit.Source,
			&hit.Index,
			&hit.Offset,
			&hit.Text,
			&score,
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan row")
		}
		hit.Score = float32(score)
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

func (vs *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	q := fmt.Sprintf(`SELECT count(*) FROM %s`, vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "failed to count chunks")
	}
	return n, nil
}

// Reset drops every stored chunk.
func (vs *PGVectorStore) Reset(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, vs.config.TableName))
	if err != nil {
		return goerr.Wrap(err, "failed to truncate table", goerr.V("table", vs.config.TableName))
	}
	return nil
}

func (vs *PGVectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

// sanitizeUTF8 drops invalid bytes; Postgres rejects them in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
