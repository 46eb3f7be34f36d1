// Package store persists chunk embeddings and answers nearest-neighbour queries.
package store

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"

	"github.com/xhad/agrigenius/internal/types"
)

var (
	_ types.VectorStore = (*SQLiteStore)(nil)
	_ types.VectorStore = (*PGVectorStore)(nil)
)

// Options selects a backend.
type Options struct {
	Backend     string // "sqlite" | "pgvector"
	Path        string
	DatabaseURL string
	TableName   string
	VectorDim   int
}

// ErrUnknownBackend is returned for an unsupported index backend.
var ErrUnknownBackend = goerr.New("unknown index backend")

// New returns the configured store. A sqlite store whose directory already
// exists is opened; a missing one is left empty for a later Store call.
func New(ctx context.Context, opts Options) (types.VectorStore, error) {
	switch opts.Backend {
	case "", "sqlite":
		s := NewSQLite(opts.Path)
		ok, err := s.Exists(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := s.open(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "pgvector":
		return NewPGVector(ctx, PGVectorConfig{
			ConnString: opts.DatabaseURL,
			TableName:  opts.TableName,
			VectorDim:  opts.VectorDim,
		})
	}
	return nil, goerr.Wrap(ErrUnknownBackend, "new store", goerr.V("backend", opts.Backend))
}

// Reset removes the persisted index so the next run ingests again.
func Reset(ctx context.Context, opts Options) error {
	switch opts.Backend {
	case "", "sqlite":
		if err := os.RemoveAll(opts.Path); err != nil {
			return goerr.Wrap(err, "remove vector index", goerr.V("path", opts.Path))
		}
		return nil

	case "pgvector":
		s, err := NewPGVector(ctx, PGVectorConfig{
			ConnString: opts.DatabaseURL,
			TableName:  opts.TableName,
			VectorDim:  opts.VectorDim,
		})
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Reset(ctx)
	}
	return goerr.Wrap(ErrUnknownBackend, "reset store", goerr.V("backend", opts.Backend))
}
