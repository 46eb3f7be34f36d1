package main

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/pkg/config"
	"github.com/xhad/agrigenius/pkg/knowledge"
	"github.com/xhad/agrigenius/pkg/llm"
	"github.com/xhad/agrigenius/pkg/loader"
	"github.com/xhad/agrigenius/pkg/pdftext"
	"github.com/xhad/agrigenius/pkg/processor"
	"github.com/xhad/agrigenius/pkg/qa"
	"github.com/xhad/agrigenius/pkg/scraper"
	"github.com/xhad/agrigenius/pkg/store"
)

// app carries the loaded configuration from the root Before hook into the
// subcommands.
type app struct {
	cfg *config.Config
}

func run(ctx context.Context, args []string) error {
	a := &app{}
	var configPath, logLevel, logFormat string

	cmd := &cli.Command{
		Name:           "agrigenius",
		Usage:          "Agriculture question answering over scraped pages and PDFs",
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				Sources:     cli.EnvVars("AGRIGENIUS_CONFIG"),
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "debug, info, warn or error",
				Sources:     cli.EnvVars("AGRIGENIUS_LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "text or json",
				Sources:     cli.EnvVars("AGRIGENIUS_LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return ctx, err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			if err := logging.Configure(cfg.Log); err != nil {
				return ctx, err
			}
			if err := cfg.Check(); err != nil {
				return ctx, err
			}
			a.cfg = cfg
			return logging.With(ctx, logging.Default()), nil
		},
		Commands: []*cli.Command{
			a.cmdServe(),
			a.cmdIngest(),
			a.cmdChat(),
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		logging.Default().Error("agrigenius failed", logging.ErrAttrs(err)...)
		return err
	}
	return nil
}

func (a *app) storeOptions() store.Options {
	idx := a.cfg.Index
	return store.Options{
		Backend:     idx.Backend,
		Path:        idx.Path,
		DatabaseURL: idx.DatabaseURL,
		TableName:   idx.TableName,
		VectorDim:   idx.VectorDim,
	}
}

// newLoader builds the loader and chunker. A non-nil progress is told about
// every source and crawled page.
func (a *app) newLoader(progress *ingestProgress) (*loader.Loader, *processor.Processor, error) {
	lc := a.cfg.Loader
	sc := scraper.ScraperConfig{
		MaxDepth:          lc.MaxDepth,
		RateLimit:         lc.RateLimit,
		IgnorePatterns:    lc.IgnorePatterns,
		AllowedExtensions: lc.AllowedExtensions,
		Timeout:           lc.Timeout,
	}
	if progress != nil {
		sc.OnProgress = progress.page
	}
	s, err := scraper.NewWithConfig(sc)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize scraper")
	}
	p, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    a.cfg.Processor.ChunkSize,
		ChunkOverlap: a.cfg.Processor.ChunkOverlap,
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize processor")
	}
	ld := loader.New(s, pdftext.New())
	if progress != nil {
		ld.OnSource = progress.source
	}
	return ld, p, nil
}

// openKnowledge loads the index, building it first when it does not exist.
// A non-nil progress receives ingestion events.
func (a *app) openKnowledge(ctx context.Context, progress *ingestProgress) (*knowledge.Base, error) {
	ec := a.cfg.Embedding
	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:  ec.Provider,
		Model:     ec.Model,
		BaseURL:   ec.BaseURL,
		APIKey:    ec.APIKey,
		BatchSize: ec.BatchSize,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize embedder")
	}

	ld, proc, err := a.newLoader(progress)
	if err != nil {
		return nil, err
	}

	vs, err := store.New(ctx, a.storeOptions())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open vector index")
	}

	opts := knowledge.Options{
		Store:     vs,
		Embedder:  embedder,
		Loader:    ld,
		Chunker:   proc,
		URLs:      a.cfg.Loader.URLs,
		PDFs:      a.cfg.Loader.PDFFiles,
		TopK:      a.cfg.Index.TopK,
		BatchSize: ec.BatchSize,
	}
	if progress != nil {
		opts.OnProgress = progress.stage
	}

	kb, err := knowledge.Open(ctx, opts)
	if err != nil {
		_ = vs.Close()
		return nil, err
	}
	return kb, nil
}

func (a *app) newPipeline(kb *knowledge.Base) (*qa.Pipeline, error) {
	lc := a.cfg.LLM
	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       lc.Model,
		Temperature: &lc.Temperature,
		MaxTokens:   lc.MaxTokens,
		BaseURL:     lc.BaseURL,
		APIKey:      lc.APIKey,
		Timeout:     lc.Timeout,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize chat engine")
	}
	return qa.New(kb.Retriever(), chat)
}

func corsOrigins(origins []string) string {
	return strings.Join(origins, ",")
}
