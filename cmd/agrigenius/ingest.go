package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/pkg/processor"
	"github.com/xhad/agrigenius/pkg/store"
)

func (a *app) cmdIngest() *cli.Command {
	var force, verify bool

	return &cli.Command{
		Name:  "ingest",
		Usage: "Build the vector index from the configured URLs and PDFs and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "Remove an existing index and build it again",
				Destination: &force,
			},
			&cli.BoolFlag{
				Name:        "verify",
				Usage:       "Load and chunk the sources, check the chunks rebuild each text, store nothing",
				Destination: &verify,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			if verify {
				return a.verifyChunks(ctx)
			}

			opts := a.storeOptions()
			if force {
				if err := store.Reset(ctx, opts); err != nil {
					return err
				}
				logging.From(ctx).Info("removed existing vector index", "backend", opts.Backend, "path", opts.Path)
			}

			color.Blue("\nBuilding knowledge base from %d URLs and %d PDFs\n",
				len(a.cfg.Loader.URLs), len(a.cfg.Loader.PDFFiles))

			kb, err := a.openKnowledge(ctx, newIngestProgress())
			if err != nil {
				return err
			}
			defer kb.Close()

			n, err := kb.Count(ctx)
			if err != nil {
				return err
			}
			if !kb.Ingested() {
				color.Yellow("Index already present (%d chunks). Use --force to rebuild.\n", n)
				return nil
			}
			color.Green("✓ Index ready with %d chunks\n", n)
			return nil
		},
	}
}

// verifyChunks checks that every loaded document is covered by its chunks
// without gaps.
func (a *app) verifyChunks(ctx context.Context) error {
	ld, proc, err := a.newLoader(nil)
	if err != nil {
		return err
	}
	docs, err := ld.Load(ctx, a.cfg.Loader.URLs, a.cfg.Loader.PDFFiles)
	if err != nil {
		return err
	}
	chunks, err := proc.Process(docs)
	if err != nil {
		return err
	}

	bySource := map[string][]string{}
	for _, c := range chunks {
		bySource[c.Source] = append(bySource[c.Source], c.Text)
	}

	overlap := proc.Config().ChunkOverlap
	for _, d := range docs {
		windows := bySource[d.Source]
		if processor.Reassemble(windows, overlap) != d.Content {
			return goerr.New("chunks do not rebuild document", goerr.V("source", d.Source))
		}
		color.Green("✓ %s: %d chars, %d chunks\n", d.Source, len([]rune(d.Content)), len(windows))
	}
	return nil
}
