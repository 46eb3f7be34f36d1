package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/pkg/config"
	"github.com/xhad/agrigenius/pkg/server"
	"github.com/xhad/agrigenius/pkg/waste"
)

func run(ctx context.Context, args []string) error {
	var cfg *config.Config
	var configPath, logLevel, logFormat, dataset string

	train := func(ctx context.Context) (*waste.Model, error) {
		path := cfg.Waste.DatasetPath
		if dataset != "" {
			path = dataset
		}
		ds, err := waste.LoadCSV(path)
		if err != nil {
			return nil, err
		}
		return waste.Train(ctx, ds, waste.TrainConfig{
			NTrees:         cfg.Waste.NTrees,
			TestSize:       cfg.Waste.TestSize,
			Seed:           cfg.Waste.Seed,
			MaxDepth:       cfg.Waste.MaxDepth,
			MinSamplesLeaf: cfg.Waste.MinSamplesLeaf,
		})
	}

	var addr string
	serve := &cli.Command{
		Name:  "serve",
		Usage: "Train on the dataset, then serve POST /waste_predict",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "HTTP listen address (default from config, :5000)",
				Sources:     cli.EnvVars("WASTEPREDICT_ADDR"),
				Destination: &addr,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			if addr == "" {
				addr = cfg.Waste.Addr
			}
			model, err := train(ctx)
			if err != nil {
				return err
			}
			predictor, err := waste.NewPredictor(model, cfg.Waste.LenientCategories)
			if err != nil {
				return err
			}
			srv, err := server.NewWasteServer(predictor, server.Config{
				Addr:        addr,
				CORSOrigins: strings.Join(cfg.Server.CORSOrigins, ","),
				Logger:      logging.From(ctx),
			})
			if err != nil {
				return err
			}
			return server.Run(ctx, srv, addr)
		},
	}

	trainOnly := &cli.Command{
		Name:  "train",
		Usage: "Train on the dataset and print the schema and held-out metrics",
		Action: func(ctx context.Context, _ *cli.Command) error {
			model, err := train(ctx)
			if err != nil {
				return err
			}
			color.Green("✓ Trained on %d rows, %d held out\n", model.Metrics().TrainRows, model.Metrics().TestRows)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"schema":  model.Schema(),
				"metrics": model.Metrics(),
			})
		},
	}

	cmd := &cli.Command{
		Name:           "wastepredict",
		Usage:          "Agricultural waste prediction service",
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
				Name:        "dataset",
				Usage:       "CSV to train on (default from config)",
				Sources:     cli.EnvVars("WASTEPREDICT_DATASET"),
				Destination: &dataset,
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
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return ctx, err
			}
			if logLevel != "" {
				loaded.Log.Level = logLevel
			}
			if logFormat != "" {
				loaded.Log.Format = logFormat
			}
			if err := logging.Configure(loaded.Log); err != nil {
				return ctx, err
			}
			if err := loaded.Check(); err != nil {
				return ctx, err
			}
			cfg = loaded
			return logging.With(ctx, logging.Default()), nil
		},
		Commands: []*cli.Command{serve, trainOnly},
	}

	if err := cmd.Run(ctx, args); err != nil {
		logging.Default().Error("wastepredict failed", logging.ErrAttrs(err)...)
		return err
	}
	return nil
}
