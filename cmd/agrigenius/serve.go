package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/pkg/server"
)

func (a *app) cmdServe() *cli.Command {
	var addr string

	return &cli.Command{
		Name:  "serve",
		Usage: "Load or build the index, then serve the chat page and POST /ask",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "HTTP listen address (default from config, :5001)",
				Sources:     cli.EnvVars("AGRIGENIUS_ADDR"),
				Destination: &addr,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := a.cfg.RequireAPIKey(); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			kb, err := a.openKnowledge(ctx, nil)
			if err != nil {
				return err
			}
			defer kb.Close()

			pipeline, err := a.newPipeline(kb)
			if err != nil {
				return err
			}

			srv, err := server.NewQAServer(pipeline, server.Config{
				Addr:        addr,
				CORSOrigins: corsOrigins(a.cfg.Server.CORSOrigins),
				Logger:      logging.From(ctx),
			})
			if err != nil {
				return err
			}
			return server.Run(ctx, srv, addr)
		},
	}
}
