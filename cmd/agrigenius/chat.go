package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func (a *app) cmdChat() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions from the terminal",
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := a.cfg.RequireAPIKey(); err != nil {
				return err
			}

			kb, err := a.openKnowledge(ctx, newIngestProgress())
			if err != nil {
				return err
			}
			defer kb.Close()

			pipeline, err := a.newPipeline(kb)
			if err != nil {
				return err
			}

			color.Cyan("\nChat with AgriGenius (type 'exit' to quit)")

			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()
			assistantPrompt := color.New(color.FgCyan).PrintfFunc()
			sourceLine := color.New(color.Faint).PrintfFunc()

			for ctx.Err() == nil {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}

				query := strings.TrimSpace(scanner.Text())
				if query == "" {
					continue
				}
				if q := strings.ToLower(query); q == "exit" || q == "quit" {
					break
				}

				spinner := getSpinner(os.Stderr, " Thinking...")
				answer, err := pipeline.Ask(ctx, query)
				_ = spinner.Finish()
				fmt.Print("\r")

				if err != nil {
					color.Red("Error: %v\n", err)
					continue
				}
				assistantPrompt("\nAssistant: %s\n", answer.Text)
				for _, src := range answer.Sources {
					sourceLine("  source: %s\n", src)
				}
			}
			return nil
		},
	}
}
