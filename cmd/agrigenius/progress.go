package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/agrigenius/internal/models"
	"github.com/xhad/agrigenius/pkg/knowledge"
)

func getProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// ingestProgress turns knowledge and loader callbacks into terminal output.
type ingestProgress struct {
	w       io.Writer
	ok      *color.Color
	spinner *progressbar.ProgressBar
	embed   *progressbar.ProgressBar
	started time.Time
}

func newIngestProgress() *ingestProgress {
	return &ingestProgress{w: os.Stderr, ok: color.New(color.FgGreen)}
}

func (p *ingestProgress) source(kind models.SourceKind, src string) {
	if p.spinner != nil {
		p.spinner.Describe(color.CyanString("Reading %s %s", kind, src))
	}
}

func (p *ingestProgress) page(url string) {
	if p.spinner != nil {
		p.spinner.Describe(color.CyanString("Fetching %s", url))
	}
}

func (p *ingestProgress) stage(stage knowledge.Stage, done, total int) {
	switch stage {
	case knowledge.StageLoad:
		if p.spinner == nil {
			p.started = time.Now()
			p.spinner = getSpinner(p.w, fmt.Sprintf("Loading %d sources...", total))
			return
		}
		_ = p.spinner.Finish()
		p.ok.Fprintf(p.w, "\n✓ Loaded %d documents\n", done)

	case knowledge.StageChunk:
		p.ok.Fprintf(p.w, "✓ Split into %d chunks\n", total)

	case knowledge.StageEmbed:
		if p.embed == nil {
			p.embed = getProgressBar(p.w, total, "Embedding chunks")
		}
		_ = p.embed.Set(done)
		if done == total {
			_ = p.embed.Finish()
			fmt.Fprintln(p.w)
		}

	case knowledge.StageStore:
		p.ok.Fprintf(p.w, "✓ Stored %d chunks in %s\n", total, time.Since(p.started).Round(time.Millisecond))
	}
}
