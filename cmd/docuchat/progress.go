package main

import (
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/docuchat/pkg/ingest"
)

var stageDescriptions = map[string]string{
	ingest.StageLoad:    "📄 Loading document...",
	ingest.StageSplit:   "✂️  Splitting into segments...",
	ingest.StageEmbed:   "🧮 Embedding segments...",
	ingest.StagePersist: "💾 Persisting index...",
}

func getProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
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

// withSpinner shows a spinner on w while fn runs.
func withSpinner(w io.Writer, description string, fn func() error) error {
	spinner := getSpinner(w, description)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = spinner.Add(1)
			}
		}
	}()

	err := fn()
	close(done)
	_ = spinner.Finish()
	_ = spinner.Clear()
	return err
}

// stageProgress draws one bar per ingestion stage.
type stageProgress struct {
	mu    sync.Mutex
	w     io.Writer
	stage string
	bar   *progressbar.ProgressBar
	pages int
}

func newStageProgress(w io.Writer) *stageProgress {
	return &stageProgress{w: w}
}

func (p *stageProgress) report(stage string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stage != p.stage || p.bar == nil {
		p.finishLocked()
		p.stage = stage
		p.bar = getProgressBar(p.w, total, stageDescriptions[stage])
	} else if p.bar.GetMax() != total {
		p.bar.ChangeMax(total)
	}
	_ = p.bar.Set(done)
}

// page counts fetched pages while a URL is crawled.
func (p *stageProgress) page(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pages++
	if p.stage != "fetch" || p.bar == nil {
		p.finishLocked()
		p.stage = "fetch"
		p.bar = getProgressBar(p.w, -1, "🌐 Fetching pages...")
	}
	_ = p.bar.Add(1)
	p.bar.Describe(color.BlueString("🌐 Fetching pages... (%d)", p.pages))
}

func (p *stageProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
	p.stage = ""
}

func (p *stageProgress) finishLocked() {
	if p.bar != nil {
		_ = p.bar.Finish()
		io.WriteString(p.w, "\n")
		p.bar = nil
	}
}
