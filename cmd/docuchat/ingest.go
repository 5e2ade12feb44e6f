package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/ingest"
)

var (
	ingestURLs   []string
	ingestFormat string
	ingestDepth  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Add documents to the index",
	Long: `Loads PDF, text or HTML files, or web pages given with --url, splits
them into segments, embeds the segments and persists them in the index.
Each document is indexed completely or not at all.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestURLs, "url", nil, "web page to ingest (repeatable)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "document format: pdf, txt or html (default from extension)")
	ingestCmd.Flags().IntVar(&ingestDepth, "depth", -1, "follow same-host links this many levels deep when ingesting URLs")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(ingestURLs) == 0 {
		return errors.New("nothing to ingest: pass files or --url")
	}
	if ingestDepth >= 0 {
		cfg.Scraper.MaxDepth = ingestDepth
	}

	ctx := cmd.Context()
	progress := newStageProgress(cmd.ErrOrStderr())

	a, err := newApp(ctx, cfg, appOptions{
		mode:       openOrCreate,
		onProgress: progress.report,
		onPage:     progress.page,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	indexed := 0

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		doc := models.NewDocument(path, models.Format(ingestFormat), data)
		result, err := a.pipeline.ProcessDocument(ctx, doc)
		progress.finish()
		if err != nil {
			return err
		}
		printResult(out, result)
		indexed += result.Segments
	}

	for _, url := range ingestURLs {
		color.New(color.FgBlue).Fprintf(out, "Fetching %s\n", url)
		results, err := a.pipeline.ProcessURL(ctx, url)
		progress.finish()
		for _, result := range results {
			printResult(out, result)
			indexed += result.Segments
		}
		if err != nil {
			return err
		}
	}

	color.New(color.FgGreen).Fprintf(out, "✓ Index now holds %d records\n", a.index.Count())

	if indexed > 0 {
		pushed, err := autoPush(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to push index: %w", err)
		}
		if pushed > 0 {
			color.New(color.FgGreen).Fprintf(out, "✓ Pushed %d files to gs://%s/%s\n", pushed, cfg.Archive.Bucket, cfg.Archive.Prefix)
		}
	}
	return nil
}

func printResult(out io.Writer, result ingest.Result) {
	if result.Segments == 0 {
		color.New(color.FgYellow).Fprintf(out, "%s: %s\n", result.Source, result.Message)
		return
	}
	color.New(color.FgGreen).Fprintf(out, "✓ %s: %s\n", result.Source, result.Message)
}
