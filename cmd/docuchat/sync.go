package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the local index to or from the archive bucket",
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the local index directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd, true)
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the archived index into the local index directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd, false)
	},
}

func init() {
	syncCmd.AddCommand(syncPushCmd, syncPullCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, push bool) error {
	ctx := cmd.Context()
	a, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}

	description, verb := "☁️  Downloading index...", "Downloaded"
	if push {
		description, verb = "☁️  Uploading index...", "Uploaded"
	}

	var n int
	err = withSpinner(cmd.ErrOrStderr(), description, func() error {
		var err error
		if push {
			n, err = a.Push(ctx, cfg.Index.Path)
		} else {
			n, err = a.Pull(ctx, cfg.Index.Path)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ %s %d files (gs://%s/%s ↔ %s)\n",
		verb, n, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Index.Path)
	return nil
}
