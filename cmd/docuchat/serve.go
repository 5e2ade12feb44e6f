package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/server"
)

var (
	serveAddr string
	servePull bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over HTTP and websocket",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&servePull, "pull", false, "download the index from the archive before opening it")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	if servePull {
		pulled, err := pullIndex(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to pull index: %w", err)
		}
		logger.Info("pulled index", "files", pulled, "bucket", cfg.Archive.Bucket)
	}

	a, err := newApp(ctx, cfg, appOptions{mode: openOrCreate})
	if err != nil {
		return err
	}
	defer a.Close()

	var archiver server.Archiver
	if cfg.Archive.Enabled {
		arc, err := newArchive(ctx, cfg)
		if err != nil {
			return err
		}
		archiver = arc
	}

	srv, err := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		AutoPush:    cfg.Archive.AutoPush,
	}, a.session, a.pipeline, archiver)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
