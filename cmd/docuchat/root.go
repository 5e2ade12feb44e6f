package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/pkg/config"
)

var (
	configPath string
	envFiles   []string
	verbose    bool
	noColor    bool

	// cfg is loaded once per invocation, before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docuchat",
	Short: "Chat with your documents",
	Long: `DocuChat indexes PDF, text and web documents into a vector index and
answers questions about them with a language model, using only the
indexed content as context.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}

	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if problems := loaded.Validate(); len(problems) > 0 {
		errList := make([]error, len(problems))
		for i, p := range problems {
			errList[i] = p
		}
		return fmt.Errorf("invalid configuration: %w", errors.Join(errList...))
	}

	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetVerbose(verbose || loaded.UI.Verbose)
	if noColor || !loaded.UI.Color {
		color.NoColor = true
	}

	cfg = loaded
	return nil
}
