package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"document-processor/internal/config"
	"document-processor/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "reportctl",
	Short: "Summarize scientific papers from the command line",
	Long: `reportctl runs the document pipeline on a local PDF. It either prints the
normalized text or asks the configured model for a pitch and saves it as a
markdown report.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// setup parses the environment and returns a context carrying the logger
func setup(validate bool) (context.Context, *config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	level := "warn"
	if verbose {
		level = zerolog.LevelDebugValue
	}
	logger := logging.New(level, "console")
	return logger.WithContext(context.Background()), cfg, nil
}

func readPDF(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
