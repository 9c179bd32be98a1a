package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"document-processor/internal/domain"
	"document-processor/internal/services/extract"
	"document-processor/internal/services/normalize"
	"document-processor/internal/services/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Print the normalized text of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(false)
	if err != nil {
		return err
	}
	data, err := readPDF(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	// extraction mode needs neither a prompt resolver nor a model
	controller := pipeline.NewController(extract.NewPDFExtractor(cfg.Server.MaxUploadBytes()), nil, nil, nil, pipeline.Config{
		Normalize: normalize.Options{StripBoilerplate: cfg.Normalizer.StripBoilerplate},
	})
	out := controller.Extract(ctx, pipeline.Input{Filename: filepath.Base(args[0]), Data: data})
	if out.Err != nil {
		return out.Err
	}
	for _, d := range out.Result.Diagnostics {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", d.Kind, d.Message)
	}
	if out.Result.Status == domain.StatusSuccess {
		fmt.Fprintln(cmd.OutOrStdout(), out.Document.FullText)
	}
	return nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
