package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"document-processor/internal/app"
	"document-processor/internal/domain"
	"document-processor/internal/services/pipeline"
)

var (
	summarizeLanguage string
	summarizeModel    string
	summarizeAudience string
	summarizeOut      string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file.pdf>",
	Short: "Generate a pitch for a paper and save it as markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	summarizeCmd.Flags().StringVarP(&summarizeLanguage, "language", "l", "", "summary language (defaults to LANGUAGE)")
	summarizeCmd.Flags().StringVarP(&summarizeModel, "model", "m", "", "model ID (defaults to MODEL)")
	summarizeCmd.Flags().StringVarP(&summarizeAudience, "audience", "a", "", "audience profile")
	summarizeCmd.Flags().StringVarP(&summarizeOut, "out", "o", "", "report path (default reports/<name>.md)")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(true)
	if err != nil {
		return err
	}
	data, err := readPDF(args[0])
	if err != nil {
		return err
	}

	p, err := app.NewPipeline(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	out := p.Controller.Run(ctx, pipeline.Input{
		Filename: filepath.Base(args[0]),
		Data:     data,
		Language: summarizeLanguage,
		Model:    summarizeModel,
		Audience: summarizeAudience,
	})
	if out.Result.Status == domain.StatusFailure {
		for _, d := range out.Result.Diagnostics {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", d.Stage, d.Kind, d.Message)
		}
		return fmt.Errorf("summarization failed after %s", out.Final())
	}

	path := summarizeOut
	if path == "" {
		path = defaultReportPath(args[0])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	report := renderReport(filepath.Base(args[0]), out, time.Now())
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Report saved to %s (%d characters)\n", path, len(out.Result.SummaryText))
	for _, d := range out.Result.Diagnostics {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", d.Kind, d.Message)
	}
	return nil
}

func defaultReportPath(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return filepath.Join("reports", strings.TrimSuffix(base, filepath.Ext(base))+".md")
}

// renderReport formats a pipeline outcome as a markdown document
func renderReport(filename string, out pipeline.Outcome, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", filename)
	fmt.Fprintf(&b, "- Status: %s\n", out.Result.Status)
	fmt.Fprintf(&b, "- Language: %s\n", out.Request.Language)
	model := out.Result.Model
	if model == "" {
		model = out.Request.ModelID
	}
	fmt.Fprintf(&b, "- Model: %s\n", model)
	if out.Prompt != nil {
		fmt.Fprintf(&b, "- Prompt: %s v%s (%s)\n", out.Prompt.Name, out.Prompt.Version, out.Prompt.Origin)
	}
	if out.Document != nil {
		fmt.Fprintf(&b, "- Source: %d elements, %.2f MB\n", out.Document.ElementCount, out.Document.FileSizeMB())
	}
	fmt.Fprintf(&b, "- Generated: %s\n\n", now.UTC().Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(out.Result.SummaryText))
	b.WriteString("\n")

	if len(out.Result.Diagnostics) > 0 {
		b.WriteString("\n## Diagnostics\n\n")
		for _, d := range out.Result.Diagnostics {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", d.Kind, d.Stage, d.Message)
		}
	}
	return b.String()
}
