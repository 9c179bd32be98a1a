package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"document-processor/internal/domain"
	"document-processor/internal/services/pipeline"
	"document-processor/internal/services/prompt"
)

func TestRenderReport(t *testing.T) {
	out := pipeline.Outcome{
		Result: domain.SummarizationResult{
			Status:      domain.StatusPartialFailure,
			SummaryText: "  Ce papier propose un nouveau mécanisme.\n",
			Model:       "gpt-4o-mini",
			Diagnostics: []domain.Diagnostic{{Stage: domain.StageSummarization, Kind: domain.KindTruncated, Message: "cut short"}},
		},
		Document: &domain.NormalizedDocument{ElementCount: 12, SourceFileSizeBytes: 3 << 20},
		Prompt:   &pipeline.PromptInfo{Name: "paper_pitch", Version: "7", Origin: prompt.OriginCache},
		Request:  domain.SummarizationRequest{Language: domain.LanguageFrench, ModelID: "gpt-4o-mini"},
	}

	got := renderReport("attention.pdf", out, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))

	want := `# attention.pdf

- Status: partial_failure
- Language: French
- Model: gpt-4o-mini
- Prompt: paper_pitch v7 (cache)
- Source: 12 elements, 3.00 MB
- Generated: 2024-06-01T08:30:00Z

## Summary

Ce papier propose un nouveau mécanisme.

## Diagnostics

- **Truncated** (summarization): cut short
`
	assert.Equal(t, want, got)
}

func TestDefaultReportPath(t *testing.T) {
	assert.Equal(t, filepath.Join("reports", "attention.md"), defaultReportPath("/tmp/papers/attention.pdf"))
}
