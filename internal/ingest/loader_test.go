package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processor/internal/domain"
	"document-processor/internal/services/documents"
)

type fakeProcessor struct {
	processed atomic.Int32
	extracted atomic.Int32
}

func (f *fakeProcessor) Process(ctx context.Context, up documents.Upload) *documents.Report {
	f.processed.Add(1)
	return &documents.Report{Filename: up.Filename, DocumentID: "id-" + up.Filename, Status: domain.StatusSuccess}
}

func (f *fakeProcessor) ExtractText(ctx context.Context, up documents.Upload) *documents.Report {
	f.extracted.Add(1)
	if string(up.Data) == "broken" {
		return &documents.Report{
			Filename:    up.Filename,
			Status:      domain.StatusFailure,
			Diagnostics: []domain.Diagnostic{{Stage: domain.StageExtraction, Kind: domain.KindInvalidInput, Message: "not a PDF"}},
		}
	}
	return &documents.Report{Filename: up.Filename, DocumentID: "id-" + up.Filename, Status: domain.StatusSuccess}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestLoadFromDirectoryExtracts(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.pdf":        "%PDF-1.4",
		"nested/B.PDF": "%PDF-1.4",
		"c.pdf":        "broken",
		"notes.txt":    "skip me",
	})
	p := &fakeProcessor{}

	summary, err := NewLoader(p, 2, false).LoadFromDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, int32(3), p.extracted.Load())
	assert.Equal(t, int32(0), p.processed.Load())
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, filepath.Join(dir, "a.pdf"), summary.Results[0].Path)
	assert.Equal(t, "id-a.pdf", summary.Results[0].DocumentID)
	assert.Equal(t, domain.StatusFailure, summary.Results[1].Status)
	assert.Contains(t, summary.Results[1].Error, "not a PDF")
}

func TestLoadFromDirectorySummarizes(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.pdf": "%PDF-1.4"})
	p := &fakeProcessor{}

	summary, err := NewLoader(p, 0, true).LoadFromDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.processed.Load())
	assert.Equal(t, 1, summary.Processed)
}

func TestLoadFromDirectoryMissing(t *testing.T) {
	_, err := NewLoader(&fakeProcessor{}, 1, false).LoadFromDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadFromDirectoryCanceled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.pdf": "%PDF-1.4", "b.pdf": "%PDF-1.4"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(&fakeProcessor{}, 1, false).LoadFromDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
