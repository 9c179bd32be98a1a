// Package ingest processes every PDF found in a directory
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"document-processor/internal/domain"
	"document-processor/internal/services/documents"
)

// DefaultWorkers bounds concurrent documents when none is configured
const DefaultWorkers = 4

// Processor is satisfied by *documents.Service
type Processor interface {
	Process(ctx context.Context, up documents.Upload) *documents.Report
	ExtractText(ctx context.Context, up documents.Upload) *documents.Report
}

// Result is the outcome for one file
type Result struct {
	Path       string        `json:"path"`
	DocumentID string        `json:"document_id,omitempty"`
	Status     domain.Status `json:"status"`
	Error      string        `json:"error,omitempty"`
}

// Summary of a directory run, ordered by path
type Summary struct {
	Results   []Result `json:"results"`
	Processed int      `json:"processed_count"`
	Failed    int      `json:"failed_count"`
}

// Loader handles batch ingestion of PDF files
type Loader struct {
	processor Processor
	workers   int
	summarize bool
}

// NewLoader creates a new Loader. With summarize unset files are only extracted.
func NewLoader(processor Processor, workers int, summarize bool) *Loader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Loader{processor: processor, workers: workers, summarize: summarize}
}

// LoadFromDirectory processes every .pdf below dirPath. One file failing does
// not stop the others; only a walk error or cancellation aborts the run.
func (l *Loader) LoadFromDirectory(ctx context.Context, dirPath string) (Summary, error) {
	var paths []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".pdf") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to walk %s: %w", dirPath, err)
	}
	log.Ctx(ctx).Info().Str("dir", dirPath).Int("files", len(paths)).Msg("Found PDF files")

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(paths))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := l.LoadFile(gctx, path)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	summary := Summary{Results: results}
	for _, r := range results {
		if r.Status == domain.StatusFailure {
			summary.Failed++
		} else {
			summary.Processed++
		}
	}
	return summary, nil
}

// LoadFile processes a single PDF
func (l *Loader) LoadFile(ctx context.Context, path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path, Status: domain.StatusFailure, Error: err.Error()}
	}

	up := documents.Upload{Filename: filepath.Base(path), Data: data}
	var report *documents.Report
	if l.summarize {
		report = l.processor.Process(ctx, up)
	} else {
		report = l.processor.ExtractText(ctx, up)
	}

	res := Result{Path: path, DocumentID: report.DocumentID, Status: report.Status}
	if err := report.Err(); err != nil {
		res.Error = err.Error()
		log.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("Failed to process file")
	} else {
		log.Ctx(ctx).Info().Str("path", path).Str("status", string(report.Status)).Msg("Processed file")
	}
	return res
}
