package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"document-processor/internal/domain"
	"document-processor/internal/repo"
	"document-processor/internal/services/pipeline"
)

// Pipeline is satisfied by *pipeline.Controller
type Pipeline interface {
	Run(ctx context.Context, in pipeline.Input) pipeline.Outcome
	Extract(ctx context.Context, in pipeline.Input) pipeline.Outcome
}

// PromptCache is satisfied by *prompt.Resolver
type PromptCache interface {
	Invalidate(name string)
	InvalidateAll()
}

// Service runs uploads through the pipeline and keeps a record of each
type Service struct {
	pipeline Pipeline
	repo     repo.Repository
	prompts  PromptCache
	newID    func() string
	now      func() time.Time
}

// NewService creates a new Service. prompts may be nil.
func NewService(p Pipeline, r repo.Repository, prompts PromptCache) *Service {
	return &Service{
		pipeline: p,
		repo:     r,
		prompts:  prompts,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Process runs the full summarization pipeline
func (s *Service) Process(ctx context.Context, up Upload) *Report {
	out := s.pipeline.Run(ctx, input(up))
	report := s.report(up, out)
	report.Summary = out.Result.SummaryText
	if out.Result.Model != "" {
		report.Model = out.Result.Model
	}

	s.persist(ctx, up, repo.ModeSummarize, report)
	return report
}

// ExtractText runs extraction and normalization only
func (s *Service) ExtractText(ctx context.Context, up Upload) *Report {
	out := s.pipeline.Extract(ctx, input(up))
	report := s.report(up, out)
	report.Language = ""
	report.Model = ""
	if out.Document != nil {
		report.Content = out.Document.FullText
	}

	s.persist(ctx, up, repo.ModeExtract, report)
	return report
}

// List returns the newest document records
func (s *Service) List(ctx context.Context, limit int) ([]repo.Document, error) {
	docs, err := s.repo.ListDocuments(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *Service) Get(ctx context.Context, id string) (repo.Document, error) {
	return s.repo.GetDocument(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteDocument(ctx, id)
}

// InvalidatePrompts drops one cached prompt, or all of them when name is empty
func (s *Service) InvalidatePrompts(ctx context.Context, name string) {
	if s.prompts == nil {
		return
	}
	if name == "" {
		s.prompts.InvalidateAll()
	} else {
		s.prompts.Invalidate(name)
	}
	log.Ctx(ctx).Info().Str("prompt", name).Msg("Prompt cache invalidated")
}

func (s *Service) report(up Upload, out pipeline.Outcome) *Report {
	report := &Report{
		Filename:    up.Filename,
		Status:      out.Result.Status,
		Language:    out.Request.Language,
		Model:       out.Request.ModelID,
		Prompt:      out.Prompt,
		Diagnostics: out.Result.Diagnostics,
		States:      out.States,
		CacheHit:    out.CacheHit,
		ElapsedMS:   out.Elapsed.Milliseconds(),
		FileSizeMB:  domain.BytesToMB(int64(len(up.Data))),
		err:         out.Err,
	}
	if out.Document != nil {
		report.NumElements = out.Document.ElementCount
		report.FileSizeMB = out.Document.FileSizeMB()
	}
	return report
}

// persist records the run. A storage failure is logged and leaves DocumentID empty.
func (s *Service) persist(ctx context.Context, up Upload, mode repo.Mode, report *Report) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	sum := sha256.Sum256(up.Data)
	doc := repo.Document{
		ID:          s.newID(),
		Filename:    up.Filename,
		SizeBytes:   int64(len(up.Data)),
		SHA256:      hex.EncodeToString(sum[:]),
		Mode:        mode,
		Status:      report.Status,
		NumElements: report.NumElements,
		Content:     report.Content,
		Language:    string(report.Language),
		Model:       report.Model,
		Summary:     report.Summary,
		Diagnostics: report.Diagnostics,
		CreatedAt:   s.now().UTC(),
	}
	if report.Prompt != nil {
		doc.PromptName = report.Prompt.Name
		doc.PromptVersion = report.Prompt.Version
	}

	if err := s.repo.SaveDocument(ctx, doc); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("filename", up.Filename).Msg("Failed to save document record")
		return
	}
	report.DocumentID = doc.ID
}

func input(up Upload) pipeline.Input {
	return pipeline.Input{
		Filename:      up.Filename,
		Data:          up.Data,
		Language:      up.Language,
		Model:         up.Model,
		Audience:      up.Audience,
		PromptVersion: up.PromptVersion,
	}
}
