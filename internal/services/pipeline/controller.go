// Package pipeline sequences extraction, normalization, prompt resolution and
// summarization for one uploaded document.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"document-processor/internal/domain"
	"document-processor/internal/services/normalize"
	"document-processor/internal/services/prompt"
)

// ErrCacheMiss is returned by SummaryCache implementations on a miss
var ErrCacheMiss = errors.New("summary not cached")

type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]domain.ContentElement, error)
}

type PromptResolver interface {
	Resolve(ctx context.Context, name, version string) (prompt.Resolution, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, req domain.SummarizationRequest, tpl *domain.PromptTemplate) domain.SummarizationResult
}

// SummaryCache stores successful summaries keyed by document and parameters
type SummaryCache interface {
	GetSummary(ctx context.Context, key string) (*domain.SummarizationResult, error)
	PutSummary(ctx context.Context, key string, res domain.SummarizationResult) error
}

// Config holds the service-wide defaults for a run
type Config struct {
	PromptName    string
	PromptVersion string
	Language      domain.Language
	Model         string
	Audience      string
	Normalize     normalize.Options
}

// Input is one uploaded document plus optional per-request overrides
type Input struct {
	Filename      string
	Data          []byte
	Language      string
	Model         string
	Audience      string
	PromptVersion string
}

// PromptInfo identifies the template used for a run
type PromptInfo struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Origin  prompt.Origin `json:"origin"`
}

// Outcome is everything a caller needs to render a response
type Outcome struct {
	Result   domain.SummarizationResult
	Document *domain.NormalizedDocument
	Prompt   *PromptInfo
	Request  domain.SummarizationRequest
	States   []State
	CacheHit bool
	Elapsed  time.Duration

	// Err is the stage error behind a Failure raised before summarization
	Err error
}

// Final returns the terminal state
func (o Outcome) Final() State {
	return o.States[len(o.States)-1]
}

// Controller drives one document through the stages. It holds no per-run state.
type Controller struct {
	extractor  Extractor
	resolver   PromptResolver
	summarizer Summarizer
	cache      SummaryCache
	cfg        Config
}

// NewController creates a controller. cache may be nil.
func NewController(extractor Extractor, resolver PromptResolver, summarizer Summarizer, cache SummaryCache, cfg Config) *Controller {
	if cfg.Language == "" {
		cfg.Language = domain.DefaultLanguage
	}
	if cfg.Model == "" {
		cfg.Model = domain.DefaultModel
	}
	return &Controller{
		extractor:  extractor,
		resolver:   resolver,
		summarizer: summarizer,
		cache:      cache,
		cfg:        cfg,
	}
}

// Run executes the full pipeline
func (c *Controller) Run(ctx context.Context, in Input) (out Outcome) {
	start := time.Now()
	m := newMachine()
	defer func() {
		out.Elapsed = time.Since(start)
	}()

	req, err := c.request(in)
	if err != nil {
		return c.fail(ctx, m, out, err)
	}
	out.Request = req

	doc, err := c.extractAndNormalize(ctx, m, in.Data)
	if err != nil {
		return c.fail(ctx, m, out, err)
	}
	out.Document = doc
	if doc.IsEmpty() {
		m.advance(Completed)
		return c.finish(ctx, m, out, emptyDocumentResult())
	}

	m.advance(ResolvingPrompt)
	version := in.PromptVersion
	if version == "" {
		version = c.cfg.PromptVersion
	}
	res, err := c.resolver.Resolve(ctx, c.cfg.PromptName, version)
	if err != nil {
		return c.fail(ctx, m, out, domain.AtStage(domain.StagePromptResolution, domain.KindPromptUnavailable, err))
	}
	out.Prompt = &PromptInfo{Name: res.Template.Name, Version: res.Template.Version, Origin: res.Origin}

	m.advance(Summarizing)
	req.DocumentText = doc.FullText
	out.Request = req

	key := summaryKey(doc.FullText, res.Template, req)
	result, hit := c.cached(ctx, key)
	if !hit {
		result = c.summarizer.Summarize(ctx, req, res.Template)
		if result.Status == domain.StatusSuccess {
			c.store(ctx, key, result)
		}
	}
	out.CacheHit = hit

	if res.Degraded() {
		result = result.Degrade(domain.Diagnostic{
			Stage:   domain.StagePromptResolution,
			Kind:    domain.KindDegraded,
			Message: res.Reason(),
		})
	}
	return c.finish(ctx, m, out, result)
}

// Extract runs only the extraction and normalization stages
func (c *Controller) Extract(ctx context.Context, in Input) (out Outcome) {
	start := time.Now()
	m := newMachine()
	defer func() {
		out.Elapsed = time.Since(start)
	}()

	doc, err := c.extractAndNormalize(ctx, m, in.Data)
	if err != nil {
		return c.fail(ctx, m, out, err)
	}
	out.Document = doc
	m.advance(Completed)
	if doc.IsEmpty() {
		return c.finish(ctx, m, out, emptyDocumentResult())
	}
	return c.finish(ctx, m, out, domain.SummarizationResult{Status: domain.StatusSuccess})
}

func (c *Controller) extractAndNormalize(ctx context.Context, m *machine, data []byte) (*domain.NormalizedDocument, error) {
	m.advance(Extracting)
	elements, err := c.extractor.Extract(ctx, data)
	if err != nil {
		return nil, domain.AtStage(domain.StageExtraction, domain.KindExtractionFailure, err)
	}
	if err := domain.ValidateOrder(elements); err != nil {
		return nil, domain.ExtractionFailure("extractor returned elements out of order", err)
	}

	m.advance(Normalizing)
	doc := normalize.Normalize(elements, int64(len(data)), c.cfg.Normalize)
	return &doc, nil
}

func (c *Controller) request(in Input) (domain.SummarizationRequest, error) {
	lang := c.cfg.Language
	if in.Language != "" {
		parsed, err := domain.ParseLanguage(in.Language)
		if err != nil {
			return domain.SummarizationRequest{}, err
		}
		lang = parsed
	}
	model := in.Model
	if model == "" {
		model = c.cfg.Model
	}
	audience := in.Audience
	if audience == "" {
		audience = c.cfg.Audience
	}
	return domain.SummarizationRequest{
		Language:        lang,
		ModelID:         model,
		AudienceProfile: audience,
	}.WithDefaults(), nil
}

func (c *Controller) cached(ctx context.Context, key string) (domain.SummarizationResult, bool) {
	if c.cache == nil {
		return domain.SummarizationResult{}, false
	}
	res, err := c.cache.GetSummary(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Ctx(ctx).Warn().Err(err).Msg("Summary cache read failed")
		}
		return domain.SummarizationResult{}, false
	}
	return *res, true
}

func (c *Controller) store(ctx context.Context, key string, res domain.SummarizationResult) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutSummary(ctx, key, res); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Summary cache write failed")
	}
}

func (c *Controller) fail(ctx context.Context, m *machine, out Outcome, err error) Outcome {
	out.Err = err
	return c.finish(ctx, m, out, domain.Failed(err))
}

func (c *Controller) finish(ctx context.Context, m *machine, out Outcome, result domain.SummarizationResult) Outcome {
	if !m.current().Terminal() {
		if result.Status == domain.StatusFailure {
			m.advance(Failed)
		} else {
			m.advance(Completed)
		}
	}
	if result.Diagnostics == nil {
		result.Diagnostics = []domain.Diagnostic{}
	}
	out.Result = result
	out.States = m.states()

	evt := log.Ctx(ctx).Info()
	if result.Status == domain.StatusFailure {
		evt = log.Ctx(ctx).Warn()
	}
	evt.Str("status", string(result.Status)).
		Str("final_state", out.Final().String()).
		Int("diagnostics", len(result.Diagnostics)).
		Bool("cache_hit", out.CacheHit).
		Msg("Pipeline finished")
	return out
}

func emptyDocumentResult() domain.SummarizationResult {
	return domain.SummarizationResult{
		Status: domain.StatusPartialFailure,
		Diagnostics: []domain.Diagnostic{{
			Stage:   domain.StageExtraction,
			Kind:    domain.KindExtractionFailure,
			Message: "document contains no extractable text",
		}},
	}
}

// summaryKey hashes everything that influences the generated summary
func summaryKey(text string, tpl *domain.PromptTemplate, req domain.SummarizationRequest) string {
	h := sha256.New()
	for _, part := range []string{text, tpl.Name, tpl.Version, tpl.Body, string(req.Language), req.ModelID, req.AudienceProfile} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
