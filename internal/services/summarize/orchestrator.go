// Package summarize turns a normalized document and a prompt template into
// one LLM summary, retrying transient backend failures.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"document-processor/internal/domain"
	"document-processor/internal/services/llm"
)

const (
	DefaultSystemInstruction = "Extract this paper and create a 5-minute pitch."
	DefaultAttemptTimeout    = 90 * time.Second
	DefaultMaxOutputTokens   = 4096
)

// Config for the orchestrator
type Config struct {
	SystemInstruction string
	MaxOutputTokens   int64
	// AttemptTimeout bounds each completion call separately
	AttemptTimeout time.Duration
	// FallbackModel is tried once the primary model exhausts its retries
	FallbackModel string
	Retry         RetryConfig
}

// Orchestrator composes the prompt and drives the completion call
type Orchestrator struct {
	client llm.Client
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator. A zero Retry config gets the defaults.
func NewOrchestrator(client llm.Client, cfg Config) *Orchestrator {
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Orchestrator{
		client: client,
		cfg:    cfg,
		sleep:  sleepContext,
	}
}

// Summarize never returns an error: every outcome is a result with diagnostics
func (o *Orchestrator) Summarize(ctx context.Context, req domain.SummarizationRequest, tpl *domain.PromptTemplate) domain.SummarizationResult {
	req = req.WithDefaults()

	prompt, err := Render(tpl, req)
	if err != nil {
		return domain.Failed(err)
	}

	out, attempts, err := o.completeWithRetry(ctx, req.ModelID, prompt)
	usedFallback := false
	if err != nil && o.canFallBack(ctx, req.ModelID, err) {
		log.Ctx(ctx).Warn().Err(err).
			Str("model", req.ModelID).
			Str("fallback_model", o.cfg.FallbackModel).
			Msg("Primary model exhausted retries, trying fallback model")

		var n int
		out, n, err = o.completeWithRetry(ctx, o.cfg.FallbackModel, prompt)
		attempts += n
		usedFallback = err == nil
	}
	if err != nil {
		res := domain.Failed(o.describe(err, attempts))
		res.Attempts = attempts
		return res
	}

	res := domain.SummarizationResult{
		Status:      domain.StatusSuccess,
		SummaryText: out.Text,
		Model:       out.Model,
		Attempts:    attempts,
	}
	if res.Model == "" {
		res.Model = req.ModelID
	}
	if out.Truncated() {
		res = res.Degrade(domain.Diagnostic{
			Stage:   domain.StageSummarization,
			Kind:    domain.KindTruncated,
			Message: "completion stopped at the output token limit; the summary is incomplete",
		})
	}
	if usedFallback {
		res = res.Degrade(domain.Diagnostic{
			Stage:   domain.StageSummarization,
			Kind:    domain.KindDegraded,
			Message: fmt.Sprintf("model %s unavailable, summary produced by %s", req.ModelID, o.cfg.FallbackModel),
		})
	}
	return res
}

func (o *Orchestrator) completeWithRetry(ctx context.Context, model, prompt string) (*llm.Completion, int, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.Retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}

		out, err := o.attempt(ctx, model, prompt)
		if err == nil {
			return out, attempt + 1, nil
		}
		if ctx.Err() != nil {
			return nil, attempt + 1, ctx.Err()
		}

		lastErr = err
		if llm.ClassOf(err) != llm.ClassTransient {
			return nil, attempt + 1, err
		}
		if attempt == o.cfg.Retry.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, o.cfg.Retry)
		log.Ctx(ctx).Warn().Err(err).
			Str("model", model).
			Int("attempt", attempt+1).
			Int("max_attempts", o.cfg.Retry.MaxRetries+1).
			Dur("backoff", backoff).
			Msg("Completion failed, retrying")

		if err := o.sleep(ctx, backoff); err != nil {
			return nil, attempt + 1, err
		}
	}
	return nil, o.cfg.Retry.MaxRetries + 1, lastErr
}

func (o *Orchestrator) attempt(ctx context.Context, model, prompt string) (*llm.Completion, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	out, err := o.client.Complete(actx, llm.CompletionRequest{
		Model:           model,
		SystemPrompt:    o.cfg.SystemInstruction,
		UserPrompt:      prompt,
		MaxOutputTokens: o.cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}
	if out.Text == "" {
		return nil, llm.Transient("empty completion", nil)
	}
	return out, nil
}

func (o *Orchestrator) canFallBack(ctx context.Context, model string, err error) bool {
	return o.cfg.FallbackModel != "" &&
		o.cfg.FallbackModel != model &&
		ctx.Err() == nil &&
		llm.ClassOf(err) == llm.ClassTransient
}

func (o *Orchestrator) describe(err error, attempts int) error {
	if errors.Is(err, context.Canceled) {
		return domain.Canceled(domain.StageSummarization, err)
	}
	if llm.ClassOf(err) == llm.ClassTransient {
		return domain.LLMTransientFailure(fmt.Sprintf("giving up after %d attempts", attempts), err)
	}
	return domain.LLMFatalFailure("completion rejected", err)
}
