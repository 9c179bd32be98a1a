// Package app assembles the pipeline from configuration for the binaries
package app

import (
	"fmt"

	"document-processor/internal/config"
	"document-processor/internal/services/extract"
	"document-processor/internal/services/llm"
	"document-processor/internal/services/normalize"
	"document-processor/internal/services/pipeline"
	"document-processor/internal/services/prompt"
	"document-processor/internal/services/summarize"
)

// Pipeline bundles the controller with the resolver whose cache it shares
type Pipeline struct {
	Controller *pipeline.Controller
	Resolver   *prompt.Resolver
	Extractor  *extract.PDFExtractor
}

// NewPipeline wires every stage. summaries may be nil.
func NewPipeline(cfg *config.Config, summaries pipeline.SummaryCache) (*Pipeline, error) {
	fallbacks, err := Fallbacks(cfg.Prompt)
	if err != nil {
		return nil, err
	}

	var source prompt.Source
	if cfg.Prompt.RemoteEnabled() {
		source = prompt.NewLangfuseSource(prompt.LangfuseConfig{
			BaseURL:   cfg.Prompt.LangfuseBaseURL,
			PublicKey: cfg.Prompt.LangfusePublicKey,
			SecretKey: cfg.Prompt.LangfuseSecretKey,
			Label:     cfg.Prompt.Label,
		})
	}
	resolver := prompt.NewResolver(source, fallbacks, prompt.Config{
		FetchTimeout: cfg.Prompt.FetchTimeout,
		CacheTTL:     cfg.Prompt.CacheTTL,
	})

	client, err := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	orchestrator := summarize.NewOrchestrator(client, summarize.Config{
		SystemInstruction: cfg.OpenAI.SystemInstruction,
		MaxOutputTokens:   cfg.OpenAI.MaxOutputTokens,
		AttemptTimeout:    cfg.OpenAI.AttemptTimeout,
		FallbackModel:     cfg.OpenAI.FallbackModel,
		Retry: summarize.RetryConfig{
			MaxRetries:     cfg.OpenAI.MaxRetries,
			InitialBackoff: cfg.OpenAI.RetryBaseDelay,
			MaxBackoff:     cfg.OpenAI.RetryMaxDelay,
		},
	})

	extractor := extract.NewPDFExtractor(cfg.Server.MaxUploadBytes())
	controller := pipeline.NewController(extractor, resolver, orchestrator, summaries, pipeline.Config{
		PromptName:    cfg.Prompt.Name,
		PromptVersion: cfg.Prompt.Version,
		Language:      cfg.Language(),
		Model:         cfg.OpenAI.Model,
		Audience:      cfg.Summary.Audience,
		Normalize:     normalize.Options{StripBoilerplate: cfg.Normalizer.StripBoilerplate},
	})

	return &Pipeline{Controller: controller, Resolver: resolver, Extractor: extractor}, nil
}

// Fallbacks builds the local template registry
func Fallbacks(cfg config.PromptConfig) (prompt.Fallbacks, error) {
	base := prompt.DefaultFallbacks()
	if cfg.DefaultDisabled {
		base = prompt.Fallbacks{}
	}
	if cfg.FallbackFile == "" {
		return base, nil
	}
	return prompt.LoadFallbacks(cfg.FallbackFile, base)
}
