package domain

import (
	"strings"
	"time"
)

// Language of the generated summary
type Language string

const (
	LanguageFrench  Language = "French"
	LanguageEnglish Language = "English"
)

const (
	DefaultLanguage = LanguageFrench
	DefaultModel    = "gpt-4o-mini"
	DefaultAudience = "general technical audience"
)

// ParseLanguage accepts language names and ISO codes in any case.
// An empty string yields the default language.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultLanguage, nil
	case "fr", "french", "français", "francais":
		return LanguageFrench, nil
	case "en", "english", "anglais":
		return LanguageEnglish, nil
	}
	return "", InvalidInput(StageUpload, "unsupported language "+s, nil)
}

// PromptTemplate is an immutable prompt fetched from the prompt service.
// Updates produce a new value; cached pointers are swapped, never edited.
type PromptTemplate struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Body      string    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SummarizationRequest carries the per-request inputs to the LLM call
type SummarizationRequest struct {
	DocumentText    string
	Language        Language
	ModelID         string
	AudienceProfile string
}

// WithDefaults fills empty fields with the service defaults
func (r SummarizationRequest) WithDefaults() SummarizationRequest {
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.ModelID == "" {
		r.ModelID = DefaultModel
	}
	if strings.TrimSpace(r.AudienceProfile) == "" {
		r.AudienceProfile = DefaultAudience
	}
	return r
}

// Status of a pipeline run
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialFailure Status = "partial_failure"
	StatusFailure        Status = "failure"
)

// Diagnostic describes a stage-level problem attached to a result
type Diagnostic struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// SummarizationResult is what callers receive; never a silent empty response
type SummarizationResult struct {
	Status      Status       `json:"status"`
	SummaryText string       `json:"summary"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Model       string       `json:"model,omitempty"`
	Attempts    int          `json:"attempts,omitempty"`
}

// Failed builds a failure result from a stage error
func Failed(err error) SummarizationResult {
	return SummarizationResult{
		Status:      StatusFailure,
		Diagnostics: []Diagnostic{DiagnosticOf(err)},
	}
}

// Degrade downgrades a successful result to a partial failure and records why
func (r SummarizationResult) Degrade(d Diagnostic) SummarizationResult {
	if r.Status == StatusFailure {
		return r
	}
	r.Status = StatusPartialFailure
	r.Diagnostics = append(append([]Diagnostic(nil), r.Diagnostics...), d)
	return r
}
