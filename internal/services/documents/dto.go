package documents

import (
	"document-processor/internal/domain"
	"document-processor/internal/services/pipeline"
)

// Upload is one PDF handed to the service by the HTTP layer or the CLI
type Upload struct {
	Filename      string
	Data          []byte
	Language      string
	Model         string
	Audience      string
	PromptVersion string
}

// Report is the outcome of processing one upload
type Report struct {
	DocumentID  string               `json:"document_id,omitempty"`
	Filename    string               `json:"filename"`
	Status      domain.Status        `json:"status"`
	Content     string               `json:"content,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	NumElements int                  `json:"num_elements"`
	FileSizeMB  float64              `json:"file_size_mb"`
	Language    domain.Language      `json:"language,omitempty"`
	Model       string               `json:"model,omitempty"`
	Prompt      *pipeline.PromptInfo `json:"prompt,omitempty"`
	Diagnostics []domain.Diagnostic  `json:"diagnostics"`
	States      []pipeline.State     `json:"states"`
	CacheHit    bool                 `json:"cache_hit"`
	ElapsedMS   int64                `json:"elapsed_ms"`

	err error
}

// Err returns the stage error of a failed run, or nil
func (r *Report) Err() error {
	if r.Status != domain.StatusFailure {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	if len(r.Diagnostics) > 0 {
		d := r.Diagnostics[0]
		return domain.NewError(d.Kind, d.Stage, d.Message, nil)
	}
	return domain.NewError(domain.KindInternal, "", "pipeline failed without diagnostics", nil)
}
