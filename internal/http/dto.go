package http

import (
	"document-processor/internal/domain"
	"document-processor/internal/repo"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status      string              `json:"status,omitempty"`
	Error       ErrorInfo           `json:"error"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
	DocumentID  string              `json:"document_id,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string       `json:"code"`
	Stage   domain.Stage `json:"stage,omitempty"`
	Message string       `json:"message"`
}

// Common error codes
const (
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeExtraction        = "EXTRACTION_FAILURE"
	ErrCodePromptUnavailable = "PROMPT_UNAVAILABLE"
	ErrCodeTemplateMismatch  = "TEMPLATE_MISMATCH"
	ErrCodeLLMTransient      = "LLM_TRANSIENT_FAILURE"
	ErrCodeLLMFatal          = "LLM_FATAL_FAILURE"
	ErrCodeCanceled          = "CANCELED"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// ExtractResponse is the body of a successful extraction-only request
type ExtractResponse struct {
	Status      domain.Status       `json:"status"`
	Content     string              `json:"content"`
	NumElements int                 `json:"num_elements"`
	FileSizeMB  float64             `json:"file_size_mb"`
	DocumentID  string              `json:"document_id,omitempty"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// UploadResponse lists the files accepted by /upload
type UploadResponse struct {
	Message   string           `json:"message"`
	Files     []string         `json:"files"`
	Documents []UploadedResult `json:"documents"`
}

type UploadedResult struct {
	Filename    string        `json:"filename"`
	DocumentID  string        `json:"document_id,omitempty"`
	Status      domain.Status `json:"status"`
	NumElements int           `json:"num_elements"`
	Error       *ErrorInfo    `json:"error,omitempty"`
}

type DocumentListResponse struct {
	Documents []repo.Document `json:"documents"`
	Total     int             `json:"total"`
}
