package repo

import (
	"context"
	"errors"
	"time"

	"document-processor/internal/domain"
)

// ErrNotFound is returned when no document has the requested ID
var ErrNotFound = errors.New("document not found")

// DefaultListLimit caps ListDocuments when the caller passes no limit
const DefaultListLimit = 50

// Mode tells which pipeline produced a document record
type Mode string

const (
	ModeExtract   Mode = "extract"
	ModeSummarize Mode = "summarize"
)

// Document is the stored record of one processed upload
type Document struct {
	ID            string              `json:"id"`
	Filename      string              `json:"filename"`
	SizeBytes     int64               `json:"size_bytes"`
	SHA256        string              `json:"sha256"`
	Mode          Mode                `json:"mode"`
	Status        domain.Status       `json:"status"`
	NumElements   int                 `json:"num_elements"`
	Content       string              `json:"content,omitempty"`
	Language      string              `json:"language,omitempty"`
	Model         string              `json:"model,omitempty"`
	PromptName    string              `json:"prompt_name,omitempty"`
	PromptVersion string              `json:"prompt_version,omitempty"`
	Summary       string              `json:"summary,omitempty"`
	Diagnostics   []domain.Diagnostic `json:"diagnostics"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Repository interface for document records
type Repository interface {
	SaveDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	// ListDocuments returns the newest documents first
	ListDocuments(ctx context.Context, limit int) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
