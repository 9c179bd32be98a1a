package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"document-processor/internal/domain"
	"document-processor/internal/repo"
	"document-processor/internal/services/documents"
)

const (
	defaultFilename = "document.pdf"
	// multipart framing allowance on top of the file itself
	formOverhead = 1 << 20
)

// DocumentHandler handles upload, extraction and summarization requests
type DocumentHandler struct {
	service   *documents.Service
	maxUpload int64
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(service *documents.Service, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{service: service, maxUpload: maxUpload}
}

// RegisterRoutes registers all document routes
func (h *DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/process_pdf_file", h.ProcessPDFFile)
	r.Post("/upload", h.Upload)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/summaries", h.Summarize)
		r.Get("/documents", h.ListDocuments)
		r.Get("/documents/{id}", h.GetDocument)
		r.Delete("/documents/{id}", h.DeleteDocument)
		r.Delete("/prompts/cache", h.InvalidatePrompts)
	})
}

// ProcessPDFFile extracts the text of one PDF without summarizing it
func (h *DocumentHandler) ProcessPDFFile(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r, "error")
	if !ok {
		return
	}

	log.Ctx(r.Context()).Info().Str("filename", up.Filename).Int("size", len(up.Data)).Msg("Processing PDF file")
	report := h.service.ExtractText(r.Context(), up)
	if err := report.Err(); err != nil {
		h.writeFailure(w, r, "error", report, err)
		return
	}

	writeJSON(w, http.StatusOK, ExtractResponse{
		Status:      report.Status,
		Content:     report.Content,
		NumElements: report.NumElements,
		FileSizeMB:  report.FileSizeMB,
		DocumentID:  report.DocumentID,
		Diagnostics: report.Diagnostics,
	})
}

// Summarize runs the full pipeline on one PDF
func (h *DocumentHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r, string(domain.StatusFailure))
	if !ok {
		return
	}
	up.Language = r.FormValue("language")
	up.Model = r.FormValue("model")
	up.Audience = r.FormValue("audience")
	up.PromptVersion = r.FormValue("prompt_version")

	log.Ctx(r.Context()).Info().
		Str("filename", up.Filename).
		Int("size", len(up.Data)).
		Str("language", up.Language).
		Msg("Summarizing PDF file")

	report := h.service.Process(r.Context(), up)
	if err := report.Err(); err != nil {
		h.writeFailure(w, r, string(domain.StatusFailure), report, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Upload accepts one or more PDFs in the "files" field and extracts each
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		h.writeRejection(w, r, h.readError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	headers = append(headers, r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		h.writeRejection(w, r, domain.InvalidInput(domain.StageUpload, "no files uploaded", nil))
		return
	}
	for _, fh := range headers {
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
			h.writeRejection(w, r, domain.InvalidInput(domain.StageUpload, fmt.Sprintf("File %s is not a PDF", fh.Filename), nil))
			return
		}
	}

	resp := UploadResponse{Files: []string{}, Documents: []UploadedResult{}}
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			h.writeRejection(w, r, domain.InvalidInput(domain.StageUpload, "failed to read "+fh.Filename, err))
			return
		}

		report := h.service.ExtractText(r.Context(), documents.Upload{Filename: filepath.Base(fh.Filename), Data: data})
		result := UploadedResult{
			Filename:    report.Filename,
			DocumentID:  report.DocumentID,
			Status:      report.Status,
			NumElements: report.NumElements,
		}
		if err := report.Err(); err != nil {
			_, code := statusFor(err)
			info := errorInfo(err, code)
			result.Error = &info
		}
		resp.Files = append(resp.Files, report.Filename)
		resp.Documents = append(resp.Documents, result)
	}
	resp.Message = fmt.Sprintf("Successfully uploaded %d files", len(resp.Files))

	writeJSON(w, http.StatusOK, resp)
}

// ListDocuments returns the newest processed documents
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := repo.DefaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > 500 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit value (must be 1-500)")
			return
		}
		limit = l
	}

	docs, err := h.service.List(r.Context(), limit)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to list documents")
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// InvalidatePrompts drops cached prompt templates so the next run refetches them
func (h *DocumentHandler) InvalidatePrompts(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	h.service.InvalidatePrompts(r.Context(), name)
	if name == "" {
		name = "*"
	}
	writeJSON(w, http.StatusOK, map[string]string{"invalidated": name})
}

// readUpload reads a PDF sent either as multipart field "file" or as a raw
// application/pdf body. On failure it writes the response, with failStatus as
// the top-level status, and returns false.
func (h *DocumentHandler) readUpload(w http.ResponseWriter, r *http.Request, failStatus string) (documents.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)

	up, err := h.parseUpload(r)
	if err != nil {
		h.writeFailure(w, r, failStatus, &documents.Report{
			Filename:    up.Filename,
			Diagnostics: []domain.Diagnostic{domain.DiagnosticOf(err)},
		}, err)
		return documents.Upload{}, false
	}
	return up, true
}

func (h *DocumentHandler) parseUpload(r *http.Request) (documents.Upload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return documents.Upload{}, rejectUpload(http.StatusUnsupportedMediaType, "UnsupportedMediaType", "missing or invalid Content-Type")
	}

	var up documents.Upload
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(formOverhead); err != nil {
			return documents.Upload{}, h.readError(err)
		}
		defer r.MultipartForm.RemoveAll()

		fhs := r.MultipartForm.File["file"]
		if len(fhs) == 0 {
			return documents.Upload{}, domain.InvalidInput(domain.StageUpload, `multipart field "file" is required`, nil)
		}
		fh := fhs[0]
		up.Filename = filepath.Base(fh.Filename)
		if !acceptedPartType(fh.Header.Get("Content-Type")) {
			return up, rejectUpload(http.StatusUnsupportedMediaType, "UnsupportedMediaType",
				fmt.Sprintf("unsupported content type %q, expected application/pdf", fh.Header.Get("Content-Type")))
		}
		data, err := readPart(fh)
		if err != nil {
			return up, domain.InvalidInput(domain.StageUpload, "failed to read uploaded file", err)
		}
		up.Data = data

	case "application/pdf", "application/octet-stream":
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			filename = defaultFilename
		}
		up.Filename = filepath.Base(filename)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return up, h.readError(err)
		}
		up.Data = data

	default:
		return documents.Upload{}, rejectUpload(http.StatusUnsupportedMediaType, "UnsupportedMediaType",
			fmt.Sprintf("unsupported content type %q, expected application/pdf or multipart/form-data", mediaType))
	}

	if int64(len(up.Data)) > h.maxUpload {
		return up, rejectUpload(http.StatusRequestEntityTooLarge, "TooLarge",
			fmt.Sprintf("file is %.2f MB, limit is %.2f MB", domain.BytesToMB(int64(len(up.Data))), domain.BytesToMB(h.maxUpload)))
	}
	return up, nil
}

// readError classifies a failed body read
func (h *DocumentHandler) readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return rejectUpload(http.StatusRequestEntityTooLarge, "TooLarge",
			fmt.Sprintf("request body exceeds %.2f MB", domain.BytesToMB(h.maxUpload)))
	}
	return domain.InvalidInput(domain.StageUpload, "invalid upload", err)
}

func (h *DocumentHandler) writeFailure(w http.ResponseWriter, r *http.Request, status string, report *documents.Report, err error) {
	code, errCode := statusFor(err)
	log.Ctx(r.Context()).Warn().Err(err).Int("status", code).Str("filename", report.Filename).Msg("Document processing failed")

	writeJSON(w, code, ErrorResponse{
		Status:      status,
		Error:       errorInfo(err, errCode),
		Diagnostics: report.Diagnostics,
		DocumentID:  report.DocumentID,
	})
}

// writeRejection answers /upload requests refused before any file is processed
func (h *DocumentHandler) writeRejection(w http.ResponseWriter, r *http.Request, err error) {
	h.writeFailure(w, r, "error", &documents.Report{Diagnostics: []domain.Diagnostic{domain.DiagnosticOf(err)}}, err)
}

func (h *DocumentHandler) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "document not found")
		return
	}
	log.Ctx(r.Context()).Error().Err(err).Msg("Document lookup failed")
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load document")
}

func acceptedPartType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/pdf" || mediaType == "application/octet-stream"
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
