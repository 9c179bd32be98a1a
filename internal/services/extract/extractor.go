package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"document-processor/internal/domain"
)

// DefaultMaxFileSize is the upload ceiling when none is configured
const DefaultMaxFileSize int64 = 20 << 20

var pdfMagic = []byte("%PDF-")

// Extractor turns raw PDF bytes into ordered content elements
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]domain.ContentElement, error)
}

// FailureKind is the extractor's own failure classification
type FailureKind string

const (
	InvalidPDF         FailureKind = "InvalidPDF"
	TooLarge           FailureKind = "TooLarge"
	UnsupportedContent FailureKind = "UnsupportedContent"
	IOFailure          FailureKind = "IOFailure"
)

// Error is wrapped inside a *domain.Error so callers can inspect both
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind FailureKind, message string, err error) error {
	inner := &Error{Kind: kind, Err: err}
	switch kind {
	case InvalidPDF, TooLarge:
		return domain.InvalidInput(domain.StageExtraction, message, inner)
	default:
		return domain.ExtractionFailure(message, inner)
	}
}

var disablePDFCPUConfig sync.Once

// PDFExtractor validates with pdfcpu and decodes text with ledongthuc/pdf
type PDFExtractor struct {
	maxSize int64
}

// NewPDFExtractor creates an extractor that rejects inputs above maxSize bytes
func NewPDFExtractor(maxSize int64) *PDFExtractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	// pdfcpu otherwise writes a config.yml into the user's config dir
	disablePDFCPUConfig.Do(api.DisableConfigDir)
	return &PDFExtractor{maxSize: maxSize}
}

// MaxSize returns the configured size ceiling in bytes
func (e *PDFExtractor) MaxSize() int64 {
	return e.maxSize
}

// Extract returns the complete element sequence or an error, never a prefix
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) ([]domain.ContentElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.Check(data); err != nil {
		return nil, err
	}

	pageCount, err := validate(data)
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, fail(UnsupportedContent, "encrypted PDF", err)
		}
		return nil, fail(InvalidPDF, "failed to open PDF", err)
	}

	var pages [][]line
	hasImages := false
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines, err := readPage(page, i)
		if err != nil {
			return nil, fail(IOFailure, fmt.Sprintf("failed to decode page %d", i), err)
		}
		if len(lines) == 0 && pageHasImages(page) {
			hasImages = true
		}
		pages = append(pages, lines)
	}

	elements := classify(pages)
	if len(elements) == 0 && hasImages {
		return nil, fail(UnsupportedContent, "document has no text layer", nil)
	}

	log.Ctx(ctx).Debug().
		Int("pages", pageCount).
		Int("elements", len(elements)).
		Int("bytes", len(data)).
		Msg("PDF extracted")

	return elements, nil
}

// Check applies the cheap checks that run before any parsing
func (e *PDFExtractor) Check(data []byte) error {
	if len(data) == 0 {
		return fail(InvalidPDF, "empty upload", nil)
	}
	if int64(len(data)) > e.maxSize {
		return fail(TooLarge, fmt.Sprintf("file is %.2f MB, limit is %.2f MB",
			domain.BytesToMB(int64(len(data))), domain.BytesToMB(e.maxSize)), nil)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return fail(InvalidPDF, "not a PDF document", nil)
	}
	return nil
}

func validate(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fail(InvalidPDF, "PDF structure is invalid", fmt.Errorf("%v", r))
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		if bytes.Contains(data, []byte("/Encrypt")) {
			return 0, fail(UnsupportedContent, "encrypted PDF", err)
		}
		return 0, fail(InvalidPDF, "PDF structure is invalid", err)
	}
	return pctx.PageCount, nil
}

func readPage(page pdf.Page, number int) (lines []line, err error) {
	lines, ok := readGlyphs(page, number)
	if ok {
		return lines, nil
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		return nil, err
	}
	for _, s := range strings.Split(text, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, line{Text: s, Page: number})
		}
	}
	return lines, nil
}

// readGlyphs reports false when the positioned decoder panics
func readGlyphs(page pdf.Page, number int) (lines []line, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			lines, ok = nil, false
		}
	}()

	content := page.Content()
	glyphs := make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S})
	}
	return buildLines(glyphs, number), true
}

func pageHasImages(page pdf.Page) bool {
	xobjects := page.Resources().Key("XObject")
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}
