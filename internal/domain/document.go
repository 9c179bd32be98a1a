package domain

import (
	"fmt"
	"math"
)

// ElementKind classifies one extracted unit of document structure
type ElementKind string

const (
	KindTitle         ElementKind = "Title"
	KindNarrativeText ElementKind = "NarrativeText"
	KindTable         ElementKind = "Table"
	KindListItem      ElementKind = "ListItem"
	KindOther         ElementKind = "Other"

	// Boilerplate kinds, only assigned when the extractor has positional evidence
	KindHeader     ElementKind = "Header"
	KindFooter     ElementKind = "Footer"
	KindPageNumber ElementKind = "PageNumber"
)

// IsBoilerplate reports whether the kind is page furniture rather than content
func (k ElementKind) IsBoilerplate() bool {
	switch k {
	case KindHeader, KindFooter, KindPageNumber:
		return true
	}
	return false
}

// ContentElement is one structurally classified unit of extracted text.
// Values are never modified after the extractor returns them.
type ContentElement struct {
	Kind       ElementKind `json:"kind"`
	Text       string      `json:"text"`
	OrderIndex int         `json:"order_index"`
	Page       int         `json:"page"`
}

// ValidateOrder checks that order indexes are strictly increasing
func ValidateOrder(elements []ContentElement) error {
	for i := 1; i < len(elements); i++ {
		if elements[i].OrderIndex <= elements[i-1].OrderIndex {
			return fmt.Errorf("element %d has order index %d after %d",
				i, elements[i].OrderIndex, elements[i-1].OrderIndex)
		}
	}
	return nil
}

// NormalizedDocument is the prompt-ready text of one uploaded PDF
type NormalizedDocument struct {
	FullText            string `json:"full_text"`
	ElementCount        int    `json:"element_count"`
	SourceFileSizeBytes int64  `json:"source_file_size_bytes"`
}

// FileSizeMB returns the source size in megabytes rounded to two decimals
func (d NormalizedDocument) FileSizeMB() float64 {
	return BytesToMB(d.SourceFileSizeBytes)
}

// IsEmpty reports whether the document carries no extractable text
func (d NormalizedDocument) IsEmpty() bool {
	return d.FullText == ""
}

// BytesToMB converts a byte count to megabytes rounded to two decimals
func BytesToMB(n int64) float64 {
	return math.Round(float64(n)/1024/1024*100) / 100
}
