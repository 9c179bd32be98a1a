// Package normalize merges extracted elements into one prompt-ready text blob.
package normalize

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"document-processor/internal/domain"
)

// maxBlankRun is the longest run of blank lines kept as is; longer runs collapse to one
const maxBlankRun = 2

// ligatures U+FB00..U+FB06 as emitted by PDF fonts. Superscripts and
// subscripts (m², 10⁻³) are left alone.
var ligatures = strings.NewReplacer(
	"\uFB00", "ff",
	"\uFB01", "fi",
	"\uFB02", "fl",
	"\uFB03", "ffi",
	"\uFB04", "ffl",
	"\uFB05", "st",
	"\uFB06", "st",
)

// Options controls the optional filtering steps
type Options struct {
	// StripBoilerplate drops headers, footers and page numbers when the
	// extractor classified them. Unclassified text is always kept.
	StripBoilerplate bool
}

// Normalize is a pure function: the same elements always produce the same bytes.
// The input slice is not modified.
func Normalize(elements []domain.ContentElement, sourceSize int64, opts Options) domain.NormalizedDocument {
	ordered := make([]domain.ContentElement, len(elements))
	copy(ordered, elements)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	parts := make([]string, 0, len(ordered))
	for _, el := range ordered {
		if opts.StripBoilerplate && el.Kind.IsBoilerplate() {
			continue
		}
		parts = append(parts, ligatures.Replace(norm.NFC.String(el.Text)))
	}

	return domain.NormalizedDocument{
		FullText:            collapseBlankLines(strings.Join(parts, "\n")),
		ElementCount:        len(parts),
		SourceFileSizeBytes: sourceSize,
	}
}

func collapseBlankLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")

	out := make([]string, 0, len(lines))
	blank := 0
	flush := func() {
		if blank > maxBlankRun {
			blank = 1
		}
		for ; blank > 0; blank-- {
			out = append(out, "")
		}
	}
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			blank++
			continue
		}
		if len(out) > 0 {
			flush()
		}
		blank = 0
		out = append(out, strings.TrimRight(l, " \t"))
	}
	return strings.Join(out, "\n")
}
