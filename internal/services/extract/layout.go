package extract

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"document-processor/internal/domain"
)

const (
	titleScale      = 1.2
	maxTitleRunes   = 200
	wordGapRatio    = 0.25
	cellGapRatio    = 2.0
	paragraphGap    = 1.8
	minTableColumns = 3
)

var (
	listItemRe   = regexp.MustCompile(`^\s*(?:[•●◦▪‣∙·\-–—*]|\(?\d{1,2}[.)]|\(?[a-z]\))\s+\S`)
	pageNumberRe = regexp.MustCompile(`(?i)^(?:page\s*|p\.\s*|-\s*)?\d{1,4}(?:\s*(?:/|of|sur)\s*\d{1,4})?(?:\s*-)?$`)
	digitsRe     = regexp.MustCompile(`\d+`)
)

type glyph struct {
	X, Y, W float64
	Size    float64
	S       string
}

type line struct {
	Text  string
	Cells []string
	Size  float64
	Y     float64
	Page  int
}

// buildLines groups positioned glyphs into text lines ordered top to bottom
func buildLines(glyphs []glyph, page int) []line {
	if len(glyphs) == 0 {
		return nil
	}
	sorted := append([]glyph(nil), glyphs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > 0.5 {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []line
	var cur []glyph
	flush := func() {
		if l, ok := joinGlyphs(cur, page); ok {
			lines = append(lines, l)
		}
		cur = cur[:0]
	}
	for _, g := range sorted {
		if len(cur) > 0 {
			tolerance := math.Max(2, 0.3*math.Max(g.Size, cur[0].Size))
			if math.Abs(g.Y-cur[0].Y) > tolerance {
				flush()
			}
		}
		cur = append(cur, g)
	}
	flush()
	return lines
}

func joinGlyphs(gs []glyph, page int) (line, bool) {
	if len(gs) == 0 {
		return line{}, false
	}
	ordered := append([]glyph(nil), gs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].X < ordered[j].X })

	var cells []string
	var cell strings.Builder
	size := 0.0
	for i, g := range ordered {
		size = math.Max(size, g.Size)
		if i > 0 {
			prev := ordered[i-1]
			gap := g.X - (prev.X + prev.W)
			em := math.Max(g.Size, 1)
			switch {
			case gap > cellGapRatio*em:
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			case gap > wordGapRatio*em && prev.S != " " && g.S != " ":
				cell.WriteByte(' ')
			}
		}
		cell.WriteString(g.S)
	}
	cells = append(cells, strings.TrimSpace(cell.String()))

	nonEmpty := cells[:0]
	for _, c := range cells {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 0 {
		return line{}, false
	}
	return line{
		Text:  strings.Join(nonEmpty, " "),
		Cells: nonEmpty,
		Size:  size,
		Y:     ordered[0].Y,
		Page:  page,
	}, true
}

// classify labels every line and merges runs into elements in reading order
func classify(pages [][]line) []domain.ContentElement {
	body := bodySize(pages)
	headers, footers := repeatedEdges(pages)

	var out []domain.ContentElement
	emit := func(kind domain.ElementKind, text string, page int) {
		out = append(out, domain.ContentElement{
			Kind:       kind,
			Text:       text,
			OrderIndex: len(out),
			Page:       page,
		})
	}

	for _, lines := range pages {
		var para []line
		var table []line
		flushPara := func() {
			if len(para) > 0 {
				emit(domain.KindNarrativeText, joinParagraph(para), para[0].Page)
				para = nil
			}
		}
		flushTable := func() {
			if len(table) > 0 {
				rows := make([]string, len(table))
				for i, l := range table {
					rows[i] = strings.Join(l.Cells, "\t")
				}
				emit(domain.KindTable, strings.Join(rows, "\n"), table[0].Page)
				table = nil
			}
		}

		for i, l := range lines {
			kind := kindOf(l, i, len(lines), body, headers, footers)
			if kind != domain.KindNarrativeText {
				flushPara()
			}
			if kind != domain.KindTable {
				flushTable()
			}
			switch kind {
			case domain.KindNarrativeText:
				if len(para) > 0 {
					prev := para[len(para)-1]
					if prev.Y-l.Y > paragraphGap*math.Max(prev.Size, l.Size) {
						flushPara()
					}
				}
				para = append(para, l)
			case domain.KindTable:
				table = append(table, l)
			default:
				emit(kind, l.Text, l.Page)
			}
		}
		flushPara()
		flushTable()
	}
	return out
}

func kindOf(l line, idx, count int, body float64, headers, footers map[string]bool) domain.ElementKind {
	edgeTop := idx == 0
	edgeBottom := idx == count-1
	text := strings.TrimSpace(l.Text)

	if (edgeTop || edgeBottom) && pageNumberRe.MatchString(text) {
		return domain.KindPageNumber
	}
	if edgeTop && headers[edgeKey(text)] {
		return domain.KindHeader
	}
	if edgeBottom && footers[edgeKey(text)] {
		return domain.KindFooter
	}
	if !hasLetter(text) {
		return domain.KindOther
	}
	if body > 0 && l.Size >= titleScale*body && utf8.RuneCountInString(text) <= maxTitleRunes {
		return domain.KindTitle
	}
	if listItemRe.MatchString(text) {
		return domain.KindListItem
	}
	if len(l.Cells) >= minTableColumns {
		return domain.KindTable
	}
	return domain.KindNarrativeText
}

// bodySize is the character-weighted most common font size
func bodySize(pages [][]line) float64 {
	weights := make(map[float64]int)
	for _, lines := range pages {
		for _, l := range lines {
			if l.Size <= 0 {
				continue
			}
			weights[math.Round(l.Size*2)/2] += utf8.RuneCountInString(l.Text)
		}
	}
	best, bestW := 0.0, 0
	for size, w := range weights {
		if w > bestW || (w == bestW && size < best) {
			best, bestW = size, w
		}
	}
	return best
}

// repeatedEdges finds first and last lines that recur on at least half of the pages
func repeatedEdges(pages [][]line) (headers, footers map[string]bool) {
	headers, footers = map[string]bool{}, map[string]bool{}
	if len(pages) < 2 {
		return headers, footers
	}
	top, bottom := map[string]int{}, map[string]int{}
	for _, lines := range pages {
		if len(lines) < 2 {
			continue
		}
		top[edgeKey(lines[0].Text)]++
		bottom[edgeKey(lines[len(lines)-1].Text)]++
	}
	threshold := (len(pages) + 1) / 2
	if threshold < 2 {
		threshold = 2
	}
	for k, n := range top {
		if k != "" && n >= threshold {
			headers[k] = true
		}
	}
	for k, n := range bottom {
		if k != "" && n >= threshold {
			footers[k] = true
		}
	}
	return headers, footers
}

func edgeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(digitsRe.ReplaceAllString(s, "#")))
}

func joinParagraph(lines []line) string {
	var b strings.Builder
	for i, l := range lines {
		text := strings.TrimSpace(l.Text)
		if i > 0 {
			prev := b.String()
			if strings.HasSuffix(prev, "-") && startsLower(text) {
				b.Reset()
				b.WriteString(strings.TrimSuffix(prev, "-"))
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(text)
	}
	return b.String()
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func startsLower(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLower(r)
}
