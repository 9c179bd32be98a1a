package summarize

import (
	"fmt"
	"regexp"
	"strings"

	"document-processor/internal/domain"
)

const (
	slotLanguage = "LANGUAGE"
	slotAudience = "AUDIENCE"
	slotDocument = "DOCUMENT"
)

var (
	placeholderRe = regexp.MustCompile(`(?i)\{\{\s*(language|audience|document)\s*\}\}`)
	requiredSlots = []string{slotLanguage, slotAudience, slotDocument}
)

// Render fills the template slots in a single pass, so placeholder-like
// text inside the document is never substituted again.
func Render(tpl *domain.PromptTemplate, req domain.SummarizationRequest) (string, error) {
	if tpl == nil {
		return "", domain.TemplateMismatch("no template")
	}

	found := make(map[string]bool, len(requiredSlots))
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl.Body, -1) {
		found[strings.ToUpper(m[1])] = true
	}
	var missing []string
	for _, slot := range requiredSlots {
		if !found[slot] {
			missing = append(missing, "{{"+slot+"}}")
		}
	}
	if len(missing) > 0 {
		return "", domain.TemplateMismatch(fmt.Sprintf("template %s (version %s) is missing %s",
			tpl.Name, tpl.Version, strings.Join(missing, ", ")))
	}

	values := map[string]string{
		slotLanguage: string(req.Language),
		slotAudience: req.AudienceProfile,
		slotDocument: req.DocumentText,
	}
	return placeholderRe.ReplaceAllStringFunc(tpl.Body, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		return values[strings.ToUpper(sub[1])]
	}), nil
}
