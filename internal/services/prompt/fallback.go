package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"document-processor/internal/domain"
)

// DefaultKey matches any prompt name without a dedicated fallback
const DefaultKey = "*"

// DefaultTemplate is served when the prompt service cannot provide one
var DefaultTemplate = domain.PromptTemplate{
	Name:    "builtin-default",
	Version: "0",
	Body: `You are preparing a five-minute spoken pitch of a scientific paper for the following audience: {{AUDIENCE}}.
Write the whole pitch in {{LANGUAGE}}.

Start with the problem the paper addresses and why it matters. Then explain the approach, the key results with their figures, and the main limitations.
Stay under 700 words. Only use facts stated in the paper.

Paper:
{{DOCUMENT}}`,
}

// Fallbacks maps prompt names to local templates
type Fallbacks map[string]*domain.PromptTemplate

// DefaultFallbacks holds only the built-in default
func DefaultFallbacks() Fallbacks {
	tpl := DefaultTemplate
	return Fallbacks{DefaultKey: &tpl}
}

// Lookup returns the fallback for name, or the catch-all default
func (f Fallbacks) Lookup(name string) (*domain.PromptTemplate, bool) {
	if tpl, ok := f[name]; ok {
		return tpl, true
	}
	tpl, ok := f[DefaultKey]
	return tpl, ok
}

type fallbackFile struct {
	Prompts []struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Body    string `yaml:"body"`
	} `yaml:"prompts"`
}

// LoadFallbacks reads local templates from a YAML file and merges them over base:
//
//	prompts:
//	  - name: paper_pitch
//	    version: local-1
//	    body: |
//	      ...
func LoadFallbacks(path string, base Fallbacks) (Fallbacks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback prompts: %w", err)
	}

	var file fallbackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fallback prompts %s: %w", path, err)
	}

	out := make(Fallbacks, len(base)+len(file.Prompts))
	for k, v := range base {
		out[k] = v
	}
	for i, p := range file.Prompts {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Body) == "" {
			return nil, fmt.Errorf("fallback prompt #%d in %s needs a name and a body", i+1, path)
		}
		version := p.Version
		if version == "" {
			version = "local"
		}
		out[p.Name] = &domain.PromptTemplate{Name: p.Name, Version: version, Body: p.Body}
	}
	return out, nil
}
