package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processor/internal/config"
	"document-processor/internal/services/prompt"
)

func TestFallbacks(t *testing.T) {
	fb, err := Fallbacks(config.PromptConfig{})
	require.NoError(t, err)
	_, ok := fb.Lookup("anything")
	assert.True(t, ok)

	fb, err = Fallbacks(config.PromptConfig{DefaultDisabled: true})
	require.NoError(t, err)
	_, ok = fb.Lookup("anything")
	assert.False(t, ok)
}

func TestFallbacksFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`prompts:
  - name: paper_pitch
    version: local-1
    body: "Pitch {{DOCUMENT}} in {{LANGUAGE}} for {{AUDIENCE}}"
`), 0o600))

	fb, err := Fallbacks(config.PromptConfig{FallbackFile: path, DefaultDisabled: true})
	require.NoError(t, err)

	tpl, ok := fb.Lookup("paper_pitch")
	require.True(t, ok)
	assert.Equal(t, "local-1", tpl.Version)

	_, ok = fb.Lookup(prompt.DefaultKey)
	assert.False(t, ok)
}

func TestNewPipeline(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := config.Load()
	require.NoError(t, err)

	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, p.Controller)
	assert.Equal(t, cfg.Server.MaxUploadBytes(), p.Extractor.MaxSize())
	assert.Equal(t, 0, p.Resolver.Len())
}
