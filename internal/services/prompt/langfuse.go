package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"document-processor/internal/domain"
)

// DefaultLangfuseURL is the hosted Langfuse endpoint
const DefaultLangfuseURL = "https://cloud.langfuse.com"

// LangfuseConfig holds the credentials for the Langfuse public API
type LangfuseConfig struct {
	BaseURL   string
	PublicKey string
	SecretKey string
	// Label is used when no explicit version is requested
	Label string
}

// LangfuseSource reads prompts from the Langfuse public API
type LangfuseSource struct {
	cfg    LangfuseConfig
	client *http.Client
	now    func() time.Time
}

// NewLangfuseSource creates a source. Timeouts come from the caller's context.
func NewLangfuseSource(cfg LangfuseConfig) *LangfuseSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLangfuseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LangfuseSource{
		cfg:    cfg,
		client: &http.Client{},
		now:    time.Now,
	}
}

type langfusePrompt struct {
	Name    string          `json:"name"`
	Version int             `json:"version"`
	Type    string          `json:"type"`
	Prompt  json.RawMessage `json:"prompt"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fetch implements Source
func (s *LangfuseSource) Fetch(ctx context.Context, name, version string) (*domain.PromptTemplate, error) {
	q := url.Values{}
	switch {
	case version != "":
		q.Set("version", version)
	case s.cfg.Label != "":
		q.Set("label", s.cfg.Label)
	}
	endpoint := fmt.Sprintf("%s/api/public/v2/prompts/%s", s.cfg.BaseURL, url.PathEscape(name))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt request: %w", err)
	}
	req.SetBasicAuth(s.cfg.PublicKey, s.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prompt request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("prompt service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p langfusePrompt
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode prompt %s: %w", name, err)
	}

	body, err := promptBody(p)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("prompt %s has an empty body", name)
	}

	if p.Name == "" {
		p.Name = name
	}
	return &domain.PromptTemplate{
		Name:      p.Name,
		Version:   strconv.Itoa(p.Version),
		Body:      body,
		FetchedAt: s.now(),
	}, nil
}

func promptBody(p langfusePrompt) (string, error) {
	if p.Type == "chat" {
		var msgs []chatMessage
		if err := json.Unmarshal(p.Prompt, &msgs); err != nil {
			return "", fmt.Errorf("invalid chat prompt: %w", err)
		}
		parts := make([]string, 0, len(msgs))
		for _, m := range msgs {
			if m.Content != "" {
				parts = append(parts, m.Content)
			}
		}
		return strings.Join(parts, "\n\n"), nil
	}

	var text string
	if err := json.Unmarshal(p.Prompt, &text); err != nil {
		return "", fmt.Errorf("invalid text prompt: %w", err)
	}
	return text, nil
}
