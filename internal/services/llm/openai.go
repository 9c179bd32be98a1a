package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog/log"
)

type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client. The SDK's own retries are disabled;
// retry policy belongs to the caller.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIClient{
		client: client,
		model:  model,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxOutputTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, Transient("no choices in response", nil)
	}

	choice := resp.Choices[0]
	if string(choice.FinishReason) == FinishContentFilter {
		return nil, Fatal("content policy rejection", nil)
	}

	out := &Completion{
		Text:             strings.TrimSpace(choice.Message.Content),
		FinishReason:     string(choice.FinishReason),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	log.Ctx(ctx).Debug().
		Str("model", out.Model).
		Str("finish_reason", out.FinishReason).
		Int64("prompt_tokens", out.PromptTokens).
		Int64("completion_tokens", out.CompletionTokens).
		Msg("Completion received")

	return out, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		class := ClassForStatus(apiErr.StatusCode)
		reason := apiErr.Message
		if isContentPolicy(apiErr.Code) {
			class = ClassFatal
			reason = "content policy rejection: " + reason
		}
		return &Error{Class: class, StatusCode: apiErr.StatusCode, Reason: reason, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Class: ClassOf(err), Err: err}
}

func isContentPolicy(code string) bool {
	return code == "content_policy_violation" || code == "content_filter"
}
