package summarize

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processor/internal/domain"
	"document-processor/internal/services/llm"
)

type step struct {
	out *llm.Completion
	err error
}

// scriptedClient replays one step per call and records the requests
type scriptedClient struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.CompletionRequest
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.steps) == 0 {
		return nil, llm.Fatal("script exhausted", nil)
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	return s.out, s.err
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func ok(text string) step {
	return step{out: &llm.Completion{Text: text, FinishReason: llm.FinishStop, Model: "gpt-4o-mini"}}
}

func transient() step {
	return step{err: &llm.Error{Class: llm.ClassTransient, StatusCode: 503, Reason: "overloaded"}}
}

var tpl = &domain.PromptTemplate{
	Name:    "paper_pitch",
	Version: "1",
	Body:    "Pitch in {{LANGUAGE}} for {{ audience }}:\n{{DOCUMENT}}",
}

func newTestOrchestrator(client llm.Client, cfg Config) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(client, cfg)
	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return o, &slept
}

func request() domain.SummarizationRequest {
	return domain.SummarizationRequest{DocumentText: "the paper"}
}

func TestSummarizeSuccess(t *testing.T) {
	client := &scriptedClient{steps: []step{ok("a pitch")}}
	o, _ := newTestOrchestrator(client, Config{})

	res := o.Summarize(context.Background(), request(), tpl)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, "a pitch", res.SummaryText)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, 1, res.Attempts)

	require.Len(t, client.requests, 1)
	sent := client.requests[0]
	assert.Equal(t, "gpt-4o-mini", sent.Model)
	assert.Equal(t, DefaultSystemInstruction, sent.SystemPrompt)
	assert.Equal(t, "Pitch in French for general technical audience:\nthe paper", sent.UserPrompt)
}

func TestSummarizeRetriesTransientThenSucceeds(t *testing.T) {
	client := &scriptedClient{steps: []step{transient(), transient(), ok("third time lucky")}}
	o, slept := newTestOrchestrator(client, Config{Retry: RetryConfig{MaxRetries: 2, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}})

	res := o.Summarize(context.Background(), request(), tpl)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, "third time lucky", res.SummaryText)
	assert.Equal(t, 3, client.calls())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestSummarizeGivesUpAfterThreeAttempts(t *testing.T) {
	client := &scriptedClient{steps: []step{transient(), transient(), transient(), ok("too late")}}
	o, _ := newTestOrchestrator(client, Config{})

	res := o.Summarize(context.Background(), request(), tpl)
	assert.Equal(t, domain.StatusFailure, res.Status)
	assert.Empty(t, res.SummaryText)
	assert.Equal(t, 3, client.calls())
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, domain.KindLLMTransientFailure, res.Diagnostics[0].Kind)
	assert.Equal(t, domain.StageSummarization, res.Diagnostics[0].Stage)
}

func TestSummarizeNeverRetriesFatal(t *testing.T) {
	client := &scriptedClient{steps: []step{{err: &llm.Error{Class: llm.ClassFatal, StatusCode: 401, Reason: "invalid api key"}}, ok("unused")}}
	o, slept := newTestOrchestrator(client, Config{FallbackModel: "gpt-4o"})

	res := o.Summarize(context.Background(), request(), tpl)
	assert.Equal(t, domain.StatusFailure, res.Status)
	assert.Equal(t, 1, client.calls())
	assert.Empty(t, *slept)
	assert.Equal(t, domain.KindLLMFatalFailure, res.Diagnostics[0].Kind)
	assert.Contains(t, res.Diagnostics[0].Message, "invalid api key")
}

func TestSummarizeTruncatedIsPartialFailure(t *testing.T) {
	client := &scriptedClient{steps: []step{{out: &llm.Completion{Text: "half a pitch", FinishReason: llm.FinishLength}}}}
	o, _ := newTestOrchestrator(client, Config{})

	res := o.Summarize(context.Background(), request(), tpl)
	assert.Equal(t, domain.StatusPartialFailure, res.Status)
	assert.Equal(t, "half a pitch", res.SummaryText)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, domain.KindTruncated, res.Diagnostics[0].Kind)
}

func TestSummarizeFallbackModel(t *testing.T) {
	client := &scriptedClient{steps: []step{transient(), transient(), transient(), ok("from fallback")}}
	o, _ := newTestOrchestrator(client, Config{FallbackModel: "gpt-4o"})

	res := o.Summarize(context.Background(), request(), tpl)
	assert.Equal(t, domain.StatusPartialFailure, res.Status)
	assert.Equal(t, "from fallback", res.SummaryText)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, "gpt-4o", client.requests[3].Model)
	assert.Equal(t, domain.KindDegraded, res.Diagnostics[0].Kind)
}

func TestSummarizeEmptyCompletionIsRetried(t *testing.T) {
	client := &scriptedClient{steps: []step{ok(""), ok("second")}}
	o, _ := newTestOrchestrator(client, Config{})

	res := o.Summarize(context.Background(), request(), tpl)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, 2, client.calls())
}

func TestSummarizeTemplateMismatch(t *testing.T) {
	client := &scriptedClient{steps: []step{ok("unused")}}
	o, _ := newTestOrchestrator(client, Config{})

	bad := &domain.PromptTemplate{Name: "old", Version: "2", Body: "Summarize in {{LANGUAGE}}"}
	res := o.Summarize(context.Background(), request(), bad)
	assert.Equal(t, domain.StatusFailure, res.Status)
	assert.Equal(t, domain.KindTemplateMismatch, res.Diagnostics[0].Kind)
	assert.Contains(t, res.Diagnostics[0].Message, "{{AUDIENCE}}, {{DOCUMENT}}")
	assert.Zero(t, client.calls())
}

func TestSummarizeCanceled(t *testing.T) {
	client := &scriptedClient{steps: []step{transient(), ok("unused")}}
	o, _ := newTestOrchestrator(client, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res := o.Summarize(ctx, request(), tpl)
	assert.Equal(t, domain.StatusFailure, res.Status)
	assert.Equal(t, domain.KindCanceled, res.Diagnostics[0].Kind)
	assert.Equal(t, 1, client.calls())
}

func TestRenderDoesNotRescanDocument(t *testing.T) {
	req := domain.SummarizationRequest{
		DocumentText:    "literal {{LANGUAGE}} in the paper",
		Language:        domain.LanguageEnglish,
		AudienceProfile: "clinicians",
	}
	out, err := Render(tpl, req)
	require.NoError(t, err)
	assert.Equal(t, "Pitch in English for clinicians:\nliteral {{LANGUAGE}} in the paper", out)
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(3, cfg))
}

// hangingClient blocks every call until its attempt deadline
type hangingClient struct {
	calls atomic.Int32
}

func (c *hangingClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	c.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSummarizeHungBackendUsesEveryAttemptWithinBudget(t *testing.T) {
	client := &hangingClient{}
	o := NewOrchestrator(client, Config{
		AttemptTimeout: 20 * time.Millisecond,
		Retry:          RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	})

	// 3 attempts of 20ms plus 1ms and 2ms of backoff, with room to spare
	ctx, cancel := context.WithTimeout(context.Background(), 63*time.Millisecond+500*time.Millisecond)
	defer cancel()

	res := o.Summarize(ctx, request(), tpl)
	assert.Equal(t, domain.StatusFailure, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, client.calls.Load())
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, domain.KindLLMTransientFailure, res.Diagnostics[0].Kind)
}
