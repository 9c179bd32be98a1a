package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FinishReason values reported by the backend
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)

// CompletionRequest is a single chat completion call
type CompletionRequest struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	MaxOutputTokens int64
}

// Completion is the backend's answer to one request
type Completion struct {
	Text             string
	FinishReason     string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Truncated reports whether the backend stopped at the output length limit
func (c *Completion) Truncated() bool {
	return c.FinishReason == FinishLength
}

// Client interface for different LLM providers
type Client interface {
	// Complete issues exactly one completion call, with no internal retries
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Class separates failures worth retrying from those that are not
type Class int

const (
	ClassFatal Class = iota
	ClassTransient
)

func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "fatal"
}

// Error is returned by Client implementations
type Error struct {
	Class      Class
	StatusCode int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("llm %s error", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient creates a retryable error
func Transient(reason string, err error) *Error {
	return &Error{Class: ClassTransient, Reason: reason, Err: err}
}

// Fatal creates a non-retryable error
func Fatal(reason string, err error) *Error {
	return &Error{Class: ClassFatal, Reason: reason, Err: err}
}

// ClassOf classifies any error returned by a Client.
// Unknown errors are treated as fatal so they are never retried blindly.
func ClassOf(err error) Class {
	var le *Error
	if errors.As(err, &le) {
		return le.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassTransient
	}
	return ClassFatal
}

// ClassForStatus maps an HTTP status code to a retry class
func ClassForStatus(code int) Class {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusConflict,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ClassTransient
	}
	if code >= 500 {
		return ClassTransient
	}
	return ClassFatal
}
