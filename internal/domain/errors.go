package domain

import (
	"context"
	"errors"
	"fmt"
)

// Stage names a pipeline step for diagnostics
type Stage string

const (
	StageUpload           Stage = "upload"
	StageExtraction       Stage = "extraction"
	StageNormalization    Stage = "normalization"
	StagePromptResolution Stage = "prompt_resolution"
	StageSummarization    Stage = "summarization"
)

// ErrorKind is the error taxonomy shared by every stage
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "InvalidInput"
	KindExtractionFailure   ErrorKind = "ExtractionFailure"
	KindPromptUnavailable   ErrorKind = "PromptUnavailable"
	KindTemplateMismatch    ErrorKind = "TemplateMismatch"
	KindLLMTransientFailure ErrorKind = "LLMTransientFailure"
	KindLLMFatalFailure     ErrorKind = "LLMFatalFailure"
	KindTruncated           ErrorKind = "Truncated"
	KindDegraded            ErrorKind = "Degraded"
	KindCanceled            ErrorKind = "Canceled"
	KindInternal            ErrorKind = "Internal"
)

// Error is a stage error with its kind
type Error struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Stage, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Stage, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new stage error
func NewError(kind ErrorKind, stage Stage, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

func InvalidInput(stage Stage, message string, err error) *Error {
	return NewError(KindInvalidInput, stage, message, err)
}

func ExtractionFailure(message string, err error) *Error {
	return NewError(KindExtractionFailure, StageExtraction, message, err)
}

func PromptUnavailable(message string, err error) *Error {
	return NewError(KindPromptUnavailable, StagePromptResolution, message, err)
}

func TemplateMismatch(message string) *Error {
	return NewError(KindTemplateMismatch, StageSummarization, message, nil)
}

func LLMTransientFailure(message string, err error) *Error {
	return NewError(KindLLMTransientFailure, StageSummarization, message, err)
}

func LLMFatalFailure(message string, err error) *Error {
	return NewError(KindLLMFatalFailure, StageSummarization, message, err)
}

func Canceled(stage Stage, err error) *Error {
	return NewError(KindCanceled, stage, "request canceled", err)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

// AtStage returns err as a stage error. An existing *Error keeps its kind
// and only gains the stage if it had none.
func AtStage(stage Stage, kind ErrorKind, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		if de.Stage == "" {
			cp := *de
			cp.Stage = stage
			return &cp
		}
		return de
	}
	if errors.Is(err, context.Canceled) {
		return Canceled(stage, err)
	}
	return NewError(kind, stage, err.Error(), err)
}

// DiagnosticOf converts an error into a diagnostic entry
func DiagnosticOf(err error) Diagnostic {
	var de *Error
	if errors.As(err, &de) {
		msg := de.Message
		if de.Err != nil {
			msg = fmt.Sprintf("%s: %v", de.Message, de.Err)
		}
		return Diagnostic{Stage: de.Stage, Kind: de.Kind, Message: msg}
	}
	return Diagnostic{Kind: KindOf(err), Message: err.Error()}
}
