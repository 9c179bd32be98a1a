package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"document-processor/internal/domain"
	"document-processor/internal/services/extract"
)

// StatusClientClosedRequest is reported when the caller went away mid-run
const StatusClientClosedRequest = 499

// uploadError marks a request refused before extraction with a status other than 400
type uploadError struct {
	status int
	reason string
}

func (e *uploadError) Error() string {
	return e.reason
}

// rejectUpload builds the InvalidInput error for a refused upload
func rejectUpload(status int, reason, message string) error {
	return domain.InvalidInput(domain.StageUpload, message, &uploadError{status: status, reason: reason})
}

// statusFor maps a stage error to its HTTP status and error code
func statusFor(err error) (int, string) {
	var ue *uploadError
	if errors.As(err, &ue) {
		return ue.status, ErrCodeInvalidInput
	}
	var xe *extract.Error
	if errors.As(err, &xe) && xe.Kind == extract.TooLarge {
		return http.StatusRequestEntityTooLarge, ErrCodeInvalidInput
	}

	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest, ErrCodeInvalidInput
	case domain.KindExtractionFailure:
		return http.StatusUnprocessableEntity, ErrCodeExtraction
	case domain.KindPromptUnavailable:
		return http.StatusServiceUnavailable, ErrCodePromptUnavailable
	case domain.KindTemplateMismatch:
		return http.StatusInternalServerError, ErrCodeTemplateMismatch
	case domain.KindLLMTransientFailure:
		return http.StatusBadGateway, ErrCodeLLMTransient
	case domain.KindLLMFatalFailure:
		return http.StatusBadGateway, ErrCodeLLMFatal
	case domain.KindCanceled:
		return StatusClientClosedRequest, ErrCodeCanceled
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func errorInfo(err error, code string) ErrorInfo {
	info := ErrorInfo{Code: code, Message: err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		info.Stage = de.Stage
		info.Message = domain.DiagnosticOf(de).Message
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, NewErrorResponse(code, message))
}
