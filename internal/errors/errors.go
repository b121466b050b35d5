// Package errors maps failures onto the HTTP error envelope and CLI
// diagnostics.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/hotparams"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/workspace"
)

// Envelope error codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeUnprocessable      = "UNPROCESSABLE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// HTTPError is the body of an error response.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON envelope for every non-2xx response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// AppError is an error with an envelope code and HTTP status.
type AppError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewExternalServiceError reports a dependency that could not be reached.
func NewExternalServiceError(message string) *AppError {
	return &AppError{Code: CodeExternalService, Status: http.StatusBadGateway, Message: message}
}

// NewBadRequest reports invalid caller input.
func NewBadRequest(message string, err error) *AppError {
	return &AppError{Code: CodeBadRequest, Status: http.StatusBadRequest, Message: message, Err: err}
}

// WrapInternal wraps err as an internal failure. A cancelled context is
// reported as unavailable rather than internal.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	if ctx != nil && ctx.Err() != nil {
		return &AppError{Code: CodeServiceUnavailable, Status: http.StatusServiceUnavailable, Message: message, Err: err}
	}
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// Classify picks the status and code for err.
func Classify(err error) (int, string) {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Status, appErr.Code
	case errors.Is(err, jobregistry.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, jobregistry.ErrInvalidID):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, workspace.ErrUnsupportedExecutionMode),
		errors.Is(err, workspace.ErrIncompleteGrouping),
		errors.Is(err, hotparams.ErrMalformedBlob),
		errors.Is(err, hotparams.ErrInvalidQueueLabel),
		errors.Is(err, enums.ErrUnknownEnumValue):
		return http.StatusUnprocessableEntity, CodeUnprocessable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// RespondWithError writes err as a JSON envelope. Server-side failures
// carry only the AppError message (or the status text) to the client; the
// full error goes to the log.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	if status < http.StatusInternalServerError {
		WriteError(w, r, status, code, err.Error(), nil)
		return
	}

	fields := []zap.Field{zap.Int("status", status), zap.Error(err)}
	if r != nil {
		fields = append(fields,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	}
	observability.CLILogger.Error("Request failed", fields...)
	WriteError(w, r, status, code, publicMessage(err, status), nil)
}

func publicMessage(err error, status int) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return http.StatusText(status)
}

// WriteError writes an envelope with an explicit status and code.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := HTTPErrorResponse{Error: HTTPError{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		body.Error.RequestID = middleware.GetReqID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
