package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrMissingIdentity indicates a mutation without an authenticated caller
var ErrMissingIdentity = errors.New("authentication required")

// ErrorBody is the JSON error payload
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse wraps ErrorBody
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", promptz.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// StatusFor maps an error onto an HTTP status and a stable error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, promptz.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrMissingIdentity):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, promptz.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, promptz.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, promptz.ErrUnknownKind):
		return http.StatusNotFound, "unknown_kind"
	case errors.Is(err, promptz.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		message = "An internal server error occurred"
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}
