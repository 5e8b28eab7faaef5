package httpadapter

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrFileTooLarge):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if domain.KindOf(err) == "internal" {
		message = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", domain.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"kind", domain.KindOf(err),
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

// bodyError classifies a failure while reading the multipart body. Storage
// failures that are not caused by the body are passed through unchanged.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return domain.WrapError(domain.ErrFileTooLarge, "read upload", err)
	case domain.IsKind(err, domain.ErrFileTooLarge), domain.IsKind(err, domain.ErrInvalidInput):
		return err
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	default:
		return err
	}
}
