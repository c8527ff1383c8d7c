package api

import (
	"errors"
	"net/http"

	"github.com/marketloop/shopdb/internal/models"
)

// statusForError maps the core error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConstraint), errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, models.ErrConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a typed core error as an HTTP response.
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusForError(err))
}
