// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared across the domain layer.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrDuplicate      = errors.New("duplicate entry")
	ErrValidation     = errors.New("validation failed")
	ErrStaleSelection = errors.New("selection is no longer billable")
	ErrLinesMismatch  = errors.New("bill lines do not cover the selected challans")
	ErrLocked         = errors.New("record is locked by billing")
)

// Failure codes surfaced to API clients.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeStaleSelection = "STALE_SELECTION"
	CodeLinesMismatch  = "LINES_MISMATCH"
	CodeConflict       = "CONFLICT"
	CodeNotFound       = "NOT_FOUND"
	CodeLocked         = "LOCKED"
	CodeFailed         = "FAILED"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Infrastructure errors leak no detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		ProblemCode(w, http.StatusNotFound, CodeNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		ProblemCode(w, http.StatusConflict, CodeConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		ProblemCode(w, http.StatusBadRequest, CodeValidation, "Validation Failed", err.Error())
	case errors.Is(err, ErrStaleSelection):
		ProblemCode(w, http.StatusConflict, CodeStaleSelection, "Stale Selection", err.Error())
	case errors.Is(err, ErrLinesMismatch):
		ProblemCode(w, http.StatusConflict, CodeLinesMismatch, "Lines Mismatch", err.Error())
	case errors.Is(err, ErrLocked):
		ProblemCode(w, http.StatusConflict, CodeLocked, "Locked", err.Error())
	default:
		ProblemCode(w, http.StatusInternalServerError, CodeFailed, "Internal Error", "")
	}
}
