package engine

import (
	"errors"

	"shelter/internal/engine/auth"
	"shelter/internal/repo"
)

// Error kinds returned by every engine operation. Callers match them with
// errors.Is; messages carry the detail.
var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = auth.ErrForbidden
	ErrNotFound     = repo.ErrNotFound
	ErrConflict     = repo.ErrConflict
	ErrInvalidState = errors.New("invalid state")
)

// Kind names the error kind of err, or "internal" when it is none of them.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	}
	return "internal"
}
