package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/gatekit/gatekit/internal/acl"
	"github.com/gatekit/gatekit/internal/guard"
	"github.com/gatekit/gatekit/internal/ownable"
	"github.com/gatekit/gatekit/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses. Every error kind the
// core surfaces is a local precondition, so the mapping is exhaustive and
// anything unknown is a 500.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusForbidden, "Unauthorized", err.Error())
	case errors.Is(err, guard.ErrAlreadyInitialized):
		Problem(w, http.StatusConflict, "Already Initialized", err.Error())
	case errors.Is(err, guard.ErrInvalidInitializationOrder):
		Problem(w, http.StatusConflict, "Invalid Initialization Order", err.Error())
	case errors.Is(err, ownable.ErrInvalidOwner):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Owner", err.Error())
	case errors.Is(err, acl.ErrNoStrategy),
		errors.Is(err, acl.ErrEmptyRequirement),
		errors.Is(err, acl.ErrUnknownRole):
		Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &verrs):
		Problem(w, http.StatusBadRequest, "Validation Failed", verrs.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
