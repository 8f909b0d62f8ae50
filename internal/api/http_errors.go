package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusBadRequest, true
	case core.ErrCatPrecondition:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatState:
		return http.StatusConflict, true
	case core.ErrCatSynthesis:
		return http.StatusBadGateway, true
	case core.ErrCatAuth:
		return http.StatusUnauthorized, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps err to a status and writes it with its code.
// Errors outside the domain become 500 without leaking their text.
func respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, status, domainErrorBody(err))
}

func domainErrorBody(err error) errorBody {
	var domErr *core.DomainError
	if errors.As(err, &domErr) && domErr != nil {
		return errorBody{Error: domErr.Message, Code: domErr.Code}
	}
	return errorBody{Error: err.Error()}
}
