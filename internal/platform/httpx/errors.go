// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/saheli-shg/saheli/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var ce *shared.ConfigError
	var ve *shared.ValidationError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrPeriodClosed):
		Problem(w, http.StatusConflict, "Period Closed", err.Error())
	case errors.Is(err, shared.ErrOpenPeriodExists):
		Problem(w, http.StatusConflict, "Open Period Exists", err.Error())
	case errors.Is(err, shared.ErrCloseInProgress):
		Problem(w, http.StatusConflict, "Close In Progress", err.Error())
	case errors.Is(err, shared.ErrNegativeStanding):
		Problem(w, http.StatusUnprocessableEntity, "Negative Standing", err.Error())
	case errors.Is(err, shared.ErrOverRepayment):
		Problem(w, http.StatusUnprocessableEntity, "Over Repayment", err.Error())
	case errors.As(err, &ce):
		FieldProblem(w, http.StatusBadRequest, "Invalid Configuration", ce.Reason, ce.Field)
	case errors.As(err, &ve):
		FieldProblem(w, http.StatusBadRequest, "Validation Failed", ve.Reason, ve.Field)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
