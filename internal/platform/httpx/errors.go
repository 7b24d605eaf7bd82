// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps classified domain errors to HTTP responses using RFC7807.
// Business-rule rejections surface their message verbatim so the calling layer
// can render it directly.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.KindState:
		Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case shared.KindIntegrity:
		Problem(w, http.StatusInternalServerError, "Ledger Integrity Violation", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
