package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/carenest/internal/common"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusFor maps a service error to an HTTP status, a stable code and the
// message shown to the caller. All authentication failures look the same.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, common.ErrEmailTaken):
		return http.StatusConflict, "conflict", err.Error()
	case common.IsAuthentication(err):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case common.IsAuthorization(err):
		return http.StatusForbidden, "forbidden", rootMessage(err)
	case common.IsValidation(err):
		return http.StatusBadRequest, "validation_failed", rootMessage(err)
	case common.IsNotFound(err):
		return http.StatusNotFound, "not_found", rootMessage(err)
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// rootMessage returns the text of the innermost wrapped error so callers see
// the sentinel's message rather than internal context.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeErrorCode(w, status, code, msg)
}
