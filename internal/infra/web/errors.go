package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/infra/logging"
)

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorInfo `json:"error"`
}

// writeError maps domain errors onto the HTTP taxonomy. Unknown errors
// are logged and reported as a bare INTERNAL.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	msg := err.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrTenantRequired):
		status, code, msg = http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, domain.ErrAuthRequired):
		status, code, msg = http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required"
	case errors.Is(err, domain.ErrNotFound):
		status, code, msg = http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrActiveJobExists), errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrJobNotClaimable):
		status, code, msg = http.StatusConflict, "CONFLICT", err.Error()
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, errorBody{Error: errorInfo{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}
