// internal/handler/respond.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
)

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code: 400 for invalid input, 404 for
// unknown campaigns or users, 500 for anything else. Internal errors are
// logged and hidden from the caller.
func WriteError(w http.ResponseWriter, l *slog.Logger, err error) {
	switch {
	case appErrors.IsValidation(err):
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case appErrors.IsNotFound(err):
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		l.Error("request failed", "error", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
