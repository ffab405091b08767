package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markdave123-py/Studya/internal/core/aierr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, aierr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, aierr.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, aierr.ErrValidation):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
