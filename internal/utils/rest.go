package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the plain {"error": "..."} body used for validation and
// routing failures. Pipeline errors carry richer bodies built by the
// handlers themselves.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError writes a JSON error body with the given status.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithJSON writes the payload as JSON with the given status. The
// status line is already sent when encoding fails, so the error is mostly
// useful for logging.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
