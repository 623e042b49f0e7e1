package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON envelope for error responses.
type ErrorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteErrorResponse writes a JSON error envelope.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorBody{Error: message, Code: code, Details: details})
}

// Unauthorized writes a 401 response with an optional message.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "unauthorized"
	}
	WriteErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}
