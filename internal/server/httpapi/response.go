// Package httpapi exposes the sync server's HTTP surface: bearer-token
// auth endpoints plus the versioned record API with its If-Match
// conditional-write contract.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes v as the response body. Success bodies are bare
// payloads (records, pages), matching what the sync client decodes.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, msg string) {
	writeJSON(w, statusCode, map[string]string{"error": msg})
}
