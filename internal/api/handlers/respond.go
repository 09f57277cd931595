package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondMissingFields writes the 400 validation response, naming
// every missing field.
func respondMissingFields(w http.ResponseWriter, fields ...string) {
	respondError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(fields, ", "))
}
