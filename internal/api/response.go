package api

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"ok": false, "error": message})
}

func respondIgnored(w http.ResponseWriter, reason string) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true, "reason": reason})
}
