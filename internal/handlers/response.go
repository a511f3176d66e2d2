package handlers

import (
	"encoding/json"
	"net/http"
)

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Health reports liveness and whether a provider credential is configured.
func Health(providerConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":              "ok",
			"provider_configured": providerConfigured,
		})
	}
}
