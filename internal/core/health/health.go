// Package health serves the management endpoints.
package health

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/core/handlers"
)

// Ping answers without touching the backend.
func Ping() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		write(w, http.StatusOK, map[string]string{"message": "PONG"})
	}
}

// Readiness probes the catalog schema version; 503 when the backend is down.
func Readiness(vr handlers.VersionReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, code := handlers.Health(r.Context(), vr)
		write(w, code, body)
	}
}

func write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
