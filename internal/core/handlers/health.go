package handlers

import (
	"context"
	"net/http"
)

// VersionReporter reports the catalog schema version; *backend.Pool implements it.
type VersionReporter interface {
	Version(ctx context.Context) (string, error)
}

// Health reports process and backend status. A nil reporter means the pool
// was never opened.
func Health(ctx context.Context, vr VersionReporter) (map[string]any, int) {
	if vr == nil {
		return map[string]any{
			"status":   "DOWN",
			"lifespan": map[string]any{"status": "DOWN", "message": "application lifespan wasn't run"},
			"pgstac":   map[string]any{"status": "DOWN", "message": "Could not connect to database"},
		}, http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":   "UP",
		"lifespan": map[string]any{"status": "UP"},
	}
	version, err := vr.Version(ctx)
	if err != nil {
		resp["status"] = "DOWN"
		resp["pgstac"] = map[string]any{"status": "DOWN", "message": "Could not connect to database"}
		return resp, http.StatusServiceUnavailable
	}
	resp["pgstac"] = map[string]any{"status": "UP", "pgstac_version": version}
	return resp, http.StatusOK
}
