package main

import (
	"encoding/json"
	"net/http"
	"time"

	"vault-refresh-agent/pkg/logger"
)

// statusMux builds the local status endpoints. Secret values never appear in
// any response; /api/secrets reports cache contents in redacted form only.
func (a *App) statusMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", withLogging(a.healthHandler))
	mux.HandleFunc("/api/status", withLogging(a.statusHandler))
	mux.HandleFunc("/api/secrets", withLogging(a.secretsHandler))
	return mux
}

func withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		logger.Info("http request",
			"method", r.Method, "path", r.URL.Path, "elapsed_ms", time.Since(start).Milliseconds())
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := a.manager.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":        serviceName,
		"uptime_seconds": int(time.Since(a.started).Seconds()),
		"state":          status,
	})
}

func (a *App) secretsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.Secrets())
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
