package api

import (
	"net/http"
	"time"

	"vigil/internal/metrics"
	"vigil/internal/process"
	"vigil/internal/supervisor"
	"vigil/internal/version"
)

// RestHandler serves the plain JSON endpoints of the control API.
type RestHandler struct {
	Supervisor *supervisor.Supervisor
	Processes  *process.Registry
	Metrics    *metrics.Registry
}

type processSummary struct {
	PID        int    `json:"pid"`
	Generation uint64 `json:"generation"`
	Name       string `json:"name"`
}

type statusResponse struct {
	supervisor.Status
	Processes  []processSummary `json:"processes"`
	Version    string           `json:"version"`
	ServerTime time.Time        `json:"server_time"`
}

func (h *RestHandler) handleHealthz(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
	return nil
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}

	entries := h.Processes.Active()
	processes := make([]processSummary, 0, len(entries))
	for _, entry := range entries {
		processes = append(processes, processSummary{
			PID:        entry.PID,
			Generation: entry.Generation,
			Name:       entry.Name,
		})
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:     h.Supervisor.Status(),
		Processes:  processes,
		Version:    version.Version,
		ServerTime: time.Now().UTC(),
	})
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = h.Metrics.WritePrometheus(w)
	return nil
}
