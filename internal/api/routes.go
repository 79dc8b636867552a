// Package api exposes vigil's control surface: health, status, metrics,
// and a websocket event stream.
package api

import (
	"net/http"

	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/process"
	"vigil/internal/supervisor"
)

// Options carries the collaborators the routes expose.
type Options struct {
	Supervisor *supervisor.Supervisor
	Processes  *process.Registry
	Metrics    *metrics.Registry
	Bus        *event.Bus[event.Event]
	Logger     *logging.Logger
}

// RegisterRoutes installs all API endpoints on the mux.
func RegisterRoutes(mux *http.ServeMux, options Options) {
	rest := &RestHandler{
		Supervisor: options.Supervisor,
		Processes:  options.Processes,
		Metrics:    options.Metrics,
	}

	wrap := func(handler apiHandler) http.Handler {
		return loggingMiddleware(options.Logger, restHandler(handler))
	}

	mux.Handle("/healthz", wrap(rest.handleHealthz))
	mux.Handle("/status", wrap(rest.handleStatus))
	mux.Handle("/metrics", wrap(rest.handleMetrics))
	mux.Handle("/ws/events", securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Bus:    options.Bus,
		Logger: options.Logger,
	}))
}
