package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
)

const httpShutdownTimeout = 5 * time.Second

type httpServer struct {
	mux    *http.ServeMux
	server *http.Server
}

// RegisterHTTPHandler mounts handler on the HTTP server listening on port.
// Servers start with Run and stop when it returns.
func (d *Dispatcher) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	d.httpServersMu.Lock()
	defer d.httpServersMu.Unlock()

	if d.httpServers == nil {
		d.httpServers = make(map[int]*httpServer)
	}

	srv, ok := d.httpServers[port]
	if !ok {
		srv = &httpServer{mux: http.NewServeMux()}
		d.httpServers[port] = srv
	}

	srv.mux.Handle(pattern, handler)
}

func (d *Dispatcher) registerIntrospection() {
	if d.Conf == nil || !d.Conf.MetricsEnabled || d.Conf.MetricsPort <= 0 {
		return
	}
	port := d.Conf.MetricsPort
	d.RegisterHTTPHandler(port, "/metrics", promhttp.HandlerFor(d.promRegistry, promhttp.HandlerOpts{}))
	d.RegisterHTTPHandler(port, "/api/handlers", http.HandlerFunc(d.handleGetHandlers))
	d.RegisterHTTPHandler(port, "/api/queue", http.HandlerFunc(d.handleGetQueue))
}

func (d *Dispatcher) startHTTPServers() {
	d.registerIntrospection()

	d.httpServersMu.Lock()
	defer d.httpServersMu.Unlock()

	for port, srv := range d.httpServers {
		addr := fmt.Sprintf(":%d", port)
		srv.server = &http.Server{Addr: addr, Handler: srv.mux, ReadHeaderTimeout: 10 * time.Second}
		d.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}(srv.server)
	}
}

func (d *Dispatcher) stopHTTPServers() {
	d.httpServersMu.Lock()
	defer d.httpServersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	for _, srv := range d.httpServers {
		if srv.server == nil {
			continue
		}
		if err := srv.server.Shutdown(ctx); err != nil {
			d.Logger.Error("Failed to stop HTTP server", err, loggingpkg.LogFields{"address": srv.server.Addr})
		}
	}
}

func (d *Dispatcher) handleGetHandlers(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, d.Handlers())
}

func (d *Dispatcher) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	stats := d.queue.Stats()
	d.writeJSON(w, map[string]int{
		"ready":         stats.Ready,
		"in_flight":     stats.InFlight,
		"conversations": stats.Conversations,
		"backlogged":    stats.Backlogged,
	})
}

func (d *Dispatcher) writeJSON(w http.ResponseWriter, v any) {
	body, err := jsoncodec.Marshal(v)
	if err != nil {
		d.Logger.Error("Failed to encode response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
