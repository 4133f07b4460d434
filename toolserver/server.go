package toolserver

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"

	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
)

// ServerConfig assembles the HTTP server around registered tool routes.
type ServerConfig struct {
	Version    string
	EnableCORS bool
}

// NewMux creates a mux with the system endpoints mounted: /_healtz and,
// when metrics are initialized, /metrics.
func NewMux(cfg ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()

	version := cfg.Version
	if version == "" {
		version = "???"
	}
	mux.HandleFunc("GET /_healtz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"version": version})
	})

	if h := metrics.Handler(); h != nil {
		mux.Handle("GET /metrics", h)
	}
	return mux
}

// StartServer wraps mux with the middleware chain and starts listening in
// the background. The returned server is shut down by the caller.
func StartServer(addr string, mux *http.ServeMux, cfg ServerConfig) *http.Server {
	var handler http.Handler = mux
	handler = observability.HTTPMiddleware(handler)
	if cfg.EnableCORS {
		handler = cors.AllowAll().Handler(handler)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}
