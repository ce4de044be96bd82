package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zeusync/worldcore/internal/core/observability/metrics"
)

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// Router serves the websocket endpoint, health checks and, when a
// collector is given, Prometheus metrics.
func (s *Server) Router(collector *metrics.TickCollector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/ws", s.ServeWebSocket)
	r.Get("/healthz", s.handleHealth)
	if collector != nil {
		r.Handle("/metrics", collector.Handler())
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Clients: s.Clients.Len()})
}
