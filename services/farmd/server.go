// Package farmd serves a read-only HTTP view of the farm, a websocket event
// feed and scheduled snapshot exports.
package farmd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftfarm/core"
	"nftfarm/crypto"
)

// Reader is the read surface of the farm node.
type Reader interface {
	Status() (*core.Status, error)
	Pools() ([]core.PoolView, error)
	Rewards() ([]core.RewardView, error)
	Holder(addr [20]byte) (*core.HolderView, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Node      Reader
	Hub       *Hub
	Limiter   *RateLimiter
	Logger    *slog.Logger
	Telemetry bool
}

// Server encapsulates the HTTP API.
type Server struct {
	node   Reader
	hub    *Hub
	logger *slog.Logger
	router http.Handler
}

// New constructs the router.
func New(cfg Config) (*Server, error) {
	if cfg.Node == nil {
		return nil, errors.New("farmd: node required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(logger)
	}
	srv := &Server{node: cfg.Node, hub: hub, logger: logger}
	srv.router = srv.buildRouter(cfg.Limiter, cfg.Telemetry)
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the event hub feeding /v1/events.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) buildRouter(limiter *RateLimiter, telemetry bool) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		if limiter != nil {
			api.Use(limiter.Middleware)
		}
		api.Get("/farm", s.getStatus)
		api.Get("/pools", s.getPools)
		api.Get("/rewards", s.getRewards)
		api.Get("/holders/{addr}", s.getHolder)
		api.Get("/events", s.hub.handleEvents)
	})

	if telemetry {
		return otelhttp.NewHandler(r, "farmd")
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "farmd request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.node.Status()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.node.Pools()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pools": pools})
}

func (s *Server) getRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.node.Rewards()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rewards": rewards})
}

func (s *Server) getHolder(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	view, err := s.node.Holder(addr)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
