// File: internal/infra/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"iamoneai-gateway/internal/config"
	"iamoneai-gateway/internal/domain/ports/adapter"
	"iamoneai-gateway/internal/usecase"
)

// Pinger probes a backing store. A nil Pinger means the store was never
// configured, which health reporting distinguishes from an unreachable one.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP surface of the gateway.
type Server struct {
	chat     usecase.ChatUseCase
	router   adapter.ModelRouter
	redis    Pinger
	db       Pinger
	defaults config.DefaultsConfig
	log      *zerolog.Logger
}

func NewServer(chat usecase.ChatUseCase, router adapter.ModelRouter, redisPing, dbPing Pinger, defaults config.DefaultsConfig, logger *zerolog.Logger) *Server {
	return &Server{
		chat:     chat,
		router:   router,
		redis:    redisPing,
		db:       dbPing,
		defaults: defaults,
		log:      logger,
	}
}

// Routes builds the router with the middleware chain applied to the API
// subtree. Probe endpoints stay outside the request timeout so a wedged
// upstream cannot mask liveness.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Get("/health/ready", s.handleReady)
	r.Get("/health/live", s.handleLive)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(TraceID())
		r.Use(RequestLog(s.log))
		r.Use(Recover(s.log))
		r.Use(Timeout(chatRequestTimeout))

		r.Post("/chat", s.handleChat)
		r.Post("/chat/complete", s.handleComplete)
		r.Get("/chat/history", s.handleHistory)
		r.Delete("/chat/history", s.handleClearHistory)
		r.Get("/models", s.handleModels)
	})

	return r
}

// chatRequestTimeout bounds the whole request, slightly above the slowest
// provider timeout so the adapter error surfaces first.
const chatRequestTimeout = 125 * time.Second
