// Package rpc is the JSON/HTTP boundary the presentation layer talks to:
// registry snapshots, origination, acceptance, quotes and balances, plus
// health and metrics endpoints.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tezexlabs/coordinator/coordinator"
	"github.com/tezexlabs/coordinator/models"
)

var Logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Address               string
	AllowedOrigins        []string
	EnableMetrics         bool
	RatePerMinute         int
	MaxConcurrentRequests int
}

// Server wraps the HTTP server and provides lifecycle management
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	mux        *chi.Mux
}

// NewServer creates the HTTP server over a coordinator session.
func NewServer(config *ServerConfig, session *coordinator.Session) *Server {
	mux := chi.NewMux()

	// zerolog middleware replaces chi's default logger
	mux.Use(zerologMiddleware)
	mux.Use(zerologRecoverer)

	// Standard middleware
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Compress(5))
	mux.Use(middleware.Timeout(60 * time.Second))
	mux.Use(realIPMiddleware)

	// Rate limiting
	if config.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(config.RatePerMinute, 1*time.Minute))
	}
	if config.MaxConcurrentRequests > 0 {
		mux.Use(middleware.Throttle(config.MaxConcurrentRequests))
	}

	if config.EnableMetrics {
		mux.Handle("/server/metrics", promhttp.Handler())
		Logger.Info().Msg("Metrics endpoint enabled: /server/metrics")
	}

	mux.HandleFunc("/server/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"swap-coordinator"}`))
	})
	mux.HandleFunc("/server/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	h := newHandlers(session)
	mux.Route("/api", func(r chi.Router) {
		r.Get("/swaps", h.listSwaps)
		r.Get("/swaps/{hashedSecret}", h.getSwap)
		r.Post("/swaps", h.originate)
		r.Post("/swaps/{hashedSecret}/accept", h.accept)
		r.Get("/quote", h.quote)
		r.Get("/balances", h.balances)
		r.Get("/waiting", h.waiting)
	})

	// Advance mutations drive the transition counter; the presentation
	// layer polls snapshots, the metrics follow the observer.
	session.Registry.Subscribe(func(record models.SwapRecord) {
		swapTransitions.WithLabelValues(record.State.String()).Inc()
	})

	handler := newCORSHandler(config.AllowedOrigins, mux)

	return &Server{
		config: config,
		mux:    mux,
		httpServer: &http.Server{
			Addr:              config.Address,
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	Logger.Info().Str("address", s.config.Address).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	Logger.Info().Msg("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
