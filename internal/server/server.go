// Package server exposes the analysis engine over HTTP.
//
// Responsibilities:
//   - REST API for triggering analyses and browsing stored run history
//   - Websocket stream of run lifecycle events
//   - Liveness/readiness probes and the Prometheus scrape endpoint
//   - CORS, request ID, tracing, logging, and recovery middleware
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/store"
)

// Server is the resilitics HTTP API.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	store  store.Store
	logger *zap.Logger

	hub        *Hub
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a server around an engine and its store. The engine's run
// lifecycle events are routed to the websocket hub.
func New(cfg *config.Config, eng *engine.Engine, st store.Store, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		engine: eng,
		store:  st,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.hub = NewHub(ctx, logger)
	eng.SetNotifier(s.hub)
	return s, nil
}

// Start begins serving. It returns immediately; use Stop for shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		AllowCredentials: true,
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      c.Handler(s.Routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("http server listening", zap.Int("port", s.cfg.Server.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests, closes websocket clients, and waits for the
// server goroutines to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown", zap.Error(err))
	}

	s.hub.Stop()
	s.cancel()
	s.wg.Wait()

	s.logger.Info("http server stopped")
	return nil
}

// Wait blocks until the server context is canceled.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Routes assembles the full handler tree: probes and metrics at the root,
// REST and websocket endpoints under /api/v1.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(tracingMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(s.recoveryMiddleware)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	healthz := NewHealthzHandler(s.store)
	router.HandleFunc("/healthz", healthz.Live).Methods("GET")
	router.HandleFunc("/healthz/live", healthz.Live).Methods("GET")
	router.HandleFunc("/healthz/ready", healthz.Ready).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	h := NewHandler(s.cfg, s.engine, s.store, s.logger)
	SetupRoutes(api, h)

	stream := NewStreamHandler(s.hub, s.cfg.Server.AllowedOrigins, s.logger)
	api.HandleFunc("/stream", stream.ServeWS).Methods("GET")
	api.HandleFunc("/runs/{id}/stream", stream.ServeWS).Methods("GET")

	return router
}
