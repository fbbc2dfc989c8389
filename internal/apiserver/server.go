package apiserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/agent"
	"github.com/pharmesol/pharmabot/internal/store"
	"github.com/pharmesol/pharmabot/pkg/api"
)

// AgentFactory builds a fresh conversation engine for a new session. Injected
// so tests can substitute stub gateways and directories.
type AgentFactory func() *agent.Agent

// Server is the pharmabot REST API server. It exposes session lifecycle
// endpoints and delegates persistence to the Store.
type Server struct {
	router   *mux.Router
	store    store.Store
	newAgent AgentFactory
	mode     string
	logger   *zap.Logger
	server   *http.Server

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// liveSession pairs a session record with its in-memory engine. The mutex
// serializes message handling per session; concurrent requests for different
// sessions proceed in parallel.
type liveSession struct {
	mu    sync.Mutex
	agent *agent.Agent
	rec   api.Session
}

// NewServer creates a fully-wired Server ready to Start().
func NewServer(addr string, s store.Store, newAgent AgentFactory, mode string, logger *zap.Logger) *Server {
	srv := &Server{
		router:   mux.NewRouter(),
		store:    s,
		newAgent: newAgent,
		mode:     mode,
		logger:   logger,
		sessions: make(map[string]*liveSession),
	}
	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // message handling waits on the LLM
	}
	srv.registerRoutes()
	return srv
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
