// Package hub implements the directory service: the authenticated HTTP API
// that maps a project to its registered application instances and their
// current network addresses.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Helias/lightning/hub/registry"
	"github.com/Helias/lightning/hub/sessions"
	"github.com/Helias/lightning/httputil"
)

// Config holds configuration for the hub server.
type Config struct {
	Registry *registry.Registry
	Sessions *sessions.Manager
	// Users maps usernames to passwords accepted at login.
	Users      map[string]string
	ListenAddr string       // Optional, defaults to ":8099"
	Logger     *slog.Logger // Optional, defaults to slog.Default()
}

// Server is the hub's HTTP API server.
type Server struct {
	reg        *registry.Registry
	sessions   *sessions.Manager
	users      map[string]string
	listenAddr string
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a hub API server.
func NewServer(config Config) (*Server, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	listenAddr := config.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8099"
	}

	return &Server{
		reg:        config.Registry,
		sessions:   config.Sessions,
		users:      config.Users,
		listenAddr: listenAddr,
		logger:     logger.With("component", "HubServer"),
	}, nil
}

// Handler returns the hub's HTTP handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")
	router.HandleFunc("/api/v1/auth/refresh", s.handleRefresh).Methods("POST")
	router.HandleFunc("/api/v1/auth/logout", s.handleLogout).Methods("POST")

	authed := router.PathPrefix("/api/v1").Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/projects/current", s.handleCurrentProject).Methods("GET")
	authed.HandleFunc("/projects/{projectID}/instances", s.handleListInstances).Methods("GET")
	authed.HandleFunc("/projects/{projectID}/instances", s.handleCreateInstance).Methods("POST")
	authed.HandleFunc("/instances/{instanceID}", s.handleDeleteInstance).Methods("DELETE")

	return router
}

// ListenAndServe starts the server and blocks until the context is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Hub API listening", "addr", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("hub server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// authMiddleware rejects requests without a valid Bearer access token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httputil.WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}
		if _, err := s.sessions.VerifyAccessToken(token); err != nil {
			httputil.WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid access token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
