// Package appserver implements the HTTP surface every running application
// instance exposes: a command manifest, command execution, and a health
// probe. The manifest endpoint is what the endpoint resolver queries to
// discover which commands an app supports.
package appserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/Helias/lightning/httputil"
)

// DefaultPort is the well-known port a local app server listens on. Clients
// resolving an absent identifier probe this port first.
const DefaultPort = 7501

// Param describes a single parameter accepted by a command.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Command describes a remote command exposed by an app.
type Command struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Params      []Param `json:"params,omitempty"`
}

// Manifest is the document served at /api/v1/commands.
type Manifest struct {
	App      string    `json:"app"`
	Commands []Command `json:"commands"`
}

// HandlerFunc executes a command with the given arguments and returns a
// JSON-serializable result.
type HandlerFunc func(ctx context.Context, args map[string]string) (interface{}, error)

// Server serves the command API for a single application.
type Server struct {
	appName string
	port    int
	logger  *slog.Logger

	mu       sync.RWMutex
	order    []string
	commands map[string]Command
	handlers map[string]HandlerFunc

	httpServer *http.Server
}

// ServerOption represents a functional option for configuring the Server.
type ServerOption func(*Server)

// WithPort overrides the default listen port.
func WithPort(port int) ServerOption {
	return func(s *Server) {
		s.port = port
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an app server for the named application.
func NewServer(appName string, options ...ServerOption) *Server {
	s := &Server{
		appName:  appName,
		port:     DefaultPort,
		logger:   slog.Default(),
		commands: make(map[string]Command),
		handlers: make(map[string]HandlerFunc),
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With("component", "AppServer", "app", appName)
	return s
}

// Register adds a command and its handler. Registering the same command
// name twice is an error.
func (s *Server) Register(cmd Command, handler HandlerFunc) error {
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if handler == nil {
		return fmt.Errorf("handler for command %q is required", cmd.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.commands[cmd.Name]; exists {
		return fmt.Errorf("command %q is already registered", cmd.Name)
	}
	s.order = append(s.order, cmd.Name)
	s.commands[cmd.Name] = cmd
	s.handlers[cmd.Name] = handler
	return nil
}

// Manifest returns the manifest document in registration order.
func (s *Server) Manifest() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest := Manifest{App: s.appName, Commands: make([]Command, 0, len(s.order))}
	for _, name := range s.order {
		manifest.Commands = append(manifest.Commands, s.commands[name])
	}
	return manifest
}

// Handler returns the HTTP handler serving the command API.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/commands", s.handleManifest).Methods("GET")
	router.HandleFunc("/api/v1/commands/{name}", s.handleExecute).Methods("POST")
	router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	return router
}

// ListenAndServe starts the server and blocks until the context is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("App server listening", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("app server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.Manifest())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "app": s.appName})
}

// ExecuteRequest is the body accepted by the command execution endpoint.
type ExecuteRequest struct {
	Args map[string]string `json:"args,omitempty"`
	Env  map[string]string `json:"env,omitempty"`
}

type envContextKey struct{}

// EnvFromContext returns the environment variables attached to a command
// execution request, or nil when the caller sent none.
func EnvFromContext(ctx context.Context) map[string]string {
	env, _ := ctx.Value(envContextKey{}).(map[string]string)
	return env
}

// ExecuteResponse wraps a command result.
type ExecuteResponse struct {
	Command string      `json:"command"`
	Result  interface{} `json:"result"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	s.mu.RLock()
	cmd, exists := s.commands[name]
	handler := s.handlers[name]
	s.mu.RUnlock()
	if !exists {
		httputil.WriteError(w, r, http.StatusNotFound, fmt.Errorf("unknown command %q", name))
		return
	}

	var execReq ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&execReq); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	for _, param := range cmd.Params {
		if param.Required {
			if _, ok := execReq.Args[param.Name]; !ok {
				httputil.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("missing required parameter %q for command %q", param.Name, name))
				return
			}
		}
	}

	ctx := r.Context()
	if len(execReq.Env) > 0 {
		ctx = context.WithValue(ctx, envContextKey{}, execReq.Env)
	}
	result, err := handler(ctx, execReq.Args)
	if err != nil {
		httputil.WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("command %q failed: %w", name, err))
		return
	}

	s.logger.Info("Command executed", "command", name)
	httputil.WriteJSON(w, http.StatusOK, ExecuteResponse{Command: name, Result: result})
}
