package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Helias/lightning/httputil"
	"github.com/Helias/lightning/hub/registry"
	"github.com/Helias/lightning/resolve"
)

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session credentials issued at login.
type LoginResponse struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken"`
}

// RefreshRequest is the token refresh payload.
type RefreshRequest struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries a fresh access token and the rotated refresh
// token.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// CreateInstanceRequest registers a new application instance.
type CreateInstanceRequest struct {
	Name    string `json:"name"`
	BinPath string `json:"binPath"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid login request: %w", err))
		return
	}

	password, exists := s.users[req.Username]
	if !exists || password != req.Password {
		httputil.WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}

	session, err := s.sessions.CreateSession(req.Username)
	if err != nil {
		httputil.WriteError(w, r, http.StatusInternalServerError, err)
		return
	}
	accessToken, rotated, err := s.sessions.RefreshAccessToken(session.ID, session.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("User logged in", "username", req.Username, "sessionID", session.ID)
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		SessionID:    session.ID,
		RefreshToken: rotated,
		AccessToken:  accessToken,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid refresh request: %w", err))
		return
	}

	accessToken, rotated, err := s.sessions.RefreshAccessToken(req.SessionID, req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, http.StatusUnauthorized, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RefreshResponse{AccessToken: accessToken, RefreshToken: rotated})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid logout request: %w", err))
		return
	}
	if err := s.sessions.DeleteSession(req.SessionID); err != nil {
		httputil.WriteError(w, r, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.reg.DefaultProject()
	if err != nil {
		httputil.WriteError(w, r, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resolve.Project{ID: project.ID, Name: project.Name})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]

	instances, err := s.reg.ListInstances(projectID)
	if err != nil {
		httputil.WriteError(w, r, http.StatusInternalServerError, err)
		return
	}

	// The wire shape matches what the resolver consumes; listing order is
	// preserved from the registry.
	out := make([]resolve.Instance, 0, len(instances))
	for _, instance := range instances {
		out = append(out, resolve.Instance{
			ID:   instance.ID,
			Name: instance.Name,
			Status: resolve.InstanceStatus{
				URL:   instance.StatusURL,
				Phase: instance.Phase,
			},
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]

	var req CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid create request: %w", err))
		return
	}
	if req.Name == "" || req.BinPath == "" {
		httputil.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("name and binPath are required"))
		return
	}

	instance, err := s.reg.CreateInstance(projectID, req.Name, req.BinPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrProjectNotFound) {
			status = http.StatusNotFound
		}
		httputil.WriteError(w, r, status, err)
		return
	}

	s.logger.Info("Instance registered", "instanceID", instance.ID, "name", instance.Name)
	httputil.WriteJSON(w, http.StatusCreated, instance)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instanceID"]

	if err := s.reg.DeleteInstance(instanceID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrInstanceNotFound) {
			status = http.StatusNotFound
		}
		httputil.WriteError(w, r, status, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
