package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// newTestHub fakes the hub auth and directory endpoints. Directory
// endpoints require the Bearer token minted at login/refresh.
func newTestHub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "admin" || req.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(loginResponse{
			SessionID:    "sess-1",
			RefreshToken: "refresh-1",
			AccessToken:  "access-1",
		})
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.SessionID != "sess-1" || req.RefreshToken == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(refreshResponse{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
		})
	})
	mux.HandleFunc("/api/v1/projects/current", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"proj-1","name":"default"}`))
	})
	mux.HandleFunc("/api/v1/projects/proj-1/instances", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" && r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"id":"a","name":"foo","status":{"url":"","phase":"pending"}},{"id":"b","name":"bar","status":{"url":"http://x","phase":"running"}}]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(baseURL, WithCredentialsPath(filepath.Join(t.TempDir(), "credentials")))
}

func TestLoginStoresCredentials(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub.URL)

	if err := c.Login(context.Background(), "admin", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	data, err := os.ReadFile(c.credentialsPath)
	if err != nil {
		t.Fatalf("credentials not stored: %v", err)
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		t.Fatalf("stored credentials are not valid JSON: %v", err)
	}
	if creds.SessionID != "sess-1" || creds.RefreshToken != "refresh-1" {
		t.Errorf("unexpected stored credentials: %+v", creds)
	}
	if c.getAccessToken() != "access-1" {
		t.Errorf("access token = %q, want access-1", c.getAccessToken())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub.URL)

	err := c.Login(context.Background(), "admin", "wrong")
	if !IsAuthenticationError(err) {
		t.Fatalf("expected authentication error, got %v", err)
	}

	if err := c.Login(context.Background(), "", ""); !IsValidationError(err) {
		t.Errorf("expected validation error for empty credentials, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub.URL)

	if err := c.Login(context.Background(), "admin", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := c.RefreshAccessToken(context.Background()); err != nil {
		t.Fatalf("RefreshAccessToken failed: %v", err)
	}

	creds, err := c.loadCredentials()
	if err != nil {
		t.Fatalf("loadCredentials failed: %v", err)
	}
	if creds.RefreshToken != "refresh-2" {
		t.Errorf("refresh token = %q, want rotated refresh-2", creds.RefreshToken)
	}
	if c.getAccessToken() != "access-2" {
		t.Errorf("access token = %q, want access-2", c.getAccessToken())
	}
}

func TestRefreshWithoutLogin(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub.URL)

	if err := c.RefreshAccessToken(context.Background()); !IsAuthenticationError(err) {
		t.Errorf("expected authentication error when not logged in, got %v", err)
	}
}

func TestDirectoryCapability(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub.URL)

	if err := c.Login(context.Background(), "admin", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	project, err := c.CurrentProject(context.Background())
	if err != nil {
		t.Fatalf("CurrentProject failed: %v", err)
	}
	if project.ID != "proj-1" {
		t.Errorf("project ID = %q, want proj-1", project.ID)
	}

	instances, err := c.ListInstances(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(instances))
	}
	// Listing order is preserved from the wire.
	if instances[0].Name != "foo" || instances[1].Name != "bar" {
		t.Errorf("unexpected instance order: %s, %s", instances[0].Name, instances[1].Name)
	}
	if instances[0].Status.URL != "" || instances[1].Status.URL != "http://x" {
		t.Errorf("unexpected status URLs: %q, %q", instances[0].Status.URL, instances[1].Status.URL)
	}
}

func TestAutomaticRetryOn401(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(refreshResponse{AccessToken: "fresh", RefreshToken: "rotated"})
	})
	mux.HandleFunc("/api/v1/projects/current", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"proj-1","name":"default"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, server.URL)
	if err := c.storeCredentials(credentials{SessionID: "sess-1", RefreshToken: "stale"}); err != nil {
		t.Fatalf("storeCredentials failed: %v", err)
	}

	project, err := c.CurrentProject(context.Background())
	if err != nil {
		t.Fatalf("CurrentProject failed: %v", err)
	}
	if project.ID != "proj-1" {
		t.Errorf("project ID = %q, want proj-1", project.ID)
	}
	if calls != 2 {
		t.Errorf("expected exactly one retry after 401, got %d calls", calls)
	}
}
