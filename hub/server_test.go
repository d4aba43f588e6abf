package hub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Helias/lightning/hub/registry"
	"github.com/Helias/lightning/hub/sessions"
	"github.com/Helias/lightning/resolve"
)

func newTestHub(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()

	reg, err := registry.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	// The session manager shares the registry database in production; an
	// independent in-memory database works just as well here.
	sessionMgr, err := sessions.NewManager(reg.DB(), 15*time.Minute, time.Hour, []byte("test-secret-key-32-bytes-long!!!"))
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	server, err := NewServer(Config{
		Registry: reg,
		Sessions: sessionMgr,
		Users:    map[string]string{"admin": "hunter2"},
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func login(t *testing.T, ts *httptest.Server) LoginResponse {
	t.Helper()

	body, _ := json.Marshal(LoginRequest{Username: "admin", Password: "hunter2"})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return loginResp
}

func authedGet(t *testing.T, ts *httptest.Server, token, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts, _ := newTestHub(t)

	body, _ := json.Marshal(LoginRequest{Username: "admin", Password: "wrong"})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts, _ := newTestHub(t)

	resp, err := http.Get(ts.URL + "/api/v1/projects/current")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp = authedGet(t, ts, "bogus-token", "/api/v1/projects/current")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestCurrentProjectAndInstances(t *testing.T) {
	ts, reg := newTestHub(t)
	creds := login(t, ts)

	resp := authedGet(t, ts, creds.AccessToken, "/api/v1/projects/current")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current project status = %d, want 200", resp.StatusCode)
	}
	var project resolve.Project
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		t.Fatalf("failed to decode project: %v", err)
	}
	if project.Name != "default" || project.ID == "" {
		t.Errorf("unexpected project: %+v", project)
	}

	created, err := reg.CreateInstance(project.ID, "quickstart", "bin/quickstart")
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	if err := reg.SetInstanceStatus(created.ID, "http://localhost:10001", registry.PhaseRunning); err != nil {
		t.Fatalf("SetInstanceStatus failed: %v", err)
	}

	resp = authedGet(t, ts, creds.AccessToken, "/api/v1/projects/"+project.ID+"/instances")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list instances status = %d, want 200", resp.StatusCode)
	}
	var instances []resolve.Instance
	if err := json.NewDecoder(resp.Body).Decode(&instances); err != nil {
		t.Fatalf("failed to decode instances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}
	if instances[0].ID != created.ID || instances[0].Name != "quickstart" {
		t.Errorf("unexpected instance: %+v", instances[0])
	}
	if instances[0].Status.URL != "http://localhost:10001" || instances[0].Status.Phase != registry.PhaseRunning {
		t.Errorf("unexpected instance status: %+v", instances[0].Status)
	}
}

func TestCreateAndDeleteInstanceOverAPI(t *testing.T) {
	ts, _ := newTestHub(t)
	creds := login(t, ts)

	// Resolve the project first.
	resp := authedGet(t, ts, creds.AccessToken, "/api/v1/projects/current")
	var project resolve.Project
	json.NewDecoder(resp.Body).Decode(&project)
	resp.Body.Close()

	body, _ := json.Marshal(CreateInstanceRequest{Name: "demo", BinPath: "bin/demo"})
	req, _ := http.NewRequest("POST", ts.URL+"/api/v1/projects/"+project.ID+"/instances", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var instance registry.Instance
	json.NewDecoder(resp.Body).Decode(&instance)
	resp.Body.Close()

	req, _ = http.NewRequest("DELETE", ts.URL+"/api/v1/instances/"+instance.ID, nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d, want 200", resp.StatusCode)
	}

	req, _ = http.NewRequest("DELETE", ts.URL+"/api/v1/instances/"+instance.ID, nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second delete request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestTokenRefreshOverAPI(t *testing.T) {
	ts, _ := newTestHub(t)
	creds := login(t, ts)

	body, _ := json.Marshal(RefreshRequest{SessionID: creds.SessionID, RefreshToken: creds.RefreshToken})
	resp, err := http.Post(ts.URL+"/api/v1/auth/refresh", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("refresh request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}
	var refreshResp RefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&refreshResp); err != nil {
		t.Fatalf("failed to decode refresh response: %v", err)
	}
	if refreshResp.AccessToken == "" || refreshResp.RefreshToken == creds.RefreshToken {
		t.Errorf("refresh must mint a token and rotate the refresh token")
	}
}
