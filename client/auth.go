package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// credentials is the session state persisted between CLI invocations.
type credentials struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken"`
}

type refreshRequest struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates against the hub and stores the session credentials
// on disk for later invocations.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return NewValidationError("username and password are required")
	}

	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return NewErrorWithCause(ErrorTypeValidation, "failed to marshal login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return NewErrorWithCause(ErrorTypeNetwork, "failed to create login request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("login request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WrapHTTPError(resp, "login failed")
	}

	var loginResp loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return NewErrorWithCause(ErrorTypeAPI, "failed to decode login response", err)
	}
	if loginResp.SessionID == "" || loginResp.RefreshToken == "" {
		return NewAuthenticationError("no session credentials received from hub")
	}

	if err := c.storeCredentials(credentials{
		SessionID:    loginResp.SessionID,
		RefreshToken: loginResp.RefreshToken,
	}); err != nil {
		return err
	}

	c.setAccessToken(loginResp.AccessToken)
	return nil
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token, persisting the rotated refresh token.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	creds, err := c.loadCredentials()
	if err != nil {
		return err
	}

	body, err := json.Marshal(refreshRequest{SessionID: creds.SessionID, RefreshToken: creds.RefreshToken})
	if err != nil {
		return NewErrorWithCause(ErrorTypeValidation, "failed to marshal refresh request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return NewErrorWithCause(ErrorTypeNetwork, "failed to create refresh request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("refresh request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WrapHTTPError(resp, "token refresh failed, please log in again")
	}

	var refreshResp refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&refreshResp); err != nil {
		return NewErrorWithCause(ErrorTypeAPI, "failed to decode refresh response", err)
	}

	creds.RefreshToken = refreshResp.RefreshToken
	if err := c.storeCredentials(creds); err != nil {
		return err
	}

	c.setAccessToken(refreshResp.AccessToken)
	return nil
}

// Logout terminates the current session and removes the stored
// credentials.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.loadCredentials()
	if err != nil {
		// Nothing stored, nothing to do.
		return nil
	}

	body, _ := json.Marshal(refreshRequest{SessionID: creds.SessionID, RefreshToken: creds.RefreshToken})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/auth/logout", bytes.NewReader(body))
	if err != nil {
		return NewErrorWithCause(ErrorTypeNetwork, "failed to create logout request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("logout request failed", err)
	}
	resp.Body.Close()

	c.setAccessToken("")
	if err := os.Remove(c.credentialsPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stored credentials: %w", err)
	}
	return nil
}

func (c *Client) storeCredentials(creds credentials) error {
	if err := os.MkdirAll(filepath.Dir(c.credentialsPath), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(c.credentialsPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

func (c *Client) loadCredentials() (credentials, error) {
	var creds credentials
	data, err := os.ReadFile(c.credentialsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return creds, NewAuthenticationError("not logged in, run the login command first")
		}
		return creds, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, nil
}
