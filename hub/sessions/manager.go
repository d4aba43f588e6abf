// Package sessions manages hub login sessions: opaque refresh tokens stored
// in the registry database and short-lived JWT access tokens minted from
// them.
package sessions

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidAccessToken  = errors.New("invalid access token")
)

// Session is a logged-in user session carrying the current refresh token.
type Session struct {
	ID            string    `db:"id"`
	Username      string    `db:"username"`
	RefreshToken  string    `db:"refresh_token"`
	LastRefreshed time.Time `db:"last_refreshed"`
}

// Manager mints and verifies hub access tokens.
type Manager struct {
	db            *sqlx.DB
	accessExpiry  time.Duration
	sessionExpiry time.Duration
	secretKey     []byte
}

// LoadSecretKey reads the JWT signing key from path, generating and storing
// a fresh 32-byte key when the file does not exist yet.
func LoadSecretKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				return nil, fmt.Errorf("failed to generate JWT secret key: %w", err)
			}
			if err := os.WriteFile(path, b, 0600); err != nil {
				return nil, fmt.Errorf("failed to write JWT secret key: %w", err)
			}
			return b, nil
		}
		return nil, fmt.Errorf("failed to read JWT secret key: %w", err)
	}
	return key, nil
}

// NewManager creates a session manager on top of the given database and
// initializes the sessions table.
func NewManager(db *sqlx.DB, accessExpiry, sessionExpiry time.Duration, secretKey []byte) (*Manager, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions_v1 (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			last_refreshed TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &Manager{
		db:            db,
		accessExpiry:  accessExpiry,
		sessionExpiry: sessionExpiry,
		secretKey:     secretKey,
	}, nil
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateSession starts a new session for the given user and returns it with
// a fresh refresh token.
func (m *Manager) CreateSession(username string) (*Session, error) {
	token, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:            uuid.New().String(),
		Username:      username,
		RefreshToken:  token,
		LastRefreshed: time.Now().UTC(),
	}
	_, err = m.db.Exec(
		`INSERT INTO sessions_v1 (id, username, refresh_token, last_refreshed) VALUES ($1, $2, $3, $4)`,
		session.ID, session.Username, session.RefreshToken, session.LastRefreshed)
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return session, nil
}

// GetSession loads a session by ID, deleting and rejecting it when it has
// been inactive longer than the session expiry.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	var session Session
	err := m.db.Get(&session,
		`SELECT id, username, refresh_token, last_refreshed FROM sessions_v1 WHERE id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if time.Since(session.LastRefreshed) > m.sessionExpiry {
		m.DeleteSession(session.ID)
		return nil, ErrSessionExpired
	}
	return &session, nil
}

// DeleteSession removes a session, invalidating its refresh token.
func (m *Manager) DeleteSession(sessionID string) error {
	_, err := m.db.Exec(`DELETE FROM sessions_v1 WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// RefreshAccessToken validates the presented refresh token, rotates it, and
// mints a new JWT access token. It returns the access token and the rotated
// refresh token.
func (m *Manager) RefreshAccessToken(sessionID, refreshToken string) (string, string, error) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return "", "", err
	}
	if session.RefreshToken != refreshToken {
		return "", "", ErrInvalidRefreshToken
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"session_id": session.ID,
		"sub":        session.Username,
		"exp":        now.Add(m.accessExpiry).Unix(),
		"iat":        now.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	rotated, err := newRefreshToken()
	if err != nil {
		return "", "", err
	}
	_, err = m.db.Exec(
		`UPDATE sessions_v1 SET refresh_token = $1, last_refreshed = $2 WHERE id = $3`,
		rotated, now, session.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return accessToken, rotated, nil
}

// VerifyAccessToken checks a JWT access token and returns the username it
// was issued for.
func (m *Manager) VerifyAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidAccessToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidAccessToken
	}
	username, _ := claims["sub"].(string)
	if username == "" {
		return "", ErrInvalidAccessToken
	}
	return username, nil
}

// DeleteExpiredSessions removes sessions inactive longer than the session
// expiry.
func (m *Manager) DeleteExpiredSessions() error {
	cutoff := time.Now().UTC().Add(-m.sessionExpiry)
	_, err := m.db.Exec(`DELETE FROM sessions_v1 WHERE last_refreshed < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}
