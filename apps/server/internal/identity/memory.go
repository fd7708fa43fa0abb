package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32
)

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// Manager provides in-memory account/session management for
// single-binary deployment. It can be swapped for the database backend
// without changing gateway contracts.
type Manager struct {
	mu sync.Mutex

	sessionTTL    time.Duration
	sessions      map[string]sessionRecord
	accountsByID  map[string]accountRecord
	accountsByKey map[string]string // normalized username -> player id
}

type sessionRecord struct {
	PlayerID  string
	ExpiresAt time.Time
}

type accountRecord struct {
	PlayerID     string
	Username     string
	PasswordHash []byte
	LastLoginAt  time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessionTTL:    defaultSessionTTL,
		sessions:      make(map[string]sessionRecord),
		accountsByID:  make(map[string]accountRecord),
		accountsByKey: make(map[string]string),
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(strings.TrimSpace(username)) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func (m *Manager) issueSessionLocked(playerID string, now time.Time) string {
	token := mustToken()
	m.sessions[token] = sessionRecord{
		PlayerID:  playerID,
		ExpiresAt: now.Add(m.sessionTTL),
	}
	return token
}

// Register creates a new account and returns an authenticated session
// token.
func (m *Manager) Register(username, password string) (Identity, string, error) {
	if err := validateUsername(username); err != nil {
		return Identity{}, "", err
	}
	if err := validatePassword(password); err != nil {
		return Identity{}, "", err
	}

	normalized := normalizeUsername(username)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accountsByKey[normalized]; exists {
		return Identity{}, "", ErrUsernameTaken
	}

	now := time.Now()
	playerID := uuid.NewString()
	m.accountsByID[playerID] = accountRecord{
		PlayerID:     playerID,
		Username:     normalized,
		PasswordHash: passwordHash,
		LastLoginAt:  now,
	}
	m.accountsByKey[normalized] = playerID

	token := m.issueSessionLocked(playerID, now)
	return Identity{ID: playerID, DisplayName: normalized}, token, nil
}

// Login validates credentials and returns a fresh session.
func (m *Manager) Login(username, password string) (Identity, string, error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return Identity{}, "", ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	playerID, exists := m.accountsByKey[normalized]
	if !exists {
		return Identity{}, "", ErrInvalidCredentials
	}
	profile := m.accountsByID[playerID]
	if bcrypt.CompareHashAndPassword(profile.PasswordHash, []byte(password)) != nil {
		return Identity{}, "", ErrInvalidCredentials
	}

	now := time.Now()
	profile.LastLoginAt = now
	m.accountsByID[playerID] = profile
	token := m.issueSessionLocked(playerID, now)
	return Identity{ID: playerID, DisplayName: profile.Username}, token, nil
}

// Resolve validates and refreshes a session token.
func (m *Manager) Resolve(token string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	rec, exists := m.sessions[token]
	if !exists {
		return Identity{}, ErrInvalidToken
	}
	if !now.Before(rec.ExpiresAt) {
		delete(m.sessions, token)
		return Identity{}, ErrInvalidToken
	}
	rec.ExpiresAt = now.Add(m.sessionTTL)
	m.sessions[token] = rec

	profile := m.accountsByID[rec.PlayerID]
	return Identity{ID: rec.PlayerID, DisplayName: profile.Username}, nil
}

// Logout invalidates a session token.
func (m *Manager) Logout(token string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func (m *Manager) Close() error { return nil }

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
