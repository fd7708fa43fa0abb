// Package identity resolves bearer tokens to verified player
// identities. The game core consumes only the Resolver interface; the
// account store behind it is an external concern.
package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Identity is a verified player.
type Identity struct {
	ID          string
	DisplayName string
}

var ErrInvalidToken = errors.New("invalid or expired token")

// Resolver maps a bearer token to a player identity.
type Resolver interface {
	Resolve(token string) (Identity, error)
}

// Service is the full account surface: the Resolver plus the account
// operations used by local runs and tests.
type Service interface {
	Resolver
	Register(username, password string) (Identity, string, error)
	Login(username, password string) (Identity, string, error)
	Logout(token string)
	Close() error
}

const (
	ModeMemory = "memory"
	ModeDB     = "db"
)

func modeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("IDENTITY_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeDB, "postgres", "postgresql":
		return ModeDB
	default:
		return raw
	}
}

// NewServiceFromEnv selects the identity backend from IDENTITY_MODE.
func NewServiceFromEnv() (Service, string, error) {
	mode := modeFromEnv()
	switch mode {
	case ModeMemory:
		return NewManager(), mode, nil
	case ModeDB:
		svc, err := NewPostgresServiceFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid IDENTITY_MODE %q (supported: %s, %s)", mode, ModeMemory, ModeDB)
	}
}
