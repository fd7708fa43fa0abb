// Package wallet is the money boundary. The game core reserves buy-ins,
// credits winnings, and reports per-seat rake attribution through the
// narrow Adapter interface; balances live outside the core.
package wallet

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cardroom/poker"
)

// HandMeta identifies one finished hand for rake attribution.
type HandMeta struct {
	TableID string
	HandID  string
	Pot     int64
}

var ErrInsufficientFunds = errors.New("insufficient funds")

// Adapter is the wallet contract the core consumes.
type Adapter interface {
	// Reserve debits a buy-in from the player's bankroll.
	Reserve(playerID string, amount int64) error
	// Credit returns chips to the player's bankroll.
	Credit(playerID string, amount int64) error
	// RakeContribution reports each seat's weighted contribution share
	// for a finished hand. The core never computes rake amounts itself.
	RakeContribution(meta HandMeta, perSeatShares map[string]int64) error
	Close() error
}

// HandArchiver is an optional upgrade some backends implement: a
// best-effort per-hand summary archive.
type HandArchiver interface {
	ArchiveHand(tableID string, rec *poker.HandRecord) error
}

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
	ModeDB     = "db"
)

func modeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("WALLET_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeSQLite, "local":
		return ModeSQLite
	case ModeDB, "postgres", "postgresql":
		return ModeDB
	default:
		return raw
	}
}

func startingBalanceFromEnv() int64 {
	raw := strings.TrimSpace(os.Getenv("WALLET_STARTING_BALANCE"))
	if raw == "" {
		return 100000
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 100000
	}
	return v
}

// NewServiceFromEnv selects the wallet backend from WALLET_MODE.
func NewServiceFromEnv() (Adapter, string, error) {
	mode := modeFromEnv()
	switch mode {
	case ModeMemory:
		return NewMemoryAdapter(startingBalanceFromEnv()), mode, nil
	case ModeSQLite:
		svc, err := NewSQLiteAdapterFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	case ModeDB:
		svc, err := NewPostgresAdapterFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid WALLET_MODE %q (supported: %s, %s, %s)",
			mode, ModeMemory, ModeSQLite, ModeDB)
	}
}
