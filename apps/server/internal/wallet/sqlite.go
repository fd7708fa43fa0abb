package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cardroom/poker"
)

const defaultLocalDBName = "cardroom_local.db"

// SQLiteAdapter persists bankrolls, rake attribution, and the hand
// archive in a local SQLite database.
type SQLiteAdapter struct {
	db       *sql.DB
	starting int64
}

func localDatabasePathFromEnv() (string, error) {
	path := strings.TrimSpace(os.Getenv("WALLET_SQLITE_PATH"))
	if path != "" {
		return path, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cardroom", defaultLocalDBName), nil
}

func NewSQLiteAdapterFromEnv() (*SQLiteAdapter, error) {
	path, err := localDatabasePathFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSQLiteAdapter(path, startingBalanceFromEnv())
}

func NewSQLiteAdapter(dbPath string, startingBalance int64) (*SQLiteAdapter, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureWalletSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteAdapter{db: db, starting: startingBalance}, nil
}

func ensureWalletSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS balances (
    player_id  TEXT PRIMARY KEY,
    balance    INTEGER NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS rake_contributions (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    table_id  TEXT NOT NULL,
    hand_id   TEXT NOT NULL,
    player_id TEXT NOT NULL,
    pot       INTEGER NOT NULL,
    share     INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS rake_hand_idx ON rake_contributions(table_id, hand_id);
CREATE TABLE IF NOT EXISTS hand_archive (
    table_id    TEXT NOT NULL,
    hand_number INTEGER NOT NULL,
    summary     TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (table_id, hand_number)
);
`)
	return err
}

func (s *SQLiteAdapter) ensureBalance(tx *sql.Tx, playerID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(`SELECT balance FROM balances WHERE player_id = ?`, playerID).Scan(&balance)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO balances (player_id, balance) VALUES (?, ?)`,
			playerID, s.starting); err != nil {
			return 0, err
		}
		return s.starting, nil
	}
	return balance, err
}

func (s *SQLiteAdapter) Reserve(playerID string, amount int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	balance, err := s.ensureBalance(tx, playerID)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	if _, err := tx.Exec(`
UPDATE balances SET balance = balance - ?, updated_at = datetime('now') WHERE player_id = ?`,
		amount, playerID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteAdapter) Credit(playerID string, amount int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := s.ensureBalance(tx, playerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
UPDATE balances SET balance = balance + ?, updated_at = datetime('now') WHERE player_id = ?`,
		amount, playerID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteAdapter) RakeContribution(meta HandMeta, perSeatShares map[string]int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for playerID, share := range perSeatShares {
		if _, err := tx.Exec(`
INSERT INTO rake_contributions (table_id, hand_id, player_id, pot, share)
VALUES (?, ?, ?, ?, ?)`,
			meta.TableID, meta.HandID, playerID, meta.Pot, share); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteAdapter) ArchiveHand(tableID string, rec *poker.HandRecord) error {
	summary, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO hand_archive (table_id, hand_number, summary) VALUES (?, ?, ?)
ON CONFLICT (table_id, hand_number) DO UPDATE SET summary = excluded.summary`,
		tableID, rec.HandNumber, string(summary))
	return err
}

// Balance reads a player's bankroll.
func (s *SQLiteAdapter) Balance(playerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(`SELECT balance FROM balances WHERE player_id = ?`, playerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return s.starting, nil
	}
	return balance, err
}

func (s *SQLiteAdapter) Close() error { return s.db.Close() }
