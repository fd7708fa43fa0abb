package wallet

import (
	"sync"

	"cardroom/poker"
)

// MemoryAdapter keeps bankrolls in a map. New players start with a
// configurable balance so single-binary runs need no provisioning.
type MemoryAdapter struct {
	mu       sync.Mutex
	balances map[string]int64
	starting int64

	rakeReports []RakeReport
	archive     []ArchivedHand
}

// RakeReport is one recorded rake attribution call.
type RakeReport struct {
	Meta   HandMeta
	Shares map[string]int64
}

// ArchivedHand is one archived hand summary.
type ArchivedHand struct {
	TableID string
	Record  *poker.HandRecord
}

func NewMemoryAdapter(startingBalance int64) *MemoryAdapter {
	return &MemoryAdapter{
		balances: make(map[string]int64),
		starting: startingBalance,
	}
}

func (m *MemoryAdapter) balanceLocked(playerID string) int64 {
	if _, ok := m.balances[playerID]; !ok {
		m.balances[playerID] = m.starting
	}
	return m.balances[playerID]
}

func (m *MemoryAdapter) Reserve(playerID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceLocked(playerID) < amount {
		return ErrInsufficientFunds
	}
	m.balances[playerID] -= amount
	return nil
}

func (m *MemoryAdapter) Credit(playerID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[playerID] = m.balanceLocked(playerID) + amount
	return nil
}

func (m *MemoryAdapter) RakeContribution(meta HandMeta, perSeatShares map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shares := make(map[string]int64, len(perSeatShares))
	for k, v := range perSeatShares {
		shares[k] = v
	}
	m.rakeReports = append(m.rakeReports, RakeReport{Meta: meta, Shares: shares})
	return nil
}

func (m *MemoryAdapter) ArchiveHand(tableID string, rec *poker.HandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive = append(m.archive, ArchivedHand{TableID: tableID, Record: rec})
	return nil
}

// Balance reads a player's bankroll (tests and local tooling).
func (m *MemoryAdapter) Balance(playerID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(playerID)
}

// RakeReports returns recorded attributions (tests).
func (m *MemoryAdapter) RakeReports() []RakeReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RakeReport(nil), m.rakeReports...)
}

// ArchivedHands returns archived summaries (tests).
func (m *MemoryAdapter) ArchivedHands() []ArchivedHand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ArchivedHand(nil), m.archive...)
}

func (m *MemoryAdapter) Close() error { return nil }
