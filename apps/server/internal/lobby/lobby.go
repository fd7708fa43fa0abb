// Package lobby is the table registry. It keeps one seatable system
// table alive per (variant, stake) class and registers user-created
// tables alongside.
package lobby

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"cardroom/apps/server/internal/protocol"
	"cardroom/apps/server/internal/table"
	"cardroom/apps/server/internal/wallet"
	"cardroom/poker"
)

// StakeDef is one configured stake level.
type StakeDef struct {
	Label    string
	Blinds   poker.Blinds
	MinBuyIn int64
	MaxBuyIn int64
}

// DefaultStakes is the stake table used when none is configured.
var DefaultStakes = []StakeDef{
	{Label: "1/2", Blinds: poker.Blinds{Small: 1, Big: 2}, MinBuyIn: 40, MaxBuyIn: 200},
	{Label: "5/10", Blinds: poker.Blinds{Small: 5, Big: 10}, MinBuyIn: 200, MaxBuyIn: 1000},
	{Label: "25/50", Blinds: poker.Blinds{Small: 25, Big: 50}, MinBuyIn: 1000, MaxBuyIn: 5000},
}

const idleTableTTL = 10 * time.Minute

type classKey struct {
	variant poker.Variant
	stake   string
}

// Lobby manages all tables.
type Lobby struct {
	mu       sync.RWMutex
	tables   map[string]*table.Table
	counters map[classKey]uint64
	stakes   []StakeDef
	variants []poker.Variant
	wallet   wallet.Adapter

	// tableNotify is handed to each table actor; listChanged fires when
	// tables appear or disappear. Both are wired before Bootstrap.
	tableNotify func(t *table.Table)
	listChanged func()

	janitorOnce sync.Once
	done        chan struct{}
}

// New creates an empty lobby over the given stake definitions.
func New(walletAdapter wallet.Adapter, stakes []StakeDef, variants []poker.Variant) *Lobby {
	if len(stakes) == 0 {
		stakes = DefaultStakes
	}
	if len(variants) == 0 {
		variants = poker.Variants
	}
	return &Lobby{
		tables:   make(map[string]*table.Table),
		counters: make(map[classKey]uint64),
		stakes:   stakes,
		variants: variants,
		wallet:   walletAdapter,
		done:     make(chan struct{}),
	}
}

// SetNotifiers wires the session layer's callbacks. Must be called
// before Bootstrap.
func (l *Lobby) SetNotifiers(tableNotify func(t *table.Table), listChanged func()) {
	l.tableNotify = tableNotify
	l.listChanged = listChanged
}

// Bootstrap provisions one system table per (variant, stake) pair and
// starts the idle-table janitor.
func (l *Lobby) Bootstrap() {
	l.mu.Lock()
	for _, v := range l.variants {
		for _, stake := range l.stakes {
			if _, err := l.provisionSystemTableLocked(v, stake); err != nil {
				log.Printf("[Lobby] Bootstrap table failed (%s %s): %v", v, stake.Label, err)
			}
		}
	}
	count := len(l.tables)
	l.mu.Unlock()

	log.Printf("[Lobby] Bootstrapped %d system tables", count)
	l.changed()

	l.janitorOnce.Do(func() { go l.janitor() })
}

func (l *Lobby) stakeByLabel(label string) (StakeDef, bool) {
	for _, s := range l.stakes {
		if s.Label == label {
			return s, true
		}
	}
	return StakeDef{}, false
}

func classLabel(label string) string {
	return strings.ReplaceAll(label, "/", "-")
}

func (l *Lobby) provisionSystemTableLocked(v poker.Variant, stake StakeDef) (*table.Table, error) {
	key := classKey{variant: v, stake: stake.Label}
	l.counters[key]++
	id := fmt.Sprintf("sys_%s_%s_%d", v, classLabel(stake.Label), l.counters[key])

	t, err := table.New(table.Config{
		ID:          id,
		Variant:     v,
		BettingType: poker.BettingNoLimit,
		Blinds:      stake.Blinds,
		StakeLabel:  stake.Label,
		System:      true,
		MinBuyIn:    stake.MinBuyIn,
		MaxBuyIn:    stake.MaxBuyIn,
	}, l.wallet, l.tableNotify)
	if err != nil {
		return nil, err
	}
	l.tables[id] = t
	return t, nil
}

// EnsureCapacity provisions a fresh system table when every table in
// the joined table's (variant, stake) class is at its seat cap. Called
// by the session layer after every successful join.
func (l *Lobby) EnsureCapacity(v poker.Variant, stakeLabel string) {
	stake, ok := l.stakeByLabel(stakeLabel)
	if !ok {
		return
	}

	l.mu.Lock()
	open := false
	for _, t := range l.tables {
		cfg := t.Config()
		if cfg.Variant != v || cfg.StakeLabel != stakeLabel || t.IsClosed() {
			continue
		}
		if t.Game().SeatedCount() < t.ProjectFor("").MaxSeats {
			open = true
			break
		}
	}
	var created *table.Table
	if !open {
		t, err := l.provisionSystemTableLocked(v, stake)
		if err != nil {
			log.Printf("[Lobby] Auto-provision failed (%s %s): %v", v, stakeLabel, err)
		} else {
			created = t
		}
	}
	l.mu.Unlock()

	if created != nil {
		log.Printf("[Lobby] Auto-provisioned %s (class full)", created.ID)
		l.changed()
	}
}

// CreateUserTable registers a player-created table. User tables are not
// auto-replenished.
func (l *Lobby) CreateUserTable(v poker.Variant, stakeLabel string, blinds poker.Blinds, betting poker.BettingType) (*table.Table, error) {
	if !v.Valid() {
		return nil, poker.NewError(poker.CodeActionIllegal, fmt.Sprintf("unknown variant %q", v))
	}
	if betting == "" {
		betting = poker.BettingNoLimit
	}
	if blinds.Small <= 0 || blinds.Big <= 0 {
		return nil, poker.NewError(poker.CodeActionIllegal, "invalid blinds")
	}
	if stakeLabel == "" {
		stakeLabel = fmt.Sprintf("%d/%d", blinds.Small, blinds.Big)
	}

	l.mu.Lock()
	key := classKey{variant: v, stake: "usr:" + stakeLabel}
	l.counters[key]++
	id := fmt.Sprintf("usr_%s_%s_%d", v, classLabel(stakeLabel), l.counters[key])

	t, err := table.New(table.Config{
		ID:          id,
		Variant:     v,
		BettingType: betting,
		Blinds:      blinds,
		StakeLabel:  stakeLabel,
		System:      false,
		MinBuyIn:    blinds.Big * 20,
		MaxBuyIn:    blinds.Big * 100,
	}, l.wallet, l.tableNotify)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.tables[id] = t
	l.mu.Unlock()

	log.Printf("[Lobby] User table %s created", id)
	l.changed()
	return t, nil
}

// Get returns a table by id.
func (l *Lobby) Get(tableID string) (*table.Table, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tables[tableID]
	return t, ok
}

// Summaries lists every open table for the lobby channel.
func (l *Lobby) Summaries() []protocol.TableSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]protocol.TableSummary, 0, len(l.tables))
	for _, t := range l.tables {
		cfg := t.Config()
		view := t.ProjectFor("")
		out = append(out, protocol.TableSummary{
			TableID:     cfg.ID,
			Variant:     string(cfg.Variant),
			BettingType: string(cfg.BettingType),
			StakeLabel:  cfg.StakeLabel,
			Blinds:      cfg.Blinds,
			System:      cfg.System,
			Seated:      t.Game().SeatedCount(),
			MaxSeats:    view.MaxSeats,
			HandNumber:  view.HandNumber,
			Stage:       view.Stage,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableID < out[j].TableID })
	return out
}

func (l *Lobby) changed() {
	if l.listChanged != nil {
		l.listChanged()
	}
}

// janitor reaps idle tables: user tables unconditionally, system tables
// only down to one seatable table per class.
func (l *Lobby) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.reapIdle()
		case <-l.done:
			return
		}
	}
}

func (l *Lobby) reapIdle() {
	l.mu.Lock()
	classCount := make(map[classKey]int)
	for _, t := range l.tables {
		cfg := t.Config()
		if cfg.System && t.Game().SeatedCount() < t.ProjectFor("").MaxSeats {
			classCount[classKey{variant: cfg.Variant, stake: cfg.StakeLabel}]++
		}
	}

	var reaped []string
	for id, t := range l.tables {
		if !t.IsIdleFor(idleTableTTL) {
			continue
		}
		cfg := t.Config()
		if cfg.System {
			key := classKey{variant: cfg.Variant, stake: cfg.StakeLabel}
			if classCount[key] <= 1 {
				continue // always keep one seatable table per class
			}
			classCount[key]--
		}
		t.Stop()
		delete(l.tables, id)
		reaped = append(reaped, id)
	}
	l.mu.Unlock()

	if len(reaped) > 0 {
		log.Printf("[Lobby] Reaped idle tables: %s", strings.Join(reaped, ", "))
		l.changed()
	}
}

// Close stops the janitor and every table actor.
func (l *Lobby) Close() {
	close(l.done)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.tables {
		t.Stop()
	}
}
