// Package table runs one poker table as an actor: every mutation flows
// through a single event queue, so the engine never sees concurrency.
package table

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cardroom/apps/server/internal/anticheat"
	"cardroom/apps/server/internal/wallet"
	"cardroom/poker"
)

// Config describes one table.
type Config struct {
	ID          string
	Variant     poker.Variant
	BettingType poker.BettingType
	Blinds      poker.Blinds
	StakeLabel  string
	System      bool
	MinBuyIn    int64
	MaxBuyIn    int64
}

// EventType enumerates actor messages.
type EventType int

const (
	EventJoin EventType = iota
	EventLeave
	EventAction
	EventStartHand
	EventChangeSeat
	EventConnLost
	EventConnResume
	EventClose
)

// Event is one message to the table actor.
type Event struct {
	Type     EventType
	PlayerID string
	Name     string
	Seat     int
	Amount   int64
	Action   poker.ActionKind
	// serverApplied marks engine-driven actions (turn timeouts) that
	// bypass the anti-cheat gate.
	serverApplied bool
	Response      chan error
}

var ErrTableClosed = errors.New("table closed")

const (
	turnTimeLimit   = 30 * time.Second
	disconnectGrace = 30 * time.Second
	nextHandDelay   = 5 * time.Second
	creditAttempts  = 3
	tickInterval    = 250 * time.Millisecond
)

// creditFailure is a pot award the wallet would not accept yet; the
// chips stay on the awarded stack until reconciliation succeeds.
type creditFailure struct {
	PlayerID string
	Amount   int64
	HandID   string
	At       time.Time
}

// Table is the per-table actor.
type Table struct {
	ID  string
	cfg Config

	mu       sync.RWMutex
	game     *poker.Game
	closed   bool
	stopOnce sync.Once

	events chan Event
	done   chan struct{}

	validator *anticheat.Validator
	wallet    wallet.Adapter

	// notify is invoked after every observable mutation; the session
	// layer projects and fans out from there.
	notify func(t *Table)

	graceUntil      map[string]time.Time
	nextHandAt      time.Time
	emptySince      time.Time
	lastSettledHand uint64

	reconcile []creditFailure
}

// New creates a table and starts its actor loop.
func New(cfg Config, walletAdapter wallet.Adapter, notify func(t *Table)) (*Table, error) {
	game, err := poker.NewGame(poker.Config{
		Variant:     cfg.Variant,
		BettingType: cfg.BettingType,
		Blinds:      cfg.Blinds,
	})
	if err != nil {
		return nil, fmt.Errorf("create game for table %s: %w", cfg.ID, err)
	}

	t := &Table{
		ID:         cfg.ID,
		cfg:        cfg,
		game:       game,
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
		validator:  anticheat.New(),
		wallet:     walletAdapter,
		notify:     notify,
		graceUntil: make(map[string]time.Time),
		emptySince: time.Now(),
	}
	go t.run()

	log.Printf("[Table %s] Created (%s %s, blinds %d/%d)",
		cfg.ID, cfg.Variant, cfg.BettingType, cfg.Blinds.Small, cfg.Blinds.Big)
	return t, nil
}

func (t *Table) Config() Config { return t.cfg }

// Validator exposes the table's anti-cheat state (flag inspection).
func (t *Table) Validator() *anticheat.Validator { return t.validator }

// run is the actor loop: events are applied in arrival order, and a
// sub-second heartbeat drives the turn clock, disconnect grace, and
// next-hand scheduling.
func (t *Table) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-t.events:
			err := t.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-ticker.C:
			t.tick()
		case <-t.done:
			log.Printf("[Table %s] Actor stopped", t.ID)
			return
		}
	}
}

// SubmitEvent sends an event to the actor and waits for the result.
func (t *Table) SubmitEvent(e Event) error {
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrTableClosed
	}

	select {
	case t.events <- e:
	case <-t.done:
		return ErrTableClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-t.done:
		return ErrTableClosed
	}
}

func (t *Table) handleEvent(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed && e.Type != EventClose {
		return ErrTableClosed
	}

	switch e.Type {
	case EventJoin:
		return t.handleJoin(e.PlayerID, e.Name, e.Amount, e.Seat)
	case EventLeave:
		return t.handleLeave(e.PlayerID)
	case EventAction:
		return t.handleAction(e.PlayerID, e.Action, e.Amount, e.serverApplied)
	case EventStartHand:
		return t.handleStartHand()
	case EventChangeSeat:
		return t.handleChangeSeat(e.PlayerID, e.Seat)
	case EventConnLost:
		return t.handleConnLost(e.PlayerID)
	case EventConnResume:
		return t.handleConnResume(e.PlayerID)
	case EventClose:
		t.stopLocked()
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
}

func (t *Table) handleJoin(playerID, name string, buyIn int64, seatIdx int) error {
	// A disconnected player re-joining re-attaches mid-hand: same seat,
	// same stack, same cards.
	if idx, _, ok := t.game.SeatOf(playerID); ok {
		if _, _, err := t.game.AddSeat(playerID, name, 1, idx); err != nil {
			return err
		}
		delete(t.graceUntil, playerID)
		log.Printf("[Table %s] Player %s re-attached at seat %d", t.ID, playerID, idx)
		t.notifyLocked()
		return nil
	}

	if buyIn < t.cfg.MinBuyIn || buyIn > t.cfg.MaxBuyIn {
		return poker.NewError(poker.CodeActionIllegal,
			fmt.Sprintf("buy-in %d outside %d-%d", buyIn, t.cfg.MinBuyIn, t.cfg.MaxBuyIn))
	}

	// Reserve before the seat mutation commits; a failed reservation
	// rejects the seat.
	if err := t.wallet.Reserve(playerID, buyIn); err != nil {
		return fmt.Errorf("buy-in rejected: %w", err)
	}

	assigned, started, err := t.game.AddSeat(playerID, name, buyIn, seatIdx)
	if err != nil {
		if creditErr := t.wallet.Credit(playerID, buyIn); creditErr != nil {
			log.Printf("[Table %s] Buy-in refund failed for %s: %v", t.ID, playerID, creditErr)
		}
		return err
	}
	t.emptySince = time.Time{}
	delete(t.graceUntil, playerID)

	log.Printf("[Table %s] Player %s sat down at seat %d with %d", t.ID, playerID, assigned, buyIn)
	if started {
		log.Printf("[Table %s] Hand %d started", t.ID, t.game.HandNumber())
		t.afterMutationLocked()
	}
	t.notifyLocked()
	return nil
}

func (t *Table) handleLeave(playerID string) error {
	if err := t.game.RemoveSeat(playerID); err != nil {
		return err
	}
	delete(t.graceUntil, playerID)
	t.settleDepartedLocked()
	t.afterMutationLocked()
	if t.game.SeatedCount() == 0 && t.emptySince.IsZero() {
		t.emptySince = time.Now()
	}
	log.Printf("[Table %s] Player %s left", t.ID, playerID)
	t.notifyLocked()
	return nil
}

func (t *Table) handleAction(playerID string, kind poker.ActionKind, amount int64, serverApplied bool) error {
	if !serverApplied {
		if err := t.validator.Check(playerID, t.ID); err != nil {
			return err
		}
		// A live action from the player also cancels any pending grace.
		if _, ok := t.graceUntil[playerID]; ok {
			delete(t.graceUntil, playerID)
			t.game.Reconnect(playerID)
		}
	}

	err := t.game.ApplyAction(poker.Action{PlayerID: playerID, Kind: kind, Amount: amount})
	if err != nil {
		if poker.CodeOf(err) == "" && t.game.Stage() == poker.StageWaiting {
			// A fatal invariant fault voided the hand; surface it loudly.
			log.Printf("[Table %s] HAND ABORTED: %v", t.ID, err)
			t.notifyLocked()
		}
		return err
	}

	t.afterMutationLocked()
	t.notifyLocked()
	return nil
}

func (t *Table) handleStartHand() error {
	t.nextHandAt = time.Time{}
	err := t.game.StartHand()
	if errors.Is(err, poker.ErrNotEnoughPlayers) {
		t.settleDepartedLocked()
		return nil
	}
	if err != nil {
		return err
	}
	t.settleDepartedLocked()
	log.Printf("[Table %s] Hand %d started", t.ID, t.game.HandNumber())
	t.afterMutationLocked()
	t.notifyLocked()
	return nil
}

func (t *Table) handleChangeSeat(playerID string, newSeat int) error {
	if err := t.game.ChangeSeat(playerID, newSeat); err != nil {
		return err
	}
	t.notifyLocked()
	return nil
}

func (t *Table) handleConnLost(playerID string) error {
	if !t.game.MarkDisconnected(playerID) {
		return nil
	}
	t.graceUntil[playerID] = time.Now().Add(disconnectGrace)
	log.Printf("[Table %s] Player %s disconnected, grace until %s",
		t.ID, playerID, t.graceUntil[playerID].Format(time.RFC3339))
	t.notifyLocked()
	return nil
}

func (t *Table) handleConnResume(playerID string) error {
	if !t.game.Reconnect(playerID) {
		return nil
	}
	delete(t.graceUntil, playerID)
	log.Printf("[Table %s] Player %s reconnected", t.ID, playerID)
	t.notifyLocked()
	return nil
}

// afterMutationLocked reacts to state produced by the engine: it
// finishes hand-end bookkeeping exactly once per hand and manages the
// next-hand timer.
func (t *Table) afterMutationLocked() {
	stage := t.game.Stage()
	if stage != poker.StageShowdown {
		if !t.nextHandAt.IsZero() {
			// State progressed away from showdown for another reason.
			t.nextHandAt = time.Time{}
		}
		return
	}

	handNumber := t.game.HandNumber()
	if handNumber > t.lastSettledHand {
		t.lastSettledHand = handNumber
		t.onHandEndLocked(handNumber)
	}
}

func (t *Table) onHandEndLocked(handNumber uint64) {
	handID := fmt.Sprintf("%s_h%d", t.ID, handNumber)
	view := t.game.ProjectFor("")
	log.Printf("[Table %s] Hand %d ended, pot %d, %d winner(s)",
		t.ID, handNumber, view.Pot, len(view.Winners))

	// Pot awards go to the wallet with bounded retries; failures sit on
	// the awarded stack and in the reconciliation queue.
	for _, w := range view.Winners {
		t.creditWithRetryLocked(w.PlayerID, w.Amount, handID)
	}

	// Weighted-contribution shares for external rake accounting.
	shares := make(map[string]int64, len(view.Seats))
	for _, s := range view.Seats {
		if s.HandBet > 0 {
			shares[s.PlayerID] = s.HandBet
		}
	}
	if len(shares) > 0 {
		meta := wallet.HandMeta{TableID: t.ID, HandID: handID, Pot: view.Pot}
		if err := t.wallet.RakeContribution(meta, shares); err != nil {
			log.Printf("[Table %s] Rake contribution report failed: %v", t.ID, err)
		}
	}

	// Best-effort archive when the backend supports it.
	if archiver, ok := t.wallet.(wallet.HandArchiver); ok {
		if recent := t.game.History().Recent(1); len(recent) == 1 {
			rec := recent[0]
			go func() {
				if err := archiver.ArchiveHand(t.ID, rec); err != nil {
					log.Printf("[Table %s] Hand archive failed: %v", t.ID, err)
				}
			}()
		}
	}

	t.settleDepartedLocked()

	// One cancellable next-hand timer per table.
	if t.game.ConnectedSeats() >= 2 {
		t.nextHandAt = time.Now().Add(nextHandDelay)
	} else {
		t.nextHandAt = time.Time{}
	}
}

func (t *Table) creditWithRetryLocked(playerID string, amount int64, handID string) {
	if amount <= 0 {
		return
	}
	var err error
	for attempt := 1; attempt <= creditAttempts; attempt++ {
		if err = t.wallet.Credit(playerID, amount); err == nil {
			return
		}
		log.Printf("[Table %s] Credit %d to %s failed (attempt %d/%d): %v",
			t.ID, amount, playerID, attempt, creditAttempts, err)
	}
	t.reconcile = append(t.reconcile, creditFailure{
		PlayerID: playerID,
		Amount:   amount,
		HandID:   handID,
		At:       time.Now(),
	})
	log.Printf("[Table %s] Credit queued for reconciliation: player=%s amount=%d hand=%s",
		t.ID, playerID, amount, handID)
}

// settleDepartedLocked credits chips of seats the engine released.
func (t *Table) settleDepartedLocked() {
	for _, d := range t.game.TakeDeparted() {
		if d.Stack > 0 {
			t.creditWithRetryLocked(d.PlayerID, d.Stack, "")
		}
	}
}

func (t *Table) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	now := time.Now()

	// Turn clock: the server acts for a stalled seat.
	if _, deadline, ok := t.game.TurnDeadline(turnTimeLimit); ok && !now.Before(deadline) {
		if action, ok := t.game.TimeoutAction(); ok {
			log.Printf("[Table %s] Turn timeout: auto %s for %s", t.ID, action.Kind, action.PlayerID)
			if err := t.handleAction(action.PlayerID, action.Kind, 0, true); err != nil {
				log.Printf("[Table %s] Timeout action failed: %v", t.ID, err)
			}
		}
	}

	// Expired disconnect grace: the seat leaves the table.
	for playerID, until := range t.graceUntil {
		if now.Before(until) {
			continue
		}
		delete(t.graceUntil, playerID)
		log.Printf("[Table %s] Grace expired for %s, removing seat", t.ID, playerID)
		if err := t.game.RemoveSeat(playerID); err != nil {
			continue
		}
		t.settleDepartedLocked()
		t.afterMutationLocked()
		t.notifyLocked()
	}

	// Delayed next hand after a showdown broadcast.
	if !t.nextHandAt.IsZero() && !now.Before(t.nextHandAt) {
		if err := t.handleStartHand(); err != nil {
			log.Printf("[Table %s] Delayed hand start failed: %v", t.ID, err)
		}
	}

	if t.game.SeatedCount() == 0 && t.emptySince.IsZero() {
		t.emptySince = now
	}
}

func (t *Table) notifyLocked() {
	if t.notify != nil {
		t.notify(t)
	}
}

// ProjectFor renders the table for one viewer ("" = spectator).
func (t *Table) ProjectFor(viewerID string) poker.View {
	return t.game.ProjectFor(viewerID)
}

// Game exposes the engine for read-side accessors.
func (t *Table) Game() *poker.Game { return t.game }

// PendingReconciliations returns unsettled pot credits.
func (t *Table) PendingReconciliations() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.reconcile)
}

// IsIdleFor reports whether the table has had no seats for ttl.
func (t *Table) IsIdleFor(ttl time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return true
	}
	if t.game.SeatedCount() > 0 {
		return false
	}
	if t.emptySince.IsZero() {
		return false
	}
	return time.Since(t.emptySince) >= ttl
}

func (t *Table) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Stop shuts down the table actor.
func (t *Table) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Table) stopLocked() {
	t.closed = true
	t.nextHandAt = time.Time{}
	t.stopOnce.Do(func() {
		close(t.done)
	})
}
