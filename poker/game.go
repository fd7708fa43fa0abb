package poker

import (
	"fmt"
	"sync"
	"time"

	"cardroom/card"
)

// LastAction describes the most recent applied action for display.
type LastAction struct {
	PlayerID  string     `json:"playerId"`
	SeatIndex int        `json:"seatIndex"`
	Kind      ActionKind `json:"kind"`
	Amount    int64      `json:"amount,omitempty"`
}

// Game owns one table's hand state. It is the only component permitted
// to mutate it; callers serialize through the table actor, and the
// internal mutex keeps concurrent snapshot reads consistent.
type Game struct {
	cfg Config

	mu sync.Mutex

	seats []*Seat // indexed by seat, nil when empty

	stage      Stage
	handNumber uint64
	deck       *Deck
	community  card.CardList
	pot        int64

	dealerIdx int
	activeIdx int

	currentHighBet  int64
	lastRaiseAmount int64
	raisesThisRound int

	lastActionAt time.Time
	lastAction   *LastAction
	winners      []Winner

	// revealShowdown is true when the hand reached a contested showdown
	// and unfolded hole cards become public.
	revealShowdown bool

	handStartTotal int64

	// departed collects seats the engine dropped (purges) so the caller
	// can settle their chips back to the wallet.
	departed []Departed

	history *History
	rec     *HandRecord

	now func() time.Time
}

func NewGame(cfg Config) (*Game, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Game{
		cfg:       cfg,
		seats:     make([]*Seat, cfg.MaxSeats),
		stage:     StageWaiting,
		dealerIdx: InvalidSeat,
		activeIdx: InvalidSeat,
		history:   NewHistory(HistoryDepth),
		now:       time.Now,
	}, nil
}

func (g *Game) Config() Config { return g.cfg }

// History returns the table's recent-hand ring.
func (g *Game) History() *History { return g.history }

// --- seat management ---

// AddSeat seats a player with a buy-in. A disconnected player re-joining
// re-attaches to their old seat with stack and cards intact. When the
// requested seat is taken the lowest free seat is used instead. Returns
// the assigned seat and whether a new hand was started as a result.
func (g *Game) AddSeat(playerID, name string, buyIn int64, seatIndex int) (assigned int, started bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing := g.seatByPlayerLocked(playerID); existing != nil {
		if !existing.Connected {
			existing.Connected = true
			existing.Name = name
			return existing.SeatIndex, false, nil
		}
		return InvalidSeat, false, NewError(CodeAlreadySeated, "")
	}
	if buyIn <= 0 {
		return InvalidSeat, false, NewError(CodeActionIllegal, CauseInsufficientStack)
	}

	assigned = InvalidSeat
	if seatIndex >= 0 && seatIndex < len(g.seats) && g.seats[seatIndex] == nil {
		assigned = seatIndex
	} else {
		for i := range g.seats {
			if g.seats[i] == nil {
				assigned = i
				break
			}
		}
	}
	if assigned == InvalidSeat {
		return InvalidSeat, false, NewError(CodeTableFull, "")
	}

	g.seats[assigned] = &Seat{
		PlayerID:  playerID,
		Name:      name,
		SeatIndex: assigned,
		Stack:     buyIn,
		Connected: true,
	}

	if g.stage == StageWaiting && g.connectedCountLocked() >= g.cfg.MinPlayers {
		if startErr := g.startHandLocked(); startErr == nil {
			started = true
		}
	}
	return assigned, started, nil
}

// RemoveSeat removes a player. Between hands the seat is freed; mid-hand
// it is folded and marked disconnected but retained so its bets stay in
// the pot.
func (g *Game) RemoveSeat(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	seat := g.seatByPlayerLocked(playerID)
	if seat == nil {
		return NewError(CodeNotInHand, "")
	}
	if g.stage == StageWaiting || g.stage == StageShowdown {
		g.dropSeatLocked(seat.SeatIndex)
		return nil
	}

	seat.Connected = false
	if !seat.Folded {
		wasActive := seat.SeatIndex == g.activeIdx
		g.foldSeatLocked(seat)
		if g.stage != StageWaiting && g.stage != StageShowdown {
			if wasActive {
				g.advanceAfterActionLocked()
			} else {
				g.maybeFinishRoundLocked()
			}
		}
	}
	return nil
}

// MarkDisconnected flags a seat as offline without removing it. The
// session layer's grace timer decides when to actually remove.
func (g *Game) MarkDisconnected(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	seat := g.seatByPlayerLocked(playerID)
	if seat == nil {
		return false
	}
	seat.Connected = false
	return true
}

// Reconnect re-attaches a disconnected seat, keeping its index, stack,
// and hole cards.
func (g *Game) Reconnect(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	seat := g.seatByPlayerLocked(playerID)
	if seat == nil {
		return false
	}
	seat.Connected = true
	return true
}

var ErrNotEnoughPlayers = fmt.Errorf("not enough players to start")

// StartHand begins the next hand: purges dead seats, rotates the button,
// shuffles a fresh deck, deals, and posts blinds.
func (g *Game) StartHand() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startHandLocked()
}

func (g *Game) startHandLocked() error {
	if g.stage != StageWaiting && g.stage != StageShowdown {
		return NewError(CodeActionIllegal, "hand in progress")
	}
	g.purgeSeatsLocked()
	if g.connectedCountLocked() < g.cfg.MinPlayers {
		g.stage = StageWaiting
		return ErrNotEnoughPlayers
	}

	g.handNumber++
	g.community = nil
	g.pot = 0
	g.winners = nil
	g.lastAction = nil
	g.revealShowdown = false
	g.currentHighBet = 0
	g.lastRaiseAmount = 0
	g.raisesThisRound = 0

	participants := make([]*Seat, 0, len(g.seats))
	for _, s := range g.seats {
		if s == nil {
			continue
		}
		s.resetForHand()
		participants = append(participants, s)
	}
	n := len(participants)

	g.handStartTotal = 0
	for _, s := range participants {
		g.handStartTotal += s.Stack
	}

	g.deck = NewDeck(g.cfg.Variant)
	g.dealerIdx = g.nextOccupiedLocked(g.dealerIdx)

	// Deal hole cards one at a time, starting left of the button.
	holeCount := g.cfg.Variant.HoleCards()
	for round := 0; round < holeCount; round++ {
		idx := g.dealerIdx
		for i := 0; i < n; i++ {
			idx = g.nextOccupiedLocked(idx)
			cards, err := g.deck.Draw(1)
			if err != nil {
				return g.abortHandLocked(err)
			}
			g.seats[idx].HoleCards.Add(cards...)
		}
	}

	// Courchevel exposes the first board card before preflop betting.
	if g.cfg.Variant == VariantCourchevel {
		cards, err := g.deck.Draw(1)
		if err != nil {
			return g.abortHandLocked(err)
		}
		g.community.Add(cards...)
	}

	if g.cfg.Blinds.Ante > 0 {
		for _, s := range participants {
			g.pot += s.contributeDead(g.cfg.Blinds.Ante)
		}
	}

	// Post blinds. Heads-up: the dealer posts the small blind.
	var sbIdx, bbIdx int
	if n == 2 {
		sbIdx = g.dealerIdx
		bbIdx = g.nextOccupiedLocked(sbIdx)
	} else {
		sbIdx = g.nextOccupiedLocked(g.dealerIdx)
		bbIdx = g.nextOccupiedLocked(sbIdx)
	}
	g.pot += g.seats[sbIdx].contribute(g.cfg.Blinds.Small)
	g.pot += g.seats[bbIdx].contribute(g.cfg.Blinds.Big)

	g.currentHighBet = g.cfg.Blinds.Big
	g.lastRaiseAmount = g.cfg.Blinds.Big
	g.raisesThisRound = 0

	g.stage = StagePreflop
	g.lastActionAt = g.now()
	g.activeIdx = g.nextActorLocked(bbIdx)

	g.rec = g.history.begin(g.handNumber, g.cfg.Variant, participants, g.now())

	// Blinds can put everyone all-in before anyone acts.
	if g.countCanActLocked() == 0 || g.activeIdx == InvalidSeat {
		if err := g.runoutLocked(); err != nil {
			return g.abortHandLocked(err)
		}
		g.settleLocked()
	}
	return nil
}

// purgeSeatsLocked drops seats that are disconnected or out of chips.
func (g *Game) purgeSeatsLocked() {
	for i, s := range g.seats {
		if s == nil {
			continue
		}
		if !s.Connected || s.Stack <= 0 {
			g.dropSeatLocked(i)
		}
	}
}

func (g *Game) dropSeatLocked(i int) {
	s := g.seats[i]
	if s == nil {
		return
	}
	g.departed = append(g.departed, Departed{PlayerID: s.PlayerID, Stack: s.Stack})
	g.seats[i] = nil
}

// Departed is a seat the engine released together with its remaining
// chips.
type Departed struct {
	PlayerID string
	Stack    int64
}

// TakeDeparted drains the engine's record of released seats.
func (g *Game) TakeDeparted() []Departed {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.departed
	g.departed = nil
	return out
}

// ChangeSeat moves a player to another empty seat between hands.
func (g *Game) ChangeSeat(playerID string, newSeat int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stage != StageWaiting && g.stage != StageShowdown {
		return NewError(CodeActionIllegal, "cannot change seats mid-hand")
	}
	seat := g.seatByPlayerLocked(playerID)
	if seat == nil {
		return NewError(CodeNotInHand, "")
	}
	if newSeat < 0 || newSeat >= len(g.seats) {
		return NewError(CodeSeatTaken, "no such seat")
	}
	if g.seats[newSeat] != nil {
		if g.seats[newSeat] == seat {
			return nil
		}
		return NewError(CodeSeatTaken, "")
	}
	g.seats[seat.SeatIndex] = nil
	seat.SeatIndex = newSeat
	g.seats[newSeat] = seat
	return nil
}

// --- action handling ---

// ApplyAction validates and applies a betting action for the seat whose
// turn it is.
func (g *Game) ApplyAction(a Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stage < StagePreflop || g.stage > StageRiver {
		return NewError(CodeNotInHand, "no betting round in progress")
	}
	seat := g.seatByPlayerLocked(a.PlayerID)
	if seat == nil {
		return NewError(CodeNotInHand, "")
	}
	if seat.Folded || seat.AllIn {
		return NewError(CodeActionIllegal, "seat cannot act")
	}
	if seat.SeatIndex != g.activeIdx {
		return NewError(CodeNotYourTurn, "")
	}

	toCall := g.currentHighBet - seat.RoundBet

	switch a.Kind {
	case ActionFold:
		g.foldSeatLocked(seat)

	case ActionCheck:
		if toCall > 0 {
			return NewError(CodeActionIllegal, CauseCheckWhenMustCall)
		}
		seat.HasActed = true

	case ActionCall:
		if toCall <= 0 {
			return NewError(CodeActionIllegal, "nothing to call")
		}
		g.pot += seat.contribute(toCall)
		seat.HasActed = true

	case ActionRaise:
		if err := g.applyRaiseLocked(seat, a.Amount, toCall); err != nil {
			return err
		}

	case ActionAllIn:
		if seat.Stack <= 0 {
			return NewError(CodeActionIllegal, CauseInsufficientStack)
		}
		g.applyAllInLocked(seat)

	default:
		return NewError(CodeActionIllegal, fmt.Sprintf("unknown action %q", a.Kind))
	}

	seat.LastAction = a.Kind
	seat.LastActionAt = g.now()
	g.lastActionAt = seat.LastActionAt
	g.lastAction = &LastAction{
		PlayerID:  seat.PlayerID,
		SeatIndex: seat.SeatIndex,
		Kind:      a.Kind,
		Amount:    seat.RoundBet,
	}
	g.rec.appendAction(g.stage, seat, a.Kind, seat.RoundBet)

	if err := g.checkInvariantsLocked(); err != nil {
		return g.abortHandLocked(err)
	}

	g.advanceAfterActionLocked()
	return nil
}

func (g *Game) applyRaiseLocked(seat *Seat, target int64, toCall int64) error {
	// A seat that already acted may raise again only after a full raise
	// re-opened the action (an all-in under-raise does not).
	if seat.HasActed {
		return NewError(CodeActionIllegal, "betting not reopened")
	}
	if target <= g.currentHighBet {
		return NewError(CodeActionIllegal, CauseBelowMinRaise)
	}
	if target-g.currentHighBet < g.lastRaiseAmount {
		return NewError(CodeActionIllegal, CauseBelowMinRaise)
	}
	if g.raisesThisRound >= MaxRaisesPerRound {
		return NewError(CodeActionIllegal, CauseMaxRaisesReached)
	}
	if g.cfg.BettingType == BettingPotLimit {
		if target > g.pot+g.currentHighBet+toCall {
			return NewError(CodeActionIllegal, CauseAbovePotLimit)
		}
	}
	needed := target - seat.RoundBet
	if needed > seat.Stack {
		return NewError(CodeActionIllegal, CauseInsufficientStack)
	}

	prevHigh := g.currentHighBet
	g.pot += seat.contribute(needed)
	g.currentHighBet = target
	g.lastRaiseAmount = target - prevHigh
	g.raisesThisRound++
	g.reopenActionLocked(seat)
	seat.HasActed = true
	return nil
}

// applyAllInLocked commits the whole stack. An all-in above the current
// high bet counts as a raise for book-keeping, but an increment below
// the min-raise does not re-open action for seats that already acted.
func (g *Game) applyAllInLocked(seat *Seat) {
	prevHigh := g.currentHighBet
	g.pot += seat.contribute(seat.Stack)
	if seat.RoundBet > prevHigh {
		increment := seat.RoundBet - prevHigh
		g.currentHighBet = seat.RoundBet
		if increment >= g.lastRaiseAmount {
			g.lastRaiseAmount = increment
			g.reopenActionLocked(seat)
		}
	}
	seat.HasActed = true
}

// reopenActionLocked clears hasActed on every live seat except the
// raiser, giving each of them a fresh option.
func (g *Game) reopenActionLocked(raiser *Seat) {
	for _, s := range g.seats {
		if s == nil || s == raiser {
			continue
		}
		if s.canAct() {
			s.HasActed = false
		}
	}
}

func (g *Game) foldSeatLocked(seat *Seat) {
	seat.Folded = true
	seat.HasActed = true
}

// advanceAfterActionLocked drives the state machine after the acting
// seat's action: hand end on a lone survivor, street end, or pass the
// turn.
func (g *Game) advanceAfterActionLocked() {
	if g.countInHandLocked() == 1 {
		g.settleLocked()
		return
	}
	g.progressRoundLocked(true)
}

// maybeFinishRoundLocked re-checks round completion after an
// out-of-turn fold (seat removal); the turn does not move unless the
// round actually ended.
func (g *Game) maybeFinishRoundLocked() {
	if g.countInHandLocked() == 1 {
		g.settleLocked()
		return
	}
	g.progressRoundLocked(false)
}

func (g *Game) progressRoundLocked(advanceTurn bool) {
	actors := g.actorsLocked()

	for _, s := range actors {
		if !s.HasActed || s.RoundBet != g.currentHighBet {
			if advanceTurn {
				g.activeIdx = g.nextActorLocked(g.activeIdx)
			}
			return
		}
	}

	// Betting round complete.
	if len(actors) <= 1 {
		if err := g.runoutLocked(); err != nil {
			_ = g.abortHandLocked(err)
			return
		}
		g.settleLocked()
		return
	}
	if g.stage == StageRiver {
		g.settleLocked()
		return
	}
	if err := g.advanceStageLocked(); err != nil {
		_ = g.abortHandLocked(err)
	}
}

func (g *Game) advanceStageLocked() error {
	for _, s := range g.seats {
		if s != nil {
			s.resetForStreet()
		}
	}
	g.currentHighBet = 0
	g.lastRaiseAmount = 0
	g.raisesThisRound = 0

	g.stage++
	deal := 0
	switch g.stage {
	case StageFlop:
		deal = 3 - len(g.community) // Courchevel already shows one
	case StageTurn, StageRiver:
		deal = 1
	}
	if deal > 0 {
		cards, err := g.deck.Draw(deal)
		if err != nil {
			return err
		}
		g.community.Add(cards...)
	}

	// First to act post-flop: first live seat clockwise from the button.
	g.activeIdx = g.nextActorLocked(g.dealerIdx)
	g.lastActionAt = g.now()
	return nil
}

// runoutLocked deals the board to completion when no further betting is
// possible.
func (g *Game) runoutLocked() error {
	need := 5 - len(g.community)
	if need > 0 {
		cards, err := g.deck.Draw(need)
		if err != nil {
			return err
		}
		g.community.Add(cards...)
	}
	return nil
}

// abortHandLocked handles a fatal engine fault mid-hand: every seat's
// contribution is refunded, the hand is voided, and the table returns
// to waiting.
func (g *Game) abortHandLocked(cause error) error {
	for _, s := range g.seats {
		if s == nil {
			continue
		}
		s.Stack += s.HandBet
		s.HandBet = 0
		s.RoundBet = 0
		s.HoleCards = nil
		s.Folded = false
		s.AllIn = false
		s.HasActed = false
	}
	g.pot = 0
	g.community = nil
	g.winners = nil
	g.stage = StageWaiting
	g.activeIdx = InvalidSeat
	g.rec = nil
	return fmt.Errorf("hand %d aborted: %w", g.handNumber, cause)
}

func (g *Game) checkInvariantsLocked() error {
	var contributed, dealtTotal int64
	for _, s := range g.seats {
		if s == nil {
			continue
		}
		contributed += s.HandBet
		if len(s.HoleCards) > 0 {
			dealtTotal += s.Stack + s.HandBet
		}
	}
	if contributed != g.pot {
		return fmt.Errorf("pot %d != contributions %d", g.pot, contributed)
	}
	// Chips neither appear nor vanish mid-hand: seats dealt into the
	// hand still hold what they started with, between stack and pot.
	if dealtTotal != g.handStartTotal {
		return fmt.Errorf("stacks+pot %d != hand start total %d", dealtTotal, g.handStartTotal)
	}
	return nil
}

// --- turn timer ---

// TurnDeadline reports the current actor and when their clock expires.
func (g *Game) TurnDeadline(limit time.Duration) (seatIdx int, deadline time.Time, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stage < StagePreflop || g.stage > StageRiver || g.activeIdx == InvalidSeat {
		return InvalidSeat, time.Time{}, false
	}
	return g.activeIdx, g.lastActionAt.Add(limit), true
}

// TimeoutAction returns the implicit action the server applies when the
// current actor's clock runs out: check when legal, otherwise fold.
func (g *Game) TimeoutAction() (Action, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stage < StagePreflop || g.stage > StageRiver || g.activeIdx == InvalidSeat {
		return Action{}, false
	}
	seat := g.seats[g.activeIdx]
	if seat == nil {
		return Action{}, false
	}
	kind := ActionFold
	if g.currentHighBet-seat.RoundBet <= 0 {
		kind = ActionCheck
	}
	return Action{PlayerID: seat.PlayerID, Kind: kind}, true
}

// --- seat scanning helpers ---

func (g *Game) seatByPlayerLocked(playerID string) *Seat {
	for _, s := range g.seats {
		if s != nil && s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

// nextOccupiedLocked scans clockwise from idx+1 for the next seat.
func (g *Game) nextOccupiedLocked(idx int) int {
	n := len(g.seats)
	for i := 1; i <= n; i++ {
		j := ((idx+i)%n + n) % n
		if g.seats[j] != nil {
			return j
		}
	}
	return InvalidSeat
}

// nextActorLocked scans clockwise from idx+1 for the next seat that can
// still act.
func (g *Game) nextActorLocked(idx int) int {
	n := len(g.seats)
	for i := 1; i <= n; i++ {
		j := ((idx+i)%n + n) % n
		if s := g.seats[j]; s != nil && s.canAct() {
			return j
		}
	}
	return InvalidSeat
}

func (g *Game) connectedCountLocked() int {
	count := 0
	for _, s := range g.seats {
		if s != nil && s.Connected {
			count++
		}
	}
	return count
}

func (g *Game) countInHandLocked() int {
	count := 0
	for _, s := range g.seats {
		if s != nil && s.inHand() {
			count++
		}
	}
	return count
}

func (g *Game) countCanActLocked() int {
	return len(g.actorsLocked())
}

// actorsLocked returns the seats that still owe a decision this street,
// in seat order.
func (g *Game) actorsLocked() []*Seat {
	actors := make([]*Seat, 0, len(g.seats))
	for _, s := range g.seats {
		if s != nil && s.canAct() {
			actors = append(actors, s)
		}
	}
	return actors
}
