package poker

import (
	"time"

	"cardroom/card"
)

// SeatView is one seat as a particular viewer sees it. HoleCards is
// populated only for the viewer's own seat, or for unfolded seats once
// a contested showdown is reached.
type SeatView struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	SeatIndex int    `json:"seatIndex"`
	Stack     int64  `json:"stack"`

	HoleCards []string `json:"holeCards,omitempty"`
	HasCards  bool     `json:"hasCards"`

	Folded    bool `json:"folded"`
	AllIn     bool `json:"allIn"`
	HasActed  bool `json:"hasActed"`
	Connected bool `json:"connected"`

	RoundBet int64 `json:"roundBet"`
	HandBet  int64 `json:"handBet"`

	LastAction ActionKind `json:"lastAction,omitempty"`
}

// View is the sanitized projection of table state for one viewer. It is
// a pure function of state plus the viewer id.
type View struct {
	Variant     Variant     `json:"variant"`
	BettingType BettingType `json:"bettingType"`
	Blinds      Blinds      `json:"blinds"`
	MaxSeats    int         `json:"maxSeats"`

	Stage      string `json:"stage"`
	HandNumber uint64 `json:"handNumber"`

	Pot       int64    `json:"pot"`
	Community []string `json:"community"`

	CurrentHighBet  int64 `json:"currentHighBet"`
	LastRaiseAmount int64 `json:"lastRaiseAmount"`
	RaisesThisRound int   `json:"raisesThisRound"`

	ActiveSeatIndex int       `json:"activeSeatIndex"`
	DealerIndex     int       `json:"dealerIndex"`
	LastActionAt    time.Time `json:"lastActionAt"`

	LastAction *LastAction `json:"lastAction,omitempty"`
	Winners    []Winner    `json:"winners,omitempty"`

	Seats []SeatView `json:"seats"`
}

// ProjectFor renders the table for one viewer. An empty viewerID is a
// spectator: no hole cards at all outside a contested showdown.
func (g *Game) ProjectFor(viewerID string) View {
	g.mu.Lock()
	defer g.mu.Unlock()

	view := View{
		Variant:         g.cfg.Variant,
		BettingType:     g.cfg.BettingType,
		Blinds:          g.cfg.Blinds,
		MaxSeats:        g.cfg.MaxSeats,
		Stage:           g.stage.String(),
		HandNumber:      g.handNumber,
		Pot:             g.pot,
		Community:       card.WireList(g.community),
		CurrentHighBet:  g.currentHighBet,
		LastRaiseAmount: g.lastRaiseAmount,
		RaisesThisRound: g.raisesThisRound,
		ActiveSeatIndex: g.activeIdx,
		DealerIndex:     g.dealerIdx,
		LastActionAt:    g.lastActionAt,
		LastAction:      g.lastAction,
		Winners:         append([]Winner(nil), g.winners...),
	}

	reveal := g.stage == StageShowdown && g.revealShowdown
	for _, s := range g.seats {
		if s == nil {
			continue
		}
		sv := SeatView{
			PlayerID:   s.PlayerID,
			Name:       s.Name,
			SeatIndex:  s.SeatIndex,
			Stack:      s.Stack,
			HasCards:   len(s.HoleCards) > 0,
			Folded:     s.Folded,
			AllIn:      s.AllIn,
			HasActed:   s.HasActed,
			Connected:  s.Connected,
			RoundBet:   s.RoundBet,
			HandBet:    s.HandBet,
			LastAction: s.LastAction,
		}
		if s.PlayerID == viewerID || (reveal && !s.Folded) {
			sv.HoleCards = card.WireList(s.HoleCards)
		}
		view.Seats = append(view.Seats, sv)
	}
	return view
}

// Stage returns the current lifecycle stage.
func (g *Game) Stage() Stage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stage
}

// HandNumber returns the strictly increasing per-table hand counter.
func (g *Game) HandNumber() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handNumber
}

// ConnectedSeats returns how many seated players are online.
func (g *Game) ConnectedSeats() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectedCountLocked()
}

// SeatedCount returns how many seats are occupied.
func (g *Game) SeatedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, s := range g.seats {
		if s != nil {
			count++
		}
	}
	return count
}

// SeatOf returns the seat index and stack for a player, or ok=false.
func (g *Game) SeatOf(playerID string) (seatIndex int, stack int64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s := g.seatByPlayerLocked(playerID); s != nil {
		return s.SeatIndex, s.Stack, true
	}
	return InvalidSeat, 0, false
}
