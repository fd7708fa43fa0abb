package poker

import "sort"

// Winner records one award made at showdown.
type Winner struct {
	PlayerID  string `json:"playerId"`
	SeatIndex int    `json:"seatIndex"`
	Amount    int64  `json:"amount"`
	HandDesc  string `json:"handDesc,omitempty"`
	Side      string `json:"side,omitempty"` // "high", "low", or "" for a fold win or a non-hi-lo variant
}

// potLayer is one main/side pot: an amount plus the seats eligible to
// win it.
type potLayer struct {
	amount   int64
	eligible []*Seat
}

// settleLocked finishes the hand: refunds any uncalled bet, layers the
// pot into main/side pots by ascending contribution level, awards each
// pot (splitting high/low for hi-lo variants), and moves the table to
// showdown.
func (g *Game) settleLocked() {
	g.refundUncalledLocked()

	contenders := make([]*Seat, 0, len(g.seats))
	for _, s := range g.seats {
		if s != nil && s.inHand() {
			contenders = append(contenders, s)
		}
	}

	g.winners = nil
	g.revealShowdown = len(contenders) > 1

	if len(contenders) == 1 {
		// Everyone else folded: the pot moves without a showdown.
		w := contenders[0]
		w.Stack += g.pot
		g.winners = append(g.winners, Winner{
			PlayerID:  w.PlayerID,
			SeatIndex: w.SeatIndex,
			Amount:    g.pot,
		})
	} else {
		for _, layer := range g.buildPotsLocked(contenders) {
			g.awardPotLocked(layer)
		}
	}

	finalPot := g.pot
	g.stage = StageShowdown
	g.activeIdx = InvalidSeat
	g.lastActionAt = g.now()
	g.lastRaiseAmount = 0
	g.currentHighBet = 0
	g.raisesThisRound = 0

	if g.rec != nil {
		g.rec.finalize(g.community, finalPot, g.winners, g.now())
		g.history.push(g.rec)
		g.rec = nil
	}

	// Offline seats leave now; busted seats are dropped when the next
	// hand starts so the final stacks stay visible at showdown.
	for i, s := range g.seats {
		if s != nil && !s.Connected {
			g.dropSeatLocked(i)
		}
	}
}

// refundUncalledLocked returns the unmatched top of the highest
// contribution to its owner before pots are built.
func (g *Game) refundUncalledLocked() {
	var top *Seat
	var max, second int64
	for _, s := range g.seats {
		if s == nil {
			continue
		}
		switch {
		case s.HandBet > max:
			second = max
			max = s.HandBet
			top = s
		case s.HandBet > second:
			second = s.HandBet
		}
	}
	if top == nil || top.Folded {
		return
	}
	if excess := max - second; excess > 0 {
		top.Stack += excess
		top.HandBet -= excess
		g.pot -= excess
	}
}

// buildPotsLocked partitions the pot by ascending contribution level.
// Each distinct level L of a live seat forms a layer holding
// min(seat.HandBet, L) - prevL from every seat, won only by live seats
// whose total contribution reaches L.
func (g *Game) buildPotsLocked(contenders []*Seat) []potLayer {
	levels := make([]int64, 0, len(contenders))
	seen := make(map[int64]bool, len(contenders))
	for _, s := range contenders {
		if s.HandBet > 0 && !seen[s.HandBet] {
			seen[s.HandBet] = true
			levels = append(levels, s.HandBet)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	layers := make([]potLayer, 0, len(levels))
	prev := int64(0)
	var assigned int64
	for _, level := range levels {
		layer := potLayer{}
		for _, s := range g.seats {
			if s == nil {
				continue
			}
			part := s.HandBet
			if part > level {
				part = level
			}
			if part > prev {
				layer.amount += part - prev
			}
		}
		for _, s := range contenders {
			if s.HandBet >= level {
				layer.eligible = append(layer.eligible, s)
			}
		}
		assigned += layer.amount
		layers = append(layers, layer)
		prev = level
	}

	// Folded chips above the top live level belong to the last pot.
	if leftover := g.pot - assigned; leftover > 0 && len(layers) > 0 {
		layers[len(layers)-1].amount += leftover
	}
	return layers
}

func (g *Game) awardPotLocked(layer potLayer) {
	if layer.amount <= 0 || len(layer.eligible) == 0 {
		return
	}

	highWinners, results := DetermineWinners(layer.eligible, g.community, g.cfg.Variant)

	if g.cfg.Variant.HiLo() {
		if lowWinners := DetermineLowWinners(layer.eligible, g.community, g.cfg.Variant); len(lowWinners) > 0 {
			lowHalf := layer.amount / 2
			highHalf := layer.amount - lowHalf
			g.payGroupLocked(highWinners, highHalf, "high", func(pid string) string {
				return results[pid].Desc
			})
			g.payGroupLocked(lowWinners, lowHalf, "low", func(pid string) string {
				return g.lowDescLocked(pid, lowWinners)
			})
			return
		}
	}

	side := ""
	if g.cfg.Variant.HiLo() {
		side = "high" // scooped: no qualifying low
	}
	g.payGroupLocked(highWinners, layer.amount, side, func(pid string) string {
		return results[pid].Desc
	})
}

// payGroupLocked splits amount across winners, the odd chips going to
// the first winner in seat order clockwise from the dealer.
func (g *Game) payGroupLocked(winners []*Seat, amount int64, side string, desc func(string) string) {
	if amount <= 0 || len(winners) == 0 {
		return
	}
	ordered := g.clockwiseFromDealerLocked(winners)
	base := amount / int64(len(ordered))
	rem := amount % int64(len(ordered))
	for i, w := range ordered {
		amt := base
		if i == 0 {
			amt += rem
		}
		if amt == 0 {
			continue
		}
		w.Stack += amt
		g.winners = append(g.winners, Winner{
			PlayerID:  w.PlayerID,
			SeatIndex: w.SeatIndex,
			Amount:    amt,
			HandDesc:  desc(w.PlayerID),
			Side:      side,
		})
	}
}

// clockwiseFromDealerLocked orders seats by table position starting
// left of the button; the tie-break for odd chips is deterministic.
func (g *Game) clockwiseFromDealerLocked(seats []*Seat) []*Seat {
	bySeat := make(map[int]*Seat, len(seats))
	for _, s := range seats {
		bySeat[s.SeatIndex] = s
	}
	ordered := make([]*Seat, 0, len(seats))
	n := len(g.seats)
	for i := 1; i <= n; i++ {
		j := ((g.dealerIdx+i)%n + n) % n
		if s, ok := bySeat[j]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// lowDescLocked renders a winning low as e.g. "Seven low".
func (g *Game) lowDescLocked(playerID string, winners []*Seat) string {
	for _, s := range winners {
		if s.PlayerID != playerID {
			continue
		}
		low := BestLow(s.HoleCards, g.community, g.cfg.Variant)
		if low == nil {
			return ""
		}
		high := 0
		for _, c := range low.BestFive {
			v := int(c.Rank())
			if v > high {
				high = v
			}
		}
		return valueNames[high] + " low"
	}
	return ""
}
