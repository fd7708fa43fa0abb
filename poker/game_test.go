package poker

import (
	"testing"

	"cardroom/card"
)

func mustGame(t *testing.T, cfg Config) *Game {
	t.Helper()
	g, err := NewGame(cfg)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return g
}

func mustSeat(t *testing.T, g *Game, playerID string, buyIn int64, seat int) {
	t.Helper()
	if _, _, err := g.AddSeat(playerID, playerID, buyIn, seat); err != nil {
		t.Fatalf("AddSeat %s: %v", playerID, err)
	}
}

func mustAct(t *testing.T, g *Game, playerID string, kind ActionKind, amount int64) {
	t.Helper()
	if err := g.ApplyAction(Action{PlayerID: playerID, Kind: kind, Amount: amount}); err != nil {
		t.Fatalf("%s %s %d: %v", playerID, kind, amount, err)
	}
}

func seatView(t *testing.T, g *Game, playerID string) SeatView {
	t.Helper()
	view := g.ProjectFor(playerID)
	for _, s := range view.Seats {
		if s.PlayerID == playerID {
			return s
		}
	}
	t.Fatalf("seat %s not found", playerID)
	return SeatView{}
}

func checkPotInvariant(t *testing.T, g *Game) {
	t.Helper()
	view := g.ProjectFor("")
	var contributed int64
	for _, s := range view.Seats {
		contributed += s.HandBet
	}
	if view.Pot != contributed {
		t.Fatalf("pot invariant broken: pot=%d contributions=%d", view.Pot, contributed)
	}
}

func headsUp(t *testing.T) *Game {
	t.Helper()
	g := mustGame(t, Config{
		Variant: VariantTexas,
		Blinds:  Blinds{Small: 1, Big: 2},
	})
	mustSeat(t, g, "a", 200, 0)
	mustSeat(t, g, "b", 200, 1) // second seat auto-starts the hand
	return g
}

func TestStartHand_HeadsUpDealerPostsSmallBlind(t *testing.T) {
	g := headsUp(t)

	view := g.ProjectFor("")
	if view.Stage != "preflop" {
		t.Fatalf("expected preflop, got %s", view.Stage)
	}
	if view.DealerIndex != 0 {
		t.Fatalf("expected dealer at seat 0, got %d", view.DealerIndex)
	}
	if sv := seatView(t, g, "a"); sv.RoundBet != 1 {
		t.Fatalf("heads-up dealer must post the small blind, posted %d", sv.RoundBet)
	}
	if sv := seatView(t, g, "b"); sv.RoundBet != 2 {
		t.Fatalf("expected big blind 2, posted %d", sv.RoundBet)
	}
	// Dealer acts first preflop heads-up.
	if view.ActiveSeatIndex != 0 {
		t.Fatalf("expected seat 0 to act first, got %d", view.ActiveSeatIndex)
	}
	if view.CurrentHighBet != 2 || view.LastRaiseAmount != 2 {
		t.Fatalf("expected high bet and min-raise = big blind, got %d/%d",
			view.CurrentHighBet, view.LastRaiseAmount)
	}
	checkPotInvariant(t, g)
}

func TestStartHand_ThreeHandedBlindOrder(t *testing.T) {
	g := mustGame(t, Config{
		Variant:    VariantTexas,
		Blinds:     Blinds{Small: 1, Big: 2},
		MinPlayers: 3,
	})
	mustSeat(t, g, "a", 200, 0)
	mustSeat(t, g, "b", 200, 1)
	mustSeat(t, g, "c", 200, 2)

	view := g.ProjectFor("")
	if view.DealerIndex != 0 {
		t.Fatalf("expected dealer 0, got %d", view.DealerIndex)
	}
	if sv := seatView(t, g, "b"); sv.RoundBet != 1 {
		t.Fatalf("seat left of dealer posts small blind, posted %d", sv.RoundBet)
	}
	if sv := seatView(t, g, "c"); sv.RoundBet != 2 {
		t.Fatalf("second seat left of dealer posts big blind, posted %d", sv.RoundBet)
	}
	if view.ActiveSeatIndex != 0 {
		t.Fatalf("under the gun is left of the big blind, got %d", view.ActiveSeatIndex)
	}
}

// The two-handed betting walkthrough: call, check, two checks, a turn
// bet, and a fold. Chips must be conserved throughout.
func TestHand_HeadsUpFoldToTurnBet(t *testing.T) {
	g := headsUp(t)

	mustAct(t, g, "a", ActionCall, 0) // dealer completes the small blind
	checkPotInvariant(t, g)
	mustAct(t, g, "b", ActionCheck, 0)

	view := g.ProjectFor("")
	if view.Stage != "flop" {
		t.Fatalf("expected flop, got %s", view.Stage)
	}
	if len(view.Community) != 3 {
		t.Fatalf("expected 3 community cards, got %d", len(view.Community))
	}
	if view.ActiveSeatIndex != 1 {
		t.Fatalf("big blind acts first post-flop heads-up, got seat %d", view.ActiveSeatIndex)
	}

	mustAct(t, g, "b", ActionCheck, 0)
	mustAct(t, g, "a", ActionCheck, 0)

	view = g.ProjectFor("")
	if view.Stage != "turn" {
		t.Fatalf("expected turn, got %s", view.Stage)
	}

	mustAct(t, g, "b", ActionRaise, 6)
	checkPotInvariant(t, g)
	mustAct(t, g, "a", ActionFold, 0)

	view = g.ProjectFor("")
	if view.Stage != "showdown" {
		t.Fatalf("expected showdown after fold, got %s", view.Stage)
	}
	a := seatView(t, g, "a")
	b := seatView(t, g, "b")
	if a.Stack != 198 {
		t.Fatalf("expected folder stack 198, got %d", a.Stack)
	}
	// The unmatched 6 returns to b, who then wins the 4-chip pot.
	if b.Stack != 202 {
		t.Fatalf("expected winner stack 202, got %d", b.Stack)
	}
	if a.Stack+b.Stack != 400 {
		t.Fatalf("chips not conserved: %d", a.Stack+b.Stack)
	}
	if len(view.Winners) != 1 || view.Winners[0].PlayerID != "b" {
		t.Fatalf("expected b as lone winner, got %+v", view.Winners)
	}
	if view.Winners[0].HandDesc != "" {
		t.Fatalf("a fold win must not show a hand, got %q", view.Winners[0].HandDesc)
	}
}

func TestRaise_MinRaiseLock(t *testing.T) {
	g := headsUp(t)

	// Raise to 6 sets the increment to 4: a re-raise must reach 10.
	mustAct(t, g, "a", ActionRaise, 6)

	err := g.ApplyAction(Action{PlayerID: "b", Kind: ActionRaise, Amount: 9})
	if err == nil {
		t.Fatalf("expected re-raise to 9 to be rejected")
	}
	if e, ok := err.(*Error); !ok || e.Cause != CauseBelowMinRaise {
		t.Fatalf("expected BelowMinRaise, got %v", err)
	}

	mustAct(t, g, "b", ActionRaise, 10)
	if view := g.ProjectFor(""); view.CurrentHighBet != 10 || view.LastRaiseAmount != 4 {
		t.Fatalf("expected high 10 / increment 4, got %d/%d",
			view.CurrentHighBet, view.LastRaiseAmount)
	}
}

// All-in under-raise: accepted, but it does not re-open action for the
// original raiser, who may then only call or fold.
func TestAllIn_UnderRaiseDoesNotReopen(t *testing.T) {
	g := mustGame(t, Config{
		Variant: VariantTexas,
		Blinds:  Blinds{Small: 1, Big: 2},
	})
	mustSeat(t, g, "a", 500, 0)
	mustSeat(t, g, "b", 130, 1)

	mustAct(t, g, "a", ActionRaise, 100)
	mustAct(t, g, "b", ActionAllIn, 0)

	view := g.ProjectFor("")
	if view.CurrentHighBet != 130 {
		t.Fatalf("expected high bet 130 after all-in, got %d", view.CurrentHighBet)
	}
	if view.ActiveSeatIndex != 0 {
		t.Fatalf("expected action back on seat 0, got %d", view.ActiveSeatIndex)
	}

	if err := g.ApplyAction(Action{PlayerID: "a", Kind: ActionRaise, Amount: 260}); err == nil {
		t.Fatalf("expected re-raise to be rejected after under-raise all-in")
	}

	mustAct(t, g, "a", ActionCall, 0)
	if view := g.ProjectFor(""); view.Stage != "showdown" {
		t.Fatalf("expected showdown after call, got %s", view.Stage)
	}
	a := seatView(t, g, "a")
	b := seatView(t, g, "b")
	if a.Stack+b.Stack != 630 {
		t.Fatalf("chips not conserved: %d", a.Stack+b.Stack)
	}
}

func TestRaise_CapPerRound(t *testing.T) {
	g := mustGame(t, Config{
		Variant: VariantTexas,
		Blinds:  Blinds{Small: 1, Big: 2},
	})
	mustSeat(t, g, "a", 10000, 0)
	mustSeat(t, g, "b", 10000, 1)

	mustAct(t, g, "a", ActionRaise, 6)
	mustAct(t, g, "b", ActionRaise, 10)
	mustAct(t, g, "a", ActionRaise, 14)
	mustAct(t, g, "b", ActionRaise, 18)

	err := g.ApplyAction(Action{PlayerID: "a", Kind: ActionRaise, Amount: 22})
	if err == nil {
		t.Fatalf("expected fifth raise to be rejected")
	}
	if e, ok := err.(*Error); !ok || e.Cause != CauseMaxRaisesReached {
		t.Fatalf("expected MaxRaisesReached, got %v", err)
	}
	if view := g.ProjectFor(""); view.RaisesThisRound > MaxRaisesPerRound {
		t.Fatalf("raise cap exceeded: %d", view.RaisesThisRound)
	}
}

func TestRaise_PotLimitCeiling(t *testing.T) {
	g := mustGame(t, Config{
		Variant:     VariantOmaha,
		BettingType: BettingPotLimit,
		Blinds:      Blinds{Small: 1, Big: 2},
	})
	mustSeat(t, g, "a", 500, 0)
	mustSeat(t, g, "b", 500, 1)

	// Pot 3, high 2, to-call 1: ceiling is 3+2+1 = 6.
	err := g.ApplyAction(Action{PlayerID: "a", Kind: ActionRaise, Amount: 7})
	if err == nil {
		t.Fatalf("expected raise above pot limit to be rejected")
	}
	if e, ok := err.(*Error); !ok || e.Cause != CauseAbovePotLimit {
		t.Fatalf("expected AbovePotLimit, got %v", err)
	}
	mustAct(t, g, "a", ActionRaise, 6)
}

func TestCheck_RejectedFacingBet(t *testing.T) {
	g := headsUp(t)
	mustAct(t, g, "a", ActionRaise, 6)

	err := g.ApplyAction(Action{PlayerID: "b", Kind: ActionCheck})
	if err == nil {
		t.Fatalf("expected check facing a bet to be rejected")
	}
	if e, ok := err.(*Error); !ok || e.Cause != CauseCheckWhenMustCall {
		t.Fatalf("expected CheckWhenMustCall, got %v", err)
	}
}

func TestFold_SecondFoldRejected(t *testing.T) {
	g := mustGame(t, Config{
		Variant:    VariantTexas,
		Blinds:     Blinds{Small: 1, Big: 2},
		MinPlayers: 3,
	})
	mustSeat(t, g, "a", 200, 0)
	mustSeat(t, g, "b", 200, 1)
	mustSeat(t, g, "c", 200, 2)

	mustAct(t, g, "a", ActionFold, 0)
	err := g.ApplyAction(Action{PlayerID: "a", Kind: ActionFold})
	if err == nil {
		t.Fatalf("expected second fold to fail")
	}
	if CodeOf(err) != CodeActionIllegal {
		t.Fatalf("expected ActionIllegal, got %v", err)
	}
}

func TestActOutOfTurnRejected(t *testing.T) {
	g := headsUp(t)
	err := g.ApplyAction(Action{PlayerID: "b", Kind: ActionCall})
	if CodeOf(err) != CodeNotYourTurn {
		t.Fatalf("expected NotYourTurn, got %v", err)
	}
}

func TestHandNumbers_StrictlyIncreasing(t *testing.T) {
	g := headsUp(t)
	first := g.HandNumber()
	if first != 1 {
		t.Fatalf("expected hand 1, got %d", first)
	}

	mustAct(t, g, "a", ActionFold, 0)
	if err := g.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	if g.HandNumber() != first+1 {
		t.Fatalf("expected hand %d, got %d", first+1, g.HandNumber())
	}
	// The button moves on.
	if view := g.ProjectFor(""); view.DealerIndex != 1 {
		t.Fatalf("expected dealer rotated to seat 1, got %d", view.DealerIndex)
	}
}

func TestTimeoutAction_CheckElseFold(t *testing.T) {
	g := headsUp(t)

	// Facing the big blind the dealer owes chips: timeout folds.
	action, ok := g.TimeoutAction()
	if !ok {
		t.Fatalf("expected a timeout action")
	}
	if action.PlayerID != "a" || action.Kind != ActionFold {
		t.Fatalf("expected fold for a, got %s for %s", action.Kind, action.PlayerID)
	}

	mustAct(t, g, "a", ActionCall, 0)

	// The big blind owes nothing: timeout checks.
	action, ok = g.TimeoutAction()
	if !ok {
		t.Fatalf("expected a timeout action")
	}
	if action.PlayerID != "b" || action.Kind != ActionCheck {
		t.Fatalf("expected check for b, got %s for %s", action.Kind, action.PlayerID)
	}
}

func TestRemoveSeat_MidHandKeepsBetsInPot(t *testing.T) {
	g := mustGame(t, Config{
		Variant:    VariantTexas,
		Blinds:     Blinds{Small: 1, Big: 2},
		MinPlayers: 3,
	})
	mustSeat(t, g, "a", 200, 0)
	mustSeat(t, g, "b", 200, 1)
	mustSeat(t, g, "c", 200, 2)

	// The big blind walks away mid-hand; their 2 chips stay in the pot.
	if err := g.RemoveSeat("c"); err != nil {
		t.Fatalf("RemoveSeat: %v", err)
	}
	view := g.ProjectFor("")
	if view.Pot != 3 {
		t.Fatalf("expected pot 3 after mid-hand leave, got %d", view.Pot)
	}
	cv := seatView(t, g, "c")
	if !cv.Folded || cv.Connected {
		t.Fatalf("expected c folded and disconnected, got %+v", cv)
	}
	checkPotInvariant(t, g)
}

func TestReconnect_PreservesSeatStackAndCards(t *testing.T) {
	g := headsUp(t)
	before := seatView(t, g, "a")
	holeBefore := g.ProjectFor("a")

	if !g.MarkDisconnected("a") {
		t.Fatalf("expected disconnect to stick")
	}
	if _, started, err := g.AddSeat("a", "a", 999, 5); err != nil || started {
		t.Fatalf("re-join should re-attach quietly, got started=%v err=%v", started, err)
	}

	after := seatView(t, g, "a")
	if after.SeatIndex != before.SeatIndex || after.Stack != before.Stack {
		t.Fatalf("seat or stack changed across reconnect: %+v vs %+v", before, after)
	}
	holeAfter := g.ProjectFor("a")
	for _, s := range holeAfter.Seats {
		if s.PlayerID != "a" {
			continue
		}
		for _, prev := range holeBefore.Seats {
			if prev.PlayerID != "a" {
				continue
			}
			if len(s.HoleCards) != len(prev.HoleCards) {
				t.Fatalf("hole cards changed across reconnect")
			}
			for i := range s.HoleCards {
				if s.HoleCards[i] != prev.HoleCards[i] {
					t.Fatalf("hole cards changed across reconnect")
				}
			}
		}
	}
}

func TestDoubleSeat_Rejected(t *testing.T) {
	g := headsUp(t)
	if _, _, err := g.AddSeat("a", "a", 200, 3); CodeOf(err) != CodeAlreadySeated {
		t.Fatalf("expected AlreadySeated, got %v", err)
	}
}

func TestVariant_HoleCardCounts(t *testing.T) {
	cases := []struct {
		variant Variant
		hole    int
		board   int // community cards exposed before preflop action
	}{
		{VariantTexas, 2, 0},
		{VariantPineapple, 3, 0},
		{VariantOmaha, 4, 0},
		{VariantCourchevel, 5, 1},
	}
	for _, tc := range cases {
		g := mustGame(t, Config{
			Variant: tc.variant,
			Blinds:  Blinds{Small: 1, Big: 2},
		})
		mustSeat(t, g, "a", 200, 0)
		mustSeat(t, g, "b", 200, 1)

		view := g.ProjectFor("a")
		if len(view.Community) != tc.board {
			t.Fatalf("%s: expected %d community cards preflop, got %d",
				tc.variant, tc.board, len(view.Community))
		}
		sv := seatView(t, g, "a")
		if len(sv.HoleCards) != tc.hole {
			t.Fatalf("%s: expected %d hole cards, got %d", tc.variant, tc.hole, len(sv.HoleCards))
		}
	}
}

func TestProjection_HidesOpponentCards(t *testing.T) {
	g := headsUp(t)

	view := g.ProjectFor("a")
	for _, s := range view.Seats {
		if s.PlayerID == "a" {
			if len(s.HoleCards) != 2 {
				t.Fatalf("viewer must see own cards")
			}
		} else {
			if len(s.HoleCards) != 0 {
				t.Fatalf("viewer must not see opponent cards")
			}
			if !s.HasCards {
				t.Fatalf("opponent card count should still be visible")
			}
		}
	}

	// Spectators see no cards at all.
	watcher := g.ProjectFor("")
	for _, s := range watcher.Seats {
		if len(s.HoleCards) != 0 {
			t.Fatalf("spectator saw hole cards")
		}
	}
}

func TestProjection_FoldWinRevealsNothing(t *testing.T) {
	g := headsUp(t)
	mustAct(t, g, "a", ActionFold, 0)

	view := g.ProjectFor("")
	if view.Stage != "showdown" {
		t.Fatalf("expected showdown, got %s", view.Stage)
	}
	for _, s := range view.Seats {
		if len(s.HoleCards) != 0 {
			t.Fatalf("fold win must not reveal cards")
		}
	}
}

func TestProjection_ContestedShowdownRevealsUnfolded(t *testing.T) {
	g := headsUp(t)
	mustAct(t, g, "a", ActionAllIn, 0)
	mustAct(t, g, "b", ActionAllIn, 0)

	view := g.ProjectFor("")
	if view.Stage != "showdown" {
		t.Fatalf("expected showdown, got %s", view.Stage)
	}
	for _, s := range view.Seats {
		if len(s.HoleCards) == 0 {
			t.Fatalf("contested showdown must reveal unfolded hole cards")
		}
	}
	if len(view.Community) != 5 {
		t.Fatalf("expected a full board after runout, got %d", len(view.Community))
	}
}

func stackedDeck(cs ...card.Card) *Deck {
	d := &Deck{}
	d.cards.Init(cs)
	return d
}

// Three players all-in preflop with stacks 50/200/200: main pot 150 for
// everyone, side pot 300 for the two deep stacks only.
func TestAllIn_SidePotsAwardedIndependently(t *testing.T) {
	g := mustGame(t, Config{
		Variant:    VariantTexas,
		Blinds:     Blinds{Small: 1, Big: 2},
		MinPlayers: 3,
	})
	mustSeat(t, g, "a", 50, 0)
	mustSeat(t, g, "b", 200, 1)
	mustSeat(t, g, "c", 200, 2)

	// Rig the cards: a holds aces (wins the main pot), b holds kings
	// (wins the side pot), c holds rags.
	g.mu.Lock()
	g.seats[0].HoleCards = card.CardList(cards("As", "Ah"))
	g.seats[1].HoleCards = card.CardList(cards("Ks", "Kh"))
	g.seats[2].HoleCards = card.CardList(cards("2c", "3d"))
	g.deck = stackedDeck(cards("4s", "5h", "9d", "Jh", "Qc")...)
	g.mu.Unlock()

	mustAct(t, g, "a", ActionAllIn, 0)
	mustAct(t, g, "b", ActionAllIn, 0)
	mustAct(t, g, "c", ActionAllIn, 0)

	view := g.ProjectFor("")
	if view.Stage != "showdown" {
		t.Fatalf("expected showdown, got %s", view.Stage)
	}

	won := make(map[string]int64)
	for _, w := range view.Winners {
		won[w.PlayerID] += w.Amount
	}
	if won["a"] != 150 {
		t.Fatalf("expected a to win the 150 main pot, got %d", won["a"])
	}
	if won["b"] != 300 {
		t.Fatalf("expected b to win the 300 side pot, got %d", won["b"])
	}
	if won["c"] != 0 {
		t.Fatalf("expected c to win nothing, got %d", won["c"])
	}

	a := seatView(t, g, "a")
	b := seatView(t, g, "b")
	c := seatView(t, g, "c")
	if a.Stack != 150 || b.Stack != 300 || c.Stack != 0 {
		t.Fatalf("unexpected final stacks: %d/%d/%d", a.Stack, b.Stack, c.Stack)
	}
}
