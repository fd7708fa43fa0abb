package poker

import (
	"testing"

	"cardroom/card"
)

func cards(strs ...string) []card.Card {
	out := make([]card.Card, 0, len(strs))
	for _, s := range strs {
		out = append(out, card.MustParse(s))
	}
	return out
}

func TestEval5_RoyalFlushBeatsLowerStraightFlush(t *testing.T) {
	royal := Eval5(cards("As", "Ks", "Qs", "Js", "Ts"), VariantTexas)
	if royal.Category != HandRoyalFlush {
		t.Fatalf("expected royal flush, got %s", HandName(royal.Category))
	}

	sf := Eval5(cards("Kh", "Qh", "Jh", "Th", "9h"), VariantTexas)
	if sf.Category != HandStraightFlush {
		t.Fatalf("expected straight flush, got %s", HandName(sf.Category))
	}
	if royal.Score <= sf.Score {
		t.Fatalf("expected royal flush to beat straight flush: %d <= %d", royal.Score, sf.Score)
	}
}

func TestEval5_WheelIsLowestStraight(t *testing.T) {
	wheel := Eval5(cards("As", "2h", "3c", "4d", "5s"), VariantTexas)
	if wheel.Category != HandStraight {
		t.Fatalf("expected straight for wheel, got %s", HandName(wheel.Category))
	}

	sixHigh := Eval5(cards("2s", "3h", "4c", "5d", "6s"), VariantTexas)
	if sixHigh.Category != HandStraight {
		t.Fatalf("expected straight for 6-high, got %s", HandName(sixHigh.Category))
	}
	if sixHigh.Score <= wheel.Score {
		t.Fatalf("expected 6-high straight to beat wheel: %d <= %d", sixHigh.Score, wheel.Score)
	}
}

func TestEval5_ShortDeckWheel(t *testing.T) {
	// With the 36-card deck the ace wraps below the six.
	r := Eval5(cards("As", "6h", "7c", "8d", "9s"), VariantShortDeck)
	if r.Category != HandStraight {
		t.Fatalf("expected straight for A6789 in short deck, got %s", HandName(r.Category))
	}
	// The same five cards are no straight in a full deck.
	full := Eval5(cards("As", "6h", "7c", "8d", "9s"), VariantTexas)
	if full.Category == HandStraight {
		t.Fatalf("A6789 must not be a straight in a full deck")
	}
}

func TestEval5_ShortDeckFlushBeatsFullHouse(t *testing.T) {
	flush := Eval5(cards("6s", "7s", "8s", "9s", "Ks"), VariantShortDeck)
	if flush.Category != HandFlush {
		t.Fatalf("expected flush, got %s", HandName(flush.Category))
	}
	boat := Eval5(cards("Kh", "Kd", "Kc", "9h", "9d"), VariantShortDeck)
	if boat.Category != HandFullHouse {
		t.Fatalf("expected full house, got %s", HandName(boat.Category))
	}
	if flush.Score <= boat.Score {
		t.Fatalf("short deck flush must beat full house: %d <= %d", flush.Score, boat.Score)
	}

	// Standard order everywhere else.
	if categoryOrder(VariantTexas, HandFlush) >= categoryOrder(VariantTexas, HandFullHouse) {
		t.Fatalf("full deck must keep full house above flush")
	}
}

func TestBestHand_ShortDeckFlushOverBoardPair(t *testing.T) {
	// Hole 6s7s on 8s 9s Ts Kh Kd: the board pairs kings, but the suited
	// cards (here even a straight flush, 6s-Ts) must win the category fight.
	r := BestHand(cards("6s", "7s"), cards("8s", "9s", "Ts", "Kh", "Kd"), VariantShortDeck)
	if r.Category != HandStraightFlush {
		t.Fatalf("expected straight flush, got %s", HandName(r.Category))
	}
}

func TestBestHand_OmahaMustUseTwoHoleCards(t *testing.T) {
	// One spade in hand: no royal flush claim. Best is three aces.
	hole := cards("As", "Ah", "2c", "2d")
	board := cards("Ac", "Ks", "Qs", "Js", "Ts")

	r := BestHand(hole, board, VariantOmaha)
	if r.Category == HandStraightFlush || r.Category == HandRoyalFlush || r.Category == HandFlush {
		t.Fatalf("omaha hand illegally used fewer than two hole cards: %s", HandName(r.Category))
	}
	if r.Category != HandThreeOfKind {
		t.Fatalf("expected three of a kind, got %s", HandName(r.Category))
	}

	// The same cards in a best-of-union variant do make the royal.
	if r := BestHand(hole[:2], board, VariantTexas); r.Category != HandRoyalFlush {
		t.Fatalf("expected royal flush for texas rules, got %s", HandName(r.Category))
	}
}

func TestBestHand_TexasPicksBestFive(t *testing.T) {
	r := BestHand(cards("As", "Ah"), cards("Kc", "Kd", "2s", "3h", "4c"), VariantTexas)
	if r.Category != HandTwoPair {
		t.Fatalf("expected two pair, got %s", HandName(r.Category))
	}
	if len(r.BestFive) != 5 {
		t.Fatalf("expected 5 best cards, got %d", len(r.BestFive))
	}
}

func TestBestLow_QualifierAndMisses(t *testing.T) {
	// A-2-3-4-8 low available using exactly two hole cards.
	hole := cards("Ah", "2c", "Kh", "Kd")
	board := cards("3s", "4d", "8c", "Qh", "Js")
	low := BestLow(hole, board, VariantOmahaHiLo)
	if low == nil {
		t.Fatalf("expected a qualifying low")
	}

	// A board with only two low cards cannot make a qualifying low.
	board = cards("3s", "4d", "Tc", "Qh", "Js")
	if low := BestLow(hole, board, VariantOmahaHiLo); low != nil {
		t.Fatalf("expected no qualifier, got %v", low.BestFive)
	}
}

func TestBestLow_SmallerIsBetter(t *testing.T) {
	wheel := BestLow(cards("Ah", "2c", "9h", "9d"), cards("3s", "4d", "5c", "Qh", "Js"), VariantOmahaHiLo)
	eight := BestLow(cards("8h", "2c", "9h", "9d"), cards("3s", "4d", "5c", "Qh", "Js"), VariantOmahaHiLo)
	if wheel == nil || eight == nil {
		t.Fatalf("expected both lows to qualify")
	}
	if wheel.Score >= eight.Score {
		t.Fatalf("wheel low must beat eight low: %d >= %d", wheel.Score, eight.Score)
	}
}

func TestDetermineWinners_SplitsTies(t *testing.T) {
	a := &Seat{PlayerID: "a", SeatIndex: 0, HoleCards: cards("Ah", "Kd")}
	b := &Seat{PlayerID: "b", SeatIndex: 1, HoleCards: cards("Ad", "Kh")}
	c := &Seat{PlayerID: "c", SeatIndex: 2, HoleCards: cards("2c", "3c")}
	board := cards("As", "Kc", "7h", "8d", "9s")

	winners, results := DetermineWinners([]*Seat{a, b, c}, board, VariantTexas)
	if len(winners) != 2 {
		t.Fatalf("expected split between a and b, got %d winners", len(winners))
	}
	if results["a"].Category != HandTwoPair {
		t.Fatalf("expected two pair, got %s", HandName(results["a"].Category))
	}
}

func TestDetermineWinners_SkipsFolded(t *testing.T) {
	a := &Seat{PlayerID: "a", SeatIndex: 0, HoleCards: cards("Ah", "Ad"), Folded: true}
	b := &Seat{PlayerID: "b", SeatIndex: 1, HoleCards: cards("2c", "3c")}
	board := cards("As", "Kc", "7h", "8d", "9s")

	winners, _ := DetermineWinners([]*Seat{a, b}, board, VariantTexas)
	if len(winners) != 1 || winners[0].PlayerID != "b" {
		t.Fatalf("folded seat must not win")
	}
}
