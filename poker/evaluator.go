package poker

import (
	"fmt"

	"cardroom/card"
)

// HandResult is the outcome of evaluating one 5-card hand (or the best
// 5-card hand available to a seat). Score is monotone: a higher score
// always wins, so comparison reduces to integer comparison.
type HandResult struct {
	Category byte
	Score    uint32
	BestFive []card.Card
	Desc     string
}

// LowResult is a qualifying ace-to-eight low. Smaller Score is better.
type LowResult struct {
	Score    uint32
	BestFive []card.Card
}

// categoryOrder maps a hand category to its comparison order for a
// variant. Short deck plays flushes above full houses; everything else
// keeps the standard order.
func categoryOrder(v Variant, cat byte) uint32 {
	if v == VariantShortDeck {
		switch cat {
		case HandFlush:
			return uint32(HandFullHouse)
		case HandFullHouse:
			return uint32(HandFlush)
		}
	}
	return uint32(cat)
}

// packScore folds the category order and up to five tiebreak values
// (2..14, most significant first) into one comparable integer.
func packScore(order uint32, tiebreak []int) uint32 {
	score := order << 20
	shift := uint(16)
	for _, v := range tiebreak {
		score |= uint32(v) << shift
		shift -= 4
	}
	return score
}

// Eval5 scores exactly five cards under the variant's category order.
func Eval5(cards []card.Card, v Variant) HandResult {
	if len(cards) != 5 {
		panic("eval5 requires exactly 5 cards")
	}

	var counts [15]int // indexed by comparison value 2..14
	suited := true
	for _, c := range cards {
		counts[c.Value()]++
		if c.Suit() != cards[0].Suit() {
			suited = false
		}
	}

	// Group values by multiplicity, high values first.
	var quads, trips, pairs, singles []int
	for val := 14; val >= 2; val-- {
		switch counts[val] {
		case 4:
			quads = append(quads, val)
		case 3:
			trips = append(trips, val)
		case 2:
			pairs = append(pairs, val)
		case 1:
			singles = append(singles, val)
		}
	}

	straightHigh := straightHighCard(counts, v)

	var cat byte
	var tiebreak []int
	switch {
	case suited && straightHigh == 14:
		cat = HandRoyalFlush
		tiebreak = []int{14}
	case suited && straightHigh > 0:
		cat = HandStraightFlush
		tiebreak = []int{straightHigh}
	case len(quads) == 1:
		cat = HandFourOfKind
		tiebreak = append(quads, singles...)
	case len(trips) == 1 && len(pairs) == 1:
		cat = HandFullHouse
		tiebreak = []int{trips[0], pairs[0]}
	case suited:
		cat = HandFlush
		tiebreak = singles
	case straightHigh > 0:
		cat = HandStraight
		tiebreak = []int{straightHigh}
	case len(trips) == 1:
		cat = HandThreeOfKind
		tiebreak = append(trips, singles...)
	case len(pairs) == 2:
		cat = HandTwoPair
		tiebreak = append(pairs, singles...)
	case len(pairs) == 1:
		cat = HandOnePair
		tiebreak = append(pairs, singles...)
	default:
		cat = HandHighCard
		tiebreak = singles
	}

	return HandResult{
		Category: cat,
		Score:    packScore(categoryOrder(v, cat), tiebreak),
		BestFive: append([]card.Card(nil), cards...),
		Desc:     describeHand(cat, tiebreak),
	}
}

// straightHighCard returns the straight's high card value, or 0 when the
// five values do not form a straight. The ace plays high and also low:
// in a full deck A-2-3-4-5 is the wheel (high card 5); in stripped decks
// the ace wraps below the lowest rank (short deck A-6-7-8-9, high 9).
func straightHighCard(counts [15]int, v Variant) int {
	run := 0
	for val := 2; val <= 14; val++ {
		if counts[val] == 0 {
			run = 0
			continue
		}
		if counts[val] > 1 {
			return 0
		}
		run++
		if run == 5 {
			return val
		}
	}

	low := v.LowestRank()
	if counts[14] == 1 {
		wheel := true
		for val := low; val < low+4; val++ {
			if counts[val] != 1 {
				wheel = false
				break
			}
		}
		if wheel {
			return low + 3
		}
	}
	return 0
}

var valueNames = map[int]string{
	2: "Two", 3: "Three", 4: "Four", 5: "Five", 6: "Six", 7: "Seven",
	8: "Eight", 9: "Nine", 10: "Ten", 11: "Jack", 12: "Queen",
	13: "King", 14: "Ace",
}

func describeHand(cat byte, tiebreak []int) string {
	name := HandName(cat)
	if len(tiebreak) == 0 {
		return name
	}
	switch cat {
	case HandOnePair, HandThreeOfKind, HandFourOfKind:
		return fmt.Sprintf("%s, %ss", name, valueNames[tiebreak[0]])
	case HandTwoPair:
		return fmt.Sprintf("%s, %ss and %ss", name,
			valueNames[tiebreak[0]], valueNames[tiebreak[1]])
	case HandFullHouse:
		return fmt.Sprintf("%s, %ss over %ss", name,
			valueNames[tiebreak[0]], valueNames[tiebreak[1]])
	default:
		return fmt.Sprintf("%s, %s high", name, valueNames[tiebreak[0]])
	}
}

// BestHand finds the strongest 5-card hand available to hole+board
// under the variant's rules. Omaha-family variants must use exactly two
// hole cards and exactly three board cards; every other variant plays
// the best five of the union.
func BestHand(hole, board []card.Card, v Variant) HandResult {
	var best HandResult
	enumerateHands(hole, board, v, func(hand []card.Card) {
		r := Eval5(hand, v)
		if r.Score > best.Score {
			best = r
		}
	})
	return best
}

// BestLow finds the best qualifying ace-to-eight low, or nil when no
// qualifier exists. Hole/board usage rules match the high hand's.
func BestLow(hole, board []card.Card, v Variant) *LowResult {
	var best *LowResult
	enumerateHands(hole, board, v, func(hand []card.Card) {
		score, ok := evalLow5(hand)
		if !ok {
			return
		}
		if best == nil || score < best.Score {
			best = &LowResult{
				Score:    score,
				BestFive: append([]card.Card(nil), hand...),
			}
		}
	})
	return best
}

// evalLow5 scores five cards as an ace-to-eight low: five distinct
// ranks, every rank <= 8, ace counting as 1. Smaller score is better.
func evalLow5(cards []card.Card) (uint32, bool) {
	var seen [9]bool
	vals := make([]int, 0, 5)
	for _, c := range cards {
		v := int(c.Rank()) // A=1 here, exactly what a low wants
		if v > 8 || seen[v] {
			return 0, false
		}
		seen[v] = true
		vals = append(vals, v)
	}
	// Pack descending so the highest card dominates comparison.
	for i := 0; i < len(vals); i++ {
		for j := i + 1; j < len(vals); j++ {
			if vals[j] > vals[i] {
				vals[i], vals[j] = vals[j], vals[i]
			}
		}
	}
	var score uint32
	for _, v := range vals {
		score = score<<4 | uint32(v)
	}
	return score, true
}

// enumerateHands walks every admissible 5-card combination.
func enumerateHands(hole, board []card.Card, v Variant, fn func([]card.Card)) {
	if v.OmahaRules() {
		hand := make([]card.Card, 5)
		forEachPair(len(hole), func(h1, h2 int) {
			forEachTriple(len(board), func(b1, b2, b3 int) {
				hand[0], hand[1] = hole[h1], hole[h2]
				hand[2], hand[3], hand[4] = board[b1], board[b2], board[b3]
				fn(hand)
			})
		})
		return
	}

	all := make([]card.Card, 0, len(hole)+len(board))
	all = append(all, hole...)
	all = append(all, board...)
	if len(all) < 5 {
		return
	}
	hand := make([]card.Card, 5)
	n := len(all)
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						hand[0], hand[1], hand[2], hand[3], hand[4] =
							all[a], all[b], all[c], all[d], all[e]
						fn(hand)
					}
				}
			}
		}
	}
}

func forEachPair(n int, fn func(i, j int)) {
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			fn(i, j)
		}
	}
}

func forEachTriple(n int, fn func(i, j, k int)) {
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			for k := j + 1; k < n; k++ {
				fn(i, j, k)
			}
		}
	}
}

// DetermineWinners returns the non-folded seats whose high hand score is
// maximal, along with each contender's evaluated hand.
func DetermineWinners(seats []*Seat, board []card.Card, v Variant) ([]*Seat, map[string]HandResult) {
	results := make(map[string]HandResult, len(seats))
	var winners []*Seat
	var best uint32
	for _, s := range seats {
		if s == nil || !s.inHand() {
			continue
		}
		r := BestHand(s.HoleCards, board, v)
		results[s.PlayerID] = r
		switch {
		case len(winners) == 0 || r.Score > best:
			winners = []*Seat{s}
			best = r.Score
		case r.Score == best:
			winners = append(winners, s)
		}
	}
	return winners, results
}

// DetermineLowWinners returns the non-folded seats holding the best
// qualifying low, or nil when nobody qualifies.
func DetermineLowWinners(seats []*Seat, board []card.Card, v Variant) []*Seat {
	var winners []*Seat
	var best uint32
	for _, s := range seats {
		if s == nil || !s.inHand() {
			continue
		}
		low := BestLow(s.HoleCards, board, v)
		if low == nil {
			continue
		}
		switch {
		case len(winners) == 0 || low.Score < best:
			winners = []*Seat{s}
			best = low.Score
		case low.Score == best:
			winners = append(winners, s)
		}
	}
	return winners
}
