package poker

import (
	"crypto/rand"
	"encoding/binary"

	"cardroom/card"
)

// Deck is an ordered run of cards for one hand. Decks are built per
// variant and shuffled with a cryptographically strong source so that
// outcomes are not predictable from prior hands.
type Deck struct {
	cards card.CardList
}

// NewDeck builds and shuffles a fresh deck for the variant.
func NewDeck(v Variant) *Deck {
	low := v.LowestRank()
	cards := make([]card.Card, 0, (15-low)*4)
	for _, s := range card.Suits {
		for val := low; val <= 14; val++ {
			cards = append(cards, card.Make(s, val))
		}
	}
	shuffle(cards)

	d := &Deck{}
	d.cards.Init(cards)
	return d
}

// Remaining returns the number of undrawn cards.
func (d *Deck) Remaining() int { return d.cards.Count() }

// Draw removes the top n cards. Fails with a DeckExhausted error when
// n exceeds the remaining count; the engine treats that as fatal.
func (d *Deck) Draw(n int) ([]card.Card, error) {
	cards, ok := d.cards.PopCards(n)
	if !ok {
		return nil, NewError(CodeDeckExhausted,
			"draw exceeds remaining cards")
	}
	return cards, nil
}

// shuffle is a Fisher-Yates pass driven by crypto/rand.
func shuffle(cards []card.Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := cryptoIntn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// cryptoIntn returns a uniform value in [0, n) from the OS random
// source, with rejection sampling to avoid modulo bias.
func cryptoIntn(n int) int {
	max := uint64(n)
	limit := (^uint64(0) / max) * max
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("deck: crypto rand unavailable: " + err.Error())
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return int(v % max)
		}
	}
}
