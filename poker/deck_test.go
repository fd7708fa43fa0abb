package poker

import (
	"testing"

	"cardroom/card"
)

func TestNewDeck_VariantSizes(t *testing.T) {
	cases := []struct {
		variant Variant
		size    int
		lowest  int
	}{
		{VariantTexas, 52, 2},
		{VariantOmaha, 52, 2},
		{VariantShortDeck, 36, 6},
		{VariantManila, 32, 7},
		{VariantRoyal, 20, 10},
	}
	for _, tc := range cases {
		d := NewDeck(tc.variant)
		if d.Remaining() != tc.size {
			t.Fatalf("%s: expected %d cards, got %d", tc.variant, tc.size, d.Remaining())
		}
		drawn, err := d.Draw(tc.size)
		if err != nil {
			t.Fatalf("%s: draw all: %v", tc.variant, err)
		}
		seen := make(map[card.Card]bool, tc.size)
		for _, c := range drawn {
			if seen[c] {
				t.Fatalf("%s: duplicate card %s", tc.variant, c)
			}
			seen[c] = true
			if c.Value() < tc.lowest {
				t.Fatalf("%s: card %s below lowest rank %d", tc.variant, c, tc.lowest)
			}
		}
	}
}

func TestDeck_DrawExhausted(t *testing.T) {
	d := NewDeck(VariantRoyal)
	if _, err := d.Draw(21); err == nil {
		t.Fatalf("expected exhaustion error")
	} else if CodeOf(err) != CodeDeckExhausted {
		t.Fatalf("expected DeckExhausted, got %v", err)
	}
	// A failed draw must not consume cards.
	if d.Remaining() != 20 {
		t.Fatalf("failed draw consumed cards: %d left", d.Remaining())
	}
}

func TestDeck_ShufflesDiffer(t *testing.T) {
	a := NewDeck(VariantTexas)
	b := NewDeck(VariantTexas)
	ca, _ := a.Draw(52)
	cb, _ := b.Draw(52)
	same := true
	for i := range ca {
		if ca[i] != cb[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("two fresh decks came out in identical order")
	}
}
