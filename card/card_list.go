package card

type CardList []Card

func (ds *CardList) Init(cards []Card) {
	*ds = make([]Card, len(cards))
	copy(*ds, cards)
}

// Count returns the number of cards remaining.
func (ds CardList) Count() int {
	return len(ds)
}

func (ds *CardList) Add(cards ...Card) {
	*ds = append(*ds, cards...)
}

func (ds *CardList) PopCards(size int) ([]Card, bool) {
	if size > ds.Count() {
		return nil, false
	}
	cards := make([]Card, size)
	copy(cards, (*ds)[:size])
	*ds = (*ds)[size:]
	return cards, true
}
