package browse

import "github.com/memodeck/memodeck/pkg/api"

// flight is one in-progress page fetch. Late callers join it by waiting on
// done instead of issuing a second request.
type flight struct {
	done chan struct{}
	err  error
}

// collectionView is one independently paged card list: the unfiltered deck
// or the current search results.
type collectionView struct {
	cards  []api.Card
	cursor pageCursor
	flight *flight
}

func newCollectionView() *collectionView {
	return &collectionView{cursor: newPageCursor()}
}

// absorb merges a fetched page and advances the cursor.
func (v *collectionView) absorb(p *Page) {
	v.cards = mergeCards(v.cards, p.Cards)
	v.cursor.advance(p)
}

// reset drops all loaded cards and rewinds the cursor.
func (v *collectionView) reset() {
	v.cards = nil
	v.cursor.reset()
}

// nearEnd reports whether the given position is close enough to the loaded
// tail that the next page should be prefetched.
func (v *collectionView) nearEnd(index int, threshold float64) bool {
	if len(v.cards) == 0 {
		return false
	}
	return index+1 >= int(float64(len(v.cards))*threshold)
}

// indexOf returns the position of a card by id, or -1.
func (v *collectionView) indexOf(cardID string) int {
	for i := range v.cards {
		if v.cards[i].ID == cardID {
			return i
		}
	}
	return -1
}

// replace swaps in the server's echo of a mutated card. No-op when the
// card is not loaded in this view.
func (v *collectionView) replace(c api.Card) {
	if i := v.indexOf(c.ID); i >= 0 {
		v.cards[i] = c
	}
}

// remove drops a card by id. Returns the removed index, or -1.
func (v *collectionView) remove(cardID string) int {
	i := v.indexOf(cardID)
	if i < 0 {
		return -1
	}
	v.cards = append(v.cards[:i], v.cards[i+1:]...)
	if v.cursor.total > 0 {
		v.cursor.total--
	}
	return i
}
