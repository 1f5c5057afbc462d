package dealer

import (
	"fmt"

	"github.com/pkg/errors"
)

// DeckSize is the number of cards in the reference deck.
const DeckSize = 52

const (
	Club    = 0
	Diamond = 1
	Heart   = 2
	Spade   = 3
)

// Card identifies one card of the reference deck. Indices are grouped by
// rank, four suits per rank, deuces first and aces last, so integer division
// by four orders cards exactly the way the settlement contract does.
type Card struct {
	index int
}

func NewCard(index int) (Card, error) {
	if index < 0 || index >= DeckSize {
		return Card{}, errors.Errorf("invalid card index %d", index)
	}
	return Card{index: index}, nil
}

func (c Card) Index() int {
	return c.index
}

// Rank is the face value, 2 through 14 with aces high.
func (c Card) Rank() int {
	return c.index/4 + 2
}

func (c Card) Suit() int {
	return c.index % 4
}

// Beats reports whether c outranks other. Suits never break ties.
func (c Card) Beats(other Card) bool {
	return c.Rank() > other.Rank()
}

func (c Card) String() string {
	var suit string
	switch c.Suit() {
	case Club:
		suit = "♣"
	case Diamond:
		suit = "♦"
	case Heart:
		suit = "♥"
	case Spade:
		suit = "♠"
	}

	var rank string
	switch r := c.Rank(); r {
	case 11:
		rank = "J"
	case 12:
		rank = "Q"
	case 13:
		rank = "K"
	case 14:
		rank = "A"
	default:
		rank = fmt.Sprintf("%d", r)
	}
	return rank + suit
}
