// Package dealer implements the mental poker primitive both peers run to
// agree on a shuffled deck without either side learning the order. Cards are
// curve points masked by commutative scalar multiplication: each peer applies
// a secret deck key during the shuffle rounds, then swaps its deck key for
// one key per dealt card, so a card opens only once both per-card key shares
// are on the table.
package dealer

import (
	"crypto/rand"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ErrUnknownCard is returned when an unmasked point matches no card of the
// reference deck, which means a peer tampered with the shuffle.
var ErrUnknownCard = errors.New("dealer: revealed point is not a deck card")

// referenceDeck holds the public unmasked deck, card i at scalar i+1 times
// the generator, and an index by x coordinate for reveal lookups.
var (
	referenceDeck [DeckSize]Point
	referenceByX  = make(map[string]int, DeckSize)
)

func init() {
	curve := crypto.S256()
	for i := 0; i < DeckSize; i++ {
		k := big.NewInt(int64(i + 1))
		x, y := curve.ScalarBaseMult(k.Bytes())
		referenceDeck[i] = Point{X: x, Y: y}
		referenceByX[x.String()] = i
	}
}

// NewDeck returns a fresh copy of the public reference deck in canonical
// order.
func NewDeck() []Point {
	deck := make([]Point, DeckSize)
	for i := range referenceDeck {
		deck[i] = referenceDeck[i].Clone()
	}
	return deck
}

// Dealer holds one peer's secrets for a single shuffle: the deck key used
// during the masking rounds and the per-card keys minted at deal time.
type Dealer struct {
	deckKey  *big.Int
	cardKeys []*big.Int
}

func New() *Dealer {
	return &Dealer{}
}

// Shuffle permutes the deck and masks every card with a fresh deck key.
func (d *Dealer) Shuffle(deck []Point) ([]Point, error) {
	key, err := newScalar()
	if err != nil {
		return nil, err
	}
	d.deckKey = key

	out := make([]Point, len(deck))
	for i, p := range deck {
		out[i] = mask(p, key)
	}
	if err := permute(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Deal strips the deck key from the dealt cards and replaces it with one
// fresh key per card. The per-card keys are what later travels through the
// card field as reveal shares.
func (d *Dealer) Deal(cards []Point) ([]Point, error) {
	if d.deckKey == nil {
		return nil, errors.New("dealer: deal before shuffle")
	}
	d.cardKeys = make([]*big.Int, len(cards))
	out := make([]Point, len(cards))
	for i, p := range cards {
		key, err := newScalar()
		if err != nil {
			return nil, err
		}
		d.cardKeys[i] = key
		out[i] = mask(unmask(p, d.deckKey), key)
	}
	return out, nil
}

// CardKey returns this peer's key share for dealt card i.
func (d *Dealer) CardKey(i int) (*big.Int, error) {
	if i < 0 || i >= len(d.cardKeys) {
		return nil, errors.Errorf("dealer: no key for card %d", i)
	}
	return d.cardKeys[i], nil
}

// RevealCard strips both key shares from a dealt card and looks the result
// up in the reference deck.
func RevealCard(p Point, shares ...*big.Int) (Card, error) {
	for _, k := range shares {
		if k == nil || k.Sign() == 0 {
			return Card{}, errors.New("dealer: empty key share")
		}
		p = unmask(p, k)
	}
	idx, ok := referenceByX[p.X.String()]
	if !ok {
		return Card{}, ErrUnknownCard
	}
	return Card{index: idx}, nil
}

// ResolveCard is the reveal in card field terms, raw coordinates and the two
// scalar shares straight out of the state slots. It returns the card index.
func ResolveCard(x, y, share1, share2 *big.Int) (int, error) {
	if !crypto.S256().IsOnCurve(x, y) {
		return 0, errors.New("dealer: card slot is not a curve point")
	}
	card, err := RevealCard(Point{X: x, Y: y}, share1, share2)
	if err != nil {
		return 0, err
	}
	return card.Index(), nil
}

func newScalar() (*big.Int, error) {
	n := crypto.S256().Params().N
	max := new(big.Int).Sub(n, big.NewInt(1))
	k, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, errors.Wrap(err, "dealer: scalar entropy")
	}
	return k.Add(k, big.NewInt(1)), nil
}

func permute(deck []Point) error {
	for i := len(deck) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return errors.Wrap(err, "dealer: permutation entropy")
		}
		deck[i], deck[j.Int64()] = deck[j.Int64()], deck[i]
	}
	return nil
}
