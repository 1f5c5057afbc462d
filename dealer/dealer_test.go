package dealer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs the full four round exchange the way two live peers do: responder
// shuffles, initiator re-shuffles and keeps the top two, both deal, then
// each opens its own card with the counterparty's share.
func TestTwoPartyShuffleAndReveal(t *testing.T) {
	responder := New()
	initiator := New()

	deck, err := responder.Shuffle(NewDeck())
	require.NoError(t, err)

	deck, err = initiator.Shuffle(deck)
	require.NoError(t, err)
	dealt := deck[:2]

	dealt, err = responder.Deal(dealt)
	require.NoError(t, err)
	dealt, err = initiator.Deal(dealt)
	require.NoError(t, err)

	// Card 0 goes to player zero: it opens with both card 0 shares.
	respKey0, err := responder.CardKey(0)
	require.NoError(t, err)
	initKey0, err := initiator.CardKey(0)
	require.NoError(t, err)
	card0, err := RevealCard(dealt[0], respKey0, initKey0)
	require.NoError(t, err)

	respKey1, err := responder.CardKey(1)
	require.NoError(t, err)
	initKey1, err := initiator.CardKey(1)
	require.NoError(t, err)
	card1, err := RevealCard(dealt[1], respKey1, initKey1)
	require.NoError(t, err)

	require.NotEqual(t, card0.Index(), card1.Index())

	// Share order must not matter.
	again, err := RevealCard(dealt[0], initKey0, respKey0)
	require.NoError(t, err)
	require.Equal(t, card0, again)

	// A single share must not open the card.
	_, err = RevealCard(dealt[0], respKey0)
	require.ErrorIs(t, err, ErrUnknownCard)

	// Mismatched shares must not open the card either.
	_, err = RevealCard(dealt[0], respKey0, initKey1)
	require.ErrorIs(t, err, ErrUnknownCard)

	idx, err := ResolveCard(dealt[1].X, dealt[1].Y, respKey1, initKey1)
	require.NoError(t, err)
	require.Equal(t, card1.Index(), idx)
}

func TestShuffleIsPermutationOfMaskedDeck(t *testing.T) {
	d := New()
	deck, err := d.Shuffle(NewDeck())
	require.NoError(t, err)
	require.Len(t, deck, DeckSize)

	// Unmasking every card with the deck key must give back the reference
	// deck as a set.
	seen := make(map[int]bool, DeckSize)
	for _, p := range deck {
		card, err := RevealCard(p, d.deckKey)
		require.NoError(t, err)
		require.False(t, seen[card.Index()])
		seen[card.Index()] = true
	}
	require.Len(t, seen, DeckSize)
}

func TestDealRequiresShuffle(t *testing.T) {
	_, err := New().Deal(NewDeck()[:2])
	require.Error(t, err)
}

func TestPointHexRoundTrip(t *testing.T) {
	p := NewDeck()[17]
	parsed, err := ParsePoint(p.Hex())
	require.NoError(t, err)
	require.Zero(t, p.X.Cmp(parsed.X))
	require.Zero(t, p.Y.Cmp(parsed.Y))

	_, err = ParsePoint("04deadbeef")
	require.Error(t, err)

	// Off-curve coordinates are rejected.
	bad := Point{X: big.NewInt(1), Y: big.NewInt(1)}
	_, err = ParsePoint(bad.Hex())
	require.Error(t, err)
}

func TestResolveCardRejectsOffCurve(t *testing.T) {
	_, err := ResolveCard(big.NewInt(1), big.NewInt(1), big.NewInt(2), big.NewInt(3))
	require.Error(t, err)
}

func TestCardOrdering(t *testing.T) {
	lowest, err := NewCard(0)
	require.NoError(t, err)
	highest, err := NewCard(51)
	require.NoError(t, err)
	require.Equal(t, 2, lowest.Rank())
	require.Equal(t, 14, highest.Rank())
	require.Equal(t, "2♣", lowest.String())
	require.Equal(t, "A♠", highest.String())
	require.True(t, highest.Beats(lowest))

	// Same rank, different suits: neither beats the other.
	c1, err := NewCard(8)
	require.NoError(t, err)
	c2, err := NewCard(11)
	require.NoError(t, err)
	require.Equal(t, c1.Rank(), c2.Rank())
	require.False(t, c1.Beats(c2))
	require.False(t, c2.Beats(c1))

	_, err = NewCard(52)
	require.Error(t, err)
}
