// Package channel implements the off-ledger state channel core: the canonical
// game state, its ABI encoding, the transition legality rules mirroring the
// ledger's predicate, and the builders that produce new states. Both peers run
// the same deterministic machine; a state only advances once both signatures
// over its encoding are collected.
package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind tags what a transition represents. The values are fixed by the ledger
// contract and must not be renumbered.
type Kind uint8

const (
	KindFold        Kind = 0
	KindCall        Kind = 1
	KindRaise       Kind = 2
	KindKeyRevealed Kind = 3
	KindSettled     Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindFold:
		return "fold"
	case KindCall:
		return "call"
	case KindRaise:
		return "raise"
	case KindKeyRevealed:
		return "key-revealed"
	case KindSettled:
		return "settled"
	}
	return "unknown"
}

// Card field slot layout. Each card is an affine secp256k1 point; each needs
// two key shares to open. View keys are exchanged at the deal so each player
// can see their own card; own keys stay withheld until the reveal transitions.
const (
	slotCard0X   = 0
	slotCard0Y   = 1
	slotKey0Own  = 2
	slotKey0View = 3
	slotCard1X   = 4
	slotCard1Y   = 5
	slotKey1View = 6
	slotKey1Own  = 7
)

func ownKeySlot(player int) int {
	if player == 0 {
		return slotKey0Own
	}
	return slotKey1Own
}

func viewKeySlot(player int) int {
	if player == 0 {
		return slotKey0View
	}
	return slotKey1View
}

// GameState is the unit both peers co-sign. Amounts are wei-denominated
// big integers; the zero Winner address means an unresolved hand.
type GameState struct {
	HandNumber uint64
	Count      uint8
	Kind       Kind
	Stacks     [2]*big.Int
	Pot        *big.Int
	ToCall     *big.Int
	CardField  [8]*big.Int
	Actor      common.Address
	Winner     common.Address
}

// NewGameState returns the genesis state: hand 0, settled, both stacks at the
// buy-in, an empty card field and zero addresses.
func NewGameState(buyIn *big.Int) *GameState {
	s := &GameState{
		HandNumber: 0,
		Count:      0,
		Kind:       KindSettled,
		Stacks:     [2]*big.Int{new(big.Int).Set(buyIn), new(big.Int).Set(buyIn)},
		Pot:        new(big.Int),
		ToCall:     new(big.Int),
	}
	for i := range s.CardField {
		s.CardField[i] = new(big.Int)
	}
	return s
}

// Clone deep-copies the state so builders can replace rather than mutate.
func (s *GameState) Clone() *GameState {
	c := &GameState{
		HandNumber: s.HandNumber,
		Count:      s.Count,
		Kind:       s.Kind,
		Pot:        new(big.Int).Set(s.Pot),
		ToCall:     new(big.Int).Set(s.ToCall),
		Actor:      s.Actor,
		Winner:     s.Winner,
	}
	for i := range s.Stacks {
		c.Stacks[i] = new(big.Int).Set(s.Stacks[i])
	}
	for i := range s.CardField {
		c.CardField[i] = new(big.Int).Set(s.CardField[i])
	}
	return c
}

// Equal compares every field; two states are interchangeable iff their
// canonical encodings match, and this mirrors that without encoding.
func (s *GameState) Equal(o *GameState) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.HandNumber != o.HandNumber || s.Count != o.Count || s.Kind != o.Kind ||
		s.Actor != o.Actor || s.Winner != o.Winner {
		return false
	}
	for i := range s.Stacks {
		if s.Stacks[i].Cmp(o.Stacks[i]) != 0 {
			return false
		}
	}
	if s.Pot.Cmp(o.Pot) != 0 || s.ToCall.Cmp(o.ToCall) != 0 {
		return false
	}
	for i := range s.CardField {
		if s.CardField[i].Cmp(o.CardField[i]) != 0 {
			return false
		}
	}
	return true
}

// Newer reports whether s supersedes o in the settlement ordering, comparing
// (handNumber, roundAction.count) lexicographically.
func (s *GameState) Newer(o *GameState) bool {
	if s.HandNumber != o.HandNumber {
		return s.HandNumber > o.HandNumber
	}
	return s.Count > o.Count
}

// CardPoint returns the masked coordinates of the card dealt to player.
func (s *GameState) CardPoint(player int) (x, y *big.Int) {
	if player == 0 {
		return s.CardField[slotCard0X], s.CardField[slotCard0Y]
	}
	return s.CardField[slotCard1X], s.CardField[slotCard1Y]
}

// ViewKey returns the counterparty share that opens the player's own card.
func (s *GameState) ViewKey(player int) *big.Int {
	return s.CardField[viewKeySlot(player)]
}

// OwnKey returns the player's published key share, zero until revealed.
func (s *GameState) OwnKey(player int) *big.Int {
	return s.CardField[ownKeySlot(player)]
}

// KeysRevealed counts the own-key slots already published.
func (s *GameState) KeysRevealed() int {
	n := 0
	if s.CardField[slotKey0Own].Sign() != 0 {
		n++
	}
	if s.CardField[slotKey1Own].Sign() != 0 {
		n++
	}
	return n
}
