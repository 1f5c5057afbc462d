package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrInvalidTransition is the root of every legality failure; callers test
// with errors.Is and read the wrapped reason for diagnostics.
var ErrInvalidTransition = errors.New("channel: invalid state transition")

func violation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidTransition, format, args...)
}

// CardResolver opens a card from its affine point and its two key shares,
// returning the card index in the fixed 52-card ordering. Supplied by the
// dealer capability; the rules never touch curve math themselves.
type CardResolver func(x, y, share1, share2 *big.Int) (int, error)

// Rules is the local mirror of the ledger's legality predicate for one table.
// The engine must predict the on-chain predicate exactly: a transition is
// signed or countersigned iff Check returns nil.
type Rules struct {
	Players [2]common.Address
	BuyIn   *big.Int
	Resolve CardResolver
}

// Ante is the forced post per player at each deal, buyIn/100.
func (r Rules) Ante() *big.Int {
	return new(big.Int).Div(r.BuyIn, big.NewInt(100))
}

// MinRaise is the minimum raise amount, buyIn/50, unless the raise is an
// all-in.
func (r Rules) MinRaise() *big.Int {
	return new(big.Int).Div(r.BuyIn, big.NewInt(50))
}

// PlayerIndex maps an address to its canonical seat, or -1.
func (r Rules) PlayerIndex(addr common.Address) int {
	switch addr {
	case r.Players[0]:
		return 0
	case r.Players[1]:
		return 1
	}
	return -1
}

// FirstActor returns the seat obliged to act first in the given hand.
// Player 0 opens odd hands, player 1 even hands.
func FirstActor(hand uint64) int {
	if hand%2 == 1 {
		return 0
	}
	return 1
}

// IsValid is the predicate form of Check.
func (r Rules) IsValid(prev, next *GameState) bool {
	return r.Check(prev, next) == nil
}

// Check decides whether next is a legal successor of prev. Every branch
// returns an error wrapping ErrInvalidTransition so callers can both gate and
// diagnose.
func (r Rules) Check(prev, next *GameState) error {
	if prev == nil || next == nil {
		return violation("nil state")
	}
	if err := r.checkAmounts(next); err != nil {
		return err
	}
	if err := r.checkConservation(prev); err != nil {
		return err
	}
	if err := r.checkConservation(next); err != nil {
		return err
	}
	actor := r.PlayerIndex(next.Actor)
	if actor < 0 {
		return violation("actor %s is not a player", next.Actor.Hex())
	}

	switch {
	case next.HandNumber == prev.HandNumber+1:
		return r.checkDeal(prev, next, actor)
	case next.HandNumber == prev.HandNumber && next.Count == prev.Count+1:
		return r.checkInHand(prev, next, actor)
	}
	return violation("hand %d count %d does not follow hand %d count %d",
		next.HandNumber, next.Count, prev.HandNumber, prev.Count)
}

func (r Rules) checkAmounts(s *GameState) error {
	for i, v := range s.Stacks {
		if v == nil || v.Sign() < 0 {
			return violation("negative stack %d", i)
		}
	}
	if s.Pot == nil || s.Pot.Sign() < 0 {
		return violation("negative pot")
	}
	if s.ToCall == nil || s.ToCall.Sign() < 0 {
		return violation("negative to-call")
	}
	for i, v := range s.CardField {
		if v == nil || v.Sign() < 0 {
			return violation("negative card field slot %d", i)
		}
	}
	return nil
}

func (r Rules) checkConservation(s *GameState) error {
	total := new(big.Int).Add(s.Stacks[0], s.Stacks[1])
	total.Add(total, s.Pot)
	double := new(big.Int).Lsh(r.BuyIn, 1)
	if total.Cmp(double) != 0 {
		return violation("chips not conserved: %s != 2*%s", total, r.BuyIn)
	}
	return nil
}

// checkDeal validates the combined ante-and-first-action transition that
// opens a hand.
func (r Rules) checkDeal(prev, next *GameState, actor int) error {
	if prev.Kind != KindSettled {
		return violation("new hand before previous hand settled")
	}
	if next.Count != 1 {
		return violation("new hand must start at count 1, got %d", next.Count)
	}
	if actor != FirstActor(next.HandNumber) {
		return violation("seat %d cannot act first in hand %d", actor, next.HandNumber)
	}
	if prev.Pot.Sign() != 0 || prev.ToCall.Sign() != 0 {
		return violation("pot not empty at hand start")
	}
	if next.Winner != (common.Address{}) {
		return violation("winner set at deal")
	}
	for _, slot := range []int{slotCard0X, slotCard0Y, slotCard1X, slotCard1Y, slotKey0View, slotKey1View} {
		if next.CardField[slot].Sign() == 0 {
			return violation("card field slot %d empty at deal", slot)
		}
	}
	for _, slot := range []int{slotKey0Own, slotKey1Own} {
		if next.CardField[slot].Sign() != 0 {
			return violation("own key slot %d revealed at deal", slot)
		}
	}
	if next.Kind > KindRaise {
		return violation("hand cannot open with %s", next.Kind)
	}

	// Reconstruct the post-ante stacks the first action is judged against.
	ante := r.Ante()
	base := prev.Clone()
	for i := range base.Stacks {
		base.Stacks[i].Sub(base.Stacks[i], ante)
		if base.Stacks[i].Sign() < 0 {
			return violation("stack %d cannot cover the ante", i)
		}
	}
	base.Pot.Add(ante, ante)
	base.ToCall.SetInt64(0)
	return r.checkBet(base, next, actor)
}

func (r Rules) checkInHand(prev, next *GameState, actor int) error {
	if next.Actor == prev.Actor {
		return violation("actor %s moved twice", next.Actor.Hex())
	}
	for _, slot := range []int{slotCard0X, slotCard0Y, slotCard1X, slotCard1Y, slotKey0View, slotKey1View} {
		if next.CardField[slot].Cmp(prev.CardField[slot]) != 0 {
			return violation("card field slot %d changed mid-hand", slot)
		}
	}

	switch next.Kind {
	case KindFold, KindCall, KindRaise:
		if !bettingOpen(prev) {
			return violation("betting already closed after %s", prev.Kind)
		}
		if next.Winner != (common.Address{}) {
			return violation("winner set during betting")
		}
		for _, slot := range []int{slotKey0Own, slotKey1Own} {
			if next.CardField[slot].Cmp(prev.CardField[slot]) != 0 {
				return violation("own key revealed during betting")
			}
		}
		return r.checkBet(prev, next, actor)
	case KindKeyRevealed:
		return r.checkReveal(prev, next, actor)
	case KindSettled:
		return r.checkSettle(prev, next, actor)
	}
	return violation("unknown kind %d", next.Kind)
}

// bettingOpen reports whether another betting action may follow prev: only
// after a raise, or after a call that was the hand's first action.
func bettingOpen(prev *GameState) bool {
	return prev.Kind == KindRaise || (prev.Kind == KindCall && prev.Count == 1)
}

// checkBet validates the chip movement of a fold, call or raise against the
// base state (prev, or the post-ante reconstruction at a deal).
func (r Rules) checkBet(base, next *GameState, actor int) error {
	other := 1 - actor
	switch next.Kind {
	case KindFold:
		if next.ToCall.Sign() != 0 {
			return violation("fold must zero the call amount")
		}
		if next.Pot.Cmp(base.Pot) != 0 ||
			next.Stacks[actor].Cmp(base.Stacks[actor]) != 0 ||
			next.Stacks[other].Cmp(base.Stacks[other]) != 0 {
			return violation("fold moved chips")
		}
	case KindCall:
		paid := base.ToCall
		wantPot := new(big.Int).Add(base.Pot, paid)
		wantStack := new(big.Int).Sub(base.Stacks[actor], paid)
		if next.ToCall.Sign() != 0 {
			return violation("call must zero the call amount")
		}
		if next.Pot.Cmp(wantPot) != 0 || next.Stacks[actor].Cmp(wantStack) != 0 ||
			next.Stacks[other].Cmp(base.Stacks[other]) != 0 {
			return violation("call paid wrong amount")
		}
	case KindRaise:
		raise := next.ToCall
		if raise.Sign() <= 0 {
			return violation("raise of nothing")
		}
		total := new(big.Int).Add(raise, base.ToCall)
		allIn := total.Cmp(base.Stacks[0]) == 0 || total.Cmp(base.Stacks[1]) == 0
		if raise.Cmp(r.MinRaise()) < 0 && !allIn {
			return violation("raise %s below minimum %s", raise, r.MinRaise())
		}
		if total.Cmp(base.Stacks[actor]) > 0 {
			return violation("raise exceeds actor stack")
		}
		if raise.Cmp(base.Stacks[other]) > 0 {
			return violation("raise exceeds what the opponent can call")
		}
		wantPot := new(big.Int).Add(base.Pot, total)
		wantStack := new(big.Int).Sub(base.Stacks[actor], total)
		if next.Pot.Cmp(wantPot) != 0 || next.Stacks[actor].Cmp(wantStack) != 0 ||
			next.Stacks[other].Cmp(base.Stacks[other]) != 0 {
			return violation("raise moved wrong amount")
		}
	default:
		return violation("%s is not a betting action", next.Kind)
	}
	return nil
}

func (r Rules) checkReveal(prev, next *GameState, actor int) error {
	closed := prev.Kind == KindCall && prev.Count > 1
	second := prev.Kind == KindKeyRevealed && prev.KeysRevealed() == 1
	if !closed && !second {
		return violation("key reveal after %s", prev.Kind)
	}
	if next.Winner != (common.Address{}) {
		return violation("winner set during reveal")
	}
	if next.Pot.Cmp(prev.Pot) != 0 || next.ToCall.Cmp(prev.ToCall) != 0 ||
		next.Stacks[0].Cmp(prev.Stacks[0]) != 0 || next.Stacks[1].Cmp(prev.Stacks[1]) != 0 {
		return violation("reveal moved chips")
	}
	own := ownKeySlot(actor)
	otherOwn := ownKeySlot(1 - actor)
	if prev.CardField[own].Sign() != 0 {
		return violation("own key already revealed")
	}
	if next.CardField[own].Sign() == 0 {
		return violation("reveal published no key")
	}
	if next.CardField[otherOwn].Cmp(prev.CardField[otherOwn]) != 0 {
		return violation("reveal touched the counterparty key slot")
	}
	return nil
}

func (r Rules) checkSettle(prev, next *GameState, actor int) error {
	if next.ToCall.Sign() != 0 {
		return violation("settled state with pending call")
	}
	for i := range prev.CardField {
		if next.CardField[i].Cmp(prev.CardField[i]) != 0 {
			return violation("settle changed the card field")
		}
	}
	switch {
	case prev.Kind == KindFold:
		// The non-folder sweeps the pot without revealing anything.
		winner := actor
		if err := r.checkAward(prev, next, winner); err != nil {
			return err
		}
		if next.Winner != r.Players[winner] {
			return violation("fold award to the wrong player")
		}
	case prev.Kind == KindKeyRevealed && prev.KeysRevealed() == 2:
		if r.Resolve == nil {
			return violation("no card resolver for showdown")
		}
		c0, err := r.Resolve(prev.CardField[slotCard0X], prev.CardField[slotCard0Y],
			prev.CardField[slotKey0Own], prev.CardField[slotKey0View])
		if err != nil {
			return violation("card 0 unresolvable: %v", err)
		}
		c1, err := r.Resolve(prev.CardField[slotCard1X], prev.CardField[slotCard1Y],
			prev.CardField[slotKey1View], prev.CardField[slotKey1Own])
		if err != nil {
			return violation("card 1 unresolvable: %v", err)
		}
		rank0, rank1 := c0/4, c1/4
		switch {
		case rank0 > rank1:
			if err := r.checkAward(prev, next, 0); err != nil {
				return err
			}
			if next.Winner != r.Players[0] {
				return violation("showdown winner must be player 0")
			}
		case rank1 > rank0:
			if err := r.checkAward(prev, next, 1); err != nil {
				return err
			}
			if next.Winner != r.Players[1] {
				return violation("showdown winner must be player 1")
			}
		default:
			// Equal rank splits the pot; the winner slot stays zero.
			if next.Winner != (common.Address{}) {
				return violation("tie must leave the winner unset")
			}
			half := new(big.Int).Rsh(prev.Pot, 1)
			rest := new(big.Int).Sub(prev.Pot, half)
			want0 := new(big.Int).Add(prev.Stacks[0], rest)
			want1 := new(big.Int).Add(prev.Stacks[1], half)
			if next.Stacks[0].Cmp(want0) != 0 || next.Stacks[1].Cmp(want1) != 0 || next.Pot.Sign() != 0 {
				return violation("tie split paid wrong amounts")
			}
		}
	default:
		return violation("settle after %s with %d keys", prev.Kind, prev.KeysRevealed())
	}
	return nil
}

func (r Rules) checkAward(prev, next *GameState, winner int) error {
	loser := 1 - winner
	want := new(big.Int).Add(prev.Stacks[winner], prev.Pot)
	if next.Stacks[winner].Cmp(want) != 0 ||
		next.Stacks[loser].Cmp(prev.Stacks[loser]) != 0 ||
		next.Pot.Sign() != 0 {
		return violation("pot award moved wrong amounts")
	}
	return nil
}
