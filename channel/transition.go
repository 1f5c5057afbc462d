package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// DealInfo carries what the shuffle handshake produced: the two dealt card
// points and the view key each player needs to open their own card.
type DealInfo struct {
	Card0X, Card0Y *big.Int
	Card1X, Card1Y *big.Int
	ViewKey0       *big.Int // lets player 0 open card 0
	ViewKey1       *big.Int // lets player 1 open card 1
}

// Deal opens hand prev.HandNumber+1: both antes posted, cards and view keys
// installed, acting seat stamped. The returned state still needs a betting
// action applied before it is a complete transition.
func (r Rules) Deal(prev *GameState, actor int, info DealInfo) *GameState {
	next := prev.Clone()
	next.HandNumber = prev.HandNumber + 1
	next.Count = 1
	next.Actor = r.Players[actor]
	next.Winner = common.Address{}
	ante := r.Ante()
	for i := range next.Stacks {
		next.Stacks[i].Sub(next.Stacks[i], ante)
	}
	next.Pot.Add(ante, ante)
	next.ToCall.SetInt64(0)
	next.CardField = [8]*big.Int{
		new(big.Int).Set(info.Card0X),
		new(big.Int).Set(info.Card0Y),
		new(big.Int),
		new(big.Int).Set(info.ViewKey0),
		new(big.Int).Set(info.Card1X),
		new(big.Int).Set(info.Card1Y),
		new(big.Int).Set(info.ViewKey1),
		new(big.Int),
	}
	return next
}

// Advance stamps a fresh in-hand base: count bumped, actor switched, winner
// cleared. All in-hand builders start from it.
func (r Rules) Advance(prev *GameState, actor int) *GameState {
	next := prev.Clone()
	next.Count = prev.Count + 1
	next.Actor = r.Players[actor]
	next.Winner = common.Address{}
	return next
}

// Fold marks the base as folded. Chips stay where they are; the opponent's
// follow-up settle transition sweeps the pot.
func (r Rules) Fold(base *GameState) *GameState {
	next := base.Clone()
	next.Kind = KindFold
	next.ToCall.SetInt64(0)
	return next
}

// Call pays the outstanding call amount into the pot.
func (r Rules) Call(base *GameState, actor int) *GameState {
	next := base.Clone()
	next.Kind = KindCall
	next.Pot.Add(next.Pot, base.ToCall)
	next.Stacks[actor].Sub(next.Stacks[actor], base.ToCall)
	next.ToCall.SetInt64(0)
	return next
}

// Raise calls the outstanding amount and raises by amount on top, clamping
// the raise down to the smaller of the two stacks when it would exceed
// either. Returns an error the caller treats as operator input error when the
// actor cannot cover the total.
func (r Rules) Raise(base *GameState, actor int, amount *big.Int) (*GameState, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("channel: raise amount must be positive")
	}
	raise := new(big.Int).Set(amount)
	smaller := base.Stacks[0]
	if base.Stacks[1].Cmp(smaller) < 0 {
		smaller = base.Stacks[1]
	}
	if raise.Cmp(smaller) > 0 {
		raise.Set(smaller)
	}
	total := new(big.Int).Add(raise, base.ToCall)
	if total.Cmp(base.Stacks[actor]) > 0 {
		return nil, errors.Errorf("channel: total bet %s exceeds stack %s", total, base.Stacks[actor])
	}
	allIn := total.Cmp(base.Stacks[0]) == 0 || total.Cmp(base.Stacks[1]) == 0
	if raise.Cmp(r.MinRaise()) < 0 && !allIn {
		return nil, errors.Errorf("channel: raise %s below minimum %s", raise, r.MinRaise())
	}
	next := base.Clone()
	next.Kind = KindRaise
	next.Pot.Add(next.Pot, total)
	next.Stacks[actor].Sub(next.Stacks[actor], total)
	next.ToCall.Set(raise)
	return next, nil
}

// Reveal publishes the actor's own key share inside the state.
func (r Rules) Reveal(base *GameState, actor int, ownKey *big.Int) *GameState {
	next := base.Clone()
	next.Kind = KindKeyRevealed
	next.CardField[ownKeySlot(actor)] = new(big.Int).Set(ownKey)
	return next
}

// AwardFold settles a folded hand: the base actor (the non-folder) sweeps the
// pot.
func (r Rules) AwardFold(base *GameState, actor int) *GameState {
	next := base.Clone()
	next.Kind = KindSettled
	next.Stacks[actor].Add(next.Stacks[actor], next.Pot)
	next.Pot.SetInt64(0)
	next.ToCall.SetInt64(0)
	next.Winner = r.Players[actor]
	return next
}

// Showdown settles a fully revealed hand by comparing suit-independent ranks.
// An equal rank splits the pot and leaves the winner slot zero.
func (r Rules) Showdown(base *GameState) (*GameState, error) {
	if r.Resolve == nil {
		return nil, errors.New("channel: no card resolver")
	}
	if base.KeysRevealed() != 2 {
		return nil, errors.New("channel: showdown before both keys revealed")
	}
	c0, err := r.Resolve(base.CardField[slotCard0X], base.CardField[slotCard0Y],
		base.CardField[slotKey0Own], base.CardField[slotKey0View])
	if err != nil {
		return nil, errors.Wrap(err, "channel: open card 0")
	}
	c1, err := r.Resolve(base.CardField[slotCard1X], base.CardField[slotCard1Y],
		base.CardField[slotKey1View], base.CardField[slotKey1Own])
	if err != nil {
		return nil, errors.Wrap(err, "channel: open card 1")
	}
	next := base.Clone()
	next.Kind = KindSettled
	next.ToCall.SetInt64(0)
	rank0, rank1 := c0/4, c1/4
	switch {
	case rank0 > rank1:
		next.Stacks[0].Add(next.Stacks[0], next.Pot)
		next.Winner = r.Players[0]
	case rank1 > rank0:
		next.Stacks[1].Add(next.Stacks[1], next.Pot)
		next.Winner = r.Players[1]
	default:
		half := new(big.Int).Rsh(next.Pot, 1)
		rest := new(big.Int).Sub(next.Pot, half)
		next.Stacks[0].Add(next.Stacks[0], rest)
		next.Stacks[1].Add(next.Stacks[1], half)
		next.Winner = common.Address{}
	}
	next.Pot.SetInt64(0)
	return next, nil
}
