package channel

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckRejections(t *testing.T) {
	r := testRules(100)
	genesis := NewGameState(r.BuyIn)
	base := stageDeal(r, genesis, 51, 11)

	firstRaise, err := r.Raise(base, 0, big.NewInt(4))
	require.NoError(t, err)

	closed := r.Call(r.Advance(firstRaise, 1), 1)
	reveal0 := r.Reveal(r.Advance(closed, 0), 0, big.NewInt(5001))
	reveal1 := r.Reveal(r.Advance(reveal0, 1), 1, big.NewInt(5002))

	cases := []struct {
		name string
		prev *GameState
		next func() *GameState
	}{
		{"raise below minimum", firstRaise, func() *GameState {
			// Re-raise of 1 with minimum 2 and nobody all-in.
			n := r.Advance(firstRaise, 1)
			n.Kind = KindRaise
			total := big.NewInt(1 + 4)
			n.Pot.Add(n.Pot, total)
			n.Stacks[1].Sub(n.Stacks[1], total)
			n.ToCall.SetInt64(1)
			return n
		}},
		{"count skipped", firstRaise, func() *GameState {
			n := r.Call(r.Advance(firstRaise, 1), 1)
			n.Count += 3
			return n
		}},
		{"same actor twice", firstRaise, func() *GameState {
			n := r.Call(r.Advance(firstRaise, 0), 0)
			return n
		}},
		{"call pays wrong amount", firstRaise, func() *GameState {
			n := r.Advance(firstRaise, 1)
			n.Kind = KindCall
			n.Pot.Add(n.Pot, big.NewInt(3))
			n.Stacks[1].Sub(n.Stacks[1], big.NewInt(3))
			n.ToCall.SetInt64(0)
			return n
		}},
		{"chips minted", firstRaise, func() *GameState {
			n := r.Call(r.Advance(firstRaise, 1), 1)
			n.Stacks[1].Add(n.Stacks[1], big.NewInt(50))
			return n
		}},
		{"betting after reveal", reveal0, func() *GameState {
			n := r.Advance(reveal0, 1)
			n.Kind = KindCall
			return n
		}},
		{"reveal moves chips", closed, func() *GameState {
			n := r.Reveal(r.Advance(closed, 0), 0, big.NewInt(5001))
			n.Stacks[0].Add(n.Stacks[0], big.NewInt(1))
			n.Stacks[1].Sub(n.Stacks[1], big.NewInt(1))
			return n
		}},
		{"reveal of counterparty slot", closed, func() *GameState {
			n := r.Advance(closed, 0)
			n.Kind = KindKeyRevealed
			n.CardField[slotKey1Own] = big.NewInt(9999)
			return n
		}},
		{"forged showdown winner", reveal1, func() *GameState {
			// Card 50 beats card 10 yet player 1 claims the pot.
			n := r.Advance(reveal1, 0)
			n.Kind = KindSettled
			n.Stacks[1].Add(n.Stacks[1], n.Pot)
			n.Pot.SetInt64(0)
			n.Winner = addrB
			return n
		}},
		{"settle before both reveals", reveal0, func() *GameState {
			n := r.Advance(reveal0, 1)
			n.Kind = KindSettled
			n.Stacks[0].Add(n.Stacks[0], n.Pot)
			n.Pot.SetInt64(0)
			n.Winner = addrA
			return n
		}},
		{"stranger acts", firstRaise, func() *GameState {
			n := r.Call(r.Advance(firstRaise, 1), 1)
			n.Actor[19] = 0x99
			return n
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, r.Check(tc.prev, tc.next()), ErrInvalidTransition)
		})
	}
}

func TestCheckAcceptsEveryKind(t *testing.T) {
	r := testRules(100)
	genesis := NewGameState(r.BuyIn)
	base := stageDeal(r, genesis, 51, 11)

	raise, err := r.Raise(base, 0, big.NewInt(4))
	require.NoError(t, err)
	require.NoError(t, r.Check(genesis, raise))

	reraise, err := r.Raise(r.Advance(raise, 1), 1, big.NewInt(10))
	require.NoError(t, err)
	require.NoError(t, r.Check(raise, reraise))

	call := r.Call(r.Advance(reraise, 0), 0)
	require.NoError(t, r.Check(reraise, call))

	reveal0 := r.Reveal(r.Advance(call, 1), 1, big.NewInt(5002))
	require.NoError(t, r.Check(call, reveal0))
	reveal1 := r.Reveal(r.Advance(reveal0, 0), 0, big.NewInt(5001))
	require.NoError(t, r.Check(reveal0, reveal1))

	settled, err := r.Showdown(r.Advance(reveal1, 1))
	require.NoError(t, err)
	require.NoError(t, r.Check(reveal1, settled))
}

// Re-submitting an already applied transition must fail the previous-state
// comparison, never double-apply; at the rules level that shows up as the new
// state not following itself.
func TestReplayedTransitionRejected(t *testing.T) {
	r := testRules(100)
	genesis := NewGameState(r.BuyIn)
	base := stageDeal(r, genesis, 51, 11)
	raise, err := r.Raise(base, 0, big.NewInt(4))
	require.NoError(t, err)
	require.NoError(t, r.Check(genesis, raise))
	require.ErrorIs(t, r.Check(raise, raise), ErrInvalidTransition)
}

func TestAnteAndMinRaise(t *testing.T) {
	r := testRules(1000)
	require.Equal(t, int64(10), r.Ante().Int64())
	require.Equal(t, int64(20), r.MinRaise().Int64())
}
