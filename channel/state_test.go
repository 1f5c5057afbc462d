package channel

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func wei(eth int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(eth), big.NewInt(1e18))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		state *GameState
	}{
		{"genesis", NewGameState(big.NewInt(100))},
		{"wei amounts", func() *GameState {
			s := NewGameState(wei(10))
			s.HandNumber = 7
			s.Count = 3
			s.Kind = KindRaise
			s.Stacks[0] = wei(4)
			s.Stacks[1] = wei(9)
			s.Pot = wei(7)
			s.ToCall = wei(2)
			s.Actor = common.HexToAddress("0x00000000000000000000000000000000000000aa")
			s.Winner = common.HexToAddress("0x00000000000000000000000000000000000000bb")
			for i := range s.CardField {
				s.CardField[i] = new(big.Int).Lsh(big.NewInt(int64(i)+1), 200)
			}
			return s
		}()},
		{"settled with keys", func() *GameState {
			s := NewGameState(big.NewInt(1000))
			s.HandNumber = 2
			s.Count = 6
			s.Kind = KindSettled
			s.CardField[slotKey0Own] = big.NewInt(12345)
			s.CardField[slotKey1Own] = big.NewInt(67890)
			return s
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := tc.state.Encode()
			require.NoError(t, err)
			dec, err := Decode(enc)
			require.NoError(t, err)
			require.True(t, tc.state.Equal(dec), "decoded state differs")

			// Encoding is canonical: re-encoding yields identical bytes.
			enc2, err := dec.Encode()
			require.NoError(t, err)
			require.Equal(t, enc, enc2)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestNewerOrdering(t *testing.T) {
	a := NewGameState(big.NewInt(100))
	b := NewGameState(big.NewInt(100))

	a.HandNumber, a.Count = 2, 1
	b.HandNumber, b.Count = 1, 9
	require.True(t, a.Newer(b), "higher hand wins regardless of count")

	b.HandNumber, b.Count = 2, 2
	require.True(t, b.Newer(a), "same hand compares counts")
	require.False(t, a.Newer(a), "a state is not newer than itself")
}

func TestCloneIsDeep(t *testing.T) {
	s := NewGameState(big.NewInt(100))
	c := s.Clone()
	c.Stacks[0].SetInt64(1)
	c.CardField[0].SetInt64(9)
	require.Equal(t, int64(100), s.Stacks[0].Int64())
	require.Equal(t, int64(0), s.CardField[0].Int64())
}
