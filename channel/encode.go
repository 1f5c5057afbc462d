package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// The ledger's canonical state tuple:
// (uint256 handNumber, uint8[2] roundAction, uint256[4] stacks,
//  uint256[8] cardField, address[2] actorWinner).
var stateArgs abi.Arguments

func init() {
	for _, t := range []string{"uint256", "uint8[2]", "uint256[4]", "uint256[8]", "address[2]"} {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		stateArgs = append(stateArgs, abi.Argument{Type: typ})
	}
}

// Encode produces the canonical byte encoding signatures commit to.
func (s *GameState) Encode() ([]byte, error) {
	round := [2]uint8{s.Count, uint8(s.Kind)}
	stacks := [4]*big.Int{s.Stacks[0], s.Stacks[1], s.Pot, s.ToCall}
	var cards [8]*big.Int
	copy(cards[:], s.CardField[:])
	actors := [2]common.Address{s.Actor, s.Winner}
	out, err := stateArgs.Pack(new(big.Int).SetUint64(s.HandNumber), round, stacks, cards, actors)
	return out, errors.Wrap(err, "channel: encode state")
}

// Decode parses a canonical encoding back into a GameState.
func Decode(data []byte) (*GameState, error) {
	vals, err := stateArgs.Unpack(data)
	if err != nil {
		return nil, errors.Wrap(err, "channel: decode state")
	}
	hand := vals[0].(*big.Int)
	if !hand.IsUint64() {
		return nil, errors.New("channel: hand number out of range")
	}
	round := vals[1].([2]uint8)
	stacks := vals[2].([4]*big.Int)
	cards := vals[3].([8]*big.Int)
	actors := vals[4].([2]common.Address)

	s := &GameState{
		HandNumber: hand.Uint64(),
		Count:      round[0],
		Kind:       Kind(round[1]),
		Stacks:     [2]*big.Int{stacks[0], stacks[1]},
		Pot:        stacks[2],
		ToCall:     stacks[3],
		Actor:      actors[0],
		Winner:     actors[1],
	}
	copy(s.CardField[:], cards[:])
	return s, nil
}

// MustEncode is for contexts where the state was already validated; encoding
// a well-formed state cannot fail.
func (s *GameState) MustEncode() []byte {
	out, err := s.Encode()
	if err != nil {
		panic(err)
	}
	return out
}
