package channel

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/pokerp2p/pokerp2p/contract"
)

// SigSet collects the signatures over one state's encoding. It is bounded to
// the two table owners and replaced, never mutated in place, at each
// transition boundary so stale signatures cannot carry over.
type SigSet map[common.Address]contract.Signature

// NewSigSet starts a fresh set, optionally seeded with the local signature.
func NewSigSet() SigSet {
	return make(SigSet, 2)
}

// With returns a copy extended by one signature.
func (s SigSet) With(addr common.Address, sig contract.Signature) SigSet {
	out := make(SigSet, 2)
	for k, v := range s {
		out[k] = v
	}
	out[addr] = sig
	return out
}

// Complete reports whether both players have signed.
func (s SigSet) Complete(players [2]common.Address) bool {
	_, ok0 := s[players[0]]
	_, ok1 := s[players[1]]
	return ok0 && ok1
}

// Ordered arranges the set into player order for settlement payloads.
func (s SigSet) Ordered(players [2]common.Address) ([2]contract.Signature, error) {
	return contract.OrderSignatures(players, s)
}
