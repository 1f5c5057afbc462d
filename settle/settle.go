// Package settle turns a game backup into ledger money: it proposes
// settlements on the newest co-signed state, attaches half signed dispute
// evidence when a hand was cut short, and watches a table until the funds
// can be claimed.
package settle

import (
	"context"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/store"
)

// Propose submits a settlement built on one fully co-signed state. The
// dispute arguments are zero for a clean final-state settlement.
func Propose(ctx context.Context, table contract.Table, signer *contract.Signer,
	tableID, sessionID [32]byte, players [2]common.Address,
	base store.SignedState, disputeType uint8, disputeData []byte) ([]byte, error) {

	stateBytes, err := hex.DecodeString(base.State)
	if err != nil {
		return nil, errors.Wrap(err, "settle: state is not hex")
	}
	byAddr := make(map[common.Address]contract.Signature, len(base.Signatures))
	for addr, sig := range base.Signatures {
		byAddr[common.HexToAddress(addr)] = sig
	}
	ordered, err := contract.OrderSignatures(players, byAddr)
	if err != nil {
		return nil, err
	}
	finalState, err := contract.EncodeFinalState(stateBytes, ordered)
	if err != nil {
		return nil, err
	}
	settlement, err := contract.EncodeSettlement(finalState, signer.Address(), disputeType, disputeData)
	if err != nil {
		return nil, err
	}

	hash, err := table.TransactionHash(ctx, tableID, sessionID, settlement)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignHash(hash)
	if err != nil {
		return nil, err
	}
	return table.ProposeSettlement(ctx, tableID, settlement, sig)
}

// Evidence is what BuildEvidence selects out of a backup: the co-signed base
// to settle on plus optional half signed dispute data proving a newer state
// was in flight.
type Evidence struct {
	Base        store.SignedState
	DisputeType uint8
	DisputeData []byte
}

// BuildEvidence picks the strongest settlement position a backup supports.
// A settled final state needs no dispute. A half signed snapshot becomes
// dispute evidence over the last co-signed state. Otherwise the newest
// co-signed state we ourselves proposed serves as its own evidence over the
// state before it.
func BuildEvidence(rec *store.Record, self common.Address) (Evidence, error) {
	if len(rec.States) == 0 {
		return Evidence{}, errors.New("settle: backup holds no signed states")
	}
	last := rec.States[len(rec.States)-1]
	final, err := decodeRecorded(last)
	if err != nil {
		return Evidence{}, err
	}

	if final.Kind == channel.KindSettled {
		return Evidence{Base: last}, nil
	}

	if rec.Unfinished != nil {
		stateBytes, err := hex.DecodeString(rec.Unfinished.State)
		if err != nil {
			return Evidence{}, errors.Wrap(err, "settle: unfinished state is not hex")
		}
		dispute, err := contract.EncodeHalfSigned(stateBytes, rec.Unfinished.Signature)
		if err != nil {
			return Evidence{}, err
		}
		return Evidence{Base: last, DisputeType: contract.DisputeHalfSigned, DisputeData: dispute}, nil
	}

	// No snapshot: our own half of the newest co-signed pair is the
	// evidence, settled over the state it was built on.
	half := last
	baseIdx := len(rec.States) - 2
	if final.Actor != self {
		half = rec.States[len(rec.States)-2]
		baseIdx = len(rec.States) - 3
	}
	if baseIdx < 0 {
		return Evidence{}, errors.New("settle: backup too short for dispute evidence")
	}
	ownSig, ok := half.Signatures[self.Hex()]
	if !ok {
		return Evidence{}, errors.New("settle: evidence state misses own signature")
	}
	halfBytes, err := hex.DecodeString(half.State)
	if err != nil {
		return Evidence{}, errors.Wrap(err, "settle: evidence state is not hex")
	}
	dispute, err := contract.EncodeHalfSigned(halfBytes, ownSig)
	if err != nil {
		return Evidence{}, err
	}
	return Evidence{
		Base:        rec.States[baseIdx],
		DisputeType: contract.DisputeHalfSigned,
		DisputeData: dispute,
	}, nil
}

func decodeRecorded(s store.SignedState) (*channel.GameState, error) {
	raw, err := hex.DecodeString(s.State)
	if err != nil {
		return nil, errors.Wrap(err, "settle: recorded state is not hex")
	}
	return channel.Decode(raw)
}
