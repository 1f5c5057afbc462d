package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	openDataArgs = abi.Arguments{
		{Type: mustType("uint256")}, // buy in
		{Type: mustType("uint256")}, // fee
		{Type: mustType("uint256")}, // duration
		{Type: mustType("uint256")}, // join duration
		{Type: mustType("uint256")}, // dispute duration
	}
	finalStateArgs = abi.Arguments{
		{Type: mustType("bytes")},
		{Type: mustType("uint8[2]")},
		{Type: mustType("bytes32[2]")},
		{Type: mustType("bytes32[2]")},
	}
	settlementArgs = abi.Arguments{
		{Type: mustType("bytes")},
		{Type: mustType("address")},
		{Type: mustType("uint8")},
		{Type: mustType("bytes")},
	}
	halfSignedArgs = abi.Arguments{
		{Type: mustType("bytes")},
		{Type: mustType("uint8")},
		{Type: mustType("bytes32")},
		{Type: mustType("bytes32")},
	}
)

// EncodeOpenData encodes the table-open terms both players sign.
func EncodeOpenData(t Terms) ([]byte, error) {
	out, err := openDataArgs.Pack(
		t.BuyIn,
		t.Fee(),
		new(big.Int).SetUint64(t.Duration),
		new(big.Int).SetUint64(t.JoinDuration),
		new(big.Int).SetUint64(t.DisputeDuration),
	)
	return out, errors.Wrap(err, "contract: encode open data")
}

// EncodeFinalState packs a bilaterally signed state for settlement. The
// signatures must already be in player order.
func EncodeFinalState(state []byte, sigs [2]Signature) ([]byte, error) {
	var vs [2]uint8
	var rs, ss [2][32]byte
	for i, sig := range sigs {
		if sig.R == nil || sig.S == nil {
			return nil, errors.Errorf("contract: signature %d incomplete", i)
		}
		vs[i] = sig.V
		rs[i] = common.BigToHash(sig.R)
		ss[i] = common.BigToHash(sig.S)
	}
	out, err := finalStateArgs.Pack(state, vs, rs, ss)
	return out, errors.Wrap(err, "contract: encode final state")
}

// EncodeSettlement packs the full settlement proposal payload.
func EncodeSettlement(finalState []byte, proposer common.Address, disputeType uint8, disputeData []byte) ([]byte, error) {
	out, err := settlementArgs.Pack(finalState, proposer, disputeType, disputeData)
	return out, errors.Wrap(err, "contract: encode settlement")
}

// EncodeHalfSigned packs a single-signature state fragment, used both as
// dispute evidence and for verifyHalfSignedStateData.
func EncodeHalfSigned(state []byte, sig Signature) ([]byte, error) {
	out, err := halfSignedArgs.Pack(state, sig.V, [32]byte(common.BigToHash(sig.R)), [32]byte(common.BigToHash(sig.S)))
	return out, errors.Wrap(err, "contract: encode half-signed state")
}

// DecodeHalfSigned unpacks dispute evidence back into state bytes and the
// lone signature.
func DecodeHalfSigned(data []byte) ([]byte, Signature, error) {
	vals, err := halfSignedArgs.Unpack(data)
	if err != nil {
		return nil, Signature{}, errors.Wrap(err, "contract: decode half-signed state")
	}
	state := vals[0].([]byte)
	r := vals[2].([32]byte)
	s := vals[3].([32]byte)
	sig := Signature{
		V: vals[1].(uint8),
		R: new(big.Int).SetBytes(r[:]),
		S: new(big.Int).SetBytes(s[:]),
	}
	return state, sig, nil
}

// DecodeFinalState unpacks a settlement final-state payload into the state
// bytes and the two player-ordered signatures.
func DecodeFinalState(data []byte) ([]byte, [2]Signature, error) {
	var sigs [2]Signature
	vals, err := finalStateArgs.Unpack(data)
	if err != nil {
		return nil, sigs, errors.Wrap(err, "contract: decode final state")
	}
	state := vals[0].([]byte)
	vs := vals[1].([2]uint8)
	rs := vals[2].([2][32]byte)
	ss := vals[3].([2][32]byte)
	for i := range sigs {
		sigs[i] = Signature{
			V: vs[i],
			R: new(big.Int).SetBytes(rs[i][:]),
			S: new(big.Int).SetBytes(ss[i][:]),
		}
	}
	return state, sigs, nil
}

// DecodeSettlement unpacks a settlement proposal payload.
func DecodeSettlement(data []byte) (finalState []byte, proposer common.Address, disputeType uint8, disputeData []byte, err error) {
	vals, err := settlementArgs.Unpack(data)
	if err != nil {
		return nil, common.Address{}, 0, nil, errors.Wrap(err, "contract: decode settlement")
	}
	return vals[0].([]byte), vals[1].(common.Address), vals[2].(uint8), vals[3].([]byte), nil
}

// OrderSignatures arranges a two-entry address-keyed signature map into player
// order, rejecting signatures from strangers.
func OrderSignatures(players [2]common.Address, byAddr map[common.Address]Signature) ([2]Signature, error) {
	var out [2]Signature
	seen := 0
	for addr, sig := range byAddr {
		switch addr {
		case players[0]:
			out[0] = sig
		case players[1]:
			out[1] = sig
		default:
			return out, errors.Errorf("contract: signer %s is not a table owner", addr.Hex())
		}
		seen++
	}
	if seen != 2 {
		return out, errors.Errorf("contract: need 2 signatures, have %d", seen)
	}
	return out, nil
}
