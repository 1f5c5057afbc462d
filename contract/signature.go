package contract

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signature is an ECDSA signature in the ledger's v/r/s form, v in {27, 28}.
type Signature struct {
	V uint8
	R *big.Int
	S *big.Int
}

type jsonSignature struct {
	V uint8        `json:"v"`
	R *hexutil.Big `json:"r"`
	S *hexutil.Big `json:"s"`
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonSignature{V: s.V, R: (*hexutil.Big)(s.R), S: (*hexutil.Big)(s.S)})
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var js jsonSignature
	if err := json.Unmarshal(data, &js); err != nil {
		return err
	}
	if js.R == nil || js.S == nil {
		return errors.New("contract: signature missing r or s")
	}
	s.V, s.R, s.S = js.V, (*big.Int)(js.R), (*big.Int)(js.S)
	return nil
}

// compact returns the 65-byte [R || S || recid] form used by crypto.SigToPub.
func (s Signature) compact() ([]byte, error) {
	if s.V != 27 && s.V != 28 {
		return nil, errors.Errorf("contract: bad recovery id %d", s.V)
	}
	out := make([]byte, 65)
	s.R.FillBytes(out[:32])
	s.S.FillBytes(out[32:64])
	out[64] = s.V - 27
	return out, nil
}

// Signer holds the local account key and produces channel signatures.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key (with or without 0x prefix).
func NewSigner(hexKey string) (*Signer, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "contract: invalid private key")
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) Key() *ecdsa.PrivateKey {
	return s.key
}

// SignHash signs a 32-byte digest, typically the table transaction hash of an
// encoded state or settlement payload.
func (s *Signer) SignHash(hash common.Hash) (Signature, error) {
	raw, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return Signature{}, errors.Wrap(err, "contract: sign")
	}
	return Signature{
		V: raw[64] + 27,
		R: new(big.Int).SetBytes(raw[:32]),
		S: new(big.Int).SetBytes(raw[32:64]),
	}, nil
}

// RecoverSigner returns the address that produced sig over hash.
func RecoverSigner(hash common.Hash, sig Signature) (common.Address, error) {
	raw, err := sig.compact()
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "contract: recover")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyHash reports whether sig over hash recovers to signer. This is the
// local mirror of verifyHalfSignedStateData for the live path.
func VerifyHash(hash common.Hash, sig Signature, signer common.Address) bool {
	recovered, err := RecoverSigner(hash, sig)
	if err != nil {
		return false
	}
	return recovered == signer
}
