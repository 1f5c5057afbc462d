// Package session establishes the shared identity of a two player table:
// the canonical player ordering, the session identifier both sides derive
// from the exchanged nonces and the backup file name bound to it.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// NonceLength is the length of the random token each peer contributes
// during the hello exchange.
const NonceLength = 25

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrSelfConnection is returned when a peer greets us with our own address.
var ErrSelfConnection = errors.New("session: connected to own address")

// NewNonce draws a fresh alphanumeric token for the hello message.
func NewNonce() (string, error) {
	buf := make([]byte, NonceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "session: nonce entropy")
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf), nil
}

// Session is the agreed identity of one table. Both peers derive an
// identical Session from the same hello exchange.
type Session struct {
	// ID is sha256 over the initiator nonce followed by the responder nonce.
	ID [32]byte
	// Players holds both addresses with the numerically lower one first.
	Players [2]common.Address
	// Local is our index into Players.
	Local int
}

// New derives the session from the two exchanged nonces. The initiator is
// the peer that dialed; both sides pass the nonces in that same order so the
// digest matches.
func New(self, remote common.Address, initiatorNonce, responderNonce string) (*Session, error) {
	if self == remote {
		return nil, ErrSelfConnection
	}
	h := sha256.New()
	h.Write([]byte(initiatorNonce))
	h.Write([]byte(responderNonce))
	s := &Session{}
	copy(s.ID[:], h.Sum(nil))
	s.Players = OrderPlayers(self, remote)
	if s.Players[1] == self {
		s.Local = 1
	}
	return s, nil
}

// OrderPlayers sorts two addresses into canonical table order, numerically
// lower address first.
func OrderPlayers(a, b common.Address) [2]common.Address {
	ai := new(big.Int).SetBytes(a.Bytes())
	bi := new(big.Int).SetBytes(b.Bytes())
	if ai.Cmp(bi) > 0 {
		return [2]common.Address{b, a}
	}
	return [2]common.Address{a, b}
}

// Remote returns the counterparty address.
func (s *Session) Remote() common.Address {
	return s.Players[1-s.Local]
}

// Self returns our own address.
func (s *Session) Self() common.Address {
	return s.Players[s.Local]
}

// Hex is the lowercase hex form of the session identifier, used as the
// storage key for backups.
func (s *Session) Hex() string {
	return hex.EncodeToString(s.ID[:])
}
