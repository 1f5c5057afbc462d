// Package contract exposes the on-ledger table and poker contracts as
// capabilities. The live session and the settlement monitor both consume the
// Table interface; the ethclient-backed implementation lives in headsup.go and
// a fake lives in the tests of the packages that need one.
package contract

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Dispute type values understood by the table contract.
const (
	DisputeNone       uint8 = 0
	DisputeHalfSigned uint8 = 1
)

// Terms are the table-open parameters agreed during the hello exchange.
type Terms struct {
	BuyIn           *big.Int
	Duration        uint64
	JoinDuration    uint64
	DisputeDuration uint64
}

// Fee is the table fee charged on open and join, fixed at buyIn/100.
func (t Terms) Fee() *big.Int {
	return new(big.Int).Div(t.BuyIn, big.NewInt(100))
}

// SettlementInfo mirrors getTableSettlement.
type SettlementInfo struct {
	DisputeType uint8
	Proposer    common.Address
	Deadline    uint64 // unix seconds after which the proposal can be claimed
	Data        []byte
}

// ErrNoSettlement is returned by Settlement when the table has no proposal in
// progress (the contract call reverts in that case).
var ErrNoSettlement = errors.New("contract: no settlement in progress")

// Table is the heads-up table contract capability. All calls block on the
// ledger; callers bound them with the context.
type Table interface {
	// TableID returns the contract's identifier for the pair of players.
	TableID(ctx context.Context, p0, p1 common.Address) ([32]byte, error)

	// TransactionHash returns the digest every channel signature commits to,
	// binding payload to this table and session.
	TransactionHash(ctx context.Context, tableID, sessionID [32]byte, payload []byte) (common.Hash, error)

	// Open submits the openTable transaction carrying both players'
	// signatures over the open terms. Returns the transaction hash.
	Open(ctx context.Context, players [2]common.Address, terms Terms, sigs [2]Signature, sessionID [32]byte) ([]byte, error)

	// Join submits the joinTable transaction for the second player.
	Join(ctx context.Context, players [2]common.Address, buyIn *big.Int) ([]byte, error)

	// Exists reports whether the table is open on the ledger yet.
	Exists(ctx context.Context, tableID [32]byte) (bool, error)

	// ValidTransition evaluates the ledger's legality predicate. The stake
	// argument is the ante (buyIn/100), matching the contract's convention.
	ValidTransition(ctx context.Context, prev, next []byte, players [2]common.Address, stake *big.Int) (bool, error)

	// VerifyHalfSigned checks a single-signature state fragment against the
	// claimed signer. A revert maps to (false, nil).
	VerifyHalfSigned(ctx context.Context, tableID [32]byte, data []byte, signer common.Address) (bool, error)

	// ProposeSettlement submits a settlement payload signed by the proposer.
	ProposeSettlement(ctx context.Context, tableID [32]byte, settlement []byte, sig Signature) ([]byte, error)

	// Settlement returns the settlement in progress, or ErrNoSettlement.
	Settlement(ctx context.Context, tableID [32]byte) (SettlementInfo, error)

	// State returns the canonical encoding of the settlement's final state.
	State(ctx context.Context, tableID [32]byte) ([]byte, error)

	// ClaimExpiredTable reclaims the buy-in of a table whose duration passed
	// without settlement.
	ClaimExpiredTable(ctx context.Context, tableID [32]byte) ([]byte, error)

	// ClaimExpiredSettlement claims the funds of a proposal whose dispute
	// window elapsed.
	ClaimExpiredSettlement(ctx context.Context, tableID [32]byte) ([]byte, error)
}
