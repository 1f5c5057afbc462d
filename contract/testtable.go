package contract

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// TestTable is an in-memory Table for tests and local two-process runs
// without a ledger. It reproduces the hash binding and the settlement
// bookkeeping; the legality predicate is injected so the channel package can
// supply its own without an import cycle.
type TestTable struct {
	mu sync.Mutex

	Players       [2]common.Address
	SessionID     [32]byte
	Opened        bool
	Joined        bool
	Valid         func(prev, next []byte, players [2]common.Address, stake *big.Int) (bool, error)
	DisputeWindow uint64
	Now           func() time.Time

	settlement *SettlementInfo
	finalState []byte

	// Calls records method names for assertions.
	Calls []string
}

func NewTestTable(players [2]common.Address, disputeWindow uint64) *TestTable {
	return &TestTable{
		Players:       players,
		DisputeWindow: disputeWindow,
		Now:           time.Now,
	}
}

func (t *TestTable) record(name string) {
	t.Calls = append(t.Calls, name)
}

// TestTableHash is the digest construction the fake uses:
// keccak256(tableID || sessionID || keccak256(payload)).
func TestTableHash(tableID, sessionID [32]byte, payload []byte) common.Hash {
	return common.BytesToHash(crypto.Keccak256(tableID[:], sessionID[:], crypto.Keccak256(payload)))
}

func (t *TestTable) TableID(_ context.Context, p0, p1 common.Address) ([32]byte, error) {
	return [32]byte(crypto.Keccak256Hash(p0[:], p1[:])), nil
}

func (t *TestTable) TransactionHash(_ context.Context, tableID, sessionID [32]byte, payload []byte) (common.Hash, error) {
	return TestTableHash(tableID, sessionID, payload), nil
}

func (t *TestTable) Open(_ context.Context, players [2]common.Address, terms Terms, sigs [2]Signature, sessionID [32]byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("Open")
	t.Players = players
	t.SessionID = sessionID
	t.Opened = true
	return []byte{0x01}, nil
}

func (t *TestTable) Join(_ context.Context, players [2]common.Address, buyIn *big.Int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("Join")
	if !t.Opened {
		return nil, errors.New("testtable: join before open")
	}
	t.Joined = true
	return []byte{0x02}, nil
}

func (t *TestTable) Exists(_ context.Context, _ [32]byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Opened, nil
}

func (t *TestTable) ValidTransition(_ context.Context, prev, next []byte, players [2]common.Address, stake *big.Int) (bool, error) {
	if t.Valid == nil {
		return true, nil
	}
	return t.Valid(prev, next, players, stake)
}

func (t *TestTable) VerifyHalfSigned(_ context.Context, tableID [32]byte, data []byte, signer common.Address) (bool, error) {
	state, sig, err := DecodeHalfSigned(data)
	if err != nil {
		return false, nil
	}
	hash := TestTableHash(tableID, t.SessionID, state)
	return VerifyHash(hash, sig, signer), nil
}

func (t *TestTable) ProposeSettlement(_ context.Context, tableID [32]byte, settlement []byte, sig Signature) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("ProposeSettlement")
	if !t.Opened {
		return nil, errors.New("testtable: table not open")
	}
	finalState, proposer, disputeType, disputeData, err := DecodeSettlement(settlement)
	if err != nil {
		return nil, err
	}
	state, _, err := DecodeFinalState(finalState)
	if err != nil {
		return nil, err
	}
	t.finalState = state
	t.settlement = &SettlementInfo{
		DisputeType: disputeType,
		Proposer:    proposer,
		Deadline:    uint64(t.Now().Unix()) + t.DisputeWindow,
		Data:        disputeData,
	}
	return []byte{0x03}, nil
}

// SetSettlement plants a counterparty proposal for monitor tests.
func (t *TestTable) SetSettlement(info SettlementInfo, finalState []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Opened = true
	copied := info
	t.settlement = &copied
	t.finalState = finalState
}

func (t *TestTable) Settlement(_ context.Context, _ [32]byte) (SettlementInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.Opened || t.settlement == nil {
		return SettlementInfo{}, ErrNoSettlement
	}
	return *t.settlement, nil
}

func (t *TestTable) State(_ context.Context, _ [32]byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalState == nil {
		return nil, errors.New("testtable: no settlement state")
	}
	return t.finalState, nil
}

func (t *TestTable) ClaimExpiredTable(_ context.Context, _ [32]byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("ClaimExpiredTable")
	if !t.Opened {
		return nil, errors.New("testtable: table not open")
	}
	return []byte{0x04}, nil
}

func (t *TestTable) ClaimExpiredSettlement(_ context.Context, _ [32]byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("ClaimExpiredSettlement")
	if t.settlement == nil {
		return nil, errors.New("testtable: no settlement to claim")
	}
	if uint64(t.Now().Unix()) <= t.settlement.Deadline {
		return nil, errors.New("testtable: dispute window still open")
	}
	t.settlement = nil
	t.Opened = false
	return []byte{0x05}, nil
}

var _ Table = (*TestTable)(nil)
