package peer

import (
	"context"
	"encoding/hex"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/store"
	"github.com/pokerp2p/pokerp2p/wire"
)

// scriptedOperator plays deterministically: raise when there is nothing to
// call, call otherwise, keep playing for a fixed number of hands, then cash
// out.
type scriptedOperator struct {
	mu        sync.Mutex
	continues int
	showdowns []ShowdownView
}

func (s *scriptedOperator) ApproveTable(common.Address, contract.Terms) error {
	return nil
}

func (s *scriptedOperator) ChooseAction(view HandView) (Decision, error) {
	if view.ToCall.Sign() > 0 {
		return Decision{Action: ActionCall}, nil
	}
	return Decision{Action: ActionRaise, Raise: big.NewInt(4)}, nil
}

func (s *scriptedOperator) ShowShowdown(view ShowdownView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showdowns = append(s.showdowns, view)
}

func (s *scriptedOperator) ChooseContinuation(_, _ *big.Int) (Continuation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.continues > 0 {
		s.continues--
		return ContinuePlaying, nil
	}
	return CashOut, nil
}

type memStore struct {
	mu   sync.Mutex
	recs map[string]*store.Record
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*store.Record)}
}

func (m *memStore) Save(key string, rec *store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.States = append([]store.SignedState(nil), rec.States...)
	m.recs[key] = &cp
	return nil
}

func (m *memStore) Load(key string) (*store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, key)
	return nil
}

func (m *memStore) only(t *testing.T) *store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.recs, 1)
	for _, rec := range m.recs {
		return rec
	}
	return nil
}

const (
	keyA = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"
	keyB = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

// Runs two live players against each other over an in-memory pipe and an
// in-memory ledger: handshake, table open and join, shuffles, two full hands
// with a showdown each, then cash-out and claim.
func TestFullSessionOverPipe(t *testing.T) {
	signerA, err := contract.NewSigner(keyA)
	require.NoError(t, err)
	signerB, err := contract.NewSigner(keyB)
	require.NoError(t, err)

	table := contract.NewTestTable([2]common.Address{signerA.Address(), signerB.Address()}, 0)

	terms := contract.Terms{
		BuyIn:           big.NewInt(100),
		Duration:        3600,
		JoinDuration:    600,
		DisputeDuration: 0,
	}

	opA := &scriptedOperator{continues: 1}
	opB := &scriptedOperator{continues: 1}
	storeA := newMemStore()
	storeB := newMemStore()

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	initiator := NewPlayer(Config{
		Signer:     signerA,
		Table:      table,
		Store:      storeA,
		Operator:   opA,
		Log:        zerolog.Nop(),
		Initiator:  true,
		ClaimGrace: 1500 * time.Millisecond,
	})
	responder := NewPlayer(Config{
		Signer:     signerB,
		Table:      table,
		Store:      storeB,
		Operator:   opB,
		Log:        zerolog.Nop(),
		Terms:      terms,
		ClaimGrace: 1500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- initiator.Run(ctx, connA) }()
	go func() { errCh <- responder.Run(ctx, connB) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("session did not finish in time")
		}
	}

	require.Contains(t, table.Calls, "Open")
	require.Contains(t, table.Calls, "Join")
	require.Contains(t, table.Calls, "ProposeSettlement")
	require.Contains(t, table.Calls, "ClaimExpiredSettlement")

	// Each operator saw one showdown per played hand.
	require.Len(t, opA.showdowns, 2)
	require.Len(t, opB.showdowns, 2)

	// Both backups agree on the final settled state and conserve the money.
	for _, st := range []*memStore{storeA, storeB} {
		rec := st.only(t)
		require.NotEmpty(t, rec.States)
		raw, err := hex.DecodeString(rec.States[len(rec.States)-1].State)
		require.NoError(t, err)
		final, err := channel.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, channel.KindSettled, final.Kind)
		require.Equal(t, uint64(2), final.HandNumber)
		total := new(big.Int).Add(final.Stacks[0], final.Stacks[1])
		total.Add(total, final.Pot)
		require.Zero(t, total.Cmp(big.NewInt(200)))
		require.Len(t, rec.States[len(rec.States)-1].Signatures, 2)
	}
}

func TestRunRejectsTamperedHand(t *testing.T) {
	signerA, err := contract.NewSigner(keyA)
	require.NoError(t, err)
	signerB, err := contract.NewSigner(keyB)
	require.NoError(t, err)

	table := contract.NewTestTable([2]common.Address{signerA.Address(), signerB.Address()}, 0)
	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	responder := NewPlayer(Config{
		Signer:   signerB,
		Table:    table,
		Store:    newMemStore(),
		Operator: &scriptedOperator{},
		Log:      zerolog.Nop(),
		Terms: contract.Terms{
			BuyIn: big.NewInt(100), Duration: 3600, JoinDuration: 600, DisputeDuration: 900,
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- responder.Run(ctx, connB) }()

	// Drive the responder far enough to have a session, then send a hand
	// message before any deck was ever shuffled.
	codec := wire.NewCodec(connA)
	require.NoError(t, codec.Send(wire.Hello{
		Address: signerA.Address().Hex(),
		Nonce:   "abcdefghijklmnopqrstuvwxy",
	}))
	reply, err := codec.Recv()
	require.NoError(t, err)
	require.IsType(t, &wire.Hello{}, reply)
	require.NoError(t, codec.Send(wire.Hand{
		Subtype:   wire.HandPropose,
		PrevState: "deadbeef",
		NextState: "deadbeef",
		NextV:     27,
		NextR:     (*hexutil.Big)(big.NewInt(1)),
		NextS:     (*hexutil.Big)(big.NewInt(2)),
	}))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrProtocolViolation)
	case <-ctx.Done():
		t.Fatal("responder did not reject the tampered hand")
	}
}
