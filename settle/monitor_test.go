package settle

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/store"
)

func testMonitor(t *testing.T) (*Monitor, *contract.TestTable) {
	t.Helper()
	signer, err := contract.NewSigner("289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032")
	require.NoError(t, err)
	players := [2]common.Address{signer.Address(), otherAddr}
	table := contract.NewTestTable(players, 600)
	table.Opened = true
	return &Monitor{Table: table, Signer: signer, Log: zerolog.Nop()}, table
}

func monitorRecord(t *testing.T, m *Monitor, states ...store.SignedState) *store.Record {
	t.Helper()
	rec := mkRecord(t, states...)
	rec.Game.Players[0] = m.Signer.Address().Hex()
	for i := range rec.States {
		sig, ok := rec.States[i].Signatures[selfAddr.Hex()]
		if ok {
			delete(rec.States[i].Signatures, selfAddr.Hex())
			rec.States[i].Signatures[m.Signer.Address().Hex()] = sig
		}
	}
	return rec
}

func TestStepProposesWhenLedgerIsEmpty(t *testing.T) {
	m, table := testMonitor(t)
	settled, _ := mkState(t, 2, 4, channel.KindSettled, m.Signer.Address())
	rec := monitorRecord(t, m, cosigned(settled))

	done, err := m.Step(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, done)
	require.Contains(t, table.Calls, "ProposeSettlement")

	// The proposal is now ours and inside the dispute window: wait.
	done, err = m.Step(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, done)
	require.Len(t, table.Calls, 1)
}

func TestStepClaimsOwnProposalAfterDeadline(t *testing.T) {
	m, table := testMonitor(t)
	settled, _ := mkState(t, 2, 4, channel.KindSettled, m.Signer.Address())
	rec := monitorRecord(t, m, cosigned(settled))

	raw, err := hex.DecodeString(settled)
	require.NoError(t, err)
	table.SetSettlement(contract.SettlementInfo{
		Proposer: m.Signer.Address(),
		Deadline: uint64(time.Now().Unix()) - 10,
	}, raw)

	done, err := m.Step(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, done)
	require.Contains(t, table.Calls, "ClaimExpiredSettlement")
}

func TestStepOutbidsStaleCounterpartyProposal(t *testing.T) {
	m, table := testMonitor(t)
	oldHex, _ := mkState(t, 1, 4, channel.KindSettled, otherAddr)
	newHex, _ := mkState(t, 3, 4, channel.KindSettled, m.Signer.Address())
	rec := monitorRecord(t, m, cosigned(oldHex), cosigned(newHex))

	raw, err := hex.DecodeString(oldHex)
	require.NoError(t, err)
	table.SetSettlement(contract.SettlementInfo{
		Proposer: otherAddr,
		Deadline: uint64(time.Now().Unix()) + 600,
	}, raw)

	done, err := m.Step(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, done)
	require.Contains(t, table.Calls, "ProposeSettlement")

	info, err := table.Settlement(context.Background(), [32]byte{})
	require.NoError(t, err)
	require.Equal(t, m.Signer.Address(), info.Proposer)
}

func TestStepWaitsOnValidCounterpartyProposal(t *testing.T) {
	m, table := testMonitor(t)
	settled, _ := mkState(t, 2, 4, channel.KindSettled, otherAddr)
	rec := monitorRecord(t, m, cosigned(settled))

	raw, err := hex.DecodeString(settled)
	require.NoError(t, err)
	table.SetSettlement(contract.SettlementInfo{
		Proposer: otherAddr,
		Deadline: uint64(time.Now().Unix()) + 600,
	}, raw)

	done, err := m.Step(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, done)
	require.NotContains(t, table.Calls, "ProposeSettlement")
}

func TestStepClaimsSettledCounterpartyProposal(t *testing.T) {
	m, table := testMonitor(t)
	settled, _ := mkState(t, 2, 4, channel.KindSettled, otherAddr)
	rec := monitorRecord(t, m, cosigned(settled))

	raw, err := hex.DecodeString(settled)
	require.NoError(t, err)
	table.SetSettlement(contract.SettlementInfo{
		Proposer: otherAddr,
		Deadline: uint64(time.Now().Unix()) - 10,
	}, raw)

	done, err := m.Step(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, done)
	require.Contains(t, table.Calls, "ClaimExpiredSettlement")
}

func TestStepSignalsResumeOnHalfSignedDispute(t *testing.T) {
	m, table := testMonitor(t)
	base, _ := mkState(t, 1, 4, channel.KindSettled, m.Signer.Address())
	rec := monitorRecord(t, m, cosigned(base))

	// The counterparty disputes with a live hand we never countersigned.
	liveHex, _ := mkState(t, 2, 2, channel.KindRaise, otherAddr)
	liveRaw, err := hex.DecodeString(liveHex)
	require.NoError(t, err)
	evidence, err := contract.EncodeHalfSigned(liveRaw, mkSig(9))
	require.NoError(t, err)

	table.SetSettlement(contract.SettlementInfo{
		Proposer:    otherAddr,
		DisputeType: contract.DisputeHalfSigned,
		Deadline:    uint64(time.Now().Unix()) + 600,
		Data:        evidence,
	}, liveRaw)

	done, err := m.Step(context.Background(), rec)
	require.ErrorIs(t, err, ErrResumePlay)
	require.True(t, done)
}

func TestStepReclaimsExpiredTable(t *testing.T) {
	m, table := testMonitor(t)
	settled, _ := mkState(t, 2, 4, channel.KindSettled, m.Signer.Address())
	rec := monitorRecord(t, m, cosigned(settled))
	rec.Game.StartTime = uint64(time.Now().Unix()) - 5000
	rec.Game.Duration = 3600

	done, err := m.Step(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, done)
	require.Contains(t, table.Calls, "ClaimExpiredTable")
	require.NotContains(t, table.Calls, "ProposeSettlement")
}

func TestStepRejectsMalformedBackup(t *testing.T) {
	m, _ := testMonitor(t)
	settled, _ := mkState(t, 1, 4, channel.KindSettled, m.Signer.Address())
	rec := monitorRecord(t, m, cosigned(settled))
	rec.Game.TableID = "zz"

	done, err := m.Step(context.Background(), rec)
	require.Error(t, err)
	require.True(t, done)
}

func TestRunStopsOnResumePlay(t *testing.T) {
	m, table := testMonitor(t)
	base, _ := mkState(t, 1, 4, channel.KindSettled, m.Signer.Address())
	rec := monitorRecord(t, m, cosigned(base))

	liveHex, _ := mkState(t, 2, 1, channel.KindRaise, otherAddr)
	liveRaw, err := hex.DecodeString(liveHex)
	require.NoError(t, err)
	evidence, err := contract.EncodeHalfSigned(liveRaw, mkSig(9))
	require.NoError(t, err)
	table.SetSettlement(contract.SettlementInfo{
		Proposer:    otherAddr,
		DisputeType: contract.DisputeHalfSigned,
		Deadline:    uint64(time.Now().Unix()) + 600,
		Data:        evidence,
	}, liveRaw)

	m.Poll = time.Millisecond
	err = m.Run(context.Background(), rec)
	require.ErrorIs(t, err, ErrResumePlay)
}
