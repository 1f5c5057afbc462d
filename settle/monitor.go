package settle

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/store"
)

// DefaultPoll is the ledger polling cadence.
const DefaultPoll = 10 * time.Second

// expiryGrace pads table-expiry judgements: clocks and block timestamps
// disagree by enough that hard cutoffs misfire.
const expiryGrace = 300 * time.Second

// ErrResumePlay is returned when the counterparty's dispute evidence is a
// half signed state we never countersigned: the right move is to reconnect
// and finish the hand, not to fight the settlement.
var ErrResumePlay = errors.New("settle: counterparty disputed with a live hand, resume play")

// Monitor watches one table until its funds are claimed.
type Monitor struct {
	Table  contract.Table
	Signer *contract.Signer
	Log    zerolog.Logger
	Poll   time.Duration
	Now    func() time.Time
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Run polls until the table pays out or the context ends. A nil return means
// the backup is spent and may be deleted.
func (m *Monitor) Run(ctx context.Context, rec *store.Record) error {
	poll := m.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	for {
		done, err := m.Step(ctx, rec)
		if err != nil {
			if errors.Is(err, ErrResumePlay) || errors.Is(err, ctx.Err()) {
				return err
			}
			m.Log.Warn().Err(err).Msg("settlement step failed, continuing to monitor")
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Step performs one monitoring pass: claim, dispute, propose or wait.
// It reports done when the table's money has been claimed or nothing is left
// to do.
func (m *Monitor) Step(ctx context.Context, rec *store.Record) (bool, error) {
	tableID, sessionID, players, err := identity(rec)
	if err != nil {
		return true, err
	}

	info, err := m.Table.Settlement(ctx, tableID)
	if errors.Is(err, contract.ErrNoSettlement) {
		return m.propose(ctx, rec, tableID, sessionID, players)
	}
	if err != nil {
		return false, err
	}

	if info.Proposer == m.Signer.Address() {
		if uint64(m.now().Unix()) > info.Deadline {
			return m.claim(ctx, tableID)
		}
		m.Log.Info().Uint64("deadline", info.Deadline).Msg("own proposal pending, waiting out dispute window")
		return false, nil
	}

	// The counterparty proposed. Outbid it if our backup is newer.
	proposed, err := m.ledgerState(ctx, tableID)
	if err != nil {
		return false, err
	}
	local, err := decodeRecorded(rec.States[len(rec.States)-1])
	if err != nil {
		return true, err
	}
	if local.Newer(proposed) {
		m.Log.Info().
			Uint64("ledger_hand", proposed.HandNumber).
			Uint64("local_hand", local.HandNumber).
			Msg("backup is newer than the proposal, updating settlement")
		return m.propose(ctx, rec, tableID, sessionID, players)
	}
	if proposed.Kind == channel.KindSettled {
		if uint64(m.now().Unix()) > info.Deadline {
			return m.claim(ctx, tableID)
		}
		m.Log.Info().Msg("counterparty proposal is valid, waiting out dispute window")
		return false, nil
	}
	if info.DisputeType == contract.DisputeHalfSigned {
		_, _, err := disputedPot(info.Data)
		if err != nil {
			return false, err
		}
		return true, ErrResumePlay
	}
	return false, nil
}

func (m *Monitor) propose(ctx context.Context, rec *store.Record, tableID, sessionID [32]byte, players [2]common.Address) (bool, error) {
	now := uint64(m.now().Unix())
	expiry := rec.Game.StartTime + rec.Game.Duration
	grace := uint64(expiryGrace / time.Second)

	switch {
	case expiry+grace < now:
		m.Log.Warn().Msg("too late to settle on a state, reclaiming the buy-in")
		tx, err := m.Table.ClaimExpiredTable(ctx, tableID)
		if err != nil {
			return false, err
		}
		m.Log.Info().Str("tx", hexutil.Encode(tx)).Msg("expired table claimed")
		return true, nil
	case expiry < now:
		m.Log.Warn().Msg("table expired, a state settlement will very likely be rejected")
	case expiry < now+grace:
		m.Log.Warn().Msg("table close to expiry, a state settlement may be rejected")
	}

	ev, err := BuildEvidence(rec, m.Signer.Address())
	if err != nil {
		return false, err
	}
	tx, err := Propose(ctx, m.Table, m.Signer, tableID, sessionID, players, ev.Base, ev.DisputeType, ev.DisputeData)
	if err != nil {
		return false, err
	}
	m.Log.Info().Str("tx", hexutil.Encode(tx)).Uint8("dispute", ev.DisputeType).Msg("settlement proposed")
	return false, nil
}

func (m *Monitor) claim(ctx context.Context, tableID [32]byte) (bool, error) {
	tx, err := m.Table.ClaimExpiredSettlement(ctx, tableID)
	if err != nil {
		return false, err
	}
	m.Log.Info().Str("tx", hexutil.Encode(tx)).Msg("settlement claimed")
	return true, nil
}

func (m *Monitor) ledgerState(ctx context.Context, tableID [32]byte) (*channel.GameState, error) {
	raw, err := m.Table.State(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return channel.Decode(raw)
}

// disputedPot decodes half signed dispute evidence enough to tell the
// operator what resuming the hand is worth.
func disputedPot(data []byte) (*channel.GameState, contract.Signature, error) {
	stateBytes, sig, err := contract.DecodeHalfSigned(data)
	if err != nil {
		return nil, sig, errors.Wrap(err, "settle: undecodable dispute evidence")
	}
	state, err := channel.Decode(stateBytes)
	if err != nil {
		return nil, sig, errors.Wrap(err, "settle: undecodable disputed state")
	}
	return state, sig, nil
}

func identity(rec *store.Record) (tableID, sessionID [32]byte, players [2]common.Address, err error) {
	tid, err := hex.DecodeString(rec.Game.TableID)
	if err != nil || len(tid) != 32 {
		return tableID, sessionID, players, errors.New("settle: backup carries a malformed table id")
	}
	sid, err := hex.DecodeString(rec.Game.SessionID)
	if err != nil || len(sid) != 32 {
		return tableID, sessionID, players, errors.New("settle: backup carries a malformed session id")
	}
	copy(tableID[:], tid)
	copy(sessionID[:], sid)
	players[0] = common.HexToAddress(rec.Game.Players[0])
	players[1] = common.HexToAddress(rec.Game.Players[1])
	return tableID, sessionID, players, nil
}
