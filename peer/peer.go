// Package peer runs the live two player session over one connection: the
// hello and table-open handshake, the deck shuffle rounds, the co-signed
// betting loop and the hand handover. Every state it signs or accepts first
// passes the same legality rules the ledger enforces, so nothing a
// counterparty can send tricks us into an unsettleable position.
package peer

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/dealer"
	"github.com/pokerp2p/pokerp2p/session"
	"github.com/pokerp2p/pokerp2p/store"
	"github.com/pokerp2p/pokerp2p/wire"
)

// ErrProtocolViolation tags counterparty behavior the protocol forbids;
// the session is torn down and whatever is signed goes to settlement.
var ErrProtocolViolation = errors.New("peer: protocol violation")

func violation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrProtocolViolation, format, args...)
}

// maxSignAttempts bounds re-signing when the contract rejects our own
// signature fragment.
const maxSignAttempts = 10

// existsPollInterval is how often the initiator re-checks the ledger while
// waiting for the open transaction to land.
const existsPollInterval = 5 * time.Second

// Config wires a Player.
type Config struct {
	Signer   *contract.Signer
	Table    contract.Table
	Store    store.Store
	Operator Operator
	Log      zerolog.Logger

	// Initiator marks the dialing side. The responder offers Terms; the
	// initiator adopts whatever the responder's hello carries.
	Initiator bool
	Terms     contract.Terms

	// ClaimGrace pads the dispute-window wait before claiming a settlement
	// the counterparty announced. Defaults to defaultClaimGrace.
	ClaimGrace time.Duration
}

const defaultClaimGrace = 120 * time.Second

// Player is one side of a live session. It is not safe for concurrent use;
// Run owns it for the duration of the connection.
type Player struct {
	cfg Config
	log zerolog.Logger

	codec *wire.Codec
	nonce string

	sess    *session.Session
	terms   contract.Terms
	tableID [32]byte
	rules   channel.Rules
	basics  store.GameInfo

	dealer *dealer.Dealer
	deck   []dealer.Point

	current *channel.GameState
	sigs    channel.SigSet
	signed  []store.SignedState

	stopped bool
}

func NewPlayer(cfg Config) *Player {
	return &Player{
		cfg:  cfg,
		log:  cfg.Log.With().Str("component", "peer").Logger(),
		sigs: channel.NewSigSet(),
	}
}

// Run drives the session until it completes, the counterparty misbehaves or
// the connection drops. On an unclean exit the half signed state in flight,
// if any, is snapshotted for the settlement monitor.
func (p *Player) Run(ctx context.Context, conn io.ReadWriter) error {
	p.codec = wire.NewCodec(conn)

	nonce, err := session.NewNonce()
	if err != nil {
		return err
	}
	p.nonce = nonce

	if p.cfg.Initiator {
		if err := p.sendHello(); err != nil {
			return err
		}
	}

	for {
		msg, err := p.codec.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Info().Msg("peer disconnected")
				return p.snapshotUnfinished()
			}
			p.snapshot()
			return err
		}

		if err := p.dispatch(ctx, msg); err != nil {
			p.snapshot()
			return err
		}
		if p.stopped {
			return nil
		}
	}
}

func (p *Player) dispatch(ctx context.Context, msg wire.Message) error {
	p.log.Debug().Str("msgtype", msg.Type()).Msg("message received")
	switch m := msg.(type) {
	case *wire.Hello:
		return p.handleHello(ctx, m)
	case *wire.Create:
		return p.handleCreate(ctx, m)
	case *wire.Join:
		return p.handleJoin(ctx, m)
	case *wire.Shuffle:
		return p.handleShuffle(ctx, m)
	case *wire.Hand:
		return p.handleHand(ctx, m)
	case *wire.Handover:
		return p.handleHandover(ctx, m)
	}
	return violation("unexpected message %q", msg.Type())
}

func (p *Player) me() int {
	return p.sess.Local
}

func (p *Player) opponent() int {
	return 1 - p.sess.Local
}

// signState signs the canonical state encoding and checks the fragment
// against the contract's own verifier before trusting it.
func (p *Player) signState(ctx context.Context, state []byte) (contract.Signature, error) {
	for attempt := 0; attempt <= maxSignAttempts; attempt++ {
		hash, err := p.cfg.Table.TransactionHash(ctx, p.tableID, p.sess.ID, state)
		if err != nil {
			return contract.Signature{}, err
		}
		sig, err := p.cfg.Signer.SignHash(hash)
		if err != nil {
			return contract.Signature{}, err
		}
		ok, err := p.verifyHalfSigned(ctx, state, sig, p.cfg.Signer.Address())
		if err != nil {
			return contract.Signature{}, err
		}
		if ok {
			return sig, nil
		}
		p.log.Warn().Int("attempt", attempt+1).Msg("own state signature rejected, re-signing")
	}
	return contract.Signature{}, errors.New("peer: created invalid signature on state transition")
}

func (p *Player) verifyHalfSigned(ctx context.Context, state []byte, sig contract.Signature, signer common.Address) (bool, error) {
	blob, err := contract.EncodeHalfSigned(state, sig)
	if err != nil {
		return false, err
	}
	return p.cfg.Table.VerifyHalfSigned(ctx, p.tableID, blob, signer)
}

// appendSigned records a fully co-signed state and persists the backup.
func (p *Player) appendSigned(state []byte, sigs channel.SigSet) error {
	byAddr := make(map[string]contract.Signature, len(sigs))
	for addr, sig := range sigs {
		byAddr[addr.Hex()] = sig
	}
	p.signed = append(p.signed, store.SignedState{
		State:      hex.EncodeToString(state),
		Signatures: byAddr,
	})
	return p.saveBackup(nil)
}

func (p *Player) saveBackup(unfinished *store.Unfinished) error {
	rec := &store.Record{Game: p.basics, States: p.signed, Unfinished: unfinished}
	if err := p.cfg.Store.Save(p.sess.Hex(), rec); err != nil {
		return err
	}
	return nil
}

// snapshotUnfinished persists the state we signed but never got
// countersigned, so the monitor can dispute with it.
func (p *Player) snapshotUnfinished() error {
	if p.sess == nil || len(p.signed) == 0 {
		return nil
	}
	encoded, err := p.current.Encode()
	if err != nil {
		return err
	}
	own, haveOwn := p.sigs[p.cfg.Signer.Address()]
	if len(p.sigs) != 1 || !haveOwn {
		return nil
	}
	if hex.EncodeToString(encoded) == p.signed[len(p.signed)-1].State {
		return nil
	}
	p.log.Info().Msg("persisting half signed state for settlement")
	return p.saveBackup(&store.Unfinished{
		State:     hex.EncodeToString(encoded),
		Signature: own,
	})
}

func (p *Player) snapshot() {
	if err := p.snapshotUnfinished(); err != nil {
		p.log.Error().Err(err).Msg("backup snapshot failed")
	}
}
