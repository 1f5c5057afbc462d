package peer

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/dealer"
	"github.com/pokerp2p/pokerp2p/session"
	"github.com/pokerp2p/pokerp2p/store"
	"github.com/pokerp2p/pokerp2p/wire"
)

func (p *Player) sendHello() error {
	msg := wire.Hello{
		Address: p.cfg.Signer.Address().Hex(),
		Nonce:   p.nonce,
	}
	if !p.cfg.Initiator {
		msg.BuyIn = p.cfg.Terms.BuyIn.String()
		msg.Duration = p.cfg.Terms.Duration
		msg.JoinDuration = p.cfg.Terms.JoinDuration
		msg.DisputeDuration = p.cfg.Terms.DisputeDuration
	}
	return p.codec.Send(msg)
}

func (p *Player) handleHello(ctx context.Context, m *wire.Hello) error {
	remote := common.HexToAddress(m.Address)
	if p.sess != nil {
		p.log.Warn().Str("address", m.Address).Msg("hello after session established, ignoring")
		return nil
	}

	var initiatorNonce, responderNonce string
	if p.cfg.Initiator {
		initiatorNonce, responderNonce = p.nonce, m.Nonce
	} else {
		initiatorNonce, responderNonce = m.Nonce, p.nonce
	}
	sess, err := session.New(p.cfg.Signer.Address(), remote, initiatorNonce, responderNonce)
	if err != nil {
		return err
	}
	p.sess = sess
	p.log.Info().Str("opponent", remote.Hex()).Str("session", sess.Hex()).Msg("session established")

	if p.cfg.Initiator {
		buyIn, ok := new(big.Int).SetString(m.BuyIn, 10)
		if !ok || buyIn.Sign() <= 0 {
			return violation("hello carries unusable buy-in %q", m.BuyIn)
		}
		p.terms = contract.Terms{
			BuyIn:           buyIn,
			Duration:        m.Duration,
			JoinDuration:    m.JoinDuration,
			DisputeDuration: m.DisputeDuration,
		}
	} else {
		p.terms = p.cfg.Terms
	}

	tableID, err := p.cfg.Table.TableID(ctx, sess.Players[0], sess.Players[1])
	if err != nil {
		return err
	}
	p.tableID = tableID
	p.rules = channel.Rules{
		Players: sess.Players,
		BuyIn:   p.terms.BuyIn,
		Resolve: dealer.ResolveCard,
	}
	p.current = channel.NewGameState(p.terms.BuyIn)
	p.sigs = channel.NewSigSet()

	if p.cfg.Initiator {
		if err := p.cfg.Operator.ApproveTable(sess.Remote(), p.terms); err != nil {
			return errors.Wrap(ErrOperatorAbort, err.Error())
		}
		sig, err := p.signOpenTerms(ctx)
		if err != nil {
			return err
		}
		return p.codec.Send(wire.Create{
			V: sig.V,
			R: (*hexutil.Big)(sig.R),
			S: (*hexutil.Big)(sig.S),
		})
	}
	return p.sendHello()
}

func (p *Player) signOpenTerms(ctx context.Context) (contract.Signature, error) {
	openData, err := contract.EncodeOpenData(p.terms)
	if err != nil {
		return contract.Signature{}, err
	}
	hash, err := p.cfg.Table.TransactionHash(ctx, p.tableID, p.sess.ID, openData)
	if err != nil {
		return contract.Signature{}, err
	}
	return p.cfg.Signer.SignHash(hash)
}

// handleCreate runs on the responder: the initiator signed the open terms,
// so co-sign and put the table on the ledger.
func (p *Player) handleCreate(ctx context.Context, m *wire.Create) error {
	if p.sess == nil {
		return violation("create before hello")
	}
	if m.R == nil || m.S == nil {
		return violation("create carries no signature")
	}
	if err := p.cfg.Operator.ApproveTable(p.sess.Remote(), p.terms); err != nil {
		return errors.Wrap(ErrOperatorAbort, err.Error())
	}

	own, err := p.signOpenTerms(ctx)
	if err != nil {
		return err
	}
	theirs := contract.Signature{V: m.V, R: (*big.Int)(m.R), S: (*big.Int)(m.S)}
	ordered, err := contract.OrderSignatures(p.sess.Players, map[common.Address]contract.Signature{
		p.cfg.Signer.Address(): own,
		p.sess.Remote():        theirs,
	})
	if err != nil {
		return err
	}

	tx, err := p.cfg.Table.Open(ctx, p.sess.Players, p.terms, ordered, p.sess.ID)
	if err != nil {
		return err
	}
	p.log.Info().Str("tx", hexutil.Encode(tx)).Msg("table opened")
	p.initBasics()

	return p.codec.Send(wire.Join{
		Tx:    hex.EncodeToString(tx),
		BuyIn: p.terms.BuyIn.String(),
	})
}

// handleJoin runs on the initiator: the table open transaction is out, so
// wait for it to land, join, and start the first shuffle.
func (p *Player) handleJoin(ctx context.Context, m *wire.Join) error {
	if p.sess == nil {
		return violation("join before hello")
	}
	if buyIn, ok := new(big.Int).SetString(m.BuyIn, 10); !ok || buyIn.Cmp(p.terms.BuyIn) != 0 {
		return violation("join buy-in %q does not match agreed terms", m.BuyIn)
	}

	p.log.Info().Str("tx", m.Tx).Msg("waiting for table on ledger")
	for {
		exists, err := p.cfg.Table.Exists(ctx, p.tableID)
		if err != nil {
			return err
		}
		if exists {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(existsPollInterval):
		}
	}

	tx, err := p.cfg.Table.Join(ctx, p.sess.Players, p.terms.BuyIn)
	if err != nil {
		return err
	}
	p.log.Info().Str("tx", hexutil.Encode(tx)).Msg("joined table")
	p.initBasics()

	return p.startShuffle()
}

func (p *Player) initBasics() {
	p.basics = store.GameInfo{
		Players:         [2]string{p.sess.Players[0].Hex(), p.sess.Players[1].Hex()},
		StartTime:       uint64(time.Now().Unix()),
		Duration:        p.terms.Duration,
		DisputeDuration: p.terms.DisputeDuration,
		TableID:         hex.EncodeToString(p.tableID[:]),
		SessionID:       p.sess.Hex(),
	}
}
