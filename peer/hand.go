package peer

import (
	"bytes"
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/dealer"
	"github.com/pokerp2p/pokerp2p/settle"
	"github.com/pokerp2p/pokerp2p/wire"
)

// sendProposal signs next, adopts it as the current half signed state and
// ships it. prevSig, when set, is our countersignature on the state the
// proposal builds on.
func (p *Player) sendProposal(ctx context.Context, next *channel.GameState, subtype int, prevSig *contract.Signature) error {
	prevBytes, err := p.current.Encode()
	if err != nil {
		return err
	}
	nextBytes, err := next.Encode()
	if err != nil {
		return err
	}
	sig, err := p.signState(ctx, nextBytes)
	if err != nil {
		return err
	}

	msg := wire.Hand{
		Subtype:   subtype,
		PrevState: hex.EncodeToString(prevBytes),
		NextState: hex.EncodeToString(nextBytes),
		NextV:     sig.V,
		NextR:     (*hexutil.Big)(sig.R),
		NextS:     (*hexutil.Big)(sig.S),
	}
	if prevSig != nil {
		msg.PrevV = prevSig.V
		msg.PrevR = (*hexutil.Big)(prevSig.R)
		msg.PrevS = (*hexutil.Big)(prevSig.S)
	}

	p.current = next
	p.sigs = channel.NewSigSet().With(p.cfg.Signer.Address(), sig)
	return p.codec.Send(msg)
}

func (p *Player) handleHand(ctx context.Context, m *wire.Hand) error {
	if p.sess == nil || p.dealer == nil {
		return violation("hand message before the deck exists")
	}

	prevBytes, err := hex.DecodeString(m.PrevState)
	if err != nil {
		return violation("previous state is not hex: %v", err)
	}
	nextBytes, err := hex.DecodeString(m.NextState)
	if err != nil {
		return violation("next state is not hex: %v", err)
	}
	currentBytes, err := p.current.Encode()
	if err != nil {
		return err
	}
	if !bytes.Equal(prevBytes, currentBytes) {
		return violation("received mismatching state")
	}

	next, err := channel.Decode(nextBytes)
	if err != nil {
		return violation("undecodable next state: %v", err)
	}
	if err := p.rules.Check(p.current, next); err != nil {
		return violation("received invalid state transition: %v", err)
	}

	if m.NextR == nil || m.NextS == nil {
		return violation("hand carries no signature")
	}
	theirSig := contract.Signature{V: m.NextV, R: (*big.Int)(m.NextR), S: (*big.Int)(m.NextS)}
	ok, err := p.verifyHalfSigned(ctx, nextBytes, theirSig, p.sess.Remote())
	if err != nil {
		return err
	}
	if !ok {
		return violation("received invalid signature on state transition")
	}

	mySig, err := p.signState(ctx, nextBytes)
	if err != nil {
		return err
	}
	nextSigs := channel.NewSigSet().
		With(p.sess.Remote(), theirSig).
		With(p.cfg.Signer.Address(), mySig)

	if next.HandNumber == p.current.HandNumber && next.Count != 1 {
		// The message also countersigns our previous proposal; the pair
		// becomes fully signed history before the new state does.
		if m.PrevR == nil || m.PrevS == nil {
			return violation("hand carries no countersignature on previous state")
		}
		prevSig := contract.Signature{V: m.PrevV, R: (*big.Int)(m.PrevR), S: (*big.Int)(m.PrevS)}
		ok, err := p.verifyHalfSigned(ctx, prevBytes, prevSig, p.sess.Remote())
		if err != nil {
			return err
		}
		if !ok {
			return violation("received invalid countersignature on previous state")
		}
		p.sigs = p.sigs.With(p.sess.Remote(), prevSig)
		if !p.sigs.Complete(p.sess.Players) {
			return errors.New("peer: missing own signature on previous state")
		}
		if err := p.appendSigned(prevBytes, p.sigs); err != nil {
			return err
		}
	} else if next.HandNumber != p.current.HandNumber {
		// New hand: the counterparty dealt, adopt the final card points.
		if err := p.adoptDeck(next); err != nil {
			return err
		}
	}

	if err := p.appendSigned(nextBytes, nextSigs); err != nil {
		return err
	}
	p.current = next
	p.sigs = channel.NewSigSet()

	return p.respond(ctx, m, mySig)
}

// adoptDeck replaces our stale shuffle-round deck with the fully dealt
// points the dealer installed in the card field.
func (p *Player) adoptDeck(next *channel.GameState) error {
	var deck [2]dealer.Point
	for i := range deck {
		x, y := next.CardPoint(i)
		if !crypto.S256().IsOnCurve(x, y) {
			return violation("dealt card %d is not a curve point", i)
		}
		deck[i] = dealer.Point{X: new(big.Int).Set(x), Y: new(big.Int).Set(y)}
	}
	p.deck = deck[:]
	return nil
}

// respond continues the hand from the just-accepted state. mySig is our
// signature on it and rides along as the countersignature of whatever we
// send next.
func (p *Player) respond(ctx context.Context, m *wire.Hand, mySig contract.Signature) error {
	state := p.current

	if m.Subtype == wire.HandPropose {
		switch {
		case state.Kind == channel.KindRaise || (state.Kind == channel.KindCall && state.Count == 1):
			// Betting is open, our move.
			card, err := p.openOwnCard(state)
			if err != nil {
				return err
			}
			base := p.rules.Advance(state, p.me())
			next, err := p.decideAction(card, base)
			if err != nil {
				return err
			}
			return p.sendProposal(ctx, next, wire.HandPropose, &mySig)

		case state.Kind == channel.KindFold:
			// Opponent folded, sweep the pot.
			settled := p.rules.AwardFold(p.rules.Advance(state, p.me()), p.me())
			return p.sendProposal(ctx, settled, wire.HandAccept, &mySig)

		case state.Kind == channel.KindCall:
			// Closing call: publish our key share.
			key, err := p.dealer.CardKey(p.me())
			if err != nil {
				return err
			}
			next := p.rules.Reveal(p.rules.Advance(state, p.me()), p.me(), key)
			return p.sendProposal(ctx, next, wire.HandPropose, &mySig)

		case state.Kind == channel.KindKeyRevealed && state.KeysRevealed() == 1:
			// Second reveal; both cards are open once ours is in.
			key, err := p.dealer.CardKey(p.me())
			if err != nil {
				return err
			}
			next := p.rules.Reveal(p.rules.Advance(state, p.me()), p.me(), key)
			p.showShowdown(next)
			return p.sendProposal(ctx, next, wire.HandAccept, &mySig)
		}
		return violation("no continuation from %s proposal", state.Kind)
	}

	switch {
	case state.Kind == channel.KindKeyRevealed && state.KeysRevealed() == 2:
		// All shares on the table, settle the showdown.
		settled, err := p.rules.Showdown(p.rules.Advance(state, p.me()))
		if err != nil {
			return violation("showdown does not resolve: %v", err)
		}
		p.showShowdown(settled)
		return p.sendProposal(ctx, settled, wire.HandAccept, &mySig)

	case state.Kind == channel.KindSettled:
		return p.afterHand(ctx, m.NextState, mySig)
	}
	return violation("no continuation from %s acceptance", state.Kind)
}

// afterHand runs once a settled state is co-signed: play on or cash out.
func (p *Player) afterHand(ctx context.Context, settledHex string, mySig contract.Signature) error {
	cont, err := p.chooseContinuation()
	if err != nil {
		return err
	}

	if cont == ContinuePlaying {
		return p.codec.Send(wire.Handover{
			PrevState: settledHex,
			PrevV:     mySig.V,
			PrevR:     (*hexutil.Big)(mySig.R),
			PrevS:     (*hexutil.Big)(mySig.S),
			Stop:      0,
			Tx:        "",
		})
	}

	tx, err := p.proposeCashOut(ctx)
	if err != nil {
		return err
	}
	p.stopped = true
	return p.codec.Send(wire.Handover{
		PrevState: settledHex,
		PrevV:     mySig.V,
		PrevR:     (*hexutil.Big)(mySig.R),
		PrevS:     (*hexutil.Big)(mySig.S),
		Stop:      1,
		Tx:        hex.EncodeToString(tx),
	})
}

// chooseContinuation consults the operator unless a busted stack forces the
// session to end.
func (p *Player) chooseContinuation() (Continuation, error) {
	my := p.current.Stacks[p.me()]
	opp := p.current.Stacks[p.opponent()]
	if my.Sign() == 0 || opp.Sign() == 0 {
		p.log.Info().Bool("won", my.Sign() != 0).Msg("game over")
		return CashOut, nil
	}
	cont, err := p.cfg.Operator.ChooseContinuation(my, opp)
	if err != nil {
		return CashOut, errors.Wrap(ErrOperatorAbort, err.Error())
	}
	if cont != ContinuePlaying && cont != CashOut {
		return CashOut, errors.Errorf("peer: unknown continuation %d", cont)
	}
	return cont, nil
}

func (p *Player) handleHandover(ctx context.Context, m *wire.Handover) error {
	if p.sess == nil {
		return violation("handover before handshake")
	}
	prevBytes, err := hex.DecodeString(m.PrevState)
	if err != nil {
		return violation("handover state is not hex: %v", err)
	}
	currentBytes, err := p.current.Encode()
	if err != nil {
		return err
	}
	if !bytes.Equal(prevBytes, currentBytes) {
		return violation("received invalid state")
	}

	if m.PrevR == nil || m.PrevS == nil {
		return violation("handover carries no signature")
	}
	sig := contract.Signature{V: m.PrevV, R: (*big.Int)(m.PrevR), S: (*big.Int)(m.PrevS)}
	ok, err := p.verifyHalfSigned(ctx, prevBytes, sig, p.sess.Remote())
	if err != nil {
		return err
	}
	if !ok {
		return violation("received invalid signature on state")
	}

	// The settled state may already be fully signed on our side when this
	// handover answers one we sent.
	if len(p.signed) == 0 || p.signed[len(p.signed)-1].State != m.PrevState {
		p.sigs = p.sigs.With(p.sess.Remote(), sig)
		if !p.sigs.Complete(p.sess.Players) {
			return errors.New("peer: missing own signature on settled state")
		}
		if err := p.appendSigned(prevBytes, p.sigs); err != nil {
			return err
		}
		p.sigs = channel.NewSigSet()
	}

	if m.Stop == 1 {
		return p.handleStop(ctx, m.Tx)
	}

	cont, err := p.chooseContinuation()
	if err != nil {
		return err
	}
	if cont == ContinuePlaying {
		return p.startShuffle()
	}

	tx, err := p.proposeCashOut(ctx)
	if err != nil {
		return err
	}
	own, err := p.ownSigOnLatest()
	if err != nil {
		return err
	}
	p.stopped = true
	return p.codec.Send(wire.Handover{
		PrevState: p.signed[len(p.signed)-1].State,
		PrevV:     own.V,
		PrevR:     (*hexutil.Big)(own.R),
		PrevS:     (*hexutil.Big)(own.S),
		Stop:      1,
		Tx:        hex.EncodeToString(tx),
	})
}

// handleStop finishes the session after the counterparty proposed
// settlement: wait out the dispute window, then claim.
func (p *Player) handleStop(ctx context.Context, tx string) error {
	p.log.Info().Str("tx", tx).Str("opponent", p.sess.Remote().Hex()).Msg("opponent ended the game")
	defer func() { p.stopped = true }()

	my := p.current.Stacks[p.me()]
	opp := p.current.Stacks[p.opponent()]
	if my.Sign() == 0 || opp.Sign() == 0 {
		// The pot already drained to one side; the proposal pays out as is.
		return nil
	}

	grace := p.cfg.ClaimGrace
	if grace == 0 {
		grace = defaultClaimGrace
	}
	wait := time.Duration(p.terms.DisputeDuration)*time.Second + grace
	p.log.Info().Dur("wait", wait).Msg("waiting out the dispute window before claiming")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	claim, err := p.cfg.Table.ClaimExpiredSettlement(ctx, p.tableID)
	if err != nil {
		return err
	}
	p.log.Info().Str("tx", hexutil.Encode(claim)).Msg("settlement claimed")
	return nil
}

// proposeCashOut settles on the latest fully co-signed state, no dispute.
func (p *Player) proposeCashOut(ctx context.Context) ([]byte, error) {
	if len(p.signed) == 0 {
		return nil, errors.New("peer: no signed state to settle on")
	}
	tx, err := settle.Propose(ctx, p.cfg.Table, p.cfg.Signer, p.tableID, p.sess.ID,
		p.sess.Players, p.signed[len(p.signed)-1], contract.DisputeNone, nil)
	if err != nil {
		return nil, err
	}
	p.log.Info().Str("tx", hexutil.Encode(tx)).Msg("settlement proposed")
	return tx, nil
}

func (p *Player) ownSigOnLatest() (contract.Signature, error) {
	last := p.signed[len(p.signed)-1]
	sig, ok := last.Signatures[p.cfg.Signer.Address().Hex()]
	if !ok {
		return contract.Signature{}, errors.New("peer: latest signed state misses own signature")
	}
	return sig, nil
}

// openOwnCard opens our card using our withheld share and the view key the
// dealer put into the state.
func (p *Player) openOwnCard(state *channel.GameState) (dealer.Card, error) {
	own, err := p.dealer.CardKey(p.me())
	if err != nil {
		return dealer.Card{}, err
	}
	card, err := dealer.RevealCard(p.deck[p.me()], own, state.ViewKey(p.me()))
	if err != nil {
		return dealer.Card{}, violation("own card does not open: %v", err)
	}
	return card, nil
}

// showShowdown opens both cards from a state carrying all four shares and
// reports the outcome to the operator.
func (p *Player) showShowdown(state *channel.GameState) {
	x0, y0 := state.CardPoint(0)
	idx0, err0 := dealer.ResolveCard(x0, y0, state.OwnKey(0), state.ViewKey(0))
	x1, y1 := state.CardPoint(1)
	idx1, err1 := dealer.ResolveCard(x1, y1, state.OwnKey(1), state.ViewKey(1))
	if err0 != nil || err1 != nil {
		p.log.Warn().AnErr("card0", err0).AnErr("card1", err1).Msg("cards do not open for display")
		return
	}
	cards := [2]dealer.Card{}
	cards[0], _ = dealer.NewCard(idx0)
	cards[1], _ = dealer.NewCard(idx1)
	mine, theirs := cards[p.me()], cards[p.opponent()]
	p.cfg.Operator.ShowShowdown(ShowdownView{
		MyCard:  mine,
		OppCard: theirs,
		Won:     mine.Beats(theirs),
		Tied:    mine.Rank() == theirs.Rank(),
	})
}
