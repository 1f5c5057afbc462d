package peer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/pokerp2p/pokerp2p/channel"
	"github.com/pokerp2p/pokerp2p/dealer"
	"github.com/pokerp2p/pokerp2p/wire"
)

// startShuffle opens a fresh deck handshake: shuffle the reference deck and
// send it as round one.
func (p *Player) startShuffle() error {
	p.dealer = dealer.New()
	deck, err := p.dealer.Shuffle(dealer.NewDeck())
	if err != nil {
		return err
	}
	p.deck = deck
	return p.codec.Send(wire.Shuffle{Round: 1, Deck: encodeDeck(deck)})
}

func (p *Player) handleShuffle(ctx context.Context, m *wire.Shuffle) error {
	if p.sess == nil {
		return violation("shuffle before handshake")
	}

	switch m.Round {
	case 1:
		recv, err := decodeDeck(m.Deck, dealer.DeckSize)
		if err != nil {
			return err
		}
		p.dealer = dealer.New()
		deck, err := p.dealer.Shuffle(recv)
		if err != nil {
			return err
		}
		p.deck = deck
		// Only the two cards that will be dealt travel back.
		return p.codec.Send(wire.Shuffle{Round: 2, Deck: encodeDeck(deck[:2])})

	case 2:
		recv, err := decodeDeck(m.Deck, 2)
		if err != nil {
			return err
		}
		dealt, err := p.dealer.Deal(recv)
		if err != nil {
			return err
		}
		p.deck = dealt
		key, err := p.dealer.CardKey(p.opponent())
		if err != nil {
			return err
		}
		return p.codec.Send(wire.Shuffle{
			Round: 3,
			Deck:  encodeDeck(dealt),
			Key:   (*hexutil.Big)(key),
		})

	case 3:
		recv, err := decodeDeck(m.Deck, 2)
		if err != nil {
			return err
		}
		dealt, err := p.dealer.Deal(recv)
		if err != nil {
			return err
		}
		p.deck = dealt
		if m.Key == nil {
			return violation("shuffle round 3 carries no key share")
		}
		return p.startHand(ctx, (*big.Int)(m.Key))

	case 4:
		// Handover of an already dealt deck: adopt it as-is.
		recv, err := decodeDeck(m.Deck, 2)
		if err != nil {
			return err
		}
		p.deck = recv
		if m.Key == nil {
			return violation("shuffle round 4 carries no key share")
		}
		return p.startHand(ctx, (*big.Int)(m.Key))
	}
	return violation("shuffle round %d out of range", m.Round)
}

// startHand runs once the deck is dealt. If the next hand opens on the other
// seat, pass the deck on with our view key share; otherwise reveal our own
// card and take the first action.
func (p *Player) startHand(ctx context.Context, viewKey *big.Int) error {
	nextHand := p.current.HandNumber + 1
	if channel.FirstActor(nextHand) != p.me() {
		key, err := p.dealer.CardKey(p.opponent())
		if err != nil {
			return err
		}
		p.log.Debug().Uint64("hand", nextHand).Msg("passing first action")
		return p.codec.Send(wire.Shuffle{
			Round: 4,
			Deck:  encodeDeck(p.deck),
			Key:   (*hexutil.Big)(key),
		})
	}

	ownShare, err := p.dealer.CardKey(p.me())
	if err != nil {
		return err
	}
	card, err := dealer.RevealCard(p.deck[p.me()], ownShare, viewKey)
	if err != nil {
		return violation("own card does not open: %v", err)
	}

	oppShare, err := p.dealer.CardKey(p.opponent())
	if err != nil {
		return err
	}
	info := channel.DealInfo{
		Card0X: p.deck[0].X, Card0Y: p.deck[0].Y,
		Card1X: p.deck[1].X, Card1Y: p.deck[1].Y,
	}
	if p.me() == 0 {
		info.ViewKey0, info.ViewKey1 = viewKey, oppShare
	} else {
		info.ViewKey0, info.ViewKey1 = oppShare, viewKey
	}
	base := p.rules.Deal(p.current, p.me(), info)

	next, err := p.decideAction(card, base)
	if err != nil {
		return err
	}
	return p.sendProposal(ctx, next, wire.HandPropose, nil)
}

// decideAction asks the operator until it produces a legal betting move.
func (p *Player) decideAction(card dealer.Card, base *channel.GameState) (*channel.GameState, error) {
	view := HandView{
		Card:     card,
		MyStack:  base.Stacks[p.me()],
		OppStack: base.Stacks[p.opponent()],
		Pot:      base.Pot,
		ToCall:   base.ToCall,
		MinRaise: p.rules.MinRaise(),
	}
	for attempt := 0; attempt < maxDecisionAttempts; attempt++ {
		decision, err := p.cfg.Operator.ChooseAction(view)
		if err != nil {
			return nil, errors.Wrap(ErrOperatorAbort, err.Error())
		}

		var next *channel.GameState
		switch decision.Action {
		case ActionFold:
			next = p.rules.Fold(base)
		case ActionCall:
			next = p.rules.Call(base, p.me())
		case ActionRaise:
			next, err = p.rules.Raise(base, p.me(), decision.Raise)
			if err != nil {
				p.log.Warn().Err(err).Msg("raise rejected, ask again")
				continue
			}
		default:
			p.log.Warn().Int("action", int(decision.Action)).Msg("unknown action, ask again")
			continue
		}
		if err := p.rules.Check(p.current, next); err != nil {
			p.log.Warn().Err(err).Msg("chosen action builds invalid transition, ask again")
			continue
		}
		return next, nil
	}
	return nil, errTooManyAttempts
}

func encodeDeck(deck []dealer.Point) []string {
	out := make([]string, len(deck))
	for i, pt := range deck {
		out[i] = pt.Hex()
	}
	return out
}

func decodeDeck(deck []string, want int) ([]dealer.Point, error) {
	if len(deck) != want {
		return nil, violation("deck carries %d cards, want %d", len(deck), want)
	}
	out := make([]dealer.Point, len(deck))
	for i, s := range deck {
		pt, err := dealer.ParsePoint(s)
		if err != nil {
			return nil, violation("card %d: %v", i, err)
		}
		out[i] = pt
	}
	return out, nil
}
