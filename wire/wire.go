// Package wire defines the newline delimited JSON protocol two peers speak.
// Every line is one message tagged by its msgtype field.
package wire

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// Message type tags.
const (
	TypeHello    = "hello"
	TypeCreate   = "create"
	TypeJoin     = "join"
	TypeShuffle  = "shuffle"
	TypeHand     = "hand"
	TypeHandover = "handover"
)

// Hand message subtypes: a proposal asks for a countersignature on
// next_state, an acceptance additionally carries the peer's signature on the
// previous proposal.
const (
	HandPropose = 1
	HandAccept  = 2
)

// Message is any protocol message.
type Message interface {
	Type() string
}

// Hello opens a connection. Both sides send one; the responder's copy
// carries the table terms. The Nonce travels in the sessionID field and is
// this peer's contribution to the session identifier.
type Hello struct {
	Address         string `json:"address"`
	Nonce           string `json:"sessionID"`
	BuyIn           string `json:"buyin,omitempty"`
	Duration        uint64 `json:"duration,omitempty"`
	JoinDuration    uint64 `json:"join_duration,omitempty"`
	DisputeDuration uint64 `json:"dispute_duration,omitempty"`
}

func (Hello) Type() string { return TypeHello }

// Create carries the initiator's signature over the table opening terms.
type Create struct {
	V uint8        `json:"v"`
	R *hexutil.Big `json:"r"`
	S *hexutil.Big `json:"s"`
}

func (Create) Type() string { return TypeCreate }

// Join reports the open transaction so the counterparty can join on ledger.
type Join struct {
	Tx    string `json:"tx"`
	BuyIn string `json:"buyin"`
}

func (Join) Type() string { return TypeJoin }

// Shuffle is one round of the deck handshake. Rounds one and two carry
// masked decks, round three carries the dealt cards plus the sender's view
// key share, round four hands over an already dealt deck to pass first
// action.
type Shuffle struct {
	Round int          `json:"round"`
	Deck  []string     `json:"deck"`
	Key   *hexutil.Big `json:"key,omitempty"`
}

func (Shuffle) Type() string { return TypeShuffle }

// Hand proposes or accepts a state transition. States are hex encoded
// canonical tuples; PrevV and friends are only present when the sender also
// countersigns the state it builds on.
type Hand struct {
	Subtype   int          `json:"type"`
	PrevState string       `json:"previous_state"`
	NextState string       `json:"next_state"`
	NextV     uint8        `json:"next_v"`
	NextR     *hexutil.Big `json:"next_r"`
	NextS     *hexutil.Big `json:"next_s"`
	PrevV     uint8        `json:"prev_v,omitempty"`
	PrevR     *hexutil.Big `json:"prev_r,omitempty"`
	PrevS     *hexutil.Big `json:"prev_s,omitempty"`
}

func (Hand) Type() string { return TypeHand }

// Handover closes a hand: it countersigns the settled state and either
// passes play to the next hand or, with Stop set, announces the session end
// settlement transaction.
type Handover struct {
	PrevState string       `json:"previous_state"`
	PrevV     uint8        `json:"prev_v"`
	PrevR     *hexutil.Big `json:"prev_r"`
	PrevS     *hexutil.Big `json:"prev_s"`
	Stop      int          `json:"stop"`
	Tx        string       `json:"tx"`
}

func (Handover) Type() string { return TypeHandover }

type envelope struct {
	MsgType string `json:"msgtype"`
}

// Marshal encodes a message with its msgtype tag and a trailing newline.
func Marshal(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshal")
	}
	tag, err := json.Marshal(envelope{MsgType: msg.Type()})
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshal tag")
	}
	// Splice the tag into the message object.
	var out []byte
	if len(body) == 2 {
		out = tag
	} else {
		out = append(body[:len(body)-1], ',')
		out = append(out, tag[1:]...)
	}
	return append(out, '\n'), nil
}

// Unmarshal decodes one line into its concrete message type.
func Unmarshal(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, errors.Wrap(err, "wire: unmarshal tag")
	}

	var msg Message
	switch env.MsgType {
	case TypeHello:
		msg = &Hello{}
	case TypeCreate:
		msg = &Create{}
	case TypeJoin:
		msg = &Join{}
	case TypeShuffle:
		msg = &Shuffle{}
	case TypeHand:
		msg = &Hand{}
	case TypeHandover:
		msg = &Handover{}
	default:
		return nil, errors.Errorf("wire: unknown msgtype %q", env.MsgType)
	}
	if err := json.Unmarshal(line, msg); err != nil {
		return nil, errors.Wrapf(err, "wire: unmarshal %s", env.MsgType)
	}
	return msg, nil
}
