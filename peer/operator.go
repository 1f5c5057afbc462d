package peer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/dealer"
)

// Action is a betting decision.
type Action int

const (
	ActionFold Action = iota
	ActionCall
	ActionRaise
)

// Decision is one betting turn. Raise is only read for ActionRaise.
type Decision struct {
	Action Action
	Raise  *big.Int
}

// Continuation decides what happens after a settled hand.
type Continuation int

const (
	ContinuePlaying Continuation = iota
	CashOut
)

// HandView is what the operator sees when asked to act.
type HandView struct {
	Card     dealer.Card
	MyStack  *big.Int
	OppStack *big.Int
	Pot      *big.Int
	ToCall   *big.Int
	MinRaise *big.Int
}

// ShowdownView is shown once both cards are open.
type ShowdownView struct {
	MyCard  dealer.Card
	OppCard dealer.Card
	Won     bool
	Tied    bool
}

// Operator supplies the human decisions the protocol blocks on. Returning an
// error aborts the session.
type Operator interface {
	// ApproveTable is asked before signing the table opening terms.
	ApproveTable(opponent common.Address, terms contract.Terms) error
	// ChooseAction picks fold, call or raise for the current turn.
	ChooseAction(view HandView) (Decision, error)
	// ShowShowdown reports the outcome of a finished showdown.
	ShowShowdown(view ShowdownView)
	// ChooseContinuation decides between another hand and cashing out.
	ChooseContinuation(myStack, oppStack *big.Int) (Continuation, error)
}

// ErrOperatorAbort wraps an operator refusal.
var ErrOperatorAbort = errors.New("peer: operator aborted")

// maxDecisionAttempts bounds how often the operator may produce a decision
// that fails local validation before the session is torn down.
const maxDecisionAttempts = 8

var errTooManyAttempts = errors.New("peer: too many invalid decisions")
