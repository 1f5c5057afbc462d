package peer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"

	"github.com/pokerp2p/pokerp2p/contract"
)

// ConsoleOperator drives the session from an interactive terminal.
type ConsoleOperator struct{}

var _ Operator = ConsoleOperator{}

func (ConsoleOperator) ApproveTable(opponent common.Address, terms contract.Terms) error {
	pterm.DefaultBox.WithTitle(pterm.LightYellow("|TABLE|")).WithTitleTopCenter().Printfln(
		"opponent: %s\nbuy-in: %s wei\nduration: %ds\ndispute window: %ds",
		opponent.Hex(), terms.BuyIn.String(), terms.Duration, terms.DisputeDuration)
	confirm, _ := pterm.DefaultInteractiveConfirm.
		WithDefaultText("Open this table?").
		WithDefaultValue(true).
		Show()
	if !confirm {
		return errors.New("table rejected")
	}
	return nil
}

func (ConsoleOperator) ChooseAction(view HandView) (Decision, error) {
	pterm.DefaultBox.WithTitle(pterm.LightGreen("|YOUR TURN|")).WithTitleTopCenter().Printfln(
		"your card: %s\nyour stack: %s  opp stack: %s\npot: %s  to call: %s",
		view.Card, view.MyStack, view.OppStack, view.Pot, view.ToCall)

	selected, _ := pterm.DefaultInteractiveSelect.
		WithDefaultText("Select your next action").
		WithOptions([]string{"fold", "call", "raise"}).
		Show()

	switch selected {
	case "fold":
		return Decision{Action: ActionFold}, nil
	case "call":
		return Decision{Action: ActionCall}, nil
	case "raise":
		input, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(pterm.Sprintf("Enter the raise in wei (minimum %s)", view.MinRaise)).
			Show()
		amount, ok := new(big.Int).SetString(input, 10)
		if !ok {
			pterm.Warning.Println("not a number, treating as minimum raise")
			amount = new(big.Int).Set(view.MinRaise)
		}
		return Decision{Action: ActionRaise, Raise: amount}, nil
	}
	return Decision{}, errors.Errorf("unknown action %q", selected)
}

func (ConsoleOperator) ShowShowdown(view ShowdownView) {
	outcome := pterm.LightRed("you lost")
	if view.Tied {
		outcome = pterm.LightYellow("split pot")
	} else if view.Won {
		outcome = pterm.LightGreen("you won")
	}
	pterm.DefaultBox.WithTitle(pterm.LightGreen("|SHOWDOWN|")).WithTitleTopCenter().Printfln(
		"your card: %s  opp card: %s\n%s", view.MyCard, view.OppCard, outcome)
}

func (ConsoleOperator) ChooseContinuation(myStack, oppStack *big.Int) (Continuation, error) {
	pterm.Info.Printfln("your stack: %s  opp stack: %s", myStack, oppStack)
	selected, _ := pterm.DefaultInteractiveSelect.
		WithDefaultText("Hand settled").
		WithOptions([]string{"continue playing", "cash out"}).
		Show()
	if selected == "cash out" {
		return CashOut, nil
	}
	return ContinuePlaying, nil
}
