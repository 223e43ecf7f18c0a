package events

import (
	"math/big"

	"cdpcore/core/types"
	"cdpcore/crypto"
)

const (
	// TypeTransfer is emitted for every token balance movement between accounts.
	TypeTransfer = "token.transfer"
)

type Transfer struct {
	Token  crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"token":  addressString(e.Token),
		"from":   addressString(e.From),
		"to":     addressString(e.To),
		"amount": amountString(e.Amount),
	}}
}
