package events

import (
	"math/big"
	"strings"

	"cdpcore/core/types"
	"cdpcore/crypto"
)

const (
	// TypeTokenSupply is emitted whenever a token supply changes.
	TypeTokenSupply = "token.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
)

// TokenSupply captures a supply delta for a fungible token.
type TokenSupply struct {
	Token   crypto.Address
	Account crypto.Address
	Total   *big.Int
	Delta   *big.Int
	Reason  string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{
		"token": addressString(e.Token),
		"total": amountString(e.Total),
	}
	if !e.Account.IsZero() {
		attrs["account"] = addressString(e.Account)
	}
	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}
	reason := strings.TrimSpace(e.Reason)
	if reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
