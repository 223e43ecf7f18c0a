package events

import (
	"math/big"
	"strconv"
	"strings"

	"cdpcore/core/types"
	"cdpcore/crypto"
)

const (
	// TypeStabilityOffset records debt absorbed by the pool in exchange for collateral.
	TypeStabilityOffset = "stability.offset"
	// TypeStabilityProductUpdated tracks P, epoch and scale transitions.
	TypeStabilityProductUpdated = "stability.productUpdated"
	// TypeStabilityDepositUpdated is emitted with a depositor's new compounded deposit.
	TypeStabilityDepositUpdated = "stability.depositUpdated"
	// TypeStabilityCollateralGains is emitted when collateral gains are paid out.
	TypeStabilityCollateralGains = "stability.collateralGainsWithdrawn"
	// TypeStabilityRewardClaimed is emitted when vested emissions are claimed.
	TypeStabilityRewardClaimed = "stability.rewardClaimed"
	// TypeStabilityCollateralEnabled records a collateral slot assignment.
	TypeStabilityCollateralEnabled = "stability.collateralEnabled"
	// TypeStabilityCollateralOverwritten records reuse of an expired sunset slot.
	TypeStabilityCollateralOverwritten = "stability.collateralOverwritten"
	// TypeStabilityCollateralSunset records the start of a collateral sunset window.
	TypeStabilityCollateralSunset = "stability.collateralSunset"
)

type StabilityOffset struct {
	Collateral crypto.Address
	Index      uint64
	DebtLoss   *big.Int
	CollGain   *big.Int
	Remaining  *big.Int
}

func (StabilityOffset) EventType() string { return TypeStabilityOffset }

func (e StabilityOffset) Event() *types.Event {
	return &types.Event{Type: TypeStabilityOffset, Attributes: map[string]string{
		"collateral": addressString(e.Collateral),
		"index":      strconv.FormatUint(e.Index, 10),
		"debtLoss":   amountString(e.DebtLoss),
		"collGain":   amountString(e.CollGain),
		"remaining":  amountString(e.Remaining),
	}}
}

type StabilityProductUpdated struct {
	P     *big.Int
	Epoch uint64
	Scale uint64
}

func (StabilityProductUpdated) EventType() string { return TypeStabilityProductUpdated }

func (e StabilityProductUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStabilityProductUpdated, Attributes: map[string]string{
		"p":     amountString(e.P),
		"epoch": strconv.FormatUint(e.Epoch, 10),
		"scale": strconv.FormatUint(e.Scale, 10),
	}}
}

type StabilityDepositUpdated struct {
	Depositor crypto.Address
	Deposit   *big.Int
	P         *big.Int
	G         *big.Int
}

func (StabilityDepositUpdated) EventType() string { return TypeStabilityDepositUpdated }

func (e StabilityDepositUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStabilityDepositUpdated, Attributes: map[string]string{
		"depositor": addressString(e.Depositor),
		"deposit":   amountString(e.Deposit),
		"p":         amountString(e.P),
		"g":         amountString(e.G),
	}}
}

// StabilityCollateralGains lists the amounts paid per collateral slot.
type StabilityCollateralGains struct {
	Depositor   crypto.Address
	Receiver    crypto.Address
	Collaterals []crypto.Address
	Amounts     []*big.Int
}

func (StabilityCollateralGains) EventType() string { return TypeStabilityCollateralGains }

func (e StabilityCollateralGains) Event() *types.Event {
	tokens := make([]string, len(e.Collaterals))
	for i, c := range e.Collaterals {
		tokens[i] = addressString(c)
	}
	return &types.Event{Type: TypeStabilityCollateralGains, Attributes: map[string]string{
		"depositor":   addressString(e.Depositor),
		"receiver":    addressString(e.Receiver),
		"collaterals": strings.Join(tokens, ","),
		"amounts":     amountList(e.Amounts),
	}}
}

type StabilityRewardClaimed struct {
	Depositor crypto.Address
	Receiver  crypto.Address
	Amount    *big.Int
}

func (StabilityRewardClaimed) EventType() string { return TypeStabilityRewardClaimed }

func (e StabilityRewardClaimed) Event() *types.Event {
	return &types.Event{Type: TypeStabilityRewardClaimed, Attributes: map[string]string{
		"depositor": addressString(e.Depositor),
		"receiver":  addressString(e.Receiver),
		"amount":    amountString(e.Amount),
	}}
}

// StabilityCollateral covers enable, overwrite and sunset of a collateral slot.
type StabilityCollateral struct {
	Kind       string
	Collateral crypto.Address
	Index      uint64
	Expiry     uint64
}

func (e StabilityCollateral) EventType() string { return e.Kind }

func (e StabilityCollateral) Event() *types.Event {
	attrs := map[string]string{
		"collateral": addressString(e.Collateral),
		"index":      strconv.FormatUint(e.Index, 10),
	}
	if e.Expiry > 0 {
		attrs["expiry"] = strconv.FormatUint(e.Expiry, 10)
	}
	return &types.Event{Type: e.Kind, Attributes: attrs}
}
