package events

import (
	"math/big"
	"strconv"

	"cdpcore/core/types"
	"cdpcore/crypto"
)

const (
	// TypeTroveUpdated is emitted whenever a position's collateral, debt or stake changes.
	TypeTroveUpdated = "trove.updated"
	// TypeTroveOpened is emitted when a new position enters the owners array.
	TypeTroveOpened = "trove.opened"
	// TypeBorrowingFeePaid records the debt-token fee charged on a debt increase.
	TypeBorrowingFeePaid = "trove.borrowingFeePaid"
	// TypeRedemption summarises a redemption walk.
	TypeRedemption = "trove.redemption"
	// TypeTroveLiquidated records a single liquidated position.
	TypeTroveLiquidated = "trove.liquidated"
	// TypeLiquidation summarises one liquidation call across all positions it touched.
	TypeLiquidation = "trove.liquidation"
	// TypeRedistribution records debt and collateral spread over active stakes.
	TypeRedistribution = "trove.redistribution"
	// TypeCollateralSurplusClaimed is emitted when a borrower withdraws their surplus.
	TypeCollateralSurplusClaimed = "trove.surplusClaimed"
	// TypeInterestCollected is emitted when accrued interest is minted to the fee receiver.
	TypeInterestCollected = "trove.interestCollected"
	// TypeSunsetStarted marks the irreversible start of a ledger's sunset.
	TypeSunsetStarted = "trove.sunsetStarted"
	// TypeDelegateApproval records delegate approvals granted or revoked on the gateway.
	TypeDelegateApproval = "trove.delegateApproval"
	// TypeCollateralConfigured is emitted when a ledger joins the system TCR set.
	TypeCollateralConfigured = "trove.collateralConfigured"
	// TypeTroveManagerRemoved is emitted when a drained sunset ledger leaves the TCR set.
	TypeTroveManagerRemoved = "trove.managerRemoved"

	OperationOpen        = "open"
	OperationAdjust      = "adjust"
	OperationClose       = "close"
	OperationRedeem      = "redeem"
	OperationLiquidate   = "liquidate"
	OperationApplyReward = "applyPendingRewards"
)

// TroveUpdated captures the post-operation state of a position.
type TroveUpdated struct {
	Collateral crypto.Address
	Borrower   crypto.Address
	Debt       *big.Int
	Coll       *big.Int
	Stake      *big.Int
	Operation  string
}

// EventType satisfies the Event interface.
func (TroveUpdated) EventType() string { return TypeTroveUpdated }

// Event renders the attribute map.
func (e TroveUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeTroveUpdated,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"borrower":   addressString(e.Borrower),
			"debt":       amountString(e.Debt),
			"coll":       amountString(e.Coll),
			"stake":      amountString(e.Stake),
			"operation":  e.Operation,
		},
	}
}

// TroveOpened records the owners-array slot assigned to a new position.
type TroveOpened struct {
	Collateral crypto.Address
	Borrower   crypto.Address
	ArrayIndex uint64
}

// EventType satisfies the Event interface.
func (TroveOpened) EventType() string { return TypeTroveOpened }

// Event renders the attribute map.
func (e TroveOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeTroveOpened,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"borrower":   addressString(e.Borrower),
			"arrayIndex": strconv.FormatUint(e.ArrayIndex, 10),
		},
	}
}

type BorrowingFeePaid struct {
	Collateral crypto.Address
	Borrower   crypto.Address
	Fee        *big.Int
}

// EventType satisfies the Event interface.
func (BorrowingFeePaid) EventType() string { return TypeBorrowingFeePaid }

// Event renders the attribute map.
func (e BorrowingFeePaid) Event() *types.Event {
	return &types.Event{
		Type: TypeBorrowingFeePaid,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"borrower":   addressString(e.Borrower),
			"fee":        amountString(e.Fee),
		},
	}
}

// Redemption summarises a redemption call.
type Redemption struct {
	Collateral      crypto.Address
	Redeemer        crypto.Address
	AttemptedDebt   *big.Int
	ActualDebt      *big.Int
	CollateralSent  *big.Int
	CollateralFee   *big.Int
	TrovesRedeemed  uint64
	ResultingBaseRt *big.Int
}

// EventType satisfies the Event interface.
func (Redemption) EventType() string { return TypeRedemption }

// Event renders the attribute map.
func (e Redemption) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemption,
		Attributes: map[string]string{
			"collateral":     addressString(e.Collateral),
			"redeemer":       addressString(e.Redeemer),
			"attemptedDebt":  amountString(e.AttemptedDebt),
			"actualDebt":     amountString(e.ActualDebt),
			"collateralSent": amountString(e.CollateralSent),
			"collateralFee":  amountString(e.CollateralFee),
			"troves":         strconv.FormatUint(e.TrovesRedeemed, 10),
			"baseRate":       amountString(e.ResultingBaseRt),
		},
	}
}

// TroveLiquidated records the outcome for a single liquidated position.
type TroveLiquidated struct {
	Collateral crypto.Address
	Borrower   crypto.Address
	Debt       *big.Int
	Coll       *big.Int
	Mode       string
}

// EventType satisfies the Event interface.
func (TroveLiquidated) EventType() string { return TypeTroveLiquidated }

// Event renders the attribute map.
func (e TroveLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeTroveLiquidated,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"borrower":   addressString(e.Borrower),
			"debt":       amountString(e.Debt),
			"coll":       amountString(e.Coll),
			"mode":       e.Mode,
		},
	}
}

// Liquidation aggregates every position liquidated by a single call.
type Liquidation struct {
	Collateral        crypto.Address
	Liquidator        crypto.Address
	Liquidated        uint64
	DebtInSequence    *big.Int
	CollInSequence    *big.Int
	DebtOffset        *big.Int
	CollToSP          *big.Int
	DebtRedistributed *big.Int
	CollRedistributed *big.Int
	CollSurplus       *big.Int
	DebtGasComp       *big.Int
	CollGasComp       *big.Int
}

// EventType satisfies the Event interface.
func (Liquidation) EventType() string { return TypeLiquidation }

// Event renders the attribute map.
func (e Liquidation) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidation,
		Attributes: map[string]string{
			"collateral":        addressString(e.Collateral),
			"liquidator":        addressString(e.Liquidator),
			"liquidated":        strconv.FormatUint(e.Liquidated, 10),
			"debtInSequence":    amountString(e.DebtInSequence),
			"collInSequence":    amountString(e.CollInSequence),
			"debtOffset":        amountString(e.DebtOffset),
			"collToSP":          amountString(e.CollToSP),
			"debtRedistributed": amountString(e.DebtRedistributed),
			"collRedistributed": amountString(e.CollRedistributed),
			"collSurplus":       amountString(e.CollSurplus),
			"debtGasComp":       amountString(e.DebtGasComp),
			"collGasComp":       amountString(e.CollGasComp),
		},
	}
}

// Redistribution records the per-stake reward increments applied by a liquidation.
type Redistribution struct {
	Collateral   crypto.Address
	Debt         *big.Int
	Coll         *big.Int
	LCollateral  *big.Int
	LDebt        *big.Int
	TotalStakes  *big.Int
}

// EventType satisfies the Event interface.
func (Redistribution) EventType() string { return TypeRedistribution }

// Event renders the attribute map.
func (e Redistribution) Event() *types.Event {
	return &types.Event{
		Type: TypeRedistribution,
		Attributes: map[string]string{
			"collateral":  addressString(e.Collateral),
			"debt":        amountString(e.Debt),
			"coll":        amountString(e.Coll),
			"lCollateral": amountString(e.LCollateral),
			"lDebt":       amountString(e.LDebt),
			"totalStakes": amountString(e.TotalStakes),
		},
	}
}

type CollateralSurplusClaimed struct {
	Collateral crypto.Address
	Borrower   crypto.Address
	Receiver   crypto.Address
	Amount     *big.Int
}

// EventType satisfies the Event interface.
func (CollateralSurplusClaimed) EventType() string { return TypeCollateralSurplusClaimed }

// Event renders the attribute map.
func (e CollateralSurplusClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralSurplusClaimed,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"borrower":   addressString(e.Borrower),
			"receiver":   addressString(e.Receiver),
			"amount":     amountString(e.Amount),
		},
	}
}

type InterestCollected struct {
	Collateral crypto.Address
	Receiver   crypto.Address
	Amount     *big.Int
}

// EventType satisfies the Event interface.
func (InterestCollected) EventType() string { return TypeInterestCollected }

// Event renders the attribute map.
func (e InterestCollected) Event() *types.Event {
	return &types.Event{
		Type: TypeInterestCollected,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"receiver":   addressString(e.Receiver),
			"amount":     amountString(e.Amount),
		},
	}
}

type SunsetStarted struct {
	Collateral crypto.Address
	Timestamp  uint64
}

// EventType satisfies the Event interface.
func (SunsetStarted) EventType() string { return TypeSunsetStarted }

// Event renders the attribute map.
func (e SunsetStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeSunsetStarted,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

type DelegateApproval struct {
	Account  crypto.Address
	Delegate crypto.Address
	Approved bool
}

// EventType satisfies the Event interface.
func (DelegateApproval) EventType() string { return TypeDelegateApproval }

// Event renders the attribute map.
func (e DelegateApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegateApproval,
		Attributes: map[string]string{
			"account":  addressString(e.Account),
			"delegate": addressString(e.Delegate),
			"approved": strconv.FormatBool(e.Approved),
		},
	}
}

type CollateralConfigured struct {
	Collateral crypto.Address
	MCR        *big.Int
}

// EventType satisfies the Event interface.
func (CollateralConfigured) EventType() string { return TypeCollateralConfigured }

// Event renders the attribute map.
func (e CollateralConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralConfigured,
		Attributes: map[string]string{
			"collateral": addressString(e.Collateral),
			"mcr":        amountString(e.MCR),
		},
	}
}

type TroveManagerRemoved struct {
	Collateral crypto.Address
}

// EventType satisfies the Event interface.
func (TroveManagerRemoved) EventType() string { return TypeTroveManagerRemoved }

// Event renders the attribute map.
func (e TroveManagerRemoved) Event() *types.Event {
	return &types.Event{
		Type:       TypeTroveManagerRemoved,
		Attributes: map[string]string{"collateral": addressString(e.Collateral)},
	}
}
