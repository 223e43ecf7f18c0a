package system

import (
	"context"
	"math/big"

	"cdpcore/crypto"
	"cdpcore/native/borrowing"
	"cdpcore/native/liquidation"
	"cdpcore/native/troves"
)

// OpenTrove opens a position on the named collateral.
func (s *System) OpenTrove(ctx context.Context, caller crypto.Address, collateral string, req borrowing.OpenRequest) error {
	return s.execute(ctx, call{op: "open_trove", collateral: collateral, account: req.Account}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		return s.gateway.OpenTrove(caller, l.token, req)
	})
}

// AdjustTrove changes the collateral and debt of an open position.
func (s *System) AdjustTrove(ctx context.Context, caller crypto.Address, collateral string, req borrowing.AdjustRequest) error {
	return s.execute(ctx, call{op: "adjust_trove", collateral: collateral, account: req.Account}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		return s.gateway.AdjustTrove(caller, l.token, req)
	})
}

// CloseTrove repays and closes the account's position.
func (s *System) CloseTrove(ctx context.Context, caller crypto.Address, collateral string, account crypto.Address) error {
	return s.execute(ctx, call{op: "close_trove", collateral: collateral, account: account}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		return s.gateway.CloseTrove(caller, l.token, account)
	})
}

// SetDelegateApproval lets delegate operate the caller's positions.
func (s *System) SetDelegateApproval(ctx context.Context, caller, delegate crypto.Address, approved bool) error {
	return s.execute(ctx, call{op: "set_delegate", account: caller}, func() error {
		return s.gateway.SetDelegateApproval(caller, delegate, approved)
	})
}

// RedeemCollateral swaps the caller's debt tokens for collateral at face value.
func (s *System) RedeemCollateral(ctx context.Context, caller crypto.Address, collateral string, amount *big.Int, hints troves.RedemptionHints, maxIterations uint64, maxFeePercentage *big.Int) (*troves.RedemptionResult, error) {
	var result *troves.RedemptionResult
	err := s.execute(ctx, call{op: "redeem", collateral: collateral, account: caller}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		result, err = l.manager.RedeemCollateral(caller, amount, hints, maxIterations, maxFeePercentage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClaimCollateral pays the caller's collateral surplus to receiver.
func (s *System) ClaimCollateral(ctx context.Context, caller crypto.Address, collateral string, receiver crypto.Address) (*big.Int, error) {
	var claimed *big.Int
	err := s.execute(ctx, call{op: "claim_surplus", collateral: collateral, account: caller}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		claimed, err = l.manager.ClaimCollateral(caller, receiver)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CollectInterests mints accrued interest of the named ledger to the fee
// receiver.
func (s *System) CollectInterests(ctx context.Context, collateral string) (*big.Int, error) {
	var collected *big.Int
	err := s.execute(ctx, call{op: "collect_interests", collateral: collateral}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		collected, err = l.manager.CollectInterests()
		return err
	})
	if err != nil {
		return nil, err
	}
	return collected, nil
}

func (s *System) liquidate(ctx context.Context, op, collateral string, caller crypto.Address, run func(tm liquidation.TroveManager) (*liquidation.Totals, error)) (*liquidation.Totals, error) {
	var totals *liquidation.Totals
	err := s.execute(ctx, call{op: op, collateral: collateral, account: caller}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		totals, err = run(l.manager)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordLiquidation(collateral, totals)
	return totals, nil
}

// Liquidate liquidates a single position. The caller receives the gas
// compensation.
func (s *System) Liquidate(ctx context.Context, caller crypto.Address, collateral string, borrower crypto.Address) (*liquidation.Totals, error) {
	return s.liquidate(ctx, "liquidate", collateral, caller, func(tm liquidation.TroveManager) (*liquidation.Totals, error) {
		return s.liquidation.Liquidate(tm, caller, borrower)
	})
}

// LiquidateTroves walks the sorted list from the riskiest position.
func (s *System) LiquidateTroves(ctx context.Context, caller crypto.Address, collateral string, maxTroves uint64, maxICR *big.Int) (*liquidation.Totals, error) {
	return s.liquidate(ctx, "liquidate_troves", collateral, caller, func(tm liquidation.TroveManager) (*liquidation.Totals, error) {
		return s.liquidation.LiquidateTroves(tm, caller, maxTroves, maxICR)
	})
}

// BatchLiquidateTroves liquidates the listed borrowers that are eligible.
func (s *System) BatchLiquidateTroves(ctx context.Context, caller crypto.Address, collateral string, borrowers []crypto.Address) (*liquidation.Totals, error) {
	return s.liquidate(ctx, "batch_liquidate", collateral, caller, func(tm liquidation.TroveManager) (*liquidation.Totals, error) {
		return s.liquidation.BatchLiquidateTroves(tm, caller, borrowers)
	})
}

// ProvideToSP deposits debt tokens into the stability pool.
func (s *System) ProvideToSP(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return s.execute(ctx, call{op: "provide_to_sp", account: caller}, func() error {
		return s.pool.ProvideToSP(caller, amount)
	})
}

// WithdrawFromSP withdraws up to amount of the caller's compounded deposit.
func (s *System) WithdrawFromSP(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	var withdrawn *big.Int
	err := s.execute(ctx, call{op: "withdraw_from_sp", account: caller}, func() error {
		var err error
		withdrawn, err = s.pool.WithdrawFromSP(caller, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// ClaimCollateralGains pays the caller's gains for the given slots to
// receiver.
func (s *System) ClaimCollateralGains(ctx context.Context, caller, receiver crypto.Address, indexes []uint64) ([]*big.Int, error) {
	var gains []*big.Int
	err := s.execute(ctx, call{op: "claim_collateral_gains", account: caller}, func() error {
		var err error
		gains, err = s.pool.ClaimCollateralGains(caller, receiver, indexes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return gains, nil
}

// ClaimReward pays the caller's vested emission to receiver.
func (s *System) ClaimReward(ctx context.Context, caller, receiver crypto.Address) (*big.Int, error) {
	var reward *big.Int
	err := s.execute(ctx, call{op: "claim_reward", account: caller}, func() error {
		var err error
		reward, err = s.pool.ClaimReward(caller, receiver)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// StartSunset winds down the named ledger and its stability pool slot.
// Owner only.
func (s *System) StartSunset(ctx context.Context, caller crypto.Address, collateral string) error {
	return s.execute(ctx, call{op: "start_sunset", collateral: collateral, account: caller}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		if err := l.manager.StartSunset(caller); err != nil {
			return err
		}
		return s.pool.StartCollateralSunset(caller, l.token)
	})
}

// SetParameters replaces the governance parameters of the named ledger.
// Owner only.
func (s *System) SetParameters(ctx context.Context, caller crypto.Address, collateral string, params troves.Parameters) error {
	return s.execute(ctx, call{op: "set_parameters", collateral: collateral, account: caller}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		return l.manager.SetParameters(caller, params)
	})
}

// RemoveCollateral drops a fully repaid sunset ledger from the system TCR.
func (s *System) RemoveCollateral(ctx context.Context, collateral string) error {
	return s.execute(ctx, call{op: "remove_collateral", collateral: collateral}, func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		return s.gateway.RemoveTroveManager(l.token)
	})
}

// SetPaused toggles the protocol-wide pause. Owner or guardian.
func (s *System) SetPaused(ctx context.Context, caller crypto.Address, paused bool) error {
	return s.execute(ctx, call{op: "set_paused", account: caller}, func() error {
		return s.core.SetPaused(caller, paused)
	})
}

// SetModulePaused toggles the pause of a single module. Owner or guardian.
func (s *System) SetModulePaused(ctx context.Context, caller crypto.Address, module string, paused bool) error {
	return s.execute(ctx, call{op: "set_module_paused", account: caller}, func() error {
		return s.core.SetModulePaused(caller, module, paused)
	})
}

// CreditCollateral mints bridged collateral to account. Owner only.
func (s *System) CreditCollateral(ctx context.Context, caller crypto.Address, collateral string, account crypto.Address, amount *big.Int) error {
	return s.execute(ctx, call{op: "credit_collateral", collateral: collateral, account: account}, func() error {
		if err := s.core.RequireOwner(caller); err != nil {
			return err
		}
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		return s.bank.Mint(l.token, account, amount)
	})
}

// SubmitPrice records a new round for the named collateral on the built-in
// price source. Owner only.
func (s *System) SubmitPrice(ctx context.Context, caller crypto.Address, collateral string, answer *big.Int, decimals uint8) (uint64, error) {
	var round uint64
	err := s.execute(ctx, call{op: "submit_price", collateral: collateral, account: caller}, func() error {
		if err := s.core.RequireOwner(caller); err != nil {
			return err
		}
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		if answer == nil || answer.Sign() <= 0 {
			return errInvalidPrice
		}
		round, err = s.rounds.Push(l.token, answer, decimals, s.ts)
		return err
	})
	if err != nil {
		return 0, err
	}
	return round, nil
}
