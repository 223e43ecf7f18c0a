package config

import (
	"fmt"
	"math/big"
	"strings"

	"cdpcore/crypto"
	"cdpcore/native/troves"
)

const (
	DefaultDebtToken       = "debt-token"
	DefaultRewardToken     = "reward-token"
	DefaultOracleHeartbeat = uint64(3600)
)

// Collateral lists one collateral ledger. Amount fields are 18-decimal
// integers written as strings; empty fields keep the stock parameter.
type Collateral struct {
	Name                string `toml:"Name"`
	MCR                 string `toml:"MCR"`
	MinuteDecayFactor   string `toml:"MinuteDecayFactor"`
	RedemptionFeeFloor  string `toml:"RedemptionFeeFloor"`
	MaxRedemptionFee    string `toml:"MaxRedemptionFee"`
	BorrowingFeeFloor   string `toml:"BorrowingFeeFloor"`
	MaxBorrowingFee     string `toml:"MaxBorrowingFee"`
	InterestRateBps     uint64 `toml:"InterestRateBps"`
	MaxSystemDebt       string `toml:"MaxSystemDebt"`
	DebtGasCompensation string `toml:"DebtGasCompensation"`
	MinNetDebt          string `toml:"MinNetDebt"`
	OracleHeartbeat     uint64 `toml:"OracleHeartbeat"`
}

// Token returns the module account used as the collateral token identifier.
func (c Collateral) Token() crypto.Address {
	return crypto.ModuleAddress("collateral/" + c.Name)
}

// Parameters parses the table into ledger parameters.
func (c Collateral) Parameters() (troves.Parameters, error) {
	params := troves.DefaultParameters()
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"MCR", c.MCR, &params.MCR},
		{"MinuteDecayFactor", c.MinuteDecayFactor, &params.MinuteDecayFactor},
		{"RedemptionFeeFloor", c.RedemptionFeeFloor, &params.RedemptionFeeFloor},
		{"MaxRedemptionFee", c.MaxRedemptionFee, &params.MaxRedemptionFee},
		{"BorrowingFeeFloor", c.BorrowingFeeFloor, &params.BorrowingFeeFloor},
		{"MaxBorrowingFee", c.MaxBorrowingFee, &params.MaxBorrowingFee},
		{"MaxSystemDebt", c.MaxSystemDebt, &params.MaxSystemDebt},
		{"DebtGasCompensation", c.DebtGasCompensation, &params.DebtGasCompensation},
		{"MinNetDebt", c.MinNetDebt, &params.MinNetDebt},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		value, err := parseUintAmount(f.raw)
		if err != nil {
			return params, fmt.Errorf("invalid collateral.%s.%s: %w", c.Name, f.name, err)
		}
		*f.dst = value
	}
	params.InterestRateBps = c.InterestRateBps
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("collateral %s: %w", c.Name, err)
	}
	return params, nil
}

// Emission parses the weekly stability pool emission.
func (c *Config) Emission() (*big.Int, error) {
	value, err := parseUintAmount(c.SPWeeklyEmission)
	if err != nil {
		return nil, fmt.Errorf("invalid SPWeeklyEmission: %w", err)
	}
	return value, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", raw)
	}
	return value, nil
}
