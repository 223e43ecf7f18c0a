package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"cdpcore/core/system"
	"cdpcore/crypto"
	"cdpcore/native/liquidation"
	"cdpcore/native/troves"
	"cdpcore/services/cdpd/indexer"
)

const requestLimit = 1 << 20 // 1 MiB

// decodeRequest reads a JSON body into dst, refusing unknown fields.
func decodeRequest(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, requestLimit)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// parseAmount parses a base-10 integer amount in base units. Empty input
// yields zero.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", field, raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%s: must not be negative", field)
	}
	return value, nil
}

// optionalAmount is parseAmount that keeps nil for empty input.
func optionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAmounts(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = formatAmount(v)
	}
	return out
}

type openTroveRequest struct {
	Account   crypto.Address `json:"account"`
	Coll      string         `json:"coll"`
	Debt      string         `json:"debt"`
	MaxFee    string         `json:"max_fee"`
	UpperHint crypto.Address `json:"upper_hint"`
	LowerHint crypto.Address `json:"lower_hint"`
}

type adjustTroveRequest struct {
	Account        crypto.Address `json:"account"`
	CollDeposit    string         `json:"coll_deposit"`
	CollWithdrawal string         `json:"coll_withdrawal"`
	DebtChange     string         `json:"debt_change"`
	IsDebtIncrease bool           `json:"is_debt_increase"`
	MaxFee         string         `json:"max_fee"`
	UpperHint      crypto.Address `json:"upper_hint"`
	LowerHint      crypto.Address `json:"lower_hint"`
}

type accountRequest struct {
	Account crypto.Address `json:"account"`
}

type receiverRequest struct {
	Receiver crypto.Address `json:"receiver"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type redeemRequest struct {
	Amount        string         `json:"amount"`
	MaxFee        string         `json:"max_fee"`
	MaxIterations uint64         `json:"max_iterations"`
	FirstHint     crypto.Address `json:"first_hint"`
	UpperHint     crypto.Address `json:"upper_hint"`
	LowerHint     crypto.Address `json:"lower_hint"`
}

type liquidateRequest struct {
	Borrower crypto.Address `json:"borrower"`
}

type batchLiquidateRequest struct {
	Borrowers []crypto.Address `json:"borrowers"`
}

type sequenceLiquidateRequest struct {
	MaxTroves uint64 `json:"max_troves"`
	MaxICR    string `json:"max_icr"`
}

type claimGainsRequest struct {
	Receiver crypto.Address `json:"receiver"`
	Indexes  []uint64       `json:"indexes"`
}

type delegateRequest struct {
	Delegate crypto.Address `json:"delegate"`
	Approved bool           `json:"approved"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type creditRequest struct {
	Account crypto.Address `json:"account"`
	Amount  string         `json:"amount"`
}

type priceRequest struct {
	Answer   string `json:"answer"`
	Decimals uint8  `json:"decimals"`
}

// parametersRequest patches the current parameters. Omitted fields keep
// their value.
type parametersRequest struct {
	MCR                *string `json:"mcr"`
	MinuteDecayFactor  *string `json:"minute_decay_factor"`
	RedemptionFeeFloor *string `json:"redemption_fee_floor"`
	MaxRedemptionFee   *string `json:"max_redemption_fee"`
	BorrowingFeeFloor  *string `json:"borrowing_fee_floor"`
	MaxBorrowingFee    *string `json:"max_borrowing_fee"`
	InterestRateBps    *uint64 `json:"interest_rate_bps"`
	MaxSystemDebt      *string `json:"max_system_debt"`
}

func (req parametersRequest) apply(params *troves.Parameters) error {
	fields := []struct {
		name string
		raw  *string
		dst  **big.Int
	}{
		{"mcr", req.MCR, &params.MCR},
		{"minute_decay_factor", req.MinuteDecayFactor, &params.MinuteDecayFactor},
		{"redemption_fee_floor", req.RedemptionFeeFloor, &params.RedemptionFeeFloor},
		{"max_redemption_fee", req.MaxRedemptionFee, &params.MaxRedemptionFee},
		{"borrowing_fee_floor", req.BorrowingFeeFloor, &params.BorrowingFeeFloor},
		{"max_borrowing_fee", req.MaxBorrowingFee, &params.MaxBorrowingFee},
		{"max_system_debt", req.MaxSystemDebt, &params.MaxSystemDebt},
	}
	for _, f := range fields {
		if f.raw == nil {
			continue
		}
		value, err := parseAmount(f.name, *f.raw)
		if err != nil {
			return err
		}
		*f.dst = value
	}
	if req.InterestRateBps != nil {
		params.InterestRateBps = *req.InterestRateBps
	}
	return nil
}

type statusResponse struct {
	TotalPricedCollateral string `json:"total_priced_collateral"`
	TotalDebt             string `json:"total_debt"`
	TCR                   string `json:"tcr"`
	RecoveryMode          bool   `json:"recovery_mode"`
}

func newStatusResponse(s *system.SystemStatus) statusResponse {
	return statusResponse{
		TotalPricedCollateral: formatAmount(s.TotalPricedCollateral),
		TotalDebt:             formatAmount(s.TotalDebt),
		TCR:                   formatAmount(s.TCR),
		RecoveryMode:          s.RecoveryMode,
	}
}

type troveResponse struct {
	Collateral string         `json:"collateral"`
	Owner      crypto.Address `json:"owner"`
	Status     string         `json:"status"`
	Debt       string         `json:"debt"`
	Coll       string         `json:"coll"`
	ICR        string         `json:"icr,omitempty"`
	NICR       string         `json:"nicr,omitempty"`
}

func newTroveResponse(v *system.TroveView) troveResponse {
	out := troveResponse{
		Collateral: v.Collateral,
		Owner:      v.Owner,
		Status:     v.Status,
		Debt:       formatAmount(v.Debt),
		Coll:       formatAmount(v.Coll),
	}
	if v.ICR != nil {
		out.ICR = v.ICR.String()
	}
	if v.NICR != nil {
		out.NICR = v.NICR.String()
	}
	return out
}

type ledgerResponse struct {
	Collateral    string         `json:"collateral"`
	Token         crypto.Address `json:"token"`
	Price         string         `json:"price"`
	Coll          string         `json:"coll"`
	Debt          string         `json:"debt"`
	Positions     uint64         `json:"positions"`
	Sunsetting    bool           `json:"sunsetting"`
	BorrowingRate string         `json:"borrowing_rate"`
	RedeemRate    string         `json:"redemption_rate"`
}

func newLedgerResponse(v *system.LedgerView) ledgerResponse {
	return ledgerResponse{
		Collateral:    v.Collateral,
		Token:         v.Token,
		Price:         formatAmount(v.Price),
		Coll:          formatAmount(v.Coll),
		Debt:          formatAmount(v.Debt),
		Positions:     v.Positions,
		Sunsetting:    v.Sunsetting,
		BorrowingRate: formatAmount(v.BorrowingRate),
		RedeemRate:    formatAmount(v.RedeemRate),
	}
}

type depositResponse struct {
	Account         crypto.Address `json:"account"`
	Compounded      string         `json:"compounded"`
	CollateralGains []string       `json:"collateral_gains"`
	Reward          string         `json:"reward"`
}

func newDepositResponse(v *system.DepositView) depositResponse {
	return depositResponse{
		Account:         v.Account,
		Compounded:      formatAmount(v.Compounded),
		CollateralGains: formatAmounts(v.CollateralGains),
		Reward:          formatAmount(v.Reward),
	}
}

type parametersResponse struct {
	MCR                 string `json:"mcr"`
	MinuteDecayFactor   string `json:"minute_decay_factor"`
	RedemptionFeeFloor  string `json:"redemption_fee_floor"`
	MaxRedemptionFee    string `json:"max_redemption_fee"`
	BorrowingFeeFloor   string `json:"borrowing_fee_floor"`
	MaxBorrowingFee     string `json:"max_borrowing_fee"`
	InterestRateBps     uint64 `json:"interest_rate_bps"`
	MaxSystemDebt       string `json:"max_system_debt"`
	DebtGasCompensation string `json:"debt_gas_compensation"`
	MinNetDebt          string `json:"min_net_debt"`
}

func newParametersResponse(p troves.Parameters) parametersResponse {
	return parametersResponse{
		MCR:                 formatAmount(p.MCR),
		MinuteDecayFactor:   formatAmount(p.MinuteDecayFactor),
		RedemptionFeeFloor:  formatAmount(p.RedemptionFeeFloor),
		MaxRedemptionFee:    formatAmount(p.MaxRedemptionFee),
		BorrowingFeeFloor:   formatAmount(p.BorrowingFeeFloor),
		MaxBorrowingFee:     formatAmount(p.MaxBorrowingFee),
		InterestRateBps:     p.InterestRateBps,
		MaxSystemDebt:       formatAmount(p.MaxSystemDebt),
		DebtGasCompensation: formatAmount(p.DebtGasCompensation),
		MinNetDebt:          formatAmount(p.MinNetDebt),
	}
}

type liquidationResponse struct {
	Liquidated          uint64 `json:"liquidated"`
	CollInSequence      string `json:"coll_in_sequence"`
	DebtInSequence      string `json:"debt_in_sequence"`
	CollGasCompensation string `json:"coll_gas_compensation"`
	DebtGasCompensation string `json:"debt_gas_compensation"`
	DebtToOffset        string `json:"debt_to_offset"`
	CollToSendToSP      string `json:"coll_to_send_to_sp"`
	DebtToRedistribute  string `json:"debt_to_redistribute"`
	CollToRedistribute  string `json:"coll_to_redistribute"`
	CollSurplus         string `json:"coll_surplus"`
}

func newLiquidationResponse(t *liquidation.Totals) liquidationResponse {
	return liquidationResponse{
		Liquidated:          t.Liquidated,
		CollInSequence:      formatAmount(t.CollInSequence),
		DebtInSequence:      formatAmount(t.DebtInSequence),
		CollGasCompensation: formatAmount(t.CollGasCompensation),
		DebtGasCompensation: formatAmount(t.DebtGasCompensation),
		DebtToOffset:        formatAmount(t.DebtToOffset),
		CollToSendToSP:      formatAmount(t.CollToSendToSP),
		DebtToRedistribute:  formatAmount(t.DebtToRedistribute),
		CollToRedistribute:  formatAmount(t.CollToRedistribute),
		CollSurplus:         formatAmount(t.CollSurplus),
	}
}

type redemptionResponse struct {
	DebtRedeemed     string `json:"debt_redeemed"`
	CollateralDrawn  string `json:"collateral_drawn"`
	CollateralFee    string `json:"collateral_fee"`
	CollateralToUser string `json:"collateral_to_user"`
	TrovesTouched    uint64 `json:"troves_touched"`
	BaseRate         string `json:"base_rate"`
}

func newRedemptionResponse(r *troves.RedemptionResult) redemptionResponse {
	return redemptionResponse{
		DebtRedeemed:     formatAmount(r.DebtRedeemed),
		CollateralDrawn:  formatAmount(r.CollateralDrawn),
		CollateralFee:    formatAmount(r.CollateralFee),
		CollateralToUser: formatAmount(r.CollateralToUser),
		TrovesTouched:    r.TrovesTouched,
		BaseRate:         formatAmount(r.BaseRate),
	}
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type amountsResponse struct {
	Amounts []string `json:"amounts"`
}

type roundResponse struct {
	RoundID uint64 `json:"round_id"`
}

type balanceEntry struct {
	Asset   string         `json:"asset"`
	Token   crypto.Address `json:"token"`
	Balance string         `json:"balance"`
}

type eventResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Collateral string            `json:"collateral,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"created_at"`
}

func newEventResponse(e indexer.ArchivedEvent) eventResponse {
	return eventResponse{
		ID:         e.ID.String(),
		Type:       e.Type,
		Collateral: e.Collateral,
		Attributes: e.Decoded(),
		CreatedAt:  e.CreatedAt.Unix(),
	}
}
