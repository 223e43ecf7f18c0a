package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdpcore/core/system"
	"cdpcore/crypto"
	"cdpcore/native/borrowing"
	"cdpcore/native/troves"
	"cdpcore/services/cdpd/indexer"
)

var errNoCaller = errors.New("missing caller identity")

// Config captures the dependencies required to construct the server.
type Config struct {
	System         *system.System
	Archive        *indexer.Archive
	Auth           AuthConfig
	RateLimit      RateLimit
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server exposes the lending system over JSON HTTP.
type Server struct {
	sys     *system.System
	archive *indexer.Archive
	auth    *Authenticator
	limiter *RateLimiter
	timeout time.Duration
	logger  *slog.Logger

	router http.Handler
}

// New constructs the router. Archive may be nil, in which case event queries
// and idempotent replays are disabled.
func New(cfg Config) (*Server, error) {
	if cfg.System == nil {
		return nil, fmt.Errorf("server: system required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	srv := &Server{
		sys:     cfg.System,
		archive: cfg.Archive,
		auth:    NewAuthenticator(cfg.Auth, cfg.Logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		timeout: cfg.RequestTimeout,
		logger:  cfg.Logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Use(s.limiter.Middleware(metricsModule))
		api.Use(idempotent(s.archive, s.logger))

		api.Get("/status", s.getStatus)
		api.Get("/collaterals", s.listCollaterals)
		api.Get("/balances/{account}", s.getBalances)
		api.Get("/events", s.listEvents)
		api.Post("/delegates", s.setDelegate)

		api.Route("/collaterals/{collateral}", func(c chi.Router) {
			c.Get("/", s.getLedger)
			c.Get("/parameters", s.getParameters)
			c.Get("/troves/{owner}", s.getTrove)
			c.Get("/surplus/{account}", s.getSurplus)

			c.Post("/troves/open", s.openTrove)
			c.Post("/troves/adjust", s.adjustTrove)
			c.Post("/troves/close", s.closeTrove)
			c.Post("/redeem", s.redeem)
			c.Post("/surplus/claim", s.claimSurplus)
			c.Post("/interest/collect", s.collectInterest)
			c.Post("/liquidate", s.liquidate)
			c.Post("/liquidate/batch", s.batchLiquidate)
			c.Post("/liquidate/sequence", s.liquidateSequence)

			c.Post("/sunset", s.startSunset)
			c.Post("/remove", s.removeCollateral)
			c.Post("/parameters", s.setParameters)
			c.Post("/credit", s.creditCollateral)
			c.Post("/price", s.submitPrice)
		})

		api.Route("/stability", func(sp chi.Router) {
			sp.Get("/collaterals", s.listPoolCollaterals)
			sp.Get("/deposits/{account}", s.getDeposit)
			sp.Post("/provide", s.provide)
			sp.Post("/withdraw", s.withdraw)
			sp.Post("/claim-gains", s.claimGains)
			sp.Post("/claim-reward", s.claimReward)
		})

		api.Route("/admin", func(ad chi.Router) {
			ad.Post("/pause", s.setPaused)
			ad.Post("/modules/{module}/pause", s.setModulePaused)
		})
	})
	return r
}

func (s *Server) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// caller returns the authenticated caller or writes 401.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errNoCaller)
		return crypto.Address{}, false
	}
	return caller, true
}

func pathAddress(r *http.Request, name string) (crypto.Address, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

func orCaller(addr, caller crypto.Address) crypto.Address {
	if addr.IsZero() {
		return caller
	}
	return addr
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	status, err := s.sys.Status()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(status))
}

func (s *Server) listCollaterals(w http.ResponseWriter, _ *http.Request) {
	names := s.sys.Collaterals()
	out := make([]ledgerResponse, 0, len(names))
	for _, name := range names {
		view, err := s.sys.Ledger(name)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out = append(out, newLedgerResponse(view))
	}
	writeJSON(w, http.StatusOK, map[string]any{"collaterals": out})
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	view, err := s.sys.Ledger(chi.URLParam(r, "collateral"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerResponse(view))
}

func (s *Server) getParameters(w http.ResponseWriter, r *http.Request) {
	params, err := s.sys.Parameters(chi.URLParam(r, "collateral"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newParametersResponse(params))
}

func (s *Server) getTrove(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	view, err := s.sys.Trove(chi.URLParam(r, "collateral"), owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTroveResponse(view))
}

func (s *Server) getSurplus(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "account")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := s.sys.Surplus(chi.URLParam(r, "collateral"), account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: formatAmount(amount)})
}

func (s *Server) getBalances(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "account")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debt, err := s.sys.Balance(s.sys.DebtToken(), account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := []balanceEntry{{Asset: "debt", Token: s.sys.DebtToken(), Balance: formatAmount(debt)}}
	for _, name := range s.sys.Collaterals() {
		token, err := s.sys.CollateralToken(name)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		bal, err := s.sys.Balance(token, account)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out = append(out, balanceEntry{Asset: name, Token: token, Balance: formatAmount(bal)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balances": out})
}

func (s *Server) listPoolCollaterals(w http.ResponseWriter, _ *http.Request) {
	tokens, err := s.sys.PoolCollaterals()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (s *Server) getDeposit(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "account")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	view, err := s.sys.Deposit(account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDepositResponse(view))
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSONError(w, http.StatusNotImplemented, errors.New("event archive disabled"))
		return
	}
	query := r.URL.Query()
	filter := indexer.Filter{Type: query.Get("type"), Collateral: query.Get("collateral")}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, fmt.Errorf("limit: invalid value %q", raw))
			return
		}
		filter.Limit = limit
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	rows, err := s.archive.List(ctx, filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, newEventResponse(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) openTrove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req openTroveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	coll, err := parseAmount("coll", req.Coll)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debt, err := parseAmount("debt", req.Debt)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	maxFee, err := parseAmount("max_fee", req.MaxFee)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	collateral := chi.URLParam(r, "collateral")
	account := orCaller(req.Account, caller)
	err = s.sys.OpenTrove(ctx, caller, collateral, borrowing.OpenRequest{
		Account:          account,
		MaxFeePercentage: maxFee,
		Coll:             coll,
		Debt:             debt,
		UpperHint:        req.UpperHint,
		LowerHint:        req.LowerHint,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeTrove(w, collateral, account)
}

func (s *Server) adjustTrove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req adjustTroveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	deposit, err := parseAmount("coll_deposit", req.CollDeposit)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	withdrawal, err := parseAmount("coll_withdrawal", req.CollWithdrawal)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	change, err := parseAmount("debt_change", req.DebtChange)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	maxFee, err := parseAmount("max_fee", req.MaxFee)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	collateral := chi.URLParam(r, "collateral")
	account := orCaller(req.Account, caller)
	err = s.sys.AdjustTrove(ctx, caller, collateral, borrowing.AdjustRequest{
		Account:          account,
		MaxFeePercentage: maxFee,
		CollDeposit:      deposit,
		CollWithdrawal:   withdrawal,
		DebtChange:       change,
		IsDebtIncrease:   req.IsDebtIncrease,
		UpperHint:        req.UpperHint,
		LowerHint:        req.LowerHint,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeTrove(w, collateral, account)
}

func (s *Server) closeTrove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	collateral := chi.URLParam(r, "collateral")
	account := orCaller(req.Account, caller)
	if err := s.sys.CloseTrove(ctx, caller, collateral, account); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeTrove(w, collateral, account)
}

func (s *Server) writeTrove(w http.ResponseWriter, collateral string, owner crypto.Address) {
	view, err := s.sys.Trove(collateral, owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTroveResponse(view))
}

func (s *Server) setDelegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req delegateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.sys.SetDelegateApproval(ctx, caller, req.Delegate, req.Approved); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	maxFee, err := parseAmount("max_fee", req.MaxFee)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	hints := troves.RedemptionHints{First: req.FirstHint, Upper: req.UpperHint, Lower: req.LowerHint}
	result, err := s.sys.RedeemCollateral(ctx, caller, chi.URLParam(r, "collateral"), amount, hints, req.MaxIterations, maxFee)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRedemptionResponse(result))
}

func (s *Server) claimSurplus(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req receiverRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	amount, err := s.sys.ClaimCollateral(ctx, caller, chi.URLParam(r, "collateral"), orCaller(req.Receiver, caller))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: formatAmount(amount)})
}

func (s *Server) collectInterest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.context(r.Context())
	defer cancel()
	amount, err := s.sys.CollectInterests(ctx, chi.URLParam(r, "collateral"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: formatAmount(amount)})
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Borrower.IsZero() {
		writeBadRequest(w, errors.New("borrower required"))
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	totals, err := s.sys.Liquidate(ctx, caller, chi.URLParam(r, "collateral"), req.Borrower)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLiquidationResponse(totals))
}

func (s *Server) batchLiquidate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req batchLiquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	totals, err := s.sys.BatchLiquidateTroves(ctx, caller, chi.URLParam(r, "collateral"), req.Borrowers)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLiquidationResponse(totals))
}

func (s *Server) liquidateSequence(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req sequenceLiquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	maxICR, err := optionalAmount("max_icr", req.MaxICR)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	totals, err := s.sys.LiquidateTroves(ctx, caller, chi.URLParam(r, "collateral"), req.MaxTroves, maxICR)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLiquidationResponse(totals))
}

func (s *Server) provide(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.sys.ProvideToSP(ctx, caller, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeDeposit(w, caller)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if _, err := s.sys.WithdrawFromSP(ctx, caller, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeDeposit(w, caller)
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return nil, false
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return nil, false
	}
	return amount, true
}

func (s *Server) writeDeposit(w http.ResponseWriter, account crypto.Address) {
	view, err := s.sys.Deposit(account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDepositResponse(view))
}

func (s *Server) claimGains(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req claimGainsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	amounts, err := s.sys.ClaimCollateralGains(ctx, caller, orCaller(req.Receiver, caller), req.Indexes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountsResponse{Amounts: formatAmounts(amounts)})
}

func (s *Server) claimReward(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req receiverRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	amount, err := s.sys.ClaimReward(ctx, caller, orCaller(req.Receiver, caller))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: formatAmount(amount)})
}

func (s *Server) startSunset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	collateral := chi.URLParam(r, "collateral")
	if err := s.sys.StartSunset(ctx, caller, collateral); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeLedger(w, collateral)
}

func (s *Server) removeCollateral(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.context(r.Context())
	defer cancel()
	collateral := chi.URLParam(r, "collateral")
	if err := s.sys.RemoveCollateral(ctx, collateral); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeLedger(w, collateral)
}

func (s *Server) writeLedger(w http.ResponseWriter, collateral string) {
	view, err := s.sys.Ledger(collateral)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerResponse(view))
}

func (s *Server) setParameters(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req parametersRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	collateral := chi.URLParam(r, "collateral")
	params, err := s.sys.Parameters(collateral)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := req.apply(&params); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.sys.SetParameters(ctx, caller, collateral, params); err != nil {
		writeEngineError(w, err)
		return
	}
	updated, err := s.sys.Parameters(collateral)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newParametersResponse(updated))
}

func (s *Server) creditCollateral(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req creditRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	account := orCaller(req.Account, caller)
	if err := s.sys.CreditCollateral(ctx, caller, chi.URLParam(r, "collateral"), account, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: formatAmount(amount)})
}

func (s *Server) submitPrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	answer, err := parseAmount("answer", req.Answer)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	round, err := s.sys.SubmitPrice(ctx, caller, chi.URLParam(r, "collateral"), answer, req.Decimals)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roundResponse{RoundID: round})
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.sys.SetPaused(ctx, caller, req.Paused); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) setModulePaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.sys.SetModulePaused(ctx, caller, chi.URLParam(r, "module"), req.Paused); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
