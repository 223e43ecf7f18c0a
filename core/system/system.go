package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cdpcore/config"
	"cdpcore/core/events"
	"cdpcore/core/state"
	"cdpcore/crypto"
	"cdpcore/native/admin"
	"cdpcore/native/bank"
	"cdpcore/native/borrowing"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/liquidation"
	"cdpcore/native/oracle"
	"cdpcore/native/rewards"
	"cdpcore/native/stability"
	"cdpcore/native/troves"
	"cdpcore/observability"
	telemetry "cdpcore/observability/otel"
	"cdpcore/storage"
)

var (
	// ErrUnknownCollateral is returned for collateral names absent from the
	// protocol configuration.
	ErrUnknownCollateral = nativecommon.NewError(nativecommon.ErrValidation, "system: unknown collateral")

	errInvalidPrice = nativecommon.NewError(nativecommon.ErrValidation, "system: price must be positive")
	errNilConfig    = errors.New("system: config required")
	errNilDatabase  = errors.New("system: database required")
)

// Option configures a System.
type Option func(*System)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *System) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock used for block times.
func WithClock(now func() time.Time) Option {
	return func(s *System) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEmitter receives the events of every committed operation.
func WithEmitter(emitter events.Emitter) Option {
	return func(s *System) {
		if emitter != nil {
			s.sink = emitter
		}
	}
}

// WithPriceSource replaces the built-in oracle source. Prices submitted via
// SubmitPrice are only honoured by the built-in source.
func WithPriceSource(source oracle.Source) Option {
	return func(s *System) {
		if source != nil {
			s.source = source
		}
	}
}

// ledger bundles the per-collateral wiring.
type ledger struct {
	name    string
	token   crypto.Address
	manager *troves.Manager
}

// System wires the engines over one state manager and runs every operation
// as a single atomic transaction. Calls are serialised.
type System struct {
	mu sync.Mutex

	st     *state.Manager
	buf    *events.Buffer
	sink   events.Emitter
	logger *slog.Logger
	now    func() time.Time
	ts     uint64
	tracer trace.Tracer

	owner     crypto.Address
	debtToken crypto.Address

	core        *admin.Core
	bank        *bank.Ledger
	source      oracle.Source
	rounds      *oracle.StoredSource
	feed        *oracle.PriceFeed
	vault       *rewards.Vault
	pool        *stability.Engine
	gateway     *borrowing.Gateway
	liquidation *liquidation.Engine

	ledgers []*ledger
	byName  map[string]*ledger
}

// New builds the engines described by cfg on top of db. Records that already
// exist in db are kept, so restarting over a durable database resumes the
// previous state.
func New(cfg *config.Config, db storage.Database, opts ...Option) (*System, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	if db == nil {
		return nil, errNilDatabase
	}
	roles, err := cfg.Roles()
	if err != nil {
		return nil, err
	}
	emission, err := cfg.Emission()
	if err != nil {
		return nil, err
	}
	st := state.NewManager(db)
	rounds := oracle.NewStoredSource(st)
	s := &System{
		st:        st,
		buf:       &events.Buffer{},
		sink:      events.NoopEmitter{},
		logger:    slog.Default(),
		now:       time.Now,
		tracer:    telemetry.Tracer("system"),
		owner:     roles.Owner,
		debtToken: crypto.ModuleAddress(cfg.DebtToken),
		source:    rounds,
		rounds:    rounds,
		byName:    make(map[string]*ledger, len(cfg.Collaterals)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With(slog.String("component", "system"))
	ts := s.blockTime()

	s.core = admin.NewCore()
	s.core.SetState(s.st)
	start := cfg.StartTime
	if start == 0 {
		start = ts
	}
	if err := s.core.Init(admin.Config{
		Owner:       roles.Owner,
		Guardian:    roles.Guardian,
		FeeReceiver: roles.FeeReceiver,
		StartTime:   start,
	}); err != nil {
		return nil, fmt.Errorf("init admin: %w", err)
	}

	s.bank = bank.NewLedger()
	s.bank.SetState(s.st)
	s.bank.SetEmitter(s.buf)

	s.feed = oracle.NewPriceFeed(s.source)

	s.vault = rewards.NewVault(crypto.ModuleAddress(cfg.RewardToken), start)
	s.vault.SetState(s.st)
	s.vault.SetBank(s.bank)
	s.vault.SetWeeklyEmission(stability.EmissionID, emission)

	s.pool = stability.NewEngine(s.debtToken)
	s.pool.SetState(s.st)
	s.pool.SetBank(s.bank)
	s.pool.SetAdmin(s.core)
	s.pool.SetVault(s.vault)
	s.pool.SetEmitter(s.buf)

	s.gateway = borrowing.NewGateway(s.debtToken)
	s.gateway.SetState(s.st)
	s.gateway.SetBank(s.bank)
	s.gateway.SetAdmin(s.core)
	s.gateway.SetEmitter(s.buf)

	s.liquidation = liquidation.NewEngine()
	s.liquidation.SetStabilityPool(s.pool)
	s.liquidation.SetSystemView(s.gateway)
	s.liquidation.SetEmitter(s.buf)

	s.setBlockTime(ts)
	listed, err := s.gateway.TroveManagers()
	if err != nil {
		return nil, err
	}
	for _, coll := range cfg.Collaterals {
		if err := s.addLedger(coll, listed); err != nil {
			return nil, fmt.Errorf("collateral %s: %w", coll.Name, err)
		}
	}
	if err := s.st.Commit(); err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}
	s.buf.Flush(s.sinkWithMetrics())
	return s, nil
}

func (s *System) addLedger(coll config.Collateral, listed []crypto.Address) error {
	params, err := coll.Parameters()
	if err != nil {
		return err
	}
	token := coll.Token()
	if err := s.feed.SetFeed(token, oracle.FeedConfig{Heartbeat: coll.OracleHeartbeat}); err != nil {
		return err
	}
	m := troves.NewManager(token, params)
	m.SetState(s.st)
	m.SetSorted(troves.NewSortedList(token, s.st))
	m.SetBank(s.bank)
	m.SetDebtToken(s.debtToken)
	m.SetOracle(s.feed)
	m.SetAdmin(s.core)
	m.SetSystemView(s.gateway)
	m.SetEmitter(s.buf)
	m.SetBlockTime(s.blockTime())
	if err := m.Init(); err != nil {
		return err
	}

	sunsetting, err := m.Sunsetting()
	if err != nil {
		return err
	}
	if !sunsetting {
		if _, err := s.pool.EnableCollateral(token); err != nil {
			return err
		}
	}
	alreadyListed := false
	for _, addr := range listed {
		if addr.Equal(token) {
			alreadyListed = true
			break
		}
	}
	switch {
	case alreadyListed, sunsetting:
		s.gateway.Register(m)
	default:
		if err := s.gateway.ConfigureCollateral(s.owner, m); err != nil {
			return err
		}
	}
	s.liquidation.EnableTroveManager(m)

	l := &ledger{name: coll.Name, token: token, manager: m}
	s.ledgers = append(s.ledgers, l)
	s.byName[coll.Name] = l
	return nil
}

func (s *System) blockTime() uint64 {
	return uint64(s.now().Unix())
}

func (s *System) setBlockTime(ts uint64) {
	s.ts = ts
	s.feed.SetBlockTime(ts)
	s.vault.SetBlockTime(ts)
	s.pool.SetBlockTime(ts)
	for _, l := range s.ledgers {
		l.manager.SetBlockTime(ts)
	}
}

func (s *System) ledger(name string) (*ledger, error) {
	l, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollateral, name)
	}
	return l, nil
}

func (s *System) sinkWithMetrics() events.Emitter {
	return events.Fanout{eventCounter{}, s.sink}
}

// eventCounter counts committed events by type.
type eventCounter struct{}

func (eventCounter) Emit(evt events.Event) {
	observability.Events().RecordEvent(evt.EventType())
}

// call describes one operation for logging and tracing.
type call struct {
	op         string
	collateral string
	account    crypto.Address
}

// execute runs fn as one transaction. State writes and buffered events are
// committed only when fn succeeds; otherwise both are discarded.
func (s *System) execute(ctx context.Context, c call, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := s.tracer.Start(ctx, c.op, trace.WithAttributes(
		attribute.String("cdp.collateral", c.collateral),
		attribute.String("cdp.account", accountLabel(c.account)),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	s.setBlockTime(s.blockTime())
	err := guarded(fn)
	if err == nil {
		err = s.st.Commit()
	}
	metrics := observability.CDP()
	if err != nil {
		s.st.Rollback()
		s.buf.Reset()
		class := nativecommon.Class(err)
		metrics.ObserveOperation(c.op, time.Since(started), class)
		span.RecordError(err)
		span.SetStatus(codes.Error, class)
		s.logger.WarnContext(ctx, "operation failed",
			slog.String("op", c.op),
			slog.String("collateral", c.collateral),
			slog.String("account", accountLabel(c.account)),
			slog.String("err", err.Error()))
		return err
	}
	s.buf.Flush(s.sinkWithMetrics())
	metrics.ObserveOperation(c.op, time.Since(started), "")
	s.recordGauges()
	return nil
}

// view runs a read under the lock. Reads never persist anything; the journal
// is discarded afterwards.
func (s *System) view(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBlockTime(s.blockTime())
	err := guarded(fn)
	s.st.Rollback()
	s.buf.Reset()
	return err
}

// guarded runs fn and reports an arithmetic panic from the engines as its
// error so the caller can roll back.
func guarded(fn func() error) (err error) {
	defer nativecommon.RecoverArithmetic(&err)
	return fn()
}

func (s *System) recordGauges() {
	metrics := observability.CDP()
	if tcr, err := s.gateway.GetTCR(); err == nil {
		metrics.RecordSystem(tcr, borrowing.CheckRecoveryMode(tcr))
	}
	if pool, err := s.pool.Snapshot(); err == nil {
		metrics.RecordPool(pool.TotalDeposits, pool.Epoch, pool.Scale)
	}
}

func (s *System) recordLiquidation(name string, totals *liquidation.Totals) {
	if totals == nil {
		return
	}
	observability.CDP().RecordLiquidation(name, int(totals.Liquidated), totals.DebtToOffset, totals.DebtToRedistribute)
	s.logger.Info("liquidation committed",
		slog.String("collateral", name),
		slog.Uint64("liquidated", totals.Liquidated),
		slog.String("debt_offset", totals.DebtToOffset.String()),
		slog.String("debt_redistributed", totals.DebtToRedistribute.String()),
		slog.String("coll_surplus", totals.CollSurplus.String()))
}

func accountLabel(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

// DebtToken returns the debt token identifier.
func (s *System) DebtToken() crypto.Address { return s.debtToken }

// CollateralToken resolves a configured collateral name.
func (s *System) CollateralToken(name string) (crypto.Address, error) {
	l, err := s.ledger(name)
	if err != nil {
		return crypto.Address{}, err
	}
	return l.token, nil
}

// Collaterals returns the configured collateral names in configuration order.
func (s *System) Collaterals() []string {
	names := make([]string, 0, len(s.ledgers))
	for _, l := range s.ledgers {
		names = append(names, l.name)
	}
	return names
}

func clone(v *big.Int) *big.Int {
	return nativecommon.Clone(v)
}
