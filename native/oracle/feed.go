package oracle

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

const (
	// ResponseTimeoutBuffer is tolerated on top of a feed's heartbeat.
	ResponseTimeoutBuffer uint64 = 3600
	targetDigits                 = 18
)

var (
	// ErrStaleFeed is returned when the latest round is older than heartbeat plus buffer.
	ErrStaleFeed = nativecommon.NewError(nativecommon.ErrStaleData, "oracle: price feed is stale")
	// ErrInvalidFeed is returned for non-positive answers, broken rounds and excessive jumps.
	ErrInvalidFeed   = nativecommon.NewError(nativecommon.ErrStaleData, "oracle: invalid price feed response")
	errUnknownFeed   = nativecommon.NewError(nativecommon.ErrValidation, "oracle: feed not configured")
	errNilSource     = nativecommon.NewError(nativecommon.ErrValidation, "oracle: source not configured")
	errZeroHeartbeat = nativecommon.NewError(nativecommon.ErrValidation, "oracle: heartbeat must be positive")

	// 50% expressed in 1e18 precision.
	maxDeviationFromPreviousRound = new(big.Int).Rsh(nativecommon.DecimalPrecision, 1)
)

// Round is a single answer reported by an upstream aggregator.
type Round struct {
	ID        uint64
	Answer    *big.Int
	UpdatedAt uint64
	Decimals  uint8
}

// Source is the upstream aggregator the feed reads from.
type Source interface {
	LatestRound(token crypto.Address) (Round, error)
	RoundData(token crypto.Address, id uint64) (Round, error)
}

// FeedConfig holds the per-token staleness window.
type FeedConfig struct {
	Heartbeat uint64
}

type cachedPrice struct {
	price     *big.Int
	timestamp uint64
}

// PriceFeed validates upstream rounds and returns prices scaled to 18 digits.
// Within a single block time the first validated price is reused.
type PriceFeed struct {
	source Source
	feeds  map[string]FeedConfig
	cache  map[string]cachedPrice
	now    uint64
}

func NewPriceFeed(source Source) *PriceFeed {
	return &PriceFeed{
		source: source,
		feeds:  make(map[string]FeedConfig),
		cache:  make(map[string]cachedPrice),
	}
}

// SetBlockTime records the timestamp used for staleness checks.
func (f *PriceFeed) SetBlockTime(ts uint64) {
	if f == nil {
		return
	}
	f.now = ts
}

// SetFeed registers or replaces the configuration for token.
func (f *PriceFeed) SetFeed(token crypto.Address, cfg FeedConfig) error {
	if f == nil {
		return errNilSource
	}
	if cfg.Heartbeat == 0 {
		return errZeroHeartbeat
	}
	f.feeds[token.Key()] = cfg
	delete(f.cache, token.Key())
	return nil
}

// FetchPrice returns the validated price of token in 1e18 precision.
func (f *PriceFeed) FetchPrice(token crypto.Address) (*big.Int, error) {
	if f == nil || f.source == nil {
		return nil, errNilSource
	}
	cfg, ok := f.feeds[token.Key()]
	if !ok {
		return nil, errUnknownFeed
	}
	if cached, ok := f.cache[token.Key()]; ok && cached.timestamp == f.now {
		return new(big.Int).Set(cached.price), nil
	}
	current, err := f.source.LatestRound(token)
	if err != nil || !f.validRound(current) {
		return nil, ErrInvalidFeed
	}
	if f.now > current.UpdatedAt && f.now-current.UpdatedAt > cfg.Heartbeat+ResponseTimeoutBuffer {
		return nil, ErrStaleFeed
	}
	// Answers with more than 18 decimals can truncate to zero once scaled.
	price := scale(current)
	if price.Sign() <= 0 {
		return nil, ErrInvalidFeed
	}
	if current.ID > 1 {
		previous, err := f.source.RoundData(token, current.ID-1)
		if err != nil || !f.validRound(previous) {
			return nil, ErrInvalidFeed
		}
		prevPrice := scale(previous)
		if prevPrice.Sign() <= 0 || deviationAboveMax(price, prevPrice) {
			return nil, ErrInvalidFeed
		}
	}
	f.cache[token.Key()] = cachedPrice{price: price, timestamp: f.now}
	return new(big.Int).Set(price), nil
}

func (f *PriceFeed) validRound(r Round) bool {
	return r.ID != 0 &&
		r.UpdatedAt != 0 &&
		r.UpdatedAt <= f.now &&
		r.Answer != nil &&
		r.Answer.Sign() > 0
}

func scale(r Round) *big.Int {
	out := new(big.Int).Set(r.Answer)
	switch {
	case r.Decimals < targetDigits:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(targetDigits-r.Decimals)), nil)
		out.Mul(out, factor)
	case r.Decimals > targetDigits:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Decimals-targetDigits)), nil)
		out.Quo(out, factor)
	}
	return out
}

func deviationAboveMax(current, previous *big.Int) bool {
	hi := nativecommon.Max(current, previous)
	lo := nativecommon.Min(current, previous)
	if hi.Sign() == 0 {
		return true
	}
	dev := new(big.Int).Sub(hi, lo)
	dev.Mul(dev, nativecommon.DecimalPrecision)
	dev.Quo(dev, hi)
	return dev.Cmp(maxDeviationFromPreviousRound) > 0
}
