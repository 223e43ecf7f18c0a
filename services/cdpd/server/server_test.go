package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cdpcore/config"
	"cdpcore/core/system"
	"cdpcore/crypto"
	"cdpcore/services/cdpd/indexer"
	"cdpcore/storage"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "cdp-auth"
)

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.CDPPrefix, raw)
}

// steppingClock advances one second per reading so every operation lands in
// its own block.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	handler http.Handler
	archive *indexer.Archive
	owner   crypto.Address
}

func newFixture(t *testing.T, limit RateLimit) *fixture {
	t.Helper()
	owner := makeAddress(0xF0)
	cfg := config.Default()
	cfg.Owner = owner.String()
	cfg.FeeReceiver = makeAddress(0xFE).String()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, indexer.AutoMigrate(db))
	archive := indexer.New(db, nil)
	t.Cleanup(func() { _ = archive.Close() })

	clock := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	sys, err := system.New(cfg, storage.NewMemDB(),
		system.WithClock(clock.Now),
		system.WithEmitter(archive))
	require.NoError(t, err)

	if limit.RequestsPerMinute == 0 {
		limit = RateLimit{RequestsPerMinute: 60_000, Burst: 1_000}
	}
	srv, err := New(Config{
		System:    sys,
		Archive:   archive,
		Auth:      AuthConfig{HMACSecret: testSecret, Issuer: testIssuer},
		RateLimit: limit,
	})
	require.NoError(t, err)
	return &fixture{handler: srv.Handler(), archive: archive, owner: owner}
}

func signToken(t *testing.T, subject crypto.Address, issuer string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject.String(),
		"iss": issuer,
		"exp": time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, caller crypto.Address, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Authorization", "Bearer "+signToken(t, caller, testIssuer, time.Hour))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) postPrice(t *testing.T, whole int64) {
	t.Helper()
	rec := f.do(t, f.owner, http.MethodPost, "/v1/collaterals/weth/price", map[string]any{
		"answer":   fmt.Sprintf("%d00000000", whole),
		"decimals": 8,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthAndAuth(t *testing.T) {
	f := newFixture(t, RateLimit{})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, f.owner, "someone-else", time.Hour))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, f.owner, testIssuer, -time.Hour))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f.postPrice(t, 2000)
	rec = f.do(t, f.owner, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decode[statusResponse](t, rec)
	require.Equal(t, "0", status.TotalDebt)
	require.False(t, status.RecoveryMode)
}

func TestOpenTroveOverHTTP(t *testing.T) {
	f := newFixture(t, RateLimit{})
	alice := makeAddress(0x01)
	f.postPrice(t, 2000)

	rec := f.do(t, f.owner, http.MethodPost, "/v1/collaterals/weth/credit", map[string]any{
		"account": alice.String(),
		"amount":  "10000000000000000000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, alice, http.MethodPost, "/v1/collaterals/weth/troves/open", map[string]any{
		"coll":    "10000000000000000000",
		"debt":    "2000000000000000000000",
		"max_fee": "1000000000000000000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	opened := decode[troveResponse](t, rec)
	require.Equal(t, "active", opened.Status)
	require.Equal(t, "2210000000000000000000", opened.Debt)
	require.Equal(t, "10000000000000000000", opened.Coll)
	require.NotEmpty(t, opened.ICR)

	rec = f.do(t, alice, http.MethodGet, "/v1/collaterals/weth/troves/"+alice.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, opened, decode[troveResponse](t, rec))

	rec = f.do(t, alice, http.MethodGet, "/v1/collaterals/weth", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ledger := decode[ledgerResponse](t, rec)
	require.Equal(t, uint64(1), ledger.Positions)
	require.Equal(t, "2000000000000000000000", ledger.Price)

	rec = f.do(t, alice, http.MethodGet, "/v1/balances/"+alice.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	balances := decode[struct {
		Balances []balanceEntry `json:"balances"`
	}](t, rec)
	require.Equal(t, "debt", balances.Balances[0].Asset)
	require.Equal(t, "2000000000000000000000", balances.Balances[0].Balance)

	rec = f.do(t, alice, http.MethodPost, "/v1/stability/provide", map[string]any{"amount": "500000000000000000000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	deposit := decode[depositResponse](t, rec)
	require.Equal(t, "500000000000000000000", deposit.Compounded)

	rec = f.do(t, alice, http.MethodGet, "/v1/events?type=trove.opened", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := decode[struct {
		Events []eventResponse `json:"events"`
	}](t, rec)
	require.Len(t, events.Events, 1)
	require.Equal(t, "trove.opened", events.Events[0].Type)
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t, RateLimit{})
	stranger := makeAddress(0x09)

	rec := f.do(t, stranger, http.MethodPost, "/v1/collaterals/weth/price", map[string]any{"answer": "1", "decimals": 8})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = f.do(t, stranger, http.MethodGet, "/v1/collaterals/doge", nil)
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = f.do(t, stranger, http.MethodPost, "/v1/stability/provide", map[string]any{"amount": "12abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[map[string]string](t, rec)["error"], "amount")

	rec = f.do(t, stranger, http.MethodPost, "/v1/stability/provide", map[string]any{"amount": "1", "extra": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, f.owner, http.MethodPost, "/v1/admin/modules/stability/pause", map[string]any{"paused": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, stranger, http.MethodPost, "/v1/stability/provide", map[string]any{"amount": "1"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
}

func TestIdempotentReplay(t *testing.T) {
	f := newFixture(t, RateLimit{})
	alice := makeAddress(0x01)
	body := map[string]any{"account": alice.String(), "amount": "5"}

	first := f.do(t, f.owner, http.MethodPost, "/v1/collaterals/weth/credit", body, headerIdempotency, "credit-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := f.do(t, f.owner, http.MethodPost, "/v1/collaterals/weth/credit", body, headerIdempotency, "credit-1")
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	rec := f.do(t, alice, http.MethodGet, "/v1/balances/"+alice.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balances := decode[struct {
		Balances []balanceEntry `json:"balances"`
	}](t, rec)
	var weth string
	for _, entry := range balances.Balances {
		if entry.Asset == "weth" {
			weth = entry.Balance
		}
	}
	require.Equal(t, "5", weth)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	f := newFixture(t, RateLimit{RequestsPerMinute: 1, Burst: 1})
	alice := makeAddress(0x01)
	f.postPrice(t, 2000)

	rec := f.do(t, alice, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, alice, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Buckets are per caller.
	rec = f.do(t, makeAddress(0x02), http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}
