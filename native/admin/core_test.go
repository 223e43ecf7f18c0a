package admin

import (
	"errors"
	"testing"

	"cdpcore/crypto"
)

type mockCoreState struct {
	cfg *Config
}

func (m *mockCoreState) GetCoreConfig() (*Config, error) { return m.cfg.Clone(), nil }

func (m *mockCoreState) PutCoreConfig(cfg *Config) error {
	m.cfg = cfg.Clone()
	return nil
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.CDPPrefix, raw)
}

func newTestCore(t *testing.T) (*Core, crypto.Address, crypto.Address) {
	t.Helper()
	owner := makeAddress(1)
	guardian := makeAddress(2)
	core := NewCore()
	core.SetState(&mockCoreState{})
	if err := core.Init(Config{Owner: owner, Guardian: guardian, FeeReceiver: makeAddress(3), StartTime: 100}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return core, owner, guardian
}

func TestInitKeepsExistingConfig(t *testing.T) {
	core, owner, _ := newTestCore(t)
	if err := core.Init(Config{Owner: makeAddress(9), FeeReceiver: makeAddress(9)}); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	got, err := core.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if !got.Equal(owner) {
		t.Fatalf("owner overwritten: %s", got)
	}
}

func TestPauseRoles(t *testing.T) {
	core, owner, guardian := newTestCore(t)
	stranger := makeAddress(7)
	if err := core.SetPaused(stranger, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := core.SetPaused(guardian, true); err != nil {
		t.Fatalf("guardian pause: %v", err)
	}
	if !core.IsPaused("borrowing") {
		t.Fatalf("expected global pause")
	}
	if err := core.SetPaused(guardian, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("guardian must not unpause, got %v", err)
	}
	if err := core.SetPaused(owner, false); err != nil {
		t.Fatalf("owner unpause: %v", err)
	}
	if err := core.SetModulePaused(guardian, "stability", true); err != nil {
		t.Fatalf("module pause: %v", err)
	}
	if !core.IsPaused("stability") || core.IsPaused("borrowing") {
		t.Fatalf("module pause leaked")
	}
}

func TestUninitialisedCoreReportsPaused(t *testing.T) {
	core := NewCore()
	core.SetState(&mockCoreState{})
	if !core.IsPaused("borrowing") {
		t.Fatalf("uninitialised core must fail closed")
	}
}
