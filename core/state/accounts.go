package state

import (
	"math/big"

	"cdpcore/crypto"
	"cdpcore/native/admin"
	"cdpcore/native/rewards"
)

const (
	prefixBalance      = "bank/balance"
	prefixSupply       = "bank/supply"
	prefixCoreConfig   = "admin/config"
	prefixAllocation   = "rewards/allocation"
	prefixDelegate     = "borrowing/delegate"
	prefixTroveManager = "borrowing/managers"
)

type coreConfigRecord struct {
	Owner         string
	Guardian      string
	FeeReceiver   string
	Paused        bool
	PausedModules []string
	StartTime     uint64
}

type allocationRecord struct {
	Allocated *big.Int
	LastWeek  uint64
}

func (m *Manager) GetBalance(token, account crypto.Address) (*big.Int, error) {
	return m.getAmount(kvKey(prefixBalance, token.Bytes(), account.Bytes()))
}

func (m *Manager) PutBalance(token, account crypto.Address, amount *big.Int) error {
	key := kvKey(prefixBalance, token.Bytes(), account.Bytes())
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.putAmount(key, amount)
}

func (m *Manager) GetSupply(token crypto.Address) (*big.Int, error) {
	return m.getAmount(kvKey(prefixSupply, token.Bytes()))
}

func (m *Manager) PutSupply(token crypto.Address, amount *big.Int) error {
	return m.putAmount(kvKey(prefixSupply, token.Bytes()), amount)
}

// GetCoreConfig returns nil until the admin core is initialised.
func (m *Manager) GetCoreConfig() (*admin.Config, error) {
	var rec coreConfigRecord
	ok, err := m.KVGet(kvKey(prefixCoreConfig), &rec)
	if err != nil || !ok {
		return nil, err
	}
	var c addrCodec
	cfg := &admin.Config{
		Owner:         c.dec(rec.Owner),
		Guardian:      c.dec(rec.Guardian),
		FeeReceiver:   c.dec(rec.FeeReceiver),
		Paused:        rec.Paused,
		PausedModules: append([]string(nil), rec.PausedModules...),
		StartTime:     rec.StartTime,
	}
	return cfg, c.err
}

func (m *Manager) PutCoreConfig(cfg *admin.Config) error {
	return m.KVPut(kvKey(prefixCoreConfig), &coreConfigRecord{
		Owner:         addrString(cfg.Owner),
		Guardian:      addrString(cfg.Guardian),
		FeeReceiver:   addrString(cfg.FeeReceiver),
		Paused:        cfg.Paused,
		PausedModules: append([]string{}, cfg.PausedModules...),
		StartTime:     cfg.StartTime,
	})
}

func (m *Manager) GetAllocation(receiver string) (*rewards.Allocation, error) {
	var rec allocationRecord
	ok, err := m.KVGet(kvKey(prefixAllocation, []byte(receiver)), &rec)
	if err != nil || !ok {
		return nil, err
	}
	if rec.Allocated == nil {
		rec.Allocated = big.NewInt(0)
	}
	return &rewards.Allocation{Allocated: rec.Allocated, LastWeek: rec.LastWeek}, nil
}

func (m *Manager) PutAllocation(receiver string, alloc *rewards.Allocation) error {
	amount := alloc.Allocated
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	return m.KVPut(kvKey(prefixAllocation, []byte(receiver)), &allocationRecord{Allocated: amount, LastWeek: alloc.LastWeek})
}

func (m *Manager) GetDelegateApproval(account, delegate crypto.Address) (bool, error) {
	var approved bool
	ok, err := m.KVGet(kvKey(prefixDelegate, account.Bytes(), delegate.Bytes()), &approved)
	if err != nil || !ok {
		return false, err
	}
	return approved, nil
}

func (m *Manager) PutDelegateApproval(account, delegate crypto.Address, approved bool) error {
	key := kvKey(prefixDelegate, account.Bytes(), delegate.Bytes())
	if !approved {
		return m.KVDelete(key)
	}
	return m.KVPut(key, approved)
}

// GetTroveManagers returns the collateral tokens with a registered ledger, in
// registration order.
func (m *Manager) GetTroveManagers() ([]crypto.Address, error) {
	var encoded []string
	ok, err := m.KVGet(kvKey(prefixTroveManager), &encoded)
	if err != nil || !ok {
		return nil, err
	}
	var c addrCodec
	out := make([]crypto.Address, len(encoded))
	for i, s := range encoded {
		out[i] = c.dec(s)
	}
	return out, c.err
}

func (m *Manager) PutTroveManagers(collaterals []crypto.Address) error {
	encoded := make([]string, len(collaterals))
	for i, a := range collaterals {
		encoded[i] = addrString(a)
	}
	return m.KVPut(kvKey(prefixTroveManager), encoded)
}
