package admin

import (
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

var (
	errNilState     = nativecommon.NewError(nativecommon.ErrValidation, "admin core: state not configured")
	errNotInit      = nativecommon.NewError(nativecommon.ErrValidation, "admin core: not initialised")
	errOwnerZero    = nativecommon.NewError(nativecommon.ErrValidation, "admin core: owner required")
	errReceiverZero = nativecommon.NewError(nativecommon.ErrValidation, "admin core: fee receiver required")
	// ErrUnauthorized is returned when the caller lacks the privilege for a call.
	ErrUnauthorized = nativecommon.NewError(nativecommon.ErrValidation, "admin core: caller not authorized")
)

// Config is the persisted protocol-wide administration record.
type Config struct {
	Owner         crypto.Address
	Guardian      crypto.Address
	FeeReceiver   crypto.Address
	Paused        bool
	PausedModules []string
	StartTime     uint64
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.PausedModules = append([]string(nil), c.PausedModules...)
	return &out
}

type coreState interface {
	GetCoreConfig() (*Config, error)
	PutCoreConfig(cfg *Config) error
}

// Core exposes the privileged roles, the fee receiver and the pause switch
// consumed by every other module.
type Core struct {
	state coreState
}

func NewCore() *Core { return &Core{} }

// SetState wires the core to the external persistence layer.
func (c *Core) SetState(state coreState) {
	if c == nil {
		return
	}
	c.state = state
}

// Init stores the initial configuration when none exists yet. An existing
// record is left untouched so restarts keep governance changes.
func (c *Core) Init(cfg Config) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	existing, err := c.state.GetCoreConfig()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if cfg.Owner.IsZero() {
		return errOwnerZero
	}
	if cfg.FeeReceiver.IsZero() {
		return errReceiverZero
	}
	return c.state.PutCoreConfig(cfg.Clone())
}

func (c *Core) load() (*Config, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	cfg, err := c.state.GetCoreConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errNotInit
	}
	return cfg, nil
}

// Snapshot returns a copy of the stored configuration.
func (c *Core) Snapshot() (*Config, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

func (c *Core) Owner() (crypto.Address, error) {
	cfg, err := c.load()
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.Owner, nil
}

func (c *Core) Guardian() (crypto.Address, error) {
	cfg, err := c.load()
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.Guardian, nil
}

func (c *Core) FeeReceiver() (crypto.Address, error) {
	cfg, err := c.load()
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.FeeReceiver, nil
}

// StartTime is the deployment timestamp anchoring bootstrap and emission weeks.
func (c *Core) StartTime() (uint64, error) {
	cfg, err := c.load()
	if err != nil {
		return 0, err
	}
	return cfg.StartTime, nil
}

// IsPaused implements nativecommon.PauseView. Storage failures report paused.
func (c *Core) IsPaused(module string) bool {
	cfg, err := c.load()
	if err != nil {
		return true
	}
	if cfg.Paused {
		return true
	}
	for _, m := range cfg.PausedModules {
		if m == module {
			return true
		}
	}
	return false
}

// RequireOwner fails unless caller is the owner.
func (c *Core) RequireOwner(caller crypto.Address) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if !caller.Equal(cfg.Owner) {
		return ErrUnauthorized
	}
	return nil
}

// RequireOwnerOrGuardian fails unless caller holds either role.
func (c *Core) RequireOwnerOrGuardian(caller crypto.Address) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if caller.Equal(cfg.Owner) || (!cfg.Guardian.IsZero() && caller.Equal(cfg.Guardian)) {
		return nil
	}
	return ErrUnauthorized
}

// SetPaused toggles the global pause. The guardian may pause but only the
// owner may unpause.
func (c *Core) SetPaused(caller crypto.Address, paused bool) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if paused {
		if !caller.Equal(cfg.Owner) && !(caller.Equal(cfg.Guardian) && !cfg.Guardian.IsZero()) {
			return ErrUnauthorized
		}
	} else if !caller.Equal(cfg.Owner) {
		return ErrUnauthorized
	}
	cfg.Paused = paused
	return c.state.PutCoreConfig(cfg)
}

// SetModulePaused pauses or resumes a single module under the same role rules
// as SetPaused.
func (c *Core) SetModulePaused(caller crypto.Address, module string, paused bool) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if paused {
		if err := c.RequireOwnerOrGuardian(caller); err != nil {
			return err
		}
	} else if !caller.Equal(cfg.Owner) {
		return ErrUnauthorized
	}
	kept := cfg.PausedModules[:0]
	for _, m := range cfg.PausedModules {
		if m != module {
			kept = append(kept, m)
		}
	}
	if paused {
		kept = append(kept, module)
	}
	cfg.PausedModules = kept
	return c.state.PutCoreConfig(cfg)
}

func (c *Core) SetFeeReceiver(caller, receiver crypto.Address) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if !caller.Equal(cfg.Owner) {
		return ErrUnauthorized
	}
	if receiver.IsZero() {
		return errReceiverZero
	}
	cfg.FeeReceiver = receiver
	return c.state.PutCoreConfig(cfg)
}

func (c *Core) SetGuardian(caller, guardian crypto.Address) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if !caller.Equal(cfg.Owner) {
		return ErrUnauthorized
	}
	cfg.Guardian = guardian
	return c.state.PutCoreConfig(cfg)
}

// TransferOwnership hands the owner role to next.
func (c *Core) TransferOwnership(caller, next crypto.Address) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if !caller.Equal(cfg.Owner) {
		return ErrUnauthorized
	}
	if next.IsZero() {
		return errOwnerZero
	}
	cfg.Owner = next
	return c.state.PutCoreConfig(cfg)
}
