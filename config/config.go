package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the protocol configuration: governance roles, token names, the
// stability pool emission and one table per listed collateral.
type Config struct {
	Owner       string `toml:"Owner"`
	Guardian    string `toml:"Guardian"`
	FeeReceiver string `toml:"FeeReceiver"`
	// DebtToken and RewardToken name the module accounts that act as the
	// token identifiers.
	DebtToken        string       `toml:"DebtToken"`
	RewardToken      string       `toml:"RewardToken"`
	StartTime        uint64       `toml:"StartTime"`
	SPWeeklyEmission string       `toml:"SPWeeklyEmission"`
	Collaterals      []Collateral `toml:"Collateral"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Owner = strings.TrimSpace(c.Owner)
	c.Guardian = strings.TrimSpace(c.Guardian)
	c.FeeReceiver = strings.TrimSpace(c.FeeReceiver)
	if strings.TrimSpace(c.DebtToken) == "" {
		c.DebtToken = DefaultDebtToken
	}
	if strings.TrimSpace(c.RewardToken) == "" {
		c.RewardToken = DefaultRewardToken
	}
	if strings.TrimSpace(c.SPWeeklyEmission) == "" {
		c.SPWeeklyEmission = "0"
	}
	for i := range c.Collaterals {
		c.Collaterals[i].Name = strings.TrimSpace(c.Collaterals[i].Name)
		if c.Collaterals[i].OracleHeartbeat == 0 {
			c.Collaterals[i].OracleHeartbeat = DefaultOracleHeartbeat
		}
	}
}

// createDefault creates and saves a default configuration file. The roles are
// left empty so the operator must fill them in before the file validates.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a single-collateral configuration with the stock risk
// parameters.
func Default() *Config {
	return &Config{
		DebtToken:        DefaultDebtToken,
		RewardToken:      DefaultRewardToken,
		SPWeeklyEmission: "0",
		Collaterals: []Collateral{{
			Name:            "weth",
			OracleHeartbeat: DefaultOracleHeartbeat,
		}},
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
