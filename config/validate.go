package config

import (
	"fmt"

	"cdpcore/crypto"
)

// Roles holds the decoded governance addresses.
type Roles struct {
	Owner       crypto.Address
	Guardian    crypto.Address
	FeeReceiver crypto.Address
}

// Roles decodes the bech32 role addresses. Guardian is optional.
func (c *Config) Roles() (Roles, error) {
	var roles Roles
	var err error
	if roles.Owner, err = crypto.DecodeAddress(c.Owner); err != nil {
		return roles, fmt.Errorf("owner: %w", err)
	}
	if roles.FeeReceiver, err = crypto.DecodeAddress(c.FeeReceiver); err != nil {
		return roles, fmt.Errorf("fee receiver: %w", err)
	}
	if c.Guardian != "" {
		if roles.Guardian, err = crypto.DecodeAddress(c.Guardian); err != nil {
			return roles, fmt.Errorf("guardian: %w", err)
		}
	}
	return roles, nil
}

// Validate checks roles, emission and every collateral table.
func (c *Config) Validate() error {
	if _, err := c.Roles(); err != nil {
		return err
	}
	if _, err := c.Emission(); err != nil {
		return err
	}
	if c.DebtToken == c.RewardToken {
		return fmt.Errorf("debt and reward token must differ")
	}
	if len(c.Collaterals) == 0 {
		return fmt.Errorf("at least one collateral required")
	}
	seen := make(map[string]struct{}, len(c.Collaterals))
	for _, coll := range c.Collaterals {
		if coll.Name == "" {
			return fmt.Errorf("collateral name required")
		}
		if _, dup := seen[coll.Name]; dup {
			return fmt.Errorf("collateral %s listed twice", coll.Name)
		}
		seen[coll.Name] = struct{}{}
		if _, err := coll.Parameters(); err != nil {
			return err
		}
	}
	return nil
}
