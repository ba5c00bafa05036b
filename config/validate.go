package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"nftfarm/crypto"
	"nftfarm/native/farm"
)

// ParseTime accepts RFC3339 timestamps or unix seconds.
func ParseTime(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("timestamp required")
	}
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return secs, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither unix seconds nor RFC3339", raw)
	}
	return parsed.Unix(), nil
}

// ParseCeiling parses a positive rational such as "100" or "3/2".
func ParseCeiling(raw string) (*big.Rat, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(big.Rat).Set(farm.DefaultShareCeiling), nil
	}
	ceiling, ok := new(big.Rat).SetString(trimmed)
	if !ok || ceiling.Sign() <= 0 {
		return nil, fmt.Errorf("share ceiling %q must be a positive rational", raw)
	}
	return ceiling, nil
}

// ParseAmount parses a non-negative base-10 integer.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

// Validate checks the addresses, boundaries and ceiling of cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "leveldb", "bolt", "bbolt":
	default:
		return fmt.Errorf("config: unknown Backend %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.Owner) != "" {
		if _, err := crypto.ParseAddress(cfg.Owner); err != nil {
			return fmt.Errorf("config: Owner: %w", err)
		}
	}
	launch, err := ParseTime(cfg.LaunchTime)
	if err != nil {
		return fmt.Errorf("config: LaunchTime: %w", err)
	}
	deadline, err := ParseTime(cfg.FarmDeadline)
	if err != nil {
		return fmt.Errorf("config: FarmDeadline: %w", err)
	}
	release, err := ParseTime(cfg.ReleaseTime)
	if err != nil {
		return fmt.Errorf("config: ReleaseTime: %w", err)
	}
	if !(launch < deadline && deadline < release) {
		return fmt.Errorf("config: %w", farm.ErrInvalidTimeWindow)
	}
	if _, err := ParseCeiling(cfg.ShareCeiling); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// FarmConfig converts the operator configuration into engine parameters.
// The owner must be set.
func (c *Config) FarmConfig() (farm.Config, error) {
	var out farm.Config
	if err := Validate(c); err != nil {
		return out, err
	}
	owner, err := crypto.ParseAddress(c.Owner)
	if err != nil {
		return out, fmt.Errorf("config: Owner: %w", err)
	}
	out.Owner = owner
	out.LaunchTime, _ = ParseTime(c.LaunchTime)
	out.FarmDeadline, _ = ParseTime(c.FarmDeadline)
	out.ReleaseTime, _ = ParseTime(c.ReleaseTime)
	out.ShareCeiling, _ = ParseCeiling(c.ShareCeiling)
	return out, nil
}

// ResolveOwner fills Owner from the keystore header when only
// OwnerKeystorePath is configured.
func (c *Config) ResolveOwner() error {
	if strings.TrimSpace(c.Owner) != "" {
		return nil
	}
	path := strings.TrimSpace(c.OwnerKeystorePath)
	if path == "" {
		return fmt.Errorf("config: Owner or OwnerKeystorePath required")
	}
	owner, err := crypto.KeystoreAddress(path)
	if err != nil {
		return fmt.Errorf("config: OwnerKeystorePath: %w", err)
	}
	c.Owner = crypto.FromArray(owner).String()
	return nil
}
