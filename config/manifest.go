package config

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"nftfarm/crypto"
)

// Manifest describes the pools, reward allotments and demo balances applied
// by `farmctl bootstrap`.
type Manifest struct {
	Pools    []PoolEntry    `yaml:"pools"`
	Rewards  []RewardEntry  `yaml:"rewards"`
	Items    []ItemEntry    `yaml:"items"`
	Balances []BalanceEntry `yaml:"balances"`
}

// PoolEntry admits one collateral collection.
type PoolEntry struct {
	Collateral      string `yaml:"collateral"`
	Rate            string `yaml:"rate"`
	Capacity        uint64 `yaml:"capacity"`
	ShareWeight     string `yaml:"share_weight"`
	ShareWeightBase string `yaml:"share_weight_base"`
}

// RewardEntry funds one reward allotment.
type RewardEntry struct {
	Token         string `yaml:"token"`
	Funder        string `yaml:"funder"`
	Amount        string `yaml:"amount"`
	PriceInPoints string `yaml:"price_in_points"`
}

// ItemEntry mints collateral items to an owner.
type ItemEntry struct {
	Collection string   `yaml:"collection"`
	Owner      string   `yaml:"owner"`
	IDs        []uint64 `yaml:"ids"`
}

// BalanceEntry credits a token balance.
type BalanceEntry struct {
	Token   string `yaml:"token"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// Pool is a parsed PoolEntry.
type Pool struct {
	Collateral      [20]byte
	Rate            *big.Int
	Capacity        uint64
	ShareWeight     *big.Int
	ShareWeightBase *big.Int
}

// Reward is a parsed RewardEntry.
type Reward struct {
	Token         [20]byte
	Funder        [20]byte
	Amount        *big.Int
	PriceInPoints *big.Int
}

// LoadManifest reads and decodes a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", path, err)
	}
	return &manifest, nil
}

// Parse converts the entry into typed values.
func (p PoolEntry) Parse() (Pool, error) {
	var out Pool
	var err error
	if out.Collateral, err = crypto.ParseAddress(p.Collateral); err != nil {
		return out, fmt.Errorf("pool collateral: %w", err)
	}
	if out.Rate, err = ParseAmount(p.Rate); err != nil {
		return out, fmt.Errorf("pool rate: %w", err)
	}
	if out.ShareWeight, err = ParseAmount(p.ShareWeight); err != nil {
		return out, fmt.Errorf("pool share weight: %w", err)
	}
	base := p.ShareWeightBase
	if base == "" {
		base = "1"
	}
	if out.ShareWeightBase, err = ParseAmount(base); err != nil {
		return out, fmt.Errorf("pool share weight base: %w", err)
	}
	out.Capacity = p.Capacity
	return out, nil
}

// Parse converts the entry into typed values.
func (r RewardEntry) Parse() (Reward, error) {
	var out Reward
	var err error
	if out.Token, err = crypto.ParseAddress(r.Token); err != nil {
		return out, fmt.Errorf("reward token: %w", err)
	}
	if out.Funder, err = crypto.ParseAddress(r.Funder); err != nil {
		return out, fmt.Errorf("reward funder: %w", err)
	}
	if out.Amount, err = ParseAmount(r.Amount); err != nil {
		return out, fmt.Errorf("reward amount: %w", err)
	}
	if out.PriceInPoints, err = ParseAmount(r.PriceInPoints); err != nil {
		return out, fmt.Errorf("reward price: %w", err)
	}
	return out, nil
}
