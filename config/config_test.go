package config

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nftfarm/crypto"
	"nftfarm/native/farm"
)

var testOwner = func() string {
	var raw [20]byte
	raw[0] = 0x42
	raw[19] = 0x24
	return crypto.FromArray(raw).String()
}()

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.ListenAddress != DefaultListenAddress || cfg.Backend != DefaultBackend || cfg.SnapshotSchedule != DefaultSnapshotSchedule {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	launch, _ := ParseTime(cfg.LaunchTime)
	deadline, _ := ParseTime(cfg.FarmDeadline)
	release, _ := ParseTime(cfg.ReleaseTime)
	if deadline-launch != 30*24*3600 || release-deadline != 50*24*3600 {
		t.Fatalf("unexpected default windows %d %d", deadline-launch, release-deadline)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.LaunchTime != cfg.LaunchTime {
		t.Fatalf("reload changed launch time")
	}
}

func TestLoadParsesFarmSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.toml")
	contents := `DataDir = "./data"
Owner = "` + testOwner + `"
LaunchTime = "2030-01-01T00:00:00Z"
FarmDeadline = "2030-01-31T00:00:00Z"
ReleaseTime = "1900000000"
ShareCeiling = "3/2"
JournalDSN = "postgres://farm@localhost/farm"

[rate_limit]
PerSecond = 5
Burst = 10

[pauses]
Farm = true

[telemetry]
Endpoint = "otel:4318"
Traces = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Pauses.Farm || cfg.RateLimit.Burst != 10 || !cfg.Telemetry.Traces {
		t.Fatalf("unexpected config %+v", cfg)
	}
	fc, err := cfg.FarmConfig()
	if err != nil {
		t.Fatalf("farm config: %v", err)
	}
	want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	if fc.LaunchTime != want || fc.ReleaseTime != 1_900_000_000 {
		t.Fatalf("unexpected boundaries %+v", fc)
	}
	if fc.ShareCeiling.Cmp(big.NewRat(3, 2)) != 0 {
		t.Fatalf("unexpected ceiling %s", fc.ShareCeiling)
	}
	if fc.Owner[0] != 0x42 || fc.Owner[19] != 0x24 {
		t.Fatalf("unexpected owner %x", fc.Owner)
	}
}

func TestValidateRejectsBadWindows(t *testing.T) {
	cfg := &Config{DataDir: "d", LaunchTime: "300", FarmDeadline: "200", ReleaseTime: "400"}
	if err := Validate(cfg); !errors.Is(err, farm.ErrInvalidTimeWindow) {
		t.Fatalf("expected invalid window, got %v", err)
	}
	cfg = &Config{DataDir: "d", LaunchTime: "yesterday", FarmDeadline: "200", ReleaseTime: "400"}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "LaunchTime") {
		t.Fatalf("expected LaunchTime error, got %v", err)
	}
	cfg = &Config{DataDir: "d", LaunchTime: "1", FarmDeadline: "2", ReleaseTime: "3", ShareCeiling: "-1"}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected ceiling error")
	}
	cfg = &Config{DataDir: "d", Backend: "redis", LaunchTime: "1", FarmDeadline: "2", ReleaseTime: "3"}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "Backend") {
		t.Fatalf("expected Backend error, got %v", err)
	}
	cfg = &Config{DataDir: "d", LaunchTime: "1", FarmDeadline: "2", ReleaseTime: "3"}
	if _, err := cfg.FarmConfig(); err == nil {
		t.Fatalf("farm config requires an owner")
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	contents := `pools:
  - collateral: "0x0000000000000000000000000000000000000a01"
    rate: "5000000000000000000"
    capacity: 10
    share_weight: "20"
rewards:
  - token: "` + testOwner + `"
    funder: "0x0000000000000000000000000000000000000b01"
    amount: "1000"
    price_in_points: "100000000000000000000"
items:
  - collection: "0x0000000000000000000000000000000000000a01"
    owner: "0x0000000000000000000000000000000000000c01"
    ids: [1, 2, 3]
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(manifest.Pools) != 1 || len(manifest.Rewards) != 1 || len(manifest.Items[0].IDs) != 3 {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	pool, err := manifest.Pools[0].Parse()
	if err != nil {
		t.Fatalf("parse pool: %v", err)
	}
	if pool.ShareWeightBase.Cmp(big.NewInt(1)) != 0 || pool.Capacity != 10 {
		t.Fatalf("unexpected pool %+v", pool)
	}
	reward, err := manifest.Rewards[0].Parse()
	if err != nil {
		t.Fatalf("parse reward: %v", err)
	}
	if reward.PriceInPoints.String() != "100000000000000000000" {
		t.Fatalf("unexpected price %s", reward.PriceInPoints)
	}
	bad := RewardEntry{Token: "nope", Funder: testOwner, Amount: "1", PriceInPoints: "1"}
	if _, err := bad.Parse(); err == nil {
		t.Fatalf("expected token parse error")
	}
}
