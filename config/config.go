package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddress    = ":8090"
	DefaultDataDir          = "./farm-data"
	DefaultBackend          = "leveldb"
	DefaultSnapshotSchedule = "@every 1m"
	DefaultShareCeiling     = "100"
)

// Load loads the configuration from the given path. A missing file is
// created with defaults anchored to the current time.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, time.Now())
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = DefaultBackend
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(cfg.SnapshotSchedule) == "" {
		cfg.SnapshotSchedule = DefaultSnapshotSchedule
	}
	if strings.TrimSpace(cfg.ShareCeiling) == "" {
		cfg.ShareCeiling = DefaultShareCeiling
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.RateLimit.PerSecond <= 0 {
		cfg.RateLimit.PerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
}

// createDefault creates and saves a default configuration file. The farm
// launches two days after creation, accrues for thirty days and releases
// fifty days after the deadline.
func createDefault(path string, now time.Time) (*Config, error) {
	launch := now.Add(48 * time.Hour).Unix()
	deadline := launch + int64((30 * 24 * time.Hour).Seconds())
	release := deadline + int64((50 * 24 * time.Hour).Seconds())

	cfg := &Config{
		DataDir:          DefaultDataDir,
		Backend:          DefaultBackend,
		LaunchTime:       strconv.FormatInt(launch, 10),
		FarmDeadline:     strconv.FormatInt(deadline, 10),
		ReleaseTime:      strconv.FormatInt(release, 10),
		ShareCeiling:     DefaultShareCeiling,
		ListenAddress:    DefaultListenAddress,
		JournalDSN:       "sqlite://" + filepath.Join(DefaultDataDir, "journal.db"),
		Environment:      "local",
		SnapshotSchedule: DefaultSnapshotSchedule,
		RateLimit:        RateLimit{PerSecond: 20, Burst: 40},
		Telemetry:        Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *Config) error {
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
