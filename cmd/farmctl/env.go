package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"nftfarm/cmd/internal/passphrase"
	"nftfarm/config"
	"nftfarm/core"
	"nftfarm/crypto"
	"nftfarm/observability/logging"
	"nftfarm/services/journal"
	"nftfarm/storage"
)

// commonFlags are shared by every command that opens the farm state.
type commonFlags struct {
	config   string
	keystore string
	passEnv  string
	now      int64
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.config, "config", defaultConfig, "Path to the farm config file")
	fs.StringVar(&c.keystore, "keystore", "", "Signer keystore (defaults to OwnerKeystorePath)")
	fs.StringVar(&c.passEnv, "pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	fs.Int64Var(&c.now, "now", 0, "Override the clock with unix seconds for rehearsals")
	return c
}

// farmEnv is an opened node plus its configuration.
type farmEnv struct {
	cfg     *config.Config
	node    *core.Node
	flags   *commonFlags
	closers []func()
}

func openEnv(flags *commonFlags, stderr io.Writer) (*farmEnv, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWith("farmctl", cfg.Environment, logging.Options{Output: stderr, Level: slog.LevelWarn})
	if err := cfg.ResolveOwner(); err != nil {
		return nil, err
	}
	farmCfg, err := cfg.FarmConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	node, err := core.NewNode(core.NodeConfig{DB: db, Farm: farmCfg, Paused: cfg.Pauses.Farm, Logger: logger})
	if err != nil {
		db.Close()
		return nil, err
	}
	env := &farmEnv{cfg: cfg, node: node, flags: flags, closers: []func(){node.Close}}
	if flags.now > 0 {
		at := flags.now
		node.SetNowFunc(func() int64 { return at })
	}
	if dsn := strings.TrimSpace(cfg.JournalDSN); dsn != "" {
		jrnl, closeJournal, err := openJournal(dsn)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, closeJournal)
		jrnl.SetLogger(logger)
		node.Subscribe(jrnl)
	}
	return env, nil
}

func openJournal(dsn string) (*journal.Journal, func(), error) {
	if path, ok := strings.CutPrefix(dsn, "sqlite://"); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("prepare journal directory: %w", err)
		}
	}
	db, err := journal.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	jrnl, err := journal.New(db)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return jrnl, closeFn, nil
}

func (e *farmEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// signer unlocks the keystore and returns its address.
func (e *farmEnv) signer() ([20]byte, error) {
	var out [20]byte
	path := strings.TrimSpace(e.flags.keystore)
	if path == "" {
		path = strings.TrimSpace(e.cfg.OwnerKeystorePath)
	}
	if path == "" {
		return out, fmt.Errorf("no signer keystore; pass -keystore or set OwnerKeystorePath")
	}
	pass, err := passphrase.NewSource(e.flags.passEnv).Get()
	if err != nil {
		return out, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return out, fmt.Errorf("unlock keystore %s: %w", path, err)
	}
	return key.PubKey().Address().Array(), nil
}

// parseItems reads "<collection>:<id>" pairs separated by commas.
func parseItems(raw string) ([][20]byte, []uint64, error) {
	var pools [][20]byte
	var ids []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		collection, id, ok := strings.Cut(part, ":")
		if !ok {
			return nil, nil, fmt.Errorf("item %q must be <collection>:<id>", part)
		}
		pool, err := crypto.ParseAddress(collection)
		if err != nil {
			return nil, nil, fmt.Errorf("item %q: %w", part, err)
		}
		itemID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("item %q: invalid id", part)
		}
		pools = append(pools, pool)
		ids = append(ids, itemID)
	}
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("at least one item required")
	}
	return pools, ids, nil
}
