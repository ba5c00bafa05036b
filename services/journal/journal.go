// Package journal appends committed farm events to a SQL table guarded by a
// blake3 hash chain.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"nftfarm/core/events"
	"nftfarm/core/types"
)

var (
	// ErrChainBroken is returned by Verify when a stored entry does not link to
	// its predecessor or its hash does not match its contents.
	ErrChainBroken = errors.New("journal: hash chain broken")
	// ErrUnsupportedDSN is returned when the DSN scheme is not recognised.
	ErrUnsupportedDSN = errors.New("journal: unsupported dsn")
	// ErrNilEvent is returned when appending a nil event.
	ErrNilEvent = errors.New("journal: nil event")
)

var genesisHash = strings.Repeat("0", 64)

// Entry is one journaled event.
type Entry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence     uint64    `gorm:"uniqueIndex;not null"`
	Type         string    `gorm:"size:64;index"`
	Attributes   string    `gorm:"type:text"`
	RecordedUnix int64     `gorm:"not null"`
	PrevHash     string    `gorm:"size:64"`
	Hash         string    `gorm:"size:64;uniqueIndex"`
	CreatedAt    time.Time
}

// TableName pins the journal table name.
func (Entry) TableName() string { return "farm_journal" }

// Event decodes the stored attributes back into an event.
func (e Entry) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if e.Attributes != "" {
		if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("journal: decode entry %d: %w", e.Sequence, err)
		}
	}
	return &types.Event{Type: e.Type, Attributes: attrs}, nil
}

// Open connects to the database named by dsn. Supported forms are
// "sqlite://<path>", "memory", and postgres URLs.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch {
	case trimmed == "memory":
		return gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), cfg)
	case strings.HasPrefix(trimmed, "sqlite://"):
		path := strings.TrimPrefix(trimmed, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
		}
		return gorm.Open(sqlite.Open(path), cfg)
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return gorm.Open(postgres.Open(trimmed), cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}

// AutoMigrate creates the journal table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Journal appends events in order. Safe for concurrent use.
type Journal struct {
	db       *gorm.DB
	mu       sync.Mutex
	seq      uint64
	head     string
	logger   *slog.Logger
	nowFn    func() time.Time
	onAppend func(Entry)
}

// New migrates db and resumes the chain from its last entry.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, head: genesisHash, logger: slog.Default(), nowFn: time.Now}
	var last Entry
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("journal: load head: %w", err)
	}
	if last.Hash != "" {
		j.seq = last.Sequence
		j.head = last.Hash
	}
	return j, nil
}

// SetLogger overrides the logger used for failures inside Emit.
func (j *Journal) SetLogger(logger *slog.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// SetNowFunc overrides the clock used to timestamp entries.
func (j *Journal) SetNowFunc(now func() time.Time) {
	if now != nil {
		j.nowFn = now
	}
}

// OnAppend registers a callback invoked after each successful append.
func (j *Journal) OnAppend(fn func(Entry)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.onAppend = fn
}

// Head returns the last sequence number and hash.
func (j *Journal) Head() (uint64, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq, j.head
}

func entryHash(prev string, seq uint64, typ, attrs string, recorded int64) string {
	h := blake3.New(32, nil)
	h.Write([]byte(prev))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(recorded))
	h.Write(buf[:])
	h.Write([]byte(typ))
	h.Write([]byte{0})
	h.Write([]byte(attrs))
	return hex.EncodeToString(h.Sum(nil))
}

// Append stores evt as the next entry of the chain.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (*Entry, error) {
	if evt == nil {
		return nil, ErrNilEvent
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	// encoding/json sorts map keys, which keeps the hashed form stable.
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		ID:           uuid.New(),
		Sequence:     j.seq + 1,
		Type:         evt.Type,
		Attributes:   string(encoded),
		RecordedUnix: j.nowFn().UTC().Unix(),
		PrevHash:     j.head,
	}
	entry.Hash = entryHash(entry.PrevHash, entry.Sequence, entry.Type, entry.Attributes, entry.RecordedUnix)
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("journal: append %s: %w", evt.Type, err)
	}
	j.seq = entry.Sequence
	j.head = entry.Hash
	if j.onAppend != nil {
		j.onAppend(entry)
	}
	return &entry, nil
}

// Emit implements events.Emitter. Events without an attribute rendering are
// skipped; storage failures are logged since emission cannot fail.
func (j *Journal) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	if _, err := j.Append(context.Background(), payload.Event()); err != nil {
		j.logger.Error("journal append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Entries returns up to limit entries with a sequence greater than after.
func (j *Journal) Entries(ctx context.Context, after uint64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []Entry
	err := j.db.WithContext(ctx).
		Where("sequence > ?", after).
		Order("sequence asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Verify walks the whole chain and returns the number of entries checked.
func (j *Journal) Verify(ctx context.Context) (uint64, error) {
	prev := genesisHash
	var checked uint64
	for {
		batch, err := j.Entries(ctx, checked, 500)
		if err != nil {
			return checked, err
		}
		if len(batch) == 0 {
			return checked, nil
		}
		for _, entry := range batch {
			if entry.Sequence != checked+1 {
				return checked, fmt.Errorf("%w: gap before sequence %d", ErrChainBroken, entry.Sequence)
			}
			if entry.PrevHash != prev {
				return checked, fmt.Errorf("%w: sequence %d does not link to its predecessor", ErrChainBroken, entry.Sequence)
			}
			want := entryHash(entry.PrevHash, entry.Sequence, entry.Type, entry.Attributes, entry.RecordedUnix)
			if entry.Hash != want {
				return checked, fmt.Errorf("%w: sequence %d hash mismatch", ErrChainBroken, entry.Sequence)
			}
			prev = entry.Hash
			checked = entry.Sequence
		}
	}
}
