package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nftfarm/storage"
)

// Manager reads and writes RLP-encoded records on top of a key-value
// database. Writes are buffered in an overlay until Commit flushes them in a
// single batch; Discard drops them.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	pending map[string]pendingWrite
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string]pendingWrite)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	m.mu.Lock()
	write, ok := m.pending[string(hashed)]
	m.mu.Unlock()
	if ok {
		if write.deleted {
			return nil, nil
		}
		return append([]byte(nil), write.value...), nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) set(hashed, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[string(hashed)] = pendingWrite{value: append([]byte(nil), value...)}
}

// Dirty reports how many keys have uncommitted writes.
func (m *Manager) Dirty() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Commit writes every pending change to the database atomically.
func (m *Manager) Commit() error {
	if m == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	batch := new(storage.Batch)
	for key, write := range m.pending {
		if write.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), write.value)
	}
	if err := m.db.Write(batch); err != nil {
		return err
	}
	m.pending = make(map[string]pendingWrite)
	return nil
}

// Discard drops every pending change.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]pendingWrite)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.set(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[string(kvKey(key))] = pendingWrite{deleted: true}
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.set(hashed, encoded)
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
