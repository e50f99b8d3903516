package actor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// ErrNoSnapshot is returned by Storage.Load when nothing is persisted for an
// address.
var ErrNoSnapshot = errors.New("actor: no snapshot")

// Storage persists actor snapshots across evictions and restarts.
type Storage interface {
	Load(address string) ([]byte, error)
	Save(address string, snapshot []byte) error
	Delete(address string) error
	Close() error
}

// PebbleStorage keeps snapshots in a local Pebble database under
// "actor/<address>". Writes are synced.
type PebbleStorage struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a Pebble database in dir.
func OpenPebble(dir string) (*PebbleStorage, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open actor storage at %s: %w", dir, err)
	}
	return &PebbleStorage{db: db}, nil
}

func snapshotKey(address string) []byte {
	return []byte("actor/" + address)
}

func (p *PebbleStorage) Load(address string) ([]byte, error) {
	v, closer, err := p.db.Get(snapshotKey(address))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", address, err)
	}
	defer closer.Close()

	// v is only valid until closer.Close
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (p *PebbleStorage) Save(address string, snapshot []byte) error {
	if err := p.db.Set(snapshotKey(address), snapshot, pebble.Sync); err != nil {
		return fmt.Errorf("save snapshot %s: %w", address, err)
	}
	return nil
}

func (p *PebbleStorage) Delete(address string) error {
	if err := p.db.Delete(snapshotKey(address), pebble.Sync); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", address, err)
	}
	return nil
}

func (p *PebbleStorage) Close() error {
	return p.db.Close()
}

// MemoryStorage is a Storage for tests and single-process development.
type MemoryStorage struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	saves     int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{snapshots: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(address string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.snapshots[address]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) Save(address string, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[address] = append([]byte(nil), snapshot...)
	m.saves++
	return nil
}

func (m *MemoryStorage) Delete(address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, address)
	return nil
}

func (m *MemoryStorage) Close() error { return nil }

// Saves counts Save calls.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
