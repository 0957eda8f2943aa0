// Package localstore persists small pieces of client state (identity,
// preferences, recent files, run counters) in a key-value store scoped to one
// playground origin.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// KV is the client-side key-value store.
type KV interface {
	Get(key string) ([]byte, error) // returns ErrNotFound if absent
	Set(key string, value []byte) error
	Delete(key string) error
}

// Badger is a KV backed by a badger database.
type Badger struct {
	db     *badger.DB
	prefix string
}

// Open opens (creating if needed) the badger database under dir. Keys are
// namespaced by origin so several playground servers can share one dir.
func Open(dir, origin string, logger *slog.Logger) (*Badger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	opts := badger.DefaultOptions(filepath.Clean(dir)).WithNumVersionsToKeep(1)
	return open(opts, origin, logger)
}

// OpenInMemory returns a badger KV that is discarded on Close.
func OpenInMemory(origin string) (*Badger, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), origin, nil)
}

func open(opts badger.Options, origin string, logger *slog.Logger) (*Badger, error) {
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Badger{db: db, prefix: origin + "/"}, nil
}

func (b *Badger) key(k string) []byte {
	return []byte(b.prefix + k)
}

// Get implements KV.
func (b *Badger) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return out, nil
}

// Set implements KV.
func (b *Badger) Set(key string, value []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(key), value)
	}); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (b *Badger) Delete(key string) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Memory is a process-scoped KV used when no persistent store is available.
type Memory struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemory returns an empty in-process KV.
func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

// Get implements KV.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements KV.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements KV.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
	return nil
}

// GetJSON decodes the JSON value stored at key into v. It returns
// ErrNotFound if the key is absent.
func GetJSON(kv KV, key string, v any) error {
	data, err := kv.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v as JSON at key.
func SetJSON(kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(key, data)
}
