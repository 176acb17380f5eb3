package cache

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"smartshop/internal/logging"
)

// Badger is a persistent Cache backed by BadgerDB. Badger handles TTL
// expiry natively, so recommendation entries (ttl 0) survive restarts while
// search entries age out on their own.
type Badger struct {
	db *badger.DB
}

// NewBadger opens (or creates) a Badger cache at dir.
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // suppress badger's internal logging
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger at %s: %w", dir, err)
	}
	logging.CacheLog("badger cache opened at %s", dir)
	return &Badger{db: db}, nil
}

// Get returns the value stored under key, if present and unexpired.
func (b *Badger) Get(key string) ([]byte, bool) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.CacheDebug("get %s: %v", key, err)
		}
		return nil, false
	}
	return out, true
}

// Set stores value under key. ttl <= 0 means no expiry.
func (b *Badger) Set(key string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (b *Badger) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}
