// Package badger provides a persistent auth decision cache backed by
// BadgerDB, so decisions survive restarts.
package badger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/auth"
)

// Type is the configuration name of this cache.
const Type = "badger"

const keyPrefix = "auth:"

// Config configures the badger cache.
type Config struct {
	// Path is the database directory. Created when missing.
	Path string `mapstructure:"path" validate:"required" json:"path"`
}

// Cache stores decisions with a native badger TTL, so expired entries are
// invisible to reads even before a sweep.
//
// Thread safety:
// Safe for concurrent use; badger serializes conflicting transactions.
type Cache struct {
	db  *badgerdb.DB
	now func() time.Time
}

type record struct {
	Status    auth.Status `json:"status"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// New opens or creates the database at cfg.Path.
func New(cfg Config) (*Cache, error) {
	if cfg.Path == "" {
		return nil, errors.New("badger auth cache: path is required")
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("badger auth cache: create %s: %w", cfg.Path, err)
	}

	opts := badgerdb.DefaultOptions(cfg.Path)
	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger auth cache: open %s: %w", cfg.Path, err)
	}

	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Get(key string) (auth.Entry, bool) {
	var rec record

	err := c.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if err != badgerdb.ErrKeyNotFound {
			logger.Warn("Badger auth cache read failed: %v", err)
		}
		return auth.Entry{}, false
	}

	return auth.Entry{Status: rec.Status, ExpiresAt: rec.ExpiresAt}, true
}

func (c *Cache) Put(key string, entry auth.Entry) error {
	ttl := entry.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return c.Delete(key)
	}

	val, err := json.Marshal(record{Status: entry.Status, ExpiresAt: entry.ExpiresAt})
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry([]byte(keyPrefix+key), val).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

func (c *Cache) Delete(key string) error {
	return c.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// Sweep removes entries whose recorded expiry has passed and reclaims
// value log space. Badger hides entries past their TTL on its own, so
// this mostly matters for clock differences and disk usage.
func (c *Cache) Sweep(now time.Time) (int, error) {
	var stale [][]byte

	err := c.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				stale = append(stale, item.KeyCopy(nil))
				continue
			}
			if !now.Before(rec.ExpiresAt) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger auth cache: scan: %w", err)
	}

	if len(stale) > 0 {
		wb := c.db.NewWriteBatch()
		defer wb.Cancel()
		for _, k := range stale {
			if err := wb.Delete(k); err != nil {
				return 0, fmt.Errorf("badger auth cache: delete: %w", err)
			}
		}
		if err := wb.Flush(); err != nil {
			return 0, fmt.Errorf("badger auth cache: flush: %w", err)
		}
	}

	// ErrNoRewrite only means there was nothing to collect.
	if err := c.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
		logger.Debug("Badger auth cache value log GC: %v", err)
	}

	return len(stale), nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
