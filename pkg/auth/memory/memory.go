// Package memory provides an in-process auth decision cache.
package memory

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/marmos91/dittodav/pkg/auth"
)

// Type is the configuration name of this cache.
const Type = "memory"

// Cache keeps decisions in a concurrent map. Entries live until they are
// swept or replaced.
type Cache struct {
	entries *xsync.Map[string, auth.Entry]
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: xsync.NewMap[string, auth.Entry]()}
}

func (c *Cache) Get(key string) (auth.Entry, bool) {
	return c.entries.Load(key)
}

func (c *Cache) Put(key string, entry auth.Entry) error {
	c.entries.Store(key, entry)
	return nil
}

func (c *Cache) Delete(key string) error {
	c.entries.Delete(key)
	return nil
}

func (c *Cache) Sweep(now time.Time) (int, error) {
	removed := 0
	c.entries.Range(func(key string, entry auth.Entry) bool {
		if entry.Expired(now) {
			c.entries.Compute(key, func(current auth.Entry, loaded bool) (auth.Entry, xsync.ComputeOp) {
				// Only drop it if nobody refreshed it in between.
				if loaded && current.Expired(now) {
					removed++
					return current, xsync.DeleteOp
				}
				return current, xsync.CancelOp
			})
		}
		return true
	})
	return removed, nil
}

// CountExpired reports how many entries Sweep would remove at now.
func (c *Cache) CountExpired(now time.Time) (int, error) {
	n := 0
	c.entries.Range(func(_ string, entry auth.Entry) bool {
		if entry.Expired(now) {
			n++
		}
		return true
	})
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	return c.entries.Size()
}

func (c *Cache) Close() error {
	c.entries.Clear()
	return nil
}
