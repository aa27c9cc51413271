package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status is the outcome of an authentication decision.
type Status int

const (
	// StatusGranted means the authority answered 200.
	StatusGranted Status = iota

	// StatusDenied means the authority answered 401 or 403.
	StatusDenied

	// StatusFailed means the authority could not be reached or answered
	// with any other status.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a cached decision with its absolute expiry.
type Entry struct {
	Status    Status
	ExpiresAt time.Time
}

// Expired reports whether the entry is no longer valid at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Cache stores decisions keyed by CacheKey.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the entry for key. Expired entries may still be returned;
	// the caller checks Expired.
	Get(key string) (Entry, bool)

	// Put stores an entry, replacing any previous one.
	Put(key string, entry Entry) error

	// Delete removes key. Missing keys are ignored.
	Delete(key string) error

	// Sweep drops entries expired at now and returns how many were removed.
	Sweep(now time.Time) (int, error)

	// Close releases the cache resources.
	Close() error
}

// CacheKey derives the cache key of a credential pair seen from a client
// address. Secrets are hashed so persistent caches never hold them in
// clear text.
func CacheKey(identification, password, remoteAddr string) string {
	h := sha256.New()
	h.Write([]byte(identification))
	h.Write([]byte{0})
	h.Write([]byte(password))
	h.Write([]byte{0})
	h.Write([]byte(remoteAddr))
	return hex.EncodeToString(h.Sum(nil))
}
