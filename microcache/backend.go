package microcache

import "time"

// Backend is the polymorphic storage primitive the Cache is built on (§4.1).
// Implementations are shared table, embedded SQL, and in-process map; all
// three satisfy the same raw byte-oriented contract so Cache's payload
// framing (TTL, CAS, inc/dec) is backend-agnostic.
type Backend interface {
	// Get returns the raw stored bytes for key, or ok=false if absent.
	Get(key string) (val []byte, ok bool, err error)
	// Set unconditionally stores val under key.
	Set(key string, val []byte) error
	// SetNX stores val under key only if key is currently absent, atomically
	// with respect to other SetNX/Delete calls on the same backend.
	SetNX(key string, val []byte) (stored bool, err error)
	// Delete removes key, reporting whether it had been present.
	Delete(key string) (existed bool, err error)
	// Kind names the backend, for diagnostics (§4.9 supplemented feature).
	Kind() string
}

// Enumerable is implemented by backends that can list their keys, enabling
// the probabilistic GC sweep (§4.1) to lazily expire entries across the
// whole keyspace rather than only on individual Fetch calls.
type Enumerable interface {
	Keys() ([]string, error)
}

// Stats is the non-spec introspection surface mentioned in SPEC_FULL.md §4.4.
type Stats struct {
	Kind string
	Size int
}

// Sizeable backends can report their current entry count for Stats.
type Sizeable interface {
	Size() (int, error)
}

const lockKeyPrefix = "\x00lock:"

// lockTTL is the TTL a lock key is stored with: a stale lock left behind by
// a process that crashed mid-entry self-expires after lockTTL instead of
// blocking future callers forever, rather than merely bounding one waiter's
// own acquisition attempt (that's lockTimeout, in cache.go).
const lockTTL = 30 * time.Second
