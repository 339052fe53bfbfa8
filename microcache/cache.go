// Package microcache implements the local key/value cache fronting the
// path registry and available to any component that wants memoized
// compute-or-fetch: TTL lives inside the stored payload, not the backend;
// per-key locking backs entry/cas/inc-dec; GC runs probabilistically on
// store.
package microcache

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/corehostfw/corehost/corehosterr"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// gcProbability is the chance, per Store call, that a full expired-entry
// sweep runs.
const gcProbability = 1e-4

// lockPollInterval and lockTimeout bound the per-key busy-wait used by
// Entry, CAS, Inc and Dec.
const (
	lockPollInterval = time.Millisecond
	lockTimeout      = 5 * time.Second
)

type payload struct {
	V         json.RawMessage `json:"v"`
	ExpiresAt int64           `json:"expiresAt,omitempty"` // unix nanos; 0 means no expiry
}

// Cache is the microcache (C1), backed by a pluggable Backend.
type Cache struct {
	backend Backend
	clock   clockwork.Clock
	log     *logrus.Entry
	rand    *rand.Rand
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithClock overrides the clock used for TTL computation, for deterministic
// tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// New constructs a Cache over backend.
func New(backend Backend, log *logrus.Entry, opts ...Option) *Cache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Cache{
		backend: backend,
		clock:   clockwork.NewRealClock(),
		log:     log.WithFields(logrus.Fields{"component": "microcache", "backend": backend.Kind()}),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) now() int64 { return c.clock.Now().UnixNano() }

func (c *Cache) encodeWithTTL(v any, ttlSeconds float64) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	p := payload{V: raw}
	if ttlSeconds > 0 {
		p.ExpiresAt = c.now() + int64(ttlSeconds*float64(time.Second))
	}
	return json.Marshal(p)
}

func decode(raw []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payload{}, err
	}
	return p, nil
}

func (c *Cache) expired(p payload) bool {
	return p.ExpiresAt != 0 && p.ExpiresAt <= c.now()
}

// Fetch returns the decoded value stored under k, or hit=false on a miss,
// expiry, or any backend read failure (backend failures other than lock
// timeout degrade to a plain miss).
func (c *Cache) Fetch(k string, out any) (hit bool) {
	raw, ok, err := c.backend.Get(k)
	if err != nil || !ok {
		return false
	}
	p, err := decode(raw)
	if err != nil {
		return false
	}
	if c.expired(p) {
		_, _ = c.backend.Delete(k)
		return false
	}
	if out != nil {
		if err := json.Unmarshal(p.V, out); err != nil {
			return false
		}
	}
	return true
}

// Store unconditionally sets k to v with the given TTL (0 meaning no
// expiry), then maybe runs a probabilistic GC sweep.
func (c *Cache) Store(k string, v any, ttlSeconds float64) error {
	raw, err := c.encodeWithTTL(v, ttlSeconds)
	if err != nil {
		return err
	}
	if err := c.backend.Set(k, raw); err != nil {
		c.log.WithError(err).Debug("store failed, treated as noop")
		return nil
	}
	c.maybeGC()
	return nil
}

// Add atomically stores v under k only if k is absent or expired, returning
// whether the write happened.
func (c *Cache) Add(k string, v any, ttlSeconds float64) (bool, error) {
	if c.Fetch(k, nil) {
		return false, nil
	}
	raw, err := c.encodeWithTTL(v, ttlSeconds)
	if err != nil {
		return false, err
	}
	stored, err := c.backend.SetNX(k, raw)
	if err != nil {
		return false, nil
	}
	return stored, nil
}

// Delete removes k, reporting whether it had been present.
func (c *Cache) Delete(k string) bool {
	existed, err := c.backend.Delete(k)
	if err != nil {
		return false
	}
	return existed
}

// Entry performs an atomic compute-or-fetch: under a per-key lock, it
// re-checks for a value, computing and storing one via compute only if
// still absent.
func (c *Cache) Entry(k string, ttlSeconds float64, compute func() (any, error)) (any, error) {
	if err := c.acquireLock(k); err != nil {
		return nil, err
	}
	defer c.releaseLock(k)

	var existing any
	if c.Fetch(k, &existing) {
		return existing, nil
	}

	v, err := compute()
	if err != nil {
		return nil, err
	}
	if err := c.Store(k, v, ttlSeconds); err != nil {
		return nil, err
	}
	return v, nil
}

// CAS compares the int64 value stored at k against old and, if equal,
// replaces it with newVal while preserving the existing expiresAt. It
// returns false (not an error) if k is absent, expired, or doesn't hold an
// integer, or if the comparison fails.
func (c *Cache) CAS(k string, old, newVal int64) (bool, error) {
	if err := c.acquireLock(k); err != nil {
		return false, err
	}
	defer c.releaseLock(k)

	raw, ok, err := c.backend.Get(k)
	if err != nil || !ok {
		return false, nil
	}
	p, err := decode(raw)
	if err != nil || c.expired(p) {
		return false, nil
	}
	var current int64
	if err := json.Unmarshal(p.V, &current); err != nil {
		return false, nil
	}
	if current != old {
		return false, nil
	}

	vraw, err := json.Marshal(newVal)
	if err != nil {
		return false, err
	}
	p.V = vraw
	out, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	if err := c.backend.Set(k, out); err != nil {
		return false, nil
	}
	return true, nil
}

// Inc atomically adds step to the integer at k, creating it with the given
// ttl if absent, preserving expiresAt if present. Dec is Inc(-step).
func (c *Cache) Inc(k string, step int64, ttlSeconds float64) (int64, error) {
	if err := c.acquireLock(k); err != nil {
		return 0, err
	}
	defer c.releaseLock(k)

	var current int64
	var p payload
	found := false
	raw, ok, err := c.backend.Get(k)
	if err == nil && ok {
		if decoded, derr := decode(raw); derr == nil && !c.expired(decoded) {
			p = decoded
			found = true
			_ = json.Unmarshal(decoded.V, &current)
		}
	}

	next := current + step
	vraw, err := json.Marshal(next)
	if err != nil {
		return 0, err
	}
	p.V = vraw
	if !found && ttlSeconds > 0 {
		p.ExpiresAt = c.now() + int64(ttlSeconds*float64(time.Second))
	}
	out, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	if err := c.backend.Set(k, out); err != nil {
		return 0, nil
	}
	return next, nil
}

// Dec is shorthand for Inc(k, -step, ttlSeconds).
func (c *Cache) Dec(k string, step int64, ttlSeconds float64) (int64, error) {
	return c.Inc(k, -step, ttlSeconds)
}

func (c *Cache) lockKey(k string) string { return lockKeyPrefix + k }

// acquireLock busy-waits on the backend's SetNX primitive using a reserved
// key prefix, failing with LockTimeout after lockTimeout has elapsed. The
// lock key itself is written through the same expiresAt-carrying payload
// format as any other entry, with TTL lockTTL: a holder that crashes before
// releaseLock leaves a key that self-expires instead of blocking every
// future caller forever, and a waiter that finds an expired lock steals it
// immediately rather than waiting out the rest of its own poll budget.
func (c *Cache) acquireLock(k string) error {
	deadline := c.clock.Now().Add(lockTimeout)
	lk := c.lockKey(k)
	for {
		raw, err := c.encodeWithTTL(c.now(), lockTTL.Seconds())
		if err == nil {
			if stored, serr := c.backend.SetNX(lk, raw); serr == nil && stored {
				return nil
			}
		}
		if c.stealExpiredLock(lk) {
			continue
		}
		if c.clock.Now().After(deadline) {
			return corehosterr.LockTimeoutf("timed out acquiring microcache lock for key %q", k)
		}
		time.Sleep(lockPollInterval)
	}
}

// stealExpiredLock deletes lk and reports true if it holds an
// already-expired payload, letting the caller retry SetNX immediately
// instead of waiting for its own deadline.
func (c *Cache) stealExpiredLock(lk string) bool {
	raw, ok, err := c.backend.Get(lk)
	if err != nil || !ok {
		return false
	}
	p, err := decode(raw)
	if err != nil || !c.expired(p) {
		return false
	}
	_, _ = c.backend.Delete(lk)
	return true
}

func (c *Cache) releaseLock(k string) {
	_, _ = c.backend.Delete(c.lockKey(k))
}

// maybeGC runs a full expired-entry sweep with probability gcProbability,
// when the backend supports enumeration.
func (c *Cache) maybeGC() {
	if c.rand.Float64() >= gcProbability {
		return
	}
	enumerable, ok := c.backend.(Enumerable)
	if !ok {
		return
	}
	keys, err := enumerable.Keys()
	if err != nil {
		return
	}
	for _, k := range keys {
		raw, ok, err := c.backend.Get(k)
		if err != nil || !ok {
			continue
		}
		p, err := decode(raw)
		if err != nil {
			continue
		}
		if c.expired(p) {
			_, _ = c.backend.Delete(k)
		}
	}
}

// Stats reports backend introspection details, when the backend supports it.
func (c *Cache) Stats() Stats {
	s := Stats{Kind: c.backend.Kind()}
	if sizeable, ok := c.backend.(Sizeable); ok {
		if n, err := sizeable.Size(); err == nil {
			s.Size = n
		}
	}
	return s
}
