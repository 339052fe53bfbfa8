// Package inprocmap implements microcache.Backend as a bounded process-local
// map. It is always available and is the last resort in the backend
// selection order: no shared memory, no filesystem, just an LRU-bounded
// map guarded by its own lock.
package inprocmap

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultSize is used when New is called with maxItems <= 0.
const defaultSize = 4096

// Backend is a process-local key/value store bounded by LRU eviction.
// SetNX needs its own mutex: lru.Cache's internal lock makes each of
// Contains/Add atomic individually but not the check-then-act pair.
type Backend struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []byte]
}

// New constructs a Backend holding at most maxItems entries (defaultSize if
// maxItems <= 0).
func New(maxItems int) *Backend {
	if maxItems <= 0 {
		maxItems = defaultSize
	}
	c, err := lru.New[string, []byte](maxItems)
	if err != nil {
		// Only returned for a non-positive size, which New already guards
		// against.
		panic(err)
	}
	return &Backend{cache: c}
}

func (b *Backend) Kind() string { return "inprocmap" }

func (b *Backend) Get(key string) ([]byte, bool, error) {
	v, ok := b.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (b *Backend) Set(key string, val []byte) error {
	cp := make([]byte, len(val))
	copy(cp, val)
	b.cache.Add(key, cp)
	return nil
}

func (b *Backend) SetNX(key string, val []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cache.Contains(key) {
		return false, nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	b.cache.Add(key, cp)
	return true, nil
}

func (b *Backend) Delete(key string) (bool, error) {
	existed := b.cache.Contains(key)
	b.cache.Remove(key)
	return existed, nil
}

func (b *Backend) Keys() ([]string, error) {
	keys := make([]string, 0, b.cache.Len())
	for _, k := range b.cache.Keys() {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *Backend) Size() (int, error) {
	return b.cache.Len(), nil
}
