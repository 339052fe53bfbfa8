// Package sharedtable implements microcache.Backend as a fixed-row,
// fixed-value-size table, the nearest pure-Go analogue of the shared-memory
// table a native extension would provide. Go cannot map anonymous shared
// memory across unrelated processes without cgo, so this backend is a
// single-process stand-in: it is only selected when the caller explicitly
// opts in (representing "the shared-memory extension is loaded"), and it
// enforces the same fixed-capacity, fixed-value-size discipline a real
// shared table would.
package sharedtable

import (
	"sync"

	"github.com/corehostfw/corehost/corehosterr"
)

type row struct {
	key string
	val []byte
	set bool
}

// Backend is a fixed-capacity table of fixed-size value slots.
type Backend struct {
	mu       sync.Mutex
	rows     []row
	index    map[string]int
	maxValue int
}

// New constructs a Backend with the given row count and maximum value size
// in bytes (mirroring APCU_SHARED_ROWS / APCU_SHARED_VALUE_SIZE tuning).
func New(rowCount, maxValueSize int) *Backend {
	return &Backend{
		rows:     make([]row, rowCount),
		index:    make(map[string]int, rowCount),
		maxValue: maxValueSize,
	}
}

func (b *Backend) Kind() string { return "sharedtable" }

func (b *Backend) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[key]
	if !ok || !b.rows[i].set {
		return nil, false, nil
	}
	v := make([]byte, len(b.rows[i].val))
	copy(v, b.rows[i].val)
	return v, true, nil
}

func (b *Backend) Set(key string, val []byte) error {
	if len(val) > b.maxValue {
		return corehosterr.LogicErrorf("value for %q exceeds shared table row capacity (%d > %d bytes)", key, len(val), b.maxValue)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[key]
	if !ok {
		var err error
		i, err = b.allocate(key)
		if err != nil {
			return err
		}
	}
	b.rows[i].val = append(b.rows[i].val[:0], val...)
	b.rows[i].set = true
	return nil
}

func (b *Backend) SetNX(key string, val []byte) (bool, error) {
	if len(val) > b.maxValue {
		return false, corehosterr.LogicErrorf("value for %q exceeds shared table row capacity (%d > %d bytes)", key, len(val), b.maxValue)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.index[key]; ok && b.rows[i].set {
		return false, nil
	}
	i, err := b.allocate(key)
	if err != nil {
		return false, err
	}
	b.rows[i].val = append(b.rows[i].val[:0], val...)
	b.rows[i].set = true
	return true, nil
}

func (b *Backend) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[key]
	if !ok || !b.rows[i].set {
		return false, nil
	}
	b.rows[i] = row{}
	delete(b.index, key)
	return true, nil
}

func (b *Backend) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.index))
	for k := range b.index {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *Backend) Size() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.index), nil
}

// allocate finds a free row for key, evicting an arbitrary occupied row if
// the table is full. Caller must hold b.mu.
func (b *Backend) allocate(key string) (int, error) {
	for i := range b.rows {
		if !b.rows[i].set {
			b.rows[i].key = key
			b.index[key] = i
			return i, nil
		}
	}
	// table full: evict the first row to make room; which entry that row
	// holds depends on earlier allocations, not on age.
	for i := range b.rows {
		delete(b.index, b.rows[i].key)
		b.rows[i].key = key
		b.index[key] = i
		return i, nil
	}
	return 0, corehosterr.LogicErrorf("shared table has zero rows")
}
