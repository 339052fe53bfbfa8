// Package pathreg implements the priority path registry: an ordered search
// path resolving logical filenames to absolute paths, fronted by a
// microcache so repeated lookups avoid re-walking the filesystem.
package pathreg

import (
	"path/filepath"
	"sync"

	"github.com/corehostfw/corehost/microcache"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// findFirstTTLSeconds bounds staleness after filesystem additions/deletions.
const findFirstTTLSeconds = 1

// Registry is the priority path registry (C2).
type Registry struct {
	instanceID string
	fs         afero.Fs
	cache      *microcache.Cache

	mu        sync.RWMutex
	primary   string
	fallbacks []string
}

// New constructs a Registry rooted at primary, resolving files against fs
// and memoizing FindFirst results through cache.
func New(primary string, fs afero.Fs, cache *microcache.Cache) *Registry {
	return &Registry{
		instanceID: uuid.NewString(),
		fs:         fs,
		cache:      cache,
		primary:    primary,
	}
}

// AddPath appends p to the fallback list. Idempotent: a path already present
// is not added twice.
func (r *Registry) AddPath(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.fallbacks {
		if existing == p {
			return
		}
	}
	r.fallbacks = append(r.fallbacks, p)
}

// GetPaths returns the resolution order: primary, then fallbacks most
// recently added first.
func (r *Registry) GetPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.fallbacks)+1)
	out = append(out, r.primary)
	for i := len(r.fallbacks) - 1; i >= 0; i-- {
		out = append(out, r.fallbacks[i])
	}
	return out
}

// FindFirst searches GetPaths() in order for rel, returning the first
// existing filesystem entry's absolute path, or "" if none exists. Results
// are memoized for findFirstTTLSeconds, keyed by (registry instance id,
// rel).
func (r *Registry) FindFirst(rel string) string {
	key := "pathreg:" + r.instanceID + ":" + rel

	var cached string
	if r.cache != nil && r.cache.Fetch(key, &cached) {
		return cached
	}

	found := r.findFirstUncached(rel)
	if r.cache != nil {
		r.cache.Store(key, found, findFirstTTLSeconds)
	}
	return found
}

func (r *Registry) findFirstUncached(rel string) string {
	for _, dir := range r.GetPaths() {
		candidate := filepath.Join(dir, rel)
		if _, err := r.fs.Stat(candidate); err == nil {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return candidate
			}
			return abs
		}
	}
	return ""
}
