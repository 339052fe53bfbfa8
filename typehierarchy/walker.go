// Package typehierarchy produces the specificity-ordered sequence of type
// tags the authorization dispatcher walks. Rather than inspecting a runtime
// class/interface hierarchy via reflection, each tag declares its own parent
// tag and the interfaces it introduces, and the walker consumes that
// declared graph directly.
package typehierarchy

import "sync"

// Declaration records one type tag's place in the hierarchy.
type Declaration struct {
	// Interfaces are the tags of interfaces T declares directly, in
	// declaration order. Interfaces inherited from Parent are not repeated
	// here.
	Interfaces []string
	// Parent is the tag of T's parent type, or "" if T has none.
	Parent string
}

// Registry holds declared type tags.
type Registry struct {
	mu    sync.RWMutex
	decls map[string]Declaration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decls: make(map[string]Declaration)}
}

// Declare registers (or replaces) tag's hierarchy declaration.
func (r *Registry) Declare(tag string, decl Declaration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decls[tag] = decl
}

// Walk returns the specificity-ordered, deduplicated, finite sequence for
// tag: tag itself, then its directly-declared interfaces in declaration
// order, then its parent's own walk (recursively). If tag names no known
// declaration, the sequence is [tag] alone.
func (r *Registry) Walk(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []string
	seen := make(map[string]bool)
	visitedTypes := make(map[string]bool) // guards against cyclic Parent chains

	current := tag
	for current != "" && !visitedTypes[current] {
		visitedTypes[current] = true

		if !seen[current] {
			result = append(result, current)
			seen[current] = true
		}

		decl, known := r.decls[current]
		if !known {
			break
		}

		for _, iface := range decl.Interfaces {
			if !seen[iface] {
				result = append(result, iface)
				seen[iface] = true
			}
		}

		current = decl.Parent
	}

	return result
}
