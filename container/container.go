// Package container implements the service container: registration of
// factories under a declared lifetime, and lifetime-aware resolution keyed
// against the active taskscope.Scope.
package container

import (
	"context"
	"sync"

	"github.com/corehostfw/corehost/corehosterr"
	"github.com/corehostfw/corehost/lifecycle"
	"github.com/corehostfw/corehost/taskscope"
	"github.com/sirupsen/logrus"
)

// Lifetime controls how many instances a factory produces and how long
// each lives.
type Lifetime int

const (
	// Transient invokes the factory on every Get, never caching the result.
	Transient Lifetime = iota
	// Singleton resolves once per Root, under the process scope, regardless
	// of the caller's current scope.
	Singleton
	// Scoped resolves once per active taskscope.Scope; a new scope sees a
	// fresh instance.
	Scoped
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	default:
		return "transient"
	}
}

// Factory builds one instance of a registered service.
type Factory func(ctx context.Context) (any, error)

// PhaseProvider supplies the framework root's current lifecycle phase.
// Registration is only permitted during Bootstrap; Get's scoped resolution
// path needs the phase to decide whether the process scope is available.
type PhaseProvider interface {
	CurrentState() lifecycle.Phase
}

type definition struct {
	id       string
	lifetime Lifetime
	factory  Factory
}

// entry is the per-(scope,id) memoization slot shared by concurrent callers.
type entry struct {
	once  sync.WaitGroup
	value any
	err   error
}

// Container is the service container (C6).
type Container struct {
	rootID string
	phase  PhaseProvider
	log    *logrus.Entry

	mu   sync.RWMutex
	defs map[string]*definition

	instMu    sync.Mutex
	instances map[taskscope.Scope]map[string]*entry
}

// New constructs a Container bound to rootID, consulting phase for
// registration gating and scope resolution.
func New(rootID string, phase PhaseProvider, log *logrus.Entry) *Container {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Container{
		rootID:    rootID,
		phase:     phase,
		log:       log.WithField("component", "container"),
		defs:      make(map[string]*definition),
		instances: make(map[taskscope.Scope]map[string]*entry),
	}
}

// Register declares a factory for id under the given lifetime. Registration
// is only allowed while the root is in the Bootstrap phase; it fails with
// ContainerLocked outside that window and AlreadyRegistered on a duplicate
// id.
func (c *Container) Register(id string, lifetime Lifetime, factory Factory) error {
	if c.phase.CurrentState() != lifecycle.Bootstrap {
		return corehosterr.ContainerLockedf("cannot register %q: container accepts registrations only during bootstrap (current phase: %s)", id, c.phase.CurrentState())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[id]; exists {
		return corehosterr.AlreadyRegisteredf("service %q is already registered", id)
	}
	c.defs[id] = &definition{id: id, lifetime: lifetime, factory: factory}
	c.log.WithFields(logrus.Fields{"id": id, "lifetime": lifetime}).Debug("service registered")
	return nil
}

// Has reports whether id has a registered definition.
func (c *Container) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.defs[id]
	return ok
}

type resolvingKey struct{}

// Get resolves id according to its declared lifetime. Scoped and Singleton
// resolutions are memoized per scope; concurrent callers resolving the same
// id in the same scope block on the first caller's factory invocation
// rather than each invoking the factory, and a factory that (directly or
// indirectly) requests its own id within the same call chain fails fast
// with FactoryCycle instead of deadlocking.
func (c *Container) Get(ctx context.Context, id string) (any, error) {
	c.mu.RLock()
	def, ok := c.defs[id]
	c.mu.RUnlock()
	if !ok {
		return nil, corehosterr.NotFoundf("no service registered for %q", id)
	}

	switch def.lifetime {
	case Transient:
		return c.invoke(ctx, def)
	case Singleton:
		return c.resolveMemoized(ctx, taskscope.ProcessScope(c.rootID), def)
	default: // Scoped
		scope, err := taskscope.Current(ctx, c.rootID, c.phase.CurrentState())
		if err != nil {
			return nil, err
		}
		return c.resolveMemoized(ctx, scope, def)
	}
}

func (c *Container) invoke(ctx context.Context, def *definition) (any, error) {
	resolving, _ := ctx.Value(resolvingKey{}).(map[string]bool)
	if resolving == nil {
		resolving = make(map[string]bool)
	} else {
		next := make(map[string]bool, len(resolving))
		for k := range resolving {
			next[k] = true
		}
		resolving = next
	}
	if resolving[def.id] {
		return nil, corehosterr.FactoryCyclef("factory cycle detected resolving %q", def.id)
	}
	resolving[def.id] = true
	return def.factory(context.WithValue(ctx, resolvingKey{}, resolving))
}

func (c *Container) entryFor(scope taskscope.Scope, id string) (*entry, bool) {
	c.instMu.Lock()
	defer c.instMu.Unlock()
	byID, ok := c.instances[scope]
	if !ok {
		byID = make(map[string]*entry)
		c.instances[scope] = byID
	}
	e, existed := byID[id]
	if !existed {
		e = &entry{}
		e.once.Add(1)
		byID[id] = e
	}
	return e, existed
}

func (c *Container) resolveMemoized(ctx context.Context, scope taskscope.Scope, def *definition) (any, error) {
	resolving, _ := ctx.Value(resolvingKey{}).(map[string]bool)
	if resolving[def.id] {
		return nil, corehosterr.FactoryCyclef("factory cycle detected resolving %q", def.id)
	}

	e, existed := c.entryFor(scope, def.id)
	if existed {
		e.once.Wait()
		return e.value, e.err
	}

	e.value, e.err = c.invoke(ctx, def)
	e.once.Done()
	return e.value, e.err
}
