// Package corehost wires the lifecycle state machine, service container,
// microcache-backed path registry, type hierarchy and authorization
// dispatcher into a single process-wide Root.
package corehost

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/corehostfw/corehost/authz"
	"github.com/corehostfw/corehost/container"
	"github.com/corehostfw/corehost/corehosterr"
	"github.com/corehostfw/corehost/lifecycle"
	"github.com/corehostfw/corehost/meta"
	"github.com/corehostfw/corehost/microcache"
	"github.com/corehostfw/corehost/pathreg"
	"github.com/corehostfw/corehost/taskscope"
	"github.com/corehostfw/corehost/typehierarchy"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// rootConstructed guards against a second Root being created in the same
// process; NewRoot fails DuplicateRoot on a second attempt, NewIsolatedRoot
// bypasses it for tests that need independent Roots in one process.
var rootConstructed atomic.Bool

// ConfigLoader obtains a configuration value, in lieu of executing a
// language-level config file: the core does not specify an eval mechanism,
// only that a named loader produces a value.
type ConfigLoader func() (any, error)

// Root is the framework's process-wide object (C9).
type Root struct {
	id  string
	cfg Config
	log *logrus.Entry

	lifecycle  *lifecycle.Machine
	cache      *microcache.Cache
	configPath *pathreg.Registry
	container  *container.Container
	hierarchy  *typehierarchy.Registry
	authz      *authz.Dispatcher

	loadersMu sync.RWMutex
	loaders   map[string]ConfigLoader

	closersMu sync.Mutex
	closers   []io.Closer
}

// CurrentState satisfies container.PhaseProvider.
func (r *Root) CurrentState() lifecycle.Phase { return r.lifecycle.CurrentState() }

// NewRoot constructs the singleton framework Root from cfg, initializes
// the microcache backend, the config PathRegistry, and the lifecycle
// machine, then moves it to Bootstrap. A second call in the same process
// fails with DuplicateRoot.
func NewRoot(cfg Config) (*Root, error) {
	if !rootConstructed.CompareAndSwap(false, true) {
		return nil, corehosterr.DuplicateRootf("a framework root has already been constructed in this process")
	}
	return newRoot(cfg)
}

// NewIsolatedRoot builds a Root without the process-wide duplicate guard,
// for tests that need multiple independent Roots in one process.
func NewIsolatedRoot(cfg Config) (*Root, error) {
	return newRoot(cfg)
}

func newRoot(cfg Config) (*Root, error) {
	log := logrus.NewEntry(logrus.StandardLogger())
	if cfg.Debug {
		log.Logger.SetLevel(logrus.DebugLevel)
	}

	id := uuid.NewString()
	log = log.WithFields(logrus.Fields{"component": "corehost", "root": id})

	backend, err := microcache.SelectBackend(microcache.BackendConfig{
		SharedTableEnabled: cfg.SharedTableEnabled,
		SharedTableRows:    cfg.SharedTableRows,
		SharedTableValue:   cfg.SharedTableValue,
		SQLPath:            cfg.SQLCachePath,
	})
	if err != nil {
		return nil, err
	}
	cache := microcache.New(backend, log)

	configRoot := cfg.ConfigRoot
	paths := pathreg.New(configRoot, afero.NewOsFs(), cache)
	paths.AddPath(cfg.RootDir + "/vendor/corehostfw/corehost/_config")

	lm := lifecycle.NewDefault(log)

	r := &Root{
		id:         id,
		cfg:        cfg,
		log:        log,
		lifecycle:  lm,
		cache:      cache,
		configPath: paths,
		hierarchy:  typehierarchy.NewRegistry(),
		loaders:    make(map[string]ConfigLoader),
	}
	r.container = container.New(id, r, log)
	r.authz = authz.New(r.hierarchy)

	if closer, ok := backend.(io.Closer); ok {
		r.RegisterCloser(closer)
	}

	if err := lm.Trigger(lifecycle.Bootstrap); err != nil {
		return nil, err
	}
	return r, nil
}

// ID returns the Root's process-wide instance id.
func (r *Root) ID() string { return r.id }

// Config returns the configuration the Root was built from.
func (r *Root) Config() Config { return r.cfg }

// Lifecycle exposes the underlying phase state machine, e.g. to move the
// Root into Ready once bootstrap registrations are complete.
func (r *Root) Lifecycle() *lifecycle.Machine { return r.lifecycle }

// Hierarchy exposes the type hierarchy registry so callers can Declare
// type tags before issuing Can checks.
func (r *Root) Hierarchy() *typehierarchy.Registry { return r.hierarchy }

// DeclareTypeTags replays every "typetag" tuple in b into the Root's type
// hierarchy registry, standing in for whatever attribute-scanning build
// step or inline builder produced b (§9 "Magic attribute-based metadata").
func (r *Root) DeclareTypeTags(b *meta.Builder) error {
	return meta.ApplyTypeTags(b, r.hierarchy)
}

// Authz exposes the authorization dispatcher.
func (r *Root) Authz() *authz.Dispatcher { return r.authz }

// Cache exposes the microcache instance backing the config PathRegistry,
// available to any other component wanting compute-or-fetch memoization.
func (r *Root) Cache() *microcache.Cache { return r.cache }

// ConfigPaths exposes the config PathRegistry.
func (r *Root) ConfigPaths() *pathreg.Registry { return r.configPath }

// Register declares a service factory. See container.Container.Register.
func (r *Root) Register(id string, lifetime container.Lifetime, factory container.Factory) error {
	return r.container.Register(id, lifetime, factory)
}

// Has reports whether id has a registered service.
func (r *Root) Has(id string) bool { return r.container.Has(id) }

// Get resolves a registered service according to its declared lifetime.
func (r *Root) Get(ctx context.Context, id string) (any, error) {
	return r.container.Get(ctx, id)
}

// CurrentScope resolves the scope applicable to ctx.
func (r *Root) CurrentScope(ctx context.Context) (taskscope.Scope, error) {
	return taskscope.Current(ctx, r.id, r.lifecycle.CurrentState())
}

// RegisterConfigLoader associates name (as looked up by LoadConfig) with a
// loader function, standing in for a language-level config file that would
// otherwise be executed to obtain a value.
func (r *Root) RegisterConfigLoader(name string, loader ConfigLoader) {
	r.loadersMu.Lock()
	defer r.loadersMu.Unlock()
	r.loaders[name] = loader
}

// LoadConfig resolves rel via the config PathRegistry. A ".toml" suffixed
// hit is decoded with BurntSushi/toml into a generic map; otherwise rel is
// looked up among registered ConfigLoaders. If neither produces a value,
// def is returned when non-nil, else ConfigMissing.
func (r *Root) LoadConfig(rel string, def any) (any, error) {
	if path := r.configPath.FindFirst(rel); path != "" && strings.HasSuffix(path, ".toml") {
		var decoded map[string]any
		if _, err := toml.DecodeFile(path, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}

	r.loadersMu.RLock()
	loader, ok := r.loaders[rel]
	r.loadersMu.RUnlock()
	if ok {
		return loader()
	}

	if def != nil {
		return def, nil
	}
	return nil, corehosterr.ConfigMissingf("no configuration found for %q and no default provided", rel)
}

// LoadServiceConfig loads the config file conventionally associated with a
// registered type name: namespace separators become path separators, and a
// ".toml" suffix is applied.
func (r *Root) LoadServiceConfig(typeName string, def any) (any, error) {
	rel := strings.ReplaceAll(typeName, ".", "/") + ".toml"
	return r.LoadConfig(rel, def)
}

// Bootstrap runs each fn concurrently while the Root is still in the
// Bootstrap phase, for independent setup steps (warming caches, priming
// path registries, eager-constructing a singleton) that don't depend on
// each other. It returns the first error encountered, cancelling the rest.
// Must be called before the Root transitions to Ready.
func (r *Root) Bootstrap(ctx context.Context, fns ...func(context.Context) error) error {
	if r.CurrentState() != lifecycle.Bootstrap {
		return corehosterr.ContainerLockedf("Bootstrap can only run during the Bootstrap phase (current phase: %s)", r.CurrentState())
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}

// RegisterCloser adds c to the set closed, in reverse registration order,
// when Shutdown runs.
func (r *Root) RegisterCloser(c io.Closer) {
	r.closersMu.Lock()
	defer r.closersMu.Unlock()
	r.closers = append(r.closers, c)
}

// Shutdown transitions the Root to the Shutdown phase and closes every
// registered closer in reverse registration order, collecting (not
// stopping on) individual close errors.
func (r *Root) Shutdown(ctx context.Context) error {
	if err := r.lifecycle.Trigger(lifecycle.Shutdown); err != nil {
		return err
	}

	r.closersMu.Lock()
	closers := make([]io.Closer, len(r.closers))
	copy(closers, r.closers)
	r.closersMu.Unlock()

	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			r.log.WithError(err).Warn("closer failed during shutdown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
