package container

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corehostfw/corehost/corehosterr"
	"github.com/corehostfw/corehost/lifecycle"
	"github.com/corehostfw/corehost/taskscope"
)

type fixedPhase struct{ phase lifecycle.Phase }

func (f *fixedPhase) CurrentState() lifecycle.Phase { return f.phase }

func TestRegister_RejectedOutsideBootstrap(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Ready}
	c := New("root1", p, nil)
	err := c.Register("db", Singleton, func(ctx context.Context) (any, error) { return 1, nil })
	if !corehosterr.Is(err, corehosterr.ContainerLocked) {
		t.Fatalf("expected ContainerLocked, got %v", err)
	}
}

func TestRegister_DuplicateIDRejected(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Bootstrap}
	c := New("root1", p, nil)
	factory := func(ctx context.Context) (any, error) { return 1, nil }
	if err := c.Register("db", Singleton, factory); err != nil {
		t.Fatal(err)
	}
	if err := c.Register("db", Singleton, factory); !corehosterr.Is(err, corehosterr.AlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}
}

func TestGet_UnknownIDReturnsNotFound(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Ready}
	c := New("root1", p, nil)
	if _, err := c.Get(context.Background(), "missing"); !corehosterr.Is(err, corehosterr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGet_TransientInvokesFactoryEveryTime(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Bootstrap}
	c := New("root1", p, nil)
	var n int32
	c.Register("counter", Transient, func(ctx context.Context) (any, error) {
		return int(atomic.AddInt32(&n, 1)), nil
	})
	p.phase = lifecycle.Ready

	v1, _ := c.Get(context.Background(), "counter")
	v2, _ := c.Get(context.Background(), "counter")
	if v1 == v2 {
		t.Fatalf("expected distinct transient instances, got %v and %v", v1, v2)
	}
}

// TestGet_ScopedIdentity mirrors the scoped-identity guarantee: within one
// scope, repeated Get calls observe the same memoized instance; a different
// scope gets its own.
func TestGet_ScopedIdentity(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Bootstrap}
	c := New("root1", p, nil)
	var n int32
	c.Register("db", Scoped, func(ctx context.Context) (any, error) {
		return int(atomic.AddInt32(&n, 1)), nil
	})
	p.phase = lifecycle.Ready

	ctxA, _ := taskscope.NewTask(context.Background(), "root1")
	v1, err := c.Get(ctxA, "db")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := c.Get(ctxA, "db")
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Fatalf("expected same instance within scope A, got %v and %v", v1, v2)
	}

	ctxB, _ := taskscope.NewTask(context.Background(), "root1")
	v3, err := c.Get(ctxB, "db")
	if err != nil {
		t.Fatal(err)
	}
	if v3 == v1 {
		t.Fatalf("expected distinct instance in scope B, got %v in both", v1)
	}
}

func TestGet_SingletonSharedAcrossScopes(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Bootstrap}
	c := New("root1", p, nil)
	var n int32
	c.Register("config", Singleton, func(ctx context.Context) (any, error) {
		return int(atomic.AddInt32(&n, 1)), nil
	})
	p.phase = lifecycle.Ready

	ctxA, _ := taskscope.NewTask(context.Background(), "root1")
	ctxB, _ := taskscope.NewTask(context.Background(), "root1")

	v1, _ := c.Get(ctxA, "config")
	v2, _ := c.Get(ctxB, "config")
	if v1 != v2 {
		t.Fatalf("expected singleton shared across scopes, got %v and %v", v1, v2)
	}
}

func TestGet_ScopedOutsideReadyWithoutTaskIsUnavailable(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Bootstrap}
	c := New("root1", p, nil)
	c.Register("db", Scoped, func(ctx context.Context) (any, error) { return 1, nil })

	if _, err := c.Get(context.Background(), "db"); !corehosterr.Is(err, corehosterr.ScopeUnavailable) {
		t.Fatalf("expected ScopeUnavailable, got %v", err)
	}
}

func TestGet_SameChainReentrancyIsFactoryCycle(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Bootstrap}
	c := New("root1", p, nil)
	c.Register("a", Singleton, func(ctx context.Context) (any, error) {
		return c.Get(ctx, "a")
	})
	p.phase = lifecycle.Ready

	if _, err := c.Get(context.Background(), "a"); !corehosterr.Is(err, corehosterr.FactoryCycle) {
		t.Fatalf("expected FactoryCycle, got %v", err)
	}
}

// TestGet_ConcurrentScopedResolutionInvokesFactoryOnce verifies that
// concurrent Get calls for the same id within the same scope block on a
// single factory invocation rather than each running the factory.
func TestGet_ConcurrentScopedResolutionInvokesFactoryOnce(t *testing.T) {
	p := &fixedPhase{phase: lifecycle.Bootstrap}
	c := New("root1", p, nil)
	var invocations int32
	release := make(chan struct{})
	c.Register("db", Scoped, func(ctx context.Context) (any, error) {
		atomic.AddInt32(&invocations, 1)
		<-release
		return "connection", nil
	})
	p.phase = lifecycle.Ready

	ctx, _ := taskscope.NewTask(context.Background(), "root1")

	const callers = 10
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(ctx, "db")
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&invocations); got != 1 {
		t.Fatalf("expected exactly one factory invocation, got %d", got)
	}
	for i, v := range results {
		if v != "connection" {
			t.Fatalf("result %d: expected shared instance, got %v", i, v)
		}
	}
}
