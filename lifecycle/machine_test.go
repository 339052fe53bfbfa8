package lifecycle

import (
	"testing"

	"github.com/corehostfw/corehost/corehosterr"
	"github.com/corehostfw/corehost/handlerchain"
)

func TestMachine_BootstrapReadyThenRejectsReentry(t *testing.T) {
	m := NewDefault(nil)
	if m.CurrentState() != Initializing {
		t.Fatalf("expected Initializing, got %v", m.CurrentState())
	}
	if err := m.Trigger(Bootstrap); err != nil {
		t.Fatalf("Bootstrap transition: %v", err)
	}
	if m.CurrentState() != Bootstrap {
		t.Fatalf("expected Bootstrap, got %v", m.CurrentState())
	}
	if err := m.Trigger(Ready); err != nil {
		t.Fatalf("Ready transition: %v", err)
	}
	if m.CurrentState() != Ready {
		t.Fatalf("expected Ready, got %v", m.CurrentState())
	}
	if err := m.Trigger(Bootstrap); err == nil {
		t.Fatal("expected InvalidTransition error")
	} else if !corehosterr.Is(err, corehosterr.InvalidTransition) {
		t.Fatalf("expected InvalidTransition kind, got %v", err)
	}
}

func TestMachine_ShutdownIsAbsorbing(t *testing.T) {
	m := New(DefaultTable(), Ready, nil)
	if err := m.Trigger(Shutdown); err != nil {
		t.Fatalf("Shutdown transition: %v", err)
	}
	for _, to := range []Phase{Initializing, Bootstrap, Ready, Failed, Shutdown} {
		if err := m.Trigger(to); err == nil {
			t.Fatalf("expected Shutdown to be terminal, allowed transition to %v", to)
		}
	}
}

func TestMachine_OnEnterDispatchesOnTransition(t *testing.T) {
	m := New(DefaultTable(), Initializing, nil)
	entered := make(chan Phase, 1)
	m.OnEnter(Bootstrap, func(p Phase) handlerchain.Result {
		entered <- p
		return handlerchain.Pass
	})
	if err := m.Trigger(Bootstrap); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-entered:
		if p != Bootstrap {
			t.Fatalf("expected Bootstrap, got %v", p)
		}
	default:
		t.Fatal("onEnter hook was not invoked")
	}
}

func TestMachine_FailedReachableFromInitializingAndBootstrap(t *testing.T) {
	m1 := New(DefaultTable(), Initializing, nil)
	if err := m1.Trigger(Failed); err != nil {
		t.Fatalf("Initializing->Failed: %v", err)
	}

	m2 := New(DefaultTable(), Bootstrap, nil)
	if err := m2.Trigger(Failed); err != nil {
		t.Fatalf("Bootstrap->Failed: %v", err)
	}
	if err := m2.Trigger(Shutdown); err != nil {
		t.Fatalf("Failed->Shutdown: %v", err)
	}
}
