package typehierarchy

import (
	"reflect"
	"testing"
)

func TestWalk_UnknownTypeYieldsItself(t *testing.T) {
	r := NewRegistry()
	if got := r.Walk("Ghost"); !reflect.DeepEqual(got, []string{"Ghost"}) {
		t.Fatalf("expected [Ghost], got %v", got)
	}
}

func TestWalk_InterfacesThenParent(t *testing.T) {
	r := NewRegistry()
	r.Declare("Model", Declaration{Parent: ""})
	r.Declare("Post", Declaration{Interfaces: []string{"Listable", "Searchable"}, Parent: "Model"})

	got := r.Walk("Post")
	want := []string{"Post", "Listable", "Searchable", "Model"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWalk_DeduplicatesRepeatedInterfaces(t *testing.T) {
	r := NewRegistry()
	r.Declare("Base", Declaration{Interfaces: []string{"Shared"}})
	r.Declare("Child", Declaration{Interfaces: []string{"Shared"}, Parent: "Base"})

	got := r.Walk("Child")
	want := []string{"Child", "Shared", "Base"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWalk_CyclicParentChainTerminates(t *testing.T) {
	r := NewRegistry()
	r.Declare("A", Declaration{Parent: "B"})
	r.Declare("B", Declaration{Parent: "A"})

	got := r.Walk("A")
	want := []string{"A", "B"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
