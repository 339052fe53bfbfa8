package sqlbackend

import (
	"path/filepath"
	"testing"
)

func open(t *testing.T) *Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	b, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSetGet_RoundTrips(t *testing.T) {
	b := open(t)
	if err := b.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := b.Get("k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected hit with v, got ok=%v v=%q err=%v", ok, v, err)
	}
}

func TestSet_OverwritesExistingKey(t *testing.T) {
	b := open(t)
	b.Set("k", []byte("first"))
	b.Set("k", []byte("second"))
	v, _, _ := b.Get("k")
	if string(v) != "second" {
		t.Fatalf("expected second, got %q", v)
	}
}

func TestSetNX_OnlyWritesOnce(t *testing.T) {
	b := open(t)
	stored, err := b.SetNX("k", []byte("first"))
	if err != nil || !stored {
		t.Fatalf("expected store, got %v %v", stored, err)
	}
	stored, err = b.SetNX("k", []byte("second"))
	if err != nil || stored {
		t.Fatalf("expected no-op, got %v %v", stored, err)
	}
}

func TestDelete_ReportsExistence(t *testing.T) {
	b := open(t)
	if existed, _ := b.Delete("k"); existed {
		t.Fatal("expected false deleting absent key")
	}
	b.Set("k", []byte("v"))
	if existed, _ := b.Delete("k"); !existed {
		t.Fatal("expected true deleting present key")
	}
}

func TestKeys_ListsStoredKeys(t *testing.T) {
	b := open(t)
	b.Set("a", []byte("1"))
	b.Set("b", []byte("2"))
	keys, err := b.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
