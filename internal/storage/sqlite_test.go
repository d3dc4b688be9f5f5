package storage

import (
	"context"
	"errors"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteSetGet(t *testing.T) {
	ctx := context.Background()
	area := newTestDB(t).Area("local")

	if err := area.Set(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := area.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got["a"]) != "1" {
		t.Errorf("a = %q, want %q", got["a"], "1")
	}
	if _, ok := got["b"]; ok {
		t.Error("Get(a) returned b as well")
	}
}

func TestSQLiteGetAll(t *testing.T) {
	ctx := context.Background()
	area := newTestDB(t).Area("local")

	if err := area.Set(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := area.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Get() returned %d entries, want 2", len(got))
	}
}

func TestSQLiteGetMissingKey(t *testing.T) {
	ctx := context.Background()
	area := newTestDB(t).Area("local")

	got, err := area.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Get(absent) = %v, want empty", got)
	}
}

func TestSQLiteOverwrite(t *testing.T) {
	ctx := context.Background()
	area := newTestDB(t).Area("local")

	if err := area.Set(ctx, map[string][]byte{"k": []byte("old")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := area.Set(ctx, map[string][]byte{"k": []byte("new")}); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, err := area.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got["k"]) != "new" {
		t.Errorf("k = %q, want %q", got["k"], "new")
	}
}

func TestSQLiteRemove(t *testing.T) {
	ctx := context.Background()
	area := newTestDB(t).Area("local")

	if err := area.Set(ctx, map[string][]byte{"k": []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := area.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	// Removing an absent key is a no-op.
	if err := area.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}

	got, err := area.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("k still present after Remove: %v", got)
	}
}

func TestSQLiteAreaIsolation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sync := db.Area(AreaSync)
	local := db.Area(AreaLocal)

	if err := sync.Set(ctx, map[string][]byte{"k": []byte("sync-value")}); err != nil {
		t.Fatalf("Set sync: %v", err)
	}

	got, err := local.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get local: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("local area sees sync area's key: %v", got)
	}
}

func TestMemoryFaultInjection(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if err := mem.Set(ctx, map[string][]byte{"k": []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	mem.SetErr = errFault
	if err := mem.Set(ctx, map[string][]byte{"k": []byte("v2")}); err == nil {
		t.Fatal("Set with fault injected: expected error, got nil")
	}
	mem.SetErr = nil

	got, err := mem.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got["k"]) != "v" {
		t.Errorf("k = %q, want %q (failed write must not apply)", got["k"], "v")
	}
}

var errFault = errors.New("injected storage fault")
