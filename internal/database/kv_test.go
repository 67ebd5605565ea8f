package database

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/drivescope/drivescope/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestKV_RoundTrip(t *testing.T) {
	kv := openTestDB(t).KV()

	if _, err := kv.Get("missing"); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := kv.Set("projects/u1", []byte(`[{"id":"p1"}]`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := kv.Get("projects/u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != `[{"id":"p1"}]` {
		t.Fatalf("unexpected value: %q", got)
	}

	// Upsert replaces.
	if err := kv.Set("projects/u1", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _ = kv.Get("projects/u1")
	if string(got) != `[]` {
		t.Fatalf("expected overwrite, got %q", got)
	}

	if err := kv.Delete("projects/u1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := kv.Get("projects/u1"); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKV_KeysByPrefix(t *testing.T) {
	kv := openTestDB(t).KV()

	for _, k := range []string{"logs/p1", "logs/p2", "channels", "projects/u1"} {
		if err := kv.Set(k, []byte("x")); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}

	got, err := kv.Keys("logs/")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	want := []string{"logs/p1", "logs/p2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
