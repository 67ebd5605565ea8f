package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/drivescope/drivescope/internal/storage"
)

func event(id string, kind ChangeType) *ChangeEvent {
	return &ChangeEvent{
		ID:         id,
		FileID:     id,
		FileName:   id + ".txt",
		ChangeType: kind,
		Owner:      "Alice",
		Timestamp:  time.Now(),
	}
}

func TestLogStoreAppend_EmptyIsNoOp(t *testing.T) {
	store := storage.NewMemory()
	logs := NewLogStore(store)

	if err := logs.Append("p1", nil); err != nil {
		t.Fatalf("append returned error: %v", err)
	}

	if _, err := store.Get("logs/p1"); err != storage.ErrNotFound {
		t.Fatalf("expected no log record after empty append, got err=%v", err)
	}
	if got := logs.Load("p1"); len(got) != 0 {
		t.Fatalf("expected empty log, got %d events", len(got))
	}
}

func TestLogStoreAppend_NewestFirst(t *testing.T) {
	logs := NewLogStore(storage.NewMemory())

	if err := logs.Append("p1", []*ChangeEvent{event("a", ChangeTypeUpload)}); err != nil {
		t.Fatalf("append returned error: %v", err)
	}
	if err := logs.Append("p1", []*ChangeEvent{event("b", ChangeTypeDelete)}); err != nil {
		t.Fatalf("append returned error: %v", err)
	}

	got := logs.Load("p1")
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("expected newest-first order [b a], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestLogStoreAppend_CapKeepsNewest(t *testing.T) {
	logs := NewLogStore(storage.NewMemory())

	batch := make([]*ChangeEvent, 0, LogCap)
	for i := 0; i < LogCap; i++ {
		batch = append(batch, event(fmt.Sprintf("old-%d", i), ChangeTypeUpload))
	}
	if err := logs.Append("p1", batch); err != nil {
		t.Fatalf("append returned error: %v", err)
	}

	if err := logs.Append("p1", []*ChangeEvent{event("new", ChangeTypeUpload)}); err != nil {
		t.Fatalf("append returned error: %v", err)
	}

	got := logs.Load("p1")
	if len(got) != LogCap {
		t.Fatalf("expected log capped at %d, got %d", LogCap, len(got))
	}
	if got[0].ID != "new" {
		t.Fatalf("expected newest event first, got %s", got[0].ID)
	}
	if got[len(got)-1].ID != fmt.Sprintf("old-%d", LogCap-2) {
		t.Fatalf("expected oldest event evicted, tail is %s", got[len(got)-1].ID)
	}
}

func TestLogStoreLoad_CorruptTreatedAsEmpty(t *testing.T) {
	store := storage.NewMemory()
	if err := store.Set("logs/p1", []byte("{not json")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	logs := NewLogStore(store)
	if got := logs.Load("p1"); len(got) != 0 {
		t.Fatalf("expected corrupt log to read as empty, got %d events", len(got))
	}
}

func TestLogStoreDelete(t *testing.T) {
	store := storage.NewMemory()
	logs := NewLogStore(store)

	if err := logs.Append("p1", []*ChangeEvent{event("a", ChangeTypeUpload)}); err != nil {
		t.Fatalf("append returned error: %v", err)
	}
	if err := logs.Delete("p1"); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if got := logs.Load("p1"); len(got) != 0 {
		t.Fatalf("expected empty log after delete, got %d events", len(got))
	}
}

func TestFilter(t *testing.T) {
	events := []*ChangeEvent{
		event("a", ChangeTypeUpload),
		event("b", ChangeTypeDelete),
		event("c", ChangeTypeUpload),
	}

	uploads := Filter(events, ChangeTypeUpload)
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(uploads))
	}

	if all := Filter(events, ChangeTypeAll); len(all) != 3 {
		t.Fatalf("expected all sentinel to pass everything, got %d", len(all))
	}
	if all := Filter(events, ""); len(all) != 3 {
		t.Fatalf("expected empty kind to pass everything, got %d", len(all))
	}
}

func TestSearch(t *testing.T) {
	events := []*ChangeEvent{
		{ID: "a", FileName: "Quarterly Report.pdf", Owner: "Alice"},
		{ID: "b", FileName: "notes.txt", Owner: "Bob"},
	}

	if got := Search(events, "report"); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected case-insensitive file name match on a, got %v", got)
	}
	if got := Search(events, "BOB"); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected owner match on b, got %v", got)
	}
	if got := Search(events, ""); len(got) != 2 {
		t.Fatalf("expected empty query passthrough, got %d", len(got))
	}
	if got := Search(events, "zzz"); len(got) != 0 {
		t.Fatalf("expected no match, got %d", len(got))
	}
}
