package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drivescope/drivescope/internal/drive"
	"github.com/drivescope/drivescope/internal/storage"
)

// fakeCursorStore is a single-project CursorStore.
type fakeCursorStore struct {
	mu       sync.Mutex
	userID   string
	folderID string
	cursor   string
}

func (s *fakeCursorStore) Cursor(projectID string) (string, string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.folderID, s.cursor, nil
}

func (s *fakeCursorStore) SetCursor(projectID, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	return nil
}

func (s *fakeCursorStore) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func newTestReconciler(client drive.Client, projects CursorStore, notify Notifier) (*Reconciler, *LogStore) {
	logs := NewLogStore(storage.NewMemory())
	r := NewReconciler(&staticProvider{client: client}, logs, projects, time.Hour, notify)
	return r, logs
}

func TestPollOnce_EmptyCursorAnchorsAtNow(t *testing.T) {
	client := newFakeClient()
	client.startToken = "anchor-7"
	projects := &fakeCursorStore{userID: "user-1", folderID: watchedFolder}

	r, logs := newTestReconciler(client, projects, nil)
	defer r.Stop()

	result, err := r.PollOnce(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PollOnce returned error: %v", err)
	}
	if len(result.Events) != 0 {
		t.Fatalf("expected no events on the anchoring poll, got %d", len(result.Events))
	}
	if result.NewCursor != "anchor-7" {
		t.Fatalf("expected cursor anchored to start token, got %q", result.NewCursor)
	}
	if projects.get() != "anchor-7" {
		t.Fatalf("expected stored cursor anchor-7, got %q", projects.get())
	}
	if client.listChanges != 0 {
		t.Fatal("expected no change listing on the anchoring poll")
	}
	if got := logs.Load("p1"); len(got) != 0 {
		t.Fatalf("expected empty log after anchoring poll, got %d", len(got))
	}
}

func TestPollOnce_ClassifiesAppendsAndAdvances(t *testing.T) {
	client := newFakeClient()
	client.changePages["cursor-1"] = &drive.ChangeList{
		Changes: []*drive.Change{
			{FileID: "in-scope", File: &drive.File{ID: "in-scope", Name: "a.txt", Parents: []string{watchedFolder}}},
			{FileID: "gone", Removed: true},
			{FileID: "stray", File: &drive.File{ID: "stray", Name: "b.txt", Parents: []string{"elsewhere"}}},
		},
		NextPageToken: "cursor-1b",
	}
	client.changePages["cursor-1b"] = &drive.ChangeList{
		Changes: []*drive.Change{
			{FileID: "late", File: &drive.File{ID: "late", Name: "c.txt", Parents: []string{watchedFolder}}},
		},
		NewCursor: "cursor-2",
	}
	projects := &fakeCursorStore{userID: "user-1", folderID: watchedFolder, cursor: "cursor-1"}

	var notified []*ChangeEvent
	r, logs := newTestReconciler(client, projects, func(projectID string, events []*ChangeEvent) {
		notified = events
	})
	defer r.Stop()

	result, err := r.PollOnce(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PollOnce returned error: %v", err)
	}

	if len(result.Events) != 3 {
		t.Fatalf("expected 3 events (upload, delete, upload across pages), got %d", len(result.Events))
	}
	if result.NewCursor != "cursor-2" {
		t.Fatalf("expected cursor advanced to cursor-2, got %q", result.NewCursor)
	}
	if projects.get() != "cursor-2" {
		t.Fatalf("expected stored cursor cursor-2, got %q", projects.get())
	}
	if len(notified) != 3 {
		t.Fatalf("expected notifier invoked with 3 events, got %d", len(notified))
	}

	stored := logs.Load("p1")
	if len(stored) != 3 {
		t.Fatalf("expected 3 events persisted, got %d", len(stored))
	}
}

func TestPollOnce_EmptyBatchStillAdvancesCursor(t *testing.T) {
	client := newFakeClient()
	client.changePages["cursor-1"] = &drive.ChangeList{NewCursor: "cursor-2"}
	projects := &fakeCursorStore{userID: "user-1", folderID: watchedFolder, cursor: "cursor-1"}

	notifyCalls := 0
	r, logs := newTestReconciler(client, projects, func(string, []*ChangeEvent) { notifyCalls++ })
	defer r.Stop()

	result, err := r.PollOnce(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PollOnce returned error: %v", err)
	}
	if len(result.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(result.Events))
	}
	if projects.get() != "cursor-2" {
		t.Fatalf("expected cursor advanced despite empty batch, got %q", projects.get())
	}
	if notifyCalls != 0 {
		t.Fatal("expected no notification for an empty batch")
	}
	if got := logs.Load("p1"); len(got) != 0 {
		t.Fatalf("expected log untouched, got %d events", len(got))
	}
}

func TestPollOnce_FailureLeavesCursorUntouched(t *testing.T) {
	client := newFakeClient()
	// No page registered for the cursor: ListChanges fails.
	projects := &fakeCursorStore{userID: "user-1", folderID: watchedFolder, cursor: "cursor-1"}

	r, _ := newTestReconciler(client, projects, nil)
	defer r.Stop()

	if _, err := r.PollOnce(context.Background(), "p1"); err == nil {
		t.Fatal("expected PollOnce to fail")
	}
	if projects.get() != "cursor-1" {
		t.Fatalf("expected cursor unchanged after failure, got %q", projects.get())
	}
}

func TestPollOnce_OverlappingPollsDoNotDoubleLog(t *testing.T) {
	client := newFakeClient()
	client.listGate = make(chan struct{})
	client.changePages["cursor-1"] = &drive.ChangeList{
		Changes: []*drive.Change{
			{FileID: "f1", File: &drive.File{ID: "f1", Name: "a.txt", Parents: []string{watchedFolder}}},
		},
		NewCursor: "cursor-2",
	}
	client.changePages["cursor-2"] = &drive.ChangeList{NewCursor: "cursor-2"}
	projects := &fakeCursorStore{userID: "user-1", folderID: watchedFolder, cursor: "cursor-1"}

	r, logs := newTestReconciler(client, projects, nil)
	defer r.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.PollOnce(context.Background(), "p1"); err != nil {
				t.Errorf("PollOnce returned error: %v", err)
			}
		}()
	}

	// Release the change listings one at a time. The second poll must not
	// reach the upstream until the first has advanced the cursor, so it
	// lists from cursor-2 and finds nothing new.
	client.listGate <- struct{}{}
	client.listGate <- struct{}{}
	wg.Wait()

	if got := logs.Load("p1"); len(got) != 1 {
		t.Fatalf("expected the change logged once across overlapping polls, got %d", len(got))
	}
	if projects.get() != "cursor-2" {
		t.Fatalf("expected cursor-2, got %q", projects.get())
	}
	if client.listChanges != 2 {
		t.Fatalf("expected 2 change listings, got %d", client.listChanges)
	}
}

func TestKick_UnknownProjectIsNoOp(t *testing.T) {
	r, _ := newTestReconciler(newFakeClient(), &fakeCursorStore{}, nil)
	defer r.Stop()

	// Must not panic or block.
	r.Kick("never-added")
}

func TestAddRemoveProject(t *testing.T) {
	client := newFakeClient()
	client.startToken = "anchor-1"
	projects := &fakeCursorStore{userID: "user-1", folderID: watchedFolder}

	r, _ := newTestReconciler(client, projects, nil)
	defer r.Stop()

	r.AddProject("p1")

	// The loop's initial tick anchors the cursor.
	deadline := time.After(2 * time.Second)
	for projects.get() == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the initial tick")
		case <-time.After(10 * time.Millisecond):
		}
	}

	r.RemoveProject("p1")
	r.RemoveProject("p1") // second removal is a no-op
}
