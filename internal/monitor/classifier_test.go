package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/drivescope/drivescope/internal/drive"
)

const watchedFolder = "folder-watched"

func TestClassify_RemovedIsDeleteRegardlessOfPayload(t *testing.T) {
	classifier := NewClassifier(newFakeClient())

	// No file payload at all: removal still produces a delete event.
	event := classifier.Classify(context.Background(), &drive.Change{
		FileID:  "file-1",
		Removed: true,
	}, watchedFolder)

	if event == nil {
		t.Fatal("expected a delete event for a removed change")
	}
	if event.ChangeType != ChangeTypeDelete {
		t.Fatalf("expected delete, got %q", event.ChangeType)
	}
	if event.FileID != "file-1" {
		t.Fatalf("expected file-1, got %q", event.FileID)
	}
	if event.Owner != drive.UnknownOwner {
		t.Fatalf("expected unknown owner, got %q", event.Owner)
	}
}

func TestClassify_NoFilePayloadDiscarded(t *testing.T) {
	classifier := NewClassifier(newFakeClient())

	if event := classifier.Classify(context.Background(), &drive.Change{FileID: "file-1"}, watchedFolder); event != nil {
		t.Fatalf("expected nil for change without file payload, got %+v", event)
	}
}

func TestClassify_FoldersDiscarded(t *testing.T) {
	classifier := NewClassifier(newFakeClient())

	event := classifier.Classify(context.Background(), &drive.Change{
		FileID: "sub",
		File: &drive.File{
			ID:       "sub",
			Name:     "Subfolder",
			MimeType: drive.FolderMimeType,
			Parents:  []string{watchedFolder},
		},
	}, watchedFolder)

	if event != nil {
		t.Fatalf("expected nil for folder change, got %+v", event)
	}
}

func TestClassify_DirectChildInScope(t *testing.T) {
	classifier := NewClassifier(newFakeClient())

	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := classifier.Classify(context.Background(), &drive.Change{
		FileID: "file-1",
		File: &drive.File{
			ID:           "file-1",
			Name:         "report.pdf",
			MimeType:     "application/pdf",
			ModifiedTime: modified,
			Owners:       []string{"Alice"},
			Parents:      []string{watchedFolder},
		},
	}, watchedFolder)

	if event == nil {
		t.Fatal("expected an event for an in-scope file")
	}
	if event.ChangeType != ChangeTypeUpload {
		t.Fatalf("expected upload, got %q", event.ChangeType)
	}
	if event.FileName != "report.pdf" {
		t.Fatalf("expected report.pdf, got %q", event.FileName)
	}
	if event.Owner != "Alice" {
		t.Fatalf("expected Alice, got %q", event.Owner)
	}
	if !event.ModifiedTime.Equal(modified) {
		t.Fatalf("expected modified time preserved, got %v", event.ModifiedTime)
	}
}

func TestClassify_GrandchildInScopeViaParentLookup(t *testing.T) {
	client := newFakeClient()
	client.files["subfolder"] = &drive.File{
		ID:       "subfolder",
		MimeType: drive.FolderMimeType,
		Parents:  []string{watchedFolder},
	}
	classifier := NewClassifier(client)

	event := classifier.Classify(context.Background(), &drive.Change{
		FileID: "file-1",
		File: &drive.File{
			ID:      "file-1",
			Name:    "nested.txt",
			Parents: []string{"subfolder"},
		},
	}, watchedFolder)

	if event == nil {
		t.Fatal("expected an event for a file one level below the watched folder")
	}
	if event.ChangeType != ChangeTypeUpload {
		t.Fatalf("expected upload, got %q", event.ChangeType)
	}
}

func TestClassify_OutOfScopeDiscarded(t *testing.T) {
	client := newFakeClient()
	client.files["elsewhere"] = &drive.File{
		ID:       "elsewhere",
		MimeType: drive.FolderMimeType,
		Parents:  []string{"unrelated-root"},
	}
	classifier := NewClassifier(client)

	event := classifier.Classify(context.Background(), &drive.Change{
		FileID: "file-1",
		File: &drive.File{
			ID:      "file-1",
			Name:    "stray.txt",
			Parents: []string{"elsewhere"},
		},
	}, watchedFolder)

	if event != nil {
		t.Fatalf("expected nil for out-of-scope file, got %+v", event)
	}
}

func TestClassify_UnresolvableParentTreatedAsOutOfScope(t *testing.T) {
	// The fake client errors for unknown IDs, so the parent lookup fails.
	classifier := NewClassifier(newFakeClient())

	event := classifier.Classify(context.Background(), &drive.Change{
		FileID: "file-1",
		File: &drive.File{
			ID:      "file-1",
			Name:    "orphan.txt",
			Parents: []string{"missing-parent"},
		},
	}, watchedFolder)

	if event != nil {
		t.Fatalf("expected nil when the parent cannot be resolved, got %+v", event)
	}
}

func TestClassify_TrashedInScopeIsDelete(t *testing.T) {
	classifier := NewClassifier(newFakeClient())

	event := classifier.Classify(context.Background(), &drive.Change{
		FileID: "file-1",
		File: &drive.File{
			ID:      "file-1",
			Name:    "old.txt",
			Trashed: true,
			Parents: []string{watchedFolder},
		},
	}, watchedFolder)

	if event == nil {
		t.Fatal("expected a delete event for a trashed in-scope file")
	}
	if event.ChangeType != ChangeTypeDelete {
		t.Fatalf("expected delete, got %q", event.ChangeType)
	}
}
