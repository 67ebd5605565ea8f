package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/drive"
)

// Classifier turns raw upstream changes into ChangeEvents scoped to one
// watched folder.
type Classifier struct {
	client drive.Client
}

// NewClassifier creates a classifier using client for ancestry lookups.
func NewClassifier(client drive.Client) *Classifier {
	return &Classifier{client: client}
}

// Classify decides whether a raw change belongs in the change log of the
// folder identified by watchedFolderID. It returns nil for changes that
// should be discarded: no file payload, folders, and files that are not
// descendants of the watched folder.
//
// A removed change is a delete regardless of any other field. A trashed
// file is a delete when it is in scope.
func (c *Classifier) Classify(ctx context.Context, change *drive.Change, watchedFolderID string) *ChangeEvent {
	if change == nil {
		return nil
	}

	if change.Removed {
		return c.newEvent(change, ChangeTypeDelete)
	}

	file := change.File
	if file == nil {
		return nil
	}
	// Folders are not logged, only their contents.
	if file.IsFolder() {
		return nil
	}

	if !c.inFolder(ctx, file, watchedFolderID) {
		return nil
	}

	if file.Trashed {
		return c.newEvent(change, ChangeTypeDelete)
	}
	return c.newEvent(change, classifyLiveChange(file))
}

// classifyLiveChange labels a non-delete change. Distinguishing a new file
// from a modified one would require a diff against previously known state;
// everything is reported as an upload until such a diff exists. Replacing
// this function is the single place to change that policy.
func classifyLiveChange(_ *drive.File) ChangeType {
	return ChangeTypeUpload
}

// inFolder reports whether file sits beneath the watched folder, checking
// direct parents first and then one extra hop up. A parent that cannot be
// resolved is treated as out of scope, not as an error.
func (c *Classifier) inFolder(ctx context.Context, file *drive.File, watchedFolderID string) bool {
	if file == nil || len(file.Parents) == 0 {
		return false
	}

	for _, parentID := range file.Parents {
		if parentID == watchedFolderID {
			return true
		}
	}

	for _, parentID := range file.Parents {
		parent, err := c.client.GetFile(ctx, parentID)
		if err != nil {
			log.Debug().Err(err).Str("parent_id", parentID).Msg("Failed to resolve parent; treating as out of scope")
			continue
		}
		for _, grandParentID := range parent.Parents {
			if grandParentID == watchedFolderID {
				return true
			}
		}
	}

	return false
}

func (c *Classifier) newEvent(change *drive.Change, changeType ChangeType) *ChangeEvent {
	now := time.Now()

	event := &ChangeEvent{
		ID:           newEventID(change.FileID, now),
		FileID:       change.FileID,
		ChangeType:   changeType,
		ModifiedTime: now,
		Owner:        drive.UnknownOwner,
		Timestamp:    now,
	}
	if change.File != nil {
		event.FileName = change.File.Name
		event.Owner = change.File.Owner()
		if !change.File.ModifiedTime.IsZero() {
			event.ModifiedTime = change.File.ModifiedTime
		}
	}
	return event
}
