package monitor

import (
	"strconv"
	"time"
)

// ChangeType labels a logged file change.
type ChangeType string

const (
	ChangeTypeUpload ChangeType = "upload"
	ChangeTypeChange ChangeType = "change"
	ChangeTypeDelete ChangeType = "delete"

	// ChangeTypeAll is the filter sentinel matching every change type.
	ChangeTypeAll ChangeType = "all"
)

// ChangeEvent is one normalized, classified file change as persisted in the
// per-project change log. Events are immutable once appended.
type ChangeEvent struct {
	ID           string     `json:"id"`
	FileID       string     `json:"fileId"`
	FileName     string     `json:"fileName"`
	ChangeType   ChangeType `json:"changeType"`
	ModifiedTime time.Time  `json:"modifiedTime"`
	Owner        string     `json:"owner"`
	Timestamp    time.Time  `json:"timestamp"`
}

// newEventID derives a log-unique event ID. The nanosecond timestamp keeps
// IDs distinct even when the same file changes twice in one poll cycle.
func newEventID(fileID string, now time.Time) string {
	return fileID + "-" + strconv.FormatInt(now.UnixNano(), 10)
}
