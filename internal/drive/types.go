package drive

import (
	"context"
	"errors"
	"io"
	"time"
)

const FolderMimeType = "application/vnd.google-apps.folder"

// UnknownOwner is used when the upstream API reports no owner for a file.
const UnknownOwner = "Unknown"

var (
	// ErrNotAFolder is returned when a hierarchy fetch targets a non-folder.
	ErrNotAFolder = errors.New("drive: target is not a folder")
	// ErrUpstreamUnavailable wraps transient upstream API failures.
	ErrUpstreamUnavailable = errors.New("drive: upstream unavailable")
)

// File is the metadata subset of a Drive item the application consumes.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Owners       []string  `json:"owners,omitempty"`
	Parents      []string  `json:"parents,omitempty"`
	Size         int64     `json:"size"`
	Trashed      bool      `json:"trashed"`
}

// IsFolder reports whether the file is a Drive folder.
func (f *File) IsFolder() bool {
	return f != nil && f.MimeType == FolderMimeType
}

// Owner returns the file's first owner display name, or UnknownOwner.
func (f *File) Owner() string {
	if f == nil || len(f.Owners) == 0 || f.Owners[0] == "" {
		return UnknownOwner
	}
	return f.Owners[0]
}

// Change is one raw entry from the upstream change feed.
type Change struct {
	FileID  string `json:"fileId"`
	Removed bool   `json:"removed"`
	File    *File  `json:"file,omitempty"`
}

// ChangeList is one page of the upstream change feed. NewCursor is set on
// the terminal page; NextPageToken when more pages follow.
type ChangeList struct {
	Changes       []*Change `json:"changes"`
	NewCursor     string    `json:"newCursor"`
	NextPageToken string    `json:"nextPageToken"`
}

// ChannelInfo describes a registered push-notification channel.
type ChannelInfo struct {
	ResourceID string `json:"resourceId"`
	Expiration int64  `json:"expiration"` // epoch millis
}

// FileLinks holds the user-facing links for a file.
type FileLinks struct {
	ViewLink     string `json:"viewLink,omitempty"`
	DownloadLink string `json:"downloadLink,omitempty"`
	Trashed      bool   `json:"trashed"`
}

// Client is the consumed Drive capability set. Implementations must be safe
// for concurrent use.
type Client interface {
	// GetFile fetches metadata (including parents) for one item.
	GetFile(ctx context.Context, fileID string) (*File, error)
	// ListChildren lists the direct children of a folder, folders before
	// files, each group ordered by name. The caller must not re-sort.
	ListChildren(ctx context.Context, folderID string) ([]*File, error)
	// ListChanges returns one page of changes since cursor.
	ListChanges(ctx context.Context, cursor string) (*ChangeList, error)
	// StartPageToken returns a cursor pointing at "now".
	StartPageToken(ctx context.Context) (string, error)
	// Watch registers a webhook channel against a folder.
	Watch(ctx context.Context, folderID, channelID, webhookURL string, ttl time.Duration) (*ChannelInfo, error)
	// StopChannel tells the upstream API to stop webhook delivery.
	StopChannel(ctx context.Context, channelID, resourceID string) error
	// Upload creates a file inside folderID from r.
	Upload(ctx context.Context, folderID, name, mimeType string, r io.Reader) (*File, error)
	// FileLinks fetches the view/download links for a file.
	FileLinks(ctx context.Context, fileID string) (*FileLinks, error)
}
