package drive

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

// FolderNode is one synchronous snapshot of a Drive folder. Children and
// files are never updated in place; a refresh replaces the whole tree.
type FolderNode struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ModifiedTime time.Time     `json:"modifiedTime"`
	Owner        string        `json:"owner"`
	Children     []*FolderNode `json:"children"`
	Files        []*FileEntry  `json:"files"`
}

// FileEntry is one file inside a FolderNode. Immutable once constructed.
type FileEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Owner        string    `json:"owner"`
	Size         int64     `json:"size"`
}

// Fetcher retrieves recursive folder hierarchies.
type Fetcher struct {
	client Client
}

// NewFetcher creates a hierarchy fetcher over the given client.
func NewFetcher(client Client) *Fetcher {
	return &Fetcher{client: client}
}

// Hierarchy fetches the full tree rooted at folderID. It fails with
// ErrNotAFolder when the target is not a folder. Lookups are batched per
// folder (one list call each), so the API cost is proportional to the number
// of folders. A failed subfolder fetch is logged and skipped so sibling
// branches survive.
func (f *Fetcher) Hierarchy(ctx context.Context, folderID string) (*FolderNode, error) {
	folder, err := f.client.GetFile(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAFolder, folderID, folder.MimeType)
	}
	return f.fetchFolder(ctx, folder)
}

func (f *Fetcher) fetchFolder(ctx context.Context, folder *File) (*FolderNode, error) {
	node := &FolderNode{
		ID:           folder.ID,
		Name:         folder.Name,
		ModifiedTime: folder.ModifiedTime,
		Owner:        folder.Owner(),
		Children:     []*FolderNode{},
		Files:        []*FileEntry{},
	}

	// The API returns folders before files, each group sorted by name.
	// Order is preserved as-is.
	children, err := f.client.ListChildren(ctx, folder.ID)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if child.IsFolder() {
			sub, err := f.fetchFolder(ctx, child)
			if err != nil {
				log.Warn().Err(err).Str("folder_id", child.ID).Str("name", child.Name).Msg("Skipping unreadable subfolder")
				continue
			}
			node.Children = append(node.Children, sub)
			continue
		}
		node.Files = append(node.Files, &FileEntry{
			ID:           child.ID,
			Name:         child.Name,
			MimeType:     child.MimeType,
			ModifiedTime: child.ModifiedTime,
			Owner:        child.Owner(),
			Size:         child.Size,
		})
	}

	return node, nil
}

// ExtractAllFiles flattens a hierarchy into a single depth-first file list:
// the folder's own files first, then each subfolder's in order.
func ExtractAllFiles(node *FolderNode) []*FileEntry {
	if node == nil {
		return nil
	}

	files := make([]*FileEntry, 0, len(node.Files))
	files = append(files, node.Files...)
	for _, child := range node.Children {
		files = append(files, ExtractAllFiles(child)...)
	}
	return files
}

var folderURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
}

// FolderIDFromURL extracts the folder ID from a Google Drive URL. Returns
// an empty string when the URL has no recognizable folder reference.
func FolderIDFromURL(url string) string {
	for _, pattern := range folderURLPatterns {
		if match := pattern.FindStringSubmatch(url); match != nil {
			return match[1]
		}
	}
	return ""
}
