package drive

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const fileFields = "id, name, mimeType, modifiedTime, owners, parents, size, trashed"

// googleClient implements Client against the Google Drive v3 API.
type googleClient struct {
	svc *drivev3.Service
}

// NewGoogleClient builds a Client from an OAuth2 token source.
func NewGoogleClient(ctx context.Context, ts oauth2.TokenSource) (Client, error) {
	svc, err := drivev3.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &googleClient{svc: svc}, nil
}

func (c *googleClient) GetFile(ctx context.Context, fileID string) (*File, error) {
	file, err := doDriveRequest(ctx, "drive.files.get", func() (*drivev3.File, error) {
		return c.svc.Files.Get(fileID).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", fileID, err)
	}
	return fromAPIFile(file), nil
}

func (c *googleClient) ListChildren(ctx context.Context, folderID string) ([]*File, error) {
	var children []*File
	pageToken := ""
	for {
		req := c.svc.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed=false", folderID)).
			OrderBy("folder,name").
			PageSize(1000).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")"))
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := doDriveRequest(ctx, "drive.files.list", func() (*drivev3.FileList, error) {
			return req.Context(ctx).Do()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", folderID, err)
		}

		for _, file := range resp.Files {
			if file == nil || file.Id == "" {
				continue
			}
			children = append(children, fromAPIFile(file))
		}

		if resp.NextPageToken == "" {
			return children, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (c *googleClient) ListChanges(ctx context.Context, cursor string) (*ChangeList, error) {
	resp, err := doDriveRequest(ctx, "drive.changes.list", func() (*drivev3.ChangeList, error) {
		return c.svc.Changes.List(cursor).
			Fields(googleapi.Field("changes(fileId, removed, file(" + fileFields + ")), newStartPageToken, nextPageToken")).
			Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	list := &ChangeList{
		NewCursor:     resp.NewStartPageToken,
		NextPageToken: resp.NextPageToken,
	}
	for _, change := range resp.Changes {
		if change == nil {
			continue
		}
		entry := &Change{
			FileID:  change.FileId,
			Removed: change.Removed,
		}
		if change.File != nil {
			entry.File = fromAPIFile(change.File)
			if entry.FileID == "" {
				entry.FileID = change.File.Id
			}
		}
		list.Changes = append(list.Changes, entry)
	}
	return list, nil
}

func (c *googleClient) StartPageToken(ctx context.Context) (string, error) {
	resp, err := doDriveRequest(ctx, "drive.changes.getStartPageToken", func() (*drivev3.StartPageToken, error) {
		return c.svc.Changes.GetStartPageToken().Context(ctx).Do()
	})
	if err != nil {
		return "", fmt.Errorf("failed to get start page token: %w", err)
	}
	return resp.StartPageToken, nil
}

func (c *googleClient) Watch(ctx context.Context, folderID, channelID, webhookURL string, ttl time.Duration) (*ChannelInfo, error) {
	channel := &drivev3.Channel{
		Id:         channelID,
		Type:       "web_hook",
		Address:    webhookURL,
		Expiration: time.Now().Add(ttl).UnixMilli(),
	}

	resp, err := doDriveRequest(ctx, "drive.files.watch", func() (*drivev3.Channel, error) {
		return c.svc.Files.Watch(folderID, channel).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch folder %s: %w", folderID, err)
	}
	return &ChannelInfo{
		ResourceID: resp.ResourceId,
		Expiration: resp.Expiration,
	}, nil
}

func (c *googleClient) StopChannel(ctx context.Context, channelID, resourceID string) error {
	_, err := doDriveRequest(ctx, "drive.channels.stop", func() (struct{}, error) {
		return struct{}{}, c.svc.Channels.Stop(&drivev3.Channel{
			Id:         channelID,
			ResourceId: resourceID,
		}).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to stop channel %s: %w", channelID, err)
	}
	return nil
}

func (c *googleClient) Upload(ctx context.Context, folderID, name, mimeType string, r io.Reader) (*File, error) {
	meta := &drivev3.File{
		Name:    name,
		Parents: []string{folderID},
	}

	// Media uploads are not replayed through the retry helper; a consumed
	// reader cannot be retried.
	file, err := c.svc.Files.Create(meta).
		Media(r, googleapi.ContentType(mimeType)).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return fromAPIFile(file), nil
}

func (c *googleClient) FileLinks(ctx context.Context, fileID string) (*FileLinks, error) {
	file, err := doDriveRequest(ctx, "drive.files.get", func() (*drivev3.File, error) {
		return c.svc.Files.Get(fileID).
			Fields("id, name, mimeType, webViewLink, webContentLink, trashed").
			Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file links for %s: %w", fileID, err)
	}
	return &FileLinks{
		ViewLink:     file.WebViewLink,
		DownloadLink: file.WebContentLink,
		Trashed:      file.Trashed,
	}, nil
}

func fromAPIFile(file *drivev3.File) *File {
	if file == nil {
		return nil
	}

	out := &File{
		ID:       file.Id,
		Name:     file.Name,
		MimeType: file.MimeType,
		Size:     file.Size,
		Trashed:  file.Trashed,
		Parents:  file.Parents,
	}
	if file.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, file.ModifiedTime); err == nil {
			out.ModifiedTime = t
		}
	}
	for _, owner := range file.Owners {
		if owner != nil && owner.DisplayName != "" {
			out.Owners = append(out.Owners, owner.DisplayName)
		}
	}
	return out
}
