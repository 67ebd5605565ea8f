package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/drivescope/drivescope/internal/drive"
)

// fakeClient is an in-memory drive.Client for tests. The gate channels, when
// non-nil, let a test hold calls in flight to line up concurrent callers.
type fakeClient struct {
	files       map[string]*drive.File
	children    map[string][]*drive.File
	changePages map[string]*drive.ChangeList
	startToken  string

	watchInfo  *drive.ChannelInfo
	watchErr   error
	watchCalls int

	stopErr   error
	stopEnter chan struct{} // StopChannel signals entry
	stopGate  chan struct{} // then blocks until released
	listGate  chan struct{} // ListChanges blocks until released

	mu          sync.Mutex
	stopped     []string
	listChanges int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		files:       make(map[string]*drive.File),
		children:    make(map[string][]*drive.File),
		changePages: make(map[string]*drive.ChangeList),
		startToken:  "token-1",
	}
}

func (c *fakeClient) GetFile(_ context.Context, fileID string) (*drive.File, error) {
	file, ok := c.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return file, nil
}

func (c *fakeClient) ListChildren(_ context.Context, folderID string) ([]*drive.File, error) {
	return c.children[folderID], nil
}

func (c *fakeClient) ListChanges(_ context.Context, cursor string) (*drive.ChangeList, error) {
	c.mu.Lock()
	c.listChanges++
	c.mu.Unlock()
	if c.listGate != nil {
		<-c.listGate
	}
	page, ok := c.changePages[cursor]
	if !ok {
		return nil, fmt.Errorf("unknown cursor %q", cursor)
	}
	return page, nil
}

func (c *fakeClient) StartPageToken(_ context.Context) (string, error) {
	return c.startToken, nil
}

func (c *fakeClient) Watch(_ context.Context, folderID, channelID, webhookURL string, ttl time.Duration) (*drive.ChannelInfo, error) {
	c.watchCalls++
	if c.watchErr != nil {
		return nil, c.watchErr
	}
	if c.watchInfo != nil {
		return c.watchInfo, nil
	}
	return &drive.ChannelInfo{
		ResourceID: "resource-" + channelID,
		Expiration: time.Now().Add(ttl).UnixMilli(),
	}, nil
}

func (c *fakeClient) StopChannel(_ context.Context, channelID, resourceID string) error {
	if c.stopEnter != nil {
		c.stopEnter <- struct{}{}
	}
	if c.stopGate != nil {
		<-c.stopGate
	}
	if c.stopErr != nil {
		return c.stopErr
	}
	c.mu.Lock()
	c.stopped = append(c.stopped, channelID)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Upload(_ context.Context, folderID, name, mimeType string, r io.Reader) (*drive.File, error) {
	return &drive.File{ID: "uploaded", Name: name, MimeType: mimeType, Parents: []string{folderID}}, nil
}

func (c *fakeClient) FileLinks(_ context.Context, fileID string) (*drive.FileLinks, error) {
	return &drive.FileLinks{ViewLink: "https://example.com/view/" + fileID}, nil
}

// staticProvider hands out the same client for every user.
type staticProvider struct {
	client drive.Client
	err    error
}

func (p *staticProvider) ClientForUser(_ context.Context, _ string) (drive.Client, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}
