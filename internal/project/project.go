package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drivescope/drivescope/internal/storage"
)

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = errors.New("project: not found")

// Project is one watched-folder configuration owned by a user. PageToken is
// the opaque change cursor; the channel fields hold the current webhook
// registration and are empty until a watch is established. At most one
// channel per project is active at a time.
type Project struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	DriveURL          string    `json:"driveUrl"`
	FolderID          string    `json:"folderId"`
	UserID            string    `json:"userId"`
	CreatedAt         time.Time `json:"createdAt"`
	PageToken         string    `json:"pageToken,omitempty"`
	ChannelID         string    `json:"channelId,omitempty"`
	ChannelResourceID string    `json:"channelResourceId,omitempty"`
	ChannelExpiration int64     `json:"channelExpiration,omitempty"`
}

// Manager persists projects in the key-value store, one record list per
// user.
type Manager struct {
	store storage.Store
	mu    sync.Mutex
}

// NewManager creates a project manager over the given store.
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

func userKey(userID string) string {
	return "projects/" + userID
}

// Create registers a new project for a user. An empty name defaults to a
// dated placeholder.
func (m *Manager) Create(userID, name, driveURL, folderID string) (*Project, error) {
	if name == "" {
		name = "Project " + time.Now().Format("2006-01-02")
	}

	project := &Project{
		ID:        "project-" + uuid.NewString(),
		Name:      name,
		DriveURL:  driveURL,
		FolderID:  folderID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	projects := m.loadUser(userID)
	projects = append(projects, project)
	if err := m.saveUser(userID, projects); err != nil {
		return nil, err
	}
	return project, nil
}

// List returns all projects owned by a user.
func (m *Manager) List(userID string) []*Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadUser(userID)
}

// Get returns one project owned by a user.
func (m *Manager) Get(userID, projectID string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, project := range m.loadUser(userID) {
		if project.ID == projectID {
			return project, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, projectID)
}

// Find locates a project by ID across all users.
func (m *Manager) Find(projectID string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(projectID)
}

func (m *Manager) findLocked(projectID string) (*Project, error) {
	keys, err := m.store.Keys("projects/")
	if err != nil {
		return nil, fmt.Errorf("failed to list project keys: %w", err)
	}
	for _, key := range keys {
		for _, project := range m.loadKey(key) {
			if project.ID == projectID {
				return project, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, projectID)
}

// All returns every project across all users. Used at startup to restore
// polling loops.
func (m *Manager) All() []*Project {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.store.Keys("projects/")
	if err != nil {
		return []*Project{}
	}
	var projects []*Project
	for _, key := range keys {
		projects = append(projects, m.loadKey(key)...)
	}
	return projects
}

// Update replaces a stored project record.
func (m *Manager) Update(project *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	projects := m.loadUser(project.UserID)
	for i, existing := range projects {
		if existing.ID == project.ID {
			projects[i] = project
			return m.saveUser(project.UserID, projects)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, project.ID)
}

// Delete removes a project record. The caller is responsible for the
// cascade: change log removal, channel stop, and poll loop cancellation.
func (m *Manager) Delete(userID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	projects := m.loadUser(userID)
	remaining := make([]*Project, 0, len(projects))
	found := false
	for _, project := range projects {
		if project.ID == projectID {
			found = true
			continue
		}
		remaining = append(remaining, project)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, projectID)
	}
	return m.saveUser(userID, remaining)
}

// Search returns a user's projects whose name contains query,
// case-insensitively. An empty query returns everything.
func (m *Manager) Search(userID, query string) []*Project {
	projects := m.List(userID)
	if query == "" {
		return projects
	}

	lower := strings.ToLower(query)
	matched := make([]*Project, 0, len(projects))
	for _, project := range projects {
		if strings.Contains(strings.ToLower(project.Name), lower) {
			matched = append(matched, project)
		}
	}
	return matched
}

// Cursor implements monitor.CursorStore.
func (m *Manager) Cursor(projectID string) (string, string, string, error) {
	project, err := m.Find(projectID)
	if err != nil {
		return "", "", "", err
	}
	return project.UserID, project.FolderID, project.PageToken, nil
}

// SetCursor implements monitor.CursorStore.
func (m *Manager) SetCursor(projectID, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	project, err := m.findLocked(projectID)
	if err != nil {
		return err
	}

	projects := m.loadUser(project.UserID)
	for i, existing := range projects {
		if existing.ID == projectID {
			updated := *existing
			updated.PageToken = cursor
			projects[i] = &updated
			return m.saveUser(project.UserID, projects)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, projectID)
}

func snapshotKey(projectID string) string {
	return "hierarchy/" + projectID
}

// SaveSnapshot stores the latest serialized hierarchy snapshot for a
// project. Snapshots are whole-tree replacements, never partial updates.
func (m *Manager) SaveSnapshot(projectID string, snapshot []byte) error {
	if err := m.store.Set(snapshotKey(projectID), snapshot); err != nil {
		return fmt.Errorf("failed to persist hierarchy snapshot: %w", err)
	}
	return nil
}

// Snapshot returns a project's stored hierarchy snapshot, or false when none
// exists.
func (m *Manager) Snapshot(projectID string) ([]byte, bool) {
	data, err := m.store.Get(snapshotKey(projectID))
	if err != nil {
		return nil, false
	}
	return data, true
}

// DeleteSnapshot removes a project's stored hierarchy snapshot. Deleting a
// snapshot that was never stored is not an error.
func (m *Manager) DeleteSnapshot(projectID string) error {
	if err := m.store.Delete(snapshotKey(projectID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (m *Manager) loadUser(userID string) []*Project {
	return m.loadKey(userKey(userID))
}

func (m *Manager) loadKey(key string) []*Project {
	data, err := m.store.Get(key)
	if err != nil {
		return []*Project{}
	}
	var projects []*Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return []*Project{}
	}
	return projects
}

func (m *Manager) saveUser(userID string, projects []*Project) error {
	data, err := json.Marshal(projects)
	if err != nil {
		return fmt.Errorf("failed to marshal projects: %w", err)
	}
	if err := m.store.Set(userKey(userID), data); err != nil {
		return fmt.Errorf("failed to persist projects: %w", err)
	}
	return nil
}
