package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/storage"
)

const (
	// ChannelTTL is the lifetime requested for a webhook channel.
	ChannelTTL = 7 * 24 * time.Hour
	// RenewalThreshold is how close to expiration a channel is replaced.
	RenewalThreshold = 24 * time.Hour

	channelsKey = "channels"
)

var (
	// ErrWatchRegistrationFailed wraps upstream failures to register a
	// webhook channel.
	ErrWatchRegistrationFailed = errors.New("monitor: watch registration failed")
	// ErrChannelNotFound is returned when a channel ID is not tracked.
	// Callers stopping a channel treat it as already-stopped.
	ErrChannelNotFound = errors.New("monitor: channel not found")
)

// Channel is one tracked webhook registration.
type Channel struct {
	ChannelID  string `json:"channelId"`
	ResourceID string `json:"resourceId"`
	Expiration int64  `json:"expiration"` // epoch millis
	FolderID   string `json:"folderId"`
	ProjectID  string `json:"projectId"`
	UserID     string `json:"userId"`
}

// ChannelManager registers push-notification channels against watched
// folders, tracks their expirations, and renews them before expiry. The
// registry is persisted so registrations survive a restart; at most one
// channel per project is live at a time.
type ChannelManager struct {
	clients ClientProvider
	store   storage.Store

	mu       sync.Mutex
	channels map[string]*Channel
}

// NewChannelManager creates a channel manager and loads any persisted
// registrations. A corrupt registry is discarded and logged.
func NewChannelManager(clients ClientProvider, store storage.Store) *ChannelManager {
	m := &ChannelManager{
		clients:  clients,
		store:    store,
		channels: make(map[string]*Channel),
	}

	data, err := store.Get(channelsKey)
	if err != nil {
		if err != storage.ErrNotFound {
			log.Warn().Err(err).Msg("Failed to read channel registry; starting empty")
		}
		return m
	}
	if err := json.Unmarshal(data, &m.channels); err != nil {
		log.Warn().Err(err).Msg("Corrupt channel registry; starting empty")
		m.channels = make(map[string]*Channel)
	}
	return m
}

// StartWatch registers a new webhook channel for a project's folder. The
// channel ID is unique per call; a newly started channel logically
// supersedes any previous one for the same project.
func (m *ChannelManager) StartWatch(ctx context.Context, userID, projectID, folderID, webhookURL string) (*Channel, error) {
	client, err := m.clients.ClientForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatchRegistrationFailed, err)
	}

	channelID := fmt.Sprintf("%s-%d", projectID, time.Now().UnixMilli())

	info, err := client.Watch(ctx, folderID, channelID, webhookURL, ChannelTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatchRegistrationFailed, err)
	}

	channel := &Channel{
		ChannelID:  channelID,
		ResourceID: info.ResourceID,
		Expiration: info.Expiration,
		FolderID:   folderID,
		ProjectID:  projectID,
		UserID:     userID,
	}

	m.mu.Lock()
	m.channels[channelID] = channel
	m.persistLocked()
	m.mu.Unlock()

	log.Info().
		Str("project_id", projectID).
		Str("channel_id", channelID).
		Time("expires", time.UnixMilli(channel.Expiration)).
		Msg("Watch channel registered")
	return channel, nil
}

// StopWatch stops webhook delivery for a tracked channel and removes it
// from the registry. A second stop of the same channel fails with
// ErrChannelNotFound.
func (m *ChannelManager) StopWatch(ctx context.Context, channelID string) error {
	m.mu.Lock()
	channel, ok := m.channels[channelID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}

	client, err := m.clients.ClientForUser(ctx, channel.UserID)
	if err != nil {
		return fmt.Errorf("failed to stop channel %s: %w", channelID, err)
	}
	if err := client.StopChannel(ctx, channelID, channel.ResourceID); err != nil {
		return fmt.Errorf("failed to stop channel %s: %w", channelID, err)
	}

	// Two stops can race past the lookup above; only the one that still
	// finds the record removes it, the other reports not-found.
	m.mu.Lock()
	if _, ok := m.channels[channelID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	delete(m.channels, channelID)
	m.persistLocked()
	m.mu.Unlock()

	log.Info().Str("channel_id", channelID).Str("project_id", channel.ProjectID).Msg("Watch channel stopped")
	return nil
}

// CheckAndRenew replaces every tracked channel expiring within
// RenewalThreshold with a fresh registration for the same folder and
// project, and returns the replacements. Failures are per-channel: one bad
// channel never blocks the rest.
func (m *ChannelManager) CheckAndRenew(ctx context.Context, webhookURL string) []*Channel {
	now := time.Now().UnixMilli()

	m.mu.Lock()
	expiring := make([]*Channel, 0)
	for _, channel := range m.channels {
		if channel.Expiration-now < RenewalThreshold.Milliseconds() {
			expiring = append(expiring, channel)
		}
	}
	m.mu.Unlock()

	renewed := make([]*Channel, 0, len(expiring))
	for _, channel := range expiring {
		if err := m.StopWatch(ctx, channel.ChannelID); err != nil {
			log.Error().Err(err).Str("channel_id", channel.ChannelID).Msg("Failed to stop expiring channel")
			continue
		}
		fresh, err := m.StartWatch(ctx, channel.UserID, channel.ProjectID, channel.FolderID, webhookURL)
		if err != nil {
			log.Error().Err(err).Str("channel_id", channel.ChannelID).Str("project_id", channel.ProjectID).Msg("Failed to renew channel")
			continue
		}
		renewed = append(renewed, fresh)
		log.Info().Str("project_id", channel.ProjectID).Str("channel_id", fresh.ChannelID).Msg("Watch channel renewed")
	}
	return renewed
}

// ProjectForChannel returns the project owning a channel, or "" when the
// channel is not tracked.
func (m *ChannelManager) ProjectForChannel(channelID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if channel, ok := m.channels[channelID]; ok {
		return channel.ProjectID
	}
	return ""
}

// ChannelsForProject returns the tracked channels belonging to a project.
func (m *ChannelManager) ChannelsForProject(projectID string) []*Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	var channels []*Channel
	for _, channel := range m.channels {
		if channel.ProjectID == projectID {
			channels = append(channels, channel)
		}
	}
	return channels
}

// Channels returns all tracked channels.
func (m *ChannelManager) Channels() []*Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := make([]*Channel, 0, len(m.channels))
	for _, channel := range m.channels {
		channels = append(channels, channel)
	}
	return channels
}

// persistLocked writes the registry to the store. Persistence failures are
// logged, not raised; the in-memory registry stays authoritative.
func (m *ChannelManager) persistLocked() {
	data, err := json.Marshal(m.channels)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal channel registry")
		return
	}
	if err := m.store.Set(channelsKey, data); err != nil {
		log.Error().Err(err).Msg("Failed to persist channel registry")
	}
}
