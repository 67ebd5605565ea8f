package monitor

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/storage"
)

// LogCap is the maximum number of change events retained per project.
const LogCap = 1000

// LogStore is the append-only, capped, per-project change log, newest-first.
type LogStore struct {
	store storage.Store
	mu    sync.Mutex
}

// NewLogStore creates a change log over the given store.
func NewLogStore(store storage.Store) *LogStore {
	return &LogStore{store: store}
}

func logKey(projectID string) string {
	return "logs/" + projectID
}

// Append prepends events to the project's log (newest-first) and truncates
// the result to the LogCap most recent entries. Appending an empty list
// never alters the log.
func (s *LogStore) Append(projectID string, events []*ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load(projectID)
	combined := make([]*ChangeEvent, 0, len(events)+len(existing))
	combined = append(combined, events...)
	combined = append(combined, existing...)
	if len(combined) > LogCap {
		combined = combined[:LogCap]
	}

	data, err := json.Marshal(combined)
	if err != nil {
		return fmt.Errorf("failed to marshal change log: %w", err)
	}
	if err := s.store.Set(logKey(projectID), data); err != nil {
		return fmt.Errorf("failed to persist change log: %w", err)
	}
	return nil
}

// Load returns a project's change log, newest-first. A missing, unreadable,
// or corrupt log is reported as empty; persistence is best-effort and log
// reads never fail.
func (s *LogStore) Load(projectID string) []*ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(projectID)
}

func (s *LogStore) load(projectID string) []*ChangeEvent {
	data, err := s.store.Get(logKey(projectID))
	if err != nil {
		if err != storage.ErrNotFound {
			log.Warn().Err(err).Str("project_id", projectID).Msg("Failed to read change log; treating as empty")
		}
		return []*ChangeEvent{}
	}

	var events []*ChangeEvent
	if err := json.Unmarshal(data, &events); err != nil {
		log.Warn().Err(err).Str("project_id", projectID).Msg("Corrupt change log; treating as empty")
		return []*ChangeEvent{}
	}
	return events
}

// Delete removes a project's change log. Called when the project itself is
// deleted.
func (s *LogStore) Delete(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(logKey(projectID))
}

// Filter returns only events of the given kind; ChangeTypeAll matches
// everything.
func Filter(events []*ChangeEvent, kind ChangeType) []*ChangeEvent {
	if kind == ChangeTypeAll || kind == "" {
		return events
	}

	filtered := make([]*ChangeEvent, 0, len(events))
	for _, event := range events {
		if event.ChangeType == kind {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// Search returns events whose file name or owner contains query,
// case-insensitively. An empty query returns the input unchanged.
func Search(events []*ChangeEvent, query string) []*ChangeEvent {
	if query == "" {
		return events
	}

	lower := strings.ToLower(query)
	matched := make([]*ChangeEvent, 0, len(events))
	for _, event := range events {
		if strings.Contains(strings.ToLower(event.FileName), lower) ||
			strings.Contains(strings.ToLower(event.Owner), lower) {
			matched = append(matched, event)
		}
	}
	return matched
}
