package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/drive"
)

// DefaultPollInterval is the poll cadence used when none is configured.
const DefaultPollInterval = 30 * time.Second

// ClientProvider resolves a Drive client acting as a specific user. Every
// upstream call the monitor makes goes through a client obtained here, so
// polling and watching always use the project owner's credentials.
type ClientProvider interface {
	ClientForUser(ctx context.Context, userID string) (drive.Client, error)
}

// CursorStore is the slice of project state the reconciler depends on: the
// owning user, the watched folder, and the opaque change cursor per project.
type CursorStore interface {
	// Cursor returns a project's owner, watched folder ID, and stored
	// cursor. The cursor is empty until the first poll initializes it.
	Cursor(projectID string) (userID, folderID, cursor string, err error)
	// SetCursor advances a project's stored cursor.
	SetCursor(projectID, cursor string) error
}

// Notifier is invoked after a poll tick that produced visible events.
type Notifier func(projectID string, events []*ChangeEvent)

// PollResult is the outcome of one reconciliation tick.
type PollResult struct {
	Events    []*ChangeEvent `json:"events"`
	NewCursor string         `json:"newCursor"`
}

// Reconciler drives the per-project change-polling loop: list changes since
// the cursor, classify, append to the log, advance the cursor. Each project
// runs on its own goroutine, and a per-project lock serializes its timer
// ticks, webhook kicks, and manual polls, so two reconciliations never race
// on the same cursor.
type Reconciler struct {
	clients  ClientProvider
	logs     *LogStore
	projects CursorStore
	interval time.Duration
	notify   Notifier

	mu     sync.Mutex
	loops  map[string]*pollLoop
	polls  map[string]*sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

type pollLoop struct {
	projectID string
	ctx       context.Context
	cancel    context.CancelFunc
	kick      chan struct{}
}

// NewReconciler creates a reconciler. interval <= 0 selects
// DefaultPollInterval; notify may be nil.
func NewReconciler(clients ClientProvider, logs *LogStore, projects CursorStore, interval time.Duration, notify Notifier) *Reconciler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		clients:  clients,
		logs:     logs,
		projects: projects,
		interval: interval,
		notify:   notify,
		loops:    make(map[string]*pollLoop),
		polls:    make(map[string]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddProject starts the polling loop for a project. Adding a project that
// already has a loop restarts it.
func (r *Reconciler) AddProject(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.loops[projectID]; ok {
		existing.cancel()
		delete(r.loops, projectID)
	}

	ctx, cancel := context.WithCancel(r.ctx)
	loop := &pollLoop{
		projectID: projectID,
		ctx:       ctx,
		cancel:    cancel,
		kick:      make(chan struct{}, 1),
	}
	r.loops[projectID] = loop

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("project_id", projectID).Msg("Poll loop panicked")
			}
		}()
		r.run(loop)
	}()

	log.Info().Str("project_id", projectID).Msg("Polling started")
}

// RemoveProject cancels a project's polling loop.
func (r *Reconciler) RemoveProject(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if loop, ok := r.loops[projectID]; ok {
		loop.cancel()
		delete(r.loops, projectID)
		log.Info().Str("project_id", projectID).Msg("Polling stopped")
	}
}

// Kick schedules an immediate out-of-cycle tick for a project. Webhook
// notifications land here instead of waiting for the next timer firing.
// Kicks arriving while a tick is already pending coalesce into one.
func (r *Reconciler) Kick(projectID string) {
	r.mu.Lock()
	loop, ok := r.loops[projectID]
	r.mu.Unlock()
	if !ok {
		return
	}

	select {
	case loop.kick <- struct{}{}:
	default:
	}
}

// Stop cancels all polling loops.
func (r *Reconciler) Stop() {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, loop := range r.loops {
		loop.cancel()
	}
	r.loops = make(map[string]*pollLoop)
	log.Info().Msg("Reconciler stopped")
}

func (r *Reconciler) run(loop *pollLoop) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(loop)

	for {
		select {
		case <-loop.ctx.Done():
			return
		case <-ticker.C:
			r.tick(loop)
		case <-loop.kick:
			r.tick(loop)
		}
	}
}

// tick runs one poll and absorbs its error: a failed poll leaves the cursor
// untouched and is retried on the next tick.
func (r *Reconciler) tick(loop *pollLoop) {
	result, err := r.PollOnce(loop.ctx, loop.projectID)
	if err != nil {
		if loop.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("project_id", loop.projectID).Msg("Poll tick failed; retrying next tick")
		return
	}

	if len(result.Events) > 0 {
		log.Debug().
			Str("project_id", loop.projectID).
			Int("events", len(result.Events)).
			Str("cursor", result.NewCursor).
			Msg("Poll tick appended events")
	}
}

// pollLock returns the lock serializing reconciliations for one project.
func (r *Reconciler) pollLock(projectID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.polls[projectID]
	if !ok {
		lock = &sync.Mutex{}
		r.polls[projectID] = lock
	}
	return lock
}

// PollOnce performs one reconciliation for a project: fetch all change
// pages since the stored cursor, classify them against the watched folder,
// append survivors to the log, and advance the cursor. The cursor advances
// even when zero events survive classification; a poll that fails outright
// leaves it untouched. Concurrent polls of the same project are serialized:
// a manual poll overlapping a timer tick waits instead of reading the same
// cursor twice.
func (r *Reconciler) PollOnce(ctx context.Context, projectID string) (*PollResult, error) {
	lock := r.pollLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	userID, folderID, cursor, err := r.projects.Cursor(projectID)
	if err != nil {
		return nil, err
	}

	client, err := r.clients.ClientForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// No cursor yet: anchor at "now" and start logging from the next tick.
	if cursor == "" {
		token, err := client.StartPageToken(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.projects.SetCursor(projectID, token); err != nil {
			return nil, err
		}
		return &PollResult{Events: []*ChangeEvent{}, NewCursor: token}, nil
	}

	classifier := NewClassifier(client)

	var events []*ChangeEvent
	newCursor := cursor
	pageToken := cursor
	for pageToken != "" {
		list, err := client.ListChanges(ctx, pageToken)
		if err != nil {
			return nil, err
		}

		for _, change := range list.Changes {
			if event := classifier.Classify(ctx, change, folderID); event != nil {
				events = append(events, event)
			}
		}

		if list.NextPageToken != "" {
			pageToken = list.NextPageToken
			continue
		}
		if list.NewCursor != "" {
			newCursor = list.NewCursor
		}
		break
	}

	if err := r.logs.Append(projectID, events); err != nil {
		return nil, err
	}
	if err := r.projects.SetCursor(projectID, newCursor); err != nil {
		return nil, err
	}

	if len(events) > 0 && r.notify != nil {
		r.notify(projectID, events)
	}

	return &PollResult{Events: events, NewCursor: newCursor}, nil
}
