package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacobpatterson1549/deathroll/db/snapshot"
	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/log"
	"github.com/jacobpatterson1549/deathroll/server/runner"
)

var (
	// ErrSessionNotFound is returned when no session on the server has the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when a session is created after the maximum number have been.
	ErrTooManySessions = errors.New("too many sessions")
)

type (
	// Registry owns the sessions on the server.  There is at most one session for each id.
	Registry struct {
		runner.Runner
		mu       sync.Mutex
		sessions map[string]*Session
		recorder Recorder
		RegistryConfig
	}

	// RegistryConfig is used to create a Registry.
	RegistryConfig struct {
		// Debug is a flag that causes the registry to log when sessions are created and removed.
		Debug bool
		// Log is used to log errors and other information.
		Log log.Logger
		// MaxSessions is the maximum number of sessions.
		MaxSessions int
		// SessionConfig is used to create sessions.
		SessionConfig Config
		// IDFunc creates ids for new sessions.
		IDFunc func() string
		// SweepPeriod is the time between checks for idle sessions.
		SweepPeriod time.Duration
		// LobbyIdle is the time a game that has not started can go without a player joining before it is removed.
		LobbyIdle time.Duration
		// FinishedIdle is the time a finished game is kept for players to view it before it is removed.
		FinishedIdle time.Duration
		// AbandonIdle is the time a game in progress can go without an action before it is removed and recorded as abandoned.
		AbandonIdle time.Duration
	}
)

const (
	// reasonLobbyIdle is the reason lobbies are closed when nobody joins or starts them.
	reasonLobbyIdle = "lobby idle"
	// reasonFinished is the reason finished games are closed.
	reasonFinished = "game finished"
	// reasonAbandoned is the reason games in progress are closed when the players stop rolling.
	reasonAbandoned = "game abandoned"
	// reasonShutdown is the reason games are closed when the server stops.
	reasonShutdown = "server stopping"
)

// NewRegistry creates an empty Registry that records outcomes with the recorder.
func (cfg RegistryConfig) NewRegistry(r Recorder) (*Registry, error) {
	if err := cfg.validate(r); err != nil {
		return nil, fmt.Errorf("creating session registry: validation: %w", err)
	}
	if cfg.IDFunc == nil {
		cfg.IDFunc = uuid.NewString
	}
	reg := Registry{
		sessions:       make(map[string]*Session, cfg.MaxSessions),
		recorder:       r,
		RegistryConfig: cfg,
	}
	return &reg, nil
}

// validate ensures the configuration has no errors.
func (cfg RegistryConfig) validate(r Recorder) error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case r == nil:
		return fmt.Errorf("recorder required")
	case cfg.MaxSessions < 1:
		return fmt.Errorf("must be able to create at least one session")
	case cfg.SessionConfig.TimeFunc == nil:
		return fmt.Errorf("session time func required")
	case cfg.SweepPeriod <= 0:
		return fmt.Errorf("positive sweep period required")
	case cfg.LobbyIdle <= 0, cfg.FinishedIdle <= 0, cfg.AbandonIdle <= 0:
		return fmt.Errorf("positive idle periods required")
	}
	return nil
}

// Create creates a session with a new id that is hosted by the player.
func (r *Registry) Create(host player.Name) (*Session, error) {
	id := r.IDFunc()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("session %v already exists", id)
	}
	return r.create(id, host)
}

// GetOrCreate gets the session with the id, creating it with the host if it does not exist and cannot be restored.
// Concurrent calls for the same id return the same session.
func (r *Registry) GetOrCreate(id string, host player.Name) (*Session, error) {
	s, err := r.Get(id)
	if !errors.Is(err, ErrSessionNotFound) {
		return s, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return r.create(id, host)
}

// create adds a new session.  The lock must be held.
func (r *Registry) create(id string, host player.Name) (*Session, error) {
	if len(r.sessions) >= r.MaxSessions {
		return nil, fmt.Errorf("%w: the maximum number of sessions have already been created (%v)", ErrTooManySessions, r.MaxSessions)
	}
	s, err := r.SessionConfig.NewSession(id, host, r.recorder)
	if err != nil {
		return nil, err
	}
	r.sessions[id] = s
	if r.Debug {
		r.Log.Printf("created session %v hosted by %v", id, host)
	}
	return s, nil
}

// Get gets the session with the id, restoring it from its snapshot if the registry does not have it.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		return s, nil
	}
	return r.restore(id)
}

// restore loads the snapshot of the session and adds the session it describes.
// The time to load is bounded by the snapshot backend.
func (r *Registry) restore(id string) (*Session, error) {
	store := r.SessionConfig.Snapshots
	if store == nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, id)
	}
	snap, err := store.Load(context.Background(), id)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, id)
	case err != nil:
		return nil, fmt.Errorf("restoring session %v: %w", id, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	if len(r.sessions) >= r.MaxSessions {
		return nil, fmt.Errorf("%w: cannot restore session %v (%v sessions)", ErrTooManySessions, id, r.MaxSessions)
	}
	s, err := r.SessionConfig.RestoreSession(*snap, r.recorder)
	if err != nil {
		return nil, err
	}
	r.sessions[id] = s
	r.Log.Printf("restored session %v at sequence %v", id, snap.SequenceNumber)
	return s, nil
}

// IsMember reports whether the player has joined the session with the id.
func (r *Registry) IsMember(id string, pn player.Name) bool {
	s, err := r.Get(id)
	if err != nil {
		return false
	}
	return s.IsMember(pn)
}

// Remove closes the session with the id and removes it from the registry.
// False is returned if there is no session with the id.
func (r *Registry) Remove(id, reason string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close(reason)
	r.Log.Printf("removed session %v: %v", id, reason)
	return true
}

// Len is the number of sessions in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run removes idle sessions periodically until the context is done.  All sessions are removed when it is done.
func (r *Registry) Run(ctx context.Context) error {
	if err := r.Runner.Run(); err != nil {
		return fmt.Errorf("running registry: %w", err)
	}
	defer r.Runner.Finish()
	sweepTicker := time.NewTicker(r.SweepPeriod)
	defer sweepTicker.Stop()
	for { // BLOCKING
		select {
		case <-ctx.Done():
			r.suspendAll(reasonShutdown)
			return nil
		case <-sweepTicker.C:
			r.Sweep()
		}
	}
}

// Sweep removes the sessions that have been idle for longer than allowed for their status.
func (r *Registry) Sweep() {
	now := r.SessionConfig.TimeFunc()
	idle := func(status game.Status, lastActive int64) (string, bool) {
		return r.idleReason(status, lastActive, now)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		reason, ok := s.closeIfIdle(idle)
		if !ok {
			continue
		}
		delete(r.sessions, id)
		r.Log.Printf("removed session %v: %v", id, reason)
	}
}

// idleReason returns the reason to remove a session with the status if it has been idle for too long.
func (r *Registry) idleReason(status game.Status, lastActive, now int64) (string, bool) {
	idle := time.Duration(now-lastActive) * time.Second
	switch {
	case status == game.Lobby && idle >= r.LobbyIdle:
		return reasonLobbyIdle, true
	case status == game.Finished && idle >= r.FinishedIdle:
		return reasonFinished, true
	case status == game.InProgress && idle >= r.AbandonIdle:
		return reasonAbandoned, true
	}
	return "", false
}

// suspendAll removes every session, keeping the snapshots of the sessions so they can be restored.
func (r *Registry) suspendAll(reason string) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session, r.MaxSessions)
	r.mu.Unlock()
	for id, s := range sessions {
		s.Suspend(reason)
		r.Log.Printf("removed session %v: %v", id, reason)
	}
}
