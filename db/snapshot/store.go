package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

type (
	// Store saves and deletes snapshots in the background, retrying with backoff when the backend fails.
	// Only the latest change to each game waits to be written.
	Store struct {
		debug        bool
		log          log.Logger
		backend      Backend
		retryTimeout time.Duration
		newBackOff   func() backoff.BackOff
		mu           sync.Mutex
		pending      map[string]change
		version      uint64
		ready        chan struct{}
	}

	// StoreConfig contains the properties to create a Store.
	StoreConfig struct {
		// Debug is a flag that causes the store to log the snapshots it writes.
		Debug bool
		// Log is used to log errors and other information.
		Log log.Logger
		// RetryTimeout is the maximum time spent retrying to write a change.
		RetryTimeout time.Duration
	}

	// change is an unwritten snapshot, or a deletion if the snapshot is nil.
	// Changes stay pending until they are written so they can be loaded.
	change struct {
		sessionID string
		snapshot  *Snapshot
		version   uint64
	}
)

// NewStore creates a Store that writes snapshots to the backend.
func (cfg StoreConfig) NewStore(b Backend) (*Store, error) {
	if err := cfg.validate(b); err != nil {
		return nil, fmt.Errorf("creating snapshot store: validation: %w", err)
	}
	s := Store{
		debug:        cfg.Debug,
		log:          cfg.Log,
		backend:      b,
		retryTimeout: cfg.RetryTimeout,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		pending: make(map[string]change),
		ready:   make(chan struct{}, 1),
	}
	return &s, nil
}

// validate ensures the configuration has no errors.
func (cfg StoreConfig) validate(b Backend) error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case b == nil:
		return fmt.Errorf("backend required")
	case cfg.RetryTimeout <= 0:
		return fmt.Errorf("positive retry timeout required")
	}
	return nil
}

// Setup prepares the backend.
func (s *Store) Setup(ctx context.Context) error {
	if err := s.backend.Setup(ctx); err != nil {
		return fmt.Errorf("setting up snapshot backend: %w", err)
	}
	return nil
}

// Save queues the snapshot to be written without blocking.
// It replaces an unwritten snapshot of the game unless that one has a larger sequence number.
func (s *Store) Save(snap Snapshot) {
	s.mu.Lock()
	c, ok := s.pending[snap.SessionID]
	if ok && c.snapshot != nil && c.snapshot.SequenceNumber > snap.SequenceNumber {
		s.mu.Unlock()
		return
	}
	snap = snap.clone()
	s.version++
	s.pending[snap.SessionID] = change{
		sessionID: snap.SessionID,
		snapshot:  &snap,
		version:   s.version,
	}
	s.mu.Unlock()
	s.signal()
}

// Delete queues the snapshot of the game to be removed without blocking.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	s.version++
	s.pending[sessionID] = change{
		sessionID: sessionID,
		version:   s.version,
	}
	s.mu.Unlock()
	s.signal()
}

// Load gets the latest snapshot of the game, including one that has not been written yet.
func (s *Store) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.Lock()
	c, ok := s.pending[sessionID]
	s.mu.Unlock()
	switch {
	case ok && c.snapshot == nil:
		return nil, fmt.Errorf("%w: %v is being deleted", ErrNotFound, sessionID)
	case ok:
		snap := c.snapshot.clone()
		return &snap, nil
	}
	snap, err := s.backend.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot of %v: %w", sessionID, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("loading snapshot of %v: %w", sessionID, err)
	}
	return snap, nil
}

// Run writes queued changes until the context is done.  Changes that are queued when the context is done are written before Run finishes.
func (s *Store) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for { // BLOCKING
			select {
			case <-ctx.Done():
				ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.retryTimeout)
				defer cancel()
				s.flush(ctx2)
				return
			case <-s.ready:
				s.flush(ctx)
			}
		}
	}()
}

// signal notifies Run that changes are ready.
func (s *Store) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// flush writes the queued changes.  A change is no longer pending after it is written unless it was replaced while being written.
func (s *Store) flush(ctx context.Context) {
	s.mu.Lock()
	changes := make([]change, 0, len(s.pending))
	for _, c := range s.pending {
		changes = append(changes, c)
	}
	s.mu.Unlock()
	for _, c := range changes {
		s.write(ctx, c)
		s.mu.Lock()
		if c2, ok := s.pending[c.sessionID]; ok && c2.version == c.version {
			delete(s.pending, c.sessionID)
		}
		s.mu.Unlock()
	}
}

// write stores the change, retrying until the retry timeout.
func (s *Store) write(ctx context.Context, c change) {
	operation := func() (struct{}, error) {
		if c.snapshot == nil {
			return struct{}{}, s.backend.Delete(ctx, c.sessionID)
		}
		return struct{}{}, s.backend.Save(ctx, *c.snapshot)
	}
	notify := func(err error, d time.Duration) {
		s.log.Printf("retrying to write snapshot of %v in %v: %v", c.sessionID, d, err)
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxElapsedTime(s.retryTimeout),
		backoff.WithNotify(notify))
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		s.log.Printf("writing snapshot of %v: %v", c.sessionID, err)
	case err == nil && c.snapshot != nil && s.debug:
		s.log.Printf("saved snapshot of %v at sequence %v", c.sessionID, c.snapshot.SequenceNumber)
	}
}
