// Package game runs the games on the server, serializing the actions of players and publishing the events they cause.
package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jacobpatterson1549/deathroll/db/snapshot"
	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/game/roll"
	"github.com/jacobpatterson1549/deathroll/server/bus"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

type (
	// Session is a live game.  Actions are applied to the state of the game one at a time.
	// Events are published in the order the actions that caused them were accepted.
	Session struct {
		id      string
		channel string
		// mu guards the fields below it.
		mu             sync.Mutex
		state          game.State
		sequenceNumber int
		members        player.Names
		observers      map[player.Name]int
		lastActive     int64
		closed         bool
		turnTimer      *time.Timer
		outbox         outbox
		done           chan struct{}
		Recorder
		Config
	}

	// Config contains the properties to create similar sessions.
	Config struct {
		// Debug is a flag that causes the session to log the actions it applies.
		Debug bool
		// Log is used to log errors and other information.
		Log log.Logger
		// TimeFunc is a function which should supply the current time since the unix epoch.
		// Used to track activity and when games finish.
		TimeFunc func() int64
		// Rules are used to apply actions to the state of the game.
		Rules game.Config
		// Roller rolls the dice for the players.
		Roller roll.Roller
		// Publisher sends the events of the game to subscribers.
		Publisher bus.Publisher
		// PublishTimeout is the maximum time spent retrying to publish an event before it is dropped.
		PublishTimeout time.Duration
		// TurnTimeout is the time a player has to roll before they forfeit.  Zero disables the timeout.
		TurnTimeout time.Duration
		// Snapshots saves the state of the game after each accepted action so it can be restored.
		// Games are only kept in memory if it is nil.
		Snapshots SnapshotStore
	}

	// SnapshotStore saves the state of games so they can be restored after the server restarts.
	SnapshotStore interface {
		// Save stores the snapshot without blocking.
		Save(s snapshot.Snapshot)
		// Delete removes the snapshot of the game without blocking.
		Delete(sessionID string)
		// Load gets the latest snapshot of the game.  An error wrapping snapshot.ErrNotFound is returned if there is none.
		Load(ctx context.Context, sessionID string) (*snapshot.Snapshot, error)
	}

	// Recorder stores the outcomes of games without blocking.
	Recorder interface {
		Record(o stats.Outcome)
	}

	// outbox holds the events waiting to be published, in order.
	outbox struct {
		mu     sync.Mutex
		events []game.Event
		ready  chan struct{}
	}
)

// NewSession creates a game hosted by the player and starts publishing its events.
// The session publishes until it is closed.
func (cfg Config) NewSession(id string, host player.Name, r Recorder) (*Session, error) {
	if err := cfg.validate(id, host, r); err != nil {
		return nil, fmt.Errorf("creating session: validation: %w", err)
	}
	s := cfg.newSession(id, game.NewLobby(host), player.Names{host}, r)
	s.lastActive = cfg.TimeFunc()
	if cfg.Snapshots != nil {
		cfg.Snapshots.Save(s.snapshot())
	}
	go s.publishEvents()
	return s, nil
}

// RestoreSession recreates the game from a snapshot and starts publishing its events.
// The turn of the current player restarts if turns time out.
func (cfg Config) RestoreSession(snap snapshot.Snapshot, r Recorder) (*Session, error) {
	if err := cfg.validate(snap.SessionID, snap.State.Host, r); err != nil {
		return nil, fmt.Errorf("restoring session: validation: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("restoring session: invalid snapshot: %w", err)
	}
	s := cfg.newSession(snap.SessionID, snap.State.Clone(), append(player.Names{}, snap.Members...), r)
	s.sequenceNumber = snap.SequenceNumber
	s.lastActive = snap.SavedAt
	s.mu.Lock()
	s.armTurnTimer()
	s.mu.Unlock()
	go s.publishEvents()
	return s, nil
}

// newSession creates a session that has not started publishing.
func (cfg Config) newSession(id string, state game.State, members player.Names, r Recorder) *Session {
	s := Session{
		id:        id,
		channel:   bus.Channel(id),
		state:     state,
		members:   members,
		observers: make(map[player.Name]int),
		outbox: outbox{
			ready: make(chan struct{}, 1),
		},
		done:     make(chan struct{}),
		Recorder: r,
		Config:   cfg,
	}
	return &s
}

// validate ensures the configuration has no errors.
func (cfg Config) validate(id string, host player.Name, r Recorder) error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case len(id) == 0:
		return fmt.Errorf("id required")
	case len(host) == 0:
		return fmt.Errorf("host required")
	case r == nil:
		return fmt.Errorf("recorder required")
	case cfg.TimeFunc == nil:
		return fmt.Errorf("time func required")
	case cfg.Roller == nil:
		return fmt.Errorf("roller required")
	case cfg.Publisher == nil:
		return fmt.Errorf("publisher required")
	case cfg.PublishTimeout <= 0:
		return fmt.Errorf("positive publish timeout required")
	case cfg.TurnTimeout < 0:
		return fmt.Errorf("non-negative turn timeout required")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// ID is the identifier of the session.
func (s *Session) ID() string {
	return s.id
}

// Channel is the name of the bus channel the session publishes to.
func (s *Session) Channel() string {
	return s.channel
}

// Submit applies the action to the game.  A game.Rejection is returned if the action breaks the rules.
// The events caused by the action are published after Submit returns.
func (s *Session) Submit(ctx context.Context, a game.Action) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submitting %v: %w", a, err)
	}
	return s.submit(a, -1)
}

// submit applies the action if the sequence number matches the expected one.
// Any sequence number is accepted if the expected one is negative.
func (s *Session) submit(a game.Action, expectedSequenceNumber int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return game.GameClosed
	}
	if expectedSequenceNumber >= 0 && expectedSequenceNumber != s.sequenceNumber {
		s.mu.Unlock()
		return nil
	}
	state, events, err := s.Rules.Apply(s.state, a, s.Roller)
	if err != nil {
		s.mu.Unlock()
		if r, ok := game.AsRejection(err); ok {
			if s.Debug {
				s.Log.Printf("session %v: rejected %v: %v", s.id, a, r)
			}
			return r
		}
		s.Log.Printf("session %v: applying %v: %v", s.id, a, err)
		return fmt.Errorf("session %v: %w", s.id, err)
	}
	s.sequenceNumber++
	s.state = state
	s.lastActive = s.TimeFunc()
	if a.Type == game.Join {
		s.members = append(s.members, a.Player)
	}
	for i := range events {
		events[i].SequenceNumber = s.sequenceNumber
		events[i].Index = i
	}
	s.outbox.push(events...)
	if s.Snapshots != nil {
		s.Snapshots.Save(s.snapshot())
	}
	s.armTurnTimer()
	var o *stats.Outcome
	if state.Status == game.Finished {
		o = s.outcome(false)
	}
	if s.Debug {
		s.Log.Printf("session %v: applied %v (sequence %v)", s.id, a, s.sequenceNumber)
	}
	s.mu.Unlock()
	if o != nil {
		s.Record(*o)
	}
	return nil
}

// armTurnTimer starts the timer for the current player to roll, stopping the previous one.  The lock must be held.
func (s *Session) armTurnTimer() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	current, ok := s.state.CurrentPlayer()
	if !ok || s.TurnTimeout <= 0 {
		return
	}
	sequenceNumber := s.sequenceNumber
	s.turnTimer = time.AfterFunc(s.TurnTimeout, func() {
		s.expireTurn(sequenceNumber, current)
	})
}

// expireTurn forfeits the turn of the player if no other action has been accepted since the turn started.
func (s *Session) expireTurn(sequenceNumber int, pn player.Name) {
	a := game.Action{
		Type:   game.Forfeit,
		Player: pn,
	}
	if err := s.submit(a, sequenceNumber); err != nil {
		s.Log.Printf("session %v: expiring turn of %v: %v", s.id, pn, err)
	}
}

// outcome creates the outcome of the game.  The lock must be held.
func (s *Session) outcome(abandoned bool) *stats.Outcome {
	o := stats.Outcome{
		SessionID:    s.id,
		Participants: append(player.Names{}, s.members...),
		Abandoned:    abandoned,
		FinishedAt:   s.TimeFunc(),
	}
	if !abandoned {
		o.Winners = append(player.Names{}, s.state.Winners...)
		o.Loser = s.state.Loser
		o.FinalRoll = s.state.FinalRoll
	}
	return &o
}

// snapshot copies the state of the game so it can be saved.  The lock must be held.
func (s *Session) snapshot() snapshot.Snapshot {
	snap := snapshot.Snapshot{
		SessionID:      s.id,
		SequenceNumber: s.sequenceNumber,
		State:          s.state.Clone(),
		Members:        append(player.Names{}, s.members...),
		SavedAt:        s.lastActive,
	}
	return snap
}

// Snapshot returns the sequence number of the last accepted action and a copy of the state of the game.
func (s *Session) Snapshot() (int, game.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequenceNumber, s.state.Clone()
}

// IsMember reports whether the player has joined the game.  Players remain members after they are eliminated.
func (s *Session) IsMember(pn player.Name) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members.Contains(pn)
}

// AddObserver tracks a connection of the player to the game.
func (s *Session) AddObserver(pn player.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[pn]++
}

// RemoveObserver stops tracking a connection of the player.  It does not change the game.
func (s *Session) RemoveObserver(pn player.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch n := s.observers[pn]; {
	case n <= 1:
		delete(s.observers, pn)
	default:
		s.observers[pn] = n - 1
	}
}

// NumObservers is the number of connections to the game.
func (s *Session) NumObservers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.observers {
		n += c
	}
	return n
}

// closeIfIdle closes the session with the reason the idle func gives for its status and the time its last action was accepted.
// The check and the close happen together, so a session that accepts an action while it is being swept stays open.
// False is returned if the session is not idle or was already closed.
func (s *Session) closeIfIdle(idle func(status game.Status, lastActive int64) (string, bool)) (string, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", false
	}
	reason, ok := idle(s.state.Status, s.lastActive)
	if !ok {
		s.mu.Unlock()
		return "", false
	}
	o := s.closeLocked(reason, false)
	s.mu.Unlock()
	s.finishClose(o)
	return reason, true
}

// Close stops the game, publishing a final event with the reason.  Games closed while in progress are recorded as abandoned.
// The snapshot of the game is deleted.  False is returned if the session was already closed.
func (s *Session) Close(reason string) bool {
	return s.close(reason, false)
}

// Suspend stops the game like Close, but keeps its snapshot so it can be restored later.
// Games in progress are not recorded as abandoned if they can be restored.
func (s *Session) Suspend(reason string) bool {
	return s.close(reason, s.Snapshots != nil)
}

func (s *Session) close(reason string, suspend bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	o := s.closeLocked(reason, suspend)
	s.mu.Unlock()
	s.finishClose(o)
	return true
}

// closeLocked marks the session closed and queues the final event.  The lock must be held.
// The snapshot is deleted unless the session is suspended.  The outcome is returned if the game was abandoned.
func (s *Session) closeLocked(reason string, suspend bool) *stats.Outcome {
	s.closed = true
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	e := game.Event{
		Type:           game.SessionClosed,
		SequenceNumber: s.sequenceNumber,
		Reason:         reason,
	}
	s.outbox.push(e)
	switch {
	case suspend:
		return nil
	case s.Snapshots != nil:
		s.Snapshots.Delete(s.id)
	}
	if s.state.Status == game.InProgress {
		return s.outcome(true)
	}
	return nil
}

// finishClose stops publishing after the queued events and records the outcome, if any.  The lock must not be held.
func (s *Session) finishClose(o *stats.Outcome) {
	close(s.done)
	if o != nil {
		s.Record(*o)
	}
}

// publishEvents publishes events from the outbox in order until the session is closed and the outbox is empty.
func (s *Session) publishEvents() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for { // BLOCKING
		select {
		case <-s.outbox.ready:
			s.publish(ctx, s.outbox.pop())
		case <-s.done:
			s.publish(ctx, s.outbox.pop())
			return
		}
	}
}

// publish sends the events to the bus, retrying with backoff.  Events that cannot be published are dropped.
func (s *Session) publish(ctx context.Context, events []game.Event) {
	for _, e := range events {
		operation := func() (struct{}, error) {
			err := s.Publisher.Publish(ctx, s.channel, e)
			return struct{}{}, err
		}
		notify := func(err error, d time.Duration) {
			s.Log.Printf("session %v: retrying to publish %v event in %v: %v", s.id, e.Type, d, err)
		}
		_, err := backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxElapsedTime(s.PublishTimeout),
			backoff.WithNotify(notify))
		if err != nil {
			s.Log.Printf("session %v: dropping %v event (sequence %v): %v", s.id, e.Type, e.SequenceNumber, err)
		}
	}
}

// push adds the events to the end of the outbox, signaling that events are ready.
func (o *outbox) push(events ...game.Event) {
	o.mu.Lock()
	o.events = append(o.events, events...)
	o.mu.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// pop removes all events from the outbox.
func (o *outbox) pop() []game.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	events := o.events
	o.events = nil
	return events
}
