// Package snapshot saves the state of games so they can be restored after the server restarts.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/player"
)

// ErrNotFound is wrapped by errors loading snapshots of games that were never saved or have been deleted.
var ErrNotFound = errors.New("snapshot not found")

type (
	// Snapshot is the state of a game after an accepted action.
	Snapshot struct {
		// SessionID is the id of the game.
		SessionID string `json:"sessionId"`
		// SequenceNumber is the number of the last accepted action.
		SequenceNumber int `json:"sequenceNumber"`
		// State is the state of the game after the action.
		State game.State `json:"state"`
		// Members are the players that have joined the game, including eliminated ones.
		Members player.Names `json:"members"`
		// SavedAt is the time the action was accepted since the unix epoch, in seconds.
		SavedAt int64 `json:"savedAt"`
	}

	// Backend stores snapshots.
	Backend interface {
		// Setup prepares the backend to store snapshots.
		Setup(ctx context.Context) error
		// Save stores the snapshot unless a snapshot of the game with a larger sequence number is stored.
		Save(ctx context.Context, s Snapshot) error
		// Load gets the snapshot of the game.  An error wrapping ErrNotFound is returned if there is none.
		Load(ctx context.Context, sessionID string) (*Snapshot, error)
		// Delete removes the snapshot of the game, if any.
		Delete(ctx context.Context, sessionID string) error
	}
)

// Validate ensures the snapshot can be restored.
func (s Snapshot) Validate() error {
	switch {
	case len(s.SessionID) == 0:
		return fmt.Errorf("session id required")
	case s.SequenceNumber < 0:
		return fmt.Errorf("non-negative sequence number required")
	case len(s.State.Host) == 0:
		return fmt.Errorf("host required")
	case !s.Members.Contains(s.State.Host):
		return fmt.Errorf("host %q must be a member", s.State.Host)
	}
	return nil
}
