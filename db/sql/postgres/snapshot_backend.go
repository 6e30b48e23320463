package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jacobpatterson1549/deathroll/db/snapshot"
	"github.com/jacobpatterson1549/deathroll/db/sql"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/lib/pq"
)

// SnapshotBackend stores the snapshots of games on a Postgres SQL Database.  The state is stored as JSON.
type SnapshotBackend struct {
	Database
	setupFS fs.FS
}

// NewSnapshotBackend creates a SnapshotBackend on the database.
func NewSnapshotBackend(d Database) (*SnapshotBackend, error) {
	if d == nil {
		return nil, fmt.Errorf("creating postgres snapshot backend: validation: database required")
	}
	sb := SnapshotBackend{
		Database: d,
		setupFS:  setupFS,
	}
	return &sb, nil
}

// Setup creates the tables and functions used to store the snapshots.
func (sb *SnapshotBackend) Setup(ctx context.Context) error {
	if err := setup(ctx, sb.Database, sb.setupFS); err != nil {
		return fmt.Errorf("setting up snapshot tables: %w", err)
	}
	return nil
}

// Save stores the snapshot unless a newer one is stored.
func (sb *SnapshotBackend) Save(ctx context.Context, s snapshot.Snapshot) error {
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("encoding state of %v: %w", s.SessionID, err)
	}
	q := sql.NewExecFunction("snapshot_save",
		s.SessionID,
		s.SequenceNumber,
		string(state),
		pq.Array(s.Members.Strings()),
		s.SavedAt,
	)
	if err := sb.Database.Exec(ctx, q); err != nil {
		return fmt.Errorf("saving snapshot of %v: %w", s.SessionID, err)
	}
	return nil
}

// Load reads the snapshot of the game.
func (sb *SnapshotBackend) Load(ctx context.Context, sessionID string) (*snapshot.Snapshot, error) {
	cols := []string{
		"sequence_number",
		"state",
		"members",
		"saved_at",
	}
	q := sql.NewQueryFunction("snapshot_read", cols, sessionID)
	s := snapshot.Snapshot{
		SessionID: sessionID,
	}
	var state string
	var members []string
	if err := sb.Database.Query(ctx, q, &s.SequenceNumber, &state, pq.Array(&members), &s.SavedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", snapshot.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("reading snapshot of %v: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(state), &s.State); err != nil {
		return nil, fmt.Errorf("decoding state of %v: %w", sessionID, err)
	}
	s.Members = make(player.Names, len(members))
	for i, m := range members {
		s.Members[i] = player.Name(m)
	}
	return &s, nil
}

// Delete removes the snapshot of the game.
func (sb *SnapshotBackend) Delete(ctx context.Context, sessionID string) error {
	q := sql.NewExecFunction("snapshot_delete", sessionID)
	if err := sb.Database.Exec(ctx, q); err != nil {
		return fmt.Errorf("deleting snapshot of %v: %w", sessionID, err)
	}
	return nil
}
