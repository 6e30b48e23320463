package stats

import (
	"context"

	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

// NoDatabaseBackend logs outcomes rather than storing them.  It is used when no data source is configured.
type NoDatabaseBackend struct {
	Log log.Logger
}

// Setup does nothing.
func (b NoDatabaseBackend) Setup(ctx context.Context) error {
	return nil
}

// RecordOutcome logs the outcome.
func (b NoDatabaseBackend) RecordOutcome(ctx context.Context, o Outcome) error {
	b.Log.Printf("no database to record outcome of %v: loser: %q, winners: %v, abandoned: %v", o.SessionID, o.Loser, o.Winners, o.Abandoned)
	return nil
}

// Read returns zero totals.
func (b NoDatabaseBackend) Read(ctx context.Context, pn player.Name) (*PlayerStats, error) {
	s := PlayerStats{
		Player: pn,
	}
	return &s, nil
}
