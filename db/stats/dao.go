package stats

import (
	"context"
	"fmt"

	"github.com/jacobpatterson1549/deathroll/game/player"
)

type (
	// Dao reads and writes statistics with a backend.
	Dao struct {
		backend Backend
	}

	// Backend stores statistics.
	Backend interface {
		// Setup prepares the backend to store statistics.
		Setup(ctx context.Context) error
		// RecordOutcome stores the outcome and increments the totals of its participants.
		RecordOutcome(ctx context.Context, o Outcome) error
		// Read gets the totals of the player.  A player with no outcomes has zero totals.
		Read(ctx context.Context, pn player.Name) (*PlayerStats, error)
	}
)

// NewDao creates a Dao on the specified backend.
func NewDao(b Backend) (*Dao, error) {
	if b == nil {
		return nil, fmt.Errorf("creating stats dao: validation: backend required")
	}
	d := Dao{
		backend: b,
	}
	return &d, nil
}

// Setup prepares the backend.
func (d Dao) Setup(ctx context.Context) error {
	if err := d.backend.Setup(ctx); err != nil {
		return fmt.Errorf("setting up stats backend: %w", err)
	}
	return nil
}

// RecordOutcome validates and stores the outcome.
func (d Dao) RecordOutcome(ctx context.Context, o Outcome) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid outcome for %v: %w", o.SessionID, err)
	}
	if err := d.backend.RecordOutcome(ctx, o); err != nil {
		return fmt.Errorf("recording outcome for %v: %w", o.SessionID, err)
	}
	return nil
}

// Read gets the totals of the player.
func (d Dao) Read(ctx context.Context, pn player.Name) (*PlayerStats, error) {
	if len(pn) == 0 {
		return nil, fmt.Errorf("player required")
	}
	s, err := d.backend.Read(ctx, pn)
	if err != nil {
		return nil, fmt.Errorf("reading stats for %v: %w", pn, err)
	}
	return s, nil
}
