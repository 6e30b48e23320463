package stats

import (
	"context"

	"github.com/jacobpatterson1549/deathroll/game/player"
)

type mockBackend struct {
	setupFunc         func(ctx context.Context) error
	recordOutcomeFunc func(ctx context.Context, o Outcome) error
	readFunc          func(ctx context.Context, pn player.Name) (*PlayerStats, error)
}

func (m mockBackend) Setup(ctx context.Context) error {
	return m.setupFunc(ctx)
}

func (m mockBackend) RecordOutcome(ctx context.Context, o Outcome) error {
	return m.recordOutcomeFunc(ctx, o)
}

func (m mockBackend) Read(ctx context.Context, pn player.Name) (*PlayerStats, error) {
	return m.readFunc(ctx, pn)
}
