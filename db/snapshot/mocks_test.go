package snapshot

import (
	"context"
)

type mockBackend struct {
	setupFunc  func(ctx context.Context) error
	saveFunc   func(ctx context.Context, s Snapshot) error
	loadFunc   func(ctx context.Context, sessionID string) (*Snapshot, error)
	deleteFunc func(ctx context.Context, sessionID string) error
}

func (m mockBackend) Setup(ctx context.Context) error {
	return m.setupFunc(ctx)
}

func (m mockBackend) Save(ctx context.Context, s Snapshot) error {
	return m.saveFunc(ctx, s)
}

func (m mockBackend) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	return m.loadFunc(ctx, sessionID)
}

func (m mockBackend) Delete(ctx context.Context, sessionID string) error {
	return m.deleteFunc(ctx, sessionID)
}
