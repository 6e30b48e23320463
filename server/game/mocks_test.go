package game

import (
	"context"
	"sync"

	"github.com/jacobpatterson1549/deathroll/db/snapshot"
	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game"
)

type (
	mockPublisher struct {
		PublishFunc func(ctx context.Context, channel string, e game.Event) error
	}

	// mockRecorder records outcomes in memory.
	mockRecorder struct {
		mu       sync.Mutex
		outcomes []stats.Outcome
	}

	// channelPublisher sends published events on a channel.
	channelPublisher chan game.Event

	// memorySnapshots saves and deletes snapshots immediately.
	memorySnapshots struct {
		snapshot.MemoryBackend
	}
)

func (m mockPublisher) Publish(ctx context.Context, channel string, e game.Event) error {
	return m.PublishFunc(ctx, channel, e)
}

func (m *mockRecorder) Record(o stats.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

func (m *mockRecorder) Outcomes() []stats.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stats.Outcome{}, m.outcomes...)
}

func (c channelPublisher) Publish(ctx context.Context, channel string, e game.Event) error {
	c <- e
	return nil
}

func (m *memorySnapshots) Save(s snapshot.Snapshot) {
	m.MemoryBackend.Save(context.Background(), s)
}

func (m *memorySnapshots) Delete(sessionID string) {
	m.MemoryBackend.Delete(context.Background(), sessionID)
}
