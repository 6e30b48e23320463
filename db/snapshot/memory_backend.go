package snapshot

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps snapshots in memory.  It is used when no data source is configured.
// Games are only restored if the registry forgets them while the server is running.
type MemoryBackend struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

// Setup does nothing.
func (b *MemoryBackend) Setup(ctx context.Context) error {
	return nil
}

// Save stores a copy of the snapshot if it is newer than the stored one.
func (b *MemoryBackend) Save(ctx context.Context, s Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshots == nil {
		b.snapshots = make(map[string]Snapshot)
	}
	if s2, ok := b.snapshots[s.SessionID]; ok && s2.SequenceNumber > s.SequenceNumber {
		return nil
	}
	b.snapshots[s.SessionID] = s.clone()
	return nil
}

// Load gets a copy of the snapshot.
func (b *MemoryBackend) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.snapshots[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, sessionID)
	}
	s = s.clone()
	return &s, nil
}

// Delete removes the snapshot.
func (b *MemoryBackend) Delete(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.snapshots, sessionID)
	return nil
}

func (s Snapshot) clone() Snapshot {
	s.State = s.State.Clone()
	s.Members = append(s.Members[:0:0], s.Members...)
	return s
}
