// Package memory implements a bus for servers that run as a single process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/server/bus"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

type (
	// Bus fans published events out to subscribers in the same process.
	Bus struct {
		log        log.Logger
		debug      bool
		bufferSize int
		mu         sync.Mutex
		channels   map[string]map[*subscriber]struct{}
	}

	// Config contains the properties to create a Bus.
	Config struct {
		// Debug is a flag that causes the bus to log published events.
		Debug bool
		// Log is used to log errors and other information.
		Log log.Logger
		// BufferSize is the number of events a subscriber can fall behind before it is closed.
		BufferSize int
	}

	subscriber struct {
		c chan game.Event
	}
)

var _ bus.Bus = (*Bus)(nil)

// NewBus creates a bus with no subscribers.
func (cfg Config) NewBus() (*Bus, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("creating memory bus: validation: %w", err)
	}
	b := Bus{
		log:        cfg.Log,
		debug:      cfg.Debug,
		bufferSize: cfg.BufferSize,
		channels:   make(map[string]map[*subscriber]struct{}),
	}
	return &b, nil
}

// validate ensures the configuration has no errors.
func (cfg Config) validate() error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case cfg.BufferSize <= 0:
		return fmt.Errorf("positive buffer size required")
	}
	return nil
}

// Publish sends the event to every subscriber of the channel without blocking.
// Subscribers with full buffers are closed.
func (b *Bus) Publish(ctx context.Context, channel string, e game.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publishing to %v: %w", channel, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.debug {
		b.log.Printf("publishing %v (sequence %v) to %v subscribers of %v", e.Type, e.SequenceNumber, len(b.channels[channel]), channel)
	}
	for s := range b.channels[channel] {
		select {
		case s.c <- e:
		default:
			b.log.Printf("closing slow subscriber of %v", channel)
			b.remove(channel, s)
		}
	}
	return nil
}

// Subscribe creates a subscription to the channel.  The subscription is closed when the context is done.
func (b *Bus) Subscribe(ctx context.Context, channel string) (*bus.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribing to %v: %w", channel, err)
	}
	s := subscriber{
		c: make(chan game.Event, b.bufferSize),
	}
	b.mu.Lock()
	subscribers, ok := b.channels[channel]
	if !ok {
		subscribers = make(map[*subscriber]struct{})
		b.channels[channel] = subscribers
	}
	subscribers[&s] = struct{}{}
	b.mu.Unlock()
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(channel, &s)
	}
	stop := context.AfterFunc(ctx, unsubscribe)
	sub := bus.NewSubscription(s.c, func() {
		stop()
		unsubscribe()
	})
	return sub, nil
}

// CloseAll closes every subscription.  Subscribers are expected to subscribe again and resynchronize.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, subscribers := range b.channels {
		for s := range subscribers {
			b.remove(channel, s)
		}
	}
}

// NumSubscribers is the number of open subscriptions to the channel.
func (b *Bus) NumSubscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[channel])
}

// remove closes the subscriber if it is subscribed to the channel.  The lock must be held.
func (b *Bus) remove(channel string, s *subscriber) {
	subscribers := b.channels[channel]
	if _, ok := subscribers[s]; !ok {
		return
	}
	delete(subscribers, s)
	close(s.c)
	if len(subscribers) == 0 {
		delete(b.channels, channel)
	}
}
