// Package bus delivers the events of games from the server that runs them to the connections that observe them.
package bus

import (
	"context"
	"sync"

	"github.com/jacobpatterson1549/deathroll/game"
)

type (
	// Publisher sends events to the subscribers of a channel in the order they are published.
	Publisher interface {
		Publish(ctx context.Context, channel string, e game.Event) error
	}

	// Subscriber creates subscriptions to channels.
	Subscriber interface {
		Subscribe(ctx context.Context, channel string) (*Subscription, error)
	}

	// Bus is both a Publisher and a Subscriber.
	Bus interface {
		Publisher
		Subscriber
	}

	// Subscription receives the events published to a channel after it was created.
	// C is closed when the subscription ends.  Subscribers that fall behind are closed and should subscribe again.
	Subscription struct {
		C     <-chan game.Event
		close func()
		once  sync.Once
	}
)

// channelPrefix is prepended to the ids of games to form channel names.
const channelPrefix = "session."

// Channel is the name of the channel that the game with the id publishes to.
func Channel(id string) string {
	return channelPrefix + id
}

// NewSubscription creates a subscription that calls the close function once when it is closed.
func NewSubscription(c <-chan game.Event, close func()) *Subscription {
	s := Subscription{
		C:     c,
		close: close,
	}
	return &s
}

// Close ends the subscription.  It is safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
}
