// Package postgres implements a bus that delivers events between servers using PostgreSQL LISTEN/NOTIFY.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/server/bus"
	"github.com/jacobpatterson1549/deathroll/server/bus/memory"
	"github.com/jacobpatterson1549/deathroll/server/log"
	"github.com/jacobpatterson1549/deathroll/server/runner"
	"github.com/lib/pq"
)

// DefaultChannel is the database notification channel events are sent on if no other is configured.
const DefaultChannel = "deathroll_events"

// maxPayloadBytes is the largest notification payload postgres accepts with the default configuration.
const maxPayloadBytes = 8000

type (
	// Bus publishes events with NOTIFY and fans the notifications it listens for out to local subscribers.
	Bus struct {
		runner.Runner
		log      log.Logger
		debug    bool
		channel  string
		db       Execer
		listener Listener
		local    *memory.Bus
		timeout  time.Duration
	}

	// Config contains the properties to create a Bus.
	Config struct {
		// Debug is a flag that causes the bus to log notifications.
		Debug bool
		// Log is used to log errors and other information.
		Log log.Logger
		// Channel is the database notification channel.  DefaultChannel is used if it is empty.
		Channel string
		// PublishTimeout is the maximum time to wait for a notification to be sent.
		PublishTimeout time.Duration
		// Local is the configuration of the bus that delivers received notifications to subscribers on this server.
		Local memory.Config
	}

	// Execer executes queries.  It is implemented by *sql.DB.
	Execer interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	}

	// Listener receives database notifications.  It is implemented by *pq.Listener.
	Listener interface {
		Listen(channel string) error
		NotificationChannel() <-chan *pq.Notification
		Close() error
	}

	// payload is the text of a notification.
	payload struct {
		Channel string     `json:"channel"`
		Event   game.Event `json:"event"`
	}
)

var _ bus.Bus = (*Bus)(nil)

// NewListener creates a listener on the database that reconnects with backoff when the connection is lost.
func NewListener(databaseURL string, log log.Logger) *pq.Listener {
	eventCallback := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("event bus listener: %v", err)
		}
	}
	return pq.NewListener(databaseURL, 10*time.Second, time.Minute, eventCallback)
}

// NewBus creates a Bus that sends notifications with the database and receives them with the listener.
func (cfg Config) NewBus(db Execer, listener Listener) (*Bus, error) {
	if err := cfg.validate(db, listener); err != nil {
		return nil, fmt.Errorf("creating postgres bus: validation: %w", err)
	}
	local, err := cfg.Local.NewBus()
	if err != nil {
		return nil, fmt.Errorf("creating postgres bus: %w", err)
	}
	channel := cfg.Channel
	if len(channel) == 0 {
		channel = DefaultChannel
	}
	if err := listener.Listen(channel); err != nil {
		return nil, fmt.Errorf("listening to %v: %w", channel, err)
	}
	b := Bus{
		log:      cfg.Log,
		debug:    cfg.Debug,
		channel:  channel,
		db:       db,
		listener: listener,
		local:    local,
		timeout:  cfg.PublishTimeout,
	}
	return &b, nil
}

// validate ensures the configuration has no errors.
func (cfg Config) validate(db Execer, listener Listener) error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case db == nil:
		return fmt.Errorf("database required")
	case listener == nil:
		return fmt.Errorf("listener required")
	case cfg.PublishTimeout <= 0:
		return fmt.Errorf("positive publish timeout required")
	}
	return nil
}

// Publish notifies every server listening to the database of the event.
func (b *Bus) Publish(ctx context.Context, channel string, e game.Event) error {
	p := payload{
		Channel: channel,
		Event:   e,
	}
	text, err := json.Marshal(p)
	switch {
	case err != nil:
		return fmt.Errorf("encoding notification: %w", err)
	case len(text) > maxPayloadBytes:
		return fmt.Errorf("notification for %v event is %v bytes, which is larger than %v", e.Type, len(text), maxPayloadBytes)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", b.channel, string(text)); err != nil {
		return fmt.Errorf("notifying %v: %w", b.channel, err)
	}
	return nil
}

// Subscribe creates a subscription to events that any server publishes to the channel.
func (b *Bus) Subscribe(ctx context.Context, channel string) (*bus.Subscription, error) {
	return b.local.Subscribe(ctx, channel)
}

// Run delivers notifications to local subscribers until the context is done.
// When the listener reconnects, notifications may have been missed, so all subscriptions are closed for clients to resynchronize.
func (b *Bus) Run(ctx context.Context) error {
	if err := b.Runner.Run(); err != nil {
		return fmt.Errorf("running event bus: %w", err)
	}
	defer b.Runner.Finish()
	defer b.local.CloseAll()
	defer func() {
		if err := b.listener.Close(); err != nil {
			b.log.Printf("closing event bus listener: %v", err)
		}
	}()
	notifications := b.listener.NotificationChannel()
	for { // BLOCKING
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				return fmt.Errorf("event bus listener closed")
			}
			b.handleNotification(ctx, n)
		}
	}
}

// handleNotification publishes the event in the notification to local subscribers.
func (b *Bus) handleNotification(ctx context.Context, n *pq.Notification) {
	if n == nil {
		b.log.Printf("event bus listener reconnected, closing subscriptions")
		b.local.CloseAll()
		return
	}
	var p payload
	if err := json.Unmarshal([]byte(n.Extra), &p); err != nil {
		b.log.Printf("reading event bus notification: %v", err)
		return
	}
	if b.debug {
		b.log.Printf("received %v (sequence %v) for %v", p.Event.Type, p.Event.SequenceNumber, p.Channel)
	}
	if err := b.local.Publish(ctx, p.Channel, p.Event); err != nil {
		b.log.Printf("delivering notification: %v", err)
	}
}
