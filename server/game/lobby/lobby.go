// Package lobby connects players to the games they are in and handles communication between games and players.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/message"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/bus"
	gameController "github.com/jacobpatterson1549/deathroll/server/game"
	"github.com/jacobpatterson1549/deathroll/server/game/socket"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

type (
	// Lobby is the place players connect to the games they have joined.
	Lobby struct {
		auth       Authenticator
		registry   Registry
		subscriber bus.Subscriber
		upgrader   Upgrader
		mu         sync.Mutex
		numSockets int
		Config
	}

	// Config contiains the properties to create a lobby.
	Config struct {
		// Debug is a flag that causes the lobby to log when players connect and disconnect.
		Debug bool
		// Log is used to log errors and other information.
		Log log.Logger
		// MaxSockets is the maximum number of connections the lobby supports.
		MaxSockets int
		// SocketConfig is used to create new sockets.
		SocketConfig socket.Config
	}

	// Authenticator identifies players by their tokens.
	Authenticator interface {
		Verify(token string) (player.Name, error)
	}

	// Registry provides the games players connect to.
	Registry interface {
		Get(id string) (*gameController.Session, error)
		IsMember(id string, pn player.Name) bool
	}

	// Upgrader creates connections from http requests.
	// If the connection cannot be created, the Upgrader writes the http error response.
	Upgrader interface {
		Upgrade(w http.ResponseWriter, r *http.Request) (socket.Conn, error)
	}
)

var (
	// ErrNotMember is returned when a player tries to connect to a game they have not joined.
	ErrNotMember = errors.New("not a member of the game")
	// ErrLobbyFull is returned when the maximum number of connections are open.
	ErrLobbyFull = errors.New("lobby full")
	// ErrUpgrade is returned when the connection could not be upgraded.  The response has already been written.
	ErrUpgrade = errors.New("upgrading to websocket connection")
)

// NewLobby creates a new game lobby.
func (cfg Config) NewLobby(auth Authenticator, r Registry, s bus.Subscriber, u Upgrader) (*Lobby, error) {
	if err := cfg.validate(auth, r, s, u); err != nil {
		return nil, fmt.Errorf("creating lobby: validation: %w", err)
	}
	l := Lobby{
		auth:       auth,
		registry:   r,
		subscriber: s,
		upgrader:   u,
		Config:     cfg,
	}
	return &l, nil
}

// validate ensures the configuration has no errors.
func (cfg Config) validate(auth Authenticator, r Registry, s bus.Subscriber, u Upgrader) error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case auth == nil:
		return fmt.Errorf("authenticator required")
	case r == nil:
		return fmt.Errorf("registry required")
	case s == nil:
		return fmt.Errorf("subscriber required")
	case u == nil:
		return fmt.Errorf("upgrader required")
	case cfg.MaxSockets <= 0:
		return fmt.Errorf("must allow at least one socket")
	}
	return nil
}

// Connect connects the player with the token to the game with the id and runs the connection until it closes.
// The connection first receives a snapshot of the game and then the events of the game.
// Errors are returned only if the connection was not created.  Errors that wrap ErrUpgrade have already been written to the response.
func (l *Lobby) Connect(ctx context.Context, w http.ResponseWriter, r *http.Request, id, token string) error {
	pn, err := l.auth.Verify(token)
	if err != nil {
		return fmt.Errorf("connecting to game %v: %w", id, err)
	}
	s, err := l.registry.Get(id)
	if err != nil {
		return fmt.Errorf("connecting %v to game: %w", pn, err)
	}
	if !l.registry.IsMember(id, pn) {
		return fmt.Errorf("connecting %v to game %v: %w", pn, id, ErrNotMember)
	}
	if err := l.reserveSocket(); err != nil {
		return fmt.Errorf("connecting %v to game %v: %w", pn, id, err)
	}
	defer l.releaseSocket()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := l.subscriber.Subscribe(ctx, s.Channel())
	if err != nil {
		return fmt.Errorf("connecting %v to game %v: subscribing: %w", pn, id, err)
	}
	defer sub.Close()
	conn, err := l.upgrader.Upgrade(w, r)
	if err != nil {
		return fmt.Errorf("connecting %v to game %v: %w: %v", pn, id, ErrUpgrade, err)
	}
	sock, err := l.SocketConfig.NewSocket(pn, conn)
	if err != nil {
		conn.Close()
		l.Log.Printf("connecting %v to game %v: %v", pn, id, err)
		return nil
	}
	// the snapshot is taken after subscribing so no events are missed
	sequenceNumber, state := s.Snapshot()
	s.AddObserver(pn)
	defer s.RemoveObserver(pn)
	if l.Debug {
		l.Log.Printf("%v connected to game %v at sequence %v", pn, id, sequenceNumber)
	}
	h := l.handler(s, pn)
	if err := sock.Run(ctx, game.Snapshot(sequenceNumber, state), sub.C, h); err != nil {
		l.Log.Printf("connecting %v to game %v: %v", pn, id, err)
	}
	if l.Debug {
		l.Log.Printf("%v disconnected from game %v", pn, id)
	}
	return nil
}

// handler creates a socket handler that submits the actions the player requests to the session.
func (*Lobby) handler(s *gameController.Session, pn player.Name) socket.Handler {
	return func(ctx context.Context, m message.Message) error {
		a, err := m.Action(pn)
		if err != nil {
			return err
		}
		return s.Submit(ctx, *a)
	}
}

// NumSockets is the number of open connections.
func (l *Lobby) NumSockets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.numSockets
}

// reserveSocket ensures there is room for another connection.
func (l *Lobby) reserveSocket() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.numSockets >= l.MaxSockets {
		return fmt.Errorf("%w: the maximum number of connections are open (%v)", ErrLobbyFull, l.MaxSockets)
	}
	l.numSockets++
	return nil
}

// releaseSocket frees the room of a closed connection.
func (l *Lobby) releaseSocket() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.numSockets--
}
