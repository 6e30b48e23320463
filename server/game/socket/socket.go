// Package socket handles communication with a player using a websocket connection.
package socket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/message"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/log"
	"github.com/jacobpatterson1549/deathroll/server/runner"
	"golang.org/x/time/rate"
)

type (
	// Socket reads messages from a player and writes the events of the game they are connected to.
	Socket struct {
		runner.Runner
		Conn
		PlayerName player.Name
		limiter    *rate.Limiter
		active     atomic.Bool
		// lastSequenceNumber and lastIndex are only accessed by the goroutine writing events.
		lastSequenceNumber int
		lastIndex          int
		Config
	}

	// Config contains commonly shared Socket properties.
	Config struct {
		// Debug is a flag that causes the socket to log the types of messages and events that are read and written.
		Debug bool
		// Log is used to log errors and other information.
		Log log.Logger
		// TimeFunc is a function which should supply the current time.  Used to set read and write deadlines.
		TimeFunc func() time.Time
		// ReadWait is the amout of time that can pass between receiving client messages before timing out.
		ReadWait time.Duration
		// WriteWait is the amout of time that the socket can take to write a message.
		WriteWait time.Duration
		// PingPeriod is how often ping messages should be sent.  Should be less than ReadWait.
		PingPeriod time.Duration
		// IdlePeriod is the amount of time that can pass without reading a message or writing an event before the connection is idle and will be disconnected.
		IdlePeriod time.Duration
		// MessageRate is the number of messages per second a player can send.  Extra messages are dropped.
		MessageRate rate.Limit
		// MessageBurst is the number of messages a player can send at once.
		MessageBurst int
	}

	// Conn is the connection than backs the socket.
	Conn interface {
		// ReadMessage reads the next message from the connection.
		ReadMessage(m *message.Message) error
		// WriteEvent writes the event to the connection.
		WriteEvent(e game.Event) error
		// SetReadDeadline sets the deadline for future reads.
		SetReadDeadline(t time.Time) error
		// SetWriteDeadline sets the deadline for future writes.
		SetWriteDeadline(t time.Time) error
		// SetPongHandler sets the handler for pong messages, which are replies to pings.
		SetPongHandler(h func(appData string) error)
		// Close closes the connection.
		Close() error
		// WritePing writes a ping message on the connection.
		WritePing() error
		// WriteClose writes a close message on the connection.  The connection is NOT closed.
		WriteClose(reason string) error
		// IsNormalClose determines if the error message is not an unexpected close error.
		IsNormalClose(err error) bool
		// RemoteAddr gets the remote network address of the connection.
		RemoteAddr() net.Addr
	}

	// Handler acts on the messages a player sends.  A game.Rejection returned by the handler is sent back to the player only.
	Handler func(ctx context.Context, m message.Message) error
)

const (
	// repliesBufferSize is the number of rejections that can wait to be written to the player.
	repliesBufferSize = 8
	// resyncReason is the close reason when events may have been missed.  The client should reconnect for a fresh snapshot.
	resyncReason = "event stream ended, reconnect to resync"
)

var errSocketClosed = fmt.Errorf("socket closed")

// NewSocket creates a socket for the player.
func (cfg Config) NewSocket(pn player.Name, conn Conn) (*Socket, error) {
	if err := cfg.validate(pn, conn); err != nil {
		return nil, fmt.Errorf("creating socket: validation: %w", err)
	}
	s := Socket{
		Conn:       conn,
		PlayerName: pn,
		limiter:    rate.NewLimiter(cfg.MessageRate, cfg.MessageBurst),
		Config:     cfg,
	}
	return &s, nil
}

// validate ensures the configuration has no errors.
func (cfg Config) validate(pn player.Name, conn Conn) error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case cfg.TimeFunc == nil:
		return fmt.Errorf("time func required")
	case len(pn) == 0:
		return fmt.Errorf("player name required")
	case conn == nil:
		return fmt.Errorf("websocket connection required")
	case cfg.ReadWait <= 0:
		return fmt.Errorf("positive read wait period required")
	case cfg.WriteWait <= 0:
		return fmt.Errorf("positive write wait period required")
	case cfg.PingPeriod <= 0:
		return fmt.Errorf("positive ping period required")
	case cfg.IdlePeriod <= 0:
		return fmt.Errorf("positive idle period required")
	case cfg.PingPeriod >= cfg.ReadWait:
		return fmt.Errorf("ping period should be less than read wait")
	case cfg.MessageRate <= 0:
		return fmt.Errorf("positive message rate required")
	case cfg.MessageBurst <= 0:
		return fmt.Errorf("positive message burst required")
	}
	return nil
}

// Run writes the snapshot and then the events to the connection while reading messages from the connection for the handler.
// Events that have already been written, or that the snapshot already covers, are skipped.
// Run blocks until the connection fails, the game closes, the event stream ends, or the context is cancelled.
// The connection is always closed when Run returns.  A socket can only be run once.
func (s *Socket) Run(ctx context.Context, snapshot game.Event, events <-chan game.Event, h Handler) error {
	if err := s.Runner.Run(); err != nil {
		return fmt.Errorf("running socket: %w", err)
	}
	defer s.Runner.Finish()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	replies := make(chan game.Event, repliesBufferSize)
	pingTicker := time.NewTicker(s.PingPeriod)
	defer pingTicker.Stop()
	idleTicker := time.NewTicker(s.IdlePeriod)
	defer idleTicker.Stop()
	var wg sync.WaitGroup
	wg.Add(2)
	go s.readMessages(ctx, cancel, replies, h, &wg)
	go s.writeEvents(ctx, cancel, snapshot, events, replies, &wg, pingTicker, idleTicker)
	wg.Wait()
	return nil
}

// readMessages receives messages from the connection and passes them to the handler.
// Rejections from the handler are put on the replies channel.
// The context is cancelled with the reason reading stopped.
func (s *Socket) readMessages(ctx context.Context, cancel context.CancelCauseFunc, replies chan<- game.Event, h Handler, wg *sync.WaitGroup) {
	defer wg.Done()
	s.Conn.SetPongHandler(func(appData string) error {
		return s.extendReadDeadline()
	})
	for { // BLOCKING
		m, err := s.readMessage()
		if err != nil {
			cancel(err)
			return
		}
		if !s.limiter.Allow() {
			if s.Debug {
				s.Log.Printf("socket dropping message from %v: rate limit exceeded", s.PlayerName)
			}
			continue
		}
		s.active.Store(true)
		err = h(ctx, *m)
		if err == nil {
			continue
		}
		r, ok := game.AsRejection(err)
		if !ok {
			s.Log.Printf("socket handling message from %v: %v", s.PlayerName, err)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case replies <- game.Rejected(s.PlayerName, r):
		}
	}
}

// writeEvents writes the snapshot, rejections for the player, and the events of the game to the connection.
// The tickers are used to periodically write pings or check for activity.
// The connection is closed and the context is cancelled when writing stops, which also stops reading.
func (s *Socket) writeEvents(ctx context.Context, cancel context.CancelCauseFunc, snapshot game.Event, events <-chan game.Event, replies <-chan game.Event, wg *sync.WaitGroup,
	pingTicker, idleTicker *time.Ticker) {
	var closeReason string
	defer func() {
		if err := s.extendWriteDeadline(); err == nil {
			s.Conn.WriteClose(closeReason)
		}
		s.Conn.Close()
		cancel(errSocketClosed)
		if s.Debug || len(closeReason) != 0 {
			s.Log.Printf("socket for %v at %v closed: %v", s.PlayerName, s.Conn.RemoteAddr(), closeReason)
		}
		wg.Done()
	}()
	s.active.Store(false)
	err := s.writeEvent(snapshot)
	if err == nil {
		s.lastIndex = math.MaxInt
	}
	for err == nil { // BLOCKING
		select {
		case <-ctx.Done():
			cause := context.Cause(ctx)
			switch {
			case errors.Is(cause, errSocketClosed):
			case errors.Is(cause, context.Canceled):
				closeReason = "server shutting down"
			default:
				closeReason = cause.Error()
			}
			return
		case e, ok := <-events:
			switch {
			case !ok:
				closeReason = resyncReason
				return
			case e.Type == game.SessionClosed:
				if err := s.writeEvent(e); err != nil {
					closeReason = err.Error()
					return
				}
				closeReason = e.Reason
				return
			case s.alreadyWritten(e):
				if s.Debug {
					s.Log.Printf("socket skipping duplicate %v event (sequence %v, index %v)", e.Type, e.SequenceNumber, e.Index)
				}
			default:
				err = s.writeEvent(e)
			}
		case e := <-replies:
			err = s.writeEvent(e)
		case <-pingTicker.C:
			if err = s.extendWriteDeadline(); err == nil {
				err = s.Conn.WritePing()
			}
		case <-idleTicker.C:
			if !s.active.Swap(false) {
				closeReason = "closing socket due to inactivity"
				return
			}
		}
	}
	closeReason = err.Error()
}

// readMessage reads the next message from the connection.
func (s *Socket) readMessage() (*message.Message, error) {
	if err := s.extendReadDeadline(); err != nil {
		return nil, err
	}
	var m message.Message
	if err := s.Conn.ReadMessage(&m); err != nil { // BLOCKING
		if s.Conn.IsNormalClose(err) {
			return nil, errSocketClosed
		}
		return nil, fmt.Errorf("reading socket message: %w", err)
	}
	if s.Debug {
		s.Log.Printf("socket reading message with type %v from %v", m.Type, s.PlayerName)
	}
	return &m, nil
}

// alreadyWritten determines if the event is at or before the last event written.
func (s *Socket) alreadyWritten(e game.Event) bool {
	switch {
	case e.SequenceNumber < s.lastSequenceNumber:
		return true
	case e.SequenceNumber > s.lastSequenceNumber:
		return false
	}
	return e.Index <= s.lastIndex
}

// writeEvent writes an event to the connection, tracking the position of the last event written.
// Rejections have no sequence number and are not tracked.
func (s *Socket) writeEvent(e game.Event) error {
	if s.Debug {
		s.Log.Printf("socket writing %v event (sequence %v) to %v", e.Type, e.SequenceNumber, s.PlayerName)
	}
	if err := s.extendWriteDeadline(); err != nil {
		return err
	}
	if err := s.Conn.WriteEvent(e); err != nil {
		return fmt.Errorf("writing socket event: %w", err)
	}
	if e.SequenceNumber > 0 {
		s.lastSequenceNumber = e.SequenceNumber
		s.lastIndex = e.Index
	}
	s.active.Store(true)
	return nil
}

// extendReadDeadline moves the time the next message must be read by.
func (s *Socket) extendReadDeadline() error {
	deadline := s.TimeFunc().Add(s.ReadWait)
	if err := s.Conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	return nil
}

// extendWriteDeadline moves the time the next write must finish by.
func (s *Socket) extendWriteDeadline() error {
	deadline := s.TimeFunc().Add(s.WriteWait)
	if err := s.Conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	return nil
}
