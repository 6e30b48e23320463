package socket

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/message"
)

// mockAddr implements the net.Addr interface
type mockAddr string

func (m mockAddr) Network() string {
	return string(m) + "_NETWORK"
}

func (m mockAddr) String() string {
	return string(m)
}

type mockConn struct {
	ReadMessageFunc      func(m *message.Message) error
	WriteEventFunc       func(e game.Event) error
	SetReadDeadlineFunc  func(t time.Time) error
	SetWriteDeadlineFunc func(t time.Time) error
	SetPongHandlerFunc   func(h func(appDauta string) error)
	CloseFunc            func() error
	WritePingFunc        func() error
	WriteCloseFunc       func(reason string) error
	IsNormalCloseFunc    func(err error) bool
	RemoteAddrFunc       func() net.Addr
}

func (m *mockConn) ReadMessage(msg *message.Message) error {
	return m.ReadMessageFunc(msg)
}

func (m *mockConn) WriteEvent(e game.Event) error {
	return m.WriteEventFunc(e)
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	return m.SetReadDeadlineFunc(t)
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	return m.SetWriteDeadlineFunc(t)
}

func (m *mockConn) SetPongHandler(h func(appData string) error) {
	m.SetPongHandlerFunc(h)
}

func (m *mockConn) Close() error {
	return m.CloseFunc()
}

func (m *mockConn) WritePing() error {
	return m.WritePingFunc()
}

func (m *mockConn) WriteClose(reason string) error {
	return m.WriteCloseFunc(reason)
}

func (m *mockConn) IsNormalClose(err error) bool {
	return m.IsNormalCloseFunc(err)
}

func (m *mockConn) RemoteAddr() net.Addr {
	return m.RemoteAddrFunc()
}

var errMockNormalClose = errors.New("mock normal close")

// pipeConn is a mockConn that reads messages from a channel and records the events it writes.
// Reading stops normally when the messages channel is closed.
type pipeConn struct {
	mockConn
	closed      chan struct{}
	closeOnce   sync.Once
	events      chan game.Event
	closeReason string
	numCloses   int
}

func newPipeConn(messages <-chan message.Message) *pipeConn {
	c := pipeConn{
		closed: make(chan struct{}),
		events: make(chan game.Event, 64),
	}
	c.mockConn = mockConn{
		ReadMessageFunc: func(m *message.Message) error {
			select {
			case <-c.closed:
				return errors.New("use of closed connection")
			case m2, ok := <-messages:
				if !ok {
					return errMockNormalClose
				}
				*m = m2
				return nil
			}
		},
		WriteEventFunc: func(e game.Event) error {
			c.events <- e
			return nil
		},
		SetReadDeadlineFunc: func(t time.Time) error {
			return nil
		},
		SetWriteDeadlineFunc: func(t time.Time) error {
			return nil
		},
		SetPongHandlerFunc: func(h func(appDauta string) error) {
			// NOOP
		},
		CloseFunc: func() error {
			c.numCloses++
			c.closeOnce.Do(func() {
				close(c.closed)
			})
			return nil
		},
		WritePingFunc: func() error {
			return nil
		},
		WriteCloseFunc: func(reason string) error {
			c.closeReason = reason
			return nil
		},
		IsNormalCloseFunc: func(err error) bool {
			return err == errMockNormalClose
		},
		RemoteAddrFunc: func() net.Addr {
			return mockAddr("selene.pc")
		},
	}
	return &c
}

// written returns the events written to the connection.  It should only be called after the socket stops running.
func (c *pipeConn) written() []game.Event {
	var events []game.Event
	for {
		select {
		case e := <-c.events:
			events = append(events, e)
		default:
			return events
		}
	}
}
