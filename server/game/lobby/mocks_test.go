package lobby

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/message"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/game/socket"
)

type (
	mockAuthenticator struct {
		VerifyFunc func(token string) (player.Name, error)
	}

	mockUpgrader struct {
		UpgradeFunc func(w http.ResponseWriter, r *http.Request) (socket.Conn, error)
	}

	mockRecorder struct{}

	// mockConn reads messages from a channel and sends the events written to it on another channel.
	mockConn struct {
		messages  chan message.Message
		events    chan game.Event
		closed    chan struct{}
		closeOnce sync.Once
	}

	mockAddr string
)

func (m mockAuthenticator) Verify(token string) (player.Name, error) {
	return m.VerifyFunc(token)
}

func (m mockUpgrader) Upgrade(w http.ResponseWriter, r *http.Request) (socket.Conn, error) {
	return m.UpgradeFunc(w, r)
}

func (mockRecorder) Record(o stats.Outcome) {}

// tokenAuthenticator uses the token as the player name.
var tokenAuthenticator = mockAuthenticator{
	VerifyFunc: func(token string) (player.Name, error) {
		if len(token) == 0 {
			return "", errors.New("missing token")
		}
		return player.Name(token), nil
	},
}

func newMockConn() *mockConn {
	c := mockConn{
		messages: make(chan message.Message),
		events:   make(chan game.Event, 64),
		closed:   make(chan struct{}),
	}
	return &c
}

func (c *mockConn) ReadMessage(m *message.Message) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	case m2 := <-c.messages:
		*m = m2
		return nil
	}
}

func (c *mockConn) WriteEvent(e game.Event) error {
	c.events <- e
	return nil
}

func (*mockConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (*mockConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (*mockConn) SetPongHandler(h func(appData string) error) {}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (*mockConn) WritePing() error {
	return nil
}

func (*mockConn) WriteClose(reason string) error {
	return nil
}

func (*mockConn) IsNormalClose(err error) bool {
	return false
}

func (*mockConn) RemoteAddr() net.Addr {
	return mockAddr("selene.pc")
}

func (m mockAddr) Network() string {
	return string(m) + "_NETWORK"
}

func (m mockAddr) String() string {
	return string(m)
}
