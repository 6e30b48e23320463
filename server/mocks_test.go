package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/auth"
)

type mockTokenizer struct {
	VerifyFunc func(token string) (player.Name, error)
}

func (m mockTokenizer) Verify(token string) (player.Name, error) {
	return m.VerifyFunc(token)
}

// nameTokenizer uses the token as the name of the player.
var nameTokenizer = mockTokenizer{
	VerifyFunc: func(token string) (player.Name, error) {
		if len(token) == 0 {
			return "", fmt.Errorf("%w: token required", auth.ErrUnauthorized)
		}
		return player.Name(token), nil
	},
}

type mockLobby struct {
	ConnectFunc    func(ctx context.Context, w http.ResponseWriter, r *http.Request, id, token string) error
	NumSocketsFunc func() int
}

func (m mockLobby) Connect(ctx context.Context, w http.ResponseWriter, r *http.Request, id, token string) error {
	return m.ConnectFunc(ctx, w, r, id, token)
}

func (m mockLobby) NumSockets() int {
	return m.NumSocketsFunc()
}

type mockStatsReader struct {
	ReadFunc func(ctx context.Context, pn player.Name) (*stats.PlayerStats, error)
}

func (m mockStatsReader) Read(ctx context.Context, pn player.Name) (*stats.PlayerStats, error) {
	return m.ReadFunc(ctx, pn)
}

type mockRecorder struct{}

func (mockRecorder) Record(o stats.Outcome) {}

type mockGameCounter func() int

func (m mockGameCounter) Len() int {
	return m()
}

type mockSocketCounter func() int

func (m mockSocketCounter) NumSockets() int {
	return m()
}
