package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/message"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/game/socket/gorilla"
)

type (
	// client makes requests to a deathroll server for a player.
	client struct {
		httpClient *http.Client
		baseURL    *url.URL
		token      string
		player     player.Name
		out        io.Writer
		// rollDelay is how long the player waits before rolling when it becomes their turn.
		rollDelay time.Duration
	}

	// gameResponse is the body of responses about a single game.
	gameResponse struct {
		GameID         string      `json:"gameId"`
		Host           player.Name `json:"host,omitempty"`
		SequenceNumber int         `json:"sequenceNumber"`
		State          *game.State `json:"state,omitempty"`
	}

	// errorResponse is the body of responses to rejected actions.
	errorResponse struct {
		Error string `json:"error"`
	}
)

// create creates a game hosted by the player and prints its id.
func (c client) create(ctx context.Context) error {
	var resp gameResponse
	if err := c.do(ctx, http.MethodPost, "/game", &resp); err != nil {
		return fmt.Errorf("creating game: %w", err)
	}
	fmt.Fprintf(c.out, "created game %v hosted by %v\n", resp.GameID, resp.Host)
	return nil
}

// join adds the player to the game.
func (c client) join(ctx context.Context, id string) error {
	var resp gameResponse
	if err := c.do(ctx, http.MethodPost, "/game/"+url.PathEscape(id)+"/join", &resp); err != nil {
		return fmt.Errorf("joining game: %w", err)
	}
	c.printGame(resp)
	return nil
}

// start starts the game.  Only the host can start games.
func (c client) start(ctx context.Context, id string) error {
	var resp gameResponse
	if err := c.do(ctx, http.MethodPost, "/game/"+url.PathEscape(id)+"/start", &resp); err != nil {
		return fmt.Errorf("starting game: %w", err)
	}
	c.printGame(resp)
	return nil
}

// state prints the current state of the game.
func (c client) state(ctx context.Context, id string) error {
	var resp gameResponse
	if err := c.do(ctx, http.MethodGet, "/game/"+url.PathEscape(id), &resp); err != nil {
		return fmt.Errorf("getting game: %w", err)
	}
	c.printGame(resp)
	return nil
}

// rules prints how games are played on the server.
func (c client) rules(ctx context.Context) error {
	var rules []string
	if err := c.do(ctx, http.MethodGet, "/rules", &rules); err != nil {
		return fmt.Errorf("getting rules: %w", err)
	}
	for _, r := range rules {
		fmt.Fprintln(c.out, "*", r)
	}
	return nil
}

// play connects to the game and prints its events until it ends, rolling whenever it is the player's turn.
func (c client) play(ctx context.Context, id string) error {
	u, err := c.socketURL(id)
	if err != nil {
		return fmt.Errorf("playing game: %w", err)
	}
	conn, err := gorilla.Dial(u, nil)
	if err != nil {
		return fmt.Errorf("playing game: dialing: %w", err)
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var e game.Event
		if err := conn.ReadEvent(&e); err != nil {
			switch {
			case conn.IsNormalClose(err), ctx.Err() != nil:
				return nil
			}
			return fmt.Errorf("playing game: reading event: %w", err)
		}
		fmt.Fprintln(c.out, formatEvent(e))
		if gameEnded(e) {
			return nil
		}
		if !c.isTurn(e) {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.rollDelay):
		}
		if err := conn.WriteMessage(message.Message{Type: message.Roll}); err != nil {
			return fmt.Errorf("playing game: rolling: %w", err)
		}
	}
}

// do makes a request to the server and decodes the json response into v.
func (c client) do(ctx context.Context, method, path string, v interface{}) error {
	u := c.baseURL.JoinPath(path)
	r, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if len(c.token) != 0 {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(r)
	if err != nil {
		return fmt.Errorf("requesting %v %v: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// responseError creates an error from the body of an unsuccessful response.
func responseError(resp *http.Response) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%v: reading body: %w", resp.Status, err)
	}
	var er errorResponse
	if err := json.Unmarshal(b, &er); err == nil && len(er.Error) != 0 {
		return fmt.Errorf("%v: %v", resp.Status, er.Error)
	}
	return fmt.Errorf("%v: %v", resp.Status, strings.TrimSpace(string(b)))
}

// socketURL is the websocket address of the game.  The token is passed as a query parameter.
func (c client) socketURL(id string) (string, error) {
	u := c.baseURL.JoinPath("/ws/game", id)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme: %q", u.Scheme)
	}
	q := u.Query()
	q.Set("access_token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// isTurn determines if the event makes it the turn of the player.
func (c client) isTurn(e game.Event) bool {
	switch e.Type {
	case game.TurnAdvanced:
		return e.CurrentPlayer == c.player
	case game.StateSnapshot:
		if e.State == nil {
			return false
		}
		pn, ok := e.State.CurrentPlayer()
		return ok && pn == c.player
	}
	return false
}

// gameEnded determines if no more events will be sent after the event.
func gameEnded(e game.Event) bool {
	switch e.Type {
	case game.GameOver, game.GameForfeited, game.SessionClosed:
		return true
	case game.StateSnapshot:
		return e.State != nil && e.State.Status == game.Finished
	}
	return false
}

// printGame writes a summary of the game.
func (c client) printGame(g gameResponse) {
	fmt.Fprintf(c.out, "game %v (sequence %v)\n", g.GameID, g.SequenceNumber)
	if g.State != nil {
		fmt.Fprintln(c.out, formatState(*g.State))
	}
}

// formatState describes the state on a single line.
func formatState(s game.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v: host=%v participants=%v", s.Status, s.Host, s.Participants)
	switch s.Status {
	case game.InProgress:
		pn, _ := s.CurrentPlayer()
		fmt.Fprintf(&sb, " current=%v ceiling=%v", pn, s.Ceiling)
	case game.Finished:
		fmt.Fprintf(&sb, " loser=%v winners=%v", s.Loser, s.Winners)
	}
	return sb.String()
}

// formatEvent describes the event on a single line.
func formatEvent(e game.Event) string {
	prefix := fmt.Sprintf("[%v] %v", e.SequenceNumber, e.Type)
	switch e.Type {
	case game.StateSnapshot:
		if e.State != nil {
			return prefix + ": " + formatState(*e.State)
		}
	case game.PlayerJoined, game.PlayerEliminated:
		return fmt.Sprintf("%v: %v", prefix, e.Player)
	case game.GameStarted:
		ceiling := e.Ceiling
		if e.State != nil {
			ceiling = e.State.Ceiling
		}
		return fmt.Sprintf("%v: ceiling %v", prefix, ceiling)
	case game.TurnAdvanced:
		return fmt.Sprintf("%v: %v rolls 1-%v", prefix, e.CurrentPlayer, e.Ceiling)
	case game.RollResult:
		return fmt.Sprintf("%v: %v rolled %v", prefix, e.Player, e.Roll)
	case game.GameOver, game.GameForfeited:
		return fmt.Sprintf("%v: %v lost", prefix, e.Loser)
	case game.ActionRejected, game.SessionClosed:
		return fmt.Sprintf("%v: %v", prefix, e.Reason)
	}
	return prefix
}
