package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/auth"
	gameController "github.com/jacobpatterson1549/deathroll/server/game"
	"github.com/jacobpatterson1549/deathroll/server/game/lobby"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

type (
	contextKey int

	// gameResponse is written for requests about a single game.
	gameResponse struct {
		GameID         string      `json:"gameId"`
		Host           player.Name `json:"host,omitempty"`
		SequenceNumber int         `json:"sequenceNumber"`
		State          *game.State `json:"state,omitempty"`
	}

	// errorResponse is written when an action is rejected.
	errorResponse struct {
		Error string `json:"error"`
	}
)

const (
	// HeaderContentType is used to set the document type header on http responses.
	HeaderContentType = "Content-Type"
	// HeaderAuthorization contains the bearer token of the player making the request.
	HeaderAuthorization = "Authorization"
	// accessTokenParam is the query parameter for the token of websocket requests, which cannot have headers.
	accessTokenParam = "access_token"
	bearerPrefix     = "Bearer "
)

const (
	playerNameContextKey contextKey = iota + 1
)

// handler creates the handler for all endpoints.
func (p Parameters) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /monitor", monitorHandler(p.Registry, p.Lobby))
	mux.Handle("GET /rules", rulesHandler(p.Rules, p.Logger))
	mux.Handle("POST /game", authHandler(gameCreateHandler(p.Registry, p.Logger), p.Tokenizer, p.Logger))
	mux.Handle("GET /game/{id}", gameGetHandler(p.Registry, p.Logger))
	mux.Handle("POST /game/{id}/join", authHandler(gameActionHandler(game.Join, p.Registry, p.Logger), p.Tokenizer, p.Logger))
	mux.Handle("POST /game/{id}/start", authHandler(gameActionHandler(game.Start, p.Registry, p.Logger), p.Tokenizer, p.Logger))
	mux.Handle("GET /ws/game/{id}", gameConnectHandler(p.Lobby, p.Logger))
	mux.Handle("GET /stats/{player}", statsHandler(p.StatsReader, p.Logger))
	return mux
}

// healthHandler writes OK.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(HeaderContentType, "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// rulesHandler writes the rules of games.
func rulesHandler(rules []string, log log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rules, log)
	}
}

// authHandler checks the token of the request before running the child handler.
// The player name in the token is added to the context of the request.
func authHandler(h http.Handler, tokenizer Tokenizer, log log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pn, err := tokenizer.Verify(requestToken(r))
		if err != nil {
			log.Printf("reading token: %v", err)
			httpError(w, http.StatusUnauthorized)
			return
		}
		ctx := withPlayerName(r.Context(), pn)
		h.ServeHTTP(w, r.WithContext(ctx))
	}
}

// gameCreateHandler creates a game hosted by the player making the request.
func gameCreateHandler(registry Registry, log log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pn := playerName(r.Context())
		s, err := registry.Create(pn)
		if err != nil {
			writeError(w, err, log)
			return
		}
		resp := gameResponse{
			GameID: s.ID(),
			Host:   pn,
		}
		writeJSON(w, http.StatusCreated, resp, log)
	}
}

// gameGetHandler writes a snapshot of the game.
func gameGetHandler(registry Registry, log log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := registry.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err, log)
			return
		}
		writeJSON(w, http.StatusOK, snapshotResponse(s), log)
	}
}

// gameActionHandler submits the action for the player making the request.
// Joining a game the player is already in is allowed so players can reconnect.
func gameActionHandler(t game.ActionType, registry Registry, log log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := registry.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err, log)
			return
		}
		a := game.Action{
			Type:   t,
			Player: playerName(r.Context()),
		}
		err = s.Submit(r.Context(), a)
		if reason, ok := game.AsRejection(err); ok && t == game.Join && s.IsMember(a.Player) {
			switch reason {
			case game.AlreadyJoined, game.GameAlreadyStarted, game.WrongState:
				err = nil
			}
		}
		if err != nil {
			writeError(w, err, log)
			return
		}
		writeJSON(w, http.StatusOK, snapshotResponse(s), log)
	}
}

// gameConnectHandler connects the player to the game with a websocket.
func gameConnectHandler(l Lobby, log log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := l.Connect(r.Context(), w, r, r.PathValue("id"), requestToken(r))
		switch {
		case err == nil:
		case errors.Is(err, lobby.ErrUpgrade):
			log.Printf("websocket error: %v", err)
		default:
			writeError(w, err, log)
		}
	}
}

// statsHandler writes the totals of the player.
func statsHandler(sr StatsReader, log log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pn := player.Name(r.PathValue("player"))
		ps, err := sr.Read(r.Context(), pn)
		if err != nil {
			err = fmt.Errorf("reading stats: %w", err)
			writeInternalError(err, log, w)
			return
		}
		writeJSON(w, http.StatusOK, ps, log)
	}
}

// snapshotResponse creates the response of the current state of the game.
func snapshotResponse(s *gameController.Session) gameResponse {
	sequenceNumber, state := s.Snapshot()
	resp := gameResponse{
		GameID:         s.ID(),
		Host:           state.Host,
		SequenceNumber: sequenceNumber,
		State:          &state,
	}
	return resp
}

// requestToken retrieves the token from the authorization header or the access token query parameter.
func requestToken(r *http.Request) string {
	authorization := r.Header.Get(HeaderAuthorization)
	if strings.HasPrefix(authorization, bearerPrefix) {
		return authorization[len(bearerPrefix):]
	}
	return r.URL.Query().Get(accessTokenParam)
}

// withPlayerName adds the name of the player making the request to the context.
func withPlayerName(ctx context.Context, pn player.Name) context.Context {
	return context.WithValue(ctx, playerNameContextKey, pn)
}

// playerName gets the name of the player making the request from the context.
func playerName(ctx context.Context) player.Name {
	pn, _ := ctx.Value(playerNameContextKey).(player.Name)
	return pn
}

// writeError writes the error with the status code that best describes it.
func writeError(w http.ResponseWriter, err error, log log.Logger) {
	if reason, ok := game.AsRejection(err); ok {
		writeJSON(w, http.StatusConflict, errorResponse{Error: string(reason)}, log)
		return
	}
	var statusCode int
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
	case errors.Is(err, lobby.ErrNotMember):
		statusCode = http.StatusForbidden
	case errors.Is(err, gameController.ErrSessionNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, gameController.ErrTooManySessions),
		errors.Is(err, lobby.ErrLobbyFull):
		statusCode = http.StatusServiceUnavailable
	default:
		writeInternalError(err, log, w)
		return
	}
	log.Printf("request error: %v", err)
	httpError(w, statusCode)
}

// writeJSON writes the value as json with the status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}, log log.Logger) {
	data, err := json.Marshal(v)
	if err != nil {
		err = fmt.Errorf("encoding response: %w", err)
		writeInternalError(err, log, w)
		return
	}
	w.Header().Set(HeaderContentType, "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

// writeInternalError logs and writes the error as an internal server error (500).
func writeInternalError(err error, log log.Logger, w http.ResponseWriter) {
	log.Printf("server error: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// httpError writes the error status code.
func httpError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}
