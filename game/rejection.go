package game

import "errors"

// Rejection is an error for an action that breaks the rules of the game.
// A rejected action does not change the game.
type Rejection string

const (
	// NotYourTurn rejects a roll from a player other than the current player.
	NotYourTurn Rejection = "NOT_YOUR_TURN"
	// WrongState rejects an action that cannot be made in the current phase of the game.
	WrongState Rejection = "WRONG_STATE"
	// NotHost rejects a start request from a player that is not the host.
	NotHost Rejection = "NOT_HOST"
	// LobbyFull rejects a join when the game has the maximum number of players.
	LobbyFull Rejection = "LOBBY_FULL"
	// AlreadyJoined rejects a join from a player already in the game.
	AlreadyJoined Rejection = "ALREADY_JOINED"
	// NotEnoughPlayers rejects a start request when only the host is in the game.
	NotEnoughPlayers Rejection = "NOT_ENOUGH_PLAYERS"
	// GameAlreadyStarted rejects a join after the game has started.
	GameAlreadyStarted Rejection = "GAME_ALREADY_STARTED"
	// GameClosed rejects actions on a game that has been removed from the server.
	GameClosed Rejection = "SESSION_CLOSED"
)

// ErrInternal is wrapped by errors that are caused by a broken invariant rather than by a player.
var ErrInternal = errors.New("internal game error")

// Error returns the reason of the rejection.
func (r Rejection) Error() string {
	return string(r)
}

// AsRejection extracts the rejection from the error, if it is one.
func AsRejection(err error) (Rejection, bool) {
	var r Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return "", false
}
