package game

import (
	"fmt"

	"github.com/jacobpatterson1549/deathroll/game/player"
)

type (
	// ActionType is the kind of request a player makes to change a game.
	ActionType int

	// Action is a request by a player to change the state of a game.
	Action struct {
		Type   ActionType
		Player player.Name
	}
)

const (
	_ ActionType = iota
	// Join adds the player to a game in the lobby.
	Join
	// Start is sent by the host to begin taking turns.
	Start
	// Roll rolls the dice for the current player.
	Roll
	// Forfeit eliminates the current player.  It is submitted when a player takes too long to roll.
	Forfeit
)

// String returns the display value for the action type.
func (t ActionType) String() string {
	switch t {
	case Join:
		return "Join"
	case Start:
		return "Start"
	case Roll:
		return "Roll"
	case Forfeit:
		return "Forfeit"
	}
	return "?"
}

// String describes the action.
func (a Action) String() string {
	return fmt.Sprintf("%v by %q", a.Type, a.Player)
}
