package game

import (
	"github.com/jacobpatterson1549/deathroll/game/player"
)

type (
	// EventType describes what happened in a game.
	EventType string

	// Event is sent to observers of a game when it changes.
	// The SequenceNumber is the number of the accepted action that caused the event, or zero for rejections.
	Event struct {
		Type           EventType   `json:"type"`
		SequenceNumber int         `json:"sequenceNumber,omitempty"`
		// Index is the position of the event among the events of the action with the sequence number.
		Index          int         `json:"index,omitempty"`
		Player         player.Name `json:"player,omitempty"`
		Roll           int         `json:"roll,omitempty"`
		CurrentPlayer  player.Name `json:"currentPlayer,omitempty"`
		Ceiling        int         `json:"ceiling,omitempty"`
		Loser          player.Name `json:"loser,omitempty"`
		State          *State      `json:"state,omitempty"`
		Recipient      player.Name `json:"recipient,omitempty"`
		Reason         string      `json:"reason,omitempty"`
	}
)

const (
	// PlayerJoined is emitted when a player joins the lobby.
	PlayerJoined EventType = "PLAYER_JOINED"
	// GameStarted is emitted with the state when the host starts the game.
	GameStarted EventType = "GAME_STARTED"
	// TurnAdvanced is emitted when it becomes the turn of a player.
	TurnAdvanced EventType = "TURN_ADVANCED"
	// RollResult is emitted after the current player rolls.
	RollResult EventType = "ROLL_RESULT"
	// GameOver is emitted after a player rolls a one.
	GameOver EventType = "GAME_OVER"
	// ActionRejected is sent only to the player whose action broke the rules.
	ActionRejected EventType = "ACTION_REJECTED"
	// PlayerEliminated is emitted when the current player forfeits.
	PlayerEliminated EventType = "PLAYER_ELIMINATED"
	// GameForfeited is emitted when a forfeit leaves one player in the game.
	GameForfeited EventType = "GAME_FORFEITED"
	// StateSnapshot is sent to a connection when it connects so it can resume from the current state.
	StateSnapshot EventType = "STATE_SNAPSHOT"
	// SessionClosed is emitted when a game is removed from the server.
	SessionClosed EventType = "SESSION_CLOSED"
)

// Rejected creates the event to send to the recipient of a rejection.
func Rejected(recipient player.Name, r Rejection) Event {
	e := Event{
		Type:      ActionRejected,
		Recipient: recipient,
		Reason:    string(r),
	}
	return e
}

// Snapshot creates an event of the state at the sequence number.
func Snapshot(sequenceNumber int, s State) Event {
	s2 := s.Clone()
	e := Event{
		Type:           StateSnapshot,
		SequenceNumber: sequenceNumber,
		State:          &s2,
	}
	return e
}
