package game

import (
	"github.com/jacobpatterson1549/deathroll/game/player"
)

// State is the authoritative state of a game.  Fields that do not apply to the status are zero.
type State struct {
	// Status is the phase of the game.
	Status Status `json:"status"`
	// Host is the player who created the game and may start it.
	Host player.Name `json:"host,omitempty"`
	// Participants are the players in the game, in turn order.  Eliminated players are removed.
	Participants player.Names `json:"participants,omitempty"`
	// TurnIndex is the index of the participant whose turn it is.
	TurnIndex int `json:"turnIndex"`
	// Ceiling is the largest number the current player may roll.
	Ceiling int `json:"ceiling,omitempty"`
	// Loser is the player who lost a finished game.
	Loser player.Name `json:"loser,omitempty"`
	// FinalRoll is the roll that finished the game, or zero if the loser was eliminated.
	FinalRoll int `json:"finalRoll,omitempty"`
	// Winners are the participants who remained when the game finished.
	Winners player.Names `json:"winners,omitempty"`
}

// NewLobby creates the state of a new game that only has the host.
func NewLobby(host player.Name) State {
	s := State{
		Status:       Lobby,
		Host:         host,
		Participants: player.Names{host},
	}
	return s
}

// CurrentPlayer is the player whose turn it is.  False is returned if the game is not in progress.
func (s State) CurrentPlayer() (player.Name, bool) {
	if s.Status != InProgress || s.TurnIndex < 0 || s.TurnIndex >= len(s.Participants) {
		return "", false
	}
	return s.Participants[s.TurnIndex], true
}

// Clone creates a copy of the state that shares no memory with it.
func (s State) Clone() State {
	s2 := s
	s2.Participants = clone(s.Participants)
	s2.Winners = clone(s.Winners)
	return s2
}

func clone(names player.Names) player.Names {
	if names == nil {
		return nil
	}
	names2 := make(player.Names, len(names))
	copy(names2, names)
	return names2
}
