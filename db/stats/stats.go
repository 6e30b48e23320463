// Package stats records the outcomes of games and the totals of each player.
package stats

import (
	"fmt"

	"github.com/jacobpatterson1549/deathroll/game/player"
)

type (
	// Outcome is the result of a game that finished or was abandoned.
	Outcome struct {
		// SessionID is the id of the game.
		SessionID string `json:"sessionId"`
		// Participants are all the players that joined the game.
		Participants player.Names `json:"participants"`
		// Winners are the players that were still in the game when it finished.  Abandoned games have no winners.
		Winners player.Names `json:"winners,omitempty"`
		// Loser is the player that lost the game.  Abandoned games have no loser.
		Loser player.Name `json:"loser,omitempty"`
		// FinalRoll is the roll that finished the game, or zero if the loser was eliminated.
		FinalRoll int `json:"finalRoll,omitempty"`
		// Abandoned is true if the game was removed before it finished.
		Abandoned bool `json:"abandoned,omitempty"`
		// FinishedAt is the time the game finished since the unix epoch, in seconds.
		FinishedAt int64 `json:"finishedAt"`
	}

	// PlayerStats are the totals of the games a player has participated in.
	PlayerStats struct {
		Player    player.Name `json:"player"`
		Wins      int         `json:"wins"`
		Losses    int         `json:"losses"`
		Abandoned int         `json:"abandoned"`
	}

	// Increment is the change to the totals of a player caused by an outcome.
	Increment struct {
		Wins      int
		Losses    int
		Abandoned int
	}
)

// Validate ensures the outcome can be recorded.
func (o Outcome) Validate() error {
	switch {
	case len(o.SessionID) == 0:
		return fmt.Errorf("session id required")
	case len(o.Participants) == 0:
		return fmt.Errorf("participants required")
	case o.Abandoned && (len(o.Loser) != 0 || len(o.Winners) != 0):
		return fmt.Errorf("abandoned games have no winners or loser")
	case !o.Abandoned && !o.Participants.Contains(o.Loser):
		return fmt.Errorf("loser %q must be a participant", o.Loser)
	case !o.Abandoned && o.Winners.Contains(o.Loser):
		return fmt.Errorf("loser %q cannot also be a winner", o.Loser)
	case !o.Abandoned && len(o.Winners) == 0:
		return fmt.Errorf("winners required")
	}
	for _, pn := range o.Participants {
		if err := pn.Validate(); err != nil {
			return fmt.Errorf("participant %q: %w", pn, err)
		}
	}
	return nil
}

// Increments are the changes to the totals of each participant of the outcome.
// Participants that were eliminated before the game finished are counted as losers.
func (o Outcome) Increments() map[player.Name]Increment {
	m := make(map[player.Name]Increment, len(o.Participants))
	for _, pn := range o.Participants {
		var inc Increment
		switch {
		case o.Abandoned:
			inc.Abandoned = 1
		case o.Winners.Contains(pn):
			inc.Wins = 1
		default:
			inc.Losses = 1
		}
		m[pn] = inc
	}
	return m
}
