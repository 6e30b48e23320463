// Package game contains the rules of death roll games and the structures the server and clients use to communicate about them.
package game

import (
	"fmt"
	"time"
)

// Rules gets the rules for the game.  Extra rules are added for customized configurations.
func (cfg Config) Rules(turnTimeout time.Duration) []string {
	rules := []string{
		"Create a game to host it, or join a game that has not started.",
		fmt.Sprintf("Up to %d players can join a game, including the host.", cfg.MaxPlayers),
		"After at least two players have joined, the host starts the game.  Players take turns in the order they joined.",
		fmt.Sprintf("The first player rolls a number from 1 to %d.", cfg.StartCeiling),
		"Each following player rolls a number from 1 to the previous roll.",
		"The player who rolls a 1 loses the game.  All other players win.",
	}
	if turnTimeout > 0 {
		rules = append(rules, fmt.Sprintf("Players who do not roll within %v of their turn starting are eliminated.  If only one player remains, the eliminated player loses.", turnTimeout))
	}
	return rules
}
