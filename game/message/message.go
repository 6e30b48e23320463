// Package message contains the frames that clients send to the server over a connection.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/player"
)

type (
	// Type is the purpose of a message.
	Type string

	// Message is a request from a client to act in the game it is connected to.
	Message struct {
		// Type is the purpose of the message.
		Type Type `json:"type"`
	}
)

const (
	// Roll is sent by a client to roll the dice when it is their turn.
	Roll Type = "ROLL"
)

// actionTypes maps message types to the actions they request.
var actionTypes = map[Type]game.ActionType{
	Roll: game.Roll,
}

// Decode reads a message from json text.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &m, nil
}

// Action creates the action the player requests with the message.
func (m Message) Action(pn player.Name) (*game.Action, error) {
	t, ok := actionTypes[m.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %q", m.Type)
	}
	a := game.Action{
		Type:   t,
		Player: pn,
	}
	return &a, nil
}
