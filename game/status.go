package game

import (
	"encoding/json"
	"fmt"
)

// Status is the phase of a game.
type Status int

const (
	_ Status = iota
	// Lobby is the status of a game that is waiting for players to join before the host starts it.
	Lobby
	// InProgress is the status of a game that has been started and has players taking turns rolling.
	InProgress
	// Finished is the status of a game that has a loser.  No actions are allowed on finished games.
	Finished
)

var statusNames = map[Status]string{
	Lobby:      "LOBBY",
	InProgress: "IN_PROGRESS",
	Finished:   "FINISHED",
}

// String returns the display value for the status.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "?"
}

// MarshalJSON encodes the status as its name.
func (s Status) MarshalJSON() ([]byte, error) {
	n, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status: %d", int(s))
	}
	return json.Marshal(n)
}

// UnmarshalJSON decodes the name of a status.
func (s *Status) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	for s2, n2 := range statusNames {
		if n == n2 {
			*s = s2
			return nil
		}
	}
	return fmt.Errorf("unknown status: %q", n)
}
