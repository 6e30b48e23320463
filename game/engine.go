package game

import (
	"fmt"

	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/game/roll"
)

// DefaultStartCeiling is the largest number the first player can roll if no other ceiling is configured.
const DefaultStartCeiling = 1000

// Config contains the rules shared by all games.
type Config struct {
	// MaxPlayers is the maximum number of players that can join a game, including the host.
	MaxPlayers int
	// StartCeiling is the largest number the first player can roll.
	StartCeiling int
}

// Validate ensures the configuration has no errors.
func (cfg Config) Validate() error {
	switch {
	case cfg.MaxPlayers < 2:
		return fmt.Errorf("max players must be at least 2")
	case cfg.StartCeiling < 2:
		return fmt.Errorf("start ceiling must be at least 2")
	}
	return nil
}

// Apply applies the action to the state, returning the next state and the events the change caused.
// The state passed in is never modified.  A Rejection is returned for actions that break the rules.
// Other errors wrap ErrInternal.  Events are returned without sequence numbers.
func (cfg Config) Apply(s State, a Action, r roll.Roller) (State, []Event, error) {
	if err := s.validate(); err != nil {
		return s, nil, err
	}
	s = s.Clone()
	switch a.Type {
	case Join:
		return cfg.join(s, a.Player)
	case Start:
		return cfg.start(s, a.Player)
	case Roll:
		return cfg.roll(s, a.Player, r)
	case Forfeit:
		return cfg.forfeit(s, a.Player)
	}
	return s, nil, fmt.Errorf("%w: unknown action type: %v", ErrInternal, a.Type)
}

// join adds the player to the lobby.
func (cfg Config) join(s State, pn player.Name) (State, []Event, error) {
	switch {
	case s.Status != Lobby:
		return s, nil, GameAlreadyStarted
	case s.Participants.Contains(pn):
		return s, nil, AlreadyJoined
	case len(s.Participants) >= cfg.MaxPlayers:
		return s, nil, LobbyFull
	}
	s.Participants = append(s.Participants, pn)
	events := []Event{
		{Type: PlayerJoined, Player: pn},
	}
	return s, events, nil
}

// start changes the game from the lobby to being in progress.
func (cfg Config) start(s State, pn player.Name) (State, []Event, error) {
	switch {
	case s.Status != Lobby:
		return s, nil, WrongState
	case s.Host != pn:
		return s, nil, NotHost
	case len(s.Participants) < 2:
		return s, nil, NotEnoughPlayers
	}
	s.Status = InProgress
	s.TurnIndex = 0
	s.Ceiling = cfg.StartCeiling
	snapshot := s.Clone()
	events := []Event{
		{Type: GameStarted, State: &snapshot},
		{Type: TurnAdvanced, CurrentPlayer: s.Participants[0], Ceiling: s.Ceiling},
	}
	return s, events, nil
}

// roll rolls the dice for the current player.  Rolling a one finishes the game.
func (cfg Config) roll(s State, pn player.Name, r roll.Roller) (State, []Event, error) {
	if err := s.checkTurn(pn); err != nil {
		return s, nil, err
	}
	if r == nil {
		return s, nil, fmt.Errorf("%w: roller required", ErrInternal)
	}
	n, err := r.Roll(s.Ceiling)
	switch {
	case err != nil:
		return s, nil, fmt.Errorf("%w: rolling %v: %w", ErrInternal, s.Ceiling, err)
	case n < 1 || n > s.Ceiling:
		return s, nil, fmt.Errorf("%w: roll %v not in [1, %v]", ErrInternal, n, s.Ceiling)
	}
	rollResult := Event{Type: RollResult, Player: pn, Roll: n}
	if n == 1 {
		s = finished(s, pn, n)
		events := []Event{
			rollResult,
			{Type: GameOver, Loser: pn, Roll: n},
		}
		return s, events, nil
	}
	s.Ceiling = n
	s.TurnIndex = (s.TurnIndex + 1) % len(s.Participants)
	events := []Event{
		rollResult,
		{Type: TurnAdvanced, CurrentPlayer: s.Participants[s.TurnIndex], Ceiling: s.Ceiling},
	}
	return s, events, nil
}

// forfeit eliminates the current player.  The game finishes if only one player remains.
func (cfg Config) forfeit(s State, pn player.Name) (State, []Event, error) {
	if err := s.checkTurn(pn); err != nil {
		return s, nil, err
	}
	remaining := s.Participants.Without(pn)
	events := []Event{
		{Type: PlayerEliminated, Player: pn},
	}
	if len(remaining) < 2 {
		s = finished(s, pn, 0)
		events = append(events, Event{Type: GameForfeited, Loser: pn})
		return s, events, nil
	}
	s.Participants = remaining
	s.TurnIndex %= len(remaining)
	events = append(events, Event{Type: TurnAdvanced, CurrentPlayer: remaining[s.TurnIndex], Ceiling: s.Ceiling})
	return s, events, nil
}

// checkTurn ensures the game is in progress and it is the turn of the player.
func (s State) checkTurn(pn player.Name) error {
	current, ok := s.CurrentPlayer()
	switch {
	case !ok:
		return WrongState
	case current != pn:
		return NotYourTurn
	}
	return nil
}

// finished creates the terminal state of the game for the loser.
func finished(s State, loser player.Name, finalRoll int) State {
	s2 := State{
		Status:    Finished,
		Host:      s.Host,
		Loser:     loser,
		FinalRoll: finalRoll,
		Winners:   s.Participants.Without(loser),
	}
	return s2
}

// validate ensures the state satisfies the invariants for its status.
func (s State) validate() error {
	switch s.Status {
	case Lobby:
		if len(s.Participants) == 0 {
			return fmt.Errorf("%w: lobby without players", ErrInternal)
		}
	case InProgress:
		switch {
		case s.TurnIndex < 0 || s.TurnIndex >= len(s.Participants):
			return fmt.Errorf("%w: turn index %v out of range for %v players", ErrInternal, s.TurnIndex, len(s.Participants))
		case s.Ceiling < 1:
			return fmt.Errorf("%w: ceiling %v below 1", ErrInternal, s.Ceiling)
		}
	case Finished:
	default:
		return fmt.Errorf("%w: unknown status %v", ErrInternal, int(s.Status))
	}
	return nil
}
