// Package player identifies the participants of a game.
package player

import (
	"fmt"
	"unicode/utf8"
)

// Name uniquely identifies a player within a game.
type Name string

// MaxNameLength is the maximum number of characters in a name.  Outcomes are stored with names of at most this length.
const MaxNameLength = 32

// Validate ensures the name is not empty and not too long.
func (n Name) Validate() error {
	switch l := utf8.RuneCountInString(string(n)); {
	case l == 0:
		return fmt.Errorf("player name required")
	case l > MaxNameLength:
		return fmt.Errorf("player name must be at most %v characters, got %v", MaxNameLength, l)
	}
	return nil
}

// Names is an ordered sequence of players.
type Names []Name

// Index returns the position of the player in the names, or -1 if the player is absent.
func (names Names) Index(n Name) int {
	for i, n2 := range names {
		if n == n2 {
			return i
		}
	}
	return -1
}

// Contains reports whether the player is one of the names.
func (names Names) Contains(n Name) bool {
	return names.Index(n) >= 0
}

// Without creates a copy of the names with the player removed.
func (names Names) Without(n Name) Names {
	names2 := make(Names, 0, len(names))
	for _, n2 := range names {
		if n != n2 {
			names2 = append(names2, n2)
		}
	}
	return names2
}

// Strings converts the names to strings, which databases can store.
// The result is never nil.
func (names Names) Strings() []string {
	s := make([]string, len(names))
	for i, n := range names {
		s[i] = string(n)
	}
	return s
}
