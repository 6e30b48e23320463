// Package roll produces bounded random numbers for the dice in a game.
package roll

import (
	crypto_rand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ErrInvalidRange is returned when a roll is requested with a ceiling below 1.
var ErrInvalidRange = errors.New("invalid roll range")

type (
	// Roller rolls a number between 1 and the ceiling, inclusive.
	Roller interface {
		Roll(ceiling int) (int, error)
	}

	// Func is a function that implements Roller.
	Func func(ceiling int) (int, error)

	// Random rolls numbers from a pseudo-random source.  It is safe for concurrent use.
	Random struct {
		mu   sync.Mutex
		rand *rand.Rand
	}

	// Sequence is a Roller that returns scripted values in order, repeating the last value once the others are used.
	Sequence struct {
		mu     sync.Mutex
		values []int
		index  int
	}
)

// Roll implements Roller.
func (f Func) Roll(ceiling int) (int, error) {
	return f(ceiling)
}

// NewSeed creates a seed for a Random roller from a cryptographically secure source.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crypto_rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("reading random seed: %w", err)
	}
	seed := int64(binary.BigEndian.Uint64(b[:]))
	return seed, nil
}

// NewRandom creates a Random roller from the seed.
func NewRandom(seed int64) *Random {
	r := Random{
		rand: rand.New(rand.NewSource(seed)),
	}
	return &r
}

// Roll rolls a number in [1, ceiling].
func (r *Random) Roll(ceiling int) (int, error) {
	if err := validate(ceiling); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.rand.Intn(ceiling) + 1
	return n, nil
}

// NewSequence creates a Roller that rolls the values in order.
func NewSequence(values ...int) *Sequence {
	s := Sequence{
		values: values,
	}
	return &s
}

// Roll returns the next scripted value.  An error is returned if the value is not in [1, ceiling].
func (s *Sequence) Roll(ceiling int) (int, error) {
	if err := validate(ceiling); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0, fmt.Errorf("no rolls scripted")
	}
	i := s.index
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	s.index++
	n := s.values[i]
	if n < 1 || n > ceiling {
		return 0, fmt.Errorf("scripted roll %v is not in [1, %v]: %w", n, ceiling, ErrInvalidRange)
	}
	return n, nil
}

// validate ensures the ceiling can be rolled.
func validate(ceiling int) error {
	if ceiling < 1 {
		return fmt.Errorf("ceiling %v: %w", ceiling, ErrInvalidRange)
	}
	return nil
}
