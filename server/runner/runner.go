// Package runner is used to run parts of the server once and only once.
package runner

import (
	"errors"
	"sync"
)

// ErrAlreadyRun is returned when something that can only be run once is run again.
var ErrAlreadyRun = errors.New("already running or has finished running, it can only be run once")

type (
	// Runner is a thread-safe structure that can be run, finished, and queried.
	// The zero value is ready to be run.
	Runner struct {
		mu    sync.Mutex
		state state
	}

	// state is where a Runner is in its life.
	state int
)

const (
	notRun state = iota
	running
	finished
)

// Run marks the runner as running.  ErrAlreadyRun is returned if it has been run before.
func (r *Runner) Run() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != notRun {
		return ErrAlreadyRun
	}
	r.state = running
	return nil
}

// Finish marks the runner as done, regardless if it ran.
func (r *Runner) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = finished
}

// IsRunning determines if the runner is running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == running
}
