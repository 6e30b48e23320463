// Package db stores the totals of players so they can be retrieved after the server restarts.
package db

import (
	"fmt"
	"time"
)

// Config contains the properties shared by the database backends.
type Config struct {
	// QueryPeriod is the amount of time that any database action can take before it should timeout.
	QueryPeriod time.Duration
}

// Validate ensures the configuration has no errors.
func (cfg Config) Validate() error {
	if cfg.QueryPeriod <= 0 {
		return fmt.Errorf("positive query period required")
	}
	return nil
}
