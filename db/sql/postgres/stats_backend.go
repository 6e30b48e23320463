// Package postgres stores the totals of players and the snapshots of games in a Postgres SQL Database.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"

	"github.com/jacobpatterson1549/deathroll/db/sql"
	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/lib/pq"
)

//go:embed sql
var setupFS embed.FS

// setupDir is the directory of the embedded setup files.  The files are run in name order.
const setupDir = "sql"

type (
	// StatsBackend records outcomes and reads the totals of players on a Postgres SQL Database.
	StatsBackend struct {
		Database
		setupFS fs.FS
	}

	// Database contains methods to create, read, update, and delete data.
	Database interface {
		// Setup initializes the database by reading the files.
		Setup(ctx context.Context, files []io.Reader) error
		// Query reads from the database without updating it.
		Query(ctx context.Context, q sql.Query, dest ...interface{}) error
		// Exec makes a change to existing data, creating/modifying/removing it.
		Exec(ctx context.Context, queries ...sql.Query) error
	}
)

// NewStatsBackend creates a StatsBackend on the database.
func NewStatsBackend(d Database) (*StatsBackend, error) {
	if d == nil {
		return nil, fmt.Errorf("creating postgres stats backend: validation: database required")
	}
	sb := StatsBackend{
		Database: d,
		setupFS:  setupFS,
	}
	return &sb, nil
}

// Setup creates the tables and functions used to store the totals.
func (sb *StatsBackend) Setup(ctx context.Context) error {
	if err := setup(ctx, sb.Database, sb.setupFS); err != nil {
		return fmt.Errorf("setting up stats tables: %w", err)
	}
	return nil
}

// setup runs the files in the setup directory of the file system on the database.
func setup(ctx context.Context, d Database, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, setupDir)
	if err != nil {
		return fmt.Errorf("reading setup files: %w", err)
	}
	files := make([]io.Reader, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := fsys.Open(path.Join(setupDir, e.Name()))
		if err != nil {
			return fmt.Errorf("opening setup file %v: %w", e.Name(), err)
		}
		defer f.Close()
		files = append(files, f)
	}
	return d.Setup(ctx, files)
}

// RecordOutcome stores the outcome and increments the totals of its participants in one transaction.
// The totals are incremented in player name order so concurrent outcomes do not deadlock.
func (sb *StatsBackend) RecordOutcome(ctx context.Context, o stats.Outcome) error {
	increments := o.Increments()
	names := make([]string, 0, len(increments))
	for pn := range increments {
		names = append(names, string(pn))
	}
	sort.Strings(names)
	queries := make([]sql.Query, 0, 1+len(names))
	queries = append(queries, sql.NewExecFunction("outcome_record",
		o.SessionID,
		pq.Array(names),
		pq.Array(o.Winners.Strings()),
		string(o.Loser),
		o.FinalRoll,
		o.Abandoned,
		o.FinishedAt,
	))
	for _, name := range names {
		inc := increments[player.Name(name)]
		queries = append(queries, sql.NewExecFunction("player_stats_increment", name, inc.Wins, inc.Losses, inc.Abandoned))
	}
	if err := sb.Database.Exec(ctx, queries...); err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return nil
}

// Read gets the totals of the player.  Players without any recorded games have zero totals.
func (sb *StatsBackend) Read(ctx context.Context, pn player.Name) (*stats.PlayerStats, error) {
	cols := []string{
		"wins",
		"losses",
		"abandoned",
	}
	q := sql.NewQueryFunction("player_stats_read", cols, string(pn))
	ps := stats.PlayerStats{
		Player: pn,
	}
	if err := sb.Database.Query(ctx, q, &ps.Wins, &ps.Losses, &ps.Abandoned); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reading player stats: %w", err)
		}
	}
	return &ps, nil
}
