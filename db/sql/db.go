// Package sql implements a SQL database.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/jacobpatterson1549/deathroll/db"
)

type (
	// Database is a SQL database with additional configuration.
	Database struct {
		DB *sql.DB
		db.Config
	}

	// DatabaseConfig contains the properties to open a Database.
	DatabaseConfig struct {
		// DriverName is the name of the registered driver used to open the database, such as "postgres".
		DriverName string
		// DatabaseURL is the data source name passed to the driver.
		DatabaseURL string
		db.Config
	}
)

// ErrNoRows is returned by Query when there are no rows to scan.
var ErrNoRows = sql.ErrNoRows

// NewDatabase opens a Database from the configuration.
func (cfg DatabaseConfig) NewDatabase() (*Database, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("creating sql database: validation: %w", err)
	}
	sqlDB, err := sql.Open(cfg.DriverName, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database %w", err)
	}
	d := Database{
		DB:     sqlDB,
		Config: cfg.Config,
	}
	return &d, nil
}

// validate ensures the configuration has no errors.
func (cfg DatabaseConfig) validate() error {
	switch {
	case len(cfg.DriverName) == 0:
		return fmt.Errorf("driver name required")
	case len(cfg.DatabaseURL) == 0:
		return fmt.Errorf("database url required")
	}
	return cfg.Config.Validate()
}

// Setup initializes the database by reading the files and executing their contents as raw queries.
func (d Database) Setup(ctx context.Context, files []io.Reader) error {
	queries := make([]Query, len(files))
	for i, f := range files {
		b, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("reading sql setup query %v: %w", i, err)
		}
		queries[i] = RawQuery(b)
	}
	if err := d.Exec(ctx, queries...); err != nil {
		return fmt.Errorf("running setup queries %w", err)
	}
	return nil
}

// Query queries a single row, scanning into the destination array.
// An error wrapping ErrNoRows is returned if the query has no results.
func (d Database) Query(ctx context.Context, q Query, dest ...interface{}) error {
	ctx, cancelFunc := context.WithTimeout(ctx, d.QueryPeriod)
	defer cancelFunc()
	row := d.DB.QueryRowContext(ctx, q.Cmd(), q.Args()...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("querying into destination arguments: %w", err)
	}
	return nil
}

// Exec evaluates multiple queries in a transaction, ensuring each ExecFunction only updates one row.
func (d Database) Exec(ctx context.Context, queries ...Query) error {
	ctx, cancelFunc := context.WithTimeout(ctx, d.QueryPeriod)
	defer cancelFunc()
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	for i, q := range queries {
		result, err := tx.ExecContext(ctx, q.Cmd(), q.Args()...)
		if f, ok := q.(ExecFunction); err == nil && ok {
			var n int64
			n, err = result.RowsAffected()
			if err == nil && n != 1 {
				err = fmt.Errorf("wanted to update 1 row, but updated %d when calling %s", n, f.name)
			}
		}
		if err != nil {
			err = fmt.Errorf("executing query %v: %w", i, err)
			if err2 := tx.Rollback(); err2 != nil {
				return fmt.Errorf("rolling back transaction due to %v: %w", err, err2)
			}
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the connections to the database.
func (d Database) Close() error {
	return d.DB.Close()
}
