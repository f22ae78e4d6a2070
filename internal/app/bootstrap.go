package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"jobledger/internal/db"
	"jobledger/internal/migrate"
	"jobledger/internal/seed"
)

type Options struct {
	Workspace string
	// SeedIfEmpty loads the embedded marketplace fixture into a ledger with no profiles.
	SeedIfEmpty bool
	Log         zerolog.Logger
}

// Open opens the workspace database and brings its schema up to date.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if opts.SeedIfEmpty {
		if err := seedIfEmpty(ctx, conn, opts.Log); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func seedIfEmpty(ctx context.Context, conn *sql.DB, log zerolog.Logger) error {
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	f, err := seed.Default()
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, conn, f, seed.Options{}); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	log.Info().Int("profiles", len(f.Profiles)).Int("contracts", len(f.Contracts)).Int("jobs", len(f.Jobs)).Msg("seeded empty ledger")
	return nil
}
