package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gobandits/adapters/filestore"
	"gobandits/adapters/postgres"
	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/internal/config"
	"gobandits/internal/errors"
	"gobandits/ports"
)

// rosterStore bundles a repository with its optional journal and cleanup
type rosterStore struct {
	repo    ports.RosterRepository
	journal ports.RunJournal
	close   func() error
}

// openDB connects to postgres with the configured pool settings
func (c *cli) openDB(ctx context.Context) (*sqlx.DB, error) {
	if c.cfg.Database.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required for the postgres store")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", c.cfg.Database.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	db.SetMaxOpenConns(c.cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(c.cfg.Database.ConnMaxLifetime)
	return db, nil
}

// openStore resolves a roster location: a file path for the file store, a
// roster name for postgres. An empty location falls back to BANDITS_ROSTER.
func (c *cli) openStore(ctx context.Context, location string) (*rosterStore, error) {
	if location == "" {
		location = c.cfg.Store.Roster
	}

	switch c.cfg.Store.Backend {
	case config.StorePostgres:
		db, err := c.openDB(ctx)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewRosterRepository(db, location)
		return &rosterStore{repo: repo, journal: repo, close: db.Close}, nil
	default:
		return &rosterStore{
			repo:  filestore.NewRosterStore(location),
			close: func() error { return nil },
		}, nil
	}
}

// parseMapping reads a name=command pair
func parseMapping(s string) (arms.Mapping, error) {
	parts := strings.Split(s, "=")
	if len(parts) != 2 {
		return arms.Mapping{}, errors.InvalidInput(fmt.Sprintf("mapping %q should be in the format name=command", s))
	}
	name, err := core.ParseArmName(parts[0])
	if err != nil {
		return arms.Mapping{}, errors.InvalidInput(err.Error())
	}
	command := strings.TrimSpace(parts[1])
	if command == "" {
		return arms.Mapping{}, errors.InvalidInput(fmt.Sprintf("mapping %q has an empty command", s))
	}
	return arms.Mapping{Name: name, Command: command}, nil
}

// rawLoader is implemented by stores that can hold rosters Validate rejects
type rawLoader interface {
	LoadRaw(ctx context.Context) (*arms.Roster, error)
}

func loadUnvalidated(ctx context.Context, repo ports.RosterRepository) (*arms.Roster, error) {
	if raw, ok := repo.(rawLoader); ok {
		return raw.LoadRaw(ctx)
	}
	return repo.Load(ctx)
}
