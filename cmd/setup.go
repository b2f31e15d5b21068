package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/urfave/cli/v3"
)

// configAt loads path, writing the embedded template first when no file exists there.
// Any failure falls back to the defaults so setup can still create the store.
func (r *Runner) configAt(path string) *shared.Config {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := shared.CreateConfigFile(path); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "path", path, "error", err)
			return shared.DefaultConfig()
		}
		r.logger.Info("config file created from template", "path", path)
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "path", path, "error", err)
		return shared.DefaultConfig()
	}
	return config
}

// SetupDatabase creates the local store and brings it to the latest schema, or rolls back one version.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.configAt(cmd.String("config"))
	path := config.Database.Path

	db, err := shared.NewDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration", "path", path)
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
	} else {
		r.logger.Info("running database migrations", "path", path)
		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	version, err := shared.SchemaVersion(db)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Database at %s is at schema version %d\n", path, version)
}
