package database

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/checkfox/go_lead_adapter/internal/config"
)

// ConfigFrom maps the application database settings onto a pool Config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}
}

// InitFromConfig initializes a database connection from application config
func InitFromConfig(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := New(ctx, ConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// RunMigrations applies every pending embedded migration
func RunMigrations(ctx context.Context, db *DB) error {
	runner := NewMigrationRunner(db, EmbeddedMigrations())
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationCheck is a health check that fails while any migration from its
// source is still unapplied
type MigrationCheck struct {
	runner *MigrationRunner
}

// NewMigrationCheck checks db against the migrations in source
func NewMigrationCheck(db *DB, source fs.FS) *MigrationCheck {
	return &MigrationCheck{runner: NewMigrationRunner(db, source)}
}

// HealthCheck lists pending migrations as "NNN_name"
func (c *MigrationCheck) HealthCheck(ctx context.Context) error {
	states, err := c.runner.Status(ctx)
	if err != nil {
		return err
	}

	var pending []string
	for _, state := range states {
		if !state.Applied {
			pending = append(pending, fmt.Sprintf("%03d_%s", state.Version, state.Name))
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("pending migrations: %s", strings.Join(pending, ", "))
	}
	return nil
}
