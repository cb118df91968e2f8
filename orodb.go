/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package orodb is the embedding entry point: initialize a database from
// configuration and drive migrations programmatically, with the same
// semantics as the orodb command.
package orodb

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/orodb/database"
	"github.com/tomoncle/orodb/migrate"
)

// Init connects the global database using cfg and, when configured, runs
// pending migrations on startup.
func Init(cfg *database.Config) (*bun.DB, error) {
	return database.InitDB(cfg)
}

// InitFromFile loads a YAML configuration file and connects the global
// database.
func InitFromFile(path string) (*bun.DB, error) {
	cfg, err := database.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return database.InitDB(cfg)
}

// Close disconnects the global database.
func Close() error {
	return database.CloseDB()
}

// NewMigrationRunner returns a migration runner over the global database
// connection and the configured migration directory. Extra options override
// the configured defaults.
func NewMigrationRunner(cfg *database.MigrationConfig, opts ...migrate.Option) (*migrate.Runner, error) {
	db := database.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	mc := database.MigrationConfig{Directory: "migrations"}
	if cfg != nil {
		mc = *cfg
	}

	options := []migrate.Option{
		migrate.WithLogger(database.GetLogger()),
		migrate.WithLockWait(mc.LockWait, mc.LockTimeout),
	}
	options = append(options, opts...)

	store := migrate.NewDirStore(mc.Directory, mc.ErrorOnEmpty)
	return migrate.NewRunner(db, store, options...), nil
}

// Up applies every pending migration on the global database.
func Up(ctx context.Context) (*migrate.ApplyResult, error) {
	runner, err := NewMigrationRunner(migrationConfig())
	if err != nil {
		return nil, err
	}
	return runner.Up(ctx, "")
}

// Down reverses the most recently applied migration on the global database.
func Down(ctx context.Context) (*migrate.ApplyResult, error) {
	runner, err := NewMigrationRunner(migrationConfig())
	if err != nil {
		return nil, err
	}
	return runner.Down(ctx, 1)
}

// Status reports the state of every known migration on the global database.
func Status(ctx context.Context) ([]*migrate.MigrationStatus, error) {
	runner, err := NewMigrationRunner(migrationConfig())
	if err != nil {
		return nil, err
	}
	return runner.Status(ctx)
}

func migrationConfig() *database.MigrationConfig {
	if cfg := database.GetConfig(); cfg != nil {
		return &cfg.MigrationConfig
	}
	return nil
}
