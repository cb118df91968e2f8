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

// Package cli implements the orodb command line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/tomoncle/orodb/database"
	"github.com/tomoncle/orodb/migrate"
)

// Exit codes distinguish the error classes callers script against.
const (
	ExitOK             = 0
	ExitError          = 1
	ExitPreflight      = 3
	ExitApply          = 4
	ExitLockContention = 5
)

// Context carries shared state into command Run methods.
type Context struct {
	ConfigFile string
	Config     *database.Config
	Logger     database.Logger
	Stdout     io.Writer
	NoColor    bool
}

// CLI is the command line interface of orodb.
type CLI struct {
	Up     Up     `kong:"cmd,help='Apply pending migrations in order.'"`
	Down   Down   `kong:"cmd,help='Reverse the most recently applied migrations.'"`
	Status Status `kong:"cmd,help='Report the state of every known migration.'"`
	Create Create `kong:"cmd,help='Scaffold a new migration file.'"`

	ConfigFile string           `kong:"short='c',default='orodb.yaml',help='Path to the configuration file.'"`
	LogLevel   string           `kong:"enum='debug,info,warn,error',default='info',help='Set the logging level.'"`
	NoColor    bool             `kong:"help='Disable colored output.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("orodb"),
		kong.Description("Database migration runner."),
		kong.UsageOnError(),
		kong.DefaultEnvars("ORODB"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{"version": version},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser
	return c, nil
}

// Parse the given command line arguments. Must be called before Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx
	return nil
}

// Execute runs the parsed command.
func (c *CLI) Execute(appCtx *Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	appCtx.ConfigFile = c.ConfigFile
	appCtx.NoColor = c.NoColor
	if appCtx.Stdout == nil {
		appCtx.Stdout = os.Stdout
	}
	return c.kctx.Run(appCtx)
}

// ExitCode maps an error to the process exit code contract: 0 success,
// 3 preflight, 4 apply, 5 lock contention, 1 everything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var preflight *migrate.PreflightError
	var apply *migrate.ApplyError
	var contention *migrate.LockContentionError
	switch {
	case errors.As(err, &preflight):
		return ExitPreflight
	case errors.As(err, &apply):
		return ExitApply
	case errors.As(err, &contention):
		return ExitLockContention
	default:
		return ExitError
	}
}

// loadConfig reads the configuration file, falling back to defaults when the
// file does not exist (environment overrides still apply on connect).
func loadConfig(appCtx *Context) (*database.Config, error) {
	if appCtx.Config != nil {
		return appCtx.Config, nil
	}

	if _, err := os.Stat(appCtx.ConfigFile); err != nil {
		if os.IsNotExist(err) {
			appCtx.Config = database.DefaultConfig()
			return appCtx.Config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := database.LoadConfig(appCtx.ConfigFile)
	if err != nil {
		return nil, err
	}
	appCtx.Config = cfg
	return cfg, nil
}

// openRunner connects to the configured database and builds a migration
// runner over its migration directory. The returned closer disconnects.
func openRunner(appCtx *Context, dryRun bool) (*migrate.Runner, func(), error) {
	cfg, err := loadConfig(appCtx)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.InitDatabaseWithOptions(cfg, false)
	if err != nil {
		return nil, nil, err
	}
	closer := func() { _ = database.CloseDB() }

	// The runner logs each migration itself; raw query echo just repeats it.
	database.EnableSqlSilent(true)

	store := migrate.NewDirStore(cfg.MigrationConfig.Directory, cfg.MigrationConfig.ErrorOnEmpty)
	runner := migrate.NewRunner(db, store,
		migrate.WithLogger(appCtx.Logger),
		migrate.WithLockWait(cfg.MigrationConfig.LockWait, cfg.MigrationConfig.LockTimeout),
		migrate.WithDryRun(dryRun),
	)
	return runner, closer, nil
}
