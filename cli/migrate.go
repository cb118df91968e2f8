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

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/tomoncle/orodb/migrate"
)

// The Up command applies pending migrations.
type Up struct {
	Target string `kong:"help='Stop after this migration (version or full id).'"`
	DryRun bool   `kong:"help='Report the plan without executing anything.'"`
	Wait   bool   `kong:"help='Block on the advisory lock instead of failing fast.'"`
}

// Run the up command.
func (c *Up) Run(appCtx *Context) error {
	cfg, err := loadConfig(appCtx)
	if err != nil {
		return err
	}
	if c.Wait {
		cfg.MigrationConfig.LockWait = true
	}

	runner, closer, err := openRunner(appCtx, c.DryRun)
	if err != nil {
		return err
	}
	defer closer()

	result, err := runner.Up(context.Background(), c.Target)
	if err != nil {
		return err
	}

	if len(result.Applied) == 0 {
		fmt.Fprintln(appCtx.Stdout, "Nothing to apply, database is up to date.")
		return nil
	}

	verb := "Applied"
	if result.DryRun {
		verb = "Would apply"
	}
	for _, id := range result.Applied {
		fmt.Fprintf(appCtx.Stdout, "%s %s\n", verb, id)
	}
	fmt.Fprintf(appCtx.Stdout, "%d migration(s) in %s (run %s)\n",
		len(result.Applied), result.Duration.Round(time.Millisecond), result.RunID)
	return nil
}

// The Down command reverses applied migrations.
type Down struct {
	Steps int  `kong:"default='1',help='Number of migrations to reverse.'"`
	Wait  bool `kong:"help='Block on the advisory lock instead of failing fast.'"`
}

// Run the down command.
func (c *Down) Run(appCtx *Context) error {
	cfg, err := loadConfig(appCtx)
	if err != nil {
		return err
	}
	if c.Wait {
		cfg.MigrationConfig.LockWait = true
	}

	runner, closer, err := openRunner(appCtx, false)
	if err != nil {
		return err
	}
	defer closer()

	result, err := runner.Down(context.Background(), c.Steps)
	if err != nil {
		return err
	}

	if len(result.Applied) == 0 {
		fmt.Fprintln(appCtx.Stdout, "Nothing to reverse, ledger is empty.")
		return nil
	}
	for _, id := range result.Applied {
		fmt.Fprintf(appCtx.Stdout, "Reversed %s\n", id)
	}
	return nil
}

// The Status command reports the state of every known migration.
type Status struct{}

// Run the status command.
func (c *Status) Run(appCtx *Context) error {
	runner, closer, err := openRunner(appCtx, false)
	if err != nil {
		return err
	}
	defer closer()

	report, err := runner.Status(context.Background())
	if err != nil {
		return err
	}

	if len(report) == 0 {
		fmt.Fprintln(appCtx.Stdout, "No migrations found.")
		return nil
	}

	data := make([][]string, len(report))
	for i, status := range report {
		appliedAt := ""
		if !status.AppliedAt.IsZero() {
			appliedAt = status.AppliedAt.Format("2006-01-02 15:04:05")
		}
		data[i] = []string{
			status.Version,
			status.Name,
			formatState(status.State, appCtx.NoColor),
			appliedAt,
		}
	}

	header := []string{"Version", "Name", "State", "Applied At"}
	return renderTable(header, data, appCtx.Stdout)
}

func formatState(state migrate.MigrationState, noColor bool) string {
	if noColor {
		return string(state)
	}
	switch state {
	case migrate.StateApplied:
		return color.GreenString(string(state))
	case migrate.StatePending:
		return color.YellowString(string(state))
	default:
		return color.RedString(string(state))
	}
}

// The Create command scaffolds a new migration file.
type Create struct {
	Name string `kong:"arg,help='Name of the new migration, e.g. add_users_table.'"`
}

// Run the create command.
func (c *Create) Run(appCtx *Context) error {
	cfg, err := loadConfig(appCtx)
	if err != nil {
		return err
	}

	path, err := migrate.CreateMigration(cfg.MigrationConfig.Directory, c.Name)
	if err != nil {
		return err
	}
	fmt.Fprintf(appCtx.Stdout, "Created %s\n", path)
	return nil
}
