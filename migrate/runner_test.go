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

package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ledgerCount(t *testing.T, db *bun.DB) int {
	t.Helper()
	count, err := db.NewSelect().Model((*LedgerEntry)(nil)).Count(context.Background())
	require.NoError(t, err)
	return count
}

func statesByID(report []*MigrationStatus) map[string]MigrationState {
	out := make(map[string]MigrationState, len(report))
	for _, s := range report {
		out[s.ID()] = s.State
	}
	return out
}

func TestUpFreshDatabase(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id INTEGER);"},
		&Migration{Version: "0002", Name: "add_col", UpSQL: "ALTER TABLE t ADD COLUMN name TEXT;"},
	)
	runner := NewRunner(db, store)

	result, err := runner.Up(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init", "0002_add_col"}, result.Applied)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, ledgerCount(t, db))

	report, err := runner.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 2)
	for _, s := range report {
		assert.Equal(t, StateApplied, s.State)
		assert.False(t, s.AppliedAt.IsZero())
	}
}

func TestUpIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id INTEGER);"},
	)
	runner := NewRunner(db, store)

	first, err := runner.Up(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first.Applied, 1)

	second, err := runner.Up(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 1, ledgerCount(t, db))
}

func TestUpHaltsOnFailure(t *testing.T) {
	db := newTestDB(t)

	migrations := make([]*Migration, 0, 5)
	for i := 1; i <= 5; i++ {
		up := fmt.Sprintf("CREATE TABLE t%d (id INTEGER);", i)
		if i == 3 {
			up += "\nTHIS IS NOT SQL;"
		}
		migrations = append(migrations, &Migration{
			Version: fmt.Sprintf("%04d", i),
			Name:    fmt.Sprintf("step%d", i),
			UpSQL:   up,
		})
	}
	runner := NewRunner(db, NewMemStore(migrations...))

	_, err := runner.Up(context.Background(), "")
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "0003", applyErr.Version)
	assert.NotEmpty(t, applyErr.Statement)

	// Prior successes stand, the failed migration left nothing behind.
	assert.Equal(t, 2, ledgerCount(t, db))
	report, err := runner.Status(context.Background())
	require.NoError(t, err)
	states := statesByID(report)
	assert.Equal(t, StateApplied, states["0001_step1"])
	assert.Equal(t, StateApplied, states["0002_step2"])
	assert.Equal(t, StatePending, states["0003_step3"])
	assert.Equal(t, StatePending, states["0004_step4"])
	assert.Equal(t, StatePending, states["0005_step5"])

	// The failed migration's own statements rolled back with it.
	var exists int
	err = db.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 't3'").
		Scan(context.Background(), &exists)
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestUpDriftFailsPreflight(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(db, NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id INTEGER);"},
	))
	_, err := runner.Up(context.Background(), "")
	require.NoError(t, err)

	// Same migration, edited after it was applied.
	drifted := NewRunner(db, NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id TEXT);"},
		&Migration{Version: "0002", Name: "next", UpSQL: "CREATE TABLE u (id INTEGER);"},
	))

	report, err := drifted.Status(context.Background())
	require.NoError(t, err)
	states := statesByID(report)
	assert.Equal(t, StateDrifted, states["0001_init"])
	assert.Equal(t, StatePending, states["0002_next"])

	_, err = drifted.Up(context.Background(), "")
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
	require.Len(t, preflight.Drifted, 1)
	assert.Equal(t, "0001", preflight.Drifted[0].Version)

	// Preflight failure touched nothing: the pending migration stayed pending.
	assert.Equal(t, 1, ledgerCount(t, db))
}

func TestUpOrphanFailsPreflight(t *testing.T) {
	db := newTestDB(t)
	full := NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id INTEGER);"},
		&Migration{Version: "0002", Name: "extra", UpSQL: "CREATE TABLE u (id INTEGER);"},
	)
	_, err := NewRunner(db, full).Up(context.Background(), "")
	require.NoError(t, err)

	// Store no longer knows 0002.
	shrunk := NewRunner(db, NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id INTEGER);"},
	))

	report, err := shrunk.Status(context.Background())
	require.NoError(t, err)
	states := statesByID(report)
	assert.Equal(t, StateApplied, states["0001_init"])
	assert.Equal(t, StateOrphaned, states["0002_extra"])

	_, err = shrunk.Up(context.Background(), "")
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
	assert.Equal(t, []string{"0002_extra"}, preflight.Orphaned)
}

func TestUpTarget(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{Version: "0001", Name: "a", UpSQL: "CREATE TABLE a (id INTEGER);"},
		&Migration{Version: "0002", Name: "b", UpSQL: "CREATE TABLE b (id INTEGER);"},
		&Migration{Version: "0003", Name: "c", UpSQL: "CREATE TABLE c (id INTEGER);"},
	)
	runner := NewRunner(db, store)

	result, err := runner.Up(context.Background(), "0002")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a", "0002_b"}, result.Applied)

	// Full-id targets work too, and the rest applies later.
	result, err = runner.Up(context.Background(), "0003_c")
	require.NoError(t, err)
	assert.Equal(t, []string{"0003_c"}, result.Applied)

	_, err = runner.Up(context.Background(), "0009")
	assert.Error(t, err)
}

func TestUpDryRun(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id INTEGER);"},
		&Migration{Version: "0002", Name: "add_col", UpSQL: "ALTER TABLE t ADD COLUMN name TEXT;"},
	)
	runner := NewRunner(db, store, WithDryRun(true))

	result, err := runner.Up(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, []string{"0001_init", "0002_add_col"}, result.Applied)

	// Nothing was executed, not even the ledger bootstrap.
	report, err := runner.Status(context.Background())
	require.NoError(t, err)
	for _, s := range report {
		assert.Equal(t, StatePending, s.State)
	}
}

func TestDown(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{
			Version: "0001", Name: "init",
			UpSQL:   "CREATE TABLE t (id INTEGER);",
			DownSQL: "DROP TABLE t;",
		},
		&Migration{
			Version: "0002", Name: "extra",
			UpSQL:   "CREATE TABLE u (id INTEGER);",
			DownSQL: "DROP TABLE u;",
		},
	)
	runner := NewRunner(db, store)

	_, err := runner.Up(context.Background(), "")
	require.NoError(t, err)

	result, err := runner.Down(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_extra"}, result.Applied)
	assert.Equal(t, 1, ledgerCount(t, db))

	report, err := runner.Status(context.Background())
	require.NoError(t, err)
	states := statesByID(report)
	assert.Equal(t, StateApplied, states["0001_init"])
	assert.Equal(t, StatePending, states["0002_extra"])

	// Reversed migrations can be applied again.
	again, err := runner.Up(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_extra"}, again.Applied)
}

func TestDownMultipleSteps(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{Version: "0001", Name: "a", UpSQL: "CREATE TABLE a (id INTEGER);", DownSQL: "DROP TABLE a;"},
		&Migration{Version: "0002", Name: "b", UpSQL: "CREATE TABLE b (id INTEGER);", DownSQL: "DROP TABLE b;"},
	)
	runner := NewRunner(db, store)

	_, err := runner.Up(context.Background(), "")
	require.NoError(t, err)

	result, err := runner.Down(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_b", "0001_a"}, result.Applied)
	assert.Equal(t, 0, ledgerCount(t, db))
}

func TestDownWithoutScript(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{Version: "0001", Name: "init", UpSQL: "CREATE TABLE t (id INTEGER);"},
	)
	runner := NewRunner(db, store)

	_, err := runner.Up(context.Background(), "")
	require.NoError(t, err)

	_, err = runner.Down(context.Background(), 1)
	var noDown *NoDownScriptError
	require.ErrorAs(t, err, &noDown)
	assert.Equal(t, "0001", noDown.Version)

	// The failed call reversed nothing.
	assert.Equal(t, 1, ledgerCount(t, db))
}

func TestDownInvalidSteps(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(db, NewMemStore())

	_, err := runner.Down(context.Background(), 0)
	assert.Error(t, err)
}

func TestStatusEmptyStoreAndLedger(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(db, NewMemStore())

	report, err := runner.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestUpMalformedStoreFailsBeforeConnecting(t *testing.T) {
	db := newTestDB(t)
	store := NewMemStore(
		&Migration{Version: "0001", Name: "a", UpSQL: "SELECT 1;"},
		&Migration{Version: "0001", Name: "b", UpSQL: "SELECT 2;"},
	)
	runner := NewRunner(db, store)

	_, err := runner.Up(context.Background(), "")
	var malformed *MalformedMigrationError
	require.ErrorAs(t, err, &malformed)
}
