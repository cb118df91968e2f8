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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the key/value logging interface accepted by the runner. Fields
// are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MigrationState tags one migration in a status report.
type MigrationState string

const (
	StateApplied  MigrationState = "applied"
	StatePending  MigrationState = "pending"
	StateDrifted  MigrationState = "drifted"
	StateOrphaned MigrationState = "orphaned"
)

// MigrationStatus is one row of a status report.
type MigrationStatus struct {
	Version   string         `json:"version"`
	Name      string         `json:"name"`
	State     MigrationState `json:"state"`
	Checksum  string         `json:"checksum"`
	AppliedAt time.Time      `json:"applied_at,omitempty"`
}

// ID returns the "version_name" identifier of the reported migration.
func (s *MigrationStatus) ID() string {
	return s.Version + "_" + s.Name
}

// ApplyResult summarizes one successful up() or down() invocation.
type ApplyResult struct {
	RunID    string        `json:"run_id"`
	Applied  []string      `json:"applied"` // migration IDs in apply order
	Duration time.Duration `json:"duration"`
	DryRun   bool          `json:"dry_run,omitempty"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger. A nil logger disables logging.
func WithLogger(logger Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithLockWait makes lock acquisition block up to timeout instead of failing
// fast. A timeout <= 0 waits indefinitely.
func WithLockWait(wait bool, timeout time.Duration) Option {
	return func(r *Runner) {
		r.lockWait = wait
		r.lockTimeout = timeout
	}
}

// WithDryRun makes Up report the plan without executing any statement.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// Runner computes the pending migration plan and applies it in order, one
// transaction per migration, serialized across processes by an advisory
// lock. The last applied version is always derived fresh from the ledger;
// the runner keeps no state between calls.
type Runner struct {
	db          *bun.DB
	store       Store
	logger      Logger
	lockWait    bool
	lockTimeout time.Duration
	dryRun      bool
}

// NewRunner returns a runner applying migrations from store against db.
func NewRunner(db *bun.DB, store Store, opts ...Option) *Runner {
	r := &Runner{db: db, store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status tags every known migration Applied, Pending, Drifted, or Orphaned.
// Pure read: it takes no lock and creates nothing, a missing ledger table is
// reported as all-pending.
func (r *Runner) Status(ctx context.Context) ([]*MigrationStatus, error) {
	migrations, err := r.store.ListAll()
	if err != nil {
		return nil, err
	}

	applied, err := r.listAppliedOrEmpty(ctx, r.db)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*LedgerEntry, len(applied))
	for _, entry := range applied {
		byVersion[entry.Version] = entry
	}

	var report []*MigrationStatus
	seen := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		seen[m.Version] = true
		status := &MigrationStatus{
			Version:  m.Version,
			Name:     m.Name,
			State:    StatePending,
			Checksum: m.Checksum,
		}
		if entry, ok := byVersion[m.Version]; ok {
			status.AppliedAt = entry.AppliedAt
			if entry.Checksum == m.Checksum {
				status.State = StateApplied
			} else {
				status.State = StateDrifted
			}
		}
		report = append(report, status)
	}

	for _, entry := range applied {
		if seen[entry.Version] {
			continue
		}
		report = append(report, &MigrationStatus{
			Version:   entry.Version,
			Name:      entry.Name,
			State:     StateOrphaned,
			Checksum:  entry.Checksum,
			AppliedAt: entry.AppliedAt,
		})
	}

	return report, nil
}

// Up applies every pending migration up to target (all of them when target
// is empty). Planning runs under the advisory lock; any drifted or orphaned
// migration aborts with PreflightError before a single statement executes.
// Each migration is applied in its own transaction together with its ledger
// entry, so a failure preserves everything applied earlier in the run.
func (r *Runner) Up(ctx context.Context, target string) (*ApplyResult, error) {
	start := time.Now()
	result := &ApplyResult{RunID: uuid.NewString(), DryRun: r.dryRun}

	migrations, err := r.store.ListAll()
	if err != nil {
		return nil, err
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	lk := newLocker(conn, r.db.Dialect().Name())
	if err := lk.acquire(ctx, r.lockWait, r.lockTimeout); err != nil {
		return nil, err
	}
	defer func() { _ = lk.release(context.WithoutCancel(ctx)) }()

	ledger := NewLedger(conn)
	var applied []*LedgerEntry
	if r.dryRun {
		// Dry runs execute nothing, not even the ledger bootstrap.
		applied, err = r.listAppliedOrEmpty(ctx, conn)
	} else {
		if err = ledger.EnsureInitialized(ctx); err != nil {
			return nil, err
		}
		applied, err = ledger.ListApplied(ctx)
	}
	if err != nil {
		return nil, err
	}

	plan, err := r.plan(migrations, applied, target)
	if err != nil {
		return nil, err
	}

	if len(plan) == 0 {
		r.info("No pending migrations", "run_id", result.RunID)
		result.Duration = time.Since(start)
		return result, nil
	}

	if r.dryRun {
		for _, m := range plan {
			r.info("Would apply migration", "run_id", result.RunID, "migration", m.ID())
			result.Applied = append(result.Applied, m.ID())
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	for _, m := range plan {
		r.info("Applying migration", "run_id", result.RunID, "migration", m.ID())
		if err := r.applyOne(ctx, conn, ledger, m); err != nil {
			r.error("Migration failed", "run_id", result.RunID, "migration", m.ID(), "error", err)
			return nil, err
		}
		result.Applied = append(result.Applied, m.ID())
	}

	result.Duration = time.Since(start)
	r.info("Migrations completed", "run_id", result.RunID,
		"applied", len(result.Applied), "duration", result.Duration)
	return result, nil
}

// plan computes the ordered pending set and validates the ledger against the
// store. Any drift or orphan fails the whole run here, before any statement.
func (r *Runner) plan(migrations []*Migration, applied []*LedgerEntry, target string) ([]*Migration, error) {
	byVersion := make(map[string]*Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	preflight := &PreflightError{}
	appliedVersions := make(map[string]bool, len(applied))
	for _, entry := range applied {
		appliedVersions[entry.Version] = true
		m, ok := byVersion[entry.Version]
		if !ok {
			preflight.Orphaned = append(preflight.Orphaned, entry.Version+"_"+entry.Name)
			continue
		}
		if entry.Checksum != m.Checksum {
			preflight.Drifted = append(preflight.Drifted, &DriftError{
				Version:  m.Version,
				Name:     m.Name,
				Recorded: entry.Checksum,
				Current:  m.Checksum,
			})
		}
	}
	if len(preflight.Drifted) > 0 || len(preflight.Orphaned) > 0 {
		return nil, preflight
	}

	targetVersion := ""
	if target != "" {
		targetVersion = strings.SplitN(target, "_", 2)[0]
		if _, ok := byVersion[targetVersion]; !ok {
			return nil, fmt.Errorf("unknown target migration %q", target)
		}
	}

	var plan []*Migration
	for _, m := range migrations {
		if appliedVersions[m.Version] {
			continue
		}
		if targetVersion != "" && m.Version > targetVersion {
			break
		}
		plan = append(plan, m)
	}
	return plan, nil
}

// applyOne executes one migration's statements and its ledger record inside
// a single transaction on the pinned connection.
func (r *Runner) applyOne(ctx context.Context, conn bun.Conn, ledger *Ledger, m *Migration) error {
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return &ApplyError{Version: m.Version, Name: m.Name, Err: err}
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range splitStatements(m.UpSQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &ApplyError{Version: m.Version, Name: m.Name, Statement: excerpt(stmt), Err: err}
		}
	}

	if err := ledger.Record(ctx, tx, m); err != nil {
		return &ApplyError{Version: m.Version, Name: m.Name, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &ApplyError{Version: m.Version, Name: m.Name, Err: err}
	}
	committed = true
	return nil
}

// Down reverses the most recently applied steps migrations. Each reversal
// runs in its own transaction with its ledger delete; a targeted migration
// without a down script fails with NoDownScriptError before any reversal
// statement executes.
func (r *Runner) Down(ctx context.Context, steps int) (*ApplyResult, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", steps)
	}

	start := time.Now()
	result := &ApplyResult{RunID: uuid.NewString()}

	migrations, err := r.store.ListAll()
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]*Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	lk := newLocker(conn, r.db.Dialect().Name())
	if err := lk.acquire(ctx, r.lockWait, r.lockTimeout); err != nil {
		return nil, err
	}
	defer func() { _ = lk.release(context.WithoutCancel(ctx)) }()

	ledger := NewLedger(conn)
	if err := ledger.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	applied, err := ledger.ListApplied(ctx)
	if err != nil {
		return nil, err
	}

	if steps > len(applied) {
		steps = len(applied)
	}
	targets := applied[len(applied)-steps:]

	// Validate the whole batch before reversing anything.
	for i := len(targets) - 1; i >= 0; i-- {
		entry := targets[i]
		m, ok := byVersion[entry.Version]
		if !ok {
			return nil, fmt.Errorf("cannot reverse orphaned migration %s_%s: not found in store",
				entry.Version, entry.Name)
		}
		if !m.HasDown() {
			return nil, &NoDownScriptError{Version: m.Version, Name: m.Name}
		}
	}

	for i := len(targets) - 1; i >= 0; i-- {
		m := byVersion[targets[i].Version]
		r.info("Reversing migration", "run_id", result.RunID, "migration", m.ID())
		if err := r.reverseOne(ctx, conn, ledger, m); err != nil {
			r.error("Reversal failed", "run_id", result.RunID, "migration", m.ID(), "error", err)
			return nil, err
		}
		result.Applied = append(result.Applied, m.ID())
	}

	result.Duration = time.Since(start)
	r.info("Reversal completed", "run_id", result.RunID,
		"reversed", len(result.Applied), "duration", result.Duration)
	return result, nil
}

func (r *Runner) reverseOne(ctx context.Context, conn bun.Conn, ledger *Ledger, m *Migration) error {
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return &ApplyError{Version: m.Version, Name: m.Name, Err: err}
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range splitStatements(m.DownSQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &ApplyError{Version: m.Version, Name: m.Name, Statement: excerpt(stmt), Err: err}
		}
	}

	if err := ledger.Remove(ctx, tx, m.Version); err != nil {
		return &ApplyError{Version: m.Version, Name: m.Name, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &ApplyError{Version: m.Version, Name: m.Name, Err: err}
	}
	committed = true
	return nil
}

// listAppliedOrEmpty reads the ledger, treating a missing bookkeeping table
// as an empty ledger so Status stays side-effect free on fresh databases.
func (r *Runner) listAppliedOrEmpty(ctx context.Context, idb bun.IDB) ([]*LedgerEntry, error) {
	entries, err := NewLedger(idb).ListApplied(ctx)
	if err != nil {
		if isNoTableError(err) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

func isNoTableError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no such table") || // sqlite
		strings.Contains(s, "doesn't exist") || // mysql 1146
		strings.Contains(s, "does not exist") // postgres 42p01
}

func (r *Runner) info(msg string, fields ...interface{}) {
	if r.logger != nil {
		r.logger.Info(msg, fields...)
	}
}

func (r *Runner) error(msg string, fields ...interface{}) {
	if r.logger != nil {
		r.logger.Error(msg, fields...)
	}
}
