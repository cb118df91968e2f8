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
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// LedgerEntry is one row of the bookkeeping table: a migration recorded as
// applied, with the checksum of its content at apply time. Never mutated
// after insert except by an explicit down().
type LedgerEntry struct {
	bun.BaseModel `bun:"table:orodb_migrations,alias:om"`

	Version   string    `bun:"version,pk" json:"version"`
	Name      string    `bun:"name,notnull" json:"name"`
	Checksum  string    `bun:"checksum,notnull" json:"checksum"`
	AppliedAt time.Time `bun:"applied_at,notnull,default:current_timestamp" json:"applied_at"`
	Success   bool      `bun:"success,notnull" json:"success"`
}

// Ledger is the persisted record of applied migrations, stored in the target
// database itself so that schema changes and bookkeeping commit together.
type Ledger struct {
	db bun.IDB
}

// NewLedger returns a ledger over db. db may be a *bun.DB or a pinned Conn.
func NewLedger(db bun.IDB) *Ledger {
	return &Ledger{db: db}
}

// EnsureInitialized creates the bookkeeping table if absent. Idempotent.
func (l *Ledger) EnsureInitialized(ctx context.Context) error {
	_, err := l.db.NewCreateTable().
		Model((*LedgerEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize migration ledger: %w", err)
	}
	return nil
}

// ListApplied returns all ledger entries ordered by apply time, then version
// to break ties within one run.
func (l *Ledger) ListApplied(ctx context.Context) ([]*LedgerEntry, error) {
	var entries []*LedgerEntry
	err := l.db.NewSelect().
		Model(&entries).
		Order("applied_at ASC", "version ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	return entries, nil
}

// Record inserts a ledger entry for m using idb, which must be the same
// transaction that executes the migration's own statements so the entry
// rolls back with them.
func (l *Ledger) Record(ctx context.Context, idb bun.IDB, m *Migration) error {
	entry := &LedgerEntry{
		Version:   m.Version,
		Name:      m.Name,
		Checksum:  m.Checksum,
		AppliedAt: time.Now().UTC(),
		Success:   true,
	}
	if _, err := idb.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.ID(), err)
	}
	return nil
}

// Remove deletes the ledger entry for version using idb, which must be the
// same transaction that executes the reversal statements.
func (l *Ledger) Remove(ctx context.Context, idb bun.IDB, version string) error {
	_, err := idb.NewDelete().
		Model((*LedgerEntry)(nil)).
		Where("version = ?", version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove ledger entry %s: %w", version, err)
	}
	return nil
}
