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
	"fmt"
	"strings"
)

// MalformedMigrationError reports a store entry whose identifier cannot be
// parsed, or two entries sharing the same identifier.
type MalformedMigrationError struct {
	File   string
	Reason string
}

func (e *MalformedMigrationError) Error() string {
	return fmt.Sprintf("malformed migration %q: %s", e.File, e.Reason)
}

// EmptyStoreError reports a store that yielded no migrations while the
// caller configured empty stores to be an error.
type EmptyStoreError struct {
	Source string
}

func (e *EmptyStoreError) Error() string {
	return fmt.Sprintf("migration store %q contains no migrations", e.Source)
}

// DriftError reports a migration whose current content no longer matches the
// checksum recorded in the ledger when it was applied.
type DriftError struct {
	Version  string
	Name     string
	Recorded string
	Current  string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("migration %s_%s drifted: ledger checksum %s, current checksum %s",
		e.Version, e.Name, e.Recorded, e.Current)
}

// PreflightError aborts an up() run before any statement executes. It
// aggregates every drifted and orphaned migration found during planning.
type PreflightError struct {
	Drifted  []*DriftError
	Orphaned []string // ledger versions with no matching store migration
}

func (e *PreflightError) Error() string {
	var parts []string
	for _, d := range e.Drifted {
		parts = append(parts, d.Error())
	}
	if len(e.Orphaned) > 0 {
		parts = append(parts, fmt.Sprintf("orphaned ledger entries: %s", strings.Join(e.Orphaned, ", ")))
	}
	return fmt.Sprintf("migration preflight failed: %s", strings.Join(parts, "; "))
}

// ApplyError reports a migration whose statements failed. Migrations applied
// earlier in the same run remain committed.
type ApplyError struct {
	Version   string
	Name      string
	Statement string
	Err       error
}

func (e *ApplyError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("failed to apply migration %s_%s (statement %q): %v",
			e.Version, e.Name, e.Statement, e.Err)
	}
	return fmt.Sprintf("failed to apply migration %s_%s: %v", e.Version, e.Name, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// LockContentionError reports that another runner holds the migration
// advisory lock for the target database.
type LockContentionError struct {
	Key string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("another migration runner holds the advisory lock (%s)", e.Key)
}

// NoDownScriptError reports a down() call targeting a migration that carries
// no down script.
type NoDownScriptError struct {
	Version string
	Name    string
}

func (e *NoDownScriptError) Error() string {
	return fmt.Sprintf("migration %s_%s has no down script", e.Version, e.Name)
}
