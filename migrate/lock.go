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
	"hash/fnv"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// lockName identifies the migration advisory lock. Postgres hashes it to a
// 64-bit key; MySQL uses the string directly.
const lockName = "orodb:migrations"

// locker serializes concurrent runners through a database-level advisory
// lock. The lock is session-scoped, so acquire and release must run on the
// same pinned connection, held through the whole apply loop.
type locker struct {
	conn    bun.Conn
	dialect dialect.Name
	held    bool
}

func newLocker(conn bun.Conn, name dialect.Name) *locker {
	return &locker{conn: conn, dialect: name}
}

func lockKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(lockName))
	return int64(h.Sum64())
}

// acquire takes the advisory lock. When wait is false it fails fast with
// LockContentionError if another session holds the lock; otherwise it blocks
// up to timeout (forever if timeout <= 0).
func (l *locker) acquire(ctx context.Context, wait bool, timeout time.Duration) error {
	switch l.dialect {
	case dialect.PG:
		return l.acquirePostgres(ctx, wait, timeout)
	case dialect.MySQL:
		return l.acquireMySQL(ctx, wait, timeout)
	default:
		// sqlite serializes writers through file locking; nothing to take.
		l.held = true
		return nil
	}
}

func (l *locker) acquirePostgres(ctx context.Context, wait bool, timeout time.Duration) error {
	if !wait {
		var ok bool
		row := l.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(?)", lockKey())
		if err := row.Scan(&ok); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		if !ok {
			return &LockContentionError{Key: lockName}
		}
		l.held = true
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_lock(?)", lockKey()); err != nil {
		if ctx.Err() != nil {
			return &LockContentionError{Key: lockName}
		}
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	l.held = true
	return nil
}

func (l *locker) acquireMySQL(ctx context.Context, wait bool, timeout time.Duration) error {
	seconds := 0
	if wait {
		seconds = int(timeout.Seconds())
		if timeout <= 0 {
			seconds = -1 // wait forever
		}
	}

	var got *int
	row := l.conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName, seconds)
	if err := row.Scan(&got); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if got == nil || *got != 1 {
		return &LockContentionError{Key: lockName}
	}
	l.held = true
	return nil
}

// release frees the advisory lock on the same session that acquired it.
func (l *locker) release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false

	switch l.dialect {
	case dialect.PG:
		if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock(?)", lockKey()); err != nil {
			return fmt.Errorf("failed to release advisory lock: %w", err)
		}
	case dialect.MySQL:
		if _, err := l.conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", lockName); err != nil {
			return fmt.Errorf("failed to release advisory lock: %w", err)
		}
	}
	return nil
}
