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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKeyStable(t *testing.T) {
	assert.Equal(t, lockKey(), lockKey())
	assert.NotZero(t, lockKey())
}

func TestLockerSQLiteNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	lk := newLocker(conn, db.Dialect().Name())
	require.NoError(t, lk.acquire(ctx, false, 0))
	assert.True(t, lk.held)
	require.NoError(t, lk.release(ctx))
	assert.False(t, lk.held)

	// Releasing twice is harmless.
	require.NoError(t, lk.release(ctx))
}

func TestLockContentionErrorMessage(t *testing.T) {
	err := &LockContentionError{Key: lockName}
	assert.Contains(t, err.Error(), lockName)
}

func TestLockWaitOption(t *testing.T) {
	r := NewRunner(nil, NewMemStore(), WithLockWait(true, time.Second*5))
	assert.True(t, r.lockWait)
	assert.Equal(t, time.Second*5, r.lockTimeout)
}
