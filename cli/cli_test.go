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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/orodb/migrate"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitPreflight, ExitCode(&migrate.PreflightError{Orphaned: []string{"0002_x"}}))
	assert.Equal(t, ExitApply, ExitCode(&migrate.ApplyError{Version: "0001", Name: "init"}))
	assert.Equal(t, ExitLockContention, ExitCode(&migrate.LockContentionError{Key: "k"}))

	// Wrapped errors still map to their class.
	wrapped := fmt.Errorf("up failed: %w", &migrate.ApplyError{Version: "0001", Name: "init"})
	assert.Equal(t, ExitApply, ExitCode(wrapped))
}

func TestParseCommands(t *testing.T) {
	c, err := New("test")
	require.NoError(t, err)

	require.NoError(t, c.Parse([]string{"status"}))
	require.NoError(t, c.Parse([]string{"up", "--target", "0002", "--dry-run"}))
	assert.Equal(t, "0002", c.Up.Target)
	assert.True(t, c.Up.DryRun)

	require.NoError(t, c.Parse([]string{"down", "--steps", "3"}))
	assert.Equal(t, 3, c.Down.Steps)

	require.NoError(t, c.Parse([]string{"create", "add_users"}))
	assert.Equal(t, "add_users", c.Create.Name)

	assert.Error(t, c.Parse([]string{"bogus"}))
}
