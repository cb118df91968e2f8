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
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	sum := Checksum("CREATE TABLE t (id INTEGER);")
	assert.Len(t, sum, 16)
	assert.Equal(t, sum, Checksum("CREATE TABLE t (id INTEGER);"))
	assert.NotEqual(t, sum, Checksum("CREATE TABLE t (id TEXT);"))
}

func TestChecksumNormalizesLineEndings(t *testing.T) {
	unix := "CREATE TABLE t (\n  id INTEGER\n);"
	windows := "CREATE TABLE t (\r\n  id INTEGER\r\n);"
	assert.Equal(t, Checksum(unix), Checksum(windows))
}

func TestFSStoreOrdering(t *testing.T) {
	fsys := fstest.MapFS{
		"0003_third.sql":  {Data: []byte("SELECT 3;")},
		"0001_first.sql":  {Data: []byte("SELECT 1;")},
		"0002_second.sql": {Data: []byte("SELECT 2;")},
		"README.md":       {Data: []byte("not a migration")},
	}

	migrations, err := NewFSStore(fsys, "test", false).ListAll()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, "0001_first", migrations[0].ID())
	assert.Equal(t, "0002_second", migrations[1].ID())
	assert.Equal(t, "0003_third", migrations[2].ID())
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}

func TestFSStoreDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_first.sql": {Data: []byte("SELECT 1;")},
		"0001_other.sql": {Data: []byte("SELECT 2;")},
	}

	_, err := NewFSStore(fsys, "test", false).ListAll()
	var malformed *MalformedMigrationError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Reason, "duplicate version")
}

func TestFSStoreMixedVersionWidths(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_first.sql": {Data: []byte("SELECT 1;")},
		"2_second.sql":   {Data: []byte("SELECT 2;")},
	}

	_, err := NewFSStore(fsys, "test", false).ListAll()
	var malformed *MalformedMigrationError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Reason, "width")
}

func TestFSStoreUnparsableName(t *testing.T) {
	fsys := fstest.MapFS{
		"init.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := NewFSStore(fsys, "test", false).ListAll()
	var malformed *MalformedMigrationError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "init.sql", malformed.File)
}

func TestFSStoreEmptyUpScript(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_empty.sql": {Data: []byte("\n-- DOWN\nDROP TABLE t;")},
	}

	_, err := NewFSStore(fsys, "test", false).ListAll()
	var malformed *MalformedMigrationError
	require.ErrorAs(t, err, &malformed)
}

func TestFSStoreEmpty(t *testing.T) {
	migrations, err := NewFSStore(fstest.MapFS{}, "test", false).ListAll()
	require.NoError(t, err)
	assert.Empty(t, migrations)

	_, err = NewFSStore(fstest.MapFS{}, "test", true).ListAll()
	var empty *EmptyStoreError
	require.ErrorAs(t, err, &empty)
}

func TestFSStoreDownSplit(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_init.sql": {Data: []byte("CREATE TABLE t (id INTEGER);\n-- DOWN\nDROP TABLE t;\n")},
		"0002_data.sql": {Data: []byte("INSERT INTO t VALUES (1);")},
	}

	migrations, err := NewFSStore(fsys, "test", false).ListAll()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Contains(t, migrations[0].UpSQL, "CREATE TABLE")
	assert.Contains(t, migrations[0].DownSQL, "DROP TABLE")
	assert.True(t, migrations[0].HasDown())

	assert.False(t, migrations[1].HasDown())
	// Checksum covers the up script only, so adding a down script later
	// must not trigger drift.
	assert.Equal(t, Checksum(migrations[0].UpSQL), migrations[0].Checksum)
}

func TestDirStoreMissingDirectory(t *testing.T) {
	migrations, err := NewDirStore(filepath.Join(t.TempDir(), "nope"), false).ListAll()
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestDirStoreReadsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "0001_init.sql"),
		[]byte("CREATE TABLE t (id INTEGER);"), 0o644))

	migrations, err := NewDirStore(dir, false).ListAll()
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, "0001_init", migrations[0].ID())
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateMigration(dir, "init schema")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "0001_init_schema.sql"), path)

	path, err = CreateMigration(dir, "add-users")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "0002_add-users.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), downMarker)

	_, err = CreateMigration(dir, "")
	assert.Error(t, err)
	_, err = CreateMigration(dir, "bad/name")
	assert.Error(t, err)
}

func TestMemStoreDuplicate(t *testing.T) {
	store := NewMemStore(
		&Migration{Version: "0001", Name: "a", UpSQL: "SELECT 1;"},
		&Migration{Version: "0001", Name: "b", UpSQL: "SELECT 2;"},
	)
	_, err := store.ListAll()
	var malformed *MalformedMigrationError
	require.ErrorAs(t, err, &malformed)
}

func TestSplitStatements(t *testing.T) {
	script := `-- comment
CREATE TABLE t (
  id INTEGER
);

INSERT INTO t VALUES (1);
INSERT INTO t VALUES (2)`

	statements := splitStatements(script)
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0], "CREATE TABLE")
	assert.Equal(t, "INSERT INTO t VALUES (2)", statements[2])
}
