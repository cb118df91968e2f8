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
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// downMarker separates the up and down scripts inside one migration file.
// Everything after the marker line is the down script.
const downMarker = "-- DOWN"

// fileNamePattern matches "<version>_<name>.sql" with a numeric, zero-padded
// version prefix.
var (
	fileNamePattern = regexp.MustCompile(`^(\d+)_([A-Za-z0-9][A-Za-z0-9_-]*)\.sql$`)
	versionPattern  = regexp.MustCompile(`^\d+$`)
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// Store enumerates candidate migrations and produces a strictly ordered
// sequence. Implementations must return migrations sorted by ascending
// version and fail on duplicate or unparsable identifiers.
type Store interface {
	// ListAll returns every migration in ascending version order.
	ListAll() ([]*Migration, error)
}

// DirStore reads migrations from a directory on the local filesystem.
type DirStore struct {
	dir          string
	errorOnEmpty bool
}

var _ Store = (*DirStore)(nil)

// NewDirStore returns a store reading "<version>_<name>.sql" files from dir.
// When errorOnEmpty is set, ListAll fails with EmptyStoreError instead of
// returning an empty sequence.
func NewDirStore(dir string, errorOnEmpty bool) *DirStore {
	return &DirStore{dir: dir, errorOnEmpty: errorOnEmpty}
}

func (s *DirStore) ListAll() ([]*Migration, error) {
	migrations, err := listFS(os.DirFS(s.dir), s.dir)
	if err != nil {
		return nil, err
	}
	if len(migrations) == 0 && s.errorOnEmpty {
		return nil, &EmptyStoreError{Source: s.dir}
	}
	return migrations, nil
}

// FSStore reads migrations from any fs.FS, e.g. an embed.FS or a test map
// filesystem. Source labels the filesystem in error messages.
type FSStore struct {
	fsys         fs.FS
	source       string
	errorOnEmpty bool
}

var _ Store = (*FSStore)(nil)

// NewFSStore returns a store reading migration files from the root of fsys.
func NewFSStore(fsys fs.FS, source string, errorOnEmpty bool) *FSStore {
	return &FSStore{fsys: fsys, source: source, errorOnEmpty: errorOnEmpty}
}

func (s *FSStore) ListAll() ([]*Migration, error) {
	migrations, err := listFS(s.fsys, s.source)
	if err != nil {
		return nil, err
	}
	if len(migrations) == 0 && s.errorOnEmpty {
		return nil, &EmptyStoreError{Source: s.source}
	}
	return migrations, nil
}

func listFS(fsys fs.FS, source string) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migration directory %q: %w", source, err)
	}

	byVersion := make(map[string]string)
	var migrations []*Migration
	width := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		match := fileNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, &MalformedMigrationError{
				File:   entry.Name(),
				Reason: "file name must be <version>_<name>.sql with a numeric version prefix",
			}
		}
		version, name := match[1], match[2]

		// Versions compare as strings, so they must share one width for
		// lexicographic order to equal numeric order.
		if width == 0 {
			width = len(version)
		} else if len(version) != width {
			return nil, &MalformedMigrationError{
				File:   entry.Name(),
				Reason: fmt.Sprintf("version width %d differs from %d used by other migrations", len(version), width),
			}
		}

		if prev, ok := byVersion[version]; ok {
			return nil, &MalformedMigrationError{
				File:   entry.Name(),
				Reason: fmt.Sprintf("duplicate version %s (already used by %q)", version, prev),
			}
		}
		byVersion[version] = entry.Name()

		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %q: %w", entry.Name(), err)
		}

		up, down := splitUpDown(string(body))
		if strings.TrimSpace(up) == "" {
			return nil, &MalformedMigrationError{File: entry.Name(), Reason: "empty up script"}
		}

		migrations = append(migrations, &Migration{
			Version:  version,
			Name:     name,
			UpSQL:    up,
			DownSQL:  down,
			Checksum: Checksum(up),
		})
	}

	// Versions are zero-padded, so lexicographic order is numeric order.
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// splitUpDown splits a script body at the first "-- DOWN" marker line.
func splitUpDown(body string) (up, down string) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), downMarker) {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return body, ""
}

// MemStore holds migrations in memory, for tests and embedded use.
type MemStore struct {
	migrations   []*Migration
	errorOnEmpty bool
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an in-memory store over the given migrations.
func NewMemStore(migrations ...*Migration) *MemStore {
	for _, m := range migrations {
		if m.Checksum == "" {
			m.Checksum = Checksum(m.UpSQL)
		}
	}
	return &MemStore{migrations: migrations}
}

func (s *MemStore) ListAll() ([]*Migration, error) {
	byVersion := make(map[string]string)
	width := 0
	for _, m := range s.migrations {
		if !versionPattern.MatchString(m.Version) {
			return nil, &MalformedMigrationError{File: m.ID(), Reason: "version must be numeric"}
		}
		if width == 0 {
			width = len(m.Version)
		} else if len(m.Version) != width {
			return nil, &MalformedMigrationError{
				File:   m.ID(),
				Reason: fmt.Sprintf("version width %d differs from %d used by other migrations", len(m.Version), width),
			}
		}
		if prev, ok := byVersion[m.Version]; ok {
			return nil, &MalformedMigrationError{
				File:   m.ID(),
				Reason: fmt.Sprintf("duplicate version %s (already used by %q)", m.Version, prev),
			}
		}
		byVersion[m.Version] = m.ID()
	}
	if len(s.migrations) == 0 && s.errorOnEmpty {
		return nil, &EmptyStoreError{Source: "memory"}
	}

	out := make([]*Migration, len(s.migrations))
	copy(out, s.migrations)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// CreateMigration scaffolds a new migration file in dir, numbering it one
// past the highest existing version. It returns the created file path.
func CreateMigration(dir, name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, " ", "_"))
	if name == "" {
		return "", fmt.Errorf("migration name cannot be empty")
	}
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("invalid migration name %q: use letters, digits, '_' and '-'", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migration directory: %w", err)
	}

	next := 1
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read migration directory: %w", err)
	}
	width := 0
	for _, entry := range entries {
		match := fileNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(match[1], "%d", &v); err == nil && v >= next {
			next = v + 1
		}
		// New files keep the width already in use.
		width = len(match[1])
	}
	if width == 0 {
		width = 4
	}

	filename := fmt.Sprintf("%0*d_%s.sql", width, next, name)
	path := filepath.Join(dir, filename)
	content := fmt.Sprintf("-- migration: %s\n\n\n%s\n\n", name, downMarker)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}
	return path, nil
}
