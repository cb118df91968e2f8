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
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// checksumLen is the number of hex characters kept from the content hash.
const checksumLen = 16

// Migration is one versioned unit of schema change, discovered from a store.
// Immutable once created.
type Migration struct {
	Version  string // zero-padded identifier, e.g. "0001"
	Name     string // human-readable suffix, e.g. "init"
	UpSQL    string
	DownSQL  string // empty when no down script is provided
	Checksum string // computed over the up script only
}

// ID returns the canonical "version_name" identifier.
func (m *Migration) ID() string {
	return m.Version + "_" + m.Name
}

// HasDown reports whether the migration carries a reversal script.
func (m *Migration) HasDown() bool {
	return strings.TrimSpace(m.DownSQL) != ""
}

// Checksum computes the drift-detection digest of a script body: SHA-256
// over the bytes with CRLF normalized to LF, truncated to 16 hex characters.
// Normalization keeps the digest stable across checkouts with different
// line-ending settings.
func Checksum(body string) string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:checksumLen]
}

// splitStatements splits a script into individual statements on trailing
// semicolons, dropping blank lines and full-line comments. Statements that
// embed semicolons in string literals are not supported; scripts needing
// them should keep one statement per file.
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		current.WriteString(line)
		current.WriteString(" ")

		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	// Trailing statement without a terminating semicolon.
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}

// excerpt shortens a statement for error messages.
func excerpt(stmt string) string {
	const max = 80
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > max {
		return stmt[:max] + "..."
	}
	return stmt
}
