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

package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSqlErrorMySQL(t *testing.T) {
	cases := []struct {
		number uint16
		want   SQLError
	}{
		{1054, NoColumnErr},
		{1062, DuplicateKeyErr},
		{1048, NotNullViolationErr},
		{1146, NoTableErr},
		{1050, ExistTableErr},
		{1064, SyntaxErr},
		{1205, LockTimeoutErr},
		{1452, ForeignKeyViolationErr},
		{9999, UnknownErr},
	}

	for _, tc := range cases {
		err := &mysql.MySQLError{Number: tc.number, Message: "test"}
		is, kind := IsSqlError(err)
		assert.True(t, is, "number %d", tc.number)
		assert.Equal(t, tc.want, kind, "number %d", tc.number)
	}
}

func TestIsSqlErrorPostgres(t *testing.T) {
	cases := []struct {
		code pq.ErrorCode
		want SQLError
	}{
		{"42703", NoColumnErr},
		{"42P01", NoTableErr},
		{"42P07", ExistTableErr},
		{"23505", DuplicateKeyErr},
		{"23502", NotNullViolationErr},
		{"23503", ForeignKeyViolationErr},
		{"42601", SyntaxErr},
		{"55P03", LockTimeoutErr},
	}

	for _, tc := range cases {
		err := &pq.Error{Code: tc.code}
		is, kind := IsSqlError(err)
		assert.True(t, is, "code %s", tc.code)
		assert.Equal(t, tc.want, kind, "code %s", tc.code)
	}
}

func TestIsSqlErrorWrapped(t *testing.T) {
	inner := &mysql.MySQLError{Number: 1062, Message: "duplicate"}
	wrapped := fmt.Errorf("failed to save: %w", inner)

	is, kind := IsSqlError(wrapped)
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)
}

func TestIsSqlErrorSubstrings(t *testing.T) {
	cases := []struct {
		msg  string
		want SQLError
	}{
		{"no such table: users", NoTableErr},
		{"no such column: email", NoColumnErr},
		{"table users already exists", ExistTableErr},
		{"UNIQUE constraint failed: users.email", DuplicateKeyErr},
		{"NOT NULL constraint failed: users.name", NotNullViolationErr},
		{"FOREIGN KEY constraint failed", ForeignKeyViolationErr},
		{"near \"SELCT\": syntax error", SyntaxErr},
		{"database is locked", LockTimeoutErr},
	}

	for _, tc := range cases {
		is, kind := IsSqlError(errors.New(tc.msg))
		assert.True(t, is, "msg %q", tc.msg)
		assert.Equal(t, tc.want, kind, "msg %q", tc.msg)
	}
}

func TestIsSqlErrorUnrecognized(t *testing.T) {
	is, kind := IsSqlError(errors.New("something else entirely"))
	assert.False(t, is)
	assert.Equal(t, UnknownErr, kind)

	is, _ = IsSqlError(nil)
	assert.False(t, is)
}
