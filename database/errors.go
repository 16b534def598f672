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
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrorKind classifies driver errors independent of the backend.
type ErrorKind int

const (
	UnknownErr ErrorKind = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	ConnectionErr
	TimeoutErr
)

var errorKindNames = map[ErrorKind]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no_rows",
	NoIndexErr:                  "no_index",
	NoColumnErr:                 "no_column",
	ExistIndexErr:               "exist_index",
	ExistColumnErr:              "exist_column",
	NoTableErr:                  "no_table",
	ExistTableErr:               "exist_table",
	DuplicateKeyErr:             "duplicate_key",
	NotNullViolationErr:         "not_null_violation",
	ForeignKeyViolationErr:      "foreign_key_violation",
	CheckConstraintViolationErr: "check_constraint_violation",
	DataTruncatedErr:            "data_truncated",
	InvalidTypeCastErr:          "invalid_type_cast",
	ConnectionErr:               "connection",
	TimeoutErr:                  "timeout",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Mongo server codes that mean an index or namespace is missing or clashes.
const (
	mongoNamespaceNotFound     = 26
	mongoIndexNotFound         = 27
	mongoIndexOptionsConflict  = 85
	mongoIndexKeySpecsConflict = 86
)

// Classify reports whether err is a recognised driver error and which kind
// it is. MongoDB, MySQL and PostgreSQL errors are matched structurally;
// SQLite and anything else falls back to the message text.
func Classify(err error) (bool, ErrorKind) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	if mongo.IsDuplicateKeyError(err) {
		return true, DuplicateKeyErr
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return true, TimeoutErr
	}
	if mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, driver.ErrBadConn) {
		return true, ConnectionErr
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(mongoNamespaceNotFound):
			return true, NoTableErr
		case serverErr.HasErrorCode(mongoIndexNotFound):
			return true, NoIndexErr
		case serverErr.HasErrorCode(mongoIndexOptionsConflict),
			serverErr.HasErrorCode(mongoIndexKeySpecsConflict):
			return true, ExistIndexErr
		}
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1146:
			return true, NoTableErr
		case 1050:
			return true, ExistTableErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		default:
			return true, UnknownErr
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return true, DuplicateKeyErr
		case "23502":
			return true, NotNullViolationErr
		case "23503":
			return true, ForeignKeyViolationErr
		case "23514":
			return true, CheckConstraintViolationErr
		case "22001":
			return true, DataTruncatedErr
		case "42804":
			return true, InvalidTypeCastErr
		case "42703":
			return true, NoColumnErr
		case "42704":
			return true, NoIndexErr
		case "42P01":
			return true, NoTableErr
		case "42P07":
			return true, ExistTableErr
		case "42701":
			return true, ExistColumnErr
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, TimeoutErr
		}
		return true, ConnectionErr
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) (bool, ErrorKind) {
	s := strings.ToLower(msg)
	switch {
	case strings.Contains(s, "sqlstate 42703") ||
		strings.Contains(s, "undefined column") ||
		strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "sqlstate 42704") ||
		strings.Contains(s, "no such index") ||
		(strings.Contains(s, "does not exist") && strings.Contains(s, "index")):
		return true, NoIndexErr
	case strings.Contains(s, "sqlstate 42p01") ||
		strings.Contains(s, "undefined table") ||
		strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") &&
		(strings.Contains(s, "table") || strings.Contains(s, "relation")):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate column"):
		return true, ExistColumnErr
	case strings.Contains(s, "duplicate key") ||
		strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "sqlstate 23505"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not-null constraint") ||
		strings.Contains(s, "sqlstate 23502") ||
		strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key violation") ||
		strings.Contains(s, "foreign key constraint failed") ||
		strings.Contains(s, "sqlstate 23503"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint") ||
		strings.Contains(s, "sqlstate 23514"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "string data right truncation") ||
		strings.Contains(s, "sqlstate 22001") ||
		strings.Contains(s, "data truncated"):
		return true, DataTruncatedErr
	case strings.Contains(s, "datatype mismatch") ||
		strings.Contains(s, "sqlstate 42804"):
		return true, InvalidTypeCastErr
	case strings.Contains(s, "connection refused") ||
		strings.Contains(s, "server selection error") ||
		strings.Contains(s, "database is closed"):
		return true, ConnectionErr
	}
	return false, UnknownErr
}

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("record not found")

// NotFoundError is returned when a lookup by id matches nothing.
type NotFoundError struct {
	Model string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no record with id %q", e.Model, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateKeyError is returned when a create collides with an existing id
// or a unique index.
type DuplicateKeyError struct {
	Model string
	ID    string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: duplicate key: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("%s: duplicate key for id %q: %v", e.Model, e.ID, e.Err)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Err }

// ConnectionError wraps a network, selection or closed-client failure.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection error: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsDuplicateKey reports whether err carries a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var dup *DuplicateKeyError
	return errors.As(err, &dup)
}

// IsConnectionError reports whether err carries a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// wrapError maps a driver error onto the typed errors above. Anything
// unrecognised is wrapped with the operation and model for context.
func wrapError(model, op, id string, err error) error {
	if err == nil {
		return nil
	}
	_, kind := Classify(err)
	switch kind {
	case DuplicateKeyErr:
		return &DuplicateKeyError{Model: model, ID: id, Err: err}
	case ConnectionErr, TimeoutErr:
		return &ConnectionError{Op: model + "." + op, Err: err}
	}
	return fmt.Errorf("%s.%s: %w", model, op, err)
}
