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
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

var (
	registerRegexpOnce sync.Once
	registerRegexpErr  error
	regexpCache        sync.Map
)

// registerSQLiteRegexp installs the regexp(pattern, value) function that
// backs "value REGEXP pattern" on every new SQLite connection.
func registerSQLiteRegexp() error {
	registerRegexpOnce.Do(func() {
		registerRegexpErr = sqlite.RegisterDeterministicScalarFunction("regexp", 2, sqliteRegexp)
	})
	return registerRegexpErr
}

func sqliteRegexp(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	re, err := compileCached(textValue(args[0]))
	if err != nil {
		return nil, err
	}
	return re.MatchString(textValue(args[1])), nil
}

func compileCached(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexpCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", pattern, err)
	}
	regexpCache.Store(pattern, re)
	return re, nil
}

func textValue(v driver.Value) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// openSQLite opens a database file, or a shared in-memory database when
// name is ":memory:" or carries the memory: prefix.
func openSQLite(name string) (*sql.DB, error) {
	if err := registerSQLiteRegexp(); err != nil {
		return nil, err
	}
	return sql.Open(sqliteDriverName, sqliteDSN(name))
}

func sqliteDSN(name string) string {
	switch {
	case name == "" || name == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasPrefix(name, "memory:"):
		return fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.TrimPrefix(name, "memory:"))
	case strings.HasPrefix(name, "file:") || strings.HasSuffix(name, ".db"):
		return name
	default:
		return name + ".db"
	}
}

const idColumnType = "VARCHAR(255)"

func quoteIdent(d dialect.Name, s string) string {
	switch d {
	case dialect.MySQL:
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
}

// sqlColumnType maps a property to a column type. MySQL cannot index TEXT
// without a prefix length, so indexed strings without a length get 255.
func sqlColumnType(d dialect.Name, p schema.Property) string {
	switch p.Type {
	case schema.StringType:
		if p.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", p.Length)
		}
		if d == dialect.MySQL && (p.Index || p.Unique) {
			return "VARCHAR(255)"
		}
		return "TEXT"
	case schema.ObjectIDType:
		return idColumnType
	case schema.NumberType:
		switch d {
		case dialect.PG:
			return "DOUBLE PRECISION"
		case dialect.MySQL:
			return "DOUBLE"
		default:
			return "REAL"
		}
	case schema.IntegerType:
		if d == dialect.SQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case schema.BooleanType:
		return "BOOLEAN"
	case schema.DateType:
		switch d {
		case dialect.PG:
			return "TIMESTAMPTZ"
		case dialect.MySQL:
			return "DATETIME(6)"
		default:
			return "TIMESTAMP"
		}
	default:
		switch d {
		case dialect.PG:
			return "JSONB"
		case dialect.MySQL:
			return "JSON"
		default:
			return "TEXT"
		}
	}
}

func buildCreateTableSQL(d dialect.Name, m *schema.Model) string {
	cols := []string{fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", quoteIdent(d, types.IDKey), idColumnType)}
	for _, p := range m.Properties {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(d, p.Name), sqlColumnType(d, p)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(d, m.CollectionName()), strings.Join(cols, ", "))
}

func buildAddColumnSQL(d dialect.Name, table string, p schema.Property) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(d, table), quoteIdent(d, p.Name), sqlColumnType(d, p))
}

func buildCreateIndexSQL(d dialect.Name, table string, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	name := quoteIdent(d, idx.Name)
	switch d {
	case dialect.MySQL:
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, name, quoteIdent(d, table), quoteIdent(d, idx.Field))
	default:
		return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", unique, name, quoteIdent(d, table), quoteIdent(d, idx.Field))
	}
}

// listExistingColumns returns the lower-cased column names of table.
func listExistingColumns(ctx context.Context, db bun.IDB, table string) (map[string]bool, error) {
	var rows *sql.Rows
	var err error
	d := db.Dialect().Name()
	switch d {
	case dialect.PG:
		rows, err = db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?`, table)
	case dialect.MySQL:
		rows, err = db.QueryContext(ctx, `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table)
	default:
		rows, err = db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	}
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}
