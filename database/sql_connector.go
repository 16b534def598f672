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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/hummer-mongodb/query"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SQLConnector stores records as rows through bun. Every model maps to a
// table with a text id primary key and one column per declared property;
// undeclared keys are not persisted.
type SQLConnector struct {
	db     *bun.DB
	logger Logger
}

func NewSQLConnector(db *bun.DB, logger Logger) *SQLConnector {
	if logger == nil {
		logger = GetLogger()
	}
	return &SQLConnector{db: db, logger: logger}
}

// Name reports the dialect as one of the Type* constants.
func (c *SQLConnector) Name() string {
	switch c.dialect() {
	case dialect.PG:
		return TypePostgres
	case dialect.MySQL:
		return TypeMySQL
	default:
		return TypeSQLite
	}
}

func (c *SQLConnector) DB() *bun.DB { return c.db }

func (c *SQLConnector) dialect() dialect.Name { return c.db.Dialect().Name() }

func (c *SQLConnector) table(m *schema.Model) bun.Ident { return bun.Ident(m.CollectionName()) }

func (c *SQLConnector) Create(ctx context.Context, m *schema.Model, rec types.Record) (types.ID, error) {
	storage, id, err := m.PrepareCreate(rec)
	if err != nil {
		return types.ID{}, err
	}
	if err := c.insert(ctx, c.db, m, storage); err != nil {
		return types.ID{}, wrapError(m.Name, "create", id.String(), err)
	}
	return id, nil
}

func (c *SQLConnector) insert(ctx context.Context, db bun.IDB, m *schema.Model, storage types.Record) error {
	row := c.toRow(m, storage)
	_, err := db.NewInsert().Model(&row).TableExpr("?", c.table(m)).Exec(ctx)
	return err
}

func (c *SQLConnector) Find(ctx context.Context, m *schema.Model, f *types.Filter) ([]types.Record, error) {
	if f == nil {
		f = &types.Filter{}
	}
	tr := query.NewSQLTranslator(m, c.dialect())
	q := c.db.NewSelect().TableExpr("?", c.table(m))
	c.selectColumns(q, m, tr, f.Fields)
	if expr, args := tr.Where(f.Where); expr != "" {
		q.Where(expr, args...)
	}
	for _, ob := range tr.Orders(f.Order) {
		if ob.Desc {
			q.OrderExpr("? DESC", bun.Ident(ob.Field))
		} else {
			q.OrderExpr("? ASC", bun.Ident(ob.Field))
		}
	}
	if f.Limit > 0 {
		q.Limit(f.Limit)
	}
	if f.Skip > 0 {
		q.Offset(f.Skip)
	}
	rows := make([]map[string]interface{}, 0)
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, wrapError(m.Name, "find", "", err)
	}
	out := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, m.Present(c.fromRow(m, row)))
	}
	return out, nil
}

// selectColumns limits the query to declared columns named by fields.
func (c *SQLConnector) selectColumns(q *bun.SelectQuery, m *schema.Model, tr *query.SQLTranslator, fields types.Fields) {
	cols := tr.Columns(fields)
	if cols == nil {
		q.ColumnExpr("*")
		return
	}
	n := 0
	for _, col := range cols {
		if _, ok := m.Property(col); ok || col == types.IDKey {
			q.ColumnExpr("?", bun.Ident(col))
			n++
		}
	}
	if n == 0 {
		q.ColumnExpr("?", bun.Ident(types.IDKey))
	}
}

func (c *SQLConnector) FindByID(ctx context.Context, m *schema.Model, id any, fields types.Fields) (types.Record, error) {
	nid, err := m.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	rec, err := c.findByID(ctx, c.db, m, nid, fields)
	if err != nil {
		return nil, err
	}
	return m.Present(rec), nil
}

func (c *SQLConnector) findByID(ctx context.Context, db bun.IDB, m *schema.Model, id types.ID, fields types.Fields) (types.Record, error) {
	tr := query.NewSQLTranslator(m, c.dialect())
	q := db.NewSelect().TableExpr("?", c.table(m))
	c.selectColumns(q, m, tr, fields)
	q.Where("? = ?", bun.Ident(types.IDKey), id.String()).Limit(1)
	rows := make([]map[string]interface{}, 0, 1)
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, wrapError(m.Name, "findById", id.String(), err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Model: m.Name, ID: id.String()}
	}
	return c.fromRow(m, rows[0]), nil
}

func (c *SQLConnector) Count(ctx context.Context, m *schema.Model, where types.Where) (int64, error) {
	q := c.db.NewSelect().TableExpr("?", c.table(m))
	if expr, args := query.NewSQLTranslator(m, c.dialect()).Where(where); expr != "" {
		q.Where(expr, args...)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, wrapError(m.Name, "count", "", err)
	}
	return int64(n), nil
}

// UpdateOrCreate looks the id up and updates or inserts inside one
// transaction.
func (c *SQLConnector) UpdateOrCreate(ctx context.Context, m *schema.Model, rec types.Record) (types.Record, error) {
	storage, err := m.PrepareUpdate(rec)
	if err != nil {
		return nil, err
	}
	id := storage.ID()
	if id.IsZero() {
		created, err := c.Create(ctx, m, rec)
		if err != nil {
			return nil, err
		}
		return c.FindByID(ctx, m, created, nil)
	}

	var out types.Record
	err = c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := c.findByID(ctx, tx, m, id, types.Include(types.IDKey))
		switch {
		case err == nil:
			set := c.toRow(m, storage.Without(types.IDKey))
			if len(set) > 0 {
				if _, err := tx.NewUpdate().Model(&set).TableExpr("?", c.table(m)).
					Where("? = ?", bun.Ident(types.IDKey), id.String()).Exec(ctx); err != nil {
					return wrapError(m.Name, "updateOrCreate", id.String(), err)
				}
			}
		case isNotFound(err):
			created, _, err := m.PrepareCreate(storage)
			if err != nil {
				return err
			}
			if err := c.insert(ctx, tx, m, created); err != nil {
				return wrapError(m.Name, "updateOrCreate", id.String(), err)
			}
		default:
			return err
		}
		out, err = c.findByID(ctx, tx, m, id, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.Present(out), nil
}

func (c *SQLConnector) UpdateAll(ctx context.Context, m *schema.Model, where types.Where, data types.Record) (int64, error) {
	storage, err := m.PrepareUpdate(data)
	if err != nil {
		return 0, err
	}
	set := c.toRow(m, storage.Without(types.IDKey))
	if len(set) == 0 {
		return 0, nil
	}
	q := c.db.NewUpdate().Model(&set).TableExpr("?", c.table(m))
	if expr, args := query.NewSQLTranslator(m, c.dialect()).Where(where); expr != "" {
		q.Where(expr, args...)
	} else {
		q.Where("1 = 1")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, wrapError(m.Name, "updateAll", "", err)
	}
	return rowsAffected(res), nil
}

func (c *SQLConnector) DestroyAll(ctx context.Context, m *schema.Model, where types.Where) (int64, error) {
	q := c.db.NewDelete().TableExpr("?", c.table(m))
	if expr, args := query.NewSQLTranslator(m, c.dialect()).Where(where); expr != "" {
		q.Where(expr, args...)
	} else {
		q.Where("1 = 1")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, wrapError(m.Name, "destroyAll", "", err)
	}
	return rowsAffected(res), nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// Autoupdate creates the table, adds columns for new properties and creates
// the declared indexes. Existing indexes are left alone.
func (c *SQLConnector) Autoupdate(ctx context.Context, m *schema.Model) error {
	d := c.dialect()
	table := m.CollectionName()
	if _, err := c.db.ExecContext(ctx, buildCreateTableSQL(d, m)); err != nil {
		return wrapError(m.Name, "autoupdate", "", err)
	}
	existing, err := listExistingColumns(ctx, c.db, table)
	if err != nil {
		return wrapError(m.Name, "autoupdate", "", err)
	}
	for _, p := range m.Properties {
		if existing[strings.ToLower(p.Name)] {
			continue
		}
		if _, err := c.db.ExecContext(ctx, buildAddColumnSQL(d, table, p)); err != nil {
			if is, kind := Classify(err); is && kind == ExistColumnErr {
				continue
			}
			return wrapError(m.Name, "autoupdate", "", err)
		}
		c.logger.Info("Column added", "table", table, "column", p.Name)
	}
	for _, idx := range m.Indexes() {
		if _, err := c.db.ExecContext(ctx, buildCreateIndexSQL(d, table, idx)); err != nil {
			if is, kind := Classify(err); is && kind == ExistIndexErr {
				continue
			}
			return wrapError(m.Name, "autoupdate", "", err)
		}
	}
	c.logger.Debug("Table synced", "model", m.Name, "table", table)
	return nil
}

func (c *SQLConnector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return &ConnectionError{Op: "ping", Err: err}
	}
	return nil
}

func (c *SQLConnector) Close(context.Context) error {
	return c.db.Close()
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// toRow keeps the id and declared properties, converting values to what
// the column accepts.
func (c *SQLConnector) toRow(m *schema.Model, rec types.Record) map[string]interface{} {
	row := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if schema.IsIDField(k) {
			if id := rec.ID(); !id.IsZero() {
				row[types.IDKey] = id.String()
			}
			continue
		}
		p, ok := m.Property(k)
		if !ok {
			c.logger.Debug("Dropping undeclared property", "model", m.Name, "property", k)
			continue
		}
		row[k] = columnValue(p, v)
	}
	return row
}

func columnValue(p schema.Property, v any) any {
	if v == nil {
		return nil
	}
	switch p.Type {
	case schema.ObjectType, schema.ArrayType, schema.AnyType:
		var (
			data any
			err  error
		)
		switch x := jsonable(v).(type) {
		case map[string]any:
			data, err = types.JsonObject(x).Value()
		case []any:
			data, err = types.JsonArray(x).Value()
		default:
			var b []byte
			b, err = json.Marshal(x)
			data = string(b)
		}
		if err != nil {
			return fmt.Sprint(v)
		}
		return data
	case schema.DateType:
		switch x := v.(type) {
		case time.Time:
			return x.UTC()
		case primitive.DateTime:
			return x.Time().UTC()
		}
	}
	return query.SQLValue(v)
}

// jsonable replaces ids with their text so nested values encode cleanly.
func jsonable(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case types.Record:
		return jsonable(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonable(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonable(e)
		}
		return out
	}
	return v
}

// fromRow converts a scanned row into a Record, omitting NULL columns the
// way a document omits missing fields.
func (c *SQLConnector) fromRow(m *schema.Model, row map[string]interface{}) types.Record {
	rec := make(types.Record, len(row))
	for k, v := range row {
		if v == nil {
			continue
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if k == types.IDKey {
			rec[types.IDKey] = types.ParseID(fmt.Sprint(v))
			continue
		}
		p, ok := m.Property(k)
		if !ok {
			rec[k] = v
			continue
		}
		rec[k] = propertyValue(p, v)
	}
	return rec
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func propertyValue(p schema.Property, v any) any {
	switch p.Type {
	case schema.StringType:
		return fmt.Sprint(v)
	case schema.ObjectIDType:
		return types.ParseID(fmt.Sprint(v))
	case schema.NumberType:
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	case schema.IntegerType:
		switch x := v.(type) {
		case int64:
			return x
		case float64:
			return int64(math.Trunc(x))
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
		}
	case schema.BooleanType:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
	case schema.DateType:
		switch x := v.(type) {
		case time.Time:
			return x.UTC()
		case string:
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, x); err == nil {
					return t.UTC()
				}
			}
		}
	case schema.ObjectType:
		var o types.JsonObject
		if err := o.Scan(v); err == nil {
			return map[string]any(o)
		}
	case schema.ArrayType:
		var a types.JsonArray
		if err := a.Scan(v); err == nil {
			return []any(a)
		}
	case schema.AnyType:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	}
	return v
}
