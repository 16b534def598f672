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

package query

import (
	"fmt"
	"strings"

	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SQLTranslator renders filters as bun WHERE expressions for one model and
// dialect. The id is stored in an "id" text column.
type SQLTranslator struct {
	model   *schema.Model
	dialect dialect.Name
}

// NewSQLTranslator returns a translator bound to m and d.
func NewSQLTranslator(m *schema.Model, d dialect.Name) *SQLTranslator {
	if m == nil {
		m = &schema.Model{}
	}
	return &SQLTranslator{model: m, dialect: d}
}

// Column maps a record key to its column.
func (t *SQLTranslator) Column(name string) string {
	if schema.IsIDField(name) {
		return types.IDKey
	}
	return name
}

// Where renders w as an expression with bun placeholders. An empty where
// yields an empty expression.
func (t *SQLTranslator) Where(w types.Where) (string, []any) {
	parts, args := t.where(w)
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, " AND "), args
}

func (t *SQLTranslator) where(w types.Where) ([]string, []any) {
	var parts []string
	var args []any
	for _, k := range w.Keys() {
		v := w[k]
		switch k {
		case types.AndKey, types.OrKey:
			sep := " AND "
			if k == types.OrKey {
				sep = " OR "
			}
			var sub []string
			for _, c := range types.Clauses(v) {
				expr, a := t.Where(c)
				if expr == "" {
					continue
				}
				sub = append(sub, "("+expr+")")
				args = append(args, a...)
			}
			if len(sub) > 0 {
				parts = append(parts, "("+strings.Join(sub, sep)+")")
			}
		default:
			expr, a := t.condition(k, v)
			parts = append(parts, expr)
			args = append(args, a...)
		}
	}
	return parts, args
}

func (t *SQLTranslator) condition(field string, v any) (string, []any) {
	col := bun.Ident(t.Column(field))
	conds, ok := types.Conds(v)
	if !ok {
		conds = []types.Cond{types.Eq(v)}
	}
	declared := t.declared(field)
	var parts []string
	var args []any
	for _, c := range conds {
		if !declared {
			parts = append(parts, missingFieldCondition(c))
			continue
		}
		expr, a := t.operator(col, field, c)
		parts = append(parts, expr)
		args = append(args, a...)
	}
	if len(parts) == 1 {
		return parts[0], args
	}
	return "(" + strings.Join(parts, " AND ") + ")", args
}

func (t *SQLTranslator) declared(field string) bool {
	if schema.IsIDField(field) {
		return true
	}
	_, ok := t.model.Property(field)
	return ok
}

// missingFieldCondition evaluates c against a field no row has a column
// for, treating the value as absent.
func missingFieldCondition(c types.Cond) string {
	matches := false
	switch c.Op {
	case types.OpEq:
		matches = c.Value == nil
	case types.OpNeq:
		matches = c.Value != nil
	case types.OpNin, types.OpNLike:
		matches = true
	case types.OpExists:
		b, _ := c.Value.(bool)
		matches = !b
	}
	if matches {
		return "1 = 1"
	}
	return "1 = 0"
}

func (t *SQLTranslator) operator(col bun.Ident, field string, c types.Cond) (string, []any) {
	switch c.Op {
	case types.OpEq:
		if c.Value == nil {
			return "? IS NULL", []any{col}
		}
		return "? = ?", []any{col, t.value(field, c.Value)}
	case types.OpNeq:
		if c.Value == nil {
			return "? IS NOT NULL", []any{col}
		}
		return "(? IS NULL OR ? <> ?)", []any{col, col, t.value(field, c.Value)}
	case types.OpGt:
		return "? > ?", []any{col, t.value(field, c.Value)}
	case types.OpGte:
		return "? >= ?", []any{col, t.value(field, c.Value)}
	case types.OpLt:
		return "? < ?", []any{col, t.value(field, c.Value)}
	case types.OpLte:
		return "? <= ?", []any{col, t.value(field, c.Value)}
	case types.OpIn:
		vals := t.values(field, c.Value)
		if len(vals) == 0 {
			return "1 = 0", nil
		}
		return "? IN (?)", []any{col, bun.In(vals)}
	case types.OpNin:
		vals := t.values(field, c.Value)
		if len(vals) == 0 {
			return "1 = 1", nil
		}
		return "(? IS NULL OR ? NOT IN (?))", []any{col, col, bun.In(vals)}
	case types.OpLike:
		return t.match(col, c.Value)
	case types.OpNLike:
		expr, args := t.match(col, c.Value)
		return "(? IS NULL OR NOT (" + expr + "))", append([]any{col}, args...)
	case types.OpBetween:
		vals := toSlice(c.Value)
		if len(vals) != 2 {
			return "1 = 0", nil
		}
		return "? BETWEEN ? AND ?", []any{col, t.value(field, vals[0]), t.value(field, vals[1])}
	case types.OpExists:
		if b, _ := c.Value.(bool); b {
			return "? IS NOT NULL", []any{col}
		}
		return "? IS NULL", []any{col}
	default:
		return "? = ?", []any{col, t.value(field, c.Value)}
	}
}

// match renders a case sensitive regular expression match. SQLite relies on
// the regexp function registered by the database package.
func (t *SQLTranslator) match(col bun.Ident, v any) (string, []any) {
	re := regex(v)
	insensitive := strings.Contains(re.Options, "i")
	switch t.dialect {
	case dialect.PG:
		if insensitive {
			return "? ~* ?", []any{col, re.Pattern}
		}
		return "? ~ ?", []any{col, re.Pattern}
	case dialect.MySQL:
		mode := "c"
		if insensitive {
			mode = "i"
		}
		return "REGEXP_LIKE(?, ?, '" + mode + "')", []any{col, re.Pattern}
	default:
		pattern := re.Pattern
		if insensitive {
			pattern = "(?i)" + pattern
		}
		return "? REGEXP ?", []any{col, pattern}
	}
}

func (t *SQLTranslator) value(field string, v any) any {
	return SQLValue(t.model.StorageValue(field, v))
}

func (t *SQLTranslator) values(field string, v any) []any {
	vals := toSlice(v)
	out := make([]any, len(vals))
	for i, e := range vals {
		out[i] = t.value(field, e)
	}
	return out
}

// SQLValue converts document identifiers to the text stored in SQL columns.
func SQLValue(v any) any {
	switch x := v.(type) {
	case types.ID:
		return x.String()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	default:
		return v
	}
}

// Columns returns the columns to select for fields, or nil for all columns.
// The id column is kept unless explicitly excluded.
func (t *SQLTranslator) Columns(fields types.Fields) []string {
	if len(fields) == 0 {
		return nil
	}
	idExcluded := false
	for k, v := range fields {
		if schema.IsIDField(k) && !v {
			idExcluded = true
		}
	}
	cols := make([]string, 0)
	if !idExcluded {
		cols = append(cols, types.IDKey)
	}
	if inc := fields.Inclusions(); len(inc) > 0 {
		for _, f := range inc {
			if !schema.IsIDField(f) {
				cols = append(cols, f)
			}
		}
		return cols
	}
	excluded := make(map[string]bool, len(fields))
	for _, f := range fields.Exclusions() {
		excluded[f] = true
	}
	for _, p := range t.model.Properties {
		if !excluded[p.Name] {
			cols = append(cols, p.Name)
		}
	}
	return cols
}

// Orders resolves order clauses to columns; malformed clauses are skipped.
func (t *SQLTranslator) Orders(order []string) []types.OrderBy {
	out := make([]types.OrderBy, 0, len(order))
	for _, o := range order {
		ob, ok := types.ParseOrder(o)
		if !ok {
			continue
		}
		ob.Field = t.Column(ob.Field)
		out = append(out, ob)
	}
	return out
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
