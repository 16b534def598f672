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
	"reflect"
	"regexp"

	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTranslator renders filters for one model.
type MongoTranslator struct {
	model *schema.Model
}

// NewMongoTranslator returns a translator bound to m. A nil model is
// allowed; ids are then normalized without model specific coercion.
func NewMongoTranslator(m *schema.Model) *MongoTranslator {
	if m == nil {
		m = &schema.Model{}
	}
	return &MongoTranslator{model: m}
}

// Field maps a record key to its document key.
func (t *MongoTranslator) Field(name string) string {
	if schema.IsIDField(name) {
		return types.DocumentIDKey
	}
	return name
}

// Where renders w as a filter document. An empty where matches everything.
func (t *MongoTranslator) Where(w types.Where) bson.D {
	doc := bson.D{}
	for _, k := range w.Keys() {
		v := w[k]
		switch k {
		case types.AndKey, types.OrKey:
			clauses := t.clauses(v)
			if len(clauses) == 0 {
				continue
			}
			doc = append(doc, bson.E{Key: "$" + k, Value: clauses})
		default:
			doc = append(doc, bson.E{Key: t.Field(k), Value: t.condition(k, v)})
		}
	}
	return doc
}

func (t *MongoTranslator) clauses(v any) bson.A {
	out := bson.A{}
	for _, c := range types.Clauses(v) {
		if d := t.Where(c); len(d) > 0 {
			out = append(out, d)
		}
	}
	return out
}

func (t *MongoTranslator) condition(field string, v any) any {
	conds, ok := types.Conds(v)
	if !ok {
		return t.value(field, v)
	}
	if len(conds) == 1 {
		switch conds[0].Op {
		case types.OpEq:
			return t.value(field, conds[0].Value)
		case types.OpLike:
			return regex(conds[0].Value)
		}
	}
	ops := bson.D{}
	for _, c := range conds {
		switch c.Op {
		case types.OpEq:
			ops = append(ops, bson.E{Key: "$eq", Value: t.value(field, c.Value)})
		case types.OpNeq:
			ops = append(ops, bson.E{Key: "$ne", Value: t.value(field, c.Value)})
		case types.OpGt:
			ops = append(ops, bson.E{Key: "$gt", Value: t.value(field, c.Value)})
		case types.OpGte:
			ops = append(ops, bson.E{Key: "$gte", Value: t.value(field, c.Value)})
		case types.OpLt:
			ops = append(ops, bson.E{Key: "$lt", Value: t.value(field, c.Value)})
		case types.OpLte:
			ops = append(ops, bson.E{Key: "$lte", Value: t.value(field, c.Value)})
		case types.OpIn:
			ops = append(ops, bson.E{Key: "$in", Value: t.values(field, c.Value)})
		case types.OpNin:
			ops = append(ops, bson.E{Key: "$nin", Value: t.values(field, c.Value)})
		case types.OpLike:
			re := regex(c.Value)
			ops = append(ops, bson.E{Key: "$regex", Value: re.Pattern})
			if re.Options != "" {
				ops = append(ops, bson.E{Key: "$options", Value: re.Options})
			}
		case types.OpNLike:
			ops = append(ops, bson.E{Key: "$not", Value: regex(c.Value)})
		case types.OpBetween:
			vals := toSlice(c.Value)
			if len(vals) == 2 {
				ops = append(ops,
					bson.E{Key: "$gte", Value: t.value(field, vals[0])},
					bson.E{Key: "$lte", Value: t.value(field, vals[1])})
			}
		case types.OpExists:
			b, _ := c.Value.(bool)
			ops = append(ops, bson.E{Key: "$exists", Value: b})
		}
	}
	return ops
}

func (t *MongoTranslator) value(field string, v any) any {
	return t.model.StorageValue(field, v)
}

func (t *MongoTranslator) values(field string, v any) bson.A {
	vals := toSlice(v)
	out := make(bson.A, len(vals))
	for i, e := range vals {
		out[i] = t.value(field, e)
	}
	return out
}

// regex converts a like operand into a case sensitive regular expression.
func regex(v any) primitive.Regex {
	switch x := v.(type) {
	case primitive.Regex:
		return x
	case *regexp.Regexp:
		return primitive.Regex{Pattern: x.String()}
	case string:
		return primitive.Regex{Pattern: x}
	default:
		return primitive.Regex{Pattern: regexp.QuoteMeta(toString(v))}
	}
}

// Projection renders an inclusion projection, or an exclusion projection
// when fields only lists exclusions. The id is returned unless it is
// explicitly excluded; an id-only inclusion selects just _id. Nil means no
// projection.
func (t *MongoTranslator) Projection(fields types.Fields) bson.D {
	if len(fields) == 0 {
		return nil
	}
	idExcluded := false
	for k, v := range fields {
		if schema.IsIDField(k) && !v {
			idExcluded = true
		}
	}
	doc := bson.D{}
	if inc := fields.Inclusions(); len(inc) > 0 {
		for _, f := range inc {
			if !schema.IsIDField(f) {
				doc = append(doc, bson.E{Key: f, Value: 1})
			}
		}
		if len(doc) == 0 && !idExcluded {
			doc = append(doc, bson.E{Key: types.DocumentIDKey, Value: 1})
		}
	} else {
		for _, f := range fields.Exclusions() {
			if !schema.IsIDField(f) {
				doc = append(doc, bson.E{Key: f, Value: 0})
			}
		}
	}
	if idExcluded {
		doc = append(doc, bson.E{Key: types.DocumentIDKey, Value: 0})
	}
	if len(doc) == 0 {
		return nil
	}
	return doc
}

// Sort renders order clauses; malformed clauses are skipped.
func (t *MongoTranslator) Sort(order []string) bson.D {
	doc := bson.D{}
	for _, o := range order {
		ob, ok := types.ParseOrder(o)
		if !ok {
			continue
		}
		dir := 1
		if ob.Desc {
			dir = -1
		}
		doc = append(doc, bson.E{Key: t.Field(ob.Field), Value: dir})
	}
	return doc
}

// FindOptions renders the non-where parts of f.
func (t *MongoTranslator) FindOptions(f *types.Filter) *options.FindOptions {
	opts := options.Find()
	if f == nil {
		return opts
	}
	if p := t.Projection(f.Fields); p != nil {
		opts.SetProjection(p)
	}
	if s := t.Sort(f.Order); len(s) > 0 {
		opts.SetSort(s)
	}
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Skip > 0 {
		opts.SetSkip(int64(f.Skip))
	}
	return opts
}

// FindOneOptions renders a projection for single document lookups.
func (t *MongoTranslator) FindOneOptions(fields types.Fields) *options.FindOneOptions {
	opts := options.FindOne()
	if p := t.Projection(fields); p != nil {
		opts.SetProjection(p)
	}
	return opts
}

func toSlice(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case bson.A:
		return x
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
