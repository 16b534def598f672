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

package types

import (
	"sort"
	"strings"
)

// Operator is a comparison understood by the query translators.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpLike
	OpNLike
	OpBetween
	OpExists
)

var operatorNames = map[Operator]string{
	OpEq:      "eq",
	OpNeq:     "neq",
	OpGt:      "gt",
	OpGte:     "gte",
	OpLt:      "lt",
	OpLte:     "lte",
	OpIn:      "inq",
	OpNin:     "nin",
	OpLike:    "like",
	OpNLike:   "nlike",
	OpBetween: "between",
	OpExists:  "exists",
}

// Operators lists every supported operator.
func Operators() []Operator {
	ops := make([]Operator, 0, len(operatorNames))
	for op := range operatorNames {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

func (o Operator) IsValid() bool {
	_, ok := operatorNames[o]
	return ok
}

func (o Operator) Number() int {
	if !o.IsValid() {
		return IllegalValue
	}
	return int(o)
}

func (o Operator) Name() string {
	if n, ok := operatorNames[o]; ok {
		return n
	}
	return IllegalName
}

func (o Operator) String() string { return o.Name() }

func (o Operator) Desc() string {
	switch o {
	case OpLike:
		return "case sensitive regular expression match"
	case OpNLike:
		return "negated regular expression match, also matches missing values"
	case OpBetween:
		return "inclusive range, value is a two element slice"
	case OpExists:
		return "field presence"
	default:
		if o.IsValid() {
			return "comparison " + o.Name()
		}
		return IllegalDesc
	}
}

// ParseOperator resolves an operator by name. "in" is accepted as an alias
// of "inq" and "ne" of "neq".
func ParseOperator(name string) (Operator, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "in":
		return OpIn, true
	case "ne":
		return OpNeq, true
	}
	return EnumByName(Operators(), name)
}

// Cond is a single operator condition on a field.
type Cond struct {
	Op    Operator
	Value any
}

func Eq(v any) Cond       { return Cond{OpEq, v} }
func Neq(v any) Cond      { return Cond{OpNeq, v} }
func Gt(v any) Cond       { return Cond{OpGt, v} }
func Gte(v any) Cond      { return Cond{OpGte, v} }
func Lt(v any) Cond       { return Cond{OpLt, v} }
func Lte(v any) Cond      { return Cond{OpLte, v} }
func In(v ...any) Cond    { return Cond{OpIn, v} }
func Nin(v ...any) Cond   { return Cond{OpNin, v} }
func Like(p string) Cond  { return Cond{OpLike, p} }
func NLike(p string) Cond { return Cond{OpNLike, p} }
func Exists(b bool) Cond  { return Cond{OpExists, b} }
func Between(lo, hi any) Cond {
	return Cond{OpBetween, []any{lo, hi}}
}

// Conds extracts the operator conditions held by a where value. A Cond or a
// slice of Conds is returned as is; a map whose keys are all operator names
// ({"like": "M.+st"}) is parsed. Anything else yields false and is treated
// as an equality value by the translators.
func Conds(v any) ([]Cond, bool) {
	switch x := v.(type) {
	case Cond:
		return []Cond{x}, true
	case *Cond:
		if x == nil {
			return nil, false
		}
		return []Cond{*x}, true
	case []Cond:
		return x, len(x) > 0
	case map[string]any:
		return condsFromMap(x)
	case Where:
		return condsFromMap(x)
	}
	return nil, false
}

func condsFromMap(m map[string]any) ([]Cond, bool) {
	if len(m) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Cond, 0, len(m))
	for _, k := range keys {
		op, ok := ParseOperator(k)
		if !ok {
			return nil, false
		}
		out = append(out, Cond{Op: op, Value: m[k]})
	}
	return out, true
}

// Logical keys of a Where.
const (
	AndKey = "and"
	OrKey  = "or"
)

// Where maps field names to equality values or conditions. Keys "and" and
// "or" hold nested clauses.
type Where map[string]any

// And combines clauses with a logical AND, skipping empty ones.
func And(clauses ...Where) Where {
	return combine(AndKey, clauses)
}

// Or combines clauses with a logical OR, skipping empty ones.
func Or(clauses ...Where) Where {
	return combine(OrKey, clauses)
}

func combine(key string, clauses []Where) Where {
	kept := make([]Where, 0, len(clauses))
	for _, c := range clauses {
		if len(c) > 0 {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return Where{}
	case 1:
		return kept[0]
	}
	return Where{key: kept}
}

// Merge returns the AND of w and other.
func (w Where) Merge(other Where) Where { return And(w, other) }

// Keys returns the where keys in sorted order so translations are
// deterministic.
func (w Where) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clauses converts the value of an and/or key into a list of Where clauses.
func Clauses(v any) []Where {
	switch x := v.(type) {
	case []Where:
		return x
	case Where:
		return []Where{x}
	case map[string]any:
		return []Where{Where(x)}
	case []map[string]any:
		out := make([]Where, len(x))
		for i := range x {
			out[i] = Where(x[i])
		}
		return out
	case []any:
		out := make([]Where, 0, len(x))
		for _, e := range x {
			out = append(out, Clauses(e)...)
		}
		return out
	}
	return nil
}

// Fields is a projection: true includes a field, false excludes it.
type Fields map[string]bool

// Include builds an inclusion projection.
func Include(names ...string) Fields {
	f := make(Fields, len(names))
	for _, n := range names {
		f[n] = true
	}
	return f
}

// Exclude builds an exclusion projection.
func Exclude(names ...string) Fields {
	f := make(Fields, len(names))
	for _, n := range names {
		f[n] = false
	}
	return f
}

// Inclusions returns the included field names, sorted.
func (f Fields) Inclusions() []string { return f.pick(true) }

// Exclusions returns the excluded field names, sorted.
func (f Fields) Exclusions() []string { return f.pick(false) }

func (f Fields) pick(want bool) []string {
	out := make([]string, 0, len(f))
	for k, v := range f {
		if v == want {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Filter is the declarative query accepted by find operations.
type Filter struct {
	Where  Where
	Fields Fields
	Order  []string
	Limit  int
	Skip   int
}

// NewFilter returns a filter on where.
func NewFilter(where Where) *Filter { return &Filter{Where: where} }

// WithFields sets the projection.
func (f *Filter) WithFields(fields Fields) *Filter {
	f.Fields = fields
	return f
}

// WithOrder appends order clauses such as "title DESC".
func (f *Filter) WithOrder(orders ...string) *Filter {
	f.Order = append(f.Order, orders...)
	return f
}

// WithLimit sets limit and skip.
func (f *Filter) WithLimit(limit, skip int) *Filter {
	f.Limit, f.Skip = limit, skip
	return f
}

// Clone copies the filter so callers can extend it without side effects.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return &Filter{}
	}
	out := *f
	if f.Where != nil {
		out.Where = make(Where, len(f.Where))
		for k, v := range f.Where {
			out.Where[k] = v
		}
	}
	out.Order = append([]string(nil), f.Order...)
	return &out
}

// OrderBy is a parsed order clause.
type OrderBy struct {
	Field string
	Desc  bool
}

// ParseOrder parses "field", "field ASC" or "field DESC".
func ParseOrder(s string) (OrderBy, bool) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return OrderBy{Field: parts[0]}, true
	case 2:
		switch strings.ToUpper(parts[1]) {
		case "ASC":
			return OrderBy{Field: parts[0]}, true
		case "DESC":
			return OrderBy{Field: parts[0], Desc: true}, true
		}
	}
	return OrderBy{}, false
}
