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

package schema

import (
	"fmt"
	"math"
	"time"

	"github.com/tomoncle/hummer-mongodb/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Property describes one declared field of a model.
type Property struct {
	Name     string       `yaml:"name" json:"name" validate:"required"`
	Type     PropertyType `yaml:"type" json:"type"`
	Index    bool         `yaml:"index,omitempty" json:"index,omitempty"`
	Unique   bool         `yaml:"unique,omitempty" json:"unique,omitempty"`
	Length   int          `yaml:"length,omitempty" json:"length,omitempty" validate:"gte=0"`
	Required bool         `yaml:"required,omitempty" json:"required,omitempty"`
}

// Model describes a persisted entity kind. Models are resolved once when they
// are defined and treated as read-only afterwards.
type Model struct {
	Name       string     `yaml:"name" json:"name" validate:"required"`
	Collection string     `yaml:"collection,omitempty" json:"collection,omitempty"`
	IDType     IDType     `yaml:"idType,omitempty" json:"idType"`
	Properties []Property `yaml:"properties" json:"properties" validate:"dive"`
	// Strict rejects records carrying undeclared properties.
	Strict bool `yaml:"strict,omitempty" json:"strict,omitempty"`
	// StrictIDs rejects non-hex ids on objectid models instead of storing
	// them as plain strings.
	StrictIDs bool `yaml:"strictIds,omitempty" json:"strictIds,omitempty"`
	Priority  int  `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Index is a single-field index derived from property flags.
type Index struct {
	Name   string
	Field  string
	Unique bool
}

// CollectionName returns the collection or table backing the model.
func (m *Model) CollectionName() string {
	if m.Collection != "" {
		return m.Collection
	}
	return m.Name
}

// Property looks up a declared property by name.
func (m *Model) Property(name string) (Property, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// IsIDField reports whether name addresses the identifier.
func IsIDField(name string) bool {
	return name == types.IDKey || name == types.DocumentIDKey
}

// NormalizeID converts v to its storage form. Values matching the ObjectID
// hex format are stored natively for both id types; anything else stays a
// plain string.
func (m *Model) NormalizeID(v any) (types.ID, error) {
	id, err := types.IDFrom(v)
	if err != nil {
		return types.ID{}, err
	}
	if !id.IsNative() {
		id = types.ParseID(id.String())
	}
	return id, nil
}

// PresentID converts a stored id to the form callers see: string models get
// the textual id back even when it was stored natively.
func (m *Model) PresentID(id types.ID) types.ID {
	if m.IDType == StringID && id.IsNative() {
		return id.AsString()
	}
	return id
}

// StorageValue converts a value bound to field into the form the document
// store holds. Unknown fields and non-id values pass through.
func (m *Model) StorageValue(field string, v any) any {
	if IsIDField(field) || m.isObjectIDProperty(field) {
		switch v.(type) {
		case types.ID, *types.ID, string, []byte, primitive.ObjectID, *primitive.ObjectID,
			int, int32, int64, uint64:
			if id, err := m.NormalizeID(v); err == nil {
				return id.StorageValue()
			}
		}
		return v
	}
	if id, ok := v.(types.ID); ok {
		return id.StorageValue()
	}
	return v
}

func (m *Model) isObjectIDProperty(field string) bool {
	p, ok := m.Property(field)
	return ok && p.Type == ObjectIDType
}

// Indexes returns the indexes implied by index/unique property flags.
func (m *Model) Indexes() []Index {
	out := make([]Index, 0)
	for _, p := range m.Properties {
		if !p.Index && !p.Unique {
			continue
		}
		prefix := "idx"
		if p.Unique {
			prefix = "uk"
		}
		out = append(out, Index{
			Name:   fmt.Sprintf("%s_%s_%s", prefix, m.CollectionName(), p.Name),
			Field:  p.Name,
			Unique: p.Unique,
		})
	}
	return out
}

// Validate checks required properties, declared types and, for strict
// models, undeclared keys.
func (m *Model) Validate(rec types.Record, partial bool) error {
	var problems []string
	if !partial {
		for _, p := range m.Properties {
			if v, ok := rec[p.Name]; p.Required && (!ok || v == nil) {
				problems = append(problems, fmt.Sprintf("%s is required", p.Name))
			}
		}
	}
	for _, k := range rec.Keys() {
		if IsIDField(k) {
			continue
		}
		p, ok := m.Property(k)
		if !ok {
			if m.Strict {
				problems = append(problems, fmt.Sprintf("%s is not a declared property", k))
			}
			continue
		}
		if !typeAccepts(p, rec[k]) {
			problems = append(problems, fmt.Sprintf("%s: %T is not a valid %s", k, rec[k], p.Type))
		} else if s, isStr := rec[k].(string); isStr && p.Length > 0 && len([]rune(s)) > p.Length {
			problems = append(problems, fmt.Sprintf("%s exceeds length %d", k, p.Length))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Model: m.Name, Problems: problems}
	}
	return nil
}

func typeAccepts(p Property, v any) bool {
	if v == nil {
		return true
	}
	switch p.Type {
	case StringType:
		_, ok := v.(string)
		return ok
	case BooleanType:
		_, ok := v.(bool)
		return ok
	case NumberType:
		_, ok := toFloat(v)
		return ok
	case IntegerType:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case DateType:
		switch v.(type) {
		case time.Time, primitive.DateTime:
			return true
		}
		return false
	case ObjectIDType:
		switch x := v.(type) {
		case types.ID, primitive.ObjectID:
			return true
		case string:
			return x != ""
		}
		return false
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// PrepareCreate returns the storage form of rec and the id callers will see.
// A missing id is generated.
func (m *Model) PrepareCreate(rec types.Record) (types.Record, types.ID, error) {
	out, err := m.prepare(rec, false)
	if err != nil {
		return nil, types.ID{}, err
	}
	id := out.ID()
	if id.IsZero() {
		id = types.NewID()
	} else if m.StrictIDs && m.IDType == ObjectID && !id.IsNative() {
		return nil, types.ID{}, &InvalidIDError{Model: m.Name, Value: id.String()}
	}
	out[types.IDKey] = id
	return out, m.PresentID(id), nil
}

// PrepareUpdate returns the storage form of a partial record. The id, when
// present, is normalized but never generated.
func (m *Model) PrepareUpdate(rec types.Record) (types.Record, error) {
	return m.prepare(rec, true)
}

func (m *Model) prepare(rec types.Record, partial bool) (types.Record, error) {
	if err := m.Validate(rec, partial); err != nil {
		return nil, err
	}
	out := make(types.Record, len(rec))
	for k, v := range rec {
		if IsIDField(k) {
			if v == nil {
				continue
			}
			id, err := m.NormalizeID(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", m.Name, err)
			}
			if !id.IsZero() {
				out[types.IDKey] = id
			}
			continue
		}
		if m.isObjectIDProperty(k) && v != nil {
			if id, err := m.NormalizeID(v); err == nil {
				out[k] = id
				continue
			}
		}
		out[k] = v
	}
	return out, nil
}

// Present converts a stored record into the form returned to callers.
func (m *Model) Present(rec types.Record) types.Record {
	if rec == nil {
		return nil
	}
	if id := rec.ID(); !id.IsZero() {
		rec[types.IDKey] = m.PresentID(id)
	}
	for _, p := range m.Properties {
		if p.Type != ObjectIDType {
			continue
		}
		if v, ok := rec[p.Name]; ok && v != nil {
			if id, err := types.IDFrom(v); err == nil {
				rec[p.Name] = id
			}
		}
	}
	return rec
}
