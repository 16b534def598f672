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

	"github.com/tomoncle/hummer-mongodb/types"
	"gopkg.in/yaml.v3"
)

// PropertyType is the declared type of a model property.
type PropertyType int

const (
	AnyType PropertyType = iota
	StringType
	NumberType
	IntegerType
	BooleanType
	DateType
	ObjectType
	ArrayType
	ObjectIDType
)

var propertyTypes = []PropertyType{
	AnyType, StringType, NumberType, IntegerType, BooleanType,
	DateType, ObjectType, ArrayType, ObjectIDType,
}

func (p PropertyType) IsValid() bool { return p >= AnyType && p <= ObjectIDType }

func (p PropertyType) Number() int {
	if !p.IsValid() {
		return types.IllegalValue
	}
	return int(p)
}

func (p PropertyType) Name() string {
	switch p {
	case AnyType:
		return "any"
	case StringType:
		return "string"
	case NumberType:
		return "number"
	case IntegerType:
		return "integer"
	case BooleanType:
		return "boolean"
	case DateType:
		return "date"
	case ObjectType:
		return "object"
	case ArrayType:
		return "array"
	case ObjectIDType:
		return "objectid"
	default:
		return types.IllegalName
	}
}

func (p PropertyType) String() string { return p.Name() }

func (p PropertyType) Desc() string {
	if !p.IsValid() {
		return types.IllegalDesc
	}
	return p.Name() + " property"
}

// ParsePropertyType resolves a type name; the empty name is AnyType.
func ParsePropertyType(name string) (PropertyType, error) {
	if name == "" {
		return AnyType, nil
	}
	if p, ok := types.EnumByName(propertyTypes, name); ok {
		return p, nil
	}
	return AnyType, fmt.Errorf("unknown property type %q", name)
}

func (p PropertyType) MarshalYAML() (interface{}, error) { return p.Name(), nil }

func (p *PropertyType) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParsePropertyType(node.Value)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// IDType is the declared identifier type of a model.
type IDType int

const (
	ObjectID IDType = iota
	StringID
)

func (t IDType) IsValid() bool { return t == ObjectID || t == StringID }

func (t IDType) Number() int {
	if !t.IsValid() {
		return types.IllegalValue
	}
	return int(t)
}

func (t IDType) Name() string {
	switch t {
	case ObjectID:
		return "objectid"
	case StringID:
		return "string"
	default:
		return types.IllegalName
	}
}

func (t IDType) String() string { return t.Name() }

func (t IDType) Desc() string {
	switch t {
	case ObjectID:
		return "generated native identifier"
	case StringID:
		return "string identifier, hex values still stored natively"
	default:
		return types.IllegalDesc
	}
}

// ParseIDType resolves an id type name; the empty name is ObjectID.
func ParseIDType(name string) (IDType, error) {
	if name == "" {
		return ObjectID, nil
	}
	if t, ok := types.EnumByName([]IDType{ObjectID, StringID}, name); ok {
		return t, nil
	}
	return ObjectID, fmt.Errorf("unknown id type %q", name)
}

func (t IDType) MarshalYAML() (interface{}, error) { return t.Name(), nil }

func (t *IDType) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseIDType(node.Value)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RelationType is the kind of a relation.
type RelationType int

const (
	HasMany RelationType = iota
	BelongsTo
)

func (r RelationType) IsValid() bool { return r == HasMany || r == BelongsTo }

func (r RelationType) Number() int {
	if !r.IsValid() {
		return types.IllegalValue
	}
	return int(r)
}

func (r RelationType) Name() string {
	switch r {
	case HasMany:
		return "hasMany"
	case BelongsTo:
		return "belongsTo"
	default:
		return types.IllegalName
	}
}

func (r RelationType) String() string { return r.Name() }

func (r RelationType) Desc() string {
	switch r {
	case HasMany:
		return "parent owns zero or more children through a key on the child"
	case BelongsTo:
		return "child references its parent"
	default:
		return types.IllegalDesc
	}
}

func (r RelationType) MarshalYAML() (interface{}, error) { return r.Name(), nil }

func (r *RelationType) UnmarshalYAML(node *yaml.Node) error {
	v, ok := types.EnumByName([]RelationType{HasMany, BelongsTo}, node.Value)
	if !ok {
		return fmt.Errorf("unknown relation type %q", node.Value)
	}
	*r = v
	return nil
}
