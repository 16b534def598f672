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
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/hummer-mongodb/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	idType       = reflect.TypeOf(types.ID{})
	objectIDType = reflect.TypeOf(primitive.ObjectID{})
	timeType     = reflect.TypeOf(time.Time{})
	dateTimeType = reflect.TypeOf(primitive.DateTime(0))
)

// FromStruct derives a model descriptor from the bson and hummer tags of a
// struct. The field mapped to _id decides the id type: string fields give a
// string model, anything else an objectid model.
//
//	type Post struct {
//		ID    types.ID `bson:"_id,omitempty"`
//		Title string   `bson:"title" hummer:"index,length=255"`
//	}
func FromStruct(name string, v any) (Model, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return Model{}, fmt.Errorf("%s: expected a struct, got %T", name, v)
	}
	m := Model{Name: name}
	if err := collectProperties(t, &m); err != nil {
		return Model{}, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

func collectProperties(t reflect.Type, m *Model) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("bson")
		if tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		key := strings.TrimSpace(parts[0])
		inline := false
		for _, p := range parts[1:] {
			if strings.TrimSpace(p) == "inline" {
				inline = true
			}
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if (inline || (f.Anonymous && key == "")) && ft.Kind() == reflect.Struct {
			if err := collectProperties(ft, m); err != nil {
				return err
			}
			continue
		}
		if key == "" {
			key = strings.ToLower(f.Name)
		}
		if IsIDField(key) {
			if ft.Kind() == reflect.String {
				m.IDType = StringID
			}
			continue
		}
		prop := Property{Name: key, Type: inferPropertyType(ft)}
		if err := applyHummerTag(&prop, f.Tag.Get("hummer")); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		m.Properties = append(m.Properties, prop)
	}
	return nil
}

func applyHummerTag(p *Property, tag string) error {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case part == "index":
			p.Index = true
		case part == "unique":
			p.Unique = true
		case part == "required":
			p.Required = true
		case strings.HasPrefix(part, "length="):
			n, err := strconv.Atoi(strings.TrimPrefix(part, "length="))
			if err != nil || n < 0 {
				return fmt.Errorf("invalid length in %q", part)
			}
			p.Length = n
		case strings.HasPrefix(part, "type="):
			typ, err := ParsePropertyType(strings.TrimPrefix(part, "type="))
			if err != nil {
				return err
			}
			p.Type = typ
		default:
			return fmt.Errorf("unknown hummer tag option %q", part)
		}
	}
	return nil
}

func inferPropertyType(t reflect.Type) PropertyType {
	switch t {
	case idType, objectIDType:
		return ObjectIDType
	case timeType, dateTimeType:
		return DateType
	}
	switch t.Kind() {
	case reflect.String:
		return StringType
	case reflect.Bool:
		return BooleanType
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return IntegerType
	case reflect.Float32, reflect.Float64:
		return NumberType
	case reflect.Slice, reflect.Array:
		return ArrayType
	case reflect.Map, reflect.Struct:
		return ObjectType
	default:
		return AnyType
	}
}
