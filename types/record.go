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
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDKey is the identifier key of a Record; DocumentIDKey is its document
// database counterpart.
const (
	IDKey         = "id"
	DocumentIDKey = "_id"
)

// Record is the untyped form of a persisted entity. The id key, when present,
// holds a types.ID.
type Record map[string]any

// ID returns the record identifier, or the zero ID when absent.
func (r Record) ID() ID {
	if r == nil {
		return ID{}
	}
	id, _ := IDFrom(r[IDKey])
	return id
}

// SetID stores id under the id key.
func (r Record) SetID(id ID) Record {
	r[IDKey] = id
	return r
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Without returns a copy of r without the given keys.
func (r Record) Without(keys ...string) Record {
	out := r.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode converts v into a Record. Records and plain maps are copied; any
// other value goes through its bson tags, with _id surfaced as id.
func Encode(v any) (Record, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("cannot encode nil value")
	case Record:
		return normalizeRecord(x.Clone())
	case map[string]any:
		return normalizeRecord(Record(x).Clone())
	case bson.M:
		return normalizeRecord(Record(x).Clone())
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return FromBSON(data)
}

// FromBSON decodes a raw document into a Record.
func FromBSON(data []byte) (Record, error) {
	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(data))
	if err != nil {
		return nil, err
	}
	dec.DefaultDocumentM()
	var m bson.M
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return normalizeRecord(Record(m))
}

func normalizeRecord(r Record) (Record, error) {
	if raw, ok := r[DocumentIDKey]; ok {
		delete(r, DocumentIDKey)
		if _, has := r[IDKey]; !has {
			r[IDKey] = raw
		}
	}
	for k, v := range r {
		r[k] = plainValue(v)
	}
	if raw, ok := r[IDKey]; ok {
		id, err := IDFrom(raw)
		if err != nil {
			return nil, err
		}
		if id.IsZero() {
			delete(r, IDKey)
		} else {
			r[IDKey] = id
		}
	}
	return r, nil
}

// plainValue strips driver specific container types from decoded values.
func plainValue(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.A:
		out := make([]any, len(x))
		for i := range x {
			out[i] = plainValue(x[i])
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plainValue(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

// Decode converts a Record into T through bson tags; the id key is exposed to
// T as _id.
func Decode[T any](r Record) (*T, error) {
	out := new(T)
	if err := DecodeInto(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeInto is Decode for a caller supplied target.
func DecodeInto(r Record, out any) error {
	if rec, ok := out.(*Record); ok {
		*rec = r.Clone()
		return nil
	}
	doc := r.Without(IDKey)
	if id := r.ID(); !id.IsZero() {
		doc[DocumentIDKey] = id
	}
	data, err := bson.Marshal(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode record into %T: %w", out, err)
	}
	return nil
}
