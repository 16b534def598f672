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
	"sort"

	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"go.mongodb.org/mongo-driver/bson"
)

// Connector is the storage contract the CRUD layer delegates to. Records
// passed in are caller form; records returned have been presented through
// the model, so ids carry the variant the model's id type calls for.
type Connector interface {
	// Name reports the backend, one of the Type* constants.
	Name() string
	// Create inserts rec, generating an id when none is set, and returns
	// the presented id.
	Create(ctx context.Context, m *schema.Model, rec types.Record) (types.ID, error)
	// Find returns the records matching f; an empty result is not an error.
	Find(ctx context.Context, m *schema.Model, f *types.Filter) ([]types.Record, error)
	// FindByID returns the record with id or a *NotFoundError.
	FindByID(ctx context.Context, m *schema.Model, id any, fields types.Fields) (types.Record, error)
	Count(ctx context.Context, m *schema.Model, where types.Where) (int64, error)
	// UpdateOrCreate replaces the given fields of the record with rec's id,
	// inserting it when missing, and returns the merged record.
	UpdateOrCreate(ctx context.Context, m *schema.Model, rec types.Record) (types.Record, error)
	// UpdateAll sets data on every matching record and returns the number
	// of records matched.
	UpdateAll(ctx context.Context, m *schema.Model, where types.Where, data types.Record) (int64, error)
	// DestroyAll removes every matching record; an empty where removes all.
	DestroyAll(ctx context.Context, m *schema.Model, where types.Where) (int64, error)
	// Autoupdate creates the collection or table and the indexes declared
	// by the model's properties.
	Autoupdate(ctx context.Context, m *schema.Model) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// toDocument renders a prepared record as an ordered document with the id
// first and the remaining keys sorted.
func toDocument(m *schema.Model, rec types.Record) bson.D {
	doc := make(bson.D, 0, len(rec))
	if id := rec.ID(); !id.IsZero() {
		doc = append(doc, bson.E{Key: types.DocumentIDKey, Value: id.StorageValue()})
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if !schema.IsIDField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m.StorageValue(k, rec[k])})
	}
	return doc
}
