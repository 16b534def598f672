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

package repository

import (
	"context"

	"github.com/tomoncle/hummer-mongodb/database"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
)

// CrudRepository defines basic CRUD operations for a generic entity type.
// Entities convert to records through their bson tags; the identifier field
// is tagged `bson:"_id,omitempty"`.
type CrudRepository[T any] interface {
	// FindByID returns the entity with id, limited to fields when given, or
	// an error matching database.ErrNotFound.
	FindByID(ctx context.Context, id any, fields ...string) (*T, error)

	// FindOne returns the first entity matching filter.
	FindOne(ctx context.Context, filter *types.Filter) (*T, error)

	// Find returns the entities matching filter; nil matches everything.
	Find(ctx context.Context, filter *types.Filter) ([]*T, error)

	Count(ctx context.Context, where types.Where) (int64, error)

	Exists(ctx context.Context, id any) (bool, error)

	// Create inserts entity and returns its id, generated when unset.
	Create(ctx context.Context, entity *T) (types.ID, error)

	CreateAll(ctx context.Context, entities ...*T) ([]types.ID, error)

	// UpdateOrCreate upserts by id. data is a *T, T, types.Record or map;
	// fields it does not carry keep their stored values.
	UpdateOrCreate(ctx context.Context, data any) (*T, error)

	UpdateAll(ctx context.Context, where types.Where, data any) (int64, error)

	DestroyByID(ctx context.Context, id any) (int64, error)

	// DestroyAll removes matching entities; an empty where removes all.
	DestroyAll(ctx context.Context, where types.Where) (int64, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines CRUD and pagination and exposes the model and
// connector for advanced use cases.
type Repository[T any] interface {
	CrudRepository[T]
	PageQueryRepository[T]
	Model() *schema.Model
	Connector() database.Connector
}
