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
	"fmt"

	"github.com/tomoncle/hummer-mongodb/database"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
)

type baseRepositoryImpl[T any] struct {
	connector database.Connector
	model     *schema.Model
}

// NewRepository returns a generic repository for model backed by c.
func NewRepository[T any](c database.Connector, model *schema.Model) Repository[T] {
	return &baseRepositoryImpl[T]{connector: c, model: model}
}

// ForModel looks name up in registry and returns its repository.
func ForModel[T any](c database.Connector, registry *schema.Registry, name string) (Repository[T], error) {
	m, err := registry.Model(name)
	if err != nil {
		return nil, err
	}
	return NewRepository[T](c, m), nil
}

func (r *baseRepositoryImpl[T]) Model() *schema.Model { return r.model }

func (r *baseRepositoryImpl[T]) Connector() database.Connector { return r.connector }

func (r *baseRepositoryImpl[T]) FindByID(ctx context.Context, id any, fields ...string) (*T, error) {
	var projection types.Fields
	if len(fields) > 0 {
		projection = types.Include(fields...)
	}
	rec, err := r.connector.FindByID(ctx, r.model, id, projection)
	if err != nil {
		return nil, err
	}
	return types.Decode[T](rec)
}

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, filter *types.Filter) (*T, error) {
	f := filter.Clone()
	f.Limit = 1
	recs, err := r.connector.Find(ctx, r.model, f)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &database.NotFoundError{Model: r.model.Name}
	}
	return types.Decode[T](recs[0])
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, filter *types.Filter) ([]*T, error) {
	recs, err := r.connector.Find(ctx, r.model, filter)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](recs)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, where types.Where) (int64, error) {
	return r.connector.Count(ctx, r.model, where)
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, id any) (bool, error) {
	n, err := r.connector.Count(ctx, r.model, types.Where{types.IDKey: id})
	return n > 0, err
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity *T) (types.ID, error) {
	rec, err := types.Encode(entity)
	if err != nil {
		return types.ID{}, err
	}
	return r.connector.Create(ctx, r.model, rec)
}

// CreateAll inserts entities one by one and stops at the first failure,
// returning the ids created so far.
func (r *baseRepositoryImpl[T]) CreateAll(ctx context.Context, entities ...*T) ([]types.ID, error) {
	ids := make([]types.ID, 0, len(entities))
	for i, entity := range entities {
		id, err := r.Create(ctx, entity)
		if err != nil {
			return ids, fmt.Errorf("create %s #%d: %w", r.model.Name, i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *baseRepositoryImpl[T]) UpdateOrCreate(ctx context.Context, data any) (*T, error) {
	rec, err := types.Encode(data)
	if err != nil {
		return nil, err
	}
	out, err := r.connector.UpdateOrCreate(ctx, r.model, rec)
	if err != nil {
		return nil, err
	}
	return types.Decode[T](out)
}

func (r *baseRepositoryImpl[T]) UpdateAll(ctx context.Context, where types.Where, data any) (int64, error) {
	rec, err := types.Encode(data)
	if err != nil {
		return 0, err
	}
	return r.connector.UpdateAll(ctx, r.model, where, rec)
}

func (r *baseRepositoryImpl[T]) DestroyByID(ctx context.Context, id any) (int64, error) {
	nid, err := r.model.NormalizeID(id)
	if err != nil {
		return 0, err
	}
	return r.connector.DestroyAll(ctx, r.model, types.Where{types.IDKey: nid})
}

func (r *baseRepositoryImpl[T]) DestroyAll(ctx context.Context, where types.Where) (int64, error) {
	return r.connector.DestroyAll(ctx, r.model, where)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := r.connector.Count(ctx, r.model, pageRequest.GetWhere())
	if err != nil || total == 0 {
		return pagination, err
	}
	recs, err := r.connector.Find(ctx, r.model, pageRequest.Filter())
	if err != nil {
		return nil, err
	}
	items, err := decodeAll[T](recs)
	if err != nil {
		return nil, err
	}
	pagination.Total = int(total)
	pagination.Items = items
	return pagination, nil
}

func decodeAll[T any](recs []types.Record) ([]*T, error) {
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		v, err := types.Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
