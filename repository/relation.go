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

// HasMany reaches the children C of a parent record through a hasMany
// relation. Every call is scoped to one parent id.
type HasMany[C any] struct {
	connector database.Connector
	relation  schema.Relation
	parent    *schema.Model
	child     *schema.Model
}

// NewHasMany resolves the hasMany relation name declared on parent.
func NewHasMany[C any](c database.Connector, registry *schema.Registry, parent, name string) (*HasMany[C], error) {
	rel, ok := registry.Relation(parent, name)
	if !ok || rel.Type != schema.HasMany {
		return nil, fmt.Errorf("%s has no hasMany relation %q", parent, name)
	}
	p, err := registry.Model(rel.Model)
	if err != nil {
		return nil, err
	}
	ch, err := registry.Model(rel.Target)
	if err != nil {
		return nil, err
	}
	return &HasMany[C]{connector: c, relation: rel, parent: p, child: ch}, nil
}

func (h *HasMany[C]) Relation() schema.Relation { return h.relation }

// scope returns the where clause selecting the children of parentID.
func (h *HasMany[C]) scope(parentID any) (types.Where, error) {
	v, err := foreignKeyValue(h.parent, h.child, h.relation.ForeignKey, parentID)
	if err != nil {
		return nil, err
	}
	return types.Where{h.relation.ForeignKey: v}, nil
}

// Find returns the children of parentID that also match filter.
func (h *HasMany[C]) Find(ctx context.Context, parentID any, filter *types.Filter) ([]*C, error) {
	scope, err := h.scope(parentID)
	if err != nil {
		return nil, err
	}
	f := filter.Clone()
	f.Where = types.And(scope, f.Where)
	recs, err := h.connector.Find(ctx, h.child, f)
	if err != nil {
		return nil, err
	}
	return decodeAll[C](recs)
}

// Create stores child with its foreign key set to parentID.
func (h *HasMany[C]) Create(ctx context.Context, parentID any, child *C) (types.ID, error) {
	scope, err := h.scope(parentID)
	if err != nil {
		return types.ID{}, err
	}
	rec, err := types.Encode(child)
	if err != nil {
		return types.ID{}, err
	}
	for k, v := range scope {
		rec[k] = v
	}
	return h.connector.Create(ctx, h.child, rec)
}

func (h *HasMany[C]) Count(ctx context.Context, parentID any, where types.Where) (int64, error) {
	scope, err := h.scope(parentID)
	if err != nil {
		return 0, err
	}
	return h.connector.Count(ctx, h.child, types.And(scope, where))
}

func (h *HasMany[C]) DestroyAll(ctx context.Context, parentID any, where types.Where) (int64, error) {
	scope, err := h.scope(parentID)
	if err != nil {
		return 0, err
	}
	return h.connector.DestroyAll(ctx, h.child, types.And(scope, where))
}

// BelongsTo loads the parent P of a child record.
type BelongsTo[P any] struct {
	connector database.Connector
	relation  schema.Relation
	parent    *schema.Model
}

// NewBelongsTo resolves the belongsTo relation name declared on child.
func NewBelongsTo[P any](c database.Connector, registry *schema.Registry, child, name string) (*BelongsTo[P], error) {
	rel, ok := registry.Relation(child, name)
	if !ok || rel.Type != schema.BelongsTo {
		return nil, fmt.Errorf("%s has no belongsTo relation %q", child, name)
	}
	p, err := registry.Model(rel.Target)
	if err != nil {
		return nil, err
	}
	return &BelongsTo[P]{connector: c, relation: rel, parent: p}, nil
}

func (b *BelongsTo[P]) Relation() schema.Relation { return b.relation }

// Get loads the parent referenced by child's foreign key. child is an
// entity pointer, a types.Record or a map. A child without a foreign key
// yields a database.NotFoundError.
func (b *BelongsTo[P]) Get(ctx context.Context, child any) (*P, error) {
	rec, err := types.Encode(child)
	if err != nil {
		return nil, err
	}
	fk, ok := rec[b.relation.ForeignKey]
	if !ok || fk == nil {
		return nil, &database.NotFoundError{Model: b.parent.Name}
	}
	out, err := b.connector.FindByID(ctx, b.parent, fk, nil)
	if err != nil {
		return nil, err
	}
	return types.Decode[P](out)
}

// foreignKeyValue converts a parent id into the form the child stores: an
// id for objectid keys and the id text for string keys.
func foreignKeyValue(parent, child *schema.Model, fk string, parentID any) (any, error) {
	id, err := parent.NormalizeID(parentID)
	if err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, fmt.Errorf("%s: empty parent id", parent.Name)
	}
	if p, ok := child.Property(fk); ok && p.Type == schema.StringType {
		return id.String(), nil
	}
	return id, nil
}
