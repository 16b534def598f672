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

package hummer

import (
	"context"
	"errors"
	"sync"

	"github.com/tomoncle/hummer-mongodb/database"
	"github.com/tomoncle/hummer-mongodb/repository"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
)

// ErrNoDataSource is returned by services used before the global data
// source is initialized.
var ErrNoDataSource = errors.New("hummer: data source not initialized")

type Service[T any] interface {
	// Get returns a single entity by its identifier, limited to fields when
	// given.
	Get(ctx context.Context, id any, fields ...string) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.Filter) ([]*T, error)

	// First returns the first entity matching filter.
	First(ctx context.Context, filter *types.Filter) (*T, error)

	Count(ctx context.Context, where types.Where) (int64, error)

	Exists(ctx context.Context, id any) (bool, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts one or more new entities and returns their ids.
	Save(ctx context.Context, model ...*T) ([]types.ID, error)

	// SaveOrUpdate upserts by id, keeping stored fields data does not set.
	SaveOrUpdate(ctx context.Context, data any) (*T, error)

	// Update sets data on every entity matching where.
	Update(ctx context.Context, where types.Where, data any) (int64, error)

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) (int64, error)

	// DeleteAll removes matching entities; an empty where removes all.
	DeleteAll(ctx context.Context, where types.Where) (int64, error)

	// Repository exposes the underlying repository.
	Repository() (repository.Repository[T], error)
}

type baseServiceImpl[T any] struct {
	model    string
	registry *schema.Registry
	repo     repository.Repository[T]
	mu       sync.Mutex
}

// NewService returns a Service for the model registered under name in the
// default registry, backed by the global data source. The repository is
// resolved on first use, so services can be declared before InitDB.
func NewService[T any](model string) Service[T] {
	return &baseServiceImpl[T]{model: model, registry: schema.Default()}
}

// NewServiceWithRepository returns a Service over repo.
func NewServiceWithRepository[T any](repo repository.Repository[T]) Service[T] {
	return &baseServiceImpl[T]{repo: repo}
}

func (s *baseServiceImpl[T]) baseRepo() (repository.Repository[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == "" {
		if s.repo == nil {
			return nil, ErrNoDataSource
		}
		return s.repo, nil
	}
	// The data source changes on Reconnect and InitDataSource.
	c := database.GetDataSource()
	if c == nil {
		return nil, ErrNoDataSource
	}
	if s.repo != nil && s.repo.Connector() == c {
		return s.repo, nil
	}
	repo, err := repository.ForModel[T](c, s.registry, s.model)
	if err != nil {
		return nil, err
	}
	s.repo = repo
	return repo, nil
}

func (s *baseServiceImpl[T]) Repository() (repository.Repository[T], error) {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any, fields ...string) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, id, fields...)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.Filter) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Find(ctx, filter)
}

func (s *baseServiceImpl[T]) First(ctx context.Context, filter *types.Filter) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindOne(ctx, filter)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, where types.Where) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, where)
}

func (s *baseServiceImpl[T]) Exists(ctx context.Context, id any) (bool, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return false, err
	}
	return repo.Exists(ctx, id)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) ([]types.ID, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.CreateAll(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, data any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.UpdateOrCreate(ctx, data)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, where types.Where, data any) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.UpdateAll(ctx, where, data)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.DestroyByID(ctx, id)
}

func (s *baseServiceImpl[T]) DeleteAll(ctx context.Context, where types.Where) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.DestroyAll(ctx, where)
}
