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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type blogSchema struct {
	registry *schema.Registry
	user     *schema.Model
	post     *schema.Model
	product  *schema.Model
}

func newBlogSchema(t *testing.T) *blogSchema {
	t.Helper()
	r := schema.NewRegistry()
	s := &blogSchema{
		registry: r,
		user: r.MustDefine(schema.Model{Name: "User", Properties: []schema.Property{
			{Name: "name", Type: schema.StringType},
			{Name: "email", Type: schema.StringType, Unique: true},
		}}),
		post: r.MustDefine(schema.Model{Name: "Post", Properties: []schema.Property{
			{Name: "title", Type: schema.StringType, Index: true},
			{Name: "content", Type: schema.StringType},
			{Name: "views", Type: schema.IntegerType},
			{Name: "draft", Type: schema.BooleanType},
			{Name: "tags", Type: schema.ArrayType},
			{Name: "createdAt", Type: schema.DateType},
		}}),
		product: r.MustDefine(schema.Model{Name: "Product", IDType: schema.StringID, Properties: []schema.Property{
			{Name: "name", Type: schema.StringType},
		}}),
	}
	_, err := r.HasMany("User", "Post", "")
	require.NoError(t, err)
	return s
}

func newSQLiteConnector(t *testing.T, s *blogSchema) *SQLConnector {
	t.Helper()
	name := "memory:" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqlDB, err := openSQLite(name)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	c := NewSQLConnector(db, NopLogger{})
	require.NoError(t, NewIndexSyncManager(c, NopLogger{}, 2).SyncRegistry(context.Background(), s.registry))
	return c
}

func TestSQLConnectorCreateGeneratesObjectID(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	id1, err := c.Create(ctx, s.post, types.Record{"title": "a"})
	require.NoError(t, err)
	id2, err := c.Create(ctx, s.post, types.Record{"title": "b"})
	require.NoError(t, err)

	assert.True(t, id1.IsNative())
	assert.True(t, types.IsObjectIDHex(id1.String()))
	assert.NotEqual(t, id1.String(), id2.String())
}

func TestSQLConnectorDuplicateID(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()
	id := types.NewID()

	_, err := c.Create(ctx, s.post, types.Record{"id": id, "title": "first"})
	require.NoError(t, err)
	_, err = c.Create(ctx, s.post, types.Record{"id": id.String(), "title": "second"})
	require.Error(t, err)

	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup), err.Error())
	assert.Equal(t, "Post", dup.Model)
	assert.Equal(t, id.String(), dup.ID)
}

func TestSQLConnectorFindByID(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	id, err := c.Create(ctx, s.post, types.Record{
		"title":     "My Post",
		"content":   "Hello",
		"views":     3,
		"draft":     true,
		"tags":      []any{"a", "b"},
		"createdAt": at,
	})
	require.NoError(t, err)

	got, err := c.FindByID(ctx, s.post, id.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID())
	assert.Equal(t, "My Post", got["title"])
	assert.Equal(t, "Hello", got["content"])
	assert.Equal(t, int64(3), got["views"])
	assert.Equal(t, true, got["draft"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])
	createdAt, ok := got["createdAt"].(time.Time)
	require.True(t, ok)
	assert.True(t, at.Equal(createdAt))

	_, err = c.FindByID(ctx, s.post, types.NewID(), nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLConnectorLikeAndNotLike(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	_, err := c.Create(ctx, s.post, types.Record{"title": "My Post", "content": "Hello"})
	require.NoError(t, err)

	tests := []struct {
		name string
		cond types.Cond
		want int
	}{
		{"like matches", types.Like("M.+st"), 1},
		{"nlike excludes", types.NLike("M.+st"), 0},
		{"like misses", types.Like("M.+XY"), 0},
		{"nlike keeps", types.NLike("M.+XY"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Find(ctx, s.post, types.NewFilter(types.Where{"title": tt.cond}))
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSQLConnectorFieldsProjection(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	id, err := c.Create(ctx, s.post, types.Record{"title": "My Post", "content": "Hello"})
	require.NoError(t, err)

	got, err := c.Find(ctx, s.post, types.NewFilter(nil).WithFields(types.Include("title")))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID())
	assert.Equal(t, "My Post", got[0]["title"])
	assert.NotContains(t, got[0], "content")

	one, err := c.FindByID(ctx, s.post, id, types.Include("content"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", one["content"])
	assert.NotContains(t, one, "title")
}

func TestSQLConnectorUpdateOrCreate(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	id, err := c.Create(ctx, s.post, types.Record{"title": "a", "content": "AAA"})
	require.NoError(t, err)

	got, err := c.UpdateOrCreate(ctx, s.post, types.Record{"id": id.String(), "title": "b"})
	require.NoError(t, err)
	assert.Equal(t, id, got.ID())
	assert.Equal(t, "b", got["title"])
	assert.Equal(t, "AAA", got["content"])

	fresh := types.NewID()
	got, err = c.UpdateOrCreate(ctx, s.post, types.Record{"id": fresh, "title": "c"})
	require.NoError(t, err)
	assert.Equal(t, fresh, got.ID())

	n, err := c.Count(ctx, s.post, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLConnectorStringIDModel(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()
	hex := types.NewID().String()

	id, err := c.Create(ctx, s.product, types.Record{"id": hex, "name": "widget"})
	require.NoError(t, err)
	assert.False(t, id.IsNative())
	assert.Equal(t, hex, id.String())

	got, err := c.FindByID(ctx, s.product, hex, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StringID(hex), got.ID())

	plain, err := c.Create(ctx, s.product, types.Record{"id": "sku-1", "name": "plain"})
	require.NoError(t, err)
	assert.Equal(t, types.StringID("sku-1"), plain)
}

func TestSQLConnectorHasManyFilter(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	uid, err := c.Create(ctx, s.user, types.Record{"name": "ann", "email": "ann@example.com"})
	require.NoError(t, err)
	pid, err := c.Create(ctx, s.post, types.Record{"title": "mine", "userId": uid})
	require.NoError(t, err)
	_, err = c.Create(ctx, s.post, types.Record{"title": "also mine", "userId": uid.String()})
	require.NoError(t, err)
	_, err = c.Create(ctx, s.post, types.Record{"title": "orphan"})
	require.NoError(t, err)

	all, err := c.Find(ctx, s.post, types.NewFilter(types.Where{"userId": uid}))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := c.Find(ctx, s.post, types.NewFilter(types.And(types.Where{"userId": uid}, types.Where{"id": pid})))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, pid, one[0].ID())
	assert.Equal(t, uid, one[0]["userId"])
}

func TestSQLConnectorUpdateAndDestroy(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := c.Create(ctx, s.post, types.Record{"title": title, "views": 1})
		require.NoError(t, err)
	}

	n, err := c.UpdateAll(ctx, s.post, types.Where{"title": types.In("a", "b")}, types.Record{"views": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.Count(ctx, s.post, types.Where{"views": types.Gt(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ordered, err := c.Find(ctx, s.post, types.NewFilter(nil).WithOrder("title DESC").WithLimit(2, 1))
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "b", ordered[0]["title"])
	assert.Equal(t, "a", ordered[1]["title"])

	n, err = c.DestroyAll(ctx, s.post, types.Where{"title": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.DestroyAll(ctx, s.post, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	empty, err := c.Find(ctx, s.post, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSQLConnectorAutoupdateAddsColumns(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	extended := *s.user
	extended.Properties = append(append([]schema.Property(nil), s.user.Properties...),
		schema.Property{Name: "age", Type: schema.NumberType, Index: true})
	require.NoError(t, c.Autoupdate(ctx, &extended))
	require.NoError(t, c.Autoupdate(ctx, &extended))

	id, err := c.Create(ctx, &extended, types.Record{"name": "bob", "age": 41.5})
	require.NoError(t, err)
	got, err := c.FindByID(ctx, &extended, id, nil)
	require.NoError(t, err)
	assert.Equal(t, 41.5, got["age"])
}

func TestSQLConnectorDropsUndeclaredKeys(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	id, err := c.Create(ctx, s.post, types.Record{"title": "a", "extra": "ignored"})
	require.NoError(t, err)
	got, err := c.FindByID(ctx, s.post, id, nil)
	require.NoError(t, err)
	assert.NotContains(t, got, "extra")
	assert.Equal(t, TypeSQLite, c.Name())
	assert.NoError(t, c.Ping(ctx))
}

func TestSQLConnectorIntegerIDsAndUndeclaredFilters(t *testing.T) {
	s := newBlogSchema(t)
	c := newSQLiteConnector(t, s)
	ctx := context.Background()

	id, err := c.Create(ctx, s.post, types.Record{"id": 5, "title": "five"})
	require.NoError(t, err)
	assert.Equal(t, types.StringID("5"), id)
	_, err = c.Create(ctx, s.post, types.Record{"title": "other"})
	require.NoError(t, err)

	found, err := c.Find(ctx, s.post, types.NewFilter(types.Where{"id": 5}))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "five", found[0]["title"])

	n, err := c.Count(ctx, s.post, types.Where{"author": "x"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.Count(ctx, s.post, types.Where{"author": types.NLike("x")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
