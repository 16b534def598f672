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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer-mongodb/database"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
)

type User struct {
	ID    types.ID `bson:"_id,omitempty"`
	Name  string   `bson:"name"`
	Email string   `bson:"email,omitempty"`
}

type Post struct {
	ID      types.ID `bson:"_id,omitempty"`
	Title   string   `bson:"title,omitempty"`
	Content string   `bson:"content,omitempty"`
	Views   int      `bson:"views,omitempty"`
	UserID  types.ID `bson:"userId,omitempty"`
}

type Product struct {
	ID   types.ID `bson:"_id,omitempty"`
	Name string   `bson:"name"`
}

type fixture struct {
	registry  *schema.Registry
	connector database.Connector
	users     Repository[User]
	posts     Repository[Post]
	products  Repository[Product]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	r := schema.NewRegistry()
	r.MustDefine(schema.Model{Name: "User", Properties: []schema.Property{
		{Name: "name", Type: schema.StringType},
		{Name: "email", Type: schema.StringType, Unique: true},
	}})
	r.MustDefine(schema.Model{Name: "Post", Properties: []schema.Property{
		{Name: "title", Type: schema.StringType, Index: true},
		{Name: "content", Type: schema.StringType},
		{Name: "views", Type: schema.IntegerType},
	}})
	r.MustDefine(schema.Model{Name: "Product", IDType: schema.StringID, Properties: []schema.Property{
		{Name: "name", Type: schema.StringType},
	}})
	_, err := r.HasMany("User", "Post", "")
	require.NoError(t, err)

	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = database.TypeSQLite
	cfg.ConnectionConfig.DBName = "memory:repo_" + strings.ReplaceAll(t.Name(), "/", "_")
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.ConnectionConfig.SlowQueryTime = 0
	m := database.NewDatabaseManagerWithConfig(cfg)
	m.SetLogger(database.NopLogger{})
	require.NoError(t, m.Connect(ctx))
	t.Cleanup(func() { _ = m.Disconnect() })
	require.NoError(t, m.SyncIndexes(ctx, r))

	c := m.GetConnector()
	f := &fixture{registry: r, connector: c}
	f.users, err = ForModel[User](c, r, "User")
	require.NoError(t, err)
	f.posts, err = ForModel[Post](c, r, "Post")
	require.NoError(t, err)
	f.products, err = ForModel[Product](c, r, "Product")
	require.NoError(t, err)
	return f
}

func TestForModelUnknown(t *testing.T) {
	_, err := ForModel[User](nil, schema.NewRegistry(), "Nope")
	assert.Error(t, err)
}

func TestRepositoryCreateAndFindByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.posts.Create(ctx, &Post{Title: "My Post", Content: "Hello", Views: 3})
	require.NoError(t, err)
	assert.True(t, id.IsNative())
	assert.True(t, types.IsObjectIDHex(id.String()))

	got, err := f.posts.FindByID(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, &Post{ID: id, Title: "My Post", Content: "Hello", Views: 3}, got)

	partial, err := f.posts.FindByID(ctx, id, "title")
	require.NoError(t, err)
	assert.Equal(t, "My Post", partial.Title)
	assert.Empty(t, partial.Content)
	assert.Equal(t, id, partial.ID)

	_, err = f.posts.FindByID(ctx, types.NewID())
	assert.True(t, errors.Is(err, database.ErrNotFound))

	ok, err := f.posts.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.posts.Exists(ctx, types.NewID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryCreateDuplicateID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := types.NewID()
	_, err := f.users.Create(ctx, &User{ID: id, Name: "ann"})
	require.NoError(t, err)
	_, err = f.users.Create(ctx, &User{ID: id, Name: "bob"})
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKey(err))

	var dup *database.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "User", dup.Model)
}

func TestRepositoryCreateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids, err := f.users.CreateAll(ctx,
		&User{Name: "ann", Email: "ann@example.com"},
		&User{Name: "bob", Email: "bob@example.com"},
		&User{Name: "eve", Email: "ann@example.com"},
	)
	require.Error(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, err.Error(), "create User #2")

	n, err := f.users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRepositoryFindAndFindOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.posts.CreateAll(ctx, &Post{Title: "My Post"}, &Post{Title: "Other"})
	require.NoError(t, err)

	like, err := f.posts.Find(ctx, types.NewFilter(types.Where{"title": types.Like("M.+st")}))
	require.NoError(t, err)
	require.Len(t, like, 1)
	assert.Equal(t, "My Post", like[0].Title)

	none, err := f.posts.Find(ctx, types.NewFilter(types.Where{"title": types.Like("M.+XY")}))
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := f.posts.Find(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := f.posts.FindOne(ctx, types.NewFilter(nil).WithOrder("title DESC"))
	require.NoError(t, err)
	assert.Equal(t, "Other", one.Title)

	_, err = f.posts.FindOne(ctx, types.NewFilter(types.Where{"title": "missing"}))
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRepositoryUpdateOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.posts.Create(ctx, &Post{Title: "a", Content: "keep me"})
	require.NoError(t, err)

	updated, err := f.posts.UpdateOrCreate(ctx, types.Record{"id": id.String(), "title": "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Title)
	assert.Equal(t, "keep me", updated.Content)

	updated, err = f.posts.UpdateOrCreate(ctx, &Post{ID: id, Views: 7})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Title)
	assert.Equal(t, 7, updated.Views)

	fresh := types.NewID()
	created, err := f.posts.UpdateOrCreate(ctx, Post{ID: fresh, Title: "new"})
	require.NoError(t, err)
	assert.Equal(t, fresh, created.ID)

	n, err := f.posts.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRepositoryUpdateAllAndDestroy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids, err := f.posts.CreateAll(ctx, &Post{Title: "a"}, &Post{Title: "b"}, &Post{Title: "c"})
	require.NoError(t, err)

	n, err := f.posts.UpdateAll(ctx, types.Where{"title": types.In("a", "b")}, map[string]any{"views": 9})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.posts.Count(ctx, types.Where{"views": 9})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.posts.DestroyByID(ctx, ids[0].String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.posts.DestroyByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.posts.DestroyAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRepositoryPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.posts.Page(ctx, types.NewDefaultPageRequest(1, 2))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)

	for _, title := range []string{"e", "a", "d", "b", "c"} {
		_, err := f.posts.Create(ctx, &Post{Title: title})
		require.NoError(t, err)
	}

	page, err := f.posts.Page(ctx, types.NewPageRequestWithOrders(2, 2, []string{"title ASC"}))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].Title)
	assert.Equal(t, "d", page.Items[1].Title)

	filtered, err := f.posts.Page(ctx, types.NewPageRequest(1, 10, types.Where{"title": types.NLike("^[ab]$")}, []string{"title DESC"}))
	require.NoError(t, err)
	assert.Equal(t, 3, filtered.Total)
	require.Len(t, filtered.Items, 3)
	assert.Equal(t, "e", filtered.Items[0].Title)
}

func TestRepositoryStringIDModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hex := types.NewID().String()
	id, err := f.products.Create(ctx, &Product{ID: types.ParseID(hex), Name: "lamp"})
	require.NoError(t, err)
	assert.Equal(t, types.StringID(hex), id)

	got, err := f.products.FindByID(ctx, hex)
	require.NoError(t, err)
	assert.Equal(t, hex, got.ID.String())
	assert.False(t, got.ID.IsNative())

	plain, err := f.products.Create(ctx, &Product{ID: types.StringID("sku-1"), Name: "desk"})
	require.NoError(t, err)
	assert.Equal(t, types.StringID("sku-1"), plain)
}

func TestRepositoryAccessors(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Post", f.posts.Model().Name)
	assert.Same(t, f.connector, f.posts.Connector())
}
