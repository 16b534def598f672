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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer-mongodb/database"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
)

type Note struct {
	ID    types.ID `bson:"_id,omitempty"`
	Title string   `bson:"title,omitempty"`
	Body  string   `bson:"body,omitempty"`
}

func init() {
	schema.Default().MustDefine(schema.Model{Name: "Note", Properties: []schema.Property{
		{Name: "title", Type: schema.StringType, Index: true},
		{Name: "body", Type: schema.StringType},
	}})
}

func useSQLite(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = database.TypeSQLite
	cfg.ConnectionConfig.DBName = "memory:service_" + t.Name()
	cfg.ConnectionConfig.HealthCheckInterval = 0
	m := database.NewDatabaseManagerWithConfig(cfg)
	m.SetLogger(database.NopLogger{})
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.SyncIndexes(ctx, schema.Default()))
	database.UseConnector(m.GetConnector())
	t.Cleanup(func() { _ = database.CloseDB() })
}

func TestServiceWithoutDataSource(t *testing.T) {
	require.NoError(t, database.CloseDB())
	svc := NewService[Note]("Note")
	_, err := svc.All(context.Background())
	assert.ErrorIs(t, err, ErrNoDataSource)
}

func TestServiceUnknownModel(t *testing.T) {
	useSQLite(t)
	svc := NewService[Note]("Missing")
	_, err := svc.Count(context.Background(), nil)
	assert.ErrorIs(t, err, schema.ErrUnknownModel)
}

func TestServiceLifecycle(t *testing.T) {
	useSQLite(t)
	ctx := context.Background()
	svc := NewService[Note]("Note")

	ids, err := svc.Save(ctx, &Note{Title: "My Post", Body: "Hello"}, &Note{Title: "Other"})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	got, err := svc.Get(ctx, ids[0].String())
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Body)

	ok, err := svc.Exists(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	matched, err := svc.List(ctx, types.NewFilter(types.Where{"title": types.Like("M.+st")}))
	require.NoError(t, err)
	assert.Len(t, matched, 1)

	first, err := svc.First(ctx, types.NewFilter(nil).WithOrder("title DESC"))
	require.NoError(t, err)
	assert.Equal(t, "Other", first.Title)

	merged, err := svc.SaveOrUpdate(ctx, types.Record{"id": ids[0], "title": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", merged.Title)
	assert.Equal(t, "Hello", merged.Body)

	n, err := svc.Update(ctx, types.Where{"body": types.Exists(false)}, types.Record{"body": "filled"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	page, err := svc.Page(ctx, types.NewDefaultPageRequest(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	n, err = svc.Delete(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.DeleteAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	repo, err := svc.Repository()
	require.NoError(t, err)
	assert.Equal(t, "Note", repo.Model().Name)
}

func TestServiceFollowsReconnect(t *testing.T) {
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = database.TypeSQLite
	cfg.ConnectionConfig.DBName = filepath.Join(t.TempDir(), "notes.db")
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.IndexSyncConfig.SyncOnStartup = true
	_, err := database.InitDataSource(ctx, cfg, schema.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })

	svc := NewService[Note]("Note")
	_, err = svc.Save(ctx, &Note{Title: "kept"})
	require.NoError(t, err)
	before, err := svc.Repository()
	require.NoError(t, err)

	require.NoError(t, database.GetDatabaseManager().Reconnect(ctx))
	n, err := svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	after, err := svc.Repository()
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, database.GetDataSource(), after.Connector())

	// A fresh InitDataSource replaces and closes the previous source.
	_, err = database.InitDataSource(ctx, cfg, schema.Default())
	require.NoError(t, err)
	n, err = svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestServiceWithNilRepository(t *testing.T) {
	svc := NewServiceWithRepository[Note](nil)
	_, err := svc.Count(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDataSource)
}
