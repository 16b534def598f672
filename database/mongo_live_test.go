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
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer-mongodb/types"
)

// liveMongoEnv points the live suite at a running server, e.g.
// HUMMER_MONGODB_URI=mongodb://localhost:27017.
const liveMongoEnv = "HUMMER_MONGODB_URI"

func TestMongoConnectorLive(t *testing.T) {
	uri := os.Getenv(liveMongoEnv)
	if uri == "" || testing.Short() {
		t.Skipf("%s not set", liveMongoEnv)
	}

	cfg := DefaultConfig()
	cfg.ConnectionConfig.URI = uri
	cfg.ConnectionConfig.DBName = fmt.Sprintf("hummer_test_%d", time.Now().UnixNano())
	cfg.ConnectionConfig.HealthCheckInterval = 0
	dm := NewDatabaseManagerWithConfig(cfg)
	dm.SetLogger(NopLogger{})
	ctx := context.Background()
	require.NoError(t, dm.Connect(ctx))
	t.Cleanup(func() {
		_ = dm.GetClient().Database(cfg.ConnectionConfig.DBName).Drop(context.Background())
		_ = dm.Disconnect()
	})

	s := newBlogSchema(t)
	require.NoError(t, dm.SyncIndexes(ctx, s.registry))
	c := dm.GetConnector()

	id, err := c.Create(ctx, s.post, types.Record{"title": "My Post", "content": "Hello"})
	require.NoError(t, err)
	assert.True(t, types.IsObjectIDHex(id.String()))

	_, err = c.Create(ctx, s.post, types.Record{"id": id.String(), "title": "again"})
	assert.True(t, IsDuplicateKey(err))

	for pattern, want := range map[string][2]int{"M.+st": {1, 0}, "M.+XY": {0, 1}} {
		like, err := c.Find(ctx, s.post, types.NewFilter(types.Where{"title": types.Like(pattern)}))
		require.NoError(t, err)
		nlike, err := c.Find(ctx, s.post, types.NewFilter(types.Where{"title": types.NLike(pattern)}))
		require.NoError(t, err)
		assert.Len(t, like, want[0], pattern)
		assert.Len(t, nlike, want[1], pattern)
	}

	got, err := c.FindByID(ctx, s.post, id.String(), types.Include("title"))
	require.NoError(t, err)
	assert.Equal(t, id, got.ID())
	assert.NotContains(t, got, "content")

	merged, err := c.UpdateOrCreate(ctx, s.post, types.Record{"id": id, "title": "changed"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", merged["content"])

	hex := types.NewID().String()
	pid, err := c.Create(ctx, s.product, types.Record{"id": hex, "name": "widget"})
	require.NoError(t, err)
	assert.Equal(t, types.StringID(hex), pid)

	uid, err := c.Create(ctx, s.user, types.Record{"name": "ann", "email": "ann@example.com"})
	require.NoError(t, err)
	_, err = c.Create(ctx, s.user, types.Record{"name": "bob", "email": "ann@example.com"})
	assert.True(t, IsDuplicateKey(err), "unique email index")
	childID, err := c.Create(ctx, s.post, types.Record{"title": "child", "userId": uid})
	require.NoError(t, err)
	children, err := c.Find(ctx, s.post, types.NewFilter(types.And(types.Where{"userId": uid}, types.Where{"id": childID})))
	require.NoError(t, err)
	assert.Len(t, children, 1)

	n, err := c.DestroyAll(ctx, s.post, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, dm.HealthCheck(ctx).Healthy)
}
