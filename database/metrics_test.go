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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestInstrumentCountsOutcomes(t *testing.T) {
	s := newBlogSchema(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	ctx := context.Background()

	fc := &fakeConnector{}
	c := Instrument(fc, metrics)

	_, err := c.Create(ctx, s.post, types.Record{"title": "a"})
	require.NoError(t, err)
	_, err = c.FindByID(ctx, s.post, types.NewID(), nil)
	require.ErrorIs(t, err, ErrNotFound)

	fc.err = mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	_, err = c.Create(ctx, s.post, types.Record{"title": "b"})
	require.Error(t, err)

	fc.err = errors.New("boom")
	_, err = c.Find(ctx, s.post, nil)
	require.Error(t, err)

	ops := metrics.operations
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("fake", "Post", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("fake", "Post", "create", "duplicate_key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("fake", "Post", "findById", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("fake", "Post", "find", "error")))
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.latency))

	n, err := testutil.GatherAndCount(reg, "hummer_datasource_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestInstrumentNilMetrics(t *testing.T) {
	fc := &fakeConnector{}
	assert.Same(t, Connector(fc), Instrument(fc, nil))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "not_found", outcome(&NotFoundError{Model: "Post"}))
	assert.Equal(t, "invalid", outcome(&schema.ValidationError{Model: "Post"}))
	assert.Equal(t, "invalid", outcome(&schema.InvalidIDError{Model: "Post", Value: "x"}))
	assert.Equal(t, "timeout", outcome(context.DeadlineExceeded))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}
