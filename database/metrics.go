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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
)

const (
	metricsNamespace = "hummer"
	metricsSubsystem = "datasource"
)

// Metrics counts connector operations and records their latency.
type Metrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "operations_total",
			Help:      "Connector operations by backend, model, operation and outcome.",
		}, []string{"backend", "model", "operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "operation_duration_seconds",
			Help:      "Connector operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "model", "operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.latency)
	}
	return m
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns metrics registered with the default registerer.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func (m *Metrics) observe(backend, model, op string, start time.Time, err error) {
	m.operations.WithLabelValues(backend, model, op, outcome(err)).Inc()
	m.latency.WithLabelValues(backend, model, op).Observe(time.Since(start).Seconds())
}

// outcome labels an operation result; driver errors are labelled by kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	var ve *schema.ValidationError
	var ie *schema.InvalidIDError
	if errors.As(err, &ve) || errors.As(err, &ie) {
		return "invalid"
	}
	if is, kind := Classify(err); is {
		return kind.String()
	}
	return "error"
}

type instrumentedConnector struct {
	Connector
	metrics *Metrics
}

// Instrument wraps c so every data operation is counted and timed.
func Instrument(c Connector, m *Metrics) Connector {
	if m == nil {
		return c
	}
	return &instrumentedConnector{Connector: c, metrics: m}
}

func (c *instrumentedConnector) Create(ctx context.Context, m *schema.Model, rec types.Record) (types.ID, error) {
	start := time.Now()
	id, err := c.Connector.Create(ctx, m, rec)
	c.metrics.observe(c.Name(), m.Name, "create", start, err)
	return id, err
}

func (c *instrumentedConnector) Find(ctx context.Context, m *schema.Model, f *types.Filter) ([]types.Record, error) {
	start := time.Now()
	out, err := c.Connector.Find(ctx, m, f)
	c.metrics.observe(c.Name(), m.Name, "find", start, err)
	return out, err
}

func (c *instrumentedConnector) FindByID(ctx context.Context, m *schema.Model, id any, fields types.Fields) (types.Record, error) {
	start := time.Now()
	out, err := c.Connector.FindByID(ctx, m, id, fields)
	c.metrics.observe(c.Name(), m.Name, "findById", start, err)
	return out, err
}

func (c *instrumentedConnector) Count(ctx context.Context, m *schema.Model, where types.Where) (int64, error) {
	start := time.Now()
	n, err := c.Connector.Count(ctx, m, where)
	c.metrics.observe(c.Name(), m.Name, "count", start, err)
	return n, err
}

func (c *instrumentedConnector) UpdateOrCreate(ctx context.Context, m *schema.Model, rec types.Record) (types.Record, error) {
	start := time.Now()
	out, err := c.Connector.UpdateOrCreate(ctx, m, rec)
	c.metrics.observe(c.Name(), m.Name, "updateOrCreate", start, err)
	return out, err
}

func (c *instrumentedConnector) UpdateAll(ctx context.Context, m *schema.Model, where types.Where, data types.Record) (int64, error) {
	start := time.Now()
	n, err := c.Connector.UpdateAll(ctx, m, where, data)
	c.metrics.observe(c.Name(), m.Name, "updateAll", start, err)
	return n, err
}

func (c *instrumentedConnector) DestroyAll(ctx context.Context, m *schema.Model, where types.Where) (int64, error) {
	start := time.Now()
	n, err := c.Connector.DestroyAll(ctx, m, where)
	c.metrics.observe(c.Name(), m.Name, "destroyAll", start, err)
	return n, err
}
