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
	"time"

	"github.com/tomoncle/hummer-mongodb/schema"
	"golang.org/x/sync/errgroup"
)

const defaultSyncConcurrency = 4

// IndexSyncManager runs Autoupdate for a set of models in parallel.
type IndexSyncManager struct {
	connector   Connector
	logger      Logger
	concurrency int
}

// NewIndexSyncManager returns a manager bounded to concurrency workers; a
// non-positive value selects the default.
func NewIndexSyncManager(c Connector, logger Logger, concurrency int) *IndexSyncManager {
	if logger == nil {
		logger = GetLogger()
	}
	if concurrency <= 0 {
		concurrency = defaultSyncConcurrency
	}
	return &IndexSyncManager{connector: c, logger: logger, concurrency: concurrency}
}

// SyncRegistry syncs every model defined in r.
func (s *IndexSyncManager) SyncRegistry(ctx context.Context, r *schema.Registry) error {
	return s.Sync(ctx, r.Models()...)
}

// Sync creates the storage and indexes of models. The first failure
// cancels the remaining work and is returned.
func (s *IndexSyncManager) Sync(ctx context.Context, models ...*schema.Model) error {
	if len(models) == 0 {
		return nil
	}
	start := time.Now()
	s.logger.Info("Starting index sync", "backend", s.connector.Name(), "models", len(models))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, m := range models {
		m := m
		g.Go(func() error {
			if err := s.connector.Autoupdate(ctx, m); err != nil {
				return fmt.Errorf("autoupdate %s: %w", m.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Index sync failed", "error", err)
		return err
	}
	s.logger.Info("Index sync completed", "models", len(models), "duration", time.Since(start).String())
	return nil
}
