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
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	globalMu      sync.RWMutex
	globalFactory *BaseDatabaseFactory
)

// InitDB connects the global data source described by cfg, syncing indexes
// and seeding data for the default registry when configured to.
func InitDB(cfg *Config) (Connector, error) {
	return InitDataSource(context.Background(), cfg, schema.Default())
}

// InitDataSource connects the global data source for the models in
// registry. A previously initialized data source is closed first.
func InitDataSource(ctx context.Context, cfg *Config, registry *schema.Registry) (Connector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	factory := NewDatabaseFactory()
	if _, err := factory.CreateFromConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := factory.InitializeDatabase(ctx, registry); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	previous := globalFactory
	globalFactory = factory
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}
	return factory.GetConnector(), nil
}

// UseConnector installs c as the global data source without a manager,
// which is what tests and embedders holding their own client need.
func UseConnector(c Connector) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalFactory = &BaseDatabaseFactory{manager: &staticManager{connector: c, logger: GetLogger()}, config: DefaultConfig(), logger: GetLogger()}
}

// GetDataSource returns the global connector, or nil before
// initialization.
func GetDataSource() Connector {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory == nil {
		return nil
	}
	return globalFactory.GetConnector()
}

// GetConnector is an alias of GetDataSource.
func GetConnector() Connector { return GetDataSource() }

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// GetDatabaseFactory returns the global database factory.
func GetDatabaseFactory() *BaseDatabaseFactory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalFactory
}

// CloseDB closes the global data source.
func CloseDB() error {
	globalMu.Lock()
	f := globalFactory
	globalFactory = nil
	globalMu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

// GetHealthStatus returns the current health of the global data source.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetHealthStatus(ctx)
	}
	return &HealthStatus{
		Healthy:   false,
		Connected: false,
		LastError: "Database not initialized",
	}
}

// GetDatabaseStats returns statistics of the global data source.
func GetDatabaseStats() *DBStats {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetStats()
	}
	return &DBStats{}
}

// SyncIndexes runs Autoupdate on the global data source for every model in
// registry, or the default registry when nil.
func SyncIndexes(ctx context.Context, registry *schema.Registry) error {
	m := GetDatabaseManager()
	if m == nil {
		return fmt.Errorf("database not initialized")
	}
	return m.SyncIndexes(ctx, registry)
}

// InitData seeds fixtures into the global data source.
func InitData(ctx context.Context, registry *schema.Registry) error {
	m := GetDatabaseManager()
	if m == nil {
		return fmt.Errorf("database not initialized")
	}
	return m.InitData(ctx, registry)
}

// staticManager adapts a caller owned connector to AbstractDatabaseManager.
type staticManager struct {
	connector Connector
	logger    Logger
}

func (s *staticManager) Connect(context.Context) error       { return nil }
func (s *staticManager) Reconnect(ctx context.Context) error { return s.Ping(ctx) }
func (s *staticManager) Ping(ctx context.Context) error      { return s.connector.Ping(ctx) }
func (s *staticManager) GetConnector() Connector             { return s.connector }
func (s *staticManager) GetStats() *DBStats                  { return &DBStats{} }
func (s *staticManager) SetLogger(logger Logger)             { s.logger = logger }
func (s *staticManager) Disconnect() error                   { return s.connector.Close(context.Background()) }

func (s *staticManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start, Healthy: true, Connected: true}
	if err := s.connector.Ping(ctx); err != nil {
		status.Healthy, status.Connected, status.LastError = false, false, err.Error()
	}
	status.ResponseTime = time.Since(start)
	return status
}

func (s *staticManager) GetClient() *mongo.Client {
	if mc, ok := unwrapConnector(s.connector).(*MongoConnector); ok {
		return mc.Client()
	}
	return nil
}

func (s *staticManager) GetDB() *bun.DB {
	if sc, ok := unwrapConnector(s.connector).(*SQLConnector); ok {
		return sc.DB()
	}
	return nil
}

func (s *staticManager) GetSQLDB() *sql.DB {
	if db := s.GetDB(); db != nil {
		return db.DB
	}
	return nil
}

func (s *staticManager) SyncIndexes(ctx context.Context, registry *schema.Registry) error {
	if registry == nil {
		registry = schema.Default()
	}
	return NewIndexSyncManager(s.connector, s.logger, 0).SyncRegistry(ctx, registry)
}

func (s *staticManager) InitData(ctx context.Context, registry *schema.Registry) error {
	if registry == nil {
		registry = schema.Default()
	}
	d := DefaultConfig().DataInitConfig
	seeder := NewSeedManager(s.connector, registry, d.Environment)
	seeder.SetRootPath(d.Filepath)
	_, err := seeder.Execute(ctx)
	return err
}

// unwrapConnector strips instrumentation.
func unwrapConnector(c Connector) Connector {
	if ic, ok := c.(*instrumentedConnector); ok {
		return ic.Connector
	}
	return c
}
