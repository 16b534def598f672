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
	"net/url"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type defaultDatabaseManager struct {
	config          *Config
	connector       Connector
	client          *mongo.Client
	db              *bun.DB
	sqlDB           *sql.DB
	poolStats       *PoolStats
	metrics         *Metrics
	logger          Logger
	mu              sync.RWMutex
	connected       bool
	lastError       error
	lastHealthCheck time.Time
	healthStatus    *HealthStatus
	reconnectTries  int
	// stopHealthCheck is closed to end the current health loop; nil when no
	// loop runs.
	stopHealthCheck chan struct{}
}

// NewDatabaseManager returns a manager for the given connection. If config
// is nil, the default configuration is used.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	cfg := DefaultConfig()
	if config != nil {
		cfg.ConnectionConfig = *config
	}
	return NewDatabaseManagerWithConfig(cfg)
}

// NewDatabaseManagerWithConfig returns a manager that also knows how to sync
// indexes and seed data.
func NewDatabaseManagerWithConfig(cfg *Config) AbstractDatabaseManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &defaultDatabaseManager{
		config:       cfg,
		logger:       GetLogger(),
		healthStatus: &HealthStatus{},
	}
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.connector != nil {
		return nil
	}

	cc := &dm.config.ConnectionConfig
	if cc.ConnectTimeout <= 0 {
		cc.ConnectTimeout = 30 * time.Second
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, cc.ConnectTimeout)
	defer cancel()

	connector, err := dm.createConnector(ctxTimeout)
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := connector.Ping(ctxTimeout); err != nil {
		dm.lastError = err
		_ = connector.Close(context.Background())
		dm.resetConnection()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if cc.EnableMetrics {
		if dm.metrics == nil {
			dm.metrics = DefaultMetrics()
		}
		connector = Instrument(connector, dm.metrics)
	}

	dm.connector = connector
	dm.connected = true
	dm.lastError = nil
	dm.reconnectTries = 0

	if cc.HealthCheckInterval > 0 {
		dm.startHealthCheck()
	}

	dm.logger.Info("Database connected successfully", "type", cc.Type, "host", cc.Host, "dbname", cc.DBName)
	return nil
}

func (dm *defaultDatabaseManager) createConnector(ctx context.Context) (Connector, error) {
	cc := &dm.config.ConnectionConfig
	switch cc.Type {
	case TypeMongoDB:
		client, err := dm.createMongoClient(ctx)
		if err != nil {
			return nil, err
		}
		dm.client = client
		return NewMongoConnector(client, cc.DBName, dm.logger), nil
	case TypeMySQL, TypePostgres, "postgresql", TypeSQLite, "sqlite3":
		sqlDB, db, err := dm.createSQLConnection()
		if err != nil {
			return nil, err
		}
		dm.sqlDB, dm.db = sqlDB, db
		dm.configureConnectionPool()
		return NewSQLConnector(db, dm.logger), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cc.Type)
	}
}

func (dm *defaultDatabaseManager) resetConnection() {
	dm.client = nil
	dm.db = nil
	dm.sqlDB = nil
	dm.poolStats = nil
}

// mongoURI returns the configured URI or builds one from the discrete
// fields.
func mongoURI(cc *ConnectionConfig) string {
	if cc.URI != "" {
		return cc.URI
	}
	u := url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%d", cc.Host, cc.Port), Path: "/"}
	if cc.Username != "" {
		u.User = url.UserPassword(cc.Username, cc.Password)
	}
	q := url.Values{}
	if cc.AuthSource != "" {
		q.Set("authSource", cc.AuthSource)
	}
	if cc.ReplicaSet != "" {
		q.Set("replicaSet", cc.ReplicaSet)
	}
	if cc.SSLMode != "" && cc.SSLMode != "disable" {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (dm *defaultDatabaseManager) mongoClientOptions() *options.ClientOptions {
	cc := &dm.config.ConnectionConfig
	dm.poolStats = NewPoolStats(cc.MaxOpenConns)
	monitor := NewCommandMonitor(cc.EnableQueryLog, cc.EnableQueryLog, cc.SlowQueryTime, nil, dm.logger)

	opts := options.Client().
		ApplyURI(mongoURI(cc)).
		SetConnectTimeout(cc.ConnectTimeout).
		SetServerSelectionTimeout(cc.ConnectTimeout).
		SetMonitor(monitor.Monitor()).
		SetPoolMonitor(dm.poolStats.Monitor())
	if cc.AppName != "" {
		opts.SetAppName(cc.AppName)
	}
	if cc.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cc.MaxOpenConns))
	}
	if cc.MaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cc.MaxIdleConns))
	}
	if cc.ConnMaxIdleTime > 0 {
		opts.SetMaxConnIdleTime(cc.ConnMaxIdleTime)
	}
	if cc.ReadTimeout > 0 {
		opts.SetTimeout(cc.ReadTimeout)
	}
	return opts
}

func (dm *defaultDatabaseManager) createMongoClient(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, dm.mongoClientOptions())
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	return client, nil
}

func (dm *defaultDatabaseManager) createSQLConnection() (*sql.DB, *bun.DB, error) {
	var sqlDB *sql.DB
	var db *bun.DB
	var err error

	switch dm.config.ConnectionConfig.Type {
	case TypeMySQL:
		sqlDB, db, err = dm.createMySQLConnection()
	case TypePostgres, "postgresql":
		sqlDB, db, err = dm.createPostgreSQLConnection()
	default:
		sqlDB, db, err = dm.createSQLiteConnection()
	}
	if err != nil {
		return nil, nil, err
	}

	cc := &dm.config.ConnectionConfig
	if cc.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	} else {
		db.AddQueryHook(NewQueryHook(false, false, nil))
	}
	if cc.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(cc.SlowQueryTime, dm.logger))
	}
	return sqlDB, db, nil
}

func (dm *defaultDatabaseManager) createMySQLConnection() (*sql.DB, *bun.DB, error) {
	cc := &dm.config.ConnectionConfig
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cc.Username,
		cc.Password,
		cc.Host,
		cc.Port,
		cc.DBName,
		cc.ConnectTimeout,
		cc.ReadTimeout,
		cc.WriteTimeout,
	)

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, mysqldialect.New()), nil
}

func (dm *defaultDatabaseManager) createPostgreSQLConnection() (*sql.DB, *bun.DB, error) {
	cc := &dm.config.ConnectionConfig
	sslMode := cc.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		url.QueryEscape(cc.Username),
		url.QueryEscape(cc.Password),
		cc.Host,
		cc.Port,
		cc.DBName,
		sslMode,
		int(cc.ConnectTimeout.Seconds()),
	)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, pgdialect.New()), nil
}

func (dm *defaultDatabaseManager) createSQLiteConnection() (*sql.DB, *bun.DB, error) {
	sqlDB, err := openSQLite(dm.config.ConnectionConfig.DBName)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

func (dm *defaultDatabaseManager) configureConnectionPool() {
	if dm.sqlDB == nil {
		return
	}
	cc := &dm.config.ConnectionConfig
	if cc.Type == TypeSQLite || cc.Type == "sqlite3" {
		// A shared in-memory database lives as long as one connection does.
		dm.sqlDB.SetMaxOpenConns(1)
		dm.sqlDB.SetMaxIdleConns(1)
		dm.sqlDB.SetConnMaxLifetime(0)
		dm.sqlDB.SetConnMaxIdleTime(0)
		return
	}
	dm.sqlDB.SetMaxIdleConns(cc.MaxIdleConns)
	dm.sqlDB.SetMaxOpenConns(cc.MaxOpenConns)
	dm.sqlDB.SetConnMaxLifetime(cc.ConnMaxLifetime)
	dm.sqlDB.SetConnMaxIdleTime(cc.ConnMaxIdleTime)
}

func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopHealthCheck != nil {
		close(dm.stopHealthCheck)
		dm.stopHealthCheck = nil
	}

	if dm.connector == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := dm.connector.Close(ctx)
	dm.connector = nil
	dm.resetConnection()
	dm.connected = false

	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
	} else {
		dm.logger.Info("Database connection closed")
	}
	return err
}

func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.logger.Info("Attempting to reconnect to the database")
	if err := dm.Disconnect(); err != nil {
		dm.logger.Warn("Error disconnecting existing connection", "error", err)
	}
	return dm.Connect(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	c := dm.GetConnector()
	if c == nil {
		return fmt.Errorf("database not connected")
	}
	return c.Ping(ctx)
}

func (dm *defaultDatabaseManager) GetConnector() Connector {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.connector
}

func (dm *defaultDatabaseManager) GetClient() *mongo.Client {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.client
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     dm.connected,
	}

	if dm.connector == nil {
		status.Healthy = false
		status.LastError = "Database not initialized"
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err := dm.connector.Ping(ctxTimeout)
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Healthy = false
		status.Connected = false
		status.LastError = err.Error()
		dm.lastError = err
	} else {
		status.Healthy = true
		status.Connected = true
		dm.lastError = nil
	}

	stats := dm.statsLocked()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConns

	dm.healthStatus = status
	dm.lastHealthCheck = start
	return status
}

// startHealthCheck runs one health loop per connection. Callers hold dm.mu.
func (dm *defaultDatabaseManager) startHealthCheck() {
	if dm.stopHealthCheck != nil {
		return
	}
	stop := make(chan struct{})
	dm.stopHealthCheck = stop
	interval := dm.config.ConnectionConfig.HealthCheckInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
				status := dm.HealthCheck(ctx)
				cancel()
				if !status.Healthy && dm.config.ConnectionConfig.EnableReconnect {
					dm.handleReconnect()
				}
			case <-stop:
				return
			}
		}
	}()
}

func (dm *defaultDatabaseManager) handleReconnect() {
	cc := &dm.config.ConnectionConfig
	if dm.reconnectTries >= cc.MaxReconnectTries {
		dm.logger.Error("Max reconnect attempts reached, stopping", "tries", dm.reconnectTries)
		return
	}

	dm.reconnectTries++
	dm.logger.Info("Starting database reconnect", "try", dm.reconnectTries)

	time.Sleep(cc.ReconnectInterval)

	ctx, cancel := context.WithTimeout(context.Background(), cc.ConnectTimeout)
	defer cancel()

	if err := dm.Reconnect(ctx); err != nil {
		dm.logger.Error("Reconnect failed", "error", err, "try", dm.reconnectTries)
	} else {
		dm.reconnectTries = 0
		dm.logger.Info("Reconnect succeeded")
	}
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.statsLocked()
}

func (dm *defaultDatabaseManager) statsLocked() *DBStats {
	if dm.poolStats != nil {
		return dm.poolStats.Snapshot()
	}
	if dm.sqlDB == nil {
		return &DBStats{}
	}
	stats := dm.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// SyncIndexes applies the configured schema file to registry, when one is
// set, and runs Autoupdate for every model.
func (dm *defaultDatabaseManager) SyncIndexes(ctx context.Context, registry *schema.Registry) error {
	c := dm.GetConnector()
	if c == nil {
		return fmt.Errorf("database not initialized")
	}
	if registry == nil {
		registry = schema.Default()
	}
	sc := dm.config.IndexSyncConfig
	if sc.SchemaFile != "" {
		f, err := schema.LoadFile(sc.SchemaFile)
		if err != nil {
			return err
		}
		if err := f.Apply(registry); err != nil {
			return err
		}
	}
	return NewIndexSyncManager(c, dm.logger, sc.Concurrency).SyncRegistry(ctx, registry)
}

// InitData seeds fixtures for the configured environment.
func (dm *defaultDatabaseManager) InitData(ctx context.Context, registry *schema.Registry) error {
	c := dm.GetConnector()
	if c == nil {
		return fmt.Errorf("database not initialized")
	}
	if registry == nil {
		registry = schema.Default()
	}
	di := dm.config.DataInitConfig
	seeder := NewSeedManager(c, registry, di.Environment)
	seeder.SetLogger(dm.logger)
	if di.Filepath != "" {
		seeder.SetRootPath(di.Filepath)
	}
	_, err := seeder.Execute(ctx)
	return err
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}

// SetMetrics sets the collectors used when metrics are enabled. It must be
// called before Connect.
func (dm *defaultDatabaseManager) SetMetrics(m *Metrics) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.metrics = m
}
